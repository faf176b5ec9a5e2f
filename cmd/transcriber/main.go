// Command transcriber runs the media transcription service: an HTTP API that
// accepts media uploads, extracts audio with ffmpeg, transcribes it through a
// faster-whisper engine, and optionally summarizes the transcript via Ollama.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skillsenselab/transcriber/internal/config"
	"github.com/skillsenselab/transcriber/internal/logger"
	"github.com/skillsenselab/transcriber/internal/media"
	"github.com/skillsenselab/transcriber/internal/observability"
	"github.com/skillsenselab/transcriber/internal/pipeline"
	"github.com/skillsenselab/transcriber/internal/server"
	"github.com/skillsenselab/transcriber/internal/summarize"
	"github.com/skillsenselab/transcriber/internal/transcription"
	"github.com/skillsenselab/transcriber/internal/workspace"
)

const serviceName = "transcriber"

var version = "dev"

func main() {
	envFile := flag.String("env", "", "path to an optional .env file")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log, serviceName)
	logger.SetGlobalLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName:    serviceName,
			ServiceVersion: version,
			Endpoint:       cfg.TracingEndpoint,
			Insecure:       true,
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn("tracer shutdown", logger.Fields(logger.FieldError, err.Error()))
			}
		}()
	}

	engine := transcription.NewWhisperEngine(transcription.Config{
		URL:         cfg.WhisperURL,
		ModelSize:   cfg.WhisperModelSize,
		Device:      cfg.WhisperDevice,
		ComputeType: cfg.WhisperComputeType,
	}, log)

	// The engine must be loadable before the service reports ready. A model
	// that cannot load is a startup failure, not a degraded state.
	if err := engine.Load(ctx); err != nil {
		return fmt.Errorf("load transcription engine: %w", err)
	}

	summarizer := summarize.New(summarize.Config{
		Enabled: cfg.OllamaEnabled,
		BaseURL: cfg.OllamaURL,
		Model:   cfg.OllamaModel,
		Timeout: time.Duration(cfg.OllamaTimeoutSec) * time.Second,
	}, log)

	workspaces, err := workspace.NewManager(cfg.TempDir, log)
	if err != nil {
		return fmt.Errorf("init workspace manager: %w", err)
	}

	orch := pipeline.New(
		workspaces,
		media.NewProcessor(log),
		engine,
		summarizer,
		cfg.MaxFileSizeMB,
		cfg.WhisperModelSize,
		log,
	)

	srv := server.New(server.Config{
		Host: cfg.Host,
		Port: cfg.Port,
		// Multipart framing adds overhead past the raw file limit.
		MaxBodyBytes: cfg.MaxUploadBytes() + 1<<20,
	}, log)
	srv.ApplyMiddleware()

	handler := server.NewHandler(orch, summarizer, server.ModelInfo{
		ModelSize:   cfg.WhisperModelSize,
		Device:      cfg.WhisperDevice,
		ComputeType: cfg.WhisperComputeType,
	}, cfg.MaxFileSizeMB, log)
	handler.Register(srv.GinEngine())

	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Info("service ready", logger.Fields(
		"addr", srv.Addr(),
		"model", cfg.WhisperModelSize,
		"device", cfg.WhisperDevice,
		"ollama_enabled", cfg.OllamaEnabled,
	))

	<-ctx.Done()
	log.Info("shutdown signal received")

	return srv.Stop(context.Background())
}
