// Package pipeline orchestrates the transcription request flow: workspace
// allocation, upload streaming, validation, audio extraction, inference, and
// optional summarization, with guaranteed workspace cleanup on every exit
// path.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/skillsenselab/transcriber/internal/apperrors"
	"github.com/skillsenselab/transcriber/internal/logger"
	"github.com/skillsenselab/transcriber/internal/media"
	"github.com/skillsenselab/transcriber/internal/observability"
	"github.com/skillsenselab/transcriber/internal/transcription"
	"github.com/skillsenselab/transcriber/internal/workspace"
)

// Stage identifies where in the pipeline a request currently is, or where it
// failed.
type Stage string

const (
	StageReceived     Stage = "received"
	StageValidating   Stage = "validating"
	StageExtracting   Stage = "extracting"
	StageTranscribing Stage = "transcribing"
	StageSummarizing  Stage = "summarizing"
	StageCompleted    Stage = "completed"
)

// StageError records which stage a request failed in. It wraps the stage's
// discriminated outcome so the transport layer can map it to a response.
type StageError struct {
	Stage Stage
	Err   error
}

// Error formats the failure with its stage.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *StageError) Unwrap() error { return e.Err }

func failed(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Request is one inbound transcription call. The body is consumed exactly
// once, streamed to the workspace input path.
type Request struct {
	Filename          string
	Body              io.Reader
	IncludeTimestamps bool
	Summarize         bool
	Language          string
}

// Result is the assembled outcome of a completed pipeline run.
type Result struct {
	Text     string
	Segments []transcription.Segment
	// Summary is set only when summarization was requested and the backend
	// produced one; HasSummary collapses requested-but-unavailable and
	// not-requested into absence.
	Summary    string
	HasSummary bool
	Language   string
	Duration   float64
	Model      string
}

// MediaProcessor is the slice of the media toolkit the pipeline needs.
type MediaProcessor interface {
	ProbeDuration(ctx context.Context, path string) (float64, bool)
	ExtractAudio(ctx context.Context, inputPath, audioPath string) error
}

// SummaryCapability is the optional summarization stage: the orchestrator
// queries availability and makes at most one attempt.
type SummaryCapability interface {
	Enabled() bool
	Available(ctx context.Context) bool
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Orchestrator sequences the pipeline stages and owns the cleanup contract.
type Orchestrator struct {
	workspaces *workspace.Manager
	media      MediaProcessor
	engine     transcription.Engine
	summarizer SummaryCapability

	maxUploadBytes int64
	maxFileSizeMB  int
	modelSize      string
	log            *logger.Logger
}

// New creates an Orchestrator. All collaborators are constructed at startup
// and injected; the engine in particular is the process-wide shared instance.
func New(
	workspaces *workspace.Manager,
	mediaProc MediaProcessor,
	engine transcription.Engine,
	summarizer SummaryCapability,
	maxFileSizeMB int,
	modelSize string,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		workspaces:     workspaces,
		media:          mediaProc,
		engine:         engine,
		summarizer:     summarizer,
		maxUploadBytes: int64(maxFileSizeMB) * 1024 * 1024,
		maxFileSizeMB:  maxFileSizeMB,
		modelSize:      modelSize,
		log:            log.WithComponent("pipeline"),
	}
}

// Run executes one request through the pipeline. The workspace is released
// exactly once on entry to the terminal state, success or failure; stages
// never clean up after themselves.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.run",
		attribute.String("filename", req.Filename),
		attribute.Bool("timestamps", req.IncludeTimestamps),
		attribute.Bool("summarize", req.Summarize),
	)
	defer span.End()

	// Extension gate runs before any scratch allocation: a rejected upload
	// must leave no temp files behind.
	if err := media.ValidateExtension(req.Filename); err != nil {
		return nil, failed(StageValidating, err)
	}

	ws := o.workspaces.Acquire(fileExt(req.Filename))
	defer o.workspaces.Release(ws)

	start := time.Now()

	size, err := o.receive(ctx, req.Body, ws.InputPath)
	if err != nil {
		return nil, failed(StageReceived, err)
	}

	duration, err := o.validate(ctx, ws.InputPath, size)
	if err != nil {
		return nil, failed(StageValidating, err)
	}

	if err := o.extract(ctx, ws); err != nil {
		return nil, failed(StageExtracting, err)
	}

	tr, err := o.transcribe(ctx, ws.AudioPath, req)
	if err != nil {
		return nil, failed(StageTranscribing, err)
	}

	result := &Result{
		Text:     tr.Text,
		Segments: tr.Segments,
		Language: tr.Language,
		Duration: duration,
		Model:    o.modelSize,
	}
	if result.Duration == 0 {
		result.Duration = tr.Duration
	}

	if req.Summarize {
		result.Summary, result.HasSummary = o.trySummarize(ctx, tr.Text)
	}

	o.log.Info("request completed", logger.Fields(
		"upload_bytes", size,
		"duration_sec", result.Duration,
		"summary", result.HasSummary,
		logger.FieldDuration, time.Since(start).Milliseconds(),
	))
	return result, nil
}

// receive streams the upload to the input path, enforcing the size cap
// mid-stream so an oversized body aborts before being fully consumed.
func (o *Orchestrator) receive(ctx context.Context, body io.Reader, inputPath string) (int64, error) {
	_, span := observability.StartSpan(ctx, "pipeline.receive")
	defer span.End()

	dst, err := os.Create(inputPath)
	if err != nil {
		return 0, apperrors.Internal(fmt.Errorf("create upload file: %w", err))
	}
	defer dst.Close() //nolint:errcheck // flushed and closed explicitly below on success

	written, err := io.Copy(dst, io.LimitReader(body, o.maxUploadBytes+1))
	if err != nil {
		// A mid-upload client disconnect lands here as a stream read failure.
		return written, apperrors.InvalidInput("upload stream ended unexpectedly").WithCause(err)
	}
	if written > o.maxUploadBytes {
		return written, apperrors.FileTooLarge(o.maxFileSizeMB)
	}
	if err := dst.Close(); err != nil {
		return written, apperrors.Internal(fmt.Errorf("flush upload file: %w", err))
	}
	return written, nil
}

// validate rejects empty uploads and attaches the advisory duration probe.
// The probe result never blocks the transition to extraction.
func (o *Orchestrator) validate(ctx context.Context, inputPath string, size int64) (float64, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.validate")
	defer span.End()

	if size == 0 {
		return 0, apperrors.EmptyUpload()
	}

	duration, ok := o.media.ProbeDuration(ctx, inputPath)
	if !ok {
		o.log.Warn("duration unknown, continuing", logger.Fields(logger.FieldPath, inputPath))
		return 0, nil
	}
	o.log.Debug("probed media duration", logger.Fields("duration_sec", duration))
	return duration, nil
}

// extract produces the normalized audio artifact and gates on it being
// non-empty before inference.
func (o *Orchestrator) extract(ctx context.Context, ws *workspace.Workspace) error {
	ctx, span := observability.StartSpan(ctx, "pipeline.extract")
	defer span.End()

	if err := o.media.ExtractAudio(ctx, ws.InputPath, ws.AudioPath); err != nil {
		return err
	}

	info, err := os.Stat(ws.AudioPath)
	if err != nil || info.Size() == 0 {
		return apperrors.CorruptMedia("extraction produced no audio")
	}
	return nil
}

func (o *Orchestrator) transcribe(ctx context.Context, audioPath string, req Request) (*transcription.Result, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.transcribe")
	defer span.End()

	return o.engine.Transcribe(ctx, transcription.Request{
		AudioPath:         audioPath,
		Language:          req.Language,
		IncludeTimestamps: req.IncludeTimestamps,
	})
}

// trySummarize makes the single best-effort summarization attempt. Any
// unavailability degrades the result; it never fails the request.
func (o *Orchestrator) trySummarize(ctx context.Context, transcript string) (string, bool) {
	ctx, span := observability.StartSpan(ctx, "pipeline.summarize")
	defer span.End()

	if !o.summarizer.Enabled() || !o.summarizer.Available(ctx) {
		o.log.Warn("summarization backend not available, skipping")
		return "", false
	}

	summary, err := o.summarizer.Summarize(ctx, transcript)
	if err != nil {
		o.log.Warn("summarization failed, returning transcript without summary",
			logger.Fields(logger.FieldError, err.Error()))
		return "", false
	}
	return summary, true
}

func fileExt(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
