package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skillsenselab/transcriber/internal/apperrors"
	"github.com/skillsenselab/transcriber/internal/logger"
	"github.com/skillsenselab/transcriber/internal/media"
	"github.com/skillsenselab/transcriber/internal/pipeline"
	"github.com/skillsenselab/transcriber/internal/transcription"
)

// PipelineRunner is the orchestrator as the handler sees it.
type PipelineRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// AvailabilityChecker is the summarization backend's reachability probe.
type AvailabilityChecker interface {
	Available(ctx context.Context) bool
}

// ModelInfo is the engine configuration subset the API exposes.
type ModelInfo struct {
	ModelSize   string
	Device      string
	ComputeType string
}

// Handler holds the API route handlers.
type Handler struct {
	pipeline      PipelineRunner
	summarizer    AvailabilityChecker
	model         ModelInfo
	maxFileSizeMB int
	log           *logger.Logger
}

// NewHandler creates the API handler set.
func NewHandler(p PipelineRunner, s AvailabilityChecker, model ModelInfo, maxFileSizeMB int, log *logger.Logger) *Handler {
	return &Handler{
		pipeline:      p,
		summarizer:    s,
		model:         model,
		maxFileSizeMB: maxFileSizeMB,
		log:           log.WithComponent("api"),
	}
}

// Register mounts the API routes on the engine.
func (h *Handler) Register(engine *gin.Engine) {
	api := engine.Group("/api")
	api.POST("/transcribe", h.Transcribe)
	api.GET("/models", h.Models)
	api.GET("/health", h.Health)
}

// --- response types ---

type segmentResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Text  string `json:"text"`
}

type transcribeResponse struct {
	Text     string            `json:"text"`
	Segments []segmentResponse `json:"segments,omitempty"`
	Summary  string            `json:"summary,omitempty"`
	Language string            `json:"language,omitempty"`
	Duration float64           `json:"duration,omitempty"`
	Model    string            `json:"model,omitempty"`
}

type modelsResponse struct {
	CurrentModel     string   `json:"current_model"`
	AvailableModels  []string `json:"available_models"`
	Device           string   `json:"device"`
	ComputeType      string   `json:"compute_type"`
	MaxFileSizeMB    int      `json:"max_file_size_mb"`
	SupportedFormats []string `json:"supported_formats"`
}

type healthResponse struct {
	Status          string `json:"status"`
	Model           string `json:"model"`
	OllamaAvailable bool   `json:"ollama_available"`
}

var availableModels = []string{"tiny", "base", "small", "medium", "large-v1", "large-v2", "large-v3"}

// Transcribe handles POST /api/transcribe: multipart upload through the
// pipeline to a transcript, with optional timestamps and summary.
func (h *Handler) Transcribe(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			RespondWithError(c, apperrors.FileTooLarge(h.maxFileSizeMB))
			return
		}
		RespondWithError(c, apperrors.InvalidInput("multipart form must include a file field"))
		return
	}
	defer file.Close() //nolint:errcheck // read-only multipart part

	result, err := h.pipeline.Run(c.Request.Context(), pipeline.Request{
		Filename:          header.Filename,
		Body:              file,
		IncludeTimestamps: formBool(c, "include_timestamps"),
		Summarize:         formBool(c, "summarize"),
		Language:          c.PostForm("language"),
	})
	if err != nil {
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			h.log.Warn("pipeline failed", logger.Fields(
				logger.FieldStage, string(stageErr.Stage),
				logger.FieldError, err.Error(),
			))
		}
		RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTranscribeResponse(result))
}

// Models handles GET /api/models.
func (h *Handler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, modelsResponse{
		CurrentModel:     h.model.ModelSize,
		AvailableModels:  availableModels,
		Device:           h.model.Device,
		ComputeType:      h.model.ComputeType,
		MaxFileSizeMB:    h.maxFileSizeMB,
		SupportedFormats: media.SupportedExtensions(),
	})
}

// Health handles GET /api/health. The summarization reachability check
// mutates no pipeline state.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:          "healthy",
		Model:           h.model.ModelSize,
		OllamaAvailable: h.summarizer.Available(c.Request.Context()),
	})
}

func toTranscribeResponse(result *pipeline.Result) transcribeResponse {
	resp := transcribeResponse{
		Text:     result.Text,
		Language: result.Language,
		Duration: result.Duration,
		Model:    result.Model,
	}
	if result.HasSummary {
		resp.Summary = result.Summary
	}
	for _, seg := range result.Segments {
		resp.Segments = append(resp.Segments, segmentResponse{
			Start: transcription.FormatTimestamp(seg.Start),
			End:   transcription.FormatTimestamp(seg.End),
			Text:  seg.Text,
		})
	}
	return resp
}

func formBool(c *gin.Context, field string) bool {
	v, err := strconv.ParseBool(c.PostForm(field))
	return err == nil && v
}
