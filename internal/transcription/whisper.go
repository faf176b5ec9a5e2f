package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/skillsenselab/transcriber/internal/apperrors"
	"github.com/skillsenselab/transcriber/internal/logger"
)

const (
	// EngineName is the recognition engine identifier.
	EngineName = "whisper"

	defaultTimeout = 10 * time.Minute
)

// Config holds the model configuration the engine is keyed by. It is read
// once at startup and immutable for the process lifetime.
type Config struct {
	URL         string
	ModelSize   string
	Device      string
	ComputeType string
	Timeout     time.Duration
}

// WhisperEngine implements Engine against a faster-whisper HTTP sidecar.
// The sidecar holds one expensive model instance per configuration; this
// adapter serializes inference calls because the underlying engine is not
// guaranteed safe for parallel inference on one instance.
type WhisperEngine struct {
	cfg    Config
	client *http.Client
	log    *logger.Logger

	// mu covers the inference call. Concurrency across requests is an
	// accepted throughput ceiling, not a correctness concern.
	mu sync.Mutex
}

// NewWhisperEngine creates the engine adapter from model configuration.
func NewWhisperEngine(cfg Config, log *logger.Logger) *WhisperEngine {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &WhisperEngine{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.WithComponent("whisper"),
	}
}

// Name returns the engine identifier.
func (e *WhisperEngine) Name() string { return EngineName }

// ModelSize returns the configured model size.
func (e *WhisperEngine) ModelSize() string { return e.cfg.ModelSize }

// Device returns the configured inference device.
func (e *WhisperEngine) Device() string { return e.cfg.Device }

// ComputeType returns the configured compute precision.
func (e *WhisperEngine) ComputeType() string { return e.cfg.ComputeType }

// IsAvailable checks if the engine sidecar is reachable.
func (e *WhisperEngine) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.URL+"/health", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Load verifies at startup that the engine is reachable for the configured
// model/device/precision. A failure here is fatal: the service must not enter
// a serving-ready state with an unloadable engine.
func (e *WhisperEngine) Load(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if !e.IsAvailable(checkCtx) {
		return fmt.Errorf("whisper engine at %s is not reachable for model=%s device=%s compute_type=%s",
			e.cfg.URL, e.cfg.ModelSize, e.cfg.Device, e.cfg.ComputeType)
	}
	e.log.Info("whisper engine ready", logger.Fields(
		"model", e.cfg.ModelSize,
		"device", e.cfg.Device,
		"compute_type", e.cfg.ComputeType,
	))
	return nil
}

// Transcribe runs inference over the extracted audio. Calls are serialized;
// the flat transcript is the trimmed, single-spaced join of segment texts.
func (e *WhisperEngine) Transcribe(ctx context.Context, req Request) (*Result, error) {
	audio, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return nil, apperrors.InferenceFailed(fmt.Errorf("read audio: %w", err))
	}

	body, contentType, err := e.buildForm(audio, filepath.Base(req.AudioPath), req)
	if err != nil {
		return nil, apperrors.InferenceFailed(err)
	}

	e.mu.Lock()
	resp, err := e.post(ctx, body, contentType)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return buildResult(resp, req.IncludeTimestamps), nil
}

func (e *WhisperEngine) buildForm(audio []byte, filename string, req Request) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}

	_ = writer.WriteField("model", e.cfg.ModelSize)
	_ = writer.WriteField("device", e.cfg.Device)
	_ = writer.WriteField("compute_type", e.cfg.ComputeType)
	if req.Language != "" {
		_ = writer.WriteField("language", req.Language)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

func (e *WhisperEngine) post(ctx context.Context, body io.Reader, contentType string) (*whisperResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL+"/transcribe", body)
	if err != nil {
		return nil, apperrors.InferenceFailed(err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.EngineUnavailable(err)
	}
	defer httpResp.Body.Close() //nolint:errcheck // close error is safe to ignore for reads

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		err := fmt.Errorf("whisper status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(respBody)))
		if httpResp.StatusCode >= http.StatusInternalServerError {
			return nil, apperrors.EngineUnavailable(err)
		}
		return nil, apperrors.InferenceFailed(err)
	}

	var resp whisperResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, apperrors.InferenceFailed(fmt.Errorf("decode whisper response: %w", err))
	}
	return &resp, nil
}

// --- sidecar API types ---

type whisperResponse struct {
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
}

type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// buildResult normalizes the sidecar response: segments are sorted
// chronologically with overlaps clamped away, and the flat transcript is the
// trimmed, single-spaced join of segment texts.
func buildResult(resp *whisperResponse, includeTimestamps bool) *Result {
	segments := make([]Segment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{Start: seg.Start, End: seg.End, Text: text})
	}

	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })
	for i := range segments {
		if i > 0 && segments[i].Start < segments[i-1].End {
			segments[i].Start = segments[i-1].End
		}
		if segments[i].End < segments[i].Start {
			segments[i].End = segments[i].Start
		}
	}

	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = seg.Text
	}
	text := strings.Join(parts, " ")
	if text == "" {
		text = strings.TrimSpace(resp.Text)
	}

	duration := resp.Duration
	if duration == 0 && len(segments) > 0 {
		duration = segments[len(segments)-1].End
	}

	result := &Result{
		Text:     text,
		Language: resp.Language,
		Duration: duration,
	}
	if includeTimestamps {
		result.Segments = segments
	}
	return result
}
