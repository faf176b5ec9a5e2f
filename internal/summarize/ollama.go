// Package summarize provides the optional transcript summarization stage
// backed by a local Ollama instance. The backend is best-effort: every
// failure mode converts to ErrUnavailable and never fails the request.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skillsenselab/transcriber/internal/logger"
)

// ErrUnavailable signals that the summarization backend could not produce a
// summary. Callers treat it as a degraded outcome, not a failure.
var ErrUnavailable = errors.New("summarization backend unavailable")

const (
	healthTimeout = 5 * time.Second

	// Transcripts shorter than this carry too little signal to summarize.
	minTranscriptLen = 50

	// Very long transcripts are truncated to stay within model context.
	maxPromptChars = 8000
)

// Config holds the Ollama backend configuration.
type Config struct {
	Enabled bool
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Summarizer is the capability the orchestrator queries: Available for a
// lightweight reachability check, Summarize for a single bounded attempt.
type Summarizer struct {
	cfg    Config
	client *http.Client
	log    *logger.Logger
}

// New creates a Summarizer.
func New(cfg Config, log *logger.Logger) *Summarizer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &Summarizer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.WithComponent("summarize"),
	}
}

// Enabled reports whether summarization is configured on at all.
func (s *Summarizer) Enabled() bool { return s.cfg.Enabled }

// Available checks if the Ollama service is reachable, with a short timeout.
// It mutates no state and is safe to call from health checks.
func (s *Summarizer) Available(ctx context.Context) bool {
	if !s.cfg.Enabled {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, s.cfg.BaseURL+"/api/tags", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Summarize makes a single attempt to summarize the transcript. All failure
// modes (disabled, too short, refused, timeout, non-200, empty response)
// return ErrUnavailable; there are no retries.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if !s.cfg.Enabled {
		return "", ErrUnavailable
	}
	if len(strings.TrimSpace(transcript)) < minTranscriptLen {
		s.log.Warn("transcript too short to summarize")
		return "", ErrUnavailable
	}

	body, err := json.Marshal(generateRequest{
		Model:  s.cfg.Model,
		Prompt: buildPrompt(transcript),
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrUnavailable, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		s.log.Warn("ollama request failed", logger.Fields(logger.FieldError, err.Error()))
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer httpResp.Body.Close() //nolint:errcheck // close error is safe to ignore for reads

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		s.log.Warn("ollama returned non-success status", logger.Fields(
			"status", httpResp.StatusCode,
			"body", strings.TrimSpace(string(respBody)),
		))
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, httpResp.StatusCode)
	}

	var resp generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	summary := strings.TrimSpace(resp.Response)
	if summary == "" {
		s.log.Warn("ollama returned an empty summary")
		return "", ErrUnavailable
	}
	return summary, nil
}

// --- Ollama API types ---

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func buildPrompt(transcript string) string {
	if len(transcript) > maxPromptChars {
		transcript = transcript[:maxPromptChars] + "..."
	}
	return "Please provide a concise summary of the following transcript. " +
		"Focus on the main points, key topics discussed, and important takeaways. " +
		"Keep the summary clear and well-organized.\n\nTranscript:\n" + transcript + "\n\nSummary:"
}
