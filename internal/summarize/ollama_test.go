package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/skillsenselab/transcriber/internal/logger"
)

const longTranscript = "This is a sufficiently long transcript about several topics " +
	"that were discussed during the meeting, including planning and scheduling."

func newTestSummarizer(url string, enabled bool) *Summarizer {
	return New(Config{
		Enabled: enabled,
		BaseURL: url,
		Model:   "llama3.1:8b",
		Timeout: 5 * time.Second,
	}, logger.NewDefault("test"))
}

func TestSummarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("stream should be false")
		}
		if !strings.Contains(req.Prompt, longTranscript) {
			t.Error("prompt missing transcript")
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "  A concise summary. ", Done: true})
	}))
	defer srv.Close()

	s := newTestSummarizer(srv.URL, true)
	summary, err := s.Summarize(context.Background(), longTranscript)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary != "A concise summary." {
		t.Errorf("summary = %q", summary)
	}
}

func TestSummarizeUnavailableCases(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		close   bool
	}{
		{"connection refused", nil, true},
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusInternalServerError)
		}, false},
		{"empty response", func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(generateResponse{Response: "   "})
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			if tt.close {
				srv.Close()
			} else {
				defer srv.Close()
			}

			s := newTestSummarizer(srv.URL, true)
			_, err := s.Summarize(context.Background(), longTranscript)
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("err = %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestSummarizeDisabled(t *testing.T) {
	s := newTestSummarizer("http://localhost:1", false)
	if _, err := s.Summarize(context.Background(), longTranscript); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if s.Available(context.Background()) {
		t.Error("Available = true while disabled")
	}
}

func TestSummarizeTooShort(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer srv.Close()

	s := newTestSummarizer(srv.URL, true)
	if _, err := s.Summarize(context.Background(), "too short"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if called {
		t.Error("backend called for a too-short transcript")
	}
}

func TestAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if !newTestSummarizer(srv.URL, true).Available(context.Background()) {
		t.Error("Available = false for healthy backend")
	}

	srv.Close()
	if newTestSummarizer(srv.URL, true).Available(context.Background()) {
		t.Error("Available = true for closed backend")
	}
}

func TestBuildPromptTruncation(t *testing.T) {
	long := strings.Repeat("a", maxPromptChars+100)
	prompt := buildPrompt(long)
	if strings.Contains(prompt, strings.Repeat("a", maxPromptChars+1)) {
		t.Error("transcript not truncated")
	}
	if !strings.Contains(prompt, "...") {
		t.Error("truncation marker missing")
	}
}
