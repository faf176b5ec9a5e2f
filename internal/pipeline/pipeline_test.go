package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/skillsenselab/transcriber/internal/apperrors"
	"github.com/skillsenselab/transcriber/internal/logger"
	"github.com/skillsenselab/transcriber/internal/summarize"
	"github.com/skillsenselab/transcriber/internal/transcription"
	"github.com/skillsenselab/transcriber/internal/workspace"
)

// fakeMedia simulates the ffmpeg/ffprobe toolkit.
type fakeMedia struct {
	duration     float64
	durationOK   bool
	extractErr   error
	audioContent []byte
	extractCalls int
}

func (f *fakeMedia) ProbeDuration(_ context.Context, _ string) (float64, bool) {
	return f.duration, f.durationOK
}

func (f *fakeMedia) ExtractAudio(_ context.Context, _, audioPath string) error {
	f.extractCalls++
	if f.extractErr != nil {
		return f.extractErr
	}
	return os.WriteFile(audioPath, f.audioContent, 0o644)
}

// fakeEngine simulates the recognition engine.
type fakeEngine struct {
	result *transcription.Result
	err    error
	calls  int
}

func (f *fakeEngine) Name() string                        { return "fake" }
func (f *fakeEngine) IsAvailable(context.Context) bool    { return true }
func (f *fakeEngine) Transcribe(_ context.Context, req transcription.Request) (*transcription.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	if !req.IncludeTimestamps {
		r.Segments = nil
	}
	return &r, nil
}

// fakeSummarizer simulates the Ollama capability.
type fakeSummarizer struct {
	enabled   bool
	available bool
	summary   string
	err       error
}

func (f *fakeSummarizer) Enabled() bool                   { return f.enabled }
func (f *fakeSummarizer) Available(context.Context) bool  { return f.available }
func (f *fakeSummarizer) Summarize(context.Context, string) (string, error) {
	return f.summary, f.err
}

type fixture struct {
	orch    *Orchestrator
	tempDir string
	media   *fakeMedia
	engine  *fakeEngine
}

func newFixture(t *testing.T, m *fakeMedia, e *fakeEngine, s SummaryCapability) *fixture {
	t.Helper()
	log := logger.NewDefault("test")
	dir := t.TempDir()
	ws, err := workspace.NewManager(dir, log)
	if err != nil {
		t.Fatal(err)
	}
	if s == nil {
		s = &fakeSummarizer{}
	}
	return &fixture{
		orch:    New(ws, m, e, s, 1, "base", log), // 1 MB limit
		tempDir: dir,
		media:   m,
		engine:  e,
	}
}

func (f *fixture) assertNoScratchFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("scratch files leaked: %v", names)
	}
}

func defaultEngine() *fakeEngine {
	return &fakeEngine{result: &transcription.Result{
		Text:     "hello world",
		Language: "en",
		Duration: 30,
		Segments: []transcription.Segment{
			{Start: 0, End: 15, Text: "hello"},
			{Start: 15, End: 30, Text: "world"},
		},
	}}
}

func defaultMedia() *fakeMedia {
	return &fakeMedia{duration: 30, durationOK: true, audioContent: []byte("RIFF")}
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture(t, defaultMedia(), defaultEngine(), nil)

	result, err := f.orch.Run(context.Background(), Request{
		Filename: "clip.mp4",
		Body:     strings.NewReader("video bytes"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Text != "hello world" {
		t.Errorf("Text = %q", result.Text)
	}
	if result.Segments != nil {
		t.Errorf("segments present without timestamps request")
	}
	if result.HasSummary {
		t.Errorf("summary present without request")
	}
	if result.Duration != 30 || result.Model != "base" || result.Language != "en" {
		t.Errorf("metadata = %+v", result)
	}
	f.assertNoScratchFiles(t)
}

func TestRunWithTimestamps(t *testing.T) {
	f := newFixture(t, defaultMedia(), defaultEngine(), nil)

	result, err := f.orch.Run(context.Background(), Request{
		Filename:          "clip.mp4",
		Body:              strings.NewReader("video bytes"),
		IncludeTimestamps: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(result.Segments))
	}
	for i := 1; i < len(result.Segments); i++ {
		if result.Segments[i].Start < result.Segments[i-1].End {
			t.Errorf("segments overlap at %d", i)
		}
	}
}

func TestRunUnsupportedExtensionCreatesNoFiles(t *testing.T) {
	f := newFixture(t, defaultMedia(), defaultEngine(), nil)

	_, err := f.orch.Run(context.Background(), Request{
		Filename: "clip.txt",
		Body:     strings.NewReader("text"),
	})

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageValidating {
		t.Fatalf("err = %v, want StageValidating failure", err)
	}
	appErr, _ := apperrors.AsAppError(err)
	if appErr == nil || appErr.Code != apperrors.ErrCodeUnsupportedFormat {
		t.Fatalf("err = %v, want UNSUPPORTED_FORMAT", err)
	}
	f.assertNoScratchFiles(t)
	if f.media.extractCalls != 0 {
		t.Error("extraction invoked for rejected upload")
	}
}

func TestRunOversizeFailsBeforeExtraction(t *testing.T) {
	f := newFixture(t, defaultMedia(), defaultEngine(), nil)

	// One byte over the 1 MB fixture limit.
	big := strings.NewReader(strings.Repeat("x", 1<<20+1))
	_, err := f.orch.Run(context.Background(), Request{Filename: "clip.mp4", Body: big})

	appErr, _ := apperrors.AsAppError(err)
	if appErr == nil || appErr.Code != apperrors.ErrCodeFileTooLarge {
		t.Fatalf("err = %v, want FILE_TOO_LARGE", err)
	}
	if f.media.extractCalls != 0 {
		t.Error("extraction invoked for oversized upload")
	}
	f.assertNoScratchFiles(t)
}

func TestRunEmptyUploadRejected(t *testing.T) {
	f := newFixture(t, defaultMedia(), defaultEngine(), nil)

	_, err := f.orch.Run(context.Background(), Request{
		Filename: "clip.mp4",
		Body:     strings.NewReader(""),
	})

	appErr, _ := apperrors.AsAppError(err)
	if appErr == nil || appErr.Code != apperrors.ErrCodeEmptyUpload {
		t.Fatalf("err = %v, want EMPTY_UPLOAD", err)
	}
	if f.media.extractCalls != 0 {
		t.Error("extraction invoked for empty upload")
	}
	f.assertNoScratchFiles(t)
}

func TestRunExtractionFailureCleansUp(t *testing.T) {
	m := defaultMedia()
	m.extractErr = apperrors.ExtractionFailed("boom", errors.New("exit 1"))
	f := newFixture(t, m, defaultEngine(), nil)

	_, err := f.orch.Run(context.Background(), Request{
		Filename: "clip.mp4",
		Body:     strings.NewReader("video bytes"),
	})

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageExtracting {
		t.Fatalf("err = %v, want StageExtracting failure", err)
	}
	if f.engine.calls != 0 {
		t.Error("inference invoked after failed extraction")
	}
	f.assertNoScratchFiles(t)
}

func TestRunEmptyAudioArtifactRejected(t *testing.T) {
	m := defaultMedia()
	m.audioContent = nil // extraction "succeeds" but writes zero bytes
	f := newFixture(t, m, defaultEngine(), nil)

	_, err := f.orch.Run(context.Background(), Request{
		Filename: "clip.mp4",
		Body:     strings.NewReader("video bytes"),
	})

	appErr, _ := apperrors.AsAppError(err)
	if appErr == nil || appErr.Code != apperrors.ErrCodeCorruptMedia {
		t.Fatalf("err = %v, want CORRUPT_MEDIA", err)
	}
	if f.engine.calls != 0 {
		t.Error("inference invoked over empty artifact")
	}
	f.assertNoScratchFiles(t)
}

func TestRunTranscriptionFailureCleansUp(t *testing.T) {
	e := &fakeEngine{err: apperrors.InferenceFailed(errors.New("bad audio"))}
	f := newFixture(t, defaultMedia(), e, nil)

	_, err := f.orch.Run(context.Background(), Request{
		Filename: "clip.mp4",
		Body:     strings.NewReader("video bytes"),
	})

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageTranscribing {
		t.Fatalf("err = %v, want StageTranscribing failure", err)
	}
	f.assertNoScratchFiles(t)
}

func TestRunSummarizerUnavailableStillSucceeds(t *testing.T) {
	s := &fakeSummarizer{enabled: true, available: false}
	f := newFixture(t, defaultMedia(), defaultEngine(), s)

	result, err := f.orch.Run(context.Background(), Request{
		Filename:  "clip.mp4",
		Body:      strings.NewReader("video bytes"),
		Summarize: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.HasSummary {
		t.Error("summary present despite unavailable backend")
	}
	if result.Text != "hello world" {
		t.Errorf("Text = %q", result.Text)
	}
	f.assertNoScratchFiles(t)
}

func TestRunSummarizeErrorDegrades(t *testing.T) {
	s := &fakeSummarizer{enabled: true, available: true, err: summarize.ErrUnavailable}
	f := newFixture(t, defaultMedia(), defaultEngine(), s)

	result, err := f.orch.Run(context.Background(), Request{
		Filename:  "clip.mp4",
		Body:      strings.NewReader("video bytes"),
		Summarize: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.HasSummary {
		t.Error("summary present despite backend error")
	}
}

func TestRunSummarizeSuccess(t *testing.T) {
	s := &fakeSummarizer{enabled: true, available: true, summary: "a summary"}
	f := newFixture(t, defaultMedia(), defaultEngine(), s)

	result, err := f.orch.Run(context.Background(), Request{
		Filename:  "clip.mp4",
		Body:      strings.NewReader("video bytes"),
		Summarize: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.HasSummary || result.Summary != "a summary" {
		t.Errorf("summary = (%q, %v)", result.Summary, result.HasSummary)
	}
}

func TestRunProbeFailureIsAdvisory(t *testing.T) {
	m := defaultMedia()
	m.durationOK = false
	f := newFixture(t, m, defaultEngine(), nil)

	result, err := f.orch.Run(context.Background(), Request{
		Filename: "clip.mp4",
		Body:     strings.NewReader("video bytes"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Falls back to the engine-reported duration.
	if result.Duration != 30 {
		t.Errorf("Duration = %v, want engine fallback 30", result.Duration)
	}
}
