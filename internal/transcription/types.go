// Package transcription defines the recognition engine contract and the
// faster-whisper backed implementation.
package transcription

import "context"

// Request holds parameters for one inference call.
type Request struct {
	// AudioPath is the mono/16kHz WAV to transcribe.
	AudioPath string
	// Language is the expected language code (e.g. "en"). Empty means auto-detect.
	Language string
	// IncludeTimestamps requests time-aligned segments in the result.
	IncludeTimestamps bool
}

// Segment is a time-aligned span of transcript text.
type Segment struct {
	// Start is the segment start time in seconds.
	Start float64 `json:"start"`
	// End is the segment end time in seconds.
	End float64 `json:"end"`
	// Text is the transcribed text for this segment.
	Text string `json:"text"`
}

// Result holds the outcome of one inference call. It is constructed once and
// never mutated afterward.
type Result struct {
	// Text is the full transcript, trimmed and single-spaced.
	Text string
	// Segments is the chronologically ordered, non-overlapping segment
	// sequence. Nil unless timestamps were requested.
	Segments []Segment
	// Language is the detected or requested language.
	Language string
	// Duration is the audio duration in seconds as reported by the engine.
	Duration float64
}

// Engine is the recognition engine contract: an opaque backend with a
// load/configure step and an inference call.
type Engine interface {
	// Name identifies the backend.
	Name() string
	// IsAvailable reports whether the backend is reachable.
	IsAvailable(ctx context.Context) bool
	// Transcribe runs inference over the audio at req.AudioPath.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
