// Package media validates uploaded files and derives the normalized audio
// artifact the recognition engine requires, shelling into the external
// ffmpeg/ffprobe toolkit.
package media

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/skillsenselab/transcriber/internal/apperrors"
	"github.com/skillsenselab/transcriber/internal/logger"
)

var supportedVideoFormats = map[string]bool{
	".mp4": true, ".avi": true, ".mkv": true, ".mov": true, ".webm": true,
	".flv": true, ".wmv": true, ".m4v": true, ".mpg": true, ".mpeg": true,
	".3gp": true, ".ogv": true,
}

var supportedAudioFormats = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".m4a": true, ".ogg": true,
	".aac": true, ".wma": true, ".opus": true,
}

// Processor wraps the external media toolkit.
type Processor struct {
	ffmpegPath  string
	ffprobePath string
	runner      Runner
	log         *logger.Logger
}

// NewProcessor creates a Processor using ffmpeg/ffprobe from PATH.
func NewProcessor(log *logger.Logger) *Processor {
	return &Processor{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		runner:      NewRunner(),
		log:         log.WithComponent("media"),
	}
}

// NewProcessorWithRunner creates a Processor with a custom Runner, for tests.
func NewProcessorWithRunner(runner Runner, log *logger.Logger) *Processor {
	p := NewProcessor(log)
	p.runner = runner
	return p
}

// ValidateExtension checks the filename against the supported allow-list.
// Rejection is a client error, never a server fault.
func ValidateExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if supportedVideoFormats[ext] || supportedAudioFormats[ext] {
		return nil
	}
	if ext == "" {
		ext = "(none)"
	}
	return apperrors.UnsupportedFormat(ext)
}

// SupportedExtensions returns the full allow-list, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(supportedVideoFormats)+len(supportedAudioFormats))
	for ext := range supportedVideoFormats {
		exts = append(exts, ext)
	}
	for ext := range supportedAudioFormats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// ProbeDuration returns the media duration in seconds via ffprobe. Duration
// is advisory only: any probe failure yields ok=false, never an error.
func (p *Processor) ProbeDuration(ctx context.Context, path string) (float64, bool) {
	result, err := p.runner.Run(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		p.log.Warn("duration probe failed", logger.Fields(
			logger.FieldPath, path,
			logger.FieldError, err.Error(),
		))
		return 0, false
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(result.Stdout)), 64)
	if err != nil || duration < 0 {
		p.log.Warn("duration probe returned unparseable output", logger.Fields(
			logger.FieldPath, path,
		))
		return 0, false
	}
	return duration, true
}

// ExtractAudio transcodes inputPath into a mono, 16 kHz, 16-bit PCM WAV at
// audioPath. The recognition engine's framing assumptions depend on this
// exact format, so the source's native audio layout is always re-encoded.
func (p *Processor) ExtractAudio(ctx context.Context, inputPath, audioPath string) error {
	result, err := p.runner.Run(ctx, p.ffmpegPath,
		"-i", inputPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y",
		audioPath,
	)
	if err == nil {
		return nil
	}

	var stderr string
	if result != nil {
		stderr = strings.TrimSpace(string(result.Stderr))
	}
	p.log.Error("audio extraction failed", logger.Fields(
		logger.FieldPath, inputPath,
		"stderr", truncate(stderr, 512),
	))

	if kind := classifyStderr(stderr); kind != nil {
		return kind
	}
	return apperrors.ExtractionFailed(truncate(stderr, 2048), err)
}

// classifyStderr maps well-known ffmpeg failure messages to client-visible
// error kinds. Unrecognized failures fall through to a tool failure.
func classifyStderr(stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "invalid data found"),
		strings.Contains(lower, "moov atom not found"),
		strings.Contains(lower, "end of file"),
		strings.Contains(lower, "invalid argument"):
		return apperrors.CorruptMedia("the file appears to be corrupt or truncated")
	case strings.Contains(lower, "decoder not found"),
		strings.Contains(lower, "unknown codec"),
		strings.Contains(lower, "codec not currently supported"):
		return apperrors.CorruptMedia("the file's codec is not supported")
	case strings.Contains(lower, "does not contain any stream"),
		strings.Contains(lower, "output file does not contain any stream"):
		return apperrors.CorruptMedia("the file contains no audio stream")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
