// Package config holds the process-wide configuration. All values are read
// once at startup from environment variables (with optional .env file) and
// are immutable for the process lifetime.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/skillsenselab/transcriber/internal/logger"
)

// Config is the full service configuration.
type Config struct {
	Host string `mapstructure:"HOST"`
	Port int    `mapstructure:"PORT" validate:"min=1,max=65535"`

	// Recognition engine (faster-whisper sidecar).
	WhisperURL         string `mapstructure:"WHISPER_URL" validate:"required"`
	WhisperModelSize   string `mapstructure:"WHISPER_MODEL_SIZE" validate:"oneof=tiny base small medium large large-v1 large-v2 large-v3"`
	WhisperDevice      string `mapstructure:"WHISPER_DEVICE" validate:"oneof=cpu cuda auto"`
	WhisperComputeType string `mapstructure:"WHISPER_COMPUTE_TYPE" validate:"oneof=int8 int16 float16 float32"`

	// Upload limits.
	MaxFileSizeMB int `mapstructure:"MAX_FILE_SIZE_MB" validate:"min=1"`

	// Summarization backend (Ollama).
	OllamaEnabled    bool   `mapstructure:"OLLAMA_ENABLED"`
	OllamaURL        string `mapstructure:"OLLAMA_URL"`
	OllamaModel      string `mapstructure:"OLLAMA_MODEL"`
	OllamaTimeoutSec int    `mapstructure:"OLLAMA_TIMEOUT" validate:"min=1"`

	// Scratch directory for per-request workspaces.
	TempDir string `mapstructure:"TEMP_DIR"`

	Log logger.Config `mapstructure:",squash"`

	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
	TracingEndpoint string `mapstructure:"TRACING_ENDPOINT"`
}

// ApplyDefaults fills unset fields with the service defaults.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.WhisperURL == "" {
		c.WhisperURL = "http://localhost:8387"
	}
	if c.WhisperModelSize == "" {
		c.WhisperModelSize = "base"
	}
	if c.WhisperDevice == "" {
		c.WhisperDevice = "cpu"
	}
	if c.WhisperComputeType == "" {
		c.WhisperComputeType = "int8"
	}
	if c.MaxFileSizeMB == 0 {
		c.MaxFileSizeMB = 500
	}
	if c.OllamaURL == "" {
		c.OllamaURL = "http://localhost:11434"
	}
	if c.OllamaModel == "" {
		c.OllamaModel = "llama3.1:8b"
	}
	if c.OllamaTimeoutSec == 0 {
		c.OllamaTimeoutSec = 600
	}
	if c.TracingEndpoint == "" {
		c.TracingEndpoint = "localhost:4318"
	}
	c.Log.ApplyDefaults()
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// MaxUploadBytes returns the configured upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

var validate = validator.New()

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}
