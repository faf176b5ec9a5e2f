package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envKeys lists every environment variable the service reads. Binding them
// explicitly lets viper unmarshal flat env-style keys into Config.
var envKeys = []string{
	"HOST", "PORT",
	"WHISPER_URL", "WHISPER_MODEL_SIZE", "WHISPER_DEVICE", "WHISPER_COMPUTE_TYPE",
	"MAX_FILE_SIZE_MB",
	"OLLAMA_ENABLED", "OLLAMA_URL", "OLLAMA_MODEL", "OLLAMA_TIMEOUT",
	"TEMP_DIR",
	"LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT",
	"TRACING_ENABLED", "TRACING_ENDPOINT",
}

// Load reads configuration from the environment, honoring an optional .env
// file, and returns a validated Config with defaults applied.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	v.SetDefault("OLLAMA_ENABLED", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
