package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	PolicyStrict     = "strict"
	PolicyBestEffort = "best-effort"
)

type Config struct {
	ModelID     string `env:"MODEL_ID" envDefault:"small"`
	ComputeMode string `env:"COMPUTE_MODE" envDefault:"int8"`
	BeamSize    int    `env:"BEAM_SIZE" envDefault:"1"`
	VAD         bool   `env:"VAD" envDefault:"false"`
	Language    string `env:"LANGUAGE"` // empty = auto-detect

	TranslateTo     string `env:"TRANSLATE_TO"`
	TranslatePolicy string `env:"TRANSLATE_POLICY" envDefault:"strict"`
	TranslateURL    string `env:"TRANSLATE_URL" envDefault:"http://127.0.0.1:5000"`

	ProgressInterval float64 `env:"PROGRESS_INTERVAL" envDefault:"10"`

	OutputDir     string `env:"OUTPUT_DIR" envDefault:"./outputs"`
	ModelCacheDir string `env:"MODEL_CACHE_DIR"`
	ModelRepoURL  string `env:"MODEL_REPO_URL" envDefault:"https://huggingface.co/ggerganov/whisper.cpp/resolve/main"`

	FFmpegPath  string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath string `env:"FFPROBE_PATH" envDefault:"ffprobe"`
	WhisperPath string `env:"WHISPER_PATH" envDefault:"whisper-cli"`

	Watch         bool   `env:"WATCH" envDefault:"false"`
	StatusAddr    string `env:"STATUS_ADDR"`
	StateDB       string `env:"STATE_DB"` // empty = run history disabled
	SkipProcessed bool   `env:"SKIP_PROCESSED" envDefault:"false"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
// Zero values mean "no override".
type Overrides struct {
	EnvFile          string
	ModelID          string
	ComputeMode      string
	Language         string
	TranslateTo      string
	TranslatePolicy  string
	OutputDir        string
	ModelCacheDir    string
	LogLevel         string
	StatusAddr       string
	StateDB          string
	BeamSize         int
	ProgressInterval float64
	VAD              *bool
	Watch            *bool
	SkipProcessed    *bool
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-zero values win)
	if overrides.ModelID != "" {
		cfg.ModelID = overrides.ModelID
	}
	if overrides.ComputeMode != "" {
		cfg.ComputeMode = overrides.ComputeMode
	}
	if overrides.Language != "" {
		cfg.Language = overrides.Language
	}
	if overrides.TranslateTo != "" {
		cfg.TranslateTo = overrides.TranslateTo
	}
	if overrides.TranslatePolicy != "" {
		cfg.TranslatePolicy = overrides.TranslatePolicy
	}
	if overrides.OutputDir != "" {
		cfg.OutputDir = overrides.OutputDir
	}
	if overrides.ModelCacheDir != "" {
		cfg.ModelCacheDir = overrides.ModelCacheDir
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.StatusAddr != "" {
		cfg.StatusAddr = overrides.StatusAddr
	}
	if overrides.StateDB != "" {
		cfg.StateDB = overrides.StateDB
	}
	if overrides.BeamSize > 0 {
		cfg.BeamSize = overrides.BeamSize
	}
	if overrides.ProgressInterval > 0 {
		cfg.ProgressInterval = overrides.ProgressInterval
	}
	if overrides.VAD != nil {
		cfg.VAD = *overrides.VAD
	}
	if overrides.Watch != nil {
		cfg.Watch = *overrides.Watch
	}
	if overrides.SkipProcessed != nil {
		cfg.SkipProcessed = *overrides.SkipProcessed
	}

	if cfg.ModelCacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve model cache dir: %w", err)
		}
		cfg.ModelCacheDir = filepath.Join(home, ".cache", "audio2text", "models")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option ranges. Model id and compute mode are validated
// later against the model catalog.
func (c *Config) Validate() error {
	if c.BeamSize < 1 {
		return fmt.Errorf("beam_size must be >= 1, got %d", c.BeamSize)
	}
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("progress_interval must be > 0, got %g", c.ProgressInterval)
	}
	switch c.TranslatePolicy {
	case PolicyStrict, PolicyBestEffort:
	default:
		return fmt.Errorf("translate_policy must be %q or %q, got %q", PolicyStrict, PolicyBestEffort, c.TranslatePolicy)
	}
	return nil
}
