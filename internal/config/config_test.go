package config

import (
	"os"
	"testing"
)

func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	saved := make(map[string]string, len(envs))
	for k, v := range envs {
		saved[k] = os.Getenv(k)
		os.Setenv(k, v)
	}
	return func() {
		for k, v := range saved {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.ModelID != "small" {
			t.Errorf("ModelID = %q, want small", cfg.ModelID)
		}
		if cfg.ComputeMode != "int8" {
			t.Errorf("ComputeMode = %q, want int8", cfg.ComputeMode)
		}
		if cfg.BeamSize != 1 {
			t.Errorf("BeamSize = %d, want 1", cfg.BeamSize)
		}
		if cfg.VAD {
			t.Error("VAD = true, want false")
		}
		if cfg.ProgressInterval != 10 {
			t.Errorf("ProgressInterval = %g, want 10", cfg.ProgressInterval)
		}
		if cfg.OutputDir != "./outputs" {
			t.Errorf("OutputDir = %q, want ./outputs", cfg.OutputDir)
		}
		if cfg.TranslatePolicy != PolicyStrict {
			t.Errorf("TranslatePolicy = %q, want strict", cfg.TranslatePolicy)
		}
		if cfg.ModelCacheDir == "" {
			t.Error("ModelCacheDir should default to a non-empty path")
		}
	})

	t.Run("env_vars", func(t *testing.T) {
		cleanup := setEnvs(t, map[string]string{
			"MODEL_ID":  "large-v3",
			"BEAM_SIZE": "5",
			"VAD":       "true",
			"LANGUAGE":  "es",
		})
		defer cleanup()

		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.ModelID != "large-v3" {
			t.Errorf("ModelID = %q, want large-v3", cfg.ModelID)
		}
		if cfg.BeamSize != 5 {
			t.Errorf("BeamSize = %d, want 5", cfg.BeamSize)
		}
		if !cfg.VAD {
			t.Error("VAD = false, want true")
		}
		if cfg.Language != "es" {
			t.Errorf("Language = %q, want es", cfg.Language)
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cleanup := setEnvs(t, map[string]string{"MODEL_ID": "base", "BEAM_SIZE": "3"})
		defer cleanup()

		vad := true
		cfg, err := Load(Overrides{
			EnvFile:  "nonexistent.env",
			ModelID:  "medium",
			BeamSize: 8,
			VAD:      &vad,
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.ModelID != "medium" {
			t.Errorf("ModelID = %q, want medium", cfg.ModelID)
		}
		if cfg.BeamSize != 8 {
			t.Errorf("BeamSize = %d, want 8", cfg.BeamSize)
		}
		if !cfg.VAD {
			t.Error("VAD override not applied")
		}
	})

	t.Run("invalid_beam_size", func(t *testing.T) {
		cleanup := setEnvs(t, map[string]string{"BEAM_SIZE": "0"})
		defer cleanup()

		if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err == nil {
			t.Error("Load should reject beam_size 0")
		}
	})

	t.Run("invalid_translate_policy", func(t *testing.T) {
		cleanup := setEnvs(t, map[string]string{"TRANSLATE_POLICY": "maybe"})
		defer cleanup()

		if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err == nil {
			t.Error("Load should reject unknown translate_policy")
		}
	})
}
