package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osce-simulator/internal/llm"
)

var envKeys = []string{
	"PORT", "LLM_BASE_URL", "LLM_API_KEY", "LLM_TIMEOUT_SECONDS",
	"LLM_PATIENT_MODEL", "LLM_PATIENT_TEMPERATURE", "LLM_PATIENT_MAX_TOKENS",
	"LLM_EVALUATOR_MODEL", "LLM_EVALUATOR_TEMPERATURE", "LLM_EVALUATOR_MAX_TOKENS",
	"ENCOUNTER_SECONDS", "DATABASE_URL", "POSTGRES_NOTIFY_CHANNEL", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.LLM.BaseURL)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, llm.Profile{Model: "llama3-8b-8192", Temperature: 0.7, MaxTokens: 200}, cfg.LLM.Patient)
	assert.Equal(t, llm.Profile{Model: "llama3-70b-8192", Temperature: 0.5, MaxTokens: 2048}, cfg.LLM.Evaluator)
	assert.Equal(t, 10*time.Minute, cfg.EncounterBudget)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, "encounter_completed", cfg.Database.NotifyChannel)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("LLM_PATIENT_MODEL", "small")
	t.Setenv("LLM_PATIENT_TEMPERATURE", "0.9")
	t.Setenv("LLM_EVALUATOR_MAX_TOKENS", "4096")
	t.Setenv("ENCOUNTER_SECONDS", "120")
	t.Setenv("DATABASE_URL", "postgres://localhost/osce")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "small", cfg.LLM.Patient.Model)
	assert.Equal(t, float32(0.9), cfg.LLM.Patient.Temperature)
	assert.Equal(t, 4096, cfg.LLM.Evaluator.MaxTokens)
	assert.Equal(t, 2*time.Minute, cfg.EncounterBudget)
	assert.Equal(t, "postgres://localhost/osce", cfg.Database.URL)
	assert.Equal(t, "console", cfg.Log.Format)

	lc := cfg.LLMConfig()
	assert.Equal(t, cfg.LLM.Patient, lc.Profiles[llm.ProfilePatient])
	assert.Equal(t, cfg.LLM.Evaluator, lc.Profiles[llm.ProfileEvaluator])
	assert.Equal(t, cfg.LLM.Timeout, lc.Timeout)
}

func TestLoad_InvalidNumbers(t *testing.T) {
	for _, key := range []string{"LLM_TIMEOUT_SECONDS", "ENCOUNTER_SECONDS", "LLM_PATIENT_MAX_TOKENS", "LLM_EVALUATOR_TEMPERATURE"} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, "lots")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty port", func(c *Config) { c.Port = "" }, "PORT"},
		{"zero budget", func(c *Config) { c.EncounterBudget = 0 }, "ENCOUNTER_SECONDS"},
		{"zero timeout", func(c *Config) { c.LLM.Timeout = 0 }, "LLM_TIMEOUT_SECONDS"},
		{"missing model", func(c *Config) { c.LLM.Evaluator.Model = "" }, "LLM_EVALUATOR_MODEL"},
		{"evaluator budget too small", func(c *Config) { c.LLM.Evaluator.MaxTokens = 100 }, "LLM_EVALUATOR_MAX_TOKENS"},
		{"evaluator too hot", func(c *Config) { c.LLM.Evaluator.Temperature = 0.8 }, "LLM_EVALUATOR_TEMPERATURE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
