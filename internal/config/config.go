package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"osce-simulator/internal/llm"
)

// Config holds the simulator settings read from the environment.
type Config struct {
	Port string

	LLM struct {
		BaseURL   string
		APIKey    string // pre-fills the key entry prompt in the console
		Timeout   time.Duration
		Patient   llm.Profile
		Evaluator llm.Profile
	}

	// EncounterBudget is the time a trainee has to interview the patient.
	EncounterBudget time.Duration

	Database struct {
		URL           string // empty disables the encounter archive
		NotifyChannel string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the configuration from environment variables, applying
// defaults where a variable is unset.
func Load() (*Config, error) {
	cfg := &Config{}
	defaults := llm.DefaultProfiles()

	cfg.Port = getEnv("PORT", "8080")

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", "https://api.groq.com/openai/v1")
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", "")

	timeout, err := getInt("LLM_TIMEOUT_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.LLM.Timeout = time.Duration(timeout) * time.Second

	if cfg.LLM.Patient, err = loadProfile("LLM_PATIENT", defaults[llm.ProfilePatient]); err != nil {
		return nil, err
	}
	if cfg.LLM.Evaluator, err = loadProfile("LLM_EVALUATOR", defaults[llm.ProfileEvaluator]); err != nil {
		return nil, err
	}

	budget, err := getInt("ENCOUNTER_SECONDS", 600)
	if err != nil {
		return nil, err
	}
	cfg.EncounterBudget = time.Duration(budget) * time.Second

	cfg.Database.URL = getEnv("DATABASE_URL", "")
	cfg.Database.NotifyChannel = getEnv("POSTGRES_NOTIFY_CHANNEL", "encounter_completed")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// Validate checks values that cannot be caught while parsing.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT_SECONDS must be positive")
	}
	if c.EncounterBudget <= 0 {
		return fmt.Errorf("ENCOUNTER_SECONDS must be positive")
	}
	for name, p := range map[string]llm.Profile{"LLM_PATIENT": c.LLM.Patient, "LLM_EVALUATOR": c.LLM.Evaluator} {
		if p.Model == "" {
			return fmt.Errorf("%s_MODEL must not be empty", name)
		}
		if p.MaxTokens <= 0 {
			return fmt.Errorf("%s_MAX_TOKENS must be positive", name)
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			return fmt.Errorf("%s_TEMPERATURE must be between 0 and 2", name)
		}
	}
	// evaluator gets the larger budget and the lower temperature
	if c.LLM.Evaluator.MaxTokens <= c.LLM.Patient.MaxTokens {
		return fmt.Errorf("LLM_EVALUATOR_MAX_TOKENS must exceed LLM_PATIENT_MAX_TOKENS")
	}
	if c.LLM.Evaluator.Temperature >= c.LLM.Patient.Temperature {
		return fmt.Errorf("LLM_EVALUATOR_TEMPERATURE must be lower than LLM_PATIENT_TEMPERATURE")
	}
	return nil
}

// LLMConfig converts the settings into a gateway configuration.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		BaseURL: c.LLM.BaseURL,
		Timeout: c.LLM.Timeout,
		Profiles: map[llm.ProfileName]llm.Profile{
			llm.ProfilePatient:   c.LLM.Patient,
			llm.ProfileEvaluator: c.LLM.Evaluator,
		},
	}
}

func loadProfile(prefix string, def llm.Profile) (llm.Profile, error) {
	p := llm.Profile{Model: getEnv(prefix+"_MODEL", def.Model)}

	temp, err := strconv.ParseFloat(getEnv(prefix+"_TEMPERATURE", strconv.FormatFloat(float64(def.Temperature), 'f', -1, 32)), 32)
	if err != nil {
		return p, fmt.Errorf("invalid %s_TEMPERATURE: %w", prefix, err)
	}
	p.Temperature = float32(temp)

	if p.MaxTokens, err = getInt(prefix+"_MAX_TOKENS", def.MaxTokens); err != nil {
		return p, err
	}
	return p, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
