// Package config loads the server configuration from an optional YAML file
// plus the environment.  The API key is deliberately env-only so it never
// lands in a checked-in file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"healthcompanion/pkg"
)

// APIKeyEnv is the environment variable holding the model credential.
const APIKeyEnv = "OPENAI_API_KEY"

// Config is the application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	LLM    LLMConfig    `yaml:"llm"`
	Chat   ChatConfig   `yaml:"chat"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LLMConfig struct {
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"request_timeout_seconds"`

	// APIKey comes from the environment, never from the file.
	APIKey string `yaml:"-"`
}

// RequestTimeout is the per-call transport deadline.
func (c LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type ChatConfig struct {
	Language          pkg.Language          `yaml:"language"`
	TherapyPreference pkg.TherapyPreference `yaml:"therapy_preference"`
}

// Load reads the YAML file (path may be empty for pure-default operation),
// merges the environment, applies defaults and validates.  A missing or
// invalid credential is a configuration error: the caller must fail before
// any chat surface is served.
func Load(path string) (*Config, error) {
	// .env is a local-development convenience; absence is fine.
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.LLM.APIKey = os.Getenv(APIKeyEnv)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 60
	}
	if cfg.Chat.Language == "" {
		cfg.Chat.Language = pkg.LanguageEnglish
	}
	if cfg.Chat.TherapyPreference == "" {
		cfg.Chat.TherapyPreference = pkg.TherapyModern
	}
}

func validate(cfg *Config) error {
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("missing credential: set %s in the environment or a .env file", APIKeyEnv)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("request timeout must be positive, got %ds", cfg.LLM.TimeoutSeconds)
	}
	if !cfg.Chat.Language.Valid() {
		return fmt.Errorf("unsupported language %q", cfg.Chat.Language)
	}
	if !cfg.Chat.TherapyPreference.Valid() {
		return fmt.Errorf("unsupported therapy preference %q", cfg.Chat.TherapyPreference)
	}
	return nil
}

// Addr is the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
