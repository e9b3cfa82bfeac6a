package commands

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config is the CLI configuration, loaded from a YAML file with environment
// variables taking precedence for credentials.
type Config struct {
	HeyGen struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"heygen"`

	LLM struct {
		// Provider selects the adapter: "openai" or "gemini".
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
		Model    string `yaml:"model"`
	} `yaml:"llm"`

	Avatar struct {
		AvatarID  string  `yaml:"avatar_id"`
		VoiceID   string  `yaml:"voice_id"`
		VoiceRate float64 `yaml:"voice_rate"`
		Quality   string  `yaml:"quality"`
		Language  string  `yaml:"language"`
	} `yaml:"avatar"`

	SystemPrompt string `yaml:"system_prompt"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

const defaultConfigFile = "visage.yaml"

func loadConfig(path string) (Config, error) {
	// A local .env is a convenience, not a requirement.
	_ = godotenv.Load()

	var cfg Config
	cfg.LLM.Provider = "openai"
	cfg.Server.Addr = ":8080"

	explicit := path != ""
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file is fine; env vars may carry everything.
	default:
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if v := os.Getenv("HEYGEN_API_KEY"); v != "" {
		cfg.HeyGen.APIKey = v
	}
	switch cfg.LLM.Provider {
	case "gemini":
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
		}
	default:
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
		}
	}

	return cfg, nil
}
