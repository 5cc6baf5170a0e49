// Package config handles application configuration using Viper.
// Viper supports YAML files, environment variables, and defaults, merged in priority order.
// Go convention: configuration is loaded into structs, not accessed as raw key-value pairs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/fleveque/research-analyst/internal/provider"
	"github.com/fleveque/research-analyst/internal/usage"
)

// EnvPrefix is prepended to every environment variable: ANALYST_SERVER_PORT=9090.
const EnvPrefix = "ANALYST"

// Supported model backends.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config is the root configuration struct. Nested structs organize related settings.
// `mapstructure` tags tell Viper how to map YAML/env keys to struct fields.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Model     ModelConfig     `mapstructure:"model"`
	FMP       FMPConfig       `mapstructure:"fmp"`
	Team      TeamConfig      `mapstructure:"team"`
	Upload    UploadConfig    `mapstructure:"upload"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`

	// Timeout bounds every call to FMP and the model backend.
	Timeout time.Duration `mapstructure:"timeout"`

	// Prompts overrides system instructions: prompts.<task>.<mode>.
	Prompts map[string]map[string]string `mapstructure:"prompts"`

	// Pricing is a list because model names contain dots, which Viper
	// would read as key separators.
	Pricing []PriceConfig `mapstructure:"pricing"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

type AuthConfig struct {
	APIKeys   []string `mapstructure:"api_keys"`
	AdminKeys []string `mapstructure:"admin_keys"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ModelConfig struct {
	// Provider selects the backend: gemini, anthropic or openai.
	Provider      string `mapstructure:"provider"`
	Name          string `mapstructure:"name"`
	APIKey        string `mapstructure:"api_key"`
	BaseURL       string `mapstructure:"base_url"`
	RatePerMinute int    `mapstructure:"rate_per_minute"`
}

type FMPConfig struct {
	APIKey        string `mapstructure:"api_key"`
	BaseURL       string `mapstructure:"base_url"`
	RatePerMinute int    `mapstructure:"rate_per_minute"`
}

type TeamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	TeamID  string        `mapstructure:"team_id"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type UploadConfig struct {
	MaxBytes          int64 `mapstructure:"max_bytes"`
	MaxImageDimension int   `mapstructure:"max_image_dimension"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// PriceConfig is the USD price per million tokens for one model. Prices are
// strings so they parse exactly into decimals.
type PriceConfig struct {
	Model            string `mapstructure:"model"`
	InputPerMillion  string `mapstructure:"input_per_million"`
	OutputPerMillion string `mapstructure:"output_per_million"`
}

// defaultModels is the model used when model.name is unset.
var defaultModels = map[string]string{
	ProviderGemini:    "gemini-2.0-flash",
	ProviderAnthropic: "claude-sonnet-4-5-20250929",
	ProviderOpenAI:    "gpt-4o",
}

// Load reads configuration from a .env file, a YAML file and environment
// variables. Variables already set in the environment win over .env.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set defaults. These apply when neither file nor env provides a value,
	// and they also make AutomaticEnv aware of every key.
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.database_path", "./storage/research-analyst.db")
	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("auth.admin_keys", []string{})
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("model.provider", ProviderGemini)
	v.SetDefault("model.name", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.rate_per_minute", 30)
	v.SetDefault("fmp.api_key", "")
	v.SetDefault("fmp.base_url", "")
	v.SetDefault("fmp.rate_per_minute", 250)
	v.SetDefault("team.base_url", "")
	v.SetDefault("team.team_id", "")
	v.SetDefault("team.api_key", "")
	v.SetDefault("team.timeout", "5m")
	v.SetDefault("upload.max_bytes", 100<<20)
	v.SetDefault("upload.max_image_dimension", 3072)
	v.SetDefault("rate_limit.requests_per_second", 2)
	v.SetDefault("rate_limit.burst", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("timeout", "120s")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// A missing default config file is fine: defaults and env are enough.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Environment variables override everything.
	// ANALYST_ prefix + nested keys: ANALYST_MODEL_API_KEY → model.api_key
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The provider SDKs' own variable names work too.
	if err := v.BindEnv("model.api_key", EnvPrefix+"_MODEL_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding env: %w", err)
	}
	if err := v.BindEnv("fmp.api_key", EnvPrefix+"_FMP_API_KEY", "FMP_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Model.Provider = strings.ToLower(strings.TrimSpace(cfg.Model.Provider))
	if cfg.Model.Name == "" {
		cfg.Model.Name = defaultModels[cfg.Model.Provider]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Validate checks settings that would otherwise fail late, on the first request.
func (c *Config) Validate() error {
	if _, ok := defaultModels[c.Model.Provider]; !ok {
		return fmt.Errorf("invalid model.provider %q: want gemini, anthropic or openai", c.Model.Provider)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %s: must be positive", c.Timeout)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("invalid upload.max_bytes %d: must be positive", c.Upload.MaxBytes)
	}
	if _, err := c.Prices(); err != nil {
		return err
	}
	return nil
}

// Providers returns the explicit configuration injected into the request builder.
func (c *Config) Providers() provider.Config {
	return provider.Config{
		ModelAPIKey:   c.Model.APIKey,
		FMPAPIKey:     c.FMP.APIKey,
		Timeout:       c.Timeout,
		RatePerMinute: c.Model.RatePerMinute,
	}
}

// PromptOverrides flattens Prompts into "<task>.<mode>" keys.
func (c *Config) PromptOverrides() map[string]string {
	out := make(map[string]string)
	for task, modes := range c.Prompts {
		for mode, text := range modes {
			out[task+"."+mode] = text
		}
	}
	return out
}

// Prices parses Pricing into per-model prices for the usage tracker.
func (c *Config) Prices() (map[string]usage.Price, error) {
	prices := make(map[string]usage.Price, len(c.Pricing))
	for _, p := range c.Pricing {
		in, err := decimal.NewFromString(p.InputPerMillion)
		if err != nil {
			return nil, fmt.Errorf("invalid pricing for %s: input_per_million: %w", p.Model, err)
		}
		out, err := decimal.NewFromString(p.OutputPerMillion)
		if err != nil {
			return nil, fmt.Errorf("invalid pricing for %s: output_per_million: %w", p.Model, err)
		}
		prices[p.Model] = usage.Price{InputPerMillion: in, OutputPerMillion: out}
	}
	return prices, nil
}

// Address returns the listen address string like "0.0.0.0:8080".
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
