package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	RunnerBaseURL      string
	RunnerTimeout      time.Duration
	SupportedLanguages []string
	LanguageVersions   map[string]string

	EvaluationWorkers   int
	EvaluationQueueSize int

	RealtimeChannelBase string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CLASSFORGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "ClassForge API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("runner.timeout", "5m")
	v.SetDefault("runner.languages", "c,cpp,python,java,go,javascript")
	v.SetDefault("evaluation.workers", 8)
	v.SetDefault("evaluation.queue_size", 64)
	v.SetDefault("realtime.channel_base", "classforge")

	timeout, err := time.ParseDuration(v.GetString("runner.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid runner timeout: %w", err)
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		JWTSecret:           v.GetString("jwt.secret"),
		RunnerBaseURL:       v.GetString("runner.base_url"),
		RunnerTimeout:       timeout,
		SupportedLanguages:  splitLanguages(v.GetString("runner.languages")),
		LanguageVersions:    v.GetStringMapString("runner.versions"),
		EvaluationWorkers:   v.GetInt("evaluation.workers"),
		EvaluationQueueSize: v.GetInt("evaluation.queue_size"),
		RealtimeChannelBase: v.GetString("realtime.channel_base"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.RunnerBaseURL == "" {
		return Config{}, fmt.Errorf("runner base url must be provided")
	}

	if cfg.RunnerTimeout <= 0 {
		cfg.RunnerTimeout = 5 * time.Minute
	}

	if cfg.EvaluationWorkers <= 0 {
		cfg.EvaluationWorkers = 8
	}

	if cfg.EvaluationQueueSize < 0 {
		cfg.EvaluationQueueSize = 0
	}

	return cfg, nil
}

func splitLanguages(raw string) []string {
	parts := strings.Split(raw, ",")
	languages := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed != "" {
			languages = append(languages, trimmed)
		}
	}
	return languages
}
