package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort        string        `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	DBMaxConns      int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	LLMAPIKey       string        `env:"LLM_API_KEY"`
	LLMBaseURL      string        `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel        string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMTimeout      time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`
	LLMHistoryLimit int           `env:"LLM_HISTORY_LIMIT" envDefault:"20"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	ChatRateLimit   int           `env:"CHAT_RATE_LIMIT" envDefault:"20"`
	ChatRateWindow  time.Duration `env:"CHAT_RATE_WINDOW" envDefault:"1m"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ClientConfig es la configuración del cliente de terminal.
type ClientConfig struct {
	APIURL  string        `env:"CHAT_API_URL" envDefault:"http://localhost:8080"`
	UserID  string        `env:"CHAT_USER_ID" envDefault:"anonymous"`
	Title   string        `env:"CHAT_TITLE"`
	Timeout time.Duration `env:"CHAT_TIMEOUT" envDefault:"45s"`
}

// LoadClientConfig carga la configuración del cliente desde variables de entorno.
func LoadClientConfig() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
