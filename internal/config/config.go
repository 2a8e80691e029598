package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`

	// Publish channel
	BotToken     string `env:"BOT_TOKEN,required"`
	TargetChatID int64  `env:"TARGET_CHAT_ID,required"`

	// Collaborator services
	LLMAPIKey       string        `env:"LLM_API_KEY,required"`
	LLMModel        string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMSmartModel   string        `env:"LLM_SMART_MODEL" envDefault:"gpt-4o"`
	DeepLAPIKey     string        `env:"DEEPL_API_KEY"`
	DeepLAPIURL     string        `env:"DEEPL_API_URL" envDefault:"https://api-free.deepl.com/v2/translate"`
	StabilityAPIKey string        `env:"STABILITY_API_KEY"`
	StabilityAPIURL string        `env:"STABILITY_API_URL" envDefault:"https://api.stability.ai/v2beta/stable-image/generate/core"`
	StageTimeout    time.Duration `env:"STAGE_TIMEOUT" envDefault:"60s"`
	RateLimitRPS    int           `env:"RATE_LIMIT_RPS" envDefault:"1"`

	// Pipeline policy
	TargetLanguage      string  `env:"TARGET_LANGUAGE" envDefault:"ru"`
	SimilarityThreshold float32 `env:"SIMILARITY_THRESHOLD" envDefault:"0.7"`
	MinRewriteLength    int     `env:"MIN_REWRITE_LENGTH" envDefault:"100"`

	// Publishing policy
	AffiliateFrequency int    `env:"AFFILIATE_FREQUENCY" envDefault:"5"`
	AffiliateLinksJSON string `env:"AFFILIATE_LINKS"`

	// Workers
	WorkerCount          int           `env:"WORKER_COUNT" envDefault:"2"`
	PublisherWorkerCount int           `env:"PUBLISHER_WORKER_COUNT" envDefault:"1"`
	WorkerPollInterval   time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"1s"`
	ScheduleSweepPeriod  time.Duration `env:"SCHEDULE_SWEEP_PERIOD" envDefault:"60s"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	HealthPort int `env:"HEALTH_PORT" envDefault:"8080"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
