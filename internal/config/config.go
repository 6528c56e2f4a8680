package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env               string        `mapstructure:"ENV"`
	Port              string        `mapstructure:"PORT"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	AutoMigrate       bool          `mapstructure:"AUTO_MIGRATE"`
	JWTSecret         string        `mapstructure:"JWT_SECRET"`
	CORSAllowed       string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	DefaultAccountKey string        `mapstructure:"DEFAULT_ACCOUNT_KEY"`

	WhatsAppBotURL    string        `mapstructure:"WHATSAPP_BOT_URL"`
	WhatsAppBotAPIKey string        `mapstructure:"WHATSAPP_BOT_API_KEY"`
	ChannelTimeout    time.Duration `mapstructure:"CHANNEL_TIMEOUT"`

	LLMBaseURL string        `mapstructure:"LLM_BASE_URL"`
	LLMAPIKey  string        `mapstructure:"LLM_API_KEY"`
	LLMModel   string        `mapstructure:"LLM_MODEL"`
	LLMTimeout time.Duration `mapstructure:"LLM_TIMEOUT"`

	RedisURL string        `mapstructure:"REDIS_URL"`
	ClaimTTL time.Duration `mapstructure:"CLAIM_TTL"`

	RabbitMQURL   string `mapstructure:"RABBITMQ_URL"`
	RabbitMQQueue string `mapstructure:"RABBITMQ_QUEUE"`

	WorkerConcurrency  int           `mapstructure:"WORKER_CONCURRENCY"`
	WorkerPollInterval time.Duration `mapstructure:"WORKER_POLL_INTERVAL"`
	JobMaxAttempts     int           `mapstructure:"JOB_MAX_ATTEMPTS"`
	JobRetryDelay      time.Duration `mapstructure:"JOB_RETRY_DELAY"`
	JobStaleAfter      time.Duration `mapstructure:"JOB_STALE_AFTER"`
}

// LLMEnabled reports whether an external model credential is configured.
func (c Config) LLMEnabled() bool {
	return c.LLMBaseURL != "" && c.LLMAPIKey != ""
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("DEFAULT_ACCOUNT_KEY", "default")
	v.SetDefault("CHANNEL_TIMEOUT", "5s")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_TIMEOUT", "5s")
	v.SetDefault("CLAIM_TTL", "2m")
	v.SetDefault("RABBITMQ_QUEUE", "helpdesk_events")
	v.SetDefault("WORKER_CONCURRENCY", 2)
	v.SetDefault("WORKER_POLL_INTERVAL", "1s")
	v.SetDefault("JOB_MAX_ATTEMPTS", 5)
	v.SetDefault("JOB_RETRY_DELAY", "30s")
	v.SetDefault("JOB_STALE_AFTER", "10m")

	// AutomaticEnv only answers keys viper already knows about.
	for _, key := range []string{"DATABASE_URL", "JWT_SECRET", "WHATSAPP_BOT_URL", "WHATSAPP_BOT_API_KEY", "LLM_BASE_URL", "LLM_API_KEY", "REDIS_URL", "RABBITMQ_URL"} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
