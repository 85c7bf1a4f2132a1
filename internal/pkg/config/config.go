package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config is the server configuration.
type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Auth     AuthConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Reminder ReminderConfig
}

type AuthConfig struct {
	JWTSecret   string        `env:"JWT_SECRET, required"`
	TokenTTL    time.Duration `env:"TOKEN_TTL,  default=12h"`
	RecoveryKey string        `env:"ADMIN_RECOVERY_KEY"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=stomacrm"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

type ReminderConfig struct {
	Interval time.Duration `env:"REMINDER_INTERVAL, default=1m"`
	Batch    int           `env:"REMINDER_BATCH,    default=50"`
	Workers  int           `env:"REMINDER_WORKERS,  default=4"`
}

// ClientConfig configures the staff command-line client.
type ClientConfig struct {
	BackendURL     string        `env:"BACKEND_URL,     default=http://localhost:8080"`
	SessionFile    string        `env:"SESSION_FILE"`
	SessionTimeout time.Duration `env:"SESSION_TIMEOUT, default=6s"`
	ProfileTimeout time.Duration `env:"PROFILE_TIMEOUT, default=6s"`
	LogLevel       string        `env:"LOG_LEVEL,       default=warn"`
}

// IsDevelopment reports whether human-readable logs should be used.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads the server configuration from environment variables.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// LoadClient reads the client configuration from environment variables.
func LoadClient(ctx context.Context) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
