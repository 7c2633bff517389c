package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port      string `envconfig:"PORT" default:"4000"`
	ClientURL string `envconfig:"CLIENT_URL" default:"http://localhost:5173"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseDriver string `envconfig:"DATABASE_DRIVER" default:"postgres"`
	DatabaseURL    string `envconfig:"DATABASE_URL" required:"true"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"48h"`

	SuperEmail    string `envconfig:"SUPER_EMAIL"`
	SuperPassword string `envconfig:"SUPER_PASSWORD"`

	ChatRetention       time.Duration `envconfig:"CHAT_RETENTION" default:"504h"`
	ChatCleanupSchedule string        `envconfig:"CHAT_CLEANUP_SCHEDULE" default:"@every 24h"`
	ChatSessionBuffer   int           `envconfig:"CHAT_SESSION_BUFFER" default:"64"`
	ChatOpTimeout       time.Duration `envconfig:"CHAT_OP_TIMEOUT" default:"10s"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"240"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("Warning: .env file not found, reading from system environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
