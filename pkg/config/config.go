package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds everything the server needs to boot. Values come from the
// environment, optionally seeded from a .env file in the working directory.
type Config struct {
	Addr    string `env:"ADDR" envDefault:":8080"`
	DBPath  string `env:"DB_PATH" envDefault:"souk.db"`
	LogJSON bool   `env:"LOG_JSON" envDefault:"false"`

	JWTSecret string `env:"JWT_SECRET,required"`

	RedisEnabled bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"*"`

	OTPTTL      time.Duration `env:"OTP_TTL" envDefault:"5m"`
	OTPDigits   int           `env:"OTP_DIGITS" envDefault:"6"`
	OTPAttempts int           `env:"OTP_ATTEMPTS" envDefault:"5"`
}

// Load reads the environment into a Config. A missing .env file is fine;
// explicit environment variables always win.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse environment")
	}
	return cfg, nil
}

// DSN derives the sqlite DSN used by all stores.
func (c *Config) DSN() string {
	path := strings.TrimSpace(c.DBPath)
	if path == "" {
		path = "souk.db"
	}
	return "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

// Origins splits the configured CORS origins list.
func (c *Config) Origins() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
