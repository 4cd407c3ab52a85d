// Package config loads service settings from app.env and the environment,
// and solver defaults from YAML.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the service.
// The values are read by viper from an optional app.env file or environment variables.
type Config struct {
	Environment        string        `mapstructure:"ENVIRONMENT"`
	Port               string        `mapstructure:"PORT"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMigrate          bool          `mapstructure:"DB_MIGRATE"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	AdminToken         string        `mapstructure:"ADMIN_TOKEN"`
	RateRPS            float64       `mapstructure:"RATE_RPS"`
	RateBurst          int           `mapstructure:"RATE_BURST"`
	RunWorkers         int           `mapstructure:"RUN_WORKERS"`
	RunQueue           int           `mapstructure:"RUN_QUEUE"`
	RunTimeout         time.Duration `mapstructure:"RUN_TIMEOUT"`
	WebhookMaxAttempts int           `mapstructure:"WEBHOOK_MAX_ATTEMPTS"`
	SolverDefaultsFile string        `mapstructure:"SOLVER_DEFAULTS_FILE"`
}

var defaults = map[string]any{
	"ENVIRONMENT":          "development",
	"PORT":                 "8080",
	"LOG_LEVEL":            "info",
	"DATABASE_URL":         "",
	"DB_MIGRATE":           false,
	"REDIS_URL":            "",
	"ADMIN_TOKEN":          "",
	"RATE_RPS":             20.0,
	"RATE_BURST":           40,
	"RUN_WORKERS":          4,
	"RUN_QUEUE":            64,
	"RUN_TIMEOUT":          5 * time.Minute,
	"WEBHOOK_MAX_ATTEMPTS": 10,
	"SOLVER_DEFAULTS_FILE": "",
}

// Load reads configuration from path/app.env when present, then from environment variables.
func Load(path string) (config Config, err error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}
	if err = v.Unmarshal(&config); err != nil {
		return
	}
	config.AdminToken = trimOptionalQuotes(config.AdminToken)
	config.DatabaseURL = trimOptionalQuotes(config.DatabaseURL)
	return
}

// Development reports whether logs should be human readable.
func (c Config) Development() bool { return c.Environment == "" || c.Environment == "development" }

func trimOptionalQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "\"")
	s = strings.TrimSuffix(s, "\"")
	s = strings.TrimPrefix(s, "'")
	s = strings.TrimSuffix(s, "'")
	return s
}
