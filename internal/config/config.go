package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const defaultTimezone = "Europe/Moscow"

type Config struct {
	Port          string
	Env           string
	AllowedOrigin string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration
	Passphrase    string
	AuthSecret    string
	TokenTTL      time.Duration
	Timezone      string
	SeedDemo      bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		Passphrase:    strings.TrimSpace(os.Getenv("ACCESS_PASSPHRASE")),
		AuthSecret:    strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		Timezone:      getEnv("TIMEZONE", defaultTimezone),
		SeedDemo:      getEnvBool("SEED_DEMO", false),
	}

	var err error
	if cfg.SessionTTL, err = parseDurationEnv("SESSION_TTL", "0s"); err != nil {
		return Config{}, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	if cfg.TokenTTL, err = parseDurationEnv("AUTH_TOKEN_TTL", "12h"); err != nil {
		return Config{}, fmt.Errorf("invalid AUTH_TOKEN_TTL: %w", err)
	}

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves the configured timezone. An unknown zone falls back to
// UTC with a warning rather than refusing to start.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", c.Timezone).Msg("unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// parseDurationEnv parses key as a time.Duration, using def when unset.
func parseDurationEnv(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0")
	}
	return d, nil
}
