package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DeliveryImmediate = "immediate"
	DeliveryPresence  = "presence"

	JournalNone     = ""
	JournalPostgres = "postgres"
	JournalSQLite   = "sqlite"
)

type Config struct {
	Port      string
	JWTSecret string

	ClosingSoonHorizon time.Duration
	MessageDelivery    string

	CORSAllowedOrigins []string
	RateLimit          int // requests per second per client IP

	JournalDriver     string
	DatabaseURL       string
	JournalSQLitePath string

	RedisAddr string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:              getenv("PORT", "8080"),
		MessageDelivery:   getenv("MESSAGE_DELIVERY", DeliveryImmediate),
		JournalDriver:     strings.ToLower(getenv("JOURNAL_DRIVER", JournalNone)),
		JournalSQLitePath: getenv("JOURNAL_SQLITE_PATH", "skygig-journal.db"),
		RedisAddr:         redisAddr(),
	}

	secret, err := mustGetenv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}
	cfg.JWTSecret = secret

	hours, err := strconv.Atoi(getenv("CLOSING_SOON_HOURS", "72"))
	if err != nil || hours < 0 {
		return Config{}, fmt.Errorf("invalid CLOSING_SOON_HOURS: %q", os.Getenv("CLOSING_SOON_HOURS"))
	}
	cfg.ClosingSoonHorizon = time.Duration(hours) * time.Hour

	cfg.RateLimit, err = strconv.Atoi(getenv("RATE_LIMIT", "20"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid RATE_LIMIT: %w", err)
	}

	switch cfg.MessageDelivery {
	case DeliveryImmediate, DeliveryPresence:
	default:
		return Config{}, fmt.Errorf("invalid MESSAGE_DELIVERY: %q", cfg.MessageDelivery)
	}

	for _, o := range strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	switch cfg.JournalDriver {
	case JournalNone, JournalSQLite:
	case JournalPostgres:
		cfg.DatabaseURL = databaseURL()
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("JOURNAL_DRIVER=postgres needs DATABASE_URL or DB_HOST/DB_NAME")
		}
	default:
		return Config{}, fmt.Errorf("invalid JOURNAL_DRIVER: %q", cfg.JournalDriver)
	}

	return cfg, nil
}

// databaseURL prefers DATABASE_URL and falls back to the DB_* parts.
func databaseURL() string {
	if v := getenv("DATABASE_URL", ""); v != "" {
		return v
	}
	host := getenv("DB_HOST", "")
	name := getenv("DB_NAME", "")
	if host == "" || name == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		getenv("DB_USER", "postgres"),
		getenv("DB_PASSWORD", ""),
		host,
		getenv("DB_PORT", "5432"),
		name,
	)
}

// redisAddr returns "" when no Redis is configured; alert fan-out is then disabled.
func redisAddr() string {
	if v := getenv("REDIS_ADDR", ""); v != "" {
		return v
	}
	if host := getenv("REDIS_HOST", ""); host != "" {
		return host + ":" + getenv("REDIS_PORT", "6379")
	}
	return ""
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mustGetenv(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("missing env: %s", key)
	}
	return v, nil
}
