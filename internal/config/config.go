package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// SweepThresholds is the single authoritative timeout table. Every sweep
// entry point reads these values; nothing else hardcodes a cutoff.
type SweepThresholds struct {
	// RequestPendingTTL expires pending unbound requests.
	RequestPendingTTL time.Duration
	// UnattendedAfter flags unbound pending sessions for manual assignment.
	UnattendedAfter time.Duration
	// PendingExpireTTL expires unbound pending sessions for good.
	PendingExpireTTL time.Duration
	// WaitingCancelTTL cancels accepted sessions nobody joined.
	WaitingCancelTTL time.Duration
	// LiveCeiling force-closes live sessions with no end call.
	LiveCeiling time.Duration
}

// Config holds service configuration.
type Config struct {
	DatabaseURL      string
	ServerAddr       string
	TokenTTL         time.Duration
	AuthCookieName   string
	AuthCookieSecure bool
	SweepSecret      string
	SweepSchedule    string
	RoomSigningKey   string
	RoomTokenTTL     time.Duration
	Thresholds       SweepThresholds
}

// Load reads configuration from the environment, after loading a local .env
// file when present.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "session_hub")
		pass := getenv("POSTGRES_PASSWORD", "session_hub_pass")
		db := getenv("POSTGRES_DB", "session_hub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	return &Config{
		DatabaseURL:      dsn,
		ServerAddr:       getenv("SERVER_ADDR", "0.0.0.0:8080"),
		TokenTTL:         parseDuration(getenv("TOKEN_TTL", "24h"), 24*time.Hour),
		AuthCookieName:   getenv("AUTH_COOKIE_NAME", "session_hub_auth"),
		AuthCookieSecure: parseBool(getenv("AUTH_COOKIE_SECURE", "false"), false),
		SweepSecret:      os.Getenv("SWEEP_SECRET"),
		SweepSchedule:    getenv("SWEEP_SCHEDULE", "@every 1m"),
		RoomSigningKey:   getenv("ROOM_SIGNING_KEY", "dev-room-key"),
		RoomTokenTTL:     parseDuration(getenv("ROOM_TOKEN_TTL", "4h"), 4*time.Hour),
		Thresholds: SweepThresholds{
			RequestPendingTTL: parseDuration(getenv("SWEEP_REQUEST_PENDING_TTL", "15m"), 15*time.Minute),
			UnattendedAfter:   parseDuration(getenv("SWEEP_UNATTENDED_AFTER", "5m"), 5*time.Minute),
			PendingExpireTTL:  parseDuration(getenv("SWEEP_PENDING_EXPIRE_TTL", "120m"), 120*time.Minute),
			WaitingCancelTTL:  parseDuration(getenv("SWEEP_WAITING_CANCEL_TTL", "60m"), 60*time.Minute),
			LiveCeiling:       parseDuration(getenv("SWEEP_LIVE_CEILING", "2h"), 2*time.Hour),
		},
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}
