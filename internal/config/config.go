package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port          string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	JWTSecret     string
	JWTExpiresIn  string // minutes
	// Refresh tokens
	RefreshJWTSecret    string
	RefreshTokenTTLDays string
	AdminEmail    string
	AdminPassword string
	AdminFullName string
	LogLevel      string
	// Path to the enforcement policy YAML; empty means built-in defaults.
	PolicyFile string
	// Realtime channel
	SendTimeout         time.Duration
	DispatchWorkers     int
	WSMessagesPerSecond float64
	WSBurst             int
	JournalEnabled      bool
}

func Load() *Config {
	return &Config{
		Port:                getenv("PORT", "8080"),
		DBHost:              getenv("DB_HOST", "localhost"),
		DBPort:              getenv("DB_PORT", "5432"),
		DBUser:              getenv("DB_USER", "postgres"),
		DBPassword:          getenv("DB_PASSWORD", "postgres"),
		DBName:              getenv("DB_NAME", "seb_proctoring"),
		DBSSLMode:           getenv("DB_SSLMODE", "disable"),
		JWTSecret:           getenv("JWT_SECRET", "supersecret_change_me"),
		JWTExpiresIn:        getenv("JWT_EXPIRES_IN", "60"),
		RefreshJWTSecret:    getenv("REFRESH_JWT_SECRET", getenv("JWT_SECRET", "supersecret_change_me")),
		RefreshTokenTTLDays: getenv("REFRESH_TOKEN_TTL_DAYS", "30"),
		AdminEmail:          getenv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword:       getenv("ADMIN_PASSWORD", "admin123"),
		AdminFullName:       getenv("ADMIN_FULL_NAME", "Administrator"),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		PolicyFile:          getenv("POLICY_FILE", ""),
		SendTimeout:         time.Duration(getenvInt("SEND_TIMEOUT_MS", 300)) * time.Millisecond,
		DispatchWorkers:     getenvInt("DISPATCH_WORKERS", 8),
		WSMessagesPerSecond: getenvFloat("WS_MESSAGES_PER_SECOND", 20),
		WSBurst:             getenvInt("WS_BURST", 40),
		JournalEnabled:      getenvBool("JOURNAL_ENABLED", true),
	}
}

// TokenTTL parses JWTExpiresIn, falling back to one hour.
func (c *Config) TokenTTL() time.Duration {
	mins, err := strconv.Atoi(c.JWTExpiresIn)
	if err != nil || mins <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(mins) * time.Minute
}

// RefreshTTL parses RefreshTokenTTLDays, falling back to 30 days.
func (c *Config) RefreshTTL() time.Duration {
	days, err := strconv.Atoi(c.RefreshTokenTTLDays)
	if err != nil || days <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(days) * 24 * time.Hour
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}
