package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat is GetEnvInt for floating point values.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetEnvDuration parses values such as "500ms" or "10s". Non-positive and
// malformed values yield fallback.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// Settings is the resolved process configuration for the playback service.
type Settings struct {
	Port              string
	LogLevel          string
	LogFormat         string
	AnalyticsBaseURL  string
	FetchTimeout      time.Duration
	FetchPolicy       string
	TickInterval      time.Duration
	BaseFrameDuration time.Duration
	SlotLayoutFile    string
	// MaxSessions caps concurrent playback sessions. Zero means no cap.
	MaxSessions  int
	DefaultSpeed float64
}

// FromEnv resolves Settings from the environment, applying defaults.
func FromEnv() Settings {
	return Settings{
		Port:              GetEnv("PORT", "8080"),
		LogLevel:          GetEnv("LOG_LEVEL", "info"),
		LogFormat:         GetEnv("LOG_FORMAT", "json"),
		AnalyticsBaseURL:  GetEnv("ANALYTICS_BASE_URL", "http://localhost:8000"),
		FetchTimeout:      GetEnvDuration("FRAME_FETCH_TIMEOUT", 10*time.Second),
		FetchPolicy:       GetEnv("FRAME_FETCH_POLICY", "drop"),
		TickInterval:      GetEnvDuration("PLAYBACK_TICK_INTERVAL", 16*time.Millisecond),
		BaseFrameDuration: GetEnvDuration("PLAYBACK_BASE_FRAME_DURATION", 500*time.Millisecond),
		SlotLayoutFile:    GetEnv("SLOT_LAYOUT_FILE", ""),
		MaxSessions:       GetEnvInt("MAX_SESSIONS", 0),
		DefaultSpeed:      GetEnvFloat("PLAYBACK_DEFAULT_SPEED", 1.0),
	}
}
