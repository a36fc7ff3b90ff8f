package config

import (
	"os"
	"strconv"
	"time"
)

// Sink modes.
const (
	SinkModeNone = "none"
	SinkModePush = "push"
	SinkModeBoth = "both"
)

// Config holds process-level configuration read from the environment.
type Config struct {
	Port                  string
	Env                   string
	LogLevel              string
	DataDir               string
	CitiesFile            string
	WeatherHistoryFile    string
	DatabaseURL           string
	DefaultSecondsPerHour float64
	Sink                  SinkConfig
}

// SinkConfig configures the optional external telemetry push.
type SinkConfig struct {
	Mode           string
	URL            string
	AuthURL        string
	ClientID       string
	ClientSecret   string
	MaxAuthRetries int
	Timeout        time.Duration
}

// PushEnabled reports whether snapshots should be pushed to the external
// sink. An unset URL disables pushing regardless of mode.
func (s SinkConfig) PushEnabled() bool {
	return (s.Mode == SinkModePush || s.Mode == SinkModeBoth) && s.URL != ""
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		Port:                  getEnv("PORT", "8080"),
		Env:                   getEnv("GO_ENV", "development"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		DataDir:               getEnv("DATA_DIR", "data"),
		CitiesFile:            getEnv("CITIES_FILE", ""),
		WeatherHistoryFile:    getEnv("WEATHER_HISTORY_FILE", "data/weather/history.csv"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		DefaultSecondsPerHour: getEnvFloat("DEFAULT_SECONDS_PER_HOUR", 10),
		Sink: SinkConfig{
			Mode:           getEnv("SINK_MODE", SinkModeNone),
			URL:            getEnv("SINK_URL", ""),
			AuthURL:        getEnv("SINK_AUTH_URL", ""),
			ClientID:       getEnv("SINK_CLIENT_ID", ""),
			ClientSecret:   getEnv("SINK_CLIENT_SECRET", ""),
			MaxAuthRetries: getEnvInt("SINK_MAX_AUTH_RETRIES", 2),
			Timeout:        time.Duration(getEnvInt("SINK_TIMEOUT_SECONDS", 10)) * time.Second,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
