package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr              string
	LogLevel              string
	LogFormat             string
	YouTubeAPIKey         string
	YouTubeBaseURL        string
	SearchTimeout         time.Duration
	RequestTimeout        time.Duration
	MaxConcurrency        int
	SelectionLimit        int
	CombinationThreshold  int
	SelectionWindowMonths int
	TrendingWindowMonths  int
	RetryAttempts         int
	ProviderRPS           float64
	RedisURL              string
	CacheDir              string
	CacheTTL              time.Duration
	CacheDisabled         bool
	APIRateLimitRPS       float64
	APIRateLimitBurst     int
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:              getEnv("HTTP_ADDR", ":8090"),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:             strings.ToLower(getEnv("LOG_FORMAT", "text")),
		YouTubeAPIKey:         strings.TrimSpace(os.Getenv("YOUTUBE_API_KEY")),
		YouTubeBaseURL:        getEnv("YOUTUBE_BASE_URL", "https://www.googleapis.com/youtube/v3"),
		SearchTimeout:         time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 20)) * time.Second,
		RequestTimeout:        time.Duration(getEnvInt("SEARCH_REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,
		MaxConcurrency:        getEnvNonNegativeInt("SEARCH_MAX_CONCURRENCY", 8),
		SelectionLimit:        getEnvInt("SEARCH_SELECTION_LIMIT", 6),
		CombinationThreshold:  getEnvInt("SEARCH_COMBINATION_THRESHOLD", 4),
		SelectionWindowMonths: getEnvInt("SEARCH_SELECTION_WINDOW_MONTHS", 6),
		TrendingWindowMonths:  getEnvInt("SEARCH_TRENDING_WINDOW_MONTHS", 1),
		RetryAttempts:         getEnvInt("SEARCH_RETRY_ATTEMPTS", 3),
		ProviderRPS:           getEnvFloat("SEARCH_PROVIDER_RPS", 10),
		RedisURL:              getEnv("REDIS_URL", ""),
		CacheDir:              getEnv("CACHE_DIR", ""),
		CacheTTL:              time.Duration(getEnvInt("SEARCH_CACHE_TTL_MINUTES", 30)) * time.Minute,
		CacheDisabled:         getEnvBool("SEARCH_CACHE_DISABLED", false),
		APIRateLimitRPS:       getEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst:     getEnvInt("API_RATE_LIMIT_BURST", 40),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getEnvNonNegativeInt is getEnvInt for settings where zero means "off".
func getEnvNonNegativeInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
