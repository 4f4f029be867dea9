package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/providers/farnell"
	"componentsearch/searchservice/internal/search"
)

// Headroom left between the provider timeout and the HTTP write deadline so
// that a run that hits every timeout can still be written out.
const writeDeadlineHeadroom = time.Second

type Config struct {
	HTTPAddr         string
	HTTPWriteTimeout time.Duration
	LogLevel         string
	LogFormat        string
	UserAgent        string

	ProviderTimeout time.Duration
	Concurrency     int
	ResultLimit     int

	RedisURL      string
	CacheTTL      time.Duration
	CacheDisabled bool

	MouserAPIKey        string
	DigiKeyClientID     string
	DigiKeyClientSecret string
	DigiKeyAPIBase      string
	TMEToken            string
	TMESecret           string
	TMECountry          string
	FarnellAPIKey       string
	FarnellRegion       string
	ChipDipEnabled      bool
	ChipDipEndpoint     string

	CatalogPath      string
	CurrencyRatesURL string
	CurrencyRefresh  time.Duration
}

func LoadConfig() Config {
	cfg := Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8090"),
		HTTPWriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT_SECONDS", 0, time.Second),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:        getEnv("SEARCH_USER_AGENT", "component-search/1.0"),

		ProviderTimeout: getEnvDuration("SEARCH_PROVIDER_TIMEOUT_MS", search.DefaultProviderTimeout, time.Millisecond),
		Concurrency:     getEnvInt("SEARCH_CONCURRENCY", 4),
		ResultLimit:     getEnvInt("SEARCH_RESULT_LIMIT", search.DefaultResultLimit),

		RedisURL:      getEnv("REDIS_URL", ""),
		CacheTTL:      getEnvDuration("SEARCH_CACHE_TTL_MINUTES", time.Hour, time.Minute),
		CacheDisabled: getEnvBool("SEARCH_CACHE_DISABLED", false),

		MouserAPIKey:        strings.TrimSpace(os.Getenv("MOUSER_API_KEY")),
		DigiKeyClientID:     strings.TrimSpace(os.Getenv("DIGIKEY_CLIENT_ID")),
		DigiKeyClientSecret: strings.TrimSpace(os.Getenv("DIGIKEY_CLIENT_SECRET")),
		DigiKeyAPIBase:      getEnv("DIGIKEY_API_BASE", ""),
		TMEToken:            strings.TrimSpace(os.Getenv("TME_TOKEN")),
		TMESecret:           strings.TrimSpace(os.Getenv("TME_SECRET")),
		TMECountry:          strings.ToUpper(getEnv("TME_COUNTRY", "PL")),
		FarnellAPIKey:       strings.TrimSpace(os.Getenv("FARNELL_API_KEY")),
		FarnellRegion:       getEnv("FARNELL_REGION", farnell.DefaultRegion),
		ChipDipEnabled:      getEnvBool("CHIPDIP_ENABLED", false),
		ChipDipEndpoint:     getEnv("CHIPDIP_ENDPOINT", ""),

		CatalogPath:      getEnv("MANUAL_CATALOG_PATH", ""),
		CurrencyRatesURL: getEnv("CURRENCY_RATES_URL", ""),
		CurrencyRefresh:  getEnvDuration("CURRENCY_REFRESH_MINUTES", 6*time.Hour, time.Minute),
	}
	cfg.ProviderTimeout = clampProviderTimeout(cfg.ProviderTimeout, cfg.HTTPWriteTimeout)
	return cfg
}

// ProviderConfig is the credential set handed to every search run.
func (c Config) ProviderConfig() domain.ProviderConfig {
	return domain.ProviderConfig{
		MouserAPIKey:        c.MouserAPIKey,
		DigiKeyClientID:     c.DigiKeyClientID,
		DigiKeyClientSecret: c.DigiKeyClientSecret,
		TMEToken:            c.TMEToken,
		TMESecret:           c.TMESecret,
		FarnellAPIKey:       c.FarnellAPIKey,
		FarnellRegion:       c.FarnellRegion,
		ChipDipEnabled:      c.ChipDipEnabled,
	}
}

// clampProviderTimeout keeps a search run inside the server write deadline.
// A zero deadline (streaming-friendly default) leaves the timeout as is.
func clampProviderTimeout(timeout, writeTimeout time.Duration) time.Duration {
	if writeTimeout <= 0 {
		return timeout
	}
	ceiling := writeTimeout - writeDeadlineHeadroom
	if ceiling <= 0 {
		ceiling = writeTimeout / 2
	}
	if timeout > ceiling {
		return ceiling
	}
	return timeout
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

// getEnvDuration reads an integer count of unit.
func getEnvDuration(key string, fallback, unit time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return time.Duration(parsed) * unit
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
