package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv           string
	HTTPAddr         string
	MetricsAddr      string
	MySQLDSN         string
	RedisAddr        string
	RedisDB          int
	RedisPass        string
	PlatformBase     string
	PlatformKey      string
	PlatformRPS      int
	AnalyzerURL      string
	AnalyzerKey      string
	BusinessID       string
	LocationIDs      []string
	ReconcileWorkers int
	PublishWorkers   int
	CacheTTL         time.Duration
	PolicyFile       string
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:           env("APP_ENV", "prod"),
		HTTPAddr:         env("HTTP_ADDR", ":8080"),
		MetricsAddr:      env("METRICS_ADDR", ":9100"),
		MySQLDSN:         env("MYSQL_DSN", "root:root@tcp(localhost:3306)/reviewdesk?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:        env("REDIS_ADDR", "localhost:6379"),
		RedisDB:          atoi("REDIS_DB", 0),
		RedisPass:        env("REDIS_PASSWORD", ""),
		PlatformBase:     env("PLATFORM_BASE_URL", "https://mybusiness.googleapis.com/v4"),
		PlatformKey:      env("PLATFORM_API_KEY", ""),
		PlatformRPS:      atoi("PLATFORM_RPS", 5),
		AnalyzerURL:      env("ANALYZER_URL", "http://localhost:8090"),
		AnalyzerKey:      env("ANALYZER_API_KEY", ""),
		BusinessID:       strings.TrimSpace(env("BUSINESS_ID", "")),
		LocationIDs:      splitList(env("LOCATION_IDS", "")),
		ReconcileWorkers: atoi("RECONCILE_WORKERS", 4),
		PublishWorkers:   atoi("PUBLISH_WORKERS", 4),
		CacheTTL:         time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,
		PolicyFile:       env("POLICY_FILE", ""),
	}
	if c.PlatformKey == "" {
		log.Warn().Msg("PLATFORM_API_KEY is empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
