package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Scan
	ScanLookbackDays  int
	ScanRetryAttempts int
	ScanRetryDelay    time.Duration
	// CalendarPeriods はカレンダースクレイプで「次の期間」へ進める回数。
	CalendarPeriods int

	// Feed
	FeedFetchTimeout time.Duration
	FeedMaxSize      int64

	// Oracle（ローカル推論ランタイム。未設定の場合はヒューリスティックのみで動作する）
	OracleURL     string
	OracleModel   string
	OracleTimeout time.Duration
	// OracleRatePerSec はオラクル呼び出しのレート上限（req/sec）。
	OracleRatePerSec float64

	// Scraper（ブラウザ自動化ブリッジ。未設定の場合はWeb UIアカウントを取得不能として扱う）
	ScraperBridgeURL     string
	ScraperBridgeTimeout time.Duration

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variable is not set: DATABASE_URL")
	}

	// Optional fields with defaults
	cfg.ScanLookbackDays = getEnvInt("SCAN_LOOKBACK_DAYS", 14)
	cfg.ScanRetryAttempts = getEnvInt("SCAN_RETRY_ATTEMPTS", 3)
	cfg.ScanRetryDelay = getEnvDuration("SCAN_RETRY_DELAY", 2*time.Second)
	cfg.CalendarPeriods = getEnvInt("CALENDAR_PERIODS", 2)
	cfg.FeedFetchTimeout = getEnvDuration("FEED_FETCH_TIMEOUT", 10*time.Second)
	cfg.FeedMaxSize = getEnvInt64("FEED_MAX_SIZE", 5242880)
	cfg.OracleURL = getEnvString("ORACLE_URL", "")
	cfg.OracleModel = getEnvString("ORACLE_MODEL", "qwen2.5:3b")
	cfg.OracleTimeout = getEnvDuration("ORACLE_TIMEOUT", 30*time.Second)
	cfg.OracleRatePerSec = getEnvFloat("ORACLE_RATE_PER_SEC", 1.0)
	cfg.ScraperBridgeURL = getEnvString("SCRAPER_BRIDGE_URL", "")
	cfg.ScraperBridgeTimeout = getEnvDuration("SCRAPER_BRIDGE_TIMEOUT", 60*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.ScanRetryAttempts < 1 {
		return nil, fmt.Errorf("SCAN_RETRY_ATTEMPTS must be >= 1, got %d", cfg.ScanRetryAttempts)
	}
	if cfg.ScanLookbackDays < 1 {
		return nil, fmt.Errorf("SCAN_LOOKBACK_DAYS must be >= 1, got %d", cfg.ScanLookbackDays)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
