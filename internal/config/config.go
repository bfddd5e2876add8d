package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity Provider
	// IdentityProviderは "rest"（外部IDプロバイダーのREST API）または
	// "local"（DBバックエンドの開発用プロバイダー）を指定する。
	IdentityProvider string
	IdentityAPIKey   string
	IdentityBaseURL  string

	// Session
	SessionSecret string
	SessionTTL    time.Duration

	// Rate Limit
	RateLimitGeneral  int // 認証済みAPI全般（req/min/user）
	RateLimitRegister int // 登録系エンドポイント（req/min/IP）

	// Server
	ServerPort string

	// Frontend
	// BaseURLはマーケティングサイト、ERPAppURLはERPアプリのオリジン。
	// 別デプロイの2フロントエンドを持つため両方をCORS許可リストに載せる。
	BaseURL   string
	ERPAppURL string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.ERPAppURL = os.Getenv("ERP_APP_URL")
	if cfg.ERPAppURL == "" {
		missing = append(missing, "ERP_APP_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Identity provider
	cfg.IdentityProvider = getEnvString("IDENTITY_PROVIDER", "local")
	if cfg.IdentityProvider != "rest" && cfg.IdentityProvider != "local" {
		return nil, fmt.Errorf("IDENTITY_PROVIDER must be \"rest\" or \"local\", got %q", cfg.IdentityProvider)
	}
	cfg.IdentityAPIKey = os.Getenv("IDENTITY_API_KEY")
	cfg.IdentityBaseURL = os.Getenv("IDENTITY_BASE_URL")
	if cfg.IdentityProvider == "rest" && cfg.IdentityAPIKey == "" {
		return nil, fmt.Errorf("IDENTITY_API_KEY is required when IDENTITY_PROVIDER=rest")
	}

	// Optional fields with defaults
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 24*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRegister = getEnvInt("RATE_LIMIT_REGISTER", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// CORSAllowedOrigins はCORSで許可する2フロントエンドのオリジン一覧を返す。
// BaseURLとERPAppURLが同一の場合は1件に畳む。
func (c *Config) CORSAllowedOrigins() []string {
	if strings.TrimRight(c.BaseURL, "/") == strings.TrimRight(c.ERPAppURL, "/") {
		return []string{strings.TrimRight(c.BaseURL, "/")}
	}
	return []string{
		strings.TrimRight(c.BaseURL, "/"),
		strings.TrimRight(c.ERPAppURL, "/"),
	}
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
