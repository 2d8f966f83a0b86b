package config

import (
	"os"
	"strings"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Security SecurityConfig
	SMTP     SMTPConfig
	Admin    AdminConfig
}

type ServerConfig struct {
	Port             string
	AllowedOrigins   []string
	AllowCredentials bool
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       string
}

type AuthConfig struct {
	AccessSecret   string
	RefreshSecret  string
	AccessTTL      string
	RefreshTTL     string
	RefreshTTLLong string
	CookieDomain   string
	CookiePath     string
	CookieSecure   string
	CookieSameSite string
}

type SecurityConfig struct {
	MaxSessions string

	BruteforceWindow    string
	BruteforceMaxDevice string
	BruteforceMaxOrigin string
	BruteforceMaxTarget string

	RateLimitWindow string
	RateLimitHeavy  string
	RateLimitCheap  string

	MailResendWindow string
	MailResendMax    string
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	BaseURL  string
}

type AdminConfig struct {
	Email    string
	Login    string
	Password string
}

func Load() Config {
	return Config{
		Server: ServerConfig{
			Port:             getenv("PORT", "8080"),
			AllowedOrigins:   splitList(os.Getenv("CORS_ORIGINS")),
			AllowCredentials: os.Getenv("CORS_ALLOW_CREDENTIALS") != "false",
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenv("REDIS_DB", "0"),
		},
		Auth: AuthConfig{
			AccessSecret:   os.Getenv("JWT_ACCESS_SECRET"),
			RefreshSecret:  os.Getenv("JWT_REFRESH_SECRET"),
			AccessTTL:      getenv("JWT_ACCESS_TTL", "15m"),
			RefreshTTL:     getenv("JWT_REFRESH_TTL", "24h"),
			RefreshTTLLong: getenv("JWT_REFRESH_TTL_LONG", "720h"),
			CookieDomain:   os.Getenv("AUTH_COOKIE_DOMAIN"),
			CookiePath:     getenv("AUTH_COOKIE_PATH", "/"),
			CookieSecure:   getenv("AUTH_COOKIE_SECURE", "true"),
			CookieSameSite: getenv("AUTH_COOKIE_SAMESITE", "strict"),
		},
		Security: SecurityConfig{
			MaxSessions:         getenv("MAX_SESSIONS", "3"),
			BruteforceWindow:    getenv("BRUTEFORCE_WINDOW", "15m"),
			BruteforceMaxDevice: getenv("BRUTEFORCE_MAX_DEVICE", "10"),
			BruteforceMaxOrigin: getenv("BRUTEFORCE_MAX_ORIGIN", "20"),
			BruteforceMaxTarget: getenv("BRUTEFORCE_MAX_TARGET", "5"),
			RateLimitWindow:     getenv("RATE_LIMIT_WINDOW", "5s"),
			RateLimitHeavy:      getenv("RATE_LIMIT_HEAVY", "20"),
			RateLimitCheap:      getenv("RATE_LIMIT_CHEAP", "100"),
			MailResendWindow:    getenv("MAIL_RESEND_WINDOW", "10m"),
			MailResendMax:       getenv("MAIL_RESEND_MAX", "3"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getenv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
			FromName: getenv("SMTP_FROM_NAME", "BarterHub"),
			BaseURL:  getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		},
		Admin: AdminConfig{
			Email:    os.Getenv("ADMIN_EMAIL"),
			Login:    os.Getenv("ADMIN_LOGIN"),
			Password: os.Getenv("ADMIN_PASSWORD"),
		},
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
