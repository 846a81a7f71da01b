package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port     string
	LogLevel string

	LlamaAPIKey  string
	LlamaBaseURL string
	LlamaModel   string
	GeminiAPIKey string
	GeminiModel  string

	StorageBackend       string
	StoragePublicBaseURL string
	StorageBucket        string
	S3Endpoint           string
	S3Region             string
	S3AccessKeyID        string
	S3SecretAccessKey    string
	DemoImages           []string

	// DatabaseDSN is empty when no database is configured.
	DatabaseDSN string

	TelegramBotToken string
	TelegramChatID   int64
}

const (
	BackendS3     = "s3"
	BackendMemory = "memory"
)

type loader struct{ missing []string }

func (l *loader) mustEnv(k string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		l.missing = append(l.missing, k)
	}
	return v
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

// Load reads the environment. Every missing required variable is reported at once.
func Load() (*Config, error) {
	var l loader
	cfg := &Config{
		Port:     getEnv("PORT", "8000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		LlamaAPIKey:  l.mustEnv("LLAMA_API_KEY"),
		LlamaBaseURL: getEnv("LLAMA_BASE_URL", "https://api.llama.com/compat/v1/"),
		LlamaModel:   getEnv("LLAMA_MODEL", "Llama-4-Maverick-17B-128E-Instruct-FP8"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		StorageBackend:       strings.ToLower(getEnv("STORAGE_BACKEND", BackendS3)),
		StoragePublicBaseURL: l.mustEnv("STORAGE_PUBLIC_BASE_URL"),
		StorageBucket:        getEnv("STORAGE_BUCKET", "reports"),
		S3Endpoint:           getEnv("STORAGE_S3_ENDPOINT", ""),
		S3Region:             getEnv("STORAGE_S3_REGION", "us-east-1"),
		S3AccessKeyID:        getEnv("STORAGE_S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:    getEnv("STORAGE_S3_SECRET_ACCESS_KEY", ""),
		DemoImages:           splitList(getEnv("DEMO_IMAGES", "page1.jpg,page2.jpg,page3.jpg")),

		DatabaseDSN: resolveDSN(),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
	}
	if len(l.missing) > 0 {
		return nil, fmt.Errorf("missing required env %s", strings.Join(l.missing, ", "))
	}
	switch cfg.StorageBackend {
	case BackendS3, BackendMemory:
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", BackendS3, BackendMemory, cfg.StorageBackend)
	}
	if v := getEnv("TELEGRAM_CHAT_ID", ""); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.New("TELEGRAM_CHAT_ID must be an integer")
		}
		cfg.TelegramChatID = id
	}
	return cfg, nil
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

// resolveDSN prefers DATABASE_URL and otherwise builds a DSN from
// POSTGRES_*/PG* variables. It returns "" when neither is configured.
func resolveDSN() string {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v
	}
	host := getEnv("PGHOST", "")
	if host == "" && os.Getenv("POSTGRES_USER") == "" {
		return ""
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "parentbridge"), os.Getenv("POSTGRES_PASSWORD")),
		Host:     net.JoinHostPort(getEnv("PGHOST", "db"), getEnv("PGPORT", "5432")),
		Path:     "/" + getEnv("POSTGRES_DB", "parentbridge"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// SafeDSNSummary describes a DSN without its password.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
