package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port int

	DBURL string

	JWTSecret string
	AccessTTL time.Duration

	// admission
	MatchThreshold float64
	MaxImageWidth  int
	UploadDir      string

	// rate limiting
	RateLimitBackend string // "memory" or "redis"
	RateLimitMax     int
	RateLimitWindow  time.Duration
	RedisAddr        string
	RedisPassword    string

	// upstream collaborators
	ComparatorURL   string
	BlobBaseURL     string
	BlobAPIKey      string
	BlobFolder      string
	UpstreamTimeout time.Duration

	AdminSecret  string
	OTLPEndpoint string

	AllowedOrigins []string
	MaxBodyBytes   int64
}

func Load() Config {
	return Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnvInt("PORT", 8080),

		DBURL: buildDBURL(),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
		AccessTTL: getEnvDuration("ACCESS_TTL", 15*time.Minute),

		MatchThreshold: getEnvFloat("MATCH_THRESHOLD", 0.4),
		MaxImageWidth:  getEnvInt("MAX_IMAGE_WIDTH", 500),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),

		RateLimitBackend: getEnv("RATE_LIMIT_BACKEND", "memory"),
		RateLimitMax:     getEnvInt("RATE_LIMIT_MAX", 5),
		RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second),
		RedisAddr:        getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),

		ComparatorURL:   getEnv("COMPARATOR_URL", "http://127.0.0.1:5005"),
		BlobBaseURL:     getEnv("BLOB_BASE_URL", ""),
		BlobAPIKey:      getEnv("BLOB_API_KEY", ""),
		BlobFolder:      getEnv("BLOB_FOLDER", "face_recognition"),
		UpstreamTimeout: getEnvDuration("UPSTREAM_TIMEOUT", 5*time.Second),

		AdminSecret:  getEnv("ADMIN_SECRET", ""),
		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", nil),
		MaxBodyBytes:   int64(getEnvInt("MAX_BODY_BYTES", 10<<20)),
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "faceauth")
	pass := getEnv("DB_PASSWORD", "faceauth")
	name := getEnv("DB_NAME", "faceauth")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))

		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}

		return out
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return f
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return d
	}
	return fallback
}
