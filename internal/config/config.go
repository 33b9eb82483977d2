package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO/S3-compatible backends.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// FetchConfig holds settings for downloading source files from remote URLs.
// ChunkThreshold is the declared size above which the fetcher switches to
// ranged chunk downloads of ChunkSize bytes each. MaxSize is the hard cap on
// a single download; it matches the largest per-file policy limit so nothing
// larger is ever buffered. Zero disables the cap.
type FetchConfig struct {
	ConnectTimeout   time.Duration
	TotalTimeout     time.Duration
	ChunkSize        int64
	ChunkThreshold   int64
	ChunkConcurrency int
	MaxRetries       int
	RetryBaseDelay   time.Duration
	MaxSize          int64
}

// UploadConfig holds settings for writing payloads to the object store.
type UploadConfig struct {
	MultipartThreshold int64
	PartConcurrency    int
}

// CDNConfig holds settings for building public file URLs.
type CDNConfig struct {
	BaseURL   string
	Namespace string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost  string
	Port     string
	Database DatabaseConfig
	MinIO    MinIOConfig
	Fetch    FetchConfig
	Upload   UploadConfig
	CDN      CDNConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost: getEnv("APP_HOST", "localhost:8080"),
		Port:    getEnv("PORT", "8080"), // default only for non-sensitive value
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Fetch: FetchConfig{
			ConnectTimeout:   getEnvDurationSec("FETCH_CONNECT_TIMEOUT_SEC", 5),
			TotalTimeout:     getEnvDurationSec("FETCH_TOTAL_TIMEOUT_SEC", 120),
			ChunkSize:        getEnvInt64("FETCH_CHUNK_SIZE", 10*1024*1024),
			ChunkThreshold:   getEnvInt64("FETCH_CHUNK_THRESHOLD", 20*1024*1024),
			ChunkConcurrency: getEnvInt("FETCH_CHUNK_CONCURRENCY", 4),
			MaxRetries:       getEnvInt("FETCH_MAX_RETRIES", 3),
			RetryBaseDelay:   getEnvDurationMs("FETCH_RETRY_BASE_DELAY_MS", 500),
			MaxSize:          getEnvInt64("FETCH_MAX_SIZE", 500*1024*1024),
		},
		Upload: UploadConfig{
			MultipartThreshold: getEnvInt64("UPLOAD_MULTIPART_THRESHOLD", 10*1024*1024),
			PartConcurrency:    getEnvInt("UPLOAD_PART_CONCURRENCY", 4),
		},
		CDN: CDNConfig{
			BaseURL:   getEnv("CDN_BASE_URL", "http://localhost:8080/files"),
			Namespace: getEnv("CDN_NAMESPACE", "s/v3"),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDurationSec(key string, defSec int) time.Duration {
	return time.Duration(getEnvInt(key, defSec)) * time.Second
}

func getEnvDurationMs(key string, defMs int) time.Duration {
	return time.Duration(getEnvInt(key, defMs)) * time.Millisecond
}
