package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	SslCertPath string
	DBPoolSize  int
	AutoMigrate bool

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	AIAPIKey       string
	EmbedModel     string
	EmbedDim       int
	EmbedCacheSize int
	EmbedCacheTTL  time.Duration
	EmbedBatchSize int
	GenModel       string

	SearchThreshold float64
	SemanticWeight  float64

	Port        string
	CORSOrigins []string
	LogLevel    string
	LogFile     string

	ChunkSize        int
	ChunkOverlap     int
	ConverterTimeout time.Duration
	IngestWorkers    int
	MaxUploadBytes   int64

	// Warnings collects values that could not be parsed and fell back to
	// their defaults; they are logged once the logger exists.
	Warnings []string
}

// LoadConfig loads .env (if present) and the process environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	l := &loader{}
	cfg := &Config{
		DatabaseURL: l.getEnv("DATABASE_URL", ""),
		SslCertPath: l.getEnv("SSL_CERT_PATH", ""),
		DBPoolSize:  l.getEnvInt("DB_POOL_SIZE", 20),
		AutoMigrate: l.getEnvBool("AUTO_MIGRATE", true),

		AwsAccessKey: l.getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: l.getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    l.getEnv("AWS_REGION", "us-east-2"),
		BucketName:   l.getEnv("BUCKET_NAME", ""),

		AIAPIKey:       l.getEnv("GEMINI_API_KEY", ""),
		EmbedModel:     l.getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:       l.getEnvInt("EMBED_DIM", 384),
		EmbedCacheSize: l.getEnvInt("EMBED_CACHE_SIZE", 4096),
		EmbedCacheTTL:  time.Duration(l.getEnvInt("EMBED_CACHE_TTL_MIN", 60)) * time.Minute,
		EmbedBatchSize: l.getEnvInt("EMBED_BATCH_SIZE", 32),
		GenModel:       l.getEnv("GEN_MODEL", "gemini-1.5-flash"),

		SearchThreshold: l.getEnvFloat("SEARCH_THRESHOLD", 0.5),
		SemanticWeight:  l.getEnvFloat("SEMANTIC_WEIGHT", 0.7),

		Port:        l.getEnv("PORT", "8080"),
		CORSOrigins: l.getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		LogLevel:    l.getEnv("LOG_LEVEL", "info"),
		LogFile:     l.getEnv("LOG_FILE", ""),

		ChunkSize:        l.getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:     l.getEnvInt("CHUNK_OVERLAP", 200),
		ConverterTimeout: time.Duration(l.getEnvInt("CONVERTER_TIMEOUT_SEC", 0)) * time.Second,
		IngestWorkers:    l.getEnvInt("INGEST_WORKERS", 4),
		MaxUploadBytes:   int64(l.getEnvInt("MAX_UPLOAD_MB", 64)) << 20,
	}
	cfg.Warnings = l.warnings
	return cfg
}

// RequireDatabase reports an error when the settings needed to open the
// database are missing.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL not set")
	}
	if c.EmbedDim <= 0 {
		return fmt.Errorf("EMBED_DIM must be positive, got %d", c.EmbedDim)
	}
	return nil
}

// BlobStorageEnabled reports whether uploads should be copied to S3.
func (c *Config) BlobStorageEnabled() bool {
	return c.BucketName != ""
}

type loader struct {
	warnings []string
}

// Helper to read environment variables with a default fallback
func (l *loader) getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func (l *loader) getEnvInt(key string, def int) int {
	v := strings.TrimSpace(l.getEnv(key, ""))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.warnings = append(l.warnings, fmt.Sprintf("%s=%q not an int, using default %d", key, v, def))
		return def
	}
	return n
}

func (l *loader) getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(l.getEnv(key, ""))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.warnings = append(l.warnings, fmt.Sprintf("%s=%q not a number, using default %g", key, v, def))
		return def
	}
	return f
}

func (l *loader) getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(l.getEnv(key, ""))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.warnings = append(l.warnings, fmt.Sprintf("%s=%q not a bool, using default %t", key, v, def))
		return def
	}
	return b
}

// getEnvList splits a comma separated value, dropping blank entries.
func (l *loader) getEnvList(key string, def []string) []string {
	v := l.getEnv(key, "")
	if strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
