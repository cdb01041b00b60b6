package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	ServerPort  string
	Environment string

	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis configuration (message channel)
	RedisAddress string

	// Stream and consumer group names
	OCRJobStream    string
	OCRResultStream string
	ReindexStream   string
	WorkerGroup     string
	IndexerGroup    string

	// MinIO object store
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string

	// Elasticsearch
	ElasticsearchURL string
	SearchIndexName  string

	// OCR parameters
	OCRLanguages   string
	OCRPageSegMode int
	OCREngineMode  int
	OCRDpi         int
	OCRMaxPages    int
	OCRTimeout     time.Duration
	OCRStoreText   bool
	TesseractCmd   string

	// Object store retry policy
	StoreMaxAttempts int
	StoreRetryDelay  time.Duration

	// Worker metrics endpoint
	WorkerMetricsPort string
}

// Global application configuration
var AppConfig Config

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Find .env file
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		// Try to find .env in parent directories
		envPath = filepath.Join("..", ".env")
		if _, err := os.Stat(envPath); os.IsNotExist(err) {
			envPath = filepath.Join("..", "..", ".env")
		}
	}

	// Load .env file if it exists
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	AppConfig = Config{
		ServerPort:  getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "document_archive"),

		RedisAddress: getEnv("REDIS_ADDRESS", "localhost:6379"),

		OCRJobStream:    getEnv("OCR_JOB_STREAM", "ocr:jobs"),
		OCRResultStream: getEnv("OCR_RESULT_STREAM", "ocr:results"),
		ReindexStream:   getEnv("REINDEX_STREAM", "index:reindex"),
		WorkerGroup:     getEnv("OCR_WORKER_GROUP", "ocr-workers"),
		IndexerGroup:    getEnv("INDEXER_GROUP", "indexers"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioBucket:    getEnv("MINIO_BUCKET", "documents"),

		ElasticsearchURL: getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
		SearchIndexName:  getEnv("SEARCH_INDEX_NAME", "documents"),

		OCRLanguages:   getEnv("OCR_LANGS", "eng"),
		OCRPageSegMode: getEnvInt("OCR_PSM", 6),
		OCREngineMode:  getEnvInt("OCR_OEM", 1),
		OCRDpi:         getEnvInt("OCR_DPI", 300),
		OCRMaxPages:    getEnvInt("OCR_MAX_PAGES", 3),
		OCRTimeout:     getEnvDuration("OCR_TIMEOUT", 60*time.Second),
		OCRStoreText:   getEnvBool("OCR_STORE_TEXT", true),
		TesseractCmd:   getEnv("TESSERACT_CMD", "tesseract"),

		StoreMaxAttempts: getEnvInt("STORE_MAX_ATTEMPTS", 3),
		StoreRetryDelay:  getEnvDuration("STORE_RETRY_DELAY", 300*time.Millisecond),

		WorkerMetricsPort: getEnv("WORKER_METRICS_PORT", "9091"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: %s=%q is not a boolean, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: %s=%q is not a duration, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return d
}
