package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MemoryBackend selects the in-process implementation of a store.
const MemoryBackend = "memory"

type Config struct {
	AppEnv  string
	Port    string
	LogMode string

	DatabaseURL string
	SslCertPath string

	BlobBackend      string
	AwsAccessKey     string
	AwsSecretKey     string
	AwsRegion        string
	BucketName       string
	S3Endpoint       string
	S3ForcePathStyle bool

	VectorBackend              string
	QdrantURL                  string
	QdrantAPIKey               string
	CollectionPrefix           string
	VectorDistance             string
	RecreateCollectionOnUpload bool

	EmbedProvider string
	EmbedBaseURL  string
	EmbedAPIKey   string
	GeminiAPIKey  string
	EmbedModel    string
	EmbedDim      int

	JWTSecret          string
	CORSAllowedOrigins []string

	ChunkMaxTokens           int
	SignedURLTTL             time.Duration
	MaxUploadBytes           int64
	BlobTimeout              time.Duration
	DBTimeout                time.Duration
	EmbedTimeout             time.Duration
	VectorTimeout            time.Duration
	IngestWorkers            int
	DeleteBlobOnSourceDelete bool
}

// Error names the environment key that failed validation.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// LoadConfig loads the environment variables and returns a validated config.
func LoadConfig() (*Config, error) {

	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:  getEnv("APP_ENV", "development"),
		Port:    getEnv("PORT", "8080"),
		LogMode: getEnv("LOG_MODE", "dev"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),

		BlobBackend:      getEnv("BLOB_BACKEND", "s3"),
		AwsAccessKey:     getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:     getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:        getEnv("AWS_REGION", "us-east-2"),
		BucketName:       getEnv("BUCKET_NAME", "company-data"),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		S3ForcePathStyle: getEnvBool("S3_FORCE_PATH_STYLE", false),

		VectorBackend:              getEnv("VECTOR_BACKEND", "qdrant"),
		QdrantURL:                  getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:               getEnv("QDRANT_API_KEY", ""),
		CollectionPrefix:           getEnv("COLLECTION_PREFIX", "company_"),
		VectorDistance:             getEnv("VECTOR_DISTANCE", "Cosine"),
		RecreateCollectionOnUpload: getEnvBool("RECREATE_COLLECTION_ON_UPLOAD", false),

		EmbedProvider: getEnv("EMBED_PROVIDER", "openai"),
		EmbedBaseURL:  getEnv("EMBED_BASE_URL", "http://localhost:8081/v1"),
		EmbedAPIKey:   getEnv("EMBED_API_KEY", "none"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		EmbedModel:    getEnv("EMBED_MODEL", ""),
		EmbedDim:      getEnvInt("EMBED_DIM", 0),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),

		ChunkMaxTokens:           getEnvInt("CHUNK_MAX_TOKENS", 500),
		SignedURLTTL:             getEnvDuration("SIGNED_URL_TTL", time.Hour),
		MaxUploadBytes:           int64(getEnvInt("MAX_UPLOAD_BYTES", 50<<20)),
		BlobTimeout:              getEnvDuration("BLOB_TIMEOUT", 2*time.Minute),
		DBTimeout:                getEnvDuration("DB_TIMEOUT", 30*time.Second),
		EmbedTimeout:             getEnvDuration("EMBED_TIMEOUT", 2*time.Minute),
		VectorTimeout:            getEnvDuration("VECTOR_TIMEOUT", 30*time.Second),
		IngestWorkers:            getEnvInt("INGEST_WORKERS", 2),
		DeleteBlobOnSourceDelete: getEnvBool("DELETE_BLOB_ON_SOURCE_DELETE", true),
	}

	if _, set := os.LookupEnv("EMBED_DIM"); !set {
		cfg.EmbedDim = defaultEmbedDim(cfg.EmbedProvider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the keys each selected backend depends on.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return &Error{Key: "DATABASE_URL", Reason: "not set"}
	}
	if c.JWTSecret == "" {
		return &Error{Key: "JWT_SECRET", Reason: "not set"}
	}
	switch c.BlobBackend {
	case "s3":
		if c.BucketName == "" {
			return &Error{Key: "BUCKET_NAME", Reason: "not set"}
		}
		if c.AwsRegion == "" {
			return &Error{Key: "AWS_REGION", Reason: "not set"}
		}
	case MemoryBackend:
	default:
		return &Error{Key: "BLOB_BACKEND", Reason: fmt.Sprintf("unknown backend %q", c.BlobBackend)}
	}
	switch c.VectorBackend {
	case "qdrant":
		if c.QdrantURL == "" {
			return &Error{Key: "QDRANT_URL", Reason: "not set"}
		}
	case MemoryBackend:
	default:
		return &Error{Key: "VECTOR_BACKEND", Reason: fmt.Sprintf("unknown backend %q", c.VectorBackend)}
	}
	switch c.EmbedProvider {
	case "openai":
		if c.EmbedBaseURL == "" {
			return &Error{Key: "EMBED_BASE_URL", Reason: "not set"}
		}
		if c.EmbedModel == "" {
			c.EmbedModel = "sentence-transformers/all-MiniLM-L6-v2"
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return &Error{Key: "GEMINI_API_KEY", Reason: "not set"}
		}
		if c.EmbedModel == "" {
			c.EmbedModel = "text-embedding-004"
		}
	default:
		return &Error{Key: "EMBED_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", c.EmbedProvider)}
	}
	if c.EmbedDim <= 0 {
		return &Error{Key: "EMBED_DIM", Reason: "must be a positive integer"}
	}
	if c.ChunkMaxTokens <= 0 {
		return &Error{Key: "CHUNK_MAX_TOKENS", Reason: "must be a positive integer"}
	}
	if c.IngestWorkers < 1 {
		c.IngestWorkers = 1
	}
	return nil
}

// defaultEmbedDim is the output size of each provider's default model.
func defaultEmbedDim(provider string) int {
	if provider == "gemini" {
		return 768
	}
	return 384
}

// IsProduction reports whether internal error detail must stay out of responses.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.AppEnv) {
	case "prod", "production":
		return true
	}
	return false
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
