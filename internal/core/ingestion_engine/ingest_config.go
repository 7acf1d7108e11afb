package ingestion_engine

import (
	"time"

	"github.com/markdave123-py/Kaleem/internal/config"
)

// IngestConfig tunes the ingestion pipeline.
//
// MaxTokens:          words per chunk.
// EmbedDim:           expected embedding dimensionality; also the collection vector size.
// Distance:           vector distance metric for new collections.
// CollectionPrefix:   tenant collection name prefix.
// SignedURLTTL:       lifetime of the retrieval URL minted at upload.
// RecreateCollection: drop the tenant collection before each upload's upsert (legacy).
// *Timeout:           per-step bounds; zero disables the bound.
// QueueSize:          buffered reindex jobs.
type IngestConfig struct {
	MaxTokens          int
	EmbedDim           int
	Distance           string
	CollectionPrefix   string
	SignedURLTTL       time.Duration
	RecreateCollection bool

	BlobTimeout   time.Duration
	DBTimeout     time.Duration
	EmbedTimeout  time.Duration
	VectorTimeout time.Duration

	QueueSize int
}

func NewIngestConfig(cfg *config.Config) *IngestConfig {
	return &IngestConfig{
		MaxTokens:          cfg.ChunkMaxTokens,
		EmbedDim:           cfg.EmbedDim,
		Distance:           cfg.VectorDistance,
		CollectionPrefix:   cfg.CollectionPrefix,
		SignedURLTTL:       cfg.SignedURLTTL,
		RecreateCollection: cfg.RecreateCollectionOnUpload,
		BlobTimeout:        cfg.BlobTimeout,
		DBTimeout:          cfg.DBTimeout,
		EmbedTimeout:       cfg.EmbedTimeout,
		VectorTimeout:      cfg.VectorTimeout,
		QueueSize:          64,
	}
}

func (c *IngestConfig) withDefaults() *IngestConfig {
	out := *c
	if out.MaxTokens <= 0 {
		out.MaxTokens = DefaultMaxTokens
	}
	if out.Distance == "" {
		out.Distance = "Cosine"
	}
	if out.SignedURLTTL <= 0 {
		out.SignedURLTTL = time.Hour
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 64
	}
	return &out
}
