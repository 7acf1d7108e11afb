package core

import (
	"context"
	"time"

	"github.com/markdave123-py/Kaleem/internal/models"
)

// DbClient defines all persistence operations the services need.
// Getters return (nil, nil) when the row does not exist.
type DbClient interface {
	GetCompanyByID(ctx context.Context, uid string) (*models.Company, error)
	GetUserByID(ctx context.Context, uid string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// CreateSourceWithChunks writes the source row and all of its chunk rows
	// in one transaction; either everything is committed or nothing is.
	CreateSourceWithChunks(ctx context.Context, src *models.TrainingDataSource, chunks []models.TrainingDataChunk) error
	GetSourceByID(ctx context.Context, uid string) (*models.TrainingDataSource, error)
	ListSourcesByCompany(ctx context.Context, companyUID string) ([]models.TrainingDataSource, error)
	UpdateSource(ctx context.Context, uid string, patch models.TrainingDataSourceUpdate) (*models.TrainingDataSource, error)
	UpdateSourceStatus(ctx context.Context, uid string, status string) error
	// DeleteSource removes the source and its chunks; false when absent.
	DeleteSource(ctx context.Context, uid string) (bool, error)

	GetChunksBySource(ctx context.Context, sourceUID string) ([]models.TrainingDataChunk, error)
	CountChunksBySource(ctx context.Context, sourceUID string) (int, error)
	// SetChunkEmbeddings fills the embedding column of chunks that have none yet.
	SetChunkEmbeddings(ctx context.Context, sourceUID string, embeddings map[int][]float32) error

	Close() error
}

// UploadResult describes a stored blob.
type UploadResult struct {
	Key      string
	Location string
	Size     int64
}

// ObjectClient defines interactions with S3 or any S3-compatible object storage.
type ObjectClient interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (UploadResult, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// VectorIndex manages per-tenant collections of embedding points.
type VectorIndex interface {
	// EnsureCollection creates the collection when absent and leaves existing points alone.
	EnsureCollection(ctx context.Context, name string, size int, distance string) error
	// RecreateCollection drops and recreates the collection, discarding every point.
	RecreateCollection(ctx context.Context, name string, size int, distance string) error
	Upsert(ctx context.Context, collection string, points []models.VectorPoint) error
	DeletePoints(ctx context.Context, collection string, ids []string) error
	Search(ctx context.Context, collection string, vector []float32, limit int, filter map[string]string) ([]models.SearchHit, error)
}
