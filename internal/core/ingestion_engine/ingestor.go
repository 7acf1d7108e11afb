package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/Kaleem/internal/models"
)

// IngestRequest is one uploaded file on its way into the pipeline.
type IngestRequest struct {
	CompanyUID string
	UserUID    string // from the access token; may be empty
	UserEmail  string // fallback uploader lookup
	Filename   string
	MediaType  string
	Data       []byte
}

// IngestResult is the committed source. IndexErr is set when vector indexing
// failed after the source and chunks were committed.
type IngestResult struct {
	Source   *models.TrainingDataSource
	Chunks   int
	IndexErr error
}

type Ingestor interface {
	Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error)
	Reindex(ctx context.Context, sourceUID string) error
	DeleteSourcePoints(ctx context.Context, src *models.TrainingDataSource, chunkCount int) error

	Start(ctx context.Context, numWorkers int)
	Enqueue(ctx context.Context, sourceUID string) error
	Wait() error
}
