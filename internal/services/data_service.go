package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/markdave123-py/Kaleem/internal/apperr"
	"github.com/markdave123-py/Kaleem/internal/config"
	"github.com/markdave123-py/Kaleem/internal/core"
	"github.com/markdave123-py/Kaleem/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/Kaleem/internal/core/object-client"
	"github.com/markdave123-py/Kaleem/internal/core/vectorindex"
	"github.com/markdave123-py/Kaleem/internal/logger"
	"github.com/markdave123-py/Kaleem/internal/models"
)

const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 50
)

// TrainingDataService serves reads, patches and deletes of training data
// sources and hands uploads to the ingestor.
type TrainingDataService struct {
	db       core.DbClient
	storage  core.ObjectClient
	vectors  core.VectorIndex
	embedder core.EmbeddingProvider
	ingestor ingestion_engine.Ingestor
	cfg      *config.Config
	log      *logger.Logger
}

func NewTrainingDataService(
	db core.DbClient,
	storage core.ObjectClient,
	vectors core.VectorIndex,
	embedder core.EmbeddingProvider,
	ingestor ingestion_engine.Ingestor,
	cfg *config.Config,
	log *logger.Logger,
) *TrainingDataService {
	if log == nil {
		log = logger.Nop()
	}
	return &TrainingDataService{
		db: db, storage: storage, vectors: vectors, embedder: embedder, ingestor: ingestor,
		cfg: cfg,
		log: log.With("service", "TrainingDataService"),
	}
}

// Upload runs the ingestion protocol for one file.
func (s *TrainingDataService) Upload(ctx context.Context, req ingestion_engine.IngestRequest) (*ingestion_engine.IngestResult, error) {
	if strings.TrimSpace(req.CompanyUID) == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "upload", "company id is required")
	}
	if len(req.Data) == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "upload", "file is empty")
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(req.Data)) > s.cfg.MaxUploadBytes {
		return nil, apperr.New(apperr.KindTooLarge, "upload",
			fmt.Sprintf("file exceeds the %d byte limit", s.cfg.MaxUploadBytes))
	}
	return s.ingestor.Ingest(ctx, req)
}

// ListByCompany returns the tenant's sources, newest first.
func (s *TrainingDataService) ListByCompany(ctx context.Context, companyUID string) ([]models.TrainingDataSource, error) {
	dbCtx, cancel := withTimeout(ctx, s.cfg.DBTimeout)
	defer cancel()

	if err := s.requireCompany(dbCtx, companyUID); err != nil {
		return nil, err
	}
	sources, err := s.db.ListSourcesByCompany(dbCtx, companyUID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "list_sources", err)
	}
	return sources, nil
}

func (s *TrainingDataService) Get(ctx context.Context, sourceUID string) (*models.TrainingDataSource, error) {
	dbCtx, cancel := withTimeout(ctx, s.cfg.DBTimeout)
	defer cancel()
	return s.getSource(dbCtx, sourceUID)
}

// Update applies a partial patch of name and/or status. A missing source is
// NotFound whatever the patch; an empty patch returns the source unchanged.
func (s *TrainingDataService) Update(ctx context.Context, sourceUID string, patch models.TrainingDataSourceUpdate) (*models.TrainingDataSource, error) {
	dbCtx, cancel := withTimeout(ctx, s.cfg.DBTimeout)
	defer cancel()

	current, err := s.getSource(dbCtx, sourceUID)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return current, nil
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperr.New(apperr.KindInvalidInput, "update_source", "name must not be empty")
		}
		patch.Name = &name
	}
	if patch.Status != nil && !models.ValidStatus(*patch.Status) {
		return nil, apperr.New(apperr.KindInvalidInput, "update_source", fmt.Sprintf("invalid status: %s", *patch.Status))
	}

	src, err := s.db.UpdateSource(dbCtx, sourceUID, patch)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "update_source", err)
	}
	if src == nil {
		return nil, apperr.NotFound("file", sourceUID)
	}
	return src, nil
}

// Delete removes the source and its chunks, then its vector points and,
// when configured, its blob. Only the relational delete can fail the call.
func (s *TrainingDataService) Delete(ctx context.Context, sourceUID string) error {
	dbCtx, cancel := withTimeout(ctx, s.cfg.DBTimeout)
	src, err := s.getSource(dbCtx, sourceUID)
	if err != nil {
		cancel()
		return err
	}
	chunkCount, err := s.db.CountChunksBySource(dbCtx, sourceUID)
	if err != nil {
		cancel()
		return apperr.Wrap(apperr.KindPersistenceFailed, "delete_source", err)
	}
	deleted, err := s.db.DeleteSource(dbCtx, sourceUID)
	cancel()
	if err != nil {
		return apperr.Wrap(apperr.KindPersistenceFailed, "delete_source", err)
	}
	if !deleted {
		return apperr.NotFound("file", sourceUID)
	}

	log := s.log.With("source_uid", src.UID, "company_uid", src.CompanyUID)
	log.Info("source deleted", "chunks", chunkCount)

	if err := s.ingestor.DeleteSourcePoints(context.WithoutCancel(ctx), src, chunkCount); err != nil {
		log.Warn("deleting vector points failed", "points", chunkCount, "error", err)
	}

	if s.cfg.DeleteBlobOnSourceDelete && src.FilePath != "" {
		blobCtx, cancel := withTimeout(context.WithoutCancel(ctx), s.cfg.BlobTimeout)
		err := s.storage.Delete(blobCtx, src.FilePath)
		cancel()
		if err != nil {
			log.Warn("deleting blob failed", "key", src.FilePath, "error", err)
		}
	}
	return nil
}

// SignedURL mints a fresh retrieval link for the source's blob.
func (s *TrainingDataService) SignedURL(ctx context.Context, sourceUID string) (string, time.Duration, error) {
	src, err := s.Get(ctx, sourceUID)
	if err != nil {
		return "", 0, err
	}
	ttl := s.cfg.SignedURLTTL
	blobCtx, cancel := withTimeout(ctx, s.cfg.BlobTimeout)
	defer cancel()
	u, err := s.storage.SignedURL(blobCtx, src.FilePath, ttl)
	if err != nil {
		if objectclient.ReasonOf(err) == objectclient.ReasonNotFound {
			return "", 0, apperr.Wrapf(apperr.KindNotFound, "signed_url", err, "stored file missing for source: %s", sourceUID)
		}
		return "", 0, apperr.Wrapf(apperr.KindSignedURLFailed, "signed_url", err, "failed to create file link")
	}
	return u, ttl, nil
}

// Chunks returns the source's chunks in order, without embeddings.
func (s *TrainingDataService) Chunks(ctx context.Context, sourceUID string) ([]models.TrainingDataChunk, error) {
	dbCtx, cancel := withTimeout(ctx, s.cfg.DBTimeout)
	defer cancel()
	if _, err := s.getSource(dbCtx, sourceUID); err != nil {
		return nil, err
	}
	chunks, err := s.db.GetChunksBySource(dbCtx, sourceUID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "list_chunks", err)
	}
	for i := range chunks {
		chunks[i].Embedding = nil
	}
	return chunks, nil
}

// Reindex queues the source for a background re-run of vector indexing.
func (s *TrainingDataService) Reindex(ctx context.Context, sourceUID string) (*models.TrainingDataSource, error) {
	src, err := s.Get(ctx, sourceUID)
	if err != nil {
		return nil, err
	}
	if err := s.ingestor.Enqueue(ctx, sourceUID); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "reindex", err)
	}
	return src, nil
}

// Search embeds query and returns the closest chunks of the tenant.
func (s *TrainingDataService) Search(ctx context.Context, companyUID, query string, limit int) ([]models.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "search", "query parameter q is required")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	dbCtx, cancel := withTimeout(ctx, s.cfg.DBTimeout)
	err := s.requireCompany(dbCtx, companyUID)
	cancel()
	if err != nil {
		return nil, err
	}

	embCtx, cancel := withTimeout(ctx, s.cfg.EmbedTimeout)
	vecs, err := s.embedder.EmbedTexts(embCtx, []string{query})
	cancel()
	if err != nil {
		return nil, apperr.Wrapf(apperr.KindEmbeddingFailed, "search", err, "failed to embed query")
	}
	if len(vecs) != 1 || (s.cfg.EmbedDim > 0 && len(vecs[0]) != s.cfg.EmbedDim) {
		return nil, apperr.New(apperr.KindEmbeddingFailed, "search", "embedder returned an unexpected vector")
	}

	vecCtx, cancel := withTimeout(ctx, s.cfg.VectorTimeout)
	defer cancel()
	hits, err := s.vectors.Search(vecCtx, vectorindex.CollectionName(s.cfg.CollectionPrefix, companyUID), vecs[0], limit,
		map[string]string{"company_uid": companyUID})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindVectorSearchFailed, "search", err)
	}
	return hits, nil
}

func (s *TrainingDataService) requireCompany(ctx context.Context, companyUID string) error {
	company, err := s.db.GetCompanyByID(ctx, companyUID)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistenceFailed, "get_company", err)
	}
	if company == nil {
		return apperr.NotFound("company", companyUID)
	}
	return nil
}

func (s *TrainingDataService) getSource(ctx context.Context, sourceUID string) (*models.TrainingDataSource, error) {
	src, err := s.db.GetSourceByID(ctx, sourceUID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "get_source", err)
	}
	if src == nil {
		return nil, apperr.NotFound("file", sourceUID)
	}
	return src, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
