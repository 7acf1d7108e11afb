package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Kaleem/internal/apperr"
	"github.com/markdave123-py/Kaleem/internal/core"
	objectclient "github.com/markdave123-py/Kaleem/internal/core/object-client"
	"github.com/markdave123-py/Kaleem/internal/core/vectorindex"
	"github.com/markdave123-py/Kaleem/internal/logger"
	"github.com/markdave123-py/Kaleem/internal/models"
	"golang.org/x/sync/errgroup"
)

// DocumentIngestor moves an uploaded document through
// extract -> blob -> signed URL -> source+chunks -> vector index.
//
// db:        relational store for sources and chunks.
// obj:       blob store holding the raw upload.
// vec:       per-tenant vector collections.
// embedder:  text -> vector.
// extractor: bytes -> text.
// jobs:      in-memory queue of source ids to reindex.
type DocumentIngestor struct {
	db        core.DbClient
	obj       core.ObjectClient
	vec       core.VectorIndex
	embedder  core.EmbeddingProvider
	extractor core.TextExtractor
	cfg       *IngestConfig
	log       *logger.Logger

	locks   *tenantLocks
	jobs    chan string
	workers *errgroup.Group

	now    func() time.Time
	newUID func() string
}

var _ Ingestor = (*DocumentIngestor)(nil)

func NewDocumentIngestor(
	db core.DbClient,
	obj core.ObjectClient,
	vec core.VectorIndex,
	emb core.EmbeddingProvider,
	extractor core.TextExtractor,
	cfg *IngestConfig,
	log *logger.Logger,
) *DocumentIngestor {
	if cfg == nil {
		cfg = &IngestConfig{}
	}
	if log == nil {
		log = logger.Nop()
	}
	cfg = cfg.withDefaults()
	return &DocumentIngestor{
		db: db, obj: obj, vec: vec, embedder: emb, extractor: extractor,
		cfg:    cfg,
		log:    log.With("service", "DocumentIngestor"),
		locks:  newTenantLocks(),
		jobs:   make(chan string, cfg.QueueSize),
		now:    func() time.Time { return time.Now().UTC() },
		newUID: uuid.NewString,
	}
}

// Ingest runs the upload protocol. Any failure before the source row commits
// aborts with nothing persisted; an indexing failure is reported through
// IngestResult.IndexErr and the source status.
func (i *DocumentIngestor) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	log := i.log.With("company_uid", req.CompanyUID, "filename", req.Filename)

	// 1. Extract. Nothing durable exists yet.
	text, err := i.extractor.Extract(req.Data, req.MediaType)
	if err != nil {
		log.Warn("extraction failed", "step", "extract", "media_type", req.MediaType, "error", err)
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Wrapf(apperr.KindExtractionFailed, "extract", err, "could not read file content")
		}
		return nil, err
	}
	log.Debug("text extracted", "step", "extract", "chars", len(text))

	// 2. Store blob.
	key := objectclient.ObjectKey(req.CompanyUID, req.Filename)
	blobCtx, cancel := withTimeout(ctx, i.cfg.BlobTimeout)
	uploaded, err := i.obj.Upload(blobCtx, key, req.Data, NormalizeMediaType(req.MediaType))
	cancel()
	if err != nil {
		log.Error("blob upload failed", "step", "upload", "key", key, "reason", objectclient.ReasonOf(err), "error", err)
		return nil, apperr.Wrapf(apperr.KindBlobUploadFailed, "upload", err, "failed to store file")
	}
	log.Info("blob stored", "step", "upload", "key", uploaded.Key, "bytes", uploaded.Size)

	// 3. Mint signed URL.
	signCtx, cancel := withTimeout(ctx, i.cfg.BlobTimeout)
	signedURL, err := i.obj.SignedURL(signCtx, key, i.cfg.SignedURLTTL)
	cancel()
	if err != nil {
		log.Error("signed url failed", "step", "sign", "key", key, "reason", objectclient.ReasonOf(err), "error", err)
		i.compensateBlob(ctx, log, key)
		return nil, apperr.Wrapf(apperr.KindSignedURLFailed, "sign", err, "failed to create file link")
	}

	// 4-5. Persist source and chunks in one transaction.
	src, chunks, err := i.persist(ctx, req, key, signedURL, text)
	if err != nil {
		log.Error("persist failed", "step", "persist", "key", key, "error", err)
		i.compensateBlob(ctx, log, key)
		return nil, err
	}
	log = log.With("source_uid", src.UID)
	log.Info("source committed", "step", "persist", "chunks", len(chunks))

	// 6. Vector indexing. Failures leave the committed rows in place.
	result := &IngestResult{Source: src, Chunks: len(chunks)}
	if err := i.indexSource(ctx, src, chunks, i.cfg.RecreateCollection); err != nil {
		log.Error("indexing failed", "step", "index", "error", err)
		result.IndexErr = err
	}

	// 7. Return the committed source.
	return result, nil
}

func (i *DocumentIngestor) persist(ctx context.Context, req IngestRequest, key, signedURL, text string) (*models.TrainingDataSource, []models.TrainingDataChunk, error) {
	dbCtx, cancel := withTimeout(ctx, i.cfg.DBTimeout)
	defer cancel()

	company, err := i.db.GetCompanyByID(dbCtx, req.CompanyUID)
	if err != nil {
		return nil, nil, apperr.Wrapf(apperr.KindPersistenceFailed, "persist", err, "failed to save file")
	}
	if company == nil {
		return nil, nil, apperr.NotFound("company", req.CompanyUID)
	}

	userUID, err := i.resolveUploader(dbCtx, req)
	if err != nil {
		return nil, nil, apperr.Wrapf(apperr.KindPersistenceFailed, "persist", err, "failed to save file")
	}

	now := i.now()
	src := &models.TrainingDataSource{
		UID:        i.newUID(),
		Name:       req.Filename,
		Type:       NormalizeMediaType(req.MediaType),
		FilePath:   key,
		SourceURL:  &signedURL,
		UserUID:    userUID,
		CompanyUID: company.UID,
		Status:     models.StatusUploaded,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	pieces := ChunkText(text, i.cfg.MaxTokens)
	chunks := make([]models.TrainingDataChunk, len(pieces))
	for idx, content := range pieces {
		chunks[idx] = models.TrainingDataChunk{
			UID:        i.newUID(),
			SourceUID:  src.UID,
			Content:    content,
			ChunkIndex: idx,
			TokenCount: CountTokens(content),
			CreatedAt:  now,
		}
	}

	if err := i.db.CreateSourceWithChunks(dbCtx, src, chunks); err != nil {
		return nil, nil, apperr.Wrapf(apperr.KindPersistenceFailed, "persist", err, "failed to save file")
	}
	return src, chunks, nil
}

// resolveUploader maps token claims to a user row; an unknown user is stored as NULL.
func (i *DocumentIngestor) resolveUploader(ctx context.Context, req IngestRequest) (*string, error) {
	var (
		user *models.User
		err  error
	)
	if req.UserUID != "" {
		if user, err = i.db.GetUserByID(ctx, req.UserUID); err != nil {
			return nil, err
		}
	}
	if user == nil && req.UserEmail != "" {
		if user, err = i.db.GetUserByEmail(ctx, req.UserEmail); err != nil {
			return nil, err
		}
	}
	if user == nil {
		if req.UserUID != "" || req.UserEmail != "" {
			i.log.Warn("uploader not found, storing source without user", "user_uid", req.UserUID, "user_email", req.UserEmail)
		}
		return nil, nil
	}
	uid := user.UID
	return &uid, nil
}

// Reindex re-runs vector indexing for a committed source from its chunk rows.
// It never recreates the collection.
func (i *DocumentIngestor) Reindex(ctx context.Context, sourceUID string) error {
	dbCtx, cancel := withTimeout(ctx, i.cfg.DBTimeout)
	defer cancel()

	src, err := i.db.GetSourceByID(dbCtx, sourceUID)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistenceFailed, "reindex", err)
	}
	if src == nil {
		return apperr.NotFound("source", sourceUID)
	}
	chunks, err := i.db.GetChunksBySource(dbCtx, sourceUID)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistenceFailed, "reindex", err)
	}
	return i.indexSource(ctx, src, chunks, false)
}

// indexSource holds the tenant lock for the whole of step 6 and records the
// outcome in the source status. A source deleted before the lock was taken is
// skipped; one deleted while indexing has its points removed by
// DeleteSourcePoints, which waits for the same lock.
func (i *DocumentIngestor) indexSource(ctx context.Context, src *models.TrainingDataSource, chunks []models.TrainingDataChunk, recreate bool) error {
	unlock := i.locks.Lock(src.CompanyUID)
	defer unlock()

	dbCtx, cancel := withTimeout(ctx, i.cfg.DBTimeout)
	current, err := i.db.GetSourceByID(dbCtx, src.UID)
	cancel()
	if err != nil {
		i.setStatus(ctx, src, models.StatusIndexingFailed)
		return apperr.Wrapf(apperr.KindPersistenceFailed, "index", err, "failed to load source %s", src.UID)
	}
	if current == nil {
		i.log.Info("source deleted before indexing, skipping", "source_uid", src.UID, "company_uid", src.CompanyUID)
		return nil
	}

	i.setStatus(ctx, src, models.StatusProcessing)
	if err := i.indexChunks(ctx, src, chunks, recreate); err != nil {
		i.setStatus(ctx, src, models.StatusIndexingFailed)
		return err
	}
	i.setStatus(ctx, src, models.StatusProcessed)
	return nil
}

func (i *DocumentIngestor) indexChunks(ctx context.Context, src *models.TrainingDataSource, chunks []models.TrainingDataChunk, recreate bool) error {
	log := i.log.With("source_uid", src.UID, "company_uid", src.CompanyUID, "step", "index")
	collection := vectorindex.CollectionName(i.cfg.CollectionPrefix, src.CompanyUID)

	vecCtx, cancel := withTimeout(ctx, i.cfg.VectorTimeout)
	if recreate {
		err := i.vec.RecreateCollection(vecCtx, collection, i.cfg.EmbedDim, i.cfg.Distance)
		cancel()
		if err != nil {
			return apperr.Wrapf(apperr.KindVectorUpsertFailed, "index", err, "failed to recreate collection %s", collection)
		}
		log.Warn("collection recreated, earlier points discarded", "collection", collection)
	} else {
		err := i.vec.EnsureCollection(vecCtx, collection, i.cfg.EmbedDim, i.cfg.Distance)
		cancel()
		if err != nil {
			return apperr.Wrapf(apperr.KindVectorUpsertFailed, "index", err, "failed to prepare collection %s", collection)
		}
	}

	if len(chunks) == 0 {
		log.Info("no chunks to index")
		return nil
	}

	texts := make([]string, len(chunks))
	for idx, ch := range chunks {
		texts[idx] = ch.Content
	}

	embCtx, cancel := withTimeout(ctx, i.cfg.EmbedTimeout)
	vectors, err := i.embedder.EmbedTexts(embCtx, texts)
	cancel()
	if err != nil {
		return apperr.Wrapf(apperr.KindEmbeddingFailed, "index", err, "failed to embed %d chunks", len(texts))
	}
	if err := i.checkVectors(vectors, len(texts)); err != nil {
		return err
	}

	points := make([]models.VectorPoint, len(chunks))
	embeddings := make(map[int][]float32, len(chunks))
	for idx, ch := range chunks {
		points[idx] = models.VectorPoint{
			ID:     vectorindex.PointID(src.UID, ch.ChunkIndex),
			Vector: vectors[idx],
			Payload: models.ChunkPayload{
				Text:       ch.Content,
				ChunkIndex: ch.ChunkIndex,
				SourceUID:  src.UID,
				CompanyUID: src.CompanyUID,
			},
		}
		embeddings[ch.ChunkIndex] = vectors[idx]
	}

	vecCtx, cancel = withTimeout(ctx, i.cfg.VectorTimeout)
	err = i.vec.Upsert(vecCtx, collection, points)
	cancel()
	if err != nil {
		return apperr.Wrapf(apperr.KindVectorUpsertFailed, "index", err, "failed to upsert %d points", len(points))
	}
	log.Info("points upserted", "collection", collection, "points", len(points))

	dbCtx, cancel := withTimeout(ctx, i.cfg.DBTimeout)
	defer cancel()
	if err := i.db.SetChunkEmbeddings(dbCtx, src.UID, embeddings); err != nil {
		log.Warn("storing chunk embeddings failed", "error", err)
	}
	return nil
}

func (i *DocumentIngestor) checkVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return apperr.New(apperr.KindEmbeddingFailed, "index",
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), want))
	}
	if i.cfg.EmbedDim <= 0 {
		return nil
	}
	for idx, v := range vectors {
		if len(v) != i.cfg.EmbedDim {
			return apperr.New(apperr.KindEmbeddingFailed, "index",
				fmt.Sprintf("vector %d has dimension %d, expected %d", idx, len(v), i.cfg.EmbedDim))
		}
	}
	return nil
}

// DeleteSourcePoints removes the vector points of a deleted source. It takes
// the tenant lock so an upsert already in flight for the source lands first.
func (i *DocumentIngestor) DeleteSourcePoints(ctx context.Context, src *models.TrainingDataSource, chunkCount int) error {
	if chunkCount <= 0 {
		return nil
	}
	unlock := i.locks.Lock(src.CompanyUID)
	defer unlock()

	ids := make([]string, chunkCount)
	for idx := range ids {
		ids[idx] = vectorindex.PointID(src.UID, idx)
	}
	vecCtx, cancel := withTimeout(ctx, i.cfg.VectorTimeout)
	defer cancel()
	if err := i.vec.DeletePoints(vecCtx, vectorindex.CollectionName(i.cfg.CollectionPrefix, src.CompanyUID), ids); err != nil {
		return apperr.Wrapf(apperr.KindVectorUpsertFailed, "delete_points", err, "failed to delete %d points", len(ids))
	}
	return nil
}

// setStatus records status on src and in the store; store failures are only
// logged. The write outlives a cancelled request so the outcome is recorded.
func (i *DocumentIngestor) setStatus(ctx context.Context, src *models.TrainingDataSource, status string) {
	dbCtx, cancel := withTimeout(context.WithoutCancel(ctx), i.cfg.DBTimeout)
	defer cancel()
	if err := i.db.UpdateSourceStatus(dbCtx, src.UID, status); err != nil {
		i.log.Warn("status update failed", "source_uid", src.UID, "status", status, "error", err)
		return
	}
	src.Status = status
	src.UpdatedAt = i.now()
}

func (i *DocumentIngestor) compensateBlob(ctx context.Context, log *logger.Logger, key string) {
	// The request context may already be done; cleanup still gets its own budget.
	delCtx, cancel := withTimeout(context.WithoutCancel(ctx), i.cfg.BlobTimeout)
	defer cancel()
	if err := i.obj.Delete(delCtx, key); err != nil {
		log.Error("blob cleanup failed, object orphaned", "step", "compensate", "key", key, "error", err)
		return
	}
	log.Info("blob removed after failed ingestion", "step", "compensate", "key", key)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
