// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/markdave123-py/Kaleem/internal/api/handlers"
	"github.com/markdave123-py/Kaleem/internal/config"
	"github.com/markdave123-py/Kaleem/internal/core"
	db "github.com/markdave123-py/Kaleem/internal/core/database"
	"github.com/markdave123-py/Kaleem/internal/core/ingestion_engine"
	"github.com/markdave123-py/Kaleem/internal/core/llm"
	objectclient "github.com/markdave123-py/Kaleem/internal/core/object-client"
	"github.com/markdave123-py/Kaleem/internal/core/vectorindex"
	"github.com/markdave123-py/Kaleem/internal/logger"
	"github.com/markdave123-py/Kaleem/internal/services"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	VectorIndex  core.VectorIndex
	DocProcessor ingestion_engine.Ingestor
	Server       *Server
	Log          *logger.Logger

	embedCloser io.Closer
}

func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDbClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("database initialized and ready", "backend", backendName(cfg.DatabaseURL))

	objClient, err := objectclient.NewObjectClient(appCtx, cfg)
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}
	log.Info("object client initialized and ready", "backend", cfg.BlobBackend, "bucket", cfg.BucketName)

	vectors := newVectorIndex(cfg)
	log.Info("vector index ready", "backend", cfg.VectorBackend)

	embedder, closer, err := llm.NewEmbeddingProvider(appCtx, cfg)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	extractor := ingestion_engine.NewDocumentTextExtractor()
	ingestor := ingestion_engine.NewDocumentIngestor(dbClient, objClient, vectors, embedder, extractor,
		ingestion_engine.NewIngestConfig(cfg), log)

	svc := services.NewTrainingDataService(dbClient, objClient, vectors, embedder, ingestor, cfg, log)
	router := NewRouter(cfg, handlers.NewDataHandler(svc, cfg, log))

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		VectorIndex:  vectors,
		DocProcessor: ingestor,
		Server:       NewServer(cfg, router, log),
		Log:          log,
		embedCloser:  closer,
	}, nil
}

func newVectorIndex(cfg *config.Config) core.VectorIndex {
	if cfg.VectorBackend == config.MemoryBackend {
		return vectorindex.NewMemoryIndex()
	}
	return vectorindex.NewQdrantIndex(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.VectorTimeout)
}

func backendName(databaseURL string) string {
	if db.IsMemoryURL(databaseURL) {
		return config.MemoryBackend
	}
	return "postgres"
}

func (a *App) Close() {
	if a.embedCloser != nil {
		if err := a.embedCloser.Close(); err != nil {
			a.Log.Warn("closing embedder failed", "error", err)
		}
	}
	if a.DBClient != nil {
		if err := a.DBClient.Close(); err != nil {
			a.Log.Warn("closing database failed", "error", err)
		}
	}
}
