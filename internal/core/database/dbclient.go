package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/markdave123-py/Kaleem/internal/config"
	"github.com/markdave123-py/Kaleem/internal/core"
	"github.com/markdave123-py/Kaleem/internal/core/database/memstore"
	"github.com/markdave123-py/Kaleem/internal/models"
)

// NewDbClient picks the relational store from DATABASE_URL.
// "memory://" selects the in-process store; anything else is handed to pgx.
// A memory URL may pre-register tenants: memory://?companies=acme,globex.
func NewDbClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if IsMemoryURL(cfg.DatabaseURL) {
		return newMemoryStore(cfg.DatabaseURL)
	}
	return NewDatabaseClient(ctx, cfg)
}

func IsMemoryURL(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, config.MemoryBackend+"://")
}

func newMemoryStore(databaseURL string) (*memstore.Store, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse memory database url: %w", err)
	}
	store := memstore.New()
	for _, uid := range strings.Split(u.Query().Get("companies"), ",") {
		if uid = strings.TrimSpace(uid); uid != "" {
			store.PutCompany(models.Company{UID: uid, Name: uid, IsActive: true})
		}
	}
	return store, nil
}
