package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

const (
	schemaVersion = 1
	// bootstrapLockKey serializes schema setup across replicas starting together.
	bootstrapLockKey int64 = 0x6b616c65656d
)

// EnsureBootstrapped applies scripts/initdb.sql unless kaleem_meta already
// records schemaVersion. Script and version row commit together.
func EnsureBootstrapped(ctx context.Context, db *sql.DB) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	tx, err := db.BeginTx(ctxBoot, nil)
	if err != nil {
		return fmt.Errorf("begin bootstrap tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctxBoot, `SELECT pg_advisory_xact_lock($1)`, bootstrapLockKey); err != nil {
		return fmt.Errorf("bootstrap lock: %w", err)
	}

	current, err := appliedVersion(ctxBoot, tx)
	if err != nil {
		return err
	}
	if !needsBootstrap(current) {
		return nil
	}

	script, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
	}
	if _, err := tx.ExecContext(ctxBoot, string(script)); err != nil {
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if _, err := tx.ExecContext(ctxBoot,
		`INSERT INTO kaleem_meta (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}

// appliedVersion returns the highest recorded schema version, 0 when the
// meta table does not exist yet.
func appliedVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT to_regclass('kaleem_meta') IS NOT NULL`).Scan(&exists); err != nil {
		return 0, fmt.Errorf("meta table check failed: %w", err)
	}
	if !exists {
		return 0, nil
	}
	var v sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(version) FROM kaleem_meta`).Scan(&v); err != nil {
		return 0, fmt.Errorf("meta version check failed: %w", err)
	}
	return int(v.Int64), nil
}

func needsBootstrap(applied int) bool {
	return applied < schemaVersion
}
