package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/Kaleem/internal/config"
	"github.com/markdave123-py/Kaleem/internal/core"
	"github.com/markdave123-py/Kaleem/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Pool is shared process-wide; each request takes its own connection or transaction.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// buildDSN appends verify-ca SSL params when a root certificate is configured.
func buildDSN(databaseURL, sslCertPath string) (string, error) {
	if sslCertPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(sslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", sslCertPath, err)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", sslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Companies and users are read-only here.

func (c *DatabaseClient) GetCompanyByID(ctx context.Context, uid string) (*models.Company, error) {
	const q = `
		SELECT uid, name, email, is_active, created_at, updated_at
		FROM companies WHERE uid = $1
	`
	var co models.Company
	err := c.db.QueryRowContext(ctx, q, uid).Scan(
		&co.UID, &co.Name, &co.Email, &co.IsActive, &co.CreatedAt, &co.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &co, nil
}

func (c *DatabaseClient) GetUserByID(ctx context.Context, uid string) (*models.User, error) {
	return c.getUser(ctx, `WHERE uid = $1`, uid)
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.getUser(ctx, `WHERE email = $1`, email)
}

func (c *DatabaseClient) getUser(ctx context.Context, where string, arg string) (*models.User, error) {
	q := `
		SELECT uid, username, email, first_name, last_name, created_at, updated_at
		FROM users ` + where
	var u models.User
	err := c.db.QueryRowContext(ctx, q, arg).Scan(
		&u.UID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Training data sources

const sourceColumns = `uid, name, type, COALESCE(file_path, ''), source_url, user_uid, company_uid, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*models.TrainingDataSource, error) {
	var (
		s         models.TrainingDataSource
		sourceURL sql.NullString
		userUID   sql.NullString
	)
	if err := row.Scan(
		&s.UID, &s.Name, &s.Type, &s.FilePath, &sourceURL, &userUID, &s.CompanyUID, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if sourceURL.Valid {
		s.SourceURL = &sourceURL.String
	}
	if userUID.Valid {
		s.UserUID = &userUID.String
	}
	return &s, nil
}

// CreateSourceWithChunks inserts the source and its chunks in a single transaction.
func (c *DatabaseClient) CreateSourceWithChunks(ctx context.Context, src *models.TrainingDataSource, chunks []models.TrainingDataChunk) error {
	if src == nil {
		return errors.New("nil source")
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	const insertSource = `
		INSERT INTO training_data_sources
			(uid, company_uid, user_uid, type, name, source_url, file_path, status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := tx.ExecContext(ctx, insertSource,
		src.UID, src.CompanyUID, src.UserUID, src.Type, src.Name, src.SourceURL, src.FilePath, src.Status, src.CreatedAt, src.UpdatedAt,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert source: %w", err)
	}

	if len(chunks) > 0 {
		const insertChunk = `
			INSERT INTO training_data_chunks
				(uid, source_uid, content, embedding, token_count, chunk_index, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		stmt, err := tx.PrepareContext(ctx, insertChunk)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("prepare chunk insert: %w", err)
		}
		defer stmt.Close()

		for i := range chunks {
			ch := &chunks[i]
			if _, err := stmt.ExecContext(ctx,
				ch.UID, ch.SourceUID, ch.Content, vectorArg(ch.Embedding), ch.TokenCount, ch.ChunkIndex, ch.CreatedAt,
			); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("insert chunk %d: %w", ch.ChunkIndex, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (c *DatabaseClient) GetSourceByID(ctx context.Context, uid string) (*models.TrainingDataSource, error) {
	q := `SELECT ` + sourceColumns + ` FROM training_data_sources WHERE uid = $1`
	s, err := scanSource(c.db.QueryRowContext(ctx, q, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *DatabaseClient) ListSourcesByCompany(ctx context.Context, companyUID string) ([]models.TrainingDataSource, error) {
	q := `
		SELECT ` + sourceColumns + `
		FROM training_data_sources
		WHERE company_uid = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, companyUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.TrainingDataSource{}
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// UpdateSource applies the non-nil fields of patch and returns the updated row.
func (c *DatabaseClient) UpdateSource(ctx context.Context, uid string, patch models.TrainingDataSourceUpdate) (*models.TrainingDataSource, error) {
	q := `
		UPDATE training_data_sources
		SET name = COALESCE($2, name),
		    status = COALESCE($3, status),
		    updated_at = now()
		WHERE uid = $1
		RETURNING ` + sourceColumns
	s, err := scanSource(c.db.QueryRowContext(ctx, q, uid, patch.Name, patch.Status))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *DatabaseClient) UpdateSourceStatus(ctx context.Context, uid string, status string) error {
	const q = `
		UPDATE training_data_sources
		SET status = $2, updated_at = now()
		WHERE uid = $1
	`
	res, err := c.db.ExecContext(ctx, q, uid, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("source not found: %s", uid)
	}
	return nil
}

// DeleteSource removes chunks and the source row together.
func (c *DatabaseClient) DeleteSource(ctx context.Context, uid string) (bool, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM training_data_chunks WHERE source_uid = $1`, uid); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("delete chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM training_data_sources WHERE uid = $1`, uid)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("delete source: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		_ = tx.Rollback()
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// Training data chunks

func (c *DatabaseClient) GetChunksBySource(ctx context.Context, sourceUID string) ([]models.TrainingDataChunk, error) {
	const q = `
		SELECT uid, source_uid, content, embedding::text, COALESCE(token_count, 0), chunk_index, created_at
		FROM training_data_chunks
		WHERE source_uid = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, sourceUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.TrainingDataChunk{}
	for rows.Next() {
		var (
			ch  models.TrainingDataChunk
			emb sql.NullString
		)
		if err := rows.Scan(
			&ch.UID, &ch.SourceUID, &ch.Content, &emb, &ch.TokenCount, &ch.ChunkIndex, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		if emb.Valid {
			var vec pgvector.Vector
			if err := vec.Scan(emb.String); err != nil {
				return nil, fmt.Errorf("decode embedding for chunk %d: %w", ch.ChunkIndex, err)
			}
			ch.Embedding = vec.Slice()
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountChunksBySource(ctx context.Context, sourceUID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM training_data_chunks WHERE source_uid = $1`, sourceUID).Scan(&n)
	return n, err
}

// SetChunkEmbeddings writes embeddings only into chunks whose column is still NULL.
func (c *DatabaseClient) SetChunkEmbeddings(ctx context.Context, sourceUID string, embeddings map[int][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	const q = `
		UPDATE training_data_chunks
		SET embedding = $3
		WHERE source_uid = $1 AND chunk_index = $2 AND embedding IS NULL
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for idx, vec := range embeddings {
		if _, err := stmt.ExecContext(ctx, sourceUID, idx, pgvector.NewVector(vec)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("set embedding for chunk %d: %w", idx, err)
		}
	}
	return tx.Commit()
}

// vectorArg maps an empty embedding to SQL NULL.
func vectorArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}
