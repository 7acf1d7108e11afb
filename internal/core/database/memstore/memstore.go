// Package memstore is an in-process relational store used for local runs
// (DATABASE_URL=memory://) and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/markdave123-py/Kaleem/internal/core"
	"github.com/markdave123-py/Kaleem/internal/models"
)

type Store struct {
	mu        sync.RWMutex
	companies map[string]models.Company
	users     map[string]models.User
	sources   map[string]storedSource
	chunks    map[string][]models.TrainingDataChunk // by source uid, ordered by chunk_index
	seq       int64
}

type storedSource struct {
	src models.TrainingDataSource
	seq int64
}

var _ core.DbClient = (*Store)(nil)

func New() *Store {
	return &Store{
		companies: make(map[string]models.Company),
		users:     make(map[string]models.User),
		sources:   make(map[string]storedSource),
		chunks:    make(map[string][]models.TrainingDataChunk),
	}
}

// PutCompany seeds a company row.
func (s *Store) PutCompany(c models.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies[c.UID] = c
}

// PutUser seeds a user row.
func (s *Store) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UID] = u
}

func (s *Store) GetCompanyByID(_ context.Context, uid string) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[uid]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Store) GetUserByID(_ context.Context, uid string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[uid]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateSourceWithChunks(ctx context.Context, src *models.TrainingDataSource, chunks []models.TrainingDataChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if src == nil {
		return fmt.Errorf("nil source")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.companies[src.CompanyUID]; !ok {
		return fmt.Errorf("insert source: company %s does not exist", src.CompanyUID)
	}
	if _, dup := s.sources[src.UID]; dup {
		return fmt.Errorf("insert source: duplicate uid %s", src.UID)
	}
	seen := make(map[int]bool, len(chunks))
	for _, ch := range chunks {
		if seen[ch.ChunkIndex] {
			return fmt.Errorf("insert chunk %d: duplicate chunk index", ch.ChunkIndex)
		}
		seen[ch.ChunkIndex] = true
	}

	s.seq++
	s.sources[src.UID] = storedSource{src: copySource(*src), seq: s.seq}
	stored := make([]models.TrainingDataChunk, len(chunks))
	for i, ch := range chunks {
		stored[i] = copyChunk(ch)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].ChunkIndex < stored[j].ChunkIndex })
	s.chunks[src.UID] = stored
	return nil
}

func (s *Store) GetSourceByID(_ context.Context, uid string) (*models.TrainingDataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sources[uid]
	if !ok {
		return nil, nil
	}
	src := copySource(st.src)
	return &src, nil
}

// ListSourcesByCompany returns newest first; ties keep reverse insertion order.
func (s *Store) ListSourcesByCompany(_ context.Context, companyUID string) ([]models.TrainingDataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []storedSource
	for _, st := range s.sources {
		if st.src.CompanyUID == companyUID {
			rows = append(rows, st)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].src.CreatedAt.Equal(rows[j].src.CreatedAt) {
			return rows[i].src.CreatedAt.After(rows[j].src.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	out := make([]models.TrainingDataSource, 0, len(rows))
	for _, st := range rows {
		out = append(out, copySource(st.src))
	}
	return out, nil
}

func (s *Store) UpdateSource(_ context.Context, uid string, patch models.TrainingDataSourceUpdate) (*models.TrainingDataSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sources[uid]
	if !ok {
		return nil, nil
	}
	if patch.Name != nil {
		st.src.Name = *patch.Name
	}
	if patch.Status != nil {
		st.src.Status = *patch.Status
	}
	st.src.UpdatedAt = time.Now().UTC()
	s.sources[uid] = st
	src := copySource(st.src)
	return &src, nil
}

func (s *Store) UpdateSourceStatus(_ context.Context, uid string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sources[uid]
	if !ok {
		return fmt.Errorf("source not found: %s", uid)
	}
	st.src.Status = status
	st.src.UpdatedAt = time.Now().UTC()
	s.sources[uid] = st
	return nil
}

func (s *Store) DeleteSource(_ context.Context, uid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[uid]; !ok {
		return false, nil
	}
	delete(s.sources, uid)
	delete(s.chunks, uid)
	return true, nil
}

func (s *Store) GetChunksBySource(_ context.Context, sourceUID string) ([]models.TrainingDataChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.chunks[sourceUID]
	out := make([]models.TrainingDataChunk, len(stored))
	for i, ch := range stored {
		out[i] = copyChunk(ch)
	}
	return out, nil
}

func (s *Store) CountChunksBySource(_ context.Context, sourceUID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks[sourceUID]), nil
}

func (s *Store) SetChunkEmbeddings(_ context.Context, sourceUID string, embeddings map[int][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.chunks[sourceUID]
	for i := range stored {
		vec, ok := embeddings[stored[i].ChunkIndex]
		if !ok || len(stored[i].Embedding) > 0 {
			continue
		}
		stored[i].Embedding = append([]float32(nil), vec...)
	}
	return nil
}

func (s *Store) Close() error { return nil }

func copySource(src models.TrainingDataSource) models.TrainingDataSource {
	if src.SourceURL != nil {
		v := *src.SourceURL
		src.SourceURL = &v
	}
	if src.UserUID != nil {
		v := *src.UserUID
		src.UserUID = &v
	}
	return src
}

func copyChunk(ch models.TrainingDataChunk) models.TrainingDataChunk {
	if ch.Embedding != nil {
		ch.Embedding = append([]float32(nil), ch.Embedding...)
	}
	return ch
}
