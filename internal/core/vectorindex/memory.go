package vectorindex

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"sync"

	"github.com/markdave123-py/Kaleem/internal/core"
	"github.com/markdave123-py/Kaleem/internal/models"
)

// MemoryIndex is an in-process vector index using brute-force cosine similarity.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	size   int
	points map[string]models.VectorPoint
}

var _ core.VectorIndex = (*MemoryIndex)(nil)

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]*memoryCollection)}
}

func (m *MemoryIndex) EnsureCollection(_ context.Context, name string, size int, _ string) error {
	const op = "ensure_collection"
	if err := validateCollection(op, name, size); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.collections[name]; ok {
		if c.size != size {
			return opErr(op, name, OperationErrorValidation,
				fmt.Sprintf("vector size mismatch: expected=%d actual=%d", size, c.size), nil)
		}
		return nil
	}
	m.collections[name] = &memoryCollection{size: size, points: make(map[string]models.VectorPoint)}
	return nil
}

func (m *MemoryIndex) RecreateCollection(_ context.Context, name string, size int, _ string) error {
	if err := validateCollection("recreate_collection", name, size); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[name] = &memoryCollection{size: size, points: make(map[string]models.VectorPoint)}
	return nil
}

func (m *MemoryIndex) Upsert(_ context.Context, collection string, points []models.VectorPoint) error {
	const op = "upsert"
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return &OperationError{Code: OperationErrorRequestFailed, Operation: op, Collection: collection,
			StatusCode: http.StatusNotFound, Message: "collection not found"}
	}
	for _, p := range points {
		if len(p.Vector) != c.size {
			return opErr(op, collection, OperationErrorValidation,
				fmt.Sprintf("point %q dimension mismatch: expected=%d got=%d", p.ID, c.size, len(p.Vector)), nil)
		}
	}
	for _, p := range points {
		p.Vector = append([]float32(nil), p.Vector...)
		c.points[p.ID] = p
	}
	return nil
}

func (m *MemoryIndex) DeletePoints(_ context.Context, collection string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(c.points, id)
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, collection string, vector []float32, limit int, filter map[string]string) ([]models.SearchHit, error) {
	if len(vector) == 0 {
		return nil, opErr("search", collection, OperationErrorValidation, "query vector required", nil)
	}
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return []models.SearchHit{}, nil
	}

	hits := make([]models.SearchHit, 0, len(c.points))
	for id, p := range c.points {
		if !matchesFilter(p.Payload, filter) {
			continue
		}
		hits = append(hits, models.SearchHit{
			ID:         id,
			Score:      cosine(p.Vector, vector),
			Text:       p.Payload.Text,
			ChunkIndex: p.Payload.ChunkIndex,
			SourceUID:  p.Payload.SourceUID,
			CompanyUID: p.Payload.CompanyUID,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Count reports the number of points in collection.
func (m *MemoryIndex) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collection]; ok {
		return len(c.points)
	}
	return 0
}

// Point returns a stored point by id.
func (m *MemoryIndex) Point(collection, id string) (models.VectorPoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return models.VectorPoint{}, false
	}
	p, ok := c.points[id]
	return p, ok
}

func matchesFilter(p models.ChunkPayload, filter map[string]string) bool {
	for k, v := range filter {
		var got string
		switch k {
		case "source_uid":
			got = p.SourceUID
		case "company_uid":
			got = p.CompanyUID
		case "text":
			got = p.Text
		default:
			return false
		}
		if got != v {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
