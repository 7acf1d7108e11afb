package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Kaleem/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestIndex(t *testing.T, fn roundTripFunc) *QdrantIndex {
	t.Helper()
	q := NewQdrantIndex("http://qdrant.test/", "secret-key", 0)
	q.http = &http.Client{Transport: fn}
	return q
}

func jsonResponse(t *testing.T, status int, result any) *http.Response {
	t.Helper()
	body, err := json.Marshal(map[string]any{"result": result, "status": "ok", "time": 0.001})
	require.NoError(t, err)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

func errorResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(`{"status":{"error":"Not found: Collection"}}`)),
	}
}

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	var calls []string
	var created map[string]any
	q := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("api-key"))
		switch r.Method {
		case http.MethodGet:
			return errorResponse(http.StatusNotFound), nil
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			return jsonResponse(t, http.StatusOK, true), nil
		}
		t.Fatalf("unexpected %s", r.Method)
		return nil, nil
	})

	require.NoError(t, q.EnsureCollection(context.Background(), "company_c1", 384, "Cosine"))
	assert.Equal(t, []string{"GET /collections/company_c1", "PUT /collections/company_c1"}, calls)
	vectors := created["vectors"].(map[string]any)
	assert.Equal(t, float64(384), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestEnsureCollectionKeepsExisting(t *testing.T) {
	var methods []string
	q := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		methods = append(methods, r.Method)
		return jsonResponse(t, http.StatusOK, map[string]any{
			"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": 384, "distance": "Cosine"}}},
		}), nil
	})

	require.NoError(t, q.EnsureCollection(context.Background(), "company_c1", 384, "Cosine"))
	assert.Equal(t, []string{http.MethodGet}, methods)
}

func TestEnsureCollectionSizeMismatch(t *testing.T) {
	q := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusOK, map[string]any{
			"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": 768}}},
		}), nil
	})

	err := q.EnsureCollection(context.Background(), "company_c1", 384, "Cosine")
	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, OperationErrorValidation, opErr.Code)
}

func TestRecreateCollectionDropsFirst(t *testing.T) {
	var calls []string
	q := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		calls = append(calls, r.Method)
		if r.Method == http.MethodDelete {
			return errorResponse(http.StatusNotFound), nil
		}
		return jsonResponse(t, http.StatusOK, true), nil
	})

	require.NoError(t, q.RecreateCollection(context.Background(), "company_c1", 384, "Cosine"))
	assert.Equal(t, []string{http.MethodDelete, http.MethodPut}, calls)
}

func TestUpsertRequestShape(t *testing.T) {
	var captured struct {
		Points []struct {
			ID      string              `json:"id"`
			Vector  []float32           `json:"vector"`
			Payload models.ChunkPayload `json:"payload"`
		} `json:"points"`
	}
	q := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/collections/company_c1/points", r.URL.Path)
		assert.Equal(t, "wait=true", r.URL.RawQuery)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		return jsonResponse(t, http.StatusOK, map[string]any{"status": "completed"}), nil
	})

	id := PointID("s1", 0)
	err := q.Upsert(context.Background(), "company_c1", []models.VectorPoint{{
		ID:      id,
		Vector:  []float32{0.1, 0.2},
		Payload: models.ChunkPayload{Text: "alpha", ChunkIndex: 0, SourceUID: "s1", CompanyUID: "c1"},
	}})
	require.NoError(t, err)
	require.Len(t, captured.Points, 1)
	assert.Equal(t, id, captured.Points[0].ID)
	assert.Equal(t, "alpha", captured.Points[0].Payload.Text)
	assert.Equal(t, "s1", captured.Points[0].Payload.SourceUID)
}

func TestUpsertRejectsEmptyVector(t *testing.T) {
	q := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	err := q.Upsert(context.Background(), "company_c1", []models.VectorPoint{{ID: "x"}})
	require.Error(t, err)
}

func TestSearchDecodesHitsAndFilter(t *testing.T) {
	var captured map[string]any
	q := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/collections/company_c1/points/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		return jsonResponse(t, http.StatusOK, []map[string]any{
			{"id": "p-1", "score": 0.93, "payload": map[string]any{"text": "alpha", "chunk_index": 2, "source_uid": "s1", "company_uid": "c1"}},
		}), nil
	})

	hits, err := q.Search(context.Background(), "company_c1", []float32{1, 0}, 5, map[string]string{"source_uid": "s1"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "p-1", hits[0].ID)
	assert.Equal(t, 2, hits[0].ChunkIndex)
	assert.Equal(t, "alpha", hits[0].Text)
	assert.InDelta(t, 0.93, hits[0].Score, 1e-9)

	filter := captured["filter"].(map[string]any)
	must := filter["must"].([]any)
	require.Len(t, must, 1)
	assert.Equal(t, "source_uid", must[0].(map[string]any)["key"])
}

func TestSearchMissingCollectionIsEmpty(t *testing.T) {
	q := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		return errorResponse(http.StatusNotFound), nil
	})
	hits, err := q.Search(context.Background(), "company_none", []float32{1}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeletePointsMissingCollectionIsNoop(t *testing.T) {
	q := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/collections/company_none/points/delete", r.URL.Path)
		return errorResponse(http.StatusNotFound), nil
	})
	require.NoError(t, q.DeletePoints(context.Background(), "company_none", []string{"a"}))
}

func TestServerErrorSurfacesStatus(t *testing.T) {
	q := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		return errorResponse(http.StatusInternalServerError), nil
	})
	err := q.Upsert(context.Background(), "company_c1", []models.VectorPoint{{ID: "a", Vector: []float32{1}}})
	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, http.StatusInternalServerError, opErr.StatusCode)
}

func TestTransportTimeout(t *testing.T) {
	q := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	})
	err := q.DeletePoints(context.Background(), "company_c1", []string{"a"})
	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, OperationErrorTimeout, opErr.Code)
}
