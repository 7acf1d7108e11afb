package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/markdave123-py/Kaleem/internal/core"
	"github.com/markdave123-py/Kaleem/internal/models"
)

const maxErrorBodyBytes = 1024

// QdrantIndex talks to Qdrant over its REST API.
type QdrantIndex struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ core.VectorIndex = (*QdrantIndex)(nil)

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type collectionInfo struct {
	Config struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

type searchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func NewQdrantIndex(baseURL, apiKey string, timeout time.Duration) *QdrantIndex {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &QdrantIndex{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// EnsureCollection creates the collection when it is missing. An existing
// collection is kept as long as its vector size matches.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, name string, size int, distance string) error {
	const op = "ensure_collection"
	if err := validateCollection(op, name, size); err != nil {
		return err
	}

	var info collectionInfo
	status, err := q.doJSON(ctx, op, name, http.MethodGet, collectionPath(name, ""), nil, &info)
	switch {
	case err == nil:
		if got := info.Config.Params.Vectors.Size; got != 0 && got != size {
			return opErr(op, name, OperationErrorValidation,
				fmt.Sprintf("vector size mismatch: expected=%d actual=%d", size, got), nil)
		}
		return nil
	case status != http.StatusNotFound:
		return err
	}

	status, err = q.doJSON(ctx, op, name, http.MethodPut, collectionPath(name, ""), createCollectionBody(size, distance), nil)
	if err != nil && status == http.StatusConflict {
		// Created concurrently by another request.
		return nil
	}
	return err
}

// RecreateCollection drops the collection (if present) and creates it empty.
func (q *QdrantIndex) RecreateCollection(ctx context.Context, name string, size int, distance string) error {
	const op = "recreate_collection"
	if err := validateCollection(op, name, size); err != nil {
		return err
	}
	status, err := q.doJSON(ctx, op, name, http.MethodDelete, collectionPath(name, ""), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	_, err = q.doJSON(ctx, op, name, http.MethodPut, collectionPath(name, ""), createCollectionBody(size, distance), nil)
	return err
}

func (q *QdrantIndex) Upsert(ctx context.Context, collection string, points []models.VectorPoint) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}
	body := make([]map[string]any, 0, len(points))
	for _, p := range points {
		if strings.TrimSpace(p.ID) == "" {
			return opErr(op, collection, OperationErrorValidation, "point id is required", nil)
		}
		if len(p.Vector) == 0 {
			return opErr(op, collection, OperationErrorValidation, fmt.Sprintf("point %q has empty vector", p.ID), nil)
		}
		body = append(body, map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		})
	}
	_, err := q.doJSON(ctx, op, collection, http.MethodPut, collectionPath(collection, "/points?wait=true"), map[string]any{"points": body}, nil)
	return err
}

// DeletePoints removes points by id. A missing collection has nothing to delete.
func (q *QdrantIndex) DeletePoints(ctx context.Context, collection string, ids []string) error {
	const op = "delete_points"
	if len(ids) == 0 {
		return nil
	}
	status, err := q.doJSON(ctx, op, collection, http.MethodPost, collectionPath(collection, "/points/delete?wait=true"), map[string]any{"points": ids}, nil)
	if err != nil && status == http.StatusNotFound {
		return nil
	}
	return err
}

// Search returns the closest points, restricted by exact-match payload filters.
func (q *QdrantIndex) Search(ctx context.Context, collection string, vector []float32, limit int, filter map[string]string) ([]models.SearchHit, error) {
	const op = "search"
	if len(vector) == 0 {
		return nil, opErr(op, collection, OperationErrorValidation, "query vector required", nil)
	}
	if limit <= 0 {
		limit = 10
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if len(filter) > 0 {
		keys := make([]string, 0, len(filter))
		for k := range filter {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		must := make([]any, 0, len(keys))
		for _, k := range keys {
			must = append(must, map[string]any{"key": k, "match": map[string]any{"value": filter[k]}})
		}
		req["filter"] = map[string]any{"must": must}
	}

	var raw []searchResultItem
	status, err := q.doJSON(ctx, op, collection, http.MethodPost, collectionPath(collection, "/points/search"), req, &raw)
	if err != nil {
		if status == http.StatusNotFound {
			return []models.SearchHit{}, nil
		}
		return nil, err
	}

	hits := make([]models.SearchHit, 0, len(raw))
	for _, item := range raw {
		hits = append(hits, models.SearchHit{
			ID:         decodePointID(item.ID),
			Score:      item.Score,
			Text:       payloadString(item.Payload, "text"),
			ChunkIndex: payloadInt(item.Payload, "chunk_index"),
			SourceUID:  payloadString(item.Payload, "source_uid"),
			CompanyUID: payloadString(item.Payload, "company_uid"),
		})
	}
	return hits, nil
}

// doJSON performs one request and decodes envelope.result into out.
// The returned status is 0 when no response was received.
func (q *QdrantIndex) doJSON(ctx context.Context, op, collection, method, path string, in any, out any) (int, error) {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return 0, opErr(op, collection, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, body)
	if err != nil {
		return 0, opErr(op, collection, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.http.Do(req)
	if err != nil {
		return 0, classifyHTTPCallError(op, collection, err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if readErr != nil {
		return resp.StatusCode, opErr(op, collection, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			Collection: collection,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return resp.StatusCode, opErr(op, collection, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if msg := parseEnvelopeStatus(envelope.Status); msg != "" {
		return resp.StatusCode, &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			Collection: collection,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}
	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return resp.StatusCode, opErr(op, collection, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return resp.StatusCode, nil
}

func createCollectionBody(size int, distance string) map[string]any {
	if distance == "" {
		distance = "Cosine"
	}
	return map[string]any{"vectors": map[string]any{"size": size, "distance": distance}}
}

func validateCollection(op, name string, size int) error {
	if strings.TrimSpace(name) == "" {
		return opErr(op, name, OperationErrorValidation, "collection name is required", nil)
	}
	if size <= 0 {
		return opErr(op, name, OperationErrorValidation, fmt.Sprintf("vector size must be positive, got %d", size), nil)
	}
	return nil
}

func collectionPath(name, suffix string) string {
	return "/collections/" + url.PathEscape(name) + suffix
}

func classifyHTTPCallError(op, collection string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, collection, OperationErrorTimeout, "qdrant request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, collection, OperationErrorTimeout, "qdrant request timed out", err)
	}
	return opErr(op, collection, OperationErrorTransportFailed, "qdrant request failed", err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.EqualFold(s, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", s)
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && strings.TrimSpace(obj.Error) != "" {
		return strings.TrimSpace(obj.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func decodePointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return fmt.Sprintf("%d", n)
	}
	return strings.TrimSpace(string(raw))
}

func payloadString(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

func payloadInt(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}
