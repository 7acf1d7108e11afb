package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Kaleem/internal/api/handlers"
	"github.com/markdave123-py/Kaleem/internal/config"
	"github.com/markdave123-py/Kaleem/internal/core"
	"github.com/markdave123-py/Kaleem/internal/core/database/memstore"
	"github.com/markdave123-py/Kaleem/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/Kaleem/internal/core/object-client"
	"github.com/markdave123-py/Kaleem/internal/core/vectorindex"
	"github.com/markdave123-py/Kaleem/internal/models"
	"github.com/markdave123-py/Kaleem/internal/services"
)

const jwtSecret = "router-test-secret"

type lengthEmbedder struct{ fail bool }

func (e lengthEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if e.fail {
		return nil, errors.New("model cold start: connection refused")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0.5}
	}
	return out, nil
}

type harness struct {
	router  http.Handler
	store   *memstore.Store
	objects *objectclient.MemoryClient
	index   *vectorindex.MemoryIndex
	token   string
}

func newHarness(t *testing.T, appEnv string, emb core.EmbeddingProvider) *harness {
	t.Helper()
	cfg := &config.Config{
		AppEnv:                   appEnv,
		JWTSecret:                jwtSecret,
		CORSAllowedOrigins:       []string{"http://localhost:5173"},
		CollectionPrefix:         "company_",
		VectorDistance:           "Cosine",
		EmbedDim:                 3,
		ChunkMaxTokens:           2,
		SignedURLTTL:             time.Hour,
		MaxUploadBytes:           1 << 20,
		DBTimeout:                time.Second,
		BlobTimeout:              time.Second,
		EmbedTimeout:             time.Second,
		VectorTimeout:            time.Second,
		DeleteBlobOnSourceDelete: true,
	}
	store := memstore.New()
	store.PutCompany(models.Company{UID: "co-1", Name: "Acme"})
	store.PutUser(models.User{UID: "u-1", Email: "ada@acme.test"})
	objects := objectclient.NewMemoryClient("company-data")
	index := vectorindex.NewMemoryIndex()

	ing := ingestion_engine.NewDocumentIngestor(store, objects, index, emb,
		ingestion_engine.NewDocumentTextExtractor(), ingestion_engine.NewIngestConfig(cfg), nil)
	svc := services.NewTrainingDataService(store, objects, index, emb, ing, cfg, nil)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user":    map[string]any{"uid": "u-1", "email": "ada@acme.test"},
		"exp":     time.Now().Add(time.Hour).Unix(),
		"refresh": false,
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)

	return &harness{
		router:  NewRouter(cfg, handlers.NewDataHandler(svc, cfg, nil)),
		store:   store,
		objects: objects,
		index:   index,
		token:   token,
	}
}

func (h *harness) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+h.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) upload(t *testing.T, company, filename, partType, content string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if partType != "" {
		hdr.Set("Content-Type", partType)
	}
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return h.do(t, http.MethodPost, "/api/v1/data/upload/"+company, body, mw.FormDataContentType())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestPingIsPublic(t *testing.T) {
	h := newHarness(t, "development", lengthEmbedder{})
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDataRoutesRequireToken(t *testing.T) {
	h := newHarness(t, "development", lengthEmbedder{})
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/data/files/co-1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadListPatchDeleteFlow(t *testing.T) {
	h := newHarness(t, "development", lengthEmbedder{})

	rec := h.upload(t, "co-1", "notes.txt", "text/plain; charset=utf-8", "alpha beta gamma")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	src := decode[models.TrainingDataSource](t, rec)
	assert.Equal(t, "notes.txt", src.Name)
	assert.Equal(t, "co-1", src.CompanyUID)
	assert.Equal(t, models.StatusProcessed, src.Status)
	require.NotNil(t, src.UserUID)
	assert.Equal(t, "u-1", *src.UserUID)
	assert.True(t, strings.HasPrefix(src.FilePath, "co-1/"))
	assert.Equal(t, 2, h.index.Count("company_co-1"))

	rec = h.do(t, http.MethodGet, "/api/v1/data/files/co-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.TrainingDataSource](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, src.UID, list[0].UID)

	rec = h.do(t, http.MethodGet, "/api/v1/data/files/"+src.UID+"/info", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, src.UID, decode[models.TrainingDataSource](t, rec).UID)

	rec = h.do(t, http.MethodGet, "/api/v1/data/files/"+src.UID+"/chunks", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	chunks := decode[[]models.TrainingDataChunk](t, rec)
	require.Len(t, chunks, 2)
	assert.Equal(t, "alpha beta", chunks[0].Content)
	assert.Equal(t, "gamma", chunks[1].Content)
	assert.Nil(t, chunks[0].Embedding)

	rec = h.do(t, http.MethodGet, "/api/v1/data/files/"+src.UID+"/url", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	link := decode[map[string]any](t, rec)
	assert.EqualValues(t, 3600, link["expires_in"])
	assert.NotEmpty(t, link["url"])

	rec = h.do(t, http.MethodPatch, "/api/v1/data/files/"+src.UID, bytes.NewBufferString(`{"name":"renamed.txt"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decode[models.TrainingDataSource](t, rec)
	assert.Equal(t, "renamed.txt", patched.Name)
	assert.Equal(t, models.StatusProcessed, patched.Status)

	rec = h.do(t, http.MethodDelete, "/api/v1/data/files/"+src.UID, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	n, err := h.store.CountChunksBySource(context.Background(), src.UID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, h.index.Count("company_co-1"))
	assert.Zero(t, h.objects.Len())

	rec = h.do(t, http.MethodGet, "/api/v1/data/files/co-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = h.do(t, http.MethodDelete, "/api/v1/data/files/"+src.UID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadErrors(t *testing.T) {
	h := newHarness(t, "development", lengthEmbedder{})

	rec := h.upload(t, "co-1", "logo.png", "image/png", "\x89PNG")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"status_code":400,"message":"unsupported file type: image/png"}`, rec.Body.String())
	assert.Zero(t, h.objects.Len())

	rec = h.upload(t, "co-404", "notes.txt", "text/plain", "alpha")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, h.objects.Len())

	rec = h.do(t, http.MethodPost, "/api/v1/data/upload/co-1", bytes.NewBufferString("nope"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadInfersTypeFromExtension(t *testing.T) {
	h := newHarness(t, "development", lengthEmbedder{})
	rec := h.upload(t, "co-1", "faq.txt", "application/octet-stream", "refunds within thirty days")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "text/plain", decode[models.TrainingDataSource](t, rec).Type)
}

func TestPatchValidation(t *testing.T) {
	h := newHarness(t, "development", lengthEmbedder{})
	src := decode[models.TrainingDataSource](t, h.upload(t, "co-1", "a.txt", "text/plain", "one two"))

	rec := h.do(t, http.MethodPatch, "/api/v1/data/files/"+src.UID, bytes.NewBufferString(`{"file_path":"x"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPatch, "/api/v1/data/files/"+src.UID, bytes.NewBufferString(`{"status":"archived"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPatch, "/api/v1/data/files/missing", bytes.NewBufferString(`{"name":"b.txt"}`), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPatch, "/api/v1/data/files/missing", bytes.NewBufferString(`{}`), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPatch, "/api/v1/data/files/"+src.UID, bytes.NewBufferString(`{}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a.txt", decode[models.TrainingDataSource](t, rec).Name)
}

func TestIndexingFailureStillReturnsSource(t *testing.T) {
	h := newHarness(t, "production", lengthEmbedder{fail: true})

	rec := h.upload(t, "co-1", "notes.txt", "text/plain", "alpha beta gamma")
	require.Equal(t, http.StatusCreated, rec.Code)
	src := decode[models.TrainingDataSource](t, rec)
	assert.Equal(t, models.StatusIndexingFailed, src.Status)

	rec = h.do(t, http.MethodGet, "/api/v1/data/files/"+src.UID+"/info", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusIndexingFailed, decode[models.TrainingDataSource](t, rec).Status)
}

func TestServerErrorsAreGenericInProduction(t *testing.T) {
	h := newHarness(t, "production", lengthEmbedder{fail: true})
	rec := h.do(t, http.MethodGet, "/api/v1/data/search/co-1?q=refund", nil, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status_code":500,"message":"internal server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "connection refused")

	dev := newHarness(t, "development", lengthEmbedder{fail: true})
	rec = dev.do(t, http.MethodGet, "/api/v1/data/search/co-1?q=refund", nil, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestSearchAndReindex(t *testing.T) {
	h := newHarness(t, "development", lengthEmbedder{})
	src := decode[models.TrainingDataSource](t, h.upload(t, "co-1", "a.txt", "text/plain", "alpha beta gamma"))

	rec := h.do(t, http.MethodGet, "/api/v1/data/search/co-1?q=alpha&limit=1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hits := decode[[]models.SearchHit](t, rec)
	require.Len(t, hits, 1)
	assert.Equal(t, src.UID, hits[0].SourceUID)

	rec = h.do(t, http.MethodGet, "/api/v1/data/search/co-1?limit=abc&q=x", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/data/search/co-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/data/files/"+src.UID+"/reindex", nil, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"uid":"`+src.UID+`","status":"queued"}`, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/v1/data/files/missing/reindex", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
