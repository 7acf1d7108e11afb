package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/Kaleem/internal/api/middlewares"
	"github.com/markdave123-py/Kaleem/internal/apperr"
	"github.com/markdave123-py/Kaleem/internal/config"
	"github.com/markdave123-py/Kaleem/internal/core/ingestion_engine"
	"github.com/markdave123-py/Kaleem/internal/logger"
	"github.com/markdave123-py/Kaleem/internal/models"
	"github.com/markdave123-py/Kaleem/internal/services"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

type DataHandler struct {
	svc *services.TrainingDataService
	cfg *config.Config
	log *logger.Logger
}

func NewDataHandler(svc *services.TrainingDataService, cfg *config.Config, log *logger.Logger) *DataHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &DataHandler{svc: svc, cfg: cfg, log: log.With("handler", "data")}
}

type signedURLResponse struct {
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"`
}

type reindexResponse struct {
	UID    string `json:"uid"`
	Status string `json:"status"`
}

// Upload accepts a multipart "file" part and runs ingestion for the company
// in the path.
func (h *DataHandler) Upload(w http.ResponseWriter, r *http.Request) {
	companyUID := chi.URLParam(r, "id")

	if h.cfg.MaxUploadBytes > 0 {
		// room for the multipart framing around the file itself
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			h.fail(w, apperr.New(apperr.KindTooLarge, "upload", "file is too large"))
			return
		}
		badRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "form field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		badRequest(w, "could not read uploaded file")
		return
	}

	id, _ := middleware.IdentityFrom(r.Context())
	res, err := h.svc.Upload(r.Context(), ingestion_engine.IngestRequest{
		CompanyUID: companyUID,
		UserUID:    id.UserUID,
		UserEmail:  id.Email,
		Filename:   filepath.Base(header.Filename),
		MediaType:  declaredMediaType(header.Header.Get("Content-Type"), header.Filename),
		Data:       data,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	if res.IndexErr != nil {
		h.log.Warn("source stored without vectors", "source_uid", res.Source.UID, "error", res.IndexErr)
	}
	writeJSON(w, http.StatusCreated, res.Source)
}

// ListFiles returns the company's sources, newest first.
func (h *DataHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	sources, err := h.svc.ListByCompany(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if sources == nil {
		sources = []models.TrainingDataSource{}
	}
	writeJSON(w, http.StatusOK, sources)
}

func (h *DataHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	src, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// PatchFile updates name and/or status.
func (h *DataHandler) PatchFile(w http.ResponseWriter, r *http.Request) {
	var patch models.TrainingDataSourceUpdate
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		badRequest(w, "invalid body: only name and status may be updated")
		return
	}
	src, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (h *DataHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SignedURL mints a fresh retrieval link for the file's blob.
func (h *DataHandler) SignedURL(w http.ResponseWriter, r *http.Request) {
	u, ttl, err := h.svc.SignedURL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, signedURLResponse{URL: u, ExpiresIn: int64(ttl.Seconds())})
}

func (h *DataHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.svc.Chunks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if chunks == nil {
		chunks = []models.TrainingDataChunk{}
	}
	writeJSON(w, http.StatusOK, chunks)
}

func (h *DataHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	src, err := h.svc.Reindex(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, reindexResponse{UID: src.UID, Status: "queued"})
}

// Search runs a similarity query over the company's indexed chunks.
func (h *DataHandler) Search(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, fmt.Sprintf("invalid limit: %s", v))
			return
		}
		limit = n
	}
	hits, err := h.svc.Search(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if hits == nil {
		hits = []models.SearchHit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

func Ping(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

func (h *DataHandler) fail(w http.ResponseWriter, err error) {
	writeError(w, h.log, err, h.cfg.IsProduction())
}

// extensionTypes covers the supported formats missing from some system mime tables.
var extensionTypes = map[string]string{
	".pdf":  ingestion_engine.MediaTypePDF,
	".docx": ingestion_engine.MediaTypeDOCX,
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
}

// declaredMediaType prefers the part's Content-Type and falls back to the
// filename extension when the client sent nothing useful.
func declaredMediaType(partType, filename string) string {
	mt := ingestion_engine.NormalizeMediaType(partType)
	if mt != "" && mt != "application/octet-stream" {
		return partType
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if known, ok := extensionTypes[ext]; ok {
		return known
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return byExt
	}
	if mt == "" {
		return "application/octet-stream"
	}
	return partType
}
