package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/markdave123-py/Kaleem/internal/apperr"
	"github.com/markdave123-py/Kaleem/internal/logger"
)

func TestWriteErrorClientKind(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	rec := httptest.NewRecorder()

	writeError(rec, logger.NewWithCore(core), apperr.NotFound("file", "f-1"), true)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"status_code":404,"message":"file not found: f-1"}`, rec.Body.String())
	assert.Zero(t, logs.Len())
}

func TestWriteErrorServerKind(t *testing.T) {
	cause := apperr.Wrapf(apperr.KindBlobUploadFailed, "upload", errors.New("dial tcp: i/o timeout"), "failed to store file")

	core, logs := observer.New(zap.DebugLevel)
	rec := httptest.NewRecorder()
	writeError(rec, logger.NewWithCore(core), cause, true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status_code":500,"message":"internal server error"}`, rec.Body.String())
	assert.Equal(t, 1, logs.Len())

	rec = httptest.NewRecorder()
	writeError(rec, logger.Nop(), cause, false)
	assert.Contains(t, rec.Body.String(), "i/o timeout")
}

func TestWriteErrorTooLarge(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, logger.Nop(), apperr.New(apperr.KindTooLarge, "upload", "file is too large"), true)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDeclaredMediaType(t *testing.T) {
	cases := []struct {
		part, filename, want string
	}{
		{"application/pdf", "a.bin", "application/pdf"},
		{"text/plain; charset=latin1", "a.txt", "text/plain; charset=latin1"},
		{"", "Report.PDF", "application/pdf"},
		{"application/octet-stream", "notes.txt", "text/plain"},
		{"", "contract.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"", "blob", "application/octet-stream"},
		{"application/octet-stream", "blob", "application/octet-stream"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, declaredMediaType(tc.part, tc.filename), "%q %q", tc.part, tc.filename)
	}
}
