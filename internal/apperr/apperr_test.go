package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwrapsChain(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("ingest: %w", Wrap(KindBlobUploadFailed, "store_blob", cause))

	assert.Equal(t, KindBlobUploadFailed, KindOf(err))
	assert.True(t, IsKind(err, KindBlobUploadFailed))
	assert.ErrorIs(t, err, cause)
}

func TestKindOfPlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, IsKind(nil, KindInternal))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindUnsupportedMediaType: http.StatusBadRequest,
		KindExtractionFailed:     http.StatusBadRequest,
		KindInvalidInput:         http.StatusBadRequest,
		KindUnauthorized:         http.StatusUnauthorized,
		KindNotFound:             http.StatusNotFound,
		KindBlobUploadFailed:     http.StatusInternalServerError,
		KindSignedURLFailed:      http.StatusInternalServerError,
		KindPersistenceFailed:    http.StatusInternalServerError,
		KindEmbeddingFailed:      http.StatusInternalServerError,
		KindVectorUpsertFailed:   http.StatusInternalServerError,
		KindVectorSearchFailed:   http.StatusInternalServerError,
		KindTooLarge:             http.StatusRequestEntityTooLarge,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), kind)
	}
	assert.True(t, IsClientError(KindNotFound))
	assert.False(t, IsClientError(KindPersistenceFailed))
}

func TestErrorMessages(t *testing.T) {
	err := UnsupportedMediaType("image/png")
	assert.Equal(t, "extract: unsupported file type: image/png", err.Error())
	assert.Equal(t, "unsupported file type: image/png", PublicMessage(err))

	wrapped := Wrap(KindPersistenceFailed, "persist", errors.New("duplicate key"))
	assert.Equal(t, "persist: persistence_failed: duplicate key", wrapped.Error())
	assert.Equal(t, "internal server error", PublicMessage(errors.New("x")))
}
