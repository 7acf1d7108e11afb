// Package apperr defines the error taxonomy shared by the ingestion pipeline
// and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindUnsupportedMediaType Kind = "unsupported_media_type"
	KindExtractionFailed     Kind = "extraction_failed"
	KindBlobUploadFailed     Kind = "blob_upload_failed"
	KindSignedURLFailed      Kind = "signed_url_failed"
	KindPersistenceFailed    Kind = "persistence_failed"
	KindEmbeddingFailed      Kind = "embedding_failed"
	KindVectorUpsertFailed   Kind = "vector_upsert_failed"
	KindVectorSearchFailed   Kind = "vector_search_failed"
	KindNotFound             Kind = "not_found"
	KindInvalidInput         Kind = "invalid_input"
	KindTooLarge             Kind = "too_large"
	KindUnauthorized         Kind = "unauthorized"
	KindInternal             Kind = "internal"
)

// Error is a classified failure. Message is safe to show to clients for
// client-error kinds; Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Wrapf(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// UnsupportedMediaType reports a declared type outside the supported set.
func UnsupportedMediaType(mediaType string) *Error {
	return &Error{
		Kind:    KindUnsupportedMediaType,
		Op:      "extract",
		Message: fmt.Sprintf("unsupported file type: %s", mediaType),
	}
}

// NotFound reports a missing entity of the given kind, e.g. "source".
func NotFound(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found: %s", entity, id),
	}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns the client-facing message of err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e != nil && e.Message != "" {
		return e.Message
	}
	return "internal server error"
}

func IsClientError(kind Kind) bool {
	return HTTPStatus(kind) < http.StatusInternalServerError
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnsupportedMediaType, KindExtractionFailed, KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
