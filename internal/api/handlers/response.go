package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/markdave123-py/Kaleem/internal/apperr"
	"github.com/markdave123-py/Kaleem/internal/logger"
)

// errorBody is the envelope of every error response.
type errorBody struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto its HTTP status. Server errors carry a generic
// message in production; the cause always goes to the log.
func writeError(w http.ResponseWriter, log *logger.Logger, err error, production bool) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	msg := apperr.PublicMessage(err)
	if !apperr.IsClientError(kind) {
		log.Error("request failed", "kind", string(kind), "error", err)
		if production {
			msg = "internal server error"
		} else {
			msg = err.Error()
		}
	}
	writeJSON(w, status, errorBody{StatusCode: status, Message: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{StatusCode: http.StatusBadRequest, Message: msg})
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
