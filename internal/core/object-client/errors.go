package objectclient

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/smithy-go"
)

// Failure reasons reported by BlobError.
const (
	ReasonAuth     = "auth"
	ReasonQuota    = "quota"
	ReasonNotFound = "not_found"
	ReasonNetwork  = "network"
	ReasonTimeout  = "timeout"
	ReasonInvalid  = "invalid"
	ReasonUnknown  = "unknown"
)

// BlobError is returned by every ObjectClient operation.
type BlobError struct {
	Op     string // upload | sign | delete
	Key    string
	Reason string
	Err    error
}

func (e *BlobError) Error() string {
	return fmt.Sprintf("blob %s %q (%s): %v", e.Op, e.Key, e.Reason, e.Err)
}

func (e *BlobError) Unwrap() error { return e.Err }

func newBlobError(op, key string, err error) *BlobError {
	return &BlobError{Op: op, Key: key, Reason: classify(err), Err: err}
}

// ReasonOf returns the reason of a wrapped BlobError, or "" when err is not one.
func ReasonOf(err error) string {
	var be *BlobError
	if errors.As(err, &be) {
		return be.Reason
	}
	return ""
}

func classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken", "Forbidden":
			return ReasonAuth
		case "EntityTooLarge", "QuotaExceeded", "SlowDown", "ServiceUnavailable":
			return ReasonQuota
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return ReasonNotFound
		case "RequestTimeout":
			return ReasonTimeout
		}
		return ReasonUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ReasonTimeout
		}
		return ReasonNetwork
	}
	return ReasonUnknown
}
