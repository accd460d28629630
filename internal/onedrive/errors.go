package onedrive

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for share-listing HTTP status classification, the same
// shape as graph.ErrNotFound/ErrThrottled/etc (internal/graph/errors.go).
var (
	ErrBadRequest  = errors.New("onedrive: bad request")
	ErrForbidden   = errors.New("onedrive: forbidden")
	ErrNotFound    = errors.New("onedrive: share not found")
	ErrThrottled   = errors.New("onedrive: throttled")
	ErrServerError = errors.New("onedrive: server error")

	// ErrInvalidFolderStructure is returned when the share's root isn't
	// named "Fog of World" or lacks a "Sync" child folder (spec §4.C.1).
	ErrInvalidFolderStructure = errors.New("onedrive: invalid folder structure")
	// ErrLocked is returned when a fresh FoW-Sync-Lock file is present
	// (spec §4.C.4).
	ErrLocked = errors.New("onedrive: sync folder locked")
	// ErrSizeLimitExceeded is returned when the listing's cumulative size
	// exceeds SYNC_FILE_LIMIT_PER_SNAPSHOT (spec §4.C.5).
	ErrSizeLimitExceeded = errors.New("onedrive: snapshot size limit exceeded")
)

// ShareError wraps a sentinel with the HTTP status and response body that
// produced it, matching graph.GraphError's shape.
type ShareError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ShareError) Error() string {
	return fmt.Sprintf("onedrive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *ShareError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error. Returns
// nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be
// retried by the request-level retry loop (distinct from the outer
// Locked-retry wrapper in fetch.go).
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
