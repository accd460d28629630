// Package apierr is the machine error-code vocabulary the HTTP layer
// renders as the {"error": "<code>"} envelope — the same sentinel+wrap
// pattern as graph.GraphError/classifyStatus (internal/graph/errors.go),
// repointed from classifying inbound Graph API responses to classifying
// outbound API error responses.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error identifier, stable across releases —
// clients match on this, never on Message.
type Code string

const (
	TimestampIsInFuture    Code = "timestamp_is_in_future"
	InvalidUploadToken     Code = "invalid_upload_token"
	SnapshotIsEmpty        Code = "snapshot_is_empty"
	NoteTooLong            Code = "note_too_long"
	InvalidStatus          Code = "invalid_status"
	InvalidInterval        Code = "invalid_interval"
	InvalidShare           Code = "invalid_share"
	InvalidFolderStructure Code = "invalid_folder_structure"
	InvalidShareToken      Code = "invalid_share_token"
	// InvalidDownloadToken is spec §6's "Unknown or expired token → 403"
	// case for GET /misc/download — distinct from InvalidUploadToken,
	// which spec keeps as the 400 surfaced by POST /snapshot's upload-
	// token consumption.
	InvalidDownloadToken Code = "invalid_download_token"
	// QuotaExceeded is a supplement to spec.md's literal /snapshot error
	// list: §7 requires direct uploads that would exceed the per-user quota
	// to surface as 400 with a log line mentioning "out of sync file
	// storage quota" (S3), rather than collapsing into internal_error.
	QuotaExceeded Code = "quota_exceeded"
	// NotFound covers spec §7's NotFound taxonomy entry (addressed entity
	// absent or not owned by caller) for entities other than share tokens.
	NotFound Code = "not_found"
	// Unauthorized is a supplement for spec §6's bearer-token requirement:
	// a missing, malformed, or expired Authorization header on an
	// authenticated endpoint.
	Unauthorized Code = "unauthorized"
	// InvalidTimezone is a supplement to spec §6's archive download-token
	// endpoint: an unparseable IANA zone name in ?timezone=.
	InvalidTimezone Code = "invalid_timezone"
	InternalError   Code = "internal_error"
)

// statusForCode is the fixed Code→HTTP status mapping. Every validation
// code is a 400; InternalError is the sole 500 (spec §7).
var statusForCode = map[Code]int{
	TimestampIsInFuture:    http.StatusBadRequest,
	InvalidUploadToken:     http.StatusBadRequest,
	SnapshotIsEmpty:        http.StatusBadRequest,
	NoteTooLong:            http.StatusBadRequest,
	InvalidStatus:          http.StatusBadRequest,
	InvalidInterval:        http.StatusBadRequest,
	InvalidShare:           http.StatusBadRequest,
	InvalidFolderStructure: http.StatusBadRequest,
	InvalidShareToken:      http.StatusNotFound,
	QuotaExceeded:          http.StatusBadRequest,
	NotFound:               http.StatusNotFound,
	Unauthorized:           http.StatusUnauthorized,
	InvalidTimezone:        http.StatusBadRequest,
	InvalidDownloadToken:   http.StatusForbidden,
	InternalError:          http.StatusInternalServerError,
}

// Error is the error type handlers return; the HTTP layer unwraps it to
// pick a status code and render the JSON envelope.
type Error struct {
	Code    Code
	Message string
	Err     error // wrapped cause, for logging — never serialized to the client
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("apierr: %s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("apierr: %s", e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for e.Code, defaulting to 500 for
// an unrecognized code (should not happen for codes constructed via New).
func (e *Error) Status() int {
	if status, ok := statusForCode[e.Code]; ok {
		return status
	}

	return http.StatusInternalServerError
}

// New builds a validation-style *Error carrying code with an optional
// human-readable message (never shown to the client, only logged).
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Internal wraps cause as an InternalError, preserving it for logging via
// errors.Unwrap while keeping the client-facing code fixed.
func Internal(cause error) *Error {
	return &Error{Code: InternalError, Message: cause.Error(), Err: cause}
}

// As extracts *Error from err via errors.As, mirroring how callers use
// errors.As(err, &graphErr) against graph.GraphError.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	return nil, false
}
