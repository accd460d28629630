package apierr_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memolanes/memolanes-server/internal/apierr"
)

func TestNewValidationErrorStatusIs400(t *testing.T) {
	err := apierr.New(apierr.NoteTooLong, "note exceeds 500 characters")
	assert.Equal(t, http.StatusBadRequest, err.Status())
	assert.Equal(t, apierr.NoteTooLong, err.Code)
}

func TestInternalWrapsCauseAndIs500(t *testing.T) {
	cause := errors.New("disk full")
	err := apierr.Internal(cause)

	assert.Equal(t, http.StatusInternalServerError, err.Status())
	assert.ErrorIs(t, err, cause)
}

func TestAsExtractsWrappedError(t *testing.T) {
	wrapped := fmtErrorf(apierr.New(apierr.InvalidInterval, "must be one of the whitelist"))

	got, ok := apierr.As(wrapped)
	require.True(t, ok)
	assert.Equal(t, apierr.InvalidInterval, got.Code)
}

func fmtErrorf(err error) error {
	return errors.Join(errors.New("handler: creating task"), err)
}
