package sdkerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(KindMissingParameter, "required parameter %q was not supplied", "text")
	assert.Equal(t, `missing_parameter: required parameter "text" was not supplied`, err.Error())

	wrapped := Wrap(KindRequestFailed, errors.New("connection refused"), "POST %s", "https://x")
	assert.Equal(t, "request_failed: POST https://x: connection refused", wrapped.Error())
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindUploadFailed, cause, "upload batch")
	assert.ErrorIs(t, err, cause)

	// Kinds survive further wrapping with %w.
	outer := fmt.Errorf("stage failed: %w", err)
	assert.True(t, IsKind(outer, KindUploadFailed))
	assert.Equal(t, KindUploadFailed, KindOf(outer))
}

func TestIsKind(t *testing.T) {
	err := New(KindNotFound, "service missing")
	assert.True(t, IsKind(err, KindNotFound))
	assert.False(t, IsKind(err, KindHTTPError))
	assert.False(t, IsKind(nil, KindNotFound))
	assert.False(t, IsKind(errors.New("plain"), KindNotFound))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestWithStatus(t *testing.T) {
	err := New(KindHTTPError, "bad gateway").WithStatus(502)
	var e *Error
	require.ErrorAs(t, error(err), &e)
	assert.Equal(t, 502, e.StatusCode)
}
