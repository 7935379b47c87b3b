package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	e := New(KindValidation, "bad input")
	assert.Equal(t, "[validation] bad input", e.Error())

	wrapped := Wrap(stderrors.New("boom"), KindBackend, "vector store unavailable")
	assert.Equal(t, "[backend] vector store unavailable: boom", wrapped.Error())
}

func TestWrapNil(t *testing.T) {
	err := Wrap(nil, KindBackend, "ignored")
	assert.NoError(t, err)
	// A nil wrap must compare equal to nil without unwrapping, so callers
	// can return Wrap(...) unconditionally.
	assert.True(t, err == nil)
}

func TestUnwrapChain(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, KindTransient, "sync failed")

	assert.ErrorIs(t, err, cause)

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, KindTransient, e.Kind)
}

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFound("no such repo"))
	assert.ErrorIs(t, err, New(KindNotFound, "anything"))
	assert.NotErrorIs(t, err, New(KindAuth, "anything"))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("x")))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("wrapped: %w", NotFound("x"))))
	assert.Equal(t, KindFatal, KindOf(stderrors.New("plain")))
}

func TestIsKind(t *testing.T) {
	err := Transient("retry later", nil)
	assert.True(t, IsKind(err, KindTransient))
	assert.False(t, IsKind(err, KindBackend))
	assert.False(t, IsKind(stderrors.New("plain"), KindTransient))
	assert.False(t, IsKind(nil, KindTransient))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Transient("timeout", nil)))
	assert.True(t, IsRetryable(Backend("qdrant down", nil)))
	assert.False(t, IsRetryable(Validation("bad request")))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestWithDetail(t *testing.T) {
	err := Validation("invalid repository").
		WithDetail("repository", "docs").
		WithDetail("field", "url")
	assert.Equal(t, "docs", err.Details["repository"])
	assert.Equal(t, "url", err.Details["field"])
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{Validation("bad"), http.StatusBadRequest},
		{New(KindSecurity, "traversal"), http.StatusBadRequest},
		{New(KindAuth, "no token"), http.StatusUnauthorized},
		{NotFound("missing"), http.StatusNotFound},
		{Transient("retry", nil), http.StatusServiceUnavailable},
		{Backend("down", nil), http.StatusServiceUnavailable},
		{New(KindFatal, "broken"), http.StatusInternalServerError},
		{stderrors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err))
	}
}
