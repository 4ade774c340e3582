package providers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Transient(t *testing.T) {
	tests := []struct {
		kind      ErrorKind
		transient bool
	}{
		{KindRateLimited, true},
		{KindUnavailable, true},
		{KindTimeout, true},
		{KindInvalidRequest, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := NewError(tt.kind, "azure", "call failed", nil)
			assert.Equal(t, tt.transient, err.Transient())
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestIsTransient_NonProviderError(t *testing.T) {
	assert.False(t, IsTransient(errors.New("plain error")))
	assert.False(t, IsTransient(nil))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(KindUnavailable, "local", "endpoint unreachable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "endpoint unreachable")
	assert.Contains(t, err.Error(), "Unavailable")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKindOf(t *testing.T) {
	err := NewError(KindRateLimited, "bedrock", "throttled", nil)
	assert.Equal(t, KindRateLimited, KindOf(err))

	wrapped := fmt.Errorf("invoking model: %w", err)
	assert.Equal(t, KindRateLimited, KindOf(wrapped))

	assert.Equal(t, ErrorKind(""), KindOf(errors.New("other")))
}
