package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorConflict, "conflict"},
		{ErrorFatal, "fatal"},
		{ErrorClass(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.class.String())
	}
}

func TestWrap(t *testing.T) {
	base := stderrors.New("dial refused")
	err := Wrap(base, "engine", "Start", "connect to source")
	require.Error(t, err)
	assert.Equal(t, "engine.Start: connect to source failed: dial refused", err.Error())
	assert.True(t, stderrors.Is(err, base))

	assert.NoError(t, Wrap(nil, "engine", "Start", "connect"))
}

func TestWrapVariants_Classification(t *testing.T) {
	base := stderrors.New("boom")

	tests := []struct {
		name  string
		err   error
		class ErrorClass
	}{
		{"transient", WrapTransient(base, "c", "m", "a"), ErrorTransient},
		{"invalid", WrapInvalid(base, "c", "m", "a"), ErrorInvalid},
		{"conflict", WrapConflict(base, "c", "m", "a"), ErrorConflict},
		{"fatal", WrapFatal(base, "c", "m", "a"), ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.class, Classify(tt.err))

			var ce *ClassifiedError
			require.True(t, stderrors.As(tt.err, &ce))
			assert.Equal(t, "c", ce.Component)
			assert.True(t, stderrors.Is(tt.err, base), "wrapping must preserve the chain")
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(ErrConnectionLost))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(fmt.Errorf("read tcp: i/o timeout")))
	assert.False(t, IsTransient(WrapInvalid(ErrInvalidConfig, "c", "m", "a")))
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(ErrRunConflict))
	assert.True(t, IsConflict(WrapConflict(ErrRunConflict, "engine", "UpdateConfig", "reject while running")))
	assert.False(t, IsConflict(ErrInvalidConfig))
	assert.False(t, IsConflict(nil))
}

func TestIsInvalid(t *testing.T) {
	assert.True(t, IsInvalid(ErrInvalidMapping))
	assert.True(t, IsInvalid(fmt.Errorf("seed: %w", ErrInvalidConfig)))
	assert.False(t, IsInvalid(ErrConnectionLost))
}
