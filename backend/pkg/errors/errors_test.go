package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackendUnavailable_IsRetryable(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := fmt.Errorf("read_graph: %w", NewBackendUnavailable("read_graph", cause))

	assert.True(t, IsBackendUnavailable(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, IsErrorType(err, ErrorTypeBackend))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestOperationFailed_NotRetryable(t *testing.T) {
	err := NewOperationFailed("create_entities", context.Canceled)

	assert.False(t, IsBackendUnavailable(err))
	assert.False(t, IsRetryable(err))
	assert.True(t, IsErrorType(err, ErrorTypeOperation))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEntityNotFound(t *testing.T) {
	err := NewEntityNotFound("Sarah")

	assert.True(t, IsNotFound(err))
	assert.Equal(t, "[not_found] entity not found: Sarah", err.Error())

	kind, ok := TypeOf(err)
	assert.True(t, ok)
	assert.Equal(t, ErrorTypeNotFound, kind)
}

func TestTypeOf_PlainError(t *testing.T) {
	_, ok := TypeOf(stderrors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsRetryable(stderrors.New("plain")))
}
