package logx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("test-component")
	require.NotNil(t, logger)
	assert.Equal(t, "test-component", logger.Component())
}

func TestWithComponent(t *testing.T) {
	logger := NewLogger("parent")
	child := logger.WithComponent("child")

	assert.Equal(t, "parent", logger.Component())
	assert.Equal(t, "child", child.Component())
}

func TestSetDebug(t *testing.T) {
	orig := IsDebugEnabled()
	defer SetDebug(orig)

	SetDebug(true)
	assert.True(t, IsDebugEnabled())

	SetDebug(false)
	assert.False(t, IsDebugEnabled())
}

func TestErrorf(t *testing.T) {
	err := Errorf("operation failed: %s", "reason")
	require.Error(t, err)
	assert.Equal(t, "operation failed: reason", err.Error())
}

func TestWrap(t *testing.T) {
	base := errors.New("disk full")
	wrapped := Wrap(base, "save checkpoint")
	require.Error(t, wrapped)
	assert.Equal(t, "save checkpoint: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "no-op"))
}
