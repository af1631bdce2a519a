package sockets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
)

func TestArena_InsertNeverIssuesZeroHandle(t *testing.T) {
	t.Parallel()

	var a arena
	h := a.insert(&record{})
	assert.False(t, h.IsZero())
	assert.Equal(t, uint32(0), h.Slot())
	assert.Equal(t, uint32(1), h.Generation())

	_, err := a.get(0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidHandle)
}

func TestArena_RemovedSlotIsReusedWithNewGeneration(t *testing.T) {
	t.Parallel()

	var a arena
	first := a.insert(&record{})
	_, err := a.remove(first)
	require.NoError(t, err)

	second := a.insert(&record{})
	assert.Equal(t, first.Slot(), second.Slot())
	assert.NotEqual(t, first, second)

	_, err = a.get(first)
	assert.ErrorIs(t, err, apperrors.ErrInvalidHandle, "stale handle must not reach the new record")
	_, err = a.get(second)
	assert.NoError(t, err)
}

func TestArena_ReplaceRetiresOldHandle(t *testing.T) {
	t.Parallel()

	var a arena
	listener := &record{}
	accepted := &record{}
	h := a.insert(listener)

	next, old, err := a.replace(h, accepted)
	require.NoError(t, err)
	assert.Same(t, listener, old)
	assert.Equal(t, h.Slot(), next.Slot())

	_, err = a.get(h)
	assert.ErrorIs(t, err, apperrors.ErrInvalidHandle)

	got, err := a.get(next)
	require.NoError(t, err)
	assert.Same(t, accepted, got)
}

func TestArena_DoubleRemove(t *testing.T) {
	t.Parallel()

	var a arena
	h := a.insert(&record{})
	_, err := a.remove(h)
	require.NoError(t, err)
	_, err = a.remove(h)
	assert.ErrorIs(t, err, apperrors.ErrInvalidHandle)
}

func TestArena_Drain(t *testing.T) {
	t.Parallel()

	var a arena
	h1 := a.insert(&record{})
	a.insert(&record{})
	_, err := a.remove(h1)
	require.NoError(t, err)
	a.insert(&record{})

	assert.Len(t, a.handles(), 2)
	assert.Len(t, a.drain(), 2)
	assert.Empty(t, a.handles())
	assert.Empty(t, a.drain())
}
