package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunksKeepGroupsWhole(t *testing.T) {
	b := NewBatch()
	b.Add(IncrementUnread{UserID: "a"}, IncrementUnread{UserID: "a"})
	b.Add(IncrementUnread{UserID: "b"}, IncrementUnread{UserID: "b"})
	b.Add(IncrementUnread{UserID: "c"})

	assert.Equal(t, 5, b.Len())
	assert.Equal(t, 3, b.Groups())

	chunks, err := b.Chunks(3)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 1)
	assert.Len(t, chunks[1], 2)
}

func TestChunksDefaultLimit(t *testing.T) {
	b := NewBatch()
	for i := 0; i < DefaultMaxBatchOps+1; i++ {
		b.Add(IncrementUnread{UserID: "u"})
	}

	chunks, err := b.Chunks(0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], DefaultMaxBatchOps)
	assert.Len(t, chunks[1], 1)
}

func TestChunksRejectOversizedGroup(t *testing.T) {
	b := NewBatch()
	b.Add(IncrementUnread{UserID: "a"}, IncrementUnread{UserID: "a"}, IncrementUnread{UserID: "a"})

	_, err := b.Chunks(2)
	assert.ErrorIs(t, err, ErrGroupTooLarge)
}

func TestEmptyBatch(t *testing.T) {
	b := NewBatch()
	b.Add()

	assert.True(t, b.Empty())
	chunks, err := b.Chunks(10)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
