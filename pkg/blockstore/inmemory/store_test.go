package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryfs-go/blockfs/pkg/blockstore"
)

func TestStore_TryCreateAndLoad(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := blockstore.NewBlockId()

	created, err := s.TryCreate(ctx, id, []byte("payload"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.TryCreate(ctx, id, []byte("other"))
	require.NoError(t, err)
	assert.False(t, created)

	data, ok, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), data)
}

func TestStore_StoreRemoveLoad(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := blockstore.NewBlockId()

	require.NoError(t, s.Store(ctx, id, []byte("v1")))
	data, ok, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), data)

	removed, err := s.Remove(ctx, id)
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok, err = s.Load(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_NumBlocksAndForEach(t *testing.T) {
	ctx := context.Background()
	s := New()
	ids := make(map[blockstore.BlockId]bool)
	for i := 0; i < 10; i++ {
		id := blockstore.NewBlockId()
		require.NoError(t, s.Store(ctx, id, []byte("x")))
		ids[id] = true
	}

	n, err := s.NumBlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), n)

	seen := make(map[blockstore.BlockId]bool)
	require.NoError(t, s.ForEachBlock(ctx, func(id blockstore.BlockId) error {
		seen[id] = true
		return nil
	}))
	assert.Equal(t, ids, seen)
}

func TestStore_EstimateFreeBytes(t *testing.T) {
	free, err := s().EstimateFreeBytes(context.Background())
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}

func s() *Store { return New() }
