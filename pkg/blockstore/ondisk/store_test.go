package ondisk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryfs-go/blockfs/pkg/blockstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestStore_TryCreateThenLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := blockstore.NewBlockId()

	created, err := s.TryCreate(ctx, id, []byte("hello"))
	require.NoError(t, err)
	assert.True(t, created)

	data, ok, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), data)
}

func TestStore_TryCreateTwiceFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := blockstore.NewBlockId()

	created, err := s.TryCreate(ctx, id, []byte("a"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.TryCreate(ctx, id, []byte("b"))
	require.NoError(t, err)
	assert.False(t, created)

	data, _, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
}

func TestStore_LoadMissingReturnsNotOk(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data, ok, err := s.Load(ctx, blockstore.NewBlockId())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestStore_StoreOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := blockstore.NewBlockId()

	require.NoError(t, s.Store(ctx, id, []byte("v1")))
	require.NoError(t, s.Store(ctx, id, []byte("v2-longer")))

	data, ok, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v2-longer"), data)
}

func TestStore_RemoveDeletesFileAndEmptyPrefixDir(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := blockstore.NewBlockId()
	require.NoError(t, s.Store(ctx, id, []byte("x")))

	removed, err := s.Remove(ctx, id)
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := os.ReadDir(s.rootDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "empty prefix directory should have been removed")
}

func TestStore_RemoveMissingReturnsFalse(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	removed, err := s.Remove(ctx, blockstore.NewBlockId())
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_NumBlocksAndForEachBlock(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	want := make(map[blockstore.BlockId]bool)
	for i := 0; i < 5; i++ {
		id := blockstore.NewBlockId()
		require.NoError(t, s.Store(ctx, id, []byte("payload")))
		want[id] = true
	}

	n, err := s.NumBlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)

	got := make(map[blockstore.BlockId]bool)
	err = s.ForEachBlock(ctx, func(id blockstore.BlockId) error {
		got[id] = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_LoadRejectsUnrecognizedHeader(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := blockstore.NewBlockId()

	p := s.path(id)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0700))
	require.NoError(t, os.WriteFile(p, []byte("not-a-cryfs-block"), 0600))

	_, _, err := s.Load(ctx, id)
	require.Error(t, err)
	assert.True(t, blockstore.IsIntegrityViolation(err))
}

func TestStore_LoadRejectsUnsupportedVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := blockstore.NewBlockId()

	p := s.path(id)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0700))
	framed := append([]byte(formatVersionHeaderPrefix+"99"), 0, 'x')
	require.NoError(t, os.WriteFile(p, framed, 0600))

	_, _, err := s.Load(ctx, id)
	require.Error(t, err)
	assert.True(t, blockstore.IsIntegrityViolation(err))

	var e *blockstore.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, blockstore.ViolationUnsupportedFormat, e.Violation)
}

func TestStore_EstimateFreeBytes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	free, err := s.EstimateFreeBytes(ctx)
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}

func TestBlockSizeFromPhysicalSize(t *testing.T) {
	assert.Equal(t, uint64(0), BlockSizeFromPhysicalSize(0))
	assert.Equal(t, uint64(0), BlockSizeFromPhysicalSize(uint64(headerSize())))
	assert.Equal(t, uint64(10), BlockSizeFromPhysicalSize(uint64(headerSize())+10))
}
