package blobstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryfs-go/blockfs/pkg/blockstore"
	"github.com/cryfs-go/blockfs/pkg/blockstore/inmemory"
)

// small leaf/fanout so a handful of kilobytes of test data spans multiple
// tree depths, exercising the same code paths a real multi-gigabyte blob
// would hit.
func newTestStore() *Store {
	return New(inmemory.New(), Config{LeafMax: 16, Fanout: 4})
}

func TestBlob_CreateIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	b, err := s.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.Size())

	data, err := b.Read(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestBlob_WriteThenReadRoundtrips(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	b, err := s.Create(ctx)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("abcdefgh"), 40) // 320 bytes, spans many leaves
	require.NoError(t, b.Write(ctx, 0, payload))
	assert.Equal(t, int64(len(payload)), b.Size())

	got, err := b.Read(ctx, 0, int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestBlob_RandomAccessWriteWithinExistingRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	b, err := s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Write(ctx, 0, bytes.Repeat([]byte{0xAA}, 300)))

	require.NoError(t, b.Write(ctx, 137, []byte("patch")))

	got, err := b.Read(ctx, 137, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("patch"), got)

	before, err := b.Read(ctx, 132, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 'p', 'a'}, before)
}

func TestBlob_WritePastEndGrowsWithZeroFilledHole(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	b, err := s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Write(ctx, 0, []byte("head")))
	require.NoError(t, b.Write(ctx, 200, []byte("tail")))

	assert.Equal(t, int64(204), b.Size())

	hole, err := b.Read(ctx, 4, 196)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 196), hole)

	tail, err := b.Read(ctx, 200, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("tail"), tail)
}

func TestBlob_ReadClampsPastEndOfBlob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	b, err := s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Write(ctx, 0, []byte("hello")))

	got, err := b.Read(ctx, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestBlob_GrowPastDepthTwoAndReopenPreservesContentAndId(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	b, err := s.Create(ctx)
	require.NoError(t, err)
	id := b.BlockId()

	// LeafMax=16, Fanout=4: depth-1 capacity is 64, depth-2 is 256. Push
	// well past that so the root gets wrapped at least twice.
	payload := bytes.Repeat([]byte("0123456789abcdef"), 50) // 800 bytes
	require.NoError(t, b.Write(ctx, 0, payload))
	assert.Equal(t, id, b.BlockId(), "root id must stay stable across grow")

	reopened, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), reopened.Size())

	got, err := reopened.Read(ctx, 0, int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestBlob_ShrinkCollapsesRootBackToLeaf(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	b, err := s.Create(ctx)
	require.NoError(t, err)
	id := b.BlockId()

	payload := bytes.Repeat([]byte("x"), 800)
	require.NoError(t, b.Write(ctx, 0, payload))

	require.NoError(t, b.Resize(ctx, 5))
	assert.Equal(t, int64(5), b.Size())
	assert.Equal(t, id, b.BlockId())
	assert.Equal(t, 0, b.depth, "shrinking within a single leaf's capacity must collapse back to a leaf")

	got, err := b.Read(ctx, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, payload[:5], got)

	reopened, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), reopened.Size())
	assert.Equal(t, 0, reopened.depth)
}

func TestBlob_ShrinkToZeroThenGrowAgain(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	b, err := s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Write(ctx, 0, bytes.Repeat([]byte("y"), 500)))

	require.NoError(t, b.Resize(ctx, 0))
	assert.Equal(t, int64(0), b.Size())

	require.NoError(t, b.Write(ctx, 0, []byte("reborn")))
	got, err := b.Read(ctx, 0, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte("reborn"), got)
}

func TestBlob_ResizeRejectsNegativeSize(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	b, err := s.Create(ctx)
	require.NoError(t, err)

	err = b.Resize(ctx, -1)
	require.Error(t, err)
	kind, ok := blockstore.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, blockstore.KindInvariantViolation, kind)
}

func TestStore_RemoveDeletesEveryBlockInTree(t *testing.T) {
	ctx := context.Background()
	base := inmemory.New()
	s := New(base, Config{LeafMax: 16, Fanout: 4})

	b, err := s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Write(ctx, 0, bytes.Repeat([]byte("z"), 800)))

	before, err := base.NumBlocks(ctx)
	require.NoError(t, err)
	assert.Greater(t, before, uint64(1))

	require.NoError(t, s.Remove(ctx, b.BlockId()))

	after, err := base.NumBlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), after)
}

func TestStore_LoadMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	_, err := s.Load(ctx, blockstore.NewBlockId())
	require.Error(t, err)
	kind, ok := blockstore.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, blockstore.KindNotFound, kind)
}
