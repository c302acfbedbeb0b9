package parallelaccess

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryfs-go/blockfs/pkg/blockstore"
	"github.com/cryfs-go/blockfs/pkg/blockstore/inmemory"
)

func TestStore_StoreThenLoadRoundtrips(t *testing.T) {
	ctx := context.Background()
	s := New(inmemory.New())
	id := blockstore.NewBlockId()

	require.NoError(t, s.Store(ctx, id, []byte("payload")))

	data, ok, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), data)
}

// slowStore wraps a blockstore.BlockStore, stalling every Load so
// concurrent callers overlap long enough to exercise the in-flight counter.
type slowStore struct {
	blockstore.BlockStore
	delay  time.Duration
	active int32
	peak   int32
}

func (s *slowStore) Load(ctx context.Context, id blockstore.BlockId) ([]byte, bool, error) {
	n := atomic.AddInt32(&s.active, 1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	time.Sleep(s.delay)
	defer atomic.AddInt32(&s.active, -1)
	return s.BlockStore.Load(ctx, id)
}

func TestStore_SerializesConcurrentLoadsOfSameId(t *testing.T) {
	ctx := context.Background()
	base := inmemory.New()
	id := blockstore.NewBlockId()
	require.NoError(t, base.Store(ctx, id, []byte("x")))

	slow := &slowStore{BlockStore: base, delay: 20 * time.Millisecond}
	s := New(slow)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.Load(ctx, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&slow.peak), "at most one in-flight load for a given id")
}

func TestStore_DistinctIdsRunConcurrently(t *testing.T) {
	ctx := context.Background()
	base := inmemory.New()
	ids := make([]blockstore.BlockId, 5)
	for i := range ids {
		ids[i] = blockstore.NewBlockId()
		require.NoError(t, base.Store(ctx, ids[i], []byte("x")))
	}

	slow := &slowStore{BlockStore: base, delay: 50 * time.Millisecond}
	s := New(slow)

	start := time.Now()
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id blockstore.BlockId) {
			defer wg.Done()
			_, _, err := s.Load(ctx, id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	assert.Less(t, time.Since(start), 200*time.Millisecond, "distinct ids should not serialize against each other")
}

func TestStore_EntryRemovedFromTableAfterUse(t *testing.T) {
	ctx := context.Background()
	s := New(inmemory.New())
	id := blockstore.NewBlockId()

	require.NoError(t, s.Store(ctx, id, []byte("x")))

	s.tableMu.Lock()
	_, stillPresent := s.table[id]
	s.tableMu.Unlock()
	assert.False(t, stillPresent)
}

func TestStore_RemoveDelegates(t *testing.T) {
	ctx := context.Background()
	base := inmemory.New()
	s := New(base)
	id := blockstore.NewBlockId()
	require.NoError(t, s.Store(ctx, id, []byte("x")))

	removed, err := s.Remove(ctx, id)
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok, err := base.Load(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}
