package caching

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/cryfs-go/blockfs/pkg/blocklog"
	"github.com/cryfs-go/blockfs/pkg/blockmetrics"
	"github.com/cryfs-go/blockfs/pkg/blockstore"
)

// cacheEntry is the in-memory record for one cached block.
type cacheEntry struct {
	id             blockstore.BlockId
	body           []byte
	dirty          bool
	neverPersisted bool
	lastAccessed   time.Time
	elem           *list.Element
}

// Store is a bounded, write-back cache over an inner blockstore.BlockStore.
// Eviction is LRU; a background goroutine flushes dirty entries idle past
// flushAfterIdle on a fixed sweep interval. Call Close to stop the worker
// and flush everything outstanding.
type Store struct {
	inner blockstore.BlockStore

	maxEntries     int
	flushAfterIdle time.Duration
	sweepInterval  time.Duration

	mu      sync.Mutex
	entries map[blockstore.BlockId]*cacheEntry
	lru     *list.List // front = most recently used

	stopCh chan struct{}
	doneCh chan struct{}
}

var _ blockstore.BlockStore = (*Store)(nil)
var _ blockstore.Flusher = (*Store)(nil)

// New wraps inner with a write-back cache bounded to maxEntries, flushing
// entries idle for at least flushAfterIdle on every sweepInterval tick.
func New(inner blockstore.BlockStore, maxEntries int, flushAfterIdle, sweepInterval time.Duration) *Store {
	s := &Store{
		inner:          inner,
		maxEntries:     maxEntries,
		flushAfterIdle: flushAfterIdle,
		sweepInterval:  sweepInterval,
		entries:        make(map[blockstore.BlockId]*cacheEntry),
		lru:            list.New(),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// Close stops the background flusher and synchronously flushes every
// dirty entry before returning.
func (s *Store) Close(ctx context.Context) error {
	close(s.stopCh)
	<-s.doneCh
	return s.flushAll(ctx)
}

// Flush synchronously writes back every dirty entry without stopping the
// background worker, so the cache keeps flushing idle entries afterward.
func (s *Store) Flush(ctx context.Context) error {
	return s.flushAll(ctx)
}

func (s *Store) flushLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepIdle()
		}
	}
}

func (s *Store) sweepIdle() {
	cutoff := time.Now().Add(-s.flushAfterIdle)

	s.mu.Lock()
	var candidates []*cacheEntry
	for _, e := range s.entries {
		if e.dirty && e.lastAccessed.Before(cutoff) {
			candidates = append(candidates, e)
		}
	}
	s.mu.Unlock()

	for _, e := range candidates {
		if err := s.writeBack(context.Background(), e); err != nil {
			blocklog.WithComponent("caching").Warn().
				Err(err).Str("block_id", e.id.String()).
				Msg("background flush failed, entry remains dirty")
		}
	}
}

func (s *Store) flushAll(ctx context.Context) error {
	s.mu.Lock()
	var candidates []*cacheEntry
	for _, e := range s.entries {
		if e.dirty {
			candidates = append(candidates, e)
		}
	}
	s.mu.Unlock()

	var firstErr error
	for _, e := range candidates {
		if err := s.writeBack(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// writeBack persists a dirty entry's current body and clears dirty on
// success. The entry is looked up fresh under the lock so a concurrent
// mutation isn't lost to a stale snapshot.
func (s *Store) writeBack(ctx context.Context, e *cacheEntry) error {
	s.mu.Lock()
	current, ok := s.entries[e.id]
	if !ok || !current.dirty {
		s.mu.Unlock()
		return nil
	}
	body := current.body
	s.mu.Unlock()

	timer := blockmetrics.NewTimer()
	err := s.inner.Store(ctx, e.id, body)
	timer.ObserveDuration(blockmetrics.CacheFlushDuration)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if current, ok := s.entries[e.id]; ok {
		current.dirty = false
		current.neverPersisted = false
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) touch(e *cacheEntry) {
	e.lastAccessed = time.Now()
	s.lru.MoveToFront(e.elem)
}

// evictLRUIfNeeded must be called with s.mu held.
func (s *Store) evictLRUIfNeeded(ctx context.Context) error {
	for len(s.entries) > s.maxEntries {
		back := s.lru.Back()
		if back == nil {
			return nil
		}
		victim := back.Value.(*cacheEntry)

		if victim.dirty {
			s.mu.Unlock()
			err := s.writeBack(ctx, victim)
			s.mu.Lock()
			if err != nil {
				return err
			}
		}

		s.lru.Remove(back)
		delete(s.entries, victim.id)
		blockmetrics.CacheEntriesCurrent.Set(float64(len(s.entries)))
		blockmetrics.CacheEvictionsTotal.Inc()
	}
	return nil
}

func (s *Store) TryCreate(ctx context.Context, id blockstore.BlockId, data []byte) (bool, error) {
	s.mu.Lock()
	if _, exists := s.entries[id]; exists {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	// Creation is eager: write through immediately so a concurrent loader
	// observes the block, then cache the body clean.
	created, err := s.inner.TryCreate(ctx, id, data)
	if err != nil || !created {
		return created, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(id, data, false)
	if err := s.evictLRUIfNeeded(ctx); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store) Store(ctx context.Context, id blockstore.BlockId, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.entries[id]; exists {
		e.body = data
		e.dirty = true
		s.touch(e)
		return s.evictLRUIfNeeded(ctx)
	}

	s.insertLocked(id, data, true)
	return s.evictLRUIfNeeded(ctx)
}

// insertLocked must be called with s.mu held.
func (s *Store) insertLocked(id blockstore.BlockId, data []byte, dirty bool) {
	e := &cacheEntry{id: id, body: data, dirty: dirty, lastAccessed: time.Now()}
	e.elem = s.lru.PushFront(e)
	s.entries[id] = e
	blockmetrics.CacheEntriesCurrent.Set(float64(len(s.entries)))
}

func (s *Store) Load(ctx context.Context, id blockstore.BlockId) ([]byte, bool, error) {
	s.mu.Lock()
	if e, exists := s.entries[id]; exists {
		s.touch(e)
		body := e.body
		s.mu.Unlock()
		blockmetrics.CacheHitsTotal.Inc()
		return body, true, nil
	}
	s.mu.Unlock()

	blockmetrics.CacheMissesTotal.Inc()
	data, ok, err := s.inner.Load(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, exists := s.entries[id]; exists {
		// Lost the race to a concurrent loader; prefer what is already cached.
		s.touch(e)
		return e.body, true, nil
	}
	s.insertLocked(id, data, false)
	if err := s.evictLRUIfNeeded(ctx); err != nil {
		return data, true, err
	}
	return data, true, nil
}

func (s *Store) Remove(ctx context.Context, id blockstore.BlockId) (bool, error) {
	s.mu.Lock()
	if e, exists := s.entries[id]; exists {
		s.lru.Remove(e.elem)
		delete(s.entries, id)
		blockmetrics.CacheEntriesCurrent.Set(float64(len(s.entries)))
	}
	s.mu.Unlock()

	return s.inner.Remove(ctx, id)
}

func (s *Store) NumBlocks(ctx context.Context) (uint64, error) {
	return s.inner.NumBlocks(ctx)
}

func (s *Store) ForEachBlock(ctx context.Context, cb func(blockstore.BlockId) error) error {
	return s.inner.ForEachBlock(ctx, cb)
}

func (s *Store) EstimateFreeBytes(ctx context.Context) (uint64, error) {
	return s.inner.EstimateFreeBytes(ctx)
}
