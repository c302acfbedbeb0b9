package inmemory

import (
	"context"
	"sync"

	"github.com/cryfs-go/blockfs/pkg/blockstore"
)

const formatVersionHeaderPrefix = "cryfs;block;"
const formatVersionHeader = formatVersionHeaderPrefix + "0"

func headerSize() int { return len(formatVersionHeader) + 1 }

// Store is a map-backed BlockStore. Zero value is not usable; use New.
type Store struct {
	mu     sync.RWMutex
	blocks map[blockstore.BlockId][]byte
}

var _ blockstore.BlockStore = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{blocks: make(map[blockstore.BlockId][]byte)}
}

func (s *Store) TryCreate(_ context.Context, id blockstore.BlockId, data []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blocks[id]; exists {
		return false, nil
	}
	s.blocks[id] = frame(data)
	return true, nil
}

func (s *Store) Store(_ context.Context, id blockstore.BlockId, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[id] = frame(data)
	return nil
}

func (s *Store) Load(_ context.Context, id blockstore.BlockId) ([]byte, bool, error) {
	s.mu.RLock()
	raw, exists := s.blocks[id]
	s.mu.RUnlock()
	if !exists {
		return nil, false, nil
	}
	body, err := unframe(raw)
	if err != nil {
		return nil, false, blockstore.IntegrityViolation("inmemory.load", id, blockstore.ViolationNotABlock, err)
	}
	return body, true, nil
}

func (s *Store) Remove(_ context.Context, id blockstore.BlockId) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blocks[id]; !exists {
		return false, nil
	}
	delete(s.blocks, id)
	return true, nil
}

func (s *Store) NumBlocks(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.blocks)), nil
}

func (s *Store) ForEachBlock(_ context.Context, cb func(blockstore.BlockId) error) error {
	s.mu.RLock()
	ids := make([]blockstore.BlockId, 0, len(s.blocks))
	for id := range s.blocks {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if err := cb(id); err != nil {
			return err
		}
	}
	return nil
}

// EstimateFreeBytes reports an arbitrarily large number: the in-memory
// store is bounded only by process memory.
func (s *Store) EstimateFreeBytes(_ context.Context) (uint64, error) {
	return 1 << 40, nil
}

func frame(data []byte) []byte {
	framed := make([]byte, headerSize()+len(data))
	copy(framed, formatVersionHeader)
	copy(framed[headerSize():], data)
	return framed
}

func unframe(raw []byte) ([]byte, error) {
	if len(raw) < headerSize() || string(raw[:headerSize()-1]) != formatVersionHeader {
		return nil, blockstore.InvariantViolation("inmemory.unframe", "corrupt in-memory block header")
	}
	return raw[headerSize():], nil
}
