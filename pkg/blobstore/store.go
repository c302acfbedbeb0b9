package blobstore

import (
	"context"
	"fmt"

	"github.com/cryfs-go/blockfs/pkg/blockstore"
)

// DefaultFanout is the number of children an inner node holds when the
// caller does not override it via Config.
const DefaultFanout = 8

// Config controls the tree shape a Store builds. LeafMax is the maximum
// number of plaintext bytes held in a single leaf block; it should leave
// enough headroom under the backing BlockStore's block size for the
// blobstore's own node header plus whatever framing the layers below add
// (AEAD tag, nonce prefix, format header).
type Config struct {
	LeafMax int
	Fanout  int
}

// Store builds and opens Blobs as trees of blocks over an inner
// blockstore.BlockStore. It holds no per-blob state itself; every Blob
// tracks its own size and depth once loaded.
type Store struct {
	store   blockstore.BlockStore
	leafMax int
	fanout  int
}

// New returns a Store backed by store, using cfg's tree shape (or
// DefaultFanout, and 4 * IDSize * DefaultFanout = 512 bytes of leaf
// capacity, for fields left zero).
func New(store blockstore.BlockStore, cfg Config) *Store {
	fanout := cfg.Fanout
	if fanout <= 0 {
		fanout = DefaultFanout
	}
	leafMax := cfg.LeafMax
	if leafMax <= 0 {
		leafMax = 4 * blockstore.IDSize * DefaultFanout
	}
	return &Store{store: store, leafMax: leafMax, fanout: fanout}
}

// Flush forces any buffered writes in the underlying BlockStore durable,
// if it buffers at all (it forwards via blockstore.Flusher; a store with
// no buffering layer, e.g. ondisk or inmemory directly, is already
// durable on every write and this is a no-op).
func (s *Store) Flush(ctx context.Context) error {
	if f, ok := s.store.(blockstore.Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// Create allocates a fresh, empty blob and returns a handle to it.
func (s *Store) Create(ctx context.Context) (*Blob, error) {
	id := blockstore.NewBlockId()
	if _, err := s.store.TryCreate(ctx, id, encodeLeaf(nil)); err != nil {
		return nil, err
	}
	return &Blob{store: s, id: id, size: 0, depth: 0}, nil
}

// Load opens the existing blob rooted at id, recovering its depth from the
// root node's own bytes and its size by walking the rightmost spine of
// the tree (the only path whose occupancy isn't implied by full subtrees).
func (s *Store) Load(ctx context.Context, id blockstore.BlockId) (*Blob, error) {
	raw, ok, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, blockstore.NotFound("blobstore.Load", id)
	}

	depth, err := depthOf(id, raw)
	if err != nil {
		return nil, err
	}

	size, err := s.sizeOfSpine(ctx, id, raw, depth)
	if err != nil {
		return nil, err
	}

	return &Blob{store: s, id: id, size: size, depth: depth}, nil
}

// sizeOfSpine computes the occupied byte count of the subtree rooted at id
// (whose raw bytes and depth are already known), by summing full children
// plus a recursive measurement of the last (possibly partial) child.
func (s *Store) sizeOfSpine(ctx context.Context, id blockstore.BlockId, raw []byte, depth int) (int64, error) {
	if depth == 0 {
		body, err := decodeLeaf(id, raw)
		if err != nil {
			return 0, err
		}
		return int64(len(body)), nil
	}

	_, children, err := decodeInner(id, raw)
	if err != nil {
		return 0, err
	}
	if len(children) == 0 {
		return 0, blockstore.InvariantViolation("blobstore.sizeOfSpine", "inner node %s has no children", id)
	}

	capPerChild := capacity(s.leafMax, s.fanout, depth-1)
	lastIdx := len(children) - 1

	lastRaw, ok, err := s.store.Load(ctx, children[lastIdx])
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, blockstore.NotFound("blobstore.sizeOfSpine", children[lastIdx])
	}
	lastUsed, err := s.sizeOfSpine(ctx, children[lastIdx], lastRaw, depth-1)
	if err != nil {
		return 0, err
	}

	return int64(lastIdx)*capPerChild + lastUsed, nil
}

// Remove deletes every block belonging to the blob rooted at id.
func (s *Store) Remove(ctx context.Context, id blockstore.BlockId) error {
	raw, ok, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return blockstore.NotFound("blobstore.Remove", id)
	}
	depth, err := depthOf(id, raw)
	if err != nil {
		return err
	}
	return s.removeSubtree(ctx, id, depth)
}

func (s *Store) String() string {
	return fmt.Sprintf("blobstore.Store(leafMax=%d, fanout=%d)", s.leafMax, s.fanout)
}
