package blobstore

import (
	"context"
	"sync"

	"github.com/cryfs-go/blockfs/pkg/blockstore"
)

// Blob is a resizable byte sequence backed by a tree of blocks. Its
// identity is its root BlockId, stable across every resize.
type Blob struct {
	store *Store
	id    blockstore.BlockId

	mu    sync.Mutex
	size  int64
	depth int
}

// BlockId returns the blob's stable root id.
func (b *Blob) BlockId() blockstore.BlockId {
	return b.id
}

// Size returns the blob's current length in bytes.
func (b *Blob) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *Blob) capOf(depth int) int64 {
	return capacity(b.store.leafMax, b.store.fanout, depth)
}

// Read returns the length bytes starting at offset. Reads past the current
// size are clamped to what is available.
func (b *Blob) Read(ctx context.Context, offset, length int64) ([]byte, error) {
	b.mu.Lock()
	size, depth, id := b.size, b.depth, b.id
	b.mu.Unlock()

	if offset < 0 || offset > size {
		return nil, blockstore.InvariantViolation("blob.read", "offset %d out of range for size %d", offset, size)
	}
	if offset+length > size {
		length = size - offset
	}
	if length <= 0 {
		return []byte{}, nil
	}

	out := make([]byte, length)
	if err := b.store.readAt(ctx, id, depth, offset, out); err != nil {
		return nil, err
	}
	return out, nil
}

// readAt fills dest (its length is the read length) starting at offset
// within the subtree rooted at id.
func (s *Store) readAt(ctx context.Context, id blockstore.BlockId, depth int, offset int64, dest []byte) error {
	if len(dest) == 0 {
		return nil
	}
	raw, ok, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return blockstore.NotFound("blob.readAt", id)
	}

	if depth == 0 {
		data, err := decodeLeaf(id, raw)
		if err != nil {
			return err
		}
		if offset+int64(len(dest)) > int64(len(data)) {
			return blockstore.InvariantViolation("blob.readAt", "leaf %s too short for requested range", id)
		}
		copy(dest, data[offset:offset+int64(len(dest))])
		return nil
	}

	_, children, err := decodeInner(id, raw)
	if err != nil {
		return err
	}
	capPerChild := capacity(s.leafMax, s.fanout, depth-1)

	childIndex := int(offset / capPerChild)
	childOffset := offset % capPerChild
	remaining := dest

	for len(remaining) > 0 {
		if childIndex >= len(children) {
			return blockstore.InvariantViolation("blob.readAt", "read range exceeds tree structure at %s", id)
		}
		avail := capPerChild - childOffset
		n := int64(len(remaining))
		if n > avail {
			n = avail
		}
		if err := s.readAt(ctx, children[childIndex], depth-1, childOffset, remaining[:n]); err != nil {
			return err
		}
		remaining = remaining[n:]
		childIndex++
		childOffset = 0
	}
	return nil
}

// Write overwrites length len(data) bytes starting at offset, growing the
// blob first (write-to-hole semantics: newly allocated regions read as
// zero) if the write extends past the current size.
func (b *Blob) Write(ctx context.Context, offset int64, data []byte) error {
	if offset < 0 {
		return blockstore.InvariantViolation("blob.write", "negative offset %d", offset)
	}
	needed := offset + int64(len(data))

	b.mu.Lock()
	if needed > b.size {
		b.mu.Unlock()
		if err := b.Resize(ctx, needed); err != nil {
			return err
		}
		b.mu.Lock()
	}
	depth, id := b.depth, b.id
	b.mu.Unlock()

	if len(data) == 0 {
		return nil
	}
	return b.store.writeAt(ctx, id, depth, offset, data)
}

// writeAt overwrites data in place; it never changes tree shape or any
// block id, since the region it writes into was already allocated by a
// prior Resize.
func (s *Store) writeAt(ctx context.Context, id blockstore.BlockId, depth int, offset int64, data []byte) error {
	raw, ok, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return blockstore.NotFound("blob.writeAt", id)
	}

	if depth == 0 {
		body, err := decodeLeaf(id, raw)
		if err != nil {
			return err
		}
		if offset+int64(len(data)) > int64(len(body)) {
			return blockstore.InvariantViolation("blob.writeAt", "leaf %s too short for requested write", id)
		}
		updated := make([]byte, len(body))
		copy(updated, body)
		copy(updated[offset:], data)
		return s.store.Store(ctx, id, encodeLeaf(updated))
	}

	_, children, err := decodeInner(id, raw)
	if err != nil {
		return err
	}
	capPerChild := capacity(s.leafMax, s.fanout, depth-1)

	childIndex := int(offset / capPerChild)
	childOffset := offset % capPerChild
	remaining := data

	for len(remaining) > 0 {
		if childIndex >= len(children) {
			return blockstore.InvariantViolation("blob.writeAt", "write range exceeds tree structure at %s", id)
		}
		avail := capPerChild - childOffset
		n := int64(len(remaining))
		if n > avail {
			n = avail
		}
		if err := s.writeAt(ctx, children[childIndex], depth-1, childOffset, remaining[:n]); err != nil {
			return err
		}
		remaining = remaining[n:]
		childIndex++
		childOffset = 0
	}
	return nil
}

// Flush forces every prior write on this blob durable in the base store,
// per spec's durability contract for flush(). The tree layer itself
// always writes through; what Flush actually drains is whatever buffering
// layer sits beneath it (the caching layer, when wired), forwarded via
// the store's own Flush.
func (b *Blob) Flush(ctx context.Context) error {
	return b.store.Flush(ctx)
}
