package blobstore

import (
	"context"

	"github.com/cryfs-go/blockfs/pkg/blocklog"
	"github.com/cryfs-go/blockfs/pkg/blockstore"
)

// Resize changes the blob's length to newSize, zero-filling newly exposed
// bytes on growth and discarding trailing blocks on shrink. Failure during
// growth rolls back every block it allocated before returning the error,
// so a failed resize never leaves the tree in a partially grown state.
func (b *Blob) Resize(ctx context.Context, newSize int64) error {
	if newSize < 0 {
		return blockstore.InvariantViolation("blob.resize", "negative size %d", newSize)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if newSize == b.size {
		return nil
	}
	if newSize > b.size {
		return b.grow(ctx, newSize)
	}
	return b.shrink(ctx, newSize)
}

func (b *Blob) grow(ctx context.Context, newSize int64) error {
	oldSize := b.size
	var allocated []blockstore.BlockId

	for b.capOf(b.depth) < newSize {
		newChild := blockstore.NewBlockId()

		raw, ok, err := b.store.store.Load(ctx, b.id)
		if err != nil {
			b.rollback(ctx, allocated)
			return err
		}
		if !ok {
			b.rollback(ctx, allocated)
			return blockstore.NotFound("blob.grow", b.id)
		}

		if err := b.store.store.Store(ctx, newChild, raw); err != nil {
			b.rollback(ctx, allocated)
			return err
		}
		allocated = append(allocated, newChild)

		wrapper := encodeInner(b.depth+1, []blockstore.BlockId{newChild})
		if err := b.store.store.Store(ctx, b.id, wrapper); err != nil {
			b.rollback(ctx, allocated)
			return err
		}
		b.depth++
	}

	if err := b.store.growWithinCapacity(ctx, b.id, b.depth, oldSize, newSize, &allocated); err != nil {
		b.rollback(ctx, allocated)
		return err
	}

	b.size = newSize
	return nil
}

func (b *Blob) rollback(ctx context.Context, allocated []blockstore.BlockId) {
	for _, id := range allocated {
		if _, err := b.store.store.Remove(ctx, id); err != nil {
			blocklog.WithComponent("blobstore").Warn().
				Err(err).Str("block_id", id.String()).
				Msg("failed to roll back partially allocated block after resize failure")
		}
	}
}

// growWithinCapacity extends the subtree rooted at id (whose tree depth
// already has enough capacity for newUsed) from oldUsed to newUsed bytes,
// allocating new leaves/subtrees along the right spine as needed. Every
// freshly allocated block id is appended to allocated for rollback.
func (s *Store) growWithinCapacity(ctx context.Context, id blockstore.BlockId, depth int, oldUsed, newUsed int64, allocated *[]blockstore.BlockId) error {
	if depth == 0 {
		raw, ok, err := s.store.Load(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return blockstore.NotFound("blob.growWithinCapacity", id)
		}
		body, err := decodeLeaf(id, raw)
		if err != nil {
			return err
		}
		padded := make([]byte, newUsed)
		copy(padded, body)
		return s.store.Store(ctx, id, encodeLeaf(padded))
	}

	raw, ok, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return blockstore.NotFound("blob.growWithinCapacity", id)
	}
	_, children, err := decodeInner(id, raw)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return blockstore.InvariantViolation("blob.growWithinCapacity", "inner node %s has no children", id)
	}

	capPerChild := capacity(s.leafMax, s.fanout, depth-1)
	lastIdx := len(children) - 1
	lastUsed := oldUsed - int64(lastIdx)*capPerChild
	remaining := newUsed - oldUsed

	roomInLast := capPerChild - lastUsed
	addToLast := remaining
	if addToLast > roomInLast {
		addToLast = roomInLast
	}
	if addToLast > 0 {
		if err := s.growWithinCapacity(ctx, children[lastIdx], depth-1, lastUsed, lastUsed+addToLast, allocated); err != nil {
			return err
		}
		remaining -= addToLast
	}

	for remaining > 0 {
		addAmt := remaining
		if addAmt > capPerChild {
			addAmt = capPerChild
		}
		newChild, err := s.createSubtree(ctx, depth-1, addAmt, allocated)
		if err != nil {
			return err
		}
		children = append(children, newChild)
		remaining -= addAmt
	}

	return s.store.Store(ctx, id, encodeInner(depth, children))
}

// createSubtree builds a brand new subtree of the given depth, populated
// with usedBytes zero-filled bytes, following the same full-except-last
// child rule as every other subtree.
func (s *Store) createSubtree(ctx context.Context, depth int, usedBytes int64, allocated *[]blockstore.BlockId) (blockstore.BlockId, error) {
	id := blockstore.NewBlockId()

	var raw []byte
	if depth == 0 {
		raw = encodeLeaf(make([]byte, usedBytes))
	} else {
		capPerChild := capacity(s.leafMax, s.fanout, depth-1)
		fullCount := usedBytes / capPerChild
		remainder := usedBytes % capPerChild

		children := make([]blockstore.BlockId, 0, fullCount+1)
		for i := int64(0); i < fullCount; i++ {
			childID, err := s.createSubtree(ctx, depth-1, capPerChild, allocated)
			if err != nil {
				return blockstore.BlockId{}, err
			}
			children = append(children, childID)
		}
		if remainder > 0 || fullCount == 0 {
			childID, err := s.createSubtree(ctx, depth-1, remainder, allocated)
			if err != nil {
				return blockstore.BlockId{}, err
			}
			children = append(children, childID)
		}
		raw = encodeInner(depth, children)
	}

	if _, err := s.store.TryCreate(ctx, id, raw); err != nil {
		return blockstore.BlockId{}, err
	}
	*allocated = append(*allocated, id)
	return id, nil
}

func (b *Blob) shrink(ctx context.Context, newSize int64) error {
	if err := b.store.shrinkWithinSubtree(ctx, b.id, b.depth, b.size, newSize); err != nil {
		return err
	}

	for b.depth > 0 {
		raw, ok, err := b.store.store.Load(ctx, b.id)
		if err != nil {
			return err
		}
		if !ok {
			return blockstore.NotFound("blob.shrink", b.id)
		}
		depth, children, err := decodeInner(b.id, raw)
		if err != nil {
			return err
		}
		if len(children) != 1 {
			break
		}

		childID := children[0]
		childRaw, ok, err := b.store.store.Load(ctx, childID)
		if err != nil {
			return err
		}
		if !ok {
			return blockstore.NotFound("blob.shrink", childID)
		}
		if err := b.store.store.Store(ctx, b.id, childRaw); err != nil {
			return err
		}
		if _, err := b.store.store.Remove(ctx, childID); err != nil {
			return err
		}
		b.depth = depth - 1
	}

	b.size = newSize
	return nil
}

// shrinkWithinSubtree truncates the subtree rooted at id from oldUsed to
// newUsed bytes, removing (post-order) every block that falls entirely
// beyond newUsed.
func (s *Store) shrinkWithinSubtree(ctx context.Context, id blockstore.BlockId, depth int, oldUsed, newUsed int64) error {
	if depth == 0 {
		raw, ok, err := s.store.Load(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return blockstore.NotFound("blob.shrinkWithinSubtree", id)
		}
		body, err := decodeLeaf(id, raw)
		if err != nil {
			return err
		}
		if int64(len(body)) < newUsed {
			return blockstore.InvariantViolation("blob.shrinkWithinSubtree", "leaf %s shorter than requested truncation", id)
		}
		return s.store.Store(ctx, id, encodeLeaf(body[:newUsed]))
	}

	raw, ok, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return blockstore.NotFound("blob.shrinkWithinSubtree", id)
	}
	_, children, err := decodeInner(id, raw)
	if err != nil {
		return err
	}

	capPerChild := capacity(s.leafMax, s.fanout, depth-1)
	lastIdxOld := len(children) - 1

	var newLastIdx int
	var lastChildNewUsed int64
	if newUsed == 0 {
		newLastIdx = 0
		lastChildNewUsed = 0
	} else {
		newLastIdx = int((newUsed - 1) / capPerChild)
		lastChildNewUsed = newUsed - int64(newLastIdx)*capPerChild
	}

	for i := lastIdxOld; i > newLastIdx; i-- {
		if err := s.removeSubtree(ctx, children[i], depth-1); err != nil {
			return err
		}
	}
	children = children[:newLastIdx+1]

	lastChildOldUsed := capPerChild
	if newLastIdx == lastIdxOld {
		lastChildOldUsed = oldUsed - int64(lastIdxOld)*capPerChild
	}
	if err := s.shrinkWithinSubtree(ctx, children[newLastIdx], depth-1, lastChildOldUsed, lastChildNewUsed); err != nil {
		return err
	}

	return s.store.Store(ctx, id, encodeInner(depth, children))
}

// removeSubtree deletes every block in the subtree rooted at id, in
// post-order (children before parent).
func (s *Store) removeSubtree(ctx context.Context, id blockstore.BlockId, depth int) error {
	if depth > 0 {
		raw, ok, err := s.store.Load(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			_, children, err := decodeInner(id, raw)
			if err != nil {
				return err
			}
			for _, child := range children {
				if err := s.removeSubtree(ctx, child, depth-1); err != nil {
					return err
				}
			}
		}
	}
	_, err := s.store.Remove(ctx, id)
	return err
}
