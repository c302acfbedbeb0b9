package integrity

import (
	"context"
	"fmt"
	"os"

	"github.com/cryfs-go/blockfs/pkg/blocklog"
	"github.com/cryfs-go/blockfs/pkg/blockmetrics"
	"github.com/cryfs-go/blockfs/pkg/blockstore"
	"github.com/cryfs-go/blockfs/pkg/blockstore/encrypted"
)

// headerStore is the capability integrity needs from its inner store:
// the usual BlockStore contract, plus access to the (version, client id)
// recovered alongside a decrypted body.
type headerStore interface {
	blockstore.BlockStore
	LoadWithHeader(ctx context.Context, id blockstore.BlockId) ([]byte, encrypted.Header, bool, error)
}

// Store detects rollback, re-introduction, and swap attacks by tracking a
// known-block table over an inner encrypted store.
type Store struct {
	inner                headerStore
	table                *table
	missingBlockIsAttack bool
}

var _ blockstore.BlockStore = (*Store)(nil)

// New opens (or creates) the known-block table in dir and wraps inner.
// missingBlockIsAttack selects the Remove policy: when true, a removed
// block's table entry is retained as a tombstone so a later
// re-introduction at a lower version is still flagged; when false, Remove
// forgets the id entirely.
func New(inner headerStore, dir string, missingBlockIsAttack bool) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create integrity store directory: %w", err)
	}
	tbl, err := openTable(dir)
	if err != nil {
		return nil, err
	}
	return &Store{inner: inner, table: tbl, missingBlockIsAttack: missingBlockIsAttack}, nil
}

// Close releases the known-block table's database handle.
func (s *Store) Close() error {
	return s.table.close()
}

func (s *Store) TryCreate(ctx context.Context, id blockstore.BlockId, data []byte) (bool, error) {
	created, err := s.inner.TryCreate(ctx, id, data)
	if err != nil || !created {
		return created, err
	}
	return true, s.recordAfterWrite(ctx, id)
}

func (s *Store) Store(ctx context.Context, id blockstore.BlockId, data []byte) error {
	if err := s.inner.Store(ctx, id, data); err != nil {
		return err
	}
	return s.recordAfterWrite(ctx, id)
}

// recordAfterWrite re-reads the header just written and records it in the
// known-block table, satisfying the requirement that a store's version be
// recorded before the call returns success.
func (s *Store) recordAfterWrite(ctx context.Context, id blockstore.BlockId) error {
	_, hdr, ok, err := s.inner.LoadWithHeader(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return blockstore.InvariantViolation("integrity.store", "block %s vanished immediately after being written", id)
	}
	return s.table.put(id, entry{Version: hdr.Version, ClientID: hdr.ClientID})
}

func (s *Store) Load(ctx context.Context, id blockstore.BlockId) ([]byte, bool, error) {
	plaintext, hdr, ok, err := s.inner.LoadWithHeader(ctx, id)
	if err != nil {
		if blockstore.IsIntegrityViolation(err) {
			blockmetrics.IntegrityViolationsTotal.WithLabelValues("inner").Inc()
		}
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	prev, found, err := s.table.get(id)
	if err != nil {
		return nil, false, err
	}

	if found && hdr.ClientID == prev.ClientID && hdr.Version < prev.Version {
		blockmetrics.IntegrityViolationsTotal.WithLabelValues("rollback").Inc()
		blocklog.WithComponent("integrity").Warn().
			Str("block_id", id.String()).
			Uint64("observed_version", hdr.Version).
			Uint64("known_version", prev.Version).
			Msg("rollback detected")
		return nil, false, blockstore.IntegrityViolation("integrity.load", id, blockstore.ViolationRollback, nil)
	}

	next := entry{Version: hdr.Version, ClientID: hdr.ClientID}
	if found && hdr.Version < prev.Version {
		// A different client wrote in at a version lower than one we've
		// already recorded; never let the table move backwards.
		next.Version = prev.Version
	}
	if err := s.table.put(id, next); err != nil {
		return nil, false, err
	}

	return plaintext, true, nil
}

func (s *Store) Remove(ctx context.Context, id blockstore.BlockId) (bool, error) {
	removed, err := s.inner.Remove(ctx, id)
	if err != nil || !removed {
		return removed, err
	}

	if s.missingBlockIsAttack {
		return true, nil
	}
	if err := s.table.delete(id); err != nil {
		return true, err
	}
	return true, nil
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
