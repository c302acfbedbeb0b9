package blockstore

import "context"

// MaxBlockSize is the default payload budget for a block: 32KiB. It does not
// itself exclude any header overhead; blockfs.Open subtracts that from it
// when sizing leaves. Config.BlockSizeBytes overrides it.
const MaxBlockSize = 32 * 1024

// BlockStore is the capability every layer of the stack implements: a
// fixed-size, addressable, mutable block store. Layers wrap an inner
// BlockStore of the same shape and are composed bottom-up at construction
// time (see package doc).
type BlockStore interface {
	// TryCreate writes data under id only if no block with that id exists
	// yet, and reports whether the creation happened.
	TryCreate(ctx context.Context, id BlockId, data []byte) (bool, error)

	// Store unconditionally overwrites (or creates) the block at id.
	Store(ctx context.Context, id BlockId, data []byte) error

	// Load returns the block's current plaintext bytes, or ok==false if no
	// such block exists.
	Load(ctx context.Context, id BlockId) (data []byte, ok bool, err error)

	// Remove deletes the block at id, reporting whether it existed.
	Remove(ctx context.Context, id BlockId) (bool, error)

	// NumBlocks returns the total number of blocks currently stored.
	NumBlocks(ctx context.Context) (uint64, error)

	// ForEachBlock invokes cb once per stored block id. Iteration stops and
	// the error propagates if cb returns a non-nil error.
	ForEachBlock(ctx context.Context, cb func(BlockId) error) error

	// EstimateFreeBytes estimates remaining backend capacity.
	EstimateFreeBytes(ctx context.Context) (uint64, error)
}

// Flusher is implemented by the layer that buffers writes in memory
// (CachingStore) to give an explicit durability point: Flush writes back
// every buffered entry without otherwise disrupting the layer, and returns
// once they are durable in the backend beneath it. ParallelAccessStore also
// implements it, only to forward Flush to the layer beneath it. The other
// layers write through and do not implement it; callers should treat its
// absence as "already durable".
type Flusher interface {
	Flush(ctx context.Context) error
}

// Config collects the options every layer built on top of a base store
// consumes once, at construction.
type Config struct {
	// MaxCacheEntries bounds the CachingStore's resident entry count.
	MaxCacheEntries int
	// FlushAfterIdle is how long a dirty cache entry may sit untouched
	// before the background flusher writes it back.
	FlushAfterIdle int64 // milliseconds
	// CacheSweepInterval is how often the background flusher wakes up.
	CacheSweepInterval int64 // milliseconds
	// ClientID identifies this writer in the ciphertext header and the
	// known-block table. Must be non-zero.
	ClientID uint32
	// MissingBlockIsIntegrityViolation selects the IntegrityStore's remove
	// policy: when true, removing a block leaves a tombstone so a later
	// re-introduction at a lower version is flagged; when false, removing a
	// block simply forgets it.
	MissingBlockIsIntegrityViolation bool
	// BlockSizeBytes is the maximum plaintext body size per block.
	BlockSizeBytes int
}

// DefaultConfig returns the reference configuration from spec §6.
func DefaultConfig() Config {
	return Config{
		MaxCacheEntries:                  1000,
		FlushAfterIdle:                   5000,
		CacheSweepInterval:               500,
		ClientID:                         1,
		MissingBlockIsIntegrityViolation: false,
		BlockSizeBytes:                   MaxBlockSize,
	}
}
