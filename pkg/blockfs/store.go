package blockfs

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cryfs-go/blockfs/pkg/blobstore"
	"github.com/cryfs-go/blockfs/pkg/blockstore"
	"github.com/cryfs-go/blockfs/pkg/blockstore/caching"
	"github.com/cryfs-go/blockfs/pkg/blockstore/encrypted"
	"github.com/cryfs-go/blockfs/pkg/blockstore/integrity"
	"github.com/cryfs-go/blockfs/pkg/blockstore/ondisk"
	"github.com/cryfs-go/blockfs/pkg/blockstore/parallelaccess"
)

// KeySize is the required length, in bytes, of the key passed to Open: a
// raw AES-256 key.
const KeySize = 32

// Store is the fully wired block/blob stack: ondisk -> encrypted ->
// integrity -> caching -> parallelaccess, plus a blobstore.Store over the
// top so callers work with resizable byte sequences rather than raw
// fixed-size blocks.
type Store struct {
	blocks    blockstore.BlockStore
	integrity *integrity.Store
	caching   *caching.Store
	Blobs     *blobstore.Store
}

// Open wires a complete Store rooted at rootDir, encrypting every block
// with AES-256-GCM under key. cfg supplies cache sizing, client identity,
// and the integrity layer's missing-block policy; see
// blockstore.DefaultConfig for the reference values.
func Open(rootDir string, key []byte, cfg blockstore.Config) (*Store, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("blockfs: key must be %d bytes, got %d", KeySize, len(key))
	}
	if cfg.ClientID == 0 {
		return nil, fmt.Errorf("blockfs: ClientID must be non-zero")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("blockfs: failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("blockfs: failed to initialize AEAD: %w", err)
	}

	base, err := ondisk.New(filepath.Join(rootDir, "blocks"))
	if err != nil {
		return nil, fmt.Errorf("blockfs: failed to open block directory: %w", err)
	}

	enc := encrypted.New(base, aead, cfg.ClientID)

	integ, err := integrity.New(enc, filepath.Join(rootDir, "integrity"), cfg.MissingBlockIsIntegrityViolation)
	if err != nil {
		return nil, err
	}

	cache := caching.New(integ, cfg.MaxCacheEntries,
		time.Duration(cfg.FlushAfterIdle)*time.Millisecond,
		time.Duration(cfg.CacheSweepInterval)*time.Millisecond)

	top := parallelaccess.New(cache)

	blockSize := cfg.BlockSizeBytes
	if blockSize <= 0 {
		blockSize = blockstore.MaxBlockSize
	}
	blobs := blobstore.New(top, blobstore.Config{
		LeafMax: blockSize - leafOverhead,
		Fanout:  fanoutForBlockSize(blockSize),
	})

	return &Store{blocks: top, integrity: integ, caching: cache, Blobs: blobs}, nil
}

// leafOverhead is blobstore's own node header plus headroom for the layers
// below (AEAD tag, nonce prefix, on-disk format header), so a leaf's
// ciphertext never exceeds the backend's physical block size.
const leafOverhead = 256

// innerNodeHeaderSize is the fixed overhead of an inner node's own framing
// (kind byte + depth byte), mirrored from blobstore's node encoding so the
// fanout computed here actually fits within one physical block.
const innerNodeHeaderSize = 2

// fanoutForBlockSize follows spec.md §3's reference formula
// (F = floor(MAX_BLOCK_SIZE / BLOCKID_SIZE)): as many child BlockIds as an
// inner node's ciphertext can hold within one physical block, after the
// same leafOverhead headroom and the node's own header.
func fanoutForBlockSize(blockSize int) int {
	usable := blockSize - leafOverhead - innerNodeHeaderSize
	fanout := usable / blockstore.IDSize
	if fanout < 2 {
		fanout = 2
	}
	return fanout
}

// Close drains the caching layer's dirty entries, stops its background
// flusher, and releases the integrity layer's known-block table.
func (s *Store) Close() error {
	ctx := context.Background()
	if err := s.caching.Close(ctx); err != nil {
		s.integrity.Close()
		return err
	}
	return s.integrity.Close()
}

// Flush synchronously writes back every dirty cache entry without
// stopping the caching layer's background flusher.
func (s *Store) Flush(ctx context.Context) error {
	return s.caching.Flush(ctx)
}

// OpenOrCreateRoot loads the blob rooted at rootID if it is non-nil, or
// creates a fresh empty one otherwise. Grounded in the original cryfs
// implementation's CryDevice::GetOrCreateRootKey /
// CreateRootBlobAndReturnKey bootstrap, scoped here to the blob layer only
// — the filesystem-level root directory semantics that original also
// builds on top of the root blob are out of scope for this store.
func (s *Store) OpenOrCreateRoot(ctx context.Context, rootID *blockstore.BlockId) (*blobstore.Blob, error) {
	if rootID != nil {
		return s.Blobs.Load(ctx, *rootID)
	}
	return s.Blobs.Create(ctx)
}

// ForEachBlockID invokes cb once per block id currently stored, walking
// the full stack (so ids are whatever the base store actually holds, not
// just ones seen through the blob layer). Intended for maintenance tools
// such as cmd/blockfs-cli's verify command.
func (s *Store) ForEachBlockID(ctx context.Context, cb func(blockstore.BlockId) error) error {
	return s.blocks.ForEachBlock(ctx, cb)
}

// LoadBlock loads a single block's plaintext body through the full stack,
// surfacing any IntegrityViolation to the caller rather than the blob
// layer's tree semantics. Intended for maintenance tools.
func (s *Store) LoadBlock(ctx context.Context, id blockstore.BlockId) ([]byte, bool, error) {
	return s.blocks.Load(ctx, id)
}
