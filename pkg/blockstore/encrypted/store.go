package encrypted

import (
	"context"
	"crypto/cipher"
	"encoding/binary"
	"sync"

	"github.com/cryfs-go/blockfs/pkg/blockstore"
)

// headerLen is the size of the structured payload prefix sealed together
// with the plaintext body: u64 version + u32 client id + 16-byte BlockId.
const headerLen = 8 + 4 + blockstore.IDSize

// Store seals/unseals block bodies over an inner blockstore.BlockStore.
type Store struct {
	inner    blockstore.BlockStore
	aead     cipher.AEAD
	clientID uint32

	mu      sync.Mutex
	version uint64 // monotonic per-process counter, shared across all ids
}

var _ blockstore.BlockStore = (*Store)(nil)

// Header is the per-block metadata recovered alongside the plaintext on a
// successful Load; the IntegrityStore layer above consumes it.
type Header struct {
	Version  uint64
	ClientID uint32
}

// New wraps inner with authenticated encryption under aead. clientID
// identifies this writer in every sealed block and must be non-zero.
func New(inner blockstore.BlockStore, aead cipher.AEAD, clientID uint32) *Store {
	return &Store{inner: inner, aead: aead, clientID: clientID}
}

func (s *Store) nextVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	return s.version
}

// unseal opens a sealed block. The nonce's two source fields (version,
// client id) are carried as a clear-text prefix ahead of the AEAD
// ciphertext, since the opener needs the nonce before it can open anything
// and the fields are not secret — only authenticated, which the AEAD tag
// over the payload already guarantees.
func (s *Store) unseal(id blockstore.BlockId, sealed []byte) ([]byte, Header, error) {
	if len(sealed) < 12 {
		return nil, Header{}, blockstore.IntegrityViolation("encrypted.load", id, blockstore.ViolationAeadMismatch, nil)
	}
	nonceSrc := sealed[:12]
	ciphertext := sealed[12:]

	nonce := make([]byte, s.aead.NonceSize())
	copy(nonce, nonceSrc)

	payload, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, Header{}, blockstore.IntegrityViolation("encrypted.load", id, blockstore.ViolationAeadMismatch, err)
	}
	if len(payload) < headerLen {
		return nil, Header{}, blockstore.IntegrityViolation("encrypted.load", id, blockstore.ViolationAeadMismatch, nil)
	}

	hdr := Header{
		Version:  binary.LittleEndian.Uint64(payload[0:8]),
		ClientID: binary.LittleEndian.Uint32(payload[8:12]),
	}

	var embeddedID blockstore.BlockId
	copy(embeddedID[:], payload[12:12+blockstore.IDSize])
	if embeddedID != id {
		return nil, hdr, blockstore.IntegrityViolation("encrypted.load", id, blockstore.ViolationSwap, nil)
	}

	return payload[headerLen:], hdr, nil
}

// seal seals plaintext and prepends the nonce's clear-text
// source bytes so a later Load can rebuild the same nonce to open it.
func (s *Store) seal(id blockstore.BlockId, plaintext []byte) []byte {
	version := s.nextVersion()

	payload := make([]byte, headerLen+len(plaintext))
	binary.LittleEndian.PutUint64(payload[0:8], version)
	binary.LittleEndian.PutUint32(payload[8:12], s.clientID)
	copy(payload[12:12+blockstore.IDSize], id[:])
	copy(payload[headerLen:], plaintext)

	var nonceSrc [12]byte
	binary.LittleEndian.PutUint64(nonceSrc[0:8], version)
	binary.LittleEndian.PutUint32(nonceSrc[8:12], s.clientID)

	nonce := make([]byte, s.aead.NonceSize())
	copy(nonce, nonceSrc[:])

	ciphertext := s.aead.Seal(nil, nonce, payload, nil)

	out := make([]byte, 12+len(ciphertext))
	copy(out, nonceSrc[:])
	copy(out[12:], ciphertext)
	return out
}

func (s *Store) TryCreate(ctx context.Context, id blockstore.BlockId, plaintext []byte) (bool, error) {
	sealed := s.seal(id, plaintext)
	return s.inner.TryCreate(ctx, id, sealed)
}

func (s *Store) Store(ctx context.Context, id blockstore.BlockId, plaintext []byte) error {
	sealed := s.seal(id, plaintext)
	return s.inner.Store(ctx, id, sealed)
}

// Load returns the decrypted plaintext body. The recovered (version,
// client id) header is available via LoadWithHeader for layers (like
// IntegrityStore) that need it.
func (s *Store) Load(ctx context.Context, id blockstore.BlockId) ([]byte, bool, error) {
	plaintext, _, ok, err := s.LoadWithHeader(ctx, id)
	return plaintext, ok, err
}

// LoadWithHeader is Load plus the per-block (version, client id) recovered
// from the sealed payload, which IntegrityStore consults against the
// known-block table.
func (s *Store) LoadWithHeader(ctx context.Context, id blockstore.BlockId) ([]byte, Header, bool, error) {
	sealed, ok, err := s.inner.Load(ctx, id)
	if err != nil {
		return nil, Header{}, false, err
	}
	if !ok {
		return nil, Header{}, false, nil
	}

	plaintext, hdr, err := s.unseal(id, sealed)
	if err != nil {
		return nil, Header{}, false, err
	}
	return plaintext, hdr, true, nil
}

func (s *Store) Remove(ctx context.Context, id blockstore.BlockId) (bool, error) {
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
