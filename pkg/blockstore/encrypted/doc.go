// Package encrypted wraps a blockstore.BlockStore, transparently sealing
// and unsealing block bodies under an authenticated cipher. It consumes the
// cipher as a stdlib cipher.AEAD so the caller chooses the primitive
// (typically AES-256-GCM via crypto/aes + crypto/cipher.NewGCM); this
// package never implements or selects a cipher itself.
package encrypted
