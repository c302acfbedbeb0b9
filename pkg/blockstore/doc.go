/*
Package blockstore defines the shared contract for the block storage stack:
BlockId, the BlockStore capability interface every layer implements
(block bodies travel as plain []byte keyed by BlockId; there is no separate
Block type), typed errors, and the Config options that tune the
layers built on top of a base store (caching size, flush interval,
client id, integrity policy, block size).

Every concrete layer — ondisk, inmemory, encrypted, integrity, caching,
parallelaccess — implements BlockStore and wraps an inner BlockStore of
the same shape, so the stack is composed bottom-up at construction time:

	base, err := ondisk.New(rootDir)
	enc  := encrypted.New(base, aead, clientID)
	intg, err := integrity.New(enc, integrityDir, missingIsViolation)
	cach := caching.New(intg, maxEntries, flushAfter, sweepInterval)
	store := parallelaccess.New(cach)

store is the only value the blob layer and any caller above it needs to
hold.
*/
package blockstore
