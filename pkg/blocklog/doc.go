/*
Package blocklog provides structured logging for the block/blob store,
built on zerolog the same way the rest of this codebase's ambient stack is.

# Usage

	blocklog.Init(blocklog.Config{
		Level:      blocklog.InfoLevel,
		JSONOutput: true,
	})

	log := blocklog.WithComponent("caching")
	log.Debug().Str("block_id", id.String()).Msg("flushing dirty entry")

The layers that log (ondisk, integrity, caching, blobstore) pull a
component-tagged child logger via WithComponent so log lines can be
filtered by layer; encrypted and parallelaccess do not log. Logging here is
diagnostic only: it never substitutes for a returned error, and it never
logs plaintext block bodies or key material.
*/
package blocklog
