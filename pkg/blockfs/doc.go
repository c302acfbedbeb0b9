/*
Package blockfs wires the full block/blob stack into a single Store, the
way cmd/warren wires manager.NewManager into scheduler.NewScheduler into
api.NewServer: one constructor, composing pre-built layers bottom-up,
nothing left for a caller to assemble by hand.

Layer order, innermost first: ondisk (or inmemory) -> encrypted ->
integrity -> caching -> parallelaccess. Each layer only knows about the
blockstore.BlockStore interface of the layer beneath it.
*/
package blockfs
