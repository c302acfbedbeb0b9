/*
Package blobstore implements arbitrarily large, resizable byte sequences
("blobs") as balanced k-ary trees of blocks over a blockstore.BlockStore.

A blob's identity is its root BlockId, which never changes across resize:
growth wraps the current root under a new inner node by copying the root's
raw bytes into a freshly allocated block and overwriting the root block in
place with the new wrapper; shrink does the reverse, copying a lone
remaining child's bytes back into the root block and discarding the child.
Every node's first byte identifies LEAF (0) or INNER (1); inner nodes also
store their own tree depth, so a blob's depth is always recoverable from
its root block alone.
*/
package blobstore
