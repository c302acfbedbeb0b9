/*
Package ondisk persists opaque ciphertext blobs keyed by BlockId to a local
directory, in the layout:

	<root>/<id[0:3]>/<id[3:32]>

Every stored file is prefixed with a 14-byte format-version header
("cryfs;block;0\x00") so a later reader can distinguish "not a block",
"unsupported (newer) block format", and "valid block" before it ever
touches the AEAD payload above it. ondisk is a BlockStore: it knows nothing
about encryption or integrity, it just moves header-framed bytes to and
from the filesystem.
*/
package ondisk
