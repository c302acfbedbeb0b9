/*
Package typedblob is a thin convenience layer over blobstore.Blob for
blobs whose entire content is a small tagged payload: a four-byte magic
number identifying the blob's type, followed by a single string (the
symlink target, in the one concrete case this stack needs today).

This mirrors cryfs's SymlinkBlob, generalized to any caller-chosen magic
number so other small fixed-shape blob types can reuse the same framing.
*/
package typedblob
