package typedblob

import (
	"context"

	"github.com/cryfs-go/blockfs/pkg/blobstore"
	"github.com/cryfs-go/blockfs/pkg/blockstore"
)

// MagicNumberSize is the width of the type tag every typed blob starts with.
const MagicNumberSize = 4

// MagicSymlink identifies a blob whose payload is a symlink target path.
var MagicSymlink = [MagicNumberSize]byte{'c', 'f', 's', 'l'}

// ReadMagicNumber reads a blob's leading magic number without touching the
// rest of its payload.
func ReadMagicNumber(ctx context.Context, b *blobstore.Blob) ([MagicNumberSize]byte, error) {
	var magic [MagicNumberSize]byte
	data, err := b.Read(ctx, 0, MagicNumberSize)
	if err != nil {
		return magic, err
	}
	if len(data) != MagicNumberSize {
		return magic, blockstore.InvariantViolation("typedblob.ReadMagicNumber", "blob %s is too short for a magic number", b.BlockId())
	}
	copy(magic[:], data)
	return magic, nil
}

// CheckMagicNumber reads a blob's magic number and reports whether it
// matches want.
func CheckMagicNumber(ctx context.Context, b *blobstore.Blob, want [MagicNumberSize]byte) (bool, error) {
	got, err := ReadMagicNumber(ctx, b)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

// WriteStringPayload overwrites b with magic followed by payload, resizing
// the blob to fit exactly.
func WriteStringPayload(ctx context.Context, b *blobstore.Blob, magic [MagicNumberSize]byte, payload string) error {
	if err := b.Resize(ctx, int64(MagicNumberSize+len(payload))); err != nil {
		return err
	}
	buf := make([]byte, 0, MagicNumberSize+len(payload))
	buf = append(buf, magic[:]...)
	buf = append(buf, payload...)
	return b.Write(ctx, 0, buf)
}

// ReadStringPayload reads the string that follows a blob's magic number,
// after checking the magic number matches want.
func ReadStringPayload(ctx context.Context, b *blobstore.Blob, want [MagicNumberSize]byte) (string, error) {
	ok, err := CheckMagicNumber(ctx, b, want)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", blockstore.InvariantViolation("typedblob.ReadStringPayload", "blob %s does not carry the expected magic number", b.BlockId())
	}
	size := b.Size()
	data, err := b.Read(ctx, MagicNumberSize, size-MagicNumberSize)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CreateSymlink allocates a new blob encoding target as a symlink payload.
func CreateSymlink(ctx context.Context, store *blobstore.Store, target string) (*blobstore.Blob, error) {
	b, err := store.Create(ctx)
	if err != nil {
		return nil, err
	}
	if err := WriteStringPayload(ctx, b, MagicSymlink, target); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadSymlinkTarget reads the target path out of a symlink blob.
func ReadSymlinkTarget(ctx context.Context, b *blobstore.Blob) (string, error) {
	return ReadStringPayload(ctx, b, MagicSymlink)
}
