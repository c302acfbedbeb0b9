package ondisk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/cryfs-go/blockfs/pkg/blocklog"
	"github.com/cryfs-go/blockfs/pkg/blockstore"
)

// formatVersionHeaderPrefix is the ASCII tag every block file starts with.
const formatVersionHeaderPrefix = "cryfs;block;"

// formatVersionHeader is the only header this version accepts.
const formatVersionHeader = formatVersionHeaderPrefix + "0"

// headerSize is len(formatVersionHeader) plus the trailing null byte.
func headerSize() int { return len(formatVersionHeader) + 1 }

// Store persists ciphertext blocks under a root directory.
type Store struct {
	rootDir string
}

var _ blockstore.BlockStore = (*Store)(nil)

// New creates a Store rooted at dir, creating dir if it does not exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, blockstore.IO("ondisk.New", fmt.Errorf("failed to create root directory: %w", err))
	}
	return &Store{rootDir: dir}, nil
}

func (s *Store) path(id blockstore.BlockId) string {
	hexID := id.String()
	return filepath.Join(s.rootDir, hexID[0:3], hexID[3:])
}

func (s *Store) TryCreate(_ context.Context, id blockstore.BlockId, data []byte) (bool, error) {
	p := s.path(id)
	if _, err := os.Stat(p); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, blockstore.IO("ondisk.TryCreate", err)
	}
	if err := s.writeFile(id, data); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Store(_ context.Context, id blockstore.BlockId, data []byte) error {
	return s.writeFile(id, data)
}

func (s *Store) writeFile(id blockstore.BlockId, data []byte) error {
	p := s.path(id)
	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return blockstore.IO("ondisk.store", fmt.Errorf("failed to create prefix directory: %w", err))
	}

	framed := make([]byte, headerSize()+len(data))
	copy(framed, formatVersionHeader)
	copy(framed[headerSize():], data)

	// A direct write without fsync: no store call syncs the file to stable
	// storage, and neither does blockfs.Store.Close, which only writes back
	// the cache.
	if err := os.WriteFile(p, framed, 0600); err != nil {
		if errors.Is(err, syscall.ENOSPC) {
			return blockstore.OutOfSpace("ondisk.store", err)
		}
		return blockstore.IO("ondisk.store", err)
	}
	return nil
}

func (s *Store) Load(_ context.Context, id blockstore.BlockId) ([]byte, bool, error) {
	p := s.path(id)
	raw, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, blockstore.IO("ondisk.load", err)
	}

	body, err := stripHeader(raw)
	if err != nil {
		return nil, false, blockstore.IntegrityViolation("ondisk.load", id, violationKindFor(err), err)
	}
	return body, true, nil
}

// headerError distinguishes an unreadable prefix (NotABlock) from a
// recognized-but-unsupported version (UnsupportedBlockFormat).
type headerError struct {
	unsupported bool
	msg         string
}

func (e *headerError) Error() string { return e.msg }

func violationKindFor(err error) blockstore.ViolationKind {
	var he *headerError
	if errors.As(err, &he) && he.unsupported {
		return blockstore.ViolationUnsupportedFormat
	}
	return blockstore.ViolationNotABlock
}

func stripHeader(raw []byte) ([]byte, error) {
	prefix := []byte(formatVersionHeaderPrefix)
	if len(raw) < len(prefix) || string(raw[:len(prefix)]) != formatVersionHeaderPrefix {
		return nil, &headerError{msg: "not a valid block: unrecognized header"}
	}
	if len(raw) < headerSize() || string(raw[:headerSize()-1]) != formatVersionHeader {
		return nil, &headerError{unsupported: true, msg: "block format not supported; created with a newer version?"}
	}
	return raw[headerSize():], nil
}

func (s *Store) Remove(_ context.Context, id blockstore.BlockId) (bool, error) {
	p := s.path(id)
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, blockstore.IO("ondisk.remove", err)
	}

	prefixDir := filepath.Dir(p)
	entries, err := os.ReadDir(prefixDir)
	if err == nil && len(entries) == 0 {
		_ = os.Remove(prefixDir)
	}
	return true, nil
}

func (s *Store) NumBlocks(ctx context.Context) (uint64, error) {
	var count uint64
	err := s.ForEachBlock(ctx, func(blockstore.BlockId) error {
		count++
		return nil
	})
	return count, err
}

func (s *Store) ForEachBlock(_ context.Context, cb func(blockstore.BlockId) error) error {
	prefixDirs, err := os.ReadDir(s.rootDir)
	if err != nil {
		return blockstore.IO("ondisk.forEachBlock", err)
	}
	for _, prefixDir := range prefixDirs {
		if !prefixDir.IsDir() {
			continue
		}
		prefix := prefixDir.Name()
		files, err := os.ReadDir(filepath.Join(s.rootDir, prefix))
		if err != nil {
			return blockstore.IO("ondisk.forEachBlock", err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			id, err := blockstore.ParseBlockId(prefix + f.Name())
			if err != nil {
				blocklog.WithComponent("ondisk").Warn().Str("path", filepath.Join(prefix, f.Name())).Msg("skipping file that is not a valid block id")
				continue
			}
			if err := cb(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) EstimateFreeBytes(_ context.Context) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(s.rootDir, &stat); err != nil {
		return 0, blockstore.IO("ondisk.estimateFreeBytes", err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// BlockSizeFromPhysicalSize removes the on-disk header overhead, returning
// the usable plaintext-equivalent payload size for a file of the given
// physical size.
func BlockSizeFromPhysicalSize(physicalSize uint64) uint64 {
	h := uint64(headerSize())
	if physicalSize <= h {
		return 0
	}
	return physicalSize - h
}
