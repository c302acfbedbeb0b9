package blockstore

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// IDSize is the width in bytes of a BlockId.
const IDSize = 16

// BlockId is a fixed-width opaque identifier for a stored block. It is
// comparable and totally ordered, so it can be used as a map key and sorted
// with sort.Slice.
type BlockId [IDSize]byte

// NewBlockId generates a fresh, cryptographically random BlockId. Ids are
// never recycled within the lifetime of a filesystem.
func NewBlockId() BlockId {
	var id BlockId
	copy(id[:], uuid.New()[:])
	return id
}

// String returns the canonical 32-character lowercase hex form.
func (id BlockId) String() string {
	return hex.EncodeToString(id[:])
}

// ParseBlockId parses the canonical hex form produced by String.
func ParseBlockId(s string) (BlockId, error) {
	var id BlockId
	if len(s) != IDSize*2 {
		return id, fmt.Errorf("blockstore: invalid block id %q: want %d hex chars, got %d", s, IDSize*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("blockstore: invalid block id %q: %w", s, err)
	}
	copy(id[:], b)
	return id, nil
}

// Less reports whether id sorts before other, using byte-wise order of the
// canonical hex representation (equivalently, big-endian byte order).
func (id BlockId) Less(other BlockId) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// IsZero reports whether id is the all-zero value, used as a sentinel for
// "no root yet" in callers that store a BlockId by value.
func (id BlockId) IsZero() bool {
	return id == BlockId{}
}
