package blobstore

import (
	"github.com/cryfs-go/blockfs/pkg/blockstore"
)

type nodeKind byte

const (
	leafKind  nodeKind = 0
	innerKind nodeKind = 1
)

// leafHeaderSize is the one byte identifying a leaf node.
const leafHeaderSize = 1

// innerHeaderSize is the kind byte plus the one-byte depth field.
const innerHeaderSize = 2

func encodeLeaf(data []byte) []byte {
	buf := make([]byte, leafHeaderSize+len(data))
	buf[0] = byte(leafKind)
	copy(buf[leafHeaderSize:], data)
	return buf
}

func decodeLeaf(id blockstore.BlockId, buf []byte) ([]byte, error) {
	if len(buf) < leafHeaderSize || nodeKind(buf[0]) != leafKind {
		return nil, blockstore.InvariantViolation("blobstore.decodeLeaf", "block %s is not a leaf node", id)
	}
	return buf[leafHeaderSize:], nil
}

func encodeInner(depth int, children []blockstore.BlockId) []byte {
	buf := make([]byte, innerHeaderSize+len(children)*blockstore.IDSize)
	buf[0] = byte(innerKind)
	buf[1] = byte(depth)
	for i, c := range children {
		copy(buf[innerHeaderSize+i*blockstore.IDSize:], c[:])
	}
	return buf
}

func decodeInner(id blockstore.BlockId, buf []byte) (depth int, children []blockstore.BlockId, err error) {
	if len(buf) < innerHeaderSize || nodeKind(buf[0]) != innerKind {
		return 0, nil, blockstore.InvariantViolation("blobstore.decodeInner", "block %s is not an inner node", id)
	}
	depth = int(buf[1])
	rest := buf[innerHeaderSize:]
	if len(rest)%blockstore.IDSize != 0 {
		return 0, nil, blockstore.InvariantViolation("blobstore.decodeInner", "block %s has a malformed child list", id)
	}
	n := len(rest) / blockstore.IDSize
	children = make([]blockstore.BlockId, n)
	for i := 0; i < n; i++ {
		copy(children[i][:], rest[i*blockstore.IDSize:(i+1)*blockstore.IDSize])
	}
	return depth, children, nil
}

// depthOf recovers a node's tree depth from its own encoded bytes without
// needing any external bookkeeping.
func depthOf(id blockstore.BlockId, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, blockstore.InvariantViolation("blobstore.depthOf", "block %s is empty", id)
	}
	switch nodeKind(buf[0]) {
	case leafKind:
		return 0, nil
	case innerKind:
		if len(buf) < innerHeaderSize {
			return 0, blockstore.InvariantViolation("blobstore.depthOf", "block %s has a truncated inner header", id)
		}
		return int(buf[1]), nil
	default:
		return 0, blockstore.InvariantViolation("blobstore.depthOf", "block %s has an unrecognized node kind %d", id, buf[0])
	}
}

// capacity returns the maximum number of plaintext bytes a subtree of the
// given depth can hold, given a leaf capacity and fanout.
func capacity(leafMax, fanout, depth int) int64 {
	c := int64(leafMax)
	for i := 0; i < depth; i++ {
		c *= int64(fanout)
	}
	return c
}
