// Package inmemory provides a base BlockStore backed by a map, for tests
// and for the in-memory deployment mode. It has the same header-framing
// behavior as ondisk so the layers above it cannot tell the two apart.
package inmemory
