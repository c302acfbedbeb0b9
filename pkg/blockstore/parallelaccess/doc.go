/*
Package parallelaccess is the concurrency gate of the block-store stack: it
guarantees that, for a given BlockId, at most one goroutine is ever inside
the inner store at a time, serializing concurrent reads and writes to the
same id while leaving distinct ids fully independent. Every layer below it
(CachingStore, IntegrityStore) can therefore assume single-writer semantics
per id.

Entries are reference-counted and removed from the table once no goroutine
is using them, so the table's steady-state size tracks concurrently active
ids rather than every id ever touched.
*/
package parallelaccess
