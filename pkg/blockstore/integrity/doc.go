/*
Package integrity wraps an encrypted.Store and maintains the known-block
table: a persistent BlockId -> (version, client id) mapping used to detect
rollback and re-introduction attacks on the backing storage.

The table is persisted in a bbolt database rather than a hand-rolled
write-temp-then-rename flat file: bbolt's single-writer transactions already
give atomic, fsynced, crash-safe commits, which is exactly the durability
contract the known-block table needs on every modifying operation.
*/
package integrity
