/*
Package caching maintains a bounded, write-back cache of block bodies over
an inner blockstore.BlockStore. A background worker goroutine periodically
flushes entries that have been dirty and idle past a configured threshold;
Close flushes everything and stops the worker, mirroring the teacher's
worker-goroutine-with-stop-channel shutdown pattern.
*/
package caching
