package integrity

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cryfs-go/blockfs/pkg/blockstore"
)

var bucketKnownBlocks = []byte("known_blocks")

// entry is the known-block table's per-id record.
type entry struct {
	Version  uint64
	ClientID uint32
}

func encodeEntry(e entry) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint64(buf[0:8], e.Version)
	binary.LittleEndian.PutUint32(buf[8:12], e.ClientID)
	return buf
}

func decodeEntry(buf []byte) (entry, error) {
	if len(buf) != 12 {
		return entry{}, fmt.Errorf("known-block table: corrupt entry of length %d", len(buf))
	}
	return entry{
		Version:  binary.LittleEndian.Uint64(buf[0:8]),
		ClientID: binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

// table is the bbolt-backed known-block table. A single bucket maps
// BlockId bytes to an encoded (version, client id) entry.
type table struct {
	db *bolt.DB
}

// openTable opens (creating if absent) the known-block table database at
// <dir>/integrity.db.
func openTable(dir string) (*table, error) {
	dbPath := filepath.Join(dir, "integrity.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open known-block table: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKnownBlocks)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize known-block table: %w", err)
	}

	return &table{db: db}, nil
}

func (t *table) close() error {
	return t.db.Close()
}

func (t *table) get(id blockstore.BlockId) (entry, bool, error) {
	var (
		e     entry
		found bool
		derr  error
	)
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKnownBlocks)
		data := b.Get(id[:])
		if data == nil {
			return nil
		}
		found = true
		e, derr = decodeEntry(data)
		return derr
	})
	if err != nil {
		return entry{}, false, fmt.Errorf("known-block table lookup failed: %w", err)
	}
	return e, found, nil
}

func (t *table) put(id blockstore.BlockId, e entry) error {
	err := t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKnownBlocks)
		return b.Put(id[:], encodeEntry(e))
	})
	if err != nil {
		return fmt.Errorf("known-block table update failed: %w", err)
	}
	return nil
}

func (t *table) delete(id blockstore.BlockId) error {
	err := t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKnownBlocks)
		return b.Delete(id[:])
	})
	if err != nil {
		return fmt.Errorf("known-block table delete failed: %w", err)
	}
	return nil
}
