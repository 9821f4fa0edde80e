package datamgr

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/stratadb/strata/bufferpool"
	"github.com/stratadb/strata/chunk"
)

var bucketChunks = []byte("chunks")

// BoltStore is the on-disk persistent Store, one boltdb file holding
// every chunk under its encoded key. Encoded keys sort the same way
// chunk keys do, so prefix operations are cursor range scans.
type BoltStore struct {
	db           *bolt.DB
	path         string
	fsyncEnabled bool
}

var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens (creating if needed) the chunk store at path.
// With fsync disabled, writes become durable only at Checkpoint.
func OpenBoltStore(path string, fsyncEnabled bool) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", filepath.Dir(path))
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second, NoSync: !fsyncEnabled})
	if err != nil {
		return nil, errors.Wrapf(err, "open chunk store %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketChunks)
		return e
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing chunk bucket")
	}
	return &BoltStore{db: db, path: path, fsyncEnabled: fsyncEnabled}, nil
}

func (s *BoltStore) ReadChunk(key chunk.Key, offset, numBytes int64) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketChunks).Get(key.Encoded())
		if data == nil {
			return bufferpool.NewErrChunkNotFound(key)
		}
		out = sliceChunk(data, offset, numBytes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) WriteChunk(key chunk.Key, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChunks).Put(key.Encoded(), data)
	})
}

func (s *BoltStore) ChunkExists(key chunk.Key) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketChunks).Get(key.Encoded()) != nil
		return nil
	})
	return ok, err
}

func (s *BoltStore) DeleteChunk(key chunk.Key) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		enc := key.Encoded()
		if b.Get(enc) == nil {
			return bufferpool.NewErrChunkNotFound(key)
		}
		return b.Delete(enc)
	})
}

func (s *BoltStore) DeleteChunksWithPrefix(prefix chunk.Key) error {
	encPrefix := prefix.Encoded()
	return s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketChunks).Cursor()
		for k, _ := c.Seek(encPrefix); k != nil && bytes.HasPrefix(k, encPrefix); k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) ChunkMetadataForKeyPrefix(prefix chunk.Key) ([]chunk.Metadata, error) {
	encPrefix := prefix.Encoded()
	var out []chunk.Metadata
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketChunks).Cursor()
		for k, v := c.Seek(encPrefix); k != nil && bytes.HasPrefix(k, encPrefix); k, v = c.Next() {
			key, err := chunk.DecodeKey(k)
			if err != nil {
				return err
			}
			out = append(out, chunk.Metadata{Key: key, NumBytes: int64(len(v))})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Checkpoint syncs the database file. With fsync enabled every commit
// already synced, so there is nothing left to do.
func (s *BoltStore) Checkpoint() error {
	if s.fsyncEnabled {
		return nil
	}
	return s.db.Sync()
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *BoltStore) Path() string {
	return s.path
}
