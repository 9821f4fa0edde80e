package datamgr

import (
	"github.com/stratadb/strata/bufferpool"
	"github.com/stratadb/strata/chunk"
	"github.com/stratadb/strata/errors"
)

// Store is the persistent backing tier: the lowest level of the
// hierarchy, addressed by chunk key with arbitrary byte-range reads. It
// supplies bytes on a cold miss and receives writes at checkpoint.
type Store interface {
	// ReadChunk returns up to numBytes of key's data starting at
	// offset. A numBytes of zero means everything from offset on. A
	// missing key fails with ErrChunkNotFound.
	ReadChunk(key chunk.Key, offset, numBytes int64) ([]byte, error)

	// WriteChunk replaces key's data.
	WriteChunk(key chunk.Key, data []byte) error

	// ChunkExists reports whether key is present.
	ChunkExists(key chunk.Key) (bool, error)

	// DeleteChunk removes key. A missing key fails with
	// ErrChunkNotFound.
	DeleteChunk(key chunk.Key) error

	// DeleteChunksWithPrefix removes every key starting with prefix.
	DeleteChunksWithPrefix(prefix chunk.Key) error

	// ChunkMetadataForKeyPrefix lists the stored chunks matching
	// prefix, in key order.
	ChunkMetadataForKeyPrefix(prefix chunk.Key) ([]chunk.Metadata, error)

	// Checkpoint makes previously written chunks durable.
	Checkpoint() error

	Close() error
}

// storeUpstream adapts a Store to the pool Upstream interface,
// terminating the tier fetch recursion at persistent storage.
type storeUpstream struct {
	store Store
}

func (s *storeUpstream) FetchBuffer(key chunk.Key, dest *bufferpool.Buffer, numBytes int64) error {
	data, err := s.store.ReadChunk(key, 0, numBytes)
	if err != nil {
		return errors.Wrapf(err, "reading chunk %s from store", key)
	}
	return dest.Fill(data, 0)
}

func (s *storeUpstream) PutBuffer(key chunk.Key, src *bufferpool.Buffer) error {
	if err := s.store.WriteChunk(key, src.Data()); err != nil {
		return errors.Wrapf(err, "writing chunk %s to store", key)
	}
	return nil
}
