package datamgr

import (
	"sort"
	"strings"
	"sync"

	"github.com/stratadb/strata/bufferpool"
	"github.com/stratadb/strata/chunk"
)

// MemStore is an in-memory Store, for diskless operation and tests. It
// counts reads and records write order so tests can assert on exactly
// how many times the persistent tier was touched.
type MemStore struct {
	mu     sync.Mutex
	chunks map[string][]byte

	reads    int
	writeLog []chunk.Key
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{chunks: make(map[string][]byte)}
}

func (s *MemStore) ReadChunk(key chunk.Key, offset, numBytes int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.chunks[string(key.Encoded())]
	if !ok {
		return nil, bufferpool.NewErrChunkNotFound(key)
	}
	s.reads++
	return sliceChunk(data, offset, numBytes), nil
}

func (s *MemStore) WriteChunk(key chunk.Key, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(data))
	copy(out, data)
	s.chunks[string(key.Encoded())] = out
	s.writeLog = append(s.writeLog, key.Clone())
	return nil
}

func (s *MemStore) ChunkExists(key chunk.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.chunks[string(key.Encoded())]
	return ok, nil
}

func (s *MemStore) DeleteChunk(key chunk.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := string(key.Encoded())
	if _, ok := s.chunks[enc]; !ok {
		return bufferpool.NewErrChunkNotFound(key)
	}
	delete(s.chunks, enc)
	return nil
}

func (s *MemStore) DeleteChunksWithPrefix(prefix chunk.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	encPrefix := string(prefix.Encoded())
	for enc := range s.chunks {
		if strings.HasPrefix(enc, encPrefix) {
			delete(s.chunks, enc)
		}
	}
	return nil
}

func (s *MemStore) ChunkMetadataForKeyPrefix(prefix chunk.Key) ([]chunk.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	encPrefix := string(prefix.Encoded())
	var out []chunk.Metadata
	for enc, data := range s.chunks {
		if !strings.HasPrefix(enc, encPrefix) {
			continue
		}
		key, err := chunk.DecodeKey([]byte(enc))
		if err != nil {
			return nil, err
		}
		out = append(out, chunk.Metadata{Key: key, NumBytes: int64(len(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, nil
}

func (s *MemStore) Checkpoint() error {
	return nil
}

func (s *MemStore) Close() error {
	return nil
}

// Reads returns how many chunk reads have been served.
func (s *MemStore) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// WriteLog returns the keys written so far, in order.
func (s *MemStore) WriteLog() []chunk.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chunk.Key, len(s.writeLog))
	copy(out, s.writeLog)
	return out
}

func sliceChunk(data []byte, offset, numBytes int64) []byte {
	if offset >= int64(len(data)) {
		return nil
	}
	end := int64(len(data))
	if numBytes > 0 && offset+numBytes < end {
		end = offset + numBytes
	}
	out := make([]byte, end-offset)
	copy(out, data[offset:end])
	return out
}
