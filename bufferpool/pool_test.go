package bufferpool_test

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/stratadb/strata/bufferpool"
	"github.com/stratadb/strata/bufferpool/cfg"
	"github.com/stratadb/strata/chunk"
	"github.com/stratadb/strata/errors"
)

// fakeUpstream is a test double for the next tier down: a key-value map
// with fetch counting and an optional artificial fetch latency.
type fakeUpstream struct {
	mu         sync.Mutex
	chunks     map[string][]byte
	fetches    int
	puts       []chunk.Key
	fetchDelay time.Duration
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{chunks: map[string][]byte{}}
}

func (u *fakeUpstream) set(key chunk.Key, data []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.chunks[string(key.Encoded())] = append([]byte(nil), data...)
}

func (u *fakeUpstream) fetchCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.fetches
}

func (u *fakeUpstream) FetchBuffer(key chunk.Key, dest *bufferpool.Buffer, numBytes int64) error {
	u.mu.Lock()
	u.fetches++
	data, ok := u.chunks[string(key.Encoded())]
	u.mu.Unlock()
	if !ok {
		return bufferpool.NewErrChunkNotFound(key)
	}
	if u.fetchDelay > 0 {
		time.Sleep(u.fetchDelay)
	}
	if numBytes > 0 && numBytes < int64(len(data)) {
		data = data[:numBytes]
	}
	return dest.Fill(data, 0)
}

func (u *fakeUpstream) PutBuffer(key chunk.Key, src *bufferpool.Buffer) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.chunks[string(key.Encoded())] = append([]byte(nil), src.Data()...)
	u.puts = append(u.puts, src.Key())
	return nil
}

func smallConfig() *cfg.Config {
	return &cfg.Config{
		PageSize:    64,
		MaxPoolSize: 64 * 64,
		MaxSlabSize: 64 * 8,
		MinSlabSize: 64,
	}
}

func TestCreateWriteGet(t *testing.T) {
	up := newFakeUpstream()
	p, err := bufferpool.NewPool(0, smallConfig(), nil, up, nil)
	require.NoError(t, err)

	key := chunk.Key{1, 2, 0}
	data := bytes.Repeat([]byte("strata"), 20)
	b, err := p.CreateBuffer(key, int64(len(data)))
	require.NoError(t, err)
	require.NoError(t, b.WriteData(data, 0))
	require.True(t, b.IsDirty())
	b.Unpin()

	got, err := p.GetBuffer(key, int64(len(data)))
	require.NoError(t, err)
	defer got.Unpin()
	require.Equal(t, data, got.Data())
	require.Equal(t, 0, up.fetchCount(), "resident chunk must not touch the parent tier")
}

func TestGetBufferFetchesOnce(t *testing.T) {
	up := newFakeUpstream()
	key := chunk.Key{1, 3, 0}
	data := bytes.Repeat([]byte{0xAB}, 100)
	up.set(key, data)

	p, err := bufferpool.NewPool(0, smallConfig(), nil, up, nil)
	require.NoError(t, err)

	b, err := p.GetBuffer(key, int64(len(data)))
	require.NoError(t, err)
	require.Equal(t, data, b.Data())
	require.False(t, b.IsDirty(), "fetched data is clean")
	b.Unpin()

	b, err = p.GetBuffer(key, int64(len(data)))
	require.NoError(t, err)
	b.Unpin()
	require.Equal(t, 1, up.fetchCount())
}

func TestGetBufferMissing(t *testing.T) {
	p, err := bufferpool.NewPool(0, smallConfig(), nil, nil, nil)
	require.NoError(t, err)

	_, err = p.GetBuffer(chunk.Key{9, 9}, 64)
	require.Error(t, err)
	require.True(t, errors.Is(err, bufferpool.ErrChunkNotFound), "got %v", err)
	require.Equal(t, 0, p.NumChunks(), "failed miss must not leave a placeholder behind")
}

func TestCreateBufferDuplicateKey(t *testing.T) {
	p, err := bufferpool.NewPool(0, smallConfig(), nil, nil, nil)
	require.NoError(t, err)

	key := chunk.Key{1, 0}
	b, err := p.CreateBuffer(key, 64)
	require.NoError(t, err)
	defer b.Unpin()

	_, err = p.CreateBuffer(key, 64)
	require.True(t, errors.Is(err, bufferpool.ErrDuplicateKey), "got %v", err)
}

func TestCreateBufferTooBig(t *testing.T) {
	p, err := bufferpool.NewPool(0, smallConfig(), nil, nil, nil)
	require.NoError(t, err)

	_, err = p.CreateBuffer(chunk.Key{1, 0}, 64*8+1)
	require.True(t, errors.Is(err, bufferpool.ErrTooBigForSlab), "got %v", err)
}

func TestAppendAcrossPages(t *testing.T) {
	p, err := bufferpool.NewPool(0, smallConfig(), nil, nil, nil)
	require.NoError(t, err)

	b, err := p.CreateBuffer(chunk.Key{1, 0}, 16)
	require.NoError(t, err)
	defer b.Unpin()

	var want []byte
	for i := 0; i < 20; i++ {
		part := bytes.Repeat([]byte{byte(i)}, 17)
		require.NoError(t, b.Append(part))
		want = append(want, part...)
	}
	require.Equal(t, int64(len(want)), b.Size())
	require.Equal(t, want, b.Data())
}

func TestDeleteBuffersWithPrefix(t *testing.T) {
	p, err := bufferpool.NewPool(0, smallConfig(), nil, nil, nil)
	require.NoError(t, err)

	for i := int32(0); i < 4; i++ {
		b, err := p.CreateBuffer(chunk.Key{1, 7, i}, 64)
		require.NoError(t, err)
		b.Unpin()
	}
	other, err := p.CreateBuffer(chunk.Key{2, 7, 0}, 64)
	require.NoError(t, err)
	other.Unpin()

	// One buffer in the range stays pinned across the delete.
	pinned, err := p.GetBuffer(chunk.Key{1, 7, 2}, 0)
	require.NoError(t, err)

	p.DeleteBuffersWithPrefix(chunk.Key{1, 7})

	require.False(t, p.IsBufferOnDevice(chunk.Key{1, 7, 0}))
	require.True(t, p.IsBufferOnDevice(chunk.Key{1, 7, 2}), "pinned buffer survives the prefix delete")
	require.True(t, p.IsBufferOnDevice(chunk.Key{2, 7, 0}), "keys outside the prefix are untouched")

	// Dropping the last pin completes the deferred delete.
	pinned.Unpin()
	require.False(t, p.IsBufferOnDevice(chunk.Key{1, 7, 2}))
}

func TestCheckpointFlushesDirtyBuffers(t *testing.T) {
	up := newFakeUpstream()
	p, err := bufferpool.NewPool(0, smallConfig(), nil, up, nil)
	require.NoError(t, err)

	dirty, err := p.CreateBuffer(chunk.Key{1, 0}, 64)
	require.NoError(t, err)
	require.NoError(t, dirty.WriteData(bytes.Repeat([]byte{1}, 64), 0))
	dirty.Unpin()

	up.set(chunk.Key{1, 1}, bytes.Repeat([]byte{2}, 64))
	clean, err := p.GetBuffer(chunk.Key{1, 1}, 64)
	require.NoError(t, err)
	clean.Unpin()

	scratch, err := p.Alloc(64)
	require.NoError(t, err)
	require.NoError(t, scratch.WriteData(bytes.Repeat([]byte{3}, 64), 0))
	defer scratch.Unpin()

	require.NoError(t, p.Checkpoint())
	require.Equal(t, []chunk.Key{{1, 0}}, up.puts, "only the dirty non-scratch buffer is flushed")
	require.False(t, dirty.IsDirty())

	// A second checkpoint has nothing left to flush.
	require.NoError(t, p.Checkpoint())
	require.Len(t, up.puts, 1)
}

func TestAllocFree(t *testing.T) {
	p, err := bufferpool.NewPool(0, smallConfig(), nil, nil, nil)
	require.NoError(t, err)

	b, err := p.Alloc(100)
	require.NoError(t, err)
	require.True(t, b.Key().IsScratch())
	require.NoError(t, b.WriteData(bytes.Repeat([]byte{9}, 100), 0))

	b.Unpin()
	require.NoError(t, b.Free())
	require.Equal(t, 0, p.NumChunks())
}

func TestConcurrentGetDeduplicatesFetch(t *testing.T) {
	up := newFakeUpstream()
	up.fetchDelay = 10 * time.Millisecond
	key := chunk.Key{1, 5, 0}
	data := bytes.Repeat([]byte("chunky"), 50)
	up.set(key, data)

	p, err := bufferpool.NewPool(0, smallConfig(), nil, up, nil)
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			b, err := p.GetBuffer(key, int64(len(data)))
			if err != nil {
				return err
			}
			defer b.Unpin()
			if !bytes.Equal(b.Data(), data) {
				return errors.Errorf("got %d bytes, want %d", b.Size(), len(data))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 1, up.fetchCount(), "concurrent misses for one key must share a single fetch")
}

func TestClearSlabs(t *testing.T) {
	p, err := bufferpool.NewPool(0, smallConfig(), nil, nil, nil)
	require.NoError(t, err)

	for i := int32(0); i < 6; i++ {
		b, err := p.CreateBuffer(chunk.Key{1, i}, 64)
		require.NoError(t, err)
		b.Unpin()
	}
	require.Greater(t, p.Allocated(), int64(0))

	p.ClearSlabs()
	require.Equal(t, 0, p.NumChunks())
	require.Equal(t, int64(0), p.Allocated())
	require.Equal(t, int64(0), p.InUseSize())
}

func TestChunkMetadataForKeyPrefix(t *testing.T) {
	p, err := bufferpool.NewPool(0, smallConfig(), nil, nil, nil)
	require.NoError(t, err)

	sizes := map[int32]int64{0: 10, 1: 200, 2: 65}
	for i, n := range sizes {
		b, err := p.CreateBuffer(chunk.Key{4, 1, i}, n)
		require.NoError(t, err)
		require.NoError(t, b.WriteData(make([]byte, n), 0))
		b.Unpin()
	}
	b, err := p.CreateBuffer(chunk.Key{5, 1, 0}, 10)
	require.NoError(t, err)
	b.Unpin()

	metas := p.ChunkMetadataForKeyPrefix(chunk.Key{4, 1})
	require.Len(t, metas, 3)
	for _, m := range metas {
		require.Equal(t, sizes[m.Key[2]], m.NumBytes)
	}
}

func TestMemoryInfo(t *testing.T) {
	p, err := bufferpool.NewPool(0, smallConfig(), nil, nil, nil)
	require.NoError(t, err)

	b, err := p.CreateBuffer(chunk.Key{1, 0}, 130)
	require.NoError(t, err)
	defer b.Unpin()

	info := p.MemoryInfo()
	require.Equal(t, int64(64), info.PageSize)
	require.NotEmpty(t, info.Segments)
	used := info.Segments[0]
	require.Equal(t, bufferpool.Used, used.Status)
	require.Equal(t, int64(3), used.NumPages, "130 bytes rounds up to three 64-byte pages")
	require.NotEmpty(t, p.DumpSlabs())
}
