package datamgr_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/bufferpool"
	"github.com/stratadb/strata/bufferpool/cfg"
	"github.com/stratadb/strata/chunk"
	"github.com/stratadb/strata/datamgr"
)

func tierConfig() *cfg.Config {
	return &cfg.Config{
		PageSize:    64,
		MaxPoolSize: 64 * 64,
		MaxSlabSize: 64 * 8,
		MinSlabSize: 64,
	}
}

// newTestMgr builds a three-tier hierarchy: a MemStore, a CPU pool, and
// one GPU pool backed by a bounded allocator.
func newTestMgr(t *testing.T) (*datamgr.DataMgr, *datamgr.MemStore) {
	t.Helper()
	store := datamgr.NewMemStore()
	m, err := datamgr.New(store, datamgr.Config{
		CPU:           tierConfig(),
		GPU:           tierConfig(),
		GPUAllocators: []bufferpool.Allocator{bufferpool.NewBoundedAllocator(64 * 64)},
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, m.Close()) })
	return m, store
}

func TestFetchCascadesThroughTiers(t *testing.T) {
	m, store := newTestMgr(t)

	key := chunk.Key{1, 4, 2, 0}
	data := bytes.Repeat([]byte("frag"), 64)
	require.NoError(t, store.WriteChunk(key, data))

	// A GPU-level read pulls the chunk through the CPU tier, reading
	// the store exactly once and leaving the chunk resident everywhere.
	b, err := m.GetChunkBuffer(key, datamgr.GPULevel, 0, int64(len(data)))
	require.NoError(t, err)
	require.Equal(t, data, b.Data())
	b.Unpin()
	require.Equal(t, 1, store.Reads())

	for _, tc := range []struct {
		level  datamgr.MemoryLevel
		device int
	}{
		{datamgr.DiskLevel, 0},
		{datamgr.CPULevel, 0},
		{datamgr.GPULevel, 0},
	} {
		on, err := m.IsBufferOnDevice(key, tc.level, tc.device)
		require.NoError(t, err)
		require.True(t, on, "chunk should be resident at %s", tc.level)
	}

	// Re-reads at either pool tier are hits.
	b, err = m.GetChunkBuffer(key, datamgr.CPULevel, 0, int64(len(data)))
	require.NoError(t, err)
	b.Unpin()
	require.Equal(t, 1, store.Reads())
}

func TestCheckpointCascadesDownward(t *testing.T) {
	m, store := newTestMgr(t)

	key := chunk.Key{2, 1, 0, 0}
	data := bytes.Repeat([]byte{0x5A}, 100)
	b, err := m.CreateChunkBuffer(key, datamgr.GPULevel, 0, int64(len(data)))
	require.NoError(t, err)
	require.NoError(t, b.WriteData(data, 0))
	b.Unpin()

	// Before checkpoint the write exists only in the GPU tier.
	onDisk, err := m.IsBufferOnDevice(key, datamgr.DiskLevel, 0)
	require.NoError(t, err)
	require.False(t, onDisk)

	require.NoError(t, m.Checkpoint())

	got, err := store.ReadChunk(key, 0, 0)
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.Equal(t, []chunk.Key{key}, store.WriteLog())

	// The flushed copy is clean everywhere, so a second checkpoint
	// writes nothing.
	require.NoError(t, m.Checkpoint())
	require.Len(t, store.WriteLog(), 1)
}

func TestDeleteChunksWithPrefixSpansTiers(t *testing.T) {
	m, store := newTestMgr(t)

	data := bytes.Repeat([]byte{7}, 64)
	for i := int32(0); i < 3; i++ {
		key := chunk.Key{3, 1, i, 0}
		require.NoError(t, store.WriteChunk(key, data))
		b, err := m.GetChunkBuffer(key, datamgr.GPULevel, 0, 64)
		require.NoError(t, err)
		b.Unpin()
	}
	keep := chunk.Key{3, 2, 0, 0}
	require.NoError(t, store.WriteChunk(keep, data))

	require.NoError(t, m.DeleteChunksWithPrefix(chunk.Key{3, 1}))

	for i := int32(0); i < 3; i++ {
		key := chunk.Key{3, 1, i, 0}
		for _, level := range []datamgr.MemoryLevel{datamgr.DiskLevel, datamgr.CPULevel, datamgr.GPULevel} {
			on, err := m.IsBufferOnDevice(key, level, 0)
			require.NoError(t, err)
			require.False(t, on, "chunk %s should be gone from %s", key, level)
		}
	}
	on, err := m.IsBufferOnDevice(keep, datamgr.DiskLevel, 0)
	require.NoError(t, err)
	require.True(t, on)
}

func TestScratchBuffers(t *testing.T) {
	m, store := newTestMgr(t)

	b, err := m.Alloc(datamgr.CPULevel, 0, 128)
	require.NoError(t, err)
	require.True(t, b.Key().IsScratch())
	require.NoError(t, b.WriteData(bytes.Repeat([]byte{1}, 128), 0))
	b.Unpin()

	// Scratch data never reaches the store.
	require.NoError(t, m.Checkpoint())
	require.Empty(t, store.WriteLog())

	require.NoError(t, m.FreeAllBuffers())
	sum := m.MemorySummary()
	require.Equal(t, int64(0), sum.CPU.InUse)
}

func TestCopyBetweenBuffers(t *testing.T) {
	m, _ := newTestMgr(t)

	src, err := m.CreateChunkBuffer(chunk.Key{1, 0, 0, 0}, datamgr.CPULevel, 0, 64)
	require.NoError(t, err)
	defer src.Unpin()
	require.NoError(t, src.WriteData(bytes.Repeat([]byte{0xCC}, 64), 0))

	dst, err := m.Alloc(datamgr.CPULevel, 0, 64)
	require.NoError(t, err)
	defer dst.Unpin()

	require.NoError(t, m.Copy(dst, src))
	require.Equal(t, src.Data(), dst.Data())
}

func TestMemorySummaryAndClear(t *testing.T) {
	m, _ := newTestMgr(t)

	b, err := m.CreateChunkBuffer(chunk.Key{1, 1, 0, 0}, datamgr.GPULevel, 0, 200)
	require.NoError(t, err)
	b.Unpin()

	sum := m.MemorySummary()
	require.Equal(t, int64(64*64), sum.CPU.Max)
	require.Len(t, sum.GPUs, 1)
	require.Greater(t, sum.GPUs[0].Allocated, int64(0))
	require.Equal(t, int64(256), sum.GPUs[0].InUse, "200 bytes rounds up to four 64-byte pages")

	require.NotEmpty(t, m.DumpLevel(datamgr.GPULevel))

	m.ClearMemory(datamgr.GPULevel)
	sum = m.MemorySummary()
	require.Equal(t, int64(0), sum.GPUs[0].Allocated)
	require.Equal(t, int64(0), sum.GPUs[0].InUse)
}

func TestChunkMetadataComesFromStore(t *testing.T) {
	m, store := newTestMgr(t)

	require.NoError(t, store.WriteChunk(chunk.Key{6, 0, 0, 0}, make([]byte, 10)))
	require.NoError(t, store.WriteChunk(chunk.Key{6, 0, 1, 0}, make([]byte, 20)))
	require.NoError(t, store.WriteChunk(chunk.Key{6, 1, 0, 0}, make([]byte, 30)))

	metas, err := m.ChunkMetadataForKeyPrefix(chunk.Key{6, 0})
	require.NoError(t, err)
	require.Len(t, metas, 2)
	require.Equal(t, chunk.Key{6, 0, 0, 0}, metas[0].Key)
	require.Equal(t, int64(10), metas[0].NumBytes)
	require.Equal(t, int64(20), metas[1].NumBytes)
}

func TestLevelValidation(t *testing.T) {
	m, _ := newTestMgr(t)

	_, err := m.GetChunkBuffer(chunk.Key{1, 0}, datamgr.DiskLevel, 0, 64)
	require.Error(t, err, "the disk level has no buffer pool")

	_, err = m.GetChunkBuffer(chunk.Key{1, 0}, datamgr.GPULevel, 5, 64)
	require.Error(t, err)

	_, err = m.GetChunkBuffer(chunk.Key{1, 0}, datamgr.CPULevel, 1, 64)
	require.Error(t, err)
}
