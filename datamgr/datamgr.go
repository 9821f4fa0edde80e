// Package datamgr routes chunk requests through the storage tier
// hierarchy: a persistent store at the bottom, a host buffer pool above
// it, and one pool per accelerator device on top. Reads promote data
// upward tier by tier; checkpoints flush dirty data downward.
package datamgr

import (
	"github.com/stratadb/strata/bufferpool"
	"github.com/stratadb/strata/bufferpool/cfg"
	"github.com/stratadb/strata/chunk"
	"github.com/stratadb/strata/errors"
	"github.com/stratadb/strata/logger"
)

// MemoryLevel identifies one level of the storage hierarchy.
type MemoryLevel int

const (
	DiskLevel MemoryLevel = iota
	CPULevel
	GPULevel
)

func (l MemoryLevel) String() string {
	switch l {
	case DiskLevel:
		return "disk"
	case CPULevel:
		return "cpu"
	case GPULevel:
		return "gpu"
	}
	return "unknown"
}

// Config sizes the pools of a DataMgr. GPU pools are created one per
// entry in GPUAllocators, each using the GPU sizing; a nil GPU config
// with allocators present is an error.
type Config struct {
	CPU           *cfg.Config
	GPU           *cfg.Config
	GPUAllocators []bufferpool.Allocator
	Logger        logger.Logger
}

// DataMgr owns one buffer pool per memory tier and the persistent store
// below them, and routes chunk requests between them.
type DataMgr struct {
	store Store
	cpu   *bufferpool.Pool
	gpus  []*bufferpool.Pool
	log   logger.Logger
}

// New wires the tier chain: every GPU pool's upstream is the CPU pool,
// and the CPU pool's upstream is the store.
func New(store Store, c Config) (*DataMgr, error) {
	if store == nil {
		return nil, errors.Errorf("datamgr requires a persistent store")
	}
	log := c.Logger
	if log == nil {
		log = logger.NopLogger
	}

	cpu, err := bufferpool.NewPool(0, c.CPU, bufferpool.NewHostAllocator(), &storeUpstream{store: store}, log)
	if err != nil {
		return nil, errors.Wrap(err, "creating cpu pool")
	}
	m := &DataMgr{store: store, cpu: cpu, log: log}

	if len(c.GPUAllocators) > 0 && c.GPU == nil {
		return nil, errors.Errorf("gpu allocators given without a gpu pool config")
	}
	for i, alloc := range c.GPUAllocators {
		gpu, err := bufferpool.NewPool(i, c.GPU, alloc, cpu, log)
		if err != nil {
			return nil, errors.Wrapf(err, "creating gpu pool %d", i)
		}
		m.gpus = append(m.gpus, gpu)
	}
	return m, nil
}

// pool resolves a level/device pair. The disk level has no pool; it is
// a pass-through persistence layer.
func (m *DataMgr) pool(level MemoryLevel, deviceID int) (*bufferpool.Pool, error) {
	switch level {
	case CPULevel:
		if deviceID != 0 {
			return nil, errors.Errorf("cpu level has a single device, got device %d", deviceID)
		}
		return m.cpu, nil
	case GPULevel:
		if deviceID < 0 || deviceID >= len(m.gpus) {
			return nil, errors.Errorf("no gpu pool for device %d", deviceID)
		}
		return m.gpus[deviceID], nil
	case DiskLevel:
		return nil, errors.Errorf("disk level has no buffer pool")
	}
	return nil, errors.Errorf("unknown memory level %d", level)
}

// GetChunkBuffer returns the pinned buffer for key at the given tier,
// promoting the chunk up through the hierarchy as needed.
func (m *DataMgr) GetChunkBuffer(key chunk.Key, level MemoryLevel, deviceID int, numBytes int64) (*bufferpool.Buffer, error) {
	p, err := m.pool(level, deviceID)
	if err != nil {
		return nil, err
	}
	return p.GetBuffer(key, numBytes)
}

// CreateChunkBuffer materializes a new, pinned, empty buffer for key at
// the given tier. Writer paths use this instead of GetChunkBuffer so no
// parent-tier fetch is issued.
func (m *DataMgr) CreateChunkBuffer(key chunk.Key, level MemoryLevel, deviceID int, numBytes int64) (*bufferpool.Buffer, error) {
	p, err := m.pool(level, deviceID)
	if err != nil {
		return nil, err
	}
	return p.CreateBuffer(key, numBytes)
}

// Alloc returns a pinned anonymous scratch buffer at the given tier.
func (m *DataMgr) Alloc(level MemoryLevel, deviceID int, numBytes int64) (*bufferpool.Buffer, error) {
	p, err := m.pool(level, deviceID)
	if err != nil {
		return nil, err
	}
	return p.Alloc(numBytes)
}

// Free releases a buffer obtained from Alloc.
func (m *DataMgr) Free(b *bufferpool.Buffer) error {
	return b.Free()
}

// FreeAllBuffers drops every scratch buffer on every tier.
func (m *DataMgr) FreeAllBuffers() error {
	return m.DeleteChunksWithPrefix(chunk.Key{chunk.ScratchNamespace})
}

// DeleteChunksWithPrefix invalidates a key range on every tier,
// accelerators first, then host, then the persistent store, so no tier
// is left referencing a key a lower tier has already forgotten.
func (m *DataMgr) DeleteChunksWithPrefix(prefix chunk.Key) error {
	for i := len(m.gpus) - 1; i >= 0; i-- {
		m.gpus[i].DeleteBuffersWithPrefix(prefix)
	}
	m.cpu.DeleteBuffersWithPrefix(prefix)
	if err := m.store.DeleteChunksWithPrefix(prefix); err != nil {
		return errors.Wrapf(err, "deleting prefix %s from store", prefix)
	}
	return nil
}

// Checkpoint flushes dirty buffers downward, accelerator tiers first,
// then host, then syncs the persistent store, so data existing only in
// a volatile upper tier is durable before being considered committed.
func (m *DataMgr) Checkpoint() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for i := len(m.gpus) - 1; i >= 0; i-- {
		keep(m.gpus[i].Checkpoint())
	}
	keep(m.cpu.Checkpoint())
	keep(m.store.Checkpoint())
	return firstErr
}

// ClearMemory resets every pool at the given level. Best effort; pools
// holding pinned buffers keep their memory.
func (m *DataMgr) ClearMemory(level MemoryLevel) {
	if level == GPULevel {
		for i, p := range m.gpus {
			m.log.Infof("clearing slabs on gpu %d", i)
			p.ClearSlabs()
		}
		return
	}
	m.cpu.ClearSlabs()
}

// IsBufferOnDevice reports whether key is resident at the given tier.
func (m *DataMgr) IsBufferOnDevice(key chunk.Key, level MemoryLevel, deviceID int) (bool, error) {
	if level == DiskLevel {
		return m.store.ChunkExists(key)
	}
	p, err := m.pool(level, deviceID)
	if err != nil {
		return false, err
	}
	return p.IsBufferOnDevice(key), nil
}

// ChunkMetadataForKeyPrefix lists the chunks known to the persistent
// store under prefix.
func (m *DataMgr) ChunkMetadataForKeyPrefix(prefix chunk.Key) ([]chunk.Metadata, error) {
	return m.store.ChunkMetadataForKeyPrefix(prefix)
}

// PoolSummary reports one pool's memory counters.
type PoolSummary struct {
	Max                int64
	InUse              int64
	Allocated          int64
	IsAllocationCapped bool
}

// MemorySummary reports memory usage across the hierarchy.
type MemorySummary struct {
	CPU  PoolSummary
	GPUs []PoolSummary
}

// MemorySummary snapshots every pool's counters. Read-only.
func (m *DataMgr) MemorySummary() MemorySummary {
	ms := MemorySummary{
		CPU: PoolSummary{
			Max:                m.cpu.MaxSize(),
			InUse:              m.cpu.InUseSize(),
			Allocated:          m.cpu.Allocated(),
			IsAllocationCapped: m.cpu.IsAllocationCapped(),
		},
	}
	for _, p := range m.gpus {
		ms.GPUs = append(ms.GPUs, PoolSummary{
			Max:                p.MaxSize(),
			InUse:              p.InUseSize(),
			Allocated:          p.Allocated(),
			IsAllocationCapped: p.IsAllocationCapped(),
		})
	}
	return ms
}

// DumpLevel renders the slab contents of every pool at a level, for
// debug logging.
func (m *DataMgr) DumpLevel(level MemoryLevel) string {
	if level == GPULevel {
		var out string
		for _, p := range m.gpus {
			out += p.DumpSlabs()
		}
		return out
	}
	return m.cpu.DumpSlabs()
}

// Copy overwrites dst's contents with src's. Both buffers must be
// pinned by the caller.
func (m *DataMgr) Copy(dst, src *bufferpool.Buffer) error {
	return dst.WriteData(src.Data(), 0)
}

// Close releases the persistent store. Pool memory is reclaimed by the
// runtime.
func (m *DataMgr) Close() error {
	return m.store.Close()
}
