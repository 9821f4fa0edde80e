package bufferpool

import (
	"sync/atomic"

	"github.com/stratadb/strata/chunk"
	"github.com/stratadb/strata/errors"
)

// Encoding tags how a buffer's raw bytes are to be interpreted by the
// consumer. The pool itself never looks at it.
type Encoding int16

const (
	EncodingNone Encoding = iota
	EncodingFixed
	EncodingVarlen
	EncodingDict
)

// Buffer is the unit a consumer receives from a pool: a byte region
// inside one slab segment, plus a pin count gating eviction.
//
// A buffer's contents may be read concurrently by any number of pinned
// holders. Writes (fetch fill, WriteData) must only be performed by the
// holder of the pin obtained from the creating or fetching call path;
// the pool does not arbitrate between concurrent writers. Concurrent
// fills for one key are already serialized by the pool's in-progress
// marker.
type Buffer struct {
	pool *Pool
	key  chunk.Key

	// seg and mem are rebound by the pool when the buffer is relocated
	// to grow; both are guarded by the pool's sized-segment lock.
	seg *segment
	mem []byte

	// size is the count of valid bytes, <= cap. Written only on the
	// single-writer fill/write paths.
	size int64

	encoding Encoding

	pinCount      int32 // atomic
	dirty         int32 // atomic
	pendingDelete int32 // atomic
}

// Key returns the chunk key this buffer holds.
func (b *Buffer) Key() chunk.Key {
	return b.key
}

// Size returns the count of valid bytes in the buffer.
func (b *Buffer) Size() int64 {
	return b.size
}

// Capacity returns the byte capacity of the buffer's segment.
func (b *Buffer) Capacity() int64 {
	return int64(len(b.mem))
}

// Data returns the valid bytes of the buffer. The returned slice aliases
// slab memory and is only stable while the caller holds a pin.
func (b *Buffer) Data() []byte {
	return b.mem[:b.size]
}

func (b *Buffer) Encoding() Encoding {
	return b.encoding
}

func (b *Buffer) SetEncoding(e Encoding) {
	b.encoding = e
}

// Pin prevents the buffer from being evicted. Pinning never blocks.
func (b *Buffer) Pin() {
	atomic.AddInt32(&b.pinCount, 1)
}

// Unpin releases one pin. When the last pin is dropped on a buffer that
// was bulk-invalidated while in use, the unpin performs the deferred
// delete itself.
func (b *Buffer) Unpin() {
	n := atomic.AddInt32(&b.pinCount, -1)
	if n < 0 {
		panic("bufferpool: unpin of unpinned buffer")
	}
	if n == 0 && atomic.LoadInt32(&b.pendingDelete) == 1 {
		if b.seg != nil {
			// ignore a concurrent explicit delete
			_ = b.pool.DeleteBuffer(b.key)
		}
	}
}

// PinCount returns the current number of pins.
func (b *Buffer) PinCount() int32 {
	return atomic.LoadInt32(&b.pinCount)
}

// IsDirty reports whether the buffer holds writes not yet flushed to
// the parent tier.
func (b *Buffer) IsDirty() bool {
	return atomic.LoadInt32(&b.dirty) == 1
}

func (b *Buffer) markDirty() {
	atomic.StoreInt32(&b.dirty, 1)
}

func (b *Buffer) markClean() {
	atomic.StoreInt32(&b.dirty, 0)
}

func (b *Buffer) markPendingDelete() {
	atomic.StoreInt32(&b.pendingDelete, 1)
}

// ReadData copies len(dst) bytes starting at offset into dst.
func (b *Buffer) ReadData(dst []byte, offset int64) error {
	if offset < 0 || offset+int64(len(dst)) > b.size {
		return errors.Errorf("read of %d bytes at offset %d exceeds buffer size %d for chunk %s",
			len(dst), offset, b.size, b.key)
	}
	copy(dst, b.mem[offset:])
	return nil
}

// WriteData copies src into the buffer at offset, growing it if needed,
// and marks the buffer dirty. The caller must hold a pin.
func (b *Buffer) WriteData(src []byte, offset int64) error {
	if err := b.write(src, offset); err != nil {
		return err
	}
	b.markDirty()
	return nil
}

// Append adds src after the current valid bytes. The caller must hold a
// pin.
func (b *Buffer) Append(src []byte) error {
	return b.WriteData(src, b.size)
}

// Fill is the fetch-path write: identical to WriteData but does not mark
// the buffer dirty, since the bytes came from the parent tier. Only tier
// adapters filling a destination buffer should call it.
func (b *Buffer) Fill(src []byte, offset int64) error {
	return b.write(src, offset)
}

func (b *Buffer) write(src []byte, offset int64) error {
	if offset < 0 {
		return errors.Errorf("negative write offset %d for chunk %s", offset, b.key)
	}
	end := offset + int64(len(src))
	if end > b.Capacity() {
		if err := b.pool.reserveBuffer(b, end); err != nil {
			return err
		}
	}
	copy(b.mem[offset:], src)
	if end > b.size {
		b.size = end
	}
	return nil
}

// Free removes the buffer from its pool. Equivalent to deleting its key.
func (b *Buffer) Free() error {
	return b.pool.DeleteBuffer(b.key)
}
