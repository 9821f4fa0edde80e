package bufferpool

import (
	"sync"

	"github.com/stratadb/strata/errors"
)

// ErrDeviceAllocation is returned by an Allocator that cannot supply the
// requested bytes. The pool treats it as a capacity signal and shrinks
// its slab size before retrying.
const ErrDeviceAllocation errors.Code = "ErrDeviceAllocation"

// Allocator supplies raw memory for slabs on one device. The pool is
// indifferent to where the bytes live; an accelerator tier injects an
// allocator backed by its device runtime.
type Allocator interface {
	// Allocate returns a zeroed region of exactly numBytes.
	Allocate(numBytes int64) ([]byte, error)

	// Free releases a region previously returned by Allocate.
	Free(mem []byte) error
}

// hostAllocator allocates slabs from the Go heap.
type hostAllocator struct{}

// NewHostAllocator returns the allocator used for host (CPU) pools.
func NewHostAllocator() Allocator {
	return hostAllocator{}
}

func (hostAllocator) Allocate(numBytes int64) ([]byte, error) {
	return make([]byte, numBytes), nil
}

func (hostAllocator) Free(mem []byte) error {
	return nil
}

// BoundedAllocator models a device with a fixed amount of memory. It
// refuses allocations that would push the outstanding total over its
// capacity, which is how real accelerator runtimes fail and what drives
// the pool's slab-shrinking policy.
type BoundedAllocator struct {
	mu          sync.Mutex
	capacity    int64
	outstanding int64
}

func NewBoundedAllocator(capacity int64) *BoundedAllocator {
	return &BoundedAllocator{capacity: capacity}
}

func (a *BoundedAllocator) Allocate(numBytes int64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outstanding+numBytes > a.capacity {
		return nil, errors.New(ErrDeviceAllocation,
			"device allocation failed: capacity exceeded")
	}
	a.outstanding += numBytes
	return make([]byte, numBytes), nil
}

func (a *BoundedAllocator) Free(mem []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outstanding -= int64(len(mem))
	return nil
}

// Outstanding reports the bytes currently allocated and not freed.
func (a *BoundedAllocator) Outstanding() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outstanding
}
