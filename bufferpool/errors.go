package bufferpool

import (
	"fmt"

	"github.com/stratadb/strata/chunk"
	"github.com/stratadb/strata/errors"
)

const (
	// capacity errors - recoverable by the caller

	// ErrOutOfMemory means the pool is full of pinned or recently
	// touched data and no eviction run could cover the request.
	ErrOutOfMemory errors.Code = "ErrOutOfMemory"

	// ErrTooBigForSlab means the request exceeds the configured
	// maximum slab size and can never be satisfied by this pool.
	ErrTooBigForSlab errors.Code = "ErrTooBigForSlab"

	// ErrFailedToCreateFirstSlab means the pool could not allocate
	// even its first, minimum-size slab. Configuration error.
	ErrFailedToCreateFirstSlab errors.Code = "ErrFailedToCreateFirstSlab"

	// consistency errors - caller bugs, never retried

	ErrDuplicateKey  errors.Code = "ErrDuplicateKey"
	ErrChunkNotFound errors.Code = "ErrChunkNotFound"
)

func NewErrOutOfMemory(numBytes int64) error {
	return errors.New(ErrOutOfMemory, fmt.Sprintf("buffer pool out of memory requesting %d bytes", numBytes))
}

func NewErrTooBigForSlab(numBytes int64) error {
	return errors.New(ErrTooBigForSlab, fmt.Sprintf("request of %d bytes exceeds max slab size", numBytes))
}

func NewErrFailedToCreateFirstSlab(numBytes int64) error {
	return errors.New(ErrFailedToCreateFirstSlab, fmt.Sprintf("could not allocate first slab while requesting %d bytes", numBytes))
}

func NewErrDuplicateKey(key chunk.Key) error {
	return errors.New(ErrDuplicateKey, fmt.Sprintf("buffer already exists for chunk %s", key))
}

func NewErrChunkNotFound(key chunk.Key) error {
	return errors.New(ErrChunkNotFound, fmt.Sprintf("no buffer for chunk %s", key))
}
