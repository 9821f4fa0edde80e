// Package cfg defines externally configurable buffer pool options.
// The separate package avoids circular import.
package cfg

import (
	"fmt"

	"github.com/spf13/pflag"
)

const (
	// DefaultPageSize is the allocation granularity inside a slab.
	DefaultPageSize = 512

	DefaultMaxPoolSize = 1 << 32 // 4GiB
	DefaultMaxSlabSize = 1 << 30 // 1GiB
	DefaultMinSlabSize = 1 << 25 // 32MiB
)

// Config defines the sizing of one buffer pool.
type Config struct {
	// MaxPoolSize caps the total bytes of slab memory the pool may
	// ever allocate on its device.
	MaxPoolSize int64

	// MinSlabSize is the smallest slab the pool will attempt while
	// shrinking under memory pressure. Once the attempted slab size
	// falls below this, the pool is capped for its lifetime.
	MinSlabSize int64

	// MaxSlabSize is the largest slab the pool will allocate, and the
	// upper bound on a single buffer.
	MaxSlabSize int64

	// PageSize is the allocation granularity. Slab sizes must be
	// multiples of it.
	PageSize int64
}

func NewDefaultConfig() *Config {
	return &Config{
		MaxPoolSize: DefaultMaxPoolSize,
		MinSlabSize: DefaultMinSlabSize,
		MaxSlabSize: DefaultMaxSlabSize,
		PageSize:    DefaultPageSize,
	}
}

func (cfg *Config) DefineFlags(flags *pflag.FlagSet) {
	default0 := NewDefaultConfig()
	flags.Int64Var(&cfg.MaxPoolSize, "bufferpool-max-size", default0.MaxPoolSize, "maximum total bytes of buffer pool memory per device")
	flags.Int64Var(&cfg.MinSlabSize, "bufferpool-min-slab-size", default0.MinSlabSize, "smallest slab size in bytes attempted under memory pressure")
	flags.Int64Var(&cfg.MaxSlabSize, "bufferpool-max-slab-size", default0.MaxSlabSize, "largest slab size in bytes; also the largest single buffer")
	flags.Int64Var(&cfg.PageSize, "bufferpool-page-size", default0.PageSize, "buffer pool page size in bytes")
}

// Validate checks the relationships the pool construction relies on.
func (cfg *Config) Validate() error {
	if cfg.MaxPoolSize <= 0 || cfg.MinSlabSize <= 0 || cfg.MaxSlabSize <= 0 || cfg.PageSize <= 0 {
		return fmt.Errorf("buffer pool sizes must be positive: %+v", *cfg)
	}
	if cfg.MinSlabSize > cfg.MaxSlabSize {
		return fmt.Errorf("min slab size %d exceeds max slab size %d", cfg.MinSlabSize, cfg.MaxSlabSize)
	}
	if cfg.MinSlabSize%cfg.PageSize != 0 {
		return fmt.Errorf("min slab size %d is not a multiple of page size %d", cfg.MinSlabSize, cfg.PageSize)
	}
	if cfg.MaxSlabSize%cfg.PageSize != 0 {
		return fmt.Errorf("max slab size %d is not a multiple of page size %d", cfg.MaxSlabSize, cfg.PageSize)
	}
	return nil
}
