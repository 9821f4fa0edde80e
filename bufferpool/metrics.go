package bufferpool

import "github.com/prometheus/client_golang/prometheus"

var cacheHits = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bufferpool",
		Name:      "cache_hits_total",
		Help:      "Chunk requests served from resident buffers.",
	},
	[]string{"device"},
)

var cacheMisses = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bufferpool",
		Name:      "cache_misses_total",
		Help:      "Chunk requests that materialized a buffer from the parent tier.",
	},
	[]string{"device"},
)

var dedupWaits = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bufferpool",
		Name:      "dedup_waits_total",
		Help:      "Chunk requests that waited on another thread's in-flight fill.",
	},
	[]string{"device"},
)

var slabAllocations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bufferpool",
		Name:      "slab_allocations_total",
		Help:      "Slabs successfully allocated.",
	},
	[]string{"device"},
)

var slabAllocationFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bufferpool",
		Name:      "slab_allocation_failures_total",
		Help:      "Slab allocation attempts refused by the device.",
	},
	[]string{"device"},
)

var evictionRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bufferpool",
		Name:      "eviction_runs_total",
		Help:      "Forced evictions of a contiguous victim run.",
	},
	[]string{"device"},
)

var buffersEvicted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bufferpool",
		Name:      "buffers_evicted_total",
		Help:      "Buffers destroyed by eviction.",
	},
	[]string{"device"},
)

func init() {
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
	prometheus.MustRegister(dedupWaits)
	prometheus.MustRegister(slabAllocations)
	prometheus.MustRegister(slabAllocationFailures)
	prometheus.MustRegister(evictionRuns)
	prometheus.MustRegister(buffersEvicted)
}
