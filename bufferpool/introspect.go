package bufferpool

import (
	"fmt"
	"strings"

	"github.com/stratadb/strata/chunk"
)

// SegmentInfo is a point-in-time snapshot of one segment, for memory
// introspection and debug dumps.
type SegmentInfo struct {
	SlabID      int
	StartPage   int64
	NumPages    int64
	LastTouched int64
	Status      MemStatus
	Key         chunk.Key
	PinCount    int32
}

// MemoryInfo is a point-in-time snapshot of one pool.
type MemoryInfo struct {
	PageSize           int64
	MaxNumPages        int64
	NumPagesAllocated  int64
	IsAllocationCapped bool
	Segments           []SegmentInfo
}

// MemoryInfo snapshots the pool's segments and counters. Read-only; no
// effect on cache state.
func (p *Pool) MemoryInfo() MemoryInfo {
	p.segsMu.Lock()
	defer p.segsMu.Unlock()
	mi := MemoryInfo{
		PageSize:           p.pageSize,
		MaxNumPages:        p.maxPoolPages,
		NumPagesAllocated:  p.pagesAllocated,
		IsAllocationCapped: p.capped,
	}
	for _, sl := range p.slabs {
		for seg := sl.segs.head; seg != nil; seg = seg.next {
			si := SegmentInfo{
				SlabID:      seg.slabID,
				StartPage:   seg.startPage,
				NumPages:    seg.numPages,
				LastTouched: seg.lastTouched,
				Status:      seg.status,
			}
			if seg.status == Used && seg.buf != nil {
				si.Key = seg.buf.key
				si.PinCount = seg.buf.PinCount()
			}
			mi.Segments = append(mi.Segments, si)
		}
	}
	return mi
}

// DumpSlabs renders the slab segment lists for debug logging.
func (p *Pool) DumpSlabs() string {
	mi := p.MemoryInfo()
	var sb strings.Builder
	fmt.Fprintf(&sb, "slab contents, device %d:\n", p.deviceID)
	fmt.Fprintf(&sb, "Slab St.Page   Pages  Touch\n")
	for _, si := range mi.Segments {
		fmt.Fprintf(&sb, "%4d %8d %7d %6d", si.SlabID, si.StartPage, si.NumPages, si.LastTouched)
		if si.Status == Free {
			fmt.Fprintf(&sb, " FREE\n")
		} else {
			fmt.Fprintf(&sb, " PC: %2d USED - Chunk: %s\n", si.PinCount, si.Key)
		}
	}
	sb.WriteString("--------------------\n")
	return sb.String()
}
