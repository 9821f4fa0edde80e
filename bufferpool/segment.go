package bufferpool

import (
	"github.com/stratadb/strata/chunk"
)

// MemStatus tags a segment as free or holding a buffer.
type MemStatus int

const (
	Free MemStatus = iota
	Used
)

func (s MemStatus) String() string {
	if s == Free {
		return "FREE"
	}
	return "USED"
}

// unsizedSlab marks a segment that has been indexed but not yet placed
// in any slab.
const unsizedSlab = -1

// segment is a contiguous run of pages within one slab. Segments in a
// slab's list partition [0, slab pages) with no gaps or overlaps, sorted
// by startPage, and no two adjacent segments are both FREE. All fields
// are guarded by the pool's sized-segment lock once the segment is
// placed in a slab.
type segment struct {
	prev, next *segment

	slabID    int // unsizedSlab until placed
	startPage int64
	numPages  int64
	status    MemStatus

	// lastTouched orders eviction candidates; assigned from the pool's
	// logical clock on every touch.
	lastTouched int64

	key chunk.Key // set iff status == Used
	buf *Buffer   // set iff status == Used
}

// segmentList is a doubly linked list of segments. One per slab, plus
// one for the not-yet-placed segments.
type segmentList struct {
	head *segment
	tail *segment
	size int
}

func (l *segmentList) pushBack(s *segment) {
	s.prev = l.tail
	s.next = nil
	if l.tail != nil {
		l.tail.next = s
	} else {
		l.head = s
	}
	l.tail = s
	l.size++
}

// insertBefore links s ahead of at. A nil at appends.
func (l *segmentList) insertBefore(s, at *segment) {
	if at == nil {
		l.pushBack(s)
		return
	}
	s.prev = at.prev
	s.next = at
	if at.prev != nil {
		at.prev.next = s
	} else {
		l.head = s
	}
	at.prev = s
	l.size++
}

func (l *segmentList) insertAfter(s, at *segment) {
	l.insertBefore(s, at.next)
}

func (l *segmentList) remove(s *segment) {
	if s.prev != nil {
		s.prev.next = s.next
	} else {
		l.head = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	} else {
		l.tail = s.prev
	}
	s.prev, s.next = nil, nil
	l.size--
}

// slab is one contiguous device allocation carved into segments.
type slab struct {
	id    int
	mem   []byte
	pages int64
	segs  segmentList
}

func newSlab(id int, mem []byte, pages int64) *slab {
	s := &slab{id: id, mem: mem, pages: pages}
	s.segs.pushBack(&segment{
		slabID:   id,
		numPages: pages,
		status:   Free,
	})
	return s
}
