// Package bufferpool implements the per-device slab memory pool behind
// the tiered chunk cache: a sub-page-granularity allocator with slab
// growth and shrink under memory pressure, scoring-based eviction of
// contiguous unpinned runs, and cross-thread deduplication of concurrent
// misses for the same chunk key.
package bufferpool

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/stratadb/strata/bufferpool/cfg"
	"github.com/stratadb/strata/chunk"
	"github.com/stratadb/strata/errors"
	"github.com/stratadb/strata/logger"
)

// Upstream is the one-tier-down capability injected into a pool at
// construction. A pool's Upstream is either the next pool down the
// hierarchy or an adapter over the persistent store.
type Upstream interface {
	// FetchBuffer copies up to numBytes of key's data into dest,
	// materializing the data at this tier first if needed. numBytes of
	// zero means "everything this tier holds".
	FetchBuffer(key chunk.Key, dest *Buffer, numBytes int64) error

	// PutBuffer accepts a checkpoint write of src's contents for key.
	PutBuffer(key chunk.Key, src *Buffer) error
}

// Pool owns the slabs for one storage tier on one device and maps chunk
// keys to buffers inside them.
//
// Lock order: segsMu, then indexMu, then unsizedMu. A later lock is
// never held while acquiring an earlier one; in particular every path
// that needs both the segment structures and the index takes segsMu
// first, so getBuffer's pin-then-release ordering cannot deadlock
// against reserveBuffer or the bulk deletes.
type Pool struct {
	deviceID int
	device   string // metrics label
	alloc    Allocator
	parent   Upstream
	log      logger.Logger

	pageSize     int64
	maxPoolPages int64
	maxSlabPages int64
	minSlabPages int64

	segsMu sync.Mutex // slabs, segment lists, epoch, allocation counters
	slabs  []*slab

	indexMu    sync.Mutex
	index      map[string]*segment
	inProgress map[string]chan struct{} // per-key fill markers

	unsizedMu sync.Mutex
	unsized   segmentList // placeholder segments not yet placed in a slab

	// guarded by segsMu
	epoch           int64 // logical clock behind lastTouched
	pagesAllocated  int64
	curMaxSlabPages int64 // high-water mark, only ever decreases
	capped          bool

	nextBufferID int64 // atomic; scratch key sequence
}

// NewPool constructs a pool for one device. parent may be nil for a
// pool with no lower tier, in which case any true miss fails with
// ErrChunkNotFound.
func NewPool(deviceID int, c *cfg.Config, alloc Allocator, parent Upstream, log logger.Logger) (*Pool, error) {
	if c == nil {
		c = cfg.NewDefaultConfig()
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "buffer pool config")
	}
	if alloc == nil {
		alloc = NewHostAllocator()
	}
	if log == nil {
		log = logger.NopLogger
	}
	p := &Pool{
		deviceID:     deviceID,
		device:       strconv.Itoa(deviceID),
		alloc:        alloc,
		parent:       parent,
		log:          log,
		pageSize:     c.PageSize,
		maxPoolPages: c.MaxPoolSize / c.PageSize,
		maxSlabPages: c.MaxSlabSize / c.PageSize,
		minSlabPages: c.MinSlabSize / c.PageSize,
		index:        make(map[string]*segment),
		inProgress:   make(map[string]chan struct{}),
	}
	p.curMaxSlabPages = p.maxSlabPages
	return p, nil
}

func (p *Pool) pagesFor(numBytes int64) int64 {
	return (numBytes + p.pageSize - 1) / p.pageSize
}

// touch advances the logical clock. Caller holds segsMu.
func (p *Pool) touch() int64 {
	p.epoch++
	return p.epoch
}

// slabView returns the byte region backing seg. Caller holds segsMu.
func (p *Pool) slabView(seg *segment) []byte {
	start := seg.startPage * p.pageSize
	end := start + seg.numPages*p.pageSize
	return p.slabs[seg.slabID].mem[start:end:end]
}

// CreateBuffer materializes a new, pinned buffer for key, failing with
// ErrDuplicateKey if the key is already resident. The placeholder
// segment is published under the index lock before any allocation so
// concurrent creators of other keys are never blocked; if the
// allocation fails the placeholder is torn down before the error
// propagates.
func (p *Pool) CreateBuffer(key chunk.Key, initialSize int64) (*Buffer, error) {
	enc := string(key.Encoded())
	buf := &Buffer{pool: p, key: key.Clone(), pinCount: 1}
	seg := &segment{slabID: unsizedSlab, status: Used, key: buf.key, buf: buf}
	buf.seg = seg

	p.indexMu.Lock()
	if _, ok := p.index[enc]; ok {
		p.indexMu.Unlock()
		return nil, NewErrDuplicateKey(key)
	}
	p.unsizedMu.Lock()
	p.unsized.pushBack(seg)
	p.unsizedMu.Unlock()
	p.index[enc] = seg
	p.indexMu.Unlock()

	if initialSize > 0 {
		if err := p.reserveBuffer(buf, initialSize); err != nil {
			if derr := p.DeleteBuffer(key); derr != nil {
				p.log.Errorf("tearing down failed create of chunk %s on device %d: %v", key, p.deviceID, derr)
			}
			return nil, err
		}
	}
	return buf, nil
}

// GetBuffer returns the pinned buffer for key, fetching from the parent
// tier on a miss or when fewer than numBytes are resident. At most one
// fill per key is in flight at a time; concurrent callers for the same
// cold key block until the fill completes and then re-examine the pool.
func (p *Pool) GetBuffer(key chunk.Key, numBytes int64) (*Buffer, error) {
	enc := string(key.Encoded())
	for {
		p.segsMu.Lock()
		p.indexMu.Lock()
		if ch, ok := p.inProgress[enc]; ok {
			p.indexMu.Unlock()
			p.segsMu.Unlock()
			dedupWaits.WithLabelValues(p.device).Inc()
			<-ch
			continue
		}
		seg, ok := p.index[enc]
		if !ok {
			// True miss. Publish the in-progress marker before
			// releasing the index lock so a second fetch cannot start.
			ch := make(chan struct{})
			p.inProgress[enc] = ch
			p.indexMu.Unlock()
			p.segsMu.Unlock()
			buf, err := p.materializeMiss(key, enc, ch, numBytes)
			if err != nil {
				return nil, err
			}
			cacheMisses.WithLabelValues(p.device).Inc()
			return buf, nil
		}

		buf := seg.buf
		buf.Pin()
		seg.lastTouched = p.touch()
		p.segsMu.Unlock()

		if buf.Size() < numBytes {
			// Missing tail. Hold a marker for the duration of the
			// fetch so concurrent getters wait instead of racing it.
			ch := make(chan struct{})
			p.inProgress[enc] = ch
			p.indexMu.Unlock()
			err := p.fetchFromParent(key, buf, numBytes)
			p.indexMu.Lock()
			delete(p.inProgress, enc)
			close(ch)
			p.indexMu.Unlock()
			if err != nil {
				buf.Unpin()
				return nil, err
			}
		} else {
			p.indexMu.Unlock()
		}
		cacheHits.WithLabelValues(p.device).Inc()
		return buf, nil
	}
}

// materializeMiss creates and fills a buffer for a cold key. The caller
// has already published ch as the key's in-progress marker; it is
// cleared, and waiters woken, on every exit path.
func (p *Pool) materializeMiss(key chunk.Key, enc string, ch chan struct{}, numBytes int64) (buf *Buffer, err error) {
	defer func() {
		p.indexMu.Lock()
		delete(p.inProgress, enc)
		close(ch)
		p.indexMu.Unlock()
	}()

	buf, err = p.CreateBuffer(key, numBytes)
	if err != nil {
		return nil, err
	}
	if err = p.fetchFromParent(key, buf, numBytes); err != nil {
		buf.Unpin()
		if derr := p.DeleteBuffer(key); derr != nil {
			p.log.Errorf("tearing down failed fetch of chunk %s on device %d: %v", key, p.deviceID, derr)
		}
		return nil, err
	}
	return buf, nil
}

func (p *Pool) fetchFromParent(key chunk.Key, dest *Buffer, numBytes int64) error {
	if p.parent == nil {
		return NewErrChunkNotFound(key)
	}
	if err := p.parent.FetchBuffer(key, dest, numBytes); err != nil {
		return errors.Wrapf(err, "fetching chunk %s from parent of device %d", key, p.deviceID)
	}
	return nil
}

// FetchBuffer serves a child tier's fill request for key: the chunk is
// materialized or grown at this tier first, then copied into dest. Only
// a child pool calls this, and the child's in-progress marker already
// guarantees a single fetch per key, so no marker is taken here.
func (p *Pool) FetchBuffer(key chunk.Key, dest *Buffer, numBytes int64) error {
	enc := string(key.Encoded())
	p.segsMu.Lock()
	p.indexMu.Lock()
	seg, ok := p.index[enc]
	var buf *Buffer
	if ok {
		buf = seg.buf
		buf.Pin()
		seg.lastTouched = p.touch()
		p.segsMu.Unlock()
		p.indexMu.Unlock()
		if numBytes > buf.Size() {
			if err := p.fetchFromParent(key, buf, numBytes); err != nil {
				buf.Unpin()
				return err
			}
		}
	} else {
		p.indexMu.Unlock()
		p.segsMu.Unlock()
		var err error
		buf, err = p.CreateBuffer(key, numBytes)
		if err != nil {
			return err
		}
		if err = p.fetchFromParent(key, buf, numBytes); err != nil {
			buf.Unpin()
			if derr := p.DeleteBuffer(key); derr != nil {
				p.log.Errorf("tearing down failed fetch of chunk %s on device %d: %v", key, p.deviceID, derr)
			}
			return err
		}
	}
	defer buf.Unpin()
	return buf.copyTo(dest, numBytes)
}

// copyTo fills dest from b. A numBytes of zero copies everything b
// holds.
func (b *Buffer) copyTo(dest *Buffer, numBytes int64) error {
	n := numBytes
	if n == 0 || n > b.size {
		n = b.size
	}
	return dest.Fill(b.mem[:n], 0)
}

// PutBuffer accepts a child tier's checkpoint write for key, creating or
// overwriting this tier's copy and marking it dirty so this tier's own
// checkpoint carries it further down.
func (p *Pool) PutBuffer(key chunk.Key, src *Buffer) error {
	enc := string(key.Encoded())
	p.segsMu.Lock()
	p.indexMu.Lock()
	seg, ok := p.index[enc]
	var buf *Buffer
	if ok {
		buf = seg.buf
		buf.Pin()
		seg.lastTouched = p.touch()
		p.segsMu.Unlock()
		p.indexMu.Unlock()
	} else {
		p.indexMu.Unlock()
		p.segsMu.Unlock()
		var err error
		buf, err = p.CreateBuffer(key, src.Size())
		if err != nil {
			return err
		}
	}
	defer buf.Unpin()
	if err := buf.WriteData(src.Data(), 0); err != nil {
		return err
	}
	buf.SetEncoding(src.Encoding())
	return nil
}

// reserveBuffer ensures b's segment covers at least numBytes, growing in
// place when the immediately following segment is free and large enough,
// and otherwise relocating the buffer to a freshly found segment. The
// caller must hold a pin so the buffer cannot be evicted mid-move.
func (p *Pool) reserveBuffer(b *Buffer, numBytes int64) error {
	if numBytes <= 0 {
		return nil
	}
	p.segsMu.Lock()
	defer p.segsMu.Unlock()

	seg := b.seg
	pagesRequested := p.pagesFor(numBytes)
	if seg.slabID != unsizedSlab {
		if pagesRequested <= seg.numPages {
			return nil
		}
		// grow in place into a following free segment
		extra := pagesRequested - seg.numPages
		if next := seg.next; next != nil && next.status == Free && next.numPages >= extra {
			leftover := next.numPages - extra
			seg.numPages = pagesRequested
			if leftover == 0 {
				p.slabs[seg.slabID].segs.remove(next)
			} else {
				next.startPage = seg.startPage + seg.numPages
				next.numPages = leftover
			}
			b.mem = p.slabView(seg)
			return nil
		}
	}

	// relocate: find a new segment, copy the old bytes, release the old
	// segment, and repoint the index
	newSeg, err := p.findFreeBuffer(numBytes)
	if err != nil {
		return err
	}
	newSeg.key = b.key
	newSeg.buf = b
	oldMem := b.mem
	b.seg = newSeg
	b.mem = p.slabView(newSeg)
	if seg.slabID != unsizedSlab && b.size > 0 {
		copy(b.mem, oldMem[:b.size])
	}
	p.removeSegment(seg)

	p.indexMu.Lock()
	p.index[string(b.key.Encoded())] = newSeg
	p.indexMu.Unlock()
	return nil
}

// findFreeBuffer locates a USED segment of at least numBytes, in order
// of preference: an existing free run, a newly grown slab, or an
// eviction run. Caller holds segsMu.
func (p *Pool) findFreeBuffer(numBytes int64) (*segment, error) {
	pagesRequested := p.pagesFor(numBytes)
	if pagesRequested > p.maxSlabPages {
		return nil, NewErrTooBigForSlab(numBytes)
	}

	for _, sl := range p.slabs {
		if seg := p.findFreeSegmentInSlab(sl, pagesRequested); seg != nil {
			return seg, nil
		}
	}

	// No free run anywhere; grow a new slab, shrinking the attempted
	// size as allocations fail.
	for !p.capped && p.pagesAllocated < p.maxPoolPages {
		if pagesLeft := p.maxPoolPages - p.pagesAllocated; pagesLeft < p.curMaxSlabPages {
			p.curMaxSlabPages = pagesLeft
		}
		if pagesRequested > p.curMaxSlabPages {
			// the new slab would not be big enough for this request
			break
		}
		mem, err := p.alloc.Allocate(p.curMaxSlabPages * p.pageSize)
		if err == nil {
			sl := newSlab(len(p.slabs), mem, p.curMaxSlabPages)
			p.slabs = append(p.slabs, sl)
			p.pagesAllocated += p.curMaxSlabPages
			p.log.Infof("allocated slab of %d pages (%dB) on device %d",
				p.curMaxSlabPages, p.curMaxSlabPages*p.pageSize, p.deviceID)
			slabAllocations.WithLabelValues(p.device).Inc()
			// fits by construction
			return p.findFreeSegmentInSlab(sl, pagesRequested), nil
		}
		p.log.Infof("attempted slab of %d pages (%dB) failed on device %d: %v",
			p.curMaxSlabPages, p.curMaxSlabPages*p.pageSize, p.deviceID, err)
		slabAllocationFailures.WithLabelValues(p.device).Inc()
		// If the request won't fit in half the current attempt, retry
		// once at exactly the requested size before halving further.
		if pagesRequested > p.curMaxSlabPages/2 && p.curMaxSlabPages != pagesRequested {
			p.curMaxSlabPages = pagesRequested
		} else {
			p.curMaxSlabPages /= 2
			if p.curMaxSlabPages < p.minSlabPages {
				p.capped = true
				p.log.Infof("slab allocations capped on device %d: %d pages is below the minimum of %d",
					p.deviceID, p.curMaxSlabPages, p.minSlabPages)
			}
		}
	}

	if p.pagesAllocated == 0 && p.capped {
		return nil, NewErrFailedToCreateFirstSlab(numBytes)
	}

	// Evict. Score each contiguous run of free or unpinned segments by
	// the max lastTouched among its USED members; lowest score wins. Max
	// rather than sum, so one large old chunk is not outranked by
	// several newer small ones.
	var (
		minScore  int64 = math.MaxInt64
		bestStart *segment
		bestSlab  *slab
		found     bool
	)
	for _, sl := range p.slabs {
		for seg := sl.segs.head; seg != nil; seg = seg.next {
			var pageCount, score int64
			solution := false
			evictIt := seg
			for ; evictIt != nil; evictIt = evictIt.next {
				if evictIt.status == Used && evictIt.buf.PinCount() > 0 {
					break
				}
				pageCount += evictIt.numPages
				if evictIt.status == Used && evictIt.lastTouched > score {
					score = evictIt.lastTouched
				}
				if pageCount >= pagesRequested {
					solution = true
					break
				}
			}
			if solution {
				if !found || score < minScore {
					found = true
					minScore = score
					bestStart = seg
					bestSlab = sl
				}
			} else if evictIt == nil {
				// ran off the end of the slab; every later start in
				// this slab fails too
				break
			}
		}
	}
	if !found {
		p.log.Errorf("failed to find %dB free on device %d, out of memory", numBytes, p.deviceID)
		return nil, NewErrOutOfMemory(numBytes)
	}
	p.log.Infof("failed to find %dB free on device %d, forcing eviction of %d pages from page %d of slab %d",
		numBytes, p.deviceID, pagesRequested, bestStart.startPage, bestSlab.id)
	evictionRuns.WithLabelValues(p.device).Inc()
	return p.evict(bestStart, pagesRequested, bestSlab), nil
}

// findFreeSegmentInSlab claims the first FREE segment of at least
// pagesRequested pages, splitting off the excess as a new FREE segment.
// Caller holds segsMu.
func (p *Pool) findFreeSegmentInSlab(sl *slab, pagesRequested int64) *segment {
	for seg := sl.segs.head; seg != nil; seg = seg.next {
		if seg.status != Free || seg.numPages < pagesRequested {
			continue
		}
		excess := seg.numPages - pagesRequested
		seg.numPages = pagesRequested
		seg.status = Used
		seg.lastTouched = p.touch()
		if excess > 0 {
			sl.segs.insertAfter(&segment{
				slabID:    sl.id,
				startPage: seg.startPage + pagesRequested,
				numPages:  excess,
				status:    Free,
			}, seg)
		}
		return seg
	}
	return nil
}

// evict consumes segments forward from start until pagesRequested pages
// are covered, destroying the buffers it passes over, and replaces the
// run with one USED segment of exactly pagesRequested pages followed by
// any residual FREE segment. Caller holds segsMu and has verified that
// no segment in the run is pinned.
func (p *Pool) evict(start *segment, pagesRequested int64, sl *slab) *segment {
	startPage := start.startPage
	var consumed int64
	it := start
	for consumed < pagesRequested {
		next := it.next
		consumed += it.numPages
		if it.status == Used {
			if it.buf != nil {
				it.buf.seg = nil
			}
			if len(it.key) > 0 {
				p.indexMu.Lock()
				delete(p.index, string(it.key.Encoded()))
				p.indexMu.Unlock()
			}
			buffersEvicted.WithLabelValues(p.device).Inc()
		}
		sl.segs.remove(it)
		it = next
	}

	newSeg := &segment{
		slabID:      sl.id,
		startPage:   startPage,
		numPages:    pagesRequested,
		status:      Used,
		lastTouched: p.touch(),
	}
	sl.segs.insertBefore(newSeg, it)

	if consumed > pagesRequested {
		excess := consumed - pagesRequested
		if it != nil && it.status == Free {
			it.startPage = startPage + pagesRequested
			it.numPages += excess
		} else {
			sl.segs.insertBefore(&segment{
				slabID:    sl.id,
				startPage: startPage + pagesRequested,
				numPages:  excess,
				status:    Free,
			}, it)
		}
	}
	return newSeg
}

// removeSegment returns a USED segment to FREE, coalescing with free
// neighbors. Placeholder segments are simply dropped. Caller holds
// segsMu for slab-resident segments.
func (p *Pool) removeSegment(seg *segment) {
	if seg.slabID == unsizedSlab {
		p.unsizedMu.Lock()
		p.unsized.remove(seg)
		p.unsizedMu.Unlock()
		return
	}
	sl := p.slabs[seg.slabID]
	if prev := seg.prev; prev != nil && prev.status == Free {
		seg.startPage = prev.startPage
		seg.numPages += prev.numPages
		sl.segs.remove(prev)
	}
	if next := seg.next; next != nil && next.status == Free {
		seg.numPages += next.numPages
		sl.segs.remove(next)
	}
	seg.status = Free
	seg.key = nil
	seg.buf = nil
}

// DeleteBuffer removes key's buffer and releases its segment.
func (p *Pool) DeleteBuffer(key chunk.Key) error {
	enc := string(key.Encoded())
	p.indexMu.Lock()
	seg, ok := p.index[enc]
	if !ok {
		p.indexMu.Unlock()
		return NewErrChunkNotFound(key)
	}
	delete(p.index, enc)
	p.indexMu.Unlock()

	p.segsMu.Lock()
	defer p.segsMu.Unlock()
	if seg.buf != nil {
		seg.buf.seg = nil
	}
	p.removeSegment(seg)
	return nil
}

// DeleteBuffersWithPrefix removes every resident buffer whose key starts
// with prefix. A pinned buffer is tagged instead of destroyed; its final
// unpin performs the delete, so in-flight readers never see their memory
// reused underneath them.
func (p *Pool) DeleteBuffersWithPrefix(prefix chunk.Key) {
	encPrefix := string(prefix.Encoded())
	// segsMu first, so this cannot deadlock against reserveBuffer which
	// holds it while patching the index
	p.segsMu.Lock()
	defer p.segsMu.Unlock()
	p.indexMu.Lock()
	defer p.indexMu.Unlock()
	for enc, seg := range p.index {
		if !strings.HasPrefix(enc, encPrefix) {
			continue
		}
		if seg.buf != nil {
			if seg.buf.PinCount() > 0 {
				seg.buf.markPendingDelete()
				continue
			}
			seg.buf.seg = nil
		}
		p.removeSegment(seg)
		delete(p.index, enc)
	}
}

// ClearSlabs is a best-effort wholesale reset: every unpinned buffer is
// deleted, and if nothing remained pinned the slabs themselves are freed
// and the allocation counters reset. With pinned buffers present no
// physical memory is released and the caller must retry later.
func (p *Pool) ClearSlabs() {
	p.segsMu.Lock()
	var victims []chunk.Key
	pinned := false
	for _, sl := range p.slabs {
		for seg := sl.segs.head; seg != nil; seg = seg.next {
			if seg.status != Used || seg.buf == nil {
				continue
			}
			if seg.buf.PinCount() > 0 {
				pinned = true
			} else {
				victims = append(victims, seg.key)
			}
		}
	}
	p.segsMu.Unlock()

	for _, key := range victims {
		if err := p.DeleteBuffer(key); err != nil && !errors.Is(err, ErrChunkNotFound) {
			p.log.Errorf("clearing chunk %s on device %d: %v", key, p.deviceID, err)
		}
	}
	if pinned {
		return
	}
	p.clear()
	p.Reinit()
}

// clear drops every buffer and frees all slab memory. A buffer still
// held by an external pin is tagged PendingDelete and reclaimed when its
// last pin drops.
func (p *Pool) clear() {
	p.segsMu.Lock()
	defer p.segsMu.Unlock()
	p.indexMu.Lock()
	defer p.indexMu.Unlock()
	p.unsizedMu.Lock()
	defer p.unsizedMu.Unlock()

	for _, seg := range p.index {
		if seg.buf != nil {
			seg.buf.markPendingDelete()
			seg.buf.seg = nil
			seg.buf = nil
		}
	}
	p.index = make(map[string]*segment)
	for _, sl := range p.slabs {
		if err := p.alloc.Free(sl.mem); err != nil {
			p.log.Errorf("freeing slab %d on device %d: %v", sl.id, p.deviceID, err)
		}
	}
	p.slabs = nil
	p.unsized = segmentList{}
	p.epoch = 0
}

// Reinit resets the allocation counters and the slab-size high-water
// mark, un-capping the pool after a wholesale clear.
func (p *Pool) Reinit() {
	p.segsMu.Lock()
	defer p.segsMu.Unlock()
	p.pagesAllocated = 0
	p.curMaxSlabPages = p.maxSlabPages
	p.capped = false
}

// Checkpoint flushes every dirty non-scratch buffer to the parent tier
// and marks it clean. Flushed buffers are pinned for the duration of
// their write so they cannot be evicted mid-flush.
func (p *Pool) Checkpoint() error {
	if p.parent == nil {
		return nil
	}
	p.segsMu.Lock()
	var flushes []*Buffer
	for _, sl := range p.slabs {
		for seg := sl.segs.head; seg != nil; seg = seg.next {
			if seg.status != Used || seg.buf == nil || seg.key.IsScratch() {
				continue
			}
			if !seg.buf.IsDirty() {
				continue
			}
			seg.buf.Pin()
			flushes = append(flushes, seg.buf)
		}
	}
	p.segsMu.Unlock()

	var firstErr error
	for _, buf := range flushes {
		if err := p.parent.PutBuffer(buf.key, buf); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "flushing chunk %s from device %d", buf.key, p.deviceID)
			}
		} else {
			buf.markClean()
		}
		buf.Unpin()
	}
	return firstErr
}

// Alloc creates a pinned anonymous scratch buffer under a synthetic key
// in the scratch namespace.
func (p *Pool) Alloc(numBytes int64) (*Buffer, error) {
	id := atomic.AddInt64(&p.nextBufferID, 1)
	return p.CreateBuffer(chunk.NewScratchKey(int32(id)), numBytes)
}

// Free releases a buffer obtained from Alloc (or CreateBuffer).
func (p *Pool) Free(b *Buffer) error {
	return p.DeleteBuffer(b.key)
}

// IsBufferOnDevice reports whether key is resident in this pool.
func (p *Pool) IsBufferOnDevice(key chunk.Key) bool {
	p.indexMu.Lock()
	defer p.indexMu.Unlock()
	_, ok := p.index[string(key.Encoded())]
	return ok
}

// ChunkMetadataForKeyPrefix lists the resident chunks matching prefix.
func (p *Pool) ChunkMetadataForKeyPrefix(prefix chunk.Key) []chunk.Metadata {
	encPrefix := string(prefix.Encoded())
	p.indexMu.Lock()
	defer p.indexMu.Unlock()
	var out []chunk.Metadata
	for enc, seg := range p.index {
		if !strings.HasPrefix(enc, encPrefix) {
			continue
		}
		if seg.buf == nil {
			continue
		}
		out = append(out, chunk.Metadata{Key: seg.buf.key, NumBytes: seg.buf.Size()})
	}
	return out
}

// DeviceID returns the device this pool serves.
func (p *Pool) DeviceID() int {
	return p.deviceID
}

// PageSize returns the pool's page size in bytes.
func (p *Pool) PageSize() int64 {
	return p.pageSize
}

// MaxSize returns the configured pool capacity in bytes.
func (p *Pool) MaxSize() int64 {
	return p.maxPoolPages * p.pageSize
}

// Allocated returns the bytes of slab memory currently allocated.
func (p *Pool) Allocated() int64 {
	p.segsMu.Lock()
	defer p.segsMu.Unlock()
	return p.pagesAllocated * p.pageSize
}

// InUseSize returns the bytes of slab memory held by USED segments.
func (p *Pool) InUseSize() int64 {
	p.segsMu.Lock()
	defer p.segsMu.Unlock()
	var inUse int64
	for _, sl := range p.slabs {
		for seg := sl.segs.head; seg != nil; seg = seg.next {
			if seg.status == Used {
				inUse += seg.numPages * p.pageSize
			}
		}
	}
	return inUse
}

// NumChunks returns the count of resident keys.
func (p *Pool) NumChunks() int {
	p.indexMu.Lock()
	defer p.indexMu.Unlock()
	return len(p.index)
}

// IsAllocationCapped reports whether slab growth has been permanently
// disabled for this pool's lifetime (until Reinit).
func (p *Pool) IsAllocationCapped() bool {
	p.segsMu.Lock()
	defer p.segsMu.Unlock()
	return p.capped
}
