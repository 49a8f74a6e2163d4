package korecore

import (
	"sync"

	"github.com/google/uuid"
)

// Heap is the pool-backed page allocator. A Heap may
// be shared by several Contexts; mu serializes both
// mutation of the page lists and collection, which is this package's
// realization of "stop the world within this context" for a
// cooperative, single-mutator-per-context scheduling model — every
// Context sharing a Heap is, in effect, stopped while one of them runs
// a collection.
type Heap struct {
	mu sync.Mutex

	cfg *Config

	pageSize uint32
	maxHeapSize int
	largeObjThr uint32
	allocatedSum int // bytes committed to pages + off-heap objects

	active *page
	full []*page
	free []*page

	offHeap []*objHeader

	contexts []*Context

	Stats GCStats
}

// NewHeap creates a heap governed by cfg. A nil cfg uses
// NewDefaultConfig().
func NewHeap(cfg *Config) *Heap {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	h := &Heap{
		cfg: cfg,
		pageSize: uint32(cfg.GetInt("heap.page_size")),
		maxHeapSize: cfg.GetInt("heap.max_heap_size"),
		largeObjThr: uint32(cfg.GetInt("heap.large_object_threshold")),
	}
	return h
}

func (h *Heap) registerContext(ctx *Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.contexts = append(h.contexts, ctx)
}

func (h *Heap) unregisterContext(ctx *Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, c := range h.contexts {
		if c == ctx {
			h.contexts = append(h.contexts[:i], h.contexts[i+1:]...)
			break
		}
	}
}

// commit runs the allocation algorithm against an
// already-constructed wrapper object's embedded header (hdr is
// &wrapper.objHeader — see the intrusive-header note on objHeader).
// size is the logical payload size of the whole object, including
// the header's own slot.
func (h *Heap) commit(hdr *objHeader, tag TypeTag, size int) *CoreError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commitLocked(hdr, tag, size)
}

func (h *Heap) commitLocked(hdr *objHeader, tag TypeTag, size int) *CoreError {
	hdr.tag = tag
	slotted := roundSlot(size)

	if slotted > h.largeObjThr || slotted > h.pageSize-uint32(slotSize) {
		return h.commitOffHeapLocked(hdr, slotted)
	}

	if h.active == nil || !h.active.bumpAlloc(hdr, slotted) {
		if h.active != nil {
			h.full = append(h.full, h.active)
			h.active = nil
		}
		if len(h.free) > 0 {
			h.active = h.free[len(h.free)-1]
			h.free = h.free[:len(h.free)-1]
			h.active.reset()
		} else if h.allocatedSum+int(h.pageSize) <= h.maxHeapSize {
			h.active = newPage(h.pageSize)
			h.allocatedSum += int(h.pageSize)
		} else {
			return NewError(ErrOutOfMemory, "heap exhausted: %d/%d bytes committed", h.allocatedSum, h.maxHeapSize)
		}
		if !h.active.bumpAlloc(hdr, slotted) {
			return NewError(ErrOutOfMemory, "page allocation failed after retry")
		}
	}
	h.Stats.MallocSize += int(slotted)
	return nil
}

// commitPinned allocates hdr off-heap unconditionally, regardless of
// size, so it is never visited by the page-evacuation loop in gc.go:
// this is how a Module gets a stable address for the lifetime of its
// owning program.
func (h *Heap) commitPinned(hdr *objHeader, tag TypeTag, size int) *CoreError {
	h.mu.Lock()
	defer h.mu.Unlock()
	hdr.tag = tag
	return h.commitOffHeapLocked(hdr, roundSlot(size))
}

func (h *Heap) commitOffHeapLocked(hdr *objHeader, size uint32) *CoreError {
	if h.allocatedSum+int(size) > h.maxHeapSize {
		return NewError(ErrOutOfMemory, "off-heap allocation would exceed max heap size")
	}
	hdr.size = size
	hdr.tracking = true
	h.offHeap = append(h.offHeap, hdr)
	h.allocatedSum += int(size)
	h.Stats.MallocSize += int(size)
	return nil
}

// teardownIfUnreferenced runs the finalize-then-free teardown pass
// once no context shares this heap anymore.
func (h *Heap) teardownIfUnreferenced() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.contexts) > 0 {
		return
	}
	allPages := append(append([]*page(nil), h.full...), h.active)
	for _, p := range allPages {
		if p == nil {
			continue
		}
		for _, o := range p.objects {
			headerToObj(o).finalize()
		}
	}
	for _, o := range h.offHeap {
		headerToObj(o).finalize()
	}
	h.active = nil
	h.full = nil
	h.free = nil
	h.offHeap = nil
	h.allocatedSum = 0
}

// newObjectID supplies the identity of each new Context (see NewContext).
func newObjectID() uuid.UUID { return uuid.New() }
