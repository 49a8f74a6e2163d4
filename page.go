package korecore

// page is a fixed-capacity bump-allocation arena. Each
// page tracks the objects logically allocated in it (kept as real Go
// pointers so the host GC can't reclaim them out from under our own
// liveness bookkeeping) plus the running byte total that drives the
// bump cursor. The collector decides a page's fate from liveBytes
// against capacity (liveRatioPct).
type page struct {
	capacity uint32
	used uint32
	objects []*objHeader
	liveBytes uint32 // recomputed by the mark phase of each collection
}

func newPage(capacity uint32) *page {
	return &page{capacity: capacity}
}

// bumpAlloc reserves size bytes at the end of the page if it fits,
// registers h's accounting fields, and returns true on success.
func (p *page) bumpAlloc(h *objHeader, size uint32) bool {
	if p.used+size > p.capacity {
		return false
	}
	h.size = size
	h.page = p
	p.used += size
	p.objects = append(p.objects, h)
	return true
}

// liveRatioPct is the percentage of the page's capacity occupied by
// objects the last mark phase found live.
func (p *page) liveRatioPct() int {
	if p.capacity == 0 {
		return 0
	}
	return int(p.liveBytes) * 100 / int(p.capacity)
}

func (p *page) reset() {
	p.used = 0
	p.objects = p.objects[:0]
	p.liveBytes = 0
}
