package korecore

// GCStats reports the outcome of one collection.
type GCStats struct {
	NumObjsEvacuated int
	NumObjsFreed int
	NumObjsFinalized int
	NumPagesKept int
	NumPagesFreed int
	SizeEvacuated int
	SizeFreed int
	SizeKept int
	MallocSize int
}

// CollectGarbage runs one stop-the-world mark+evacuate+finalize+reclaim
// cycle over every context sharing ctx's heap. Any
// Value read across this call from a Local/tracked-ref must be
// re-read afterward: objects that survive may have moved.
func CollectGarbage(ctx *Context) (GCStats, *CoreError) {
	h := ctx.heap
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.collectLocked()
}

func (h *Heap) collectLocked() (GCStats, *CoreError) {
	var stats GCStats

	allPages := make([]*page, 0, len(h.full)+1)
	allPages = append(allPages, h.full...)
	if h.active != nil {
		allPages = append(allPages, h.active)
	}
	for _, p := range allPages {
		p.liveBytes = 0
		for _, o := range p.objects {
			o.marked = false
		}
	}
	for _, o := range h.offHeap {
		o.marked = false
	}

	// --- mark ---
	var mark func(v Value)
	mark = func(v Value) {
		if !v.IsHeapPtr() {
			return
		}
		hd := (*objHeader)(ptrOf(v)).resolve()
		if hd.marked {
			return
		}
		hd.marked = true
		if hd.tracking {
			// off-heap objects are never evacuated, only
			// finalized-or-not; nothing to add to a page ratio.
		} else if hd.page != nil {
			hd.page.liveBytes += hd.size
		}
		headerToObj(hd).visitRefs(func(fp *Value) { mark(*fp) })
	}
	h.roots(func(fp *Value) { mark(*fp) })

	// --- decide page fate ---
	threshold := h.cfg.GetInt("gc.migration_threshold_pct")
	var sources, kept []*page
	for _, p := range allPages {
		if p.liveRatioPct() < threshold {
			sources = append(sources, p)
		} else {
			kept = append(kept, p)
			stats.NumPagesKept++
			stats.SizeKept += int(p.liveBytes)
		}
	}

	// --- evacuate ---
	var destPages []*page
	var evacuated []*objHeader // old headers we forwarded, for rollback on OOM
	getDest := func(need uint32) *page {
		for _, d := range destPages {
			if d.used+need <= d.capacity {
				return d
			}
		}
		var np *page
		if len(h.free) > 0 {
			np = h.free[len(h.free)-1]
			h.free = h.free[:len(h.free)-1]
			np.reset()
		} else if h.allocatedSum+int(h.pageSize) <= h.maxHeapSize {
			np = newPage(h.pageSize)
			h.allocatedSum += int(h.pageSize)
		} else {
			return nil
		}
		destPages = append(destPages, np)
		return np
	}

	oom := false
	sourceLoop:
	for _, p := range sources {
		for _, old := range p.objects {
			if !old.marked {
				continue
			}
			dest := getDest(old.size)
			if dest == nil {
				oom = true
				break sourceLoop
			}
			newObj := headerToObj(old).clone()
			newHdr := newObj.hdr()
			dest.bumpAlloc(newHdr, old.size)
			newHdr.marked = true
			old.forward = newHdr
			evacuated = append(evacuated, old)
			stats.NumObjsEvacuated++
			stats.SizeEvacuated += int(old.size)
		}
	}

	if oom {
		for _, old := range evacuated {
			old.forward = nil
		}
		return GCStats{}, NewError(ErrOutOfMemory, "GC evacuation ran out of space")
	}

	// --- rewrite references ---
	rewrite := func(fp *Value) {
		if !(*fp).IsHeapPtr() {
			return
		}
		raw := (*objHeader)(ptrOf(*fp))
		if raw.forward != nil {
			*fp = headerToValue(raw.resolve())
		}
	}
	h.roots(rewrite)
	for _, p := range kept {
		for _, o := range p.objects {
			if o.marked {
				headerToObj(o).visitRefs(rewrite)
			}
		}
	}
	for _, p := range destPages {
		for _, o := range p.objects {
			headerToObj(o).visitRefs(rewrite)
		}
	}

	// --- finalize ---
	for _, p := range sources {
		for _, o := range p.objects {
			if !o.marked {
				stats.NumObjsFreed++
				stats.SizeFreed += int(o.size)
				if headerToObj(o).finalize() {
					stats.NumObjsFinalized++
				}
			}
		}
	}
	remaining := h.offHeap[:0]
	for _, o := range h.offHeap {
		if o.marked {
			remaining = append(remaining, o)
			continue
		}
		stats.NumObjsFreed++
		stats.SizeFreed += int(o.size)
		if headerToObj(o).finalize() {
			stats.NumObjsFinalized++
		}
		h.allocatedSum -= int(o.size)
	}
	h.offHeap = remaining

	// --- reclaim ---
	for _, p := range sources {
		p.reset()
		h.free = append(h.free, p)
	}
	stats.NumPagesFreed = len(sources)

	kept = append(kept, destPages...)
	h.full = nil
	h.active = nil
	if len(kept) > 0 {
		h.active = kept[len(kept)-1]
		h.full = kept[:len(kept)-1]
	}

	stats.MallocSize = h.Stats.MallocSize
	h.Stats = stats
	return stats, nil
}
