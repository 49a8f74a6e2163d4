package main

import (
	"flag"
	"log"

	korecore "github.com/kos-lang/korecore"
)

func main() {
	var (
		objects = flag.Int("objects", 10000, "Number of filler objects to allocate before collecting")
		size    = flag.Int("object-size", 256, "Size in bytes of each filler object")
	)
	flag.Parse()

	heap := korecore.NewHeap(nil)
	ctx := korecore.NewContext(heap)
	defer ctx.Close()

	local := korecore.Local{}
	ctx.InitLocal(&local)

	for i := 0; i < *objects; i++ {
		v, err := korecore.NewOpaque(ctx, *size)
		if err != nil {
			log.Fatalf("allocation failed after %d objects: %s", i, err.Error())
		}
		// Keep only the most recent object alive; everything before
		// it becomes garbage the next collection should reclaim.
		local.Set(v)
	}

	stats, err := korecore.CollectGarbage(ctx)
	if err != nil {
		log.Fatalf("collection failed: %s", err.Error())
	}

	log.Printf("objects evacuated: %d (%d bytes)", stats.NumObjsEvacuated, stats.SizeEvacuated)
	log.Printf("objects freed:     %d (%d bytes)", stats.NumObjsFreed, stats.SizeFreed)
	log.Printf("objects finalized: %d", stats.NumObjsFinalized)
	log.Printf("pages kept:        %d (%d live bytes)", stats.NumPagesKept, stats.SizeKept)
	log.Printf("pages freed:       %d", stats.NumPagesFreed)
	log.Printf("malloc size:       %d", stats.MallocSize)
}
