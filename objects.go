package korecore

import "unsafe"

// heapObj is implemented by every concrete Go struct that embeds
// objHeader as its first field. It is the type-directed layout
// knowledge the collector needs: the GC knows every type's shape
// without a separate side table.
type heapObj interface {
	hdr() *objHeader
	// visitRefs calls fn once per Value-typed field that may point at
	// another heap object, passing the field's address so fn can
	// rewrite it in place (used both for read-only marking and for
	// the post-evacuation reference rewrite).
	visitRefs(fn func(*Value))
	// clone returns a new heap object with the same field values,
	// used by the evacuator to copy a live object into a fresh page.
	clone() heapObj
	// finalize runs this object's finalizer, if it has one (objects
	// and external buffer storages are the only kinds that carry one).
	// Returns true if a finalizer actually ran.
	finalize() bool
}

// headerToObj recovers the concrete wrapper object a header belongs
// to. Valid because objHeader is always embedded as the first field
// of its wrapper (same address, reinterpreted).
func headerToObj(h *objHeader) heapObj {
	switch h.tag {
	case TagInteger:
		return (*integerObj)(unsafe.Pointer(h))
	case TagFloat:
		return (*floatObj)(unsafe.Pointer(h))
	case TagString:
		return (*stringObj)(unsafe.Pointer(h))
	case TagArrayStorage:
		return (*arrayStorageObj)(unsafe.Pointer(h))
	case TagArray:
		return (*arrayObj)(unsafe.Pointer(h))
	case TagBufferStorage:
		return (*bufferStorageObj)(unsafe.Pointer(h))
	case TagBuffer:
		return (*bufferObj)(unsafe.Pointer(h))
	case TagObjectStorage:
		return (*objectStorageObj)(unsafe.Pointer(h))
	case TagObject:
		return (*objectObj)(unsafe.Pointer(h))
	case TagFunction, TagClass:
		return (*functionObj)(unsafe.Pointer(h))
	case TagModule:
		return (*moduleObj)(unsafe.Pointer(h))
	case TagDynamicProperty:
		return (*dynamicPropertyObj)(unsafe.Pointer(h))
	case TagIterator:
		return (*iteratorObj)(unsafe.Pointer(h))
	case TagStack:
		return (*stackObj)(unsafe.Pointer(h))
	case TagOpaque:
		return (*opaqueObj)(unsafe.Pointer(h))
	default:
		panic("headerToObj: unknown tag")
	}
}

// integerObj is the boxed form of a 64-bit integer too large to fit
// in a small-int Value.
type integerObj struct {
	objHeader
	value int64
}

func (o *integerObj) hdr() *objHeader { return &o.objHeader }
func (o *integerObj) visitRefs(func(*Value)) {}
func (o *integerObj) clone() heapObj { c := *o; return &c }
func (o *integerObj) finalize() bool { return false }
func (h *objHeader) asInteger() *integerObj { return (*integerObj)(unsafe.Pointer(h)) }

// floatObj is the boxed form of a double. NaN compares
// indeterminate per Compare's rules, not here.
type floatObj struct {
	objHeader
	value float64
}

func (o *floatObj) hdr() *objHeader { return &o.objHeader }
func (o *floatObj) visitRefs(func(*Value)) {}
func (o *floatObj) clone() heapObj { c := *o; return &c }
func (o *floatObj) finalize() bool { return false }
func (h *objHeader) asFloat() *floatObj { return (*floatObj)(unsafe.Pointer(h)) }

// NewInt boxes n, preferring the small-int encoding.
func NewInt(ctx *Context, n int64) (Value, *CoreError) {
	if v, ok := NewSmallInt(n); ok {
		return v, nil
	}
	o := &integerObj{value: n}
	if err := ctx.heap.commit(&o.objHeader, TagInteger, int(unsafe.Sizeof(*o))); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}

// NewFloat boxes a double.
func NewFloat(ctx *Context, f float64) (Value, *CoreError) {
	o := &floatObj{value: f}
	if err := ctx.heap.commit(&o.objHeader, TagFloat, int(unsafe.Sizeof(*o))); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}

// opaqueObj is raw filler, used as GC test scaffolding
// and as a generic off-heap-trackable byte blob.
type opaqueObj struct {
	objHeader
	bytes []byte
}

func (o *opaqueObj) hdr() *objHeader { return &o.objHeader }
func (o *opaqueObj) visitRefs(func(*Value)) {}
func (o *opaqueObj) clone() heapObj { c := *o; b := make([]byte, len(o.bytes)); copy(b, o.bytes); c.bytes = b; return &c }
func (o *opaqueObj) finalize() bool { return false }

// NewOpaque allocates n bytes of filler, for tests exercising page
// fill/eviction behavior.
func NewOpaque(ctx *Context, n int) (Value, *CoreError) {
	o := &opaqueObj{bytes: make([]byte, n)}
	if err := ctx.heap.commit(&o.objHeader, TagOpaque, n+16); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}
