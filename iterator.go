package korecore

import "unsafe"

// IterDepth selects how an Iterator walks an Object.
// It is ignored for String/Array/Buffer/generator sources, which
// always iterate their contents regardless of depth.
type IterDepth int

const (
	IterShallow IterDepth = iota // own properties only
	IterDeep // own, then each prototype in turn
	IterContents // elements/bytes/yields, not properties
)

// IterStatus is the outcome of one Next call.
type IterStatus int

const (
	IterSuccess IterStatus = iota
	// IterNotFound is sticky: once an Iterator reports it, every
	// subsequent Next call reports it again without re-examining the
	// source.
	IterNotFound
	IterError
)

// iteratorObj is the Iterator entity. protoChain is precomputed at
// creation time for IterDeep over an Object: self followed by each
// prototype, in order.
type iteratorObj struct {
	objHeader
	source Value
	depth IterDepth
	done bool
	slotPos int // object storage slot cursor
	chainPos int // index into protoChain
	protoChain []Value
	elemPos int // string/array/buffer cursor
	returnedKeys []Value // deep iteration: keys already yielded by a shallower level
}

func (o *iteratorObj) hdr() *objHeader { return &o.objHeader }

func (o *iteratorObj) visitRefs(fn func(*Value)) {
	fn(&o.source)
	for i := range o.protoChain {
		fn(&o.protoChain[i])
	}
	for i := range o.returnedKeys {
		fn(&o.returnedKeys[i])
	}
}

func (o *iteratorObj) clone() heapObj {
	c := *o
	c.protoChain = append([]Value(nil), o.protoChain...)
	c.returnedKeys = append([]Value(nil), o.returnedKeys...)
	return &c
}

func (o *iteratorObj) finalize() bool { return false }

func asIterator(v Value) *iteratorObj { return (*iteratorObj)(unsafe.Pointer(v.header())) }

// NewIterator allocates an Iterator over source at the given depth.
// Returns a NotIterable error for a plain (non-generator, non-class)
// Function. Other types are accepted here; Next reports NotIterable
// for any type it has no walk for.
func NewIterator(ctx *Context, source Value, depth IterDepth) (Value, *CoreError) {
	t := source.TypeOf()
	if t == TagFunction && !asFunction(source).isGenerator {
		return BadPtr, NewError(ErrNotIterable, "function is not iterable")
	}
	var chain []Value
	if t == TagObject {
		cur := source
		chain = append(chain, cur)
		if depth == IterDeep {
			for asObject(cur).prototype != BadPtr {
				cur = asObject(cur).prototype
				chain = append(chain, cur)
			}
		}
	}
	o := &iteratorObj{source: source, depth: depth, protoChain: chain}
	size := int(unsafe.Sizeof(*o)) + len(chain)*int(unsafe.Sizeof(Value(0)))
	if err := ctx.heap.commit(&o.objHeader, TagIterator, size); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}

func (o *iteratorObj) hasReturnedKey(key Value) bool {
	for _, k := range o.returnedKeys {
		if StringEqual(k, key) {
			return true
		}
	}
	return false
}

// nextObjectSlot walks protoChain level by level. A deep iteration
// (len(protoChain) > 1) tracks every key already yielded in
// returnedKeys so a key shadowed at a shallower level is emitted once,
// with the shallowest value, never again as it resurfaces deeper in
// the chain.
func (o *iteratorObj) nextObjectSlot() (Value, Value, IterStatus) {
	for o.chainPos < len(o.protoChain) {
		cur := o.protoChain[o.chainPos]
		co := asObject(cur)
		if co.storage != BadPtr {
			storage := asObjectStorage(co.storage)
			for o.slotPos < len(storage.slots) {
				s := storage.slots[o.slotPos]
				o.slotPos++
				if s.key == BadPtr || s.tomb {
					continue
				}
				if o.depth == IterDeep {
					if o.hasReturnedKey(s.key) {
						continue
					}
					o.returnedKeys = append(o.returnedKeys, s.key)
				}
				return s.key, s.val, IterSuccess
			}
		}
		o.chainPos++
		o.slotPos = 0
	}
	return BadPtr, BadPtr, IterNotFound
}

// Next advances iter one step, dispatching on its source's type.
// Void and Boolean sources are treated as empty sequences.
func Next(ctx *Context, iter Value) (key Value, val Value, status IterStatus, err *CoreError) {
	o := asIterator(iter)
	if o.done {
		return BadPtr, BadPtr, IterNotFound, nil
	}
	t := o.source.TypeOf()
	switch {
	case t == TagObject:
		k, v, st := o.nextObjectSlot()
		if st == IterNotFound {
			o.done = true
			return BadPtr, BadPtr, IterNotFound, nil
		}
		if v.IsHeapPtr() && v.TypeOf() == TagDynamicProperty {
			if ctx.IsExceptionPending() {
				ctx.ClearException()
			}
			return k, asDynamicProperty(v).getter, IterSuccess, nil
		}
		return k, v, IterSuccess, nil

	case t == TagString:
		s := asString(o.source)
		if o.elemPos >= s.length {
			o.done = true
			return BadPtr, BadPtr, IterNotFound, nil
		}
		cp := s.elementAt(o.elemPos)
		o.elemPos++
		enc, _ := EncodeCodePointUTF8(cp)
		cv, cerr := NewStringFromUTF8(ctx, enc)
		if cerr != nil {
			return BadPtr, BadPtr, IterError, cerr
		}
		return BadPtr, cv, IterSuccess, nil

	case t == TagArray:
		a := asArray(o.source)
		if o.elemPos >= a.size {
			o.done = true
			return BadPtr, BadPtr, IterNotFound, nil
		}
		v := asArrayStorage(a.storage).slots[o.elemPos]
		o.elemPos++
		return BadPtr, v, IterSuccess, nil

	case t == TagBuffer:
		b := asBuffer(o.source)
		if o.elemPos >= b.size {
			o.done = true
			return BadPtr, BadPtr, IterNotFound, nil
		}
		byteVal := asBufferStorage(b.storage).data[o.elemPos]
		o.elemPos++
		iv, ierr := NewInt(ctx, int64(byteVal))
		return BadPtr, iv, IterSuccess, ierr

	case t == TagFunction && asFunction(o.source).isGenerator:
		fo := asFunction(o.source)
		if fo.genState == GenDone {
			o.done = true
			return BadPtr, BadPtr, IterNotFound, nil
		}
		fo.genState = GenRunning
		v, gerr := fo.native(ctx, o.source, nil)
		if gerr != nil {
			fo.genState = GenDone
			o.done = true
			return BadPtr, BadPtr, IterError, gerr
		}
		if fo.genState == GenDone {
			o.done = true
			return BadPtr, BadPtr, IterNotFound, nil
		}
		fo.genState = GenActive
		return BadPtr, v, IterSuccess, nil

	case t == TagVoidAlias, t == TagBooleanAlias:
		o.done = true
		return BadPtr, BadPtr, IterNotFound, nil

	default:
		o.done = true
		return BadPtr, BadPtr, IterError, NewError(ErrNotIterable, "value of type %s is not iterable", t)
	}
}
