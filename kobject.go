package korecore

import "unsafe"

// propSlot is one entry of an ObjectStorage's open-addressed table.
// A slot is empty when key == BadPtr and tomb is false, a tombstone
// when tomb is true: deletion leaves a tombstone so probe chains
// across it stay valid.
type propSlot struct {
	hash uint32
	key Value
	val Value
	tomb bool
}

// objectStorageObj is the hash table backing an Object's own
// properties. Growth publishes a wholly new
// table and rehashes every live entry into it; this package's
// single-mutator-per-context model lets that rehash run in one pass
// instead of the incremental migrate-on-touch scheme a concurrent
// mutator would need.
type objectStorageObj struct {
	objHeader
	slots []propSlot
	count int // live (non-tombstone) entries
	numSlotsOpen int // tombstoned entries; counts toward growth alongside count
}

func (o *objectStorageObj) hdr() *objHeader { return &o.objHeader }

func (o *objectStorageObj) visitRefs(fn func(*Value)) {
	for i := range o.slots {
		if o.slots[i].key != BadPtr {
			fn(&o.slots[i].key)
			fn(&o.slots[i].val)
		}
	}
}

func (o *objectStorageObj) clone() heapObj {
	c := *o
	c.slots = append([]propSlot(nil), o.slots...)
	return &c
}

func (o *objectStorageObj) finalize() bool { return false }

func asObjectStorage(v Value) *objectStorageObj { return (*objectStorageObj)(unsafe.Pointer(v.header())) }

func newObjectStorage(ctx *Context, capacity int) (Value, *CoreError) {
	if capacity < 4 {
		capacity = 4
	}
	o := &objectStorageObj{slots: make([]propSlot, capacity)}
	for i := range o.slots {
		o.slots[i].key = BadPtr
	}
	size := int(unsafe.Sizeof(*o)) + capacity*int(unsafe.Sizeof(propSlot{}))
	if err := ctx.heap.commit(&o.objHeader, TagObjectStorage, size); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}

// find probes for key, returning (index, true) on a match. On a miss
// it returns an insertion point instead: the first tombstone seen
// along the probe chain if there was one, otherwise the empty slot
// that ended the chain. A table with no match and no true-empty slot
// returns its first tombstone, or (-1, false) if every slot holds a
// live entry; growIfNeeded keeps enough headroom that the latter never
// happens in practice.
func (o *objectStorageObj) find(hash uint32, key Value) (int, bool) {
	n := len(o.slots)
	i := int(hash) % n
	firstTomb := -1
	for probe := 0; probe < n; probe++ {
		s := &o.slots[i]
		if s.key == BadPtr && !s.tomb {
			if firstTomb != -1 {
				return firstTomb, false
			}
			return i, false
		}
		if s.tomb {
			if firstTomb == -1 {
				firstTomb = i
			}
		} else if s.hash == hash && StringEqual(s.key, key) {
			return i, true
		}
		i = (i + 1) % n
	}
	return firstTomb, false
}

// dynamicPropertyObj is the getter/setter pair a dynamic property
// publishes in place of a stored value. This package does
// not itself invoke them (it has no bytecode evaluator); lookups
// return the getter/setter Values for the host VM to call.
type dynamicPropertyObj struct {
	objHeader
	getter Value
	setter Value
}

func (o *dynamicPropertyObj) hdr() *objHeader { return &o.objHeader }

func (o *dynamicPropertyObj) visitRefs(fn func(*Value)) {
	fn(&o.getter)
	fn(&o.setter)
}

func (o *dynamicPropertyObj) clone() heapObj { c := *o; return &c }
func (o *dynamicPropertyObj) finalize() bool { return false }

func asDynamicProperty(v Value) *dynamicPropertyObj { return (*dynamicPropertyObj)(unsafe.Pointer(v.header())) }

// NewDynamicProperty publishes getter/setter as a property value via
// ObjectSetProperty; either may be Void for a write-only/read-only
// property.
func NewDynamicProperty(ctx *Context, getter, setter Value) (Value, *CoreError) {
	o := &dynamicPropertyObj{getter: getter, setter: setter}
	if err := ctx.heap.commit(&o.objHeader, TagDynamicProperty, int(unsafe.Sizeof(*o))); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}

// ObjectFinalizeFunc is attached to an Object at construction time
// (NewObjectWithPrivate) rather than registered separately afterward,
// and runs once when the Object is collected unreferenced.
type ObjectFinalizeFunc func(privateData Value)

// objectObj is the Object entity: an own
// property table, an optional prototype, and a private-data slot used
// by host-defined classes to attach native state.
type objectObj struct {
	objHeader
	storage Value // BadPtr if never grown
	prototype Value // BadPtr if none
	privateTag Value // class identity; BadPtr if no private data
	privateData Value
	finalizer ObjectFinalizeFunc
}

func (o *objectObj) hdr() *objHeader { return &o.objHeader }

func (o *objectObj) visitRefs(fn func(*Value)) {
	if o.storage != BadPtr {
		fn(&o.storage)
	}
	if o.prototype != BadPtr {
		fn(&o.prototype)
	}
	if o.privateTag != BadPtr {
		fn(&o.privateTag)
		fn(&o.privateData)
	}
}

func (o *objectObj) clone() heapObj { c := *o; return &c }

func (o *objectObj) finalize() bool {
	if o.finalizer == nil {
		return false
	}
	o.finalizer(o.privateData)
	return true
}

func asObject(v Value) *objectObj { return (*objectObj)(unsafe.Pointer(v.header())) }

// NewObject allocates an empty Object with the given prototype
// (BadPtr for none).
func NewObject(ctx *Context, prototype Value) (Value, *CoreError) {
	o := &objectObj{storage: BadPtr, prototype: prototype, privateTag: BadPtr, privateData: BadPtr}
	if err := ctx.heap.commit(&o.objHeader, TagObject, int(unsafe.Sizeof(*o))); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}

// NewObjectWithPrivate allocates an Object that carries private data
// from the moment it is constructed, tagged with tag and finalized
// with fin (nil for none) when collected unreferenced.
func NewObjectWithPrivate(ctx *Context, prototype Value, tag Value, data Value, fin ObjectFinalizeFunc) (Value, *CoreError) {
	o := &objectObj{storage: BadPtr, prototype: prototype, privateTag: tag, privateData: data, finalizer: fin}
	if err := ctx.heap.commit(&o.objHeader, TagObject, int(unsafe.Sizeof(*o))); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}

func (o *objectObj) growIfNeeded(ctx *Context, self Value) *CoreError {
	loadPct := ctx.heap.cfg.GetInt("object.load_factor_pct")
	if o.storage == BadPtr {
		local := Local{}
		ctx.InitLocalWith(&local, self)
		sv, err := newObjectStorage(ctx, ctx.heap.cfg.GetInt("object.initial_capacity"))
		ctx.DestroyTopLocal()
		if err != nil {
			return err
		}
		asObject(self).storage = sv
		return nil
	}
	storage := asObjectStorage(o.storage)
	if (storage.count+storage.numSlotsOpen+1)*100 <= len(storage.slots)*loadPct {
		return nil
	}
	newCap := len(storage.slots) * 2
	local := Local{}
	ctx.InitLocalWith(&local, self)
	sv, err := newObjectStorage(ctx, newCap)
	if err != nil {
		ctx.DestroyTopLocal()
		return err
	}
	newStorage := asObjectStorage(sv)
	old := asObjectStorage(asObject(local.Get()).storage)
	for _, s := range old.slots {
		if s.key == BadPtr || s.tomb {
			continue
		}
		i, _ := newStorage.find(s.hash, s.key)
		newStorage.slots[i] = propSlot{hash: s.hash, key: s.key, val: s.val}
		newStorage.count++
	}
	ctx.DestroyTopLocal()
	asObject(self).storage = sv
	return nil
}

// PropertyLookup is what ObjectGetProperty returns: either a plain
// stored value, or — when the matched property is dynamic — the
// getter/setter pair for the host VM to invoke.
type PropertyLookup struct {
	Found bool
	Value Value
	IsDynamic bool
	Getter Value
	Setter Value
}

func (o *objectObj) ownLookup(key Value) (PropertyLookup, bool) {
	if o.storage == BadPtr {
		return PropertyLookup{}, false
	}
	storage := asObjectStorage(o.storage)
	i, found := storage.find(asString(key).Hash(), key)
	if !found {
		return PropertyLookup{}, false
	}
	val := storage.slots[i].val
	if val.IsHeapPtr() && val.TypeOf() == TagDynamicProperty {
		dp := asDynamicProperty(val)
		return PropertyLookup{Found: true, IsDynamic: true, Getter: dp.getter, Setter: dp.setter}, true
	}
	return PropertyLookup{Found: true, Value: val}, true
}

// ObjectGetProperty implements shallow/deep property lookup: deep
// walks the prototype chain, shallow looks only at obj's own storage.
func ObjectGetProperty(ctx *Context, obj Value, key Value, deep bool) (PropertyLookup, *CoreError) {
	cur := obj
	for {
		o := asObject(cur)
		if lk, ok := o.ownLookup(key); ok {
			return lk, nil
		}
		if !deep || o.prototype == BadPtr {
			return PropertyLookup{}, nil
		}
		cur = o.prototype
	}
}

// ObjectSetProperty sets a property on obj's own storage, never the
// prototype chain. If the existing (or about-to-be-created) slot
// holds a dynamic property, returns IsDynamic with the setter Value
// for the host to invoke instead of writing directly.
func ObjectSetProperty(ctx *Context, obj Value, key Value, val Value) (PropertyLookup, *CoreError) {
	o := asObject(obj)
	if o.storage != BadPtr {
		storage := asObjectStorage(o.storage)
		if i, found := storage.find(asString(key).Hash(), key); found {
			existing := storage.slots[i].val
			if existing.IsHeapPtr() && existing.TypeOf() == TagDynamicProperty {
				dp := asDynamicProperty(existing)
				return PropertyLookup{IsDynamic: true, Getter: dp.getter, Setter: dp.setter}, nil
			}
			storage.slots[i].val = val
			return PropertyLookup{}, nil
		}
	}
	if err := o.growIfNeeded(ctx, obj); err != nil {
		return PropertyLookup{}, err
	}
	o = asObject(obj)
	storage := asObjectStorage(o.storage)
	i, _ := storage.find(asString(key).Hash(), key)
	if storage.slots[i].tomb {
		storage.numSlotsOpen--
	}
	storage.slots[i] = propSlot{hash: asString(key).Hash(), key: key, val: val}
	storage.count++
	return PropertyLookup{}, nil
}

// ObjectDeleteProperty removes key from obj's own storage only.
// Deleting a missing key is a no-op.
func ObjectDeleteProperty(ctx *Context, obj Value, key Value) {
	o := asObject(obj)
	if o.storage == BadPtr {
		return
	}
	storage := asObjectStorage(o.storage)
	i, found := storage.find(asString(key).Hash(), key)
	if !found {
		return
	}
	storage.slots[i] = propSlot{key: BadPtr, tomb: true}
	storage.count--
	storage.numSlotsOpen++
}

// ObjectSetPrivate attaches tag-typed private data to obj, replacing
// any previous value.
func ObjectSetPrivate(obj Value, tag Value, data Value) {
	o := asObject(obj)
	o.privateTag = tag
	o.privateData = data
}

// ObjectSwapPrivate replaces obj's private data with data if its tag
// matches wantTag, returning the value that was there before. ok is
// false (and nothing is swapped) if the tag doesn't match. It is a
// plain read-modify-write and takes no lock; it is not atomic with
// respect to other goroutines touching obj.
func ObjectSwapPrivate(obj Value, wantTag Value, data Value) (Value, bool) {
	o := asObject(obj)
	if o.privateTag == BadPtr || o.privateTag != wantTag {
		return BadPtr, false
	}
	old := o.privateData
	o.privateData = data
	return old, true
}

// ObjectGetPrivate returns obj's private data if its tag matches
// wantTag, implementing the typed-downcast contract: callers must
// check ok before trusting the returned Value's shape.
func ObjectGetPrivate(obj Value, wantTag Value) (Value, bool) {
	o := asObject(obj)
	if o.privateTag == BadPtr || o.privateTag != wantTag {
		return BadPtr, false
	}
	return o.privateData, true
}

// ObjectKeys returns every own, non-tombstone key, in table order.
// Table order does not reflect insertion order.
func ObjectKeys(obj Value) []Value {
	o := asObject(obj)
	if o.storage == BadPtr {
		return nil
	}
	storage := asObjectStorage(o.storage)
	keys := make([]Value, 0, storage.count)
	for _, s := range storage.slots {
		if s.key != BadPtr && !s.tomb {
			keys = append(keys, s.key)
		}
	}
	return keys
}
