package korecore

import "unsafe"

// NativeFunc is a host-provided callable. This package is the value/
// object/GC core only — it has no bytecode evaluator — so a Function
// is always ultimately backed by Go code the host registers, the same
// way a C extension module registers KOS_FUNCTION entry points in the
// source runtime this is modeled on.
type NativeFunc func(ctx *Context, this Value, args []Value) (Value, *CoreError)

// GenState is a generator Function's execution state machine.
type GenState int

const (
	GenNone GenState = iota // a regular, non-generator function
	GenInit
	GenReady
	GenActive
	GenRunning
	GenDone
)

// stackObj is a heap-resident snapshot of a suspended generator's
// execution stack: CopyForPriming needs somewhere to park the primed,
// not-yet-running frame. It is a plain Value
// vector; this core doesn't interpret its contents, only keeps them
// alive and lets the host VM round-trip them.
type stackObj struct {
	objHeader
	slots []Value
}

func (o *stackObj) hdr() *objHeader { return &o.objHeader }

func (o *stackObj) visitRefs(fn func(*Value)) {
	for i := range o.slots {
		fn(&o.slots[i])
	}
}

func (o *stackObj) clone() heapObj {
	c := *o
	c.slots = append([]Value(nil), o.slots...)
	return &c
}

func (o *stackObj) finalize() bool { return false }

func asStack(v Value) *stackObj { return (*stackObj)(unsafe.Pointer(v.header())) }

// NewStack allocates a Value vector of the given length, all Void.
func NewStack(ctx *Context, n int) (Value, *CoreError) {
	o := &stackObj{slots: make([]Value, n)}
	for i := range o.slots {
		o.slots[i] = Void
	}
	size := int(unsafe.Sizeof(*o)) + n*int(unsafe.Sizeof(Value(0)))
	if err := ctx.heap.commit(&o.objHeader, TagStack, size); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}

// functionObj is the Function entity: a
// callable plus, when isGenerator is set, the generator state machine
// and its parked stack.
type functionObj struct {
	objHeader
	name Value // string, or Void if anonymous
	minArgs int
	variadic bool
	native NativeFunc
	isGenerator bool
	genState GenState
	savedStack Value // BadPtr unless suspended

	// Class-only fields (TagClass). A plain Function leaves these
	// BadPtr/Void; see NewClass.
	prototype Value
	props Value // objectStorage of static/class-level properties
}

func (o *functionObj) hdr() *objHeader { return &o.objHeader }

func (o *functionObj) visitRefs(fn func(*Value)) {
	if o.name != Void {
		fn(&o.name)
	}
	if o.savedStack != BadPtr {
		fn(&o.savedStack)
	}
	if o.prototype != BadPtr {
		fn(&o.prototype)
	}
	if o.props != BadPtr {
		fn(&o.props)
	}
}

func (o *functionObj) clone() heapObj { c := *o; return &c }
func (o *functionObj) finalize() bool { return false }

func asFunction(v Value) *functionObj { return (*functionObj)(unsafe.Pointer(v.header())) }

// NewFunction allocates a plain (non-generator) callable.
func NewFunction(ctx *Context, name Value, minArgs int, variadic bool, fn NativeFunc) (Value, *CoreError) {
	o := &functionObj{name: name, minArgs: minArgs, variadic: variadic, native: fn, savedStack: BadPtr, prototype: BadPtr, props: BadPtr}
	if err := ctx.heap.commit(&o.objHeader, TagFunction, int(unsafe.Sizeof(*o))); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}

// NewGeneratorTemplate allocates a generator function in GenInit
// state: calling it does not run it, it produces a primed copy
// (CopyForPriming) ready to be resumed.
func NewGeneratorTemplate(ctx *Context, name Value, minArgs int, variadic bool, fn NativeFunc) (Value, *CoreError) {
	o := &functionObj{name: name, minArgs: minArgs, variadic: variadic, native: fn, isGenerator: true, genState: GenInit, savedStack: BadPtr, prototype: BadPtr, props: BadPtr}
	if err := ctx.heap.commit(&o.objHeader, TagFunction, int(unsafe.Sizeof(*o))); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}

// IsGenerator reports whether v is a generator function or instance.
func IsGenerator(v Value) bool { return asFunction(v).isGenerator }

// CopyForPriming implements generator instantiation: calling a
// generator template clones it into a fresh, independent
// GenReady instance rather than mutating the template in place, so
// the same generator function can be called repeatedly to produce
// concurrently-live generator objects.
func CopyForPriming(ctx *Context, tmpl Value) (Value, *CoreError) {
	src := asFunction(tmpl)
	if !src.isGenerator {
		return BadPtr, NewError(ErrNotAGenerator, "value is not a generator function")
	}
	o := &functionObj{
		name: src.name, minArgs: src.minArgs, variadic: src.variadic, native: src.native,
		isGenerator: true, genState: GenReady, savedStack: BadPtr, prototype: BadPtr, props: BadPtr,
	}
	if err := ctx.heap.commit(&o.objHeader, TagFunction, int(unsafe.Sizeof(*o))); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}

// GeneratorState reports a generator instance's current state.
func GeneratorState(v Value) GenState { return asFunction(v).genState }

// SetGeneratorState sets a generator instance's state to next. The
// machine's edges are Ready->Active on first resume, Active<->Running
// across yield/resume, and any state to Done on completion or uncaught
// exception; the requested transition is not checked against them.
// Only a non-generator v is rejected, with NotAGenerator.
func SetGeneratorState(v Value, next GenState) *CoreError {
	o := asFunction(v)
	if !o.isGenerator {
		return NewError(ErrNotAGenerator, "value is not a generator")
	}
	o.genState = next
	return nil
}

// ParkGeneratorStack stashes a suspended generator's execution stack
// between yields.
func ParkGeneratorStack(v Value, stack Value) { asFunction(v).savedStack = stack }

// GeneratorStack retrieves a parked generator's stack, BadPtr if none.
func GeneratorStack(v Value) Value { return asFunction(v).savedStack }

// NewClass allocates a Class: a callable (the constructor) plus a
// published prototype object and an own property table for
// class-level (static) members.
func NewClass(ctx *Context, name Value, minArgs int, variadic bool, ctor NativeFunc) (Value, *CoreError) {
	local := Local{}
	protoV, err := NewObject(ctx, BadPtr)
	if err != nil {
		return BadPtr, err
	}
	ctx.InitLocalWith(&local, protoV)
	o := &functionObj{name: name, minArgs: minArgs, variadic: variadic, native: ctor, savedStack: BadPtr, prototype: local.Get(), props: BadPtr}
	v, cerr := func() (Value, *CoreError) {
		if e := ctx.heap.commit(&o.objHeader, TagClass, int(unsafe.Sizeof(*o))); e != nil {
			return BadPtr, e
		}
		return headerToValue(&o.objHeader), nil
	}()
	ctx.DestroyTopLocal()
	return v, cerr
}

// ClassPrototype returns a Class's published prototype object, the
// instance every object constructed by this class chains to.
func ClassPrototype(v Value) Value { return asFunction(v).prototype }

// ClassSetStatic and ClassGetStatic manage a Class's own (static)
// property table, stored the same way Object's own storage is:
// a Class's static members are ordinary properties of the class
// value itself.
func ClassSetStatic(ctx *Context, class Value, key Value, val Value) *CoreError {
	o := asFunction(class)
	if o.props == BadPtr {
		local := Local{}
		ctx.InitLocalWith(&local, class)
		sv, err := newObjectStorage(ctx, ctx.heap.cfg.GetInt("object.initial_capacity"))
		ctx.DestroyTopLocal()
		if err != nil {
			return err
		}
		asFunction(class).props = sv
		o = asFunction(class)
	}
	storage := asObjectStorage(o.props)
	hash := asString(key).Hash()
	if i, found := storage.find(hash, key); found {
		storage.slots[i].val = val
		return nil
	}
	loadPct := ctx.heap.cfg.GetInt("object.load_factor_pct")
	if (storage.count+storage.numSlotsOpen+1)*100 > len(storage.slots)*loadPct {
		local := Local{}
		ctx.InitLocalWith(&local, class)
		sv, err := newObjectStorage(ctx, len(storage.slots)*2)
		if err != nil {
			ctx.DestroyTopLocal()
			return err
		}
		newStorage := asObjectStorage(sv)
		for _, s := range storage.slots {
			if s.key == BadPtr || s.tomb {
				continue
			}
			j, _ := newStorage.find(s.hash, s.key)
			newStorage.slots[j] = propSlot{hash: s.hash, key: s.key, val: s.val}
			newStorage.count++
		}
		ctx.DestroyTopLocal()
		asFunction(class).props = sv
		storage = newStorage
	}
	i, _ := storage.find(hash, key)
	if storage.slots[i].tomb {
		storage.numSlotsOpen--
	}
	storage.slots[i] = propSlot{hash: hash, key: key, val: val}
	storage.count++
	return nil
}

// ClassSetStatic never deletes a static property (there is no
// ClassDeleteStatic), so numSlotsOpen above always stays zero in
// practice; the bookkeeping is carried anyway to share find()'s and
// Object's growth-formula contract rather than diverge from it.

func ClassGetStatic(class Value, key Value) (Value, bool) {
	o := asFunction(class)
	if o.props == BadPtr {
		return BadPtr, false
	}
	storage := asObjectStorage(o.props)
	i, found := storage.find(asString(key).Hash(), key)
	if !found {
		return BadPtr, false
	}
	return storage.slots[i].val, true
}

// moduleObj is the Module entity. Modules are
// pinned (see Heap.commitPinned): a module's address is stable for
// the life of the program, matching the reference runtime's
// assumption that a module can be cached by pointer.
type moduleObj struct {
	objHeader
	name Value // string
	globals Value // an Object holding the module's exported bindings
}

func (o *moduleObj) hdr() *objHeader { return &o.objHeader }

func (o *moduleObj) visitRefs(fn func(*Value)) {
	fn(&o.name)
	fn(&o.globals)
}

func (o *moduleObj) clone() heapObj { c := *o; return &c }
func (o *moduleObj) finalize() bool { return false }

func asModule(v Value) *moduleObj { return (*moduleObj)(unsafe.Pointer(v.header())) }

// NewModule allocates a pinned Module with a fresh, empty globals
// Object.
func NewModule(ctx *Context, name Value) (Value, *CoreError) {
	local := Local{}
	globalsV, err := NewObject(ctx, BadPtr)
	if err != nil {
		return BadPtr, err
	}
	ctx.InitLocalWith(&local, globalsV)
	o := &moduleObj{name: name, globals: local.Get()}
	v, cerr := func() (Value, *CoreError) {
		if e := ctx.heap.commitPinned(&o.objHeader, TagModule, int(unsafe.Sizeof(*o))); e != nil {
			return BadPtr, e
		}
		return headerToValue(&o.objHeader), nil
	}()
	ctx.DestroyTopLocal()
	return v, cerr
}

func ModuleGlobals(v Value) Value { return asModule(v).globals }
