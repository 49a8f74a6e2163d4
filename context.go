package korecore

import "github.com/google/uuid"

// Local is a single rooted value cell. Its address is
// pushed onto a Context's local stack on scope entry and popped on
// scope exit; while pushed, the collector treats it as a root.
type Local struct {
	value Value
}

func (l *Local) Get() Value { return l.value }
func (l *Local) Set(v Value) { l.value = v }

// Context is one execution context: the root-set owner and the unit
// of mutation in the cooperative scheduling model.
type Context struct {
	ID uuid.UUID

	heap *Heap

	locals []*Value
	trackedRefs [][]Value

	exception Value
	exceptionErr *CoreError

	// interpStack, if set, is an external interpreter value stack the
	// collector also treats as a root. The core
	// itself never writes to it.
	interpStack *Value
}

// NewContext creates an execution context attached to heap.
func NewContext(heap *Heap) *Context {
	ctx := &Context{ID: newObjectID(), heap: heap, exception: BadPtr}
	heap.registerContext(ctx)
	return ctx
}

// Close detaches ctx from its heap. Once the last context sharing a
// heap closes, every remaining live object is finalized and every
// page/off-heap allocation is released, regardless of whether
// anything still references it — there is no longer a mutator left
// to observe the difference.
func (ctx *Context) Close() {
	ctx.heap.unregisterContext(ctx)
	ctx.heap.teardownIfUnreferenced()
}

// InitLocal registers local with this context's root chain, setting
// its initial value to Void.
func (ctx *Context) InitLocal(local *Local) {
	local.value = Void
	ctx.locals = append(ctx.locals, &local.value)
}

// InitLocalWith is InitLocal seeded with an initial value.
func (ctx *Context) InitLocalWith(local *Local, v Value) {
	local.value = v
	ctx.locals = append(ctx.locals, &local.value)
}

// InitLocals registers n freshly-zeroed locals in one call, the
// common case when a function needs several root slots at once.
func (ctx *Context) InitLocals(locals...*Local) {
	for _, l := range locals {
		ctx.InitLocal(l)
	}
}

// DestroyTopLocal pops the most-recently-registered local and
// returns its final value.
func (ctx *Context) DestroyTopLocal() Value {
	n := len(ctx.locals)
	v := *ctx.locals[n-1]
	ctx.locals = ctx.locals[:n-1]
	return v
}

// DestroyTopLocals pops the top n locals, returning the value of the
// slot at depth keep (0 = the very top) before popping — the "evict
// temporaries, preserve result" idiom.
func (ctx *Context) DestroyTopLocals(n int, keep int) Value {
	start := len(ctx.locals) - n
	v := *ctx.locals[start+(n-1-keep)]
	ctx.locals = ctx.locals[:start]
	return v
}

// TrackRefs registers an ad-hoc slice of values as roots — the
// track_refs/untrack_refs idiom for interior arrays
// used during multi-step operations that might trigger GC.
func (ctx *Context) TrackRefs(refs []Value) {
	ctx.trackedRefs = append(ctx.trackedRefs, refs)
}

// UntrackRefs unregisters the most recently tracked slice. It takes no
// argument: it always pops the last TrackRefs registration, so calls
// pair with TrackRefs in stack order, mirroring the C API.
func (ctx *Context) UntrackRefs() {
	n := len(ctx.trackedRefs)
	ctx.trackedRefs = ctx.trackedRefs[:n-1]
}

// RaiseException sets v as ctx's pending exception Value, replacing
// any previously pending CoreError.
func (ctx *Context) RaiseException(v Value) {
	ctx.exception = v
	ctx.exceptionErr = nil
}

// Raise attaches a CoreError to the context's pending-exception slot
// and returns BadPtr so the caller can `return ctx.Raise(err)` from
// any Value-returning entry point.
func (ctx *Context) Raise(err *CoreError) Value {
	ctx.exceptionErr = err
	ctx.exception = BadPtr
	return BadPtr
}

func (ctx *Context) IsExceptionPending() bool {
	return ctx.exceptionErr != nil || ctx.exception != BadPtr
}

func (ctx *Context) GetException() Value { return ctx.exception }

func (ctx *Context) GetExceptionError() *CoreError { return ctx.exceptionErr }

// ClearException implements the core's deliberate "clear and
// substitute a fallback" contract used by object-to-string
// fallback and dynamic-property getter failure.
func (ctx *Context) ClearException() {
	ctx.exception = BadPtr
	ctx.exceptionErr = nil
}

// roots calls fn once per root Value address across every context
// sharing this heap. Callers must hold
// ctx.heap.mu.
func (h *Heap) roots(fn func(*Value)) {
	for _, ctx := range h.contexts {
		for _, lp := range ctx.locals {
			fn(lp)
		}
		for _, refs := range ctx.trackedRefs {
			for i := range refs {
				fn(&refs[i])
			}
		}
		if ctx.interpStack != nil {
			fn(ctx.interpStack)
		}
		if ctx.exception != BadPtr {
			fn(&ctx.exception)
		}
	}
}
