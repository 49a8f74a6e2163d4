package korecore

import "unsafe"

// BufferFinalizer is called once when an external buffer's owning
// Buffer is collected unreferenced.
type BufferFinalizer func(data []byte) error

// bufferStorageObj is the backing byte vector of a Buffer, mirroring
// arrayStorageObj's capacity/spare-slots shape but over raw bytes.
// external, when set, means data aliases
// caller-owned memory instead of being owned by this storage; finalize
// then runs finalizer instead of simply discarding the slice.
type bufferStorageObj struct {
	objHeader
	capacity int
	data []byte
	external bool
	finalizer BufferFinalizer
}

func (o *bufferStorageObj) hdr() *objHeader { return &o.objHeader }
func (o *bufferStorageObj) visitRefs(func(*Value)) {}

func (o *bufferStorageObj) clone() heapObj {
	c := *o
	if !o.external {
		c.data = append([]byte(nil), o.data...)
	}
	return &c
}

func (o *bufferStorageObj) finalize() bool {
	if o.external && o.finalizer != nil {
		o.finalizer(o.data)
		return true
	}
	return false
}

func asBufferStorage(v Value) *bufferStorageObj { return (*bufferStorageObj)(unsafe.Pointer(v.header())) }

func newBufferStorage(ctx *Context, capacity int) (Value, *CoreError) {
	o := &bufferStorageObj{capacity: capacity, data: make([]byte, capacity)}
	size := int(unsafe.Sizeof(*o)) + capacity
	if err := ctx.heap.commit(&o.objHeader, TagBufferStorage, size); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}

func newExternalBufferStorage(ctx *Context, data []byte, fin BufferFinalizer) (Value, *CoreError) {
	o := &bufferStorageObj{capacity: len(data), data: data, external: true, finalizer: fin}
	if err := ctx.heap.commit(&o.objHeader, TagBufferStorage, int(unsafe.Sizeof(*o))); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}

// bufferObj is the Buffer entity: a size distinct from its storage's
// capacity, plus a one-way lock bit — once locked, a buffer rejects
// further resize/fill/copy permanently.
type bufferObj struct {
	objHeader
	size int
	locked bool
	storage Value
}

func (o *bufferObj) hdr() *objHeader { return &o.objHeader }

func (o *bufferObj) visitRefs(fn func(*Value)) {
	if o.storage != BadPtr {
		fn(&o.storage)
	}
}

func (o *bufferObj) clone() heapObj { c := *o; return &c }
func (o *bufferObj) finalize() bool { return false }

func asBuffer(v Value) *bufferObj { return (*bufferObj)(unsafe.Pointer(v.header())) }

// NewBuffer allocates an empty owned Buffer.
func NewBuffer(ctx *Context) (Value, *CoreError) {
	o := &bufferObj{storage: BadPtr}
	if err := ctx.heap.commit(&o.objHeader, TagBuffer, int(unsafe.Sizeof(*o))); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}

// NewExternalBuffer wraps caller-owned memory as a Buffer. fin, if
// non-nil, runs when the Buffer is collected unreferenced. The
// resulting Buffer is implicitly locked: external memory is never
// resized out from under its owner.
func NewExternalBuffer(ctx *Context, data []byte, fin BufferFinalizer) (Value, *CoreError) {
	local := Local{}
	sv, err := newExternalBufferStorage(ctx, data, fin)
	if err != nil {
		return BadPtr, err
	}
	ctx.InitLocalWith(&local, sv)
	o := &bufferObj{size: len(data), locked: true, storage: local.Get()}
	v, cerr := func() (Value, *CoreError) {
		if e := ctx.heap.commit(&o.objHeader, TagBuffer, int(unsafe.Sizeof(*o))); e != nil {
			return BadPtr, e
		}
		return headerToValue(&o.objHeader), nil
	}()
	ctx.DestroyTopLocal()
	return v, cerr
}

func (o *bufferObj) checkMutable() *CoreError {
	if o.locked {
		return NewError(ErrImmutableValue, "buffer is locked")
	}
	return nil
}

// BufferLen returns a Buffer's logical length in bytes.
func BufferLen(v Value) int { return asBuffer(v).size }

// BufferLock permanently locks v against further mutation.
func BufferLock(v Value) { asBuffer(v).locked = true }

// BufferIsLocked reports whether v has been locked.
func BufferIsLocked(v Value) bool { return asBuffer(v).locked }

func (o *bufferObj) bytes() []byte {
	if o.storage == BadPtr {
		return nil
	}
	s := asBufferStorage(o.storage)
	return s.data[:o.size]
}

// BufferBytes returns a view of v's live bytes. The caller must not
// retain it across a call that might resize or collect the buffer.
func BufferBytes(v Value) []byte { return asBuffer(v).bytes() }

func (o *bufferObj) ensureCapacity(ctx *Context, self Value, need int) *CoreError {
	if o.storage == BadPtr {
		cap := need
		if cap < 16 {
			cap = 16
		}
		local := Local{}
		ctx.InitLocalWith(&local, self)
		sv, err := newBufferStorage(ctx, cap)
		ctx.DestroyTopLocal()
		if err != nil {
			return err
		}
		asBuffer(self).storage = sv
		return nil
	}
	storage := asBufferStorage(o.storage)
	if storage.capacity-o.size >= need {
		return nil
	}
	newCap := storage.capacity * 2
	if newCap < o.size+need {
		newCap = o.size + need
	}
	local := Local{}
	ctx.InitLocalWith(&local, self)
	sv, err := newBufferStorage(ctx, newCap)
	if err != nil {
		ctx.DestroyTopLocal()
		return err
	}
	copy(asBufferStorage(sv).data, asBufferStorage(asBuffer(local.Get()).storage).data[:o.size])
	ctx.DestroyTopLocal()
	asBuffer(self).storage = sv
	return nil
}

// BufferReserve pre-grows v's storage without changing its logical size.
func BufferReserve(ctx *Context, v Value, n int) *CoreError {
	o := asBuffer(v)
	if err := o.checkMutable(); err != nil {
		return err
	}
	need := n - o.size
	if need <= 0 {
		return nil
	}
	return o.ensureCapacity(ctx, v, need)
}

// BufferResize grows or shrinks v's logical length, zero-filling new
// bytes on growth.
func BufferResize(ctx *Context, v Value, n int64) *CoreError {
	o := asBuffer(v)
	if err := o.checkMutable(); err != nil {
		return err
	}
	if n < 0 {
		return NewError(ErrInvalidIndex, "negative buffer size %d", n)
	}
	newSize := int(n)
	if newSize > o.size {
		if err := o.ensureCapacity(ctx, v, newSize-o.size); err != nil {
			return err
		}
		o = asBuffer(v)
		storage := asBufferStorage(o.storage)
		for i := o.size; i < newSize; i++ {
			storage.data[i] = 0
		}
	}
	o.size = newSize
	return nil
}

// BufferFill sets every byte in [begin,end) to b.
func BufferFill(ctx *Context, v Value, beginIdx, endIdx int64, b byte) *CoreError {
	o := asBuffer(v)
	if err := o.checkMutable(); err != nil {
		return err
	}
	begin := NormalizeIndex(beginIdx, o.size)
	end := NormalizeIndex(endIdx, o.size)
	if end <= begin {
		return nil
	}
	data := asBufferStorage(o.storage).data
	for i := begin; i < end; i++ {
		data[i] = b
	}
	return nil
}

// BufferCopy copies src's [srcBegin,srcEnd) bytes into dst starting at
// dstBegin, truncating the copied range to whatever fits in dst
// rather than growing dst to accommodate it. When dst and src are the
// same buffer and the ranges overlap, the copy is further truncated to
// the non-overlapping prefix.
func BufferCopy(ctx *Context, dst Value, dstBegin int64, src Value, srcBegin, srcEnd int64) *CoreError {
	do := asBuffer(dst)
	if err := do.checkMutable(); err != nil {
		return err
	}
	so := asBuffer(src)
	sBegin := NormalizeIndex(srcBegin, so.size)
	sEnd := NormalizeIndex(srcEnd, so.size)
	dBegin := NormalizeIndex(dstBegin, do.size)
	if sEnd <= sBegin {
		return nil
	}
	n := sEnd - sBegin
	if dBegin+n > do.size {
		n = do.size - dBegin
	}
	if do == so {
		if dBegin > sBegin && dBegin < sBegin+n {
			n = dBegin - sBegin
		} else if sBegin > dBegin && sBegin < dBegin+n {
			n = sBegin - dBegin
		}
	}
	if n <= 0 {
		return nil
	}
	srcData := asBufferStorage(so.storage).data
	dstData := asBufferStorage(do.storage).data
	copy(dstData[dBegin:dBegin+n], srcData[sBegin:sBegin+n])
	return nil
}

// BufferMakeRoom opens a gap of n bytes at idx, shifting the tail
// right and growing the buffer's logical size by n, used to splice
// data in without a separate resize-then-copy.
func BufferMakeRoom(ctx *Context, v Value, idx int64, n int) *CoreError {
	o := asBuffer(v)
	if err := o.checkMutable(); err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}
	i := NormalizeIndex(idx, o.size)
	if err := o.ensureCapacity(ctx, v, n); err != nil {
		return err
	}
	o = asBuffer(v)
	storage := asBufferStorage(o.storage)
	copy(storage.data[i+n:o.size+n], storage.data[i:o.size])
	for j := i; j < i+n; j++ {
		storage.data[j] = 0
	}
	o.size += n
	return nil
}

// BufferSlice returns a new Buffer holding a copy of v's [begin,end)
// bytes.
func BufferSlice(ctx *Context, v Value, beginIdx, endIdx int64) (Value, *CoreError) {
	o := asBuffer(v)
	begin := NormalizeIndex(beginIdx, o.size)
	end := NormalizeIndex(endIdx, o.size)
	if end < begin {
		end = begin
	}
	local := Local{}
	ctx.InitLocalWith(&local, v)
	nv, err := NewBuffer(ctx)
	if err != nil {
		ctx.DestroyTopLocal()
		return BadPtr, err
	}
	if end > begin {
		src := asBufferStorage(asBuffer(local.Get()).storage).data[begin:end]
		if rerr := BufferResize(ctx, nv, int64(end-begin)); rerr != nil {
			ctx.DestroyTopLocal()
			return BadPtr, rerr
		}
		copy(asBufferStorage(asBuffer(nv).storage).data, src)
	}
	ctx.DestroyTopLocal()
	return nv, nil
}
