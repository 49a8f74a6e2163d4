package korecore

import (
	"encoding/binary"
	"math"
)

// NativeType enumerates the primitive shapes a NativeDescriptor can
// describe.
type NativeType int

const (
	NativeU8 NativeType = iota
	NativeU16
	NativeU32
	NativeU64
	NativeI8
	NativeI16
	NativeI32
	NativeI64
	NativeSize // alias for U64: size_t
	NativeEnum // alias for I32: a named integer constant
	NativeBool8 // one byte, 0/nonzero
	NativeBool32 // four bytes, 0/nonzero
	NativeF32
	NativeF64
	NativeStringBuf // fixed-size UTF-8, zero-padded/truncated to Size bytes
	NativeCString // a NUL-terminated UTF-8 string read at Offset; decoded by NewObjectFromNative only, rejected by ExtractNativeValue
	NativeBytes // fixed-size raw blob, exactly Size bytes
)

// NativeDescriptor is one row of a marshalling table: name, type,
// size, offset, and default. Offset/Size address a flat byte buffer
// rather than an in-process C struct: this
// core has no native struct layout of its own to marshal into, so the
// byte-buffer form is the idiomatic Go equivalent of the same
// table-driven codec, and doubles as the format pack.go's binary
// codec already speaks.
type NativeDescriptor struct {
	Name string
	Type NativeType
	Size int // required for StringBuf/Bytes; ignored otherwise
	Offset int
	Default any // nil means "required": a missing property raises MissingArgument
}

func fieldWidth(d NativeDescriptor) int {
	switch d.Type {
	case NativeU8, NativeI8, NativeBool8:
		return 1
	case NativeU16, NativeI16:
		return 2
	case NativeU32, NativeI32, NativeEnum, NativeBool32, NativeF32:
		return 4
	case NativeU64, NativeI64, NativeSize, NativeF64:
		return 8
	case NativeStringBuf, NativeBytes:
		return d.Size
	case NativeCString:
		return 0 // variable: runs to the first NUL byte; see decodeNativeField
	}
	return 0
}

// ExtractNativeValue reads each descriptor's named property from obj
// (prototype chain included) and writes its native encoding into
// dest at descriptor.Offset. Out-of-range numeric values raise
// NumericOutOfRange; a missing property with no Default raises
// MissingArgument.
func ExtractNativeValue(ctx *Context, obj Value, descriptors []NativeDescriptor, dest []byte) *CoreError {
	for _, d := range descriptors {
		val, err := lookupNativeSource(ctx, obj, d)
		if err != nil {
			return err
		}
		if err := encodeNativeField(ctx, d, val, dest); err != nil {
			return err
		}
	}
	return nil
}

func lookupNativeSource(ctx *Context, obj Value, d NativeDescriptor) (Value, *CoreError) {
	keyV, kerr := NewStringFromUTF8(ctx, []byte(d.Name))
	if kerr != nil {
		return BadPtr, kerr
	}
	lk, err := ObjectGetProperty(ctx, obj, keyV, true)
	if err != nil {
		return BadPtr, err
	}
	if lk.Found {
		if lk.IsDynamic {
			return BadPtr, NewError(ErrTypeMismatch, "property %q is a dynamic property; native marshalling needs a stored value", d.Name)
		}
		return lk.Value, nil
	}
	if d.Default == nil {
		return BadPtr, NewError(ErrMissingArgument, "missing required native field %q", d.Name)
	}
	return defaultToValue(ctx, d.Default)
}

func defaultToValue(ctx *Context, def any) (Value, *CoreError) {
	switch dv := def.(type) {
	case int64:
		return NewInt(ctx, dv)
	case int:
		return NewInt(ctx, int64(dv))
	case float64:
		return NewFloat(ctx, dv)
	case bool:
		return BoolValue(dv), nil
	case string:
		return NewStringFromUTF8(ctx, []byte(dv))
	case func(*Context) (Value, *CoreError):
		return dv(ctx)
	case DefaultFunc:
		return dv(ctx)
	default:
		return BadPtr, NewError(ErrTypeMismatch, "unsupported native default type %T", def)
	}
}

// DefaultFunc is a computed-default form accepted by
// NativeDescriptor.Default, for defaults that depend on the Context
// (e.g. allocating a fresh empty Array) rather than a fixed literal.
type DefaultFunc func(*Context) (Value, *CoreError)

func encodeNativeField(ctx *Context, d NativeDescriptor, val Value, dest []byte) *CoreError {
	o := d.Offset
	switch d.Type {
	case NativeU8, NativeU16, NativeU32, NativeU64, NativeSize, NativeBool8, NativeBool32:
		n, err := coerceUint(val)
		if err != nil {
			return err
		}
		w := fieldWidth(d)
		if err := boundsCheckUint(n, w); err != nil {
			return err
		}
		putUint(dest[o:o+w], n, w)
	case NativeI8, NativeI16, NativeI32, NativeI64, NativeEnum:
		n, err := val.ToInt64()
		if err != nil {
			return err
		}
		w := fieldWidth(d)
		if err := boundsCheckInt(n, w); err != nil {
			return err
		}
		putUint(dest[o:o+w], uint64(n), w)
	case NativeF32:
		f, err := val.ToFloat64()
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dest[o:o+4], math.Float32bits(float32(f)))
	case NativeF64:
		f, err := val.ToFloat64()
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dest[o:o+8], math.Float64bits(f))
	case NativeStringBuf:
		raw, serr := asString(val).ToUTF8()
		if serr != nil {
			return serr
		}
		w := d.Size
		if len(raw) > w {
			return NewError(ErrNumericOutOfRange, "string field %q (%d bytes) exceeds fixed size %d", d.Name, len(raw), w)
		}
		copy(dest[o:o+w], raw)
		for i := len(raw); i < w; i++ {
			dest[o+i] = 0
		}
	case NativeBytes:
		data := BufferBytes(val)
		if len(data) != d.Size {
			return NewError(ErrNumericOutOfRange, "buffer field %q is %d bytes, expected exactly %d", d.Name, len(data), d.Size)
		}
		copy(dest[o:o+d.Size], data)
	case NativeCString:
		return NewError(ErrTypeMismatch, "NativeCString is only supported by NewObjectFromNative, not extraction into a fixed buffer")
	}
	return nil
}

func coerceUint(val Value) (uint64, *CoreError) {
	if b, ok := val.GetBool(); ok {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	n, err := val.ToInt64()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, NewError(ErrNumericOutOfRange, "negative value %d cannot be stored as unsigned", n)
	}
	return uint64(n), nil
}

func boundsCheckUint(n uint64, width int) *CoreError {
	if width >= 8 {
		return nil
	}
	limit := uint64(1) << uint(width*8)
	if n >= limit {
		return NewError(ErrNumericOutOfRange, "value %d out of range for %d-byte unsigned field", n, width)
	}
	return nil
}

func boundsCheckInt(n int64, width int) *CoreError {
	if width >= 8 {
		return nil
	}
	limit := int64(1) << uint(width*8-1)
	if n < -limit || n >= limit {
		return NewError(ErrNumericOutOfRange, "value %d out of range for %d-byte signed field", n, width)
	}
	return nil
}

func putUint(dst []byte, v uint64, width int) {
	switch width {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(dst, v)
	}
}

func getUint(src []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(src[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(src))
	case 4:
		return uint64(binary.LittleEndian.Uint32(src))
	default:
		return binary.LittleEndian.Uint64(src)
	}
}

// NewObjectFromNative is the inverse of ExtractNativeValue: it builds
// a fresh Object, prototype-free unless proto is given, and populates
// one property per descriptor from src.
func NewObjectFromNative(ctx *Context, descriptors []NativeDescriptor, src []byte, proto Value) (Value, *CoreError) {
	local := Local{}
	v, err := NewObject(ctx, proto)
	if err != nil {
		return BadPtr, err
	}
	ctx.InitLocalWith(&local, v)
	err = SetPropertiesFromNative(ctx, local.Get(), descriptors, src)
	v = local.Get()
	ctx.DestroyTopLocal()
	if err != nil {
		return BadPtr, err
	}
	return v, nil
}

// SetPropertiesFromNative decodes each descriptor out of src and sets
// the corresponding property on the already-constructed obj.
func SetPropertiesFromNative(ctx *Context, obj Value, descriptors []NativeDescriptor, src []byte) *CoreError {
	local := Local{}
	ctx.InitLocalWith(&local, obj)
	for _, d := range descriptors {
		val, err := decodeNativeField(ctx, d, src)
		if err != nil {
			ctx.DestroyTopLocal()
			return err
		}
		keyV, kerr := NewStringFromUTF8(ctx, []byte(d.Name))
		if kerr != nil {
			ctx.DestroyTopLocal()
			return kerr
		}
		if _, serr := ObjectSetProperty(ctx, local.Get(), keyV, val); serr != nil {
			ctx.DestroyTopLocal()
			return serr
		}
	}
	ctx.DestroyTopLocal()
	return nil
}

func decodeNativeField(ctx *Context, d NativeDescriptor, src []byte) (Value, *CoreError) {
	o := d.Offset
	switch d.Type {
	case NativeU8, NativeU16, NativeU32, NativeU64, NativeSize:
		w := fieldWidth(d)
		return NewInt(ctx, int64(getUint(src[o:o+w], w)))
	case NativeBool8, NativeBool32:
		w := fieldWidth(d)
		return BoolValue(getUint(src[o:o+w], w) != 0), nil
	case NativeI8, NativeI16, NativeI32, NativeI64, NativeEnum:
		w := fieldWidth(d)
		u := getUint(src[o:o+w], w)
		shift := uint(64 - w*8)
		return NewInt(ctx, int64(u<<shift)>>shift)
	case NativeF32:
		return NewFloat(ctx, float64(math.Float32frombits(binary.LittleEndian.Uint32(src[o:o+4]))))
	case NativeF64:
		return NewFloat(ctx, math.Float64frombits(binary.LittleEndian.Uint64(src[o:o+8])))
	case NativeStringBuf:
		w := d.Size
		end := w
		for end > 0 && src[o+end-1] == 0 {
			end--
		}
		return NewStringFromUTF8(ctx, src[o:o+end])
	case NativeBytes:
		v, err := NewBuffer(ctx)
		if err != nil {
			return BadPtr, err
		}
		local := Local{}
		ctx.InitLocalWith(&local, v)
		rerr := BufferResize(ctx, local.Get(), int64(d.Size))
		if rerr == nil {
			copy(asBufferStorage(asBuffer(local.Get()).storage).data, src[o:o+d.Size])
		}
		v = local.Get()
		ctx.DestroyTopLocal()
		return v, rerr
	case NativeCString:
		end := o
		for end < len(src) && src[end] != 0 {
			end++
		}
		return NewStringFromUTF8(ctx, src[o:end])
	}
	return BadPtr, NewError(ErrTypeMismatch, "unsupported native type for field %q", d.Name)
}
