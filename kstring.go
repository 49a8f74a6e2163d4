package korecore

import (
	"encoding/binary"
	"unsafe"
)

// String storage kinds.
const (
	stringLocal uint8 = iota // payload owned by this String
	stringConst // payload aliases caller-owned memory, never copied
	stringRef // payload is a window into another String, kept alive via refSrc
)

// stringObj is the String entity: three element sizes, three storage
// kinds, lazily-computed hash.
type stringObj struct {
	objHeader
	elemSize uint8 // 1, 2 or 4
	kind uint8
	length int // code points, not bytes
	hash uint32

	data []byte // stringLocal/stringConst: length*elemSize bytes
	refSrc Value // stringRef: the String kept alive
	refOff int // stringRef: element offset into refSrc's data
}

func (o *stringObj) hdr() *objHeader { return &o.objHeader }

func (o *stringObj) visitRefs(fn func(*Value)) {
	if o.kind == stringRef {
		fn(&o.refSrc)
	}
}

func (o *stringObj) clone() heapObj {
	c := *o
	if o.kind != stringRef {
		c.data = append([]byte(nil), o.data...)
	}
	return &c
}

func (o *stringObj) finalize() bool { return false }

func asString(v Value) *stringObj { return (*stringObj)(unsafe.Pointer(v.header())) }

// --- UTF-8 codec (lenient on decode, strict range on encode) ---
//
// This decoder tolerates overlong encodings but rejects code points
// the 4-byte UTF-8 form cannot carry (>= 0x200000, 21 bits). Go's
// stdlib unicode/utf8 enforces RFC 3629 exactly (rejects overlong
// forms, caps at 0x10FFFF) and therefore can't serve this directly;
// see DESIGN.md for why this stays hand-rolled rather than importing
// a third-party UTF-8 library.

func decodeRuneLenient(b []byte) (cp int32, size int, ok bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	c0 := b[0]
	switch {
	case c0 < 0x80:
		return int32(c0), 1, true
	case c0&0xE0 == 0xC0:
		if len(b) < 2 || b[1]&0xC0 != 0x80 {
			return 0, 0, false
		}
		return int32(c0&0x1F)<<6 | int32(b[1]&0x3F), 2, true
	case c0&0xF0 == 0xE0:
		if len(b) < 3 || b[1]&0xC0 != 0x80 || b[2]&0xC0 != 0x80 {
			return 0, 0, false
		}
		return int32(c0&0x0F)<<12 | int32(b[1]&0x3F)<<6 | int32(b[2]&0x3F), 3, true
	case c0&0xF8 == 0xF0:
		if len(b) < 4 || b[1]&0xC0 != 0x80 || b[2]&0xC0 != 0x80 || b[3]&0xC0 != 0x80 {
			return 0, 0, false
		}
		cp = int32(c0&0x07)<<18 | int32(b[1]&0x3F)<<12 | int32(b[2]&0x3F)<<6 | int32(b[3]&0x3F)
		return cp, 4, true
	default:
		return 0, 0, false
	}
}

// EncodeCodePointUTF8 encodes a single code point, failing for
// cp >= 0x200000.
func EncodeCodePointUTF8(cp int32) ([]byte, bool) {
	switch {
	case cp < 0:
		return nil, false
	case cp <= 0x7F:
		return []byte{byte(cp)}, true
	case cp <= 0x7FF:
		return []byte{byte(0xC0 | cp>>6), byte(0x80 | cp&0x3F)}, true
	case cp <= 0xFFFF:
		return []byte{byte(0xE0 | cp>>12), byte(0x80 | (cp>>6)&0x3F), byte(0x80 | cp&0x3F)}, true
	case cp <= 0x1FFFFF:
		return []byte{byte(0xF0 | cp>>18), byte(0x80 | (cp>>12)&0x3F), byte(0x80 | (cp>>6)&0x3F), byte(0x80 | cp&0x3F)}, true
	default:
		return nil, false
	}
}

func decodeAllLenient(raw []byte) ([]int32, *CoreError) {
	cps := make([]int32, 0, len(raw))
	for i := 0; i < len(raw); {
		cp, size, ok := decodeRuneLenient(raw[i:])
		if !ok {
			return nil, NewErrorAt(ErrInvalidString, i, "invalid UTF-8 byte sequence")
		}
		cps = append(cps, cp)
		i += size
	}
	return cps, nil
}

func hexVal(b byte) (int, bool) {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0'), true
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10, true
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10, true
	default:
		return 0, false
	}
}

// decodeAllWithEscapes is the escape-aware variant:
// in addition to \x## and \x{...}, it recognizes the same \\, \", \n,
// \r, \t escapes the stringifier (stringify.go) produces, so a
// stringified ASCII string round-trips through this constructor. A
// non-ASCII character, which the stringifier writes as one \xNN per
// UTF-8 byte, decodes back as one code point per byte.
func decodeAllWithEscapes(raw []byte) ([]int32, *CoreError) {
	var cps []int32
	for i := 0; i < len(raw); {
		if raw[i] != '\\' {
			cp, size, ok := decodeRuneLenient(raw[i:])
			if !ok {
				return nil, NewErrorAt(ErrInvalidString, i, "invalid UTF-8 byte sequence")
			}
			cps = append(cps, cp)
			i += size
			continue
		}
		if i+1 >= len(raw) {
			return nil, NewErrorAt(ErrInvalidString, i, "unterminated escape sequence")
		}
		switch raw[i+1] {
		case '\\':
			cps = append(cps, '\\')
			i += 2
		case '"':
			cps = append(cps, '"')
			i += 2
		case 'n':
			cps = append(cps, '\n')
			i += 2
		case 'r':
			cps = append(cps, '\r')
			i += 2
		case 't':
			cps = append(cps, '\t')
			i += 2
		case 'x':
			if i+2 < len(raw) && raw[i+2] == '{' {
				j := i + 3
				val := 0
				for j < len(raw) && raw[j] != '}' {
					d, ok := hexVal(raw[j])
					if !ok {
						return nil, NewErrorAt(ErrInvalidString, j, "invalid hex digit in \\x{...} escape")
					}
					val = val*16 + d
					j++
				}
				if j >= len(raw) {
					return nil, NewErrorAt(ErrInvalidString, i, "unterminated \\x{...} escape")
				}
				if val >= 0x200000 {
					return nil, NewErrorAt(ErrInvalidString, i, "code point out of range in \\x{...} escape")
				}
				cps = append(cps, int32(val))
				i = j + 1
			} else {
				if i+3 >= len(raw) {
					return nil, NewErrorAt(ErrInvalidString, i, "unterminated \\x## escape")
				}
				hi, ok1 := hexVal(raw[i+2])
				lo, ok2 := hexVal(raw[i+3])
				if !ok1 || !ok2 {
					return nil, NewErrorAt(ErrInvalidString, i, "invalid hex digits in \\x## escape")
				}
				cps = append(cps, int32(hi*16+lo))
				i += 4
			}
		default:
			return nil, NewErrorAt(ErrInvalidString, i, "unrecognized escape sequence")
		}
	}
	return cps, nil
}

func chooseElemSize(cps []int32) uint8 {
	var maxCP int32
	for _, cp := range cps {
		if cp > maxCP {
			maxCP = cp
		}
	}
	switch {
	case maxCP <= 0x7F:
		return 1
	case maxCP <= 0xFFFF:
		return 2
	default:
		return 4
	}
}

func packCodePoints(cps []int32, elemSize uint8) []byte {
	buf := make([]byte, len(cps)*int(elemSize))
	for i, cp := range cps {
		switch elemSize {
		case 1:
			buf[i] = byte(cp)
		case 2:
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(cp))
		case 4:
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(cp))
		}
	}
	return buf
}

func newStringObj(cps []int32, kind uint8, rawConst []byte) *stringObj {
	elemSize := chooseElemSize(cps)
	o := &stringObj{elemSize: elemSize, kind: kind, length: len(cps), refSrc: BadPtr}
	if kind == stringConst && elemSize == 1 && rawConst != nil {
		o.data = rawConst
	} else {
		o.data = packCodePoints(cps, elemSize)
		o.kind = stringLocal
	}
	return o
}

func commitString(ctx *Context, o *stringObj) (Value, *CoreError) {
	size := int(unsafe.Sizeof(*o)) + len(o.data)
	if err := ctx.heap.commit(&o.objHeader, TagString, size); err != nil {
		return BadPtr, err
	}
	return headerToValue(&o.objHeader), nil
}

// NewStringFromUTF8 validates and decodes raw as UTF-8 and allocates
// a String of the narrowest element size its content needs.
func NewStringFromUTF8(ctx *Context, raw []byte) (Value, *CoreError) {
	cps, err := decodeAllLenient(raw)
	if err != nil {
		return BadPtr, err
	}
	return commitString(ctx, newStringObj(cps, stringLocal, nil))
}

// NewStringFromUTF8Escaped is the escape-aware constructor used when
// decoding a quoted string literal.
func NewStringFromUTF8Escaped(ctx *Context, raw []byte) (Value, *CoreError) {
	cps, err := decodeAllWithEscapes(raw)
	if err != nil {
		return BadPtr, err
	}
	return commitString(ctx, newStringObj(cps, stringLocal, nil))
}

// NewConstString aliases raw rather than copying it, the "pointer to
// static const data" storage kind. raw must outlive
// the returned Value; the caller (typically the module loader feeding
// in literal pool data) is responsible for that. Falls back to a copy
// transparently if raw's content needs a wider element size than 1.
func NewConstString(ctx *Context, raw []byte) (Value, *CoreError) {
	cps, err := decodeAllLenient(raw)
	if err != nil {
		return BadPtr, err
	}
	return commitString(ctx, newStringObj(cps, stringConst, raw))
}

func (o *stringObj) elementAt(i int) int32 {
	if o.kind == stringRef {
		return asString(o.refSrc).elementAt(o.refOff + i)
	}
	switch o.elemSize {
	case 1:
		return int32(o.data[i])
	case 2:
		return int32(binary.LittleEndian.Uint16(o.data[i*2:]))
	default:
		return int32(binary.LittleEndian.Uint32(o.data[i*4:]))
	}
}

func (o *stringObj) Length() int { return o.length }
func (o *stringObj) ElemSize() int { return int(o.elemSize) }

// Hash lazily computes and caches an FNV-like hash folded over the
// code-point sequence (not the byte representation), so identical
// content hashes identically regardless of stored width.
func (o *stringObj) Hash() uint32 {
	if o.hash != 0 {
		return o.hash
	}
	h := uint32(2166136261)
	for i := 0; i < o.length; i++ {
		h ^= uint32(o.elementAt(i))
		h *= 16777619
	}
	if h == 0 {
		h = 1
	}
	o.hash = h
	return h
}

// ToUTF8 encodes the String back to a UTF-8 byte slice.
func (o *stringObj) ToUTF8() ([]byte, *CoreError) {
	out := make([]byte, 0, o.length)
	for i := 0; i < o.length; i++ {
		enc, ok := EncodeCodePointUTF8(o.elementAt(i))
		if !ok {
			return nil, NewError(ErrNumericOutOfRange, "code point out of UTF-8 range at index %d", i)
		}
		out = append(out, enc...)
	}
	return out, nil
}

// StringEqual compares two Strings for exact equality: lexicographic,
// cross-width, no promotion to a common width.
func StringEqual(a, b Value) bool {
	return CompareStringValues(a, b) == 0
}

// CompareStringValues returns -1/0/1 comparing a and b lexicographically
// by code point, independent of their stored element sizes.
func CompareStringValues(a, b Value) int {
	sa, sb := asString(a), asString(b)
	n := sa.length
	if sb.length < n {
		n = sb.length
	}
	for i := 0; i < n; i++ {
		ca, cb := sa.elementAt(i), sb.elementAt(i)
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	switch {
	case sa.length < sb.length:
		return -1
	case sa.length > sb.length:
		return 1
	default:
		return 0
	}
}

// SliceString implements O(1) slicing: a Ref into the
// source when the slice is a strict subrange, the source itself when
// the slice covers it entirely, or an empty string.
func SliceString(ctx *Context, s Value, beginIdx, endIdx int64) (Value, *CoreError) {
	src := asString(s)
	begin := NormalizeIndex(beginIdx, src.length)
	end := NormalizeIndex(endIdx, src.length)
	if end < begin {
		end = begin
	}
	if begin == 0 && end == src.length {
		return s, nil
	}
	if begin == end {
		return commitString(ctx, newStringObj(nil, stringLocal, nil))
	}
	root, off := s, begin
	if src.kind == stringRef {
		root, off = src.refSrc, src.refOff+begin
	}
	o := &stringObj{
		elemSize: src.elemSize,
		kind: stringRef,
		length: end - begin,
		refSrc: root,
		refOff: off,
	}
	return commitString(ctx, o)
}

// ConcatStrings implements concatenation: total length
// computed up front, element size is the max of the inputs, allocated
// once and filled by promoting every input element to that width.
func ConcatStrings(ctx *Context, parts []Value) (Value, *CoreError) {
	total := 0
	var elemSize uint8 = 1
	strs := make([]*stringObj, len(parts))
	for i, p := range parts {
		s := asString(p)
		strs[i] = s
		total += s.length
		if s.elemSize > elemSize {
			elemSize = s.elemSize
		}
	}
	cps := make([]int32, 0, total)
	for _, s := range strs {
		for i := 0; i < s.length; i++ {
			cps = append(cps, s.elementAt(i))
		}
	}
	o := &stringObj{elemSize: elemSize, kind: stringLocal, length: len(cps), refSrc: BadPtr, data: packCodePoints(cps, elemSize)}
	return commitString(ctx, o)
}

// StringIter is a lightweight traversal cursor over a string's code
// points. It is not a heap object: iterating a string does not
// allocate.
type StringIter struct {
	s *stringObj
	pos int
}

func NewStringIter(s Value) StringIter {
	return StringIter{s: asString(s)}
}

func (it *StringIter) IsEnd() bool { return it.pos >= it.s.length }
func (it *StringIter) PeekCode() int32 { return it.s.elementAt(it.pos) }
func (it *StringIter) Advance() { it.pos++ }
