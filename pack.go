package korecore

import (
	"encoding/binary"
	"math"
)

// MaxPackCount caps a pack/unpack format's repeat count at roughly
// 4.3x10^8, a hard contract rather than an approximation: a runaway
// count in a malformed format string fails fast instead of attempting
// a multi-gigabyte allocation.
const MaxPackCount = 433 * 1000 * 1000

type packOp struct {
	char byte
	width int
	hasWidth bool
	count int
}

func parsePackFormat(format string) ([]packOp, *CoreError) {
	var ops []packOp
	i := 0
	for i < len(format) {
		if format[i] == ' ' {
			i++
			continue
		}
		start := i
		count := 1
		hasCount := false
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			count = count*10 + int(format[i]-'0')
			if count > MaxPackCount {
				return nil, NewErrorAt(ErrFormatError, start, "repeat count exceeds %d", MaxPackCount)
			}
			hasCount = true
			i++
		}
		if i >= len(format) {
			return nil, NewErrorAt(ErrFormatError, start, "count with no following format character")
		}
		c := format[i]
		i++
		switch c {
		case '<', '>':
			ops = append(ops, packOp{char: c})
		case 'x':
			ops = append(ops, packOp{char: c, count: count})
		case 'u', 'i', 'f':
			widthStart := i
			width := 0
			hasWidth := false
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				width = width*10 + int(format[i]-'0')
				hasWidth = true
				i++
			}
			if !hasWidth {
				return nil, NewErrorAt(ErrFormatError, widthStart, "%c requires a width", c)
			}
			if err := validateWidth(c, width, widthStart); err != nil {
				return nil, err
			}
			ops = append(ops, packOp{char: c, width: width, hasWidth: true, count: count})
		case 's':
			widthStart := i
			width := 0
			hasWidth := false
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				width = width*10 + int(format[i]-'0')
				hasWidth = true
				i++
			}
			if !hasWidth && hasCount && count != 1 {
				return nil, NewErrorAt(ErrFormatError, start, "bare s requires count 1")
			}
			ops = append(ops, packOp{char: c, width: width, hasWidth: hasWidth, count: count})
		case 'b':
			widthStart := i
			width := 0
			hasWidth := false
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				width = width*10 + int(format[i]-'0')
				hasWidth = true
				i++
			}
			if !hasWidth {
				return nil, NewErrorAt(ErrFormatError, widthStart, "b requires a width")
			}
			ops = append(ops, packOp{char: c, width: width, hasWidth: true, count: count})
		default:
			return nil, NewErrorAt(ErrFormatError, start, "unrecognized format character %q", c)
		}
	}
	return ops, nil
}

func validateWidth(c byte, width, pos int) *CoreError {
	switch c {
	case 'u', 'i':
		if width != 1 && width != 2 && width != 4 && width != 8 {
			return NewErrorAt(ErrFormatError, pos, "%c width must be 1, 2, 4 or 8", c)
		}
	case 'f':
		if width != 4 && width != 8 {
			return NewErrorAt(ErrFormatError, pos, "f width must be 4 or 8")
		}
	}
	return nil
}

// Pack implements the pack codec: format drives how many
// bytes each consecutive element of args consumes and how it's
// encoded. Returns the packed bytes as a new Buffer.
func Pack(ctx *Context, format string, args []Value) (Value, *CoreError) {
	ops, err := parsePackFormat(format)
	if err != nil {
		return BadPtr, err
	}
	order := binary.ByteOrder(binary.LittleEndian)
	var out []byte
	argi := 0
	next := func() (Value, *CoreError) {
		if argi >= len(args) {
			return BadPtr, NewError(ErrMissingArgument, "pack format needs more arguments than were given")
		}
		v := args[argi]
		argi++
		return v, nil
	}
	for _, op := range ops {
		switch op.char {
		case '<':
			order = binary.LittleEndian
		case '>':
			order = binary.BigEndian
		case 'x':
			out = append(out, make([]byte, op.count)...)
		case 'u':
			for n := 0; n < op.count; n++ {
				v, verr := next()
				if verr != nil {
					return BadPtr, verr
				}
				u, cerr := coerceUint(v)
				if cerr != nil {
					return BadPtr, cerr
				}
				if berr := boundsCheckUint(u, op.width); berr != nil {
					return BadPtr, berr
				}
				out = appendUint(out, order, u, op.width)
			}
		case 'i':
			for n := 0; n < op.count; n++ {
				v, verr := next()
				if verr != nil {
					return BadPtr, verr
				}
				s, cerr := v.ToInt64()
				if cerr != nil {
					return BadPtr, cerr
				}
				if berr := boundsCheckInt(s, op.width); berr != nil {
					return BadPtr, berr
				}
				out = appendUint(out, order, uint64(s), op.width)
			}
		case 'f':
			for n := 0; n < op.count; n++ {
				v, verr := next()
				if verr != nil {
					return BadPtr, verr
				}
				f, cerr := v.ToFloat64()
				if cerr != nil {
					return BadPtr, cerr
				}
				if op.width == 4 {
					out = appendUint(out, order, uint64(math.Float32bits(float32(f))), 4)
				} else {
					out = appendUint(out, order, math.Float64bits(f), 8)
				}
			}
		case 'b':
			for n := 0; n < op.count; n++ {
				v, verr := next()
				if verr != nil {
					return BadPtr, verr
				}
				data := BufferBytes(v)
				if len(data) != op.width {
					return BadPtr, NewError(ErrFormatError, "b%d argument is %d bytes", op.width, len(data))
				}
				out = append(out, data...)
			}
		case 's':
			if !op.hasWidth {
				v, verr := next()
				if verr != nil {
					return BadPtr, verr
				}
				raw, serr := asString(v).ToUTF8()
				if serr != nil {
					return BadPtr, serr
				}
				out = append(out, raw...)
				continue
			}
			for n := 0; n < op.count; n++ {
				v, verr := next()
				if verr != nil {
					return BadPtr, verr
				}
				raw, serr := asString(v).ToUTF8()
				if serr != nil {
					return BadPtr, serr
				}
				if len(raw) > op.width {
					return BadPtr, NewError(ErrFormatError, "s%d argument is %d bytes, too long", op.width, len(raw))
				}
				buf := make([]byte, op.width)
				copy(buf, raw)
				out = append(out, buf...)
			}
		}
	}
	v, berr := NewExternalBuffer(ctx, out, nil)
	return v, berr
}

func appendUint(out []byte, order binary.ByteOrder, v uint64, width int) []byte {
	buf := make([]byte, width)
	switch width {
	case 1:
		buf[0] = byte(v)
	case 2:
		order.PutUint16(buf, uint16(v))
	case 4:
		order.PutUint32(buf, uint32(v))
	case 8:
		order.PutUint64(buf, v)
	}
	return append(out, buf...)
}

func readUint(data []byte, order binary.ByteOrder, width int) uint64 {
	switch width {
	case 1:
		return uint64(data[0])
	case 2:
		return uint64(order.Uint16(data))
	case 4:
		return uint64(order.Uint32(data))
	default:
		return order.Uint64(data)
	}
}

// Unpack implements the inverse of Pack: decode buf according to
// format, returning one Value per consumed item (a bare, width-less
// 's' is the only op that's a "to end of buffer" sink; it takes a
// count of 1 only, and items after it find no bytes left).
func Unpack(ctx *Context, format string, buf Value) ([]Value, *CoreError) {
	ops, err := parsePackFormat(format)
	if err != nil {
		return nil, err
	}
	data := BufferBytes(buf)
	order := binary.ByteOrder(binary.LittleEndian)
	pos := 0
	need := func(n int) *CoreError {
		if pos+n > len(data) {
			return NewError(ErrInvalidIndex, "unpack needs %d more bytes than the buffer has", pos+n-len(data))
		}
		return nil
	}
	var out []Value
	for _, op := range ops {
		switch op.char {
		case '<':
			order = binary.LittleEndian
		case '>':
			order = binary.BigEndian
		case 'x':
			if err := need(op.count); err != nil {
				return nil, err
			}
			pos += op.count
		case 'u':
			for n := 0; n < op.count; n++ {
				if err := need(op.width); err != nil {
					return nil, err
				}
				u := readUint(data[pos:], order, op.width)
				pos += op.width
				v, verr := NewInt(ctx, int64(u))
				if verr != nil {
					return nil, verr
				}
				out = append(out, v)
			}
		case 'i':
			for n := 0; n < op.count; n++ {
				if err := need(op.width); err != nil {
					return nil, err
				}
				u := readUint(data[pos:], order, op.width)
				pos += op.width
				shift := uint(64 - op.width*8)
				v, verr := NewInt(ctx, int64(u<<shift)>>shift)
				if verr != nil {
					return nil, verr
				}
				out = append(out, v)
			}
		case 'f':
			for n := 0; n < op.count; n++ {
				if err := need(op.width); err != nil {
					return nil, err
				}
				u := readUint(data[pos:], order, op.width)
				pos += op.width
				var f float64
				if op.width == 4 {
					f = float64(math.Float32frombits(uint32(u)))
				} else {
					f = math.Float64frombits(u)
				}
				v, verr := NewFloat(ctx, f)
				if verr != nil {
					return nil, verr
				}
				out = append(out, v)
			}
		case 'b':
			for n := 0; n < op.count; n++ {
				if err := need(op.width); err != nil {
					return nil, err
				}
				v, verr := NewExternalBuffer(ctx, append([]byte(nil), data[pos:pos+op.width]...), nil)
				pos += op.width
				if verr != nil {
					return nil, verr
				}
				out = append(out, v)
			}
		case 's':
			if !op.hasWidth {
				v, verr := NewStringFromUTF8(ctx, data[pos:])
				pos = len(data)
				if verr != nil {
					return nil, verr
				}
				out = append(out, v)
				continue
			}
			for n := 0; n < op.count; n++ {
				if err := need(op.width); err != nil {
					return nil, err
				}
				end := op.width
				for end > 0 && data[pos+end-1] == 0 {
					end--
				}
				v, verr := NewStringFromUTF8(ctx, data[pos:pos+end])
				pos += op.width
				if verr != nil {
					return nil, verr
				}
				out = append(out, v)
			}
		}
	}
	return out, nil
}
