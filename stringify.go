package korecore

import (
	"fmt"
	"strconv"
	"strings"
	"unsafe"
)

// stringifyChain threads the recursion guard as a linked chain of
// in-progress Values: before descending into an aggregate, the chain
// is scanned for its identity so a cycle prints as "[...]"/"{...}"
// instead of recursing forever.
type stringifyChain struct {
	v Value
	next *stringifyChain
}

func (c *stringifyChain) contains(v Value) bool {
	for p := c; p != nil; p = p.next {
		if p.v == v {
			return true
		}
	}
	return false
}

// Stringify produces a human-readable form of v. quoted controls
// whether a top-level string is wrapped and escaped; nested strings
// (inside arrays/objects) are always quoted.
func Stringify(ctx *Context, v Value, quoted bool) (string, *CoreError) {
	var b strings.Builder
	if err := stringifyInto(ctx, &b, v, quoted, nil); err != nil {
		return "", err
	}
	return b.String(), nil
}

func stringifyInto(ctx *Context, b *strings.Builder, v Value, quoteStrings bool, chain *stringifyChain) *CoreError {
	switch {
	case v.IsSmallInt():
		b.WriteString(strconv.FormatInt(v.SmallIntValue(), 10))
		return nil
	case v == Void:
		b.WriteString("void")
		return nil
	case v == True:
		b.WriteString("true")
		return nil
	case v == False:
		b.WriteString("false")
		return nil
	}

	switch v.TypeOf() {
	case TagInteger:
		n, err := v.ToInt64()
		if err != nil {
			return err
		}
		b.WriteString(strconv.FormatInt(n, 10))

	case TagFloat:
		f, err := v.ToFloat64()
		if err != nil {
			return err
		}
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))

	case TagString:
		s, serr := asString(v).ToUTF8()
		if serr != nil {
			return serr
		}
		if quoteStrings {
			b.WriteByte('"')
			writeEscapedString(b, s)
			b.WriteByte('"')
		} else {
			b.Write(s)
		}

	case TagArray:
		if chain.contains(v) {
			b.WriteString("[...]")
			return nil
		}
		link := &stringifyChain{v: v, next: chain}
		a := asArray(v)
		b.WriteByte('[')
		for i := 0; i < a.size; i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			el := asArrayStorage(a.storage).slots[i]
			if err := stringifyInto(ctx, b, el, true, link); err != nil {
				return err
			}
		}
		b.WriteByte(']')

	case TagObject:
		if chain.contains(v) {
			b.WriteString("{...}")
			return nil
		}
		link := &stringifyChain{v: v, next: chain}
		b.WriteByte('{')
		first := true
		for _, key := range ObjectKeys(v) {
			if !first {
				b.WriteString(", ")
			}
			first = false
			ks, kerr := asString(key).ToUTF8()
			if kerr != nil {
				return kerr
			}
			b.WriteByte('"')
			writeEscapedString(b, ks)
			b.WriteString("\": ")
			lk, lerr := ObjectGetProperty(ctx, v, key, false)
			if lerr != nil {
				return lerr
			}
			val := lk.Value
			if lk.IsDynamic {
				val = lk.Getter
			}
			if err := stringifyInto(ctx, b, val, true, link); err != nil {
				return err
			}
		}
		b.WriteByte('}')

	case TagBuffer:
		data := BufferBytes(v)
		b.WriteByte('<')
		for i, by := range data {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(b, "%02x", by)
		}
		b.WriteByte('>')

	case TagFunction:
		writeCallableLiteral(b, "function", v)

	case TagClass:
		writeCallableLiteral(b, "class", v)

	case TagModule:
		name, _ := asString(asModule(v).name).ToUTF8()
		fmt.Fprintf(b, "<module %s>", name)

	default:
		fmt.Fprintf(b, "<%s>", v.TypeOf())
	}
	return nil
}

func writeCallableLiteral(b *strings.Builder, kind string, v Value) {
	fo := asFunction(v)
	name := "anonymous"
	if fo.name != Void {
		if raw, err := asString(fo.name).ToUTF8(); err == nil {
			name = string(raw)
		}
	}
	fmt.Fprintf(b, "<%s %s @ %p>", kind, name, unsafe.Pointer(&fo.objHeader))
}

// writeEscapedString escapes raw for embedding in a quoted Stringify
// result: \\, \", \n, \r, \t get their short forms via literalSanitizer,
// everything else outside printable ASCII gets a \xNN hex escape.
func writeEscapedString(b *strings.Builder, raw []byte) {
	for _, by := range raw {
		switch by {
		case '\\', '"', '\n', '\r', '\t':
			b.WriteString(escapeLiteral(string(rune(by))))
		default:
			if by >= 0x20 && by < 0x7F {
				b.WriteByte(by)
			} else {
				fmt.Fprintf(b, `\x%02x`, by)
			}
		}
	}
}

// DebugDumpObject renders v as an indented tree, built on the generic
// treePrinter, for heap-graph debugging (arrays and objects expand
// their children on their own indented line; every other kind prints
// via Stringify on one line).
func DebugDumpObject(ctx *Context, v Value) (string, *CoreError) {
	tp := newTreePrinter[Value](func(input string, _ Value) string { return input })
	if err := dumpRec(ctx, tp, v, nil); err != nil {
		return "", err
	}
	return tp.output.String(), nil
}

func dumpRec(ctx *Context, tp *treePrinter[Value], v Value, chain *stringifyChain) *CoreError {
	switch v.TypeOf() {
	case TagArray:
		if chain.contains(v) {
			tp.pwritel("[...]")
			return nil
		}
		link := &stringifyChain{v: v, next: chain}
		a := asArray(v)
		tp.pwritel(fmt.Sprintf("array[%d]", a.size))
		tp.indent(" ")
		for i := 0; i < a.size; i++ {
			if err := dumpRec(ctx, tp, asArrayStorage(a.storage).slots[i], link); err != nil {
				tp.unindent()
				return err
			}
		}
		tp.unindent()

	case TagObject:
		if chain.contains(v) {
			tp.pwritel("{...}")
			return nil
		}
		link := &stringifyChain{v: v, next: chain}
		tp.pwritel("object")
		tp.indent(" ")
		for _, key := range ObjectKeys(v) {
			ks, _ := asString(key).ToUTF8()
			lk, err := ObjectGetProperty(ctx, v, key, false)
			if err != nil {
				tp.unindent()
				return err
			}
			tp.pwrite(string(ks) + ": ")
			val := lk.Value
			if lk.IsDynamic {
				val = lk.Getter
			}
			s, serr := Stringify(ctx, val, true)
			if serr != nil {
				tp.unindent()
				return serr
			}
			tp.writel(s)
		}
		tp.unindent()

	default:
		s, err := Stringify(ctx, v, true)
		if err != nil {
			return err
		}
		tp.pwritel(s)
	}
	return nil
}
