package korecore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	heap := NewHeap(nil)
	ctx := NewContext(heap)
	t.Cleanup(ctx.Close)
	return ctx
}

func TestString_ElemSizeSelection(t *testing.T) {
	ctx := newTestContext(t)

	tests := []struct {
		name     string
		input    string
		elemSize int
	}{
		{"ascii", "hello", 1},
		{"bmp", "héllo", 2},
		{"astral", "hi \U0001F600", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewStringFromUTF8(ctx, []byte(tt.input))
			require.Nil(t, err)
			assert.Equal(t, tt.elemSize, asString(v).ElemSize())
			out, uerr := asString(v).ToUTF8()
			require.Nil(t, uerr)
			assert.Equal(t, tt.input, string(out))
		})
	}
}

func TestString_EscapedConstructor(t *testing.T) {
	ctx := newTestContext(t)
	v, err := NewStringFromUTF8Escaped(ctx, []byte(`a\x41b\x{1F600}`))
	require.Nil(t, err)
	out, uerr := asString(v).ToUTF8()
	require.Nil(t, uerr)
	assert.Equal(t, "aAb\U0001F600", string(out))
}

func TestString_EscapedConstructor_InvalidEscape(t *testing.T) {
	ctx := newTestContext(t)
	_, err := NewStringFromUTF8Escaped(ctx, []byte(`\q`))
	require.NotNil(t, err)
	assert.Equal(t, ErrInvalidString, err.Kind)
}

func TestString_CompareAndEqual(t *testing.T) {
	ctx := newTestContext(t)
	a, _ := NewStringFromUTF8(ctx, []byte("abc"))
	b, _ := NewStringFromUTF8(ctx, []byte("abd"))
	c, _ := NewStringFromUTF8(ctx, []byte("abc"))

	assert.Equal(t, -1, CompareStringValues(a, b))
	assert.Equal(t, 1, CompareStringValues(b, a))
	assert.Equal(t, 0, CompareStringValues(a, c))
	assert.True(t, StringEqual(a, c))
}

func TestString_CompareCrossWidth(t *testing.T) {
	ctx := newTestContext(t)
	narrow, _ := NewStringFromUTF8(ctx, []byte("abc"))
	wide, _ := NewStringFromUTF8(ctx, []byte("ab\U0001F600"))
	assert.Equal(t, 3, asString(wide).ElemSize()-asString(narrow).ElemSize())
	assert.NotEqual(t, 0, CompareStringValues(narrow, wide))
}

func TestString_Slice(t *testing.T) {
	ctx := newTestContext(t)
	v, _ := NewStringFromUTF8(ctx, []byte("hello world"))

	whole, err := SliceString(ctx, v, 0, 11)
	require.Nil(t, err)
	assert.Equal(t, v, whole)

	mid, err := SliceString(ctx, v, 6, 11)
	require.Nil(t, err)
	out, _ := asString(mid).ToUTF8()
	assert.Equal(t, "world", string(out))
	assert.Equal(t, uint8(stringRef), asString(mid).kind)

	empty, err := SliceString(ctx, v, 3, 3)
	require.Nil(t, err)
	assert.Equal(t, 0, asString(empty).Length())
}

func TestString_Concat(t *testing.T) {
	ctx := newTestContext(t)
	a, _ := NewStringFromUTF8(ctx, []byte("foo"))
	b, _ := NewStringFromUTF8(ctx, []byte("bar"))
	c, _ := NewStringFromUTF8(ctx, []byte("\U0001F600"))

	cat, err := ConcatStrings(ctx, []Value{a, b, c})
	require.Nil(t, err)
	out, _ := asString(cat).ToUTF8()
	assert.Equal(t, "foobar\U0001F600", string(out))
	assert.Equal(t, uint8(4), asString(cat).elemSize)
}

func TestString_Hash(t *testing.T) {
	ctx := newTestContext(t)
	a, _ := NewStringFromUTF8(ctx, []byte("same content"))
	b, _ := NewStringFromUTF8(ctx, []byte("same content"))
	assert.Equal(t, asString(a).Hash(), asString(b).Hash())
}

func TestStringIter(t *testing.T) {
	ctx := newTestContext(t)
	v, _ := NewStringFromUTF8(ctx, []byte("abc"))
	it := NewStringIter(v)
	var got []int32
	for !it.IsEnd() {
		got = append(got, it.PeekCode())
		it.Advance()
	}
	assert.Equal(t, []int32{'a', 'b', 'c'}, got)
}
