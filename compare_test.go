package korecore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare_Numeric(t *testing.T) {
	ctx := newTestContext(t)
	one, _ := NewSmallInt(1)
	two, _ := NewSmallInt(2)
	assert.Equal(t, CmpLess, Compare(one, two))
	assert.Equal(t, CmpGreater, Compare(two, one))
	assert.Equal(t, CmpEqual, Compare(one, one))

	f, _ := NewFloat(ctx, 1.0)
	assert.Equal(t, CmpEqual, Compare(one, f))

	nan, _ := NewFloat(ctx, math.NaN())
	assert.Equal(t, CmpIndeterminate, Compare(nan, one))
	assert.Equal(t, CmpIndeterminate, Compare(nan, nan))
}

func TestCompare_Strings(t *testing.T) {
	ctx := newTestContext(t)
	a, _ := NewStringFromUTF8(ctx, []byte("abc"))
	b, _ := NewStringFromUTF8(ctx, []byte("abd"))
	assert.Equal(t, CmpLess, Compare(a, b))
	assert.Equal(t, CmpGreater, Compare(b, a))
}

func TestCompare_TypeOrdinalFallback(t *testing.T) {
	ctx := newTestContext(t)
	s, _ := NewStringFromUTF8(ctx, []byte("x"))
	n, _ := NewSmallInt(1)
	// Integer's tag ordinal is lower than String's.
	assert.Equal(t, CmpLess, Compare(n, s))
}

func TestCompare_ArraysElementwise(t *testing.T) {
	ctx := newTestContext(t)
	a, _ := NewArray(ctx)
	b, _ := NewArray(ctx)
	one, _ := NewSmallInt(1)
	two, _ := NewSmallInt(2)
	require.Nil(t, ArrayPush(ctx, a, one))
	require.Nil(t, ArrayPush(ctx, b, one))
	assert.Equal(t, CmpEqual, Compare(a, b))

	require.Nil(t, ArrayPush(ctx, a, one))
	require.Nil(t, ArrayPush(ctx, b, two))
	assert.Equal(t, CmpLess, Compare(a, b))
}

func TestCompare_ArraysLengthTiebreak(t *testing.T) {
	ctx := newTestContext(t)
	a, _ := NewArray(ctx)
	b, _ := NewArray(ctx)
	one, _ := NewSmallInt(1)
	require.Nil(t, ArrayPush(ctx, a, one))
	require.Nil(t, ArrayPush(ctx, b, one))
	require.Nil(t, ArrayPush(ctx, b, one))
	assert.Equal(t, CmpLess, Compare(a, b))
}

func TestCompare_ArraysCyclicSafe(t *testing.T) {
	ctx := newTestContext(t)
	a, _ := NewArray(ctx)
	b, _ := NewArray(ctx)
	require.Nil(t, ArrayPush(ctx, a, b))
	require.Nil(t, ArrayPush(ctx, b, a))

	assert.NotPanics(t, func() {
		Compare(a, b)
	})
}

func TestSortKey(t *testing.T) {
	ctx := newTestContext(t)
	one, _ := NewSmallInt(1)
	f, ok := SortKey(one)
	require.True(t, ok)
	assert.Equal(t, 1.0, f)

	nan, _ := NewFloat(ctx, math.NaN())
	f, ok = SortKey(nan)
	require.True(t, ok)
	assert.True(t, math.IsNaN(f))

	s, _ := NewStringFromUTF8(ctx, []byte("x"))
	_, ok = SortKey(s)
	assert.False(t, ok)
}
