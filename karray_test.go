package korecore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArray_PushPop(t *testing.T) {
	ctx := newTestContext(t)
	v, err := NewArray(ctx)
	require.Nil(t, err)

	for i := int64(0); i < 20; i++ {
		iv, _ := NewInt(ctx, i)
		require.Nil(t, ArrayPush(ctx, v, iv))
	}
	assert.Equal(t, 20, ArrayLen(v))

	for i := int64(19); i >= 0; i-- {
		got, perr := ArrayPop(ctx, v)
		require.Nil(t, perr)
		n, _ := got.ToInt64()
		assert.Equal(t, i, n)
	}
	assert.Equal(t, 0, ArrayLen(v))

	_, err = ArrayPop(ctx, v)
	require.NotNil(t, err)
	assert.Equal(t, ErrEmptyCollection, err.Kind)
}

func TestArray_GetSetOutOfBounds(t *testing.T) {
	ctx := newTestContext(t)
	v, _ := NewArray(ctx)
	iv, _ := NewInt(ctx, 1)
	require.Nil(t, ArrayPush(ctx, v, iv))

	_, err := ArrayGet(ctx, v, 5)
	require.NotNil(t, err)
	assert.Equal(t, ErrInvalidIndex, err.Kind)

	got, err := ArrayGet(ctx, v, -1)
	require.Nil(t, err)
	n, _ := got.ToInt64()
	assert.Equal(t, int64(1), n)
}

func TestArray_ResizeGrowShrink(t *testing.T) {
	ctx := newTestContext(t)
	v, _ := NewArray(ctx)
	require.Nil(t, ArrayResize(ctx, v, 5))
	assert.Equal(t, 5, ArrayLen(v))
	for i := int64(0); i < 5; i++ {
		got, _ := ArrayGet(ctx, v, i)
		assert.Equal(t, Void, got)
	}
	require.Nil(t, ArrayResize(ctx, v, 2))
	assert.Equal(t, 2, ArrayLen(v))
}

func TestArray_InsertDeleteRange(t *testing.T) {
	ctx := newTestContext(t)
	v, _ := NewArray(ctx)
	for i := int64(0); i < 5; i++ {
		iv, _ := NewInt(ctx, i)
		require.Nil(t, ArrayPush(ctx, v, iv))
	}
	a, _ := NewInt(ctx, 100)
	b, _ := NewInt(ctx, 101)
	require.Nil(t, ArrayInsertRange(ctx, v, 2, []Value{a, b}))
	assert.Equal(t, 7, ArrayLen(v))

	vals := make([]int64, ArrayLen(v))
	for i := range vals {
		g, _ := ArrayGet(ctx, v, int64(i))
		vals[i], _ = g.ToInt64()
	}
	assert.Equal(t, []int64{0, 1, 100, 101, 2, 3, 4}, vals)

	require.Nil(t, ArrayDeleteRange(ctx, v, 2, 4))
	assert.Equal(t, 5, ArrayLen(v))
	vals = make([]int64, ArrayLen(v))
	for i := range vals {
		g, _ := ArrayGet(ctx, v, int64(i))
		vals[i], _ = g.ToInt64()
	}
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, vals)
}

func TestArray_CAS(t *testing.T) {
	ctx := newTestContext(t)
	v, _ := NewArray(ctx)
	iv, _ := NewInt(ctx, 1)
	require.Nil(t, ArrayPush(ctx, v, iv))

	swapped, err := ArrayCAS(ctx, v, 0, iv, BoolValue(true))
	require.Nil(t, err)
	assert.True(t, swapped)

	swapped, err = ArrayCAS(ctx, v, 0, iv, BoolValue(false))
	require.Nil(t, err)
	assert.False(t, swapped)
}

func TestArray_StorageSnapshotChainSurvivesResize(t *testing.T) {
	ctx := newTestContext(t)
	v, _ := NewArray(ctx)
	for i := int64(0); i < 4; i++ {
		iv, _ := NewInt(ctx, i)
		require.Nil(t, ArrayPush(ctx, v, iv))
	}

	oldStorageVal := asArray(v).storage
	oldStorage := asArrayStorage(oldStorageVal)
	assert.Equal(t, BadPtr, oldStorage.next, "storage not yet resized has no successor")

	// force growth past the snapshot taken above
	for i := int64(4); i < 40; i++ {
		iv, _ := NewInt(ctx, i)
		require.Nil(t, ArrayPush(ctx, v, iv))
	}

	require.NotEqual(t, BadPtr, oldStorage.next, "a resized-away storage must link to its replacement")
	current := oldStorage.current()
	assert.Equal(t, asArrayStorage(asArray(v).storage), current, "current() must resolve to the live storage")

	// the old snapshot's own slots are untouched by the resize
	for i := 0; i < 4; i++ {
		n, _ := oldStorage.slots[i].ToInt64()
		assert.Equal(t, int64(i), n)
	}
}

func TestArray_Slice(t *testing.T) {
	ctx := newTestContext(t)
	v, _ := NewArray(ctx)
	for i := int64(0); i < 5; i++ {
		iv, _ := NewInt(ctx, i)
		require.Nil(t, ArrayPush(ctx, v, iv))
	}
	s, err := ArraySlice(ctx, v, 1, 4)
	require.Nil(t, err)
	assert.Equal(t, 3, ArrayLen(s))

	// mutating the slice must not affect the source
	require.Nil(t, ArraySet(ctx, s, 0, BoolValue(true)))
	orig, _ := ArrayGet(ctx, v, 1)
	n, _ := orig.ToInt64()
	assert.Equal(t, int64(1), n)
}
