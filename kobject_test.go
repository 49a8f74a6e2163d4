package korecore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustKey(t *testing.T, ctx *Context, s string) Value {
	t.Helper()
	v, err := NewStringFromUTF8(ctx, []byte(s))
	require.Nil(t, err)
	return v
}

func TestObject_SetGetDelete(t *testing.T) {
	ctx := newTestContext(t)
	obj, err := NewObject(ctx, BadPtr)
	require.Nil(t, err)

	key := mustKey(t, ctx, "answer")
	val, _ := NewInt(ctx, 42)
	_, serr := ObjectSetProperty(ctx, obj, key, val)
	require.Nil(t, serr)

	lk, gerr := ObjectGetProperty(ctx, obj, key, false)
	require.Nil(t, gerr)
	require.True(t, lk.Found)
	n, _ := lk.Value.ToInt64()
	assert.Equal(t, int64(42), n)

	ObjectDeleteProperty(ctx, obj, key)
	lk, gerr = ObjectGetProperty(ctx, obj, key, false)
	require.Nil(t, gerr)
	assert.False(t, lk.Found)
}

func TestObject_GrowthRehashesAllEntries(t *testing.T) {
	ctx := newTestContext(t)
	obj, err := NewObject(ctx, BadPtr)
	require.Nil(t, err)

	for i := 0; i < 200; i++ {
		key := mustKey(t, ctx, keyName(i))
		val, _ := NewInt(ctx, int64(i))
		_, serr := ObjectSetProperty(ctx, obj, key, val)
		require.Nil(t, serr)
	}
	for i := 0; i < 200; i++ {
		key := mustKey(t, ctx, keyName(i))
		lk, gerr := ObjectGetProperty(ctx, obj, key, false)
		require.Nil(t, gerr)
		require.True(t, lk.Found)
		n, _ := lk.Value.ToInt64()
		assert.Equal(t, int64(i), n)
	}
}

func keyName(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%26]) + string(rune('0'+i/26))
}

func TestObject_PrototypeChain(t *testing.T) {
	ctx := newTestContext(t)
	proto, _ := NewObject(ctx, BadPtr)
	key := mustKey(t, ctx, "inherited")
	val, _ := NewInt(ctx, 7)
	_, err := ObjectSetProperty(ctx, proto, key, val)
	require.Nil(t, err)

	child, _ := NewObject(ctx, proto)

	lk, gerr := ObjectGetProperty(ctx, child, key, false)
	require.Nil(t, gerr)
	assert.False(t, lk.Found, "shallow get must not see the prototype")

	lk, gerr = ObjectGetProperty(ctx, child, key, true)
	require.Nil(t, gerr)
	require.True(t, lk.Found)
	n, _ := lk.Value.ToInt64()
	assert.Equal(t, int64(7), n)
}

func TestObject_SetNeverTouchesPrototype(t *testing.T) {
	ctx := newTestContext(t)
	proto, _ := NewObject(ctx, BadPtr)
	key := mustKey(t, ctx, "x")
	protoVal, _ := NewInt(ctx, 1)
	_, err := ObjectSetProperty(ctx, proto, key, protoVal)
	require.Nil(t, err)

	child, _ := NewObject(ctx, proto)
	childVal, _ := NewInt(ctx, 2)
	_, err = ObjectSetProperty(ctx, child, key, childVal)
	require.Nil(t, err)

	lk, _ := ObjectGetProperty(ctx, proto, key, false)
	n, _ := lk.Value.ToInt64()
	assert.Equal(t, int64(1), n, "setting on child must not mutate the prototype's own value")
}

func TestObject_DynamicProperty(t *testing.T) {
	ctx := newTestContext(t)
	obj, _ := NewObject(ctx, BadPtr)

	getterName := mustKey(t, ctx, "getter")
	getter, _ := NewFunction(ctx, getterName, 0, false, func(ctx *Context, this Value, args []Value) (Value, *CoreError) {
		return NewInt(ctx, 99)
	})
	dp, err := NewDynamicProperty(ctx, getter, Void)
	require.Nil(t, err)

	key := mustKey(t, ctx, "computed")
	_, serr := ObjectSetProperty(ctx, obj, key, dp)
	require.Nil(t, serr)

	lk, gerr := ObjectGetProperty(ctx, obj, key, false)
	require.Nil(t, gerr)
	require.True(t, lk.Found)
	assert.True(t, lk.IsDynamic)
	assert.Equal(t, getter, lk.Getter)
}

func TestObject_PrivateData(t *testing.T) {
	ctx := newTestContext(t)
	obj, _ := NewObject(ctx, BadPtr)
	tagA := mustKey(t, ctx, "classA")
	tagB := mustKey(t, ctx, "classB")
	payload, _ := NewInt(ctx, 123)

	ObjectSetPrivate(obj, tagA, payload)

	_, ok := ObjectGetPrivate(obj, tagB)
	assert.False(t, ok, "wrong tag must fail the downcast")

	got, ok := ObjectGetPrivate(obj, tagA)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestNewObjectWithPrivate(t *testing.T) {
	ctx := newTestContext(t)
	tag := mustKey(t, ctx, "classA")
	payload, _ := NewInt(ctx, 7)

	var finalized Value
	fin := func(data Value) { finalized = data }

	obj, err := NewObjectWithPrivate(ctx, BadPtr, tag, payload, fin)
	require.Nil(t, err)

	got, ok := ObjectGetPrivate(obj, tag)
	require.True(t, ok)
	assert.Equal(t, payload, got)

	assert.True(t, asObject(obj).finalize())
	assert.Equal(t, payload, finalized)
}

func TestNewObjectWithPrivate_NoFinalizer(t *testing.T) {
	ctx := newTestContext(t)
	tag := mustKey(t, ctx, "classA")
	payload, _ := NewInt(ctx, 1)

	obj, err := NewObjectWithPrivate(ctx, BadPtr, tag, payload, nil)
	require.Nil(t, err)
	assert.False(t, asObject(obj).finalize(), "no finalizer was registered")
}

func TestObjectSwapPrivate(t *testing.T) {
	ctx := newTestContext(t)
	tagA := mustKey(t, ctx, "classA")
	tagB := mustKey(t, ctx, "classB")
	first, _ := NewInt(ctx, 1)
	second, _ := NewInt(ctx, 2)

	obj, _ := NewObject(ctx, BadPtr)
	ObjectSetPrivate(obj, tagA, first)

	old, ok := ObjectSwapPrivate(obj, tagB, second)
	assert.False(t, ok, "wrong tag must fail the swap")
	assert.Equal(t, BadPtr, old)

	got, ok := ObjectGetPrivate(obj, tagA)
	require.True(t, ok)
	assert.Equal(t, first, got, "a failed swap must not touch the existing private data")

	old, ok = ObjectSwapPrivate(obj, tagA, second)
	require.True(t, ok)
	assert.Equal(t, first, old)

	got, ok = ObjectGetPrivate(obj, tagA)
	require.True(t, ok)
	assert.Equal(t, second, got)
}

func TestObject_ReinsertAfterFullTombstoning(t *testing.T) {
	ctx := newTestContext(t)
	obj, err := NewObject(ctx, BadPtr)
	require.Nil(t, err)

	const n = 4
	keys := make([]Value, n)
	for i := 0; i < n; i++ {
		keys[i] = mustKey(t, ctx, keyName(i))
		val, _ := NewInt(ctx, int64(i))
		_, serr := ObjectSetProperty(ctx, obj, keys[i], val)
		require.Nil(t, serr)
	}
	for i := 0; i < n; i++ {
		ObjectDeleteProperty(ctx, obj, keys[i])
	}

	newKey := mustKey(t, ctx, "fresh")
	newVal, _ := NewInt(ctx, 99)
	require.NotPanics(t, func() {
		_, serr := ObjectSetProperty(ctx, obj, newKey, newVal)
		require.Nil(t, serr)
	})

	lk, gerr := ObjectGetProperty(ctx, obj, newKey, false)
	require.Nil(t, gerr)
	require.True(t, lk.Found)
	got, _ := lk.Value.ToInt64()
	assert.Equal(t, int64(99), got)
}

func TestObjectSwapPrivate_NoExistingPrivate(t *testing.T) {
	ctx := newTestContext(t)
	tag := mustKey(t, ctx, "classA")
	data, _ := NewInt(ctx, 5)

	obj, _ := NewObject(ctx, BadPtr)
	_, ok := ObjectSwapPrivate(obj, tag, data)
	assert.False(t, ok, "an object with no private data has nothing to match the tag against")
}
