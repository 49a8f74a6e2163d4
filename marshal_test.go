package korecore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_ExtractNativeValue(t *testing.T) {
	ctx := newTestContext(t)
	obj, _ := NewObject(ctx, BadPtr)

	setProp := func(name string, v Value) {
		k := mustKey(t, ctx, name)
		_, err := ObjectSetProperty(ctx, obj, k, v)
		require.Nil(t, err)
	}
	idVal, _ := NewInt(ctx, 7)
	setProp("id", idVal)
	nameVal, _ := NewStringFromUTF8(ctx, []byte("core"))
	setProp("name", nameVal)
	setProp("active", BoolValue(true))

	descriptors := []NativeDescriptor{
		{Name: "id", Type: NativeU32, Offset: 0},
		{Name: "name", Type: NativeStringBuf, Size: 8, Offset: 4},
		{Name: "active", Type: NativeBool8, Offset: 12},
		{Name: "missing", Type: NativeI32, Offset: 13, Default: int64(-1)},
	}
	dest := make([]byte, 17)
	err := ExtractNativeValue(ctx, obj, descriptors, dest)
	require.Nil(t, err)

	assert.Equal(t, byte(7), dest[0])
	assert.Equal(t, "core\x00\x00\x00\x00", string(dest[4:12]))
	assert.Equal(t, byte(1), dest[12])
}

func TestMarshal_MissingRequiredField(t *testing.T) {
	ctx := newTestContext(t)
	obj, _ := NewObject(ctx, BadPtr)
	descriptors := []NativeDescriptor{{Name: "id", Type: NativeU32, Offset: 0}}
	dest := make([]byte, 4)
	err := ExtractNativeValue(ctx, obj, descriptors, dest)
	require.NotNil(t, err)
	assert.Equal(t, ErrMissingArgument, err.Kind)
}

func TestMarshal_BoundsCheck(t *testing.T) {
	ctx := newTestContext(t)
	obj, _ := NewObject(ctx, BadPtr)
	k := mustKey(t, ctx, "v")
	big, _ := NewInt(ctx, 1000)
	_, serr := ObjectSetProperty(ctx, obj, k, big)
	require.Nil(t, serr)

	descriptors := []NativeDescriptor{{Name: "v", Type: NativeU8, Offset: 0}}
	dest := make([]byte, 1)
	err := ExtractNativeValue(ctx, obj, descriptors, dest)
	require.NotNil(t, err)
	assert.Equal(t, ErrNumericOutOfRange, err.Kind)
}

func TestMarshal_RoundTripViaNewObjectFromNative(t *testing.T) {
	ctx := newTestContext(t)
	descriptors := []NativeDescriptor{
		{Name: "x", Type: NativeI32, Offset: 0},
		{Name: "y", Type: NativeF64, Offset: 4},
	}
	src := make([]byte, 12)
	src[0] = 5
	obj, err := NewObjectFromNative(ctx, descriptors, src, BadPtr)
	require.Nil(t, err)

	k := mustKey(t, ctx, "x")
	lk, gerr := ObjectGetProperty(ctx, obj, k, false)
	require.Nil(t, gerr)
	n, _ := lk.Value.ToInt64()
	assert.Equal(t, int64(5), n)
}
