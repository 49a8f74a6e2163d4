package korecore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmallInt_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		n    int64
		ok   bool
	}{
		{"zero", 0, true},
		{"positive", 12345, true},
		{"negative", -12345, true},
		{"max small int", 1<<62 - 1, true},
		{"min small int", -(1 << 62), true},
		{"overflow positive", 1 << 62, false},
		{"overflow negative", -(1<<62 + 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := NewSmallInt(tt.n)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.True(t, v.IsSmallInt())
				assert.Equal(t, tt.n, v.SmallIntValue())
			}
		})
	}
}

func TestValue_Immediates(t *testing.T) {
	assert.False(t, Void.IsSmallInt())
	assert.False(t, Void.IsHeapPtr())
	assert.False(t, True.IsHeapPtr())
	assert.False(t, False.IsHeapPtr())
	assert.True(t, BadPtr.IsBad())
	assert.Equal(t, TagVoidAlias, Void.TypeOf())
	assert.Equal(t, TagBooleanAlias, True.TypeOf())
	assert.Equal(t, TagBadPtr, BadPtr.TypeOf())

	b, ok := True.GetBool()
	assert.True(t, ok)
	assert.True(t, b)

	b, ok = False.GetBool()
	assert.True(t, ok)
	assert.False(t, b)

	_, ok = Void.GetBool()
	assert.False(t, ok)
}

func TestValue_BoxedIntegerAndFloat(t *testing.T) {
	heap := NewHeap(nil)
	ctx := NewContext(heap)
	defer ctx.Close()

	big := int64(1) << 62
	v, err := NewInt(ctx, big)
	require.Nil(t, err)
	assert.True(t, v.IsHeapPtr())
	assert.Equal(t, TagInteger, v.TypeOf())
	n, ierr := v.ToInt64()
	require.Nil(t, ierr)
	assert.Equal(t, big, n)

	fv, err := NewFloat(ctx, 3.5)
	require.Nil(t, err)
	f, ferr := fv.ToFloat64()
	require.Nil(t, ferr)
	assert.Equal(t, 3.5, f)
}

func TestNormalizeIndex(t *testing.T) {
	tests := []struct {
		name   string
		idx    int64
		length int
		want   int
	}{
		{"positive in range", 2, 10, 2},
		{"negative wraps from end", -1, 10, 9},
		{"negative past start clamps to 0", -20, 10, 0},
		{"positive past end clamps to length", 20, 10, 10},
		{"exactly length", 10, 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeIndex(tt.idx, tt.length))
		})
	}
}
