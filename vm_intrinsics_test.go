package fluence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLengthOfEachCollectionKind(t *testing.T) {
	n, err := lengthOf(NewList([]Value{NewInt32(1), NewInt32(2), NewInt32(3)}))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = lengthOf(NewString("héllo"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = lengthOf(NewRangeValue(2, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestLengthOfRejectsPrimitives(t *testing.T) {
	_, err := lengthOf(NewInt32(5))
	require.Error(t, err)
	rerr, ok := err.(*RuntimeError)
	require.True(t, ok)
	assert.Equal(t, ErrTypeMismatch, rerr.Kind)
}

func TestListMethodPushPopAndElementAt(t *testing.T) {
	l := &ListObj{Items: []Value{NewInt32(1), NewInt32(2)}}

	v, ok, err := listMethod(l, "push", []Value{NewInt32(3)})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, v.IsNil())
	assert.Len(t, l.Items, 3)

	v, ok, err = listMethod(l, "element_at", []Value{NewInt32(10)})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, v.IsNil(), "out-of-bounds element_at must return nil, not error")

	v, ok, err = listMethod(l, "pop", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(3), v.Int32())
	assert.Len(t, l.Items, 2)
}

func TestListMethodPopFromEmptyErrors(t *testing.T) {
	l := &ListObj{}
	_, ok, err := listMethod(l, "pop", nil)
	assert.True(t, ok)
	require.Error(t, err)
	rerr, _ := err.(*RuntimeError)
	assert.Equal(t, ErrIndexOutOfRange, rerr.Kind)
}

func TestListMethodUnknownNameNotRecognized(t *testing.T) {
	l := &ListObj{}
	_, ok, err := listMethod(l, "frobnicate", nil)
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestStringMethodElementAtAndConcat(t *testing.T) {
	s := &StringObj{Value: "abc"}

	v, ok, err := stringMethod(s, "element_at", []Value{NewInt32(1)})
	require.NoError(t, err)
	assert.True(t, ok)
	co, isChar := v.Obj.(*CharObj)
	require.True(t, isChar)
	assert.Equal(t, 'b', co.Value)

	v, ok, err = stringMethod(s, "element_at", []Value{NewInt32(99)})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, v.IsNil())

	v, ok, err = stringMethod(s, "concat", []Value{NewString("def")})
	require.NoError(t, err)
	assert.True(t, ok)
	so, _ := v.Obj.(*StringObj)
	assert.Equal(t, "abcdef", so.Value)
}

func TestRangeMethodLenAndElementAt(t *testing.T) {
	r := &RangeObj{Start: 5, End: 8}

	v, ok, err := rangeMethod(r, "len", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(4), v.Int64())

	v, ok, err = rangeMethod(r, "element_at", []Value{NewInt32(2)})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), v.Int64())

	v, ok, err = rangeMethod(r, "element_at", []Value{NewInt32(99)})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, v.IsNil())
}

func TestBuiltinMethodReturnsNotRecognizedForPrimitives(t *testing.T) {
	_, ok, err := builtinMethod(NewInt32(1), "len", nil)
	assert.False(t, ok)
	assert.NoError(t, err)
}
