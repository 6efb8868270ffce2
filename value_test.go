package fluence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueTruthy(t *testing.T) {
	assert.False(t, Nil.Truthy())
	assert.False(t, False.Truthy())
	assert.True(t, True.Truthy())
	assert.True(t, NewInt32(0).Truthy())
	assert.True(t, NewString("").Truthy())
}

func TestValueEqualsAcrossNumberKinds(t *testing.T) {
	assert.True(t, NewInt32(5).Equals(NewInt64(5)))
	assert.True(t, NewFloat32(2.5).Equals(NewFloat64(2.5)))
	assert.False(t, NewInt32(5).Equals(NewInt32(6)))
	assert.False(t, NewInt32(5).Equals(NewString("5")))
}

func TestValueEqualsStringsByContent(t *testing.T) {
	a := NewString("hello")
	b := NewString("hello")
	assert.True(t, a.Equals(b))
}

func TestValueNumericConversions(t *testing.T) {
	v := NewFloat64(3.9)
	assert.Equal(t, int32(3), v.Int32())
	assert.Equal(t, int64(3), v.Int64())
	assert.Equal(t, 3.9, v.Float64())
}

func TestValueTypeName(t *testing.T) {
	assert.Equal(t, "Nil", Nil.TypeName())
	assert.Equal(t, "Boolean", True.TypeName())
	assert.Equal(t, "Int", NewInt32(1).TypeName())
	assert.Equal(t, "Long", NewInt64(1).TypeName())
	assert.Equal(t, "Float", NewFloat32(1).TypeName())
	assert.Equal(t, "Double", NewFloat64(1).TypeName())
	assert.Equal(t, "String", NewString("x").TypeName())
}

func TestValueStringFormatting(t *testing.T) {
	assert.Equal(t, "nil", Nil.String())
	assert.Equal(t, "true", True.String())
	assert.Equal(t, "5", NewInt32(5).String())
	assert.Equal(t, "2.5", NewFloat64(2.5).String())
	assert.Equal(t, "3.0", NewFloat64(3).String())
}

func TestStringInterningReusesBackingObjectForShortStrings(t *testing.T) {
	a := NewString("short")
	b := NewString("short")
	assert.Same(t, a.Obj, b.Obj)
}

func TestListIteratorExhaustsThenStaysDone(t *testing.T) {
	list := &ListObj{Items: []Value{NewInt32(1), NewInt32(2)}}
	it := &IteratorObj{List: list}

	v, more := it.Next()
	assert.True(t, more)
	assert.Equal(t, int32(1), v.Int32())

	v, more = it.Next()
	assert.True(t, more)
	assert.Equal(t, int32(2), v.Int32())

	_, more = it.Next()
	assert.False(t, more)
	_, more = it.Next()
	assert.False(t, more, "exhausted iterator must stay done, not wrap")
}

func TestRangeIteratorCoversInclusiveBounds(t *testing.T) {
	rng := &RangeObj{Start: 1, End: 3}
	it := &IteratorObj{Rng: rng, Index: rng.Start}

	var got []int64
	for {
		v, more := it.Next()
		if !more {
			break
		}
		got = append(got, v.Int64())
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestClassAddMethodIndexesByArity(t *testing.T) {
	class := NewClass("Vec2")
	fn1 := &FunctionObj{MangledName: MangleName("scale", 1), BaseName: "scale", Arity: 1}
	fn2 := &FunctionObj{MangledName: MangleName("scale", 2), BaseName: "scale", Arity: 2}
	class.AddMethod(fn1)
	class.AddMethod(fn2)

	assert.Len(t, class.Methods, 2)
	assert.Len(t, class.MethodsByArity["scale"], 2)
}

func TestNewInstanceCopiesFieldDefaults(t *testing.T) {
	class := NewClass("Vec2")
	class.FieldDefaults["x"] = NewInt32(0)
	class.FieldDefaults["y"] = NewInt32(0)

	inst := NewInstance(class)
	inst.Fields["x"] = NewInt32(10)

	other := NewInstance(class)
	assert.Equal(t, int32(0), other.Fields["x"].Int32(), "mutating one instance must not affect the class defaults")
}
