package fluence

import (
	"fmt"
	"math"
	"strings"
)

// ValueTag is the primary discriminant of a runtime Value (spec §3).
type ValueTag uint8

const (
	TagNil ValueTag = iota
	TagBoolean
	TagNumber
	TagObject
)

// NumberKind is the secondary discriminant used only when Tag ==
// TagNumber. The four kinds overlay the same 8-byte payload; which
// one is meaningful is decided entirely by this tag, matching the
// source's overlapping-storage numeric union.
type NumberKind uint8

const (
	NumInt32 NumberKind = iota
	NumInt64
	NumFloat32
	NumFloat64
)

// Value is Fluence's 24-byte-equivalent tagged union: a primary tag,
// a numeric sub-tag, an 8-byte primitive payload (booleans use the
// int32 payload 0/1), and an optional heap Object reference. Exactly
// one of (payload, Obj) is meaningful, decided by Tag.
type Value struct {
	Tag     ValueTag
	NumKind NumberKind
	payload uint64
	Obj     Object
}

// Object is implemented by every heap-allocated Value variant.
type Object interface {
	TypeName() string
}

// ---- canonical constants ----

var Nil = Value{Tag: TagNil}
var True = Value{Tag: TagBoolean, payload: 1}
var False = Value{Tag: TagBoolean, payload: 0}

// ---- constructors ----

func NewBool(b bool) Value {
	if b {
		return True
	}
	return False
}

func NewInt32(v int32) Value {
	return Value{Tag: TagNumber, NumKind: NumInt32, payload: uint64(uint32(v))}
}

func NewInt64(v int64) Value {
	return Value{Tag: TagNumber, NumKind: NumInt64, payload: uint64(v)}
}

func NewFloat32(v float32) Value {
	return Value{Tag: TagNumber, NumKind: NumFloat32, payload: uint64(math.Float32bits(v))}
}

func NewFloat64(v float64) Value {
	return Value{Tag: TagNumber, NumKind: NumFloat64, payload: math.Float64bits(v)}
}

func NewObject(o Object) Value {
	return Value{Tag: TagObject, Obj: o}
}

// ---- numeric accessors ----

func (v Value) IsNumber() bool { return v.Tag == TagNumber }
func (v Value) IsNil() bool    { return v.Tag == TagNil }
func (v Value) IsBool() bool   { return v.Tag == TagBoolean }
func (v Value) IsObject() bool { return v.Tag == TagObject }

func (v Value) Bool() bool { return v.payload != 0 }

func (v Value) Int32() int32 {
	switch v.NumKind {
	case NumInt32:
		return int32(uint32(v.payload))
	case NumInt64:
		return int32(int64(v.payload))
	case NumFloat32:
		return int32(math.Float32frombits(uint32(v.payload)))
	case NumFloat64:
		return int32(math.Float64frombits(v.payload))
	}
	return 0
}

func (v Value) Int64() int64 {
	switch v.NumKind {
	case NumInt32:
		return int64(int32(uint32(v.payload)))
	case NumInt64:
		return int64(v.payload)
	case NumFloat32:
		return int64(math.Float32frombits(uint32(v.payload)))
	case NumFloat64:
		return int64(math.Float64frombits(v.payload))
	}
	return 0
}

func (v Value) Float64() float64 {
	switch v.NumKind {
	case NumInt32:
		return float64(int32(uint32(v.payload)))
	case NumInt64:
		return float64(int64(v.payload))
	case NumFloat32:
		return float64(math.Float32frombits(uint32(v.payload)))
	case NumFloat64:
		return math.Float64frombits(v.payload)
	}
	return 0
}

func (v Value) IsIntegral() bool {
	return v.NumKind == NumInt32 || v.NumKind == NumInt64
}

// Truthy implements spec §3: everything is truthy except Nil and the
// False boolean.
func (v Value) Truthy() bool {
	if v.Tag == TagNil {
		return false
	}
	if v.Tag == TagBoolean {
		return v.payload != 0
	}
	return true
}

// Equals implements == semantics: Nil and False compare equal only
// to themselves; numbers compare by numeric value across kinds;
// objects delegate to identity or structural equality per type.
func (v Value) Equals(other Value) bool {
	if v.Tag != other.Tag {
		return false
	}
	switch v.Tag {
	case TagNil:
		return true
	case TagBoolean:
		return v.payload == other.payload
	case TagNumber:
		if v.IsIntegral() && other.IsIntegral() {
			return v.Int64() == other.Int64()
		}
		return v.Float64() == other.Float64()
	case TagObject:
		return objectsEqual(v.Obj, other.Obj)
	}
	return false
}

func objectsEqual(a, b Object) bool {
	if a == b {
		return true
	}
	switch x := a.(type) {
	case *StringObj:
		if y, ok := b.(*StringObj); ok {
			return x.Value == y.Value
		}
	case *CharObj:
		if y, ok := b.(*CharObj); ok {
			return x.Value == y.Value
		}
	case *RangeObj:
		if y, ok := b.(*RangeObj); ok {
			return x.Start == y.Start && x.End == y.End
		}
	}
	return false
}

func (v Value) TypeName() string {
	switch v.Tag {
	case TagNil:
		return "Nil"
	case TagBoolean:
		return "Boolean"
	case TagNumber:
		switch v.NumKind {
		case NumInt32:
			return "Int"
		case NumInt64:
			return "Long"
		case NumFloat32:
			return "Float"
		default:
			return "Double"
		}
	case TagObject:
		return v.Obj.TypeName()
	}
	return "Unknown"
}

func (v Value) String() string {
	switch v.Tag {
	case TagNil:
		return "nil"
	case TagBoolean:
		if v.Bool() {
			return "true"
		}
		return "false"
	case TagNumber:
		switch v.NumKind {
		case NumInt32:
			return fmt.Sprintf("%d", v.Int32())
		case NumInt64:
			return fmt.Sprintf("%d", v.Int64())
		case NumFloat32, NumFloat64:
			return formatFloat(v.Float64())
		}
	case TagObject:
		return v.Obj.TypeName() + "(" + objectString(v.Obj) + ")"
	}
	return "?"
}

func formatFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func objectString(o Object) string {
	switch x := o.(type) {
	case *StringObj:
		return x.Value
	case *CharObj:
		return string(x.Value)
	case *RangeObj:
		return fmt.Sprintf("%d..%d", x.Start, x.End)
	case *ListObj:
		parts := make([]string, len(x.Items))
		for i, it := range x.Items {
			parts[i] = it.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *FunctionObj:
		return x.MangledName
	case *InstanceObj:
		return x.Class.Name
	default:
		return ""
	}
}

// ---- heap object variants (spec §3) ----

// StringObj is an immutable character sequence, interned by value
// when produced from literals or size-bounded intrinsic output.
type StringObj struct{ Value string }

func (*StringObj) TypeName() string { return "String" }

func NewString(s string) Value { return NewObject(internString(s)) }

// CharObj is a single scalar character, distinct from String.
type CharObj struct{ Value rune }

func (*CharObj) TypeName() string { return "Char" }

func NewChar(r rune) Value { return NewObject(&CharObj{Value: r}) }

// ListObj is an ordered mutable sequence with O(1) append/index.
type ListObj struct{ Items []Value }

func (*ListObj) TypeName() string { return "List" }

func NewList(items []Value) Value { return NewObject(&ListObj{Items: items}) }

// RangeObj is an inclusive numeric range [Start, End].
type RangeObj struct{ Start, End int64 }

func (*RangeObj) TypeName() string { return "Range" }

func NewRangeValue(start, end int64) Value { return NewObject(&RangeObj{Start: start, End: end}) }

// IteratorObj is a non-restartable cursor over a List or a Range.
type IteratorObj struct {
	List    *ListObj
	Rng     *RangeObj
	Index   int64
	Done    bool
}

func (*IteratorObj) TypeName() string { return "Iterator" }

func NewListIterator(l *ListObj) Value {
	return NewObject(&IteratorObj{List: l})
}

func NewRangeIterator(r *RangeObj) Value {
	return NewObject(&IteratorObj{Rng: r, Index: r.Start})
}

// Next advances the iterator. It returns (value, true) on success or
// (Nil, false) once exhausted; re-init is required to iterate again
// (spec Testable Property 6).
func (it *IteratorObj) Next() (Value, bool) {
	if it.Done {
		return Nil, false
	}
	if it.List != nil {
		if it.Index >= int64(len(it.List.Items)) {
			it.Done = true
			return Nil, false
		}
		v := it.List.Items[it.Index]
		it.Index++
		return v, true
	}
	if it.Rng != nil {
		if it.Index > it.Rng.End {
			it.Done = true
			return Nil, false
		}
		v := NewInt64(it.Index)
		it.Index++
		return v, true
	}
	it.Done = true
	return Nil, false
}

// FunctionObj is a closure: a callable produced either by `func` or
// a lambda literal, or a native intrinsic delegate.
type FunctionObj struct {
	MangledName string
	BaseName    string
	Arity       int
	ParamNames  []string
	ByRefParams []bool
	StartAddr   int
	EndAddr     int
	Scope       *Scope
	RegSlots    int
	IsLambda    bool

	Intrinsic   bool
	NativeFunc  NativeFunc
	OwnerStruct *Class
}

func (*FunctionObj) TypeName() string { return "Function" }

// NativeFunc is the signature host-registered intrinsics implement
// (spec §6 LibraryBuilder.add_function).
type NativeFunc func(vm *VM, args []Value) (Value, error)

// Class is the runtime blueprint for a user struct: the bytecode-time
// counterpart of a StructSymbol, carrying resolved method functions
// and static fields rather than unresolved token sequences.
type Class struct {
	Name            string
	FieldDefaults   map[string]Value
	FieldOrder      []string
	StaticFields    map[string]Value
	Methods         map[string]*FunctionObj // keyed by mangled name
	MethodsByArity  map[string][]*FunctionObj
	Traits          []string
}

func NewClass(name string) *Class {
	return &Class{
		Name:           name,
		FieldDefaults:  map[string]Value{},
		StaticFields:   map[string]Value{},
		Methods:        map[string]*FunctionObj{},
		MethodsByArity: map[string][]*FunctionObj{},
	}
}

func (c *Class) AddMethod(fn *FunctionObj) {
	c.Methods[fn.MangledName] = fn
	c.MethodsByArity[fn.BaseName] = append(c.MethodsByArity[fn.BaseName], fn)
}

// InstanceObj is a user struct instance.
type InstanceObj struct {
	Class  *Class
	Fields map[string]Value
}

func (*InstanceObj) TypeName() string { return "Instance" }

func NewInstance(class *Class) *InstanceObj {
	fields := make(map[string]Value, len(class.FieldDefaults))
	for k, v := range class.FieldDefaults {
		fields[k] = v
	}
	return &InstanceObj{Class: class, Fields: fields}
}

// BoundMethod is a receiver+function pair produced by a method
// reference expression (e.g. `instance.method`, used without a call).
type BoundMethodObj struct {
	Receiver Value
	Method   *FunctionObj
}

func (*BoundMethodObj) TypeName() string { return "BoundMethod" }

// ExceptionObj is a script-thrown exception: a message plus an
// optional user-struct instance payload.
type ExceptionObj struct {
	Message  string
	Instance *InstanceObj
}

func (*ExceptionObj) TypeName() string { return "Exception" }

func NewException(message string, instance *InstanceObj) Value {
	return NewObject(&ExceptionObj{Message: message, Instance: instance})
}

// WrapperObj exposes a host-provided object with a fixed method table
// and instance-field map (used by the out-of-scope built-in
// libraries to surface native handles, e.g. a StringBuilder or
// Stopwatch, to script code).
type WrapperObj struct {
	TypeTag string
	Fields  map[string]Value
	Methods map[string]NativeFunc
	Native  any
}

func (w *WrapperObj) TypeName() string { return w.TypeTag }

func NewWrapper(typeTag string, native any) *WrapperObj {
	return &WrapperObj{
		TypeTag: typeTag,
		Fields:  map[string]Value{},
		Methods: map[string]NativeFunc{},
		Native:  native,
	}
}

// ---- string interning ----

var stringInternTable = map[string]*StringObj{}

const internSizeBound = 256

func internString(s string) *StringObj {
	if len(s) > internSizeBound {
		return &StringObj{Value: s}
	}
	if existing, ok := stringInternTable[s]; ok {
		return existing
	}
	so := &StringObj{Value: s}
	stringInternTable[s] = so
	return so
}
