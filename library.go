package fluence

// library.go: LibraryBuilder, the pre-run host registration surface
// spec §6 describes alongside the Interpreter contract — add native
// functions, struct methods, global constants, and whole structs
// before the first Run.

// LibraryBuilder accumulates host-provided functions, structs, and
// constants into a Program/VM pair prior to execution.
type LibraryBuilder struct {
	prog *Program
	vm   *VM
}

// AddFunction registers a free native function callable by name from
// script code, indistinguishable at the call site from a script-
// defined function of the same name and arity.
func (lb *LibraryBuilder) AddFunction(name string, arity int, native NativeFunc, paramNames ...string) {
	fn := &FunctionObj{
		MangledName: MangleName(name, arity),
		BaseName:    name,
		Arity:       arity,
		ParamNames:  paramNames,
		Intrinsic:   true,
		NativeFunc:  native,
	}
	lb.prog.Functions[fn.MangledName] = fn
	lb.vm.RegisterIntrinsic(name, native)
}

// AddFunctionToStruct registers a native method on an existing struct
// (created via AddStruct or declared in script), resolved the same way
// a script-defined method is: by mangled name against the struct's
// method table.
func (lb *LibraryBuilder) AddFunctionToStruct(structName, name string, arity int, native NativeFunc, paramNames ...string) error {
	class, ok := lb.prog.Structs[structName]
	if !ok {
		return &RuntimeError{Kind: ErrUnknownVariable, Message: "struct " + structName + " is not defined"}
	}
	fn := &FunctionObj{
		MangledName: MangleName(name, arity),
		BaseName:    name,
		Arity:       arity,
		ParamNames:  paramNames,
		Intrinsic:   true,
		NativeFunc:  native,
		OwnerStruct: class,
	}
	class.AddMethod(fn)
	lb.vm.bumpCacheVersion()
	return nil
}

// AddGlobalConstant installs a global variable, primitives only
// (number, string, char, bool, nil — spec §6), available to script
// code without a prior `var` declaration.
func (lb *LibraryBuilder) AddGlobalConstant(name string, v Value) error {
	if v.Tag == TagObject {
		if _, ok := v.Obj.(*StringObj); !ok {
			if _, ok := v.Obj.(*CharObj); !ok {
				return &RuntimeError{Kind: ErrTypeMismatch, Message: "global constants accept only number, string, char, bool, or nil"}
			}
		}
	}
	lb.vm.SetGlobal(name, v)
	return nil
}

// AddConstantToStruct installs a static field on class, readable as
// Struct.field without an instance.
func (lb *LibraryBuilder) AddConstantToStruct(structName, field string, v Value) error {
	class, ok := lb.prog.Structs[structName]
	if !ok {
		return &RuntimeError{Kind: ErrUnknownVariable, Message: "struct " + structName + " is not defined"}
	}
	class.StaticFields[field] = v
	return nil
}

// AddStruct registers a new struct blueprint with no fields or
// methods, for a host to flesh out via AddFunctionToStruct/
// AddConstantToStruct. Returns the existing class unchanged if name is
// already a script-declared struct (so a host can extend a script
// type rather than only defining host-only ones).
func (lb *LibraryBuilder) AddStruct(name string) *Class {
	if class, ok := lb.prog.Structs[name]; ok {
		return class
	}
	class := NewClass(name)
	lb.prog.Structs[name] = class
	return class
}
