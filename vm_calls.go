package fluence

import "fmt"

// vm_calls.go: call dispatch, frame management, and fault
// construction — split out of vm.go's instruction switch the same way
// the parser splits statement/control/expression concerns across
// files (spec §5.2 Calls, §7 RuntimeError).

const maxCallDepth = 2048

// execCall resolves a plain `name(args...)` call: first against this
// site's inline cache (inline_cache.go), then the mangled function
// table, then — since a lambda literal compiles to a LoadConst of its
// own mangled name (see parseLambda in parser_expr.go) rather than a
// FunctionObj — against a variable of that name holding such a string,
// and finally against a registered intrinsic called by bare name. The
// mangled name at a plain call site never changes between calls, so
// once the function-table path resolves once, the cache stays
// monomorphic until a host-side redefinition bumps the version; the
// variable-indirection path is inherently polymorphic (the bound lambda
// can change between calls) and so never warms the cache.
func (vm *VM) execCall(name string, argc int, ins *Instruction) error {
	args := vm.popArgs(argc)
	site := vm.pc

	if fn, ok := vm.lookupCallCache(site); ok {
		return vm.dispatchFunction(fn, args, nil, site, ins)
	}

	mangled := MangleName(name, argc)
	if fn, ok := vm.prog.Functions[mangled]; ok {
		vm.fillCallCache(site, fn)
		return vm.dispatchFunction(fn, args, nil, site, ins)
	}
	if v, found := vm.lookupVariable(name); found && v.Tag == TagObject {
		if so, ok := v.Obj.(*StringObj); ok {
			if fn, ok := vm.prog.Functions[so.Value]; ok {
				return vm.dispatchFunction(fn, args, nil, site, ins)
			}
		}
	}
	if native, ok := vm.intrinsics[name]; ok {
		return vm.callNative(native, args, ins)
	}
	return vm.fault(ErrUnknownVariable, fmt.Sprintf("function %q is not defined", name), ins)
}

// dispatchFunction routes a resolved FunctionObj to its native or
// script-frame path, shared by the cached and uncached resolution
// branches of execCall/execCallMethod.
func (vm *VM) dispatchFunction(fn *FunctionObj, args []Value, self *InstanceObj, site int, ins *Instruction) error {
	if fn.Intrinsic {
		return vm.callNative(fn.NativeFunc, args, ins)
	}
	return vm.invokeFunction(fn, args, self, vm.pc+1, ins, site)
}

// execCallMethod resolves `receiver.name(args...)`: a user struct
// instance's method table, or a host-provided WrapperObj's native
// method table (spec §6 out-of-scope libraries surface wrappers this
// way).
func (vm *VM) execCallMethod(name string, argc int, ins *Instruction) error {
	args := vm.popArgs(argc)
	recv := vm.pop()
	site := vm.pc
	if recv.Tag == TagObject {
		if w, ok := recv.Obj.(*WrapperObj); ok {
			native, ok2 := w.Methods[name]
			if !ok2 {
				return vm.fault(ErrUnknownVariable, fmt.Sprintf("%s has no method %q", w.TypeTag, name), ins)
			}
			return vm.callNative(native, args, ins)
		}
	}
	if inst, ok := objectInstance(recv); ok {
		if fn, ok := vm.lookupMethodCache(site, inst.Class); ok {
			return vm.invokeFunction(fn, args, inst, vm.pc+1, ins, site)
		}
		mangled := MangleName(name, argc)
		if fn, ok := inst.Class.Methods[mangled]; ok {
			vm.fillMethodCache(site, inst.Class, fn)
			return vm.invokeFunction(fn, args, inst, vm.pc+1, ins, site)
		}
		if v, ok, err := builtinMethod(recv, name, args); ok {
			if err != nil {
				return vm.faultErr(err, ins)
			}
			vm.push(v)
			vm.pc++
			return nil
		}
		hint := ""
		if others := inst.Class.MethodsByArity[name]; len(others) > 0 {
			hint = fmt.Sprintf("%s.%s accepts %d args, got %d", inst.Class.Name, name, others[0].Arity, argc)
		}
		err := vm.fault(ErrUnknownVariable, fmt.Sprintf("method %q/%d not found on %s", name, argc, inst.Class.Name), ins)
		if re, ok := err.(*RuntimeError); ok {
			re.Hint = hint
		}
		return err
	}
	if v, ok, err := builtinMethod(recv, name, args); ok {
		if err != nil {
			return vm.faultErr(err, ins)
		}
		vm.push(v)
		vm.pc++
		return nil
	}
	return vm.fault(ErrUnknownVariable, fmt.Sprintf("%s has no method %q", recv.TypeName(), name), ins)
}

// execCallIntrinsic resolves a compiler-synthesized intrinsic call
// (currently only the f-string lowering's `to_string`).
func (vm *VM) execCallIntrinsic(name string, argc int, ins *Instruction) error {
	args := vm.popArgs(argc)
	native, ok := vm.intrinsics[name]
	if !ok {
		return vm.fault(ErrUnknownVariable, fmt.Sprintf("intrinsic %q is not defined", name), ins)
	}
	return vm.callNative(native, args, ins)
}

func (vm *VM) callNative(native NativeFunc, args []Value, ins *Instruction) error {
	result, err := native(vm, args)
	if err != nil {
		return vm.faultErr(err, ins)
	}
	vm.push(result)
	vm.pc++
	return nil
}

// invokeFunction pushes a new call frame bound by value (by-ref
// parameters are recorded on FunctionObj.ByRefParams but argument
// emission in parser_expr.go's parseArgList never tracks caller-side
// lvalues, so there is nothing to alias yet; every parameter binds by
// value until that gap closes) and jumps pc to the callee's entry. site
// is the calling instruction's address, used to hand the new frame a
// direct pointer to that call site's inline cache slot.
func (vm *VM) invokeFunction(fn *FunctionObj, args []Value, self *InstanceObj, returnAddr int, ins *Instruction, site int) error {
	if len(vm.frames) >= maxCallDepth {
		return vm.fault(ErrRecursionLimit, fmt.Sprintf("call depth exceeded %d frames", maxCallDepth), ins)
	}
	if len(args) != fn.Arity {
		return vm.fault(ErrArityMismatch, fmt.Sprintf("%s expects %d args, got %d", fn.BaseName, fn.Arity, len(args)), ins)
	}
	locals := make(map[string]Value, len(args)+1)
	if self != nil {
		locals["self"] = NewObject(self)
	}
	for i, pname := range fn.ParamNames {
		locals[pname] = args[i]
	}
	vm.frames = append(vm.frames, &Frame{fn: fn, locals: locals, returnAddr: returnAddr, self: self, cache: vm.cacheAt(site)})
	vm.pc = fn.StartAddr
	return nil
}

func (vm *VM) execReturn() error {
	if len(vm.frames) <= 1 {
		vm.status = StatusCompleted
		vm.pc = len(vm.prog.Code)
		return nil
	}
	fr := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.pc = fr.returnAddr
	return nil
}

func (vm *VM) popArgs(argc int) []Value {
	args := make([]Value, argc)
	for i := argc - 1; i >= 0; i-- {
		args[i] = vm.pop()
	}
	return args
}

func (vm *VM) lookupVariable(name string) (Value, bool) {
	if v, ok := vm.frame().locals[name]; ok {
		return v, true
	}
	if idx, ok := vm.globalIdx[name]; ok {
		return vm.globalValues[idx], true
	}
	return Nil, false
}

// raise implements `throw expr`: unwind to the nearest OpTryEnter
// handler if one is active, or surface a ScriptException RuntimeError
// otherwise.
func (vm *VM) raise(v Value, ins *Instruction) error {
	if len(vm.tries) > 0 {
		h := vm.tries[len(vm.tries)-1]
		vm.tries = vm.tries[:len(vm.tries)-1]
		vm.stack = vm.stack[:h.stackDepth]
		vm.frames = vm.frames[:h.frameDepth]
		vm.push(v)
		vm.pc = h.catchAddr
		return nil
	}
	msg := v.String()
	if v.Tag == TagObject {
		if exc, ok := v.Obj.(*ExceptionObj); ok {
			msg = exc.Message
		}
	}
	return vm.fault(ErrScriptException, msg, ins)
}

// fault builds a RuntimeError snapshotting the failing instruction,
// the live operand stack, the current frame's locals, and the call
// stack trace (spec §7), then records it as the VM's terminal error.
func (vm *VM) fault(kind RuntimeErrorKind, message string, ins *Instruction) error {
	err := &RuntimeError{Kind: kind, Message: message}
	if ins != nil {
		loc := Location{Line: ins.Line, Column: ins.Column, File: ins.File}
		err.Span = NewSpan(loc, loc)
		err.LastInstruction = formatInstruction(vm.pc, *ins)
	}
	err.CallStack = vm.buildCallStack()
	for _, v := range vm.frame().locals {
		err.Locals = append(err.Locals, v)
	}
	err.OperandStack = append([]Value(nil), vm.stack...)
	vm.status = StatusFaulted
	vm.err = err
	return err
}

// faultErr adapts an error returned by a helper (indexValue, a native
// intrinsic, ...) into the VM's fault path, enriching it with context
// if it is already a RuntimeError or wrapping it as NonSpecific
// otherwise.
func (vm *VM) faultErr(err error, ins *Instruction) error {
	if re, ok := err.(*RuntimeError); ok {
		if re.LastInstruction == "" && ins != nil {
			re.LastInstruction = formatInstruction(vm.pc, *ins)
		}
		if re.CallStack == nil {
			re.CallStack = vm.buildCallStack()
		}
		vm.status = StatusFaulted
		vm.err = re
		return re
	}
	return vm.fault(ErrNonSpecific, err.Error(), ins)
}

func (vm *VM) buildCallStack() []StackFrame {
	frames := make([]StackFrame, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		fr := vm.frames[i]
		name := "<script>"
		if fr.fn != nil {
			name = fr.fn.BaseName
		}
		addr := fr.returnAddr - 1
		if addr < 0 || addr >= len(vm.prog.Code) {
			addr = vm.pc
		}
		ins := vm.prog.Code[addr]
		frames = append(frames, StackFrame{FunctionName: name, File: ins.File, Line: ins.Line, Column: ins.Column})
	}
	return frames
}
