package fluence

import "fmt"

// vm_intrinsics.go: the built-in free functions and primitive-type
// method table the VM ships with before any host LibraryBuilder call
// (spec §6 register_intrinsic, §4 f-string lowering's to_string).

// registerBuiltinIntrinsics installs the small set of free functions
// every program can call by bare name, without the host registering
// anything: to_string (required by f-string lowering), len, type_of,
// and print/println for the S10-style scripted output scenario.
func registerBuiltinIntrinsics(vm *VM) {
	vm.RegisterIntrinsic("to_string", func(_ *VM, args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, fmt.Errorf("to_string expects 1 arg, got %d", len(args))
		}
		return NewString(args[0].String()), nil
	})
	vm.RegisterIntrinsic("type_of", func(_ *VM, args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, fmt.Errorf("type_of expects 1 arg, got %d", len(args))
		}
		return NewString(args[0].TypeName()), nil
	})
	vm.RegisterIntrinsic("len", func(_ *VM, args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, fmt.Errorf("len expects 1 arg, got %d", len(args))
		}
		n, err := lengthOf(args[0])
		if err != nil {
			return Nil, err
		}
		return NewInt64(n), nil
	})
	vm.RegisterIntrinsic("print", func(_ *VM, args []Value) (Value, error) {
		for _, a := range args {
			fmt.Print(a.String())
		}
		return Nil, nil
	})
	vm.RegisterIntrinsic("println", func(_ *VM, args []Value) (Value, error) {
		for _, a := range args {
			fmt.Print(a.String())
		}
		fmt.Println()
		return Nil, nil
	})
}

func lengthOf(v Value) (int64, error) {
	if v.Tag != TagObject {
		return 0, &RuntimeError{Kind: ErrTypeMismatch, Message: fmt.Sprintf("%s has no length", v.TypeName())}
	}
	switch o := v.Obj.(type) {
	case *ListObj:
		return int64(len(o.Items)), nil
	case *StringObj:
		return int64(len([]rune(o.Value))), nil
	case *RangeObj:
		return o.End - o.Start + 1, nil
	}
	return 0, &RuntimeError{Kind: ErrTypeMismatch, Message: fmt.Sprintf("%s has no length", v.TypeName())}
}

// builtinMethod dispatches the intrinsic method table of List and
// String receivers (spec §3 Collection semantics, §5 CallMethod's
// third dispatch tier). The bool result reports whether name was
// recognized for recv's type at all, distinct from a call that failed
// (err != nil) once recognized.
func builtinMethod(recv Value, name string, args []Value) (Value, bool, error) {
	if recv.Tag != TagObject {
		return Nil, false, nil
	}
	switch o := recv.Obj.(type) {
	case *ListObj:
		return listMethod(o, name, args)
	case *StringObj:
		return stringMethod(o, name, args)
	case *RangeObj:
		return rangeMethod(o, name, args)
	}
	return Nil, false, nil
}

func listMethod(l *ListObj, name string, args []Value) (Value, bool, error) {
	switch name {
	case "len":
		return NewInt64(int64(len(l.Items))), true, nil
	case "push":
		l.Items = append(l.Items, args...)
		return Nil, true, nil
	case "pop":
		if len(l.Items) == 0 {
			return Nil, true, &RuntimeError{Kind: ErrIndexOutOfRange, Message: "pop from empty list"}
		}
		v := l.Items[len(l.Items)-1]
		l.Items = l.Items[:len(l.Items)-1]
		return v, true, nil
	case "element_at":
		if len(args) != 1 || !args[0].IsIntegral() {
			return Nil, true, &RuntimeError{Kind: ErrTypeMismatch, Message: "element_at expects an integer index"}
		}
		i := args[0].Int64()
		if i < 0 || i >= int64(len(l.Items)) {
			return Nil, true, nil
		}
		return l.Items[i], true, nil
	}
	return Nil, false, nil
}

func stringMethod(s *StringObj, name string, args []Value) (Value, bool, error) {
	runes := []rune(s.Value)
	switch name {
	case "len":
		return NewInt64(int64(len(runes))), true, nil
	case "element_at":
		if len(args) != 1 || !args[0].IsIntegral() {
			return Nil, true, &RuntimeError{Kind: ErrTypeMismatch, Message: "element_at expects an integer index"}
		}
		i := args[0].Int64()
		if i < 0 || i >= int64(len(runes)) {
			return Nil, true, nil
		}
		return NewChar(runes[i]), true, nil
	case "concat":
		if len(args) != 1 {
			return Nil, true, &RuntimeError{Kind: ErrArityMismatch, Message: "concat expects 1 arg"}
		}
		text := args[0].String()
		if args[0].Tag == TagObject {
			text = objectString(args[0].Obj)
		}
		return NewString(s.Value + text), true, nil
	}
	return Nil, false, nil
}

func rangeMethod(r *RangeObj, name string, args []Value) (Value, bool, error) {
	switch name {
	case "len":
		if r.Start > r.End {
			return NewInt64(0), true, nil
		}
		return NewInt64(r.End - r.Start + 1), true, nil
	case "element_at":
		if len(args) != 1 || !args[0].IsIntegral() {
			return Nil, true, &RuntimeError{Kind: ErrTypeMismatch, Message: "element_at expects an integer index"}
		}
		i := args[0].Int64()
		v := r.Start + i
		if i < 0 || v > r.End {
			return Nil, true, nil
		}
		return NewInt64(v), true, nil
	}
	return Nil, false, nil
}
