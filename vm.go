package fluence

import (
	"fmt"
	"math"
	"time"
)

// vm.go: the bytecode interpreter (spec §5). Grounded on the teacher's
// split between a static Program and a mutable execution cursor
// (grammar_parser.go's Backtrack/State pairing, generalized from a PEG
// recognizer's input cursor to a full operand-stack/call-frame
// machine). Dispatch is a flat switch over a single pc rather than a
// tree of recursive Go calls, so OpCall/OpReturn can move pc directly
// and unwind via the frame stack instead of the Go call stack — this
// keeps recursion depth in the scripted language decoupled from Go's
// own stack.

// VMStatus is the machine's coarse run state (spec §5.1).
type VMStatus int

const (
	StatusReady VMStatus = iota
	StatusRunning
	StatusSuspended
	StatusCompleted
	StatusFaulted
	StatusStopped
)

func (s VMStatus) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusRunning:
		return "Running"
	case StatusSuspended:
		return "Suspended"
	case StatusCompleted:
		return "Completed"
	case StatusFaulted:
		return "Faulted"
	case StatusStopped:
		return "Stopped"
	}
	return "Unknown"
}

// Frame is one call-frame: the callee FunctionObj (nil for the
// top-level script frame), its name-keyed locals, and the pc to
// resume at in the caller once this frame returns. Locals are kept in
// a map rather than a numeric register file — a deliberate
// simplification over true register allocation, since the parser
// never assigns slot indices to locals (see resolveNonGlobal in
// parser_expr.go); a name lookup per load/store is the price paid for
// that simplicity.
type Frame struct {
	fn         *FunctionObj
	locals     map[string]Value
	returnAddr int
	self       *InstanceObj

	// cache is the inline-cache slot of the Call/CallMethod site that
	// created this frame (inline_cache.go), carried on the frame so any
	// code inspecting the active frame can see whether its invocation
	// came through a warm call site without re-deriving the site's pc.
	cache *inlineCache
}

// tryHandler records a TryEnter's catch target and the stack/frame
// depth to unwind to when a thrown exception is caught there.
type tryHandler struct {
	catchAddr  int
	stackDepth int
	frameDepth int
}

// VM executes one linked Program. It is re-entrant across Step calls:
// Run drives it to completion or suspension in one call, Step executes
// a bounded number of instructions and returns control to the host
// (spec §6 Interpreter.step).
type VM struct {
	prog *Program
	cfg  *Config

	pc     int
	stack  []Value
	frames []*Frame
	tries  []tryHandler

	globalNames  []string
	globalIdx    map[string]int
	globalValues []Value

	intrinsics map[string]NativeFunc

	caches       []inlineCache
	cacheVersion uint64

	status VMStatus
	err    error

	startedAt time.Time
	deadline  time.Time
	hasDeadline bool

	stopRequested bool
	mainCalled    bool
}

// NewVM builds a VM ready to execute prog's top-level code at address 0
// under a synthetic base frame.
func NewVM(prog *Program, cfg *Config) *VM {
	vm := &VM{
		prog:       prog,
		cfg:        cfg,
		globalIdx:  map[string]int{},
		intrinsics: map[string]NativeFunc{},
		status:     StatusReady,
	}
	vm.frames = append(vm.frames, &Frame{locals: map[string]Value{}})
	registerBuiltinIntrinsics(vm)
	return vm
}

// RegisterIntrinsic installs a host function callable via
// OpCallIntrinsic or, for arity-0 calls with no matching script
// function, as a plain OpCall fallback (spec §6 LibraryBuilder).
func (vm *VM) RegisterIntrinsic(name string, fn NativeFunc) {
	vm.intrinsics[name] = fn
	vm.bumpCacheVersion()
}

func (vm *VM) frame() *Frame { return vm.frames[len(vm.frames)-1] }

// getSlot/setSlot resolve a synthetic plumbing slot (the "$tempname"
// idiom parser_expr.go uses for list/struct-init accumulators, and
// for-loop iteration variables) the same way the parser's
// emitStore/emitLoad decided Local vs Global at compile time: plain
// top-level code (frame depth 1, no function activation) stores these
// through the global table exactly as it does for any other top-level
// name; anything executing inside a call frame keeps them as
// frame-local, matching resolveNonGlobal's scope.Parent walk.
func (vm *VM) getSlot(name string) (Value, bool) {
	if len(vm.frames) == 1 {
		idx, ok := vm.globalIdx[name]
		if !ok {
			return Nil, false
		}
		return vm.globalValues[idx], true
	}
	v, ok := vm.frame().locals[name]
	return v, ok
}

func (vm *VM) setSlot(name string, v Value) {
	if len(vm.frames) == 1 {
		vm.SetGlobal(name, v)
		return
	}
	vm.frame().locals[name] = v
}

func (vm *VM) push(v Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() Value {
	n := len(vm.stack)
	v := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return v
}

func (vm *VM) peek() Value { return vm.stack[len(vm.stack)-1] }

// GetGlobal/SetGlobal implement the embedding API's direct global
// access (spec §6), keeping Program.Globals/GlobalIdx in sync so
// Disassemble and host tooling see the same slot table the VM uses.
func (vm *VM) GetGlobal(name string) (Value, bool) {
	idx, ok := vm.globalIdx[name]
	if !ok {
		return Nil, false
	}
	return vm.globalValues[idx], true
}

func (vm *VM) SetGlobal(name string, v Value) {
	idx, ok := vm.globalIdx[name]
	if !ok {
		idx = len(vm.globalNames)
		vm.globalNames = append(vm.globalNames, name)
		vm.globalIdx[name] = idx
		vm.globalValues = append(vm.globalValues, Nil)
		vm.prog.DeclareGlobal(name)
	}
	vm.globalValues[idx] = v
}

// RequestStop asks the running VM to halt at the next instruction
// boundary with ErrStopped, usable from another goroutine since it
// only sets a flag the dispatch loop polls.
func (vm *VM) RequestStop() { vm.stopRequested = true }

// Status reports the machine's current coarse run state.
func (vm *VM) Status() VMStatus { return vm.status }

// RunUntilDone drives the VM to completion, fault, or an explicit stop
// request, applying Config.DefaultTimeout if one is set.
func (vm *VM) RunUntilDone() error {
	if vm.cfg.DefaultTimeout() > 0 {
		vm.startedAt = time.Now()
		vm.deadline = vm.startedAt.Add(vm.cfg.DefaultTimeout())
		vm.hasDeadline = true
	}
	vm.status = StatusRunning
	for vm.status == StatusRunning {
		if err := vm.step(); err != nil {
			vm.status = StatusFaulted
			vm.err = err
			return err
		}
	}
	return vm.err
}

// Step executes up to n instructions (or until the program halts,
// faults, or suspends), returning control to the host in between —
// the primitive the embedding API's step() builds on (spec §6).
func (vm *VM) Step(n int) error {
	if vm.status == StatusReady {
		vm.status = StatusRunning
	}
	for i := 0; i < n && vm.status == StatusRunning; i++ {
		if err := vm.step(); err != nil {
			vm.status = StatusFaulted
			vm.err = err
			return err
		}
	}
	return nil
}

func timeoutExpired(vm *VM) bool {
	return vm.hasDeadline && time.Now().After(vm.deadline)
}

// step executes exactly one instruction, advancing pc (branches set
// pc explicitly and must not fall through to the generic pc++).
func (vm *VM) step() error {
	if vm.stopRequested {
		vm.status = StatusStopped
		return vm.fault(ErrStopped, "execution stopped by host", nil)
	}
	if timeoutExpired(vm) {
		return vm.fault(ErrTimeout, "execution exceeded configured timeout", nil)
	}
	if vm.pc < 0 || vm.pc >= len(vm.prog.Code) {
		vm.status = StatusFaulted
		return vm.fault(ErrNonSpecific, "program counter ran past the end of the instruction stream", nil)
	}
	ins := vm.prog.Code[vm.pc]

	switch ins.Opcode {
	case OpNop, OpSectionGlobal:
		vm.pc++

	case OpHalt:
		if !vm.mainCalled {
			vm.mainCalled = true
			if fn, ok := vm.prog.Functions[MangleName("Main", 0)]; ok && !fn.Intrinsic {
				return vm.invokeFunction(fn, nil, nil, vm.pc, &ins, vm.pc)
			}
		}
		vm.status = StatusCompleted
		vm.pc++

	case OpLoadConst:
		vm.push(ins.Lhs.(Value))
		vm.pc++

	case OpLoadLocal:
		name := ins.Lhs.(string)
		v, ok := vm.frame().locals[name]
		if !ok {
			return vm.fault(ErrUnknownVariable, fmt.Sprintf("local %q is not defined", name), &ins)
		}
		vm.push(v)
		vm.pc++

	case OpStoreLocal:
		vm.frame().locals[ins.Lhs.(string)] = vm.pop()
		vm.pc++

	case OpLoadGlobal:
		name := ins.Lhs.(string)
		idx, ok := vm.globalIdx[name]
		if !ok {
			return vm.fault(ErrUnknownVariable, fmt.Sprintf("global %q is not defined", name), &ins)
		}
		vm.push(vm.globalValues[idx])
		vm.pc++

	case OpStoreGlobal:
		name := ins.Lhs.(string)
		v := vm.pop()
		idx, ok := vm.globalIdx[name]
		if !ok {
			idx = len(vm.globalNames)
			vm.globalNames = append(vm.globalNames, name)
			vm.globalIdx[name] = idx
			vm.globalValues = append(vm.globalValues, Nil)
			vm.prog.DeclareGlobal(name)
		}
		vm.globalValues[idx] = v
		vm.pc++

	case OpLoadField:
		field := ins.Lhs.(string)
		recv := vm.pop()
		inst, ok := objectInstance(recv)
		if !ok {
			return vm.fault(ErrTypeMismatch, fmt.Sprintf("%s has no field %q", recv.TypeName(), field), &ins)
		}
		vm.touchFieldCache(vm.pc, inst.Class)
		v, ok := inst.Fields[field]
		if !ok {
			return vm.fault(ErrTypeMismatch, fmt.Sprintf("%s has no field %q", inst.Class.Name, field), &ins)
		}
		vm.push(v)
		vm.pc++

	case OpStoreField:
		slot := ins.Lhs.(string)
		field := ins.Rhs.(string)
		v := vm.pop()
		inst, ok := vm.getSlot(slot)
		if !ok {
			return vm.fault(ErrUnknownVariable, fmt.Sprintf("local %q is not defined", slot), &ins)
		}
		target, ok := objectInstance(inst)
		if !ok {
			return vm.fault(ErrTypeMismatch, fmt.Sprintf("%s is not a struct instance", inst.TypeName()), &ins)
		}
		vm.touchFieldCache(vm.pc, target.Class)
		target.Fields[field] = v
		vm.pc++

	case OpLoadIndex:
		idx := vm.pop()
		recv := vm.pop()
		v, err := indexValue(recv, idx)
		if err != nil {
			return vm.faultErr(err, &ins)
		}
		vm.push(v)
		vm.pc++

	case OpStoreIndex:
		val := vm.pop()
		idx := vm.pop()
		recv := vm.pop()
		if err := storeIndexValue(recv, idx, val); err != nil {
			return vm.faultErr(err, &ins)
		}
		vm.pc++

	case OpMove:
		vm.setSlot(ins.Lhs.(string), vm.peek())
		vm.pc++

	case OpNilSlot:
		vm.setSlot(ins.Lhs.(string), Nil)
		vm.pc++

	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow:
		if err := vm.binaryArith(ins.Opcode, &ins); err != nil {
			return err
		}

	case OpNeg:
		v := vm.pop()
		if !v.IsNumber() {
			return vm.fault(ErrTypeMismatch, fmt.Sprintf("cannot negate %s", v.TypeName()), &ins)
		}
		vm.push(negateNumber(v))
		vm.pc++

	case OpInc:
		v := vm.pop()
		vm.push(addNumbers(v, NewInt32(1)))
		vm.pc++

	case OpDec:
		v := vm.pop()
		vm.push(subNumbers(v, NewInt32(1)))
		vm.pc++

	case OpBitAnd, OpBitOr, OpBitXor, OpShl, OpShr:
		if err := vm.binaryBitwise(ins.Opcode, &ins); err != nil {
			return err
		}

	case OpBitNot:
		v := vm.pop()
		if !v.IsIntegral() {
			return vm.fault(ErrTypeMismatch, fmt.Sprintf("cannot apply ~ to %s", v.TypeName()), &ins)
		}
		vm.push(NewInt64(^v.Int64()))
		vm.pc++

	case OpEq:
		b, a := vm.pop(), vm.pop()
		vm.push(NewBool(a.Equals(b)))
		vm.pc++

	case OpNeq:
		b, a := vm.pop(), vm.pop()
		vm.push(NewBool(!a.Equals(b)))
		vm.pc++

	case OpLt, OpLe, OpGt, OpGe:
		if err := vm.compareOrdered(ins.Opcode, &ins); err != nil {
			return err
		}

	case OpAnd:
		b, a := vm.pop(), vm.pop()
		vm.push(NewBool(a.Truthy() && b.Truthy()))
		vm.pc++

	case OpOr:
		b, a := vm.pop(), vm.pop()
		vm.push(NewBool(a.Truthy() || b.Truthy()))
		vm.pc++

	case OpNot:
		vm.push(NewBool(!vm.pop().Truthy()))
		vm.pc++

	case OpTruthy:
		vm.push(NewBool(vm.pop().Truthy()))
		vm.pc++

	case OpJump:
		vm.pc = ins.Lhs.(int)

	case OpJumpIfFalse:
		if !vm.pop().Truthy() {
			vm.pc = ins.Lhs.(int)
		} else {
			vm.pc++
		}

	case OpJumpIfTrue:
		if vm.pop().Truthy() {
			vm.pc = ins.Lhs.(int)
		} else {
			vm.pc++
		}

	case OpJumpIfNil:
		if vm.peek().IsNil() {
			vm.pop()
			vm.pc = ins.Lhs.(int)
		} else {
			vm.pc++
		}

	case OpJumpIfNotNil:
		if !vm.peek().IsNil() {
			vm.pc++
		} else {
			vm.pop()
			vm.pc = ins.Lhs.(int)
		}

	case OpBranchCmp:
		b, a := vm.pop(), vm.pop()
		if cmpMatches(ins.Lhs.(CmpKind), a, b) {
			vm.pc++
		} else {
			vm.pc = ins.Rhs.(int)
		}

	case OpCall:
		if err := vm.execCall(ins.Lhs.(string), ins.Rhs.(int), &ins); err != nil {
			return err
		}

	case OpCallMethod:
		if err := vm.execCallMethod(ins.Lhs.(string), ins.Rhs.(int), &ins); err != nil {
			return err
		}

	case OpCallIntrinsic:
		if err := vm.execCallIntrinsic(ins.Lhs.(string), ins.Rhs.(int), &ins); err != nil {
			return err
		}

	case OpTailCall:
		if err := vm.execCall(ins.Lhs.(string), ins.Rhs.(int), &ins); err != nil {
			return err
		}

	case OpReturn:
		if err := vm.execReturn(); err != nil {
			return err
		}

	case OpEnterFrame, OpLeaveFrame:
		// Parameter binding happens at the Call site directly into the
		// new frame's locals map; these remain as address markers so
		// Disassemble and FunctionObj.StartAddr/EndAddr line up with
		// what compileFunctionBody recorded.
		vm.pc++

	case OpNewList:
		vm.push(NewList(nil))
		vm.pc++

	case OpListPush:
		v := vm.pop()
		slot := ins.Lhs.(string)
		listVal, ok := vm.getSlot(slot)
		if !ok {
			return vm.fault(ErrUnknownVariable, fmt.Sprintf("local %q is not defined", slot), &ins)
		}
		lst, ok := listVal.Obj.(*ListObj)
		if !ok {
			return vm.fault(ErrTypeMismatch, fmt.Sprintf("%s is not a List", listVal.TypeName()), &ins)
		}
		lst.Items = append(lst.Items, v)
		vm.pc++

	case OpNewRange:
		end, start := vm.pop(), vm.pop()
		if !start.IsIntegral() || !end.IsIntegral() {
			return vm.fault(ErrTypeMismatch, "range bounds must be integers", &ins)
		}
		vm.push(NewRangeValue(start.Int64(), end.Int64()))
		vm.pc++

	case OpNewInstance:
		name := ins.Lhs.(string)
		class, ok := vm.prog.Structs[name]
		if !ok {
			return vm.fault(ErrUnknownVariable, fmt.Sprintf("struct %q is not defined", name), &ins)
		}
		vm.push(NewObject(NewInstance(class)))
		vm.pc++

	case OpNewIterator:
		slot := ins.Lhs.(string)
		src := vm.pop()
		iter, err := newIteratorFor(src)
		if err != nil {
			return vm.faultErr(err, &ins)
		}
		vm.setSlot(slot, iter)
		vm.pc++

	case OpIteratorNext:
		iterSlot := ins.Lhs.(string)
		destName := ins.Rhs.(string)
		endAddr := ins.Rhs2.(int)
		iterVal, ok := vm.getSlot(iterSlot)
		if !ok {
			return vm.fault(ErrUnknownVariable, fmt.Sprintf("local %q is not defined", iterSlot), &ins)
		}
		it, ok := iterVal.Obj.(*IteratorObj)
		if !ok {
			return vm.fault(ErrTypeMismatch, fmt.Sprintf("%s is not an Iterator", iterVal.TypeName()), &ins)
		}
		v, more := it.Next()
		if !more {
			vm.pc = endAddr
		} else {
			vm.setSlot(destName, v)
			vm.pc++
		}

	case OpBindMethod:
		name := ins.Lhs.(string)
		recv := vm.pop()
		inst, ok := objectInstance(recv)
		if !ok {
			return vm.fault(ErrTypeMismatch, fmt.Sprintf("%s has no method %q", recv.TypeName(), name), &ins)
		}
		fn := lookupMethodByBaseName(inst.Class, name)
		if fn == nil {
			return vm.fault(ErrUnknownVariable, fmt.Sprintf("%s has no method %q", inst.Class.Name, name), &ins)
		}
		vm.push(NewObject(&BoundMethodObj{Receiver: recv, Method: fn}))
		vm.pc++

	case OpAddIntConst:
		v := vm.pop()
		vm.push(addNumbers(v, ins.Lhs.(Value)))
		vm.pc++

	case OpMulPow2Shift:
		v := vm.pop()
		if v.IsIntegral() && v.Int64() >= 0 {
			vm.push(NewInt64(v.Int64() << uint(ins.Lhs.(int))))
		} else {
			vm.push(mulNumbers(v, NewInt64(int64(1)<<uint(ins.Lhs.(int)))))
		}
		vm.pc++

	case OpDivPow2Shift:
		v := vm.pop()
		if v.IsIntegral() && v.Int64() >= 0 {
			vm.push(NewInt64(v.Int64() >> uint(ins.Lhs.(int))))
		} else {
			vm.push(divNumbers(v, NewInt64(int64(1)<<uint(ins.Lhs.(int)))))
		}
		vm.pc++

	case OpModPow2Mask:
		v := vm.pop()
		if v.IsIntegral() && v.Int64() >= 0 {
			vm.push(NewInt64(v.Int64() & ins.Lhs.(int64)))
		} else {
			vm.push(modNumbers(v, NewInt64(ins.Lhs.(int64)+1)))
		}
		vm.pc++

	case OpEqConstBranch:
		v := vm.pop()
		if v.Equals(ins.Lhs.(Value)) {
			vm.pc++
		} else {
			vm.pc = ins.Rhs.(int)
		}

	case OpLoadLocal0, OpLoadLocal1, OpLoadLocal2, OpLoadLocal3:
		name := ins.Lhs.(string)
		v, ok := vm.frame().locals[name]
		if !ok {
			return vm.fault(ErrUnknownVariable, fmt.Sprintf("local %q is not defined", name), &ins)
		}
		vm.push(v)
		vm.pc++

	case OpIncLocal:
		name := ins.Lhs.(string)
		cur, ok := vm.frame().locals[name]
		if !ok {
			return vm.fault(ErrUnknownVariable, fmt.Sprintf("local %q is not defined", name), &ins)
		}
		n, _ := ins.Rhs.(int64)
		vm.frame().locals[name] = addNumbers(cur, NewInt64(n))
		vm.pc++

	case OpThrow:
		v := vm.pop()
		if err := vm.raise(v, &ins); err != nil {
			return err
		}

	case OpTryEnter:
		vm.tries = append(vm.tries, tryHandler{
			catchAddr:  ins.Lhs.(int),
			stackDepth: len(vm.stack),
			frameDepth: len(vm.frames),
		})
		vm.pc++

	case OpTryLeave:
		if len(vm.tries) > 0 {
			vm.tries = vm.tries[:len(vm.tries)-1]
		}
		vm.pc++

	default:
		return vm.fault(ErrNonSpecific, fmt.Sprintf("unimplemented opcode %s", ins.Opcode), &ins)
	}
	return nil
}

// binaryArith pops (b, a) and pushes a<op>b, widening per spec §3's
// numeric promotion rule: Int32 < Int64 < Float32 < Float64, the
// result takes the wider operand's kind.
func (vm *VM) binaryArith(op Opcode, ins *Instruction) error {
	b, a := vm.pop(), vm.pop()
	if op == OpAdd && a.Tag == TagObject && b.Tag == TagObject {
		as, aok := a.Obj.(*StringObj)
		bs, bok := b.Obj.(*StringObj)
		if aok && bok {
			vm.push(NewString(as.Value + bs.Value))
			vm.pc++
			return nil
		}
	}
	if !a.IsNumber() || !b.IsNumber() {
		return vm.fault(ErrTypeMismatch, fmt.Sprintf("cannot apply %s to %s and %s", op, a.TypeName(), b.TypeName()), ins)
	}
	switch op {
	case OpAdd:
		vm.push(addNumbers(a, b))
	case OpSub:
		vm.push(subNumbers(a, b))
	case OpMul:
		vm.push(mulNumbers(a, b))
	case OpDiv:
		if b.IsIntegral() && b.Int64() == 0 {
			return vm.fault(ErrDivisionByZero, "division by zero", ins)
		}
		vm.push(divNumbers(a, b))
	case OpMod:
		if b.IsIntegral() && b.Int64() == 0 {
			return vm.fault(ErrDivisionByZero, "division by zero", ins)
		}
		vm.push(modNumbers(a, b))
	case OpPow:
		vm.push(powNumbers(a, b))
	}
	vm.pc++
	return nil
}

func (vm *VM) binaryBitwise(op Opcode, ins *Instruction) error {
	b, a := vm.pop(), vm.pop()
	if !a.IsIntegral() || !b.IsIntegral() {
		return vm.fault(ErrTypeMismatch, fmt.Sprintf("cannot apply %s to %s and %s", op, a.TypeName(), b.TypeName()), ins)
	}
	switch op {
	case OpBitAnd:
		vm.push(NewInt64(a.Int64() & b.Int64()))
	case OpBitOr:
		vm.push(NewInt64(a.Int64() | b.Int64()))
	case OpBitXor:
		vm.push(NewInt64(a.Int64() ^ b.Int64()))
	case OpShl:
		vm.push(NewInt64(a.Int64() << uint(b.Int64())))
	case OpShr:
		vm.push(NewInt64(a.Int64() >> uint(b.Int64())))
	}
	vm.pc++
	return nil
}

func (vm *VM) compareOrdered(op Opcode, ins *Instruction) error {
	b, a := vm.pop(), vm.pop()
	if a.IsNumber() && b.IsNumber() {
		vm.push(NewBool(cmpKindForOp(op, a.Float64(), b.Float64())))
		vm.pc++
		return nil
	}
	as, aok := objectString(a.Obj), a.Tag == TagObject
	bs, bok := objectString(b.Obj), b.Tag == TagObject
	if aok && bok {
		vm.push(NewBool(cmpKindForOp(op, stringCompareFloat(as, bs), 0)))
		vm.pc++
		return nil
	}
	return vm.fault(ErrTypeMismatch, fmt.Sprintf("cannot compare %s and %s", a.TypeName(), b.TypeName()), ins)
}

func stringCompareFloat(a, b string) float64 {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func cmpKindForOp(op Opcode, a, b float64) bool {
	switch op {
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	}
	return false
}

func cmpMatches(kind CmpKind, a, b Value) bool {
	switch kind {
	case CmpEq:
		return a.Equals(b)
	case CmpNeq:
		return !a.Equals(b)
	case CmpLt:
		return a.Float64() < b.Float64()
	case CmpLe:
		return a.Float64() <= b.Float64()
	case CmpGt:
		return a.Float64() > b.Float64()
	case CmpGe:
		return a.Float64() >= b.Float64()
	}
	return false
}

func objectInstance(v Value) (*InstanceObj, bool) {
	if v.Tag != TagObject {
		return nil, false
	}
	inst, ok := v.Obj.(*InstanceObj)
	return inst, ok
}

func lookupMethodByBaseName(class *Class, baseName string) *FunctionObj {
	candidates := class.MethodsByArity[baseName]
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

func newIteratorFor(src Value) (Value, error) {
	if src.Tag != TagObject {
		return Nil, &RuntimeError{Kind: ErrTypeMismatch, Message: fmt.Sprintf("%s is not iterable", src.TypeName())}
	}
	switch o := src.Obj.(type) {
	case *ListObj:
		return NewListIterator(o), nil
	case *RangeObj:
		if o.Start > o.End {
			return Nil, &RuntimeError{Kind: ErrTypeMismatch, Message: fmt.Sprintf("cannot iterate descending range %d..%d", o.Start, o.End)}
		}
		return NewRangeIterator(o), nil
	}
	return Nil, &RuntimeError{Kind: ErrTypeMismatch, Message: fmt.Sprintf("%s is not iterable", src.TypeName())}
}

func indexValue(recv, idx Value) (Value, error) {
	if recv.Tag != TagObject {
		return Nil, &RuntimeError{Kind: ErrTypeMismatch, Message: fmt.Sprintf("%s is not indexable", recv.TypeName())}
	}
	switch o := recv.Obj.(type) {
	case *ListObj:
		if !idx.IsIntegral() {
			return Nil, &RuntimeError{Kind: ErrTypeMismatch, Message: "list index must be an integer"}
		}
		i := idx.Int64()
		if i < 0 || i >= int64(len(o.Items)) {
			return Nil, &RuntimeError{Kind: ErrIndexOutOfRange, Message: fmt.Sprintf("index %d out of range for list of length %d", i, len(o.Items))}
		}
		return o.Items[i], nil
	case *StringObj:
		if !idx.IsIntegral() {
			return Nil, &RuntimeError{Kind: ErrTypeMismatch, Message: "string index must be an integer"}
		}
		runes := []rune(o.Value)
		i := idx.Int64()
		if i < 0 || i >= int64(len(runes)) {
			return Nil, &RuntimeError{Kind: ErrIndexOutOfRange, Message: fmt.Sprintf("index %d out of range for string of length %d", i, len(runes))}
		}
		return NewChar(runes[i]), nil
	}
	return Nil, &RuntimeError{Kind: ErrTypeMismatch, Message: fmt.Sprintf("%s is not indexable", recv.Obj.TypeName())}
}

func storeIndexValue(recv, idx, val Value) error {
	if recv.Tag != TagObject {
		return &RuntimeError{Kind: ErrTypeMismatch, Message: fmt.Sprintf("%s is not indexable", recv.TypeName())}
	}
	lst, ok := recv.Obj.(*ListObj)
	if !ok {
		return &RuntimeError{Kind: ErrTypeMismatch, Message: fmt.Sprintf("%s does not support index assignment", recv.Obj.TypeName())}
	}
	if !idx.IsIntegral() {
		return &RuntimeError{Kind: ErrTypeMismatch, Message: "list index must be an integer"}
	}
	i := idx.Int64()
	if i < 0 || i >= int64(len(lst.Items)) {
		return &RuntimeError{Kind: ErrIndexOutOfRange, Message: fmt.Sprintf("index %d out of range for list of length %d", i, len(lst.Items))}
	}
	lst.Items[i] = val
	return nil
}

// ---- numeric promotion (spec §3) ----

func widerKind(a, b NumberKind) NumberKind {
	if a < b {
		return b
	}
	return a
}

func addNumbers(a, b Value) Value { return applyNumeric(a, b, func(x, y float64) float64 { return x + y }, func(x, y int64) int64 { return x + y }) }
func subNumbers(a, b Value) Value { return applyNumeric(a, b, func(x, y float64) float64 { return x - y }, func(x, y int64) int64 { return x - y }) }
func mulNumbers(a, b Value) Value { return applyNumeric(a, b, func(x, y float64) float64 { return x * y }, func(x, y int64) int64 { return x * y }) }
func divNumbers(a, b Value) Value {
	if a.IsIntegral() && b.IsIntegral() {
		return applyNumeric(a, b, nil, func(x, y int64) int64 { return x / y })
	}
	return applyNumeric(a, b, func(x, y float64) float64 { return x / y }, nil)
}
func modNumbers(a, b Value) Value {
	if a.IsIntegral() && b.IsIntegral() {
		return applyNumeric(a, b, nil, func(x, y int64) int64 { return x % y })
	}
	return applyNumeric(a, b, math.Mod, nil)
}

func powNumbers(a, b Value) Value {
	result := math.Pow(a.Float64(), b.Float64())
	if a.IsIntegral() && b.IsIntegral() && b.Int64() >= 0 {
		return NewInt64(int64(result))
	}
	return NewFloat64(result)
}

func negateNumber(v Value) Value {
	switch v.NumKind {
	case NumInt32:
		return NewInt32(-v.Int32())
	case NumInt64:
		return NewInt64(-v.Int64())
	case NumFloat32:
		return NewFloat32(-float32(v.Float64()))
	default:
		return NewFloat64(-v.Float64())
	}
}

func applyNumeric(a, b Value, ffn func(x, y float64) float64, ifn func(x, y int64) int64) Value {
	kind := widerKind(a.NumKind, b.NumKind)
	if (kind == NumInt32 || kind == NumInt64) && ifn != nil {
		r := ifn(a.Int64(), b.Int64())
		if kind == NumInt32 {
			return NewInt32(int32(r))
		}
		return NewInt64(r)
	}
	r := ffn(a.Float64(), b.Float64())
	if kind == NumFloat32 {
		return NewFloat32(float32(r))
	}
	return NewFloat64(r)
}
