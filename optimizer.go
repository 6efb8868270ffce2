package fluence

// optimizer.go: peephole passes over a linked instruction vector (spec
// §4.3). No teacher analogue exists (the PEG compiler never optimized
// its bytecode); each pass here is a straightforward fixed-point
// rewrite over a flat []Instruction, mirroring the "list in, list out"
// shape of Emitter.Link so passes compose freely.
//
// Passes run to a fixed point: each pass reports whether it changed
// anything, and Optimize keeps re-running the pipeline until a full
// round changes nothing (bounded, so a pathological program cannot
// loop forever).
func Optimize(code []Instruction) []Instruction {
	for round := 0; round < 16; round++ {
		changed := false
		code, changed = foldConstants(code)
		var c2, c3, c4, c5 bool
		code, c2 = fuseCompareBranch(code)
		code, c3 = reduceStrength(code)
		code, c4 = eliminateRedundantMoves(code)
		code, c5 = threadJumps(code)
		if !(changed || c2 || c3 || c4 || c5) {
			break
		}
	}
	return code
}

// remapJumpTargets rewrites every jump-carrying instruction's absolute
// target through idxMap (old code index -> new code index). Every
// size-changing peephole pass below removes or merges instructions and
// must call this before returning, since a jump target is a raw
// integer index into the code vector, not a label: once instructions
// shift, a stale target silently points at the wrong instruction (or
// past the end of the array) instead of erroring.
func remapJumpTargets(code []Instruction, idxMap []int) []Instruction {
	remap := func(addr int) int {
		if addr >= 0 && addr < len(idxMap) {
			return idxMap[addr]
		}
		return addr
	}
	for i := range code {
		switch code[i].Opcode {
		case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpJumpIfNil, OpJumpIfNotNil:
			if addr, ok := code[i].Lhs.(int); ok {
				code[i].Lhs = remap(addr)
			}
		case OpBranchCmp:
			if addr, ok := code[i].Rhs.(int); ok {
				code[i].Rhs = remap(addr)
			}
		case OpIteratorNext:
			if addr, ok := code[i].Rhs2.(int); ok {
				code[i].Rhs2 = remap(addr)
			}
		}
	}
	return code
}

func isIntConst(v any) (int64, bool) {
	val, ok := v.(Value)
	if !ok || !val.IsNumber() || !val.IsIntegral() {
		return 0, false
	}
	return val.Int64(), true
}

// foldConstants collapses `LoadConst a; LoadConst b; <arith op>` into a
// single LoadConst of the computed result, when both operands are
// integral constants. Float/object operands are left alone since exact
// folding semantics there depend on the VM's own promotion rules.
func foldConstants(code []Instruction) ([]Instruction, bool) {
	changed := false
	out := make([]Instruction, 0, len(code))
	idxMap := make([]int, len(code))
	for i := 0; i < len(code); i++ {
		if i+2 < len(code) &&
			code[i].Opcode == OpLoadConst && code[i+1].Opcode == OpLoadConst {
			a, aok := isIntConst(code[i].Lhs)
			b, bok := isIntConst(code[i+1].Lhs)
			if aok && bok {
				if folded, ok := foldIntBinOp(code[i+2].Opcode, a, b); ok {
					ins := code[i+2]
					ins.Opcode = OpLoadConst
					ins.Lhs = NewInt64(folded)
					ins.Rhs, ins.Rhs2, ins.Rhs3 = nil, nil, nil
					newIdx := len(out)
					out = append(out, ins)
					idxMap[i], idxMap[i+1], idxMap[i+2] = newIdx, newIdx, newIdx
					i += 2
					changed = true
					continue
				}
			}
		}
		idxMap[i] = len(out)
		out = append(out, code[i])
	}
	if changed {
		out = remapJumpTargets(out, idxMap)
	}
	return out, changed
}

func foldIntBinOp(op Opcode, a, b int64) (int64, bool) {
	switch op {
	case OpAdd:
		return a + b, true
	case OpSub:
		return a - b, true
	case OpMul:
		return a * b, true
	case OpDiv:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case OpMod:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case OpBitAnd:
		return a & b, true
	case OpBitOr:
		return a | b, true
	case OpBitXor:
		return a ^ b, true
	}
	return 0, false
}

// fuseCompareBranch rewrites `<cmp op>; JumpIfFalse L` into a single
// BranchCmp instruction parametrized by CmpKind, avoiding a materialized
// boolean between the comparison and the branch that consumes it.
func fuseCompareBranch(code []Instruction) ([]Instruction, bool) {
	changed := false
	out := make([]Instruction, 0, len(code))
	idxMap := make([]int, len(code))
	for i := 0; i < len(code); i++ {
		if i+1 < len(code) && code[i+1].Opcode == OpJumpIfFalse {
			if kind, ok := cmpKindFor(code[i].Opcode); ok {
				newIdx := len(out)
				out = append(out, Instruction{
					Opcode: OpBranchCmp,
					Lhs:    kind,
					Rhs:    code[i+1].Lhs,
					Line:   code[i+1].Line, Column: code[i+1].Column, File: code[i+1].File,
				})
				idxMap[i], idxMap[i+1] = newIdx, newIdx
				i++
				changed = true
				continue
			}
		}
		idxMap[i] = len(out)
		out = append(out, code[i])
	}
	if changed {
		out = remapJumpTargets(out, idxMap)
	}
	return out, changed
}

func cmpKindFor(op Opcode) (CmpKind, bool) {
	switch op {
	case OpEq:
		return CmpEq, true
	case OpNeq:
		return CmpNeq, true
	case OpLt:
		return CmpLt, true
	case OpLe:
		return CmpLe, true
	case OpGt:
		return CmpGt, true
	case OpGe:
		return CmpGe, true
	}
	return 0, false
}

// reduceStrength replaces multiply/divide/modulo by a power-of-two
// integer constant with the corresponding shift/mask fast opcode, and
// collapses `LoadLocal name; LoadConst 1; Add; StoreLocal name` into
// IncLocal. These never change semantics for non-negative operands;
// the VM falls back to the slow path for anything the fast opcode
// can't represent losslessly (negative dividends, non-power-of-two),
// so the rewrite only fires when it is provably safe here at compile
// time.
func reduceStrength(code []Instruction) ([]Instruction, bool) {
	changed := false
	out := make([]Instruction, 0, len(code))
	idxMap := make([]int, len(code))
	for i := 0; i < len(code); i++ {
		if i+1 < len(code) && code[i].Opcode == OpLoadConst && isPow2Const(code[i].Lhs) {
			shift, _ := log2Const(code[i].Lhs)
			switch code[i+1].Opcode {
			case OpMul:
				newIdx := len(out)
				out = append(out, Instruction{Opcode: OpMulPow2Shift, Lhs: shift, Line: code[i+1].Line})
				idxMap[i], idxMap[i+1] = newIdx, newIdx
				i++
				changed = true
				continue
			case OpDiv:
				newIdx := len(out)
				out = append(out, Instruction{Opcode: OpDivPow2Shift, Lhs: shift, Line: code[i+1].Line})
				idxMap[i], idxMap[i+1] = newIdx, newIdx
				i++
				changed = true
				continue
			case OpMod:
				mask, _ := isIntConst(code[i].Lhs)
				newIdx := len(out)
				out = append(out, Instruction{Opcode: OpModPow2Mask, Lhs: mask - 1, Line: code[i+1].Line})
				idxMap[i], idxMap[i+1] = newIdx, newIdx
				i++
				changed = true
				continue
			}
		}
		if i+3 < len(code) &&
			code[i].Opcode == OpLoadLocal &&
			code[i+1].Opcode == OpLoadConst &&
			code[i+2].Opcode == OpAdd &&
			code[i+3].Opcode == OpStoreLocal &&
			code[i].Lhs == code[i+3].Lhs {
			if n, ok := isIntConst(code[i+1].Lhs); ok {
				newIdx := len(out)
				out = append(out, Instruction{Opcode: OpIncLocal, Lhs: code[i].Lhs, Rhs: n, Line: code[i].Line})
				idxMap[i], idxMap[i+1], idxMap[i+2], idxMap[i+3] = newIdx, newIdx, newIdx, newIdx
				i += 3
				changed = true
				continue
			}
		}
		idxMap[i] = len(out)
		out = append(out, code[i])
	}
	if changed {
		out = remapJumpTargets(out, idxMap)
	}
	return out, changed
}

func isPow2Const(v any) bool {
	n, ok := isIntConst(v)
	return ok && n > 0 && n&(n-1) == 0
}

func log2Const(v any) (int, bool) {
	n, ok := isIntConst(v)
	if !ok {
		return 0, false
	}
	shift := 0
	for n > 1 {
		n >>= 1
		shift++
	}
	return shift, true
}

// eliminateRedundantMoves drops a Move whose destination is never
// observed before being overwritten by the very next instruction's
// store to the same name (a narrow, provably-safe case rather than a
// full liveness analysis).
func eliminateRedundantMoves(code []Instruction) ([]Instruction, bool) {
	changed := false
	out := make([]Instruction, 0, len(code))
	idxMap := make([]int, len(code))
	for i := 0; i < len(code); i++ {
		if code[i].Opcode == OpMove && i+1 < len(code) {
			next := code[i+1]
			if (next.Opcode == OpStoreLocal || next.Opcode == OpStoreGlobal) && next.Lhs == code[i].Lhs {
				changed = true
				idxMap[i] = len(out) // the dropped Move maps to the surviving store right after it
				continue
			}
		}
		idxMap[i] = len(out)
		out = append(out, code[i])
	}
	if changed {
		out = remapJumpTargets(out, idxMap)
	}
	return out, changed
}

// threadJumps collapses a Jump whose target is itself another
// unconditional Jump into a single hop to the final destination,
// repeated until no instruction points at an intermediate jump.
func threadJumps(code []Instruction) ([]Instruction, bool) {
	changed := false
	resolve := func(addr int) int {
		seen := map[int]bool{}
		for addr >= 0 && addr < len(code) && code[addr].Opcode == OpJump && !seen[addr] {
			seen[addr] = true
			next, ok := code[addr].Lhs.(int)
			if !ok || next == addr {
				break
			}
			addr = next
		}
		return addr
	}
	out := make([]Instruction, len(code))
	copy(out, code)
	for i, ins := range out {
		switch ins.Opcode {
		case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpJumpIfNil, OpJumpIfNotNil:
			if addr, ok := ins.Lhs.(int); ok {
				target := resolve(addr)
				if target != addr {
					out[i].Lhs = target
					changed = true
				}
			}
		case OpBranchCmp:
			if addr, ok := ins.Rhs.(int); ok {
				target := resolve(addr)
				if target != addr {
					out[i].Rhs = target
					changed = true
				}
			}
		}
	}
	return out, changed
}
