package fluence

// Emitter accumulates Instructions during a single compilation pass
// and resolves every forward-referenced label once the full unit has
// been walked. Grounded on the teacher's grammar_compiler.go, which
// builds a flat instruction slice while handing out NewILabel() values
// for not-yet-known targets, and vm_encoder.go's two-pass Encode
// (build label->address, then rewrite every jump operand) — adapted
// from an interface-per-opcode instruction set to Fluence's single
// fixed-tuple Instruction record, so the "rewrite every jump operand"
// step becomes a generic type-switch over Lhs/Rhs/Rhs2/Rhs3 instead of
// a per-opcode case.
type Emitter struct {
	cfg  *Config
	code []Instruction
}

func NewEmitter(cfg *Config) *Emitter {
	return &Emitter{cfg: cfg}
}

// Emit appends one instruction and returns its pre-link address. The
// address is only stable post-Link once every OpLabel placeholder
// preceding it has been stripped; callers needing a concrete jump
// target should use NewLabel/MarkLabel instead of raw addresses.
func (e *Emitter) Emit(ins Instruction) int {
	e.code = append(e.code, ins)
	return len(e.code) - 1
}

func (e *Emitter) NewLabel() label { return newLabel() }

// MarkLabel places lb at the current emission position.
func (e *Emitter) MarkLabel(lb label) {
	e.code = append(e.code, Instruction{Opcode: OpLabel, Lhs: lb})
}

func (e *Emitter) Len() int { return len(e.code) }

// Link resolves every label reference in the accumulated code into a
// concrete address and strips the OpLabel placeholders, producing the
// final vector the VM executes.
func (e *Emitter) Link() []Instruction {
	addr := map[int]int{}
	pos := 0
	for _, ins := range e.code {
		if ins.Opcode == OpLabel {
			addr[ins.Lhs.(label).id] = pos
			continue
		}
		pos++
	}

	out := make([]Instruction, 0, pos)
	for _, ins := range e.code {
		if ins.Opcode == OpLabel {
			continue
		}
		ins.Lhs = resolveOperand(ins.Lhs, addr)
		ins.Rhs = resolveOperand(ins.Rhs, addr)
		ins.Rhs2 = resolveOperand(ins.Rhs2, addr)
		ins.Rhs3 = resolveOperand(ins.Rhs3, addr)
		out = append(out, ins)
	}
	return out
}

func resolveOperand(v any, addr map[int]int) any {
	if lb, ok := v.(label); ok {
		return addr[lb.id]
	}
	return v
}
