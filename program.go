package fluence

// Program is a fully linked compilation unit: the flat instruction
// vector the VM executes directly (post-optimizer if Config enabled
// it), plus the function and struct tables the call/instantiate
// opcodes resolve by name, and the global-variable slot table.
type Program struct {
	Code       []Instruction
	SourceFile string

	Functions map[string]*FunctionObj // mangled name -> function
	Structs   map[string]*Class       // struct name -> class blueprint

	Globals   []string
	GlobalIdx map[string]int
}

func NewProgram(sourceFile string) *Program {
	return &Program{
		SourceFile: sourceFile,
		Functions:  map[string]*FunctionObj{},
		Structs:    map[string]*Class{},
		GlobalIdx:  map[string]int{},
	}
}

// DeclareGlobal returns the stable slot index for name, allocating one
// if this is the first reference.
func (p *Program) DeclareGlobal(name string) int {
	if idx, ok := p.GlobalIdx[name]; ok {
		return idx
	}
	idx := len(p.Globals)
	p.Globals = append(p.Globals, name)
	p.GlobalIdx[name] = idx
	return idx
}
