package fluence

import "fmt"

// SymbolKind discriminates the compile-time entities a Scope can hold
// (spec §3 Symbols).
type SymbolKind int

const (
	SymVariable SymbolKind = iota
	SymFunction
	SymStruct
	SymTrait
	SymEnum
	SymNamespace
)

type Symbol interface {
	Kind() SymbolKind
	SymbolName() string
}

// MangleName builds the canonical function key baseName__arity (spec
// §4.5). DemangleName reverses it for user-facing messages.
func MangleName(base string, arity int) string {
	return fmt.Sprintf("%s__%d", base, arity)
}

func DemangleName(mangled string) (string, int) {
	for i := len(mangled) - 1; i > 1; i-- {
		if mangled[i-1] == '_' && mangled[i-2] == '_' {
			base := mangled[:i-2]
			var arity int
			if _, err := fmt.Sscanf(mangled[i:], "%d", &arity); err == nil {
				return base, arity
			}
		}
	}
	return mangled, -1
}

// VariableSymbol is a declared local/global variable or readonly
// (`solid`) binding.
type VariableSymbol struct {
	Name         string
	InitialValue Value
	Readonly     bool
}

func (v *VariableSymbol) Kind() SymbolKind   { return SymVariable }
func (v *VariableSymbol) SymbolName() string { return v.Name }

// FunctionSymbol is a declared function or method, named by its
// mangled key so functions of different arity can coexist.
type FunctionSymbol struct {
	MangledName   string
	BaseName      string
	Arity         int
	ParamNames    []string
	ByRefParams   []bool
	StartAddr     int
	EndAddr       int
	DefiningScope *Scope
	IntrinsicBody NativeFunc
	OwnerStruct   *StructSymbol

	// pendingBody/pendingRegs hold the function's compiled-but-not-
	// yet-spliced instruction stream: the parser compiles each body
	// where it appears in the token stream (the lexer is a single
	// forward pass with no seek) but defers placing it in the final
	// code vector until every function has a registered FunctionObj,
	// so forward calls always resolve (see compileFunctionBody).
	pendingBody []Instruction
	pendingRegs int
}

func (f *FunctionSymbol) Kind() SymbolKind   { return SymFunction }
func (f *FunctionSymbol) SymbolName() string { return f.MangledName }

// fieldInit is a field's default-value initializer, kept as an
// unevaluated expression (compiled lazily at NewInstance time) so
// that forward references to structs/functions declared later in the
// same unit resolve correctly (spec §4.2 forward references).
type fieldInit struct {
	tokens []Token
	solid  bool // `solid NAME = expr;` -> static readonly
}

// StructSymbol is a struct declaration: instance field defaults,
// static fields, methods, static intrinsics, and implemented traits.
type StructSymbol struct {
	Name              string
	InstanceFields    map[string]fieldInit
	FieldOrder        []string
	StaticFields      map[string]fieldInit
	Methods           map[string]*FunctionSymbol
	StaticIntrinsics  map[string]NativeFunc
	ImplementedTraits []string
	Class             *Class // filled in once the emitter resolves defaults
}

func (s *StructSymbol) Kind() SymbolKind   { return SymStruct }
func (s *StructSymbol) SymbolName() string { return s.Name }

func NewStructSymbol(name string) *StructSymbol {
	return &StructSymbol{
		Name:             name,
		InstanceFields:   map[string]fieldInit{},
		StaticFields:     map[string]fieldInit{},
		Methods:          map[string]*FunctionSymbol{},
		StaticIntrinsics: map[string]NativeFunc{},
	}
}

// TraitSymbol is a trait declaration: field/function requirements plus
// default field-value token sequences a struct may inherit.
type TraitSymbol struct {
	Name                       string
	RequiredFieldNames         []string
	RequiredFunctionSignatures []string // "name__arity"
	DefaultFieldValues         map[string]fieldInit
}

func (t *TraitSymbol) Kind() SymbolKind   { return SymTrait }
func (t *TraitSymbol) SymbolName() string { return t.Name }

// EnumSymbol assigns sequential integers from 0 to each variant.
type EnumSymbol struct {
	Name     string
	Variants map[string]int
	Order    []string
}

func (e *EnumSymbol) Kind() SymbolKind   { return SymEnum }
func (e *EnumSymbol) SymbolName() string { return e.Name }

func NewEnumSymbol(name string, variantNames []string) *EnumSymbol {
	variants := make(map[string]int, len(variantNames))
	for i, v := range variantNames {
		variants[v] = i
	}
	return &EnumSymbol{Name: name, Variants: variants, Order: variantNames}
}

// NamespaceSymbol names a namespace scope so it can be declared inside
// its enclosing scope like any other symbol, while the scope itself
// lives in the Scope tree (see scope.go).
type NamespaceSymbol struct {
	Name  string
	Scope *Scope
}

func (n *NamespaceSymbol) Kind() SymbolKind   { return SymNamespace }
func (n *NamespaceSymbol) SymbolName() string { return n.Name }
