package fluence

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Scope is a hierarchical lexical scope: a symbol table keyed by
// mangled name, a parent-scope reference, an associated name, and the
// list of namespace scopes pulled in by `use` (spec §4.5).
type Scope struct {
	Name       string
	Parent     *Scope
	Symbols    map[string]Symbol
	Namespaces []*Scope

	// signatures indexes every FunctionSymbol declared directly in
	// this scope by its demangled base name, so arity-mismatch error
	// elaboration (spec §7) is O(1) instead of a full rescan.
	signatures map[string][]*FunctionSymbol
}

func NewScope(name string, parent *Scope) *Scope {
	return &Scope{
		Name:       name,
		Parent:     parent,
		Symbols:    map[string]Symbol{},
		signatures: map[string][]*FunctionSymbol{},
	}
}

// Declare adds a symbol under its canonical key. It fails if the key
// is already present in this scope (spec invariant: mangled name
// uniqueness per scope).
func (s *Scope) Declare(key string, sym Symbol) error {
	if _, exists := s.Symbols[key]; exists {
		return fmt.Errorf("redefinition of %q in scope %q", key, s.Name)
	}
	s.Symbols[key] = sym
	if fn, ok := sym.(*FunctionSymbol); ok {
		s.signatures[fn.BaseName] = append(s.signatures[fn.BaseName], fn)
	}
	return nil
}

// TryResolveLocal looks up key in this scope only (no parent, no
// namespaces).
func (s *Scope) TryResolveLocal(key string) (Symbol, bool) {
	sym, ok := s.Symbols[key]
	return sym, ok
}

// Resolve performs chained lookup: this scope, its imported
// namespaces, then the parent chain.
func (s *Scope) Resolve(key string) (Symbol, bool) {
	if sym, ok := s.Symbols[key]; ok {
		return sym, true
	}
	for _, ns := range s.Namespaces {
		if sym, ok := ns.TryResolveLocal(key); ok {
			return sym, true
		}
	}
	if s.Parent != nil {
		return s.Parent.Resolve(key)
	}
	return nil, false
}

// Use imports a namespace scope into this parse context, per `use NS`.
func (s *Scope) Use(ns *Scope) {
	s.Namespaces = append(s.Namespaces, ns)
}

// SignaturesFor returns every function declared in this scope (not
// its ancestors) under baseName, across all arities, sorted by arity
// for deterministic hint messages.
func (s *Scope) SignaturesFor(baseName string) []*FunctionSymbol {
	sigs := append([]*FunctionSymbol(nil), s.signatures[baseName]...)
	slices.SortFunc(sigs, func(a, b *FunctionSymbol) int { return a.Arity - b.Arity })
	return sigs
}

// FindSignaturesAcrossScopes walks this scope and its whole ancestor
// chain (plus imported namespaces) collecting same-base-name function
// signatures, used to build the "did you mean" / arity-mismatch hint
// attached to UnknownVariable errors (spec §7).
func (s *Scope) FindSignaturesAcrossScopes(baseName string) []*FunctionSymbol {
	var all []*FunctionSymbol
	for scope := s; scope != nil; scope = scope.Parent {
		all = append(all, scope.SignaturesFor(baseName)...)
		for _, ns := range scope.Namespaces {
			all = append(all, ns.SignaturesFor(baseName)...)
		}
	}
	slices.SortFunc(all, func(a, b *FunctionSymbol) int { return a.Arity - b.Arity })
	return all
}

// BaseNames returns every distinct demangled base function name
// declared directly in this scope, used by the error elaborator to
// search for near-miss names when no exact signature index entry
// exists.
func (s *Scope) BaseNames() []string {
	names := maps.Keys(s.signatures)
	slices.Sort(names)
	return names
}
