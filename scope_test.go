package fluence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeDeclareAndResolveLocal(t *testing.T) {
	s := NewScope("top", nil)
	sym := &VariableSymbol{Name: "x"}
	require.NoError(t, s.Declare("x", sym))

	got, ok := s.TryResolveLocal("x")
	require.True(t, ok)
	assert.Same(t, sym, got)

	_, ok = s.TryResolveLocal("missing")
	assert.False(t, ok)
}

func TestScopeDeclareRejectsRedefinition(t *testing.T) {
	s := NewScope("top", nil)
	require.NoError(t, s.Declare("x", &VariableSymbol{Name: "x"}))
	err := s.Declare("x", &VariableSymbol{Name: "x"})
	assert.Error(t, err)
}

func TestScopeResolveWalksParentChain(t *testing.T) {
	parent := NewScope("outer", nil)
	require.NoError(t, parent.Declare("x", &VariableSymbol{Name: "x"}))
	child := NewScope("inner", parent)

	got, ok := child.Resolve("x")
	require.True(t, ok)
	assert.Equal(t, "x", got.SymbolName())
}

func TestScopeResolveChecksNamespacesBeforeParent(t *testing.T) {
	parent := NewScope("outer", nil)
	require.NoError(t, parent.Declare("name", &VariableSymbol{Name: "from-parent"}))

	ns := NewScope("ns", nil)
	require.NoError(t, ns.Declare("name", &VariableSymbol{Name: "from-ns"}))

	child := NewScope("inner", parent)
	child.Use(ns)

	got, ok := child.Resolve("name")
	require.True(t, ok)
	assert.Equal(t, "from-ns", got.SymbolName())
}

func TestScopeSignaturesForSortedByArity(t *testing.T) {
	s := NewScope("top", nil)
	fn2 := &FunctionSymbol{MangledName: MangleName("f", 2), BaseName: "f", Arity: 2}
	fn0 := &FunctionSymbol{MangledName: MangleName("f", 0), BaseName: "f", Arity: 0}
	fn1 := &FunctionSymbol{MangledName: MangleName("f", 1), BaseName: "f", Arity: 1}
	require.NoError(t, s.Declare(fn2.MangledName, fn2))
	require.NoError(t, s.Declare(fn0.MangledName, fn0))
	require.NoError(t, s.Declare(fn1.MangledName, fn1))

	sigs := s.SignaturesFor("f")
	require.Len(t, sigs, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{sigs[0].Arity, sigs[1].Arity, sigs[2].Arity})
}

func TestFindSignaturesAcrossScopesCollectsAncestorsAndNamespaces(t *testing.T) {
	parent := NewScope("outer", nil)
	fnOuter := &FunctionSymbol{MangledName: MangleName("greet", 1), BaseName: "greet", Arity: 1}
	require.NoError(t, parent.Declare(fnOuter.MangledName, fnOuter))

	ns := NewScope("ns", nil)
	fnNs := &FunctionSymbol{MangledName: MangleName("greet", 2), BaseName: "greet", Arity: 2}
	require.NoError(t, ns.Declare(fnNs.MangledName, fnNs))

	child := NewScope("inner", parent)
	child.Use(ns)
	fnInner := &FunctionSymbol{MangledName: MangleName("greet", 0), BaseName: "greet", Arity: 0}
	require.NoError(t, child.Declare(fnInner.MangledName, fnInner))

	all := child.FindSignaturesAcrossScopes("greet")
	require.Len(t, all, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{all[0].Arity, all[1].Arity, all[2].Arity})
}

func TestMangleAndDemangleNameRoundTrip(t *testing.T) {
	mangled := MangleName("compute_total", 3)
	assert.Equal(t, "compute_total__3", mangled)

	base, arity := DemangleName(mangled)
	assert.Equal(t, "compute_total", base)
	assert.Equal(t, 3, arity)
}
