package fluence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCacheTestVM builds a bare VM whose Program has no compiled code of
// its own, just enough to exercise inline_cache.go's site bookkeeping
// directly rather than through a specific bytecode layout.
func newCacheTestVM() *VM {
	prog := NewProgram("<test>")
	prog.Code = make([]Instruction, 4)
	return NewVM(prog, NewConfig())
}

func TestCallCacheMissThenHit(t *testing.T) {
	vm := newCacheTestVM()
	fn := &FunctionObj{MangledName: "f/0", BaseName: "f"}

	_, ok := vm.lookupCallCache(0)
	assert.False(t, ok, "a cold site must miss")

	vm.fillCallCache(0, fn)
	got, ok := vm.lookupCallCache(0)
	require.True(t, ok)
	assert.Same(t, fn, got)
}

func TestCallCacheInvalidatedByVersionBump(t *testing.T) {
	vm := newCacheTestVM()
	fn := &FunctionObj{MangledName: "f/0", BaseName: "f"}
	vm.fillCallCache(0, fn)
	_, ok := vm.lookupCallCache(0)
	require.True(t, ok)

	vm.bumpCacheVersion()
	_, ok = vm.lookupCallCache(0)
	assert.False(t, ok, "a version bump must invalidate a previously warm site")
}

func TestMethodCacheStaysMonomorphicAcrossSameClassCalls(t *testing.T) {
	vm := newCacheTestVM()
	catClass := NewClass("Cat")
	fn := &FunctionObj{MangledName: "speak/0", BaseName: "speak", OwnerStruct: catClass}

	_, ok := vm.lookupMethodCache(0, catClass)
	assert.False(t, ok)

	vm.fillMethodCache(0, catClass, fn)
	got, ok := vm.lookupMethodCache(0, catClass)
	require.True(t, ok)
	assert.Same(t, fn, got)

	// Calling again with the same class at the same site keeps hitting.
	got, ok = vm.lookupMethodCache(0, catClass)
	require.True(t, ok)
	assert.Same(t, fn, got)
}

func TestMethodCacheDegradesToPolymorphicAfterRepeatedShapeChange(t *testing.T) {
	vm := newCacheTestVM()
	catClass, dogClass := NewClass("Cat"), NewClass("Dog")
	catSpeak := &FunctionObj{MangledName: "speak/0", BaseName: "speak", OwnerStruct: catClass}
	dogSpeak := &FunctionObj{MangledName: "speak/0", BaseName: "speak", OwnerStruct: dogClass}

	vm.fillMethodCache(0, catClass, catSpeak)
	_, ok := vm.lookupMethodCache(0, catClass)
	require.True(t, ok, "site is warm for Cat")

	// A Dog receiver at the same site is a miss against the cached shape.
	_, ok = vm.lookupMethodCache(0, dogClass)
	assert.False(t, ok)
	vm.fillMethodCache(0, dogClass, dogSpeak)

	// Flipping back to Cat is a second distinct shape at this site:
	// maxCacheMisses is exceeded and the site poisons rather than
	// thrashing between the two shapes forever.
	vm.fillMethodCache(0, catClass, catSpeak)
	c := vm.cacheAt(0)
	assert.True(t, c.poisoned, "a call site alternating shapes must degrade to uncached")

	_, ok = vm.lookupMethodCache(0, catClass)
	assert.False(t, ok, "a poisoned site always misses, even against its most recent shape")
}

func TestFieldCacheTracksShapeAndDegrades(t *testing.T) {
	vm := newCacheTestVM()
	pointClass := NewClass("Point")
	vecClass := NewClass("Vec")

	assert.False(t, vm.touchFieldCache(0, pointClass), "first touch at a cold site is a miss")
	assert.True(t, vm.touchFieldCache(0, pointClass), "same shape again is a hit")

	assert.False(t, vm.touchFieldCache(0, vecClass), "a different shape is a miss")
	assert.False(t, vm.touchFieldCache(0, pointClass), "flipping shape again exceeds the miss budget and poisons the site")

	c := vm.cacheAt(0)
	assert.True(t, c.poisoned)
}

func TestFieldCacheResetsOnVersionBump(t *testing.T) {
	vm := newCacheTestVM()
	pointClass := NewClass("Point")
	vm.touchFieldCache(0, pointClass)
	vm.touchFieldCache(0, pointClass)
	assert.True(t, vm.touchFieldCache(0, pointClass))

	vm.bumpCacheVersion()
	assert.False(t, vm.touchFieldCache(0, pointClass), "a version bump resets an otherwise-warm field site")
}

// TestPolymorphicCallSiteStaysCorrectAcrossStructs exercises the cache
// end to end through real bytecode: the same CallMethod site dispatches
// to two different structs' same-named, same-arity method and must
// still return the right result from each, proving the cache degrade
// path never trades correctness for speed.
func TestPolymorphicCallSiteStaysCorrectAcrossStructs(t *testing.T) {
	source := `
		struct Cat { func speak() => 1; }
		struct Dog { func speak() => 2; }
		func describe(x) => x.speak();
		a = Cat {};
		b = Dog {};
		r1 = describe(a);
		r2 = describe(b);
		r3 = describe(a);
		result = r1 * 100 + r2 * 10 + r3;
	`
	got := runAndGetResult(t, source)
	assert.Equal(t, int64(121), got.Int64())
}

// TestHostRedefinitionInvalidatesWarmCache warms a Call site's cache by
// invoking a host function once through LibraryBuilder.AddFunction
// (the registration path that actually populates Program.Functions and
// so is eligible for caching, unlike Interpreter.RegisterIntrinsic's
// bare intrinsics-table fallback), then has the host redefine that same
// name before the second call executes — the second call must observe
// the new behavior rather than the cached FunctionObj, because
// AddFunction's registration bumps the global cache version. Both
// bump() calls run through the one call site inside f, so the second
// call finds that site's cache already warm.
func TestHostRedefinitionInvalidatesWarmCache(t *testing.T) {
	cfg := NewConfig()
	prog, err := ParseProgram(cfg, 0, "<test>", "func f() => bump(); a = f(); b = f(); result = a * 10 + b;")
	require.NoError(t, err)
	in := NewInterpreter(prog, cfg)

	in.Library().AddFunction("bump", 0, func(_ *VM, _ []Value) (Value, error) {
		return NewInt64(1), nil
	})

	for {
		if _, ok := in.GetGlobal("a"); ok {
			break
		}
		require.NoError(t, in.Step(1))
	}

	in.Library().AddFunction("bump", 0, func(_ *VM, _ []Value) (Value, error) {
		return NewInt64(2), nil
	})

	require.NoError(t, in.RunUntilDone())
	got, ok := in.GetGlobal("result")
	require.True(t, ok)
	assert.Equal(t, int64(12), got.Int64(), "the second bump() call must observe the redefinition, not a stale cached resolution")
}
