package fluence

// inline_cache.go: the call/field-site inline cache sitting alongside
// optimizer.go's peephole passes in the VM's performance architecture
// (spec §5). Each Call, LoadField, and StoreField instruction gets one
// persistent cache slot, addressed by its own position in the linked
// code vector rather than by object identity, since Instruction is a
// flat record reused in place (the same constraint optimizer.go's
// remapJumpTargets works around for jump targets). A hit skips the
// function/method-table lookup entirely; a miss resolves normally and
// refills; a second miss against a different shape at the same site
// degrades it to polymorphic (poisoned), after which it is always
// treated as a miss until a version bump gives it a clean slate.
type inlineCache struct {
	shape    any          // nil for call sites with a fixed target, *Class for polymorphic method/field sites
	version  uint64
	fn       *FunctionObj // resolved callee, Call/CallMethod sites only
	misses   uint8
	poisoned bool
}

// maxCacheMisses bounds how many distinct shapes a site tolerates
// before it gives up trying to stay monomorphic.
const maxCacheMisses = 1

// cacheAt returns the cache slot for a given instruction address,
// allocating the backing slice lazily since it is sized to the linked
// program's instruction count, not known until NewVM runs.
func (vm *VM) cacheAt(pc int) *inlineCache {
	if vm.caches == nil {
		vm.caches = make([]inlineCache, len(vm.prog.Code))
	}
	return &vm.caches[pc]
}

// bumpCacheVersion invalidates every inline cache in one step: any
// cache whose version trails vm.cacheVersion is treated as a miss on
// next use and refilled. LibraryBuilder calls this whenever the host
// mutates the function/struct symbol table after the VM may already
// have warmed caches against the old shape.
func (vm *VM) bumpCacheVersion() {
	vm.cacheVersion++
}

// lookupCallCache resolves a plain Call site. The mangled name at such
// a site is fixed at compile time, so shape is always nil: once warm,
// the site stays monomorphic until a version bump invalidates it.
func (vm *VM) lookupCallCache(pc int) (*FunctionObj, bool) {
	c := vm.cacheAt(pc)
	if c.poisoned || c.fn == nil || c.version != vm.cacheVersion {
		return nil, false
	}
	return c.fn, true
}

func (vm *VM) fillCallCache(pc int, fn *FunctionObj) {
	c := vm.cacheAt(pc)
	c.fn = fn
	c.version = vm.cacheVersion
	c.poisoned = false
	c.misses = 0
}

// lookupMethodCache resolves a CallMethod site keyed by the receiver's
// dynamic class, since the same call site can dispatch to different
// classes across calls.
func (vm *VM) lookupMethodCache(pc int, class *Class) (*FunctionObj, bool) {
	c := vm.cacheAt(pc)
	if c.poisoned || c.fn == nil || c.version != vm.cacheVersion {
		return nil, false
	}
	if c.shape != any(class) {
		return nil, false
	}
	return c.fn, true
}

// fillMethodCache refills a CallMethod site's cache. A shape change
// against an already-warm, same-version entry counts as a miss; enough
// consecutive misses poisons the site so it stops paying the bookkeeping
// cost of trying to stay monomorphic.
func (vm *VM) fillMethodCache(pc int, class *Class, fn *FunctionObj) {
	c := vm.cacheAt(pc)
	if c.version == vm.cacheVersion && c.fn != nil && c.shape != any(class) {
		c.misses++
		if c.misses > maxCacheMisses {
			c.poisoned = true
			return
		}
	}
	c.shape = class
	c.fn = fn
	c.version = vm.cacheVersion
}

// touchFieldCache records the class shape observed at a LoadField or
// StoreField site, returning true when the shape matches the last
// non-stale observation (a hit). Instance fields live in a plain map
// (value.go's InstanceObj.Fields), so there is no offset to cache; what
// this buys is the same hit/miss/degrade/invalidate bookkeeping the
// call-site caches provide, and a fast reset if the host later extends
// the struct's shape through LibraryBuilder.
func (vm *VM) touchFieldCache(pc int, class *Class) bool {
	c := vm.cacheAt(pc)
	if c.version != vm.cacheVersion || c.shape == nil {
		c.shape = class
		c.version = vm.cacheVersion
		c.misses = 0
		c.poisoned = false
		return false
	}
	if c.shape == any(class) {
		return !c.poisoned
	}
	c.misses++
	if c.misses > maxCacheMisses {
		c.poisoned = true
	}
	c.shape = class
	return false
}
