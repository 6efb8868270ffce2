package fluence

import "time"

// Config is the embedding API's typed configuration object (spec §6),
// modeled directly on the teacher's cfgVal/Config pattern: a struct of
// typed settings with dedicated getters/setters rather than a bag of
// `any`, so a caller can't silently read a bool out of a duration
// slot.
type Config struct {
	optimizeBytecode  bool
	emitSectionGlobal bool
	defaultTimeout    time.Duration
	compilationSymbols map[string]struct{}
}

// NewConfig returns a Config primed with the defaults spec §6 and §4.3
// call for: the optimizer runs by default, no synthetic SectionGlobal
// markers (a test hook), and no timeout.
func NewConfig() *Config {
	return &Config{
		optimizeBytecode:   true,
		emitSectionGlobal:  false,
		defaultTimeout:     0,
		compilationSymbols: map[string]struct{}{},
	}
}

func (c *Config) OptimizeBytecode() bool       { return c.optimizeBytecode }
func (c *Config) SetOptimizeBytecode(v bool)   { c.optimizeBytecode = v }
func (c *Config) EmitSectionGlobal() bool      { return c.emitSectionGlobal }
func (c *Config) SetEmitSectionGlobal(v bool)  { c.emitSectionGlobal = v }
func (c *Config) DefaultTimeout() time.Duration { return c.defaultTimeout }
func (c *Config) SetDefaultTimeout(d time.Duration) { c.defaultTimeout = d }

// DefineSymbol registers a compilation symbol recognized by the
// `#IF SYMBOL { ... }` parse gate (spec §9 Open Question).
func (c *Config) DefineSymbol(name string) {
	c.compilationSymbols[name] = struct{}{}
}

func (c *Config) HasSymbol(name string) bool {
	_, ok := c.compilationSymbols[name]
	return ok
}
