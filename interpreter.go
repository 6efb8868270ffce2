package fluence

import (
	"fmt"
	"time"
)

// interpreter.go: the embedding API's entry point (spec §6). Compile
// parses a source unit into a linked Program; Interpreter wraps a VM
// with the host-facing surface (run_until_done, step, globals,
// register_intrinsic, request_stop, timeout) so host code never
// touches Program/VM internals directly.

// Compile parses and links source into a Program, ready to hand to
// NewInterpreter. Kept distinct from NewInterpreter so a host can
// compile once and run the same Program from several VMs.
func Compile(cfg *Config, sourceFile, source string) (*Program, error) {
	return ParseProgram(cfg, 0, sourceFile, source)
}

// Interpreter is one running instance of a compiled Program (spec §6
// Contract). It owns the VM and the LibraryBuilder surface registered
// against it.
type Interpreter struct {
	prog *Program
	cfg  *Config
	vm   *VM
}

// NewInterpreter builds an Interpreter over an already-linked Program.
func NewInterpreter(prog *Program, cfg *Config) *Interpreter {
	return &Interpreter{prog: prog, cfg: cfg, vm: NewVM(prog, cfg)}
}

// RunUntilDone drives the program to completion, fault, or stop.
func (in *Interpreter) RunUntilDone() error { return in.vm.RunUntilDone() }

// Step executes up to n instructions before returning control to the
// host, the primitive a step-debugger or a cooperative scheduler
// builds on.
func (in *Interpreter) Step(n int) error { return in.vm.Step(n) }

// GetGlobal/SetGlobal read or write a top-level variable by name.
func (in *Interpreter) GetGlobal(name string) (Value, bool) { return in.vm.GetGlobal(name) }
func (in *Interpreter) SetGlobal(name string, v Value)      { in.vm.SetGlobal(name, v) }

// RegisterIntrinsic installs a host function under namespace.name,
// callable from script code by that unqualified name. Registration is
// only valid while the VM is not Running (spec §6 Shared resources).
func (in *Interpreter) RegisterIntrinsic(namespace, name string, arity int, fn NativeFunc) error {
	if in.vm.Status() == StatusRunning {
		return fmt.Errorf("cannot register intrinsic %q while the interpreter is running", name)
	}
	key := name
	if namespace != "" {
		key = namespace + "." + name
	}
	in.vm.RegisterIntrinsic(key, fn)
	if key != name {
		in.vm.RegisterIntrinsic(name, fn)
	}
	return nil
}

// RequestStop asks a concurrently-running interpreter to halt at the
// next instruction boundary.
func (in *Interpreter) RequestStop() { in.vm.RequestStop() }

// Timeout sets (or clears, with 0) the wall-clock budget RunUntilDone
// enforces.
func (in *Interpreter) Timeout(d time.Duration) { in.cfg.SetDefaultTimeout(d) }

// Status reports the interpreter's coarse run state.
func (in *Interpreter) Status() VMStatus { return in.vm.Status() }

// Library returns a LibraryBuilder rooted at this interpreter's
// Program, for registering host functions, structs, and constants
// before the first Run (spec §6 LibraryBuilder).
func (in *Interpreter) Library() *LibraryBuilder {
	return &LibraryBuilder{prog: in.prog, vm: in.vm}
}
