package fluence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runAndGetResult compiles and runs source, returning the final value
// of the `result` global (spec §8's scenario format).
func runAndGetResult(t *testing.T, source string) Value {
	t.Helper()
	cfg := NewConfig()
	prog, err := ParseProgram(cfg, 0, "<test>", source)
	require.NoError(t, err)
	vm := NewVM(prog, cfg)
	require.NoError(t, vm.RunUntilDone())
	v, ok := vm.GetGlobal("result")
	require.True(t, ok, "result global was never set")
	return v
}

func TestEndToEndScenarios(t *testing.T) {
	for _, test := range []struct {
		name     string
		source   string
		expected Value
	}{
		{
			name:     "S1 strength-reduced modulo",
			source:   "result = 10 % 2;",
			expected: NewInt32(0),
		},
		{
			name:     "S2 float math",
			source:   "result = 5.0 / 2.0;",
			expected: NewFloat64(2.5),
		},
		{
			name:     "S3 string concat",
			source:   `result = "Hello" + " World";`,
			expected: NewString("Hello World"),
		},
		{
			name:     "S5 range for-loop",
			source:   "sum = 0; for i in 1..4 { sum += i; } result = sum;",
			expected: NewInt32(10),
		},
		{
			name:     "S9 match expression",
			source:   "val = 2; result = match val { 1 -> 10; 2 -> 20; rest -> 0; };",
			expected: NewInt32(20),
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got := runAndGetResult(t, test.source)
			assert.True(t, test.expected.Equals(got), "expected %s, got %s", test.expected, got)
		})
	}
}

func TestStructDirectInitAndMainEntryPoint(t *testing.T) {
	// S4: Main is never called explicitly; the VM must invoke it once
	// after top-level statements complete.
	source := `struct Vec2 { x; y; } result = nil; func Main() => { v = Vec2 { x: 10, y: 20 }; result = v.x + v.y; }`
	got := runAndGetResult(t, source)
	assert.Equal(t, int64(30), got.Int64())
}

func TestOptimizerPreservesObservableResult(t *testing.T) {
	source := "a = 4; b = a * 2; c = b + 1; result = c % 8;"
	cfg := NewConfig()
	cfg.SetOptimizeBytecode(true)
	progOpt, err := ParseProgram(cfg, 0, "<test>", source)
	require.NoError(t, err)
	vmOpt := NewVM(progOpt, cfg)
	require.NoError(t, vmOpt.RunUntilDone())
	gotOpt, _ := vmOpt.GetGlobal("result")

	cfgNoOpt := NewConfig()
	cfgNoOpt.SetOptimizeBytecode(false)
	progPlain, err := ParseProgram(cfgNoOpt, 0, "<test>", source)
	require.NoError(t, err)
	vmPlain := NewVM(progPlain, cfgNoOpt)
	require.NoError(t, vmPlain.RunUntilDone())
	gotPlain, _ := vmPlain.GetGlobal("result")

	assert.True(t, gotOpt.Equals(gotPlain))
}

func TestDivisionByZeroFaults(t *testing.T) {
	cfg := NewConfig()
	prog, err := ParseProgram(cfg, 0, "<test>", "result = 1 / 0;")
	require.NoError(t, err)
	vm := NewVM(prog, cfg)
	err = vm.RunUntilDone()
	require.Error(t, err)
	rerr, ok := err.(*RuntimeError)
	require.True(t, ok)
	assert.Equal(t, ErrDivisionByZero, rerr.Kind)
	assert.Equal(t, StatusFaulted, vm.Status())
}

func TestDescendingRangeIterationErrors(t *testing.T) {
	cfg := NewConfig()
	prog, err := ParseProgram(cfg, 0, "<test>", "for i in 4..1 { result = i; }")
	require.NoError(t, err)
	vm := NewVM(prog, cfg)
	err = vm.RunUntilDone()
	require.Error(t, err)
	assert.Equal(t, StatusFaulted, vm.Status())
}

func TestListElementAtOutOfBoundsReturnsNilButIndexErrors(t *testing.T) {
	cfg := NewConfig()
	prog, err := ParseProgram(cfg, 0, "<test>", "xs = [1, 2, 3]; result = xs.element_at(10);")
	require.NoError(t, err)
	vm := NewVM(prog, cfg)
	require.NoError(t, vm.RunUntilDone())
	got, ok := vm.GetGlobal("result")
	require.True(t, ok)
	assert.True(t, got.IsNil())

	progErr, err := ParseProgram(cfg, 0, "<test>", "xs = [1, 2, 3]; result = xs[10];")
	require.NoError(t, err)
	vmErr := NewVM(progErr, cfg)
	err = vmErr.RunUntilDone()
	require.Error(t, err)
	rerr, ok := err.(*RuntimeError)
	require.True(t, ok)
	assert.Equal(t, ErrIndexOutOfRange, rerr.Kind)
}

func TestLambdaCallThroughVariable(t *testing.T) {
	source := "add = (a, b) => a + b; result = add(2, 3);"
	got := runAndGetResult(t, source)
	assert.Equal(t, int64(5), got.Int64())
}

func TestHostIntrinsicRegistration(t *testing.T) {
	cfg := NewConfig()
	prog, err := ParseProgram(cfg, 0, "<test>", "result = double(21);")
	require.NoError(t, err)
	in := NewInterpreter(prog, cfg)
	require.NoError(t, in.RegisterIntrinsic("", "double", 1, func(_ *VM, args []Value) (Value, error) {
		return NewInt64(args[0].Int64() * 2), nil
	}))
	require.NoError(t, in.RunUntilDone())
	got, ok := in.GetGlobal("result")
	require.True(t, ok)
	assert.Equal(t, int64(42), got.Int64())
}
