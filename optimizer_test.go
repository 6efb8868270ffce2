package fluence

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldConstantsCollapsesIntegralBinOp(t *testing.T) {
	code := []Instruction{
		{Opcode: OpLoadConst, Lhs: NewInt32(6)},
		{Opcode: OpLoadConst, Lhs: NewInt32(7)},
		{Opcode: OpMul},
	}
	out, changed := foldConstants(code)
	require.True(t, changed)
	require.Len(t, out, 1)
	assert.Equal(t, OpLoadConst, out[0].Opcode)
	assert.Equal(t, int64(42), out[0].Lhs.(Value).Int64())
}

func TestFoldConstantsSkipsDivisionByZero(t *testing.T) {
	code := []Instruction{
		{Opcode: OpLoadConst, Lhs: NewInt32(6)},
		{Opcode: OpLoadConst, Lhs: NewInt32(0)},
		{Opcode: OpDiv},
	}
	out, changed := foldConstants(code)
	assert.False(t, changed)
	assert.Len(t, out, 3)
}

func TestFoldConstantsLeavesNonIntegralOperandsAlone(t *testing.T) {
	code := []Instruction{
		{Opcode: OpLoadConst, Lhs: NewFloat64(1.5)},
		{Opcode: OpLoadConst, Lhs: NewFloat64(2.5)},
		{Opcode: OpAdd},
	}
	out, changed := foldConstants(code)
	assert.False(t, changed)
	assert.Len(t, out, 3)
}

func TestFuseCompareBranchProducesBranchCmp(t *testing.T) {
	code := []Instruction{
		{Opcode: OpLt},
		{Opcode: OpJumpIfFalse, Lhs: 10},
	}
	out, changed := fuseCompareBranch(code)
	require.True(t, changed)
	require.Len(t, out, 1)
	assert.Equal(t, OpBranchCmp, out[0].Opcode)
	assert.Equal(t, CmpLt, out[0].Lhs)
	assert.Equal(t, 10, out[0].Rhs)
}

func TestReduceStrengthRewritesPowerOfTwoMulDivMod(t *testing.T) {
	mulCode, changed := reduceStrength([]Instruction{
		{Opcode: OpLoadConst, Lhs: NewInt32(8)},
		{Opcode: OpMul},
	})
	require.True(t, changed)
	require.Len(t, mulCode, 1)
	assert.Equal(t, OpMulPow2Shift, mulCode[0].Opcode)
	assert.Equal(t, 3, mulCode[0].Lhs)

	modCode, changed := reduceStrength([]Instruction{
		{Opcode: OpLoadConst, Lhs: NewInt32(4)},
		{Opcode: OpMod},
	})
	require.True(t, changed)
	require.Len(t, modCode, 1)
	assert.Equal(t, OpModPow2Mask, modCode[0].Opcode)
	assert.Equal(t, int64(3), modCode[0].Lhs)
}

func TestReduceStrengthLeavesNonPowerOfTwoAlone(t *testing.T) {
	code := []Instruction{
		{Opcode: OpLoadConst, Lhs: NewInt32(3)},
		{Opcode: OpMul},
	}
	out, changed := reduceStrength(code)
	assert.False(t, changed)
	assert.Len(t, out, 2)
}

func TestReduceStrengthCollapsesSelfIncrementToIncLocal(t *testing.T) {
	code := []Instruction{
		{Opcode: OpLoadLocal, Lhs: "i"},
		{Opcode: OpLoadConst, Lhs: NewInt32(1)},
		{Opcode: OpAdd},
		{Opcode: OpStoreLocal, Lhs: "i"},
	}
	out, changed := reduceStrength(code)
	require.True(t, changed)
	require.Len(t, out, 1)
	assert.Equal(t, OpIncLocal, out[0].Opcode)
	assert.Equal(t, "i", out[0].Lhs)
	assert.Equal(t, int64(1), out[0].Rhs)
}

func TestEliminateRedundantMovesDropsImmediatelyOverwrittenMove(t *testing.T) {
	code := []Instruction{
		{Opcode: OpMove, Lhs: "x"},
		{Opcode: OpStoreLocal, Lhs: "x"},
	}
	out, changed := eliminateRedundantMoves(code)
	require.True(t, changed)
	require.Len(t, out, 1)
	assert.Equal(t, OpStoreLocal, out[0].Opcode)
}

func TestEliminateRedundantMovesKeepsMoveToDifferentTarget(t *testing.T) {
	code := []Instruction{
		{Opcode: OpMove, Lhs: "x"},
		{Opcode: OpStoreLocal, Lhs: "y"},
	}
	out, changed := eliminateRedundantMoves(code)
	assert.False(t, changed)
	assert.Len(t, out, 2)
}

func TestThreadJumpsCollapsesJumpChain(t *testing.T) {
	code := []Instruction{
		{Opcode: OpJump, Lhs: 1},
		{Opcode: OpJump, Lhs: 2},
		{Opcode: OpHalt},
	}
	out, changed := threadJumps(code)
	require.True(t, changed)
	assert.Equal(t, 2, out[0].Lhs)
}

func TestThreadJumpsRewritesBranchCmpTarget(t *testing.T) {
	code := []Instruction{
		{Opcode: OpBranchCmp, Lhs: CmpEq, Rhs: 1},
		{Opcode: OpJump, Lhs: 2},
		{Opcode: OpHalt},
	}
	out, changed := threadJumps(code)
	require.True(t, changed)
	assert.Equal(t, 2, out[0].Rhs)
}

func TestOptimizeRunsToFixedPointWithoutInfiniteLoop(t *testing.T) {
	code := []Instruction{
		{Opcode: OpLoadConst, Lhs: NewInt32(2)},
		{Opcode: OpLoadConst, Lhs: NewInt32(3)},
		{Opcode: OpAdd},
		{Opcode: OpStoreGlobal, Lhs: "result"},
		{Opcode: OpHalt},
	}
	out := Optimize(code)
	require.Len(t, out, 3)
	assert.Equal(t, OpLoadConst, out[0].Opcode)
	assert.Equal(t, int64(5), out[0].Lhs.(Value).Int64())
}

// TestOptimizeIsIdempotent runs a second pass over an already-optimized
// stream and diffs the result with go-cmp: Optimize must be a fixed
// point, not just convergent within its own 16-round cap.
func TestOptimizeIsIdempotent(t *testing.T) {
	code := []Instruction{
		{Opcode: OpLoadLocal, Lhs: "i"},
		{Opcode: OpLoadConst, Lhs: NewInt32(1)},
		{Opcode: OpAdd},
		{Opcode: OpStoreLocal, Lhs: "i"},
		{Opcode: OpLoadConst, Lhs: NewInt32(8)},
		{Opcode: OpMul},
		{Opcode: OpJump, Lhs: 7},
		{Opcode: OpHalt},
	}
	once := Optimize(code)
	twice := Optimize(once)

	diff := cmp.Diff(once, twice, cmp.AllowUnexported(Value{}))
	assert.Empty(t, diff, "re-running Optimize must not change an already-optimized stream:\n%s", diff)
}

// TestOptimizeRemapsJumpTargetsAfterCollapse pins down a regression: a
// Jump whose target lands past instructions that collapse during the
// same round (the self-increment and power-of-two-multiply rewrites
// above it) must have its target rewritten to the new index, never
// left pointing at a stale or out-of-range address.
func TestOptimizeRemapsJumpTargetsAfterCollapse(t *testing.T) {
	code := []Instruction{
		{Opcode: OpLoadLocal, Lhs: "i"},          // 0 \ collapses to one OpIncLocal
		{Opcode: OpLoadConst, Lhs: NewInt32(1)},  // 1 |
		{Opcode: OpAdd},                          // 2 |
		{Opcode: OpStoreLocal, Lhs: "i"},          // 3 /
		{Opcode: OpLoadConst, Lhs: NewInt32(8)},  // 4 \ collapses to one OpMulPow2Shift
		{Opcode: OpMul},                          // 5 /
		{Opcode: OpJump, Lhs: 7},                  // 6: targets the Halt below
		{Opcode: OpHalt},                          // 7
	}
	out := Optimize(code)
	require.Len(t, out, 4)
	assert.Equal(t, OpIncLocal, out[0].Opcode)
	assert.Equal(t, OpMulPow2Shift, out[1].Opcode)
	require.Equal(t, OpJump, out[2].Opcode)
	assert.Equal(t, 3, out[2].Lhs, "jump target must be remapped to the Halt's new index, not left at its stale old index 7")
	assert.Equal(t, OpHalt, out[3].Opcode)
}
