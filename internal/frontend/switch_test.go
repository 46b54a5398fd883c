package frontend

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"anvil/internal/ir"
)

// setupSwitchKeys builds an entry block with an i8 discriminant, one case
// EBB per key in listed order, and emits the switch with the given default
// EBB number.
func setupSwitchKeys(defaultEbb int, keys ...int64) string {
	fn := ir.NewFunction("sw", ir.Signature{CallConv: ir.CallConvFast})
	bx := NewFunctionBuilder(fn)
	ebb := bx.CreateEbb()
	bx.SwitchToBlock(ebb)
	val := bx.Ins().Iconst(ir.I8, 0)

	sw := NewSwitch()
	for _, key := range keys {
		caseEbb := bx.CreateEbb()
		sw.SetEntry(key, caseEbb)
	}
	sw.Emit(bx, val, ir.Ebb(defaultEbb))
	return ir.PrintBody(fn)
}

func TestSwitchZero(t *testing.T) {
	assert.Equal(t, `ebb0:
    v0 = iconst.i8 0
    v1 = uextend.i32 v0
    v2 = icmp_imm eq v1, 0
    brnz v2, ebb1
    jump ebb0`, setupSwitchKeys(0, 0))
}

func TestSwitchSingle(t *testing.T) {
	assert.Equal(t, `ebb0:
    v0 = iconst.i8 0
    v1 = uextend.i32 v0
    v2 = icmp_imm eq v1, 1
    brnz v2, ebb1
    jump ebb0`, setupSwitchKeys(0, 1))
}

func TestSwitchBool(t *testing.T) {
	assert.Equal(t, `    jt0 = jump_table ebb1, ebb2

ebb0:
    v0 = iconst.i8 0
    v1 = uextend.i32 v0
    v2 = icmp_imm sge v1, 0
    brnz v2, ebb3
    jump ebb0

ebb3:
    v3 = iadd_imm v1, 0
    br_table v3, ebb0, jt0`, setupSwitchKeys(0, 0, 1))
}

func TestSwitchTwoGap(t *testing.T) {
	// S5: sparse keys {0, 2} with default ebb0.
	assert.Equal(t, `ebb0:
    v0 = iconst.i8 0
    v1 = uextend.i32 v0
    v2 = icmp_imm eq v1, 2
    brnz v2, ebb2
    v3 = icmp_imm eq v1, 0
    brnz v3, ebb1
    jump ebb0`, setupSwitchKeys(0, 0, 2))
}

func TestSwitchMany(t *testing.T) {
	// S6: keys {0,1,5,7,10,11,12} produce two jump tables and a binary
	// search tree pivoting at key 7.
	assert.Equal(t, `    jt0 = jump_table ebb5, ebb6, ebb7
    jt1 = jump_table ebb1, ebb2

ebb0:
    v0 = iconst.i8 0
    v1 = uextend.i32 v0
    v2 = icmp_imm sge v1, 7
    brnz v2, ebb9
    jump ebb8

ebb8:
    v3 = icmp_imm eq v1, 5
    brnz v3, ebb3
    v4 = icmp_imm sge v1, 0
    brnz v4, ebb10
    jump ebb0

ebb9:
    v5 = icmp_imm sge v1, 10
    brnz v5, ebb11
    v6 = icmp_imm eq v1, 7
    brnz v6, ebb4
    jump ebb0

ebb11:
    v7 = iadd_imm v1, -10
    br_table v7, ebb0, jt0

ebb10:
    v8 = iadd_imm v1, 0
    br_table v8, ebb0, jt1`, setupSwitchKeys(0, 0, 1, 5, 7, 10, 11, 12))
}

func TestSwitchMinIndexValue(t *testing.T) {
	assert.Equal(t, `ebb0:
    v0 = iconst.i8 0
    v1 = uextend.i32 v0
    v2 = icmp_imm eq v1, 1
    brnz v2, ebb2
    v3 = icmp_imm eq v1, -9223372036854775808
    brnz v3, ebb1
    jump ebb0`, setupSwitchKeys(0, math.MinInt64, 1))
}

func TestSwitchMaxIndexValue(t *testing.T) {
	assert.Equal(t, `ebb0:
    v0 = iconst.i8 0
    v1 = uextend.i32 v0
    v2 = icmp_imm eq v1, 9223372036854775807
    brnz v2, ebb1
    v3 = icmp_imm eq v1, 1
    brnz v3, ebb2
    jump ebb0`, setupSwitchKeys(0, math.MaxInt64, 1))
}

func TestSwitchDuplicateEntryPanics(t *testing.T) {
	sw := NewSwitch()
	fn := ir.NewFunction("dup", ir.Signature{CallConv: ir.CallConvFast})
	bx := NewFunctionBuilder(fn)
	ebb := bx.CreateEbb()
	sw.SetEntry(3, ebb)
	assert.Panics(t, func() { sw.SetEntry(3, ebb) })
}

// TestSwitchDeterministic checks that emitting the same cases twice
// produces byte-identical code.
func TestSwitchDeterministic(t *testing.T) {
	build := func() string {
		return setupSwitchKeys(0, 0, 1, 5, 7, 10, 11, 12)
	}
	assert.Equal(t, build(), build())
}
