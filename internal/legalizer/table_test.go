package legalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anvil/internal/frontend"
	"anvil/internal/ir"
)

// brTableFunction builds:
//
//	ebb0(v0): br_table v0, ebb4, jt0     jt0 = [ebb1, ebb2, ebb3]
//
// with returns in every destination.
func brTableFunction() *ir.Function {
	fn := ir.NewFunction("dispatch", sig([]ir.Type{ir.I32}, nil))
	bx := frontend.NewFunctionBuilder(fn)

	ebb0 := bx.CreateEbb()
	v0 := bx.AppendEbbParam(ebb0, ir.I32)
	targets := []ir.Ebb{bx.CreateEbb(), bx.CreateEbb(), bx.CreateEbb()}
	defaultEbb := bx.CreateEbb()
	table := bx.CreateJumpTable(ir.JumpTableData{Targets: targets})

	bx.SwitchToBlock(ebb0)
	bx.Ins().BrTable(v0, defaultEbb, table)
	for _, ebb := range append(targets, defaultEbb) {
		bx.SwitchToBlock(ebb)
		bx.Ins().Return(nil)
	}
	return fn
}

func TestBrTableWithJumpTables(t *testing.T) {
	fn := brTableFunction()
	legalize(t, fn, rv32())

	assert.Equal(t, `    jt0 = jump_table ebb1, ebb2, ebb3

ebb0(v0: i32):
    v1 = icmp_imm uge v0, 3
    brnz v1, ebb4
    jump ebb5

ebb5:
    v2 = jump_table_base.i32 jt0
    v3 = jump_table_entry.i32 v0, v2, 4, jt0
    v4 = iadd v2, v3
    indirect_jump_table_br v4, jt0

ebb1:
    return

ebb2:
    return

ebb3:
    return

ebb4:
    return`, ir.PrintBody(fn))
}

// TestBrTableGuarded checks the bounds check in front of the indirect
// branch: the entry EBB compares uge len(jt), branches to the default
// destination, and otherwise jumps to the EBB holding the indirect branch.
func TestBrTableGuarded(t *testing.T) {
	fn := brTableFunction()
	legalize(t, fn, rv32())

	var indirect ir.Inst = ir.NoInst
	for _, ebb := range fn.Layout.Ebbs() {
		for _, inst := range fn.Layout.Insts(ebb) {
			if fn.Dfg.InstData(inst).Opcode == ir.OpIndirectJumpTableBr {
				indirect = inst
			}
		}
	}
	require.NotEqual(t, ir.NoInst, indirect)

	dispatchEbb := fn.Layout.InstEbb(indirect)
	guardEbb := ir.Ebb(0)

	insts := fn.Layout.Insts(guardEbb)
	require.Len(t, insts, 3)

	guard := fn.Dfg.InstData(insts[0])
	assert.Equal(t, ir.OpIcmpImm, guard.Opcode)
	assert.Equal(t, ir.IntUGE, guard.Cond)
	assert.Equal(t, int64(fn.JumpTables[0].Len()), guard.Imm)

	toDefault := fn.Dfg.InstData(insts[1])
	assert.Equal(t, ir.OpBrnz, toDefault.Opcode)
	assert.Equal(t, ir.Ebb(4), toDefault.Dest)

	enter := fn.Dfg.InstData(insts[2])
	assert.Equal(t, ir.OpJump, enter.Opcode)
	assert.Equal(t, dispatchEbb, enter.Dest)
}

func TestBrTableWithoutJumpTables(t *testing.T) {
	fn := brTableFunction()
	legalize(t, fn, rv32NoJumpTables())

	// The tables themselves are cleared once every br_table is lowered.
	assert.Empty(t, fn.JumpTables)

	assert.Equal(t, `ebb0(v0: i32):
    v1 = icmp_imm eq v0, 0
    brnz v1, ebb1
    jump ebb5

ebb5:
    v2 = icmp_imm eq v0, 1
    brnz v2, ebb2
    jump ebb6

ebb6:
    v3 = icmp_imm eq v0, 2
    brnz v3, ebb3
    jump ebb4

ebb1:
    return

ebb2:
    return

ebb3:
    return

ebb4:
    return`, ir.PrintBody(fn))
}
