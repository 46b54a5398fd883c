package legalizer

import (
	"anvil/internal/flowgraph"
	"anvil/internal/ir"
	"anvil/internal/isa"
)

// expandBrTable lowers br_table either to a hardware jump table dispatch
// or, on targets without one, to a chain of conditional branches.
func expandBrTable(inst ir.Inst, fn *ir.Function, cfg *flowgraph.ControlFlowGraph, target isa.TargetIsa) bool {
	if target.Flags().JumpTablesEnabled {
		return expandBrTableJt(inst, fn, cfg, target)
	}
	return expandBrTableConds(inst, fn, cfg, target)
}

// expandBrTableJt rewrites
//
//	br_table idx, defaultEbb, jt
//
// into a bounds check followed by an indirect branch through the table:
//
//	oob = icmp_imm uge idx, len(jt)
//	brnz oob, defaultEbb
//	jump tableEbb
//	tableEbb:
//	    base = jump_table_base.ptr jt
//	    rel = jump_table_entry.ptr idx, base, 4, jt
//	    addr = iadd base, rel
//	    indirect_jump_table_br addr, jt
func expandBrTableJt(inst ir.Inst, fn *ir.Function, cfg *flowgraph.ControlFlowGraph, target isa.TargetIsa) bool {
	data := expectOpcode(fn, inst, "br_table", ir.OpBrTable)
	arg := data.Args[0]
	defaultEbb := data.Dest
	table := data.Table

	tableSize := fn.JumpTables[table].Len()
	addrTy := target.PointerType()
	entrySize := int64(ir.I32.Bytes())

	ebb := fn.Layout.InstEbb(inst)
	tableEbb := fn.Dfg.MakeEbb()

	pos := ir.NewCursor(fn).GotoInst(inst)

	// Bounds check.
	oob := pos.Ins().IcmpImm(ir.IntUGE, arg, int64(tableSize))
	pos.Ins().Brnz(oob, defaultEbb, nil)
	pos.Ins().Jump(tableEbb, nil)
	pos.InsertEbb(tableEbb)

	base := pos.Ins().JumpTableBase(addrTy, table)
	entry := pos.Ins().JumpTableEntry(addrTy, arg, base, entrySize, table)
	addr := pos.Ins().Iadd(base, entry)
	pos.Ins().IndirectJumpTableBr(addr, table)

	pos.RemoveInst()
	cfg.RecomputeEbb(fn, ebb)
	cfg.RecomputeEbb(fn, tableEbb)
	return true
}

// expandBrTableConds is a poor man's jump table: one equality test per
// table entry, falling through to the default destination.
func expandBrTableConds(inst ir.Inst, fn *ir.Function, cfg *flowgraph.ControlFlowGraph, _ isa.TargetIsa) bool {
	data := expectOpcode(fn, inst, "br_table", ir.OpBrTable)
	arg := data.Args[0]
	defaultEbb := data.Dest
	table := data.Table

	ebb := fn.Layout.InstEbb(inst)
	tableSize := fn.JumpTables[table].Len()

	condFailedEbb := make([]ir.Ebb, tableSize-1)
	for i := range condFailedEbb {
		condFailedEbb[i] = fn.Dfg.MakeEbb()
	}

	pos := ir.NewCursor(fn).GotoInst(inst)

	for i := 0; i < tableSize; i++ {
		dest := fn.JumpTables[table].Entry(i)
		t := pos.Ins().IcmpImm(ir.IntEQ, arg, int64(i))
		pos.Ins().Brnz(t, dest, nil)
		// Continue matching in a fresh EBB.
		if i < tableSize-1 {
			pos.Ins().Jump(condFailedEbb[i], nil)
			pos.InsertEbb(condFailedEbb[i])
		}
	}

	// br_table jumps to the default destination when nothing matches.
	pos.Ins().Jump(defaultEbb, nil)

	pos.RemoveInst()
	cfg.RecomputeEbb(fn, ebb)
	for _, failedEbb := range condFailedEbb {
		cfg.RecomputeEbb(fn, failedEbb)
	}
	return true
}
