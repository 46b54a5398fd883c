package legalizer

import (
	"fmt"

	"anvil/internal/flowgraph"
	"anvil/internal/ir"
	"anvil/internal/isa"
)

// Custom expansions for the control-flow constructs the declarative rule
// tables cannot express.

func expectOpcode(fn *ir.Function, inst ir.Inst, want string, ops ...ir.Opcode) *ir.InstructionData {
	data := fn.Dfg.InstData(inst)
	for _, op := range ops {
		if data.Opcode == op {
			return data
		}
	}
	panic(fmt.Sprintf("expected %s: %s", want, fn.DisplayInst(inst)))
}

// expandCondTrap splits the EBB after a conditional trap so the trap
// becomes a branch over an unconditional trap:
//
//	trapnz arg
//
// becomes
//
//	brz arg, newEbb
//	trap
//	newEbb:
func expandCondTrap(inst ir.Inst, fn *ir.Function, cfg *flowgraph.ControlFlowGraph, _ isa.TargetIsa) bool {
	data := expectOpcode(fn, inst, "cond trap", ir.OpTrapz, ir.OpTrapnz)
	trapz := data.Opcode == ir.OpTrapz
	arg := data.Args[0]
	code := data.Trap

	oldEbb := fn.Layout.InstEbb(inst)
	newEbb := fn.Dfg.MakeEbb()

	// Branch over the trap on the inverse of the original condition.
	if trapz {
		fn.Replace(inst).Brnz(arg, newEbb, nil)
	} else {
		fn.Replace(inst).Brz(arg, newEbb, nil)
	}

	pos := ir.NewCursor(fn).GotoAfterInst(inst)
	pos.Ins().Trap(code)
	pos.InsertEbb(newEbb)

	cfg.RecomputeEbb(fn, oldEbb)
	cfg.RecomputeEbb(fn, newEbb)
	return true
}

// expandSelect replaces a select with a diamond joining at a new EBB whose
// parameter carries the chosen value:
//
//	result = select ctrl, tval, fval
//
// becomes
//
//	brnz ctrl, newEbb(tval)
//	jump newEbb(fval)
//	newEbb(result):
func expandSelect(inst ir.Inst, fn *ir.Function, cfg *flowgraph.ControlFlowGraph, _ isa.TargetIsa) bool {
	data := expectOpcode(fn, inst, "select", ir.OpSelect)
	ctrl, tval, fval := data.Args[0], data.Args[1], data.Args[2]

	oldEbb := fn.Layout.InstEbb(inst)
	result := fn.Dfg.FirstResult(inst)
	fn.Dfg.ClearResults(inst)
	newEbb := fn.Dfg.MakeEbb()
	fn.Dfg.AttachEbbParam(newEbb, result)

	fn.Replace(inst).Brnz(ctrl, newEbb, []ir.Value{tval})
	pos := ir.NewCursor(fn).GotoAfterInst(inst)
	pos.Ins().Jump(newEbb, []ir.Value{fval})
	pos.InsertEbb(newEbb)

	cfg.RecomputeEbb(fn, newEbb)
	cfg.RecomputeEbb(fn, oldEbb)
	return true
}

// expandBrIcmp materializes the comparison of a compare-and-branch as an
// icmp followed by a plain brnz.
func expandBrIcmp(inst ir.Inst, fn *ir.Function, cfg *flowgraph.ControlFlowGraph, _ isa.TargetIsa) bool {
	data := expectOpcode(fn, inst, "br_icmp", ir.OpBrIcmp)
	cond := data.Cond
	a, b := data.Args[0], data.Args[1]
	dest := data.Dest
	ebbArgs := append([]ir.Value(nil), data.VarArgs()...)

	oldEbb := fn.Layout.InstEbb(inst)
	fn.Dfg.ClearResults(inst)

	res := fn.Replace(inst).Icmp(cond, a, b)
	pos := ir.NewCursor(fn).GotoAfterInst(inst)
	pos.Ins().Brnz(res, dest, ebbArgs)

	cfg.RecomputeEbb(fn, dest)
	cfg.RecomputeEbb(fn, oldEbb)
	return true
}

// expandFconst materializes a floating constant through an integer
// constant of the same bit pattern and a bitcast. Constant pool entries
// would also work; this keeps the constant in the instruction stream.
func expandFconst(inst ir.Inst, fn *ir.Function, _ *flowgraph.ControlFlowGraph, _ isa.TargetIsa) bool {
	data := expectOpcode(fn, inst, "fconst", ir.OpF32const, ir.OpF64const)
	ty := fn.Dfg.ValueType(fn.Dfg.FirstResult(inst))

	pos := ir.NewCursor(fn).GotoInst(inst)
	var ival ir.Value
	if data.Opcode == ir.OpF32const {
		ival = pos.Ins().Iconst(ir.I32, int64(uint32(data.Imm)))
	} else {
		ival = pos.Ins().Iconst(ir.I64, data.Imm)
	}
	fn.Replace(inst).Bitcast(ty, ival)
	return true
}

// expandStackLoad turns a stack load into a stack address computation and
// an ordinary load. Stack slots are always accessible and aligned.
func expandStackLoad(inst ir.Inst, fn *ir.Function, _ *flowgraph.ControlFlowGraph, target isa.TargetIsa) bool {
	data := expectOpcode(fn, inst, "stack_load", ir.OpStackLoad)
	ty := fn.Dfg.ValueType(fn.Dfg.FirstResult(inst))
	slot, offset := data.Slot, data.Offset

	pos := ir.NewCursor(fn).GotoInst(inst)
	addr := pos.Ins().StackAddr(target.PointerType(), slot, offset)
	fn.Replace(inst).Load(ty, ir.TrustedMemFlags(), addr, 0)
	return true
}

// expandStackStore turns a stack store into a stack address computation
// and an ordinary store.
func expandStackStore(inst ir.Inst, fn *ir.Function, _ *flowgraph.ControlFlowGraph, target isa.TargetIsa) bool {
	data := expectOpcode(fn, inst, "stack_store", ir.OpStackStore)
	val := data.Args[0]
	slot, offset := data.Slot, data.Offset

	pos := ir.NewCursor(fn).GotoInst(inst)
	addr := pos.Ins().StackAddr(target.PointerType(), slot, offset)
	fn.Replace(inst).Store(ir.TrustedMemFlags(), val, addr, 0)
	return true
}

// expandStackCheck loads the stack limit from its global value, compares
// the stack pointer against it and traps on overflow.
func expandStackCheck(inst ir.Inst, fn *ir.Function, _ *flowgraph.ControlFlowGraph, target isa.TargetIsa) bool {
	data := expectOpcode(fn, inst, "stack_check", ir.OpStackCheck)
	gv := data.GV
	ptrTy := target.PointerType()

	pos := ir.NewCursor(fn).GotoInst(inst)
	limitAddr := pos.Ins().GlobalAddr(ptrTy, gv)
	limit := pos.Ins().Load(ptrTy, ir.TrustedMemFlags(), limitAddr, 0)
	cflags := pos.Ins().IfcmpSp(limit)
	fn.Replace(inst).Trapif(ir.IntUGE, cflags, ir.TrapStackOverflow)
	return true
}
