package legalizer

import (
	"anvil/internal/flowgraph"
	"anvil/internal/ir"
	"anvil/internal/isa"
)

// Straight-line expansion rules. Each rule replaces one instruction with a
// short sequence of strictly simpler instructions; control flow is only
// ever introduced by the custom handlers.

// expandRules dispatches on the opcode of the illegal instruction.
var expandRules = map[ir.Opcode]actionFunc{
	ir.OpBnot:    expandBnot,
	ir.OpImin:    expandMinMax,
	ir.OpImax:    expandMinMax,
	ir.OpUmin:    expandMinMax,
	ir.OpUmax:    expandMinMax,
	ir.OpIcmp:    expandSmallIcmp,
	ir.OpIcmpImm: expandSmallIcmpImm,
}

func expand(inst ir.Inst, fn *ir.Function, cfg *flowgraph.ControlFlowGraph, target isa.TargetIsa) bool {
	rule, ok := expandRules[fn.Dfg.InstData(inst).Opcode]
	if !ok {
		return false
	}
	return rule(inst, fn, cfg, target)
}

// expandBnot rewrites bnot as an exclusive or with all ones.
func expandBnot(inst ir.Inst, fn *ir.Function, _ *flowgraph.ControlFlowGraph, _ isa.TargetIsa) bool {
	data := expectOpcode(fn, inst, "bnot", ir.OpBnot)
	x := data.Args[0]
	ty := data.Ty

	pos := ir.NewCursor(fn).GotoInst(inst)
	ones := pos.Ins().Iconst(ty, -1)
	fn.Replace(inst).Bxor(x, ones)
	return true
}

// expandMinMax rewrites the min/max family as a compare and a select. The
// select is itself illegal on branchy targets and expands further into a
// diamond on the next visit.
func expandMinMax(inst ir.Inst, fn *ir.Function, _ *flowgraph.ControlFlowGraph, _ isa.TargetIsa) bool {
	data := expectOpcode(fn, inst, "min/max", ir.OpImin, ir.OpImax, ir.OpUmin, ir.OpUmax)
	x, y := data.Args[0], data.Args[1]

	var cond ir.IntCC
	switch data.Opcode {
	case ir.OpImin, ir.OpImax:
		cond = ir.IntSLT
	default:
		cond = ir.IntULT
	}
	takeFirst := data.Opcode == ir.OpImin || data.Opcode == ir.OpUmin

	pos := ir.NewCursor(fn).GotoInst(inst)
	c := pos.Ins().Icmp(cond, x, y)
	if takeFirst {
		fn.Replace(inst).Select(c, x, y)
	} else {
		fn.Replace(inst).Select(c, y, x)
	}
	return true
}

// signedCond reports whether the condition orders its operands signed.
func signedCond(cc ir.IntCC) bool {
	switch cc {
	case ir.IntSLT, ir.IntSGE, ir.IntSGT, ir.IntSLE:
		return true
	}
	return false
}

// extendSmall widens a sub-word integer to i32 with the extension the
// condition code requires.
func extendSmall(pos *ir.Cursor, cc ir.IntCC, x ir.Value) ir.Value {
	if signedCond(cc) {
		return pos.Ins().Sextend(ir.I32, x)
	}
	return pos.Ins().Uextend(ir.I32, x)
}

// expandSmallIcmp widens i8/i16 compares to i32, which is the narrowest
// width the reference target can compare.
func expandSmallIcmp(inst ir.Inst, fn *ir.Function, _ *flowgraph.ControlFlowGraph, _ isa.TargetIsa) bool {
	data := expectOpcode(fn, inst, "icmp", ir.OpIcmp)
	if data.Ty != ir.I8 && data.Ty != ir.I16 {
		return false
	}
	cond := data.Cond
	x, y := data.Args[0], data.Args[1]

	pos := ir.NewCursor(fn).GotoInst(inst)
	wx := extendSmall(pos, cond, x)
	wy := extendSmall(pos, cond, y)
	fn.Replace(inst).Icmp(cond, wx, wy)
	return true
}

// expandSmallIcmpImm widens the compared value and renormalizes the
// immediate to the wider width.
func expandSmallIcmpImm(inst ir.Inst, fn *ir.Function, _ *flowgraph.ControlFlowGraph, _ isa.TargetIsa) bool {
	data := expectOpcode(fn, inst, "icmp_imm", ir.OpIcmpImm)
	if data.Ty != ir.I8 && data.Ty != ir.I16 {
		return false
	}
	cond := data.Cond
	x := data.Args[0]
	imm := normalizeImm(data.Imm, data.Ty, cond)

	pos := ir.NewCursor(fn).GotoInst(inst)
	wx := extendSmall(pos, cond, x)
	fn.Replace(inst).IcmpImm(cond, wx, imm)
	return true
}

// normalizeImm reinterprets an immediate at the original width under the
// extension the condition implies.
func normalizeImm(imm int64, ty ir.Type, cc ir.IntCC) int64 {
	shift := 64 - uint(ty.Bits())
	if signedCond(cc) {
		return imm << shift >> shift
	}
	return int64(uint64(imm) << shift >> shift)
}

// flagConsumers finds the instructions using the given flags value.
func flagConsumers(fn *ir.Function, flags ir.Value) []ir.Inst {
	var users []ir.Inst
	for ebb := fn.Layout.FirstEbb(); ebb != ir.NoEbb; ebb = fn.Layout.NextEbb(ebb) {
		for inst := fn.Layout.FirstInst(ebb); inst != ir.NoInst; inst = fn.Layout.NextInst(inst) {
			for _, arg := range fn.Dfg.InstData(inst).Args {
				if arg == flags {
					users = append(users, inst)
					break
				}
			}
		}
	}
	return users
}

// expandFlags legalizes flag-typed dataflow for targets without a flags
// register: every consumer of an ifcmp result is rewritten against a
// materialized icmp, after which the ifcmp itself is removed.
func expandFlags(inst ir.Inst, fn *ir.Function, _ *flowgraph.ControlFlowGraph, _ isa.TargetIsa) bool {
	data := fn.Dfg.InstData(inst)

	if data.Opcode == ir.OpBrif || data.Opcode == ir.OpTrapif {
		// A stray consumer whose producer lives elsewhere: rewrite just
		// this instruction if the producer is an ifcmp.
		def := fn.Dfg.ValueDef(data.Args[0])
		if def.Inst == ir.NoInst || fn.Dfg.InstData(def.Inst).Opcode != ir.OpIfcmp {
			return false
		}
		rewriteFlagConsumer(fn, inst, def.Inst)
		return true
	}

	if data.Opcode != ir.OpIfcmp {
		return false
	}

	flags := fn.Dfg.FirstResult(inst)
	for _, user := range flagConsumers(fn, flags) {
		if user == inst {
			continue
		}
		userOp := fn.Dfg.InstData(user).Opcode
		if userOp != ir.OpBrif && userOp != ir.OpTrapif {
			return false
		}
		rewriteFlagConsumer(fn, user, inst)
	}

	pos := ir.NewCursor(fn).GotoInst(inst)
	pos.RemoveInst()
	return true
}

// rewriteFlagConsumer turns one brif/trapif into the equivalent icmp plus
// brnz/trapnz pair, reading the compared operands off the producing ifcmp.
func rewriteFlagConsumer(fn *ir.Function, user, producer ir.Inst) {
	prod := fn.Dfg.InstData(producer)
	x, y := prod.Args[0], prod.Args[1]

	// Copy the fields out before inserting anything; the instruction
	// table may grow underneath the pointer.
	data := fn.Dfg.InstData(user)
	op := data.Opcode
	cond := data.Cond
	trap := data.Trap
	dest := data.Dest
	args := append([]ir.Value(nil), data.VarArgs()...)

	pos := ir.NewCursor(fn).GotoInst(user)
	c := pos.Ins().Icmp(cond, x, y)

	switch op {
	case ir.OpBrif:
		fn.Replace(user).Brnz(c, dest, args)
	case ir.OpTrapif:
		fn.Replace(user).Trapnz(c, trap)
	}
}
