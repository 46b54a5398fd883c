package legalizer

import "anvil/internal/ir"

// Value splitting for the narrowing rules, plus the branch argument
// cleanup the driver applies to every branch it passes.

// splitValue returns the low and high halves of a wide value. When the
// value was built by an iconcat the halves are reused directly; otherwise
// an isplit is materialized at the cursor.
func splitValue(pos *ir.Cursor, v ir.Value) (lo, hi ir.Value) {
	dfg := &pos.Fn.Dfg
	v = dfg.ResolveAliases(v)

	if def := dfg.ValueDef(v); def.Inst != ir.NoInst {
		data := dfg.InstData(def.Inst)
		if data.Opcode == ir.OpIconcat {
			return data.Args[0], data.Args[1]
		}
	}

	return pos.Ins().Isplit(v)
}

// simplifyBranchArguments tidies the arguments a branch passes to its
// destination. Aliases created by earlier rewrites are resolved away, and
// an argument that is trivially the destination's own parameter is dropped
// together with the parameter when nothing else observes it: only this
// branch feeds the destination and the parameter has no remaining uses.
// This is a pure DFG edit, not a rewrite; the driver does not revisit.
func simplifyBranchArguments(fn *ir.Function, branch ir.Inst) {
	fn.Dfg.ResolveAliasesInArgs(branch)

	data := fn.Dfg.InstData(branch)
	dest, ok := data.BranchDestination()
	if !ok || len(data.VarArgs()) == 0 {
		return
	}

	params := fn.Dfg.EbbParams(dest)
	fixed := len(data.Args) - len(data.VarArgs())

	for i := len(params) - 1; i >= 0; i-- {
		arg := data.Args[fixed+i]
		if arg != params[i] {
			continue
		}
		if !soleBranchTo(fn, branch, dest) || valueHasUse(fn, params[i], branch, fixed+i) {
			continue
		}
		fn.Dfg.RemoveEbbParam(dest, i)
		data.Args = append(data.Args[:fixed+i], data.Args[fixed+i+1:]...)
	}
}

// soleBranchTo reports whether branch is the only instruction targeting
// dest.
func soleBranchTo(fn *ir.Function, branch ir.Inst, dest ir.Ebb) bool {
	for ebb := fn.Layout.FirstEbb(); ebb != ir.NoEbb; ebb = fn.Layout.NextEbb(ebb) {
		for inst := fn.Layout.FirstInst(ebb); inst != ir.NoInst; inst = fn.Layout.NextInst(inst) {
			if inst == branch {
				continue
			}
			info := fn.Dfg.InstData(inst).AnalyzeBranch()
			switch info.Kind {
			case ir.BranchSingle:
				if info.Dest == dest {
					return false
				}
			case ir.BranchTable:
				if info.Dest == dest {
					return false
				}
				for _, target := range fn.JumpTables[info.Table].Targets {
					if target == dest {
						return false
					}
				}
			}
		}
	}
	return true
}

// valueHasUse reports whether v is used anywhere except the given argument
// slot of the excluded instruction.
func valueHasUse(fn *ir.Function, v ir.Value, exclude ir.Inst, excludeArg int) bool {
	for ebb := fn.Layout.FirstEbb(); ebb != ir.NoEbb; ebb = fn.Layout.NextEbb(ebb) {
		for inst := fn.Layout.FirstInst(ebb); inst != ir.NoInst; inst = fn.Layout.NextInst(inst) {
			for i, arg := range fn.Dfg.InstData(inst).Args {
				if inst == exclude && i == excludeArg {
					continue
				}
				if fn.Dfg.ResolveAliases(arg) == v {
					return true
				}
			}
		}
	}
	return false
}
