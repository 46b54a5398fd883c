// Package gvn is a simple dominator-based value numbering pass over the
// same IR the legalizer works on. Instructions that recompute a visible
// value become aliases of the earlier computation.
package gvn

import (
	"fmt"

	"anvil/internal/flowgraph"
	"anvil/internal/ir"
	"anvil/internal/trace"
)

// triviallyUnsafe reports opcodes never worth considering: control flow,
// calls, traps and anything with side effects.
func triviallyUnsafe(op ir.Opcode) bool {
	return op.IsCall() || op.IsBranch() || op.IsTerminator() || op.IsReturn() ||
		op.CanTrap() || op.OtherSideEffects()
}

// instKey builds the hash key of an instruction: opcode, controlling type
// and every operand field that contributes to the computed value.
func instKey(dfg *ir.DataFlowGraph, inst ir.Inst) string {
	data := dfg.InstData(inst)
	key := fmt.Sprintf("%d:%d:%d:%d:%d:%d:%d:%d", data.Opcode, data.Ty, data.Imm,
		data.Cond, data.Offset, data.Slot, data.GV, data.Table)
	for _, arg := range data.Args {
		key += fmt.Sprintf(":%d", arg)
	}
	return key
}

// Run performs simple global value numbering on fn. EBBs are visited in a
// reverse postorder so dominating definitions are seen first; a redundant
// instruction is removed and its results aliased to the visible ones.
func Run(fn *ir.Function, cfg *flowgraph.ControlFlowGraph) {
	type visible struct {
		inst ir.Inst
		ebb  ir.Ebb
	}
	visibleValues := make(map[string]visible)

	domtree := flowgraph.DomTreeWithFunction(fn, cfg)

	pos := ir.NewCursor(fn)
	for _, ebb := range domtree.ReversePostorder() {
		pos.GotoTop(ebb)
		for {
			inst, ok := pos.NextInst()
			if !ok {
				break
			}

			// Resolve aliases, particularly ones we created earlier.
			fn.Dfg.ResolveAliasesInArgs(inst)

			op := fn.Dfg.InstData(inst).Opcode
			if triviallyUnsafe(op) {
				continue
			}
			// Redundant load elimination needs a memory model; skip
			// anything touching memory.
			if op.CanLoad() || op.CanStore() {
				continue
			}

			key := instKey(&fn.Dfg, inst)
			if prev, ok := visibleValues[key]; ok && domtree.Dominates(prev.ebb, ebb) {
				trace.Printf("gvn: %s is redundant with %s", fn.DisplayInst(inst), prev.inst)
				prevResults := fn.Dfg.InstResults(prev.inst)
				for i, res := range fn.Dfg.InstResults(inst) {
					fn.Dfg.ChangeToAlias(res, prevResults[i])
				}
				pos.RemoveInstAndStepBack()
				continue
			}
			visibleValues[key] = visible{inst: inst, ebb: ebb}
		}
	}
}
