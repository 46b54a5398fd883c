// Package legalizer rewrites a function until every remaining instruction
// can be encoded directly for the target ISA, filling out the function's
// encodings map as it goes.
//
// A legal instruction is one that maps to a single machine instruction.
// Which instructions are legal depends on the target, so the pass is
// driven by the target's encoding oracle: instructions the oracle accepts
// are recorded, everything else is transformed by the strategy the oracle
// names and the transformed code is revisited until it settles.
//
// The legalizer does not deal with register allocation constraints; those
// are derived from the encoding recipes and solved later.
package legalizer

import (
	"fmt"

	"anvil/internal/flowgraph"
	"anvil/internal/ir"
	"anvil/internal/isa"
	"anvil/internal/trace"
)

// actionFunc is one legalization strategy. It mutates the function via the
// cursor, DFG and layout, keeps the CFG current, and reports whether it
// changed anything.
type actionFunc func(inst ir.Inst, fn *ir.Function, cfg *flowgraph.ControlFlowGraph, target isa.TargetIsa) bool

// customHandlers maps the handler names targets hand out in Custom actions
// to the hand-written expansions below.
var customHandlers = map[string]actionFunc{
	"cond_trap":   expandCondTrap,
	"br_table":    expandBrTable,
	"select":      expandSelect,
	"br_icmp":     expandBrIcmp,
	"fconst":      expandFconst,
	"stack_load":  expandStackLoad,
	"stack_store": expandStackStore,
	"stack_check": expandStackCheck,
}

func actionForKind(action isa.Action) actionFunc {
	switch action.Kind {
	case isa.ActionNarrow:
		return narrow
	case isa.ActionExpand:
		return expand
	case isa.ActionExpandFlags:
		return expandFlags
	case isa.ActionCustom:
		return customHandlers[action.Handler]
	}
	return nil
}

// maxInstVisits bounds how often one instruction slot may be revisited.
// A sound rule set converges quickly; hitting the cap means a pattern
// rewrote an instruction into something that rewrites back.
const maxInstVisits = 100

// LegalizeFunction legalizes fn for the target.
//
// Every instruction without a legal representation is transformed, and
// fn.Encodings is filled out for all instructions. The caller's CFG must
// be valid on entry and is kept current; the dominator tree is not, and
// should be recomputed afterwards.
func LegalizeFunction(fn *ir.Function, cfg *flowgraph.ControlFlowGraph, target isa.TargetIsa) (err error) {
	if !cfg.IsValid() {
		return &InvalidCFGError{}
	}

	// Broken invariants surface as panics from the IR layer; report them
	// as errors instead of tearing down the caller, which may have other
	// functions to compile.
	defer func() {
		if r := recover(); r != nil {
			err = &InternalInvariantError{Message: fmt.Sprint(r)}
		}
	}()

	if err := legalizeSignatures(fn, target); err != nil {
		return err
	}

	fn.ResizeEncodings()

	visits := make([]uint8, fn.Dfg.NumInsts())

	pos := ir.NewCursor(fn)

	// Process EBBs in layout order. Expansions may split the current EBB
	// or append new ones; the cursor picks those up in their layout order.
	for {
		if _, ok := pos.NextEbb(); !ok {
			break
		}

		// Track the position just before the current instruction so we
		// can double back and legalize whatever a rewrite inserted.
		prevPos := pos.Position()

		for {
			inst, ok := pos.NextInst()
			if !ok {
				break
			}

			for int(inst) >= len(visits) {
				visits = append(visits, 0)
			}
			if visits[inst] >= maxInstVisits {
				return &InternalInvariantError{
					Message: fmt.Sprintf("legalization of %s did not converge", fn.DisplayInst(inst)),
				}
			}
			visits[inst]++

			changed, err := legalizeInst(inst, pos, cfg, target)
			if err != nil {
				return err
			}
			if changed {
				pos.SetPosition(prevPos)
			} else {
				prevPos = pos.Position()
			}
		}
	}

	// Every br_table is gone now, so targets without hardware table
	// dispatch have no use for the jump tables either.
	if !target.Flags().JumpTablesEnabled {
		fn.ClearJumpTables()
	}

	return nil
}

// legalizeInst legalizes one instruction. It reports true when the code
// changed and the caller needs to double back.
func legalizeInst(inst ir.Inst, pos *ir.Cursor, cfg *flowgraph.ControlFlowGraph, target isa.TargetIsa) (bool, error) {
	fn := pos.Fn
	opcode := fn.Dfg.InstData(inst).Opcode

	// Look through aliases left behind by earlier rewrites so encoding
	// and the handlers below see the real operands.
	fn.Dfg.ResolveAliasesInArgs(inst)

	// Check for ABI boundaries that need to be converted to the
	// legalized signature.
	if opcode.IsCall() {
		changed, err := handleCallABI(inst, fn, target)
		if changed || err != nil {
			return changed, err
		}
	} else if opcode.IsReturn() {
		changed, err := handleReturnABI(inst, fn, target)
		if changed || err != nil {
			return changed, err
		}
	} else if opcode.IsBranch() {
		simplifyBranchArguments(fn, inst)
	}

	enc, action, ok := target.Encode(&fn.Dfg, fn.Dfg.InstData(inst), fn.Dfg.CtrlTypevar(inst))
	if ok {
		fn.Encodings[inst] = enc
		return false, nil
	}

	// Transform the instruction into legal equivalents. The rewritten
	// sequence is revisited by the caller, both to assign encodings and
	// possibly to expand further.
	trace.Printf("legalize %s: %s", fn.DisplayInst(inst), action)
	if handler := actionForKind(action); handler != nil {
		if handler(inst, fn, cfg, target) {
			return true, nil
		}
	}

	// No pattern expansion for this instruction either. Try converting
	// it to a library call as a last resort.
	if expandAsLibcall(inst, fn, target) {
		return true, nil
	}

	return false, &UnlegalizableInstructionError{
		Inst:    inst,
		Opcode:  opcode,
		Ty:      fn.Dfg.CtrlTypevar(inst),
		Display: fn.DisplayInst(inst),
	}
}
