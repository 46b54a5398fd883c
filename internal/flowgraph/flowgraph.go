// Package flowgraph derives the control flow graph of a function from its
// layout and terminators, and keeps it current across local edits.
package flowgraph

import (
	"sort"

	"anvil/internal/ir"
)

// BasicBlockPredecessor is one incoming edge of an EBB: the predecessor
// block together with the branch instruction forming the edge.
type BasicBlockPredecessor struct {
	Ebb  ir.Ebb
	Inst ir.Inst
}

// ControlFlowGraph is the predecessor index of a function's EBBs.
type ControlFlowGraph struct {
	preds map[ir.Ebb][]BasicBlockPredecessor
	succs map[ir.Ebb][]ir.Ebb
	valid bool
}

// New returns an empty, invalid CFG.
func New() *ControlFlowGraph {
	return &ControlFlowGraph{}
}

// WithFunction computes the CFG of fn.
func WithFunction(fn *ir.Function) *ControlFlowGraph {
	cfg := New()
	cfg.Compute(fn)
	return cfg
}

// IsValid reports whether the CFG has been computed.
func (c *ControlFlowGraph) IsValid() bool { return c.valid }

// Compute rebuilds the whole CFG from the layout.
func (c *ControlFlowGraph) Compute(fn *ir.Function) {
	c.preds = make(map[ir.Ebb][]BasicBlockPredecessor)
	c.succs = make(map[ir.Ebb][]ir.Ebb)
	for ebb := fn.Layout.FirstEbb(); ebb != ir.NoEbb; ebb = fn.Layout.NextEbb(ebb) {
		c.computeEbb(fn, ebb)
	}
	c.valid = true
}

// RecomputeEbb rescans the out-edges of a single EBB after a local edit.
// Both the edited EBB and any EBB split off from it must be recomputed by
// the same edit.
func (c *ControlFlowGraph) RecomputeEbb(fn *ir.Function, ebb ir.Ebb) {
	c.invalidateEbb(ebb)
	c.computeEbb(fn, ebb)
}

func (c *ControlFlowGraph) invalidateEbb(ebb ir.Ebb) {
	for _, succ := range c.succs[ebb] {
		preds := c.preds[succ][:0]
		for _, p := range c.preds[succ] {
			if p.Ebb != ebb {
				preds = append(preds, p)
			}
		}
		c.preds[succ] = preds
	}
	delete(c.succs, ebb)
}

func (c *ControlFlowGraph) computeEbb(fn *ir.Function, ebb ir.Ebb) {
	for inst := fn.Layout.FirstInst(ebb); inst != ir.NoInst; inst = fn.Layout.NextInst(inst) {
		info := fn.Dfg.InstData(inst).AnalyzeBranch()
		switch info.Kind {
		case ir.BranchSingle:
			c.addEdge(ebb, inst, info.Dest)
		case ir.BranchTable:
			if info.Dest != ir.NoEbb {
				c.addEdge(ebb, inst, info.Dest)
			}
			for _, target := range fn.JumpTables[info.Table].Targets {
				c.addEdge(ebb, inst, target)
			}
		}
	}
}

func (c *ControlFlowGraph) addEdge(from ir.Ebb, inst ir.Inst, to ir.Ebb) {
	for _, p := range c.preds[to] {
		if p.Ebb == from && p.Inst == inst {
			return
		}
	}
	c.preds[to] = append(c.preds[to], BasicBlockPredecessor{Ebb: from, Inst: inst})
	for _, s := range c.succs[from] {
		if s == to {
			return
		}
	}
	c.succs[from] = append(c.succs[from], to)
}

// Preds returns the predecessors of an EBB in a deterministic order.
func (c *ControlFlowGraph) Preds(ebb ir.Ebb) []BasicBlockPredecessor {
	preds := append([]BasicBlockPredecessor(nil), c.preds[ebb]...)
	sort.Slice(preds, func(i, j int) bool {
		if preds[i].Ebb != preds[j].Ebb {
			return preds[i].Ebb < preds[j].Ebb
		}
		return preds[i].Inst < preds[j].Inst
	})
	return preds
}

// Succs returns the successors of an EBB in a deterministic order.
func (c *ControlFlowGraph) Succs(ebb ir.Ebb) []ir.Ebb {
	succs := append([]ir.Ebb(nil), c.succs[ebb]...)
	sort.Slice(succs, func(i, j int) bool { return succs[i] < succs[j] })
	return succs
}
