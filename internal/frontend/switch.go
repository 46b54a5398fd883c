package frontend

import (
	"fmt"
	"sort"

	"anvil/internal/ir"
)

// EntryIndex is a switch case key.
type EntryIndex = int64

// Switch lowers a value dispatch over arbitrary case keys. Unlike a raw
// jump table it emits efficient code for non zero-based and sparsely
// populated key sets: consecutive runs share one jump table, everything
// else becomes a binary search over compare chains.
type Switch struct {
	cases map[EntryIndex]ir.Ebb
}

// NewSwitch creates an empty switch.
func NewSwitch() *Switch {
	return &Switch{cases: make(map[EntryIndex]ir.Ebb)}
}

// SetEntry adds a case. Setting the same key twice is a caller bug.
func (s *Switch) SetEntry(index EntryIndex, ebb ir.Ebb) {
	if prev, ok := s.cases[index]; ok {
		panic(fmt.Sprintf("switch entry %d already set to %s", index, prev))
	}
	s.cases[index] = ebb
}

// caseCluster is a maximal run of consecutive keys and their targets.
type caseCluster struct {
	firstIndex EntryIndex
	ebbs       []ir.Ebb
}

// jtDispatch is one pending jump-table dispatch block.
type jtDispatch struct {
	firstIndex EntryIndex
	ebb        ir.Ebb
	targets    []ir.Ebb
}

// buildCasesTree sorts the cases and groups maximal runs of consecutive
// keys into clusters.
func (s *Switch) buildCasesTree() []caseCluster {
	keys := make([]EntryIndex, 0, len(s.cases))
	for index := range s.cases {
		keys = append(keys, index)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var clusters []caseCluster
	for i, index := range keys {
		if i == 0 || index > keys[i-1]+1 {
			clusters = append(clusters, caseCluster{firstIndex: index})
		}
		last := &clusters[len(clusters)-1]
		last.ebbs = append(last.ebbs, s.cases[index])
	}
	return clusters
}

// buildSearchTree emits the binary search over clusters. Small cluster
// lists become a descending compare cascade; larger lists split at the
// midpoint and recurse into fresh blocks.
func buildSearchTree(bx *FunctionBuilder, val ir.Value, otherwise ir.Ebb, clusters []caseCluster, dispatches *[]jtDispatch) {
	if len(clusters) <= 3 {
		for i := len(clusters) - 1; i >= 0; i-- {
			cluster := clusters[i]
			if len(cluster.ebbs) == 1 {
				isGoodVal := bx.Ins().IcmpImm(ir.IntEQ, val, cluster.firstIndex)
				bx.Ins().Brnz(isGoodVal, cluster.ebbs[0], nil)
			} else {
				jtEbb := bx.CreateEbb()
				isGoodVal := bx.Ins().IcmpImm(ir.IntSGE, val, cluster.firstIndex)
				bx.Ins().Brnz(isGoodVal, jtEbb, nil)
				*dispatches = append(*dispatches, jtDispatch{
					firstIndex: cluster.firstIndex,
					ebb:        jtEbb,
					targets:    cluster.ebbs,
				})
			}
		}
		bx.Ins().Jump(otherwise, nil)
		return
	}

	splitPoint := len(clusters) / 2
	left, right := clusters[:splitPoint], clusters[splitPoint:]

	leftEbb := bx.CreateEbb()
	rightEbb := bx.CreateEbb()

	takeRight := bx.Ins().IcmpImm(ir.IntSGE, val, right[0].firstIndex)
	bx.Ins().Brnz(takeRight, rightEbb, nil)
	bx.Ins().Jump(leftEbb, nil)

	bx.SwitchToBlock(leftEbb)
	buildSearchTree(bx, val, otherwise, left, dispatches)

	bx.SwitchToBlock(rightEbb)
	buildSearchTree(bx, val, otherwise, right, dispatches)
}

// buildJumpTables emits one jump table per multi-entry cluster: the
// dispatch block rebases the value and branches through the table, with
// the default destination covering the out-of-range side.
func buildJumpTables(bx *FunctionBuilder, val ir.Value, otherwise ir.Ebb, dispatches []jtDispatch) {
	for i := len(dispatches) - 1; i >= 0; i-- {
		d := dispatches[i]
		var data ir.JumpTableData
		for _, target := range d.targets {
			data.Push(target)
		}
		table := bx.CreateJumpTable(data)

		bx.SwitchToBlock(d.ebb)
		discr := bx.Ins().IaddImm(val, -d.firstIndex)
		bx.Ins().BrTable(discr, otherwise, table)
	}
}

// Emit lowers the switch on val into the current block, jumping to
// otherwise when no case matches. Output is deterministic: the same cases
// always produce the same code.
func (s *Switch) Emit(bx *FunctionBuilder, val ir.Value, otherwise ir.Ebb) {
	// Targets cannot compare sub-word values against immediates; widen
	// the discriminant first.
	switch bx.Fn.Dfg.ValueType(val) {
	case ir.I8, ir.I16:
		val = bx.Ins().Uextend(ir.I32, val)
	}

	clusters := s.buildCasesTree()
	var dispatches []jtDispatch
	buildSearchTree(bx, val, otherwise, clusters, &dispatches)
	buildJumpTables(bx, val, otherwise, dispatches)
}
