package flowgraph

import (
	"fmt"
	"strings"

	"anvil/internal/ir"
)

// PrintDot renders the function's control flow graph in graphviz dot
// format, one node per EBB labeled with its parameters and branch
// instructions.
func PrintDot(fn *ir.Function, cfg *ControlFlowGraph) string {
	var b strings.Builder
	b.WriteString("digraph {\n")

	for _, ebb := range fn.Layout.Ebbs() {
		fmt.Fprintf(&b, "    %s [shape=record, label=\"{%s", ebb, ebb)
		for _, inst := range fn.Layout.Insts(ebb) {
			data := fn.Dfg.InstData(inst)
			if data.Opcode.IsBranch() {
				fmt.Fprintf(&b, " | <%s>%s", inst, data.Opcode)
			}
		}
		b.WriteString("}\"]\n")
	}

	for _, ebb := range fn.Layout.Ebbs() {
		for _, pred := range cfg.Preds(ebb) {
			fmt.Fprintf(&b, "    %s:%s -> %s\n", pred.Ebb, pred.Inst, ebb)
		}
	}

	b.WriteString("}\n")
	return b.String()
}
