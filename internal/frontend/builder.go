// Package frontend provides the function construction API used by IR
// producers: a builder that tracks the current insertion block, and a
// switch builder that lowers dense and sparse value dispatch.
package frontend

import "anvil/internal/ir"

// FunctionBuilder emits instructions into a function under construction.
// Blocks are created detached and enter the layout the first time they are
// switched to.
type FunctionBuilder struct {
	Fn  *ir.Function
	cur *ir.Cursor
}

// NewFunctionBuilder wraps fn for construction.
func NewFunctionBuilder(fn *ir.Function) *FunctionBuilder {
	return &FunctionBuilder{Fn: fn, cur: ir.NewCursor(fn)}
}

// CreateEbb creates a new detached EBB.
func (b *FunctionBuilder) CreateEbb() ir.Ebb {
	return b.Fn.Dfg.MakeEbb()
}

// AppendEbbParam adds a parameter to an EBB.
func (b *FunctionBuilder) AppendEbbParam(ebb ir.Ebb, ty ir.Type) ir.Value {
	return b.Fn.Dfg.AppendEbbParam(ebb, ty)
}

// SwitchToBlock makes ebb the current insertion block, appending it to the
// layout if it is not placed yet. Instructions are appended at its bottom.
func (b *FunctionBuilder) SwitchToBlock(ebb ir.Ebb) {
	if !b.Fn.Layout.IsEbbInserted(ebb) {
		b.Fn.Layout.AppendEbb(ebb)
	}
	b.cur.GotoBottom(ebb)
}

// CreateJumpTable declares a jump table on the function.
func (b *FunctionBuilder) CreateJumpTable(data ir.JumpTableData) ir.JumpTable {
	return b.Fn.MakeJumpTable(data)
}

// Ins returns the instruction builder for the current block.
func (b *FunctionBuilder) Ins() ir.InstBuilder {
	return b.cur.Ins()
}
