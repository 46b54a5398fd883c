package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFunction() *Function {
	return NewFunction("test", Signature{
		Params:   []AbiParam{{Ty: I32}},
		CallConv: CallConvFast,
	})
}

func TestLayoutAppendAndIterate(t *testing.T) {
	fn := testFunction()
	ebb0 := fn.Dfg.MakeEbb()
	ebb1 := fn.Dfg.MakeEbb()
	fn.Layout.AppendEbb(ebb0)
	fn.Layout.AppendEbb(ebb1)

	assert.Equal(t, ebb0, fn.Layout.EntryBlock())
	assert.Equal(t, []Ebb{ebb0, ebb1}, fn.Layout.Ebbs())

	cur := NewCursor(fn).GotoBottom(ebb0)
	v0 := fn.Dfg.AppendEbbParam(ebb0, I32)
	v1 := cur.Ins().Iadd(v0, v0)
	cur.Ins().Brnz(v1, ebb1, nil)
	cur.Ins().Jump(ebb1, nil)

	insts := fn.Layout.Insts(ebb0)
	require.Len(t, insts, 3)
	assert.Equal(t, OpIadd, fn.Dfg.InstData(insts[0]).Opcode)
	assert.Equal(t, OpBrnz, fn.Dfg.InstData(insts[1]).Opcode)
	assert.Equal(t, OpJump, fn.Dfg.InstData(insts[2]).Opcode)

	assert.Equal(t, ebb0, fn.Layout.InstEbb(insts[1]))
	assert.Equal(t, insts[0], fn.Layout.PrevInst(insts[1]))
	assert.Equal(t, insts[2], fn.Layout.NextInst(insts[1]))
}

func TestCursorInsertsBeforeCurrent(t *testing.T) {
	fn := testFunction()
	ebb0 := fn.Dfg.MakeEbb()
	fn.Layout.AppendEbb(ebb0)

	cur := NewCursor(fn).GotoBottom(ebb0)
	cur.Ins().Return(nil)

	ret := fn.Layout.FirstInst(ebb0)
	cur.GotoInst(ret)
	a := cur.Ins().Iconst(I32, 1)
	b := cur.Ins().Iconst(I32, 2)

	insts := fn.Layout.Insts(ebb0)
	require.Len(t, insts, 3)
	// Consecutive insertions appear in call order, before the cursor.
	assert.Equal(t, a, fn.Dfg.FirstResult(insts[0]))
	assert.Equal(t, b, fn.Dfg.FirstResult(insts[1]))
	assert.Equal(t, ret, insts[2])
}

func TestCursorTraversalSurvivesMutation(t *testing.T) {
	fn := testFunction()
	ebb0 := fn.Dfg.MakeEbb()
	fn.Layout.AppendEbb(ebb0)

	cur := NewCursor(fn).GotoBottom(ebb0)
	v0 := cur.Ins().Iconst(I32, 7)
	cur.Ins().Brnz(v0, ebb0, nil)
	cur.Ins().Return(nil)

	// Walk with a second cursor, inserting while iterating.
	walk := NewCursor(fn)
	_, ok := walk.NextEbb()
	require.True(t, ok)

	var seen []Opcode
	for {
		inst, ok := walk.NextInst()
		if !ok {
			break
		}
		seen = append(seen, fn.Dfg.InstData(inst).Opcode)
		if fn.Dfg.InstData(inst).Opcode == OpIconst {
			// Splice a copy right after the current instruction; the
			// next step must pick it up.
			ins := NewCursor(fn).GotoAfterInst(inst)
			ins.Ins().Copy(v0)
		}
	}
	assert.Equal(t, []Opcode{OpIconst, OpCopy, OpBrnz, OpReturn}, seen)
}

func TestCursorBackstep(t *testing.T) {
	fn := testFunction()
	ebb0 := fn.Dfg.MakeEbb()
	fn.Layout.AppendEbb(ebb0)

	cur := NewCursor(fn).GotoBottom(ebb0)
	cur.Ins().Iconst(I32, 1)
	cur.Ins().Return(nil)

	walk := NewCursor(fn)
	walk.NextEbb()
	saved := walk.Position()
	first, _ := walk.NextInst()

	walk.NextInst()
	walk.SetPosition(saved)
	again, ok := walk.NextInst()
	require.True(t, ok)
	assert.Equal(t, first, again)
}

func TestInsertEbbSplitsAtCursor(t *testing.T) {
	fn := testFunction()
	ebb0 := fn.Dfg.MakeEbb()
	fn.Layout.AppendEbb(ebb0)

	cur := NewCursor(fn).GotoBottom(ebb0)
	v0 := cur.Ins().Iconst(I32, 1)
	v1 := cur.Ins().Iadd(v0, v0)
	cur.Ins().Return([]Value{v1})

	addDef := fn.Dfg.ValueDef(v1)
	cur.GotoInst(addDef.Inst)

	newEbb := fn.Dfg.MakeEbb()
	cur.InsertEbb(newEbb)

	// The iadd and the return moved into the new EBB.
	assert.Equal(t, []Ebb{ebb0, newEbb}, fn.Layout.Ebbs())
	require.Len(t, fn.Layout.Insts(ebb0), 1)
	require.Len(t, fn.Layout.Insts(newEbb), 2)
	assert.Equal(t, newEbb, fn.Layout.InstEbb(addDef.Inst))

	// The cursor stays at the same instruction, now in the new EBB.
	assert.Equal(t, addDef.Inst, cur.CurrentInst())
	assert.Equal(t, newEbb, cur.CurrentEbb())
}

func TestRemoveInstAdvances(t *testing.T) {
	fn := testFunction()
	ebb0 := fn.Dfg.MakeEbb()
	fn.Layout.AppendEbb(ebb0)

	cur := NewCursor(fn).GotoBottom(ebb0)
	cur.Ins().Iconst(I32, 1)
	cur.Ins().Return(nil)

	first := fn.Layout.FirstInst(ebb0)
	cur.GotoInst(first)
	cur.RemoveInst()

	require.Len(t, fn.Layout.Insts(ebb0), 1)
	assert.Equal(t, OpReturn, fn.Dfg.InstData(fn.Layout.FirstInst(ebb0)).Opcode)
	assert.Equal(t, OpReturn, fn.Dfg.InstData(cur.CurrentInst()).Opcode)
}
