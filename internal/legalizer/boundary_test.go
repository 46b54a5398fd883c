package legalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anvil/internal/flowgraph"
	"anvil/internal/frontend"
	"anvil/internal/ir"
)

func TestNarrowWideArithmeticAndBoundary(t *testing.T) {
	fn := ir.NewFunction("wide_add", sig([]ir.Type{ir.I64, ir.I64}, []ir.Type{ir.I64}))
	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	v0 := bx.AppendEbbParam(ebb0, ir.I64)
	v1 := bx.AppendEbbParam(ebb0, ir.I64)
	bx.SwitchToBlock(ebb0)
	v2 := bx.Ins().Iadd(v0, v1)
	bx.Ins().Return([]ir.Value{v2})

	legalize(t, fn, rv32())

	// The signature splits every i64 into register halves.
	assert.Equal(t, "(i32, i32, i32, i32) -> i32, i32 fast", fn.Signature.String())

	assert.Equal(t, `ebb0(v3: i32, v4: i32, v6: i32, v7: i32):
    v5 = iconcat v3, v4
    v8 = iconcat v6, v7
    v9, v10 = iadd_cout v3, v6
    v11 = iadd_cin v4, v7, v10
    v2 = iconcat v9, v11
    return v9, v11`, ir.PrintBody(fn))
}

func TestStructReturnSignature(t *testing.T) {
	fn := ir.NewFunction("three", sig(nil, []ir.Type{ir.I32, ir.I32, ir.I32}))
	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	bx.SwitchToBlock(ebb0)
	a := bx.Ins().Iconst(ir.I32, 1)
	b := bx.Ins().Iconst(ir.I32, 2)
	c := bx.Ins().Iconst(ir.I32, 3)
	bx.Ins().Return([]ir.Value{a, b, c})

	legalize(t, fn, rv32())

	// Three return slots are more than fit in registers: the whole tuple is
	// returned through a caller-provided pointer.
	assert.Equal(t, "(i32 sret) fast", fn.Signature.String())

	assert.Equal(t, `ebb0(v3: i32):
    v0 = iconst.i32 1
    v1 = iconst.i32 2
    v2 = iconst.i32 3
    store notrap aligned v0, v3
    store notrap aligned v1, v3+4
    store notrap aligned v2, v3+8
    return`, ir.PrintBody(fn))
}

func TestCallSiteWideArguments(t *testing.T) {
	fn := ir.NewFunction("caller", sig(nil, nil))
	calleeSig := fn.Dfg.MakeSignature(sig([]ir.Type{ir.I64}, []ir.Type{ir.I64}))
	callee := fn.Dfg.MakeExtFunc(ir.ExtFuncData{Name: "wide", Sig: calleeSig})

	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	bx.SwitchToBlock(ebb0)
	v0 := bx.Ins().Iconst(ir.I64, 1)
	bx.Ins().Call(callee, []ir.Value{v0})
	bx.Ins().Return(nil)

	legalize(t, fn, rv32())

	assert.Equal(t, "(i32, i32) -> i32, i32 fast", fn.Dfg.Signatures[calleeSig].String())

	assert.Equal(t, `    sig0 = (i32, i32) -> i32, i32 fast
    fn0 = %wide sig0

ebb0:
    v2 = iconst.i32 1
    v3 = iconst.i32 0
    v0 = iconcat v2, v3
    v4, v5 = call fn0(v2, v3)
    v6 = iconcat v4, v5
    return`, ir.PrintBody(fn))
}

func TestCallSiteExtension(t *testing.T) {
	fn := ir.NewFunction("narrowcall", sig(nil, []ir.Type{ir.I32}))
	calleeSig := fn.Dfg.MakeSignature(sig([]ir.Type{ir.I8}, []ir.Type{ir.I8}))
	callee := fn.Dfg.MakeExtFunc(ir.ExtFuncData{Name: "byteop", Sig: calleeSig})

	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	bx.SwitchToBlock(ebb0)
	v0 := bx.Ins().Iconst(ir.I8, 5)
	call := bx.Ins().Call(callee, []ir.Value{v0})
	res := fn.Dfg.FirstResult(call)
	wide := bx.Ins().Sextend(ir.I32, res)
	bx.Ins().Return([]ir.Value{wide})

	legalize(t, fn, rv32())

	// i8 crosses the boundary sign-extended to i32 and is reduced back
	// for the original narrow uses.
	assert.Equal(t, "(i32 sext) -> i32 sext fast", fn.Dfg.Signatures[calleeSig].String())

	require.Equal(t, `    sig0 = (i32 sext) -> i32 sext fast
    fn0 = %byteop sig0

ebb0:
    v0 = iconst.i8 5
    v3 = sextend.i32 v0
    v4 = call fn0(v3)
    v5 = ireduce.i8 v4
    v2 = sextend.i32 v5
    return v2`, ir.PrintBody(fn))
}

func TestCallSiteStructReturn(t *testing.T) {
	fn := ir.NewFunction("sretcall", sig(nil, nil))
	calleeSig := fn.Dfg.MakeSignature(sig(nil, []ir.Type{ir.I32, ir.I32, ir.I32}))
	callee := fn.Dfg.MakeExtFunc(ir.ExtFuncData{Name: "three", Sig: calleeSig})

	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	bx.SwitchToBlock(ebb0)
	bx.Ins().Call(callee, nil)
	bx.Ins().Return(nil)

	legalize(t, fn, rv32())

	assert.Equal(t, "(i32 sret) fast", fn.Dfg.Signatures[calleeSig].String())

	// The caller allocates a return area, passes its address, and loads
	// the results back out.
	require.Len(t, fn.StackSlots, 1)
	assert.Equal(t, ir.SlotReturnArea, fn.StackSlots[0].Kind)
	assert.Equal(t, uint32(12), fn.StackSlots[0].Size)

	assert.Equal(t, `    ss0 = return_area 12
    sig0 = (i32 sret) fast
    fn0 = %three sig0

ebb0:
    v3 = stack_addr.i32 ss0
    call fn0(v3)
    v4 = load.i32 notrap aligned v3
    v5 = load.i32 notrap aligned v3+4
    v6 = load.i32 notrap aligned v3+8
    return`, ir.PrintBody(fn))
}

func TestAbiMismatchRejected(t *testing.T) {
	fn := ir.NewFunction("boolarg", sig([]ir.Type{ir.B1}, nil))
	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	bx.AppendEbbParam(ebb0, ir.B1)
	bx.SwitchToBlock(ebb0)
	bx.Ins().Return(nil)

	cfg := flowgraph.WithFunction(fn)
	err := LegalizeFunction(fn, cfg, rv32())
	var mismatch *AbiMismatchError
	require.ErrorAs(t, err, &mismatch)
}
