package legalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anvil/internal/flowgraph"
	"anvil/internal/frontend"
	"anvil/internal/ir"
	"anvil/internal/isa"
	"anvil/internal/isa/rv"
)

func rv32() isa.TargetIsa {
	return rv.New(isa.Flags{JumpTablesEnabled: true})
}

func rv32NoJumpTables() isa.TargetIsa {
	return rv.New(isa.Flags{})
}

func sig(params, returns []ir.Type) ir.Signature {
	s := ir.Signature{CallConv: ir.CallConvFast}
	for _, ty := range params {
		s.Params = append(s.Params, ir.AbiParam{Ty: ty})
	}
	for _, ty := range returns {
		s.Returns = append(s.Returns, ir.AbiParam{Ty: ty})
	}
	return s
}

// legalize runs the pass and checks the invariants every successful run
// must establish: full encoding coverage, a well-formed layout, and a CFG
// matching a fresh scan of the terminators.
func legalize(t *testing.T, fn *ir.Function, target isa.TargetIsa) {
	t.Helper()
	cfg := flowgraph.WithFunction(fn)
	require.NoError(t, LegalizeFunction(fn, cfg, target))
	require.NoError(t, ir.Verify(fn))

	for _, ebb := range fn.Layout.Ebbs() {
		for _, inst := range fn.Layout.Insts(ebb) {
			assert.True(t, fn.InstEncoding(inst).IsLegal(),
				"no encoding for %s", fn.DisplayInst(inst))
		}
	}

	fresh := flowgraph.WithFunction(fn)
	for _, ebb := range fn.Layout.Ebbs() {
		assert.Equal(t, fresh.Preds(ebb), cfg.Preds(ebb), "stale preds of %s", ebb)
	}
}

func TestExpandTrapnz(t *testing.T) {
	fn := ir.NewFunction("trapnz", sig([]ir.Type{ir.I32}, nil))
	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	v0 := bx.AppendEbbParam(ebb0, ir.I32)
	bx.SwitchToBlock(ebb0)
	bx.Ins().Trapnz(v0, ir.TrapUser(0))
	bx.Ins().Return(nil)

	legalize(t, fn, rv32())

	assert.Equal(t, `ebb0(v0: i32):
    brz v0, ebb1
    trap user(0)

ebb1:
    return`, ir.PrintBody(fn))
}

func TestExpandTrapz(t *testing.T) {
	fn := ir.NewFunction("trapz", sig([]ir.Type{ir.I32}, nil))
	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	v0 := bx.AppendEbbParam(ebb0, ir.I32)
	bx.SwitchToBlock(ebb0)
	bx.Ins().Trapz(v0, ir.TrapIntegerDivByZero)
	bx.Ins().Return(nil)

	legalize(t, fn, rv32())

	assert.Equal(t, `ebb0(v0: i32):
    brnz v0, ebb1
    trap int_divz

ebb1:
    return`, ir.PrintBody(fn))
}

func TestExpandSelect(t *testing.T) {
	fn := ir.NewFunction("select", sig([]ir.Type{ir.I32, ir.I32, ir.I32}, []ir.Type{ir.I32}))
	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	v0 := bx.AppendEbbParam(ebb0, ir.I32)
	v1 := bx.AppendEbbParam(ebb0, ir.I32)
	v2 := bx.AppendEbbParam(ebb0, ir.I32)
	bx.SwitchToBlock(ebb0)
	v3 := bx.Ins().Select(v0, v1, v2)
	bx.Ins().Return([]ir.Value{v3})

	legalize(t, fn, rv32())

	assert.Equal(t, `ebb0(v0: i32, v1: i32, v2: i32):
    brnz v0, ebb1(v1)
    jump ebb1(v2)

ebb1(v3: i32):
    return v3`, ir.PrintBody(fn))
}

func TestExpandBrIcmp(t *testing.T) {
	fn := ir.NewFunction("br_icmp", sig([]ir.Type{ir.I32, ir.I32}, nil))
	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	v0 := bx.AppendEbbParam(ebb0, ir.I32)
	v1 := bx.AppendEbbParam(ebb0, ir.I32)
	ebb1 := bx.CreateEbb()
	bx.SwitchToBlock(ebb0)
	bx.Ins().BrIcmp(ir.IntULT, v0, v1, ebb1, nil)
	bx.Ins().Return(nil)
	bx.SwitchToBlock(ebb1)
	bx.Ins().Return(nil)

	legalize(t, fn, rv32())

	assert.Equal(t, `ebb0(v0: i32, v1: i32):
    v2 = icmp ult v0, v1
    brnz v2, ebb1
    return

ebb1:
    return`, ir.PrintBody(fn))
}

func TestExpandFconst(t *testing.T) {
	fn := ir.NewFunction("fconst", sig(nil, []ir.Type{ir.F32}))
	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	bx.SwitchToBlock(ebb0)
	v0 := bx.Ins().F32const(0x3f800000)
	bx.Ins().Return([]ir.Value{v0})

	legalize(t, fn, rv32())

	assert.Equal(t, `ebb0:
    v1 = iconst.i32 1065353216
    v0 = bitcast.f32 v1
    return v0`, ir.PrintBody(fn))
}

func TestExpandStackAccessAndCheck(t *testing.T) {
	fn := ir.NewFunction("stack", sig(nil, nil))
	ss := fn.MakeStackSlot(ir.StackSlotData{Kind: ir.SlotExplicit, Size: 8})
	gv := fn.MakeGlobalValue(ir.GlobalValueData{Name: "stack_limit"})

	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	bx.SwitchToBlock(ebb0)
	bx.Ins().StackCheck(gv)
	v0 := bx.Ins().StackLoad(ir.I32, ss, 0)
	bx.Ins().StackStore(v0, ss, 4)
	bx.Ins().Return(nil)

	legalize(t, fn, rv32())

	assert.Equal(t, `    ss0 = explicit_slot 8
    gv0 = symbol %stack_limit

ebb0:
    v1 = global_addr.i32 gv0
    v2 = load.i32 notrap aligned v1
    v3 = ifcmp_sp v2
    trapif uge v3, stk_ovf
    v4 = stack_addr.i32 ss0
    v0 = load.i32 notrap aligned v4
    v5 = stack_addr.i32 ss0+4
    store notrap aligned v0, v5
    return`, ir.PrintBody(fn))
}

func TestExpandMinMaxToSelectDiamond(t *testing.T) {
	fn := ir.NewFunction("imin", sig([]ir.Type{ir.I32, ir.I32}, []ir.Type{ir.I32}))
	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	v0 := bx.AppendEbbParam(ebb0, ir.I32)
	v1 := bx.AppendEbbParam(ebb0, ir.I32)
	bx.SwitchToBlock(ebb0)
	v2 := bx.Ins().Imin(v0, v1)
	bx.Ins().Return([]ir.Value{v2})

	legalize(t, fn, rv32())

	// imin expands to icmp+select, and the select expands further into a
	// branch diamond on the revisit.
	assert.Equal(t, `ebb0(v0: i32, v1: i32):
    v3 = icmp slt v0, v1
    brnz v3, ebb1(v0)
    jump ebb1(v1)

ebb1(v2: i32):
    return v2`, ir.PrintBody(fn))
}

func TestLibcallFallback(t *testing.T) {
	fn := ir.NewFunction("udiv", sig([]ir.Type{ir.I32, ir.I32}, []ir.Type{ir.I32}))
	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	v0 := bx.AppendEbbParam(ebb0, ir.I32)
	v1 := bx.AppendEbbParam(ebb0, ir.I32)
	bx.SwitchToBlock(ebb0)
	v2 := bx.Ins().Udiv(v0, v1)
	bx.Ins().Return([]ir.Value{v2})

	legalize(t, fn, rv32())

	assert.Equal(t, `    sig0 = (i32, i32) -> i32 fast
    fn0 = %__udivsi3 sig0

ebb0(v0: i32, v1: i32):
    v2 = call fn0(v0, v1)
    return v2`, ir.PrintBody(fn))
}

func TestUnlegalizableRejected(t *testing.T) {
	// fcvt_to_sint from f32 to i16 has no libcall mapping on rv.
	fn := ir.NewFunction("reject", sig([]ir.Type{ir.F32}, []ir.Type{ir.I16}))
	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	v0 := bx.AppendEbbParam(ebb0, ir.F32)
	bx.SwitchToBlock(ebb0)
	v1 := bx.Ins().FcvtToSint(ir.I16, v0)
	bx.Ins().Return([]ir.Value{v1})

	cfg := flowgraph.WithFunction(fn)
	err := LegalizeFunction(fn, cfg, rv32())
	require.Error(t, err)
	var unleg *UnlegalizableInstructionError
	require.ErrorAs(t, err, &unleg)
	assert.Equal(t, ir.OpFcvtToSint, unleg.Opcode)
}

func TestInvalidCFGRejected(t *testing.T) {
	fn := ir.NewFunction("nocfg", sig(nil, nil))
	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	bx.SwitchToBlock(ebb0)
	bx.Ins().Return(nil)

	err := LegalizeFunction(fn, flowgraph.New(), rv32())
	var invalid *InvalidCFGError
	require.ErrorAs(t, err, &invalid)
}

func TestBranchArgumentSimplification(t *testing.T) {
	// A loop header parameter passed back to itself on the back edge is
	// kept, along with the branch argument, when the entry jump also feeds
	// the header.
	fn := ir.NewFunction("loop", sig([]ir.Type{ir.I32}, nil))
	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	v0 := bx.AppendEbbParam(ebb0, ir.I32)
	loop := bx.CreateEbb()
	p := bx.AppendEbbParam(loop, ir.I32)

	bx.SwitchToBlock(ebb0)
	bx.Ins().Jump(loop, []ir.Value{v0})
	bx.SwitchToBlock(loop)
	bx.Ins().Brnz(v0, loop, []ir.Value{p})
	bx.Ins().Return(nil)

	// Two branches feed the loop, so nothing may be dropped.
	legalize(t, fn, rv32())
	assert.Len(t, fn.Dfg.EbbParams(loop), 1)
	assert.Len(t, fn.Dfg.InstData(fn.Layout.FirstInst(loop)).VarArgs(), 1)
}

func TestSelfLoopParameterDropped(t *testing.T) {
	fn := ir.NewFunction("selfloop", sig([]ir.Type{ir.I32}, nil))
	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	v0 := bx.AppendEbbParam(ebb0, ir.I32)
	body := bx.CreateEbb()
	p := bx.AppendEbbParam(body, ir.I32)

	bx.SwitchToBlock(ebb0)
	bx.Ins().Return(nil)
	bx.SwitchToBlock(body)
	bx.Ins().Brnz(v0, body, []ir.Value{p})
	bx.Ins().Return(nil)

	// The self branch is the only feed of the parameter and nothing else
	// reads it, so both the argument and the parameter go away.
	legalize(t, fn, rv32())
	assert.Empty(t, fn.Dfg.EbbParams(body))
	assert.Empty(t, fn.Dfg.InstData(fn.Layout.FirstInst(body)).VarArgs())
}
