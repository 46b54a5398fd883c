package legalizer

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"anvil/internal/frontend"
	"anvil/internal/ir"
)

// A small reference interpreter over legalized code, used to check that
// the narrowing rewrites preserve arithmetic semantics. It supports only
// the opcode subset rv32 legalization can produce.

func typeMask(ty ir.Type) uint64 {
	bits := ty.Bits()
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(bits)) - 1
}

func signBit(ty ir.Type) uint64 {
	return uint64(1) << uint(ty.Bits()-1)
}

func evalIntCC(cc ir.IntCC, ty ir.Type, x, y uint64) bool {
	sx := x ^ signBit(ty)
	sy := y ^ signBit(ty)
	switch cc {
	case ir.IntEQ:
		return x == y
	case ir.IntNE:
		return x != y
	case ir.IntULT:
		return x < y
	case ir.IntUGE:
		return x >= y
	case ir.IntUGT:
		return x > y
	case ir.IntULE:
		return x <= y
	case ir.IntSLT:
		return sx < sy
	case ir.IntSGE:
		return sx >= sy
	case ir.IntSGT:
		return sx > sy
	case ir.IntSLE:
		return sx <= sy
	}
	return false
}

// evalFunction runs fn on args, following branches until a return.
func evalFunction(t *testing.T, fn *ir.Function, args []uint64) []uint64 {
	t.Helper()
	vals := make(map[ir.Value]uint64)

	get := func(v ir.Value) uint64 {
		v = fn.Dfg.ResolveAliases(v)
		got, ok := vals[v]
		require.True(t, ok, "read of unset value %s", v)
		return got
	}
	set := func(v ir.Value, x uint64, ty ir.Type) {
		vals[v] = x & typeMask(ty)
	}
	setResults := func(inst ir.Inst, xs ...uint64) {
		results := fn.Dfg.InstResults(inst)
		require.Len(t, results, len(xs))
		for i, x := range xs {
			set(results[i], x, fn.Dfg.ValueType(results[i]))
		}
	}

	ebb := fn.Layout.EntryBlock()
	params := fn.Dfg.EbbParams(ebb)
	require.Len(t, params, len(args))
	for i, arg := range args {
		set(params[i], arg, fn.Dfg.ValueType(params[i]))
	}

	for steps := 0; ; steps++ {
		require.Less(t, steps, 10000, "interpreter did not terminate")

		for inst := fn.Layout.FirstInst(ebb); inst != ir.NoInst; inst = fn.Layout.NextInst(inst) {
			data := fn.Dfg.InstData(inst)
			ty := data.Ty
			taken := false

			arg := func(i int) uint64 { return get(data.Args[i]) }

			branchTo := func(dest ir.Ebb, brArgs []ir.Value) {
				taken = true
				destParams := fn.Dfg.EbbParams(dest)
				require.Len(t, brArgs, len(destParams))
				moved := make([]uint64, len(brArgs))
				for i, a := range brArgs {
					moved[i] = get(a)
				}
				for i, p := range destParams {
					set(p, moved[i], fn.Dfg.ValueType(p))
				}
				ebb = dest
			}

			switch data.Opcode {
			case ir.OpIconst:
				setResults(inst, uint64(data.Imm))
			case ir.OpIadd:
				setResults(inst, arg(0)+arg(1))
			case ir.OpIaddImm:
				setResults(inst, arg(0)+uint64(data.Imm))
			case ir.OpIaddCout:
				mask := typeMask(ty)
				sum := (arg(0) + arg(1)) & mask
				carry := uint64(0)
				if sum < arg(0) {
					carry = 1
				}
				setResults(inst, sum, carry)
			case ir.OpIaddCin:
				setResults(inst, arg(0)+arg(1)+arg(2))
			case ir.OpIsubBout:
				borrow := uint64(0)
				if arg(0) < arg(1) {
					borrow = 1
				}
				setResults(inst, arg(0)-arg(1), borrow)
			case ir.OpIsubBin:
				setResults(inst, arg(0)-arg(1)-arg(2))
			case ir.OpIsub:
				setResults(inst, arg(0)-arg(1))
			case ir.OpBand:
				setResults(inst, arg(0)&arg(1))
			case ir.OpBor:
				setResults(inst, arg(0)|arg(1))
			case ir.OpBxor:
				setResults(inst, arg(0)^arg(1))
			case ir.OpIcmp:
				res := evalIntCC(data.Cond, fn.Dfg.ValueType(data.Args[0]), arg(0), arg(1))
				setResults(inst, boolBit(res))
			case ir.OpIcmpImm:
				immTy := fn.Dfg.ValueType(data.Args[0])
				res := evalIntCC(data.Cond, immTy, arg(0), uint64(data.Imm)&typeMask(immTy))
				setResults(inst, boolBit(res))
			case ir.OpIsplit:
				setResults(inst, arg(0)&0xffffffff, arg(0)>>32)
			case ir.OpIconcat:
				setResults(inst, arg(0)|arg(1)<<32)
			case ir.OpCopy:
				setResults(inst, arg(0))
			case ir.OpUextend:
				setResults(inst, arg(0))
			case ir.OpSextend:
				from := fn.Dfg.ValueType(data.Args[0])
				x := arg(0)
				if x&signBit(from) != 0 {
					x |= ^typeMask(from)
				}
				setResults(inst, x)
			case ir.OpIreduce:
				setResults(inst, arg(0))

			case ir.OpJump:
				branchTo(data.Dest, data.VarArgs())
			case ir.OpBrz:
				if arg(0) == 0 {
					branchTo(data.Dest, data.VarArgs())
				}
			case ir.OpBrnz:
				if arg(0) != 0 {
					branchTo(data.Dest, data.VarArgs())
				}
			case ir.OpReturn:
				out := make([]uint64, len(data.Args))
				for i, a := range data.Args {
					out[i] = get(a)
				}
				return out
			case ir.OpTrap:
				t.Fatalf("trap %s reached", data.Trap)
			default:
				t.Fatalf("interpreter cannot evaluate %s", fn.DisplayInst(inst))
			}

			// A taken branch restarts execution in its destination; an
			// untaken conditional branch falls through.
			if taken {
				break
			}
		}
	}
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// wideInputs are the carry and sign boundary cases for 64-bit halves.
var wideInputs = []uint64{
	0, 1, 2, 0x7fffffff, 0x80000000, 0xffffffff,
	0x100000000, 0x1ffffffff, 0x7fffffff00000000,
	0x7fffffffffffffff, 0x8000000000000000, 0xfffffffffffffffe,
	0xffffffffffffffff,
}

func buildWideBinop(t *testing.T, name string, emit func(b ir.InstBuilder, x, y ir.Value) ir.Value) *ir.Function {
	t.Helper()
	fn := ir.NewFunction(name, sig([]ir.Type{ir.I64, ir.I64}, []ir.Type{ir.I64}))
	bx := frontend.NewFunctionBuilder(fn)
	ebb0 := bx.CreateEbb()
	x := bx.AppendEbbParam(ebb0, ir.I64)
	y := bx.AppendEbbParam(ebb0, ir.I64)
	bx.SwitchToBlock(ebb0)
	r := emit(bx.Ins(), x, y)
	bx.Ins().Return([]ir.Value{r})
	return fn
}

// evalWide feeds a legalized two-argument function its split argument
// halves and reassembles the split return value.
func evalWide(t *testing.T, fn *ir.Function, x, y uint64) uint64 {
	out := evalFunction(t, fn, []uint64{
		x & 0xffffffff, x >> 32,
		y & 0xffffffff, y >> 32,
	})
	require.Len(t, out, 2)
	return out[0] | out[1]<<32
}

func TestNarrowArithmeticSemantics(t *testing.T) {
	ops := []struct {
		name string
		emit func(b ir.InstBuilder, x, y ir.Value) ir.Value
		ref  func(x, y uint64) uint64
	}{
		{"iadd", func(b ir.InstBuilder, x, y ir.Value) ir.Value { return b.Iadd(x, y) },
			func(x, y uint64) uint64 { return x + y }},
		{"isub", func(b ir.InstBuilder, x, y ir.Value) ir.Value { return b.Isub(x, y) },
			func(x, y uint64) uint64 { return x - y }},
		{"band", func(b ir.InstBuilder, x, y ir.Value) ir.Value { return b.Band(x, y) },
			func(x, y uint64) uint64 { return x & y }},
		{"bor", func(b ir.InstBuilder, x, y ir.Value) ir.Value { return b.Bor(x, y) },
			func(x, y uint64) uint64 { return x | y }},
		{"bxor", func(b ir.InstBuilder, x, y ir.Value) ir.Value { return b.Bxor(x, y) },
			func(x, y uint64) uint64 { return x ^ y }},
	}

	rng := rand.New(rand.NewSource(42))

	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			fn := buildWideBinop(t, op.name, op.emit)
			legalize(t, fn, rv32())

			for _, x := range wideInputs {
				for _, y := range wideInputs {
					require.Equal(t, op.ref(x, y), evalWide(t, fn, x, y),
						"%s(%#x, %#x)", op.name, x, y)
				}
			}
			for i := 0; i < 1000; i++ {
				x, y := rng.Uint64(), rng.Uint64()
				require.Equal(t, op.ref(x, y), evalWide(t, fn, x, y),
					"%s(%#x, %#x)", op.name, x, y)
			}
		})
	}
}

func TestNarrowCompareSemantics(t *testing.T) {
	conds := []struct {
		cc  ir.IntCC
		ref func(x, y uint64) bool
	}{
		{ir.IntEQ, func(x, y uint64) bool { return x == y }},
		{ir.IntNE, func(x, y uint64) bool { return x != y }},
		{ir.IntULT, func(x, y uint64) bool { return x < y }},
		{ir.IntSLT, func(x, y uint64) bool { return int64(x) < int64(y) }},
		{ir.IntSGE, func(x, y uint64) bool { return int64(x) >= int64(y) }},
	}

	rng := rand.New(rand.NewSource(7))

	for _, cond := range conds {
		cond := cond
		t.Run(fmt.Sprint(cond.cc), func(t *testing.T) {
			// r = select(icmp cc x y, 1, 0) so the boolean result flows
			// out through an integer return slot.
			fn := ir.NewFunction("cmp", sig([]ir.Type{ir.I64, ir.I64}, []ir.Type{ir.I32}))
			bx := frontend.NewFunctionBuilder(fn)
			ebb0 := bx.CreateEbb()
			x := bx.AppendEbbParam(ebb0, ir.I64)
			y := bx.AppendEbbParam(ebb0, ir.I64)
			bx.SwitchToBlock(ebb0)
			c := bx.Ins().Icmp(cond.cc, x, y)
			one := bx.Ins().Iconst(ir.I32, 1)
			zero := bx.Ins().Iconst(ir.I32, 0)
			r := bx.Ins().Select(c, one, zero)
			bx.Ins().Return([]ir.Value{r})

			legalize(t, fn, rv32())

			check := func(x, y uint64) {
				out := evalFunction(t, fn, []uint64{
					x & 0xffffffff, x >> 32,
					y & 0xffffffff, y >> 32,
				})
				require.Len(t, out, 1)
				require.Equal(t, boolBit(cond.ref(x, y)), out[0],
					"icmp %s %#x, %#x", cond.cc, x, y)
			}

			for _, x := range wideInputs {
				for _, y := range wideInputs {
					check(x, y)
				}
			}
			for i := 0; i < 300; i++ {
				check(rng.Uint64(), rng.Uint64())
			}
		})
	}
}
