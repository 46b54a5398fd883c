package legalizer

import (
	"anvil/internal/flowgraph"
	"anvil/internal/ir"
	"anvil/internal/isa"
)

// Narrowing rules: split an operation on a type wider than the target's
// registers into operations on the low and high halves, with explicit
// carry and borrow plumbing where the arithmetic needs it.

// unsignedCond maps a condition to the unsigned ordering used when
// comparing low halves.
func unsignedCond(cc ir.IntCC) ir.IntCC {
	switch cc {
	case ir.IntSLT:
		return ir.IntULT
	case ir.IntSGE:
		return ir.IntUGE
	case ir.IntSGT:
		return ir.IntUGT
	case ir.IntSLE:
		return ir.IntULE
	}
	return cc
}

func narrow(inst ir.Inst, fn *ir.Function, _ *flowgraph.ControlFlowGraph, _ isa.TargetIsa) bool {
	data := fn.Dfg.InstData(inst)
	pos := ir.NewCursor(fn).GotoInst(inst)

	switch data.Opcode {
	case ir.OpIadd:
		xl, xh := splitValue(pos, data.Args[0])
		yl, yh := splitValue(pos, data.Args[1])
		rl, carry := pos.Ins().IaddCout(xl, yl)
		rh := pos.Ins().IaddCin(xh, yh, carry)
		fn.Replace(inst).Iconcat(rl, rh)
		return true

	case ir.OpIsub:
		xl, xh := splitValue(pos, data.Args[0])
		yl, yh := splitValue(pos, data.Args[1])
		rl, borrow := pos.Ins().IsubBout(xl, yl)
		rh := pos.Ins().IsubBin(xh, yh, borrow)
		fn.Replace(inst).Iconcat(rl, rh)
		return true

	case ir.OpBand, ir.OpBor, ir.OpBxor:
		op := data.Opcode
		xl, xh := splitValue(pos, data.Args[0])
		yl, yh := splitValue(pos, data.Args[1])
		rl := narrowBitop(pos, op, xl, yl)
		rh := narrowBitop(pos, op, xh, yh)
		fn.Replace(inst).Iconcat(rl, rh)
		return true

	case ir.OpBnot:
		xl, xh := splitValue(pos, data.Args[0])
		rl := pos.Ins().Bnot(xl)
		rh := pos.Ins().Bnot(xh)
		fn.Replace(inst).Iconcat(rl, rh)
		return true

	case ir.OpIconst:
		imm := data.Imm
		half := data.Ty.HalfWidth()
		lo := pos.Ins().Iconst(half, int64(int32(imm)))
		hi := pos.Ins().Iconst(half, imm>>32)
		fn.Replace(inst).Iconcat(lo, hi)
		return true

	case ir.OpCopy:
		xl, xh := splitValue(pos, data.Args[0])
		fn.Replace(inst).Iconcat(xl, xh)
		return true

	case ir.OpIcmp:
		return narrowIcmp(inst, fn, pos, data)

	case ir.OpSelect:
		ctrl := data.Args[0]
		tl, th := splitValue(pos, data.Args[1])
		fl, fh := splitValue(pos, data.Args[2])
		rl := pos.Ins().Select(ctrl, tl, fl)
		rh := pos.Ins().Select(ctrl, th, fh)
		fn.Replace(inst).Iconcat(rl, rh)
		return true

	case ir.OpBrz, ir.OpBrnz:
		op := data.Opcode
		dest := data.Dest
		args := append([]ir.Value(nil), data.VarArgs()...)
		cl, ch := splitValue(pos, data.Args[0])
		c := pos.Ins().Bor(cl, ch)
		if op == ir.OpBrz {
			fn.Replace(inst).Brz(c, dest, args)
		} else {
			fn.Replace(inst).Brnz(c, dest, args)
		}
		return true

	case ir.OpLoad:
		half := data.Ty.HalfWidth()
		flags := data.Flags
		addr := data.Args[0]
		offset := data.Offset
		lo := pos.Ins().Load(half, flags, addr, offset)
		hi := pos.Ins().Load(half, flags, addr, offset+int32(half.Bytes()))
		fn.Replace(inst).Iconcat(lo, hi)
		return true

	case ir.OpStore:
		flags := data.Flags
		addr := data.Args[1]
		offset := data.Offset
		vl, vh := splitValue(pos, data.Args[0])
		pos.Ins().Store(flags, vl, addr, offset)
		fn.Replace(inst).Store(flags, vh, addr, offset+int32(fn.Dfg.ValueType(vl).Bytes()))
		return true

	case ir.OpUextend:
		lo := narrowExtendLow(pos, data.Args[0], false)
		hi := pos.Ins().Iconst(ir.I32, 0)
		fn.Replace(inst).Iconcat(lo, hi)
		return true

	case ir.OpSextend:
		lo := narrowExtendLow(pos, data.Args[0], true)
		neg := pos.Ins().IcmpImm(ir.IntSLT, lo, 0)
		ones := pos.Ins().Iconst(ir.I32, -1)
		zero := pos.Ins().Iconst(ir.I32, 0)
		hi := pos.Ins().Select(neg, ones, zero)
		fn.Replace(inst).Iconcat(lo, hi)
		return true
	}

	return false
}

func narrowBitop(pos *ir.Cursor, op ir.Opcode, x, y ir.Value) ir.Value {
	switch op {
	case ir.OpBand:
		return pos.Ins().Band(x, y)
	case ir.OpBor:
		return pos.Ins().Bor(x, y)
	default:
		return pos.Ins().Bxor(x, y)
	}
}

// narrowExtendLow produces the low half of a widening extension: the
// source widened to one register, or passed through when already there.
func narrowExtendLow(pos *ir.Cursor, x ir.Value, signed bool) ir.Value {
	if pos.Fn.Dfg.ValueType(x) == ir.I32 {
		return x
	}
	if signed {
		return pos.Ins().Sextend(ir.I32, x)
	}
	return pos.Ins().Uextend(ir.I32, x)
}

// narrowIcmp compares wide values half by half. Equality distributes over
// the halves directly; orderings compare the high halves and fall back to
// an unsigned comparison of the low halves on a tie.
func narrowIcmp(inst ir.Inst, fn *ir.Function, pos *ir.Cursor, data *ir.InstructionData) bool {
	cond := data.Cond
	xl, xh := splitValue(pos, data.Args[0])
	yl, yh := splitValue(pos, data.Args[1])

	switch cond {
	case ir.IntEQ:
		bl := pos.Ins().Icmp(ir.IntEQ, xl, yl)
		bh := pos.Ins().Icmp(ir.IntEQ, xh, yh)
		fn.Replace(inst).Band(bl, bh)
	case ir.IntNE:
		bl := pos.Ins().Icmp(ir.IntNE, xl, yl)
		bh := pos.Ins().Icmp(ir.IntNE, xh, yh)
		fn.Replace(inst).Bor(bl, bh)
	default:
		hiEq := pos.Ins().Icmp(ir.IntEQ, xh, yh)
		hiCmp := pos.Ins().Icmp(cond, xh, yh)
		loCmp := pos.Ins().Icmp(unsignedCond(cond), xl, yl)
		fn.Replace(inst).Select(hiEq, loCmp, hiCmp)
	}
	return true
}
