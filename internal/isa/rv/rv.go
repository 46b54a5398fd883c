// Package rv implements a RISC-style reference target in 32- and 64-bit
// variants. It exists to exercise every legalization strategy: the 32-bit
// variant narrows all i64 arithmetic, neither variant encodes select,
// br_table, conditional traps, float constants, stack slot access or
// division, and float arithmetic falls through to runtime library calls.
package rv

import (
	"fmt"

	"anvil/internal/ir"
	"anvil/internal/isa"
)

func init() {
	isa.Register("rv32", func() isa.TargetIsa {
		return New(isa.Flags{JumpTablesEnabled: true})
	})
	isa.Register("rv64", func() isa.TargetIsa {
		return New(isa.Flags{Is64Bit: true, JumpTablesEnabled: true})
	})
}

type target struct {
	flags isa.Flags
	enc   map[encKey]ir.Encoding
}

// New builds an rv target with the given flags.
func New(flags isa.Flags) isa.TargetIsa {
	return &target{
		flags: flags,
		enc:   buildEncMap(flags.Is64Bit, flags.JumpTablesEnabled),
	}
}

func (t *target) Name() string {
	if t.flags.Is64Bit {
		return "rv64"
	}
	return "rv32"
}

func (t *target) Flags() isa.Flags { return t.flags }

func (t *target) PointerType() ir.Type {
	if t.flags.Is64Bit {
		return ir.I64
	}
	return ir.I32
}

// narrowable is the set of opcodes the legalizer can split into half-width
// pairs. Everything else at i64 on the 32-bit variant must find another
// strategy.
var narrowable = map[ir.Opcode]bool{
	ir.OpIadd:    true,
	ir.OpIsub:    true,
	ir.OpBand:    true,
	ir.OpBor:     true,
	ir.OpBxor:    true,
	ir.OpBnot:    true,
	ir.OpIconst:  true,
	ir.OpIcmp:    true,
	ir.OpSelect:  true,
	ir.OpBrz:     true,
	ir.OpBrnz:    true,
	ir.OpLoad:    true,
	ir.OpStore:   true,
	ir.OpUextend: true,
	ir.OpSextend: true,
	ir.OpCopy:    true,
}

// customActions maps opcodes to the hand-written expansion handlers the
// legalizer registers under these names.
var customActions = map[ir.Opcode]string{
	ir.OpTrapz:      "cond_trap",
	ir.OpTrapnz:     "cond_trap",
	ir.OpBrTable:    "br_table",
	ir.OpSelect:     "select",
	ir.OpBrIcmp:     "br_icmp",
	ir.OpF32const:   "fconst",
	ir.OpF64const:   "fconst",
	ir.OpStackLoad:  "stack_load",
	ir.OpStackStore: "stack_store",
	ir.OpStackCheck: "stack_check",
}

func (t *target) Encode(dfg *ir.DataFlowGraph, data *ir.InstructionData, ctrl ir.Type) (ir.Encoding, isa.Action, bool) {
	op := data.Opcode

	if !t.flags.Is64Bit && ctrl == ir.I64 && narrowable[op] {
		return ir.NoEncoding, isa.Action{Kind: isa.ActionNarrow}, false
	}

	if handler, ok := customActions[op]; ok {
		return ir.NoEncoding, isa.Action{Kind: isa.ActionCustom, Handler: handler}, false
	}

	if op == ir.OpIfcmp || op == ir.OpBrif {
		return ir.NoEncoding, isa.Action{Kind: isa.ActionExpandFlags}, false
	}

	if enc, ok := t.enc[encKey{op, ctrl}]; ok {
		return enc, isa.Action{}, true
	}

	return ir.NoEncoding, isa.Action{Kind: isa.ActionExpand}, false
}

// maxRegReturns is how many return value slots fit in registers before the
// signature switches to an indirect struct return.
const maxRegReturns = 2

func (t *target) LegalizeSignature(sig *ir.Signature) {
	if sig.Legalized {
		return
	}

	var params []ir.AbiParam
	for _, p := range sig.Params {
		params = append(params, t.legalParam(p)...)
	}

	var returns []ir.AbiParam
	for _, r := range sig.Returns {
		returns = append(returns, t.legalParam(r)...)
	}

	if len(returns) > maxRegReturns {
		// Too many return slots: divert every return value through a
		// caller-provided pointer.
		returns = nil
		params = append(params, ir.AbiParam{Ty: t.PointerType(), Purpose: ir.PurposeStructReturn})
	}

	sig.Params = params
	sig.Returns = returns
	sig.Legalized = true
}

// legalParam expands one argument slot into its platform-legal form.
func (t *target) legalParam(p ir.AbiParam) []ir.AbiParam {
	if p.Purpose != ir.PurposeNormal {
		return []ir.AbiParam{p}
	}
	switch p.Ty {
	case ir.I64:
		if !t.flags.Is64Bit {
			return []ir.AbiParam{{Ty: ir.I32}, {Ty: ir.I32}}
		}
	case ir.I8, ir.I16:
		return []ir.AbiParam{{Ty: ir.I32, Extension: ir.ExtSext}}
	}
	return []ir.AbiParam{p}
}

// LegalValueType reports how a value of the given type crosses an ABI
// boundary: unchanged, split into halves, or extended to register width.
func (t *target) LegalValueType(ty ir.Type) isa.ValueConversion {
	switch ty {
	case ir.I64:
		if !t.flags.Is64Bit {
			return isa.ConvertSplit
		}
	case ir.I8, ir.I16:
		return isa.ConvertSext
	case ir.B1, ir.VOID, ir.IFLAGS:
		return isa.ConvertUnsupported
	}
	return isa.ConvertNone
}

var libcalls32 = map[encKey]string{
	{ir.OpUdiv, ir.I32}: "__udivsi3",
	{ir.OpSdiv, ir.I32}: "__divsi3",
	{ir.OpUrem, ir.I32}: "__umodsi3",
	{ir.OpSrem, ir.I32}: "__modsi3",
	{ir.OpUdiv, ir.I64}: "__udivdi3",
	{ir.OpSdiv, ir.I64}: "__divdi3",
	{ir.OpUrem, ir.I64}: "__umoddi3",
	{ir.OpSrem, ir.I64}: "__moddi3",
	{ir.OpImul, ir.I64}: "__muldi3",

	{ir.OpFadd, ir.F32}: "__addsf3",
	{ir.OpFadd, ir.F64}: "__adddf3",
	{ir.OpFsub, ir.F32}: "__subsf3",
	{ir.OpFsub, ir.F64}: "__subdf3",
	{ir.OpFmul, ir.F32}: "__mulsf3",
	{ir.OpFmul, ir.F64}: "__muldf3",
	{ir.OpFdiv, ir.F32}: "__divsf3",
	{ir.OpFdiv, ir.F64}: "__divdf3",

	{ir.OpSqrt, ir.F32}:    "sqrtf",
	{ir.OpSqrt, ir.F64}:    "sqrt",
	{ir.OpCeil, ir.F32}:    "ceilf",
	{ir.OpCeil, ir.F64}:    "ceil",
	{ir.OpFloor, ir.F32}:   "floorf",
	{ir.OpFloor, ir.F64}:   "floor",
	{ir.OpTrunc, ir.F32}:   "truncf",
	{ir.OpTrunc, ir.F64}:   "trunc",
	{ir.OpNearest, ir.F32}: "nearbyintf",
	{ir.OpNearest, ir.F64}: "nearbyint",
}

func (t *target) LibcallName(op ir.Opcode, ctrl ir.Type) (string, bool) {
	if t.flags.Is64Bit {
		// The 64-bit variant encodes no division either; the i64 names
		// cover its native width and the i32 forms reuse them.
		switch op {
		case ir.OpUdiv, ir.OpSdiv, ir.OpUrem, ir.OpSrem:
			if ctrl == ir.I32 {
				ctrl = ir.I64
			}
		}
	}
	name, ok := libcalls32[encKey{op, ctrl}]
	return name, ok
}

func (t *target) DisplayEncoding(enc ir.Encoding) string {
	if !enc.IsLegal() {
		return "-"
	}
	return fmt.Sprintf("%s#%02x", recipeNames[enc.Recipe], enc.Bits)
}
