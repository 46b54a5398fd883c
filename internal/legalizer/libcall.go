package legalizer

import (
	"anvil/internal/ir"
	"anvil/internal/isa"
)

// Libcall fallback: instructions with no encoding and no pattern become
// calls to runtime library routines, when the target names one.

// expandAsLibcall replaces the instruction with a call to the runtime
// routine the target maps it to. The resulting call site goes through
// ABI legalization like any other when it is revisited, so wide operands
// get split and narrow ones extended without further ceremony here.
func expandAsLibcall(inst ir.Inst, fn *ir.Function, target isa.TargetIsa) bool {
	data := fn.Dfg.InstData(inst)
	if data.Opcode.IsCall() || data.Opcode.IsBranch() || data.Opcode.IsTerminator() {
		return false
	}

	name, ok := target.LibcallName(data.Opcode, fn.Dfg.CtrlTypevar(inst))
	if !ok {
		return false
	}

	args := append([]ir.Value(nil), data.Args...)

	sig := ir.Signature{CallConv: fn.Signature.CallConv}
	for _, arg := range args {
		sig.Params = append(sig.Params, ir.AbiParam{Ty: fn.Dfg.ValueType(arg)})
	}
	for _, res := range fn.Dfg.InstResults(inst) {
		sig.Returns = append(sig.Returns, ir.AbiParam{Ty: fn.Dfg.ValueType(res)})
	}

	fnRef := findOrDeclareExtFunc(fn, name, sig)
	fn.Replace(inst).Call(fnRef, args)
	return true
}

// findOrDeclareExtFunc reuses an existing declaration of the named routine
// so repeated fallbacks share one external function.
func findOrDeclareExtFunc(fn *ir.Function, name string, sig ir.Signature) ir.FuncRef {
	for i, ext := range fn.Dfg.ExtFuncs {
		if ext.Name == name {
			return ir.FuncRef(i)
		}
	}
	sigRef := fn.Dfg.MakeSignature(sig)
	return fn.Dfg.MakeExtFunc(ir.ExtFuncData{Name: name, Sig: sigRef})
}
