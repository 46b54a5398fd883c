package legalizer

import (
	"anvil/internal/ir"
	"anvil/internal/isa"
)

// Legalize the ABI boundaries: the function's own signature and entry
// parameters, and every call and return instruction. Wide values split
// into register-sized halves, narrow integers extend to register width,
// and oversized return tuples travel through a caller-provided pointer.

// legalizeSignatures rewrites the function signature and every call-site
// signature into the platform-legal form, and adjusts the entry block
// parameters to match.
func legalizeSignatures(fn *ir.Function, target isa.TargetIsa) error {
	origParams := append([]ir.AbiParam(nil), fn.Signature.Params...)
	alreadyLegal := fn.Signature.Legalized

	target.LegalizeSignature(&fn.Signature)
	for i := range fn.Dfg.Signatures {
		target.LegalizeSignature(&fn.Dfg.Signatures[i])
	}

	if alreadyLegal {
		return nil
	}

	entry := fn.Layout.EntryBlock()
	if entry == ir.NoEbb {
		return nil
	}

	pos := ir.NewCursor(fn).GotoFirstInsertionPoint(entry)

	idx := 0
	for _, p := range origParams {
		switch target.LegalValueType(p.Ty) {
		case isa.ConvertNone:
			idx++
		case isa.ConvertSplit:
			old, lo := fn.Dfg.ReplaceEbbParam(entry, idx, ir.I32)
			hi := fn.Dfg.InsertEbbParam(entry, idx+1, ir.I32)
			concat := pos.Ins().Iconcat(lo, hi)
			fn.Dfg.ChangeToAlias(old, concat)
			idx += 2
		case isa.ConvertSext, isa.ConvertUext:
			old, wide := fn.Dfg.ReplaceEbbParam(entry, idx, ir.I32)
			narrowed := pos.Ins().Ireduce(p.Ty, wide)
			fn.Dfg.ChangeToAlias(old, narrowed)
			idx++
		case isa.ConvertUnsupported:
			return &AbiMismatchError{Signature: fn.Signature.String(), Reason: "parameter of type " + p.Ty.String()}
		}
	}

	if sretIndex(&fn.Signature) >= 0 {
		fn.Dfg.AppendEbbParam(entry, target.PointerType())
	}

	return nil
}

// sretIndex returns the position of the struct-return parameter, or -1.
func sretIndex(sig *ir.Signature) int {
	for i, p := range sig.Params {
		if p.Purpose == ir.PurposeStructReturn {
			return i
		}
	}
	return -1
}

func alignTo(offset, size int32) int32 {
	return (offset + size - 1) &^ (size - 1)
}

// returnAreaSize computes the layout size of values returned indirectly,
// each aligned to its own width.
func returnAreaSize(types []ir.Type) int32 {
	var offset int32
	for _, ty := range types {
		size := int32(ty.Bytes())
		offset = alignTo(offset, size) + size
	}
	return offset
}

// handleReturnABI converts a return instruction to the legal signature:
// splitting and extending returned values, or storing them through the
// struct-return pointer. Reports true when it changed the code.
func handleReturnABI(inst ir.Inst, fn *ir.Function, target isa.TargetIsa) (bool, error) {
	data := fn.Dfg.InstData(inst)
	args := append([]ir.Value(nil), data.Args...)

	if sret := sretIndex(&fn.Signature); sret >= 0 {
		if len(args) == 0 {
			return false, nil
		}
		entryParams := fn.Dfg.EbbParams(fn.Layout.EntryBlock())
		sretVal := entryParams[sret]

		pos := ir.NewCursor(fn).GotoInst(inst)
		var offset int32
		for _, arg := range args {
			size := int32(fn.Dfg.ValueType(arg).Bytes())
			offset = alignTo(offset, size)
			pos.Ins().Store(ir.TrustedMemFlags(), arg, sretVal, offset)
			offset += size
		}
		fn.Replace(inst).Return(nil)
		return true, nil
	}

	changed := false
	pos := ir.NewCursor(fn).GotoInst(inst)
	var newArgs []ir.Value
	for _, arg := range args {
		conv, converted, err := convertOutgoing(pos, fn, target, arg)
		if err != nil {
			return false, err
		}
		changed = changed || conv
		newArgs = append(newArgs, converted...)
	}
	if !changed {
		return false, nil
	}
	fn.Replace(inst).Return(newArgs)
	return true, nil
}

// convertOutgoing legalizes one value flowing out through an ABI boundary,
// returning the replacement slot values.
func convertOutgoing(pos *ir.Cursor, fn *ir.Function, target isa.TargetIsa, arg ir.Value) (bool, []ir.Value, error) {
	ty := fn.Dfg.ValueType(arg)
	switch target.LegalValueType(ty) {
	case isa.ConvertSplit:
		lo, hi := splitValue(pos, arg)
		return true, []ir.Value{lo, hi}, nil
	case isa.ConvertSext:
		return true, []ir.Value{pos.Ins().Sextend(ir.I32, arg)}, nil
	case isa.ConvertUext:
		return true, []ir.Value{pos.Ins().Uextend(ir.I32, arg)}, nil
	case isa.ConvertUnsupported:
		return false, nil, &AbiMismatchError{Signature: fn.Signature.String(), Reason: "value of type " + ty.String()}
	}
	return false, []ir.Value{arg}, nil
}

// callSignature returns the legalized signature governing a call site.
func callSignature(fn *ir.Function, data *ir.InstructionData) *ir.Signature {
	if data.Opcode == ir.OpCall {
		return &fn.Dfg.Signatures[fn.Dfg.ExtFuncs[data.Func].Sig]
	}
	return &fn.Dfg.Signatures[data.Sig]
}

// handleCallABI converts a call site to the legal signature: arguments are
// split and extended, oversized return tuples are read back from a return
// area on the stack, and the original result values become aliases of the
// converted results. Reports true when it changed the code.
func handleCallABI(inst ir.Inst, fn *ir.Function, target isa.TargetIsa) (bool, error) {
	data := fn.Dfg.InstData(inst)
	sig := callSignature(fn, data)
	target.LegalizeSignature(sig)

	sret := sretIndex(sig) >= 0

	results := fn.Dfg.InstResults(inst)
	resultsLegal := len(results) == len(sig.Returns)
	if resultsLegal {
		for i, r := range results {
			if fn.Dfg.ValueType(r) != sig.Returns[i].Ty {
				resultsLegal = false
				break
			}
		}
	}

	argsLegal := true
	for _, arg := range data.VarArgs() {
		if target.LegalValueType(fn.Dfg.ValueType(arg)) != isa.ConvertNone {
			argsLegal = false
			break
		}
	}

	if argsLegal && resultsLegal {
		return false, nil
	}

	pos := ir.NewCursor(fn).GotoInst(inst)

	fixed := append([]ir.Value(nil), data.FixedArgs()...)
	var newArgs []ir.Value
	for _, arg := range data.VarArgs() {
		_, converted, err := convertOutgoing(pos, fn, target, arg)
		if err != nil {
			return false, err
		}
		newArgs = append(newArgs, converted...)
	}

	origResults := append([]ir.Value(nil), results...)
	origTypes := make([]ir.Type, len(origResults))
	for i, r := range origResults {
		origTypes[i] = fn.Dfg.ValueType(r)
	}

	var retAddr ir.Value
	if sret && len(origResults) > 0 {
		ss := fn.MakeStackSlot(ir.StackSlotData{
			Kind: ir.SlotReturnArea,
			Size: uint32(returnAreaSize(origTypes)),
		})
		retAddr = pos.Ins().StackAddr(target.PointerType(), ss, 0)
		newArgs = append(newArgs, retAddr)
	}

	// Re-fetch the payload: the conversions above may have grown the
	// instruction table underneath the earlier pointer.
	fn.Dfg.InstData(inst).Args = append(fixed, newArgs...)

	if resultsLegal {
		return true, nil
	}

	fn.Dfg.ClearResults(inst)
	fn.Dfg.MakeInstResults(inst)
	newResults := fn.Dfg.InstResults(inst)

	after := ir.NewCursor(fn).GotoAfterInst(inst)
	if sret {
		var offset int32
		for i, orig := range origResults {
			size := int32(origTypes[i].Bytes())
			offset = alignTo(offset, size)
			loaded := after.Ins().Load(origTypes[i], ir.TrustedMemFlags(), retAddr, offset)
			fn.Dfg.ChangeToAlias(orig, loaded)
			offset += size
		}
		return true, nil
	}

	j := 0
	for i, orig := range origResults {
		switch target.LegalValueType(origTypes[i]) {
		case isa.ConvertSplit:
			concat := after.Ins().Iconcat(newResults[j], newResults[j+1])
			fn.Dfg.ChangeToAlias(orig, concat)
			j += 2
		case isa.ConvertSext, isa.ConvertUext:
			reduced := after.Ins().Ireduce(origTypes[i], newResults[j])
			fn.Dfg.ChangeToAlias(orig, reduced)
			j++
		default:
			fn.Dfg.ChangeToAlias(orig, newResults[j])
			j++
		}
	}
	return true, nil
}
