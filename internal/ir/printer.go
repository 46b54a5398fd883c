package ir

import (
	"fmt"
	"strings"
)

// The printer renders functions in the textual form the reader parses.
// Output is deterministic: entity numbering and layout order fully decide
// the text, so tests can compare whole functions byte for byte.

// typeAnnotated lists the opcodes whose controlling type cannot be inferred
// from their value operands and is printed as an `.type` suffix.
func typeAnnotated(op Opcode) bool {
	switch op {
	case OpIconst, OpBitcast, OpUextend, OpSextend, OpIreduce,
		OpLoad, OpStackLoad, OpStackAddr, OpGlobalAddr,
		OpJumpTableBase, OpJumpTableEntry:
		return true
	}
	return false
}

// Print renders the whole function.
func Print(f *Function) string {
	var b strings.Builder

	b.WriteString("function %")
	b.WriteString(f.Name)
	b.WriteString(signatureText(&f.Signature))
	b.WriteString(" {\n")

	preamble := false
	for i, ss := range f.StackSlots {
		fmt.Fprintf(&b, "    %s = %s %d\n", StackSlot(i), ss.Kind, ss.Size)
		preamble = true
	}
	for i, gv := range f.GlobalValues {
		fmt.Fprintf(&b, "    %s = symbol %%%s", GlobalValue(i), gv.Name)
		if gv.Offset != 0 {
			fmt.Fprintf(&b, "%+d", gv.Offset)
		}
		b.WriteByte('\n')
		preamble = true
	}
	for i, h := range f.Heaps {
		style := "static"
		if h.Style == HeapDynamic {
			style = "dynamic"
		}
		fmt.Fprintf(&b, "    %s = %s %s, min %#x\n", HeapRef(i), style, h.Base, h.MinSize)
		preamble = true
	}
	for i, jt := range f.JumpTables {
		targets := make([]string, len(jt.Targets))
		for k, ebb := range jt.Targets {
			targets[k] = ebb.String()
		}
		fmt.Fprintf(&b, "    %s = jump_table %s\n", JumpTable(i), strings.Join(targets, ", "))
		preamble = true
	}
	for i, sig := range f.Dfg.Signatures {
		fmt.Fprintf(&b, "    %s = %s\n", SigRef(i), sig.String())
		preamble = true
	}
	for i, fn := range f.Dfg.ExtFuncs {
		fmt.Fprintf(&b, "    %s = %%%s %s\n", FuncRef(i), fn.Name, fn.Sig)
		preamble = true
	}
	if preamble {
		b.WriteByte('\n')
	}

	first := true
	for ebb := f.Layout.FirstEbb(); ebb != NoEbb; ebb = f.Layout.NextEbb(ebb) {
		if !first {
			b.WriteByte('\n')
		}
		first = false
		b.WriteString(ebbHeaderText(f, ebb))
		b.WriteString(":\n")
		for inst := f.Layout.FirstInst(ebb); inst != NoInst; inst = f.Layout.NextInst(inst) {
			b.WriteString("    ")
			b.WriteString(displayInst(f, inst))
			b.WriteByte('\n')
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// PrintBody renders only the EBBs, without the function header, preamble
// or closing brace. Convenient for compact test expectations.
func PrintBody(f *Function) string {
	full := Print(f)
	open := strings.Index(full, "{\n")
	body := full[open+2 : len(full)-2]
	return strings.TrimSuffix(strings.TrimPrefix(body, "\n"), "\n")
}

func signatureText(sig *Signature) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range sig.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteByte(')')
	if len(sig.Returns) > 0 {
		b.WriteString(" -> ")
		for i, r := range sig.Returns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.String())
		}
	}
	b.WriteByte(' ')
	b.WriteString(sig.CallConv.String())
	return b.String()
}

func ebbHeaderText(f *Function, ebb Ebb) string {
	params := f.Dfg.EbbParams(ebb)
	if len(params) == 0 {
		return ebb.String()
	}
	parts := make([]string, len(params))
	for i, v := range params {
		parts[i] = fmt.Sprintf("%s: %s", v, f.Dfg.ValueType(v))
	}
	return fmt.Sprintf("%s(%s)", ebb, strings.Join(parts, ", "))
}

func offsetText(offset int32) string {
	if offset == 0 {
		return ""
	}
	return fmt.Sprintf("%+d", offset)
}

func destText(dest Ebb, args []Value) string {
	if len(args) == 0 {
		return dest.String()
	}
	parts := make([]string, len(args))
	for i, v := range args {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s(%s)", dest, strings.Join(parts, ", "))
}

func valuesText(args []Value) string {
	parts := make([]string, len(args))
	for i, v := range args {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

func displayInst(f *Function, inst Inst) string {
	data := f.Dfg.InstData(inst)
	var b strings.Builder

	if res := f.Dfg.InstResults(inst); len(res) > 0 {
		b.WriteString(valuesText(res))
		b.WriteString(" = ")
	}

	b.WriteString(data.Opcode.String())
	if typeAnnotated(data.Opcode) {
		b.WriteByte('.')
		b.WriteString(data.Ty.String())
	}

	switch data.Opcode.Format() {
	case FormatUnary:
		fmt.Fprintf(&b, " %s", data.Args[0])
	case FormatUnaryImm:
		fmt.Fprintf(&b, " %d", data.Imm)
	case FormatUnaryIeee32:
		fmt.Fprintf(&b, " %#08x", uint32(data.Imm))
	case FormatUnaryIeee64:
		fmt.Fprintf(&b, " %#016x", uint64(data.Imm))
	case FormatUnaryGlobal:
		fmt.Fprintf(&b, " %s", data.GV)
	case FormatBinary:
		fmt.Fprintf(&b, " %s, %s", data.Args[0], data.Args[1])
	case FormatBinaryImm:
		fmt.Fprintf(&b, " %s, %d", data.Args[0], data.Imm)
	case FormatTernary:
		fmt.Fprintf(&b, " %s, %s, %s", data.Args[0], data.Args[1], data.Args[2])
	case FormatIntCompare:
		fmt.Fprintf(&b, " %s %s, %s", data.Cond, data.Args[0], data.Args[1])
	case FormatIntCompareImm:
		fmt.Fprintf(&b, " %s %s, %d", data.Cond, data.Args[0], data.Imm)
	case FormatJump:
		fmt.Fprintf(&b, " %s", destText(data.Dest, data.VarArgs()))
	case FormatBranch:
		fmt.Fprintf(&b, " %s, %s", data.Args[0], destText(data.Dest, data.VarArgs()))
	case FormatBranchInt:
		fmt.Fprintf(&b, " %s %s, %s", data.Cond, data.Args[0], destText(data.Dest, data.VarArgs()))
	case FormatBranchIcmp:
		fmt.Fprintf(&b, " %s %s, %s, %s", data.Cond, data.Args[0], data.Args[1], destText(data.Dest, data.VarArgs()))
	case FormatBranchTable:
		fmt.Fprintf(&b, " %s, %s, %s", data.Args[0], data.Dest, data.Table)
	case FormatIndirectJump:
		fmt.Fprintf(&b, " %s, %s", data.Args[0], data.Table)
	case FormatTrap:
		fmt.Fprintf(&b, " %s", data.Trap)
	case FormatCondTrap:
		fmt.Fprintf(&b, " %s, %s", data.Args[0], data.Trap)
	case FormatIntCondTrap:
		fmt.Fprintf(&b, " %s %s, %s", data.Cond, data.Args[0], data.Trap)
	case FormatMultiAry:
		if len(data.Args) > 0 {
			fmt.Fprintf(&b, " %s", valuesText(data.Args))
		}
	case FormatCall:
		fmt.Fprintf(&b, " %s(%s)", data.Func, valuesText(data.VarArgs()))
	case FormatCallIndirect:
		fmt.Fprintf(&b, " %s, %s(%s)", data.Sig, data.Args[0], valuesText(data.VarArgs()))
	case FormatLoad:
		fmt.Fprintf(&b, "%s %s%s", data.Flags, data.Args[0], offsetText(data.Offset))
	case FormatStore:
		fmt.Fprintf(&b, "%s %s, %s%s", data.Flags, data.Args[0], data.Args[1], offsetText(data.Offset))
	case FormatStackLoad:
		fmt.Fprintf(&b, " %s%s", data.Slot, offsetText(data.Offset))
	case FormatStackStore:
		fmt.Fprintf(&b, " %s, %s%s", data.Args[0], data.Slot, offsetText(data.Offset))
	case FormatBranchTableBase:
		fmt.Fprintf(&b, " %s", data.Table)
	case FormatBranchTableEntry:
		fmt.Fprintf(&b, " %s, %s, %d, %s", data.Args[0], data.Args[1], data.Imm, data.Table)
	}

	return b.String()
}
