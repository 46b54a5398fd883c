package ir

import (
	"fmt"
	"strings"
)

// CallConv tags a signature with its calling convention.
type CallConv uint8

const (
	CallConvFast CallConv = iota
	CallConvSystemV
)

func (cc CallConv) String() string {
	switch cc {
	case CallConvFast:
		return "fast"
	case CallConvSystemV:
		return "system_v"
	}
	return fmt.Sprintf("callconv%d", uint8(cc))
}

// CallConvFromName parses a textual calling convention.
func CallConvFromName(name string) (CallConv, bool) {
	switch name {
	case "fast":
		return CallConvFast, true
	case "system_v":
		return CallConvSystemV, true
	}
	return CallConvFast, false
}

// ArgumentExtension is how a narrow argument is widened to the natural
// register width at an ABI boundary.
type ArgumentExtension uint8

const (
	ExtNone ArgumentExtension = iota
	ExtUext
	ExtSext
)

func (e ArgumentExtension) String() string {
	switch e {
	case ExtUext:
		return "uext"
	case ExtSext:
		return "sext"
	}
	return ""
}

// ArgumentPurpose distinguishes ordinary arguments from ABI plumbing.
type ArgumentPurpose uint8

const (
	PurposeNormal ArgumentPurpose = iota
	// PurposeStructReturn is a caller-provided pointer for indirect returns.
	PurposeStructReturn
)

func (p ArgumentPurpose) String() string {
	if p == PurposeStructReturn {
		return "sret"
	}
	return ""
}

// AbiParam is one argument or return slot of a signature.
type AbiParam struct {
	Ty        Type
	Extension ArgumentExtension
	Purpose   ArgumentPurpose
}

func (p AbiParam) String() string {
	s := p.Ty.String()
	if ann := p.Extension.String(); ann != "" {
		s += " " + ann
	}
	if ann := p.Purpose.String(); ann != "" {
		s += " " + ann
	}
	return s
}

// Signature describes the arguments and return values of a function.
type Signature struct {
	Params   []AbiParam
	Returns  []AbiParam
	CallConv CallConv

	// Legalized is set once the signature has been rewritten to the
	// platform-legal form.
	Legalized bool
}

func (s *Signature) returnTypes() []Type {
	types := make([]Type, len(s.Returns))
	for i, r := range s.Returns {
		types[i] = r.Ty
	}
	return types
}

func (s *Signature) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteByte(')')
	if len(s.Returns) > 0 {
		b.WriteString(" -> ")
		for i, r := range s.Returns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.String())
		}
	}
	b.WriteByte(' ')
	b.WriteString(s.CallConv.String())
	return b.String()
}

// StackSlotKind classifies stack slots.
type StackSlotKind uint8

const (
	// SlotExplicit is a slot requested by the frontend.
	SlotExplicit StackSlotKind = iota
	// SlotReturnArea holds return values passed indirectly at a call site.
	SlotReturnArea
)

func (k StackSlotKind) String() string {
	switch k {
	case SlotExplicit:
		return "explicit_slot"
	case SlotReturnArea:
		return "return_area"
	}
	return fmt.Sprintf("slot%d", uint8(k))
}

// StackSlotData describes one stack slot.
type StackSlotData struct {
	Kind StackSlotKind
	Size uint32
}

// GlobalValueData describes a symbolic global address.
type GlobalValueData struct {
	Name   string
	Offset int32
}

// HeapStyle classifies heaps.
type HeapStyle uint8

const (
	HeapStatic HeapStyle = iota
	HeapDynamic
)

// HeapData describes one linear-memory heap owned by the function's module.
type HeapData struct {
	Style HeapStyle
	// Base is the global value holding the heap base address.
	Base GlobalValue
	// MinSize is the guaranteed lower bound on the heap size in bytes.
	MinSize uint64
}

// JumpTableData is an ordered list of EBB targets.
type JumpTableData struct {
	Targets []Ebb
}

// Len returns the number of table entries.
func (jt *JumpTableData) Len() int { return len(jt.Targets) }

// Entry returns table entry i.
func (jt *JumpTableData) Entry(i int) Ebb { return jt.Targets[i] }

// Push appends a target to the table.
func (jt *JumpTableData) Push(ebb Ebb) { jt.Targets = append(jt.Targets, ebb) }

// Encoding is an opaque token identifying a specific ISA instruction form.
// A Recipe of -1 (see NoEncoding) means "no encoding yet".
type Encoding struct {
	Recipe int16
	Bits   uint16
}

// NoEncoding is the initial state of every instruction's encoding.
var NoEncoding = Encoding{Recipe: -1}

// IsLegal reports whether the encoding refers to a real recipe.
func (e Encoding) IsLegal() bool { return e.Recipe >= 0 }

// Function is a named container of everything the compiler knows about one
// function: data flow, layout, declared entities and per-instruction
// encodings.
type Function struct {
	Name      string
	Signature Signature

	StackSlots   []StackSlotData
	GlobalValues []GlobalValueData
	Heaps        []HeapData
	JumpTables   []JumpTableData

	Dfg    DataFlowGraph
	Layout Layout

	// Encodings maps instructions to their encoding token. It is resized
	// and filled in by legalization.
	Encodings []Encoding
}

// NewFunction creates an empty function with the given signature.
func NewFunction(name string, sig Signature) *Function {
	return &Function{
		Name:      name,
		Signature: sig,
		Layout:    NewLayout(),
	}
}

// MakeStackSlot declares a stack slot.
func (f *Function) MakeStackSlot(data StackSlotData) StackSlot {
	ss := StackSlot(len(f.StackSlots))
	f.StackSlots = append(f.StackSlots, data)
	return ss
}

// MakeGlobalValue declares a global value.
func (f *Function) MakeGlobalValue(data GlobalValueData) GlobalValue {
	gv := GlobalValue(len(f.GlobalValues))
	f.GlobalValues = append(f.GlobalValues, data)
	return gv
}

// MakeHeap declares a heap.
func (f *Function) MakeHeap(data HeapData) HeapRef {
	h := HeapRef(len(f.Heaps))
	f.Heaps = append(f.Heaps, data)
	return h
}

// MakeJumpTable declares a jump table.
func (f *Function) MakeJumpTable(data JumpTableData) JumpTable {
	jt := JumpTable(len(f.JumpTables))
	f.JumpTables = append(f.JumpTables, data)
	return jt
}

// ClearJumpTables drops all jump tables, for targets that cannot encode
// hardware table dispatch once every br_table has been lowered away.
func (f *Function) ClearJumpTables() {
	f.JumpTables = nil
}

// ResizeEncodings grows the encodings map to cover every instruction,
// initializing new entries to NoEncoding.
func (f *Function) ResizeEncodings() {
	for len(f.Encodings) < f.Dfg.NumInsts() {
		f.Encodings = append(f.Encodings, NoEncoding)
	}
}

// InstEncoding returns the recorded encoding of an instruction.
func (f *Function) InstEncoding(inst Inst) Encoding {
	if int(inst) < len(f.Encodings) {
		return f.Encodings[inst]
	}
	return NoEncoding
}

// DisplayInst renders one instruction for diagnostics.
func (f *Function) DisplayInst(inst Inst) string {
	return displayInst(f, inst)
}

// String renders the whole function in its textual form.
func (f *Function) String() string {
	return Print(f)
}
