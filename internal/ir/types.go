package ir

import "fmt"

// Type is the concrete type of an SSA value. The set is the scalar lattice
// the legalizer works over; vector types are out of scope.
type Type uint8

const (
	VOID Type = iota
	B1        // boolean produced by comparisons
	I8
	I16
	I32
	I64
	F32
	F64
	IFLAGS // integer comparison flags, produced by ifcmp/ifcmp_sp
)

var typeNames = [...]string{
	VOID:   "void",
	B1:     "b1",
	I8:     "i8",
	I16:    "i16",
	I32:    "i32",
	I64:    "i64",
	F32:    "f32",
	F64:    "f64",
	IFLAGS: "iflags",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type%d", uint8(t))
}

// TypeFromName parses a textual type name.
func TypeFromName(name string) (Type, bool) {
	for t, n := range typeNames {
		if n == name && Type(t) != VOID {
			return Type(t), true
		}
	}
	return VOID, false
}

// Bits returns the width of the type in bits, or 0 for void/flags.
func (t Type) Bits() int {
	switch t {
	case B1:
		return 1
	case I8:
		return 8
	case I16:
		return 16
	case I32, F32:
		return 32
	case I64, F64:
		return 64
	}
	return 0
}

// Bytes returns the width of the type in whole bytes.
func (t Type) Bytes() int {
	return (t.Bits() + 7) / 8
}

func (t Type) IsInt() bool {
	return t == I8 || t == I16 || t == I32 || t == I64
}

func (t Type) IsFloat() bool {
	return t == F32 || t == F64
}

func (t Type) IsBool() bool {
	return t == B1
}

// HalfWidth returns the integer type of half the width, or VOID when the
// type cannot be split further.
func (t Type) HalfWidth() Type {
	switch t {
	case I16:
		return I8
	case I32:
		return I16
	case I64:
		return I32
	}
	return VOID
}

// DoubleWidth returns the integer type of twice the width, or VOID when the
// type cannot be widened further.
func (t Type) DoubleWidth() Type {
	switch t {
	case I8:
		return I16
	case I16:
		return I32
	case I32:
		return I64
	}
	return VOID
}

// IntCC is an integer condition code.
type IntCC uint8

const (
	IntEQ IntCC = iota
	IntNE
	IntSLT
	IntSGE
	IntSGT
	IntSLE
	IntULT
	IntUGE
	IntUGT
	IntULE
)

var intccNames = [...]string{
	IntEQ:  "eq",
	IntNE:  "ne",
	IntSLT: "slt",
	IntSGE: "sge",
	IntSGT: "sgt",
	IntSLE: "sle",
	IntULT: "ult",
	IntUGE: "uge",
	IntUGT: "ugt",
	IntULE: "ule",
}

func (cc IntCC) String() string {
	if int(cc) < len(intccNames) {
		return intccNames[cc]
	}
	return fmt.Sprintf("intcc%d", uint8(cc))
}

// IntCCFromName parses a textual condition code.
func IntCCFromName(name string) (IntCC, bool) {
	for cc, n := range intccNames {
		if n == name {
			return IntCC(cc), true
		}
	}
	return IntEQ, false
}

// Inverse returns the condition that holds exactly when cc does not.
func (cc IntCC) Inverse() IntCC {
	switch cc {
	case IntEQ:
		return IntNE
	case IntNE:
		return IntEQ
	case IntSLT:
		return IntSGE
	case IntSGE:
		return IntSLT
	case IntSGT:
		return IntSLE
	case IntSLE:
		return IntSGT
	case IntULT:
		return IntUGE
	case IntUGE:
		return IntULT
	case IntUGT:
		return IntULE
	case IntULE:
		return IntUGT
	}
	return cc
}

// TrapCode identifies the reason a trap instruction fires. User codes are
// offset above the predefined range.
type TrapCode uint32

const (
	TrapStackOverflow TrapCode = iota
	TrapHeapOutOfBounds
	TrapIntegerOverflow
	TrapIntegerDivByZero
	TrapBadConversion

	trapUserBase TrapCode = 0x10000
)

// TrapUser returns the trap code for a user-defined trap reason.
func TrapUser(code uint16) TrapCode {
	return trapUserBase + TrapCode(code)
}

func (tc TrapCode) String() string {
	switch tc {
	case TrapStackOverflow:
		return "stk_ovf"
	case TrapHeapOutOfBounds:
		return "heap_oob"
	case TrapIntegerOverflow:
		return "int_ovf"
	case TrapIntegerDivByZero:
		return "int_divz"
	case TrapBadConversion:
		return "bad_toint"
	}
	if tc >= trapUserBase {
		return fmt.Sprintf("user(%d)", uint32(tc-trapUserBase))
	}
	return fmt.Sprintf("trap%d", uint32(tc))
}

// TrapCodeFromName parses a textual trap code.
func TrapCodeFromName(name string) (TrapCode, bool) {
	switch name {
	case "stk_ovf":
		return TrapStackOverflow, true
	case "heap_oob":
		return TrapHeapOutOfBounds, true
	case "int_ovf":
		return TrapIntegerOverflow, true
	case "int_divz":
		return TrapIntegerDivByZero, true
	case "bad_toint":
		return TrapBadConversion, true
	}
	var n uint32
	if _, err := fmt.Sscanf(name, "user(%d)", &n); err == nil {
		return TrapUser(uint16(n)), true
	}
	return 0, false
}

// MemFlags qualify a memory access.
type MemFlags uint8

const (
	// MemNotrap asserts the access cannot trap.
	MemNotrap MemFlags = 1 << iota
	// MemAligned asserts the address is naturally aligned.
	MemAligned
)

// TrustedMemFlags are the flags for accesses the compiler itself generated,
// like stack slot traffic. Such accesses are always in bounds and aligned.
func TrustedMemFlags() MemFlags {
	return MemNotrap | MemAligned
}

func (f MemFlags) Notrap() bool  { return f&MemNotrap != 0 }
func (f MemFlags) Aligned() bool { return f&MemAligned != 0 }

func (f MemFlags) String() string {
	s := ""
	if f.Notrap() {
		s += " notrap"
	}
	if f.Aligned() {
		s += " aligned"
	}
	return s
}
