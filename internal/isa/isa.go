// Package isa defines the target descriptor the legalizer queries: flags,
// the pure encoding oracle, and the legalization actions it hands back for
// instructions the target cannot encode directly.
package isa

import (
	"sort"

	"github.com/pkg/errors"

	"anvil/internal/ir"
)

// Flags are the target settings that gate legalization strategies.
type Flags struct {
	// Is64Bit selects the 64-bit variant of the architecture.
	Is64Bit bool
	// JumpTablesEnabled permits hardware jump-table dispatch; when false,
	// br_table lowers to a chain of compares and jump tables are cleared
	// after legalization.
	JumpTablesEnabled bool
	// EnableStackCheck records whether stack overflow checks were
	// requested. Legalization does not read it and inserts no probes on
	// its account; stack_check instructions are expanded either way.
	EnableStackCheck bool
}

// ActionKind names a legalization strategy.
type ActionKind uint8

const (
	// ActionNarrow splits a wide operation into operations on half-width
	// value pairs.
	ActionNarrow ActionKind = iota
	// ActionExpand substitutes a straight-line equivalent sequence.
	ActionExpand
	// ActionExpandFlags rewrites instructions producing or consuming
	// comparison flags for targets without a flags register.
	ActionExpandFlags
	// ActionCustom invokes a named hand-written expansion.
	ActionCustom
)

func (k ActionKind) String() string {
	switch k {
	case ActionNarrow:
		return "narrow"
	case ActionExpand:
		return "expand"
	case ActionExpandFlags:
		return "expand_flags"
	case ActionCustom:
		return "custom"
	}
	return "unknown"
}

// Action is the legalization strategy returned by the encoding oracle for
// an instruction it cannot encode. Custom actions carry the handler name
// the legalizer dispatches on.
type Action struct {
	Kind    ActionKind
	Handler string
}

func (a Action) String() string {
	if a.Kind == ActionCustom {
		return "custom(" + a.Handler + ")"
	}
	return a.Kind.String()
}

// ValueConversion is what the ABI requires of one value crossing a call or
// return boundary.
type ValueConversion uint8

const (
	// ConvertNone passes the value through unchanged.
	ConvertNone ValueConversion = iota
	// ConvertSplit splits the value into low and high halves.
	ConvertSplit
	// ConvertSext sign-extends the value to the natural register width.
	ConvertSext
	// ConvertUext zero-extends the value to the natural register width.
	ConvertUext
	// ConvertUnsupported rejects the signature with an ABI mismatch.
	ConvertUnsupported
)

// TargetIsa describes one instruction set architecture to the compiler.
// Implementations are immutable after construction and safe to share
// across concurrently legalized functions.
type TargetIsa interface {
	// Name returns the registry name of the target.
	Name() string

	// Flags returns the target settings.
	Flags() Flags

	// PointerType returns the integer type of the address width.
	PointerType() ir.Type

	// Encode is the encoding oracle. It is a pure, total function of the
	// instruction shape and controlling type: a legal instruction yields
	// its encoding token and ok=true; anything else yields the action to
	// apply and ok=false.
	Encode(dfg *ir.DataFlowGraph, data *ir.InstructionData, ctrl ir.Type) (enc ir.Encoding, action Action, ok bool)

	// LegalizeSignature rewrites a signature into the platform-legal
	// form: wide values split, narrow integers marked for extension, and
	// oversized return tuples diverted through a struct-return pointer.
	LegalizeSignature(sig *ir.Signature)

	// LegalValueType reports how a value of the given type crosses an
	// ABI boundary on this target.
	LegalValueType(ty ir.Type) ValueConversion

	// LibcallName maps an opcode with no encoding and no rewrite to a
	// runtime library routine, when the target has one.
	LibcallName(op ir.Opcode, ctrl ir.Type) (string, bool)

	// DisplayEncoding renders an encoding token for diagnostics.
	DisplayEncoding(enc ir.Encoding) string
}

var registry = map[string]func() TargetIsa{}

// Register installs a target constructor under its registry name. Called
// from target package init functions.
func Register(name string, ctor func() TargetIsa) {
	registry[name] = ctor
}

// Lookup creates the target registered under name.
func Lookup(name string) (TargetIsa, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("unknown target %q", name)
	}
	return ctor(), nil
}

// Names lists the registered targets.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
