package legalizer

import (
	"fmt"

	"anvil/internal/ir"
)

// InvalidCFGError reports that the supplied control flow graph was not
// computed for the function being legalized.
type InvalidCFGError struct{}

func (e *InvalidCFGError) Error() string {
	return "control flow graph is not valid for this function"
}

// UnlegalizableInstructionError reports an instruction with no encoding,
// no rewrite and no library call.
type UnlegalizableInstructionError struct {
	Inst    ir.Inst
	Opcode  ir.Opcode
	Ty      ir.Type
	Display string
}

func (e *UnlegalizableInstructionError) Error() string {
	return fmt.Sprintf("no encoding, rewrite or libcall for %s (%s.%s)", e.Display, e.Opcode, e.Ty)
}

// AbiMismatchError reports a signature that cannot be mapped to the
// platform-legal form.
type AbiMismatchError struct {
	Signature string
	Reason    string
}

func (e *AbiMismatchError) Error() string {
	return fmt.Sprintf("signature %s cannot be legalized: %s", e.Signature, e.Reason)
}

// InternalInvariantError reports a broken invariant detected mid-pass:
// alias cycles, empty EBBs, missing terminators, or a rewrite chain that
// failed to converge.
type InternalInvariantError struct {
	Message string
}

func (e *InternalInvariantError) Error() string {
	return "internal invariant violated: " + e.Message
}
