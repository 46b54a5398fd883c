package ir

// builderTarget is where an InstBuilder materializes the instruction it
// builds: either inserted at a cursor position or overwriting an existing
// instruction in place.
type builderTarget interface {
	buildInst(data InstructionData) Inst
	dfg() *DataFlowGraph
}

// InstBuilder constructs instructions. Obtain one from Cursor.Ins to insert
// at the cursor, or from Function.Replace to rewrite an instruction in
// place while keeping its result values.
type InstBuilder struct {
	target builderTarget
}

type cursorTarget struct{ c *Cursor }

func (t cursorTarget) buildInst(data InstructionData) Inst {
	inst := t.c.Fn.Dfg.MakeInst(data)
	t.c.Fn.Dfg.MakeInstResults(inst)
	t.c.Fn.ResizeEncodings()
	t.c.insertInst(inst)
	return inst
}

func (t cursorTarget) dfg() *DataFlowGraph { return &t.c.Fn.Dfg }

// Ins returns a builder that inserts new instructions at the cursor.
func (c *Cursor) Ins() InstBuilder {
	return InstBuilder{target: cursorTarget{c}}
}

type replaceTarget struct {
	fn   *Function
	inst Inst
}

func (t replaceTarget) buildInst(data InstructionData) Inst {
	*t.fn.Dfg.InstData(t.inst) = data
	t.fn.Dfg.reuseInstResults(t.inst)
	if int(t.inst) < len(t.fn.Encodings) {
		t.fn.Encodings[t.inst] = NoEncoding
	}
	return t.inst
}

func (t replaceTarget) dfg() *DataFlowGraph { return &t.fn.Dfg }

// Replace returns a builder that overwrites inst in place. The instruction
// keeps its layout position; result values whose types still match are
// preserved so existing uses stay valid.
func (f *Function) Replace(inst Inst) InstBuilder {
	return InstBuilder{target: replaceTarget{fn: f, inst: inst}}
}

func (b InstBuilder) build(data InstructionData) Inst {
	return b.target.buildInst(data)
}

// Build materializes an instruction from raw data. The typed constructors
// below are preferred; this entry point exists for the text reader, which
// assembles InstructionData directly from the parsed operand fields.
func (b InstBuilder) Build(data InstructionData) Inst {
	return b.build(data)
}

func (b InstBuilder) firstResult(inst Inst) Value {
	return b.target.dfg().FirstResult(inst)
}

func (b InstBuilder) twoResults(inst Inst) (Value, Value) {
	res := b.target.dfg().InstResults(inst)
	return res[0], res[1]
}

func (b InstBuilder) valueType(v Value) Type {
	return b.target.dfg().ValueType(v)
}

func cloneArgs(fixed []Value, varArgs []Value) []Value {
	out := make([]Value, 0, len(fixed)+len(varArgs))
	out = append(out, fixed...)
	out = append(out, varArgs...)
	return out
}

// Control flow.

func (b InstBuilder) Jump(dest Ebb, args []Value) Inst {
	return b.build(InstructionData{Opcode: OpJump, Dest: dest, Args: cloneArgs(nil, args)})
}

func (b InstBuilder) Brz(c Value, dest Ebb, args []Value) Inst {
	return b.build(InstructionData{Opcode: OpBrz, Ty: b.valueType(c), Dest: dest, Args: cloneArgs([]Value{c}, args)})
}

func (b InstBuilder) Brnz(c Value, dest Ebb, args []Value) Inst {
	return b.build(InstructionData{Opcode: OpBrnz, Ty: b.valueType(c), Dest: dest, Args: cloneArgs([]Value{c}, args)})
}

func (b InstBuilder) Brif(cond IntCC, flags Value, dest Ebb, args []Value) Inst {
	return b.build(InstructionData{Opcode: OpBrif, Cond: cond, Dest: dest, Args: cloneArgs([]Value{flags}, args)})
}

func (b InstBuilder) BrIcmp(cond IntCC, x, y Value, dest Ebb, args []Value) Inst {
	return b.build(InstructionData{Opcode: OpBrIcmp, Ty: b.valueType(x), Cond: cond, Dest: dest, Args: cloneArgs([]Value{x, y}, args)})
}

func (b InstBuilder) BrTable(x Value, dest Ebb, table JumpTable) Inst {
	return b.build(InstructionData{Opcode: OpBrTable, Ty: b.valueType(x), Dest: dest, Table: table, Args: []Value{x}})
}

func (b InstBuilder) IndirectJumpTableBr(addr Value, table JumpTable) Inst {
	return b.build(InstructionData{Opcode: OpIndirectJumpTableBr, Ty: b.valueType(addr), Table: table, Args: []Value{addr}})
}

func (b InstBuilder) Return(args []Value) Inst {
	return b.build(InstructionData{Opcode: OpReturn, Args: cloneArgs(nil, args)})
}

func (b InstBuilder) Trap(code TrapCode) Inst {
	return b.build(InstructionData{Opcode: OpTrap, Trap: code})
}

func (b InstBuilder) Trapz(c Value, code TrapCode) Inst {
	return b.build(InstructionData{Opcode: OpTrapz, Ty: b.valueType(c), Trap: code, Args: []Value{c}})
}

func (b InstBuilder) Trapnz(c Value, code TrapCode) Inst {
	return b.build(InstructionData{Opcode: OpTrapnz, Ty: b.valueType(c), Trap: code, Args: []Value{c}})
}

func (b InstBuilder) Trapif(cond IntCC, flags Value, code TrapCode) Inst {
	return b.build(InstructionData{Opcode: OpTrapif, Cond: cond, Trap: code, Args: []Value{flags}})
}

// Comparisons.

func (b InstBuilder) Icmp(cond IntCC, x, y Value) Value {
	inst := b.build(InstructionData{Opcode: OpIcmp, Ty: b.valueType(x), Cond: cond, Args: []Value{x, y}})
	return b.firstResult(inst)
}

func (b InstBuilder) IcmpImm(cond IntCC, x Value, imm int64) Value {
	inst := b.build(InstructionData{Opcode: OpIcmpImm, Ty: b.valueType(x), Cond: cond, Imm: imm, Args: []Value{x}})
	return b.firstResult(inst)
}

func (b InstBuilder) Ifcmp(x, y Value) Value {
	inst := b.build(InstructionData{Opcode: OpIfcmp, Ty: b.valueType(x), Args: []Value{x, y}})
	return b.firstResult(inst)
}

func (b InstBuilder) IfcmpSp(x Value) Value {
	inst := b.build(InstructionData{Opcode: OpIfcmpSp, Ty: b.valueType(x), Args: []Value{x}})
	return b.firstResult(inst)
}

func (b InstBuilder) Select(c, t, f Value) Value {
	inst := b.build(InstructionData{Opcode: OpSelect, Ty: b.valueType(t), Args: []Value{c, t, f}})
	return b.firstResult(inst)
}

func (b InstBuilder) Copy(x Value) Value {
	inst := b.build(InstructionData{Opcode: OpCopy, Ty: b.valueType(x), Args: []Value{x}})
	return b.firstResult(inst)
}

// Constants and casts.

func (b InstBuilder) Iconst(ty Type, imm int64) Value {
	inst := b.build(InstructionData{Opcode: OpIconst, Ty: ty, Imm: imm})
	return b.firstResult(inst)
}

func (b InstBuilder) F32const(bits uint32) Value {
	inst := b.build(InstructionData{Opcode: OpF32const, Ty: F32, Imm: int64(bits)})
	return b.firstResult(inst)
}

func (b InstBuilder) F64const(bits uint64) Value {
	inst := b.build(InstructionData{Opcode: OpF64const, Ty: F64, Imm: int64(bits)})
	return b.firstResult(inst)
}

func (b InstBuilder) Bitcast(ty Type, x Value) Value {
	inst := b.build(InstructionData{Opcode: OpBitcast, Ty: ty, Args: []Value{x}})
	return b.firstResult(inst)
}

// Integer arithmetic.

func (b InstBuilder) binary(op Opcode, x, y Value) Value {
	inst := b.build(InstructionData{Opcode: op, Ty: b.valueType(x), Args: []Value{x, y}})
	return b.firstResult(inst)
}

func (b InstBuilder) Iadd(x, y Value) Value { return b.binary(OpIadd, x, y) }
func (b InstBuilder) Isub(x, y Value) Value { return b.binary(OpIsub, x, y) }
func (b InstBuilder) Imul(x, y Value) Value { return b.binary(OpImul, x, y) }
func (b InstBuilder) Udiv(x, y Value) Value { return b.binary(OpUdiv, x, y) }
func (b InstBuilder) Sdiv(x, y Value) Value { return b.binary(OpSdiv, x, y) }
func (b InstBuilder) Urem(x, y Value) Value { return b.binary(OpUrem, x, y) }
func (b InstBuilder) Srem(x, y Value) Value { return b.binary(OpSrem, x, y) }
func (b InstBuilder) Band(x, y Value) Value { return b.binary(OpBand, x, y) }
func (b InstBuilder) Bor(x, y Value) Value  { return b.binary(OpBor, x, y) }
func (b InstBuilder) Bxor(x, y Value) Value { return b.binary(OpBxor, x, y) }
func (b InstBuilder) Imin(x, y Value) Value { return b.binary(OpImin, x, y) }
func (b InstBuilder) Imax(x, y Value) Value { return b.binary(OpImax, x, y) }
func (b InstBuilder) Umin(x, y Value) Value { return b.binary(OpUmin, x, y) }
func (b InstBuilder) Umax(x, y Value) Value { return b.binary(OpUmax, x, y) }

func (b InstBuilder) IaddImm(x Value, imm int64) Value {
	inst := b.build(InstructionData{Opcode: OpIaddImm, Ty: b.valueType(x), Imm: imm, Args: []Value{x}})
	return b.firstResult(inst)
}

func (b InstBuilder) IaddCout(x, y Value) (Value, Value) {
	inst := b.build(InstructionData{Opcode: OpIaddCout, Ty: b.valueType(x), Args: []Value{x, y}})
	return b.twoResults(inst)
}

func (b InstBuilder) IaddCin(x, y, cin Value) Value {
	inst := b.build(InstructionData{Opcode: OpIaddCin, Ty: b.valueType(x), Args: []Value{x, y, cin}})
	return b.firstResult(inst)
}

func (b InstBuilder) IsubBout(x, y Value) (Value, Value) {
	inst := b.build(InstructionData{Opcode: OpIsubBout, Ty: b.valueType(x), Args: []Value{x, y}})
	return b.twoResults(inst)
}

func (b InstBuilder) IsubBin(x, y, bin Value) Value {
	inst := b.build(InstructionData{Opcode: OpIsubBin, Ty: b.valueType(x), Args: []Value{x, y, bin}})
	return b.firstResult(inst)
}

func (b InstBuilder) Bnot(x Value) Value {
	inst := b.build(InstructionData{Opcode: OpBnot, Ty: b.valueType(x), Args: []Value{x}})
	return b.firstResult(inst)
}

// Width conversions.

func (b InstBuilder) Uextend(ty Type, x Value) Value {
	inst := b.build(InstructionData{Opcode: OpUextend, Ty: ty, Args: []Value{x}})
	return b.firstResult(inst)
}

func (b InstBuilder) Sextend(ty Type, x Value) Value {
	inst := b.build(InstructionData{Opcode: OpSextend, Ty: ty, Args: []Value{x}})
	return b.firstResult(inst)
}

func (b InstBuilder) Ireduce(ty Type, x Value) Value {
	inst := b.build(InstructionData{Opcode: OpIreduce, Ty: ty, Args: []Value{x}})
	return b.firstResult(inst)
}

func (b InstBuilder) Isplit(x Value) (Value, Value) {
	inst := b.build(InstructionData{Opcode: OpIsplit, Ty: b.valueType(x), Args: []Value{x}})
	return b.twoResults(inst)
}

func (b InstBuilder) Iconcat(lo, hi Value) Value {
	inst := b.build(InstructionData{Opcode: OpIconcat, Ty: b.valueType(lo), Args: []Value{lo, hi}})
	return b.firstResult(inst)
}

func (b InstBuilder) FcvtToSint(ty Type, x Value) Value {
	inst := b.build(InstructionData{Opcode: OpFcvtToSint, Ty: ty, Args: []Value{x}})
	return b.firstResult(inst)
}

func (b InstBuilder) FcvtFromSint(ty Type, x Value) Value {
	inst := b.build(InstructionData{Opcode: OpFcvtFromSint, Ty: ty, Args: []Value{x}})
	return b.firstResult(inst)
}

// Floating point.

func (b InstBuilder) Fadd(x, y Value) Value { return b.binary(OpFadd, x, y) }
func (b InstBuilder) Fsub(x, y Value) Value { return b.binary(OpFsub, x, y) }
func (b InstBuilder) Fmul(x, y Value) Value { return b.binary(OpFmul, x, y) }
func (b InstBuilder) Fdiv(x, y Value) Value { return b.binary(OpFdiv, x, y) }

func (b InstBuilder) unary(op Opcode, x Value) Value {
	inst := b.build(InstructionData{Opcode: op, Ty: b.valueType(x), Args: []Value{x}})
	return b.firstResult(inst)
}

func (b InstBuilder) Sqrt(x Value) Value    { return b.unary(OpSqrt, x) }
func (b InstBuilder) Ceil(x Value) Value    { return b.unary(OpCeil, x) }
func (b InstBuilder) Floor(x Value) Value   { return b.unary(OpFloor, x) }
func (b InstBuilder) Trunc(x Value) Value   { return b.unary(OpTrunc, x) }
func (b InstBuilder) Nearest(x Value) Value { return b.unary(OpNearest, x) }

// Memory.

func (b InstBuilder) Load(ty Type, flags MemFlags, addr Value, offset int32) Value {
	inst := b.build(InstructionData{Opcode: OpLoad, Ty: ty, Flags: flags, Offset: offset, Args: []Value{addr}})
	return b.firstResult(inst)
}

func (b InstBuilder) Store(flags MemFlags, x, addr Value, offset int32) Inst {
	return b.build(InstructionData{Opcode: OpStore, Ty: b.valueType(x), Flags: flags, Offset: offset, Args: []Value{x, addr}})
}

func (b InstBuilder) StackLoad(ty Type, slot StackSlot, offset int32) Value {
	inst := b.build(InstructionData{Opcode: OpStackLoad, Ty: ty, Slot: slot, Offset: offset})
	return b.firstResult(inst)
}

func (b InstBuilder) StackStore(x Value, slot StackSlot, offset int32) Inst {
	return b.build(InstructionData{Opcode: OpStackStore, Ty: b.valueType(x), Slot: slot, Offset: offset, Args: []Value{x}})
}

func (b InstBuilder) StackAddr(ty Type, slot StackSlot, offset int32) Value {
	inst := b.build(InstructionData{Opcode: OpStackAddr, Ty: ty, Slot: slot, Offset: offset})
	return b.firstResult(inst)
}

func (b InstBuilder) StackCheck(gv GlobalValue) Inst {
	return b.build(InstructionData{Opcode: OpStackCheck, GV: gv})
}

func (b InstBuilder) GlobalAddr(ty Type, gv GlobalValue) Value {
	inst := b.build(InstructionData{Opcode: OpGlobalAddr, Ty: ty, GV: gv})
	return b.firstResult(inst)
}

// Jump table address computation.

func (b InstBuilder) JumpTableBase(ty Type, table JumpTable) Value {
	inst := b.build(InstructionData{Opcode: OpJumpTableBase, Ty: ty, Table: table})
	return b.firstResult(inst)
}

func (b InstBuilder) JumpTableEntry(ty Type, x, base Value, entrySize int64, table JumpTable) Value {
	inst := b.build(InstructionData{Opcode: OpJumpTableEntry, Ty: ty, Imm: entrySize, Table: table, Args: []Value{x, base}})
	return b.firstResult(inst)
}

// Calls.

func (b InstBuilder) Call(fn FuncRef, args []Value) Inst {
	return b.build(InstructionData{Opcode: OpCall, Func: fn, Args: cloneArgs(nil, args)})
}

func (b InstBuilder) CallIndirect(sig SigRef, callee Value, args []Value) Inst {
	return b.build(InstructionData{Opcode: OpCallIndirect, Sig: sig, Args: cloneArgs([]Value{callee}, args)})
}
