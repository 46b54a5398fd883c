package ir

import "fmt"

type valueKind uint8

const (
	valueInvalid valueKind = iota
	valueResult            // result #num of an instruction
	valueParam             // parameter #num of an EBB
	valueAlias             // alias of another value
	valueDetached          // temporarily detached during a rewrite
)

type valueData struct {
	kind  valueKind
	ty    Type
	num   uint16
	inst  Inst
	ebb   Ebb
	alias Value
}

type ebbData struct {
	params []Value
}

// ExtFuncData names an external function together with its signature.
type ExtFuncData struct {
	Name string
	Sig  SigRef
}

// ValueDef describes where a value is defined.
type ValueDef struct {
	// Inst is valid when the value is an instruction result.
	Inst Inst
	// Ebb is valid when the value is an EBB parameter.
	Ebb Ebb
	// Num is the result or parameter index.
	Num int
}

// DataFlowGraph holds instructions and values with their use-def relations,
// independent of code layout.
type DataFlowGraph struct {
	insts   []InstructionData
	results [][]Value
	values  []valueData
	ebbs    []ebbData

	// Signatures for indirect call sites, external function declarations.
	Signatures []Signature
	ExtFuncs   []ExtFuncData
}

func (d *DataFlowGraph) NumInsts() int  { return len(d.insts) }
func (d *DataFlowGraph) NumEbbs() int   { return len(d.ebbs) }
func (d *DataFlowGraph) NumValues() int { return len(d.values) }

// MakeInst creates a new instruction with no results.
func (d *DataFlowGraph) MakeInst(data InstructionData) Inst {
	inst := Inst(len(d.insts))
	d.insts = append(d.insts, data)
	d.results = append(d.results, nil)
	return inst
}

// InstData returns the mutable payload of an instruction.
func (d *DataFlowGraph) InstData(inst Inst) *InstructionData {
	return &d.insts[inst]
}

// CtrlTypevar returns the controlling type variable of the instruction.
func (d *DataFlowGraph) CtrlTypevar(inst Inst) Type {
	return d.insts[inst].Ty
}

func (d *DataFlowGraph) makeValue(data valueData) Value {
	v := Value(len(d.values))
	d.values = append(d.values, data)
	return v
}

// resultTypes computes the result type list of an instruction from its
// opcode and controlling type.
func (d *DataFlowGraph) resultTypes(data *InstructionData) []Type {
	switch data.Opcode {
	case OpJump, OpBrz, OpBrnz, OpBrif, OpBrIcmp, OpBrTable, OpIndirectJumpTableBr,
		OpReturn, OpTrap, OpTrapz, OpTrapnz, OpTrapif,
		OpStore, OpStackStore, OpStackCheck:
		return nil
	case OpIcmp, OpIcmpImm:
		return []Type{B1}
	case OpIfcmp, OpIfcmpSp:
		return []Type{IFLAGS}
	case OpIaddCout, OpIsubBout:
		return []Type{data.Ty, B1}
	case OpIsplit:
		half := data.Ty.HalfWidth()
		return []Type{half, half}
	case OpIconcat:
		return []Type{data.Ty.DoubleWidth()}
	case OpCall:
		sig := &d.Signatures[d.ExtFuncs[data.Func].Sig]
		return sig.returnTypes()
	case OpCallIndirect:
		sig := &d.Signatures[data.Sig]
		return sig.returnTypes()
	}
	return []Type{data.Ty}
}

// MakeInstResults creates the result values of an instruction according to
// its opcode and controlling type. It returns the number of results.
func (d *DataFlowGraph) MakeInstResults(inst Inst) int {
	types := d.resultTypes(&d.insts[inst])
	res := make([]Value, len(types))
	for i, ty := range types {
		res[i] = d.makeValue(valueData{kind: valueResult, ty: ty, num: uint16(i), inst: inst})
	}
	d.results[inst] = res
	return len(res)
}

// reuseInstResults rebuilds the result list of a replaced instruction,
// keeping the existing result values when their types still match so that
// downstream uses stay valid.
func (d *DataFlowGraph) reuseInstResults(inst Inst) {
	types := d.resultTypes(&d.insts[inst])
	old := d.results[inst]
	res := make([]Value, len(types))
	for i, ty := range types {
		if i < len(old) && d.values[old[i]].kind == valueResult && d.values[old[i]].ty == ty {
			res[i] = old[i]
			d.values[old[i]].num = uint16(i)
			continue
		}
		res[i] = d.makeValue(valueData{kind: valueResult, ty: ty, num: uint16(i), inst: inst})
	}
	for _, v := range old[len(types):] {
		d.values[v].kind = valueDetached
	}
	d.results[inst] = res
}

// InstResults returns the result values of an instruction.
func (d *DataFlowGraph) InstResults(inst Inst) []Value {
	return d.results[inst]
}

// FirstResult returns the first result of an instruction.
func (d *DataFlowGraph) FirstResult(inst Inst) Value {
	return d.results[inst][0]
}

// ClearResults detaches all result values from an instruction. The values
// stay allocated so they can be reattached, for example as EBB parameters.
func (d *DataFlowGraph) ClearResults(inst Inst) {
	for _, v := range d.results[inst] {
		d.values[v].kind = valueDetached
	}
	d.results[inst] = nil
}

// MakeEbb creates a new extended basic block with no parameters. The block
// is not placed in the layout.
func (d *DataFlowGraph) MakeEbb() Ebb {
	ebb := Ebb(len(d.ebbs))
	d.ebbs = append(d.ebbs, ebbData{})
	return ebb
}

// AppendEbbParam adds a new parameter of the given type to an EBB.
func (d *DataFlowGraph) AppendEbbParam(ebb Ebb, ty Type) Value {
	num := uint16(len(d.ebbs[ebb].params))
	v := d.makeValue(valueData{kind: valueParam, ty: ty, num: num, ebb: ebb})
	d.ebbs[ebb].params = append(d.ebbs[ebb].params, v)
	return v
}

// AttachEbbParam turns a detached value into a parameter of an EBB,
// preserving its identity so existing uses keep referring to it.
func (d *DataFlowGraph) AttachEbbParam(ebb Ebb, v Value) {
	if d.values[v].kind != valueDetached {
		panic(fmt.Sprintf("cannot attach %s: not detached", v))
	}
	d.values[v].kind = valueParam
	d.values[v].ebb = ebb
	d.values[v].num = uint16(len(d.ebbs[ebb].params))
	d.ebbs[ebb].params = append(d.ebbs[ebb].params, v)
}

// EbbParams returns the parameter values of an EBB.
func (d *DataFlowGraph) EbbParams(ebb Ebb) []Value {
	return d.ebbs[ebb].params
}

// RemoveEbbParam removes parameter #num from an EBB, renumbering the
// following parameters. The removed value is detached, not freed.
func (d *DataFlowGraph) RemoveEbbParam(ebb Ebb, num int) {
	params := d.ebbs[ebb].params
	d.values[params[num]].kind = valueDetached
	params = append(params[:num], params[num+1:]...)
	for i := num; i < len(params); i++ {
		d.values[params[i]].num = uint16(i)
	}
	d.ebbs[ebb].params = params
}

// InsertEbbParam inserts a fresh parameter of the given type at position
// num, renumbering the parameters after it.
func (d *DataFlowGraph) InsertEbbParam(ebb Ebb, num int, ty Type) Value {
	v := d.makeValue(valueData{kind: valueParam, ty: ty, num: uint16(num), ebb: ebb})
	params := d.ebbs[ebb].params
	params = append(params, NoValue)
	copy(params[num+1:], params[num:])
	params[num] = v
	for i := num + 1; i < len(params); i++ {
		d.values[params[i]].num = uint16(i)
	}
	d.ebbs[ebb].params = params
	return v
}

// ReplaceEbbParam swaps parameter #num of an EBB for a fresh value of a new
// type. The old value is detached and returned for rebinding by the caller.
func (d *DataFlowGraph) ReplaceEbbParam(ebb Ebb, num int, ty Type) (old, repl Value) {
	old = d.ebbs[ebb].params[num]
	d.values[old].kind = valueDetached
	repl = d.makeValue(valueData{kind: valueParam, ty: ty, num: uint16(num), ebb: ebb})
	d.ebbs[ebb].params[num] = repl
	return old, repl
}

// ValueType returns the type of a value, resolving aliases.
func (d *DataFlowGraph) ValueType(v Value) Type {
	return d.values[d.ResolveAliases(v)].ty
}

// ValueDef returns the definition of a value, resolving aliases.
func (d *DataFlowGraph) ValueDef(v Value) ValueDef {
	v = d.ResolveAliases(v)
	data := &d.values[v]
	switch data.kind {
	case valueResult:
		return ValueDef{Inst: data.inst, Ebb: NoEbb, Num: int(data.num)}
	case valueParam:
		return ValueDef{Inst: NoInst, Ebb: data.ebb, Num: int(data.num)}
	}
	return ValueDef{Inst: NoInst, Ebb: NoEbb}
}

// IsAlias reports whether the value is an alias of another value.
func (d *DataFlowGraph) IsAlias(v Value) bool {
	return d.values[v].kind == valueAlias
}

// ResolveAliases follows alias chains to the underlying value. Chains are
// acyclic by construction; a cycle is an internal invariant violation.
func (d *DataFlowGraph) ResolveAliases(v Value) Value {
	for steps := 0; d.values[v].kind == valueAlias; steps++ {
		if steps > len(d.values) {
			panic(fmt.Sprintf("alias cycle at %s", v))
		}
		v = d.values[v].alias
	}
	return v
}

// ChangeToAlias turns v into an alias of dest. All existing uses of v now
// observe dest.
func (d *DataFlowGraph) ChangeToAlias(v, dest Value) {
	if d.ResolveAliases(dest) == v {
		panic(fmt.Sprintf("aliasing %s to %s would create a cycle", v, dest))
	}
	d.values[v].kind = valueAlias
	d.values[v].alias = dest
}

// ResolveAliasesInArgs rewrites the arguments of an instruction so none of
// them is an alias.
func (d *DataFlowGraph) ResolveAliasesInArgs(inst Inst) {
	args := d.insts[inst].Args
	for i, arg := range args {
		args[i] = d.ResolveAliases(arg)
	}
}

// MakeSignature declares a signature and returns its reference.
func (d *DataFlowGraph) MakeSignature(sig Signature) SigRef {
	ref := SigRef(len(d.Signatures))
	d.Signatures = append(d.Signatures, sig)
	return ref
}

// MakeExtFunc declares an external function and returns its reference.
func (d *DataFlowGraph) MakeExtFunc(data ExtFuncData) FuncRef {
	ref := FuncRef(len(d.ExtFuncs))
	d.ExtFuncs = append(d.ExtFuncs, data)
	return ref
}
