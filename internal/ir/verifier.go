package ir

import "github.com/pkg/errors"

// Verify checks the structural invariants the passes rely on: a non-empty
// layout of non-empty EBBs, each ending in a terminator; branch targets
// placed in the layout; acyclic value aliasing; instruction arguments
// referring to allocated value handles.
func Verify(f *Function) error {
	if f.Layout.EntryBlock() == NoEbb {
		return errors.New("function has no entry block")
	}

	for ebb := f.Layout.FirstEbb(); ebb != NoEbb; ebb = f.Layout.NextEbb(ebb) {
		last := f.Layout.LastInst(ebb)
		if last == NoInst {
			return errors.Errorf("%s is empty", ebb)
		}
		if !f.Dfg.InstData(last).Opcode.IsTerminator() {
			return errors.Errorf("%s does not end in a terminator: %s", ebb, f.DisplayInst(last))
		}
		for inst := f.Layout.FirstInst(ebb); inst != NoInst; inst = f.Layout.NextInst(inst) {
			if inst != last && f.Dfg.InstData(inst).Opcode.IsTerminator() {
				return errors.Errorf("terminator %s in the middle of %s", f.DisplayInst(inst), ebb)
			}
			if err := verifyInst(f, ebb, inst); err != nil {
				return err
			}
		}
	}

	for v := 0; v < f.Dfg.NumValues(); v++ {
		if err := verifyAliasChain(f, Value(v)); err != nil {
			return err
		}
	}

	return nil
}

func verifyInst(f *Function, ebb Ebb, inst Inst) error {
	data := f.Dfg.InstData(inst)

	for _, arg := range data.Args {
		if arg < 0 || int(arg) >= f.Dfg.NumValues() {
			return errors.Errorf("%s in %s uses undeclared value %s", inst, ebb, arg)
		}
	}

	switch info := data.AnalyzeBranch(); info.Kind {
	case BranchSingle:
		if !f.Layout.IsEbbInserted(info.Dest) {
			return errors.Errorf("%s branches to %s which is not in the layout", f.DisplayInst(inst), info.Dest)
		}
		params := f.Dfg.EbbParams(info.Dest)
		if len(info.Args) != len(params) {
			return errors.Errorf("%s passes %d arguments to %s which has %d parameters",
				f.DisplayInst(inst), len(info.Args), info.Dest, len(params))
		}
		for i, arg := range info.Args {
			if f.Dfg.ValueType(arg) != f.Dfg.ValueType(params[i]) {
				return errors.Errorf("%s argument %d has type %s, %s parameter has type %s",
					f.DisplayInst(inst), i, f.Dfg.ValueType(arg), info.Dest, f.Dfg.ValueType(params[i]))
			}
		}
	case BranchTable:
		if int(info.Table) >= len(f.JumpTables) {
			return errors.Errorf("%s uses undeclared table %s", f.DisplayInst(inst), info.Table)
		}
		for _, target := range f.JumpTables[info.Table].Targets {
			if !f.Layout.IsEbbInserted(target) {
				return errors.Errorf("%s targets %s which is not in the layout", info.Table, target)
			}
		}
		if info.Dest != NoEbb && !f.Layout.IsEbbInserted(info.Dest) {
			return errors.Errorf("%s defaults to %s which is not in the layout", f.DisplayInst(inst), info.Dest)
		}
	}

	return nil
}

func verifyAliasChain(f *Function, v Value) error {
	slow, fast := v, v
	for {
		if !f.Dfg.IsAlias(fast) {
			return nil
		}
		fast = f.Dfg.values[fast].alias
		if !f.Dfg.IsAlias(fast) {
			return nil
		}
		fast = f.Dfg.values[fast].alias
		slow = f.Dfg.values[slow].alias
		if slow == fast {
			return errors.Errorf("alias cycle through %s", v)
		}
	}
}
