package ir

import "fmt"

type ebbNode struct {
	prev, next  Ebb
	first, last Inst
	inLayout    bool
}

type instNode struct {
	prev, next Inst
	ebb        Ebb
	placed     bool
}

// Layout is the ordered placement of EBBs and of instructions within each
// EBB. It is kept as doubly linked chains indexed by entity handle so that
// insertion, removal and back-stepping are constant time and iteration
// stays valid across edits.
type Layout struct {
	ebbs  []ebbNode
	insts []instNode

	firstEbb, lastEbb Ebb
}

// NewLayout returns an empty layout.
func NewLayout() Layout {
	return Layout{firstEbb: NoEbb, lastEbb: NoEbb}
}

func (l *Layout) ebbNode(ebb Ebb) *ebbNode {
	for int(ebb) >= len(l.ebbs) {
		l.ebbs = append(l.ebbs, ebbNode{prev: NoEbb, next: NoEbb, first: NoInst, last: NoInst})
	}
	return &l.ebbs[ebb]
}

func (l *Layout) instNode(inst Inst) *instNode {
	for int(inst) >= len(l.insts) {
		l.insts = append(l.insts, instNode{prev: NoInst, next: NoInst, ebb: NoEbb})
	}
	return &l.insts[inst]
}

// EntryBlock returns the first EBB in the layout, or NoEbb when empty.
func (l *Layout) EntryBlock() Ebb { return l.firstEbb }

// IsEbbInserted reports whether the EBB has been placed in the layout.
func (l *Layout) IsEbbInserted(ebb Ebb) bool {
	return int(ebb) < len(l.ebbs) && l.ebbs[ebb].inLayout
}

// FirstEbb returns the first EBB, or NoEbb.
func (l *Layout) FirstEbb() Ebb { return l.firstEbb }

// NextEbb returns the EBB after ebb in layout order, or NoEbb.
func (l *Layout) NextEbb(ebb Ebb) Ebb { return l.ebbs[ebb].next }

// AppendEbb places an EBB at the end of the layout.
func (l *Layout) AppendEbb(ebb Ebb) {
	n := l.ebbNode(ebb)
	if n.inLayout {
		panic(fmt.Sprintf("%s is already in the layout", ebb))
	}
	n.inLayout = true
	n.prev = l.lastEbb
	n.next = NoEbb
	if l.lastEbb != NoEbb {
		l.ebbs[l.lastEbb].next = ebb
	} else {
		l.firstEbb = ebb
	}
	l.lastEbb = ebb
}

// InsertEbbAfter places a new EBB immediately after an existing one.
func (l *Layout) InsertEbbAfter(ebb, after Ebb) {
	n := l.ebbNode(ebb)
	if n.inLayout {
		panic(fmt.Sprintf("%s is already in the layout", ebb))
	}
	a := l.ebbNode(after)
	if !a.inLayout {
		panic(fmt.Sprintf("%s is not in the layout", after))
	}
	n.inLayout = true
	n.prev = after
	n.next = a.next
	a.next = ebb
	if n.next != NoEbb {
		l.ebbs[n.next].prev = ebb
	} else {
		l.lastEbb = ebb
	}
}

// RemoveEbb removes an empty EBB from the layout.
func (l *Layout) RemoveEbb(ebb Ebb) {
	n := l.ebbNode(ebb)
	if n.first != NoInst {
		panic(fmt.Sprintf("cannot remove non-empty %s", ebb))
	}
	if n.prev != NoEbb {
		l.ebbs[n.prev].next = n.next
	} else {
		l.firstEbb = n.next
	}
	if n.next != NoEbb {
		l.ebbs[n.next].prev = n.prev
	} else {
		l.lastEbb = n.prev
	}
	n.inLayout = false
	n.prev, n.next = NoEbb, NoEbb
}

// FirstInst returns the first instruction of an EBB, or NoInst.
func (l *Layout) FirstInst(ebb Ebb) Inst {
	if int(ebb) >= len(l.ebbs) {
		return NoInst
	}
	return l.ebbs[ebb].first
}

// LastInst returns the last instruction of an EBB, or NoInst.
func (l *Layout) LastInst(ebb Ebb) Inst {
	if int(ebb) >= len(l.ebbs) {
		return NoInst
	}
	return l.ebbs[ebb].last
}

// NextInst returns the instruction after inst within its EBB, or NoInst.
func (l *Layout) NextInst(inst Inst) Inst { return l.insts[inst].next }

// PrevInst returns the instruction before inst within its EBB, or NoInst.
func (l *Layout) PrevInst(inst Inst) Inst { return l.insts[inst].prev }

// InstEbb returns the EBB containing a placed instruction.
func (l *Layout) InstEbb(inst Inst) Ebb {
	if int(inst) >= len(l.insts) || !l.insts[inst].placed {
		return NoEbb
	}
	return l.insts[inst].ebb
}

// IsInstPlaced reports whether the instruction is in the layout.
func (l *Layout) IsInstPlaced(inst Inst) bool {
	return int(inst) < len(l.insts) && l.insts[inst].placed
}

// AppendInst places an instruction at the end of an EBB.
func (l *Layout) AppendInst(inst Inst, ebb Ebb) {
	n := l.instNode(inst)
	if n.placed {
		panic(fmt.Sprintf("%s is already placed", inst))
	}
	e := l.ebbNode(ebb)
	n.placed = true
	n.ebb = ebb
	n.prev = e.last
	n.next = NoInst
	if e.last != NoInst {
		l.insts[e.last].next = inst
	} else {
		e.first = inst
	}
	e.last = inst
}

// InsertInstBefore places an instruction immediately before another.
func (l *Layout) InsertInstBefore(inst, before Inst) {
	n := l.instNode(inst)
	if n.placed {
		panic(fmt.Sprintf("%s is already placed", inst))
	}
	b := &l.insts[before]
	ebb := b.ebb
	n.placed = true
	n.ebb = ebb
	n.prev = b.prev
	n.next = before
	if b.prev != NoInst {
		l.insts[b.prev].next = inst
	} else {
		l.ebbs[ebb].first = inst
	}
	b.prev = inst
}

// RemoveInst removes an instruction from the layout. Its handle stays
// allocated in the DFG.
func (l *Layout) RemoveInst(inst Inst) {
	n := &l.insts[inst]
	if !n.placed {
		panic(fmt.Sprintf("%s is not placed", inst))
	}
	ebb := n.ebb
	if n.prev != NoInst {
		l.insts[n.prev].next = n.next
	} else {
		l.ebbs[ebb].first = n.next
	}
	if n.next != NoInst {
		l.insts[n.next].prev = n.prev
	} else {
		l.ebbs[ebb].last = n.prev
	}
	n.placed = false
	n.prev, n.next, n.ebb = NoInst, NoInst, NoEbb
}

// SplitEbb inserts newEbb after the EBB containing before and moves before
// and every following instruction of that EBB into newEbb.
func (l *Layout) SplitEbb(newEbb Ebb, before Inst) {
	old := l.InstEbb(before)
	if old == NoEbb {
		panic(fmt.Sprintf("%s is not placed", before))
	}
	l.InsertEbbAfter(newEbb, old)

	o := &l.ebbs[old]
	n := &l.ebbs[newEbb]

	n.first = before
	n.last = o.last
	o.last = l.insts[before].prev
	if o.last != NoInst {
		l.insts[o.last].next = NoInst
	} else {
		o.first = NoInst
	}
	l.insts[before].prev = NoInst

	for i := before; i != NoInst; i = l.insts[i].next {
		l.insts[i].ebb = newEbb
	}
}

// Ebbs returns the EBBs in layout order.
func (l *Layout) Ebbs() []Ebb {
	var out []Ebb
	for ebb := l.firstEbb; ebb != NoEbb; ebb = l.ebbs[ebb].next {
		out = append(out, ebb)
	}
	return out
}

// Insts returns the instructions of an EBB in layout order.
func (l *Layout) Insts(ebb Ebb) []Inst {
	var out []Inst
	for i := l.FirstInst(ebb); i != NoInst; i = l.insts[i].next {
		out = append(out, i)
	}
	return out
}
