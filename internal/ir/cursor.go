package ir

import "fmt"

// PositionKind discriminates cursor positions.
type PositionKind uint8

const (
	// PosNowhere is the default position, not pointing into the layout.
	PosNowhere PositionKind = iota
	// PosAt points at a placed instruction. Insertions go before it.
	PosAt
	// PosBefore points above the first instruction of an EBB.
	PosBefore
	// PosAfter points below the last instruction of an EBB. Insertions
	// append to the EBB.
	PosAfter
)

// Position is an explicit cursor state. Saving and restoring a position is
// constant time, which is what makes the legalizer's back-stepping cheap.
type Position struct {
	Kind PositionKind
	Ebb  Ebb
	Inst Inst
}

// Cursor is a mutable position within a function's layout. It is the sole
// mutator of the layout during a pass; traversal state is recomputed from
// the layout on every step so it stays valid across insertions, removals
// and EBB splits.
type Cursor struct {
	Fn  *Function
	pos Position
}

// NewCursor returns a cursor over fn, positioned nowhere.
func NewCursor(fn *Function) *Cursor {
	return &Cursor{Fn: fn, pos: Position{Kind: PosNowhere, Ebb: NoEbb, Inst: NoInst}}
}

// Position returns the current position.
func (c *Cursor) Position() Position { return c.pos }

// SetPosition restores a previously saved position.
func (c *Cursor) SetPosition(pos Position) { c.pos = pos }

// CurrentEbb returns the EBB the cursor is in, or NoEbb.
func (c *Cursor) CurrentEbb() Ebb { return c.pos.Ebb }

// CurrentInst returns the instruction the cursor is at, or NoInst.
func (c *Cursor) CurrentInst() Inst {
	if c.pos.Kind == PosAt {
		return c.pos.Inst
	}
	return NoInst
}

// NextEbb advances to the next EBB in layout order, positioning the cursor
// above its first instruction. EBBs appended or split off during the walk
// are visited in their layout order.
func (c *Cursor) NextEbb() (Ebb, bool) {
	var next Ebb
	if c.pos.Kind == PosNowhere {
		next = c.Fn.Layout.FirstEbb()
	} else {
		next = c.Fn.Layout.NextEbb(c.pos.Ebb)
	}
	if next == NoEbb {
		c.pos = Position{Kind: PosNowhere, Ebb: NoEbb, Inst: NoInst}
		return NoEbb, false
	}
	c.pos = Position{Kind: PosBefore, Ebb: next, Inst: NoInst}
	return next, true
}

// NextInst advances to the next instruction in the current EBB. The
// successor is recomputed from the layout, never cached, so instructions
// inserted after the current position are picked up.
func (c *Cursor) NextInst() (Inst, bool) {
	var next Inst
	switch c.pos.Kind {
	case PosBefore:
		next = c.Fn.Layout.FirstInst(c.pos.Ebb)
	case PosAt:
		next = c.Fn.Layout.NextInst(c.pos.Inst)
	default:
		return NoInst, false
	}
	if next == NoInst {
		c.pos = Position{Kind: PosAfter, Ebb: c.pos.Ebb, Inst: NoInst}
		return NoInst, false
	}
	c.pos = Position{Kind: PosAt, Ebb: c.pos.Ebb, Inst: next}
	return next, true
}

// GotoTop positions the cursor above the first instruction of an EBB.
func (c *Cursor) GotoTop(ebb Ebb) *Cursor {
	c.pos = Position{Kind: PosBefore, Ebb: ebb, Inst: NoInst}
	return c
}

// GotoBottom positions the cursor below the last instruction of an EBB.
func (c *Cursor) GotoBottom(ebb Ebb) *Cursor {
	c.pos = Position{Kind: PosAfter, Ebb: ebb, Inst: NoInst}
	return c
}

// GotoInst positions the cursor at a placed instruction.
func (c *Cursor) GotoInst(inst Inst) *Cursor {
	ebb := c.Fn.Layout.InstEbb(inst)
	if ebb == NoEbb {
		panic(fmt.Sprintf("%s is not placed", inst))
	}
	c.pos = Position{Kind: PosAt, Ebb: ebb, Inst: inst}
	return c
}

// GotoAfterInst positions the cursor just after a placed instruction.
func (c *Cursor) GotoAfterInst(inst Inst) *Cursor {
	c.GotoInst(inst)
	if next := c.Fn.Layout.NextInst(inst); next != NoInst {
		c.pos = Position{Kind: PosAt, Ebb: c.pos.Ebb, Inst: next}
	} else {
		c.pos = Position{Kind: PosAfter, Ebb: c.pos.Ebb, Inst: NoInst}
	}
	return c
}

// GotoFirstInsertionPoint positions the cursor so the next insertion
// becomes the first instruction of the EBB.
func (c *Cursor) GotoFirstInsertionPoint(ebb Ebb) *Cursor {
	if first := c.Fn.Layout.FirstInst(ebb); first != NoInst {
		c.pos = Position{Kind: PosAt, Ebb: ebb, Inst: first}
	} else {
		c.pos = Position{Kind: PosAfter, Ebb: ebb, Inst: NoInst}
	}
	return c
}

// insertInst places a new instruction at the current position. With the
// cursor at an instruction, insertions go before it, so consecutive
// insertions appear in call order.
func (c *Cursor) insertInst(inst Inst) {
	switch c.pos.Kind {
	case PosAt:
		c.Fn.Layout.InsertInstBefore(inst, c.pos.Inst)
	case PosAfter:
		c.Fn.Layout.AppendInst(inst, c.pos.Ebb)
	default:
		panic("cannot insert an instruction at this position")
	}
}

// InsertEbb inserts a new EBB at the current position and moves the cursor
// into it. With the cursor at an instruction, the EBB containing it is
// split: the current instruction and everything after it move into newEbb.
func (c *Cursor) InsertEbb(newEbb Ebb) {
	switch c.pos.Kind {
	case PosAt:
		c.Fn.Layout.SplitEbb(newEbb, c.pos.Inst)
		c.pos.Ebb = newEbb
	case PosAfter:
		c.Fn.Layout.InsertEbbAfter(newEbb, c.pos.Ebb)
		c.pos = Position{Kind: PosAfter, Ebb: newEbb, Inst: NoInst}
	default:
		panic("cannot insert an EBB at this position")
	}
}

// RemoveInstAndStepBack removes the current instruction and steps back so
// the next NextInst call yields the removed instruction's successor.
func (c *Cursor) RemoveInstAndStepBack() Inst {
	if c.pos.Kind != PosAt {
		panic("no current instruction to remove")
	}
	inst := c.pos.Inst
	prev := c.Fn.Layout.PrevInst(inst)
	ebb := c.pos.Ebb
	c.Fn.Layout.RemoveInst(inst)
	if prev != NoInst {
		c.pos = Position{Kind: PosAt, Ebb: ebb, Inst: prev}
	} else {
		c.pos = Position{Kind: PosBefore, Ebb: ebb, Inst: NoInst}
	}
	return inst
}

// RemoveInst removes the current instruction from the layout and advances
// to its successor.
func (c *Cursor) RemoveInst() Inst {
	if c.pos.Kind != PosAt {
		panic("no current instruction to remove")
	}
	inst := c.pos.Inst
	next := c.Fn.Layout.NextInst(inst)
	c.Fn.Layout.RemoveInst(inst)
	if next != NoInst {
		c.pos = Position{Kind: PosAt, Ebb: c.pos.Ebb, Inst: next}
	} else {
		c.pos = Position{Kind: PosAfter, Ebb: c.pos.Ebb, Inst: NoInst}
	}
	return inst
}
