package rv

import "anvil/internal/ir"

// Encoding recipe tables for the rv target, one row per legal instruction
// form, keyed by (opcode, controlling type). The layout mirrors machine
// generated recipe tables: a recipe selects the instruction format and the
// bits field carries the opcode/funct selector for emission.

// Recipe indices. The emitter stages key their operand constraints off
// these values; the legalizer only needs them to be distinct and >= 0.
const (
	recR int16 = iota // reg-reg ALU
	recRi             // reg-imm ALU
	recRout           // ALU with carry/borrow out
	recRin            // ALU with carry/borrow in
	recRicmp          // reg-reg compare into a register
	recRicmpImm       // reg-imm compare into a register
	recRmov           // register move / bitcast
	recRext           // widening or narrowing move
	recRpair          // register pair split/concat
	recIimm           // immediate materialization
	recJ              // unconditional jump
	recBcond          // conditional branch on register
	recJTbase         // jump table base address
	recJTentry        // jump table entry load
	recJTbr           // indirect branch through a jump table
	recLd             // load
	recSt             // store
	recFld            // float load
	recFst            // float store
	recSPrel          // stack-relative address
	recGVaddr         // global symbol address
	recIfcmpSp        // compare a register against the stack pointer
	recTrap           // unconditional trap
	recTrapif         // conditional trap on flags
	recRet            // return
	recCall           // direct call
	recCallInd        // indirect call
)

var recipeNames = []string{
	"R", "Ri", "Rout", "Rin", "Ricmp", "RicmpImm", "Rmov", "Rext", "Rpair",
	"Iimm", "J", "Bcond", "JTbase", "JTentry", "JTbr", "Ld", "St", "Fld",
	"Fst", "SPrel", "GVaddr", "IfcmpSp", "Trap", "Trapif", "Ret", "Call",
	"CallInd",
}

type encRow struct {
	op     ir.Opcode
	ty     ir.Type
	recipe int16
	bits   uint16
}

// Rows legal on every variant. ptrTy is a placeholder for the pointer
// type, substituted at table build time; it must not collide with a real
// controlling type, VOID included.
const ptrTy = ir.Type(0xff)

var commonRows = []encRow{
	{ir.OpIadd, ir.I8, recR, 0x00},
	{ir.OpIadd, ir.I16, recR, 0x00},
	{ir.OpIadd, ir.I32, recR, 0x00},
	{ir.OpIsub, ir.I8, recR, 0x20},
	{ir.OpIsub, ir.I16, recR, 0x20},
	{ir.OpIsub, ir.I32, recR, 0x20},
	{ir.OpImul, ir.I8, recR, 0x01},
	{ir.OpImul, ir.I16, recR, 0x01},
	{ir.OpImul, ir.I32, recR, 0x01},
	{ir.OpBand, ir.B1, recR, 0x07},
	{ir.OpBand, ir.I8, recR, 0x07},
	{ir.OpBand, ir.I16, recR, 0x07},
	{ir.OpBand, ir.I32, recR, 0x07},
	{ir.OpBor, ir.B1, recR, 0x06},
	{ir.OpBor, ir.I8, recR, 0x06},
	{ir.OpBor, ir.I16, recR, 0x06},
	{ir.OpBor, ir.I32, recR, 0x06},
	{ir.OpBxor, ir.B1, recR, 0x04},
	{ir.OpBxor, ir.I8, recR, 0x04},
	{ir.OpBxor, ir.I16, recR, 0x04},
	{ir.OpBxor, ir.I32, recR, 0x04},

	{ir.OpIaddImm, ir.I8, recRi, 0x00},
	{ir.OpIaddImm, ir.I16, recRi, 0x00},
	{ir.OpIaddImm, ir.I32, recRi, 0x00},

	{ir.OpIaddCout, ir.I32, recRout, 0x00},
	{ir.OpIaddCin, ir.I32, recRin, 0x00},
	{ir.OpIsubBout, ir.I32, recRout, 0x20},
	{ir.OpIsubBin, ir.I32, recRin, 0x20},

	{ir.OpIcmp, ir.I32, recRicmp, 0x02},
	{ir.OpIcmpImm, ir.I32, recRicmpImm, 0x02},

	{ir.OpIconst, ir.I8, recIimm, 0x00},
	{ir.OpIconst, ir.I16, recIimm, 0x00},
	{ir.OpIconst, ir.I32, recIimm, 0x00},

	{ir.OpCopy, ir.B1, recRmov, 0x00},
	{ir.OpCopy, ir.I8, recRmov, 0x00},
	{ir.OpCopy, ir.I16, recRmov, 0x00},
	{ir.OpCopy, ir.I32, recRmov, 0x00},
	{ir.OpCopy, ir.F32, recRmov, 0x01},
	{ir.OpCopy, ir.F64, recRmov, 0x01},

	{ir.OpBitcast, ir.F32, recRmov, 0x02},
	{ir.OpBitcast, ir.F64, recRmov, 0x02},
	{ir.OpBitcast, ir.I32, recRmov, 0x02},

	{ir.OpUextend, ir.I16, recRext, 0x00},
	{ir.OpUextend, ir.I32, recRext, 0x00},
	{ir.OpSextend, ir.I16, recRext, 0x01},
	{ir.OpSextend, ir.I32, recRext, 0x01},
	{ir.OpIreduce, ir.I8, recRext, 0x02},
	{ir.OpIreduce, ir.I16, recRext, 0x02},
	{ir.OpIreduce, ir.I32, recRext, 0x02},

	{ir.OpIsplit, ir.I64, recRpair, 0x00},
	{ir.OpIconcat, ir.I32, recRpair, 0x01},

	{ir.OpJump, ir.VOID, recJ, 0x00},
	{ir.OpBrz, ir.B1, recBcond, 0x00},
	{ir.OpBrz, ir.I8, recBcond, 0x00},
	{ir.OpBrz, ir.I16, recBcond, 0x00},
	{ir.OpBrz, ir.I32, recBcond, 0x00},
	{ir.OpBrnz, ir.B1, recBcond, 0x01},
	{ir.OpBrnz, ir.I8, recBcond, 0x01},
	{ir.OpBrnz, ir.I16, recBcond, 0x01},
	{ir.OpBrnz, ir.I32, recBcond, 0x01},

	{ir.OpLoad, ir.I8, recLd, 0x00},
	{ir.OpLoad, ir.I16, recLd, 0x01},
	{ir.OpLoad, ir.I32, recLd, 0x02},
	{ir.OpLoad, ir.F32, recFld, 0x02},
	{ir.OpLoad, ir.F64, recFld, 0x03},
	{ir.OpStore, ir.I8, recSt, 0x00},
	{ir.OpStore, ir.I16, recSt, 0x01},
	{ir.OpStore, ir.I32, recSt, 0x02},
	{ir.OpStore, ir.F32, recFst, 0x02},
	{ir.OpStore, ir.F64, recFst, 0x03},

	{ir.OpStackAddr, ptrTy, recSPrel, 0x00},
	{ir.OpGlobalAddr, ptrTy, recGVaddr, 0x00},

	{ir.OpIfcmpSp, ptrTy, recIfcmpSp, 0x00},
	{ir.OpTrap, ir.VOID, recTrap, 0x00},
	{ir.OpTrapif, ir.VOID, recTrapif, 0x00},
	{ir.OpReturn, ir.VOID, recRet, 0x00},

	{ir.OpCall, ir.VOID, recCall, 0x00},
	{ir.OpCallIndirect, ir.VOID, recCallInd, 0x00},
}

// Rows only legal on the 64-bit variant.
var rows64 = []encRow{
	{ir.OpIadd, ir.I64, recR, 0x00},
	{ir.OpIsub, ir.I64, recR, 0x20},
	{ir.OpImul, ir.I64, recR, 0x01},
	{ir.OpBand, ir.I64, recR, 0x07},
	{ir.OpBor, ir.I64, recR, 0x06},
	{ir.OpBxor, ir.I64, recR, 0x04},
	{ir.OpIaddImm, ir.I64, recRi, 0x00},
	{ir.OpIaddCout, ir.I64, recRout, 0x00},
	{ir.OpIaddCin, ir.I64, recRin, 0x00},
	{ir.OpIsubBout, ir.I64, recRout, 0x20},
	{ir.OpIsubBin, ir.I64, recRin, 0x20},
	{ir.OpIcmp, ir.I64, recRicmp, 0x02},
	{ir.OpIcmpImm, ir.I64, recRicmpImm, 0x02},
	{ir.OpIconst, ir.I64, recIimm, 0x00},
	{ir.OpCopy, ir.I64, recRmov, 0x00},
	{ir.OpBitcast, ir.I64, recRmov, 0x02},
	{ir.OpUextend, ir.I64, recRext, 0x00},
	{ir.OpSextend, ir.I64, recRext, 0x01},
	{ir.OpBrz, ir.I64, recBcond, 0x00},
	{ir.OpBrnz, ir.I64, recBcond, 0x01},
	{ir.OpLoad, ir.I64, recLd, 0x03},
	{ir.OpStore, ir.I64, recSt, 0x03},
}

// Rows gated on jump table support.
func jumpTableRows(ptr ir.Type) []encRow {
	return []encRow{
		{ir.OpJumpTableBase, ptr, recJTbase, 0x00},
		{ir.OpJumpTableEntry, ptr, recJTentry, 0x00},
		{ir.OpIndirectJumpTableBr, ptr, recJTbr, 0x00},
	}
}

type encKey struct {
	op ir.Opcode
	ty ir.Type
}

func buildEncMap(is64, jumpTables bool) map[encKey]ir.Encoding {
	ptr := ir.I32
	if is64 {
		ptr = ir.I64
	}
	m := make(map[encKey]ir.Encoding)
	add := func(rows []encRow) {
		for _, r := range rows {
			ty := r.ty
			if ty == ptrTy {
				ty = ptr
			}
			m[encKey{r.op, ty}] = ir.Encoding{Recipe: r.recipe, Bits: r.bits}
		}
	}
	add(commonRows)
	if is64 {
		add(rows64)
	}
	if jumpTables {
		add(jumpTableRows(ptr))
	}
	return m
}
