package reader

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"

	"anvil/internal/ir"
)

// The parser is a hand-written recursive descent over the lexer's token
// stream; the textual IR is line-oriented and does not need a grammar.
//
// Entity numbering follows the source text: ebbN in the text becomes EBB
// number N. Values are renumbered in definition order, so a function
// round-trips byte for byte when its values were created in program order.
// Uses must appear after definitions.

type parser struct {
	toks []lexer.Token
	i    int

	fn     *ir.Function
	cur    *ir.Cursor
	values map[string]ir.Value
}

// Parse parses every function in src.
func Parse(filename, src string) ([]*ir.Function, error) {
	toks, err := lexTokens(filename, src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}

	var fns []*ir.Function
	for !p.atEOF() {
		fn, err := p.parseFunction()
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	if len(fns) == 0 {
		return nil, errors.New("no functions in input")
	}
	return fns, nil
}

// ParseFunction parses a single function from src.
func ParseFunction(filename, src string) (*ir.Function, error) {
	fns, err := Parse(filename, src)
	if err != nil {
		return nil, err
	}
	if len(fns) != 1 {
		return nil, errors.Errorf("expected one function, found %d", len(fns))
	}
	return fns[0], nil
}

func lexTokens(filename, src string) ([]lexer.Token, error) {
	lx, err := irLexer.LexString(filename, src)
	if err != nil {
		return nil, err
	}
	wsKind := irLexer.Symbols()["Whitespace"]
	commentKind := irLexer.Symbols()["Comment"]

	var toks []lexer.Token
	for {
		tok, err := lx.Next()
		if err != nil {
			return nil, err
		}
		if tok.EOF() {
			return toks, nil
		}
		if tok.Type == wsKind || tok.Type == commentKind {
			continue
		}
		toks = append(toks, tok)
	}
}

func (p *parser) atEOF() bool { return p.i >= len(p.toks) }

func (p *parser) peek() lexer.Token {
	if p.atEOF() {
		return lexer.Token{Value: "<eof>"}
	}
	return p.toks[p.i]
}

func (p *parser) peekAt(off int) lexer.Token {
	if p.i+off >= len(p.toks) {
		return lexer.Token{Value: "<eof>"}
	}
	return p.toks[p.i+off]
}

func (p *parser) next() lexer.Token {
	tok := p.peek()
	p.i++
	return tok
}

func (p *parser) errAt(tok lexer.Token, format string, args ...any) error {
	return errors.Errorf("%s: %s", tok.Pos, errors.Errorf(format, args...))
}

func (p *parser) expect(value string) error {
	tok := p.next()
	if tok.Value != value {
		return p.errAt(tok, "expected %q, found %q", value, tok.Value)
	}
	return nil
}

func (p *parser) accept(value string) bool {
	if !p.atEOF() && p.peek().Value == value {
		p.i++
		return true
	}
	return false
}

func (p *parser) parseNumber() (int64, error) {
	tok := p.next()
	text := tok.Value
	neg := false
	switch {
	case strings.HasPrefix(text, "-"):
		neg = true
		text = text[1:]
	case strings.HasPrefix(text, "+"):
		text = text[1:]
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(text, "0x"), numberBase(text), 64)
	if err != nil {
		return 0, p.errAt(tok, "invalid number %q", tok.Value)
	}
	v := int64(n)
	if neg {
		v = -v
	}
	return v, nil
}

func numberBase(text string) int {
	if strings.HasPrefix(text, "0x") {
		return 16
	}
	return 10
}

// entityNumber parses the numeric suffix of an entity reference such as
// ebb4 or ss0.
func (p *parser) entityNumber(prefix string) (int, error) {
	tok := p.next()
	if !strings.HasPrefix(tok.Value, prefix) {
		return 0, p.errAt(tok, "expected %s reference, found %q", prefix, tok.Value)
	}
	n, err := strconv.Atoi(tok.Value[len(prefix):])
	if err != nil {
		return 0, p.errAt(tok, "invalid %s reference %q", prefix, tok.Value)
	}
	return n, nil
}

// ebbRef resolves an EBB by its source number, creating intervening EBBs
// so source numbering is preserved.
func (p *parser) ebbRef() (ir.Ebb, error) {
	n, err := p.entityNumber("ebb")
	if err != nil {
		return ir.NoEbb, err
	}
	for p.fn.Dfg.NumEbbs() <= n {
		p.fn.Dfg.MakeEbb()
	}
	return ir.Ebb(n), nil
}

func (p *parser) valueRef() (ir.Value, error) {
	tok := p.next()
	v, ok := p.values[tok.Value]
	if !ok {
		return ir.NoValue, p.errAt(tok, "use of undefined value %q", tok.Value)
	}
	return v, nil
}

func (p *parser) typeName() (ir.Type, error) {
	tok := p.next()
	ty, ok := ir.TypeFromName(tok.Value)
	if !ok {
		return ir.VOID, p.errAt(tok, "unknown type %q", tok.Value)
	}
	return ty, nil
}

func (p *parser) parseAbiParam() (ir.AbiParam, error) {
	ty, err := p.typeName()
	if err != nil {
		return ir.AbiParam{}, err
	}
	param := ir.AbiParam{Ty: ty}
	for {
		switch p.peek().Value {
		case "uext":
			param.Extension = ir.ExtUext
			p.i++
		case "sext":
			param.Extension = ir.ExtSext
			p.i++
		case "sret":
			param.Purpose = ir.PurposeStructReturn
			p.i++
		default:
			return param, nil
		}
	}
}

func (p *parser) parseSignature() (ir.Signature, error) {
	var sig ir.Signature
	if err := p.expect("("); err != nil {
		return sig, err
	}
	for !p.accept(")") {
		if len(sig.Params) > 0 {
			if err := p.expect(","); err != nil {
				return sig, err
			}
		}
		param, err := p.parseAbiParam()
		if err != nil {
			return sig, err
		}
		sig.Params = append(sig.Params, param)
	}
	if p.accept("->") {
		for {
			ret, err := p.parseAbiParam()
			if err != nil {
				return sig, err
			}
			sig.Returns = append(sig.Returns, ret)
			if !p.accept(",") {
				break
			}
		}
	}
	if cc, ok := ir.CallConvFromName(p.peek().Value); ok {
		sig.CallConv = cc
		p.i++
	}
	return sig, nil
}

func (p *parser) parseFunction() (*ir.Function, error) {
	if err := p.expect("function"); err != nil {
		return nil, err
	}
	if err := p.expect("%"); err != nil {
		return nil, err
	}
	name := p.next().Value

	sig, err := p.parseSignature()
	if err != nil {
		return nil, err
	}

	p.fn = ir.NewFunction(name, sig)
	p.cur = ir.NewCursor(p.fn)
	p.values = make(map[string]ir.Value)

	if err := p.expect("{"); err != nil {
		return nil, err
	}
	for !p.accept("}") {
		tok := p.peek()
		switch {
		case strings.HasPrefix(tok.Value, "ebb"):
			if err := p.parseEbb(); err != nil {
				return nil, err
			}
		default:
			if err := p.parsePreambleEntity(); err != nil {
				return nil, err
			}
		}
	}
	return p.fn, nil
}

func (p *parser) parsePreambleEntity() error {
	tok := p.peek()
	switch {
	case strings.HasPrefix(tok.Value, "ss"):
		if _, err := p.entityNumber("ss"); err != nil {
			return err
		}
		if err := p.expect("="); err != nil {
			return err
		}
		kindTok := p.next()
		var kind ir.StackSlotKind
		switch kindTok.Value {
		case "explicit_slot":
			kind = ir.SlotExplicit
		case "return_area":
			kind = ir.SlotReturnArea
		default:
			return p.errAt(kindTok, "unknown stack slot kind %q", kindTok.Value)
		}
		size, err := p.parseNumber()
		if err != nil {
			return err
		}
		p.fn.MakeStackSlot(ir.StackSlotData{Kind: kind, Size: uint32(size)})
		return nil

	case strings.HasPrefix(tok.Value, "gv"):
		if _, err := p.entityNumber("gv"); err != nil {
			return err
		}
		if err := p.expect("="); err != nil {
			return err
		}
		if err := p.expect("symbol"); err != nil {
			return err
		}
		if err := p.expect("%"); err != nil {
			return err
		}
		name := p.next().Value
		data := ir.GlobalValueData{Name: name}
		if next := p.peek().Value; strings.HasPrefix(next, "+") || strings.HasPrefix(next, "-") {
			offset, err := p.parseNumber()
			if err != nil {
				return err
			}
			data.Offset = int32(offset)
		}
		p.fn.MakeGlobalValue(data)
		return nil

	case strings.HasPrefix(tok.Value, "heap"):
		if _, err := p.entityNumber("heap"); err != nil {
			return err
		}
		if err := p.expect("="); err != nil {
			return err
		}
		styleTok := p.next()
		style := ir.HeapStatic
		if styleTok.Value == "dynamic" {
			style = ir.HeapDynamic
		} else if styleTok.Value != "static" {
			return p.errAt(styleTok, "unknown heap style %q", styleTok.Value)
		}
		base, err := p.entityNumber("gv")
		if err != nil {
			return err
		}
		if err := p.expect(","); err != nil {
			return err
		}
		if err := p.expect("min"); err != nil {
			return err
		}
		minSize, err := p.parseNumber()
		if err != nil {
			return err
		}
		p.fn.MakeHeap(ir.HeapData{Style: style, Base: ir.GlobalValue(base), MinSize: uint64(minSize)})
		return nil

	case strings.HasPrefix(tok.Value, "jt"):
		if _, err := p.entityNumber("jt"); err != nil {
			return err
		}
		if err := p.expect("="); err != nil {
			return err
		}
		if err := p.expect("jump_table"); err != nil {
			return err
		}
		var data ir.JumpTableData
		for {
			ebb, err := p.ebbRef()
			if err != nil {
				return err
			}
			data.Push(ebb)
			if !p.accept(",") {
				break
			}
		}
		p.fn.MakeJumpTable(data)
		return nil

	case strings.HasPrefix(tok.Value, "sig"):
		if _, err := p.entityNumber("sig"); err != nil {
			return err
		}
		if err := p.expect("="); err != nil {
			return err
		}
		sig, err := p.parseSignature()
		if err != nil {
			return err
		}
		p.fn.Dfg.MakeSignature(sig)
		return nil

	case strings.HasPrefix(tok.Value, "fn"):
		if _, err := p.entityNumber("fn"); err != nil {
			return err
		}
		if err := p.expect("="); err != nil {
			return err
		}
		if err := p.expect("%"); err != nil {
			return err
		}
		name := p.next().Value
		sigNum, err := p.entityNumber("sig")
		if err != nil {
			return err
		}
		p.fn.Dfg.MakeExtFunc(ir.ExtFuncData{Name: name, Sig: ir.SigRef(sigNum)})
		return nil
	}

	return p.errAt(tok, "unexpected %q in function preamble", tok.Value)
}

func (p *parser) parseEbb() error {
	ebb, err := p.ebbRef()
	if err != nil {
		return err
	}
	if p.accept("(") {
		for !p.accept(")") {
			if len(p.fn.Dfg.EbbParams(ebb)) > 0 {
				if err := p.expect(","); err != nil {
					return err
				}
			}
			nameTok := p.next()
			if err := p.expect(":"); err != nil {
				return err
			}
			ty, err := p.typeName()
			if err != nil {
				return err
			}
			p.values[nameTok.Value] = p.fn.Dfg.AppendEbbParam(ebb, ty)
		}
	}
	if err := p.expect(":"); err != nil {
		return err
	}

	p.fn.Layout.AppendEbb(ebb)
	p.cur.GotoBottom(ebb)

	for !p.atEOF() {
		tok := p.peek()
		if tok.Value == "}" {
			return nil
		}
		if strings.HasPrefix(tok.Value, "ebb") {
			// A new EBB header rather than an instruction operand.
			if n := p.peekAt(1).Value; n == ":" || n == "(" {
				return nil
			}
		}
		if err := p.parseInst(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseInst() error {
	var resultNames []string
	if tok := p.peek(); strings.HasPrefix(tok.Value, "v") {
		if n := p.peekAt(1).Value; n == "=" || n == "," {
			for {
				resultNames = append(resultNames, p.next().Value)
				if !p.accept(",") {
					break
				}
			}
			if err := p.expect("="); err != nil {
				return err
			}
		}
	}

	opTok := p.next()
	op, ok := ir.OpcodeFromName(opTok.Value)
	if !ok {
		return p.errAt(opTok, "unknown opcode %q", opTok.Value)
	}

	data := ir.InstructionData{Opcode: op}
	if p.accept(".") {
		ty, err := p.typeName()
		if err != nil {
			return err
		}
		data.Ty = ty
	}

	if err := p.parseOperands(&data); err != nil {
		return err
	}

	// Infer the controlling type from the first value operand when the
	// opcode carries no annotation, mirroring the typed constructors.
	if data.Ty == ir.VOID && len(data.Args) > 0 && controllingFromArgs(op) {
		data.Ty = p.fn.Dfg.ValueType(data.Args[0])
	}

	inst := p.cur.Ins().Build(data)
	results := p.fn.Dfg.InstResults(inst)
	if len(resultNames) != len(results) {
		return p.errAt(opTok, "%s defines %d results, %d named", op, len(results), len(resultNames))
	}
	for i, name := range resultNames {
		p.values[name] = results[i]
	}
	return nil
}

// controllingFromArgs reports whether the opcode's controlling type comes
// from its first value operand.
func controllingFromArgs(op ir.Opcode) bool {
	switch op {
	case ir.OpJump, ir.OpReturn, ir.OpTrap, ir.OpTrapif, ir.OpBrif,
		ir.OpCall, ir.OpCallIndirect:
		return false
	}
	return true
}

func (p *parser) parseValueList(data *ir.InstructionData, count int) error {
	for k := 0; k < count; k++ {
		if k > 0 {
			if err := p.expect(","); err != nil {
				return err
			}
		}
		v, err := p.valueRef()
		if err != nil {
			return err
		}
		data.Args = append(data.Args, v)
	}
	return nil
}

// parseDest parses a branch destination with optional arguments.
func (p *parser) parseDest(data *ir.InstructionData) error {
	dest, err := p.ebbRef()
	if err != nil {
		return err
	}
	data.Dest = dest
	if p.accept("(") {
		for !p.accept(")") {
			if p.peek().Value == "," {
				p.i++
			}
			v, err := p.valueRef()
			if err != nil {
				return err
			}
			data.Args = append(data.Args, v)
		}
	}
	return nil
}

func (p *parser) parseCond(data *ir.InstructionData) error {
	tok := p.next()
	cond, ok := ir.IntCCFromName(tok.Value)
	if !ok {
		return p.errAt(tok, "unknown condition code %q", tok.Value)
	}
	data.Cond = cond
	return nil
}

func (p *parser) parseTrapCode(data *ir.InstructionData) error {
	tok := p.next()
	text := tok.Value
	if text == "user" {
		if err := p.expect("("); err != nil {
			return err
		}
		n, err := p.parseNumber()
		if err != nil {
			return err
		}
		if err := p.expect(")"); err != nil {
			return err
		}
		data.Trap = ir.TrapUser(uint16(n))
		return nil
	}
	code, ok := ir.TrapCodeFromName(text)
	if !ok {
		return p.errAt(tok, "unknown trap code %q", text)
	}
	data.Trap = code
	return nil
}

// parseMemFlags consumes any flag words following a memory opcode.
func (p *parser) parseMemFlags(data *ir.InstructionData) {
	for {
		switch p.peek().Value {
		case "notrap":
			data.Flags |= ir.MemNotrap
			p.i++
		case "aligned":
			data.Flags |= ir.MemAligned
			p.i++
		default:
			return
		}
	}
}

// parseOffset consumes a trailing signed offset, if present.
func (p *parser) parseOffset(data *ir.InstructionData) error {
	if next := p.peek().Value; strings.HasPrefix(next, "+") || strings.HasPrefix(next, "-") {
		offset, err := p.parseNumber()
		if err != nil {
			return err
		}
		data.Offset = int32(offset)
	}
	return nil
}

func (p *parser) parseOperands(data *ir.InstructionData) error {
	switch data.Opcode.Format() {
	case ir.FormatUnary:
		return p.parseValueList(data, 1)

	case ir.FormatUnaryImm, ir.FormatUnaryIeee32, ir.FormatUnaryIeee64:
		imm, err := p.parseNumber()
		if err != nil {
			return err
		}
		data.Imm = imm
		if data.Opcode == ir.OpF32const {
			data.Ty = ir.F32
		}
		if data.Opcode == ir.OpF64const {
			data.Ty = ir.F64
		}
		return nil

	case ir.FormatUnaryGlobal:
		n, err := p.entityNumber("gv")
		if err != nil {
			return err
		}
		data.GV = ir.GlobalValue(n)
		return nil

	case ir.FormatBinary:
		return p.parseValueList(data, 2)

	case ir.FormatBinaryImm:
		if err := p.parseValueList(data, 1); err != nil {
			return err
		}
		if err := p.expect(","); err != nil {
			return err
		}
		imm, err := p.parseNumber()
		if err != nil {
			return err
		}
		data.Imm = imm
		return nil

	case ir.FormatTernary:
		return p.parseValueList(data, 3)

	case ir.FormatIntCompare:
		if err := p.parseCond(data); err != nil {
			return err
		}
		return p.parseValueList(data, 2)

	case ir.FormatIntCompareImm:
		if err := p.parseCond(data); err != nil {
			return err
		}
		if err := p.parseValueList(data, 1); err != nil {
			return err
		}
		if err := p.expect(","); err != nil {
			return err
		}
		imm, err := p.parseNumber()
		if err != nil {
			return err
		}
		data.Imm = imm
		return nil

	case ir.FormatJump:
		return p.parseDest(data)

	case ir.FormatBranch:
		if err := p.parseValueList(data, 1); err != nil {
			return err
		}
		if err := p.expect(","); err != nil {
			return err
		}
		return p.parseDest(data)

	case ir.FormatBranchInt:
		if err := p.parseCond(data); err != nil {
			return err
		}
		if err := p.parseValueList(data, 1); err != nil {
			return err
		}
		if err := p.expect(","); err != nil {
			return err
		}
		return p.parseDest(data)

	case ir.FormatBranchIcmp:
		if err := p.parseCond(data); err != nil {
			return err
		}
		if err := p.parseValueList(data, 2); err != nil {
			return err
		}
		if err := p.expect(","); err != nil {
			return err
		}
		return p.parseDest(data)

	case ir.FormatBranchTable:
		if err := p.parseValueList(data, 1); err != nil {
			return err
		}
		if err := p.expect(","); err != nil {
			return err
		}
		dest, err := p.ebbRef()
		if err != nil {
			return err
		}
		data.Dest = dest
		if err := p.expect(","); err != nil {
			return err
		}
		n, err := p.entityNumber("jt")
		if err != nil {
			return err
		}
		data.Table = ir.JumpTable(n)
		return nil

	case ir.FormatIndirectJump:
		if err := p.parseValueList(data, 1); err != nil {
			return err
		}
		if err := p.expect(","); err != nil {
			return err
		}
		n, err := p.entityNumber("jt")
		if err != nil {
			return err
		}
		data.Table = ir.JumpTable(n)
		return nil

	case ir.FormatTrap:
		return p.parseTrapCode(data)

	case ir.FormatCondTrap:
		if err := p.parseValueList(data, 1); err != nil {
			return err
		}
		if err := p.expect(","); err != nil {
			return err
		}
		return p.parseTrapCode(data)

	case ir.FormatIntCondTrap:
		if err := p.parseCond(data); err != nil {
			return err
		}
		if err := p.parseValueList(data, 1); err != nil {
			return err
		}
		if err := p.expect(","); err != nil {
			return err
		}
		return p.parseTrapCode(data)

	case ir.FormatMultiAry:
		for strings.HasPrefix(p.peek().Value, "v") {
			v, err := p.valueRef()
			if err != nil {
				return err
			}
			data.Args = append(data.Args, v)
			if !p.accept(",") {
				break
			}
		}
		return nil

	case ir.FormatCall:
		n, err := p.entityNumber("fn")
		if err != nil {
			return err
		}
		data.Func = ir.FuncRef(n)
		return p.parseCallArgs(data)

	case ir.FormatCallIndirect:
		n, err := p.entityNumber("sig")
		if err != nil {
			return err
		}
		data.Sig = ir.SigRef(n)
		if err := p.expect(","); err != nil {
			return err
		}
		if err := p.parseValueList(data, 1); err != nil {
			return err
		}
		return p.parseCallArgs(data)

	case ir.FormatLoad:
		p.parseMemFlags(data)
		if err := p.parseValueList(data, 1); err != nil {
			return err
		}
		return p.parseOffset(data)

	case ir.FormatStore:
		p.parseMemFlags(data)
		if err := p.parseValueList(data, 2); err != nil {
			return err
		}
		return p.parseOffset(data)

	case ir.FormatStackLoad:
		n, err := p.entityNumber("ss")
		if err != nil {
			return err
		}
		data.Slot = ir.StackSlot(n)
		return p.parseOffset(data)

	case ir.FormatStackStore:
		if err := p.parseValueList(data, 1); err != nil {
			return err
		}
		if err := p.expect(","); err != nil {
			return err
		}
		n, err := p.entityNumber("ss")
		if err != nil {
			return err
		}
		data.Slot = ir.StackSlot(n)
		return p.parseOffset(data)

	case ir.FormatBranchTableBase:
		n, err := p.entityNumber("jt")
		if err != nil {
			return err
		}
		data.Table = ir.JumpTable(n)
		return nil

	case ir.FormatBranchTableEntry:
		if err := p.parseValueList(data, 2); err != nil {
			return err
		}
		if err := p.expect(","); err != nil {
			return err
		}
		imm, err := p.parseNumber()
		if err != nil {
			return err
		}
		data.Imm = imm
		if err := p.expect(","); err != nil {
			return err
		}
		n, err := p.entityNumber("jt")
		if err != nil {
			return err
		}
		data.Table = ir.JumpTable(n)
		return nil
	}

	return errors.Errorf("unhandled instruction format for %s", data.Opcode)
}

func (p *parser) parseCallArgs(data *ir.InstructionData) error {
	if err := p.expect("("); err != nil {
		return err
	}
	first := true
	for !p.accept(")") {
		if !first {
			if err := p.expect(","); err != nil {
				return err
			}
		}
		first = false
		v, err := p.valueRef()
		if err != nil {
			return err
		}
		data.Args = append(data.Args, v)
	}
	return nil
}
