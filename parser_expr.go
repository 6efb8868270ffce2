package fluence

import "strconv"

// parser_expr.go: Pratt-style expression parsing and the distinctive
// operator-lowering machinery (spec §4.2). Precedence tiers, lowest to
// highest: assignment family -> logical-or -> logical-and ->
// equality/is/not -> collective comparisons -> range -> relational ->
// additive -> multiplicative -> exponent -> unary -> postfix ->
// primary.

// parseExprOrAssignment is the statement-level expression entry
// point. It parses exactly what parseExpr parses: the assignment-family
// operators (chain assign, collective compare, swap, compound assign)
// are recognized by parseAssignment in both positions. The lexed
// dot-family tokens (`.and(`, `.+=`, ...) are not parsed by either.
func (p *Parser) parseExprOrAssignment() (bool, error) {
	return p.parseAssignment()
}

func (p *Parser) parseExpr() (bool, error) {
	return p.parseAssignment()
}

// parseAssignment recognizes `name = expr`, `name += expr` (and the
// other compound-assign forms), `a >< b` (swap), `x!!` already handled
// as postfix, and falls through to the chain/guard/collective family,
// then plain binary expressions.
func (p *Parser) parseAssignment() (bool, error) {
	if p.is(TokIdent) {
		nt, err := p.peek(0)
		if err != nil {
			return false, err
		}
		switch nt.Kind {
		case TokAssign:
			return p.parseSimpleAssign()
		case TokPlusEq, TokMinusEq, TokStarEq, TokSlashEq, TokPercentEq, TokAmpEq:
			return p.parseCompoundAssign(nt.Kind)
		case TokSwap:
			return p.parseSwap()
		}
	}

	if isChainOrGuardOrCollectiveStart(p) {
		return p.parseChainLikeStatement()
	}

	return p.parseBinary(0)
}

func isChainOrGuardOrCollectiveStart(p *Parser) bool {
	// Look ahead for a comma-separated identifier list followed by one
	// of the chain/collective/guard operator tokens. We scan
	// lookahead tokens conservatively; on any non-ident/non-comma
	// token before the operator we bail out to ordinary expression
	// parsing.
	if !p.is(TokIdent) {
		return false
	}
	for k := 0; ; k++ {
		t, err := p.peek(k)
		if err != nil {
			return false
		}
		switch t.Kind {
		case TokComma:
			continue
		case TokIdent:
			continue
		case TokChainSeq, TokChainSeqOpt, TokChainAssignN, TokOptAssignN, TokUniqueChainN, TokOptUniqueN,
			TokCollEq, TokCollNeq, TokCollLt, TokCollLe, TokCollGt, TokCollGe, TokCollNil,
			TokCollOrEq, TokCollOrNeq, TokCollOrLt, TokCollOrLe, TokCollOrGt, TokCollOrGe, TokCollOrNil:
			return true
		default:
			return false
		}
	}
}

func (p *Parser) parseSimpleAssign() (bool, error) {
	nameTok := p.cur
	if err := p.advance(); err != nil {
		return false, err
	}
	if err := p.advance(); err != nil { // '='
		return false, err
	}
	if _, err := p.parseExpr(); err != nil {
		return false, err
	}
	p.emitStore(nameTok.Text)
	return true, nil
}

func (p *Parser) parseCompoundAssign(op TokenKind) (bool, error) {
	nameTok := p.cur
	if err := p.advance(); err != nil {
		return false, err
	}
	if err := p.advance(); err != nil { // op token
		return false, err
	}
	p.emitLoad(nameTok.Text)
	if _, err := p.parseExpr(); err != nil {
		return false, err
	}
	switch op {
	case TokPlusEq:
		p.emit(OpAdd, nil, nil, nil, nil)
	case TokMinusEq:
		p.emit(OpSub, nil, nil, nil, nil)
	case TokStarEq:
		p.emit(OpMul, nil, nil, nil, nil)
	case TokSlashEq:
		p.emit(OpDiv, nil, nil, nil, nil)
	case TokPercentEq:
		p.emit(OpMod, nil, nil, nil, nil)
	case TokAmpEq:
		p.emit(OpBitAnd, nil, nil, nil, nil)
	}
	p.emitStore(nameTok.Text)
	return true, nil
}

// parseSwap lowers `a >< b` to LOAD a; LOAD b; STORE a; STORE b.
func (p *Parser) parseSwap() (bool, error) {
	aTok := p.cur
	if err := p.advance(); err != nil {
		return false, err
	}
	if err := p.advance(); err != nil { // ><
		return false, err
	}
	bTok, err := p.expect(TokIdent, "identifier")
	if err != nil {
		return false, err
	}
	p.emitLoad(aTok.Text)
	p.emitLoad(bTok.Text)
	p.emitStore(aTok.Text)
	p.emitStore(bTok.Text)
	return true, nil
}

// resolveNonGlobal walks the scope chain starting at p.scope but stops
// before reaching p.global: a name found this way lives in the current
// call frame's locals, while a name only found in (or declared fresh
// into) the global scope lives in the VM's global slot table. This
// split keeps function frames from assuming they can see top-level
// locals they were never passed (spec §4.5 scoping).
func (p *Parser) resolveNonGlobal(name string) (Symbol, bool) {
	for s := p.scope; s != nil && s != p.global; s = s.Parent {
		if sym, ok := s.Symbols[name]; ok {
			return sym, true
		}
		for _, ns := range s.Namespaces {
			if sym, ok := ns.TryResolveLocal(name); ok {
				return sym, true
			}
		}
	}
	return nil, false
}

func (p *Parser) emitLoad(name string) {
	if _, ok := p.resolveNonGlobal(name); ok {
		p.emit(OpLoadLocal, name, nil, nil, nil)
		return
	}
	p.emit(OpLoadGlobal, name, nil, nil, nil)
}

func (p *Parser) emitStore(name string) {
	if _, ok := p.resolveNonGlobal(name); ok {
		p.emit(OpStoreLocal, name, nil, nil, nil)
		return
	}
	if p.scope == p.global {
		p.scope.Declare(name, &VariableSymbol{Name: name})
		p.emit(OpStoreGlobal, name, nil, nil, nil)
		return
	}
	if sym, ok := p.global.TryResolveLocal(name); ok && name[0] != '$' {
		if _, isVar := sym.(*VariableSymbol); isVar {
			p.emit(OpStoreGlobal, name, nil, nil, nil)
			return
		}
	}
	p.scope.Declare(name, &VariableSymbol{Name: name})
	p.emit(OpStoreLocal, name, nil, nil, nil)
}

// parseChainLikeStatement parses a comma-separated identifier list
// followed by a chain-assign, collective-comparison, or guard-chain
// operator and lowers it per spec §4.2.
func (p *Parser) parseChainLikeStatement() (bool, error) {
	var names []string
	for {
		nt, err := p.expect(TokIdent, "identifier")
		if err != nil {
			return false, err
		}
		names = append(names, nt.Text)
		if !p.is(TokComma) {
			break
		}
		if err := p.advance(); err != nil {
			return false, err
		}
	}

	op := p.cur
	switch op.Kind {
	case TokChainSeq, TokChainSeqOpt:
		return p.lowerChainSeq(names, op.Kind == TokChainSeqOpt)
	case TokChainAssignN, TokOptAssignN, TokUniqueChainN, TokOptUniqueN:
		return p.lowerChainAssignN(names, op)
	case TokCollEq, TokCollNeq, TokCollLt, TokCollLe, TokCollGt, TokCollGe, TokCollNil:
		return p.lowerCollective(names, op.Kind, false)
	case TokCollOrEq, TokCollOrNeq, TokCollOrLt, TokCollOrLe, TokCollOrGt, TokCollOrGe, TokCollOrNil:
		return p.lowerCollective(names, op.Kind, true)
	}
	return false, p.errUnexpected("chain/collective operator")
}

// lowerChainSeq handles `a1, ..., aN <~| e1, ..., eN` (sequential
// per-name assignment) and its `<~?|` nil-skipping variant.
func (p *Parser) lowerChainSeq(names []string, optional bool) (bool, error) {
	if err := p.advance(); err != nil { // <~| or <~?|
		return false, err
	}
	for i, name := range names {
		if i > 0 {
			if _, err := p.expect(TokComma, ","); err != nil {
				return false, err
			}
		}
		if _, err := p.parseBinary(0); err != nil {
			return false, err
		}
		if optional {
			skip := p.em.NewLabel()
			p.emit(OpJumpIfNil, skip, nil, nil, nil)
			p.emitStore(name)
			p.em.MarkLabel(skip)
		} else {
			p.emitStore(name)
		}
	}
	return true, nil
}

// lowerChainAssignN handles `<N|`, `<|` (all-remaining), `<N?|`
// (nil-gated), `<N!|` (re-evaluate RHS once per target), and
// `<N!?|`/`<N?!|`. Each RHS chunk consumes N (or all remaining) LHS
// names and assigns the same value.
func (p *Parser) lowerChainAssignN(names []string, op Token) (bool, error) {
	if err := p.advance(); err != nil {
		return false, err
	}
	n := op.N
	if n == 0 {
		n = len(names)
	}
	reevaluate := op.Kind == TokUniqueChainN || op.Kind == TokOptUniqueN
	gated := op.Kind == TokOptAssignN || op.Kind == TokOptUniqueN

	idx := 0
	first := true
	for idx < len(names) {
		if !first {
			if _, err := p.expect(TokComma, ","); err != nil {
				return false, err
			}
		}
		first = false
		chunk := names[idx:chainChunkEnd(idx, n, len(names))]
		if reevaluate {
			for _, name := range chunk {
				if _, err := p.parseBinary(0); err != nil {
					return false, err
				}
				p.assignMaybeGated(name, gated)
			}
		} else {
			if _, err := p.parseBinary(0); err != nil {
				return false, err
			}
			p.emitStore("$chaintmp")
			for _, name := range chunk {
				p.emitLoad("$chaintmp")
				p.assignMaybeGated(name, gated)
			}
		}
		idx += n
	}
	return true, nil
}

func (p *Parser) assignMaybeGated(name string, gated bool) {
	if !gated {
		p.emitStore(name)
		return
	}
	skip := p.em.NewLabel()
	p.emit(OpJumpIfNil, skip, nil, nil, nil)
	p.emitStore(name)
	p.em.MarkLabel(skip)
}

func chainChunkEnd(idx, n, total int) int {
	end := idx + n
	if end > total {
		return total
	}
	return end
}

// lowerCollective handles `v1, ..., vN <OP| value` (conjunction) and
// `<||OP|` (disjunction), short-circuiting.
func (p *Parser) lowerCollective(names []string, op TokenKind, disjunction bool) (bool, error) {
	if err := p.advance(); err != nil {
		return false, err
	}
	if _, err := p.parseBinary(0); err != nil { // RHS value, shared across comparisons
		return false, err
	}
	p.emitStore("$collrhs")

	shortCircuit := p.em.NewLabel()
	for i, name := range names {
		p.emitLoad(name)
		p.emitLoad("$collrhs")
		p.emit(collectiveCmpOpcode(op), nil, nil, nil, nil)
		if i < len(names)-1 {
			if disjunction {
				p.emit(OpJumpIfTrue, shortCircuit, nil, nil, nil)
			} else {
				p.emit(OpJumpIfFalse, shortCircuit, nil, nil, nil)
			}
		}
	}
	endLabel := p.em.NewLabel()
	p.emit(OpJump, endLabel, nil, nil, nil)
	p.em.MarkLabel(shortCircuit)
	if disjunction {
		p.emit(OpLoadConst, True, nil, nil, nil)
	} else {
		p.emit(OpLoadConst, False, nil, nil, nil)
	}
	p.em.MarkLabel(endLabel)
	return true, nil
}

func collectiveCmpOpcode(op TokenKind) Opcode {
	switch op {
	case TokCollEq, TokCollOrEq:
		return OpEq
	case TokCollNeq, TokCollOrNeq:
		return OpNeq
	case TokCollLt, TokCollOrLt:
		return OpLt
	case TokCollLe, TokCollOrLe:
		return OpLe
	case TokCollGt, TokCollOrGt:
		return OpGt
	case TokCollGe, TokCollOrGe:
		return OpGe
	default: // TokCollNil / TokCollOrNil
		return OpEq
	}
}

// --- binary expressions (Pratt / precedence-climbing) ------------------

type binOp struct {
	prec  int
	right bool
}

var binOpTable = map[TokenKind]binOp{
	TokOrOr:        {1, false},
	TokAndAnd:      {2, false},
	TokEqEq:        {3, false},
	TokNotEq:       {3, false},
	TokIs:          {3, false},
	TokDotDot:      {5, false},
	TokLess:        {6, false},
	TokLessEq:      {6, false},
	TokGreater:     {6, false},
	TokGreaterEq:   {6, false},
	TokPlus:        {7, false},
	TokMinus:       {7, false},
	TokStar:        {8, false},
	TokSlash:       {8, false},
	TokPercent:     {8, false},
	TokStarStar:    {9, true},
}

func (p *Parser) parseBinary(minPrec int) (bool, error) {
	if _, err := p.parseUnary(); err != nil {
		return false, err
	}
	for {
		if isPipeFamily(p.cur.Kind) {
			if err := p.lowerPipe(p.cur.Kind); err != nil {
				return false, err
			}
			continue
		}
		info, ok := binOpTable[p.cur.Kind]
		if !ok || info.prec < minPrec {
			return true, nil
		}
		op := p.cur.Kind
		if err := p.advance(); err != nil {
			return false, err
		}
		nextMin := info.prec + 1
		if info.right {
			nextMin = info.prec
		}
		if _, err := p.parseBinary(nextMin); err != nil {
			return false, err
		}
		p.emitBinaryOp(op)
	}
}

func isPipeFamily(k TokenKind) bool {
	switch k {
	case TokPipe, TokOptPipe, TokGuardPipe, TokMapPipe, TokReducePipe, TokScanPipe, TokTilde:
		return true
	}
	return false
}

func (p *Parser) emitBinaryOp(op TokenKind) {
	switch op {
	case TokOrOr:
		p.emit(OpOr, nil, nil, nil, nil)
	case TokAndAnd:
		p.emit(OpAnd, nil, nil, nil, nil)
	case TokEqEq, TokIs:
		p.emit(OpEq, nil, nil, nil, nil)
	case TokNotEq:
		p.emit(OpNeq, nil, nil, nil, nil)
	case TokDotDot:
		p.emit(OpNewRange, nil, nil, nil, nil)
	case TokLess:
		p.emit(OpLt, nil, nil, nil, nil)
	case TokLessEq:
		p.emit(OpLe, nil, nil, nil, nil)
	case TokGreater:
		p.emit(OpGt, nil, nil, nil, nil)
	case TokGreaterEq:
		p.emit(OpGe, nil, nil, nil, nil)
	case TokPlus:
		p.emit(OpAdd, nil, nil, nil, nil)
	case TokMinus:
		p.emit(OpSub, nil, nil, nil, nil)
	case TokStar:
		p.emit(OpMul, nil, nil, nil, nil)
	case TokSlash:
		p.emit(OpDiv, nil, nil, nil, nil)
	case TokPercent:
		p.emit(OpMod, nil, nil, nil, nil)
	case TokStarStar:
		p.emit(OpPow, nil, nil, nil, nil)
	}
}

// lowerPipe handles the `|>`, `|?`, `|??`, `|>>`, `|>>=`, `|~>`, and
// `~>` family. The value already on the operand stack is the pipe's
// source; the RHS is parsed as a call-shaped expression whose implicit
// `_` placeholder receives that value (spec §4.2).
func (p *Parser) lowerPipe(kind TokenKind) error {
	if err := p.advance(); err != nil {
		return err
	}
	switch kind {
	case TokPipe, TokTilde:
		return p.lowerPlainPipe()
	case TokOptPipe:
		return p.lowerGuardedPipe(OpJumpIfNil)
	case TokGuardPipe:
		return p.lowerGuardedPipe(OpJumpIfFalse)
	case TokMapPipe:
		return p.lowerMapPipe()
	case TokReducePipe, TokScanPipe:
		return p.lowerReducePipe()
	}
	return nil
}

func (p *Parser) lowerPlainPipe() error {
	p.emitStore("$pipeval")
	p.scope.Declare("_", &VariableSymbol{Name: "_"})
	p.emitLoad("$pipeval")
	p.emitStore("_")
	_, err := p.parseUnary()
	return err
}

func (p *Parser) lowerGuardedPipe(branchOp Opcode) error {
	skip := p.em.NewLabel()
	p.emitStore("$pipeval")
	p.emitLoad("$pipeval")
	p.emit(branchOp, skip, nil, nil, nil)
	p.emitLoad("$pipeval")
	p.scope.Declare("_", &VariableSymbol{Name: "_"})
	p.emitStore("_")
	if _, err := p.parseUnary(); err != nil {
		return err
	}
	p.em.MarkLabel(skip)
	return nil
}

// lowerMapPipe expands `source |>> expr_in_underscore` to: iterate
// source, evaluate expr with `_` bound to each element, append to a
// fresh list.
func (p *Parser) lowerMapPipe() error {
	p.emitStore("$mapsrc")
	p.emit(OpNewList, nil, nil, nil, nil)
	p.emitStore("$mapresult")
	p.emitLoad("$mapsrc")
	p.emit(OpNewIterator, "$mapiter", nil, nil, nil)
	p.scope.Declare("_", &VariableSymbol{Name: "_"})

	headerLabel := p.em.NewLabel()
	endLabel := p.em.NewLabel()
	p.em.MarkLabel(headerLabel)
	p.emit(OpIteratorNext, "$mapiter", "_", endLabel, nil)

	if _, err := p.parseUnary(); err != nil {
		return err
	}
	p.emit(OpListPush, "$mapresult", nil, nil, nil)
	p.emit(OpJump, headerLabel, nil, nil, nil)
	p.em.MarkLabel(endLabel)
	p.emitLoad("$mapresult")
	return nil
}

// lowerReducePipe expands `source |>>= (init, (acc, el) => body)` into
// an accumulator seeded with init, then folded over source.
func (p *Parser) lowerReducePipe() error {
	p.emitStore("$reducesrc")
	if _, err := p.expect(TokLParen, "("); err != nil {
		return err
	}
	if _, err := p.parseExpr(); err != nil { // init
		return err
	}
	p.emitStore("$acc")
	if _, err := p.expect(TokComma, ","); err != nil {
		return err
	}

	// (acc, el) => body — bind both parameter names directly into the
	// enclosing scope for the duration of the fold, since the fold
	// body executes inline rather than as a separate call frame.
	if _, err := p.expect(TokLParen, "("); err != nil {
		return err
	}
	accTok, err := p.expect(TokIdent, "accumulator parameter")
	if err != nil {
		return err
	}
	if _, err := p.expect(TokComma, ","); err != nil {
		return err
	}
	elTok, err := p.expect(TokIdent, "element parameter")
	if err != nil {
		return err
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return err
	}
	if _, err := p.expect(TokFatArrow, "=>"); err != nil {
		return err
	}

	p.scope.Declare(accTok.Text, &VariableSymbol{Name: accTok.Text})
	p.scope.Declare(elTok.Text, &VariableSymbol{Name: elTok.Text})

	p.emitLoad("$reducesrc")
	p.emit(OpNewIterator, "$reduceiter", nil, nil, nil)
	headerLabel := p.em.NewLabel()
	endLabel := p.em.NewLabel()
	p.em.MarkLabel(headerLabel)
	p.emit(OpIteratorNext, "$reduceiter", elTok.Text, endLabel, nil)
	p.emitLoad("$acc")
	p.emitStore(accTok.Text)

	var bodyErr error
	if p.is(TokLBrace) {
		bodyErr = p.parseBlock()
	} else {
		_, bodyErr = p.parseExpr()
	}
	if bodyErr != nil {
		return bodyErr
	}
	p.emitStore("$acc")
	p.emit(OpJump, headerLabel, nil, nil, nil)
	p.em.MarkLabel(endLabel)
	p.emitLoad("$acc")

	if _, err := p.expect(TokRParen, ")"); err != nil {
		return err
	}
	return nil
}

// --- unary / postfix / primary ------------------------------------------

func (p *Parser) parseUnary() (bool, error) {
	switch p.cur.Kind {
	case TokMinus:
		p.advance()
		if _, err := p.parseUnary(); err != nil {
			return false, err
		}
		p.emit(OpNeg, nil, nil, nil, nil)
		return true, nil
	case TokBang, TokNot:
		p.advance()
		if _, err := p.parseUnary(); err != nil {
			return false, err
		}
		p.emit(OpNot, nil, nil, nil, nil)
		return true, nil
	case TokBitNot:
		p.advance()
		if _, err := p.parseUnary(); err != nil {
			return false, err
		}
		p.emit(OpBitNot, nil, nil, nil, nil)
		return true, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (bool, error) {
	if _, err := p.parsePrimary(); err != nil {
		return false, err
	}
	for {
		switch p.cur.Kind {
		case TokDot:
			if err := p.advance(); err != nil {
				return false, err
			}
			nameTok, err := p.expect(TokIdent, "field or method name")
			if err != nil {
				return false, err
			}
			if p.is(TokLParen) {
				argc, err := p.parseArgList()
				if err != nil {
					return false, err
				}
				p.emit(OpCallMethod, nameTok.Text, argc, nil, nil)
			} else {
				p.emit(OpLoadField, nameTok.Text, nil, nil, nil)
			}
		case TokLBracket:
			if err := p.advance(); err != nil {
				return false, err
			}
			if _, err := p.parseExpr(); err != nil {
				return false, err
			}
			if _, err := p.expect(TokRBracket, "]"); err != nil {
				return false, err
			}
			p.emit(OpLoadIndex, nil, nil, nil, nil)
		case TokBangBang:
			if err := p.advance(); err != nil {
				return false, err
			}
			p.emit(OpNot, nil, nil, nil, nil)
		case TokQuestion:
			return p.parseTernaryTail()
		case TokElvis:
			return p.parseElvisTail()
		default:
			return true, nil
		}
	}
}

func (p *Parser) parseTernaryTail() (bool, error) {
	if err := p.advance(); err != nil { // ?
		return false, err
	}
	elseLabel := p.em.NewLabel()
	p.emit(OpJumpIfFalse, elseLabel, nil, nil, nil)
	if _, err := p.parseExpr(); err != nil {
		return false, err
	}
	endLabel := p.em.NewLabel()
	p.emit(OpJump, endLabel, nil, nil, nil)
	p.em.MarkLabel(elseLabel)
	if _, err := p.expect(TokColon, ":"); err != nil {
		return false, err
	}
	if _, err := p.parseExpr(); err != nil {
		return false, err
	}
	p.em.MarkLabel(endLabel)
	return true, nil
}

// parseElvisTail handles `c ?: t, e`.
func (p *Parser) parseElvisTail() (bool, error) {
	if err := p.advance(); err != nil { // ?:
		return false, err
	}
	elseLabel := p.em.NewLabel()
	p.emit(OpJumpIfFalse, elseLabel, nil, nil, nil)
	if _, err := p.parseExpr(); err != nil {
		return false, err
	}
	endLabel := p.em.NewLabel()
	p.emit(OpJump, endLabel, nil, nil, nil)
	p.em.MarkLabel(elseLabel)
	if _, err := p.expect(TokComma, ","); err != nil {
		return false, err
	}
	if _, err := p.parseExpr(); err != nil {
		return false, err
	}
	p.em.MarkLabel(endLabel)
	return true, nil
}

func (p *Parser) parseArgList() (int, error) {
	if _, err := p.expect(TokLParen, "("); err != nil {
		return 0, err
	}
	n := 0
	for !p.is(TokRParen) {
		if _, err := p.parseExpr(); err != nil {
			return 0, err
		}
		n++
		if p.is(TokComma) {
			if err := p.advance(); err != nil {
				return 0, err
			}
		}
	}
	_, err := p.expect(TokRParen, ")")
	return n, err
}

func (p *Parser) parsePrimary() (bool, error) {
	switch p.cur.Kind {
	case TokIntLit, TokLongLit, TokFloatLit, TokDoubleLit, TokCharLit:
		v := p.cur.Literal
		p.advance()
		p.emit(OpLoadConst, v, nil, nil, nil)
		return true, nil
	case TokStringLit:
		v := p.cur.Literal
		p.advance()
		p.emit(OpLoadConst, v, nil, nil, nil)
		return true, nil
	case TokFStringLit:
		return p.parseFString()
	case TokTrue:
		p.advance()
		p.emit(OpLoadConst, True, nil, nil, nil)
		return true, nil
	case TokFalse:
		p.advance()
		p.emit(OpLoadConst, False, nil, nil, nil)
		return true, nil
	case TokNil:
		p.advance()
		p.emit(OpLoadConst, Nil, nil, nil, nil)
		return true, nil
	case TokSelf:
		p.advance()
		p.emit(OpLoadLocal, "self", nil, nil, nil)
		return true, nil
	case TokLParen:
		return p.parseParenOrLambda()
	case TokLBracket:
		return p.parseListLiteral()
	case TokMatch:
		return p.parseMatch(true)
	case TokIdent:
		return p.parseIdentPrimary()
	}
	return false, p.errUnexpected("expression")
}

// parseFString lowers an f-string's raw body into a chain of
// to_string(expr)+literal concatenations, re-lexing each `{...}` span
// with a nested Lexer/Parser over just that substring (spec §9
// F-strings design note).
func (p *Parser) parseFString() (bool, error) {
	raw := p.cur.Literal.Obj.(*StringObj).Value
	if err := p.advance(); err != nil {
		return false, err
	}

	first := true
	emitConcat := func() {
		if !first {
			p.emit(OpAdd, nil, nil, nil, nil)
		}
		first = false
	}

	i := 0
	for i < len(raw) {
		j := i
		for j < len(raw) && raw[j] != '{' {
			j++
		}
		if j > i {
			p.emit(OpLoadConst, NewString(raw[i:j]), nil, nil, nil)
			emitConcat()
		}
		if j >= len(raw) {
			break
		}
		k := j + 1
		depth := 1
		for k < len(raw) && depth > 0 {
			if raw[k] == '{' {
				depth++
			}
			if raw[k] == '}' {
				depth--
			}
			k++
		}
		exprSrc := raw[j+1 : k-1]
		sub := NewLexer(p.fileIndex, exprSrc)
		savedLex := p.lex
		savedCur := p.cur
		p.lex = sub
		if err := p.advance(); err != nil {
			return false, err
		}
		if _, err := p.parseExpr(); err != nil {
			return false, err
		}
		p.lex = savedLex
		p.cur = savedCur
		p.emit(OpCallIntrinsic, "to_string", 1, nil, nil)
		emitConcat()
		i = k
	}
	if first {
		p.emit(OpLoadConst, NewString(""), nil, nil, nil)
	}
	return true, nil
}

// parseParenOrLambda disambiguates `(a, b) => expr` from a parenthesized
// expression by scanning ahead for a matching `)` followed by `=>`.
func (p *Parser) parseParenOrLambda() (bool, error) {
	if p.looksLikeLambdaParams() {
		return p.parseLambda()
	}
	if err := p.advance(); err != nil {
		return false, err
	}
	if _, err := p.parseExpr(); err != nil {
		return false, err
	}
	_, err := p.expect(TokRParen, ")")
	return true, err
}

func (p *Parser) looksLikeLambdaParams() bool {
	depth := 1 // p.cur is the opening '('; peek(0) is the token after it
	for k := 0; ; k++ {
		t, err := p.peek(k)
		if err != nil {
			return false
		}
		switch t.Kind {
		case TokLParen:
			depth++
		case TokRParen:
			depth--
			if depth == 0 {
				nt, err := p.peek(k + 1)
				if err != nil {
					return false
				}
				return nt.Kind == TokFatArrow
			}
		case TokEOF:
			return false
		}
	}
}

func (p *Parser) parseLambda() (bool, error) {
	if _, err := p.expect(TokLParen, "("); err != nil {
		return false, err
	}
	var params []string
	for !p.is(TokRParen) {
		nt, err := p.expect(TokIdent, "parameter name")
		if err != nil {
			return false, err
		}
		params = append(params, nt.Text)
		if p.is(TokComma) {
			if err := p.advance(); err != nil {
				return false, err
			}
		}
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return false, err
	}
	if _, err := p.expect(TokFatArrow, "=>"); err != nil {
		return false, err
	}

	name := "$lambda" + strconv.Itoa(p.em.Len())
	mangled := MangleName(name, len(params))
	fnSym := &FunctionSymbol{MangledName: mangled, BaseName: name, Arity: len(params), ParamNames: params, DefiningScope: p.scope}
	p.global.Declare(mangled, fnSym)
	fnObj := &FunctionObj{MangledName: mangled, BaseName: name, Arity: len(params), ParamNames: params, IsLambda: true}
	p.prog.Functions[mangled] = fnObj

	if err := p.compileFuncBodyInline(mangled, fnSym); err != nil {
		return false, err
	}
	p.emit(OpLoadConst, NewString(mangled), nil, nil, nil)
	return true, nil
}

func (p *Parser) parseListLiteral() (bool, error) {
	if err := p.advance(); err != nil { // [
		return false, err
	}
	// [a..b] range-as-list literal sugar vs. plain element list.
	p.emit(OpNewList, nil, nil, nil, nil)
	p.emitStore("$listlit")
	for !p.is(TokRBracket) {
		if _, err := p.parseExpr(); err != nil {
			return false, err
		}
		p.emit(OpListPush, "$listlit", nil, nil, nil)
		if p.is(TokComma) {
			if err := p.advance(); err != nil {
				return false, err
			}
		}
	}
	if _, err := p.expect(TokRBracket, "]"); err != nil {
		return false, err
	}
	p.emitLoad("$listlit")
	return true, nil
}

func (p *Parser) parseIdentPrimary() (bool, error) {
	nameTok := p.cur
	if err := p.advance(); err != nil {
		return false, err
	}

	if p.is(TokLParen) {
		argc, err := p.parseArgList()
		if err != nil {
			return false, err
		}
		p.emit(OpCall, nameTok.Text, argc, nil, nil)
		return true, nil
	}

	if p.is(TokLBrace) && p.identNamesStruct(nameTok.Text) {
		return p.parseStructInit(nameTok.Text)
	}

	p.emitLoad(nameTok.Text)
	return true, nil
}

func (p *Parser) identNamesStruct(name string) bool {
	sym, ok := p.scope.Resolve(name)
	if !ok {
		return false
	}
	_, isStruct := sym.(*StructSymbol)
	return isStruct
}

func (p *Parser) parseStructInit(name string) (bool, error) {
	if err := p.advance(); err != nil { // {
		return false, err
	}
	p.emit(OpNewInstance, name, nil, nil, nil)
	p.emitStore("$structinit")
	for !p.is(TokRBrace) {
		fieldTok, err := p.expect(TokIdent, "field name")
		if err != nil {
			return false, err
		}
		if _, err := p.expect(TokColon, ":"); err != nil {
			return false, err
		}
		if _, err := p.parseExpr(); err != nil {
			return false, err
		}
		p.emit(OpStoreField, "$structinit", fieldTok.Text, nil, nil)
		if p.is(TokComma) {
			if err := p.advance(); err != nil {
				return false, err
			}
		}
	}
	if _, err := p.expect(TokRBrace, "}"); err != nil {
		return false, err
	}
	p.emitLoad("$structinit")
	return true, nil
}
