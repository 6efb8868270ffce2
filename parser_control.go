package fluence

// parser_control.go: control-flow statement emission (spec §4.2). Each
// construct lowers to conditional/unconditional branches over labels
// resolved by Emitter.Link; break/continue push onto the innermost
// loopContext's patch lists (grounded on the teacher's NewILabel/
// ICommit-style forward-branch idiom in grammar_compiler.go).

func (p *Parser) parseIf() error {
	if err := p.advance(); err != nil {
		return err
	}
	return p.parseIfTail()
}

func (p *Parser) parseIfTail() error {
	if _, err := p.parseExpr(); err != nil {
		return err
	}
	elseLabel := p.em.NewLabel()
	p.emit(OpJumpIfFalse, elseLabel, nil, nil, nil)
	if err := p.parseBlock(); err != nil {
		return err
	}
	endLabel := p.em.NewLabel()
	p.emit(OpJump, endLabel, nil, nil, nil)
	p.em.MarkLabel(elseLabel)

	if p.is(TokElse) {
		if err := p.advance(); err != nil {
			return err
		}
		if p.is(TokIf) {
			if err := p.advance(); err != nil {
				return err
			}
			if err := p.parseIfTail(); err != nil {
				return err
			}
		} else if err := p.parseBlock(); err != nil {
			return err
		}
	}
	p.em.MarkLabel(endLabel)
	return nil
}

func (p *Parser) parseUnless() error {
	if err := p.advance(); err != nil {
		return err
	}
	if _, err := p.parseExpr(); err != nil {
		return err
	}
	endLabel := p.em.NewLabel()
	p.emit(OpJumpIfTrue, endLabel, nil, nil, nil)
	if err := p.parseBlock(); err != nil {
		return err
	}
	p.em.MarkLabel(endLabel)
	return nil
}

func (p *Parser) pushLoop() *loopContext {
	lc := &loopContext{continueTarget: p.em.NewLabel()}
	p.loops = append(p.loops, lc)
	return lc
}

func (p *Parser) popLoop() *loopContext {
	lc := p.loops[len(p.loops)-1]
	p.loops = p.loops[:len(p.loops)-1]
	return lc
}

func (p *Parser) parseWhile() error {
	if err := p.advance(); err != nil {
		return err
	}
	lc := p.pushLoop()
	headerLabel := p.em.NewLabel()
	p.em.MarkLabel(headerLabel)
	p.em.MarkLabel(lc.continueTarget)
	if _, err := p.parseExpr(); err != nil {
		return err
	}
	endLabel := p.em.NewLabel()
	p.emit(OpJumpIfFalse, endLabel, nil, nil, nil)
	if err := p.parseBlock(); err != nil {
		return err
	}
	p.emit(OpJump, headerLabel, nil, nil, nil)
	p.em.MarkLabel(endLabel)
	for _, b := range p.popLoop().breaks {
		p.em.MarkLabel(b)
	}
	return nil
}

func (p *Parser) parseUntil() error {
	if err := p.advance(); err != nil {
		return err
	}
	lc := p.pushLoop()
	headerLabel := p.em.NewLabel()
	p.em.MarkLabel(headerLabel)
	p.em.MarkLabel(lc.continueTarget)
	if _, err := p.parseExpr(); err != nil {
		return err
	}
	endLabel := p.em.NewLabel()
	p.emit(OpJumpIfTrue, endLabel, nil, nil, nil)
	if err := p.parseBlock(); err != nil {
		return err
	}
	p.emit(OpJump, headerLabel, nil, nil, nil)
	p.em.MarkLabel(endLabel)
	for _, b := range p.popLoop().breaks {
		p.em.MarkLabel(b)
	}
	return nil
}

func (p *Parser) parseLoop() error {
	if err := p.advance(); err != nil {
		return err
	}
	lc := p.pushLoop()
	headerLabel := p.em.NewLabel()
	p.em.MarkLabel(headerLabel)
	p.em.MarkLabel(lc.continueTarget)
	if err := p.parseBlock(); err != nil {
		return err
	}
	p.emit(OpJump, headerLabel, nil, nil, nil)
	for _, b := range p.popLoop().breaks {
		p.em.MarkLabel(b)
	}
	return nil
}

// parseFor handles both `for x in <range-or-list> { }` and the
// C-style `for init; cond; step { }` form, disambiguated by whether
// `in` follows the loop variable.
func (p *Parser) parseFor() error {
	if err := p.advance(); err != nil {
		return err
	}

	if p.is(TokIdent) {
		nt, err := p.peek(0)
		if err != nil {
			return err
		}
		if nt.Kind == TokIn {
			return p.parseForIn()
		}
	}
	return p.parseForCStyle()
}

func (p *Parser) parseForIn() error {
	varTok, err := p.expect(TokIdent, "loop variable")
	if err != nil {
		return err
	}
	if _, err := p.expect(TokIn, "in"); err != nil {
		return err
	}
	if _, err := p.parseExpr(); err != nil { // source: range or list
		return err
	}
	iterSlot := varTok.Text + "$iter"
	p.scope.Declare(iterSlot, &VariableSymbol{Name: iterSlot})
	p.emit(OpNewIterator, iterSlot, nil, nil, nil)
	p.scope.Declare(varTok.Text, &VariableSymbol{Name: varTok.Text})

	lc := p.pushLoop()
	headerLabel := p.em.NewLabel()
	p.em.MarkLabel(headerLabel)
	p.em.MarkLabel(lc.continueTarget)
	endLabel := p.em.NewLabel()
	p.emit(OpIteratorNext, iterSlot, varTok.Text, endLabel, nil)
	if err := p.parseBlock(); err != nil {
		return err
	}
	p.emit(OpJump, headerLabel, nil, nil, nil)
	p.em.MarkLabel(endLabel)
	for _, b := range p.popLoop().breaks {
		p.em.MarkLabel(b)
	}
	return nil
}

func (p *Parser) parseForCStyle() error {
	if _, err := p.parseExprOrAssignment(); err != nil {
		return err
	}
	if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return err
	}
	lc := p.pushLoop()
	headerLabel := p.em.NewLabel()
	p.em.MarkLabel(headerLabel)
	if _, err := p.parseExpr(); err != nil {
		return err
	}
	endLabel := p.em.NewLabel()
	p.emit(OpJumpIfFalse, endLabel, nil, nil, nil)
	if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return err
	}

	// The step expression appears textually before the body but must
	// execute after it; compile it into a side-buffer and splice it in
	// at the continue point, same technique used for function bodies
	// (compileFuncBodyInline) — necessary because the lexer never
	// seeks backward.
	savedEm := p.em
	stepEm := NewEmitter(p.cfg)
	p.em = stepEm
	if !p.is(TokLBrace) {
		if _, err := p.parseExprOrAssignment(); err != nil {
			return err
		}
	}
	p.em = savedEm

	if err := p.parseBlock(); err != nil {
		return err
	}
	p.em.MarkLabel(lc.continueTarget)
	for _, ins := range stepEm.code {
		p.em.Emit(ins)
	}
	p.emit(OpJump, headerLabel, nil, nil, nil)
	p.em.MarkLabel(endLabel)
	for _, b := range p.popLoop().breaks {
		p.em.MarkLabel(b)
	}
	return nil
}

// parseMatch handles both the arrow form (yields a value) and the
// colon form (statement switch with fallthrough until an explicit
// break). asExpr selects which form parseExpr's primary parser
// expects; called from statement position asExpr is false but the
// arrow form is still detected and handled identically (it always
// yields a value onto the stack — statement context simply discards
// it via the caller's normal expression-statement pop, mirrored by
// every other expression statement).
func (p *Parser) parseMatch(asExpr bool) (bool, error) {
	if err := p.advance(); err != nil {
		return asExpr, err
	}
	if _, err := p.parseExpr(); err != nil { // scrutinee
		return asExpr, err
	}
	p.emitStore("$matchval")
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return asExpr, err
	}
	if err := p.skipEOLs(); err != nil {
		return asExpr, err
	}

	endLabel := p.em.NewLabel()
	var nextArmLabel label
	for !p.is(TokRBrace) && !p.is(TokEOF) {
		isRest, err := p.match(TokRest)
		if err != nil {
			return asExpr, err
		}
		if !isRest {
			p.emitLoad("$matchval")
			if _, err := p.parseExpr(); err != nil { // arm pattern value
				return asExpr, err
			}
			p.emit(OpEq, nil, nil, nil, nil)
			nextArmLabel = p.em.NewLabel()
			p.emit(OpJumpIfFalse, nextArmLabel, nil, nil, nil)
		}
		if p.is(TokFatArrow) {
			if err := p.advance(); err != nil {
				return asExpr, err
			}
			if _, err := p.parseExpr(); err != nil {
				return asExpr, err
			}
		} else if p.is(TokArrow) {
			if err := p.advance(); err != nil {
				return asExpr, err
			}
			if _, err := p.parseExpr(); err != nil {
				return asExpr, err
			}
		} else if p.is(TokColon) {
			if err := p.advance(); err != nil {
				return asExpr, err
			}
			if err := p.skipEOLs(); err != nil {
				return asExpr, err
			}
			for !p.is(TokBreak) && !p.is(TokRBrace) && !p.is(TokEOF) {
				if err := p.parseStatement(); err != nil {
					return asExpr, err
				}
				if err := p.skipEOLs(); err != nil {
					return asExpr, err
				}
			}
			if p.is(TokBreak) {
				if err := p.advance(); err != nil {
					return asExpr, err
				}
			}
		}
		p.emit(OpJump, endLabel, nil, nil, nil)
		if !isRest {
			p.em.MarkLabel(nextArmLabel)
		}
		if p.is(TokSemicolon) || p.is(TokEOL) {
			if err := p.advance(); err != nil {
				return asExpr, err
			}
		}
		if err := p.skipEOLs(); err != nil {
			return asExpr, err
		}
		if isRest {
			break
		}
	}
	p.em.MarkLabel(endLabel)
	_, err := p.expect(TokRBrace, "}")
	return true, err
}

func (p *Parser) parseReturn() error {
	if err := p.advance(); err != nil {
		return err
	}
	if p.is(TokSemicolon) || p.is(TokEOL) || p.is(TokRBrace) {
		p.emit(OpLoadConst, Nil, nil, nil, nil)
		p.emit(OpReturn, nil, nil, nil, nil)
		return p.consumeStatementEnd()
	}
	if _, err := p.parseExpr(); err != nil {
		return err
	}
	p.emit(OpReturn, nil, nil, nil, nil)
	return p.consumeStatementEnd()
}

func (p *Parser) parseBreak() error {
	if err := p.advance(); err != nil {
		return err
	}
	if len(p.loops) > 0 {
		lc := p.loops[len(p.loops)-1]
		lb := p.em.NewLabel()
		lc.breaks = append(lc.breaks, lb)
		p.emit(OpJump, lb, nil, nil, nil)
	}
	return p.consumeStatementEnd()
}

func (p *Parser) parseContinue() error {
	if err := p.advance(); err != nil {
		return err
	}
	if len(p.loops) > 0 {
		lc := p.loops[len(p.loops)-1]
		p.emit(OpJump, lc.continueTarget, nil, nil, nil)
	}
	return p.consumeStatementEnd()
}

func (p *Parser) parseThrow() error {
	if err := p.advance(); err != nil {
		return err
	}
	if _, err := p.parseExpr(); err != nil {
		return err
	}
	p.emit(OpThrow, nil, nil, nil, nil)
	return p.consumeStatementEnd()
}

// parseTrain lowers `->> stmt ->> stmt <<-` to a plain in-order
// statement sequence; the arrows are purely visual separators (spec
// §4.2).
func (p *Parser) parseTrain() error {
	if err := p.advance(); err != nil {
		return err
	}
	for {
		if _, err := p.parseExprOrAssignment(); err != nil {
			return err
		}
		if p.is(TokTrainEnd) {
			return p.advance()
		}
		if _, err := p.expect(TokTrainArrow, "->>"); err != nil {
			return err
		}
	}
}
