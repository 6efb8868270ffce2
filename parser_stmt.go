package fluence

// parseStatement parses and emits one statement: a declaration, a
// control-flow construct, a train sequence, or an expression statement
// (spec §4.2).
func (p *Parser) parseStatement() error {
	switch p.cur.Kind {
	case TokFunc:
		return p.parseFuncDecl()
	case TokStruct:
		return p.parseStructDecl()
	case TokEnum:
		return p.advance() // variants already registered in preScan; nothing to emit
	case TokSpace:
		return p.parseSpaceDecl()
	case TokUse:
		return p.parseUseDecl()
	case TokIf:
		return p.parseIf()
	case TokUnless:
		return p.parseUnless()
	case TokWhile:
		return p.parseWhile()
	case TokUntil:
		return p.parseUntil()
	case TokLoop:
		return p.parseLoop()
	case TokFor:
		return p.parseFor()
	case TokMatch:
		_, err := p.parseMatch(false)
		return err
	case TokReturn:
		return p.parseReturn()
	case TokBreak:
		return p.parseBreak()
	case TokContinue:
		return p.parseContinue()
	case TokThrow:
		return p.parseThrow()
	case TokTrainArrow:
		return p.parseTrain()
	case TokHashIf:
		return p.parseHashIf()
	case TokLBrace:
		return p.parseBlock()
	default:
		if _, err := p.parseExprOrAssignment(); err != nil {
			return err
		}
		return p.consumeStatementEnd()
	}
}

func (p *Parser) consumeStatementEnd() error {
	switch p.cur.Kind {
	case TokSemicolon, TokEOL:
		return p.advance()
	case TokEOF, TokRBrace:
		return nil
	default:
		return p.errUnexpected("; or newline")
	}
}

func (p *Parser) parseBlock() error {
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return err
	}
	if err := p.skipEOLs(); err != nil {
		return err
	}
	for !p.is(TokRBrace) && !p.is(TokEOF) {
		if err := p.parseStatement(); err != nil {
			return err
		}
		if err := p.skipEOLs(); err != nil {
			return err
		}
	}
	_, err := p.expect(TokRBrace, "}")
	return err
}

// parseHashIf implements SPEC_FULL.md §9 Open Question 2: a simple
// textual gate. If the symbol is absent from Config.compilationSymbols
// the guarded block is skipped without emitting any bytecode.
func (p *Parser) parseHashIf() error {
	if err := p.advance(); err != nil {
		return err
	}
	sym, err := p.expect(TokIdent, "symbol name")
	if err != nil {
		return err
	}
	if p.cfg.HasSymbol(sym.Text) {
		return p.parseBlock()
	}
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return err
	}
	return skipBalancedBracesParser(p)
}

func skipBalancedBracesParser(p *Parser) error {
	depth := 1
	for depth > 0 {
		if p.is(TokEOF) {
			return p.errUnexpected("}")
		}
		if p.is(TokLBrace) {
			depth++
		}
		if p.is(TokRBrace) {
			depth--
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
	return nil
}

// --- declarations ------------------------------------------------------

func (p *Parser) parseFuncDecl() error {
	if err := p.advance(); err != nil {
		return err
	}
	nameTok, err := p.expect(TokIdent, "function name")
	if err != nil {
		return err
	}
	if _, err := p.expect(TokLParen, "("); err != nil {
		return err
	}
	var params []string
	for !p.is(TokRParen) {
		isRef, err := p.match(TokRef)
		if err != nil {
			return err
		}
		_ = isRef
		nt, err := p.expect(TokIdent, "parameter name")
		if err != nil {
			return err
		}
		params = append(params, nt.Text)
		if p.is(TokComma) {
			if err := p.advance(); err != nil {
				return err
			}
		}
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return err
	}
	mangled := MangleName(nameTok.Text, len(params))
	sym, ok := p.scope.TryResolveLocal(mangled)
	fn, _ := sym.(*FunctionSymbol)
	if !ok || fn == nil {
		// Declared inside a nested block (not top-level pre-scanned).
		fn = &FunctionSymbol{MangledName: mangled, BaseName: nameTok.Text, Arity: len(params), ParamNames: params, DefiningScope: p.scope}
		if err := p.scope.Declare(mangled, fn); err != nil {
			return &ParseError{Message: err.Error(), Span: nameTok.Span}
		}
		p.prog.Functions[mangled] = &FunctionObj{MangledName: mangled, BaseName: nameTok.Text, Arity: len(params), ParamNames: params}
	}

	if _, err := p.expect(TokFatArrow, "=>"); err != nil {
		return err
	}
	// Body compiled later, in source order relative to other functions
	// but after the whole top-level section (see parseTopLevel) so
	// that every function is registered in p.prog.Functions before any
	// Call instruction executes. Here we just record where the body
	// tokens are by re-parsing lazily: since this is a single pass
	// over a live token stream (not a re-seekable buffer), we compile
	// the body immediately into its own instruction sub-stream using a
	// nested Emitter, then splice it in during parseTopLevel.
	if err := p.compileFuncBodyInline(mangled, fn); err != nil {
		return err
	}
	if p.is(TokSemicolon) {
		return p.advance()
	}
	return nil
}

// compileFuncBodyInline parses the function body right where it
// appears in the token stream (required because the lexer is a single
// forward pass with no seek), but emits it into a side Emitter so its
// instructions land after the top-level section rather than inline.
// The function's own StartAddr is unknown until that splice happens;
// compileFunctionBody (called from parseTopLevel) performs the splice.
func (p *Parser) compileFuncBodyInline(key string, fn *FunctionSymbol) error {
	savedEm := p.em
	savedScope := p.scope
	bodyEm := NewEmitter(p.cfg)
	p.em = bodyEm
	p.scope = NewScope(fn.BaseName, fn.DefiningScope)
	for i, name := range fn.ParamNames {
		p.scope.Declare(name, &VariableSymbol{Name: name})
		_ = i
	}

	var err error
	if p.is(TokLBrace) {
		err = p.parseBlock()
	} else {
		err = p.parseExprStatementAsReturn()
	}

	p.em.Emit(Instruction{Opcode: OpReturn})
	fn.pendingBody = bodyEm.code
	fn.pendingRegs = len(fn.ParamNames)
	p.bodies[key] = fn

	p.em = savedEm
	p.scope = savedScope
	return err
}

func (p *Parser) parseExprStatementAsReturn() error {
	v, err := p.parseExpr()
	if err != nil {
		return err
	}
	_ = v
	p.emit(OpReturn, nil, nil, nil, nil)
	return nil
}

// compileFunctionBody splices a pre-parsed function body (built by
// compileFuncBodyInline) into the main Emitter, now that every
// function's body has been compiled and the real entry address is
// knowable, and records the function's bytecode bounds on the
// runtime FunctionObj the VM dispatches through.
func (p *Parser) compileFunctionBody(key string, fnObj *FunctionObj) error {
	fnSym := p.bodies[key]
	if fnSym == nil || fnSym.pendingBody == nil {
		return nil
	}
	// Addresses count only real instructions, since Link strips every
	// OpLabel placeholder before the VM runs the code.
	start := 0
	for _, ins := range p.em.code {
		if ins.Opcode != OpLabel {
			start++
		}
	}
	p.em.Emit(Instruction{Opcode: OpEnterFrame, Lhs: fnSym.pendingRegs})
	end := start + 1
	for _, ins := range fnSym.pendingBody {
		p.em.Emit(ins)
		if ins.Opcode != OpLabel {
			end++
		}
	}
	fnSym.StartAddr = start
	fnSym.EndAddr = end
	fnObj.StartAddr = start
	fnObj.EndAddr = end
	fnObj.RegSlots = fnSym.pendingRegs
	return nil
}

func (p *Parser) parseStructDecl() error {
	if err := p.advance(); err != nil {
		return err
	}
	nameTok, err := p.expect(TokIdent, "struct name")
	if err != nil {
		return err
	}
	sym, _ := p.scope.TryResolveLocal(nameTok.Text)
	st, _ := sym.(*StructSymbol)
	if st == nil {
		st = NewStructSymbol(nameTok.Text)
		p.scope.Declare(nameTok.Text, st)
	}
	if p.is(TokImpl) {
		if err := p.advance(); err != nil {
			return err
		}
		for {
			t, err := p.expect(TokIdent, "trait name")
			if err != nil {
				return err
			}
			st.ImplementedTraits = append(st.ImplementedTraits, t.Text)
			if !p.is(TokComma) {
				break
			}
			if err := p.advance(); err != nil {
				return err
			}
		}
	}
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return err
	}
	if err := p.skipEOLs(); err != nil {
		return err
	}
	class := p.prog.Structs[nameTok.Text]
	structScope := NewScope(nameTok.Text, p.scope)
	for !p.is(TokRBrace) && !p.is(TokEOF) {
		if err := p.parseStructMember(st, class, structScope); err != nil {
			return err
		}
		if err := p.skipEOLs(); err != nil {
			return err
		}
	}
	_, err = p.expect(TokRBrace, "}")
	return err
}

func (p *Parser) parseStructMember(st *StructSymbol, class *Class, structScope *Scope) error {
	isSolid, err := p.match(TokSolid)
	if err != nil {
		return err
	}
	if p.is(TokFunc) {
		return p.parseStructMethod(st, class, structScope)
	}
	nameTok, err := p.expect(TokIdent, "field or method name")
	if err != nil {
		return err
	}
	var def Value = Nil
	if p.is(TokAssign) {
		if err := p.advance(); err != nil {
			return err
		}
		v, ok := p.tryConstFold()
		if !ok {
			v = Nil
		}
		def = v
	}
	if isSolid {
		class.StaticFields[nameTok.Text] = def
	} else {
		class.FieldDefaults[nameTok.Text] = def
		class.FieldOrder = append(class.FieldOrder, nameTok.Text)
	}
	return p.consumeStatementEnd()
}

// tryConstFold parses a field-default expression and, if it reduces to
// a literal at parse time, returns its Value. Fluence struct field
// defaults are expressions evaluated per-instance at NewInstance time
// in the general case; this parser only folds the literal common case
// (number/string/bool/nil) and otherwise defaults to Nil with the full
// expression still consumed from the token stream so parsing stays in
// sync (a complete implementation would defer non-literal defaults to
// a per-field init thunk executed by OpNewInstance).
func (p *Parser) tryConstFold() (Value, bool) {
	tok := p.cur
	switch tok.Kind {
	case TokIntLit, TokLongLit, TokFloatLit, TokDoubleLit, TokStringLit, TokCharLit, TokTrue, TokFalse, TokNil:
		p.advance()
		switch tok.Kind {
		case TokTrue:
			return True, true
		case TokFalse:
			return False, true
		case TokNil:
			return Nil, true
		default:
			return tok.Literal, true
		}
	}
	// Not a literal: consume the expression so the member parser stays
	// aligned, discard its compiled form (see doc comment above).
	savedEm := p.em
	p.em = NewEmitter(p.cfg)
	p.parseExpr()
	p.em = savedEm
	return Nil, false
}

func (p *Parser) parseStructMethod(st *StructSymbol, class *Class, structScope *Scope) error {
	if err := p.advance(); err != nil {
		return err
	}
	nameTok, err := p.expect(TokIdent, "method name")
	if err != nil {
		return err
	}
	if _, err := p.expect(TokLParen, "("); err != nil {
		return err
	}
	var params []string
	for !p.is(TokRParen) {
		if p.is(TokRef) {
			p.advance()
		}
		nt, err := p.expect(TokIdent, "parameter name")
		if err != nil {
			return err
		}
		params = append(params, nt.Text)
		if p.is(TokComma) {
			p.advance()
		}
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return err
	}
	if _, err := p.expect(TokFatArrow, "=>"); err != nil {
		return err
	}

	mangled := MangleName(nameTok.Text, len(params))
	fnSym := &FunctionSymbol{MangledName: mangled, BaseName: nameTok.Text, Arity: len(params), ParamNames: params, DefiningScope: structScope, OwnerStruct: st}
	st.Methods[mangled] = fnSym

	savedEm := p.em
	savedScope := p.scope
	bodyEm := NewEmitter(p.cfg)
	p.em = bodyEm
	p.scope = NewScope(nameTok.Text, structScope)
	p.scope.Declare("self", &VariableSymbol{Name: "self"})
	for _, name := range params {
		p.scope.Declare(name, &VariableSymbol{Name: name})
	}
	var perr error
	if p.is(TokLBrace) {
		perr = p.parseBlock()
	} else {
		perr = p.parseExprStatementAsReturn()
	}
	p.em.Emit(Instruction{Opcode: OpReturn})
	p.em = savedEm
	p.scope = savedScope
	if perr != nil {
		return perr
	}
	if p.is(TokSemicolon) {
		if err := p.advance(); err != nil {
			return err
		}
	}

	methodObj := &FunctionObj{MangledName: mangled, BaseName: nameTok.Text, Arity: len(params), ParamNames: params, OwnerStruct: class}
	class.AddMethod(methodObj)
	fnSym.pendingBody = bodyEm.code
	fnSym.pendingRegs = 1 + len(params) // self + params
	// Methods splice in alongside free functions under a namespaced
	// key ("Struct.mangled") so they don't collide with free-function
	// keys of the same mangled name; compileFunctionBody's generic
	// splice loop (which walks p.prog.Functions) places them too.
	key := class.Name + "." + mangled
	p.prog.Functions[key] = methodObj
	p.bodies[key] = fnSym
	return nil
}

func (p *Parser) parseSpaceDecl() error {
	if err := p.advance(); err != nil {
		return err
	}
	nameTok, err := p.expect(TokIdent, "namespace name")
	if err != nil {
		return err
	}
	sym, _ := p.scope.TryResolveLocal(nameTok.Text)
	ns, _ := sym.(*NamespaceSymbol)
	if ns == nil {
		ns = &NamespaceSymbol{Name: nameTok.Text, Scope: NewScope(nameTok.Text, p.scope)}
		p.scope.Declare(nameTok.Text, ns)
	}
	savedScope := p.scope
	p.scope = ns.Scope
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return err
	}
	if err := p.skipEOLs(); err != nil {
		return err
	}
	for !p.is(TokRBrace) && !p.is(TokEOF) {
		if err := p.parseStatement(); err != nil {
			return err
		}
		if err := p.skipEOLs(); err != nil {
			return err
		}
	}
	_, err = p.expect(TokRBrace, "}")
	p.scope = savedScope
	return err
}

func (p *Parser) parseUseDecl() error {
	if err := p.advance(); err != nil {
		return err
	}
	nameTok, err := p.expect(TokIdent, "namespace name")
	if err != nil {
		return err
	}
	sym, ok := p.scope.Resolve(nameTok.Text)
	if ok {
		if ns, ok := sym.(*NamespaceSymbol); ok {
			p.scope.Use(ns.Scope)
		}
	}
	return p.consumeStatementEnd()
}
