package fluence

// Parser is a single-pass recursive-descent parser that emits
// bytecode directly into an Emitter while it walks the token stream —
// no AST is materialized. Grounded on the teacher's base_parser.go
// cursor-driven recognizer shape and grammar_compiler.go's "parse a
// construct, emit its instructions inline" style, generalized from a
// PEG-rule compiler to a full expression/statement/declaration
// language (spec §4.2).
type Parser struct {
	lex *Lexer
	cur Token

	em     *Emitter
	cfg    *Config
	global *Scope
	scope  *Scope
	prog   *Program

	fileIndex int
	loops     []*loopContext

	firstErr error

	// bodies maps a function's prog.Functions key (mangled name for
	// free functions, "Struct.mangled" for methods) to the symbol
	// holding its not-yet-spliced instruction stream, recorded as each
	// body is compiled in source order (see compileFuncBodyInline).
	bodies map[string]*FunctionSymbol
}

type loopContext struct {
	breaks         []label
	continueTarget label
}

// ParseProgram compiles source into a linked, (optionally) optimized
// Program. It pre-scans top-level declarations so forward references
// resolve regardless of declaration order, then parses top-level
// statements and each declaration body in source order.
func ParseProgram(cfg *Config, fileIndex int, sourceFile, source string) (*Program, error) {
	global := NewScope("global", nil)
	prog := NewProgram(sourceFile)

	if err := preScan(fileIndex, source, global, prog); err != nil {
		return nil, err
	}

	p := &Parser{
		lex:       NewLexer(fileIndex, source),
		em:        NewEmitter(cfg),
		cfg:       cfg,
		global:    global,
		scope:     global,
		prog:      prog,
		fileIndex: fileIndex,
		bodies:    map[string]*FunctionSymbol{},
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	if err := p.parseTopLevel(); err != nil {
		return nil, err
	}

	prog.Code = p.em.Link()
	if cfg.OptimizeBytecode() {
		prog.Code = Optimize(prog.Code)
	}
	return prog, nil
}

func (p *Parser) advance() error {
	tok, err := p.lex.ConsumeToken()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *Parser) peek(k int) (Token, error) { return p.lex.PeekToken(k) }

func (p *Parser) is(kind TokenKind) bool { return p.cur.Kind == kind }

func (p *Parser) skipEOLs() error {
	for p.is(TokEOL) {
		if err := p.advance(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) expect(kind TokenKind, what string) (Token, error) {
	if p.cur.Kind != kind {
		return Token{}, p.errUnexpected(what)
	}
	tok := p.cur
	if err := p.advance(); err != nil {
		return Token{}, err
	}
	return tok, nil
}

func (p *Parser) match(kind TokenKind) (bool, error) {
	if p.cur.Kind != kind {
		return false, nil
	}
	return true, p.advance()
}

func (p *Parser) errUnexpected(expected string) error {
	return &ParseError{
		Message:      "unexpected token",
		Unexpected:   p.cur.Kind,
		UnexpectedTx: p.cur.Text,
		Expected:     []string{expected},
		Span:         p.cur.Span,
		LineText:     p.lex.lineText(),
	}
}

func (p *Parser) emit(op Opcode, lhs, rhs, rhs2, rhs3 any) int {
	loc := p.cur.Span.Start
	return p.em.Emit(Instruction{Opcode: op, Lhs: lhs, Rhs: rhs, Rhs2: rhs2, Rhs3: rhs3, Line: loc.Line, Column: loc.Column, File: loc.File})
}

// --- top level -------------------------------------------------------

func (p *Parser) parseTopLevel() error {
	if err := p.skipEOLs(); err != nil {
		return err
	}
	for !p.is(TokEOF) {
		if err := p.parseStatement(); err != nil {
			return err
		}
		if err := p.skipEOLs(); err != nil {
			return err
		}
	}
	p.emit(OpHalt, nil, nil, nil, nil)

	for key, fn := range p.prog.Functions {
		if fn.Intrinsic {
			continue
		}
		if err := p.compileFunctionBody(key, fn); err != nil {
			return err
		}
	}
	return nil
}

// preScan performs the parser's lightweight first pass: it registers
// every top-level func/struct/enum/space symbol (with arity, for
// functions) so later references — in any declaration order — resolve
// (spec §4.2 Forward references). It does not emit bytecode; it only
// balances braces/parens to skip over bodies.
func preScan(fileIndex int, source string, global *Scope, prog *Program) error {
	lex := NewLexer(fileIndex, source)
	for {
		tok, err := lex.ConsumeToken()
		if err != nil {
			return err
		}
		if tok.Kind == TokEOF {
			return nil
		}
		switch tok.Kind {
		case TokFunc:
			if err := preScanFunc(lex, global, prog); err != nil {
				return err
			}
		case TokStruct:
			if err := preScanStruct(lex, global, prog); err != nil {
				return err
			}
		case TokEnum:
			if err := preScanEnum(lex, global); err != nil {
				return err
			}
		case TokSpace:
			if err := preScanSpace(lex, global); err != nil {
				return err
			}
		case TokLBrace:
			if err := skipBalancedBraces(lex); err != nil {
				return err
			}
		}
	}
}

func preScanFunc(lex *Lexer, scope *Scope, prog *Program) error {
	nameTok, err := lex.ConsumeToken()
	if err != nil {
		return err
	}
	if nameTok.Kind != TokIdent {
		return &ParseError{Message: "expected function name", Unexpected: nameTok.Kind, Span: nameTok.Span}
	}
	open, err := lex.ConsumeToken()
	if err != nil {
		return err
	}
	if open.Kind != TokLParen {
		return &ParseError{Message: "expected ( after function name", Unexpected: open.Kind, Span: open.Span}
	}
	var params []string
	var byRef []bool
	for {
		t, err := lex.ConsumeToken()
		if err != nil {
			return err
		}
		if t.Kind == TokRParen {
			break
		}
		if t.Kind == TokComma {
			continue
		}
		if t.Kind == TokRef {
			t2, err := lex.ConsumeToken()
			if err != nil {
				return err
			}
			params = append(params, t2.Text)
			byRef = append(byRef, true)
			continue
		}
		if t.Kind == TokIdent {
			params = append(params, t.Text)
			byRef = append(byRef, false)
		}
	}
	mangled := MangleName(nameTok.Text, len(params))
	fn := &FunctionSymbol{
		MangledName:   mangled,
		BaseName:      nameTok.Text,
		Arity:         len(params),
		ParamNames:    params,
		ByRefParams:   byRef,
		DefiningScope: scope,
	}
	if err := scope.Declare(mangled, fn); err != nil {
		return &ParseError{Message: err.Error(), Span: nameTok.Span}
	}
	prog.Functions[mangled] = &FunctionObj{
		MangledName: mangled,
		BaseName:    nameTok.Text,
		Arity:       len(params),
		ParamNames:  params,
		ByRefParams: byRef,
	}
	return skipToBodyAndBalance(lex)
}

// skipToBodyAndBalance advances past `=> expr;` or `=> { ... }` without
// interpreting it.
func skipToBodyAndBalance(lex *Lexer) error {
	for {
		t, err := lex.ConsumeToken()
		if err != nil {
			return err
		}
		switch t.Kind {
		case TokLBrace:
			return skipBalancedBraces(lex)
		case TokSemicolon, TokEOL, TokEOF:
			return nil
		}
	}
}

func skipBalancedBraces(lex *Lexer) error {
	depth := 1
	for depth > 0 {
		t, err := lex.ConsumeToken()
		if err != nil {
			return err
		}
		if t.Kind == TokEOF {
			return &ParseError{Message: "unbalanced braces", Span: t.Span}
		}
		if t.Kind == TokLBrace {
			depth++
		}
		if t.Kind == TokRBrace {
			depth--
		}
	}
	return nil
}

func preScanStruct(lex *Lexer, scope *Scope, prog *Program) error {
	nameTok, err := lex.ConsumeToken()
	if err != nil {
		return err
	}
	st := NewStructSymbol(nameTok.Text)
	// optional `impl T1, T2`
	t, err := lex.PeekToken(0)
	if err != nil {
		return err
	}
	if t.Kind == TokImpl {
		lex.ConsumeToken()
		for {
			tt, err := lex.ConsumeToken()
			if err != nil {
				return err
			}
			if tt.Kind == TokIdent {
				st.ImplementedTraits = append(st.ImplementedTraits, tt.Text)
			}
			nt, err := lex.PeekToken(0)
			if err != nil {
				return err
			}
			if nt.Kind != TokComma {
				break
			}
			lex.ConsumeToken()
		}
	}
	if err := scope.Declare(nameTok.Text, st); err != nil {
		return &ParseError{Message: err.Error(), Span: nameTok.Span}
	}
	prog.Structs[nameTok.Text] = NewClass(nameTok.Text)

	open, err := lex.ConsumeToken()
	if err != nil {
		return err
	}
	if open.Kind == TokLBrace {
		return skipBalancedBraces(lex)
	}
	return nil
}

func preScanEnum(lex *Lexer, scope *Scope) error {
	nameTok, err := lex.ConsumeToken()
	if err != nil {
		return err
	}
	if _, err := lex.ConsumeToken(); err != nil { // {
		return err
	}
	var variants []string
	for {
		t, err := lex.ConsumeToken()
		if err != nil {
			return err
		}
		if t.Kind == TokRBrace {
			break
		}
		if t.Kind == TokIdent {
			variants = append(variants, t.Text)
		}
	}
	es := NewEnumSymbol(nameTok.Text, variants)
	if err := scope.Declare(nameTok.Text, es); err != nil {
		return &ParseError{Message: err.Error(), Span: nameTok.Span}
	}
	return nil
}

func preScanSpace(lex *Lexer, scope *Scope) error {
	nameTok, err := lex.ConsumeToken()
	if err != nil {
		return err
	}
	ns := NewScope(nameTok.Text, scope)
	sym := &NamespaceSymbol{Name: nameTok.Text, Scope: ns}
	if err := scope.Declare(nameTok.Text, sym); err != nil {
		return &ParseError{Message: err.Error(), Span: nameTok.Span}
	}
	if _, err := lex.ConsumeToken(); err != nil { // {
		return err
	}
	return skipBalancedBraces(lex)
}
