package fluence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lexAll drains a Lexer to EOF, asserting no lex error along the way.
func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	lx := NewLexer(0, src)
	var toks []Token
	for {
		tok, err := lx.ConsumeToken()
		require.NoError(t, err)
		toks = append(toks, tok)
		if tok.Kind == TokEOF {
			return toks
		}
	}
}

func kinds(toks []Token) []TokenKind {
	out := make([]TokenKind, len(toks))
	for i, tok := range toks {
		out[i] = tok.Kind
	}
	return out
}

func TestLexIdentAndKeywords(t *testing.T) {
	toks := lexAll(t, "func foo is not struct")
	assert.Equal(t, []TokenKind{TokFunc, TokIdent, TokIs, TokNot, TokStruct, TokEOF}, kinds(toks))
	assert.Equal(t, "foo", toks[1].Text)
}

func TestLexNumberLiterals(t *testing.T) {
	for _, test := range []struct {
		name     string
		src      string
		wantKind TokenKind
	}{
		{"small int is int32", "42", TokIntLit},
		{"overflowing int promotes to long", "9999999999", TokLongLit},
		{"decimal is double by default", "5.0", TokDoubleLit},
		{"trailing dot synthesizes zero mantissa", "5.", TokDoubleLit},
		{"f suffix forces float32", "5f", TokFloatLit},
		{"float with exponent", "1.5e10", TokDoubleLit},
		{"underscores are visual separators", "1_000_000", TokIntLit},
	} {
		t.Run(test.name, func(t *testing.T) {
			toks := lexAll(t, test.src)
			require.Len(t, toks, 2)
			assert.Equal(t, test.wantKind, toks[0].Kind)
		})
	}
}

func TestLexNumberLiteralValues(t *testing.T) {
	toks := lexAll(t, "1_000_000")
	assert.Equal(t, int32(1000000), toks[0].Literal.Int32())

	toks = lexAll(t, "9999999999")
	assert.Equal(t, int64(9999999999), toks[0].Literal.Int64())

	toks = lexAll(t, "2.5")
	assert.Equal(t, 2.5, toks[0].Literal.Float64())
}

func TestLexStringLiteral(t *testing.T) {
	toks := lexAll(t, `"hello\nworld"`)
	require.Len(t, toks, 2)
	assert.Equal(t, TokStringLit, toks[0].Kind)
	so, ok := toks[0].Literal.Obj.(*StringObj)
	require.True(t, ok)
	assert.Equal(t, "hello\nworld", so.Value)
}

func TestLexFStringCapturesRawBody(t *testing.T) {
	toks := lexAll(t, `f"total: {a + b}"`)
	require.Len(t, toks, 2)
	assert.Equal(t, TokFStringLit, toks[0].Kind)
	so, ok := toks[0].Literal.Obj.(*StringObj)
	require.True(t, ok)
	assert.Equal(t, "total: {a + b}", so.Value)
}

func TestLexCharLiteral(t *testing.T) {
	toks := lexAll(t, `'x'`)
	require.Len(t, toks, 2)
	assert.Equal(t, TokCharLit, toks[0].Kind)
}

func TestLexUnterminatedStringErrors(t *testing.T) {
	lx := NewLexer(0, `"unterminated`)
	_, err := lx.ConsumeToken()
	require.Error(t, err)
	_, ok := err.(*LexError)
	assert.True(t, ok)
}

func TestLexLineAndBlockComments(t *testing.T) {
	toks := lexAll(t, "a # line comment\nb #* block #* nested *# still *# c")
	kindsOnly := kinds(toks)
	assert.Contains(t, kindsOnly, TokIdent)
	assert.Contains(t, kindsOnly, TokEOL)
}

func TestLexOperatorFamilies(t *testing.T) {
	for _, test := range []struct {
		src  string
		want TokenKind
	}{
		{"+=", TokPlusEq},
		{"=>", TokFatArrow},
		{"->", TokArrow},
		{"->>", TokTrainArrow},
		{"..", TokDotDot},
		{"**", TokStarStar},
		{"|>", TokPipe},
		{"|>>=", TokReducePipe},
		{"&&", TokAndAnd},
		{"||", TokOrOr},
		{"|", TokBitOr},
		{"<=", TokLessEq},
		{"<<-", TokTrainEnd},
	} {
		t.Run(test.src, func(t *testing.T) {
			toks := lexAll(t, test.src)
			require.Len(t, toks, 2)
			assert.Equal(t, test.want, toks[0].Kind)
		})
	}
}

func TestLexChainAssignDigitFamily(t *testing.T) {
	for _, test := range []struct {
		src    string
		want   TokenKind
		wantN  int
	}{
		{"<3|", TokChainAssignN, 3},
		{"<3?|", TokOptAssignN, 3},
		{"<3!|", TokUniqueChainN, 3},
		{"<3!?|", TokOptUniqueN, 3},
	} {
		t.Run(test.src, func(t *testing.T) {
			toks := lexAll(t, test.src)
			require.Len(t, toks, 2)
			assert.Equal(t, test.want, toks[0].Kind)
			assert.Equal(t, test.wantN, toks[0].N)
		})
	}
}

func TestLexCollectiveComparisonFamily(t *testing.T) {
	toks := lexAll(t, "<==|")
	require.Len(t, toks, 2)
	assert.Equal(t, TokCollEq, toks[0].Kind)
}

func TestPeekTokenDoesNotConsume(t *testing.T) {
	lx := NewLexer(0, "a b")
	first, err := lx.PeekToken(0)
	require.NoError(t, err)
	assert.Equal(t, TokIdent, first.Kind)
	assert.Equal(t, "a", first.Text)

	again, err := lx.ConsumeToken()
	require.NoError(t, err)
	assert.Equal(t, "a", again.Text)

	second, err := lx.ConsumeToken()
	require.NoError(t, err)
	assert.Equal(t, "b", second.Text)
}
