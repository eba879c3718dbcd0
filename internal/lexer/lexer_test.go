package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivergrove/stak/internal/diag"
	"github.com/rivergrove/stak/internal/keyword"
	"github.com/rivergrove/stak/internal/lexer"
	"github.com/rivergrove/stak/internal/logging"
)

func tokenize(t *testing.T, source string) ([]lexer.Token, *diag.Sink) {
	t.Helper()
	sink := diag.NewSink()
	tokens, err := lexer.Tokenize([]byte(source), keyword.Canonical, sink, logging.Logger{})
	require.NoError(t, err)
	return tokens, sink
}

func TestTokenize_ArithmeticExpression(t *testing.T) {
	tokens, sink := tokenize(t, "1+2")
	assert.Equal(t, 0, sink.Len())
	require.Len(t, tokens, 4)
	assert.Equal(t, lexer.Number, tokens[0].Kind)
	assert.Equal(t, 1.0, tokens[0].Num)
	assert.Equal(t, lexer.Keyword, tokens[1].Kind)
	assert.Equal(t, keyword.OpAdd, tokens[1].Op)
	assert.Equal(t, lexer.Number, tokens[2].Kind)
	assert.Equal(t, 2.0, tokens[2].Num)
	assert.Equal(t, lexer.Eof, tokens[3].Kind)
}

func TestTokenize_SpansAreOrderedAndNonOverlapping(t *testing.T) {
	source := "x = 1 + foo(2, 3);"
	tokens, sink := tokenize(t, source)
	require.Equal(t, 0, sink.Len())

	prevEnd := 0
	for _, tok := range tokens {
		if tok.Kind == lexer.Eof {
			continue
		}
		assert.GreaterOrEqual(t, tok.Offset, prevEnd)
		prevEnd = tok.End()
	}
}

func TestTokenize_IgnoredWordsAreSkipped(t *testing.T) {
	tokens, sink := tokenize(t, "1 and 2 or 3")
	assert.Equal(t, 0, sink.Len())
	require.Len(t, tokens, 4) // Number, Number, Number, Eof
	assert.Equal(t, lexer.Number, tokens[0].Kind)
	assert.Equal(t, lexer.Number, tokens[1].Kind)
	assert.Equal(t, lexer.Number, tokens[2].Kind)
}

func TestTokenize_LineComment(t *testing.T) {
	tokens, sink := tokenize(t, "1 // trailing comment\n+ 2")
	assert.Equal(t, 0, sink.Len())
	require.Len(t, tokens, 4)
}

func TestTokenize_BlockComment(t *testing.T) {
	tokens, sink := tokenize(t, "1 /* skip me */ + 2")
	assert.Equal(t, 0, sink.Len())
	require.Len(t, tokens, 4)
}

func TestTokenize_UnterminatedBlockComment(t *testing.T) {
	tokens, sink := tokenize(t, "/* unterminated")
	require.Equal(t, 1, sink.Len())
	rec := sink.Records()[0]
	assert.Equal(t, diag.LexUnterminatedComment, rec.Code)
	assert.Equal(t, 0, rec.Offset)
	assert.Equal(t, 2, rec.Length)
	require.Len(t, tokens, 1)
	assert.Equal(t, lexer.Eof, tokens[0].Kind)
}

func TestTokenize_UnknownSymbol(t *testing.T) {
	_, sink := tokenize(t, "1 @ 2")
	require.Equal(t, 1, sink.Len())
	assert.Equal(t, diag.LexUnknownSymbol, sink.Records()[0].Code)
}

func TestTokenize_BadNumber(t *testing.T) {
	// An exponent pushing the literal out of float64 range: scanNumber
	// accepts the grammar, but strconv.ParseFloat reports ErrRange.
	_, sink := tokenize(t, "1e400")
	require.Equal(t, 1, sink.Len())
	assert.Equal(t, diag.LexBadNumber, sink.Records()[0].Code)
}

func TestTokenize_ExponentBacksUpWithoutDigits(t *testing.T) {
	tokens, sink := tokenize(t, "1e")
	require.Equal(t, 0, sink.Len())
	require.Len(t, tokens, 3) // Number(1), Ident("e"), Eof
	assert.Equal(t, lexer.Number, tokens[0].Kind)
	assert.Equal(t, 1.0, tokens[0].Num)
	assert.Equal(t, lexer.Ident, tokens[1].Kind)
}

func TestTokenize_KeywordLongestMatchWins(t *testing.T) {
	tokens, sink := tokenize(t, "<=")
	require.Equal(t, 0, sink.Len())
	require.Len(t, tokens, 2)
	assert.Equal(t, keyword.OpLe, tokens[0].Op)
}

func TestTokenize_EmptySourceYieldsOnlyEof(t *testing.T) {
	tokens, sink := tokenize(t, "")
	assert.Equal(t, 0, sink.Len())
	require.Len(t, tokens, 1)
	assert.Equal(t, lexer.Eof, tokens[0].Kind)
}

func TestTokenize_LineColumnTracking(t *testing.T) {
	tokens, sink := tokenize(t, "1;\n2;")
	require.Equal(t, 0, sink.Len())
	// tokens: Number(1) LCAT Number(2) LCAT Eof
	require.Len(t, tokens, 5)
	assert.Equal(t, 1, tokens[0].Line)
	assert.Equal(t, 1, tokens[0].Column)
	assert.Equal(t, 2, tokens[2].Line)
	assert.Equal(t, 1, tokens[2].Column)
}
