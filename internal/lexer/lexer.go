// Package lexer implements the longest-match, keyword-table-driven
// tokenizer of spec §4.1. It never fails for lexical errors — those become
// diagnostics in the shared sink — and always terminates the stream with an
// Eof token.
package lexer

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/rivergrove/stak/internal/diag"
	"github.com/rivergrove/stak/internal/keyword"
	"github.com/rivergrove/stak/internal/logging"
)

// Tokenize scans the full byte slice source, appending any diagnostics to
// sink and returning the resulting token stream. The returned error is
// reserved for host failure (spec §4.1 "Fatal errors are reserved for host
// allocation failure"); a misconfigured table is treated the same way since
// there is no way to make progress without one.
func Tokenize(source []byte, table *keyword.Table, sink *diag.Sink, log logging.Logger) ([]Token, error) {
	if table == nil {
		return nil, fmt.Errorf("lexer: nil keyword table")
	}

	lx := &lexer{src: source, line: 1, col: 1, table: table, sink: sink, log: log}

	// Empirically most tokens are 1-3 bytes plus a byte of trivia; this
	// just avoids repeated growth for ordinary-sized programs.
	estimated := len(source)/2 + 8
	tokens := make([]Token, 0, estimated)

	for {
		lx.skipTrivia()
		if lx.atEnd() {
			break
		}

		tok, ok := lx.next()
		if ok {
			tokens = append(tokens, tok)
			if log.TraceEnabled() {
				log.Trace("token", slog.String("kind", tok.Kind.String()),
					slog.Int("offset", tok.Offset), slog.Int("length", tok.Length))
			}
		}
	}

	eof := Token{Kind: Eof, Offset: lx.pos, Line: lx.line, Column: lx.col}
	tokens = append(tokens, eof)

	log.Debug("lexer: tokenize complete", slog.Int("tokens", len(tokens)), slog.Int("diagnostics", sink.Len()))
	return tokens, nil
}

type lexer struct {
	src   []byte
	pos   int
	line  int
	col   int
	table *keyword.Table
	sink  *diag.Sink
	log   logging.Logger
}

func (lx *lexer) atEnd() bool {
	return lx.pos >= len(lx.src)
}

func (lx *lexer) advanceByte() {
	if lx.pos >= len(lx.src) {
		return
	}
	b := lx.src[lx.pos]
	lx.pos++
	if b == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
}

func (lx *lexer) advance(n int) {
	for i := 0; i < n; i++ {
		lx.advanceByte()
	}
}

// skipTrivia skips whitespace, line comments, and block comments, repeating
// until a pass makes no further progress (spec §4.1 "Trivia").
func (lx *lexer) skipTrivia() {
	for {
		progressed := false

		for !lx.atEnd() && isSpace(lx.src[lx.pos]) {
			lx.advanceByte()
			progressed = true
		}

		if lx.hasPrefix("//") {
			for !lx.atEnd() && lx.src[lx.pos] != '\n' {
				lx.advanceByte()
			}
			progressed = true
			continue
		}

		if lx.hasPrefix("/*") {
			startOffset, startLine, startCol := lx.pos, lx.line, lx.col
			lx.advance(2)
			terminated := false
			for !lx.atEnd() {
				if lx.hasPrefix("*/") {
					lx.advance(2)
					terminated = true
					break
				}
				lx.advanceByte()
			}
			if !terminated {
				lx.sink.Emit(diag.Lexer, diag.LexUnterminatedComment, startOffset, 2, startLine, startCol,
					"unterminated block comment")
			}
			progressed = true
			continue
		}

		if !progressed {
			return
		}
	}
}

func (lx *lexer) hasPrefix(s string) bool {
	if lx.pos+len(s) > len(lx.src) {
		return false
	}
	return string(lx.src[lx.pos:lx.pos+len(s)]) == s
}

// next scans exactly one non-trivia token at the current position,
// following the dispatch order of spec §4.1.
func (lx *lexer) next() (Token, bool) {
	startOffset, startLine, startCol := lx.pos, lx.line, lx.col

	// 1. Longest match against ignored words — skip silently.
	if length, ok := matchLongest(lx.table.Ignored, lx.src, lx.pos); ok {
		lx.advance(length)
		return Token{}, false
	}

	// 2. Parens.
	if lx.src[lx.pos] == '(' {
		lx.advanceByte()
		return Token{Kind: LParen, Offset: startOffset, Length: 1, Line: startLine, Column: startCol}, true
	}
	if lx.src[lx.pos] == ')' {
		lx.advanceByte()
		return Token{Kind: RParen, Offset: startOffset, Length: 1, Line: startLine, Column: startCol}, true
	}

	// 3. Numbers.
	if end, ok := scanNumber(lx.src, lx.pos); ok {
		text := string(lx.src[lx.pos:end])
		value, err := strconv.ParseFloat(text, 64)
		length := end - lx.pos
		if err != nil {
			lx.sink.Emit(diag.Lexer, diag.LexBadNumber, startOffset, length, startLine, startCol,
				"malformed number literal %q", text)
			lx.advance(length)
			return Token{}, false
		}
		lx.advance(length)
		return Token{Kind: Number, Offset: startOffset, Length: length, Line: startLine, Column: startCol, Num: value}, true
	}

	// 4. Longest match against keywords, ties broken by longer surface.
	if entry, length, ok := matchLongestEntry(lx.table.Keywords, lx.src, lx.pos); ok {
		lx.advance(length)
		return Token{Kind: Keyword, Offset: startOffset, Length: length, Line: startLine, Column: startCol, Op: entry.Op}, true
	}

	// 5. Identifier.
	if isIdentStart(lx.src[lx.pos]) {
		end := lx.pos + 1
		for end < len(lx.src) && isIdentCont(lx.src[end]) {
			end++
		}
		length := end - lx.pos
		lx.advance(length)
		return Token{Kind: Ident, Offset: startOffset, Length: length, Line: startLine, Column: startCol}, true
	}

	// 6. Unknown symbol.
	lx.sink.Emit(diag.Lexer, diag.LexUnknownSymbol, startOffset, 1, startLine, startCol,
		"unknown symbol %q", string(lx.src[lx.pos]))
	lx.advanceByte()
	return Token{}, false
}

// scanNumber recognizes digits ('.' digits?)? ([eE] [+-]? digits)?, with at
// least one digit overall, per spec §4.1. The exponent is only consumed if
// it has trailing digits; otherwise the scan backs up to just before the
// [eE], so "1e" yields Number(1) followed by Ident("e").
func scanNumber(src []byte, pos int) (int, bool) {
	if pos >= len(src) {
		return pos, false
	}
	if !isDigit(src[pos]) && !(src[pos] == '.' && pos+1 < len(src) && isDigit(src[pos+1])) {
		return pos, false
	}

	cur := pos
	sawDigit := false
	for cur < len(src) && isDigit(src[cur]) {
		cur++
		sawDigit = true
	}
	if cur < len(src) && src[cur] == '.' {
		cur++
		for cur < len(src) && isDigit(src[cur]) {
			cur++
			sawDigit = true
		}
	}
	if !sawDigit {
		return pos, false
	}

	if cur < len(src) && (src[cur] == 'e' || src[cur] == 'E') {
		save := cur
		p := cur + 1
		if p < len(src) && (src[p] == '+' || src[p] == '-') {
			p++
		}
		digitsStart := p
		for p < len(src) && isDigit(src[p]) {
			p++
		}
		if p > digitsStart {
			cur = p
		} else {
			cur = save
		}
	}

	return cur, true
}

// matchLongest returns the length of the longest matching entry among
// entries, or (0, false) if none match. Used for the ignored-word table,
// where the matched entry's identity is not needed.
func matchLongest(entries []keyword.Entry, src []byte, pos int) (int, bool) {
	_, length, ok := matchLongestEntry(entries, src, pos)
	return length, ok
}

// matchLongestEntry scans every entry and returns the one with the longest
// match at pos, breaking ties by longer surface pattern length (spec §4.1
// "Longest match").
func matchLongestEntry(entries []keyword.Entry, src []byte, pos int) (keyword.Entry, int, bool) {
	var (
		best       keyword.Entry
		bestLength = -1
		found      bool
	)
	for _, e := range entries {
		length, ok := matchSurface(src, pos, e)
		if !ok {
			continue
		}
		if length > bestLength || (length == bestLength && len(e.Surface) > len(best.Surface)) {
			best, bestLength, found = e, length, true
		}
	}
	return best, bestLength, found
}

// matchSurface attempts to match entry's surface pattern at pos. A literal
// space in the pattern matches a non-empty run of space/tab/CR in the
// input (spec §4.1 "Config"); word-like patterns additionally require
// non-identifier neighbours on both sides.
func matchSurface(src []byte, pos int, e keyword.Entry) (int, bool) {
	segments := splitSurface(e.Surface)
	if len(segments) == 0 {
		return 0, false
	}

	cur := pos
	for i, seg := range segments {
		if i > 0 {
			wsStart := cur
			for cur < len(src) && isHSpace(src[cur]) {
				cur++
			}
			if cur == wsStart {
				return 0, false
			}
		}
		if cur+len(seg) > len(src) || string(src[cur:cur+len(seg)]) != seg {
			return 0, false
		}
		cur += len(seg)
	}

	length := cur - pos
	if e.WordLike {
		if pos > 0 && isIdentByte(src[pos-1]) {
			return 0, false
		}
		if cur < len(src) && isIdentByte(src[cur]) {
			return 0, false
		}
	}
	return length, true
}

// splitSurface splits a surface pattern on runs of horizontal whitespace,
// returning the literal segments in order.
func splitSurface(surface string) []string {
	var segments []string
	i := 0
	for i < len(surface) {
		for i < len(surface) && isHSpace(surface[i]) {
			i++
		}
		start := i
		for i < len(surface) && !isHSpace(surface[i]) {
			i++
		}
		if i > start {
			segments = append(segments, surface[start:i])
		}
	}
	return segments
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	default:
		return false
	}
}

func isHSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentStart(b byte) bool {
	return isLetter(b) || b == '_'
}

func isIdentCont(b byte) bool {
	return isLetter(b) || isDigit(b) || b == '_'
}

func isIdentByte(b byte) bool {
	return isIdentCont(b)
}
