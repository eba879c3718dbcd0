// Package parser implements the two-pass recursive-descent parser of
// spec §4.2: pass 1 harvests function/proc signatures with a single linear
// scan of the token stream, pass 2 walks the tokens again to build the
// binary AST, resolving identifiers against a shadow-stack scope model as
// it goes.
package parser

import (
	"log/slog"

	"github.com/rivergrove/stak/internal/ast"
	"github.com/rivergrove/stak/internal/diag"
	"github.com/rivergrove/stak/internal/funcsig"
	"github.com/rivergrove/stak/internal/intern"
	"github.com/rivergrove/stak/internal/keyword"
	"github.com/rivergrove/stak/internal/lexer"
	"github.com/rivergrove/stak/internal/logging"
)

// Parse mutates tree.Root and tree.Size, populates funcTable, and appends
// diagnostics to sink. It never fails structurally: on an unexpected token
// it synchronises to the next statement boundary and continues.
func Parse(tree *ast.Tree, tokens []lexer.Token, source []byte, funcTable *funcsig.Table, sink *diag.Sink, log logging.Logger) {
	harvestSignatures(tokens, source, tree.Interner, funcTable, sink, log)

	p := &parser{
		tokens:     tokens,
		source:     source,
		tree:       tree,
		funcTable:  funcTable,
		sink:       sink,
		log:        log,
		scopeNames: make(map[intern.ID]int),
	}

	p.enterScope()
	list := p.parseStmtList(func() bool { return p.curKind() == lexer.Eof })
	p.leaveScope()

	tree.Root = ast.Func1(keyword.OpVisStart, list)
	tree.Recount()

	log.Debug("parser: pass 2 complete", slog.Int("nodes", tree.Size), slog.Int("diagnostics", sink.Len()))
}

type shadowRecord struct {
	name     intern.ID
	hadPrev  bool
	prevDepth int
}

type parser struct {
	tokens []lexer.Token
	source []byte
	pos    int

	tree      *ast.Tree
	funcTable *funcsig.Table
	sink      *diag.Sink
	log       logging.Logger

	// Shadow-stack scoping (spec §4.2 "Scoping algorithm" / §9).
	scopeNames   map[intern.ID]int
	shadow       []shadowRecord
	scopeMarkers []int
	depth        int

	// Function-body context for return/finish/break/continue validation.
	inFunctionBody bool
	curDeclKind    funcsig.DeclKind
	whileDepth     int

	// Drained into scopeNames by the first enterScope call inside a
	// function/proc body (spec §9 "pending parameters buffer").
	pendingParams    []intern.ID
	hasPendingParams bool
}

// ---- token cursor -------------------------------------------------------

func (p *parser) cur() lexer.Token {
	return p.tokens[p.pos]
}

func (p *parser) at(offset int) lexer.Token {
	idx := p.pos + offset
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[idx]
}

func (p *parser) curKind() lexer.Kind { return p.cur().Kind }
func (p *parser) curOp() keyword.Opcode { return p.cur().Op }

func (p *parser) isKeyword(op keyword.Opcode) bool {
	return p.curKind() == lexer.Keyword && p.curOp() == op
}

func (p *parser) advance() lexer.Token {
	tok := p.cur()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

// expect consumes the current token if its kind matches, else emits
// EXPECTED_TOKEN without consuming.
func (p *parser) expect(kind lexer.Kind, what string) (lexer.Token, bool) {
	if p.curKind() == kind {
		return p.advance(), true
	}
	p.errorExpected(what)
	return p.cur(), false
}

// expectKeyword consumes the current token if it is the keyword op, else
// emits EXPECTED_TOKEN without consuming.
func (p *parser) expectKeyword(op keyword.Opcode, what string) bool {
	if p.isKeyword(op) {
		p.advance()
		return true
	}
	p.errorExpected(what)
	return false
}

func (p *parser) errorExpected(what string) {
	tok := p.cur()
	p.diagAt(tok, diag.ExpectedToken, "expected %s, got %s", what, describeToken(tok, p.source))
}

func describeToken(tok lexer.Token, source []byte) string {
	if tok.Kind == lexer.Eof {
		return "end of input"
	}
	return string(source[tok.Offset:tok.End()])
}

// synchronize recovers from an unexpected token by advancing to the next
// ';' (consumed) or '}' (left for the caller to consume), per spec §4.2
// "Recovery".
func (p *parser) synchronize() {
	for {
		if p.curKind() == lexer.Eof {
			return
		}
		if p.isKeyword(keyword.OpLcat) {
			p.advance()
			return
		}
		if p.isKeyword(keyword.OpRBrace) {
			return
		}
		p.advance()
	}
}

// ---- identifiers & diagnostics -------------------------------------------

func (p *parser) internTok(tok lexer.Token) intern.ID {
	return p.tree.Interner.GetOrAdd(p.source[tok.Offset:tok.End()])
}

func (p *parser) textOf(tok lexer.Token) string {
	return string(p.source[tok.Offset:tok.End()])
}

func (p *parser) diagAt(tok lexer.Token, code diag.Code, message string, args ...any) {
	p.sink.Emit(diag.Parser, code, tok.Offset, tok.Length, tok.Line, tok.Column, message, args...)
}

// ---- scoping --------------------------------------------------------------

func (p *parser) enterScope() {
	p.depth++
	p.scopeMarkers = append(p.scopeMarkers, len(p.shadow))
	if p.hasPendingParams {
		for _, sym := range p.pendingParams {
			p.defineVar(sym)
		}
		p.hasPendingParams = false
		p.pendingParams = nil
	}
}

func (p *parser) leaveScope() {
	marker := p.scopeMarkers[len(p.scopeMarkers)-1]
	p.scopeMarkers = p.scopeMarkers[:len(p.scopeMarkers)-1]
	for len(p.shadow) > marker {
		rec := p.shadow[len(p.shadow)-1]
		p.shadow = p.shadow[:len(p.shadow)-1]
		if rec.hadPrev {
			p.scopeNames[rec.name] = rec.prevDepth
		} else {
			delete(p.scopeNames, rec.name)
		}
	}
	p.depth--
}

func (p *parser) defineVar(name intern.ID) {
	prevDepth, hadPrev := p.scopeNames[name]
	p.shadow = append(p.shadow, shadowRecord{name: name, hadPrev: hadPrev, prevDepth: prevDepth})
	p.scopeNames[name] = p.depth
}

func (p *parser) lookupVar(name intern.ID) bool {
	_, ok := p.scopeNames[name]
	return ok
}

// ---- statement lists --------------------------------------------------------

func (p *parser) parseStmtList(stop func() bool) *ast.Node {
	var items []*ast.Node
	for !stop() && p.curKind() != lexer.Eof {
		start := p.pos
		node := p.parseStatement()
		if node != nil {
			items = append(items, node)
		}
		if p.pos == start {
			// Recovery stopped on a token no statement can start with (a
			// stray '}' outside any block); skip it so parsing continues.
			p.advance()
		}
	}
	return buildSpine(keyword.OpLcat, items)
}

// buildSpine builds the right-leaning list of spec §3 from items, in
// order: Function(op, items[0], Function(op, items[1], ... None)).
func buildSpine(op keyword.Opcode, items []*ast.Node) *ast.Node {
	var tail *ast.Node
	for i := len(items) - 1; i >= 0; i-- {
		tail = ast.Func2(op, items[i], tail)
	}
	return tail
}

// countList counts the elements of a right-leaning spine built by
// buildSpine.
func countList(n *ast.Node) int {
	c := 0
	for n != nil {
		c++
		n = n.Right
	}
	return c
}

func logAttrInt(key string, value int) slog.Attr {
	return slog.Int(key, value)
}

func emitTok(sink *diag.Sink, tok lexer.Token, code diag.Code, message string, args ...any) {
	sink.Emit(diag.Parser, code, tok.Offset, tok.Length, tok.Line, tok.Column, message, args...)
}
