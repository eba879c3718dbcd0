package parser

import (
	"github.com/rivergrove/stak/internal/diag"
	"github.com/rivergrove/stak/internal/funcsig"
	"github.com/rivergrove/stak/internal/intern"
	"github.com/rivergrove/stak/internal/keyword"
	"github.com/rivergrove/stak/internal/lexer"
	"github.com/rivergrove/stak/internal/logging"
)

// harvestSignatures is pass 1 of spec §4.2: a single left-to-right scan of
// the whole token stream that records every top-level function/proc
// signature, tolerating and recording errors along the way so that pass 2
// can still use whatever signatures were collected even when pass 1 itself
// produced diagnostics.
func harvestSignatures(tokens []lexer.Token, source []byte, interner *intern.Pool, table *funcsig.Table, sink *diag.Sink, log logging.Logger) {
	i := 0
	for i < len(tokens) && tokens[i].Kind != lexer.Eof {
		tok := tokens[i]
		if tok.Kind == lexer.Keyword && (tok.Op == keyword.OpFuncDecl || tok.Op == keyword.OpProcDecl) {
			i = harvestOne(tokens, i, source, interner, table, sink)
			continue
		}
		i++
	}
	log.Debug("parser: pass 1 complete", logAttrInt("functions", table.Len()))
}

func harvestOne(tokens []lexer.Token, i int, source []byte, interner *intern.Pool, table *funcsig.Table, sink *diag.Sink) int {
	declTok := tokens[i]
	i++

	if i >= len(tokens) || tokens[i].Kind != lexer.Ident {
		emitTok(sink, tokens[minInt(i, len(tokens)-1)], diag.ExpectedToken, "expected function name after %q", declTok.Kind.String())
		return i
	}
	nameTok := tokens[i]
	i++
	nameSym := interner.GetOrAdd(source[nameTok.Offset:nameTok.End()])

	if i < len(tokens) && tokens[i].Kind == lexer.LParen {
		i++
		argc := 0
		if i < len(tokens) && tokens[i].Kind == lexer.RParen {
			i++
		} else {
			for {
				if i >= len(tokens) || tokens[i].Kind != lexer.Ident {
					emitTok(sink, tokens[minInt(i, len(tokens)-1)], diag.ExpectedToken, "expected parameter name")
					break
				}
				i++
				argc++
				if i < len(tokens) && tokens[i].Kind == lexer.Keyword && tokens[i].Op == keyword.OpEnumSep {
					i++
					continue
				}
				break
			}
			if i < len(tokens) && tokens[i].Kind == lexer.RParen {
				i++
			} else {
				emitTok(sink, tokens[minInt(i, len(tokens)-1)], diag.ExpectedToken, "expected ')' in parameter list")
			}
		}

		kind := funcsig.Func
		if declTok.Op == keyword.OpProcDecl {
			kind = funcsig.Proc
		}
		if !table.Define(nameSym, funcsig.Signature{Kind: kind, Arity: argc}) {
			emitTok(sink, nameTok, diag.RedefFunction, "function %q redefined", string(source[nameTok.Offset:nameTok.End()]))
		}
	} else {
		emitTok(sink, tokens[minInt(i, len(tokens)-1)], diag.ExpectedToken, "expected '(' after function name")
	}

	// Skip the body by balancing VIS_START/RBrace tokens.
	if i < len(tokens) && tokens[i].Kind == lexer.Keyword && tokens[i].Op == keyword.OpVisStart {
		bodyStart := tokens[i]
		depth := 0
		for i < len(tokens) {
			tk := tokens[i]
			if tk.Kind == lexer.Keyword && tk.Op == keyword.OpVisStart {
				depth++
				i++
				continue
			}
			if tk.Kind == lexer.Keyword && tk.Op == keyword.OpRBrace {
				depth--
				i++
				if depth == 0 {
					break
				}
				continue
			}
			if tk.Kind == lexer.Eof {
				emitTok(sink, bodyStart, diag.UnclosedBrace, "unclosed '{'")
				break
			}
			i++
		}
	} else {
		emitTok(sink, tokens[minInt(i, len(tokens)-1)], diag.ExpectedToken, "expected '{' to open function body")
	}

	if i < len(tokens) && tokens[i].Kind == lexer.Keyword && tokens[i].Op == keyword.OpLcat {
		i++
	}
	return i
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
