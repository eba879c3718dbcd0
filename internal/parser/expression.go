package parser

import (
	"github.com/rivergrove/stak/internal/ast"
	"github.com/rivergrove/stak/internal/diag"
	"github.com/rivergrove/stak/internal/funcsig"
	"github.com/rivergrove/stak/internal/keyword"
	"github.com/rivergrove/stak/internal/lexer"
)

// parseAssignment is the top of the precedence chain. valueCtx reports
// whether the result is required to produce a value (so a bare proc call
// here is flagged VOID_IN_EXPR); a top-level expression statement passes
// false.
//
// Assignment targets are recognised with a single token of lookahead
// (IDENT '=') before falling through to the generic chain, so that a fresh
// name being assigned for the first time is never treated as a read of an
// undefined variable.
func (p *parser) parseAssignment(valueCtx bool) *ast.Node {
	if p.curKind() == lexer.Ident && p.at(1).Kind == lexer.Keyword && p.at(1).Op == keyword.OpAssign {
		nameTok := p.advance()
		p.advance() // '='
		sym := p.internTok(nameTok)
		if !p.lookupVar(sym) {
			p.defineVar(sym)
		}
		rhs := p.parseAssignment(true)
		return ast.Func2(keyword.OpAssign, ast.Var(sym), rhs)
	}

	lhs := p.parseLogicalOr(valueCtx)

	if p.isKeyword(keyword.OpAssign) {
		tok := p.advance()
		if lhs == nil || lhs.Kind != ast.Ident {
			p.diagAt(tok, diag.BadAssignTarget, "left side of '=' is not an assignable name")
			rhs := p.parseAssignment(true)
			return ast.Func2(keyword.OpAssign, lhs, rhs)
		}
		rhs := p.parseAssignment(true)
		return ast.Func2(keyword.OpAssign, lhs, rhs)
	}

	return lhs
}

func (p *parser) parseLogicalOr(valueCtx bool) *ast.Node {
	left := p.parseLogicalAnd(valueCtx)
	for p.isKeyword(keyword.OpOr) {
		p.advance()
		right := p.parseLogicalAnd(true)
		left = ast.Func2(keyword.OpOr, left, right)
	}
	return left
}

func (p *parser) parseLogicalAnd(valueCtx bool) *ast.Node {
	left := p.parseEquality(valueCtx)
	for p.isKeyword(keyword.OpAnd) {
		p.advance()
		right := p.parseEquality(true)
		left = ast.Func2(keyword.OpAnd, left, right)
	}
	return left
}

func (p *parser) parseEquality(valueCtx bool) *ast.Node {
	left := p.parseRelational(valueCtx)
	for p.isKeyword(keyword.OpEq) || p.isKeyword(keyword.OpNeq) {
		op := p.advance().Op
		right := p.parseRelational(true)
		left = ast.Func2(op, left, right)
	}
	return left
}

func (p *parser) parseRelational(valueCtx bool) *ast.Node {
	left := p.parseAdditive(valueCtx)
	for p.isKeyword(keyword.OpLe) || p.isKeyword(keyword.OpGe) || p.isKeyword(keyword.OpLt) || p.isKeyword(keyword.OpGt) {
		op := p.advance().Op
		right := p.parseAdditive(true)
		left = ast.Func2(op, left, right)
	}
	return left
}

func (p *parser) parseAdditive(valueCtx bool) *ast.Node {
	left := p.parseMultiplicative(valueCtx)
	for p.isKeyword(keyword.OpAdd) || p.isKeyword(keyword.OpSub) {
		op := p.advance().Op
		right := p.parseMultiplicative(true)
		left = ast.Func2(op, left, right)
	}
	return left
}

func (p *parser) parseMultiplicative(valueCtx bool) *ast.Node {
	left := p.parseUnary(valueCtx)
	for p.isKeyword(keyword.OpMul) || p.isKeyword(keyword.OpDiv) {
		op := p.advance().Op
		right := p.parseUnary(true)
		left = ast.Func2(op, left, right)
	}
	return left
}

// parseUnary desugars a leading '+' to identity and a leading '-' to
// 0 - operand, so the backend never needs a unary-minus opcode.
func (p *parser) parseUnary(valueCtx bool) *ast.Node {
	if p.isKeyword(keyword.OpSub) {
		p.advance()
		operand := p.parseUnary(true)
		return ast.Func2(keyword.OpSub, ast.Const(0), operand)
	}
	if p.isKeyword(keyword.OpAdd) {
		p.advance()
		return p.parseUnary(true)
	}
	return p.parsePrimary(valueCtx)
}

func (p *parser) parsePrimary(valueCtx bool) *ast.Node {
	tok := p.cur()
	switch {
	case tok.Kind == lexer.Number:
		p.advance()
		return ast.Const(tok.Num)

	case tok.Kind == lexer.LParen:
		p.advance()
		inner := p.parseAssignment(true)
		p.expect(lexer.RParen, "')'")
		return inner

	case tok.Kind == lexer.Keyword && tok.Op == keyword.OpCall:
		p.advance()
		nameTok, ok := p.expect(lexer.Ident, "a function name")
		if !ok {
			return nil
		}
		return p.parseUserCall(nameTok, valueCtx)

	case tok.Kind == lexer.Keyword && tok.Op == keyword.OpPow:
		p.advance()
		p.expect(lexer.LParen, "'('")
		a := p.parseAssignment(true)
		p.expectKeyword(keyword.OpEnumSep, "','")
		b := p.parseAssignment(true)
		p.expect(lexer.RParen, "')'")
		return ast.Func2(keyword.OpPow, a, b)

	case tok.Kind == lexer.Keyword && tok.Op == keyword.OpLog:
		p.advance()
		p.expect(lexer.LParen, "'('")
		a := p.parseAssignment(true)
		p.expectKeyword(keyword.OpEnumSep, "','")
		b := p.parseAssignment(true)
		p.expect(lexer.RParen, "')'")
		return ast.Func2(keyword.OpLog, a, b)

	case tok.Kind == lexer.Keyword && tok.Op == keyword.OpPrint:
		p.advance()
		hasParen := p.curKind() == lexer.LParen
		if hasParen {
			p.advance()
		}
		arg := p.parseAssignment(true)
		if hasParen {
			p.expect(lexer.RParen, "')'")
		}
		return ast.Func1(keyword.OpPrint, arg)

	case tok.Kind == lexer.Keyword && tok.Op == keyword.OpInput:
		p.advance()
		if p.curKind() == lexer.LParen {
			p.advance()
			p.expect(lexer.RParen, "')'")
		}
		return ast.FuncOnly(keyword.OpInput)

	case tok.Kind == lexer.Ident:
		nameTok := p.advance()
		if p.curKind() == lexer.LParen {
			return p.parseUserCall(nameTok, valueCtx)
		}
		sym := p.internTok(nameTok)
		if !p.lookupVar(sym) {
			p.diagAt(nameTok, diag.UndefVariable, "undefined variable %q", p.textOf(nameTok))
		}
		return ast.Var(sym)

	default:
		p.errorExpected("an expression")
		p.synchronize()
		return nil
	}
}

// parseUserCall parses the '(' arg_list ')' suffix of a call to nameTok,
// whether reached via the explicit 'call NAME(...)' form or a bare
// 'NAME(...)' expression. valueCtx flags a proc invocation used for its
// value as VOID_IN_EXPR.
func (p *parser) parseUserCall(nameTok lexer.Token, valueCtx bool) *ast.Node {
	sym := p.internTok(nameTok)
	p.expect(lexer.LParen, "'('")
	args := p.parseArgList()
	p.expect(lexer.RParen, "')'")

	argc := countList(args)
	sig, ok := p.funcTable.Lookup(sym)
	if !ok {
		p.diagAt(nameTok, diag.UndefFunction, "call to undefined function %q", p.textOf(nameTok))
	} else {
		if sig.Arity != argc {
			p.diagAt(nameTok, diag.ArgcMismatch, "%q expects %d argument(s), got %d", p.textOf(nameTok), sig.Arity, argc)
		}
		if valueCtx && sig.Kind == funcsig.Proc {
			p.diagAt(nameTok, diag.VoidInExpr, "proc %q used as a value", p.textOf(nameTok))
		}
	}

	info := ast.Func2(keyword.OpFuncInfo, args, ast.Var(sym))
	return ast.Func2(keyword.OpCall, info, nil)
}

func (p *parser) parseArgList() *ast.Node {
	if p.curKind() == lexer.RParen {
		return nil
	}
	var items []*ast.Node
	for {
		items = append(items, p.parseAssignment(true))
		if p.isKeyword(keyword.OpEnumSep) {
			p.advance()
			continue
		}
		break
	}
	return buildSpine(keyword.OpEnumSep, items)
}
