package parser

import (
	"github.com/rivergrove/stak/internal/ast"
	"github.com/rivergrove/stak/internal/diag"
	"github.com/rivergrove/stak/internal/funcsig"
	"github.com/rivergrove/stak/internal/intern"
	"github.com/rivergrove/stak/internal/keyword"
	"github.com/rivergrove/stak/internal/lexer"
)

// parseStatement parses one statement (or top-level item) and fully
// consumes its own terminator, returning nil for a bare ';' or a
// diagnosed-and-recovered unexpected token.
func (p *parser) parseStatement() *ast.Node {
	switch p.curKind() {
	case lexer.Keyword:
		switch p.curOp() {
		case keyword.OpLcat: // bare ';' — empty statement
			p.advance()
			return nil
		case keyword.OpIf:
			return p.parseIf()
		case keyword.OpWhile:
			return p.parseWhile()
		case keyword.OpBreak:
			return p.parseBreakContinue(keyword.OpBreak, diag.BreakOutsideLoop)
		case keyword.OpContinue:
			return p.parseBreakContinue(keyword.OpContinue, diag.ContinueOutsideLoop)
		case keyword.OpReturn:
			return p.parseReturn()
		case keyword.OpFinish:
			return p.parseFinish()
		case keyword.OpPrint:
			return p.parsePrintStatement()
		case keyword.OpVisStart:
			node := p.parseBlock()
			p.consumeOptionalSemi()
			return node
		case keyword.OpFuncDecl, keyword.OpProcDecl:
			return p.parseFuncDecl()
		default:
			return p.parseExprStatement()
		}
	case lexer.Ident, lexer.Number, lexer.LParen:
		return p.parseExprStatement()
	default:
		p.errorExpected("a statement")
		p.synchronize()
		return nil
	}
}

func (p *parser) consumeOptionalSemi() {
	if p.isKeyword(keyword.OpLcat) {
		p.advance()
	}
}

func (p *parser) consumeRequiredSemi() {
	if p.isKeyword(keyword.OpLcat) {
		p.advance()
		return
	}
	p.diagAt(p.cur(), diag.MissingSemi, "missing ';'")
}

// parseBlock parses `{ stmt_list }`, pushing a scope for its duration
// (draining any pending parameter names on entry) and returning
// Function(OP_VIS_START, None, stmt_list).
func (p *parser) parseBlock() *ast.Node {
	if !p.expectKeyword(keyword.OpVisStart, "'{'") {
		return ast.Func1(keyword.OpVisStart, nil)
	}
	p.enterScope()
	list := p.parseStmtList(func() bool { return p.isKeyword(keyword.OpRBrace) })
	p.leaveScope()
	if !p.expectKeyword(keyword.OpRBrace, "'}'") {
		p.synchronize()
	}
	return ast.Func1(keyword.OpVisStart, list)
}

func (p *parser) parseCondition() *ast.Node {
	hasParen := p.curKind() == lexer.LParen
	if hasParen {
		p.advance()
	}
	cond := p.parseAssignment(true)
	if hasParen {
		p.expect(lexer.RParen, "')'")
	}
	return cond
}

// parseIf implements `if (cond) block` / `if cond block`, normalising the
// test to OP_EQ(cond, 1.0) per spec §4.2.
func (p *parser) parseIf() *ast.Node {
	p.advance() // 'if'
	cond := p.parseCondition()
	body := p.parseBlock()
	p.consumeOptionalSemi()
	test := ast.Func2(keyword.OpEq, cond, ast.Const(1.0))
	return ast.Func2(keyword.OpIf, test, body)
}

func (p *parser) parseWhile() *ast.Node {
	p.advance() // 'while'
	cond := p.parseCondition()
	p.whileDepth++
	body := p.parseBlock()
	p.whileDepth--
	p.consumeOptionalSemi()
	return ast.Func2(keyword.OpWhile, cond, body)
}

func (p *parser) parseBreakContinue(op keyword.Opcode, outsideLoopCode diag.Code) *ast.Node {
	tok := p.advance()
	if p.whileDepth == 0 {
		p.diagAt(tok, outsideLoopCode, "%s outside loop", tok.Kind.String())
	}
	if !p.inFunctionBody {
		p.diagAt(tok, diag.TopLevelStmt, "control-flow statement at top level")
	}
	p.consumeRequiredSemi()
	return ast.FuncOnly(op)
}

func (p *parser) parseReturn() *ast.Node {
	tok := p.advance()
	if !p.inFunctionBody {
		p.diagAt(tok, diag.TopLevelStmt, "return at top level")
	} else if p.curDeclKind == funcsig.Proc {
		p.diagAt(tok, diag.ReturnInProc, "return inside proc")
	}

	if p.isKeyword(keyword.OpLcat) {
		p.diagAt(tok, diag.MissingReturnExpr, "return with no expression")
		p.advance()
		return ast.Func1(keyword.OpReturn, nil)
	}

	expr := p.parseAssignment(true)
	p.consumeRequiredSemi()
	return ast.Func1(keyword.OpReturn, expr)
}

func (p *parser) parseFinish() *ast.Node {
	tok := p.advance()
	if !p.inFunctionBody {
		p.diagAt(tok, diag.TopLevelStmt, "finish at top level")
	} else if p.curDeclKind == funcsig.Func {
		p.diagAt(tok, diag.FinishInFunc, "finish inside func")
	}
	p.consumeRequiredSemi()
	return ast.FuncOnly(keyword.OpFinish)
}

// parsePrintStatement implements `print (expr)` / `print expr` with
// optional parentheses.
func (p *parser) parsePrintStatement() *ast.Node {
	p.advance() // 'print'
	hasParen := p.curKind() == lexer.LParen
	if hasParen {
		p.advance()
	}
	expr := p.parseAssignment(true)
	if hasParen {
		p.expect(lexer.RParen, "')'")
	}
	p.consumeRequiredSemi()
	return ast.Func1(keyword.OpPrint, expr)
}

func (p *parser) parseExprStatement() *ast.Node {
	expr := p.parseAssignment(false)
	p.consumeRequiredSemi()
	return expr
}

// parseFuncDecl implements a func/proc declaration. Nested declarations
// (inFunctionBody already true) are still fully parsed, so the token stream
// stays in sync, but are flagged NESTED_DECL.
func (p *parser) parseFuncDecl() *ast.Node {
	declTok := p.advance()
	declOp := declTok.Op
	if p.inFunctionBody {
		p.diagAt(declTok, diag.NestedDecl, "nested function/proc declaration")
	}

	nameTok, ok := p.expect(lexer.Ident, "a function name")
	if !ok {
		p.synchronize()
		return ast.Func2(declOp, ast.Func2(keyword.OpFuncInfo, nil, nil), ast.Func1(keyword.OpVisStart, nil))
	}
	nameSym := p.internTok(nameTok)

	p.expect(lexer.LParen, "'('")
	paramSyms := p.parseParamList()
	p.expect(lexer.RParen, "')'")

	prevDeclKind, prevWhileDepth, prevInBody := p.curDeclKind, p.whileDepth, p.inFunctionBody
	if declOp == keyword.OpProcDecl {
		p.curDeclKind = funcsig.Proc
	} else {
		p.curDeclKind = funcsig.Func
	}
	p.whileDepth = 0
	p.inFunctionBody = true
	p.pendingParams = paramSyms
	p.hasPendingParams = true

	body := p.parseBlock()

	p.curDeclKind, p.whileDepth, p.inFunctionBody = prevDeclKind, prevWhileDepth, prevInBody

	paramNodes := make([]*ast.Node, len(paramSyms))
	for i, sym := range paramSyms {
		paramNodes[i] = ast.Var(sym)
	}
	info := ast.Func2(keyword.OpFuncInfo, buildSpine(keyword.OpEnumSep, paramNodes), ast.Var(nameSym))
	p.consumeOptionalSemi()
	return ast.Func2(declOp, info, body)
}

// parseParamList parses a comma-separated identifier list inside the
// parentheses of a func/proc declaration, interning each name. The caller
// hands the result to pendingParams so the names enter scope only once the
// body's opening '{' is actually reached.
func (p *parser) parseParamList() []intern.ID {
	if p.curKind() == lexer.RParen {
		return nil
	}
	var params []intern.ID
	for {
		tok, ok := p.expect(lexer.Ident, "a parameter name")
		if !ok {
			break
		}
		params = append(params, p.internTok(tok))
		if p.isKeyword(keyword.OpEnumSep) {
			p.advance()
			continue
		}
		break
	}
	return params
}
