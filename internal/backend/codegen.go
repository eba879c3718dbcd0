package backend

import (
	"fmt"
	"log/slog"

	"github.com/rivergrove/stak/internal/ast"
	"github.com/rivergrove/stak/internal/funcsig"
	"github.com/rivergrove/stak/internal/intern"
	"github.com/rivergrove/stak/internal/keyword"
	"github.com/rivergrove/stak/internal/logging"
)

// Generate walks tree (already free of diagnostics) and emits the program's
// assembly text. It returns an error only for faults the parser should
// already have rejected: a call to an undeclared function (the "internal"
// fault class of spec §7) or a break/continue outside any loop.
func Generate(tree *ast.Tree, funcTable *funcsig.Table, log logging.Logger) (string, error) {
	g := &generator{
		buf:       &buffer{},
		interner:  tree.Interner,
		funcTable: funcTable,
		log:       log,
	}

	decls := topLevelDecls(tree.Root)
	topStmts := topLevelStmts(tree.Root)
	entry := entryName(decls, tree.Interner)

	// A program with no declarations at all (spec §8 scenario 1, "1+2" as
	// an expression-statement program) still needs its top-level code to
	// run "within the entry function body", so any non-declaration
	// top-level statements are wrapped into a synthesized entry the same
	// way a declared function's body is: its own scope frame, its own
	// label, called from the prelude. It runs before the named entry (if
	// any) so declarations coexisting with top-level statements both fire.
	var implicitLabel string
	if len(topStmts) > 0 {
		implicitLabel = "main"
		if len(decls) > 0 {
			implicitLabel = "toplevel_init"
		}
	}

	g.buf.push(0)
	g.buf.popr(RBX)
	if implicitLabel != "" {
		g.buf.call(implicitLabel)
	}
	if entry != "" {
		g.buf.call(entry)
	}
	g.buf.hlt()

	if implicitLabel != "" {
		sym := tree.Interner.GetOrAdd([]byte(implicitLabel))
		implicit := declaration{
			kind: keyword.OpFuncDecl,
			name: sym,
			body: ast.Func1(keyword.OpVisStart, chainLcat(topStmts)),
		}
		if err := g.emitFunction(implicit); err != nil {
			return "", err
		}
	}

	for _, d := range decls {
		if err := g.emitFunction(d); err != nil {
			return "", err
		}
	}

	log.Debug("backend: codegen complete", slog.Int("functions", len(decls)), slog.Int("instructions", len(g.buf.lines)))
	return g.buf.String(), nil
}

type declaration struct {
	kind   keyword.Opcode // OpFuncDecl or OpProcDecl
	name   intern.ID
	params []intern.ID
	body   *ast.Node
}

// topLevelDecls scans the OP_LCAT spine under the program's outermost
// OP_VIS_START for function/proc declarations, in declared order.
func topLevelDecls(root *ast.Node) []declaration {
	if root == nil || root.Kind != ast.Function || root.Op != keyword.OpVisStart {
		return nil
	}
	var decls []declaration
	for n := root.Right; n != nil; n = n.Right {
		stmt := n.Left
		if stmt == nil || stmt.Kind != ast.Function {
			continue
		}
		if stmt.Op != keyword.OpFuncDecl && stmt.Op != keyword.OpProcDecl {
			continue
		}
		info := stmt.Left
		if info == nil {
			continue
		}
		decls = append(decls, declaration{
			kind:   stmt.Op,
			name:   info.Right.Sym,
			params: paramSyms(info.Left),
			body:   stmt.Right,
		})
	}
	return decls
}

// topLevelStmts scans the same OP_LCAT spine as topLevelDecls for everything
// that is NOT a function/proc declaration (and not a bare ';' empty
// statement, which parses to nil) — the top-level script body, in source
// order.
func topLevelStmts(root *ast.Node) []*ast.Node {
	if root == nil || root.Kind != ast.Function || root.Op != keyword.OpVisStart {
		return nil
	}
	var stmts []*ast.Node
	for n := root.Right; n != nil; n = n.Right {
		stmt := n.Left
		if stmt == nil {
			continue
		}
		if stmt.Kind == ast.Function && (stmt.Op == keyword.OpFuncDecl || stmt.Op == keyword.OpProcDecl) {
			continue
		}
		stmts = append(stmts, stmt)
	}
	return stmts
}

// chainLcat rebuilds a right-leaning OP_LCAT statement spine from stmts,
// matching the shape the parser itself builds for a block's statement list.
func chainLcat(stmts []*ast.Node) *ast.Node {
	var tail *ast.Node
	for i := len(stmts) - 1; i >= 0; i-- {
		tail = ast.Func2(keyword.OpLcat, stmts[i], tail)
	}
	return tail
}

func paramSyms(n *ast.Node) []intern.ID {
	var ids []intern.ID
	for cur := n; cur != nil; cur = cur.Right {
		if cur.Left != nil {
			ids = append(ids, cur.Left.Sym)
		}
	}
	return ids
}

// entryName picks ":main" when a function/proc named "main" was declared,
// else the first declaration, matching spec §6 "Assembly output".
func entryName(decls []declaration, interner *intern.Pool) string {
	if len(decls) == 0 {
		return ""
	}
	for _, d := range decls {
		if interner.Get(d.name) == "main" {
			return "main"
		}
	}
	return interner.Get(decls[0].name)
}

type generator struct {
	buf       *buffer
	interner  *intern.Pool
	funcTable *funcsig.Table
	log       logging.Logger

	scope      *funcScope
	isFunc     bool
	labelCount int
	loops      []loopTarget
}

// loopTarget records where break/continue should jump to, plus the
// open-frame depth at loop entry so either jump can unwind exactly the
// scopes opened since then (mirroring emitReturn's unwind-to-entry, but
// relative to the loop instead of the function).
type loopTarget struct {
	headLabel  string
	endLabel   string
	frameDepth int
}

func (g *generator) nextLabel(prefix string) string {
	g.labelCount++
	return fmt.Sprintf("%s_%d", prefix, g.labelCount)
}

// emitFunction emits one declaration's label, prelude, body, and epilogue
// (spec §4.3 "Pass 2").
func (g *generator) emitFunction(d declaration) error {
	g.buf.label(g.interner.Get(d.name))

	g.scope = newFuncScope()
	g.isFunc = d.kind == keyword.OpFuncDecl

	g.buf.pushr(RBX)
	g.buf.popr(RDX)

	// The function's own '{' ... '}' body is one OP_VIS_START block;
	// its scope frame also holds the parameters, so the PUSHR RBX this
	// frame performs is the same one that return/finish unwind.
	g.scope.push()
	g.buf.pushr(RBX)

	// Parameters are popped in reverse into freshly-allocated slots
	// (spec §4.3 "Calling convention").
	for i := len(d.params) - 1; i >= 0; i-- {
		off := g.scope.allocate(d.params[i])
		g.storeParam(off)
	}

	if err := g.emitStmtList(d.body.Right); err != nil {
		return err
	}

	if g.isFunc {
		g.buf.push(0)
		g.buf.popr(RAX)
	}
	g.buf.popr(RBX)
	g.scope.pop()
	g.buf.ret()
	return nil
}

// storeParam pops one argument off the value stack into the slot at off
// relative to RDX.
func (g *generator) storeParam(off int) {
	g.addressOf(off)
	g.buf.popm(RCX)
}

// addressOf computes RDX+off into RCX, staging the add through the value
// stack like every other arithmetic op (spec §4.3 "Slot allocator").
func (g *generator) addressOf(off int) {
	g.buf.pushr(RDX)
	g.buf.push(float64(off))
	g.buf.add()
	g.buf.popr(RCX)
}

// emitBlock handles an OP_VIS_START node: push a scope, emit its
// statement list, pop the scope (spec §4.3 "Scope discipline").
func (g *generator) emitBlock(n *ast.Node) error {
	g.scope.push()
	g.buf.pushr(RBX)
	err := g.emitStmtList(n.Right)
	g.buf.popr(RBX)
	g.scope.pop()
	return err
}

func (g *generator) emitStmtList(n *ast.Node) error {
	for cur := n; cur != nil; cur = cur.Right {
		if err := g.emitStatement(cur.Left); err != nil {
			return err
		}
	}
	return nil
}

// emitStatement dispatches on the statement's shape. The default case
// (anything that is actually an expression — call, assignment, bare
// value) emits the expression and discards its residual value with POP,
// which is how a bare print/call-as-statement falls out of the expression
// grammar without any special-casing (spec §4.3 "Statement emission").
func (g *generator) emitStatement(n *ast.Node) error {
	if n == nil {
		return nil
	}
	if n.Kind != ast.Function {
		if err := g.emitExpr(n); err != nil {
			return err
		}
		g.buf.pop()
		return nil
	}

	switch n.Op {
	case keyword.OpVisStart:
		return g.emitBlock(n)
	case keyword.OpIf:
		return g.emitIf(n)
	case keyword.OpWhile:
		return g.emitWhile(n)
	case keyword.OpReturn:
		return g.emitReturn(n)
	case keyword.OpFinish:
		return g.emitFinish()
	case keyword.OpBreak, keyword.OpContinue:
		return g.emitBreakContinue(n.Op)
	case keyword.OpFuncDecl, keyword.OpProcDecl:
		// Nested declarations are diagnosed by the parser; the backend
		// never reaches this pass, so there is nothing to emit here.
		return nil
	default:
		if err := g.emitExpr(n); err != nil {
			return err
		}
		g.buf.pop()
		return nil
	}
}

var comparisonOps = map[keyword.Opcode]bool{
	keyword.OpEq: true, keyword.OpNeq: true,
	keyword.OpLe: true, keyword.OpGe: true,
	keyword.OpLt: true, keyword.OpGt: true,
}

// emitIf implements spec §4.3's two if-lowering paths: a fast path for a
// direct comparison test, and a generic path (push expr, push 0, JE) for
// anything else. The parser always wraps the user's condition as
// OP_EQ(cond, 1.0), so the fast path fires for exactly that shape's inner
// comparison, and the generic path otherwise evaluates the whole OP_EQ.
func (g *generator) emitIf(n *ast.Node) error {
	test := n.Left
	body := n.Right

	if test != nil && test.Kind == ast.Function && test.Op == keyword.OpEq &&
		test.Left != nil && test.Left.Kind == ast.Function && comparisonOps[test.Left.Op] &&
		isConstOne(test.Right) {
		return g.emitComparisonIf(test.Left, body)
	}

	if err := g.emitExpr(test); err != nil {
		return err
	}
	g.buf.push(0)
	ifend := g.nextLabel("ifend")
	g.buf.je(ifend)
	if err := g.emitStatement(body); err != nil {
		return err
	}
	g.buf.label(ifend)
	return nil
}

func isConstOne(n *ast.Node) bool {
	return n != nil && n.Kind == ast.Constant && n.Num == 1
}

// emitComparisonIf emits the specialised compare-and-branch path: the two
// operands are pushed once, then a single conditional jump decides whether
// to fall into the body or skip to :ifend_N, using :iftrue_N as an
// intermediate label when the target machine's jump set (JE/JA/JB) only
// offers the positive form of the test.
func (g *generator) emitComparisonIf(cmp *ast.Node, body *ast.Node) error {
	if err := g.emitExpr(cmp.Left); err != nil {
		return err
	}
	if err := g.emitExpr(cmp.Right); err != nil {
		return err
	}

	ifend := g.nextLabel("ifend")
	switch cmp.Op {
	case keyword.OpEq:
		iftrue := g.nextLabel("iftrue")
		g.buf.je(iftrue)
		g.buf.jump(ifend)
		g.buf.label(iftrue)
	case keyword.OpLt:
		iftrue := g.nextLabel("iftrue")
		g.buf.jb(iftrue)
		g.buf.jump(ifend)
		g.buf.label(iftrue)
	case keyword.OpGt:
		iftrue := g.nextLabel("iftrue")
		g.buf.ja(iftrue)
		g.buf.jump(ifend)
		g.buf.label(iftrue)
	case keyword.OpNeq:
		g.buf.je(ifend)
	case keyword.OpLe:
		g.buf.ja(ifend)
	case keyword.OpGe:
		g.buf.jb(ifend)
	}

	if err := g.emitStatement(body); err != nil {
		return err
	}
	g.buf.label(ifend)
	return nil
}

// emitWhile emits head label, falsity branch to end, body, back-edge, end
// label, per spec §9's explicit note on this path.
func (g *generator) emitWhile(n *ast.Node) error {
	head := g.nextLabel("whilehead")
	end := g.nextLabel("whileend")

	g.loops = append(g.loops, loopTarget{headLabel: head, endLabel: end, frameDepth: len(g.scope.frames)})

	g.buf.label(head)
	if err := g.emitExpr(n.Left); err != nil {
		return err
	}
	g.buf.push(0)
	g.buf.je(end)
	if err := g.emitStatement(n.Right); err != nil {
		g.loops = g.loops[:len(g.loops)-1]
		return err
	}
	g.buf.jump(head)
	g.buf.label(end)

	g.loops = g.loops[:len(g.loops)-1]
	return nil
}

// unwindToLoop emits one POPR RBX per scope frame opened since target's
// loop entry, without popping them from g.scope itself — the normal
// block-exit code still runs that bookkeeping on the path that doesn't
// jump away.
func (g *generator) unwindToLoop(target loopTarget) {
	for i := len(g.scope.frames) - 1; i >= target.frameDepth; i-- {
		g.buf.popr(RBX)
	}
}

// emitReturn/emitFinish unwind every scope opened since function entry
// with one POPR RBX each before RET (spec §4.3 "Scope discipline").
func (g *generator) emitReturn(n *ast.Node) error {
	if n.Right != nil {
		if err := g.emitExpr(n.Right); err != nil {
			return err
		}
		g.buf.popr(RAX)
	} else {
		g.buf.push(0)
		g.buf.popr(RAX)
	}
	g.unwindToFunctionEntry()
	g.buf.ret()
	return nil
}

// emitBreakContinue jumps to the innermost loop's end (break) or head
// (continue) label, first unwinding any scope frames opened since that
// loop was entered. The parser already rejects break/continue outside a
// loop, so an empty loop stack here is unreachable in a diagnostic-free
// tree.
func (g *generator) emitBreakContinue(op keyword.Opcode) error {
	if len(g.loops) == 0 {
		return fmt.Errorf("backend: %s outside any tracked loop", op)
	}
	target := g.loops[len(g.loops)-1]
	g.unwindToLoop(target)
	if op == keyword.OpBreak {
		g.buf.jump(target.endLabel)
	} else {
		g.buf.jump(target.headLabel)
	}
	return nil
}

func (g *generator) emitFinish() error {
	if g.isFunc {
		g.buf.push(0)
		g.buf.popr(RAX)
	}
	g.unwindToFunctionEntry()
	g.buf.ret()
	return nil
}

// unwindToFunctionEntry emits one POPR RBX per scope frame open at this
// point, mirroring every PUSHR RBX done since the function-body frame was
// entered. That includes index 0, the function-body frame itself, because
// the RET emitted here skips emitFunction's own closing POPR RBX.
func (g *generator) unwindToFunctionEntry() {
	for i := len(g.scope.frames) - 1; i >= 0; i-- {
		g.buf.popr(RBX)
	}
}

// emitExpr emits code that leaves exactly one value on the stack.
func (g *generator) emitExpr(n *ast.Node) error {
	if n == nil {
		g.buf.push(0)
		return nil
	}

	switch n.Kind {
	case ast.Constant:
		g.buf.push(n.Num)
		return nil
	case ast.Ident:
		return g.emitLoad(n.Sym)
	}

	switch n.Op {
	case keyword.OpAdd, keyword.OpSub, keyword.OpMul, keyword.OpDiv, keyword.OpPow:
		if err := g.emitExpr(n.Left); err != nil {
			return err
		}
		if err := g.emitExpr(n.Right); err != nil {
			return err
		}
		g.emitArith(n.Op)
		return nil

	case keyword.OpEq, keyword.OpNeq, keyword.OpLe, keyword.OpGe, keyword.OpLt, keyword.OpGt, keyword.OpAnd, keyword.OpOr:
		return g.emitBooleanExpr(n)

	case keyword.OpLog:
		// No dedicated logarithm mnemonic exists on the target machine;
		// fall through to the "unknown" path below like any other
		// unimplemented builtin, logging so the gap is visible.
		g.log.Debug("backend: LOG has no target mnemonic, emitting PUSH 0")
		g.buf.push(0)
		return nil

	case keyword.OpAssign:
		return g.emitAssign(n)

	case keyword.OpPrint:
		if err := g.emitExpr(n.Right); err != nil {
			return err
		}
		g.buf.out()
		g.buf.push(0)
		return nil

	case keyword.OpInput:
		g.buf.in()
		return nil

	case keyword.OpCall:
		return g.emitCall(n)

	default:
		g.log.Debug("backend: unimplemented node kind, emitting PUSH 0", slog.String("op", n.Op.String()))
		g.buf.push(0)
		return nil
	}
}

func (g *generator) emitArith(op keyword.Opcode) {
	switch op {
	case keyword.OpAdd:
		g.buf.add()
	case keyword.OpSub:
		g.buf.sub()
	case keyword.OpMul:
		g.buf.mult()
	case keyword.OpDiv:
		g.buf.del()
	case keyword.OpPow:
		g.buf.pow()
	}
}

// emitBooleanExpr lowers a comparison or logical connective used as a
// value (not as an `if`/`while` test) into a 0/1 result via the generic
// compare-then-materialise pattern: compute the comparison's truth with
// the same jump primitives as emitComparisonIf, but land a 1 or 0 on the
// stack instead of branching around a body.
func (g *generator) emitBooleanExpr(n *ast.Node) error {
	if n.Op == keyword.OpAnd || n.Op == keyword.OpOr {
		return g.emitLogicalConnective(n)
	}

	if err := g.emitExpr(n.Left); err != nil {
		return err
	}
	if err := g.emitExpr(n.Right); err != nil {
		return err
	}

	trueLabel := g.nextLabel("cmptrue")
	endLabel := g.nextLabel("cmpend")
	switch n.Op {
	case keyword.OpEq:
		g.buf.je(trueLabel)
	case keyword.OpLt:
		g.buf.jb(trueLabel)
	case keyword.OpGt:
		g.buf.ja(trueLabel)
	case keyword.OpNeq:
		g.buf.je(endLabel + "_false")
		g.buf.push(1)
		g.buf.jump(endLabel)
		g.buf.label(endLabel + "_false")
		g.buf.push(0)
		g.buf.label(endLabel)
		return nil
	case keyword.OpLe:
		g.buf.ja(endLabel + "_false")
		g.buf.push(1)
		g.buf.jump(endLabel)
		g.buf.label(endLabel + "_false")
		g.buf.push(0)
		g.buf.label(endLabel)
		return nil
	case keyword.OpGe:
		g.buf.jb(endLabel + "_false")
		g.buf.push(1)
		g.buf.jump(endLabel)
		g.buf.label(endLabel + "_false")
		g.buf.push(0)
		g.buf.label(endLabel)
		return nil
	}

	g.buf.push(0)
	g.buf.jump(endLabel)
	g.buf.label(trueLabel)
	g.buf.push(1)
	g.buf.label(endLabel)
	return nil
}

// emitLogicalConnective short-circuits neither && nor || at the bytecode
// level (both operands always have side effects evaluated, matching how
// the midend only folds them when both sides are already constant); it
// simply computes both truth values arithmetically.
func (g *generator) emitLogicalConnective(n *ast.Node) error {
	if err := g.emitExpr(n.Left); err != nil {
		return err
	}
	g.truthify()
	if err := g.emitExpr(n.Right); err != nil {
		return err
	}
	g.truthify()
	if n.Op == keyword.OpAnd {
		g.buf.mult() // 1*1=1, anything else is 0 only when both are exactly 1/0
	} else {
		g.buf.add()
		g.truthify() // clamp 0/1/2 to 0/1
	}
	return nil
}

// truthify collapses a non-zero stack top to 1, leaving zero as zero.
func (g *generator) truthify() {
	zero := g.nextLabel("truthzero")
	end := g.nextLabel("truthend")
	g.buf.push(0)
	g.buf.je(zero)
	g.buf.push(1)
	g.buf.jump(end)
	g.buf.label(zero)
	g.buf.push(0)
	g.buf.label(end)
}

// emitAssign leaves exactly one value on the stack — the stored value,
// reloaded — so OP_ASSIGN is usable as an expression (spec §4.3: "emit rhs,
// store into slot, reload slot"), not just as a statement.
func (g *generator) emitAssign(n *ast.Node) error {
	if err := g.emitExpr(n.Right); err != nil {
		return err
	}
	if err := g.emitStore(n.Left.Sym); err != nil {
		return err
	}
	return g.emitLoad(n.Left.Sym)
}

// emitLoad allocates a slot on first reference, per spec §4.3's "first
// reference" rule, then pushes its current value.
func (g *generator) emitLoad(sym intern.ID) error {
	off, ok := g.scope.lookup(sym)
	if !ok {
		off = g.scope.allocate(sym)
		g.zeroInit(off)
	}
	g.addressOf(off)
	g.buf.pushm(RCX)
	return nil
}

func (g *generator) emitStore(sym intern.ID) error {
	off, ok := g.scope.lookup(sym)
	if !ok {
		off = g.scope.allocate(sym)
	}
	g.addressOf(off)
	g.buf.popm(RCX)
	return nil
}

func (g *generator) zeroInit(off int) {
	g.addressOf(off)
	g.buf.push(0)
	g.buf.popm(RCX)
}

// emitCall implements the OP_CALL convention of spec §4.3: arguments are
// evaluated left to right, RBX is saved across CALL so nested calls cannot
// clobber the caller's allocator high-water mark, and the result is either
// RAX (value context) or a synthesised 0 for a proc's unused result.
func (g *generator) emitCall(n *ast.Node) error {
	info := n.Left
	sig, ok := g.funcTable.Lookup(info.Right.Sym)
	if !ok {
		return fmt.Errorf("backend: call to undeclared function %q", g.interner.Get(info.Right.Sym))
	}

	for cur := info.Left; cur != nil; cur = cur.Right {
		if err := g.emitExpr(cur.Left); err != nil {
			return err
		}
	}

	g.buf.pushr(RBX)
	g.buf.call(g.interner.Get(info.Right.Sym))
	g.buf.popr(RBX)

	if sig.Kind == funcsig.Proc {
		g.buf.push(0)
	} else {
		g.buf.pushr(RAX)
	}
	return nil
}
