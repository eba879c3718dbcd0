package backend_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivergrove/stak/internal/ast"
	"github.com/rivergrove/stak/internal/backend"
	"github.com/rivergrove/stak/internal/compiler"
	"github.com/rivergrove/stak/internal/diag"
	"github.com/rivergrove/stak/internal/funcsig"
	"github.com/rivergrove/stak/internal/keyword"
	"github.com/rivergrove/stak/internal/lexer"
	"github.com/rivergrove/stak/internal/logging"
	"github.com/rivergrove/stak/internal/parser"
)

func generate(t *testing.T, source string) string {
	t.Helper()
	res, err := compiler.Run([]byte(source), keyword.Canonical, logging.Logger{})
	require.NoError(t, err)
	require.False(t, res.Sink.HasErrors(), "%+v", res.Sink.Records())
	require.NotEmpty(t, res.Assembly)
	return res.Assembly
}

// generateNoFold runs the lexer/parser/backend directly, skipping the
// midend, so tests can assert the backend's literal instruction-for-node
// output without the midend's constant folding rewriting the tree first.
func generateNoFold(t *testing.T, source string) string {
	t.Helper()
	sink := diag.NewSink()
	tokens, err := lexer.Tokenize([]byte(source), keyword.Canonical, sink, logging.Logger{})
	require.NoError(t, err)
	require.Equal(t, 0, sink.Len(), "%+v", sink.Records())

	tree := ast.NewTree()
	funcTable := funcsig.New()
	parser.Parse(tree, tokens, []byte(source), funcTable, sink, logging.Logger{})
	require.Equal(t, 0, sink.Len(), "%+v", sink.Records())
	require.NoError(t, ast.Validate(tree))

	asm, err := backend.Generate(tree, funcTable, logging.Logger{})
	require.NoError(t, err)
	return asm
}

func TestGenerate_EmptySourceEmitsPreludeAndHalt(t *testing.T) {
	asm := generate(t, "")
	lines := strings.Split(strings.TrimRight(asm, "\n"), "\n")
	require.Equal(t, []string{"PUSH 0", "POPR RBX", "HLT"}, lines)
}

// A program with no declarations at all is spec §8 scenario 1: the backend
// wraps its top-level statements into a synthesized entry function (its own
// scope frame included) so they run "within the entry function body", same
// as any declared function. Generated directly (bypassing the midend) so
// the arithmetic isn't constant-folded away first.
func TestGenerate_BareExpressionStatementIsComputedAndDiscarded(t *testing.T) {
	asm := generateNoFold(t, "1+2;")
	lines := strings.Split(strings.TrimRight(asm, "\n"), "\n")
	assert.Equal(t, []string{
		"PUSH 0", "POPR RBX", "CALL :main", "HLT",
		":main",
		"PUSHR RBX", "POPR RDX",
		"PUSHR RBX",
		"PUSH 1", "PUSH 2", "ADD", "POP",
		"PUSH 0", "POPR RAX",
		"POPR RBX",
		"RET",
	}, lines)
}

func TestGenerate_TopLevelStatementsAlongsideDeclarationsRunBeforeNamedEntry(t *testing.T) {
	asm := generate(t, `
		x = 1;
		func main() { return 0; };
	`)
	lines := strings.Split(strings.TrimRight(asm, "\n"), "\n")
	require.Equal(t, []string{"PUSH 0", "POPR RBX", "CALL :toplevel_init", "CALL :main", "HLT"}, lines[:5])
	assert.Contains(t, asm, ":toplevel_init")
}

// OP_ASSIGN must leave its stored value on the stack so it can be used as
// an expression (spec §4.3: "emit rhs, store into slot, reload slot"), not
// just as a statement whose result is thrown away.
func TestGenerate_AssignmentIsUsableAsAnExpression(t *testing.T) {
	asm := generateNoFold(t, "func f() { y = (x = 5); return y; };")
	funcBody := asm[strings.Index(asm, ":f"):]
	// Storing x, then storing y — two POPM [RCX] address-stores total.
	assert.Equal(t, 2, strings.Count(funcBody[:strings.Index(funcBody, "RET")], "POPM [RCX]"))
	// And the inner assignment's reload means a PUSHM [RCX] appears
	// between the two stores, not just at the final `return y`.
	firstStore := strings.Index(funcBody, "POPM [RCX]")
	secondStore := strings.Index(funcBody[firstStore+1:], "POPM [RCX]") + firstStore + 1
	assert.Contains(t, funcBody[firstStore:secondStore], "PUSHM [RCX]")
}

func TestGenerate_EntryPreludeCallsMain(t *testing.T) {
	asm := generate(t, "func main() { return 0; };")
	lines := strings.Split(strings.TrimRight(asm, "\n"), "\n")
	require.Equal(t, []string{"PUSH 0", "POPR RBX", "CALL :main", "HLT"}, lines[:4])
	assert.Equal(t, ":main", lines[4])
}

func TestGenerate_EntryPicksFirstDeclarationWhenNoMain(t *testing.T) {
	asm := generate(t, "func f() { return 1; };")
	lines := strings.Split(strings.TrimRight(asm, "\n"), "\n")
	assert.Equal(t, "CALL :f", lines[2])
}

// Every PUSHR RBX within a function body must be matched by exactly one
// POPR RBX on every control-flow path that reaches RET, per the scope
// discipline this backend implements.
func TestGenerate_ScopeDisciplineBalancesAcrossNestedBlocksAndLoops(t *testing.T) {
	asm := generate(t, `
		func f(a, b) {
			x = a + b;
			while (x) {
				{
					y = x - 1;
					if (y) {
						break;
					};
					continue;
				};
				x = x - 1;
			};
			return x;
		};
	`)

	lines := strings.Split(strings.TrimRight(asm, "\n"), "\n")
	start := -1
	for i, l := range lines {
		if l == ":f" {
			start = i
		}
	}
	require.GreaterOrEqual(t, start, 0)
	depths := rbxDepthsAtRet(t, lines[start:])
	require.NotEmpty(t, depths)
	for _, d := range depths {
		assert.Equal(t, 0, d, "unbalanced RBX scope discipline:\n%s", asm)
	}
}

// rbxDepthsAtRet follows every control-flow path through one function's
// instructions (lines[0] is its label) and returns the scope depth at each
// RET it reaches: +1 per PUSHR RBX and -1 per POPR RBX, except the entry's
// PUSHR RBX / POPR RDX pair, which copies RBX into RDX instead of opening a
// scope.
func rbxDepthsAtRet(t *testing.T, lines []string) []int {
	t.Helper()
	labels := map[string]int{}
	for i, l := range lines {
		if strings.HasPrefix(l, ":") {
			labels[l[1:]] = i
		}
	}
	target := func(l string) int {
		pc, ok := labels[l[strings.Index(l, ":")+1:]]
		require.True(t, ok, "jump to unknown label in %q", l)
		return pc
	}
	type state struct{ pc, depth int }
	seen := map[state]bool{}
	var depths []int
	work := []state{{0, 0}}
	for len(work) > 0 {
		s := work[len(work)-1]
		work = work[:len(work)-1]
		if s.pc >= len(lines) || seen[s] || s.depth > len(lines) || s.depth < -len(lines) {
			continue
		}
		seen[s] = true
		l := lines[s.pc]
		next := state{s.pc + 1, s.depth}
		switch {
		case l == "RET":
			depths = append(depths, s.depth)
			continue
		case l == "PUSHR RBX" && s.pc+1 < len(lines) && lines[s.pc+1] == "POPR RDX":
			next.pc = s.pc + 2
		case l == "PUSHR RBX":
			next.depth++
		case l == "POPR RBX":
			next.depth--
		case strings.HasPrefix(l, "JUMP :"):
			next.pc = target(l)
		case strings.HasPrefix(l, "JE :"), strings.HasPrefix(l, "JA :"), strings.HasPrefix(l, "JB :"):
			work = append(work, state{target(l), s.depth})
		}
		work = append(work, next)
	}
	return depths
}

func TestGenerate_ParamsPoppedInReverseOrder(t *testing.T) {
	asm := generate(t, "func f(a, b) { return a; };")
	funcBody := asm[strings.Index(asm, ":f"):]
	// Two parameters means two POPM [RCX] stores before the body begins.
	assert.Equal(t, 2, strings.Count(funcBody[:strings.Index(funcBody, "RET")], "POPM [RCX]"))
	// b, pushed last by the caller, is popped first into slot 0, so a lives
	// in slot 1 and `return a` reads RDX+1.
	assert.Contains(t, funcBody, "PUSHR RDX\nPUSH 0\nADD\nPOPR RCX\nPOPM [RCX]\nPUSHR RDX\nPUSH 1\nADD\nPOPR RCX\nPOPM [RCX]\n")
	assert.Contains(t, funcBody, "PUSHR RDX\nPUSH 1\nADD\nPOPR RCX\nPUSHM [RCX]\nPOPR RAX\n")
}

func TestGenerate_ProcCallAsStatementDiscardsSynthesizedZero(t *testing.T) {
	asm := generate(t, "proc p() {}; func main() { call p(); return 0; };")
	mainBody := asm[strings.Index(asm, ":main"):]
	assert.Contains(t, mainBody, "CALL :p")
	// The call's synthesized 0 result and the statement's POP should both appear.
	assert.Contains(t, mainBody, "POP\n")
}

func TestGenerate_ComparisonIfUsesIftrueAndIfendLabels(t *testing.T) {
	asm := generate(t, "func f(a) { if (a < 1) { return 1; }; return 0; };")
	assert.Contains(t, asm, "JB :iftrue_")
	assert.Contains(t, asm, "JUMP :ifend_")
	assert.Contains(t, asm, ":iftrue_")
	assert.Contains(t, asm, ":ifend_")
}

func TestGenerate_WhileEmitsHeadAndEndLabelsWithBackEdge(t *testing.T) {
	asm := generate(t, "func f(a) { while (a) { a = a - 1; }; return a; };")
	assert.Contains(t, asm, ":whilehead_")
	assert.Contains(t, asm, ":whileend_")
	assert.Contains(t, asm, "JUMP :whilehead_")
}

func TestGenerate_BreakUnwindsNestedBlockBeforeJumpingToWhileEnd(t *testing.T) {
	asm := generate(t, `
		func f(a) {
			while (a) {
				{
					break;
				};
			};
			return a;
		};
	`)
	funcBody := asm[strings.Index(asm, ":f"):]
	idx := strings.Index(funcBody, "JUMP :whileend_")
	require.Greater(t, idx, -1)
	// The POPR RBX that unwinds the nested block's frame must appear
	// immediately before the jump to the loop's end label.
	before := funcBody[:idx]
	lastLines := strings.Split(strings.TrimRight(before, "\n"), "\n")
	assert.Equal(t, "POPR RBX", lastLines[len(lastLines)-1])
}

// The parser always rejects a call to an undeclared function before the
// backend ever sees it; this builds a tree directly to exercise Generate's
// defensive error path (spec §7's "internal" fault class) on its own.
func TestGenerate_UndeclaredCalleeIsInternalError(t *testing.T) {
	tree := ast.NewTree()
	missing := tree.Interner.GetOrAdd([]byte("ghost"))
	mainSym := tree.Interner.GetOrAdd([]byte("main"))

	info := ast.Func2(keyword.OpFuncInfo, nil, ast.Var(missing))
	call := ast.Func2(keyword.OpCall, info, nil)

	mainInfo := ast.Func2(keyword.OpFuncInfo, nil, ast.Var(mainSym))
	mainBody := ast.Func1(keyword.OpVisStart, ast.Func2(keyword.OpLcat, call, nil))
	mainDecl := ast.Func2(keyword.OpFuncDecl, mainInfo, mainBody)

	tree.Root = ast.Func1(keyword.OpVisStart, ast.Func2(keyword.OpLcat, mainDecl, nil))
	tree.Recount()

	funcTable := funcsig.New()
	funcTable.Define(mainSym, funcsig.Signature{Kind: funcsig.Func, Arity: 0})

	_, err := backend.Generate(tree, funcTable, logging.Logger{})
	require.Error(t, err)
}
