package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivergrove/stak/internal/ast"
	"github.com/rivergrove/stak/internal/diag"
	"github.com/rivergrove/stak/internal/funcsig"
	"github.com/rivergrove/stak/internal/keyword"
	"github.com/rivergrove/stak/internal/lexer"
	"github.com/rivergrove/stak/internal/logging"
	"github.com/rivergrove/stak/internal/parser"
)

type parseResult struct {
	tree      *ast.Tree
	sink      *diag.Sink
	funcTable *funcsig.Table
}

func mustParse(t *testing.T, source string) parseResult {
	t.Helper()
	sink := diag.NewSink()
	tokens, err := lexer.Tokenize([]byte(source), keyword.Canonical, sink, logging.Logger{})
	require.NoError(t, err)
	require.Equal(t, 0, sink.Len(), "lexer produced diagnostics: %+v", sink.Records())

	tree := ast.NewTree()
	funcTable := funcsig.New()
	parser.Parse(tree, tokens, []byte(source), funcTable, sink, logging.Logger{})
	return parseResult{tree: tree, sink: sink, funcTable: funcTable}
}

func TestParse_SimpleExpressionStatement(t *testing.T) {
	r := mustParse(t, "1+2;")
	assert.Equal(t, 0, r.sink.Len())
	require.NoError(t, ast.Validate(r.tree))
}

func TestParse_FunctionSignatureHarvested(t *testing.T) {
	r := mustParse(t, `
		func main(a, b) {
			x = a + b;
			if (x) { print(x); };
			return x;
		};
	`)
	require.Equal(t, 0, r.sink.Len(), "%+v", r.sink.Records())

	sym := r.tree.Interner.GetOrAdd([]byte("main"))
	sig, ok := r.funcTable.Lookup(sym)
	require.True(t, ok)
	assert.Equal(t, funcsig.Func, sig.Kind)
	assert.Equal(t, 2, sig.Arity)
}

func TestParse_UndefinedFunctionCall(t *testing.T) {
	r := mustParse(t, "func f() {}; call g();")
	require.Equal(t, 1, r.sink.Len())
	assert.Equal(t, diag.UndefFunction, r.sink.Records()[0].Code)
}

func TestParse_ReturnInProc(t *testing.T) {
	r := mustParse(t, "proc p() { return 1; };")
	require.Equal(t, 1, r.sink.Len())
	assert.Equal(t, diag.ReturnInProc, r.sink.Records()[0].Code)
}

func TestParse_FinishInFunc(t *testing.T) {
	r := mustParse(t, "func f() { finish; };")
	require.Equal(t, 1, r.sink.Len())
	assert.Equal(t, diag.FinishInFunc, r.sink.Records()[0].Code)
}

func TestParse_BreakOutsideLoop(t *testing.T) {
	r := mustParse(t, "func f() { break; };")
	require.Equal(t, 1, r.sink.Len())
	assert.Equal(t, diag.BreakOutsideLoop, r.sink.Records()[0].Code)
}

func TestParse_ContinueInsideLoopIsClean(t *testing.T) {
	r := mustParse(t, "func f() { while (1) { continue; }; };")
	assert.Equal(t, 0, r.sink.Len(), "%+v", r.sink.Records())
}

func TestParse_ArgcMismatch(t *testing.T) {
	r := mustParse(t, "func f(a) {}; func g() { return call f(1, 2); };")
	require.Equal(t, 1, r.sink.Len())
	assert.Equal(t, diag.ArgcMismatch, r.sink.Records()[0].Code)
}

func TestParse_VoidInExpr(t *testing.T) {
	r := mustParse(t, "proc p() {}; func f() { return call p(); };")
	require.Equal(t, 1, r.sink.Len())
	assert.Equal(t, diag.VoidInExpr, r.sink.Records()[0].Code)
}

func TestParse_ProcCallAsStatementIsFine(t *testing.T) {
	r := mustParse(t, "proc p() {}; func f() { call p(); return 0; };")
	assert.Equal(t, 0, r.sink.Len(), "%+v", r.sink.Records())
}

func TestParse_UndefinedVariable(t *testing.T) {
	r := mustParse(t, "func f() { return y; };")
	require.Equal(t, 1, r.sink.Len())
	assert.Equal(t, diag.UndefVariable, r.sink.Records()[0].Code)
}

func TestParse_RedefinedFunction(t *testing.T) {
	r := mustParse(t, "func f() {}; func f() {};")
	require.Equal(t, 1, r.sink.Len())
	assert.Equal(t, diag.RedefFunction, r.sink.Records()[0].Code)
}

func TestParse_NestedDeclaration(t *testing.T) {
	r := mustParse(t, "func f() { func g() {}; };")
	require.Equal(t, 1, r.sink.Len())
	assert.Equal(t, diag.NestedDecl, r.sink.Records()[0].Code)
}

func TestParse_NestedBlockSeesOuterParameter(t *testing.T) {
	// A plain assignment to an already-bound name writes through to that
	// binding rather than shadowing it, so 'a' still resolves after the
	// nested block exits.
	r := mustParse(t, `
		func f(a) {
			{
				a = 1;
			};
			return a;
		};
	`)
	assert.Equal(t, 0, r.sink.Len(), "%+v", r.sink.Records())
}

func TestParse_VariableDefinedInNestedBlockDoesNotEscapeIt(t *testing.T) {
	r := mustParse(t, `
		func f() {
			{
				inner = 1;
			};
			return inner;
		};
	`)
	require.Equal(t, 1, r.sink.Len(), "%+v", r.sink.Records())
	assert.Equal(t, diag.UndefVariable, r.sink.Records()[0].Code)
}

func TestParse_FreshAssignmentTargetIsNotUndefVariable(t *testing.T) {
	r := mustParse(t, "func f() { y = 1; return y; };")
	assert.Equal(t, 0, r.sink.Len(), "%+v", r.sink.Records())
}

func TestParse_EmptySourceProducesVisStartWithNoChildren(t *testing.T) {
	r := mustParse(t, "")
	assert.Equal(t, 0, r.sink.Len())
	require.NotNil(t, r.tree.Root)
	assert.Equal(t, ast.Function, r.tree.Root.Kind)
	assert.Equal(t, keyword.OpVisStart, r.tree.Root.Op)
	assert.Nil(t, r.tree.Root.Right)
}

func TestParse_UnclosedBraceIsDiagnosed(t *testing.T) {
	r := mustParse(t, "func f() {")
	require.NotEmpty(t, r.sink.Records())
	found := false
	for _, rec := range r.sink.Records() {
		if rec.Code == diag.UnclosedBrace {
			found = true
		}
	}
	assert.True(t, found, "%+v", r.sink.Records())
}

func TestParse_TopLevelStatementCountInvariant(t *testing.T) {
	r := mustParse(t, "func f() {}; func g() {};")
	require.NoError(t, ast.Validate(r.tree))
}
