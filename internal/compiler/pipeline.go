// Package compiler wires the lexer, parser, midend, and backend into the
// whole-program pipeline described by spec §5: single-threaded, stage by
// stage, aborting before the next stage once the diagnostic sink is
// non-empty.
package compiler

import (
	"fmt"
	"log/slog"

	"github.com/rivergrove/stak/internal/ast"
	"github.com/rivergrove/stak/internal/backend"
	"github.com/rivergrove/stak/internal/diag"
	"github.com/rivergrove/stak/internal/funcsig"
	"github.com/rivergrove/stak/internal/keyword"
	"github.com/rivergrove/stak/internal/lexer"
	"github.com/rivergrove/stak/internal/logging"
	"github.com/rivergrove/stak/internal/midend"
	"github.com/rivergrove/stak/internal/parser"
)

// Result carries every artifact a caller might want to inspect or persist,
// regardless of whether compilation reached the backend: the CLI driver
// decides what to do with a partial Result on failure (spec §6 "--keep-temps").
type Result struct {
	Sink *diag.Sink

	FrontendAST string // AST text immediately after parsing
	MidendAST   string // AST text after constant folding, empty if not reached
	Assembly    string // empty if diagnostics aborted the pipeline

	Tree *ast.Tree
}

// Run executes the full pipeline over source and returns once the first
// stage with diagnostics or a hard backend error stops progress — it never
// runs the midend or backend over a tree the parser flagged (spec §7
// "Propagation policy").
func Run(source []byte, table *keyword.Table, log logging.Logger) (*Result, error) {
	sink := diag.NewSink()
	tree := ast.NewTree()
	funcTable := funcsig.New()

	tokens, err := lexer.Tokenize(source, table, sink, log)
	if err != nil {
		return nil, fmt.Errorf("compiler: lexing failed: %w", err)
	}

	res := &Result{Sink: sink, Tree: tree}
	if sink.HasErrors() {
		return res, nil
	}

	parser.Parse(tree, tokens, source, funcTable, sink, log)
	res.FrontendAST = ast.Format(tree)
	if sink.HasErrors() {
		return res, nil
	}

	if err := ast.Validate(tree); err != nil {
		return res, fmt.Errorf("compiler: frontend AST failed validation: %w", err)
	}

	midend.Optimize(tree, log)
	res.MidendAST = ast.Format(tree)

	if err := ast.Validate(tree); err != nil {
		return res, fmt.Errorf("compiler: midend AST failed validation: %w", err)
	}

	asm, err := backend.Generate(tree, funcTable, log)
	if err != nil {
		return res, fmt.Errorf("compiler: codegen failed: %w", err)
	}
	res.Assembly = asm

	log.Debug("compiler: pipeline complete", slog.Int("diagnostics", sink.Len()), slog.Bool("assembled", asm != ""))
	return res, nil
}
