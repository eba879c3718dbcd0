package main

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/rivergrove/stak/internal/compiler"
	"github.com/rivergrove/stak/internal/keyword"
	"github.com/rivergrove/stak/internal/logging"
	"github.com/rivergrove/stak/internal/sourcefmt"
)

//go:embed default_program.src
var defaultProgram []byte

// compileSource runs the pipeline and writes its artifacts to disk,
// honouring --keep-temps for the two intermediate AST files (spec §6
// "CLI"). Any non-empty diagnostic sink renders to stderr and yields a
// non-zero exit via the returned error.
func compileSource(source []byte, inputPath, outputPath, frontendPath, midendPath string, table *keyword.Table, log logging.Logger) error {
	result, err := compiler.Run(source, table, log)
	if err != nil {
		return err
	}

	name := inputPath
	if name == "" {
		name = "<default>"
	}

	// Both intermediate ASTs are written whenever the pipeline returns a
	// Result, with or without diagnostics, mirroring the original driver's
	// write-unconditionally/keep-conditionally pattern; --keep-temps only
	// controls whether they survive a successful run. A hard error from
	// compiler.Run returns above before anything is written.
	if err := os.WriteFile(frontendPath, []byte(result.FrontendAST), 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", frontendPath, err)
	}
	if err := os.WriteFile(midendPath, []byte(result.MidendAST), 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", midendPath, err)
	}

	if result.Sink.Len() > 0 {
		fmt.Fprint(os.Stderr, sourcefmt.Render(name, source, result.Sink))
	}
	if result.Sink.HasErrors() {
		return fmt.Errorf("compile failed with %d diagnostic(s)", result.Sink.Len())
	}

	if err := os.WriteFile(outputPath, []byte(result.Assembly), 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", outputPath, err)
	}

	if !flagKeepTemps {
		_ = os.Remove(frontendPath)
		_ = os.Remove(midendPath)
	}

	return nil
}
