// Command stak compiles the toy imperative source language into textual
// stack-machine assembly.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rivergrove/stak/internal/keyword"
	"github.com/rivergrove/stak/internal/logging"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stak",
		Short:         "a compiler for the stak toy language",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(compileCmd())
	return root
}

var (
	flagKeepTemps bool
	flagKeywords  string
	flagVerbose   bool
	flagTrace     bool
)

func compileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile [input.src] [output.asm] [frontend.ast] [midend.ast]",
		Short: "compile a source program to stack-machine assembly",
		Args:  cobra.MaximumNArgs(4),
		RunE:  runCompile,
	}
	cmd.Flags().BoolVar(&flagKeepTemps, "keep-temps", false, "preserve the intermediate frontend/midend AST files")
	cmd.Flags().StringVar(&flagKeywords, "keywords", "", "path to a YAML keyword table overriding the built-in one")
	cmd.Flags().BoolVar(&flagVerbose, "verbose", false, "enable debug logging")
	cmd.Flags().BoolVar(&flagTrace, "trace", false, "enable per-token/per-node trace logging (implies --verbose)")
	return cmd
}

func runCompile(cmd *cobra.Command, args []string) error {
	inputPath, outputPath, frontendPath, midendPath := compileArgs(args)

	log := buildLogger()

	table, err := resolveKeywordTable()
	if err != nil {
		return err
	}

	source, err := readInput(inputPath)
	if err != nil {
		return err
	}

	return compileSource(source, inputPath, outputPath, frontendPath, midendPath, table, log)
}

// compileArgs fills in the spec's four positional defaults: an empty
// input.src selects the built-in default program (handled by readInput),
// and the remaining three default to the fixed names out.asm, frontend.ast
// and midend.ast, relative to the working directory.
func compileArgs(args []string) (input, output, frontend, midend string) {
	get := func(i int, def string) string {
		if i < len(args) && args[i] != "" {
			return args[i]
		}
		return def
	}
	input = get(0, "")
	output = get(1, "out.asm")
	frontend = get(2, "frontend.ast")
	midend = get(3, "midend.ast")
	return
}

func buildLogger() logging.Logger {
	if !flagVerbose && !flagTrace {
		return logging.Logger{}
	}
	level := slog.LevelDebug
	if flagTrace {
		level = logging.LevelTrace
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return logging.Logger{L: slog.New(handler)}
}

func resolveKeywordTable() (*keyword.Table, error) {
	if flagKeywords == "" {
		return keyword.Canonical, nil
	}
	data, err := os.ReadFile(flagKeywords)
	if err != nil {
		return nil, fmt.Errorf("reading keyword table %q: %w", flagKeywords, err)
	}
	table, err := keyword.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing keyword table %q: %w", flagKeywords, err)
	}
	return table, nil
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return defaultProgram, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	return data, nil
}
