// Package keyword defines the static keyword table shared by the lexer and
// the parser: a sequence of (opcode, surface pattern, AST name, builtin flag)
// entries, plus the handful of "ignored words" that the lexer elides as pure
// human-language connectives.
//
// The canonical table lives in table.yaml (embedded at build time) so that
// the opcode set is data, not code — see SPEC_FULL.md's ambient
// "configuration" section.
package keyword

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Opcode identifies a language operator, keyword, or AST pseudo-node. It is
// the tag carried by Function-kind AST nodes and by Keyword-kind tokens.
type Opcode int

const (
	OpEq Opcode = iota
	OpNeq
	OpLe
	OpGe
	OpLt
	OpGt
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpPow
	OpLog
	OpAssign
	OpVisStart
	OpRBrace // closing '}'; pairs with VIS_START for brace balancing (pass 1)
	OpLcat
	OpEnumSep
	OpIf
	OpWhile
	OpBreak
	OpContinue
	OpFinish
	OpReturn
	OpFuncDecl
	OpProcDecl
	OpCall
	OpPrint
	OpInput
	OpFuncInfo // AST-only pseudo-node, never produced by the lexer
)

func (o Opcode) String() string {
	if s, ok := astNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Opcode(%d)", int(o))
}

var astNames = map[Opcode]string{
	OpEq: "EQ", OpNeq: "NEQ", OpLe: "LE", OpGe: "GE", OpLt: "LT", OpGt: "GT",
	OpAnd: "AND", OpOr: "OR",
	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV",
	OpPow: "POW", OpLog: "LOG",
	OpAssign: "ASSIGN", OpVisStart: "VIS_START", OpRBrace: "RBRACE",
	OpLcat: "LCAT", OpEnumSep: "ENUM_SEP",
	OpIf: "IF", OpWhile: "WHILE", OpBreak: "BREAK", OpContinue: "CONTINUE",
	OpFinish: "FINISH", OpReturn: "RETURN",
	OpFuncDecl: "FUNC_DECL", OpProcDecl: "PROC_DECL", OpCall: "CALL",
	OpPrint: "PRINT", OpInput: "INPUT", OpFuncInfo: "FUNC_INFO",
}

var nameToOpcode = func() map[string]Opcode {
	m := make(map[string]Opcode, len(astNames))
	for op, name := range astNames {
		m[name] = op
	}
	return m
}()

// Lookup resolves an AST name back to its opcode, for tooling and the text
// (de)serializer (component G).
func Lookup(astName string) (Opcode, bool) {
	op, ok := nameToOpcode[astName]
	return op, ok
}

// Entry is one row of the keyword table: an opcode, the surface pattern that
// the lexer matches against source bytes, the AST name used by the
// serializer, and whether the parser should treat it as a built-in function
// (print, input, pow, log) rather than a user-callable symbol.
type Entry struct {
	Op        Opcode
	Surface   string
	AstName   string
	IsBuiltin bool

	// WordLike is true when the surface's outermost non-blank bytes are
	// identifier characters (letter/digit/underscore); matches of a
	// word-like surface must be bounded by non-identifier bytes on both
	// sides. Computed at load time, not part of the source data.
	WordLike bool
}

// Table holds the keyword entries and the separately-matched ignored words
// ("and", "or" in the canonical set).
type Table struct {
	Keywords []Entry
	Ignored  []Entry
}

type tableDoc struct {
	Keywords []entryDoc `yaml:"keywords"`
	Ignored  []entryDoc `yaml:"ignored"`
}

type entryDoc struct {
	Op        string `yaml:"op"`
	Surface   string `yaml:"surface"`
	AstName   string `yaml:"ast_name"`
	IsBuiltin bool   `yaml:"is_builtin"`
}

//go:embed table.yaml
var canonicalYAML []byte

// Canonical is the keyword table of spec §6, parsed once at init.
var Canonical = MustParse(canonicalYAML)

// Parse decodes a keyword table from YAML bytes in the table.yaml shape.
// Used both for the embedded canonical table and for the CLI's
// --keywords override.
func Parse(data []byte) (*Table, error) {
	var doc tableDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("keyword: parse table: %w", err)
	}
	t := &Table{
		Keywords: make([]Entry, 0, len(doc.Keywords)),
		Ignored:  make([]Entry, 0, len(doc.Ignored)),
	}
	for _, d := range doc.Keywords {
		op, ok := nameToOpcode[d.Op]
		if !ok {
			return nil, fmt.Errorf("keyword: unknown opcode name %q", d.Op)
		}
		t.Keywords = append(t.Keywords, newEntry(op, d))
	}
	for _, d := range doc.Ignored {
		// Ignored words carry no opcode; reuse OpFuncInfo as an unused
		// placeholder tag since it is never matched against by the lexer.
		t.Ignored = append(t.Ignored, newEntry(OpFuncInfo, d))
	}
	return t, nil
}

// MustParse is Parse, panicking on error. Used for the compiled-in canonical
// table, whose bytes are controlled by this package.
func MustParse(data []byte) *Table {
	t, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return t
}

func newEntry(op Opcode, d entryDoc) Entry {
	astName := d.AstName
	if astName == "" {
		astName = astNames[op]
	}
	return Entry{
		Op:        op,
		Surface:   d.Surface,
		AstName:   astName,
		IsBuiltin: d.IsBuiltin,
		WordLike:  isWordLike(d.Surface),
	}
}

func isWordLike(surface string) bool {
	trimmed := trimBlanks(surface)
	if trimmed == "" {
		return false
	}
	first := trimmed[0]
	last := trimmed[len(trimmed)-1]
	return isIdentByte(first) && isIdentByte(last)
}

func trimBlanks(s string) string {
	start := 0
	for start < len(s) && isHSpace(s[start]) {
		start++
	}
	end := len(s)
	for end > start && isHSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isHSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\r' }

func isIdentByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
