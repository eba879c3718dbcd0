// Package funcsig implements the function signature table of spec §3:
// a mapping from an interned function name to its declaration kind and
// arity, populated during parser pass 1 and consumed by parser pass 2 and
// the backend.
package funcsig

import "github.com/rivergrove/stak/internal/intern"

// DeclKind distinguishes a func from a proc declaration.
type DeclKind int

const (
	Func DeclKind = iota
	Proc
)

func (k DeclKind) String() string {
	if k == Proc {
		return "proc"
	}
	return "func"
}

// Signature is one entry of the table.
type Signature struct {
	Kind  DeclKind
	Arity int
}

// Table maps an interned function name to its signature. Owned by the
// driver (spec §5 "Memory ownership") and passed by reference to both the
// parser and the backend.
type Table struct {
	entries map[intern.ID]Signature
}

// New returns an empty signature table.
func New() *Table {
	return &Table{entries: make(map[intern.ID]Signature)}
}

// Lookup returns the signature registered for name, if any.
func (t *Table) Lookup(name intern.ID) (Signature, bool) {
	sig, ok := t.entries[name]
	return sig, ok
}

// Define registers name with the given signature. Returns false without
// modifying the table if name is already defined (spec §4.2: pass 1 emits
// REDEF_FUNCTION rather than overwrite).
func (t *Table) Define(name intern.ID, sig Signature) bool {
	if _, exists := t.entries[name]; exists {
		return false
	}
	t.entries[name] = sig
	return true
}

// Len reports how many distinct functions/procs are registered.
func (t *Table) Len() int {
	return len(t.entries)
}
