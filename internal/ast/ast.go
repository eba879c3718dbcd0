// Package ast defines the abstract syntax tree node shape of spec §3: a
// binary discriminated union over {Constant, Ident, Function}, owned
// together with its identifier intern pool by a single Tree.
package ast

import (
	"fmt"

	"github.com/rivergrove/stak/internal/intern"
	"github.com/rivergrove/stak/internal/keyword"
)

// Kind discriminates the three node shapes of spec §3.
type Kind uint8

const (
	Constant Kind = iota
	Ident
	Function
)

func (k Kind) String() string {
	switch k {
	case Constant:
		return "Constant"
	case Ident:
		return "Ident"
	case Function:
		return "Function"
	default:
		return "Kind(?)"
	}
}

// Node is a binary AST node. Only the field matching Kind is meaningful:
// Num for Constant, Sym for Ident, Op for Function. Left and Right are
// optional child references; either may be nil.
type Node struct {
	Kind  Kind
	Num   float64
	Sym   intern.ID
	Op    keyword.Opcode
	Left  *Node
	Right *Node
}

// Const builds a Constant leaf, per the original's `c(val)` DSL helper.
func Const(v float64) *Node {
	return &Node{Kind: Constant, Num: v}
}

// Var builds an Ident leaf referencing an already-interned identifier, per
// the original's `v(var_name)` DSL helper.
func Var(sym intern.ID) *Node {
	return &Node{Kind: Ident, Sym: sym}
}

// Func1 builds a unary Function node: the sole operand occupies Right, Left
// is absent, matching the "unary forms" invariant of spec §3.
func Func1(op keyword.Opcode, operand *Node) *Node {
	return &Node{Kind: Function, Op: op, Right: operand}
}

// Func2 builds a binary Function node with both children populated, per the
// original's `FUNC_TEMPLATE(op_code, left, right)` DSL helper.
func Func2(op keyword.Opcode, left, right *Node) *Node {
	return &Node{Kind: Function, Op: op, Left: left, Right: right}
}

// FuncOnly builds a Function node with neither child, used for zero-arity
// builtins (OP_INPUT).
func FuncOnly(op keyword.Opcode) *Node {
	return &Node{Kind: Function, Op: op}
}

// Tree is the arena-owning root object: one interner per tree, surviving the
// tree's lifetime (spec §3 "Interner").
type Tree struct {
	Root     *Node
	Size     int
	Interner *intern.Pool
}

// NewTree returns an empty tree with a fresh interner.
func NewTree() *Tree {
	return &Tree{Interner: intern.New()}
}

// CountNodes counts n and all of its descendants. A nil node counts as
// zero, matching spec §8's "AST counts" invariant (count_nodes(tree.root)
// == tree.size).
func CountNodes(n *Node) int {
	if n == nil {
		return 0
	}
	return 1 + CountNodes(n.Left) + CountNodes(n.Right)
}

// Recount recomputes and stores Size from the current Root. Callers that
// mutate the tree in place (the midend) must call this before any code that
// checks the "AST counts" invariant.
func (t *Tree) Recount() {
	t.Size = CountNodes(t.Root)
}

// Validate checks the structural invariants the original project enforced
// outside of debug-canary builds (original_source's tree_verification.h):
// the node count matches Size, every Ident references a symbol actually
// present in the tree's interner, and Constant/Ident nodes are leaves.
func Validate(t *Tree) error {
	if got := CountNodes(t.Root); got != t.Size {
		return fmt.Errorf("ast: size mismatch: tree.Size=%d but counted %d nodes", t.Size, got)
	}
	return validateNode(t, t.Root)
}

func validateNode(t *Tree, n *Node) error {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case Constant, Ident:
		if n.Left != nil || n.Right != nil {
			return fmt.Errorf("ast: %s node has children", n.Kind)
		}
		if n.Kind == Ident && (n.Sym < 0 || int(n.Sym) >= t.Interner.Len()) {
			return fmt.Errorf("ast: Ident node references out-of-range symbol %d", n.Sym)
		}
	case Function:
		if _, ok := keyword.Lookup(n.Op.String()); !ok {
			return fmt.Errorf("ast: Function node has unknown opcode %v", n.Op)
		}
	default:
		return fmt.Errorf("ast: node has unknown kind %d", n.Kind)
	}
	if err := validateNode(t, n.Left); err != nil {
		return err
	}
	return validateNode(t, n.Right)
}
