// Package midend implements the constant-folding optimizer of spec §4.4: a
// diagnostic-free, shape-preserving tree rewrite that runs only once the
// frontend produced zero diagnostics.
package midend

import (
	"log/slog"
	"math"

	"github.com/rivergrove/stak/internal/ast"
	"github.com/rivergrove/stak/internal/keyword"
	"github.com/rivergrove/stak/internal/logging"
)

// Optimize rewrites tree.Root in place, folding binary arithmetic over two
// Constant operands and eliminating neutral-operand identities, then
// updates tree.Size to match. It never introduces a diagnostic: a subtree
// it cannot simplify is left exactly as it was.
func Optimize(tree *ast.Tree, log logging.Logger) {
	before := tree.Size
	tree.Root = fold(tree.Root)
	tree.Recount()
	log.Debug("midend: fold complete", slog.Int("nodes_before", before), slog.Int("nodes_after", tree.Size))
}

func fold(n *ast.Node) *ast.Node {
	if n == nil {
		return nil
	}
	if n.Kind != ast.Function {
		return n
	}

	n.Left = fold(n.Left)
	n.Right = fold(n.Right)

	if folded, ok := foldConstantPair(n); ok {
		return folded
	}
	if simplified, ok := foldIdentity(n); ok {
		return simplified
	}
	return n
}

// foldConstantPair replaces a binary arithmetic node whose operands are
// both Constant with a single Constant node holding the computed value.
func foldConstantPair(n *ast.Node) (*ast.Node, bool) {
	if n.Left == nil || n.Right == nil || n.Left.Kind != ast.Constant || n.Right.Kind != ast.Constant {
		return nil, false
	}
	a, b := n.Left.Num, n.Right.Num

	switch n.Op {
	case keyword.OpAdd:
		return ast.Const(a + b), true
	case keyword.OpSub:
		return ast.Const(a - b), true
	case keyword.OpMul:
		return ast.Const(a * b), true
	case keyword.OpDiv:
		if b == 0 {
			return nil, false
		}
		return ast.Const(a / b), true
	case keyword.OpPow:
		return ast.Const(math.Pow(a, b)), true
	case keyword.OpEq:
		return ast.Const(boolNum(a == b)), true
	case keyword.OpNeq:
		return ast.Const(boolNum(a != b)), true
	case keyword.OpLe:
		return ast.Const(boolNum(a <= b)), true
	case keyword.OpGe:
		return ast.Const(boolNum(a >= b)), true
	case keyword.OpLt:
		return ast.Const(boolNum(a < b)), true
	case keyword.OpGt:
		return ast.Const(boolNum(a > b)), true
	case keyword.OpAnd:
		return ast.Const(boolNum(a != 0 && b != 0)), true
	case keyword.OpOr:
		return ast.Const(boolNum(a != 0 || b != 0)), true
	default:
		return nil, false
	}
}

func boolNum(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// foldIdentity eliminates a neutral operand on ADD/SUB/MUL/DIV and a
// zero exponent on POW, without requiring the other operand to be
// constant too.
func foldIdentity(n *ast.Node) (*ast.Node, bool) {
	switch n.Op {
	case keyword.OpAdd:
		if isConst(n.Left, 0) {
			return n.Right, true
		}
		if isConst(n.Right, 0) {
			return n.Left, true
		}
	case keyword.OpSub:
		if isConst(n.Right, 0) {
			return n.Left, true
		}
	case keyword.OpMul:
		if isConst(n.Left, 1) {
			return n.Right, true
		}
		if isConst(n.Right, 1) {
			return n.Left, true
		}
	case keyword.OpDiv:
		if isConst(n.Right, 1) {
			return n.Left, true
		}
	case keyword.OpPow:
		if isConst(n.Right, 0) {
			return ast.Const(1), true
		}
		if isConst(n.Right, 1) {
			return n.Left, true
		}
	}
	return nil, false
}

func isConst(n *ast.Node, v float64) bool {
	return n != nil && n.Kind == ast.Constant && n.Num == v
}
