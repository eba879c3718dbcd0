package ast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rivergrove/stak/internal/intern"
	"github.com/rivergrove/stak/internal/keyword"
)

// Format renders tree in the textual AST format of spec §6: every node is
// "(VALUE CHILD1, CHILD2)". Two children are separated by ", "; a node whose
// only child is Right writes a single space and that child; a node whose
// only child is Left writes that child followed by ", ()" so Parse can tell
// it apart from a Right-only node; a node with no children writes its VALUE
// alone, and a nil root renders as "()".
// Constants print via %.17g (round-trips through strconv.ParseFloat),
// identifiers print as their interned text in double quotes, and function
// nodes print their AST opcode name.
func Format(tree *Tree) string {
	var b strings.Builder
	formatNode(&b, tree.Root, tree.Interner)
	return b.String()
}

func formatNode(b *strings.Builder, n *Node, interner *intern.Pool) {
	if n == nil {
		b.WriteString("()")
		return
	}

	b.WriteByte('(')
	switch n.Kind {
	case Constant:
		fmt.Fprintf(b, "%s", formatFloat(n.Num))
	case Ident:
		b.WriteByte('"')
		b.WriteString(interner.Get(n.Sym))
		b.WriteByte('"')
	case Function:
		b.WriteString(n.Op.String())
	}

	hasLeft, hasRight := n.Left != nil, n.Right != nil
	switch {
	case hasLeft && hasRight:
		b.WriteByte(' ')
		formatNode(b, n.Left, interner)
		b.WriteString(", ")
		formatNode(b, n.Right, interner)
	case hasLeft:
		b.WriteByte(' ')
		formatNode(b, n.Left, interner)
		b.WriteString(", ()")
	case hasRight:
		b.WriteByte(' ')
		formatNode(b, n.Right, interner)
	}
	b.WriteByte(')')
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 17, 64)
}

// Parse reads the textual format produced by Format back into a Tree,
// interning identifiers into a fresh pool. It is used by tests to assert a
// round trip and by tooling that re-reads a serialized frontend/midend AST.
func Parse(text string) (*Tree, error) {
	tree := NewTree()
	p := &textParser{src: text}
	p.skipSpace()
	root, err := p.parseNode(tree.Interner)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("ast: trailing text at offset %d", p.pos)
	}
	tree.Root = root
	tree.Recount()
	return tree, nil
}

type textParser struct {
	src string
	pos int
}

func (p *textParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n' || p.src[p.pos] == '\r') {
		p.pos++
	}
}

func (p *textParser) parseNode(interner *intern.Pool) (*Node, error) {
	if p.pos >= len(p.src) || p.src[p.pos] != '(' {
		return nil, fmt.Errorf("ast: expected '(' at offset %d", p.pos)
	}
	p.pos++
	p.skipSpace()

	if p.pos < len(p.src) && p.src[p.pos] == ')' {
		p.pos++
		return nil, nil
	}

	var node *Node
	switch {
	case p.src[p.pos] == '"':
		name, err := p.parseQuoted()
		if err != nil {
			return nil, err
		}
		node = Var(interner.GetOrAdd([]byte(name)))
	case isFloatStart(p.src[p.pos]):
		num, err := p.parseNumber()
		if err != nil {
			return nil, err
		}
		node = Const(num)
	default:
		name, err := p.parseBareWord()
		if err != nil {
			return nil, err
		}
		op, ok := keyword.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("ast: unknown opcode name %q at offset %d", name, p.pos)
		}
		node = &Node{Kind: Function, Op: op}
	}

	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == ')' {
		p.pos++
		return node, nil
	}

	first, err := p.parseNode(interner)
	if err != nil {
		return nil, err
	}
	p.skipSpace()

	if p.pos < len(p.src) && p.src[p.pos] == ',' {
		p.pos++
		p.skipSpace()
		second, err := p.parseNode(interner)
		if err != nil {
			return nil, err
		}
		node.Left, node.Right = first, second
		p.skipSpace()
	} else {
		// Format writes a Left-only node as "(VALUE LEFT, ())", so a
		// lone child without a ", " separator is always a Right child.
		node.Right = first
	}

	if p.pos >= len(p.src) || p.src[p.pos] != ')' {
		return nil, fmt.Errorf("ast: expected ')' at offset %d", p.pos)
	}
	p.pos++
	return node, nil
}

func (p *textParser) parseQuoted() (string, error) {
	if p.src[p.pos] != '"' {
		return "", fmt.Errorf("ast: expected '\"' at offset %d", p.pos)
	}
	p.pos++
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != '"' {
		p.pos++
	}
	if p.pos >= len(p.src) {
		return "", fmt.Errorf("ast: unterminated quoted identifier at offset %d", start)
	}
	text := p.src[start:p.pos]
	p.pos++
	return text, nil
}

func (p *textParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) && strings.ContainsRune("0123456789.eE+-", rune(p.src[p.pos])) {
		p.pos++
	}
	return strconv.ParseFloat(p.src[start:p.pos], 64)
}

func (p *textParser) parseBareWord() (string, error) {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != ' ' && p.src[p.pos] != ')' && p.src[p.pos] != ',' {
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf("ast: expected an opcode name at offset %d", p.pos)
	}
	return p.src[start:p.pos], nil
}

func isFloatStart(b byte) bool {
	return (b >= '0' && b <= '9') || b == '-' || b == '+'
}
