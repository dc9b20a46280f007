package python

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Binding strength of a condition expression, weakest first.
const (
	precLowest = iota
	precOr
	precAnd
	precNot
	precCompare
	precAtom
)

type cond struct {
	text string
	prec int
	// neg is the operand of a not, so that negating twice yields it back.
	neg *cond
}

func (c *cond) ptr() *string {
	if c == nil {
		return nil
	}
	s := c.text
	return &s
}

func (c *cond) wrap(min int) string {
	if c.prec < min {
		return "(" + c.text + ")"
	}
	return c.text
}

func (c *cond) negate() *cond {
	if c == nil {
		return nil
	}
	if c.neg != nil {
		return c.neg
	}
	return &cond{text: "not " + c.wrap(precAtom), prec: precNot, neg: c}
}

func and(a, b *cond) *cond {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return &cond{text: a.wrap(precAnd) + " and " + b.wrap(precAnd), prec: precAnd}
}

func or(a, b *cond) *cond {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return &cond{text: a.wrap(precOr) + " or " + b.wrap(precOr), prec: precOr}
}

func condOf(n *sitter.Node, src []byte) *cond {
	c := &cond{text: unparse(n, src), prec: precAtom}
	switch n.Type() {
	case "boolean_operator":
		c.prec = precOr
		if op := n.ChildByFieldName("operator"); op != nil && op.Type() == "and" {
			c.prec = precAnd
		}
	case "not_operator":
		c.prec = precNot
		if arg := n.ChildByFieldName("argument"); arg != nil {
			c.neg = condOf(arg, src)
		}
	case "comparison_operator":
		c.prec = precCompare
	case "conditional_expression", "lambda", "named_expression":
		c.prec = precLowest
	}
	return c
}

// unparse renders an expression from its tokens: comments and line breaks are
// dropped and any run of whitespace between two tokens becomes one space.
func unparse(n *sitter.Node, src []byte) string {
	var (
		b    strings.Builder
		last = -1
	)
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "comment" {
			return
		}
		if n.ChildCount() == 0 || n.Type() == "string" {
			if last >= 0 && int(n.StartByte()) > last {
				b.WriteByte(' ')
			}
			b.WriteString(n.Content(src))
			last = int(n.EndByte())
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(n)
	return b.String()
}
