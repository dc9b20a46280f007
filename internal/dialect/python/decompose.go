package python

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"caseflow/internal/dialect"
	"caseflow/internal/domain"
)

func (d *Dialect) Decompose(rule domain.Rule) (domain.Decomposition, error) {
	code := dialect.Dedent(rule.Code, literalRows)
	src := []byte(code)
	tree, err := parse(src)
	if err != nil {
		return domain.Decomposition{}, err
	}
	defer tree.Close()
	var fn *sitter.Node
	for _, st := range namedChildren(tree.RootNode()) {
		if fn = funcDef(st); fn != nil {
			break
		}
	}
	if fn == nil {
		return domain.Decomposition{}, fmt.Errorf("%w: rule %s does not define a function", domain.ErrInvalidArgument, rule.Name)
	}
	body := fn.ChildByFieldName("body")
	lines := dialect.Lines(code)
	bodyRow := int(body.StartPoint().Row)
	var signature, free string
	if bodyRow > int(fn.StartPoint().Row) {
		signature = strings.Join(lines[:bodyRow], "\n")
		free = strings.Join(lines[bodyRow:], "\n")
	} else {
		// one-line definition
		signature = strings.TrimRight(code[:body.StartByte()], " \t")
		free = code[body.StartByte():]
		bodyRow = 0
		free = strings.Repeat("\n", int(body.StartPoint().Row)) + free
	}

	drop := map[int]bool{}
	var assigns []domain.OutputAssignment
	var visit func(n *sitter.Node, depth int)
	visit = func(n *sitter.Node, depth int) {
		for _, c := range namedChildren(n) {
			switch c.Type() {
			case "function_definition", "class_definition", "decorated_definition", "lambda":
				continue
			case "expression_statement":
				a, ok := d.outputStatement(c, src)
				if !ok {
					continue
				}
				a.LineOffset = int(c.StartPoint().Row)
				owns := depth == 0 && ownsLines(src, c)
				a.Nested = !owns
				if owns {
					for r := int(c.StartPoint().Row); r <= int(c.EndPoint().Row); r++ {
						drop[r-bodyRow] = true
					}
				}
				assigns = append(assigns, a)
				continue
			}
			next := depth
			if c.Type() == "block" {
				next++
			}
			visit(c, next)
		}
	}
	visit(body, 0)
	if assigns == nil {
		assigns = []domain.OutputAssignment{}
	}
	return domain.Decomposition{
		Signature:         dialect.Dedent(signature, literalRows),
		FreeCode:          dialect.Dedent(dialect.RemoveLines(free, drop), literalRows),
		OutputAssignments: assigns,
	}, nil
}

// ownsLines reports whether n is alone on its lines, ignoring a trailing comment.
func ownsLines(src []byte, n *sitter.Node) bool {
	start := int(n.StartByte())
	if strings.TrimSpace(string(src[dialect.LineStart(src, start):start])) != "" {
		return false
	}
	end := int(n.EndByte())
	rest := src[end:]
	if i := strings.IndexByte(string(rest), '\n'); i >= 0 {
		rest = rest[:i]
	}
	tail := strings.TrimSpace(string(rest))
	return tail == "" || strings.HasPrefix(tail, "#")
}

// outputStatement matches `output.a.b = v` and `output.a.append(v)`.
func (d *Dialect) outputStatement(st *sitter.Node, src []byte) (domain.OutputAssignment, bool) {
	kids := namedChildren(st)
	if len(kids) != 1 {
		return domain.OutputAssignment{}, false
	}
	e := kids[0]
	switch e.Type() {
	case "assignment":
		left, right := e.ChildByFieldName("left"), e.ChildByFieldName("right")
		if right == nil || e.ChildByFieldName("type") != nil || right.Type() == "assignment" {
			return domain.OutputAssignment{}, false
		}
		path, ok := d.outputPath(left, src)
		if !ok {
			return domain.OutputAssignment{}, false
		}
		return domain.OutputAssignment{Attribute: path, Value: right.Content(src)}, true
	case "call":
		fn := e.ChildByFieldName("function")
		if fn == nil || fn.Type() != "attribute" || fn.ChildByFieldName("attribute").Content(src) != "append" {
			return domain.OutputAssignment{}, false
		}
		path, ok := d.outputPath(fn.ChildByFieldName("object"), src)
		if !ok {
			return domain.OutputAssignment{}, false
		}
		args := e.ChildByFieldName("arguments")
		if args == nil || args.Type() != "argument_list" {
			return domain.OutputAssignment{}, false
		}
		list := namedChildren(args)
		if len(list) != 1 {
			return domain.OutputAssignment{}, false
		}
		switch list[0].Type() {
		case "keyword_argument", "list_splat", "dictionary_splat":
			return domain.OutputAssignment{}, false
		}
		return domain.OutputAssignment{Attribute: path + domain.AppendMarker, Value: list[0].Content(src)}, true
	}
	return domain.OutputAssignment{}, false
}

func (d *Dialect) outputPath(n *sitter.Node, src []byte) (string, bool) {
	var parts []string
	for n != nil && n.Type() == "attribute" {
		parts = append([]string{n.ChildByFieldName("attribute").Content(src)}, parts...)
		n = n.ChildByFieldName("object")
	}
	if n == nil || n.Type() != "identifier" || n.Content(src) != d.conv.OutputName || len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "."), true
}
