// Package python implements the ruleflow dialect for Python decision engines
// using tree-sitter.
package python

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"caseflow/internal/dialect"
	"caseflow/internal/domain"
)

// Runtime is the decision_engine module generated engines import.
//
//go:embed runtime/decision_engine.py
var Runtime []byte

const (
	never         = "False"
	indentUnit    = "    "
	runtimeImport = "from decision_engine import BaseDecisionEngine, DecisionOutput, bump_priority"
	defaultBase   = "BaseDecisionEngine"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true, "assert": true,
	"async": true, "await": true, "break": true, "class": true, "continue": true,
	"def": true, "del": true, "elif": true, "else": true, "except": true, "finally": true,
	"for": true, "from": true, "global": true, "if": true, "import": true, "in": true,
	"is": true, "lambda": true, "nonlocal": true, "not": true, "or": true, "pass": true,
	"raise": true, "return": true, "try": true, "while": true, "with": true, "yield": true,
}

type Dialect struct {
	conv dialect.Conventions
}

func New(conv dialect.Conventions) *Dialect {
	return &Dialect{conv: conv.WithDefaults()}
}

func (d *Dialect) Name() string                     { return "python" }
func (d *Dialect) FileName() string                 { return "engine.py" }
func (d *Dialect) Conventions() dialect.Conventions { return d.conv }

// parse returns a tree free of syntax errors or a *domain.ParseError.
func parse(src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter: %w", err)
	}
	if bad := firstError(tree.RootNode()); bad != nil {
		pos := bad.StartPoint()
		msg := "invalid syntax"
		if bad.IsMissing() {
			msg = fmt.Sprintf("missing %s", bad.Type())
		} else if bad.EndByte() > bad.StartByte() {
			msg = fmt.Sprintf("invalid syntax near %q", snippet(bad.Content(src)))
		}
		tree.Close()
		return nil, &domain.ParseError{Line: int(pos.Row) + 1, Column: int(pos.Column) + 1, Message: msg}
	}
	if n := misaligned(tree.RootNode(), src); n != nil {
		pos := n.StartPoint()
		tree.Close()
		return nil, &domain.ParseError{Line: int(pos.Row) + 1, Column: int(pos.Column) + 1, Message: "unindent does not match any outer indentation level"}
	}
	return tree, nil
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := firstError(n.Child(i)); bad != nil {
			return bad
		}
	}
	return n
}

// misaligned returns the first statement that starts a line at a different
// column than the earlier statements of its block. tree-sitter tolerates such
// dedents, the interpreter does not.
func misaligned(n *sitter.Node, src []byte) *sitter.Node {
	if n.Type() == "module" || n.Type() == "block" {
		col := -1
		for _, c := range namedChildren(n) {
			start := int(c.StartByte())
			if strings.TrimSpace(string(src[dialect.LineStart(src, start):start])) != "" {
				continue
			}
			switch {
			case col < 0:
				col = int(c.StartPoint().Column)
			case int(c.StartPoint().Column) != col:
				return c
			}
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if bad := misaligned(n.NamedChild(i), src); bad != nil {
			return bad
		}
	}
	return nil
}

// literalRows reports the lines that continue a multi-line string. An indented
// fragment is parsed inside an if block so tree-sitter accepts its first line.
func literalRows(text string) map[int]bool {
	src, shift := []byte(text), 0
	for _, l := range dialect.Lines(text) {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if l[0] == ' ' || l[0] == '\t' {
			src, shift = append([]byte("if True:\n"), src...), 1
		}
		break
	}
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil
	}
	defer tree.Close()
	rows := map[int]bool{}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "string" {
			for r := int(n.StartPoint().Row) + 1; r <= int(n.EndPoint().Row); r++ {
				rows[r-shift] = true
			}
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())
	return rows
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}

// namedChildren skips comments, which tree-sitter attaches anywhere.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// funcDef unwraps a decorated definition to its function_definition.
func funcDef(n *sitter.Node) *sitter.Node {
	switch n.Type() {
	case "function_definition":
		return n
	case "decorated_definition":
		if def := n.ChildByFieldName("definition"); def != nil && def.Type() == "function_definition" {
			return def
		}
	}
	return nil
}

func classDef(n *sitter.Node) *sitter.Node {
	switch n.Type() {
	case "class_definition":
		return n
	case "decorated_definition":
		if def := n.ChildByFieldName("definition"); def != nil && def.Type() == "class_definition" {
			return def
		}
	}
	return nil
}

func nameOf(def *sitter.Node, src []byte) string {
	if name := def.ChildByFieldName("name"); name != nil {
		return name.Content(src)
	}
	return ""
}

func (d *Dialect) CheckIdentifier(name string) error {
	if !identRe.MatchString(name) || keywords[name] {
		return fmt.Errorf("%w: %q is not a valid identifier", domain.ErrInvalidArgument, name)
	}
	return nil
}

func (d *Dialect) CheckCondition(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fmt.Errorf("%w: empty condition", domain.ErrInvalidArgument)
	}
	src := []byte("if " + expr + ":\n" + indentUnit + "pass\n")
	tree, err := parse(src)
	if err != nil {
		return fmt.Errorf("%w: condition %q: %v", domain.ErrInvalidArgument, expr, err)
	}
	defer tree.Close()
	stmts := namedChildren(tree.RootNode())
	if len(stmts) != 1 || stmts[0].Type() != "if_statement" {
		return fmt.Errorf("%w: condition %q is not a single expression", domain.ErrInvalidArgument, expr)
	}
	cond := stmts[0].ChildByFieldName("condition")
	if cond == nil || int(cond.EndByte()) != 3+len(expr) || stmts[0].ChildByFieldName("alternative") != nil {
		return fmt.Errorf("%w: condition %q is not a single expression", domain.ErrInvalidArgument, expr)
	}
	return nil
}

func (d *Dialect) traceStatement(name string) string {
	return fmt.Sprintf("%s.details.append(%q)", d.conv.OutputName, name)
}

func (d *Dialect) RuleCode(name, code string) (string, error) {
	if err := d.CheckIdentifier(name); err != nil {
		return "", err
	}
	body := dialect.Dedent(code, literalRows)
	if body != "" {
		tree, err := parse([]byte(body))
		if err != nil {
			return "", err
		}
		stmts := namedChildren(tree.RootNode())
		var def *sitter.Node
		if len(stmts) == 1 {
			def = funcDef(stmts[0])
		}
		if def != nil {
			got := nameOf(def, []byte(body))
			tree.Close()
			if got != name {
				return "", fmt.Errorf("%w: code defines %s, expected %s", domain.ErrInvalidArgument, got, name)
			}
			return body, nil
		}
		tree.Close()
	}
	lines := d.traceStatement(name)
	if body != "" {
		lines += "\n" + body
	}
	return "def " + name + "():\n" + dialect.Indent(lines, indentUnit, literalRows), nil
}

func (d *Dialect) NewStructure(className string) *domain.Structure {
	s := &domain.Structure{
		Imports:         []string{runtimeImport},
		Constants:       []string{},
		HelperFunctions: []string{},
		Packages:        []domain.Package{},
		HasRuleflow:     true,
		ClassName:       className,
	}
	if className != "" {
		s.ClassBase = defaultBase
	}
	return s
}
