// Package golang implements the ruleflow dialect for Go decision engines.
//
// Packages and rules are closures assigned inside the orchestration function:
//
//	func ruleflow(input *decision.Input, output *decision.Output) {
//		package_init := func() {
//			rule_default := func() { ... }
//			rule_default()
//		}
//		package_init()
//	}
package golang

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/scanner"
	"go/token"
	"strings"

	"caseflow/internal/dialect"
	"caseflow/internal/domain"
)

const (
	// RuntimeImport is the import path of the decision runtime package.
	RuntimeImport = "caseflow/pkg/decision"
	never         = "false"
	defaultHeader = "package rules"
	defaultBase   = "decision.BaseDecisionEngine"
	bodyPrefix    = "package p\n\nfunc _() {\n"
)

type Dialect struct {
	conv dialect.Conventions
}

func New(conv dialect.Conventions) *Dialect {
	return &Dialect{conv: conv.WithDefaults()}
}

func (d *Dialect) Name() string                     { return "go" }
func (d *Dialect) FileName() string                 { return "engine.go" }
func (d *Dialect) Conventions() dialect.Conventions { return d.conv }

func parseError(err error) error {
	var list scanner.ErrorList
	if !errors.As(err, &list) || len(list) == 0 {
		return &domain.ParseError{Line: 1, Column: 1, Message: err.Error()}
	}
	return &domain.ParseError{Line: list[0].Pos.Line, Column: list[0].Pos.Column, Message: list[0].Msg}
}

// source pairs a parsed file with its text for offset slicing.
type source struct {
	fset *token.FileSet
	file *token.File
	src  []byte
}

func (s source) off(p token.Pos) int { return s.file.Offset(p) }

func (s source) text(n ast.Node) string {
	return string(s.src[s.off(n.Pos()):s.off(n.End())])
}

// block returns the dedented text of a statement with the comment lines above it.
func (s source) block(n ast.Node) string {
	start := dialect.LeadingComments(s.src, s.off(n.Pos()), "//")
	return dialect.Dedent(dialect.Slice(s.src, start, s.off(n.End())), literalRows)
}

// literalRows reports the lines that continue a raw string literal. Scanning
// works on fragments that do not parse on their own.
func literalRows(text string) map[int]bool {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(text))
	var sc scanner.Scanner
	sc.Init(file, []byte(text), nil, 0)
	rows := map[int]bool{}
	for {
		pos, tok, lit := sc.Scan()
		if tok == token.EOF {
			break
		}
		if tok != token.STRING || !strings.HasPrefix(lit, "`") {
			continue
		}
		first := fset.Position(pos).Line - 1
		for i := 1; i <= strings.Count(lit, "\n"); i++ {
			rows[first+i] = true
		}
	}
	return rows
}

func (s source) line(p token.Pos) int { return s.fset.Position(p).Line }

// parseBody parses statements by wrapping them in a function. The returned line
// delta maps wrapper lines back to lines of code.
func parseBody(code string) (source, *ast.BlockStmt, int, error) {
	src := []byte(bodyPrefix + code + "\n}\n")
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "rule.go", src, parser.ParseComments)
	if err != nil {
		pe := parseError(err)
		if p, ok := pe.(*domain.ParseError); ok {
			p.Line -= 3
		}
		return source{}, nil, 0, pe
	}
	fn := f.Decls[0].(*ast.FuncDecl)
	return source{fset: fset, file: fset.File(f.Pos()), src: src}, fn.Body, 3, nil
}

func exprString(e ast.Expr) string {
	var buf bytes.Buffer
	_ = printer.Fprint(&buf, token.NewFileSet(), e)
	return buf.String()
}

func (d *Dialect) CheckIdentifier(name string) error {
	if !token.IsIdentifier(name) {
		return fmt.Errorf("%w: %q is not a valid identifier", domain.ErrInvalidArgument, name)
	}
	return nil
}

func (d *Dialect) CheckCondition(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("%w: empty condition", domain.ErrInvalidArgument)
	}
	if _, err := parser.ParseExpr(expr); err != nil {
		return fmt.Errorf("%w: condition %q: %v", domain.ErrInvalidArgument, expr, err)
	}
	return nil
}

func (d *Dialect) traceStatement(name string) string {
	out := d.conv.OutputName
	return fmt.Sprintf("%s.Details = append(%s.Details, %q)", out, out, name)
}

// closure matches `name := func() {...}` and returns name and the literal.
func closure(st ast.Stmt) (string, *ast.FuncLit, bool) {
	as, ok := st.(*ast.AssignStmt)
	if !ok || as.Tok != token.DEFINE || len(as.Lhs) != 1 || len(as.Rhs) != 1 {
		return "", nil, false
	}
	id, ok := as.Lhs[0].(*ast.Ident)
	if !ok {
		return "", nil, false
	}
	lit, ok := as.Rhs[0].(*ast.FuncLit)
	if !ok {
		return "", nil, false
	}
	return id.Name, lit, true
}

func (d *Dialect) RuleCode(name, code string) (string, error) {
	if err := d.CheckIdentifier(name); err != nil {
		return "", err
	}
	body := dialect.Dedent(code, literalRows)
	if body != "" {
		_, blk, _, err := parseBody(body)
		if err != nil {
			return "", err
		}
		if len(blk.List) == 1 {
			if got, _, ok := closure(blk.List[0]); ok {
				if got != name {
					return "", fmt.Errorf("%w: code defines %s, expected %s", domain.ErrInvalidArgument, got, name)
				}
				return body, nil
			}
		}
	}
	lines := d.traceStatement(name)
	if body != "" {
		lines += "\n" + body
	}
	return name + " := func() {\n" + dialect.Indent(lines, "\t", literalRows) + "\n}", nil
}

func (d *Dialect) NewStructure(className string) *domain.Structure {
	s := &domain.Structure{
		Header:          defaultHeader,
		Imports:         []string{fmt.Sprintf("import %q", RuntimeImport)},
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
