package golang

import (
	"fmt"
	"go/ast"
	"go/token"
	"strings"

	"caseflow/internal/dialect"
	"caseflow/internal/domain"
)

func (d *Dialect) Decompose(rule domain.Rule) (domain.Decomposition, error) {
	code := dialect.Dedent(rule.Code, literalRows)
	src, blk, delta, err := parseBody(code)
	if err != nil {
		return domain.Decomposition{}, err
	}
	var lit *ast.FuncLit
	for _, st := range blk.List {
		if _, l, ok := closure(st); ok {
			lit = l
			break
		}
	}
	if lit == nil {
		return domain.Decomposition{}, fmt.Errorf("%w: rule %s does not define a closure", domain.ErrInvalidArgument, rule.Name)
	}
	// lines are zero-based within code
	lineOf := func(p token.Pos) int { return src.line(p) - delta - 1 }
	lines := dialect.Lines(code)
	open, closeLine := lineOf(lit.Body.Lbrace), lineOf(lit.Body.Rbrace)

	var signature, free string
	if open < closeLine {
		signature = strings.Join(lines[:open+1], "\n")
		free = strings.Join(lines[open+1:closeLine], "\n")
		free = strings.Repeat("\n", open+1) + free
	} else {
		// one-line closure
		lb, rb := src.off(lit.Body.Lbrace)-len(bodyPrefix), src.off(lit.Body.Rbrace)-len(bodyPrefix)
		signature = code[:lb+1]
		free = strings.Repeat("\n", open) + code[lb+1:rb]
	}

	drop := map[int]bool{}
	var assigns []domain.OutputAssignment
	var visit func(list []ast.Stmt, depth int)
	visit = func(list []ast.Stmt, depth int) {
		for _, st := range list {
			switch st := st.(type) {
			case *ast.AssignStmt:
				a, ok := d.outputStatement(src, st)
				if !ok {
					continue
				}
				a.LineOffset = lineOf(st.Pos())
				owns := depth == 0 && ownsLines(src, st)
				a.Nested = !owns
				if owns {
					for l := lineOf(st.Pos()); l <= lineOf(st.End()); l++ {
						drop[l] = true
					}
				}
				assigns = append(assigns, a)
			case *ast.IfStmt:
				visit(st.Body.List, depth+1)
				if st.Else != nil {
					visit([]ast.Stmt{st.Else}, depth+1)
				}
			case *ast.BlockStmt:
				visit(st.List, depth+1)
			case *ast.ForStmt:
				visit(st.Body.List, depth+1)
			case *ast.RangeStmt:
				visit(st.Body.List, depth+1)
			case *ast.SwitchStmt:
				visit(st.Body.List, depth+1)
			case *ast.TypeSwitchStmt:
				visit(st.Body.List, depth+1)
			case *ast.SelectStmt:
				visit(st.Body.List, depth+1)
			case *ast.CaseClause:
				visit(st.Body, depth)
			case *ast.CommClause:
				visit(st.Body, depth)
			case *ast.LabeledStmt:
				visit([]ast.Stmt{st.Stmt}, depth)
			}
		}
	}
	visit(lit.Body.List, 0)
	if assigns == nil {
		assigns = []domain.OutputAssignment{}
	}
	return domain.Decomposition{
		Signature:         dialect.Dedent(signature, literalRows),
		FreeCode:          dialect.Dedent(dialect.RemoveLines(free, drop), literalRows),
		OutputAssignments: assigns,
	}, nil
}

func ownsLines(src source, n ast.Node) bool {
	start := src.off(n.Pos())
	if strings.TrimSpace(string(src.src[dialect.LineStart(src.src, start):start])) != "" {
		return false
	}
	rest := string(src.src[src.off(n.End()):])
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	tail := strings.TrimSpace(rest)
	return tail == "" || strings.HasPrefix(tail, "//")
}

// outputStatement matches `output.A.B = v` and `output.A = append(output.A, v)`.
func (d *Dialect) outputStatement(src source, as *ast.AssignStmt) (domain.OutputAssignment, bool) {
	if as.Tok != token.ASSIGN || len(as.Lhs) != 1 || len(as.Rhs) != 1 {
		return domain.OutputAssignment{}, false
	}
	path, ok := d.outputPath(as.Lhs[0])
	if !ok {
		return domain.OutputAssignment{}, false
	}
	if call, ok := as.Rhs[0].(*ast.CallExpr); ok && len(call.Args) == 2 && call.Ellipsis == token.NoPos {
		if fn, ok := call.Fun.(*ast.Ident); ok && fn.Name == "append" {
			if p, ok := d.outputPath(call.Args[0]); ok && p == path {
				return domain.OutputAssignment{Attribute: path + domain.AppendMarker, Value: src.text(call.Args[1])}, true
			}
		}
	}
	return domain.OutputAssignment{Attribute: path, Value: src.text(as.Rhs[0])}, true
}

func (d *Dialect) outputPath(e ast.Expr) (string, bool) {
	var parts []string
	for {
		sel, ok := e.(*ast.SelectorExpr)
		if !ok {
			break
		}
		parts = append([]string{sel.Sel.Name}, parts...)
		e = sel.X
	}
	id, ok := e.(*ast.Ident)
	if !ok || id.Name != d.conv.OutputName || len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "."), true
}
