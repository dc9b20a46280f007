package golang

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"caseflow/internal/dialect"
	"caseflow/internal/domain"
)

type extractor struct {
	conv dialect.Conventions
	source
	s *domain.Structure
}

func (d *Dialect) Parse(src []byte) (*domain.Structure, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, d.FileName(), src, parser.ParseComments)
	if err != nil {
		return nil, parseError(err)
	}
	x := extractor{
		conv:   d.conv,
		source: source{fset: fset, file: fset.File(f.Pos()), src: src},
		s: &domain.Structure{
			Imports:         []string{},
			Constants:       []string{},
			HelperFunctions: []string{},
			Packages:        []domain.Package{},
		},
	}
	x.header(f)
	class := x.pickClass(f)
	for _, decl := range f.Decls {
		text := x.declText(decl)
		switch decl := decl.(type) {
		case *ast.GenDecl:
			switch decl.Tok {
			case token.IMPORT:
				x.s.Imports = append(x.s.Imports, text)
			case token.CONST, token.VAR:
				x.s.Constants = append(x.s.Constants, text)
			default:
				if class != nil && len(decl.Specs) == 1 && decl.Specs[0] == class {
					x.decisionClass(class)
					continue
				}
				x.s.Passthrough = append(x.s.Passthrough, text)
			}
		case *ast.FuncDecl:
			switch x.funcRole(decl) {
			case dialect.RoleOrchestration:
				x.s.HasRuleflow = true
				x.orchestration(decl.Body)
			case dialect.RoleDecisionClass:
				if decl.Name.Name != "Decide" {
					x.s.ClassMembers = append(x.s.ClassMembers, text)
				}
			case dialect.RolePassthrough:
				x.s.Passthrough = append(x.s.Passthrough, text)
			default:
				x.s.HelperFunctions = append(x.s.HelperFunctions, text)
			}
		}
	}
	return x.s, nil
}

func (x *extractor) header(f *ast.File) {
	end := x.off(f.Name.End())
	if i := strings.IndexByte(string(x.src[end:]), '\n'); i >= 0 {
		end += i
	} else {
		end = len(x.src)
	}
	x.s.Header = strings.TrimSpace(string(x.src[:end]))
}

func (x *extractor) declText(decl ast.Decl) string {
	start := decl.Pos()
	switch decl := decl.(type) {
	case *ast.GenDecl:
		if decl.Doc != nil {
			start = decl.Doc.Pos()
		}
	case *ast.FuncDecl:
		if decl.Doc != nil {
			start = decl.Doc.Pos()
		}
	}
	return string(x.src[x.off(start):x.off(decl.End())])
}

func (x *extractor) funcRole(fn *ast.FuncDecl) dialect.Role {
	if fn.Recv != nil && len(fn.Recv.List) == 1 {
		if x.s.ClassName != "" && receiverName(fn.Recv.List[0].Type) == x.s.ClassName {
			return dialect.RoleDecisionClass
		}
		return dialect.RolePassthrough
	}
	if fn.Recv == nil && fn.Name.Name == x.conv.Orchestration && !x.s.HasRuleflow && fn.Body != nil {
		return dialect.RoleOrchestration
	}
	return dialect.RoleHelper
}

func receiverName(t ast.Expr) string {
	switch t := t.(type) {
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverName(t.X)
	}
	return ""
}

// pickClass prefers a struct embedding a marker type, then a struct named after the marker.
// The class name is recorded before methods are classified.
func (x *extractor) pickClass(f *ast.File) *ast.TypeSpec {
	var byName *ast.TypeSpec
	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE || len(gd.Specs) != 1 {
			continue
		}
		ts := gd.Specs[0].(*ast.TypeSpec)
		st, ok := ts.Type.(*ast.StructType)
		if !ok {
			continue
		}
		for _, field := range st.Fields.List {
			if len(field.Names) == 0 && strings.Contains(exprString(field.Type), x.conv.ClassMarker) {
				x.s.ClassName = ts.Name.Name
				return ts
			}
		}
		if byName == nil && strings.Contains(ts.Name.Name, x.conv.ClassMarker) {
			byName = ts
		}
	}
	if byName != nil {
		x.s.ClassName = byName.Name.Name
	}
	return byName
}

func (x *extractor) decisionClass(ts *ast.TypeSpec) {
	st := ts.Type.(*ast.StructType)
	for _, field := range st.Fields.List {
		if x.s.ClassBase == "" && len(field.Names) == 0 && strings.Contains(exprString(field.Type), x.conv.ClassMarker) {
			x.s.ClassBase = exprString(field.Type)
			continue
		}
		x.s.ClassFields = append(x.s.ClassFields, x.block(field))
	}
}

// scope collects closures carrying role, the calls that invoke them and every
// other statement of a body, anchored to the call it follows.
type scope struct {
	defs  map[string]ast.Stmt
	order []string
	calls []dialect.Call
	setup []domain.Statement
}

func (x *extractor) scan(body *ast.BlockStmt, role dialect.Role) scope {
	sc := scope{defs: map[string]ast.Stmt{}}
	for _, st := range body.List {
		name, _, ok := closure(st)
		if !ok || x.conv.FunctionRole(name) != role {
			continue
		}
		if _, seen := sc.defs[name]; seen {
			continue
		}
		sc.order = append(sc.order, name)
		sc.defs[name] = st
	}
	var (
		after   string
		started bool
	)
	for _, st := range body.List {
		if _, ok := st.(*ast.EmptyStmt); ok {
			continue
		}
		if name, _, ok := closure(st); ok && sc.defs[name] == st {
			started = true
			continue
		}
		if calls, ok := x.gated(st, nil, sc.defs); ok {
			sc.calls = append(sc.calls, calls...)
			after, started = calls[len(calls)-1].Name, true
			continue
		}
		sc.setup = append(sc.setup, domain.Statement{Code: x.block(st), After: after, Prelude: !started})
	}
	return sc
}

func (x *extractor) orchestration(body *ast.BlockStmt) {
	sc := x.scan(body, dialect.RolePackage)
	x.s.Setup = sc.setup
	for i, call := range dialect.ResolveOrder(sc.order, sc.calls, never) {
		x.s.Packages = append(x.s.Packages, x.pkg(sc.defs[call.Name], call, i))
	}
}

func (x *extractor) pkg(def ast.Stmt, call dialect.Call, order int) domain.Package {
	_, lit, _ := closure(def)
	p := domain.Package{
		Name:           call.Name,
		Doc:            x.doc(def),
		Condition:      call.Condition,
		ExecutionOrder: order,
		Rules:          []domain.Rule{},
	}
	sc := x.scan(lit.Body, dialect.RoleRule)
	p.Setup = sc.setup
	for _, rc := range dialect.ResolveOrder(sc.order, sc.calls, never) {
		p.Rules = append(p.Rules, domain.Rule{
			Name:      rc.Name,
			Code:      x.block(sc.defs[rc.Name]),
			Condition: rc.Condition,
		})
	}
	return p
}

func (x *extractor) doc(n ast.Node) string {
	start := dialect.LeadingComments(x.src, x.off(n.Pos()), "//")
	ls := dialect.LineStart(x.src, x.off(n.Pos()))
	if start >= ls {
		return ""
	}
	return dialect.Dedent(string(x.src[start:ls]), nil)
}

// gated reports whether st is a bare call of a known closure or an if statement
// made only of such calls, flattening conditions along the way.
func (x *extractor) gated(st ast.Stmt, outer ast.Expr, known map[string]ast.Stmt) ([]dialect.Call, bool) {
	switch st := st.(type) {
	case *ast.ExprStmt:
		call, ok := st.X.(*ast.CallExpr)
		if !ok || len(call.Args) != 0 {
			return nil, false
		}
		id, ok := call.Fun.(*ast.Ident)
		if !ok {
			return nil, false
		}
		if _, ok := known[id.Name]; !ok {
			return nil, false
		}
		return []dialect.Call{{Name: id.Name, Condition: condText(outer)}}, true
	case *ast.IfStmt:
		return x.gatedIf(st, outer, nil, known)
	}
	return nil, false
}

func (x *extractor) gatedIf(st *ast.IfStmt, outer, earlier ast.Expr, known map[string]ast.Stmt) ([]dialect.Call, bool) {
	if st.Init != nil {
		return nil, false
	}
	var calls []dialect.Call
	branch := func(test ast.Expr, list []ast.Stmt) bool {
		if len(list) == 0 {
			return false
		}
		gate := and(outer, and(negate(earlier), test))
		for _, s := range list {
			c, ok := x.gated(s, gate, known)
			if !ok {
				return false
			}
			calls = append(calls, c...)
		}
		return true
	}
	if !branch(st.Cond, st.Body.List) {
		return nil, false
	}
	earlier = or(earlier, st.Cond)
	switch e := st.Else.(type) {
	case nil:
	case *ast.BlockStmt:
		if !branch(nil, e.List) {
			return nil, false
		}
	case *ast.IfStmt:
		more, ok := x.gatedIf(e, outer, earlier, known)
		if !ok {
			return nil, false
		}
		calls = append(calls, more...)
	default:
		return nil, false
	}
	return calls, true
}
