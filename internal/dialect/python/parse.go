package python

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"caseflow/internal/dialect"
	"caseflow/internal/domain"
)

type extractor struct {
	conv dialect.Conventions
	src  []byte
	s    *domain.Structure
}

// chunk is one top-level statement together with the comments glued to it.
type chunk struct {
	node  *sitter.Node
	role  dialect.Role
	start int
	end   int
}

func (d *Dialect) Parse(src []byte) (*domain.Structure, error) {
	tree, err := parse(src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	x := extractor{
		conv: d.conv,
		src:  src,
		s: &domain.Structure{
			Imports:         []string{},
			Constants:       []string{},
			HelperFunctions: []string{},
			Packages:        []domain.Package{},
		},
	}
	x.module(tree.RootNode())
	return x.s, nil
}

func (x *extractor) text(start, end int) string {
	return strings.TrimRight(dialect.Slice(x.src, start, end), " \t\n")
}

func (x *extractor) row(n *sitter.Node) int { return int(n.StartPoint().Row) }

func (x *extractor) module(root *sitter.Node) {
	var (
		chunks  []chunk
		pending []*sitter.Node
		header  []string
		started bool
	)
	flushDetached := func(detached []*sitter.Node) {
		if len(detached) == 0 {
			return
		}
		text := x.text(int(detached[0].StartByte()), int(detached[len(detached)-1].EndByte()))
		if !started {
			header = append(header, text)
			return
		}
		chunks = append(chunks, chunk{role: dialect.RolePassthrough, start: int(detached[0].StartByte()), end: int(detached[len(detached)-1].EndByte())})
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		if n.Type() == "comment" {
			// trailing comment on the same line as the previous statement
			if len(pending) == 0 && len(chunks) > 0 {
				last := &chunks[len(chunks)-1]
				if last.node != nil && n.StartPoint().Row == last.node.EndPoint().Row {
					last.end = int(n.EndByte())
					continue
				}
			}
			pending = append(pending, n)
			continue
		}
		attached, detached := splitComments(pending, n)
		pending = nil
		flushDetached(detached)
		start := int(n.StartByte())
		if len(attached) > 0 {
			start = int(attached[0].StartByte())
		}
		if !started && isDocstring(n) {
			header = append(header, x.text(start, int(n.EndByte())))
			continue
		}
		started = true
		chunks = append(chunks, chunk{node: n, role: x.roleOf(n), start: start, end: int(n.EndByte())})
	}
	flushDetached(pending)
	x.s.Header = strings.Join(header, "\n\n")

	classIdx := x.pickClass(chunks)
	haveFlow := false
	for i, c := range chunks {
		text := x.text(c.start, c.end)
		switch c.role {
		case dialect.RoleImport:
			x.s.Imports = append(x.s.Imports, text)
		case dialect.RoleConstant:
			x.s.Constants = append(x.s.Constants, text)
		case dialect.RoleOrchestration:
			if haveFlow {
				x.s.HelperFunctions = append(x.s.HelperFunctions, text)
				continue
			}
			haveFlow = true
			x.orchestration(funcDef(c.node))
		case dialect.RoleHelper:
			x.s.HelperFunctions = append(x.s.HelperFunctions, text)
		case dialect.RoleDecisionClass:
			if i == classIdx {
				x.decisionClass(classDef(c.node))
				continue
			}
			x.s.Passthrough = append(x.s.Passthrough, text)
		default:
			x.s.Passthrough = append(x.s.Passthrough, text)
		}
	}
	x.s.HasRuleflow = haveFlow
}

// splitComments separates the comments directly above n from earlier, detached ones.
func splitComments(pending []*sitter.Node, n *sitter.Node) (attached, detached []*sitter.Node) {
	next := int(n.StartPoint().Row)
	cut := len(pending)
	for cut > 0 {
		c := pending[cut-1]
		if int(c.EndPoint().Row) != next-1 || c.StartPoint().Column != n.StartPoint().Column {
			break
		}
		next = int(c.StartPoint().Row)
		cut--
	}
	return pending[cut:], pending[:cut]
}

func isDocstring(n *sitter.Node) bool {
	if n.Type() != "expression_statement" {
		return false
	}
	kids := namedChildren(n)
	return len(kids) == 1 && (kids[0].Type() == "string" || kids[0].Type() == "concatenated_string")
}

func (x *extractor) roleOf(n *sitter.Node) dialect.Role {
	switch n.Type() {
	case "import_statement", "import_from_statement", "future_import_statement":
		return dialect.RoleImport
	case "expression_statement":
		if x.isConstant(n) {
			return dialect.RoleConstant
		}
		return dialect.RolePassthrough
	}
	if def := funcDef(n); def != nil {
		if x.conv.FunctionRole(nameOf(def, x.src)) == dialect.RoleOrchestration {
			return dialect.RoleOrchestration
		}
		return dialect.RoleHelper
	}
	if classDef(n) != nil {
		return dialect.RoleDecisionClass
	}
	return dialect.RolePassthrough
}

func (x *extractor) isConstant(n *sitter.Node) bool {
	kids := namedChildren(n)
	if len(kids) != 1 || kids[0].Type() != "assignment" {
		return false
	}
	left := kids[0].ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return false
	}
	name := left.Content(x.src)
	return name == strings.ToUpper(name) && strings.ToLower(name) != name
}

// pickClass prefers a class whose base names the marker, then one whose own name does.
func (x *extractor) pickClass(chunks []chunk) int {
	byName := -1
	for i, c := range chunks {
		if c.role != dialect.RoleDecisionClass {
			continue
		}
		cls := classDef(c.node)
		for _, base := range namedChildren(cls.ChildByFieldName("superclasses")) {
			if base.Type() == "keyword_argument" {
				continue
			}
			if strings.Contains(base.Content(x.src), x.conv.ClassMarker) {
				return i
			}
		}
		if byName < 0 && strings.Contains(nameOf(cls, x.src), x.conv.ClassMarker) {
			byName = i
		}
	}
	return byName
}

func (x *extractor) decisionClass(cls *sitter.Node) {
	x.s.ClassName = nameOf(cls, x.src)
	if bases := cls.ChildByFieldName("superclasses"); bases != nil {
		text := bases.Content(x.src)
		x.s.ClassBase = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(text, "("), ")"))
	}
	for _, m := range namedChildren(cls.ChildByFieldName("body")) {
		if m.Type() == "pass_statement" {
			continue
		}
		if def := funcDef(m); def != nil && nameOf(def, x.src) == "decide" {
			continue
		}
		x.s.ClassMembers = append(x.s.ClassMembers, x.definition(m))
	}
}

// definition returns the dedented text of a nested statement with its leading comments.
func (x *extractor) definition(n *sitter.Node) string {
	start := dialect.LeadingComments(x.src, int(n.StartByte()), "#")
	return dialect.Dedent(dialect.Slice(x.src, start, int(n.EndByte())), literalRows)
}

func (x *extractor) doc(n *sitter.Node) string {
	start := dialect.LeadingComments(x.src, int(n.StartByte()), "#")
	ls := dialect.LineStart(x.src, int(n.StartByte()))
	if start >= ls {
		return ""
	}
	return dialect.Dedent(string(x.src[start:ls]), nil)
}

// scope collects definitions carrying role inside a function body, the calls that
// invoke them and every other statement, anchored to the call it follows.
type scope struct {
	defs  map[string]*sitter.Node
	order []string
	calls []dialect.Call
	setup []domain.Statement
}

func (x *extractor) scan(body *sitter.Node, role dialect.Role, decorated bool) scope {
	sc := scope{defs: map[string]*sitter.Node{}}
	stmts := namedChildren(body)
	for _, st := range stmts {
		def := funcDef(st)
		if def == nil || (!decorated && st.Type() != "function_definition") {
			continue
		}
		name := nameOf(def, x.src)
		if x.conv.FunctionRole(name) != role {
			continue
		}
		if _, seen := sc.defs[name]; !seen {
			sc.order = append(sc.order, name)
		}
		sc.defs[name] = st
	}
	var (
		after   string
		started bool
	)
	for _, st := range stmts {
		if st.Type() == "pass_statement" {
			continue
		}
		if def := funcDef(st); def != nil {
			// shadowed duplicates are dropped, the last definition wins
			if owner, ok := sc.defs[nameOf(def, x.src)]; ok && (owner == st || st.Type() == owner.Type()) {
				started = true
				continue
			}
		}
		if calls, ok := x.gated(st, nil, sc.defs); ok {
			sc.calls = append(sc.calls, calls...)
			after, started = calls[len(calls)-1].Name, true
			continue
		}
		sc.setup = append(sc.setup, domain.Statement{Code: x.definition(st), After: after, Prelude: !started})
	}
	return sc
}

func (x *extractor) orchestration(fn *sitter.Node) {
	sc := x.scan(fn.ChildByFieldName("body"), dialect.RolePackage, false)
	x.s.Setup = sc.setup
	for i, call := range dialect.ResolveOrder(sc.order, sc.calls, never) {
		def := sc.defs[call.Name]
		x.s.Packages = append(x.s.Packages, x.pkg(def, call, i))
	}
}

func (x *extractor) pkg(def *sitter.Node, call dialect.Call, order int) domain.Package {
	p := domain.Package{
		Name:           call.Name,
		Doc:            x.doc(def),
		Condition:      call.Condition,
		ExecutionOrder: order,
		Rules:          []domain.Rule{},
	}
	sc := x.scan(def.ChildByFieldName("body"), dialect.RoleRule, true)
	p.Setup = sc.setup
	for _, rc := range dialect.ResolveOrder(sc.order, sc.calls, never) {
		p.Rules = append(p.Rules, domain.Rule{
			Name:      rc.Name,
			Code:      x.definition(sc.defs[rc.Name]),
			Condition: rc.Condition,
		})
	}
	return p
}

// gated reports whether st is a bare call of a known definition or an if
// statement made only of such calls, flattening conditions along the way.
func (x *extractor) gated(st *sitter.Node, outer *cond, known map[string]*sitter.Node) ([]dialect.Call, bool) {
	switch st.Type() {
	case "expression_statement":
		name, ok := x.bareCall(st, known)
		if !ok {
			return nil, false
		}
		return []dialect.Call{{Name: name, Condition: outer.ptr()}}, true
	case "if_statement":
	default:
		return nil, false
	}
	var (
		calls   []dialect.Call
		earlier *cond
	)
	branch := func(test *cond, block *sitter.Node) bool {
		gate := and(outer, and(earlier.negate(), test))
		stmts := namedChildren(block)
		if len(stmts) == 0 {
			return false
		}
		for _, s := range stmts {
			c, ok := x.gated(s, gate, known)
			if !ok {
				return false
			}
			calls = append(calls, c...)
		}
		return true
	}
	test := condOf(st.ChildByFieldName("condition"), x.src)
	if !branch(test, st.ChildByFieldName("consequence")) {
		return nil, false
	}
	earlier = test
	for i := 0; i < int(st.NamedChildCount()); i++ {
		alt := st.NamedChild(i)
		switch alt.Type() {
		case "elif_clause":
			t := condOf(alt.ChildByFieldName("condition"), x.src)
			if !branch(t, alt.ChildByFieldName("consequence")) {
				return nil, false
			}
			earlier = or(earlier, t)
		case "else_clause":
			if !branch(nil, alt.ChildByFieldName("body")) {
				return nil, false
			}
		}
	}
	return calls, true
}

func (x *extractor) bareCall(st *sitter.Node, known map[string]*sitter.Node) (string, bool) {
	kids := namedChildren(st)
	if len(kids) != 1 || kids[0].Type() != "call" {
		return "", false
	}
	fn := kids[0].ChildByFieldName("function")
	args := kids[0].ChildByFieldName("arguments")
	if fn == nil || fn.Type() != "identifier" || args == nil || len(namedChildren(args)) != 0 {
		return "", false
	}
	name := fn.Content(x.src)
	if _, ok := known[name]; !ok {
		return "", false
	}
	return name, true
}
