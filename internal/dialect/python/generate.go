package python

import (
	"sort"
	"strings"

	"caseflow/internal/dialect"
	"caseflow/internal/domain"
)

func (d *Dialect) Generate(s *domain.Structure) []byte {
	var head []string
	if s.Header != "" {
		head = append(head, s.Header)
	}
	if len(s.Imports) > 0 {
		head = append(head, strings.Join(s.Imports, "\n"))
	}
	if len(s.Constants) > 0 {
		head = append(head, strings.Join(s.Constants, "\n"))
	}
	out := strings.Join(head, "\n\n")
	blocks := make([]string, 0, len(s.HelperFunctions)+len(s.Passthrough)+2)
	blocks = append(blocks, s.HelperFunctions...)
	blocks = append(blocks, s.Passthrough...)
	blocks = append(blocks, d.orchestration(s))
	if s.ClassName != "" {
		blocks = append(blocks, d.class(s))
	}
	for _, b := range blocks {
		if out != "" {
			out += "\n\n\n"
		}
		out += b
	}
	return []byte(out + "\n")
}

func ordered(pkgs []domain.Package) []domain.Package {
	out := append([]domain.Package(nil), pkgs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutionOrder < out[j].ExecutionOrder })
	return out
}

func (d *Dialect) orchestration(s *domain.Structure) string {
	var body []string
	for _, st := range dialect.Prelude(s.Setup) {
		body = append(body, dialect.Reindent(st, indentUnit, literalRows))
	}
	pkgs := ordered(s.Packages)
	for _, p := range pkgs {
		body = append(body, d.packageDef(p, indentUnit))
	}
	calls := make([]call, 0, len(pkgs))
	for _, p := range pkgs {
		calls = append(calls, call{name: p.Name, condition: p.Condition})
	}
	if c := sequence(calls, s.Setup, indentUnit); c != "" {
		body = append(body, c)
	}
	if len(body) == 0 {
		body = append(body, indentUnit+"pass")
	}
	sig := "def " + d.conv.Orchestration + "(" + d.conv.InputName + ", " + d.conv.OutputName + "):"
	return sig + "\n" + strings.Join(body, "\n\n")
}

func (d *Dialect) packageDef(p domain.Package, indent string) string {
	inner := indent + indentUnit
	var parts []string
	for _, st := range dialect.Prelude(p.Setup) {
		parts = append(parts, dialect.Reindent(st, inner, literalRows))
	}
	for _, r := range p.Rules {
		parts = append(parts, d.rule(r, inner))
	}
	calls := make([]call, 0, len(p.Rules))
	for _, r := range p.Rules {
		calls = append(calls, call{name: r.Name, condition: r.Condition})
	}
	if c := sequence(calls, p.Setup, inner); c != "" {
		parts = append(parts, c)
	}
	if len(parts) == 0 {
		parts = append(parts, inner+"pass")
	}
	var b strings.Builder
	if p.Doc != "" {
		b.WriteString(dialect.Reindent(p.Doc, indent, nil))
		b.WriteString("\n")
	}
	b.WriteString(indent + "def " + p.Name + "():\n")
	b.WriteString(strings.Join(parts, "\n\n"))
	return b.String()
}

func (d *Dialect) rule(r domain.Rule, indent string) string {
	if r.Mode != domain.ModeComponent {
		return dialect.Reindent(r.Code, indent, literalRows)
	}
	inner := indent + indentUnit
	var lines []string
	if r.FreeCode != nil && strings.TrimSpace(*r.FreeCode) != "" {
		lines = append(lines, dialect.Reindent(*r.FreeCode, inner, literalRows))
	}
	for _, a := range r.OutputAssignments {
		if a.Nested {
			continue
		}
		target := d.conv.OutputName + "." + a.Path()
		if a.IsAppend() {
			lines = append(lines, inner+target+".append("+a.Value+")")
		} else {
			lines = append(lines, inner+target+" = "+a.Value)
		}
	}
	if len(lines) == 0 {
		lines = append(lines, inner+"pass")
	}
	return dialect.Reindent(r.Signature, indent, literalRows) + "\n" + strings.Join(lines, "\n")
}

type call struct {
	name      string
	condition *string
}

func (c call) line(indent string) string {
	if c.condition == nil {
		return indent + c.name + "()"
	}
	return indent + "if " + *c.condition + ":\n" + indent + indentUnit + c.name + "()"
}

// sequence renders the calls with the statements anchored between them.
func sequence(calls []call, setup []domain.Statement, indent string) string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.name
	}
	var lines []string
	for _, step := range dialect.Sequence(names, setup) {
		if step.Call < 0 {
			lines = append(lines, dialect.Reindent(step.Code, indent, literalRows))
			continue
		}
		lines = append(lines, calls[step.Call].line(indent))
	}
	return strings.Join(lines, "\n")
}

func (d *Dialect) class(s *domain.Structure) string {
	var b strings.Builder
	b.WriteString("class " + s.ClassName)
	if s.ClassBase != "" {
		b.WriteString("(" + s.ClassBase + ")")
	}
	b.WriteString(":\n")
	for _, m := range s.ClassMembers {
		b.WriteString(dialect.Reindent(m, indentUnit, literalRows))
		b.WriteString("\n\n")
	}
	in, out := d.conv.InputName, d.conv.OutputName
	b.WriteString(indentUnit + "def decide(self, " + in + "):\n")
	b.WriteString(indentUnit + indentUnit + out + " = DecisionOutput()\n")
	b.WriteString(indentUnit + indentUnit + d.conv.Orchestration + "(" + in + ", " + out + ")\n")
	b.WriteString(indentUnit + indentUnit + "return " + out)
	return b.String()
}
