package golang

import (
	"go/format"
	"sort"
	"strings"

	"caseflow/internal/dialect"
	"caseflow/internal/domain"
)

// Generate renders s and runs the result through gofmt. Text gofmt rejects is
// returned unformatted so that re-parsing reports the error.
func (d *Dialect) Generate(s *domain.Structure) []byte {
	var b strings.Builder
	header := s.Header
	if header == "" {
		header = defaultHeader
	}
	b.WriteString(header + "\n\n")
	if len(s.Imports) > 0 {
		b.WriteString(strings.Join(s.Imports, "\n") + "\n\n")
	}
	for _, c := range s.Constants {
		b.WriteString(c + "\n\n")
	}
	for _, h := range s.HelperFunctions {
		b.WriteString(h + "\n\n")
	}
	for _, p := range s.Passthrough {
		b.WriteString(p + "\n\n")
	}
	b.WriteString(d.orchestration(s))
	if s.ClassName != "" {
		b.WriteString("\n\n" + d.class(s))
	}
	b.WriteString("\n")
	raw := []byte(b.String())
	out, err := format.Source(raw)
	if err != nil {
		return raw
	}
	return out
}

func ordered(pkgs []domain.Package) []domain.Package {
	out := append([]domain.Package(nil), pkgs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutionOrder < out[j].ExecutionOrder })
	return out
}

func (d *Dialect) orchestration(s *domain.Structure) string {
	// closures capture variables declared above them, so only the prelude
	// precedes the definitions
	var body []string
	for _, st := range dialect.Prelude(s.Setup) {
		body = append(body, dialect.Reindent(st, "\t", literalRows))
	}
	pkgs := ordered(s.Packages)
	for _, p := range pkgs {
		body = append(body, d.packageDef(p, "\t"))
	}
	calls := make([]call, 0, len(pkgs))
	for _, p := range pkgs {
		calls = append(calls, call{name: p.Name, condition: p.Condition})
	}
	if c := sequence(calls, s.Setup, "\t"); c != "" {
		body = append(body, c)
	}
	in, out := d.conv.InputName, d.conv.OutputName
	sig := "func " + d.conv.Orchestration + "(" + in + " *decision.Input, " + out + " *decision.Output) {"
	if len(body) == 0 {
		return sig + "\n}"
	}
	return sig + "\n" + strings.Join(body, "\n\n") + "\n}"
}

func (d *Dialect) packageDef(p domain.Package, indent string) string {
	inner := indent + "\t"
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
	var b strings.Builder
	if p.Doc != "" {
		b.WriteString(dialect.Reindent(p.Doc, indent, nil) + "\n")
	}
	b.WriteString(indent + p.Name + " := func() {\n")
	if len(parts) > 0 {
		b.WriteString(strings.Join(parts, "\n\n") + "\n")
	}
	b.WriteString(indent + "}")
	return b.String()
}

func (d *Dialect) rule(r domain.Rule, indent string) string {
	if r.Mode != domain.ModeComponent {
		return dialect.Reindent(r.Code, indent, literalRows)
	}
	inner := indent + "\t"
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
			lines = append(lines, inner+target+" = append("+target+", "+a.Value+")")
		} else {
			lines = append(lines, inner+target+" = "+a.Value)
		}
	}
	sig := dialect.Reindent(r.Signature, indent, literalRows)
	if len(lines) == 0 {
		return sig + "\n" + indent + "}"
	}
	return sig + "\n" + strings.Join(lines, "\n") + "\n" + indent + "}"
}

type call struct {
	name      string
	condition *string
}

func (c call) line(indent string) string {
	if c.condition == nil {
		return indent + c.name + "()"
	}
	return indent + "if " + *c.condition + " {\n" + indent + "\t" + c.name + "()\n" + indent + "}"
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
	b.WriteString("type " + s.ClassName + " struct {\n")
	if s.ClassBase != "" {
		b.WriteString("\t" + s.ClassBase + "\n")
	}
	for _, f := range s.ClassFields {
		b.WriteString(dialect.Reindent(f, "\t", literalRows) + "\n")
	}
	b.WriteString("}\n\n")
	in, out := d.conv.InputName, d.conv.OutputName
	b.WriteString("func (e *" + s.ClassName + ") Decide(" + in + " *decision.Input) *decision.Output {\n")
	b.WriteString("\t" + out + " := decision.NewOutput()\n")
	b.WriteString("\t" + d.conv.Orchestration + "(" + in + ", " + out + ")\n")
	b.WriteString("\treturn " + out + "\n}")
	for _, m := range s.ClassMembers {
		b.WriteString("\n\n" + m)
	}
	return b.String()
}
