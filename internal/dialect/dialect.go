// Package dialect defines the host-language capability used by the edit engine
// and the naming conventions that make a plain source file a ruleflow.
package dialect

import (
	"fmt"
	"strings"

	"caseflow/internal/domain"
)

// Dialect parses, decomposes and generates decision-engine source for one host language.
type Dialect interface {
	Name() string
	// FileName is the default source file name for an app.
	FileName() string
	Conventions() Conventions

	Parse(src []byte) (*domain.Structure, error)
	Decompose(rule domain.Rule) (domain.Decomposition, error)
	// Generate is total over any structure. Output validity is established by re-parsing.
	Generate(s *domain.Structure) []byte

	// NewStructure returns the structure of an empty engine file.
	NewStructure(className string) *domain.Structure
	// RuleCode turns a full rule definition or a bare body into a rule definition named name.
	RuleCode(name, code string) (string, error)
	CheckCondition(expr string) error
	CheckIdentifier(name string) error
}

// Conventions name the functions and identifiers a ruleflow is recognised by.
type Conventions struct {
	Orchestration string `yaml:"orchestration" json:"orchestration"`
	PackagePrefix string `yaml:"package_prefix" json:"package_prefix"`
	RulePrefix    string `yaml:"rule_prefix" json:"rule_prefix"`
	ClassMarker   string `yaml:"class_marker" json:"class_marker"`
	OutputName    string `yaml:"output_name" json:"output_name"`
	InputName     string `yaml:"input_name" json:"input_name"`
}

func DefaultConventions() Conventions {
	return Conventions{
		Orchestration: "ruleflow",
		PackagePrefix: "package_",
		RulePrefix:    "rule_",
		ClassMarker:   "DecisionEngine",
		OutputName:    "output",
		InputName:     "input",
	}
}

// WithDefaults fills empty fields from DefaultConventions.
func (c Conventions) WithDefaults() Conventions {
	d := DefaultConventions()
	if c.Orchestration == "" {
		c.Orchestration = d.Orchestration
	}
	if c.PackagePrefix == "" {
		c.PackagePrefix = d.PackagePrefix
	}
	if c.RulePrefix == "" {
		c.RulePrefix = d.RulePrefix
	}
	if c.ClassMarker == "" {
		c.ClassMarker = d.ClassMarker
	}
	if c.OutputName == "" {
		c.OutputName = d.OutputName
	}
	if c.InputName == "" {
		c.InputName = d.InputName
	}
	return c
}

// Role is the part a top-level or nested definition plays in a ruleflow.
type Role int

const (
	RoleHelper Role = iota
	RoleImport
	RoleConstant
	RolePassthrough
	RoleOrchestration
	RolePackage
	RoleRule
	RoleDecisionClass
)

func (r Role) String() string {
	switch r {
	case RoleImport:
		return "import"
	case RoleConstant:
		return "constant"
	case RolePassthrough:
		return "passthrough"
	case RoleOrchestration:
		return "orchestration"
	case RolePackage:
		return "package"
	case RoleRule:
		return "rule"
	case RoleDecisionClass:
		return "decision_class"
	}
	return "helper"
}

// FunctionRole classifies a function by name alone.
func (c Conventions) FunctionRole(name string) Role {
	switch {
	case name == c.Orchestration:
		return RoleOrchestration
	case strings.HasPrefix(name, c.PackagePrefix):
		return RolePackage
	case strings.HasPrefix(name, c.RulePrefix):
		return RoleRule
	}
	return RoleHelper
}

// CheckPackageName validates the prefix of a package name.
func (c Conventions) CheckPackageName(name string) error {
	if !strings.HasPrefix(name, c.PackagePrefix) || len(name) == len(c.PackagePrefix) {
		return fmt.Errorf("%w: package name %q must start with %q", domain.ErrInvalidArgument, name, c.PackagePrefix)
	}
	return nil
}

// CheckRuleName validates the prefix of a rule name.
func (c Conventions) CheckRuleName(name string) error {
	if !strings.HasPrefix(name, c.RulePrefix) || len(name) == len(c.RulePrefix) {
		return fmt.Errorf("%w: rule name %q must start with %q", domain.ErrInvalidArgument, name, c.RulePrefix)
	}
	return nil
}

// DefaultRuleName is the single rule a new package starts with.
func (c Conventions) DefaultRuleName() string {
	return c.RulePrefix + "default"
}

// Call is one resolved invocation from an orchestration or package body.
type Call struct {
	Name      string
	Condition *string
}

// ResolveOrder orders defined names by their first call, then appends
// uncalled definitions, gated by never, in declaration order.
func ResolveOrder(defined []string, calls []Call, never string) []Call {
	known := map[string]bool{}
	for _, d := range defined {
		known[d] = true
	}
	seen := map[string]bool{}
	var out []Call
	for _, c := range calls {
		if !known[c.Name] || seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	for _, d := range defined {
		if seen[d] {
			continue
		}
		seen[d] = true
		cond := never
		out = append(out, Call{Name: d, Condition: &cond})
	}
	return out
}

// Step is one entry of a body's call sequence: the call at index Call, or the
// statement Code when Call is negative.
type Step struct {
	Call int
	Code string
}

// Sequence interleaves calls with the statements anchored to them. Unanchored
// statements lead; statements anchored to a call that is gone trail. Prelude
// statements are left out, see Prelude.
func Sequence(calls []string, setup []domain.Statement) []Step {
	known := map[string]bool{}
	for _, c := range calls {
		known[c] = true
	}
	var steps, tail []Step
	after := map[string][]Step{}
	for _, st := range setup {
		switch {
		case st.Prelude:
		case st.After == "":
			steps = append(steps, Step{Call: -1, Code: st.Code})
		case known[st.After]:
			after[st.After] = append(after[st.After], Step{Call: -1, Code: st.Code})
		default:
			tail = append(tail, Step{Call: -1, Code: st.Code})
		}
	}
	for i, c := range calls {
		steps = append(steps, Step{Call: i})
		steps = append(steps, after[c]...)
		delete(after, c)
	}
	return append(steps, tail...)
}

// Prelude returns the statements that precede every definition.
func Prelude(setup []domain.Statement) []string {
	var out []string
	for _, st := range setup {
		if st.Prelude {
			out = append(out, st.Code)
		}
	}
	return out
}
