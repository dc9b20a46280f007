package domain

import (
	"fmt"
	"strings"
)

// Structure is the parsed form of one decision-engine source file.
type Structure struct {
	Header          string      `json:"header,omitempty"`
	Imports         []string    `json:"imports"`
	Constants       []string    `json:"constants"`
	HelperFunctions []string    `json:"helper_functions"`
	Passthrough     []string    `json:"passthrough,omitempty"`
	Setup           []Statement `json:"setup,omitempty"`
	Packages        []Package   `json:"packages"`
	HasRuleflow     bool        `json:"has_ruleflow"`
	ClassName       string      `json:"class_name"`
	ClassBase       string      `json:"class_base,omitempty"`
	ClassFields     []string    `json:"class_fields,omitempty"`
	ClassMembers    []string    `json:"class_members,omitempty"`
}

type Package struct {
	Name           string      `json:"name"`
	Doc            string      `json:"doc,omitempty"`
	Condition      *string     `json:"condition"`
	ExecutionOrder int         `json:"execution_order"`
	Rules          []Rule      `json:"rules"`
	Setup          []Statement `json:"setup,omitempty"`
}

// Statement is body code that is neither a definition nor a call. It keeps its
// place in the call sequence by naming the call it follows in After, which is
// empty ahead of the first call. Prelude statements come before every definition.
type Statement struct {
	Code    string `json:"code"`
	After   string `json:"after,omitempty"`
	Prelude bool   `json:"prelude,omitempty"`
}

// reanchor moves statements that followed the call of removed to prev.
func reanchor(setup []Statement, removed, prev string) {
	for i := range setup {
		if setup[i].After == removed {
			setup[i].After = prev
		}
	}
}

type RuleMode string

const (
	ModeFull      RuleMode = "full"
	ModeComponent RuleMode = "component"
)

type Rule struct {
	Name              string             `json:"name"`
	Code              string             `json:"code"`
	Condition         *string            `json:"condition"`
	Mode              RuleMode           `json:"mode,omitempty" enum:"full,component"`
	Signature         string             `json:"signature,omitempty"`
	FreeCode          *string            `json:"free_code,omitempty"`
	OutputAssignments []OutputAssignment `json:"output_assignments,omitempty"`
}

// AppendMarker suffixes an attribute path that is appended to rather than overwritten.
const AppendMarker = "[]"

type OutputAssignment struct {
	Attribute  string `json:"attribute"`
	Value      string `json:"value"`
	LineOffset int    `json:"line_offset"`
	Nested     bool   `json:"nested,omitempty"`
}

// IsAppend reports whether the assignment pushes onto a list field.
func (a OutputAssignment) IsAppend() bool {
	return strings.HasSuffix(a.Attribute, AppendMarker)
}

// Path returns the attribute path without the append marker.
func (a OutputAssignment) Path() string {
	return strings.TrimSuffix(a.Attribute, AppendMarker)
}

// Decomposition splits a rule body into free code and output mutations.
type Decomposition struct {
	Signature         string             `json:"signature"`
	FreeCode          string             `json:"free_code"`
	OutputAssignments []OutputAssignment `json:"output_assignments"`
}

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Up:
		return Up, nil
	case Down:
		return Down, nil
	}
	return "", fmt.Errorf("%w: direction must be up or down, got %q", ErrInvalidArgument, s)
}

func (s *Structure) PackageIndex(name string) int {
	for i, p := range s.Packages {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Package returns a pointer into s.Packages.
func (s *Structure) Package(name string) (*Package, error) {
	idx := s.PackageIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("package %s: %w", name, ErrNotFound)
	}
	return &s.Packages[idx], nil
}

func (p *Package) RuleIndex(name string) int {
	for i, r := range p.Rules {
		if r.Name == name {
			return i
		}
	}
	return -1
}

func (p *Package) Rule(name string) (*Rule, error) {
	idx := p.RuleIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("rule %s in package %s: %w", name, p.Name, ErrNotFound)
	}
	return &p.Rules[idx], nil
}

// RemovePackage deletes the package at idx. Statements that followed its call
// now follow the call before it.
func (s *Structure) RemovePackage(idx int) {
	name, prev := s.Packages[idx].Name, ""
	if idx > 0 {
		prev = s.Packages[idx-1].Name
	}
	s.Packages = append(s.Packages[:idx], s.Packages[idx+1:]...)
	reanchor(s.Setup, name, prev)
}

// RemoveRule deletes the rule at idx, re-anchoring statements like RemovePackage.
func (p *Package) RemoveRule(idx int) {
	name, prev := p.Rules[idx].Name, ""
	if idx > 0 {
		prev = p.Rules[idx-1].Name
	}
	p.Rules = append(p.Rules[:idx], p.Rules[idx+1:]...)
	reanchor(p.Setup, name, prev)
}

// Renumber re-derives ExecutionOrder from list position.
func (s *Structure) Renumber() {
	for i := range s.Packages {
		s.Packages[i].ExecutionOrder = i
	}
}

// Validate checks name uniqueness and dense ordering.
func (s *Structure) Validate() error {
	seen := map[string]bool{}
	for i, p := range s.Packages {
		if seen[p.Name] {
			return fmt.Errorf("package %s: %w", p.Name, ErrDuplicateName)
		}
		seen[p.Name] = true
		if p.ExecutionOrder != i {
			return fmt.Errorf("package %s has execution order %d at position %d", p.Name, p.ExecutionOrder, i)
		}
		rules := map[string]bool{}
		for _, r := range p.Rules {
			if rules[r.Name] {
				return fmt.Errorf("rule %s in package %s: %w", r.Name, p.Name, ErrDuplicateName)
			}
			rules[r.Name] = true
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *Structure) Clone() *Structure {
	c := *s
	c.Imports = cloneStrings(s.Imports)
	c.Constants = cloneStrings(s.Constants)
	c.HelperFunctions = cloneStrings(s.HelperFunctions)
	c.Passthrough = cloneStrings(s.Passthrough)
	c.Setup = cloneStatements(s.Setup)
	c.ClassFields = cloneStrings(s.ClassFields)
	c.ClassMembers = cloneStrings(s.ClassMembers)
	c.Packages = make([]Package, len(s.Packages))
	for i, p := range s.Packages {
		cp := p
		cp.Condition = cloneStringPtr(p.Condition)
		cp.Setup = cloneStatements(p.Setup)
		cp.Rules = make([]Rule, len(p.Rules))
		for j, r := range p.Rules {
			cr := r
			cr.Condition = cloneStringPtr(r.Condition)
			cr.FreeCode = cloneStringPtr(r.FreeCode)
			if r.OutputAssignments != nil {
				cr.OutputAssignments = append([]OutputAssignment(nil), r.OutputAssignments...)
			}
			cp.Rules[j] = cr
		}
		c.Packages[i] = cp
	}
	return &c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneStatements(in []Statement) []Statement {
	if in == nil {
		return nil
	}
	return append([]Statement(nil), in...)
}

func cloneStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

// StringPtr is a convenience for optional conditions.
func StringPtr(s string) *string {
	return &s
}

// Edit is one audit-log entry for a structural edit.
type Edit struct {
	ID           int64  `json:"id"`
	UID          string `json:"uid"`
	TS           string `json:"ts" format:"date-time"`
	AppID        string `json:"app_id"`
	Op           string `json:"op"`
	Target       string `json:"target,omitempty"`
	ActorID      string `json:"actor_id"`
	Status       string `json:"status" enum:"applied,noop"`
	Message      string `json:"message"`
	BeforeSHA256 string `json:"before_sha256,omitempty"`
	AfterSHA256  string `json:"after_sha256,omitempty"`
	Payload      string `json:"payload_json"`
}
