package engine

import (
	"context"
	"fmt"
	"strings"

	"caseflow/internal/domain"
	"caseflow/internal/events"
)

type RuleMoveOptions struct {
	AppID     string
	Package   string
	Name      string
	Direction domain.Direction
	ActorID   string
}

func (e Engine) MoveRule(ctx context.Context, opts RuleMoveOptions) (Result, error) {
	if _, err := domain.ParseDirection(string(opts.Direction)); err != nil {
		return Result{}, err
	}
	return e.apply(ctx, edit{
		app:     opts.AppID,
		op:      "move_rule",
		target:  opts.Package + "/" + opts.Name,
		actor:   opts.ActorID,
		payload: events.Payload{"direction": opts.Direction},
		mutate: func(s *domain.Structure) (string, bool, error) {
			p, err := s.Package(opts.Package)
			if err != nil {
				return "", false, err
			}
			idx := p.RuleIndex(opts.Name)
			if idx < 0 {
				return "", false, fmt.Errorf("rule %s in package %s: %w", opts.Name, opts.Package, domain.ErrNotFound)
			}
			to, ok := neighbour(idx, len(p.Rules), opts.Direction)
			if !ok {
				return fmt.Sprintf("Rule %s already at the %s of %s", opts.Name, edgeName(opts.Direction), opts.Package), false, nil
			}
			p.Rules[idx], p.Rules[to] = p.Rules[to], p.Rules[idx]
			return fmt.Sprintf("Rule %s moved %s to position %d in %s", opts.Name, opts.Direction, to, opts.Package), true, nil
		},
	})
}

type RuleAddOptions struct {
	AppID   string
	Package string
	Name    string
	// Code is a full rule definition named Name or a bare body. Empty code
	// produces a rule that only records itself in the trace.
	Code      string
	Condition *string
	Order     *int
	ActorID   string
}

func (e Engine) AddRule(ctx context.Context, opts RuleAddOptions) (Result, error) {
	cond := normCondition(opts.Condition)
	if err := e.checkRuleName(opts.Name); err != nil {
		return Result{}, err
	}
	if err := e.checkCondition(cond); err != nil {
		return Result{}, err
	}
	code, err := e.Dialect.RuleCode(opts.Name, opts.Code)
	if err != nil {
		return Result{}, err
	}
	return e.apply(ctx, edit{
		app:     opts.AppID,
		op:      "add_rule",
		target:  opts.Package + "/" + opts.Name,
		actor:   opts.ActorID,
		payload: events.Payload{"condition": cond, "order": opts.Order, "code": code},
		mutate: func(s *domain.Structure) (string, bool, error) {
			p, err := s.Package(opts.Package)
			if err != nil {
				return "", false, err
			}
			if p.RuleIndex(opts.Name) >= 0 {
				return "", false, fmt.Errorf("rule %s in package %s: %w", opts.Name, opts.Package, domain.ErrDuplicateName)
			}
			pos := insertAt(opts.Order, len(p.Rules))
			p.Rules = append(p.Rules, domain.Rule{})
			copy(p.Rules[pos+1:], p.Rules[pos:])
			p.Rules[pos] = domain.Rule{Name: opts.Name, Code: code, Condition: cond}
			return fmt.Sprintf("Rule %s added to %s at position %d (%s)", opts.Name, opts.Package, pos, describeCondition(cond)), true, nil
		},
	})
}

// RuleUpdateOptions change one rule. Code replaces the rule text. FreeCode
// and OutputAssignments switch the rule to component regeneration; the one
// not given is taken from the current decomposition.
type RuleUpdateOptions struct {
	AppID             string
	Package           string
	Name              string
	Code              *string
	Condition         *string
	ClearCondition    bool
	FreeCode          *string
	OutputAssignments []domain.OutputAssignment
	ActorID           string
}

func (o RuleUpdateOptions) component() bool {
	return o.FreeCode != nil || o.OutputAssignments != nil
}

func (e Engine) checkUpdate(opts RuleUpdateOptions) error {
	if opts.Code == nil && opts.Condition == nil && !opts.ClearCondition && !opts.component() {
		return fmt.Errorf("%w: nothing to update", domain.ErrInvalidArgument)
	}
	if opts.Code != nil && opts.component() {
		return fmt.Errorf("%w: code cannot be combined with free_code or output_assignments", domain.ErrInvalidArgument)
	}
	if opts.Condition != nil && opts.ClearCondition {
		return fmt.Errorf("%w: condition cannot be combined with clear_condition", domain.ErrInvalidArgument)
	}
	if opts.Condition != nil {
		if err := e.checkCondition(normCondition(opts.Condition)); err != nil {
			return err
		}
	}
	for _, a := range opts.OutputAssignments {
		if err := e.checkAssignment(a); err != nil {
			return err
		}
	}
	return nil
}

func (e Engine) checkAssignment(a domain.OutputAssignment) error {
	path := a.Path()
	if path == "" {
		return fmt.Errorf("%w: output assignment without attribute", domain.ErrInvalidArgument)
	}
	for _, part := range strings.Split(path, ".") {
		if err := e.Dialect.CheckIdentifier(part); err != nil {
			return fmt.Errorf("output attribute %q: %w", a.Attribute, err)
		}
	}
	if strings.TrimSpace(a.Value) == "" {
		return fmt.Errorf("%w: output attribute %q has no value", domain.ErrInvalidArgument, a.Attribute)
	}
	if err := e.Dialect.CheckCondition(a.Value); err != nil {
		return fmt.Errorf("output attribute %q value: %w", a.Attribute, err)
	}
	return nil
}

func (e Engine) UpdateRule(ctx context.Context, opts RuleUpdateOptions) (Result, error) {
	if err := e.checkUpdate(opts); err != nil {
		return Result{}, err
	}
	var code string
	if opts.Code != nil {
		c, err := e.Dialect.RuleCode(opts.Name, *opts.Code)
		if err != nil {
			return Result{}, err
		}
		code = c
	}
	payload := events.Payload{}
	if opts.Code != nil {
		payload["code"] = code
	}
	if opts.Condition != nil || opts.ClearCondition {
		payload["condition"] = normCondition(opts.Condition)
	}
	if opts.component() {
		payload["free_code"] = opts.FreeCode
		payload["output_assignments"] = opts.OutputAssignments
	}
	return e.apply(ctx, edit{
		app:     opts.AppID,
		op:      "update_rule",
		target:  opts.Package + "/" + opts.Name,
		actor:   opts.ActorID,
		payload: payload,
		mutate: func(s *domain.Structure) (string, bool, error) {
			p, err := s.Package(opts.Package)
			if err != nil {
				return "", false, err
			}
			r, err := p.Rule(opts.Name)
			if err != nil {
				return "", false, err
			}
			var changes []string
			if opts.Code != nil && code != r.Code {
				r.Code = code
				r.Mode = domain.ModeFull
				changes = append(changes, "code")
			}
			if opts.Condition != nil || opts.ClearCondition {
				cond := normCondition(opts.Condition)
				if !sameCondition(cond, r.Condition) {
					r.Condition = cond
					changes = append(changes, "condition")
				}
			}
			if opts.component() {
				dec, err := e.Dialect.Decompose(*r)
				if err != nil {
					return "", false, err
				}
				free := dec.FreeCode
				if opts.FreeCode != nil {
					free = *opts.FreeCode
				}
				assigns := dec.OutputAssignments
				if opts.OutputAssignments != nil {
					assigns = opts.OutputAssignments
				}
				r.Mode = domain.ModeComponent
				r.Signature = dec.Signature
				r.FreeCode = &free
				r.OutputAssignments = assigns
				changes = append(changes, "components")
			}
			if len(changes) == 0 {
				return fmt.Sprintf("Rule %s in %s unchanged", opts.Name, opts.Package), false, nil
			}
			return fmt.Sprintf("Rule %s in %s updated (%s)", opts.Name, opts.Package, strings.Join(changes, ", ")), true, nil
		},
	})
}

type RuleDeleteOptions struct {
	AppID   string
	Package string
	Name    string
	ActorID string
}

func (e Engine) DeleteRule(ctx context.Context, opts RuleDeleteOptions) (Result, error) {
	return e.apply(ctx, edit{
		app:    opts.AppID,
		op:     "delete_rule",
		target: opts.Package + "/" + opts.Name,
		actor:  opts.ActorID,
		mutate: func(s *domain.Structure) (string, bool, error) {
			p, err := s.Package(opts.Package)
			if err != nil {
				return "", false, err
			}
			idx := p.RuleIndex(opts.Name)
			if idx < 0 {
				return "", false, fmt.Errorf("rule %s in package %s: %w", opts.Name, opts.Package, domain.ErrNotFound)
			}
			p.RemoveRule(idx)
			return fmt.Sprintf("Rule %s deleted from %s", opts.Name, opts.Package), true, nil
		},
	})
}
