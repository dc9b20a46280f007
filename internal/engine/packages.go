package engine

import (
	"context"
	"fmt"
	"strings"

	"caseflow/internal/domain"
	"caseflow/internal/events"
)

// normCondition trims a condition; blank text means unconditional.
func normCondition(c *string) *string {
	if c == nil {
		return nil
	}
	t := strings.TrimSpace(*c)
	if t == "" {
		return nil
	}
	return &t
}

type PackageMoveOptions struct {
	AppID     string
	Name      string
	Direction domain.Direction
	ActorID   string
}

// MovePackage swaps a package with its neighbour. Moving the first package up
// or the last one down changes nothing.
func (e Engine) MovePackage(ctx context.Context, opts PackageMoveOptions) (Result, error) {
	if _, err := domain.ParseDirection(string(opts.Direction)); err != nil {
		return Result{}, err
	}
	return e.apply(ctx, edit{
		app:     opts.AppID,
		op:      "move_package",
		target:  opts.Name,
		actor:   opts.ActorID,
		payload: events.Payload{"direction": opts.Direction},
		mutate: func(s *domain.Structure) (string, bool, error) {
			idx := s.PackageIndex(opts.Name)
			if idx < 0 {
				return "", false, fmt.Errorf("package %s: %w", opts.Name, domain.ErrNotFound)
			}
			to, ok := neighbour(idx, len(s.Packages), opts.Direction)
			if !ok {
				return fmt.Sprintf("Package %s already at the %s", opts.Name, edgeName(opts.Direction)), false, nil
			}
			s.Packages[idx], s.Packages[to] = s.Packages[to], s.Packages[idx]
			return fmt.Sprintf("Package %s moved %s to position %d", opts.Name, opts.Direction, to), true, nil
		},
	})
}

func neighbour(idx, n int, dir domain.Direction) (int, bool) {
	d, _ := domain.ParseDirection(string(dir))
	if d == domain.Up {
		return idx - 1, idx > 0
	}
	return idx + 1, idx < n-1
}

func edgeName(dir domain.Direction) string {
	if d, _ := domain.ParseDirection(string(dir)); d == domain.Up {
		return "top"
	}
	return "bottom"
}

type PackageAddOptions struct {
	AppID     string
	Name      string
	Condition *string
	// Order is the insert position; nil appends.
	Order   *int
	ActorID string
}

// AddPackage inserts a package holding a single default rule.
func (e Engine) AddPackage(ctx context.Context, opts PackageAddOptions) (Result, error) {
	cond := normCondition(opts.Condition)
	if err := e.checkPackageName(opts.Name); err != nil {
		return Result{}, err
	}
	if err := e.checkCondition(cond); err != nil {
		return Result{}, err
	}
	ruleName := e.conv().DefaultRuleName()
	code, err := e.Dialect.RuleCode(ruleName, "")
	if err != nil {
		return Result{}, err
	}
	return e.apply(ctx, edit{
		app:     opts.AppID,
		op:      "add_package",
		target:  opts.Name,
		actor:   opts.ActorID,
		payload: events.Payload{"condition": cond, "order": opts.Order},
		mutate: func(s *domain.Structure) (string, bool, error) {
			if s.PackageIndex(opts.Name) >= 0 {
				return "", false, fmt.Errorf("package %s: %w", opts.Name, domain.ErrDuplicateName)
			}
			if !s.HasRuleflow {
				return "", false, fmt.Errorf("%w: source has no %s function", domain.ErrInvalidArgument, e.conv().Orchestration)
			}
			pos := insertAt(opts.Order, len(s.Packages))
			p := domain.Package{
				Name:      opts.Name,
				Condition: cond,
				Rules:     []domain.Rule{{Name: ruleName, Code: code}},
			}
			s.Packages = append(s.Packages, domain.Package{})
			copy(s.Packages[pos+1:], s.Packages[pos:])
			s.Packages[pos] = p
			return fmt.Sprintf("Package %s added at position %d (%s)", opts.Name, pos, describeCondition(cond)), true, nil
		},
	})
}

type PackageDeleteOptions struct {
	AppID   string
	Name    string
	ActorID string
}

func (e Engine) DeletePackage(ctx context.Context, opts PackageDeleteOptions) (Result, error) {
	return e.apply(ctx, edit{
		app:    opts.AppID,
		op:     "delete_package",
		target: opts.Name,
		actor:  opts.ActorID,
		mutate: func(s *domain.Structure) (string, bool, error) {
			idx := s.PackageIndex(opts.Name)
			if idx < 0 {
				return "", false, fmt.Errorf("package %s: %w", opts.Name, domain.ErrNotFound)
			}
			s.RemovePackage(idx)
			return fmt.Sprintf("Package %s deleted", opts.Name), true, nil
		},
	})
}

type PackageConditionOptions struct {
	AppID string
	Name  string
	// Condition nil makes the package unconditional.
	Condition *string
	ActorID   string
}

func (e Engine) UpdatePackageCondition(ctx context.Context, opts PackageConditionOptions) (Result, error) {
	cond := normCondition(opts.Condition)
	if err := e.checkCondition(cond); err != nil {
		return Result{}, err
	}
	return e.apply(ctx, edit{
		app:     opts.AppID,
		op:      "update_package_condition",
		target:  opts.Name,
		actor:   opts.ActorID,
		payload: events.Payload{"condition": cond},
		mutate: func(s *domain.Structure) (string, bool, error) {
			p, err := s.Package(opts.Name)
			if err != nil {
				return "", false, err
			}
			if sameCondition(p.Condition, cond) {
				return fmt.Sprintf("Package %s unchanged (%s)", opts.Name, describeCondition(cond)), false, nil
			}
			p.Condition = cond
			return fmt.Sprintf("Package %s now %s", opts.Name, describeCondition(cond)), true, nil
		},
	})
}
