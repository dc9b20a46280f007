package engine

import (
	"context"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"caseflow/internal/domain"
	"caseflow/internal/events"
	"caseflow/internal/repo"
	"caseflow/internal/store"
)

type AppCreateOptions struct {
	AppID string
	// ClassName defaults to the class marker of the conventions.
	ClassName string
	ActorID   string
}

// CreateApp writes the source of an empty engine.
func (e Engine) CreateApp(ctx context.Context, opts AppCreateOptions) (Result, error) {
	if err := store.CheckAppID(opts.AppID); err != nil {
		return Result{}, err
	}
	class := opts.ClassName
	if class == "" {
		class = e.conv().ClassMarker
	}
	if err := e.Dialect.CheckIdentifier(class); err != nil {
		return Result{}, err
	}
	unlock := e.Store.Lock(opts.AppID)
	defer unlock()

	if e.Store.Exists(opts.AppID) {
		return Result{}, fmt.Errorf("app %s: %w", opts.AppID, domain.ErrAlreadyExists)
	}
	out := e.Dialect.Generate(e.Dialect.NewStructure(class))
	s, err := e.Dialect.Parse(out)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrGeneratedCodeInvalid, err)
	}
	ed := edit{app: opts.AppID, op: "create_app", target: class, actor: opts.ActorID, payload: events.Payload{"dialect": e.Dialect.Name()}}
	msg := fmt.Sprintf("App %s created with class %s", opts.AppID, class)
	rec, err := e.record(ctx, ed, events.StatusApplied, msg, nil, out, func() error {
		return e.Store.Create(opts.AppID, out)
	})
	if err != nil {
		return Result{}, err
	}
	e.logger().Info("app created", zap.String("app", opts.AppID), zap.String("class", class))
	return Result{Message: msg, Changed: true, Structure: s, Edit: rec}, nil
}

// AppSummary describes one stored app. Error is set when its source does not parse.
type AppSummary struct {
	ID        string `json:"id"`
	ClassName string `json:"class_name"`
	Packages  int    `json:"packages"`
	Rules     int    `json:"rules"`
	Error     string `json:"error,omitempty"`
}

func (e Engine) ListApps(ctx context.Context) ([]AppSummary, error) {
	ids, err := e.Store.List()
	if err != nil {
		return nil, err
	}
	out := make([]AppSummary, 0, len(ids))
	for _, id := range ids {
		sum := AppSummary{ID: id}
		s, err := e.GetStructure(ctx, id)
		if err != nil {
			sum.Error = err.Error()
		} else {
			sum.ClassName = s.ClassName
			sum.Packages = len(s.Packages)
			for _, p := range s.Packages {
				sum.Rules += len(p.Rules)
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

func (e Engine) GetSource(ctx context.Context, appID string) ([]byte, error) {
	return e.Store.Read(appID)
}

func (e Engine) GetStructure(ctx context.Context, appID string) (*domain.Structure, error) {
	src, err := e.Store.Read(appID)
	if err != nil {
		return nil, err
	}
	s, err := e.Dialect.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", appID, err)
	}
	return s, nil
}

// DecomposeRule splits a stored rule into free code and output mutations.
func (e Engine) DecomposeRule(ctx context.Context, appID, pkg, rule string) (domain.Decomposition, error) {
	s, err := e.GetStructure(ctx, appID)
	if err != nil {
		return domain.Decomposition{}, err
	}
	p, err := s.Package(pkg)
	if err != nil {
		return domain.Decomposition{}, err
	}
	r, err := p.Rule(rule)
	if err != nil {
		return domain.Decomposition{}, err
	}
	return e.Dialect.Decompose(*r)
}

type HistoryOptions struct {
	AppID  string
	Op     string
	Before int64
	Limit  int
}

// History lists audit entries of an app, newest first.
func (e Engine) History(ctx context.Context, opts HistoryOptions) ([]domain.Edit, error) {
	if opts.AppID != "" {
		if err := store.CheckAppID(opts.AppID); err != nil {
			return nil, err
		}
	}
	if e.DB == nil {
		return []domain.Edit{}, nil
	}
	return e.Repo.ListEdits(ctx, repo.EditFilter{AppID: opts.AppID, Op: opts.Op, Before: opts.Before, Limit: opts.Limit})
}

// Validation reports whether a source survives a parse and regenerate cycle.
type Validation struct {
	Structure *domain.Structure `json:"structure"`
	RoundTrip bool              `json:"round_trip"`
	Diff      string            `json:"diff,omitempty"`
}

// ValidateSource parses src, regenerates it and compares the structures.
func (e Engine) ValidateSource(src []byte) (Validation, error) {
	s, err := e.Dialect.Parse(src)
	if err != nil {
		return Validation{}, err
	}
	again, err := e.Dialect.Parse(e.Dialect.Generate(s))
	if err != nil {
		return Validation{Structure: s}, fmt.Errorf("%w: %v", domain.ErrGeneratedCodeInvalid, err)
	}
	diff := cmp.Diff(s, again)
	return Validation{Structure: s, RoundTrip: diff == "", Diff: diff}, nil
}
