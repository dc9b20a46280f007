package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"caseflow/internal/dialect"
	"caseflow/internal/domain"
	"caseflow/internal/events"
	"caseflow/internal/repo"
	"caseflow/internal/sandbox"
	"caseflow/internal/store"
)

// Engine applies structural edits to the engine source of an app. Every call
// re-reads the file; nothing is cached between calls.
type Engine struct {
	Store   *store.FileStore
	Dialect dialect.Dialect
	// DB holds the audit log. A nil DB disables auditing and History.
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	// Runner executes engines for Simulate. Nil makes Simulate unsupported.
	Runner     sandbox.Runner
	SimTimeout time.Duration
	Log        *zap.Logger
	Now        func() time.Time
}

func New(st *store.FileStore, d dialect.Dialect, conn *sql.DB, log *zap.Logger) Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return Engine{
		Store:      st,
		Dialect:    d,
		DB:         conn,
		Repo:       repo.Repo{DB: conn},
		Events:     events.Writer{},
		SimTimeout: 10 * time.Second,
		Log:        log,
		Now:        time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func (e Engine) conv() dialect.Conventions {
	return e.Dialect.Conventions()
}

// Result is the outcome of a successful edit.
type Result struct {
	Message   string            `json:"message"`
	Changed   bool              `json:"changed"`
	Structure *domain.Structure `json:"structure"`
	Edit      *domain.Edit      `json:"edit,omitempty"`
}

// mutation changes s in place. changed=false leaves the file untouched.
type mutation func(s *domain.Structure) (msg string, changed bool, err error)

type edit struct {
	app     string
	op      string
	target  string
	actor   string
	payload events.Payload
	mutate  mutation
}

func (e Engine) apply(ctx context.Context, ed edit) (Result, error) {
	start := e.now()
	res, err := e.applyLocked(ctx, ed)
	fields := []zap.Field{
		zap.String("app", ed.app),
		zap.String("op", ed.op),
		zap.String("target", ed.target),
		zap.Duration("duration", e.now().Sub(start)),
	}
	if err != nil {
		e.logger().Warn("edit rejected", append(fields, zap.Error(err))...)
		return Result{}, err
	}
	e.logger().Info("edit applied", append(fields, zap.Bool("changed", res.Changed))...)
	return res, nil
}

func (e Engine) applyLocked(ctx context.Context, ed edit) (Result, error) {
	if err := store.CheckAppID(ed.app); err != nil {
		return Result{}, err
	}
	unlock := e.Store.Lock(ed.app)
	defer unlock()

	before, err := e.Store.Read(ed.app)
	if err != nil {
		return Result{}, err
	}
	s, err := e.Dialect.Parse(before)
	if err != nil {
		return Result{}, fmt.Errorf("parse %s: %w", ed.app, err)
	}
	msg, changed, err := ed.mutate(s)
	if err != nil {
		return Result{}, err
	}
	if !changed {
		res := Result{Message: msg, Structure: s}
		rec, err := e.record(ctx, ed, events.StatusNoop, msg, before, before, nil)
		if err != nil {
			return Result{}, err
		}
		res.Edit = rec
		return res, nil
	}

	s.Renumber()
	if err := s.Validate(); err != nil {
		return Result{}, err
	}
	out := e.Dialect.Generate(s)
	after, err := e.Dialect.Parse(out)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrGeneratedCodeInvalid, err)
	}
	rec, err := e.record(ctx, ed, events.StatusApplied, msg, before, out, func() error {
		return e.Store.Write(ed.app, out)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Message: msg, Changed: true, Structure: after, Edit: rec}, nil
}

// record appends an audit entry and runs write inside the same transaction, so
// a failed write leaves no entry and a failed commit restores the old source.
// A nil before means the app did not exist and its source is removed instead.
func (e Engine) record(ctx context.Context, ed edit, status, msg string, before, after []byte, write func() error) (*domain.Edit, error) {
	if e.DB == nil {
		if write != nil {
			if err := write(); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	w := e.Events
	if w.Now == nil {
		w.Now = e.Now
	}
	rec, err := w.Append(ctx, tx, domain.Edit{
		AppID:        ed.app,
		Op:           ed.op,
		Target:       ed.target,
		ActorID:      ed.actor,
		Status:       status,
		Message:      msg,
		BeforeSHA256: events.Digest(before),
		AfterSHA256:  events.Digest(after),
	}, ed.payload)
	if err != nil {
		return nil, err
	}
	if write != nil {
		if err := write(); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		if write != nil {
			if rerr := e.restore(ed.app, before); rerr != nil {
				err = errors.Join(err, fmt.Errorf("restore %s: %w", ed.app, rerr))
			}
		}
		return nil, err
	}
	return &rec, nil
}

func (e Engine) restore(app string, before []byte) error {
	if before == nil {
		return e.Store.Remove(app)
	}
	return e.Store.Write(app, before)
}

func (e Engine) checkCondition(cond *string) error {
	if cond == nil {
		return nil
	}
	return e.Dialect.CheckCondition(*cond)
}

func (e Engine) checkPackageName(name string) error {
	if err := e.conv().CheckPackageName(name); err != nil {
		return err
	}
	return e.Dialect.CheckIdentifier(name)
}

func (e Engine) checkRuleName(name string) error {
	if err := e.conv().CheckRuleName(name); err != nil {
		return err
	}
	return e.Dialect.CheckIdentifier(name)
}

// insertAt clamps a requested position into [0, n]; nil means n.
func insertAt(order *int, n int) int {
	if order == nil || *order > n {
		return n
	}
	if *order < 0 {
		return 0
	}
	return *order
}

func sameCondition(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func describeCondition(c *string) string {
	if c == nil {
		return "unconditional"
	}
	return "gated by " + *c
}
