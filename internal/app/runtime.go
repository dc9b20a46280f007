package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"caseflow/internal/config"
	"caseflow/internal/db"
	"caseflow/internal/dialect"
	"caseflow/internal/dialect/golang"
	"caseflow/internal/dialect/python"
	"caseflow/internal/domain"
	"caseflow/internal/engine"
	"caseflow/internal/migrate"
	"caseflow/internal/sandbox"
	"caseflow/internal/store"
)

// Runtime bundles everything a command needs to edit apps under one runtime directory.
type Runtime struct {
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
	Log    *zap.Logger
}

// DialectFor builds the dialect named by cfg.
func DialectFor(cfg *config.Config) (dialect.Dialect, error) {
	switch cfg.Dialect {
	case "python":
		return python.New(cfg.Conventions), nil
	case "go":
		return golang.New(cfg.Conventions), nil
	}
	return nil, fmt.Errorf("%w: dialect %q", domain.ErrUnsupported, cfg.Dialect)
}

// Open prepares the runtime directory, migrates the audit database and wires the engine.
// A dialect without a simulator leaves Engine.Runner nil.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d, err := DialectFor(cfg)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.RuntimeDir, 0o755); err != nil {
		return nil, fmt.Errorf("create runtime dir: %w", err)
	}
	conn, err := db.Open(cfg.RuntimeDir)
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	fileName := cfg.SourceFile
	if fileName == "" {
		fileName = d.FileName()
	}
	e := engine.New(store.New(cfg.RuntimeDir, fileName), d, conn, log)
	e.SimTimeout = cfg.Simulation.Timeout()
	runner, err := sandbox.ForDialect(d.Name(), sandbox.Options{
		Orchestration: cfg.Conventions.Orchestration,
		Python:        cfg.Simulation.Python,
	})
	switch {
	case err == nil:
		e.Runner = runner
	case errors.Is(err, domain.ErrUnsupported):
		log.Warn("simulation disabled", zap.String("dialect", d.Name()), zap.Error(err))
	default:
		conn.Close()
		return nil, err
	}
	log.Debug("runtime ready",
		zap.String("dir", cfg.RuntimeDir),
		zap.String("dialect", d.Name()),
		zap.String("source_file", fileName),
	)
	return &Runtime{Config: cfg, DB: conn, Engine: e, Log: log}, nil
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}
