package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"caseflow/internal/domain"
	"caseflow/pkg/decision"
)

type SimulateOptions struct {
	AppID string
	Input decision.Input
}

// Simulate runs the stored engine of an app against one input.
func (e Engine) Simulate(ctx context.Context, opts SimulateOptions) (*decision.Output, error) {
	if e.Runner == nil {
		return nil, fmt.Errorf("%w: simulation is not configured for dialect %s", domain.ErrUnsupported, e.Dialect.Name())
	}
	src, err := e.Store.Read(opts.AppID)
	if err != nil {
		return nil, err
	}
	s, err := e.Dialect.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", opts.AppID, err)
	}
	if !s.HasRuleflow {
		return nil, fmt.Errorf("%w: %s has no %s function", domain.ErrInvalidArgument, opts.AppID, e.conv().Orchestration)
	}
	if e.SimTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.SimTimeout)
		defer cancel()
	}
	start := e.now()
	out, err := e.Runner.Run(ctx, src, s.ClassName, opts.Input)
	fields := []zap.Field{
		zap.String("app", opts.AppID),
		zap.String("op", "simulate"),
		zap.Duration("duration", e.now().Sub(start)),
	}
	if err != nil {
		e.logger().Warn("simulation failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	e.logger().Info("simulation finished", append(fields, zap.Int("fired", len(out.Details)))...)
	return out, nil
}
