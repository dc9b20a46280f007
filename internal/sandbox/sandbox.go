// Package sandbox runs a stored decision engine against one input.
package sandbox

import (
	"context"
	"fmt"

	"caseflow/internal/domain"
	"caseflow/pkg/decision"
)

// Runner executes engine source and returns the verdict. className names the
// engine type to instantiate; when empty the orchestration function is called
// directly with a fresh output.
type Runner interface {
	Run(ctx context.Context, src []byte, className string, in decision.Input) (*decision.Output, error)
}

// Options configure the runners built by ForDialect.
type Options struct {
	// Orchestration is the name of the ruleflow function.
	Orchestration string
	// Python is the interpreter used for python engines.
	Python string
}

// ForDialect returns the runner matching a dialect name.
func ForDialect(name string, opts Options) (Runner, error) {
	if opts.Orchestration == "" {
		opts.Orchestration = "ruleflow"
	}
	switch name {
	case "go":
		return &GoRunner{Orchestration: opts.Orchestration}, nil
	case "python":
		return &PythonRunner{Python: opts.Python, Orchestration: opts.Orchestration}, nil
	}
	return nil, fmt.Errorf("%w: no simulator for dialect %q", domain.ErrUnsupported, name)
}

func failed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrSimulation, fmt.Sprintf(format, args...))
}
