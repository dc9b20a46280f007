package sandbox

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"caseflow/pkg/decision"
)

const entryPoint = "SandboxDecide"

// GoRunner interprets Go engines with yaegi. Only the standard library and the
// decision runtime are importable.
type GoRunner struct {
	Orchestration string
}

func (r *GoRunner) entry(className string) string {
	if className != "" {
		return fmt.Sprintf(`

func %s(input *decision.Input) *decision.Output {
	e := &%s{}
	return e.Decide(input)
}
`, entryPoint, className)
	}
	return fmt.Sprintf(`

func %s(input *decision.Input) *decision.Output {
	output := decision.NewOutput()
	%s(input, output)
	return output
}
`, entryPoint, r.Orchestration)
}

func (r *GoRunner) Run(ctx context.Context, src []byte, className string, in decision.Input) (*decision.Output, error) {
	f, err := parser.ParseFile(token.NewFileSet(), "engine.go", src, parser.PackageClauseOnly)
	if err != nil {
		return nil, failed("engine source: %v", err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib: %w", err)
	}
	if err := i.Use(Symbols); err != nil {
		return nil, fmt.Errorf("load decision runtime: %w", err)
	}
	if _, err := i.Eval(string(src) + r.entry(className)); err != nil {
		return nil, failed("evaluate engine: %v", err)
	}
	v, err := i.Eval(f.Name.Name + "." + entryPoint)
	if err != nil {
		return nil, failed("entry point: %v", err)
	}
	decide, ok := v.Interface().(func(*decision.Input) *decision.Output)
	if !ok {
		return nil, failed("entry point has type %T", v.Interface())
	}

	type result struct {
		out *decision.Output
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: failed("engine panicked: %v", p)}
			}
		}()
		done <- result{out: decide(&in)}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return nil, failed("timed out: %v", ctx.Err())
	}
}
