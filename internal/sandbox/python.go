package sandbox

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"caseflow/internal/dialect/python"
	"caseflow/internal/domain"
	"caseflow/pkg/decision"
)

//go:embed harness/run.py
var harness []byte

// PythonRunner runs Python engines in a python3 subprocess, next to a copy of
// the decision runtime module.
type PythonRunner struct {
	Python        string
	Orchestration string
}

func (r *PythonRunner) interpreter() (string, error) {
	name := r.Python
	if name == "" {
		name = "python3"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: python interpreter %q: %v", domain.ErrUnsupported, name, err)
	}
	return path, nil
}

func (r *PythonRunner) Run(ctx context.Context, src []byte, className string, in decision.Input) (*decision.Output, error) {
	bin, err := r.interpreter()
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "caseflow-sim-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	files := map[string][]byte{
		"decision_engine.py": python.Runtime,
		"rules_engine.py":    src,
		"run.py":             harness,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return nil, err
		}
	}
	if in.FieldValues == nil {
		in.FieldValues = map[string]any{}
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	orchestration := r.Orchestration
	if orchestration == "" {
		orchestration = "ruleflow"
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "run.py", className, orchestration)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), "PYTHONDONTWRITEBYTECODE=1")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, failed("timed out: %v", ctx.Err())
		}
		return nil, failed("%v: %s", err, lastLine(stderr.String()))
	}

	var out decision.Output
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, failed("decode verdict: %v", err)
	}
	return &out, nil
}

// lastLine returns the final line of a traceback.
func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
