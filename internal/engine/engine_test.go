package engine_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"caseflow/internal/db"
	"caseflow/internal/dialect"
	"caseflow/internal/dialect/golang"
	"caseflow/internal/dialect/python"
	"caseflow/internal/domain"
	"caseflow/internal/engine"
	"caseflow/internal/events"
	"caseflow/internal/migrate"
	"caseflow/internal/sandbox"
	"caseflow/internal/store"
	"caseflow/pkg/decision"
)

const app = "intake"

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Root   string
}

func newTestEnv(t *testing.T, d dialect.Dialect) testEnv {
	t.Helper()
	root := t.TempDir()
	conn, err := db.Open(root)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(store.New(root, d.FileName()), d, conn, nil)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	runner, err := sandbox.ForDialect(d.Name(), sandbox.Options{})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	eng.Runner = runner
	eng.SimTimeout = 30 * time.Second
	if _, err := eng.CreateApp(ctx, engine.AppCreateOptions{AppID: app, ClassName: "DecisionEngine", ActorID: "tester"}); err != nil {
		t.Fatalf("create app: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Root: root}
}

func pythonEnv(t *testing.T) testEnv {
	return newTestEnv(t, python.New(dialect.DefaultConventions()))
}

func goEnv(t *testing.T) testEnv {
	return newTestEnv(t, golang.New(dialect.DefaultConventions()))
}

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
}

func (env testEnv) source(t *testing.T) []byte {
	t.Helper()
	src, err := env.Engine.GetSource(env.Ctx, app)
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	return src
}

func (env testEnv) addPackage(t *testing.T, name string, cond *string) {
	t.Helper()
	if _, err := env.Engine.AddPackage(env.Ctx, engine.PackageAddOptions{AppID: app, Name: name, Condition: cond, ActorID: "tester"}); err != nil {
		t.Fatalf("add package %s: %v", name, err)
	}
}

func packageNames(s *domain.Structure) []string {
	var names []string
	for i, p := range s.Packages {
		if p.ExecutionOrder != i {
			return []string{"not dense"}
		}
		names = append(names, p.Name)
	}
	return names
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEndToEndScenario(t *testing.T) {
	cases := []struct {
		name string
		env  func(*testing.T) testEnv
		body string
	}{
		{"python", func(t *testing.T) testEnv { requirePython(t); return pythonEnv(t) }, `output.priority = "MEDIUM"`},
		{"go", goEnv, `output.Priority = decision.PriorityMedium`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := tc.env(t)
			order := 0
			if _, err := env.Engine.AddPackage(env.Ctx, engine.PackageAddOptions{AppID: app, Name: "package_init", Order: &order}); err != nil {
				t.Fatalf("add package: %v", err)
			}
			res, err := env.Engine.AddRule(env.Ctx, engine.RuleAddOptions{AppID: app, Package: "package_init", Name: "rule_medium", Code: tc.body})
			if err != nil {
				t.Fatalf("add rule: %v", err)
			}
			p := res.Structure.Packages[0]
			if len(p.Rules) != 2 || p.Rules[0].Name != "rule_default" || p.Rules[1].Name != "rule_medium" {
				t.Fatalf("unexpected rules: %+v", p.Rules)
			}
			out, err := env.Engine.Simulate(env.Ctx, engine.SimulateOptions{AppID: app, Input: decision.Input{Intention: "any"}})
			if err != nil {
				t.Fatalf("simulate: %v", err)
			}
			if out.Priority != decision.PriorityMedium {
				t.Fatalf("expected MEDIUM, got %s", out.Priority)
			}
			if !equal(out.Details, []string{"rule_default", "rule_medium"}) {
				t.Fatalf("unexpected trace: %v", out.Details)
			}
		})
	}
}

func TestConditionalGating(t *testing.T) {
	cases := []struct {
		name string
		env  func(*testing.T) testEnv
		cond string
		bump string
	}{
		{"python", func(t *testing.T) testEnv { requirePython(t); return pythonEnv(t) }, `input.field("field") == "78"`, "bump_priority(output)"},
		{"go", goEnv, `input.Field("field") == "78"`, "decision.BumpPriority(output)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := tc.env(t)
			env.addPackage(t, "package_default", nil)
			env.addPackage(t, "package_urgent", &tc.cond)
			if _, err := env.Engine.AddRule(env.Ctx, engine.RuleAddOptions{AppID: app, Package: "package_urgent", Name: "rule_bump", Code: tc.bump}); err != nil {
				t.Fatalf("add rule: %v", err)
			}

			run := func(field string) *decision.Output {
				out, err := env.Engine.Simulate(env.Ctx, engine.SimulateOptions{AppID: app, Input: decision.Input{FieldValues: map[string]any{"field": field}}})
				if err != nil {
					t.Fatalf("simulate %s: %v", field, err)
				}
				return out
			}
			hit := run("78")
			if !equal(hit.Details, []string{"rule_default", "rule_default", "rule_bump"}) || hit.Priority != decision.PriorityMedium {
				t.Fatalf("gated package skipped: %+v", hit)
			}
			miss := run("94")
			if !equal(miss.Details, []string{"rule_default"}) || miss.Priority != decision.PriorityLow {
				t.Fatalf("gated package ran: %+v", miss)
			}
		})
	}
}

func TestMovePackageSwapsNeighbours(t *testing.T) {
	env := pythonEnv(t)
	for _, name := range []string{"package_a", "package_b", "package_c"} {
		env.addPackage(t, name, nil)
	}
	res, err := env.Engine.MovePackage(env.Ctx, engine.PackageMoveOptions{AppID: app, Name: "package_b", Direction: domain.Up})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := packageNames(res.Structure); !equal(got, []string{"package_b", "package_a", "package_c"}) {
		t.Fatalf("unexpected order: %v", got)
	}

	before := env.source(t)
	res, err = env.Engine.MovePackage(env.Ctx, engine.PackageMoveOptions{AppID: app, Name: "package_b", Direction: domain.Up})
	if err != nil {
		t.Fatalf("move first up: %v", err)
	}
	if res.Changed {
		t.Fatalf("moving the first package up should change nothing")
	}
	if string(env.source(t)) != string(before) {
		t.Fatalf("no-op move rewrote the file")
	}

	res, err = env.Engine.MovePackage(env.Ctx, engine.PackageMoveOptions{AppID: app, Name: "package_a", Direction: domain.Down})
	if err != nil {
		t.Fatalf("move down: %v", err)
	}
	if got := packageNames(res.Structure); !equal(got, []string{"package_b", "package_c", "package_a"}) {
		t.Fatalf("unexpected order: %v", got)
	}
	if _, err := env.Engine.MovePackage(env.Ctx, engine.PackageMoveOptions{AppID: app, Name: "package_a", Direction: "sideways"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid direction, got %v", err)
	}
}

func TestMoveRule(t *testing.T) {
	env := goEnv(t)
	env.addPackage(t, "package_a", nil)
	if _, err := env.Engine.AddRule(env.Ctx, engine.RuleAddOptions{AppID: app, Package: "package_a", Name: "rule_x"}); err != nil {
		t.Fatalf("add rule: %v", err)
	}
	res, err := env.Engine.MoveRule(env.Ctx, engine.RuleMoveOptions{AppID: app, Package: "package_a", Name: "rule_x", Direction: domain.Up})
	if err != nil {
		t.Fatalf("move rule: %v", err)
	}
	rules := res.Structure.Packages[0].Rules
	if rules[0].Name != "rule_x" || rules[1].Name != "rule_default" {
		t.Fatalf("unexpected rules: %+v", rules)
	}
}

func TestDuplicatesLeaveFileUnchanged(t *testing.T) {
	env := pythonEnv(t)
	env.addPackage(t, "package_a", nil)
	before := events.Digest(env.source(t))

	_, err := env.Engine.AddPackage(env.Ctx, engine.PackageAddOptions{AppID: app, Name: "package_a"})
	if !errors.Is(err, domain.ErrDuplicateName) {
		t.Fatalf("expected duplicate package, got %v", err)
	}
	_, err = env.Engine.AddRule(env.Ctx, engine.RuleAddOptions{AppID: app, Package: "package_a", Name: "rule_default", Code: `output.priority = "MEDIUM"`})
	if !errors.Is(err, domain.ErrDuplicateName) {
		t.Fatalf("expected duplicate rule, got %v", err)
	}
	if after := events.Digest(env.source(t)); after != before {
		t.Fatalf("file changed: %s -> %s", before, after)
	}
}

type brokenDialect struct {
	dialect.Dialect
}

func (brokenDialect) Generate(*domain.Structure) []byte {
	return []byte("def ruleflow(:\n")
}

func TestBrokenGenerationIsRejected(t *testing.T) {
	env := pythonEnv(t)
	env.addPackage(t, "package_a", nil)
	before := events.Digest(env.source(t))
	history, err := env.Engine.History(env.Ctx, engine.HistoryOptions{AppID: app})
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	broken := env.Engine
	broken.Dialect = brokenDialect{env.Engine.Dialect}
	_, err = broken.AddPackage(env.Ctx, engine.PackageAddOptions{AppID: app, Name: "package_b"})
	if !errors.Is(err, domain.ErrGeneratedCodeInvalid) {
		t.Fatalf("expected generated code invalid, got %v", err)
	}
	if after := events.Digest(env.source(t)); after != before {
		t.Fatalf("file changed after rejected edit")
	}
	again, err := env.Engine.History(env.Ctx, engine.HistoryOptions{AppID: app})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(again) != len(history) {
		t.Fatalf("rejected edit was audited")
	}
	entries, err := os.ReadDir(filepath.Join(env.Root, app))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("stray files: %v", entries)
	}
}

func TestNotFound(t *testing.T) {
	env := pythonEnv(t)
	env.addPackage(t, "package_a", nil)
	if _, err := env.Engine.DeletePackage(env.Ctx, engine.PackageDeleteOptions{AppID: app, Name: "package_zz"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.Engine.DeleteRule(env.Ctx, engine.RuleDeleteOptions{AppID: app, Package: "package_a", Name: "rule_zz"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected rule not found, got %v", err)
	}
	if _, err := env.Engine.UpdatePackageCondition(env.Ctx, engine.PackageConditionOptions{AppID: app, Name: "package_zz"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.Engine.GetStructure(env.Ctx, "missing"); !errors.Is(err, domain.ErrFileNotFound) {
		t.Fatalf("expected file not found, got %v", err)
	}
}

func TestValidation(t *testing.T) {
	env := pythonEnv(t)
	badCond := "x =="
	cases := map[string]engine.PackageAddOptions{
		"bad prefix":    {AppID: app, Name: "urgent"},
		"bad condition": {AppID: app, Name: "package_x", Condition: &badCond},
		"empty suffix":  {AppID: app, Name: "package_"},
		"bad name":      {AppID: app, Name: "package_x-y"},
		"bad app":       {AppID: "../x", Name: "package_x"},
	}
	for name, opts := range cases {
		if _, err := env.Engine.AddPackage(env.Ctx, opts); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("%s: expected invalid argument, got %v", name, err)
		}
	}
}

func TestDeleteAndConditions(t *testing.T) {
	env := pythonEnv(t)
	env.addPackage(t, "package_a", nil)
	env.addPackage(t, "package_b", nil)
	cond := `input.intention == "complaint"`
	res, err := env.Engine.UpdatePackageCondition(env.Ctx, engine.PackageConditionOptions{AppID: app, Name: "package_b", Condition: &cond})
	if err != nil {
		t.Fatalf("set condition: %v", err)
	}
	if got := res.Structure.Packages[1].Condition; got == nil || *got != cond {
		t.Fatalf("condition not set: %v", got)
	}
	res, err = env.Engine.UpdatePackageCondition(env.Ctx, engine.PackageConditionOptions{AppID: app, Name: "package_b"})
	if err != nil {
		t.Fatalf("clear condition: %v", err)
	}
	if res.Structure.Packages[1].Condition != nil {
		t.Fatalf("condition not cleared")
	}
	res, err = env.Engine.DeletePackage(env.Ctx, engine.PackageDeleteOptions{AppID: app, Name: "package_a"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := packageNames(res.Structure); !equal(got, []string{"package_b"}) {
		t.Fatalf("unexpected packages: %v", got)
	}
	res, err = env.Engine.DeleteRule(env.Ctx, engine.RuleDeleteOptions{AppID: app, Package: "package_b", Name: "rule_default"})
	if err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	if len(res.Structure.Packages[0].Rules) != 0 {
		t.Fatalf("rule not deleted")
	}
}

func TestUpdateRule(t *testing.T) {
	env := pythonEnv(t)
	env.addPackage(t, "package_a", nil)
	code := "def rule_default():\n    output.details.append(\"rule_default\")\n    output.priority = \"HIGH\"\n    if flag:\n        output.notes.append(\"x\")"
	if _, err := env.Engine.UpdateRule(env.Ctx, engine.RuleUpdateOptions{AppID: app, Package: "package_a", Name: "rule_default", Code: &code}); err != nil {
		t.Fatalf("update code: %v", err)
	}
	dec, err := env.Engine.DecomposeRule(env.Ctx, app, "package_a", "rule_default")
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if len(dec.OutputAssignments) != 3 || dec.OutputAssignments[1].Attribute != "priority" || !dec.OutputAssignments[2].Nested {
		t.Fatalf("unexpected decomposition: %+v", dec)
	}

	assigns := []domain.OutputAssignment{
		{Attribute: "details[]", Value: `"rule_default"`},
		{Attribute: "work_basket", Value: `"complaints"`},
	}
	res, err := env.Engine.UpdateRule(env.Ctx, engine.RuleUpdateOptions{AppID: app, Package: "package_a", Name: "rule_default", OutputAssignments: assigns})
	if err != nil {
		t.Fatalf("update components: %v", err)
	}
	want := "def rule_default():\n    if flag:\n        output.notes.append(\"x\")\n    output.details.append(\"rule_default\")\n    output.work_basket = \"complaints\""
	if got := res.Structure.Packages[0].Rules[0].Code; got != want {
		t.Fatalf("component rule:\n%s\nwant:\n%s", got, want)
	}

	cond := "flag"
	res, err = env.Engine.UpdateRule(env.Ctx, engine.RuleUpdateOptions{AppID: app, Package: "package_a", Name: "rule_default", Condition: &cond})
	if err != nil {
		t.Fatalf("update condition: %v", err)
	}
	if got := res.Structure.Packages[0].Rules[0].Condition; got == nil || *got != "flag" {
		t.Fatalf("rule condition not set: %v", got)
	}
	res, err = env.Engine.UpdateRule(env.Ctx, engine.RuleUpdateOptions{AppID: app, Package: "package_a", Name: "rule_default", ClearCondition: true})
	if err != nil {
		t.Fatalf("clear condition: %v", err)
	}
	if res.Structure.Packages[0].Rules[0].Condition != nil {
		t.Fatalf("rule condition not cleared")
	}

	if _, err := env.Engine.UpdateRule(env.Ctx, engine.RuleUpdateOptions{AppID: app, Package: "package_a", Name: "rule_default"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for empty update, got %v", err)
	}
	bad := []domain.OutputAssignment{{Attribute: "priority", Value: "= 1"}}
	if _, err := env.Engine.UpdateRule(env.Ctx, engine.RuleUpdateOptions{AppID: app, Package: "package_a", Name: "rule_default", OutputAssignments: bad}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid assignment, got %v", err)
	}
}

func TestParseErrorsSurface(t *testing.T) {
	env := pythonEnv(t)
	if err := env.Engine.Store.Write(app, []byte("def ruleflow(:\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := env.Engine.AddPackage(env.Ctx, engine.PackageAddOptions{AppID: app, Name: "package_a"})
	var pe *domain.ParseError
	if !errors.As(err, &pe) || pe.Line < 1 {
		t.Fatalf("expected parse error with a position, got %v", err)
	}
}

func TestHistoryAndApps(t *testing.T) {
	env := pythonEnv(t)
	env.addPackage(t, "package_a", nil)
	if _, err := env.Engine.MovePackage(env.Ctx, engine.PackageMoveOptions{AppID: app, Name: "package_a", Direction: domain.Up}); err != nil {
		t.Fatalf("noop move: %v", err)
	}
	edits, err := env.Engine.History(env.Ctx, engine.HistoryOptions{AppID: app})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(edits) != 3 {
		t.Fatalf("expected 3 edits, got %d", len(edits))
	}
	if edits[0].Op != "move_package" || edits[0].Status != events.StatusNoop || edits[0].BeforeSHA256 != edits[0].AfterSHA256 {
		t.Fatalf("unexpected newest edit: %+v", edits[0])
	}
	if edits[1].Op != "add_package" || edits[1].ActorID != "tester" || edits[1].BeforeSHA256 == edits[1].AfterSHA256 {
		t.Fatalf("unexpected add edit: %+v", edits[1])
	}
	if edits[2].Op != "create_app" || edits[2].BeforeSHA256 != "" {
		t.Fatalf("unexpected create edit: %+v", edits[2])
	}

	if _, err := env.Engine.CreateApp(env.Ctx, engine.AppCreateOptions{AppID: app}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	if _, err := env.Engine.CreateApp(env.Ctx, engine.AppCreateOptions{AppID: "billing"}); err != nil {
		t.Fatalf("create billing: %v", err)
	}
	apps, err := env.Engine.ListApps(env.Ctx)
	if err != nil {
		t.Fatalf("list apps: %v", err)
	}
	if len(apps) != 2 || apps[0].ID != "billing" || apps[1].ID != app || apps[1].Packages != 1 || apps[1].Rules != 1 {
		t.Fatalf("unexpected apps: %+v", apps)
	}
	if apps[0].ClassName != "DecisionEngine" {
		t.Fatalf("default class name: %q", apps[0].ClassName)
	}
}

func TestValidateSource(t *testing.T) {
	env := goEnv(t)
	v, err := env.Engine.ValidateSource(env.source(t))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !v.RoundTrip || v.Diff != "" {
		t.Fatalf("expected stable round trip, diff:\n%s", v.Diff)
	}
	if _, err := env.Engine.ValidateSource([]byte("package rules\nfunc (")); !errors.Is(err, domain.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestGuardBetweenPackagesSurvivesEdits(t *testing.T) {
	cases := []struct {
		name    string
		env     func(*testing.T) testEnv
		deflect string
		route   string
		call    string
		guard   string
	}{
		{
			"python", func(t *testing.T) testEnv { requirePython(t); return pythonEnv(t) },
			`output.handling = "DEFLECTION"`, `output.work_basket = "b"`,
			"    package_a()\n", "    if output.handling == \"DEFLECTION\":\n        return\n",
		},
		{
			"go", goEnv,
			`output.Handling = decision.HandlingDeflection`, `output.WorkBasket = "b"`,
			"\tpackage_a()\n", "\tif output.Handling == decision.HandlingDeflection {\n\t\treturn\n\t}\n",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := tc.env(t)
			env.addPackage(t, "package_a", nil)
			env.addPackage(t, "package_b", nil)
			if _, err := env.Engine.AddRule(env.Ctx, engine.RuleAddOptions{AppID: app, Package: "package_a", Name: "rule_deflect", Code: tc.deflect}); err != nil {
				t.Fatalf("add rule: %v", err)
			}
			if _, err := env.Engine.AddRule(env.Ctx, engine.RuleAddOptions{AppID: app, Package: "package_b", Name: "rule_route", Code: tc.route}); err != nil {
				t.Fatalf("add rule: %v", err)
			}
			src := string(env.source(t))
			if !strings.Contains(src, tc.call) {
				t.Fatalf("call missing:\n%s", src)
			}
			src = strings.Replace(src, tc.call, tc.call+tc.guard, 1)
			if err := env.Engine.Store.Write(app, []byte(src)); err != nil {
				t.Fatalf("write: %v", err)
			}

			env.addPackage(t, "package_c", nil)
			src = string(env.source(t))
			if !strings.Contains(src, tc.call+tc.guard) {
				t.Fatalf("guard moved after edit:\n%s", src)
			}
			out, err := env.Engine.Simulate(env.Ctx, engine.SimulateOptions{AppID: app, Input: decision.Input{Intention: "any"}})
			if err != nil {
				t.Fatalf("simulate: %v", err)
			}
			if out.Handling != decision.HandlingDeflection || out.WorkBasket != "" {
				t.Fatalf("packages after the guard ran: %+v", out)
			}
			if !equal(out.Details, []string{"rule_default", "rule_deflect"}) {
				t.Fatalf("unexpected trace: %v", out.Details)
			}
		})
	}
}

func TestFailedCreateCommitLeavesNoSource(t *testing.T) {
	root := t.TempDir()
	conn, err := db.Open(root)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// a deferred foreign key violation only surfaces at commit
	for _, stmt := range []string{
		"PRAGMA foreign_keys = ON",
		"CREATE TABLE parent (id INTEGER PRIMARY KEY)",
		"CREATE TABLE child (pid INTEGER REFERENCES parent(id) DEFERRABLE INITIALLY DEFERRED)",
		"CREATE TRIGGER edits_orphan AFTER INSERT ON edits BEGIN INSERT INTO child (pid) VALUES (42); END",
	} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	d := golang.New(dialect.DefaultConventions())
	eng := engine.New(store.New(root, d.FileName()), d, conn, nil)
	if _, err := eng.CreateApp(ctx, engine.AppCreateOptions{AppID: app, ClassName: "DecisionEngine"}); err == nil {
		t.Fatal("expected commit failure")
	}
	if eng.Store.Exists(app) {
		t.Fatal("source left behind after failed create")
	}
	if _, err := os.Stat(filepath.Join(root, app)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("app directory left behind: %v", err)
	}
	ids, err := eng.Store.List()
	if err != nil || len(ids) != 0 {
		t.Fatalf("list: %v %v", ids, err)
	}
}
