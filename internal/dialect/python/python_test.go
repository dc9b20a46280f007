package python_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"caseflow/internal/dialect"
	"caseflow/internal/dialect/python"
	"caseflow/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const intake = `#!/usr/bin/env python3
# Decision engine for intake

from decision_engine import BaseDecisionEngine, DecisionOutput, bump_priority
import re

MAX_NOTES = 5
URGENT_CODES = ("78", "79")


def normalise(value):
    return value.strip().lower()


class Helper:
    pass


def ruleflow(input, output):
    code = input.field("field")

    # urgent intake
    def package_urgent():
        # flag urgent cases
        def rule_flag():
            output.details.append("rule_flag")
            output.priority = "HIGH"
            if len(output.notes) < MAX_NOTES:
                output.notes.append("#URGENT")

        def rule_route():
            output.details.append("rule_route")
            output.work_basket = "urgent"

        rule_flag()
        if input.intention == "complaint":
            rule_route()

    def package_default():
        def rule_ack():
            output.details.append("rule_ack")
            output.acknowledgement_to_requester = "#ACK"

        rule_ack()

    package_default()
    if code in URGENT_CODES:
        package_urgent()


class IntakeDecisionEngine(BaseDecisionEngine):
    VERSION = 2

    def decide(self, input):
        output = DecisionOutput()
        ruleflow(input, output)
        return output
`

func newDialect() *python.Dialect {
	return python.New(dialect.DefaultConventions())
}

func cond(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func TestParseIntake(t *testing.T) {
	s, err := newDialect().Parse([]byte(intake))
	require.NoError(t, err)

	require.Equal(t, "#!/usr/bin/env python3\n# Decision engine for intake", s.Header)
	require.Equal(t, []string{
		"from decision_engine import BaseDecisionEngine, DecisionOutput, bump_priority",
		"import re",
	}, s.Imports)
	require.Equal(t, []string{"MAX_NOTES = 5", `URGENT_CODES = ("78", "79")`}, s.Constants)
	require.Equal(t, []string{"def normalise(value):\n    return value.strip().lower()"}, s.HelperFunctions)
	require.Equal(t, []string{"class Helper:\n    pass"}, s.Passthrough)
	require.Equal(t, []domain.Statement{{Code: `code = input.field("field")`, Prelude: true}}, s.Setup)
	require.True(t, s.HasRuleflow)
	require.Equal(t, "IntakeDecisionEngine", s.ClassName)
	require.Equal(t, "BaseDecisionEngine", s.ClassBase)
	require.Equal(t, []string{"VERSION = 2"}, s.ClassMembers)

	require.Len(t, s.Packages, 2)
	def, urgent := s.Packages[0], s.Packages[1]
	require.Equal(t, "package_default", def.Name)
	require.Nil(t, def.Condition)
	require.Equal(t, 0, def.ExecutionOrder)
	require.Equal(t, "package_urgent", urgent.Name)
	require.Equal(t, "code in URGENT_CODES", cond(urgent.Condition))
	require.Equal(t, 1, urgent.ExecutionOrder)
	require.Equal(t, "# urgent intake", urgent.Doc)

	require.Len(t, urgent.Rules, 2)
	require.Equal(t, "rule_flag", urgent.Rules[0].Name)
	require.Nil(t, urgent.Rules[0].Condition)
	require.True(t, strings.HasPrefix(urgent.Rules[0].Code, "# flag urgent cases\ndef rule_flag():\n    output.details.append(\"rule_flag\")"))
	require.Equal(t, "rule_route", urgent.Rules[1].Name)
	require.Equal(t, `input.intention == "complaint"`, cond(urgent.Rules[1].Condition))
}

func TestRoundTrip(t *testing.T) {
	d := newDialect()
	first, err := d.Parse([]byte(intake))
	require.NoError(t, err)
	out := d.Generate(first)
	second, err := d.Parse(out)
	require.NoError(t, err, "generated:\n%s", out)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("structure changed across round trip (-first +second):\n%s\ngenerated:\n%s", diff, out)
	}
	again := d.Generate(second)
	require.Equal(t, string(out), string(again), "generation must be idempotent")

	text := string(out)
	require.Contains(t, text, "    def package_default():\n        def rule_ack():\n")
	require.Contains(t, text, "    package_default()\n    if code in URGENT_CODES:\n        package_urgent()\n")
	require.Less(t, strings.Index(text, "def package_default"), strings.Index(text, "def package_urgent"))
	require.Contains(t, text, "class IntakeDecisionEngine(BaseDecisionEngine):\n    VERSION = 2\n\n    def decide(self, input):")
}

func TestParseErrorCarriesPosition(t *testing.T) {
	src := "def ruleflow(input, output):\n    if x\n        pass\n"
	_, err := newDialect().Parse([]byte(src))
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrParse))
	var pe *domain.ParseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, 2, pe.Line)
}

func TestFileWithoutRuleflow(t *testing.T) {
	s, err := newDialect().Parse([]byte("import os\n\n\ndef helper():\n    return 1\n"))
	require.NoError(t, err)
	require.False(t, s.HasRuleflow)
	require.Empty(t, s.Packages)
	require.Empty(t, s.ClassName)
}

func TestNestedGatingIsFlattened(t *testing.T) {
	src := `def ruleflow(input, output):
    def package_a():
        pass

    def package_b():
        pass

    def package_c():
        pass

    def package_d():
        pass

    if a or b:
        if c:
            package_a()
        package_b()
    elif d:
        package_c()
    else:
        package_d()
`
	s, err := newDialect().Parse([]byte(src))
	require.NoError(t, err)
	got := map[string]string{}
	for _, p := range s.Packages {
		got[p.Name] = cond(p.Condition)
	}
	want := map[string]string{
		"package_a": "(a or b) and c",
		"package_b": "a or b",
		"package_c": "not (a or b) and d",
		"package_d": "not (a or b or d)",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("conditions (-want +got):\n%s", diff)
	}
	require.Empty(t, s.Setup)
}

func TestCallSequenceGovernsOrder(t *testing.T) {
	src := `def ruleflow(input, output):
    def package_first():
        pass

    def package_second():
        pass

    def package_unused():
        pass

    package_second()
    package_first()
    package_second()
`
	s, err := newDialect().Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, s.Packages, 3)
	require.Equal(t, "package_second", s.Packages[0].Name)
	require.Equal(t, "package_first", s.Packages[1].Name)
	require.Equal(t, "package_unused", s.Packages[2].Name)
	require.Equal(t, "False", cond(s.Packages[2].Condition))
	for i, p := range s.Packages {
		require.Equal(t, i, p.ExecutionOrder)
	}
}

func TestMixedIfBodyIsSetup(t *testing.T) {
	src := `def ruleflow(input, output):
    def package_a():
        pass

    if input.intention:
        output.notes.append("x")
        package_a()
`
	s, err := newDialect().Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, s.Packages, 1)
	require.Equal(t, "False", cond(s.Packages[0].Condition))
	require.Equal(t, []domain.Statement{{Code: "if input.intention:\n    output.notes.append(\"x\")\n    package_a()"}}, s.Setup)
}

func TestClassFallsBackToName(t *testing.T) {
	src := "class Other(object):\n    pass\n\n\nclass MyDecisionEngine:\n    pass\n"
	s, err := newDialect().Parse([]byte(src))
	require.NoError(t, err)
	require.Equal(t, "MyDecisionEngine", s.ClassName)
	require.Equal(t, "", s.ClassBase)
	require.Equal(t, []string{"class Other(object):\n    pass"}, s.Passthrough)
}

func TestDecomposeIsConservative(t *testing.T) {
	rule := domain.Rule{Name: "rule_x", Code: `def rule_x():
    output.priority = "HIGH"
    if flag:
        output.notes.append("x")
    total = 1
`}
	dec, err := newDialect().Decompose(rule)
	require.NoError(t, err)
	require.Equal(t, "def rule_x():", dec.Signature)
	want := []domain.OutputAssignment{
		{Attribute: "priority", Value: `"HIGH"`, LineOffset: 1},
		{Attribute: "notes[]", Value: `"x"`, LineOffset: 3, Nested: true},
	}
	if diff := cmp.Diff(want, dec.OutputAssignments); diff != "" {
		t.Fatalf("assignments (-want +got):\n%s", diff)
	}
	require.Equal(t, "if flag:\n    output.notes.append(\"x\")\ntotal = 1", dec.FreeCode)

	var top int
	for _, a := range dec.OutputAssignments {
		if !a.Nested {
			top++
		}
	}
	require.Equal(t, 1, top)
}

func TestDecomposeRecursesIntoLoopsAndTry(t *testing.T) {
	rule := domain.Rule{Name: "rule_x", Code: `def rule_x():
    for n in items:
        output.notes.append(n)
    try:
        output.work_basket = pick()
    except ValueError:
        output.work_basket = "default"
    finally:
        output.details.append("done")
    helper = lambda: output.notes.append("skip")
    def inner():
        output.priority = "LOW"
`}
	dec, err := newDialect().Decompose(rule)
	require.NoError(t, err)
	var attrs []string
	for _, a := range dec.OutputAssignments {
		require.True(t, a.Nested)
		attrs = append(attrs, a.Attribute)
	}
	require.Equal(t, []string{"notes[]", "work_basket", "work_basket", "details[]"}, attrs)
}

func TestComponentRegeneration(t *testing.T) {
	d := newDialect()
	s, err := d.Parse([]byte(intake))
	require.NoError(t, err)
	urgent := &s.Packages[1]
	flag := &urgent.Rules[0]
	dec, err := d.Decompose(*flag)
	require.NoError(t, err)
	require.Equal(t, "# flag urgent cases\ndef rule_flag():", dec.Signature)

	free := "if len(output.notes) < MAX_NOTES:\n    output.notes.append(\"#URGENT\")"
	flag.Mode = domain.ModeComponent
	flag.Signature = dec.Signature
	flag.FreeCode = &free
	flag.OutputAssignments = []domain.OutputAssignment{
		{Attribute: "details[]", Value: `"rule_flag"`},
		{Attribute: "priority", Value: `"VERY_HIGH"`},
	}
	out := d.Generate(s)
	again, err := d.Parse(out)
	require.NoError(t, err, "generated:\n%s", out)
	code := again.Packages[1].Rules[0].Code
	require.Equal(t, `# flag urgent cases
def rule_flag():
    if len(output.notes) < MAX_NOTES:
        output.notes.append("#URGENT")
    output.details.append("rule_flag")
    output.priority = "VERY_HIGH"`, code)
}

func TestRuleCode(t *testing.T) {
	d := newDialect()
	code, err := d.RuleCode("rule_default", `output.priority = "MEDIUM"`)
	require.NoError(t, err)
	require.Equal(t, "def rule_default():\n    output.details.append(\"rule_default\")\n    output.priority = \"MEDIUM\"", code)

	code, err = d.RuleCode("rule_empty", "")
	require.NoError(t, err)
	require.Equal(t, "def rule_empty():\n    output.details.append(\"rule_empty\")", code)

	full := "    def rule_full():\n        output.work_basket = \"x\"\n"
	code, err = d.RuleCode("rule_full", full)
	require.NoError(t, err)
	require.Equal(t, "def rule_full():\n    output.work_basket = \"x\"", code)

	_, err = d.RuleCode("rule_other", full)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = d.RuleCode("rule_bad", "output.priority = ")
	require.ErrorIs(t, err, domain.ErrParse)
}

func TestCheckCondition(t *testing.T) {
	d := newDialect()
	require.NoError(t, d.CheckCondition(`input.field("field") == "78"`))
	require.NoError(t, d.CheckCondition("(a and\n b)"))
	for _, bad := range []string{"", "x ==", "x:\n    pass\nimport os\nif y"} {
		require.ErrorIs(t, d.CheckCondition(bad), domain.ErrInvalidArgument, bad)
	}
}

func TestCheckIdentifier(t *testing.T) {
	d := newDialect()
	require.NoError(t, d.CheckIdentifier("package_init"))
	require.Error(t, d.CheckIdentifier("class"))
	require.Error(t, d.CheckIdentifier("rule-x"))
	require.Error(t, d.CheckIdentifier("1rule"))
}

func TestNewStructureRoundTrips(t *testing.T) {
	d := newDialect()
	s := d.NewStructure("DecisionEngine")
	out := d.Generate(s)
	require.Equal(t, `from decision_engine import BaseDecisionEngine, DecisionOutput, bump_priority


def ruleflow(input, output):
    pass


class DecisionEngine(BaseDecisionEngine):
    def decide(self, input):
        output = DecisionOutput()
        ruleflow(input, output)
        return output
`, string(out))
	parsed, err := d.Parse(out)
	require.NoError(t, err)
	require.Equal(t, "DecisionEngine", parsed.ClassName)
	require.Empty(t, parsed.Packages)
	require.Empty(t, parsed.Setup)
}

func TestStatementKeepsItsPlaceBetweenCalls(t *testing.T) {
	src := `def ruleflow(input, output):
    def package_a():
        pass

    def package_b():
        pass

    package_a()
    if output.handling == "DEFLECTION":
        return
    package_b()
`
	d := newDialect()
	s, err := d.Parse([]byte(src))
	require.NoError(t, err)
	guard := "if output.handling == \"DEFLECTION\":\n    return"
	require.Equal(t, []domain.Statement{{Code: guard, After: "package_a"}}, s.Setup)

	out := string(d.Generate(s))
	require.Contains(t, out, "    package_a()\n    if output.handling == \"DEFLECTION\":\n        return\n    package_b()\n")

	// the guard travels with the call it follows
	s.Packages[0], s.Packages[1] = s.Packages[1], s.Packages[0]
	s.Renumber()
	out = string(d.Generate(s))
	require.Contains(t, out, "    package_b()\n    package_a()\n    if output.handling == \"DEFLECTION\":\n        return\n")

	again, err := d.Parse([]byte(out))
	require.NoError(t, err, "generated:\n%s", out)
	require.Equal(t, s.Setup, again.Setup)
}

func TestMultilineStringSurvivesRegeneration(t *testing.T) {
	src := "def ruleflow(input, output):\n" +
		"    def package_a():\n" +
		"        def rule_note():\n" +
		"            output.notes.append(\"\"\"first\n" +
		"second\n" +
		"  third\"\"\")\n" +
		"            output.priority = \"HIGH\"\n" +
		"\n" +
		"        rule_note()\n" +
		"\n" +
		"    package_a()\n"
	d := newDialect()
	s, err := d.Parse([]byte(src))
	require.NoError(t, err)
	require.Equal(t, "def rule_note():\n    output.notes.append(\"\"\"first\nsecond\n  third\"\"\")\n    output.priority = \"HIGH\"",
		s.Packages[0].Rules[0].Code)

	out := d.Generate(s)
	require.Contains(t, string(out), "            output.notes.append(\"\"\"first\nsecond\n  third\"\"\")\n            output.priority = \"HIGH\"\n")
	again, err := d.Parse(out)
	require.NoError(t, err, "generated:\n%s", out)
	if diff := cmp.Diff(s, again); diff != "" {
		t.Fatalf("structure changed (-first +second):\n%s", diff)
	}

	code, err := d.RuleCode("rule_note", "output.notes.append('''a\nb''')\nx = 1")
	require.NoError(t, err)
	require.Equal(t, "def rule_note():\n    output.details.append(\"rule_note\")\n    output.notes.append('''a\nb''')\n    x = 1", code)
}

func TestMisalignedStatementIsRejected(t *testing.T) {
	src := "def ruleflow(input, output):\n    def package_a():\n        pass\n  package_a()\n"
	_, err := newDialect().Parse([]byte(src))
	require.True(t, errors.Is(err, domain.ErrParse), "got %v", err)
	var pe *domain.ParseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, 4, pe.Line)
	require.Contains(t, pe.Message, "unindent")
}

func TestElseOfNegationIsSimplified(t *testing.T) {
	src := `def ruleflow(input, output):
    def package_a():
        pass

    def package_b():
        pass

    if not ready:
        package_a()
    else:
        package_b()
`
	s, err := newDialect().Parse([]byte(src))
	require.NoError(t, err)
	require.Equal(t, "not ready", cond(s.Packages[0].Condition))
	require.Equal(t, "ready", cond(s.Packages[1].Condition))
}
