package sandbox

import (
	"reflect"

	"github.com/traefik/yaegi/interp"

	"caseflow/pkg/decision"
)

// Symbols exposes the decision runtime to interpreted engines.
var Symbols = interp.Exports{
	"caseflow/pkg/decision/decision": {
		"BaseDecisionEngine": reflect.ValueOf((*decision.BaseDecisionEngine)(nil)),
		"Engine":             reflect.ValueOf((*decision.Engine)(nil)),
		"Handling":           reflect.ValueOf((*decision.Handling)(nil)),
		"Input":              reflect.ValueOf((*decision.Input)(nil)),
		"Output":             reflect.ValueOf((*decision.Output)(nil)),
		"Priority":           reflect.ValueOf((*decision.Priority)(nil)),

		"NewOutput":    reflect.ValueOf(decision.NewOutput),
		"BumpPriority": reflect.ValueOf(decision.BumpPriority),

		"HandlingAutomated":  reflect.ValueOf(decision.HandlingAutomated),
		"HandlingAgent":      reflect.ValueOf(decision.HandlingAgent),
		"HandlingDeflection": reflect.ValueOf(decision.HandlingDeflection),
		"PriorityVeryLow":    reflect.ValueOf(decision.PriorityVeryLow),
		"PriorityLow":        reflect.ValueOf(decision.PriorityLow),
		"PriorityMedium":     reflect.ValueOf(decision.PriorityMedium),
		"PriorityHigh":       reflect.ValueOf(decision.PriorityHigh),
		"PriorityVeryHigh":   reflect.ValueOf(decision.PriorityVeryHigh),
	},
}
