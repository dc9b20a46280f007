// Package decision is the runtime imported by generated Go decision engines.
package decision

import "fmt"

type Handling string

const (
	HandlingAutomated  Handling = "AUTOMATED"
	HandlingAgent      Handling = "AGENT"
	HandlingDeflection Handling = "DEFLECTION"
)

type Priority string

const (
	PriorityVeryLow  Priority = "VERY_LOW"
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityVeryHigh Priority = "VERY_HIGH"
)

var priorityOrder = []Priority{PriorityVeryLow, PriorityLow, PriorityMedium, PriorityHigh, PriorityVeryHigh}

// Rank returns the ordinal of p, or -1 for an unknown value.
func (p Priority) Rank() int {
	for i, v := range priorityOrder {
		if v == p {
			return i
		}
	}
	return -1
}

// Input is what the scoring step hands to a decision engine.
type Input struct {
	Intention   string         `json:"intention"`
	FieldValues map[string]any `json:"field_values"`
}

// Field returns the value of a field as text, "" when absent.
func (in *Input) Field(name string) string {
	if in == nil || in.FieldValues == nil {
		return ""
	}
	v, ok := in.FieldValues[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Output is the mutable verdict rules write into.
type Output struct {
	Handling                   Handling `json:"handling"`
	AcknowledgementToRequester string   `json:"acknowledgement_to_requester"`
	ResponseTemplateID         string   `json:"response_template_id"`
	WorkBasket                 string   `json:"work_basket"`
	Priority                   Priority `json:"priority"`
	Notes                      []string `json:"notes"`
	Details                    []string `json:"details"`
}

func NewOutput() *Output {
	return &Output{
		Handling: HandlingAgent,
		Priority: PriorityLow,
		Notes:    []string{},
		Details:  []string{},
	}
}

// BumpPriority raises the priority one step. VERY_HIGH stays VERY_HIGH.
func BumpPriority(out *Output) {
	rank := out.Priority.Rank()
	if rank < 0 {
		out.Priority = PriorityLow
		return
	}
	if rank < len(priorityOrder)-1 {
		out.Priority = priorityOrder[rank+1]
	}
}

// BaseDecisionEngine is embedded by generated engine types.
type BaseDecisionEngine struct{}

// Engine is satisfied by every generated engine type.
type Engine interface {
	Decide(input *Input) *Output
}
