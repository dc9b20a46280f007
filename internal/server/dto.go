package server

import (
	"caseflow/internal/domain"
	"caseflow/internal/engine"
)

// Request payloads

type CreateAppRequest struct {
	ID        string `json:"id"`
	ClassName string `json:"class_name,omitempty"`
}

type AddPackageRequest struct {
	Name      string  `json:"name"`
	Condition *string `json:"condition,omitempty"`
	Order     *int    `json:"order,omitempty" minimum:"0"`
}

type MoveRequest struct {
	Direction string `json:"direction" enum:"up,down"`
}

type PackageConditionRequest struct {
	// null or blank makes the package unconditional
	Condition *string `json:"condition,omitempty"`
}

type AddRuleRequest struct {
	Name      string  `json:"name"`
	Code      string  `json:"code,omitempty"`
	Condition *string `json:"condition,omitempty"`
	Order     *int    `json:"order,omitempty" minimum:"0"`
}

type OutputAssignmentRequest struct {
	Attribute string `json:"attribute" example:"priority"`
	Value     string `json:"value" example:"\"MEDIUM\""`
}

type UpdateRuleRequest struct {
	Code              *string                   `json:"code,omitempty"`
	Condition         *string                   `json:"condition,omitempty"`
	ClearCondition    bool                      `json:"clear_condition,omitempty"`
	FreeCode          *string                   `json:"free_code,omitempty"`
	OutputAssignments []OutputAssignmentRequest `json:"output_assignments,omitempty"`
}

type SimulateRequest struct {
	Intention   string         `json:"intention"`
	FieldValues map[string]any `json:"field_values,omitempty"`
}

// Response payloads

type SourceResponse struct {
	AppID    string `json:"app_id"`
	FileName string `json:"file_name"`
	Dialect  string `json:"dialect"`
	Source   string `json:"source"`
}

type EditResponse struct {
	Message   string            `json:"message"`
	Changed   bool              `json:"changed"`
	Structure *domain.Structure `json:"structure,omitempty"`
	Edit      *domain.Edit      `json:"edit,omitempty"`
}

type HistoryResponse struct {
	Items      []domain.Edit `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

func editResponse(r engine.Result) EditResponse {
	return EditResponse{
		Message:   r.Message,
		Changed:   r.Changed,
		Structure: r.Structure,
		Edit:      r.Edit,
	}
}

func outputAssignments(in []OutputAssignmentRequest) []domain.OutputAssignment {
	if in == nil {
		return nil
	}
	out := make([]domain.OutputAssignment, 0, len(in))
	for _, a := range in {
		out = append(out, domain.OutputAssignment{Attribute: a.Attribute, Value: a.Value})
	}
	return out
}
