package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"caseflow/internal/domain"
	"caseflow/internal/engine"
	"caseflow/pkg/decision"
)

var editErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

type editOutput struct {
	Body EditResponse `json:"body"`
}

func editResult(r engine.Result, err error) (*editOutput, error) {
	if err != nil {
		return nil, handleError(err)
	}
	return &editOutput{Body: editResponse(r)}, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerApps(api huma.API, e engine.Engine) {
	type appPath struct {
		AppID string `path:"app_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-apps",
		Method:      http.MethodGet,
		Path:        "/apps",
		Summary:     "List apps",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []engine.AppSummary `json:"body"`
	}, error) {
		items, err := e.ListApps(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.AppSummary `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-app",
		Method:        http.MethodPost,
		Path:          "/apps",
		Summary:       "Create app",
		DefaultStatus: http.StatusCreated,
		Errors:        editErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateAppRequest `json:"body"`
	}) (*editOutput, error) {
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		return editResult(e.CreateApp(ctx, engine.AppCreateOptions{
			AppID:     input.Body.ID,
			ClassName: input.Body.ClassName,
			ActorID:   actorID(ctx),
		}))
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-structure",
		Method:      http.MethodGet,
		Path:        "/apps/{app_id}/structure",
		Summary:     "Parsed structure of an app",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *appPath) (*struct {
		Body *domain.Structure `json:"body"`
	}, error) {
		s, err := e.GetStructure(ctx, input.AppID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body *domain.Structure `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-source",
		Method:      http.MethodGet,
		Path:        "/apps/{app_id}/source",
		Summary:     "Source text of an app",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *appPath) (*struct {
		Body SourceResponse `json:"body"`
	}, error) {
		src, err := e.GetSource(ctx, input.AppID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SourceResponse `json:"body"`
		}{Body: SourceResponse{
			AppID:    input.AppID,
			FileName: e.Store.FileName,
			Dialect:  e.Dialect.Name(),
			Source:   string(src),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-history",
		Method:      http.MethodGet,
		Path:        "/apps/{app_id}/history",
		Summary:     "Audit log of an app, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AppID  string `path:"app_id"`
		Op     string `query:"op"`
		Limit  int    `query:"limit"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body HistoryResponse `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			v, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || v <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			before = v
		}
		items, err := e.History(ctx, engine.HistoryOptions{AppID: input.AppID, Op: input.Op, Before: before, Limit: limit + 1})
		if err != nil {
			return nil, handleError(err)
		}
		resp := HistoryResponse{Items: items}
		if len(items) > limit {
			resp.Items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		return &struct {
			Body HistoryResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerPackages(api huma.API, e engine.Engine) {
	type packagePath struct {
		AppID   string `path:"app_id"`
		Package string `path:"package"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "add-package",
		Method:        http.MethodPost,
		Path:          "/apps/{app_id}/packages",
		Summary:       "Add package",
		DefaultStatus: http.StatusCreated,
		Errors:        editErrors,
	}, func(ctx context.Context, input *struct {
		AppID string            `path:"app_id"`
		Body  AddPackageRequest `json:"body"`
	}) (*editOutput, error) {
		return editResult(e.AddPackage(ctx, engine.PackageAddOptions{
			AppID:     input.AppID,
			Name:      input.Body.Name,
			Condition: input.Body.Condition,
			Order:     input.Body.Order,
			ActorID:   actorID(ctx),
		}))
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-package",
		Method:      http.MethodDelete,
		Path:        "/apps/{app_id}/packages/{package}",
		Summary:     "Delete package",
		Errors:      editErrors,
	}, func(ctx context.Context, input *packagePath) (*editOutput, error) {
		return editResult(e.DeletePackage(ctx, engine.PackageDeleteOptions{
			AppID:   input.AppID,
			Name:    input.Package,
			ActorID: actorID(ctx),
		}))
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-package",
		Method:      http.MethodPost,
		Path:        "/apps/{app_id}/packages/{package}/move",
		Summary:     "Move package up or down",
		Errors:      editErrors,
	}, func(ctx context.Context, input *struct {
		AppID   string      `path:"app_id"`
		Package string      `path:"package"`
		Body    MoveRequest `json:"body"`
	}) (*editOutput, error) {
		return editResult(e.MovePackage(ctx, engine.PackageMoveOptions{
			AppID:     input.AppID,
			Name:      input.Package,
			Direction: domain.Direction(input.Body.Direction),
			ActorID:   actorID(ctx),
		}))
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-package-condition",
		Method:      http.MethodPut,
		Path:        "/apps/{app_id}/packages/{package}/condition",
		Summary:     "Set or clear the condition of a package",
		Errors:      editErrors,
	}, func(ctx context.Context, input *struct {
		AppID   string                  `path:"app_id"`
		Package string                  `path:"package"`
		Body    PackageConditionRequest `json:"body"`
	}) (*editOutput, error) {
		return editResult(e.UpdatePackageCondition(ctx, engine.PackageConditionOptions{
			AppID:     input.AppID,
			Name:      input.Package,
			Condition: input.Body.Condition,
			ActorID:   actorID(ctx),
		}))
	})
}

func registerRules(api huma.API, e engine.Engine) {
	type rulePath struct {
		AppID   string `path:"app_id"`
		Package string `path:"package"`
		Rule    string `path:"rule"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "add-rule",
		Method:        http.MethodPost,
		Path:          "/apps/{app_id}/packages/{package}/rules",
		Summary:       "Add rule",
		DefaultStatus: http.StatusCreated,
		Errors:        editErrors,
	}, func(ctx context.Context, input *struct {
		AppID   string         `path:"app_id"`
		Package string         `path:"package"`
		Body    AddRuleRequest `json:"body"`
	}) (*editOutput, error) {
		return editResult(e.AddRule(ctx, engine.RuleAddOptions{
			AppID:     input.AppID,
			Package:   input.Package,
			Name:      input.Body.Name,
			Code:      input.Body.Code,
			Condition: input.Body.Condition,
			Order:     input.Body.Order,
			ActorID:   actorID(ctx),
		}))
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-rule",
		Method:      http.MethodPatch,
		Path:        "/apps/{app_id}/packages/{package}/rules/{rule}",
		Summary:     "Update rule code, condition or components",
		Errors:      editErrors,
	}, func(ctx context.Context, input *struct {
		AppID   string            `path:"app_id"`
		Package string            `path:"package"`
		Rule    string            `path:"rule"`
		Body    UpdateRuleRequest `json:"body"`
	}) (*editOutput, error) {
		assigns := outputAssignments(input.Body.OutputAssignments)
		if _, ok := rawBodyMap(ctx)["output_assignments"]; ok && assigns == nil {
			// an explicit empty list drops every output mutation
			assigns = []domain.OutputAssignment{}
		}
		return editResult(e.UpdateRule(ctx, engine.RuleUpdateOptions{
			AppID:             input.AppID,
			Package:           input.Package,
			Name:              input.Rule,
			Code:              input.Body.Code,
			Condition:         input.Body.Condition,
			ClearCondition:    input.Body.ClearCondition,
			FreeCode:          input.Body.FreeCode,
			OutputAssignments: assigns,
			ActorID:           actorID(ctx),
		}))
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-rule",
		Method:      http.MethodDelete,
		Path:        "/apps/{app_id}/packages/{package}/rules/{rule}",
		Summary:     "Delete rule",
		Errors:      editErrors,
	}, func(ctx context.Context, input *rulePath) (*editOutput, error) {
		return editResult(e.DeleteRule(ctx, engine.RuleDeleteOptions{
			AppID:   input.AppID,
			Package: input.Package,
			Name:    input.Rule,
			ActorID: actorID(ctx),
		}))
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-rule",
		Method:      http.MethodPost,
		Path:        "/apps/{app_id}/packages/{package}/rules/{rule}/move",
		Summary:     "Move rule up or down within its package",
		Errors:      editErrors,
	}, func(ctx context.Context, input *struct {
		AppID   string      `path:"app_id"`
		Package string      `path:"package"`
		Rule    string      `path:"rule"`
		Body    MoveRequest `json:"body"`
	}) (*editOutput, error) {
		return editResult(e.MoveRule(ctx, engine.RuleMoveOptions{
			AppID:     input.AppID,
			Package:   input.Package,
			Name:      input.Rule,
			Direction: domain.Direction(input.Body.Direction),
			ActorID:   actorID(ctx),
		}))
	})

	huma.Register(api, huma.Operation{
		OperationID: "decompose-rule",
		Method:      http.MethodGet,
		Path:        "/apps/{app_id}/packages/{package}/rules/{rule}/decomposition",
		Summary:     "Split a rule into free code and output assignments",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *rulePath) (*struct {
		Body domain.Decomposition `json:"body"`
	}, error) {
		d, err := e.DecomposeRule(ctx, input.AppID, input.Package, input.Rule)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Decomposition `json:"body"`
		}{Body: d}, nil
	})
}

func registerSimulation(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "simulate",
		Method:      http.MethodPost,
		Path:        "/apps/{app_id}/simulate",
		Summary:     "Run the decision engine of an app against one input",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusNotImplemented,
		},
	}, func(ctx context.Context, input *struct {
		AppID string          `path:"app_id"`
		Body  SimulateRequest `json:"body"`
	}) (*struct {
		Body *decision.Output `json:"body"`
	}, error) {
		fields := input.Body.FieldValues
		if fields == nil {
			fields = map[string]any{}
		}
		out, err := e.Simulate(ctx, engine.SimulateOptions{
			AppID: input.AppID,
			Input: decision.Input{Intention: input.Body.Intention, FieldValues: fields},
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body *decision.Output `json:"body"`
		}{Body: out}, nil
	})
}
