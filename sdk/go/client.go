package caseflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"caseflow/pkg/decision"
)

// Client is a minimal caseflow HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	ActorID     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// App summarises a stored decision engine.
type App struct {
	ID        string `json:"id"`
	ClassName string `json:"class_name"`
	Packages  int    `json:"packages"`
	Rules     int    `json:"rules"`
	Error     string `json:"error,omitempty"`
}

// Structure represents the parsed engine (partial).
type Structure struct {
	ClassName   string    `json:"class_name"`
	HasRuleflow bool      `json:"has_ruleflow"`
	Packages    []Package `json:"packages"`
}

type Package struct {
	Name           string  `json:"name"`
	Condition      *string `json:"condition"`
	ExecutionOrder int     `json:"execution_order"`
	Rules          []Rule  `json:"rules"`
}

type Rule struct {
	Name      string  `json:"name"`
	Code      string  `json:"code"`
	Condition *string `json:"condition"`
}

type OutputAssignment struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

type Decomposition struct {
	Signature         string             `json:"signature"`
	FreeCode          string             `json:"free_code"`
	OutputAssignments []OutputAssignment `json:"output_assignments"`
}

// Edit is an audit log entry.
type Edit struct {
	ID      int64  `json:"id"`
	UID     string `json:"uid"`
	TS      string `json:"ts"`
	AppID   string `json:"app_id"`
	Op      string `json:"op"`
	Target  string `json:"target"`
	ActorID string `json:"actor_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// EditResult is returned by every structural edit.
type EditResult struct {
	Message   string     `json:"message"`
	Changed   bool       `json:"changed"`
	Structure *Structure `json:"structure"`
	Edit      *Edit      `json:"edit"`
}

// PaginatedEdits wraps history responses with cursors.
type PaginatedEdits struct {
	Items      []Edit `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// RuleUpdate selects the fields of a rule to change. Nil fields are left alone.
type RuleUpdate struct {
	Code              *string            `json:"code,omitempty"`
	Condition         *string            `json:"condition,omitempty"`
	ClearCondition    bool               `json:"clear_condition,omitempty"`
	FreeCode          *string            `json:"free_code,omitempty"`
	OutputAssignments []OutputAssignment `json:"output_assignments,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

func (c *Client) ListApps(ctx context.Context) ([]App, error) {
	var resp []App
	err := c.do(ctx, http.MethodGet, "apps", nil, &resp)
	return resp, err
}

// CreateApp writes an empty engine. className may be empty.
func (c *Client) CreateApp(ctx context.Context, appID, className string) (EditResult, error) {
	body := map[string]any{"id": appID}
	if className != "" {
		body["class_name"] = className
	}
	var resp EditResult
	err := c.do(ctx, http.MethodPost, "apps", body, &resp)
	return resp, err
}

func (c *Client) Structure(ctx context.Context, appID string) (Structure, error) {
	var resp Structure
	err := c.do(ctx, http.MethodGet, appPath(appID, "structure"), nil, &resp)
	return resp, err
}

// Source returns the engine source text.
func (c *Client) Source(ctx context.Context, appID string) (string, error) {
	var resp struct {
		Source string `json:"source"`
	}
	err := c.do(ctx, http.MethodGet, appPath(appID, "source"), nil, &resp)
	return resp.Source, err
}

// HistoryPage returns audit entries newest first.
func (c *Client) HistoryPage(ctx context.Context, appID string, limit int, cursor string) (PaginatedEdits, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := appPath(appID, "history")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEdits
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AddPackage inserts a package. A nil order appends it.
func (c *Client) AddPackage(ctx context.Context, appID, name string, condition *string, order *int) (EditResult, error) {
	body := map[string]any{"name": name}
	if condition != nil {
		body["condition"] = *condition
	}
	if order != nil {
		body["order"] = *order
	}
	var resp EditResult
	err := c.do(ctx, http.MethodPost, appPath(appID, "packages"), body, &resp)
	return resp, err
}

func (c *Client) DeletePackage(ctx context.Context, appID, name string) (EditResult, error) {
	var resp EditResult
	err := c.do(ctx, http.MethodDelete, packagePath(appID, name, ""), nil, &resp)
	return resp, err
}

func (c *Client) MovePackage(ctx context.Context, appID, name, direction string) (EditResult, error) {
	var resp EditResult
	err := c.do(ctx, http.MethodPost, packagePath(appID, name, "move"), map[string]any{"direction": direction}, &resp)
	return resp, err
}

// SetPackageCondition sets the gate of a package; nil removes it.
func (c *Client) SetPackageCondition(ctx context.Context, appID, name string, condition *string) (EditResult, error) {
	body := map[string]any{}
	if condition != nil {
		body["condition"] = *condition
	}
	var resp EditResult
	err := c.do(ctx, http.MethodPut, packagePath(appID, name, "condition"), body, &resp)
	return resp, err
}

func (c *Client) AddRule(ctx context.Context, appID, pkg, name, code string, condition *string, order *int) (EditResult, error) {
	body := map[string]any{"name": name, "code": code}
	if condition != nil {
		body["condition"] = *condition
	}
	if order != nil {
		body["order"] = *order
	}
	var resp EditResult
	err := c.do(ctx, http.MethodPost, packagePath(appID, pkg, "rules"), body, &resp)
	return resp, err
}

func (c *Client) UpdateRule(ctx context.Context, appID, pkg, name string, upd RuleUpdate) (EditResult, error) {
	var resp EditResult
	err := c.do(ctx, http.MethodPatch, rulePath(appID, pkg, name, ""), upd, &resp)
	return resp, err
}

func (c *Client) DeleteRule(ctx context.Context, appID, pkg, name string) (EditResult, error) {
	var resp EditResult
	err := c.do(ctx, http.MethodDelete, rulePath(appID, pkg, name, ""), nil, &resp)
	return resp, err
}

func (c *Client) MoveRule(ctx context.Context, appID, pkg, name, direction string) (EditResult, error) {
	var resp EditResult
	err := c.do(ctx, http.MethodPost, rulePath(appID, pkg, name, "move"), map[string]any{"direction": direction}, &resp)
	return resp, err
}

func (c *Client) DecomposeRule(ctx context.Context, appID, pkg, name string) (Decomposition, error) {
	var resp Decomposition
	err := c.do(ctx, http.MethodGet, rulePath(appID, pkg, name, "decomposition"), nil, &resp)
	return resp, err
}

// Simulate runs the engine of an app against one input.
func (c *Client) Simulate(ctx context.Context, appID string, in decision.Input) (decision.Output, error) {
	var resp decision.Output
	err := c.do(ctx, http.MethodPost, appPath(appID, "simulate"), in, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var reader io.Reader = http.NoBody
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func appPath(appID, p string) string {
	return fmt.Sprintf("apps/%s/%s", url.PathEscape(appID), p)
}

func packagePath(appID, pkg, p string) string {
	return strings.TrimSuffix(appPath(appID, "packages/"+url.PathEscape(pkg)+"/"+p), "/")
}

func rulePath(appID, pkg, rule, p string) string {
	return packagePath(appID, pkg, "rules/"+url.PathEscape(rule)+"/"+p)
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if c.BasePath != "" {
		base += "/" + strings.Trim(c.BasePath, "/")
	}
	return base
}
