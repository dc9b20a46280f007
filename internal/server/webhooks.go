package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"caseflow/internal/config"
	"caseflow/internal/domain"
	"caseflow/internal/events"
	"caseflow/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// Dispatcher posts applied edits to the configured webhooks. Each hook keeps
// its own cursor in the database so deliveries resume after a restart.
type Dispatcher struct {
	Repo     repo.Repo
	Hooks    []config.WebhookConfig
	Client   *http.Client
	Interval time.Duration
	Log      *zap.Logger
}

func NewDispatcher(r repo.Repo, hooks []config.WebhookConfig, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		Repo:     r,
		Hooks:    hooks,
		Client:   &http.Client{Timeout: defaultWebhookTimeout},
		Interval: defaultWebhookInterval,
		Log:      log,
	}
}

// Run delivers edits until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	interval := d.Interval
	if interval <= 0 {
		interval = defaultWebhookInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchAll runs one delivery round over every active hook.
func (d *Dispatcher) DispatchAll(ctx context.Context) {
	for _, hook := range d.Hooks {
		if !hook.Active() {
			continue
		}
		if err := d.dispatch(ctx, hook); err != nil {
			d.Log.Warn("webhook delivery failed", zap.String("url", hook.URL), zap.Error(err))
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, hook config.WebhookConfig) error {
	cursor, err := d.cursorFor(ctx, hook)
	if err != nil {
		return fmt.Errorf("init cursor: %w", err)
	}
	edits, err := d.Repo.EditsAfter(ctx, cursor, defaultWebhookBatch)
	if err != nil {
		return fmt.Errorf("fetch edits: %w", err)
	}
	filter := newEventFilter(hook.Events)
	for _, ed := range edits {
		if ed.Status == events.StatusApplied && filter.match(ed.Op) {
			if err := d.post(ctx, hook, ed); err != nil {
				return err
			}
			d.Log.Debug("webhook delivered", zap.String("url", hook.URL), zap.String("uid", ed.UID), zap.String("op", ed.Op))
		}
		if err := d.Repo.SetWebhookCursor(ctx, hook.URL, ed.ID); err != nil {
			return fmt.Errorf("store cursor: %w", err)
		}
	}
	return nil
}

// cursorFor starts new hooks at the current end of the log.
func (d *Dispatcher) cursorFor(ctx context.Context, hook config.WebhookConfig) (int64, error) {
	cur, ok, err := d.Repo.WebhookCursor(ctx, hook.URL)
	if err != nil || ok {
		return cur, err
	}
	cur, err = d.Repo.LatestEditID(ctx)
	if err != nil {
		return 0, err
	}
	return cur, d.Repo.SetWebhookCursor(ctx, hook.URL, cur)
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	UID        string          `json:"uid"`
	Op         string          `json:"op"`
	AppID      string          `json:"app_id"`
	Target     string          `json:"target,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Message    string          `json:"message"`
	AfterSHA   string          `json:"after_sha256,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

// Sign returns the X-Caseflow-Signature value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (d *Dispatcher) post(ctx context.Context, hook config.WebhookConfig, ed domain.Edit) error {
	payload := json.RawMessage([]byte("{}"))
	var raw string
	if ed.Payload != "" {
		if json.Valid([]byte(ed.Payload)) {
			payload = json.RawMessage([]byte(ed.Payload))
		} else {
			raw = ed.Payload
		}
	}
	data, err := json.Marshal(webhookEvent{
		ID:         ed.ID,
		UID:        ed.UID,
		Op:         ed.Op,
		AppID:      ed.AppID,
		Target:     ed.Target,
		ActorID:    ed.ActorID,
		TS:         ed.TS,
		Message:    ed.Message,
		AfterSHA:   ed.AfterSHA256,
		Payload:    payload,
		PayloadRaw: raw,
	})
	if err != nil {
		return err
	}
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != client.Timeout {
			client = &http.Client{Timeout: timeout, Transport: client.Transport}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caseflow-Event", ed.Op)
	req.Header.Set("X-Caseflow-Delivery", ed.UID)
	req.Header.Set("X-Caseflow-App", ed.AppID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Caseflow-Signature", Sign(hook.Secret, data))
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(ops []string) eventFilter {
	set := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		key := strings.TrimSpace(op)
		if key == "*" {
			return eventFilter{all: true}
		}
		if key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(op string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[op]
	return ok
}
