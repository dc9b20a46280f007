// Package events records structural edits in the audit log.
package events

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"caseflow/internal/domain"
)

const (
	StatusApplied = "applied"
	StatusNoop    = "noop"
)

type Writer struct {
	Now func() time.Time
}

// Payload is the JSON document stored with an edit.
type Payload map[string]any

// Digest returns the hex sha256 of a source text, "" for no text.
func Digest(src []byte) string {
	if src == nil {
		return ""
	}
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}

// Append inserts e inside tx, filling UID and TS, and returns the stored edit.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e domain.Edit, payload Payload) (domain.Edit, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if e.UID == "" {
		e.UID = uuid.NewString()
	}
	e.TS = now().UTC().Format(time.RFC3339Nano)
	if e.Status == "" {
		e.Status = StatusApplied
	}
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return e, fmt.Errorf("marshal edit payload: %w", err)
	}
	e.Payload = string(data)
	res, err := tx.ExecContext(ctx, `INSERT INTO edits(uid,ts,app_id,op,target,actor_id,status,message,before_sha256,after_sha256,payload_json) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.UID, e.TS, e.AppID, e.Op, e.Target, e.ActorID, e.Status, e.Message, e.BeforeSHA256, e.AfterSHA256, e.Payload)
	if err != nil {
		return e, fmt.Errorf("insert edit: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return e, err
	}
	return e, nil
}
