package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"caseflow/internal/domain"
)

// Repo reads the audit log.
type Repo struct {
	DB *sql.DB
}

// EditFilter narrows ListEdits. Zero values match everything.
type EditFilter struct {
	AppID string
	Op    string
	// Before returns edits with smaller IDs, for paging backwards.
	Before int64
	Limit  int
}

const editColumns = `id,uid,ts,app_id,op,target,actor_id,status,message,before_sha256,after_sha256,payload_json`

func scanEdits(rows *sql.Rows) ([]domain.Edit, error) {
	defer rows.Close()
	res := []domain.Edit{}
	for rows.Next() {
		var e domain.Edit
		if err := rows.Scan(&e.ID, &e.UID, &e.TS, &e.AppID, &e.Op, &e.Target, &e.ActorID, &e.Status, &e.Message, &e.BeforeSHA256, &e.AfterSHA256, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ListEdits returns edits newest first.
func (r Repo) ListEdits(ctx context.Context, f EditFilter) ([]domain.Edit, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.AppID != "" {
		clauses = append(clauses, "app_id=?")
		args = append(args, f.AppID)
	}
	if f.Op != "" {
		clauses = append(clauses, "op=?")
		args = append(args, f.Op)
	}
	if f.Before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Before)
	}
	query := fmt.Sprintf(`SELECT %s FROM edits WHERE %s ORDER BY id DESC LIMIT ?`, editColumns, strings.Join(clauses, " AND "))
	args = append(args, f.Limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEdits(rows)
}

// GetEdit looks an edit up by its uid.
func (r Repo) GetEdit(ctx context.Context, uid string) (domain.Edit, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+editColumns+` FROM edits WHERE uid=?`, uid)
	if err != nil {
		return domain.Edit{}, err
	}
	edits, err := scanEdits(rows)
	if err != nil {
		return domain.Edit{}, err
	}
	if len(edits) == 0 {
		return domain.Edit{}, fmt.Errorf("edit %s: %w", uid, domain.ErrNotFound)
	}
	return edits[0], nil
}

// EditsAfter returns edits with IDs greater than the cursor in ascending order.
func (r Repo) EditsAfter(ctx context.Context, cursor int64, limit int) ([]domain.Edit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+editColumns+` FROM edits WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	return scanEdits(rows)
}

// LatestEditID returns the most recent edit ID, 0 for an empty log.
func (r Repo) LatestEditID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM edits`).Scan(&id)
	return id, err
}

// WebhookCursor returns the last edit delivered to url. ok is false when the
// webhook has never been seen.
func (r Repo) WebhookCursor(ctx context.Context, url string) (cursor int64, ok bool, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT edit_id FROM webhook_cursors WHERE url=?`, url).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return cursor, true, nil
}

func (r Repo) SetWebhookCursor(ctx context.Context, url string, cursor int64) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO webhook_cursors(url,edit_id) VALUES (?,?) ON CONFLICT(url) DO UPDATE SET edit_id=excluded.edit_id`, url, cursor)
	return err
}
