package repo

import (
	"context"
	"database/sql"
	"strings"

	"missioncontrol/internal/domain"
)

type AuditFilter struct {
	Action string
	TaskID string
	Limit  int
}

// ListAuditLogs returns the newest entries first, joined with task titles.
func (r Repo) ListAuditLogs(ctx context.Context, f AuditFilter) ([]domain.AuditLog, error) {
	var clauses []string
	var args []any
	if f.Action != "" {
		clauses = append(clauses, "l.action=?")
		args = append(args, f.Action)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "l.task_id=?")
		args = append(args, f.TaskID)
	}
	query := `SELECT l.id,l.action,l.task_id,COALESCE(t.title,''),l.metadata,l.created_at FROM audit_logs l LEFT JOIN tasks t ON t.id=l.task_id`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY l.created_at DESC, l.id DESC LIMIT ?"
	args = append(args, normalizeLimit(f.Limit, 20, 200))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditLog
	for rows.Next() {
		var l domain.AuditLog
		var taskID sql.NullString
		var created string
		if err := rows.Scan(&l.ID, &l.Action, &taskID, &l.TaskTitle, &l.Metadata, &created); err != nil {
			return nil, err
		}
		if taskID.Valid {
			l.TaskID = &taskID.String
		}
		if err := parseStamp(&l.CreatedAt, created, "audit_logs.created_at"); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
