package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"missioncontrol/internal/domain"
)

const taskSelect = `SELECT t.id,t.title,COALESCE(t.description,''),t.status,t.priority,t.agent_id,COALESCE(a.name,''),t.created_at,t.updated_at
FROM tasks t LEFT JOIN agents a ON a.id=t.agent_id`

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	Status   domain.Status
	Priority domain.Priority
	AgentID  string
	Limit    int
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var status, priority, created, updated string
	var agentID sql.NullString
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &agentID, &t.AgentName, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, ErrNotFound
		}
		return t, err
	}
	t.Status = domain.Status(status)
	t.Priority = domain.Priority(priority)
	if agentID.Valid {
		t.AgentID = &agentID.String
	}
	if err := parseStamp(&t.CreatedAt, created, "tasks.created_at"); err != nil {
		return t, err
	}
	return t, parseStamp(&t.UpdatedAt, updated, "tasks.updated_at")
}

func scanTasks(rows *sql.Rows) ([]domain.Task, error) {
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,description,status,priority,agent_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), string(t.Status), string(t.Priority), nullableStringPtr(t.AgentID),
		domain.FormatTimestamp(t.CreatedAt), domain.FormatTimestamp(t.UpdatedAt))
	return err
}

// UpdateTaskTx writes the mutable fields of t.
func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?,description=?,status=?,priority=?,agent_id=?,updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), string(t.Status), string(t.Priority), nullableStringPtr(t.AgentID), domain.FormatTimestamp(t.UpdatedAt), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, taskSelect+` WHERE t.id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, taskSelect+` WHERE t.id=?`, id))
}

// ListTasks returns tasks newest first.
func (r Repo) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "t.status=?")
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		clauses = append(clauses, "t.priority=?")
		args = append(args, string(f.Priority))
	}
	if f.AgentID != "" {
		clauses = append(clauses, "t.agent_id=?")
		args = append(args, f.AgentID)
	}
	query := taskSelect
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY t.created_at DESC, t.id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

// StaleTasks returns DOING tasks last updated strictly before cutoff, oldest first.
// Stored stamps have millisecond precision, so a sub-millisecond cutoff is
// rounded up before the comparison.
func (r Repo) StaleTasks(ctx context.Context, cutoff time.Time) ([]domain.Task, error) {
	if ms := cutoff.Truncate(time.Millisecond); !ms.Equal(cutoff) {
		cutoff = ms.Add(time.Millisecond)
	}
	rows, err := r.DB.QueryContext(ctx, taskSelect+` WHERE t.status=? AND t.updated_at<? ORDER BY t.updated_at ASC, t.id`,
		string(domain.StatusDoing), domain.FormatTimestamp(cutoff))
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}
