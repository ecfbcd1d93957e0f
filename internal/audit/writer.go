// Package audit appends immutable audit log rows inside the caller's
// mutation transaction.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"missioncontrol/internal/domain"
)

const (
	ActionAgentCreated        = "agent.created"
	ActionMemoryCreated       = "memory.created"
	ActionTaskCreated         = "task.created"
	ActionTaskStatusUpdated   = "task.status_updated"
	ActionTaskAssigned        = "task.assigned"
	ActionTaskPriorityUpdated = "task.priority_updated"
	ActionPlaybookCreated     = "playbook.created"
	ActionPlaybookUpdated     = "playbook.updated"
	ActionPlaybookDeleted     = "playbook.deleted"
)

// Metadata is serialized as the row's JSON metadata column.
type Metadata map[string]any

// Entry is one audit row. TaskID may be empty.
type Entry struct {
	Action   string
	TaskID   string
	Metadata Metadata
	At       time.Time
}

// Writer stores entries in the audit_logs table.
type Writer struct{}

func (Writer) Record(ctx context.Context, tx *sql.Tx, e Entry) error {
	if e.Action == "" {
		return fmt.Errorf("audit action is required")
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	meta := e.Metadata
	if meta == nil {
		meta = Metadata{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	var task any
	if e.TaskID != "" {
		task = e.TaskID
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO audit_logs(action,task_id,metadata,created_at) VALUES (?,?,?,?)`,
		e.Action, task, string(data), domain.FormatTimestamp(e.At))
	return err
}
