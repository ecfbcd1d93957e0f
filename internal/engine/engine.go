package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"missioncontrol/internal/audit"
	"missioncontrol/internal/config"
	"missioncontrol/internal/domain"
	"missioncontrol/internal/repo"
)

// ErrInvalid marks input validation failures.
var ErrInvalid = errors.New("invalid input")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// AuditRecorder receives one entry per mutation, inside the mutation's
// transaction.
type AuditRecorder interface {
	Record(ctx context.Context, tx *sql.Tx, e audit.Entry) error
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  AuditRecorder
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Audit:  audit.Writer{},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// Clock returns the engine's notion of "now"; request handlers sample it
// once and thread the value through every computation.
func (e Engine) Clock() time.Time {
	return e.now()
}

func (e Engine) record(ctx context.Context, tx *sql.Tx, at time.Time, action, taskID, actorID string, meta audit.Metadata) error {
	if e.Audit == nil {
		return nil
	}
	if meta == nil {
		meta = audit.Metadata{}
	}
	if actorID != "" {
		meta["actor_id"] = actorID
	}
	return e.Audit.Record(ctx, tx, audit.Entry{Action: action, TaskID: taskID, Metadata: meta, At: at})
}

type AgentCreateOptions struct {
	Name    string
	Role    string
	Soul    string
	ActorID string
}

func (e Engine) CreateAgent(ctx context.Context, opts AgentCreateOptions) (domain.Agent, error) {
	name := strings.TrimSpace(opts.Name)
	role := strings.TrimSpace(opts.Role)
	soul := strings.TrimSpace(opts.Soul)
	switch {
	case name == "":
		return domain.Agent{}, invalidf("name is required")
	case role == "":
		return domain.Agent{}, invalidf("role is required")
	case soul == "":
		return domain.Agent{}, invalidf("soul is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agent{}, err
	}
	defer tx.Rollback()
	now := e.now()
	a := domain.Agent{ID: uuid.NewString(), Name: name, Role: role, Soul: soul, CreatedAt: now, UpdatedAt: now}
	if err := e.Repo.InsertAgentTx(ctx, tx, a); err != nil {
		return domain.Agent{}, fmt.Errorf("insert agent: %w", err)
	}
	if err := e.record(ctx, tx, now, audit.ActionAgentCreated, "", opts.ActorID, audit.Metadata{"agent_id": a.ID, "name": a.Name}); err != nil {
		return domain.Agent{}, err
	}
	return a, tx.Commit()
}

type MemoryCreateOptions struct {
	AgentID string
	Content string
	ActorID string
}

func (e Engine) AddMemory(ctx context.Context, opts MemoryCreateOptions) (domain.Memory, error) {
	content := strings.TrimSpace(opts.Content)
	if content == "" {
		return domain.Memory{}, invalidf("content is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Memory{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetAgentTx(ctx, tx, opts.AgentID); err != nil {
		return domain.Memory{}, fmt.Errorf("agent %s: %w", opts.AgentID, err)
	}
	now := e.now()
	m := domain.Memory{ID: uuid.NewString(), AgentID: opts.AgentID, Content: content, CreatedAt: now}
	if err := e.Repo.InsertMemoryTx(ctx, tx, m); err != nil {
		return domain.Memory{}, fmt.Errorf("insert memory: %w", err)
	}
	if err := e.record(ctx, tx, now, audit.ActionMemoryCreated, "", opts.ActorID, audit.Metadata{"agent_id": m.AgentID, "memory_id": m.ID}); err != nil {
		return domain.Memory{}, err
	}
	return m, tx.Commit()
}

type TaskCreateOptions struct {
	Title       string
	Description string
	Status      string
	Priority    string
	AgentID     string
	ActorID     string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, invalidf("title is required")
	}
	status := domain.StatusTodo
	if opts.Status != "" {
		s, ok := domain.ParseStatus(opts.Status)
		if !ok {
			return domain.Task{}, invalidf("unknown status %q", opts.Status)
		}
		status = s
	}
	priority := domain.PriorityMedium
	if opts.Priority != "" {
		if !domain.Priority(opts.Priority).Valid() {
			return domain.Task{}, invalidf("unknown priority %q", opts.Priority)
		}
		priority = domain.Priority(opts.Priority)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	now := e.now()
	t := domain.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(opts.Description),
		Status:      status,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.AgentID != "" {
		a, err := e.Repo.GetAgentTx(ctx, tx, opts.AgentID)
		if err != nil {
			return domain.Task{}, fmt.Errorf("agent %s: %w", opts.AgentID, err)
		}
		t.AgentID = &a.ID
		t.AgentName = a.Name
	}
	if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.record(ctx, tx, now, audit.ActionTaskCreated, t.ID, opts.ActorID, audit.Metadata{"status": string(t.Status), "priority": string(t.Priority)}); err != nil {
		return domain.Task{}, err
	}
	return t, tx.Commit()
}

// TaskUpdateOptions carries optional changes. AgentID pointing at "" clears
// the assignment.
type TaskUpdateOptions struct {
	ID       string
	Status   *string
	Priority *string
	AgentID  *string
	ActorID  string
}

// UpdateTask applies changes and advances updatedAt when anything changed.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	if opts.Status == nil && opts.Priority == nil && opts.AgentID == nil {
		return domain.Task{}, invalidf("no changes requested")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetTaskTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	type change struct {
		action string
		meta   audit.Metadata
	}
	var changes []change

	if opts.Status != nil {
		s, ok := domain.ParseStatus(*opts.Status)
		if !ok {
			return domain.Task{}, invalidf("unknown status %q", *opts.Status)
		}
		if s != t.Status {
			changes = append(changes, change{audit.ActionTaskStatusUpdated, audit.Metadata{"from": string(t.Status), "status": string(s)}})
			t.Status = s
		}
	}
	if opts.Priority != nil {
		p := domain.Priority(*opts.Priority)
		if !p.Valid() {
			return domain.Task{}, invalidf("unknown priority %q", *opts.Priority)
		}
		if p != t.Priority {
			changes = append(changes, change{audit.ActionTaskPriorityUpdated, audit.Metadata{"from": string(t.Priority), "priority": string(p)}})
			t.Priority = p
		}
	}
	if opts.AgentID != nil {
		current := ""
		if t.AgentID != nil {
			current = *t.AgentID
		}
		next := strings.TrimSpace(*opts.AgentID)
		if next != current {
			if next == "" {
				t.AgentID, t.AgentName = nil, ""
			} else {
				a, err := e.Repo.GetAgentTx(ctx, tx, next)
				if err != nil {
					return domain.Task{}, fmt.Errorf("agent %s: %w", next, err)
				}
				t.AgentID, t.AgentName = &a.ID, a.Name
			}
			changes = append(changes, change{audit.ActionTaskAssigned, audit.Metadata{"from": current, "agent_id": next}})
		}
	}
	if len(changes) == 0 {
		return t, nil
	}
	t.UpdatedAt = now
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	for _, c := range changes {
		if err := e.record(ctx, tx, now, c.action, t.ID, opts.ActorID, c.meta); err != nil {
			return domain.Task{}, err
		}
	}
	return t, tx.Commit()
}
