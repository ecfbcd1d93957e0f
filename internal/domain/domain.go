package domain

import "time"

// Status is a task's position on the board. Stored values outside the
// known set are preserved as-is and treated as StatusUnknown by callers
// that branch on status.
type Status string

const (
	StatusTodo    Status = "TODO"
	StatusDoing   Status = "DOING"
	StatusDone    Status = "DONE"
	StatusUnknown Status = ""
)

// Statuses lists the known statuses in board order.
var Statuses = []Status{StatusTodo, StatusDoing, StatusDone}

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusDoing, StatusDone:
		return true
	}
	return false
}

// Open reports whether the task still counts as active work.
func (s Status) Open() bool {
	return s == StatusTodo || s == StatusDoing
}

// Label is the human label used in reports.
func (s Status) Label() string {
	switch s {
	case StatusTodo:
		return "To Do"
	case StatusDoing:
		return "In Progress"
	case StatusDone:
		return "Done"
	}
	return string(s)
}

// ParseStatus maps raw input to a known status. Unknown values yield
// StatusUnknown and false.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	if s.Valid() {
		return s, true
	}
	return StatusUnknown, false
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Priorities lists priorities from most to least urgent.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority falls back to MEDIUM for anything unrecognized.
func ParsePriority(raw string) Priority {
	p := Priority(raw)
	if p.Valid() {
		return p
	}
	return PriorityMedium
}

type Agent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Soul      string    `json:"soul"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status" enum:"TODO,DOING,DONE"`
	Priority    Priority  `json:"priority" enum:"LOW,MEDIUM,HIGH"`
	AgentID     *string   `json:"agent_id,omitempty"`
	AgentName   string    `json:"agent_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Assignee returns the assigned agent's name or "Unassigned".
func (t Task) Assignee() string {
	if t.AgentID == nil || t.AgentName == "" {
		return "Unassigned"
	}
	return t.AgentName
}

type Memory struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	TaskID    *string   `json:"task_id,omitempty"`
	TaskTitle string    `json:"task_title,omitempty"`
	Metadata  string    `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

type Playbook struct {
	ID                    string         `json:"id"`
	Title                 string         `json:"title"`
	Scenario              string         `json:"scenario"`
	ImpactLevel           string         `json:"impact_level"`
	Owner                 string         `json:"owner"`
	CommunicationTemplate string         `json:"communication_template"`
	Steps                 []PlaybookStep `json:"steps"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

type PlaybookStep struct {
	ID          string `json:"id"`
	Position    int    `json:"position"`
	Instruction string `json:"instruction"`
}

// ImpactRank orders playbooks Critical, High, Medium, Low, then anything else.
func ImpactRank(level string) int {
	switch level {
	case "Critical":
		return 0
	case "High":
		return 1
	case "Medium":
		return 2
	case "Low":
		return 3
	}
	return 4
}
