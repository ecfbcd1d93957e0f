package server

import (
	"time"

	"missioncontrol/internal/dashboard"
	"missioncontrol/internal/domain"
	"missioncontrol/internal/metrics"
)

// Request payloads

type CreateAgentRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
	Soul string `json:"soul"`
}

type CreateMemoryRequest struct {
	Content string `json:"content"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"TODO,DOING,DONE"`
	Priority    *string `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH"`
	AgentID     *string `json:"agent_id,omitempty"`
}

// UpdateTaskRequest changes any subset of fields. An explicit null agent_id
// clears the assignment.
type UpdateTaskRequest struct {
	Status   *string `json:"status,omitempty" enum:"TODO,DOING,DONE"`
	Priority *string `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH"`
	AgentID  *string `json:"agent_id,omitempty" nullable:"true"`
}

type PlaybookRequest struct {
	Title                 string   `json:"title"`
	Scenario              string   `json:"scenario"`
	ImpactLevel           string   `json:"impact_level"`
	Owner                 string   `json:"owner"`
	CommunicationTemplate string   `json:"communication_template"`
	Steps                 []string `json:"steps"`
}

// Response payloads

type AgentList struct {
	Items []dashboard.AgentSummary `json:"items"`
}

type MemoryList struct {
	Items []domain.Memory `json:"items"`
}

type TaskList struct {
	Items []dashboard.TaskView `json:"items"`
}

type AuditList struct {
	Items []domain.AuditLog `json:"items"`
}

type PlaybookList struct {
	Items []domain.Playbook `json:"items"`
}

type PerformanceList struct {
	Items []metrics.Performance `json:"items"`
}

type BoardResponse struct {
	ReferenceTime time.Time           `json:"reference_time"`
	Lanes         []metrics.BoardLane `json:"lanes"`
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
