package dashboard

import (
	"time"

	"missioncontrol/internal/domain"
	"missioncontrol/internal/metrics"
	"missioncontrol/internal/report"
)

type Counts struct {
	Todo          int `json:"todo"`
	Doing         int `json:"doing"`
	Done          int `json:"done"`
	Stuck         int `json:"stuck"`
	NeedsBriefing int `json:"needs_briefing"`
	HighPriority  int `json:"high_priority"`
}

type BriefingAlert struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	LastMemoryAt *time.Time `json:"last_memory_at"`
}

type StuckAlert struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	AgentName string    `json:"agent_name"`
	UpdatedAt time.Time `json:"updated_at"`
	StuckFor  string    `json:"stuck_for"`
}

type StaleMemoryAlert struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LastMemoryAt time.Time `json:"last_memory_at"`
	Age          string    `json:"age"`
}

type Alerts struct {
	NeedsBriefing []BriefingAlert    `json:"needs_briefing"`
	StuckTasks    []StuckAlert       `json:"stuck_tasks"`
	StaleMemories []StaleMemoryAlert `json:"stale_memories"`
}

type ExecutiveSnapshot struct {
	TotalAgents         int    `json:"total_agents"`
	IdleAgents24h       int    `json:"idle_agents_24h"`
	TasksAtRisk         int    `json:"tasks_at_risk"`
	TasksBreached       int    `json:"tasks_breached"`
	OldestOpenTaskLabel string `json:"oldest_open_task_label"`
	HighPriorityStale   int    `json:"high_priority_stale"`
}

// Shell is the bundle the dashboard frame renders without further work.
type Shell struct {
	ReferenceTime time.Time          `json:"reference_time"`
	Counts        Counts             `json:"counts"`
	Alerts        Alerts             `json:"alerts"`
	Snapshot      *ExecutiveSnapshot `json:"snapshot,omitempty"`
}

// Assemble builds the shell bundle from already loaded data. Agents must carry
// every task assigned to them and at least their newest memory.
func Assemble(data report.Data, th metrics.Thresholds, ref time.Time, includeSnapshot bool, stuckLimit int) Shell {
	sh := Shell{
		ReferenceTime: ref,
		Alerts: Alerts{
			NeedsBriefing: []BriefingAlert{},
			StuckTasks:    []StuckAlert{},
			StaleMemories: []StaleMemoryAlert{},
		},
	}
	for _, t := range data.Tasks {
		switch t.Status {
		case domain.StatusTodo:
			sh.Counts.Todo++
		case domain.StatusDoing:
			sh.Counts.Doing++
		case domain.StatusDone:
			sh.Counts.Done++
		}
		if t.Status.Open() && t.Priority == domain.PriorityHigh {
			sh.Counts.HighPriority++
		}
	}

	stale := th.StaleTasks(data.Tasks, ref)
	sh.Counts.Stuck = len(stale)
	if stuckLimit > 0 && len(stale) > stuckLimit {
		stale = stale[:stuckLimit]
	}
	for _, t := range stale {
		sh.Alerts.StuckTasks = append(sh.Alerts.StuckTasks, StuckAlert{
			ID:        t.ID,
			Title:     t.Title,
			AgentName: t.Assignee(),
			UpdatedAt: t.UpdatedAt,
			StuckFor:  metrics.FormatRelative(t.UpdatedAt, ref),
		})
	}

	for _, a := range data.Agents {
		if metrics.NeedsBriefing(a) {
			sh.Counts.NeedsBriefing++
			sh.Alerts.NeedsBriefing = append(sh.Alerts.NeedsBriefing, BriefingAlert{ID: a.Agent.ID, Name: a.Agent.Name})
			continue
		}
		if th.IsMemoryStale(a, ref) {
			m, _ := a.LastMemory()
			sh.Alerts.StaleMemories = append(sh.Alerts.StaleMemories, StaleMemoryAlert{
				ID:           a.Agent.ID,
				Name:         a.Agent.Name,
				LastMemoryAt: m.CreatedAt,
				Age:          metrics.FormatRelative(m.CreatedAt, ref),
			})
		}
	}

	if includeSnapshot {
		snap := executiveSnapshot(data, th, ref)
		sh.Snapshot = &snap
	}
	return sh
}

func executiveSnapshot(data report.Data, th metrics.Thresholds, ref time.Time) ExecutiveSnapshot {
	snap := ExecutiveSnapshot{TotalAgents: len(data.Agents)}
	for _, a := range data.Agents {
		if ref.Sub(a.LastInteraction()) >= th.AgentIdle {
			snap.IdleAgents24h++
		}
	}
	oldest := 0.0
	for _, t := range data.Tasks {
		if !t.Status.Open() {
			continue
		}
		switch th.EvaluateSLA(domain.ParsePriority(string(t.Priority)), t.Status, t.CreatedAt, ref).State {
		case metrics.SLAWarning:
			snap.TasksAtRisk++
		case metrics.SLABreach:
			snap.TasksBreached++
		}
		if age := ref.Sub(t.CreatedAt).Hours(); age > oldest {
			oldest = age
		}
		if t.Priority == domain.PriorityHigh && ref.Sub(t.UpdatedAt) >= th.HighPriorityUntouched {
			snap.HighPriorityStale++
		}
	}
	snap.OldestOpenTaskLabel = metrics.FormatHoursLabel(oldest)
	return snap
}

// Activities groups tasks under their agents and attaches memories, keeping
// the agent order.
func Activities(agents []domain.Agent, tasks []domain.Task, memories map[string][]domain.Memory) []metrics.Activity {
	byAgent := map[string][]domain.Task{}
	for _, t := range tasks {
		if t.AgentID != nil {
			byAgent[*t.AgentID] = append(byAgent[*t.AgentID], t)
		}
	}
	out := make([]metrics.Activity, 0, len(agents))
	for _, a := range agents {
		out = append(out, metrics.Activity{Agent: a, Tasks: byAgent[a.ID], Memories: memories[a.ID]})
	}
	return out
}
