package metrics

import (
	"sort"
	"time"

	"missioncontrol/internal/domain"
)

type Breakdown struct {
	Todo  int `json:"TODO"`
	Doing int `json:"DOING"`
	Done  int `json:"DONE"`
}

type Workload struct {
	Breakdown   Breakdown `json:"breakdown"`
	ActiveCount int       `json:"active_count"`
	StuckCount  int       `json:"stuck_count"`
}

// ComputeWorkload tallies tasks by known status. Unknown statuses are ignored.
func ComputeWorkload(tasks []domain.Task, staleCutoff time.Time) Workload {
	var w Workload
	for _, t := range tasks {
		switch t.Status {
		case domain.StatusTodo:
			w.Breakdown.Todo++
		case domain.StatusDoing:
			w.Breakdown.Doing++
			if t.UpdatedAt.Before(staleCutoff) {
				w.StuckCount++
			}
		case domain.StatusDone:
			w.Breakdown.Done++
		}
	}
	w.ActiveCount = w.Breakdown.Todo + w.Breakdown.Doing
	return w
}

type Lane string

const (
	LaneIdle       Lane = "IDLE"
	LaneEngaged    Lane = "ENGAGED"
	LaneOverloaded Lane = "OVERLOADED"
)

var Lanes = []Lane{LaneIdle, LaneEngaged, LaneOverloaded}

func ClassifyCapacity(active int) Lane {
	switch {
	case active <= 0:
		return LaneIdle
	case active <= 3:
		return LaneEngaged
	default:
		return LaneOverloaded
	}
}

// Activity is an agent together with the tasks assigned to it and its
// memories, newest first. Memories may be truncated to the latest entries.
type Activity struct {
	Agent    domain.Agent
	Tasks    []domain.Task
	Memories []domain.Memory
}

type Presence struct {
	LastInteraction time.Time `json:"last_interaction"`
	IdleForHours    float64   `json:"idle_for_hours"`
	IsIdle          bool      `json:"is_idle"`
}

func ComputePresence(a Activity, ref time.Time) Presence {
	return DefaultThresholds().ComputePresence(a, ref)
}

func (th Thresholds) ComputePresence(a Activity, ref time.Time) Presence {
	last := a.LastInteraction()
	idle := hoursBetween(last, ref)
	return Presence{
		LastInteraction: last,
		IdleForHours:    idle,
		IsIdle:          idle >= th.PresenceIdle.Hours(),
	}
}

// LastInteraction is the latest of the agent's own timestamps, its task
// touches and its memory writes.
func (a Activity) LastInteraction() time.Time {
	last := latest(a.Agent.CreatedAt, a.Agent.UpdatedAt)
	for _, t := range a.Tasks {
		last = latest(last, latest(t.CreatedAt, t.UpdatedAt))
	}
	for _, m := range a.Memories {
		last = latest(last, m.CreatedAt)
	}
	return last
}

// LastMemory returns the most recent memory, if any.
func (a Activity) LastMemory() (domain.Memory, bool) {
	var out domain.Memory
	found := false
	for _, m := range a.Memories {
		if !found || m.CreatedAt.After(out.CreatedAt) {
			out = m
			found = true
		}
	}
	return out, found
}

func NeedsBriefing(a Activity) bool {
	return len(a.Memories) == 0
}

// IsMemoryStale reports whether the agent has memories but none newer than
// the memory hygiene threshold. Agents without memories need a briefing
// instead and are not reported here.
func (th Thresholds) IsMemoryStale(a Activity, ref time.Time) bool {
	m, ok := a.LastMemory()
	if !ok {
		return false
	}
	return ref.Sub(m.CreatedAt) >= th.MemoryStale
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func sortByUpdated(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].UpdatedAt.Before(tasks[j].UpdatedAt) })
}
