package metrics

import (
	"math"
	"sort"
	"time"

	"missioncontrol/internal/domain"
)

// Backlog summarizes open work nobody owns yet.
type Backlog struct {
	Unassigned int                     `json:"unassigned"`
	ByPriority map[domain.Priority]int `json:"by_priority"`
}

type Recommendation struct {
	AgentID     string `json:"agent_id"`
	AgentName   string `json:"agent_name"`
	Role        string `json:"role"`
	ActiveCount int    `json:"active_count"`
	Lane        Lane   `json:"lane"`
}

type Staffing struct {
	Backlog         Backlog          `json:"backlog"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Recommend picks up to limit agents with spare capacity, least loaded
// first, to absorb the unassigned open backlog.
func Recommend(tasks []domain.Task, activities []Activity, ref time.Time, limit int) Staffing {
	backlog := Backlog{ByPriority: map[domain.Priority]int{}}
	for _, p := range domain.Priorities {
		backlog.ByPriority[p] = 0
	}
	for _, t := range tasks {
		if t.AgentID != nil || !t.Status.Open() {
			continue
		}
		backlog.Unassigned++
		backlog.ByPriority[domain.ParsePriority(string(t.Priority))]++
	}
	cutoff := DefaultThresholds().StaleCutoff(ref)
	var recs []Recommendation
	for _, a := range activities {
		w := ComputeWorkload(a.Tasks, cutoff)
		lane := ClassifyCapacity(w.ActiveCount)
		if lane == LaneOverloaded {
			continue
		}
		recs = append(recs, Recommendation{
			AgentID:     a.Agent.ID,
			AgentName:   a.Agent.Name,
			Role:        a.Agent.Role,
			ActiveCount: w.ActiveCount,
			Lane:        lane,
		})
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].ActiveCount != recs[j].ActiveCount {
			return recs[i].ActiveCount < recs[j].ActiveCount
		}
		return recs[i].AgentName < recs[j].AgentName
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return Staffing{Backlog: backlog, Recommendations: recs}
}

type Performance struct {
	AgentID        string  `json:"agent_id"`
	AgentName      string  `json:"agent_name"`
	Open           int     `json:"open"`
	Completed      int     `json:"completed"`
	CompletionRate float64 `json:"completion_rate"`
}

// Rollup reports per-agent throughput, heaviest open load first.
func Rollup(activities []Activity) []Performance {
	out := make([]Performance, 0, len(activities))
	for _, a := range activities {
		w := ComputeWorkload(a.Tasks, time.Time{})
		p := Performance{
			AgentID:   a.Agent.ID,
			AgentName: a.Agent.Name,
			Open:      w.ActiveCount,
			Completed: w.Breakdown.Done,
		}
		if total := p.Open + p.Completed; total > 0 {
			p.CompletionRate = math.Round(float64(p.Completed)/float64(total)*1000) / 10
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Open != out[j].Open {
			return out[i].Open > out[j].Open
		}
		return out[i].AgentName < out[j].AgentName
	})
	return out
}

// BoardLane is one priority row of the SLA board.
type BoardLane struct {
	Priority       domain.Priority `json:"priority"`
	ThresholdHours float64         `json:"threshold_hours"`
	Open           int             `json:"open"`
	OK             int             `json:"ok"`
	Warning        int             `json:"warning"`
	Breach         int             `json:"breach"`
	Worst          SLAState        `json:"worst"`
}

// SLABoard evaluates every open task and groups the results by priority,
// most urgent lane first.
func (th Thresholds) SLABoard(tasks []domain.Task, ref time.Time) []BoardLane {
	lanes := make([]BoardLane, len(domain.Priorities))
	index := map[domain.Priority]int{}
	for i, p := range domain.Priorities {
		lanes[i] = BoardLane{Priority: p, ThresholdHours: th.SLAThreshold(p), Worst: SLAOK}
		index[p] = i
	}
	for _, t := range tasks {
		if !t.Status.Open() {
			continue
		}
		p := domain.ParsePriority(string(t.Priority))
		lane := &lanes[index[p]]
		lane.Open++
		switch th.EvaluateSLA(p, t.Status, t.CreatedAt, ref).State {
		case SLABreach:
			lane.Breach++
			lane.Worst = SLABreach
		case SLAWarning:
			lane.Warning++
			if lane.Worst == SLAOK {
				lane.Worst = SLAWarning
			}
		default:
			lane.OK++
		}
	}
	return lanes
}
