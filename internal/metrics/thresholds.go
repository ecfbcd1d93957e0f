// Package metrics derives staleness, SLA, workload and presence signals from
// tasks, agents and memories. Every function takes the reference time
// explicitly and has no side effects.
package metrics

import (
	"time"

	"missioncontrol/internal/domain"
)

const (
	TaskStuckThresholdHours       = 48
	AgentIdleThresholdHours       = 24
	PresenceIdleThresholdHours    = 48
	MemoryStaleThresholdHours     = 72
	HighPriorityUntouchedHours    = 12
	SLAWarningRatio               = 0.75
	defaultSLAHoursForUnknownPrio = 48
)

// SLAHours is the resolution target per priority.
var SLAHours = map[domain.Priority]float64{
	domain.PriorityHigh:   12,
	domain.PriorityMedium: 48,
	domain.PriorityLow:    120,
}

// Thresholds groups the tunable time limits. The zero value is not useful;
// start from DefaultThresholds.
type Thresholds struct {
	TaskStuck             time.Duration
	AgentIdle             time.Duration
	PresenceIdle          time.Duration
	MemoryStale           time.Duration
	HighPriorityUntouched time.Duration
	SLAHours              map[domain.Priority]float64
	SLAWarningRatio       float64
}

func DefaultThresholds() Thresholds {
	sla := make(map[domain.Priority]float64, len(SLAHours))
	for k, v := range SLAHours {
		sla[k] = v
	}
	return Thresholds{
		TaskStuck:             TaskStuckThresholdHours * time.Hour,
		AgentIdle:             AgentIdleThresholdHours * time.Hour,
		PresenceIdle:          PresenceIdleThresholdHours * time.Hour,
		MemoryStale:           MemoryStaleThresholdHours * time.Hour,
		HighPriorityUntouched: HighPriorityUntouchedHours * time.Hour,
		SLAHours:              sla,
		SLAWarningRatio:       SLAWarningRatio,
	}
}

// StaleCutoff is the instant before which a DOING task counts as stuck.
func (th Thresholds) StaleCutoff(ref time.Time) time.Time {
	return ref.Add(-th.TaskStuck)
}

// StuckHours is the stuck threshold in whole hours, used in report copy.
func (th Thresholds) StuckHours() int {
	return int(th.TaskStuck / time.Hour)
}

// SLAThreshold returns the target hours for p, falling back to MEDIUM.
func (th Thresholds) SLAThreshold(p domain.Priority) float64 {
	if h, ok := th.SLAHours[p]; ok {
		return h
	}
	if h, ok := th.SLAHours[domain.PriorityMedium]; ok {
		return h
	}
	return defaultSLAHoursForUnknownPrio
}

func hoursBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours()
}
