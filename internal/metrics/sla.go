package metrics

import (
	"time"

	"missioncontrol/internal/domain"
)

type SLAState string

const (
	SLAOK      SLAState = "OK"
	SLAWarning SLAState = "WARNING"
	SLABreach  SLAState = "BREACH"
)

type SLAResult struct {
	State          SLAState `json:"state" enum:"OK,WARNING,BREACH"`
	HoursOverdue   float64  `json:"hours_overdue"`
	HoursRemaining float64  `json:"hours_remaining"`
	ThresholdHours float64  `json:"threshold_hours"`
}

// IsStale reports whether a DOING task has gone untouched for more than the
// default stuck threshold.
func IsStale(t domain.Task, ref time.Time) bool {
	return DefaultThresholds().IsStale(t, ref)
}

func (th Thresholds) IsStale(t domain.Task, ref time.Time) bool {
	return t.Status == domain.StatusDoing && t.UpdatedAt.Before(th.StaleCutoff(ref))
}

// EvaluateSLA measures age since creation against the default targets.
func EvaluateSLA(p domain.Priority, s domain.Status, createdAt, ref time.Time) SLAResult {
	return DefaultThresholds().EvaluateSLA(p, s, createdAt, ref)
}

func (th Thresholds) EvaluateSLA(p domain.Priority, s domain.Status, createdAt, ref time.Time) SLAResult {
	threshold := th.SLAThreshold(p)
	res := SLAResult{State: SLAOK, ThresholdHours: threshold}
	if s == domain.StatusDone {
		return res
	}
	elapsed := hoursBetween(createdAt, ref)
	if elapsed < 0 {
		res.HoursRemaining = threshold
		return res
	}
	switch {
	case elapsed >= threshold:
		res.State = SLABreach
		res.HoursOverdue = elapsed - threshold
	case elapsed >= th.SLAWarningRatio*threshold:
		res.State = SLAWarning
		res.HoursRemaining = threshold - elapsed
	default:
		res.HoursRemaining = threshold - elapsed
	}
	return res
}

// StaleTasks returns the stuck tasks oldest-updated first.
func (th Thresholds) StaleTasks(tasks []domain.Task, ref time.Time) []domain.Task {
	var out []domain.Task
	for _, t := range tasks {
		if th.IsStale(t, ref) {
			out = append(out, t)
		}
	}
	sortByUpdated(out)
	return out
}
