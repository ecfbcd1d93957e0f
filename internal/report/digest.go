package report

import (
	"fmt"
	"strings"
	"time"

	"missioncontrol/internal/domain"
	"missioncontrol/internal/metrics"
)

// WeeklyDigest renders the selected sections in fixed order: load, stuck,
// tasks. The audits selector is accepted but has no digest body.
func (r Renderer) WeeklyDigest(data Data, sections []Section, format Format, ref time.Time) string {
	selected := map[Section]bool{}
	for _, s := range sections {
		selected[s] = true
	}
	var parts []string
	for _, s := range AllSections {
		if !selected[s] {
			continue
		}
		switch s {
		case SectionLoad:
			parts = append(parts, r.loadSection(data, ref))
		case SectionStuck:
			parts = append(parts, r.stuckSection(data, ref))
		case SectionTasks:
			parts = append(parts, r.tasksSection(data))
		}
	}
	if format == FormatSlack {
		var lines []string
		for _, part := range parts {
			for _, line := range strings.Split(strings.TrimSpace(part), "\n") {
				if strings.TrimSpace(line) != "" {
					lines = append(lines, line)
				}
			}
		}
		return strings.Join(lines, "\n")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: Mission Control Weekly Digest — %s\n\n", FullDate(ref))
	fmt.Fprintf(&b, "# Mission Control Weekly Digest\nGenerated %s\n\n", FullDate(ref))
	b.WriteString(strings.Join(parts, "\n"))
	return b.String()
}

func (r Renderer) loadSection(data Data, ref time.Time) string {
	cutoff := r.Thresholds.StaleCutoff(ref)
	var idle, engaged, overloaded int
	busiest := -1
	busiestActive := 0
	for i, a := range data.Agents {
		active := metrics.ComputeWorkload(a.Tasks, cutoff).ActiveCount
		switch metrics.ClassifyCapacity(active) {
		case metrics.LaneIdle:
			idle++
		case metrics.LaneEngaged:
			engaged++
		default:
			overloaded++
		}
		if busiest < 0 || active > busiestActive {
			busiest, busiestActive = i, active
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Agent load\n- Idle: %d\n- Engaged (1-3 active): %d\n- Overloaded (4+ active): %d\n", idle, engaged, overloaded)
	if busiest >= 0 {
		fmt.Fprintf(&b, "\nTop load: **%s** with %d active %s.\n", data.Agents[busiest].Agent.Name, busiestActive, plural(busiestActive, "task"))
	}
	b.WriteString("\n")
	return b.String()
}

func (r Renderer) stuckSection(data Data, ref time.Time) string {
	stale := r.Thresholds.StaleTasks(data.Tasks, ref)
	var b strings.Builder
	fmt.Fprintf(&b, "## Stuck tasks (%dh+)\n", r.Thresholds.StuckHours())
	if len(stale) == 0 {
		fmt.Fprintf(&b, "No tasks have been stuck for more than %d hours.\n\n", r.Thresholds.StuckHours())
		return b.String()
	}
	for _, t := range stale {
		fmt.Fprintf(&b, "- [%s] %s — %s (stuck %s)\n", t.Status, t.Title, t.Assignee(), metrics.FormatRelative(t.UpdatedAt, ref))
	}
	b.WriteString("\n")
	return b.String()
}

func (r Renderer) tasksSection(data Data) string {
	counts := statusCounts(data.Tasks)
	var b strings.Builder
	b.WriteString("## Task status\n")
	for _, s := range domain.Statuses {
		fmt.Fprintf(&b, "- %s: %d\n", s.Label(), counts[s])
	}
	b.WriteString("\n")
	return b.String()
}
