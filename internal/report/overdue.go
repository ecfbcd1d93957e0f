package report

import (
	"fmt"
	"strings"
	"time"

	"missioncontrol/internal/domain"
	"missioncontrol/internal/metrics"
	"missioncontrol/internal/slack"
)

// TasksURL is the deep link to the DOING queue, or "" without a base URL.
func (r Renderer) TasksURL() string {
	base := strings.TrimRight(strings.TrimSpace(r.BaseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/mission-control/tasks?status=DOING"
}

// OverduePayload builds the Slack alert for stale tasks, which must already
// be sorted oldest-updated first.
func (r Renderer) OverduePayload(stale []domain.Task, ref time.Time) slack.Payload {
	count := fmt.Sprintf("%d %s", len(stale), plural(len(stale), "task"))
	intro := fmt.Sprintf("%s stuck in Doing for %dh+", count, r.Thresholds.StuckHours())

	shown := stale
	if len(shown) > r.maxOverdue() {
		shown = shown[:r.maxOverdue()]
	}
	lines := make([]string, 0, len(shown))
	for _, t := range shown {
		lines = append(lines, fmt.Sprintf("• *%s* — %s (%s)", t.Title, t.Assignee(), metrics.FormatRelative(t.UpdatedAt, ref)))
	}
	overflow := ""
	if extra := len(stale) - len(shown); extra > 0 {
		overflow = fmt.Sprintf("\n…plus %d more.", extra)
	}
	cta := "Open Mission Control → /mission-control/tasks"
	if url := r.TasksURL(); url != "" {
		cta = fmt.Sprintf("<%s|Open Mission Control>", url)
	}
	body := strings.Join(lines, "\n")

	return slack.Payload{
		Text: fmt.Sprintf("%s\n%s%s\n%s", intro, body, overflow, cta),
		Blocks: []slack.Block{
			slack.Header(fmt.Sprintf("Mission Control: %s overdue", count)),
			slack.Section(strings.TrimSpace(fmt.Sprintf("*%s*\n%s%s", intro, body, overflow))),
			slack.Context(fmt.Sprintf("%s • Generated %s (threshold %dh)", cta, MediumDate(ref), r.Thresholds.StuckHours())),
		},
	}
}
