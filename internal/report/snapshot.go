package report

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"missioncontrol/internal/domain"
	"missioncontrol/internal/metrics"
)

const memoryExcerptRunes = 140

// Snapshot renders the full Markdown dump of agents, tasks and audit history.
func (r Renderer) Snapshot(data Data, ref time.Time) string {
	counts := statusCounts(data.Tasks)
	limit := r.snapshotLimit()
	cutoff := r.Thresholds.StaleCutoff(ref)

	var b strings.Builder
	b.WriteString("# Mission Control Snapshot\n\n")
	fmt.Fprintf(&b, "Generated: %s\nAgents: %d\nTasks (open): %d\nCompleted: %d\n\n",
		FullDate(ref), len(data.Agents), counts[domain.StatusTodo]+counts[domain.StatusDoing], counts[domain.StatusDone])

	agents := append([]metrics.Activity(nil), data.Agents...)
	sort.SliceStable(agents, func(i, j int) bool { return agents[i].Agent.Name < agents[j].Agent.Name })
	b.WriteString("## Agents\n")
	for _, a := range agents {
		w := metrics.ComputeWorkload(a.Tasks, cutoff)
		fmt.Fprintf(&b, "- **%s** (%s) — %d active / %d total", a.Agent.Name, a.Agent.Role, w.ActiveCount, len(a.Tasks))
		if m, ok := a.LastMemory(); ok {
			fmt.Fprintf(&b, " | Last memory: %s", excerpt(m.Content))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n## Tasks\n")
	for _, s := range domain.Statuses {
		fmt.Fprintf(&b, "- %s: %d\n", s.Label(), counts[s])
	}
	b.WriteString("\n")
	for i, t := range data.Tasks {
		if i == limit {
			break
		}
		fmt.Fprintf(&b, "- [%s] %s", t.Status, t.Title)
		if t.AgentID != nil && t.AgentName != "" {
			fmt.Fprintf(&b, " — %s", t.AgentName)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n## Recent audit log\n")
	for i, entry := range data.Audits {
		if i == limit {
			break
		}
		fmt.Fprintf(&b, "- %s — %s", FullDate(entry.CreatedAt), entry.Action)
		if entry.TaskTitle != "" {
			fmt.Fprintf(&b, " (%s)", entry.TaskTitle)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func excerpt(content string) string {
	line := strings.TrimSpace(content)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i]) + " …"
	}
	if utf8.RuneCountInString(line) <= memoryExcerptRunes {
		return line
	}
	runes := []rune(line)
	return strings.TrimSpace(string(runes[:memoryExcerptRunes])) + "…"
}
