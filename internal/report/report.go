// Package report renders dashboard data as Markdown, flattened Slack text
// and Slack webhook payloads.
package report

import (
	"strings"
	"time"

	"missioncontrol/internal/domain"
	"missioncontrol/internal/metrics"
)

type Section string

const (
	SectionLoad   Section = "load"
	SectionStuck  Section = "stuck"
	SectionTasks  Section = "tasks"
	SectionAudits Section = "audits"
)

// AllSections is also the render order.
var AllSections = []Section{SectionLoad, SectionStuck, SectionTasks, SectionAudits}

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatSlack    Format = "slack"
	FormatHTML     Format = "html"
)

// ParseSections reads a comma separated list. Unknown names are dropped; an
// empty result selects every section.
func ParseSections(raw string) []Section {
	seen := map[Section]bool{}
	for _, part := range strings.Split(raw, ",") {
		s := Section(strings.ToLower(strings.TrimSpace(part)))
		for _, known := range AllSections {
			if s == known {
				seen[s] = true
			}
		}
	}
	if len(seen) == 0 {
		return append([]Section(nil), AllSections...)
	}
	var out []Section
	for _, s := range AllSections {
		if seen[s] {
			out = append(out, s)
		}
	}
	return out
}

// ParseFormat defaults to Markdown.
func ParseFormat(raw string) Format {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatSlack:
		return FormatSlack
	case FormatHTML:
		return FormatHTML
	}
	return FormatMarkdown
}

// Data is everything a report reads. Agents carry their own tasks and at
// least their latest memory; Tasks and Audits are newest first.
type Data struct {
	Agents []metrics.Activity
	Tasks  []domain.Task
	Audits []domain.AuditLog
}

// Renderer holds the knobs shared by every report.
type Renderer struct {
	Thresholds      metrics.Thresholds
	BaseURL         string
	MaxOverdueItems int
	SnapshotLimit   int
}

func NewRenderer(th metrics.Thresholds, baseURL string) Renderer {
	return Renderer{Thresholds: th, BaseURL: baseURL, MaxOverdueItems: 10, SnapshotLimit: 20}
}

func (r Renderer) maxOverdue() int {
	if r.MaxOverdueItems > 0 {
		return r.MaxOverdueItems
	}
	return 10
}

func (r Renderer) snapshotLimit() int {
	if r.SnapshotLimit > 0 {
		return r.SnapshotLimit
	}
	return 20
}

// FullDate renders t like "Wednesday, January 10, 2024 at 12:00 PM".
func FullDate(t time.Time) string {
	return t.UTC().Format("Monday, January 2, 2006 at 3:04 PM")
}

// MediumDate renders t like "Jan 10, 2024, 12:00 PM".
func MediumDate(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006, 3:04 PM")
}

func statusCounts(tasks []domain.Task) map[domain.Status]int {
	counts := map[domain.Status]int{}
	for _, t := range tasks {
		if t.Status.Valid() {
			counts[t.Status]++
		}
	}
	return counts
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
