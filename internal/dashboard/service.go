// Package dashboard assembles read models for the dashboard, the reports and
// the overdue alert. Every call captures one reference time and threads it
// through all derived metrics.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"missioncontrol/internal/config"
	"missioncontrol/internal/domain"
	"missioncontrol/internal/metrics"
	"missioncontrol/internal/repo"
	"missioncontrol/internal/report"
	"missioncontrol/internal/slack"
)

const (
	defaultStuckAlertLimit = 5
	reportAuditLimit       = 20
	dossierMemoryLimit     = 20
	recommendationLimit    = 3

	ReasonNoOverdueTasks = "no_overdue_tasks"
	ReasonMissingWebhook = "missing_webhook"
)

// Notifier delivers Slack payloads. slack.Sender satisfies it.
type Notifier interface {
	Send(ctx context.Context, payload slack.Payload, url string) slack.Result
}

type Service struct {
	Repo            repo.Repo
	Renderer        report.Renderer
	Thresholds      metrics.Thresholds
	Slack           Notifier
	Metrics         *Metrics
	Logger          *slog.Logger
	StuckAlertLimit int
}

func New(r repo.Repo, cfg *config.Config, notifier Notifier, m *Metrics, logger *slog.Logger) Service {
	th := cfg.Metrics()
	renderer := report.NewRenderer(th, cfg.Reports.BaseURL)
	renderer.MaxOverdueItems = cfg.Reports.MaxOverdueInMessage
	renderer.SnapshotLimit = cfg.Reports.SnapshotLimit
	return Service{
		Repo:            r,
		Renderer:        renderer,
		Thresholds:      th,
		Slack:           notifier,
		Metrics:         m,
		Logger:          logger,
		StuckAlertLimit: cfg.Reports.StuckAlertLimit,
	}
}

func (s Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s Service) stuckLimit() int {
	if s.StuckAlertLimit > 0 {
		return s.StuckAlertLimit
	}
	return defaultStuckAlertLimit
}

// load reads agents, all tasks, each agent's newest memory and, when
// auditLimit is positive, the newest audit entries in parallel.
func (s Service) load(ctx context.Context, auditLimit int) (report.Data, error) {
	var (
		agents []domain.Agent
		tasks  []domain.Task
		latest map[string]domain.Memory
		audits []domain.AuditLog
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		agents, err = s.Repo.ListAgents(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = s.Repo.ListTasks(ctx, repo.TaskFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		latest, err = s.Repo.LatestMemories(ctx)
		return err
	})
	if auditLimit > 0 {
		g.Go(func() error {
			var err error
			audits, err = s.Repo.ListAuditLogs(ctx, repo.AuditFilter{Limit: auditLimit})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return report.Data{}, err
	}
	memories := make(map[string][]domain.Memory, len(latest))
	for id, m := range latest {
		memories[id] = []domain.Memory{m}
	}
	return report.Data{
		Agents: Activities(agents, tasks, memories),
		Tasks:  tasks,
		Audits: audits,
	}, nil
}

// Shell builds counts, alerts and optionally the executive snapshot.
func (s Service) Shell(ctx context.Context, ref time.Time, includeSnapshot bool) (Shell, error) {
	data, err := s.load(ctx, 0)
	if err != nil {
		return Shell{}, err
	}
	sh := Assemble(data, s.Thresholds, ref, includeSnapshot, s.stuckLimit())
	s.observe(data, sh, ref)
	return sh, nil
}

func (s Service) observe(data report.Data, sh Shell, ref time.Time) {
	if s.Metrics == nil {
		return
	}
	cutoff := s.Thresholds.StaleCutoff(ref)
	lanes := map[metrics.Lane]int{}
	for _, a := range data.Agents {
		lanes[metrics.ClassifyCapacity(metrics.ComputeWorkload(a.Tasks, cutoff).ActiveCount)]++
	}
	sla := map[metrics.SLAState]int{}
	for _, t := range data.Tasks {
		if t.Status.Open() {
			sla[s.Thresholds.EvaluateSLA(domain.ParsePriority(string(t.Priority)), t.Status, t.CreatedAt, ref).State]++
		}
	}
	s.Metrics.observeShell(sh, lanes, sla)
}

// AgentSummary is one roster row.
type AgentSummary struct {
	Agent         domain.Agent     `json:"agent"`
	Workload      metrics.Workload `json:"workload"`
	Lane          metrics.Lane     `json:"lane"`
	Presence      metrics.Presence `json:"presence"`
	NeedsBriefing bool             `json:"needs_briefing"`
	MemoryStale   bool             `json:"memory_stale"`
	LastMemoryAt  *time.Time       `json:"last_memory_at,omitempty"`
}

func (s Service) summarize(a metrics.Activity, ref time.Time) AgentSummary {
	w := metrics.ComputeWorkload(a.Tasks, s.Thresholds.StaleCutoff(ref))
	sum := AgentSummary{
		Agent:         a.Agent,
		Workload:      w,
		Lane:          metrics.ClassifyCapacity(w.ActiveCount),
		Presence:      s.Thresholds.ComputePresence(a, ref),
		NeedsBriefing: metrics.NeedsBriefing(a),
		MemoryStale:   s.Thresholds.IsMemoryStale(a, ref),
	}
	if m, ok := a.LastMemory(); ok {
		at := m.CreatedAt
		sum.LastMemoryAt = &at
	}
	return sum
}

// Agents lists every agent with its derived workload and presence.
func (s Service) Agents(ctx context.Context, ref time.Time) ([]AgentSummary, error) {
	data, err := s.load(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := make([]AgentSummary, 0, len(data.Agents))
	for _, a := range data.Agents {
		out = append(out, s.summarize(a, ref))
	}
	return out, nil
}

type Dossier struct {
	AgentSummary
	Memories []domain.Memory `json:"memories"`
	Tasks    []TaskView      `json:"tasks"`
}

// AgentDossier returns one agent with its recent memories and every task
// assigned to it.
func (s Service) AgentDossier(ctx context.Context, id string, ref time.Time) (Dossier, error) {
	agent, err := s.Repo.GetAgent(ctx, id)
	if err != nil {
		return Dossier{}, err
	}
	var (
		tasks    []domain.Task
		memories []domain.Memory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tasks, err = s.Repo.ListTasks(gctx, repo.TaskFilter{AgentID: id})
		return err
	})
	g.Go(func() error {
		var err error
		memories, err = s.Repo.ListMemories(gctx, id, dossierMemoryLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dossier{}, err
	}
	act := metrics.Activity{Agent: agent, Tasks: tasks, Memories: memories}
	d := Dossier{
		AgentSummary: s.summarize(act, ref),
		Memories:     memories,
		Tasks:        s.annotate(tasks, ref),
	}
	if d.Memories == nil {
		d.Memories = []domain.Memory{}
	}
	return d, nil
}

// TaskView is a task with its SLA evaluation and stuck flag.
type TaskView struct {
	domain.Task
	SLA   metrics.SLAResult `json:"sla"`
	Stale bool              `json:"stale"`
}

func (s Service) View(t domain.Task, ref time.Time) TaskView {
	return TaskView{
		Task:  t,
		SLA:   s.Thresholds.EvaluateSLA(domain.ParsePriority(string(t.Priority)), t.Status, t.CreatedAt, ref),
		Stale: s.Thresholds.IsStale(t, ref),
	}
}

func (s Service) annotate(tasks []domain.Task, ref time.Time) []TaskView {
	out := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, s.View(t, ref))
	}
	return out
}

// Tasks lists tasks newest first, annotated against ref.
func (s Service) Tasks(ctx context.Context, f repo.TaskFilter, ref time.Time) ([]TaskView, error) {
	tasks, err := s.Repo.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.annotate(tasks, ref), nil
}

// Board evaluates every open task per priority lane.
func (s Service) Board(ctx context.Context, ref time.Time) ([]metrics.BoardLane, error) {
	tasks, err := s.Repo.ListTasks(ctx, repo.TaskFilter{})
	if err != nil {
		return nil, err
	}
	return s.Thresholds.SLABoard(tasks, ref), nil
}

func (s Service) Recommendations(ctx context.Context, ref time.Time) (metrics.Staffing, error) {
	data, err := s.load(ctx, 0)
	if err != nil {
		return metrics.Staffing{}, err
	}
	st := metrics.Recommend(data.Tasks, data.Agents, ref, recommendationLimit)
	if st.Recommendations == nil {
		st.Recommendations = []metrics.Recommendation{}
	}
	return st, nil
}

func (s Service) Rollup(ctx context.Context) ([]metrics.Performance, error) {
	data, err := s.load(ctx, 0)
	if err != nil {
		return nil, err
	}
	return metrics.Rollup(data.Agents), nil
}

// Document is a rendered report ready to be served as an attachment.
type Document struct {
	Body        string
	ContentType string
	Filename    string
}

// Digest renders the weekly digest. HTML output converts the Markdown body.
func (s Service) Digest(ctx context.Context, ref time.Time, sections []report.Section, format report.Format) (Document, error) {
	data, err := s.load(ctx, 0)
	if err != nil {
		return Document{}, err
	}
	base := "mission-control-digest-" + ref.UTC().Format("2006-01-02")
	doc := Document{ContentType: "text/plain; charset=utf-8"}
	switch format {
	case report.FormatSlack:
		doc.Body = s.Renderer.WeeklyDigest(data, sections, report.FormatSlack, ref)
		doc.Filename = base + "-slack.txt"
	case report.FormatHTML:
		html, err := report.RenderHTML(s.Renderer.WeeklyDigest(data, sections, report.FormatMarkdown, ref))
		if err != nil {
			return Document{}, fmt.Errorf("render digest html: %w", err)
		}
		doc.Body = html
		doc.ContentType = "text/html; charset=utf-8"
		doc.Filename = base + ".html"
	default:
		doc.Body = s.Renderer.WeeklyDigest(data, sections, report.FormatMarkdown, ref)
		doc.Filename = base + ".txt"
	}
	s.Metrics.observeReport("digest", string(format))
	return doc, nil
}

// Snapshot renders the full Markdown dump, or its HTML conversion.
func (s Service) Snapshot(ctx context.Context, ref time.Time, format report.Format) (Document, error) {
	limit := s.Renderer.SnapshotLimit
	if limit <= 0 {
		limit = reportAuditLimit
	}
	data, err := s.load(ctx, limit)
	if err != nil {
		return Document{}, err
	}
	body := s.Renderer.Snapshot(data, ref)
	base := "mission-control-snapshot-" + ref.UTC().Format("2006-01-02T15-04-05Z")
	doc := Document{Body: body, ContentType: "text/markdown; charset=utf-8", Filename: base + ".md"}
	if format == report.FormatHTML {
		html, err := report.RenderHTML(body)
		if err != nil {
			return Document{}, fmt.Errorf("render snapshot html: %w", err)
		}
		doc = Document{Body: html, ContentType: "text/html; charset=utf-8", Filename: base + ".html"}
	} else {
		format = report.FormatMarkdown
	}
	s.Metrics.observeReport("snapshot", string(format))
	return doc, nil
}

// OverdueResult reports what the overdue alert did. Only a failed delivery
// has OK=false.
type OverdueResult struct {
	OK      bool           `json:"ok"`
	Sent    bool           `json:"sent"`
	Reason  string         `json:"reason,omitempty"`
	Count   int            `json:"count,omitempty"`
	Preview *slack.Payload `json:"preview,omitempty"`
	Status  int            `json:"status,omitempty"`
	Body    string         `json:"body,omitempty"`
}

// NotifyOverdue posts the stuck task alert to Slack. webhookURL overrides the
// configured webhook when set. Nothing is sent when no task is stuck.
func (s Service) NotifyOverdue(ctx context.Context, ref time.Time, webhookURL string) (OverdueResult, error) {
	candidates, err := s.Repo.StaleTasks(ctx, s.Thresholds.StaleCutoff(ref))
	if err != nil {
		return OverdueResult{}, err
	}
	// same predicate as the shell's stuck count
	stale := s.Thresholds.StaleTasks(candidates, ref)
	if len(stale) == 0 {
		s.Metrics.observeDelivery(ReasonNoOverdueTasks)
		return OverdueResult{OK: true, Sent: false, Reason: ReasonNoOverdueTasks}, nil
	}
	payload := s.Renderer.OverduePayload(stale, ref)
	var res slack.Result
	if s.Slack == nil {
		res = slack.Result{OK: false, Reason: slack.ReasonMissingWebhookURL}
	} else {
		res = s.Slack.Send(ctx, payload, webhookURL)
	}
	switch {
	case res.OK:
		s.Metrics.observeDelivery("sent")
		s.logger().Info("overdue alert sent", "count", len(stale))
		return OverdueResult{OK: true, Sent: true, Count: len(stale)}, nil
	case res.Reason == slack.ReasonMissingWebhookURL:
		s.Metrics.observeDelivery(ReasonMissingWebhook)
		return OverdueResult{OK: true, Sent: false, Reason: ReasonMissingWebhook, Count: len(stale), Preview: &payload}, nil
	default:
		s.Metrics.observeDelivery(slack.ReasonSlackError)
		reason := res.Reason
		if reason == "" {
			reason = slack.ReasonSlackError
		}
		return OverdueResult{OK: false, Sent: false, Reason: reason, Count: len(stale), Status: res.Status, Body: res.Body}, nil
	}
}
