package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"missioncontrol/internal/config"
	"missioncontrol/internal/dashboard"
	"missioncontrol/internal/db"
	"missioncontrol/internal/domain"
	"missioncontrol/internal/engine"
	"missioncontrol/internal/migrate"
	"missioncontrol/internal/slack"
)

var testStart = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type testServer struct {
	URL    string
	client *http.Client
	clock  *time.Time
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func (s *testServer) advance(d time.Duration) {
	*s.clock = s.clock.Add(d)
}

func (s *testServer) now() time.Time {
	return *s.clock
}

// at renders a reference time d after the server clock for ?at= parameters.
func (s *testServer) at(d time.Duration) string {
	return domain.FormatTimestamp(s.now().Add(d))
}

type serverOptions struct {
	jwtSecret string
	webhook   string
}

func newTestServer(t *testing.T, opts serverOptions) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	cfg.Reports.BaseURL = "https://mc.example.com"
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := testStart
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return clock }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	sender := slack.Sender{WebhookURL: opts.webhook, Logger: logger}
	svc := dashboard.New(e.Repo, cfg, sender, dashboard.MustNewMetrics(reg), logger)
	handler, err := New(Config{
		Engine:    e,
		Dashboard: svc,
		BasePath:  "/v0",
		Auth:      AuthConfig{JWTSecret: opts.jwtSecret},
		Logger:    logger,
		Gatherer:  reg,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		clock:  &clock,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
	return out
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope %s: %v", string(data), err)
	}
	return env.Error.Code
}

func createAgent(t *testing.T, srv *testServer, name string) domain.Agent {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/agents", map[string]any{
		"name": name,
		"role": "Analyst",
		"soul": "Curious and careful",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create agent: %d %s", res.StatusCode, string(data))
	}
	return decode[domain.Agent](t, data)
}

func createTask(t *testing.T, srv *testServer, body map[string]any) dashboard.TaskView {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", body, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	return decode[dashboard.TaskView](t, data)
}

func TestHealthAndDocs(t *testing.T) {
	srv, cleanup := newTestServer(t, serverOptions{jwtSecret: "s3cret"})
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "ok") {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "/v0/dashboard") {
		t.Fatalf("openapi: %d", res.StatusCode)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/docs", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "swagger-ui") {
		t.Fatalf("docs: %d", res.StatusCode)
	}
}

func TestAgentLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t, serverOptions{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/agents", map[string]any{"name": "NoRole"}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing role: %d %s", res.StatusCode, string(data))
	}

	agent := createAgent(t, srv, "Scout")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/agents?at="+srv.at(48*time.Hour), nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list agents: %d %s", res.StatusCode, string(data))
	}
	list := decode[struct {
		Items []dashboard.AgentSummary `json:"items"`
	}](t, data)
	if len(list.Items) != 1 || !list.Items[0].NeedsBriefing || !list.Items[0].Presence.IsIdle || list.Items[0].Lane != "IDLE" {
		t.Fatalf("agent summary: %+v", list.Items)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/agents/"+agent.ID+"/memories", map[string]any{"content": "Briefed on the incident"}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add memory: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/agents/missing/memories", map[string]any{"content": "x"}, nil)
	if res.StatusCode != http.StatusNotFound || errorCode(t, data) != "not_found" {
		t.Fatalf("memory for missing agent: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/agents/"+agent.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dossier: %d %s", res.StatusCode, string(data))
	}
	dossier := decode[dashboard.Dossier](t, data)
	if dossier.NeedsBriefing || len(dossier.Memories) != 1 || dossier.Agent.Name != "Scout" {
		t.Fatalf("dossier: %+v", dossier)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/agents/"+agent.ID+"/memories", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "Briefed on the incident") {
		t.Fatalf("list memories: %d %s", res.StatusCode, string(data))
	}
}

func TestTaskCreateAndPatch(t *testing.T) {
	srv, cleanup := newTestServer(t, serverOptions{})
	defer cleanup()
	client := srv.Client()
	agent := createAgent(t, srv, "Owner")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "  "}, nil)
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "bad_request" {
		t.Fatalf("blank title: %d %s", res.StatusCode, string(data))
	}

	task := createTask(t, srv, map[string]any{"title": "Rotate keys", "agent_id": agent.ID})
	if task.Status != domain.StatusTodo || task.Priority != domain.PriorityMedium || task.AgentName != "Owner" {
		t.Fatalf("defaults: %+v", task)
	}

	srv.advance(time.Hour)
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+task.ID, map[string]any{"status": "DOING"}, map[string]string{"X-Actor-Id": "alice"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status: %d %s", res.StatusCode, string(data))
	}
	updated := decode[dashboard.TaskView](t, data)
	if updated.Status != domain.StatusDoing || !updated.UpdatedAt.Equal(srv.now()) {
		t.Fatalf("patched: %+v", updated)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+task.ID, map[string]any{"agent_id": nil}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("clear agent: %d %s", res.StatusCode, string(data))
	}
	if cleared := decode[dashboard.TaskView](t, data); cleared.AgentID != nil || cleared.Assignee() != "Unassigned" {
		t.Fatalf("assignment not cleared: %+v", cleared)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+task.ID, map[string]any{"status": "BLOCKED"}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad status: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/nope", map[string]any{"status": "DONE"}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/audit?task_id="+task.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("audit: %d %s", res.StatusCode, string(data))
	}
	audits := decode[struct {
		Items []domain.AuditLog `json:"items"`
	}](t, data)
	if len(audits.Items) != 3 || audits.Items[0].Action != "task.assigned" || audits.Items[1].Action != "task.status_updated" {
		t.Fatalf("audit trail: %+v", audits.Items)
	}
	if !strings.Contains(audits.Items[1].Metadata, "alice") {
		t.Fatalf("actor missing from metadata: %s", audits.Items[1].Metadata)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks?status=DOING&at="+srv.at(40*time.Hour), nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks: %d %s", res.StatusCode, string(data))
	}
	tasks := decode[struct {
		Items []dashboard.TaskView `json:"items"`
	}](t, data)
	if len(tasks.Items) != 1 || tasks.Items[0].SLA.State != "WARNING" || tasks.Items[0].Stale {
		t.Fatalf("task list: %+v", tasks.Items)
	}
}

func TestDashboardReferenceTime(t *testing.T) {
	srv, cleanup := newTestServer(t, serverOptions{})
	defer cleanup()
	client := srv.Client()
	agent := createAgent(t, srv, "Owner")
	for _, title := range []string{"one", "two", "three"} {
		createTask(t, srv, map[string]any{"title": title, "status": "DOING", "agent_id": agent.ID})
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/dashboard?at="+srv.at(60*time.Hour), nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: %d %s", res.StatusCode, string(data))
	}
	sh := decode[dashboard.Shell](t, data)
	if sh.Counts.Stuck != 3 || sh.Counts.Doing != 3 || sh.Snapshot == nil || sh.Snapshot.TasksBreached != 3 {
		t.Fatalf("shell: %+v", sh)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "mission_control_tasks_stuck 3") {
		t.Fatalf("metrics: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/dashboard?snapshot=false", nil, nil)
	if res.StatusCode != http.StatusOK || strings.Contains(string(data), `"snapshot"`) {
		t.Fatalf("snapshot should be omitted: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/dashboard?at=yesterday", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad reference time: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/board/sla?at="+srv.at(60*time.Hour), nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("board: %d %s", res.StatusCode, string(data))
	}
	board := decode[BoardResponse](t, data)
	if len(board.Lanes) != 3 || board.Lanes[1].Breach != 3 {
		t.Fatalf("board lanes: %+v", board.Lanes)
	}

}

func TestDigestAttachment(t *testing.T) {
	srv, cleanup := newTestServer(t, serverOptions{})
	defer cleanup()
	client := srv.Client()
	createAgent(t, srv, "Scout")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/digest?sections=stuck", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("digest: %d %s", res.StatusCode, string(data))
	}
	if got := res.Header.Get("Content-Disposition"); got != `attachment; filename="mission-control-digest-2024-03-04.txt"` {
		t.Fatalf("content disposition: %s", got)
	}
	body := string(data)
	if !strings.Contains(body, "No tasks have been stuck for more than 48 hours.") || strings.Contains(body, "## Agent load") {
		t.Fatalf("digest body: %s", body)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/digest?format=slack", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.HasSuffix(res.Header.Get("Content-Disposition"), `-slack.txt"`) {
		t.Fatalf("slack digest: %d %s", res.StatusCode, res.Header.Get("Content-Disposition"))
	}
	if strings.Contains(string(data), "\n\n") {
		t.Fatalf("slack digest should not contain blank lines: %q", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/snapshot?format=html", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.HasPrefix(res.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("html snapshot: %d %s", res.StatusCode, res.Header.Get("Content-Type"))
	}
	if !strings.Contains(string(data), "<h1>Mission Control Snapshot</h1>") {
		t.Fatalf("html snapshot body: %s", string(data))
	}
}

func TestOverdueSlack(t *testing.T) {
	var hits atomic.Int32
	slackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "maintenance")
	}))
	defer slackSrv.Close()

	srv, cleanup := newTestServer(t, serverOptions{webhook: slackSrv.URL})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reports/overdue/slack", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("no overdue: %d %s", res.StatusCode, string(data))
	}
	if got := decode[dashboard.OverdueResult](t, data); got != (dashboard.OverdueResult{OK: true, Reason: "no_overdue_tasks"}) || hits.Load() != 0 {
		t.Fatalf("no overdue result: %+v hits=%d", got, hits.Load())
	}

	createTask(t, srv, map[string]any{"title": "Stalled", "status": "DOING"})
	srv.advance(49 * time.Hour)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/overdue/slack", nil, nil)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("failed delivery: %d %s", res.StatusCode, string(data))
	}
	got := decode[dashboard.OverdueResult](t, data)
	if got.OK || got.Reason != "slack_error" || got.Status != http.StatusServiceUnavailable || got.Body != "maintenance" || hits.Load() != 1 {
		t.Fatalf("failure result: %+v hits=%d", got, hits.Load())
	}
}

func TestOverdueSlackPreviewWithoutWebhook(t *testing.T) {
	srv, cleanup := newTestServer(t, serverOptions{})
	defer cleanup()
	createTask(t, srv, map[string]any{"title": "Stalled", "status": "DOING"})
	srv.advance(72 * time.Hour)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/reports/overdue/slack", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("preview: %d %s", res.StatusCode, string(data))
	}
	got := decode[dashboard.OverdueResult](t, data)
	if !got.OK || got.Sent || got.Reason != "missing_webhook" || got.Preview == nil {
		t.Fatalf("preview result: %+v", got)
	}
	if !strings.Contains(got.Preview.Text, "<https://mc.example.com/mission-control/tasks?status=DOING|Open Mission Control>") {
		t.Fatalf("preview text: %s", got.Preview.Text)
	}
}

func TestPlaybookCRUD(t *testing.T) {
	srv, cleanup := newTestServer(t, serverOptions{})
	defer cleanup()
	client := srv.Client()
	body := map[string]any{
		"title":                  "Database failover",
		"scenario":               "Primary database unavailable",
		"impact_level":           "Critical",
		"owner":                  "Platform",
		"communication_template": "We are failing over.",
		"steps":                  []string{"Page on-call", "Promote replica"},
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/playbooks", body, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create playbook: %d %s", res.StatusCode, string(data))
	}
	pb := decode[domain.Playbook](t, data)
	if len(pb.Steps) != 2 || pb.Steps[1].Position != 2 {
		t.Fatalf("steps: %+v", pb.Steps)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/playbooks", body, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate title: %d %s", res.StatusCode, string(data))
	}

	body["steps"] = []string{"Page on-call"}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/playbooks/"+pb.ID, body, nil)
	if res.StatusCode != http.StatusOK || len(decode[domain.Playbook](t, data).Steps) != 1 {
		t.Fatalf("replace playbook: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/playbooks/"+pb.ID, nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete playbook: %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/playbooks/"+pb.ID, nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted playbook still readable: %d", res.StatusCode)
	}
}

func TestJWTAuth(t *testing.T) {
	srv, cleanup := newTestServer(t, serverOptions{jwtSecret: "s3cret"})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/agents", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "unauthorized" {
		t.Fatalf("missing token: %d %s", res.StatusCode, string(data))
	}
	bad, err := IssueToken("other", "mallory", time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/agents", nil, map[string]string{"Authorization": "Bearer " + bad})
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "invalid_credentials" {
		t.Fatalf("wrong secret: %d %s", res.StatusCode, string(data))
	}

	token, err := IssueToken("s3cret", "bob", time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	headers := map[string]string{"Authorization": "Bearer " + token, "X-Actor-Id": "ignored"}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "Signed"}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("authorized create: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/audit?action=task.created", nil, headers)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `\"actor_id\":\"bob\"`) {
		t.Fatalf("audit actor: %d %s", res.StatusCode, string(data))
	}
}
