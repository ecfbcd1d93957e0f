package missioncontrolsdk_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"missioncontrol/internal/app"
	"missioncontrol/internal/server"
	missioncontrolsdk "missioncontrol/sdk/go"
)

func newClient(t *testing.T) (*missioncontrolsdk.Client, *time.Time) {
	t.Helper()
	clock := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env, err := app.Open(context.Background(), app.Options{
		Workspace: t.TempDir(),
		Logger:    logger,
		Now:       func() time.Time { return clock },
		SkipSeeds: true,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { env.Close() })
	handler, err := server.New(server.Config{Engine: env.Engine, Dashboard: env.Dashboard, BasePath: "/v0", Logger: logger})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c := missioncontrolsdk.New(ts.URL)
	c.ActorID = "sdk-test"
	return c, &clock
}

func strPtr(s string) *string { return &s }

func TestClientRoundTrip(t *testing.T) {
	c, clock := newClient(t)
	ctx := context.Background()

	agent, err := c.CreateAgent(ctx, "Atlas", "Ops", "steady")
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if _, err := c.AddMemory(ctx, agent.ID, "briefed on rotation"); err != nil {
		t.Fatalf("add memory: %v", err)
	}
	task, err := c.CreateTask(ctx, missioncontrolsdk.TaskInput{
		Title:    "Rotate certificates",
		Status:   strPtr("DOING"),
		Priority: strPtr("HIGH"),
		AgentID:  &agent.ID,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.AgentName != "Atlas" {
		t.Fatalf("expected assignment, got %+v", task)
	}

	agents, err := c.ListAgents(ctx)
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	if len(agents) != 1 || agents[0].NeedsBriefing || agents[0].Workload.ActiveCount != 1 {
		t.Fatalf("unexpected agents: %+v", agents)
	}

	dash, err := c.Dashboard(ctx, clock.Add(49*time.Hour))
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.Counts.Doing != 1 || dash.Counts.Stuck != 1 || len(dash.Alerts.StuckTasks) != 1 {
		t.Fatalf("expected one stuck task: %+v", dash)
	}

	cleared, err := c.UpdateTask(ctx, task.ID, missioncontrolsdk.TaskUpdate{ClearAgent: true})
	if err != nil {
		t.Fatalf("clear agent: %v", err)
	}
	if cleared.AgentID != nil {
		t.Fatalf("expected agent cleared: %+v", cleared)
	}
}

func TestClientDigestAndOverdue(t *testing.T) {
	c, clock := newClient(t)
	ctx := context.Background()

	doc, err := c.Digest(ctx, []string{"load", "tasks"}, "")
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if doc.Filename != "mission-control-digest-2024-06-03.txt" {
		t.Fatalf("unexpected filename %q", doc.Filename)
	}
	if !strings.HasPrefix(doc.ContentType, "text/plain") || !strings.Contains(string(doc.Body), "Weekly") {
		t.Fatalf("unexpected digest: %s %q", doc.ContentType, doc.Body)
	}

	res, err := c.NotifyOverdue(ctx)
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if !res.OK || res.Sent || res.Reason != "no_overdue_tasks" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if _, err := c.CreateTask(ctx, missioncontrolsdk.TaskInput{Title: "Drain queue", Status: strPtr("DOING")}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	*clock = clock.Add(49 * time.Hour)
	res, err = c.NotifyOverdue(ctx)
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if res.Reason != "missing_webhook" || res.Count != 1 || res.Preview == nil {
		t.Fatalf("expected preview without webhook: %+v", res)
	}
}

func TestClientAPIError(t *testing.T) {
	c, _ := newClient(t)
	_, err := c.CreateTask(context.Background(), missioncontrolsdk.TaskInput{Title: "  "})
	var apiErr *missioncontrolsdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Fatalf("expected 400 api error, got %v", err)
	}
}
