package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"missioncontrol/internal/config"
	"missioncontrol/internal/db"
	"missioncontrol/internal/domain"
	"missioncontrol/internal/engine"
	"missioncontrol/internal/migrate"
	"missioncontrol/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	clock  *time.Time
}

func (env testEnv) advance(d time.Duration) {
	*env.clock = env.clock.Add(d)
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return clock }
	return testEnv{Engine: eng, Ctx: context.Background(), clock: &clock}
}

func strPtr(s string) *string { return &s }

func auditActions(t *testing.T, env testEnv, taskID string) []string {
	t.Helper()
	logs, err := env.Engine.Repo.ListAuditLogs(env.Ctx, repo.AuditFilter{TaskID: taskID, Limit: 200})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	var out []string
	for i := len(logs) - 1; i >= 0; i-- {
		out = append(out, logs[i].Action)
	}
	return out
}

func TestCreateTaskDefaultsAndAudit(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "  Triage alerts ", ActorID: "ops"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Title != "Triage alerts" || task.Status != domain.StatusTodo || task.Priority != domain.PriorityMedium {
		t.Fatalf("unexpected defaults: %+v", task)
	}
	if !task.CreatedAt.Equal(*env.clock) || !task.UpdatedAt.Equal(*env.clock) {
		t.Fatalf("timestamps not from clock: %+v", task)
	}
	stored, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Title != task.Title || !stored.CreatedAt.Equal(task.CreatedAt) {
		t.Fatalf("stored task mismatch: %+v", stored)
	}
	logs, err := env.Engine.Repo.ListAuditLogs(env.Ctx, repo.AuditFilter{TaskID: task.ID})
	if err != nil || len(logs) != 1 {
		t.Fatalf("audit logs: %v %+v", err, logs)
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(logs[0].Metadata), &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if logs[0].Action != "task.created" || meta["actor_id"] != "ops" || meta["status"] != "TODO" || logs[0].TaskTitle != "Triage alerts" {
		t.Fatalf("unexpected audit row: %+v meta=%v", logs[0], meta)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []engine.TaskCreateOptions{
		{Title: "   "},
		{Title: "x", Status: "BLOCKED"},
		{Title: "x", Priority: "URGENT"},
	}
	for _, opts := range cases {
		if _, err := env.Engine.CreateTask(env.Ctx, opts); !errors.Is(err, engine.ErrInvalid) {
			t.Fatalf("CreateTask(%+v) err=%v, want ErrInvalid", opts, err)
		}
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", AgentID: "missing"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown agent err=%v, want ErrNotFound", err)
	}
}

func TestUpdateTaskAdvancesUpdatedAt(t *testing.T) {
	env := newTestEnv(t)
	agent, err := env.Engine.CreateAgent(env.Ctx, engine.AgentCreateOptions{Name: "Atlas", Role: "Analyst", Soul: "Careful"})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Investigate", Priority: "HIGH"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	env.advance(3 * time.Hour)
	task, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: strPtr("DOING"), AgentID: strPtr(agent.ID)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if task.Status != domain.StatusDoing || task.AgentName != "Atlas" || !task.UpdatedAt.Equal(*env.clock) {
		t.Fatalf("unexpected task after update: %+v", task)
	}
	if task.CreatedAt.Equal(task.UpdatedAt) {
		t.Fatalf("updatedAt did not advance")
	}

	env.advance(time.Hour)
	same, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: strPtr("DOING")})
	if err != nil {
		t.Fatalf("noop update: %v", err)
	}
	if !same.UpdatedAt.Equal(task.UpdatedAt) {
		t.Fatalf("noop update touched updatedAt")
	}

	cleared, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, AgentID: strPtr("")})
	if err != nil {
		t.Fatalf("clear assignment: %v", err)
	}
	if cleared.AgentID != nil || cleared.Assignee() != "Unassigned" {
		t.Fatalf("assignment not cleared: %+v", cleared)
	}

	got := auditActions(t, env, task.ID)
	want := []string{"task.created", "task.status_updated", "task.assigned", "task.assigned"}
	if len(got) != len(want) {
		t.Fatalf("audit actions %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("audit actions %v want %v", got, want)
		}
	}
}

func TestUpdateTaskErrors(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: "nope", Status: strPtr("DONE")}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing task err=%v", err)
	}
	task, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x"})
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("empty update err=%v", err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: strPtr("doing")}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("bad status err=%v", err)
	}
}

func TestAgentAndMemory(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateAgent(env.Ctx, engine.AgentCreateOptions{Name: "x", Role: "y"}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("missing soul err=%v", err)
	}
	agent, err := env.Engine.CreateAgent(env.Ctx, engine.AgentCreateOptions{Name: "Scout", Role: "Recon", Soul: "Watchful", ActorID: "ops"})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if _, err := env.Engine.AddMemory(env.Ctx, engine.MemoryCreateOptions{AgentID: agent.ID, Content: " "}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("empty memory err=%v", err)
	}
	if _, err := env.Engine.AddMemory(env.Ctx, engine.MemoryCreateOptions{AgentID: "ghost", Content: "hi"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown agent err=%v", err)
	}
	for _, content := range []string{"first", "second"} {
		env.advance(time.Minute)
		if _, err := env.Engine.AddMemory(env.Ctx, engine.MemoryCreateOptions{AgentID: agent.ID, Content: content}); err != nil {
			t.Fatalf("add memory: %v", err)
		}
	}
	mems, err := env.Engine.Repo.ListMemories(env.Ctx, agent.ID, 10)
	if err != nil || len(mems) != 2 || mems[0].Content != "second" {
		t.Fatalf("memories: %v %+v", err, mems)
	}
	latest, err := env.Engine.Repo.LatestMemories(env.Ctx)
	if err != nil || latest[agent.ID].Content != "second" {
		t.Fatalf("latest memories: %v %+v", err, latest)
	}
	logs, err := env.Engine.Repo.ListAuditLogs(env.Ctx, repo.AuditFilter{Action: "memory.created"})
	if err != nil || len(logs) != 2 {
		t.Fatalf("memory audit rows: %v %d", err, len(logs))
	}
}

func TestStaleTasksQuery(t *testing.T) {
	env := newTestEnv(t)
	old, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "old", Status: "DOING"})
	env.advance(10 * time.Hour)
	boundary, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "boundary", Status: "DOING"})
	env.advance(time.Hour)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "todo", Status: "TODO"}); err != nil {
		t.Fatal(err)
	}
	ref := boundary.UpdatedAt.Add(48 * time.Hour)
	stale, err := env.Engine.Repo.StaleTasks(env.Ctx, ref.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Fatalf("expected only the oldest task, got %+v", stale)
	}
}

func TestStaleTasksSubMillisecondCutoff(t *testing.T) {
	env := newTestEnv(t)
	task, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "drain", Status: "DOING"})
	stale, err := env.Engine.Repo.StaleTasks(env.Ctx, task.UpdatedAt.Add(500*time.Microsecond))
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("expected task updated before a sub-millisecond cutoff, got %+v", stale)
	}
	stale, err = env.Engine.Repo.StaleTasks(env.Ctx, task.UpdatedAt)
	if err != nil || len(stale) != 0 {
		t.Fatalf("expected strict comparison at the exact stamp, got %+v %v", stale, err)
	}
}

func TestPlaybooksAndSeeds(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.EnsureSeeds(env.Ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if res.AgentsCreated != 1 || res.PlaybooksCreated != 3 {
		t.Fatalf("seed result: %+v", res)
	}
	again, err := env.Engine.EnsureSeeds(env.Ctx)
	if err != nil || again != (engine.SeedResult{}) {
		t.Fatalf("second seed should be a no-op: %+v %v", again, err)
	}

	low, err := env.Engine.CreatePlaybook(env.Ctx, engine.PlaybookOptions{
		Title: "Archive cleanup", Scenario: "Disk filling", ImpactLevel: "Low", Owner: "Ops",
		CommunicationTemplate: "Cleaning up", Steps: []string{"Check disk", "", "Prune archives"},
	})
	if err != nil {
		t.Fatalf("create playbook: %v", err)
	}
	if len(low.Steps) != 2 || low.Steps[1].Position != 2 {
		t.Fatalf("steps: %+v", low.Steps)
	}
	if _, err := env.Engine.CreatePlaybook(env.Ctx, engine.PlaybookOptions{
		Title: "Archive cleanup", Scenario: "s", ImpactLevel: "Low", Owner: "o", CommunicationTemplate: "c", Steps: []string{"a"},
	}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("duplicate title err=%v", err)
	}

	list, err := env.Engine.Repo.ListPlaybooks(env.Ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var levels []string
	for _, p := range list {
		levels = append(levels, p.ImpactLevel)
	}
	want := []string{"Critical", "High", "Medium", "Low"}
	for i := range want {
		if levels[i] != want[i] {
			t.Fatalf("impact order %v want %v", levels, want)
		}
	}
	if len(list[0].Steps) != 5 || list[0].Steps[0].Position != 1 {
		t.Fatalf("seeded steps: %+v", list[0].Steps)
	}

	updated, err := env.Engine.UpdatePlaybook(env.Ctx, low.ID, engine.PlaybookOptions{
		Title: "Archive cleanup", Scenario: "Disk full", ImpactLevel: "Critical", Owner: "Ops",
		CommunicationTemplate: "Cleaning", Steps: []string{"Only step"},
	})
	if err != nil || len(updated.Steps) != 1 || updated.ImpactLevel != "Critical" {
		t.Fatalf("update playbook: %v %+v", err, updated)
	}
	if err := env.Engine.DeletePlaybook(env.Ctx, low.ID, "ops"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetPlaybook(env.Ctx, low.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted playbook still readable: %v", err)
	}
	logs, _ := env.Engine.Repo.ListAuditLogs(env.Ctx, repo.AuditFilter{})
	if len(logs) != 3 || logs[0].Action != "playbook.deleted" {
		t.Fatalf("playbook audit rows: %+v", logs)
	}
}
