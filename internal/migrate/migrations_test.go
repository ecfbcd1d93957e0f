package migrate

import (
	"context"
	"testing"

	"missioncontrol/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()
	if v, err := CurrentVersion(ctx, conn); err != nil || v != 0 {
		t.Fatalf("fresh version = %d, %v", v, err)
	}
	for i := 0; i < 2; i++ {
		if err := Migrate(conn); err != nil {
			t.Fatalf("migrate pass %d: %v", i, err)
		}
	}
	latest, err := Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	v, err := CurrentVersion(ctx, conn)
	if err != nil || v != latest || v == 0 {
		t.Fatalf("version = %d (latest %d), %v", v, latest, err)
	}
	for _, table := range []string{"agents", "tasks", "memories", "audit_logs", "escalation_playbooks", "escalation_steps"} {
		var name string
		if err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}
