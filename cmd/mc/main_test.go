package main

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"

	"missioncontrol/internal/app"
)

func TestSlackWebhookURLFallback(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("SLACK_OVERDUE_WEBHOOK_URL", "")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.example.com/generic")
	if got := slackWebhookURL(); got != "https://hooks.example.com/generic" {
		t.Fatalf("expected generic fallback, got %q", got)
	}
	t.Setenv("SLACK_OVERDUE_WEBHOOK_URL", "https://hooks.example.com/overdue")
	if got := slackWebhookURL(); got != "https://hooks.example.com/overdue" {
		t.Fatalf("expected overdue webhook to win, got %q", got)
	}
	viper.Set("slack-webhook-url", "https://hooks.example.com/flag")
	if got := slackWebhookURL(); got != "https://hooks.example.com/flag" {
		t.Fatalf("expected flag to win, got %q", got)
	}
}

func TestReferenceTimeHonoursAt(t *testing.T) {
	t.Cleanup(viper.Reset)
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	env, err := app.Open(context.Background(), app.Options{Workspace: t.TempDir(), Now: func() time.Time { return now }, SkipSeeds: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer env.Close()

	ref, err := referenceTime(env)
	if err != nil || !ref.Equal(now) {
		t.Fatalf("expected engine clock, got %v %v", ref, err)
	}
	viper.Set("at", "2024-06-01T08:30:00Z")
	ref, err = referenceTime(env)
	if err != nil || !ref.Equal(time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected --at, got %v %v", ref, err)
	}
	viper.Set("at", "yesterday")
	if _, err := referenceTime(env); err == nil {
		t.Fatalf("expected invalid --at to fail")
	}
}
