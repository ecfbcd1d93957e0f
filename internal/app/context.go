package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"missioncontrol/internal/config"
	"missioncontrol/internal/dashboard"
	"missioncontrol/internal/db"
	"missioncontrol/internal/engine"
	"missioncontrol/internal/migrate"
	"missioncontrol/internal/slack"
)

// Options controls how a workspace is opened. Empty override fields keep the
// values from missioncontrol.yml.
type Options struct {
	Workspace       string
	ConfigPath      string
	BaseURL         string
	SlackWebhookURL string
	Logger          *slog.Logger
	Now             func() time.Time
	// Registerer receives the dashboard collectors; nil uses a private registry.
	Registerer prometheus.Registerer
	SkipSeeds  bool
}

// Env bundles everything a command or the server needs.
type Env struct {
	DB        *sql.DB
	Engine    engine.Engine
	Config    *config.Config
	Dashboard dashboard.Service
	Seeds     engine.SeedResult
}

func (e *Env) Close() error {
	if e == nil || e.DB == nil {
		return nil
	}
	return e.DB.Close()
}

// ResolveConfig loads the workspace (or explicit) config and applies
// overrides from flags and environment.
func ResolveConfig(opts Options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.FromFile(opts.ConfigPath)
	} else {
		cfg, err = config.Load(opts.Workspace)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if v := strings.TrimSpace(opts.BaseURL); v != "" {
		cfg.Reports.BaseURL = v
	}
	if v := strings.TrimSpace(opts.SlackWebhookURL); v != "" {
		cfg.Slack.WebhookURL = v
	}
	return cfg, nil
}

// Open prepares the database, applies migrations, builds the engine and the
// dashboard service, and seeds the core roster unless told not to.
func Open(ctx context.Context, opts Options) (*Env, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := ResolveConfig(opts)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	if opts.Now != nil {
		e.Now = opts.Now
	}
	env := &Env{DB: conn, Engine: e, Config: cfg}
	if !opts.SkipSeeds {
		seeds, err := e.EnsureSeeds(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
		env.Seeds = seeds
		if seeds.AgentsCreated+seeds.PlaybooksCreated > 0 {
			logger.Info("seeded workspace", "agents", seeds.AgentsCreated, "playbooks", seeds.PlaybooksCreated)
		}
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	sender := slack.Sender{
		WebhookURL: cfg.Slack.WebhookURL,
		Client:     &http.Client{Timeout: cfg.SlackTimeout()},
		Logger:     logger,
	}
	env.Dashboard = dashboard.New(e.Repo, cfg, sender, dashboard.MustNewMetrics(reg), logger)
	return env, nil
}
