package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"missioncontrol/internal/app"
	"missioncontrol/internal/config"
	"missioncontrol/internal/db"
	"missioncontrol/internal/domain"
	"missioncontrol/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "mc",
	Short: "Mission Control CLI",
	Long: `Mission Control watches a roster of agents and the tasks assigned to them.
- Agents: named workers with a role and a soul; memories are their dated notes.
- Tasks: TODO -> DOING -> DONE with LOW/MEDIUM/HIGH priority and an optional agent.
- Stuck: a DOING task untouched for more than 48h.
- SLA: each priority has a window (HIGH 12h, MEDIUM 48h, LOW 120h); 75% of it is a warning.
- Reports: the dashboard shell, weekly digest, Markdown snapshot and the overdue Slack alert.
- Audit log: every mutation, view with 'mc audit tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		slog.SetDefault(newLogger())
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("MISSION_CONTROL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", server.DefaultActor, "actor identifier recorded in the audit log")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "log as JSON")
	flags.String("base-url", "", "public base URL used in report deep links")
	flags.String("slack-webhook-url", "", "Slack incoming webhook for overdue alerts")
	flags.String("at", "", "reference time for reports (RFC3339, defaults to now)")
	for _, name := range []string{"workspace", "json", "actor-id", "log-level", "log-json", "base-url", "slack-webhook-url", "at"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(memoryCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(playbookCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(digestCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(overdueCmd())
	rootCmd.AddCommand(tokenCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the /v0 API, OpenAPI at /v0/openapi.json, Swagger UI at /docs and Prometheus metrics at /metrics. Set MISSION_CONTROL_JWT_SECRET to require bearer tokens.",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			logger := slog.Default()
			env, err := openEnv(cmd.Context(), reg)
			if err != nil {
				return err
			}
			defer env.Close()
			authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret"), Logger: logger}
			if authCfg.JWTSecret == "" {
				logger.Warn("MISSION_CONTROL_JWT_SECRET is not set; the API accepts unauthenticated requests")
			}
			handler, err := server.New(server.Config{
				Engine:    env.Engine,
				Dashboard: env.Dashboard,
				BasePath:  basePath,
				Auth:      authCfg,
				Logger:    logger,
				Gatherer:  reg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()
			logger.Info("serving Mission Control API", "addr", addr, "base_path", basePath)
			fmt.Printf("Serving Mission Control API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in missioncontrol.yml at the workspace root: thresholds, report settings, Slack delivery and seed data. Missing keys fall back to the built-in defaults.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default missioncontrol.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show resolved config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(envOptions(nil))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the API",
		Long:  "Signs an HS256 token with MISSION_CONTROL_JWT_SECRET; the subject is --actor-id.",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("MISSION_CONTROL_JWT_SECRET is required to sign tokens")
			}
			token, err := server.IssueToken(secret, viper.GetString("actor-id"), time.Now(), ttl)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "actor_id": viper.GetString("actor-id")})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

// --- helpers ---

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if viper.GetBool("log-json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// slackWebhookURL prefers the flag/MISSION_CONTROL_ env, then the legacy
// variable names.
func slackWebhookURL() string {
	for _, v := range []string{
		viper.GetString("slack-webhook-url"),
		os.Getenv("SLACK_OVERDUE_WEBHOOK_URL"),
		os.Getenv("SLACK_WEBHOOK_URL"),
	} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func envOptions(reg prometheus.Registerer) app.Options {
	return app.Options{
		Workspace:       viper.GetString("workspace"),
		ConfigPath:      viper.GetString("config"),
		BaseURL:         viper.GetString("base-url"),
		SlackWebhookURL: slackWebhookURL(),
		Logger:          slog.Default(),
		Registerer:      reg,
	}
}

func openEnv(ctx context.Context, reg prometheus.Registerer) (*app.Env, error) {
	return app.Open(ctx, envOptions(reg))
}

func withEnv(ctx context.Context, fn func(context.Context, *app.Env) error) error {
	env, err := openEnv(ctx, nil)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

// referenceTime honours --at, otherwise samples the engine clock once.
func referenceTime(env *app.Env) (time.Time, error) {
	if raw := strings.TrimSpace(viper.GetString("at")); raw != "" {
		return domain.ParseTimestamp(raw)
	}
	return env.Engine.Clock(), nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}
