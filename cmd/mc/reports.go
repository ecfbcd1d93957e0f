package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"missioncontrol/internal/app"
	"missioncontrol/internal/dashboard"
	"missioncontrol/internal/report"
)

func dashboardCmd() *cobra.Command {
	var noSnapshot bool
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show counts, alerts and the executive snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				ref, err := referenceTime(env)
				if err != nil {
					return err
				}
				sh, err := env.Dashboard.Shell(ctx, ref, !noSnapshot)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sh)
				}
				renderShell(sh)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noSnapshot, "no-snapshot", false, "omit the executive snapshot")
	return cmd
}

func renderShell(sh dashboard.Shell) {
	counts := newTable(table.Row{"Todo", "Doing", "Done", "Stuck", "Needs Briefing", "High Priority"})
	c := sh.Counts
	counts.AppendRow(table.Row{c.Todo, c.Doing, c.Done, c.Stuck, c.NeedsBriefing, c.HighPriority})
	counts.Render()

	if len(sh.Alerts.StuckTasks) > 0 {
		stuck := newTable(table.Row{"Stuck Task", "Agent", "Stuck For"})
		for _, a := range sh.Alerts.StuckTasks {
			stuck.AppendRow(table.Row{a.Title, a.AgentName, a.StuckFor})
		}
		stuck.Render()
	}
	if len(sh.Alerts.NeedsBriefing) > 0 {
		brief := newTable(table.Row{"Needs Briefing", "Agent ID"})
		for _, a := range sh.Alerts.NeedsBriefing {
			brief.AppendRow(table.Row{a.Name, a.ID})
		}
		brief.Render()
	}
	if len(sh.Alerts.StaleMemories) > 0 {
		stale := newTable(table.Row{"Stale Memory", "Last Memory"})
		for _, a := range sh.Alerts.StaleMemories {
			stale.AppendRow(table.Row{a.Name, a.Age})
		}
		stale.Render()
	}
	if s := sh.Snapshot; s != nil {
		snap := newTable(table.Row{"Agents", "Idle 24h", "At Risk", "Breached", "Oldest Open", "High Untouched"})
		snap.AppendRow(table.Row{s.TotalAgents, s.IdleAgents24h, s.TasksAtRisk, s.TasksBreached, s.OldestOpenTaskLabel, s.HighPriorityStale})
		snap.Render()
	}
}

func boardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Show the SLA command board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				ref, err := referenceTime(env)
				if err != nil {
					return err
				}
				lanes, err := env.Dashboard.Board(ctx, ref)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(lanes)
				}
				tw := newTable(table.Row{"Priority", "SLA Hours", "Open", "OK", "Warning", "Breach", "Worst"})
				for _, l := range lanes {
					tw.AppendRow(table.Row{l.Priority, l.ThresholdHours, l.Open, l.OK, l.Warning, l.Breach, l.Worst})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func digestCmd() *cobra.Command {
	var sections, format, out string
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Render the weekly digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				ref, err := referenceTime(env)
				if err != nil {
					return err
				}
				doc, err := env.Dashboard.Digest(ctx, ref, report.ParseSections(sections), report.ParseFormat(format))
				if err != nil {
					return err
				}
				return writeDocument(doc, out)
			})
		},
	}
	cmd.Flags().StringVar(&sections, "sections", "", "comma separated sections: load,stuck,tasks,audits (default all)")
	cmd.Flags().StringVar(&format, "format", "markdown", "markdown, slack or html")
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file (\"-\" for the suggested filename)")
	return cmd
}

func snapshotCmd() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Render the Markdown snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				ref, err := referenceTime(env)
				if err != nil {
					return err
				}
				doc, err := env.Dashboard.Snapshot(ctx, ref, report.ParseFormat(format))
				if err != nil {
					return err
				}
				return writeDocument(doc, out)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "markdown", "markdown or html")
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file (\"-\" for the suggested filename)")
	return cmd
}

// writeDocument prints to stdout unless an output path is given.
func writeDocument(doc dashboard.Document, out string) error {
	if viper.GetBool("json") {
		return printJSON(map[string]any{"filename": doc.Filename, "content_type": doc.ContentType, "body": doc.Body})
	}
	switch out {
	case "":
		fmt.Print(doc.Body)
		return nil
	case "-":
		out = doc.Filename
	}
	if err := os.WriteFile(out, []byte(doc.Body), 0o644); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "wrote", out)
	return nil
}

func overdueCmd() *cobra.Command {
	o := &cobra.Command{Use: "overdue", Short: "Overdue task alerts"}
	o.AddCommand(overdueNotifyCmd())
	return o
}

func overdueNotifyCmd() *cobra.Command {
	var webhook string
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Post stuck tasks to Slack",
		Long:  "Posts the overdue alert to the configured Slack webhook. Without a webhook the payload is printed as a preview. Nothing is sent when no task is stuck.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				ref, err := referenceTime(env)
				if err != nil {
					return err
				}
				res, err := env.Dashboard.NotifyOverdue(ctx, ref, webhook)
				if err != nil {
					return err
				}
				if err := printJSONOrTable(res); err != nil {
					return err
				}
				if !res.OK {
					return fmt.Errorf("slack delivery failed: %s (status %d)", res.Reason, res.Status)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&webhook, "webhook-url", "", "override the webhook for this call")
	return cmd
}
