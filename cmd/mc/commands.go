package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"missioncontrol/internal/app"
	"missioncontrol/internal/domain"
	"missioncontrol/internal/engine"
	"missioncontrol/internal/metrics"
	"missioncontrol/internal/repo"
)

func agentCmd() *cobra.Command {
	agent := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents",
		Long:  "Agents carry a workload (tasks by status), a capacity lane (IDLE, ENGAGED, OVERLOADED) and presence. An agent with no memories needs a briefing.",
	}
	agent.AddCommand(agentCreateCmd())
	agent.AddCommand(agentListCmd())
	agent.AddCommand(agentShowCmd())
	return agent
}

func agentCreateCmd() *cobra.Command {
	var opts engine.AgentCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				a, err := env.Engine.CreateAgent(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "agent name")
	cmd.Flags().StringVar(&opts.Role, "role", "", "role")
	cmd.Flags().StringVar(&opts.Soul, "soul", "", "persona description")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("soul")
	return cmd
}

func agentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List agents with workload and presence",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				ref, err := referenceTime(env)
				if err != nil {
					return err
				}
				agents, err := env.Dashboard.Agents(ctx, ref)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(agents)
				}
				tw := newTable(table.Row{"ID", "Name", "Role", "Lane", "Todo", "Doing", "Done", "Stuck", "Last Seen", "Briefing"})
				for _, a := range agents {
					briefing := ""
					if a.NeedsBriefing {
						briefing = "needed"
					}
					tw.AppendRow(table.Row{
						a.Agent.ID, a.Agent.Name, a.Agent.Role, a.Lane,
						a.Workload.Breakdown.Todo, a.Workload.Breakdown.Doing, a.Workload.Breakdown.Done, a.Workload.StuckCount,
						metrics.FormatRelative(a.Presence.LastInteraction, ref), briefing,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func agentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <agent-id>",
		Short: "Show an agent dossier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				ref, err := referenceTime(env)
				if err != nil {
					return err
				}
				d, err := env.Dashboard.AgentDossier(ctx, args[0], ref)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func memoryCmd() *cobra.Command {
	mem := &cobra.Command{Use: "memory", Short: "Manage agent memories"}
	mem.AddCommand(memoryAddCmd())
	return mem
}

func memoryAddCmd() *cobra.Command {
	var opts engine.MemoryCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a memory to an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				m, err := env.Engine.AddMemory(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&opts.AgentID, "agent-id", "", "agent id")
	cmd.Flags().StringVar(&opts.Content, "content", "", "memory content")
	_ = cmd.MarkFlagRequired("agent-id")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks flow TODO -> DOING -> DONE. Every status, priority or assignment change advances updated_at and lands in the audit log.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskUpdateCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				t, err := env.Engine.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Status, "status", "", "status (TODO, DOING, DONE)")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (LOW, MEDIUM, HIGH)")
	cmd.Flags().StringVar(&opts.AgentID, "agent-id", "", "assigned agent id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, priority string
	var f repo.TaskFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks with SLA state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				s, ok := domain.ParseStatus(strings.ToUpper(status))
				if !ok {
					return fmt.Errorf("unknown status %q", status)
				}
				f.Status = s
			}
			if priority != "" {
				p := domain.Priority(strings.ToUpper(priority))
				if !p.Valid() {
					return fmt.Errorf("unknown priority %q", priority)
				}
				f.Priority = p
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				ref, err := referenceTime(env)
				if err != nil {
					return err
				}
				tasks, err := env.Dashboard.Tasks(ctx, f, ref)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := newTable(table.Row{"ID", "Title", "Status", "Priority", "Agent", "SLA", "Updated"})
				for _, t := range tasks {
					sla := string(t.SLA.State)
					if t.Stale {
						sla += " (stuck)"
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, t.Assignee(), sla, metrics.FormatRelative(t.UpdatedAt, ref)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.AgentID, "agent-id", "", "agent filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max tasks (0 for all)")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var status, priority, agentID string
	var unassign bool
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Change status, priority or assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{
				ID:       args[0],
				Status:   optionalString(cmd, "status", status),
				Priority: optionalString(cmd, "priority", priority),
				AgentID:  optionalString(cmd, "agent-id", agentID),
				ActorID:  viper.GetString("actor-id"),
			}
			if unassign {
				empty := ""
				opts.AgentID = &empty
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				t, err := env.Engine.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	cmd.Flags().StringVar(&agentID, "agent-id", "", "assign to agent")
	cmd.Flags().BoolVar(&unassign, "unassign", false, "clear the assigned agent")
	cmd.MarkFlagsMutuallyExclusive("agent-id", "unassign")
	return cmd
}

func auditCmd() *cobra.Command {
	a := &cobra.Command{Use: "audit", Short: "Inspect the audit log"}
	a.AddCommand(auditTailCmd())
	return a
}

func auditTailCmd() *cobra.Command {
	var f repo.AuditFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				logs, err := env.Engine.Repo.ListAuditLogs(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(logs)
				}
				tw := newTable(table.Row{"ID", "Action", "Task", "Metadata", "At"})
				for _, l := range logs {
					tw.AppendRow(table.Row{l.ID, l.Action, l.TaskTitle, l.Metadata, domain.FormatTimestamp(l.CreatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of entries")
	cmd.Flags().StringVar(&f.Action, "action", "", "action filter")
	cmd.Flags().StringVar(&f.TaskID, "task-id", "", "task filter")
	return cmd
}

func playbookCmd() *cobra.Command {
	pb := &cobra.Command{
		Use:   "playbook",
		Short: "Manage escalation playbooks",
		Long:  "Playbooks describe how to respond to an incident: scenario, impact level, owner, a communication template and ordered steps.",
	}
	pb.AddCommand(playbookListCmd())
	pb.AddCommand(playbookShowCmd())
	pb.AddCommand(playbookCreateCmd())
	pb.AddCommand(playbookDeleteCmd())
	return pb
}

func playbookListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List playbooks by impact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := env.Engine.Repo.ListPlaybooks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Title", "Impact", "Owner", "Steps"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.ImpactLevel, p.Owner, len(p.Steps)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func playbookShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <playbook-id>",
		Short: "Show a playbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				p, err := env.Engine.Repo.GetPlaybook(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("%s [%s]\nOwner: %s\nScenario: %s\n\n", p.Title, p.ImpactLevel, p.Owner, p.Scenario)
				for _, s := range p.Steps {
					fmt.Printf("%d. %s\n", s.Position, s.Instruction)
				}
				fmt.Printf("\n%s\n", p.CommunicationTemplate)
				return nil
			})
		},
	}
}

func playbookCreateCmd() *cobra.Command {
	var opts engine.PlaybookOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a playbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				p, err := env.Engine.CreatePlaybook(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "scenario")
	cmd.Flags().StringVar(&opts.ImpactLevel, "impact", "", "impact level (Critical, High, Medium, Low)")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner")
	cmd.Flags().StringVar(&opts.CommunicationTemplate, "template", "", "communication template")
	cmd.Flags().StringArrayVar(&opts.Steps, "step", []string{}, "step instruction (repeatable, in order)")
	for _, name := range []string{"title", "scenario", "impact", "owner", "template", "step"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func playbookDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <playbook-id>",
		Short: "Delete a playbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if err := env.Engine.DeletePlaybook(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": args[0]})
				}
				fmt.Fprintln(os.Stdout, "deleted", args[0])
				return nil
			})
		},
	}
}
