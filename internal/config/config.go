package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"missioncontrol/internal/domain"
	"missioncontrol/internal/metrics"
)

const fileName = "missioncontrol.yml"

// Config models missioncontrol.yml.
type Config struct {
	Thresholds struct {
		TaskStuckHours             int                `yaml:"task_stuck_hours"`
		AgentIdleHours             int                `yaml:"agent_idle_hours"`
		PresenceIdleHours          int                `yaml:"presence_idle_hours"`
		MemoryStaleHours           int                `yaml:"memory_stale_hours"`
		HighPriorityUntouchedHours int                `yaml:"high_priority_untouched_hours"`
		SLAHours                   map[string]float64 `yaml:"sla_hours"`
		SLAWarningRatio            float64            `yaml:"sla_warning_ratio"`
	} `yaml:"thresholds"`
	Reports struct {
		BaseURL             string `yaml:"base_url"`
		MaxOverdueInMessage int    `yaml:"max_overdue_in_message"`
		SnapshotLimit       int    `yaml:"snapshot_limit"`
		StuckAlertLimit     int    `yaml:"stuck_alert_limit"`
	} `yaml:"reports"`
	Slack struct {
		WebhookURL     string `yaml:"webhook_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"slack"`
	Seed struct {
		Agents    []AgentSeed    `yaml:"agents"`
		Playbooks []PlaybookSeed `yaml:"playbooks"`
	} `yaml:"seed"`
}

type AgentSeed struct {
	Name string `yaml:"name"`
	Role string `yaml:"role"`
	Soul string `yaml:"soul"`
}

type PlaybookSeed struct {
	Title                 string   `yaml:"title"`
	Scenario              string   `yaml:"scenario"`
	ImpactLevel           string   `yaml:"impact_level"`
	Owner                 string   `yaml:"owner"`
	CommunicationTemplate string   `yaml:"communication_template"`
	Steps                 []string `yaml:"steps"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	th := c.Thresholds
	for name, v := range map[string]int{
		"task_stuck_hours":              th.TaskStuckHours,
		"agent_idle_hours":              th.AgentIdleHours,
		"presence_idle_hours":           th.PresenceIdleHours,
		"memory_stale_hours":            th.MemoryStaleHours,
		"high_priority_untouched_hours": th.HighPriorityUntouchedHours,
	} {
		if v <= 0 {
			return fmt.Errorf("config.thresholds.%s must be positive", name)
		}
	}
	for prio, hours := range th.SLAHours {
		if !domain.Priority(prio).Valid() {
			return fmt.Errorf("config.thresholds.sla_hours has unknown priority %s", prio)
		}
		if hours <= 0 {
			return fmt.Errorf("config.thresholds.sla_hours.%s must be positive", prio)
		}
	}
	if th.SLAWarningRatio <= 0 || th.SLAWarningRatio >= 1 {
		return fmt.Errorf("config.thresholds.sla_warning_ratio must be between 0 and 1")
	}
	if c.Slack.TimeoutSeconds < 0 {
		return fmt.Errorf("config.slack.timeout_seconds must not be negative")
	}
	for i, a := range c.Seed.Agents {
		if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Role) == "" {
			return fmt.Errorf("config.seed.agents[%d] requires name and role", i)
		}
	}
	titles := map[string]bool{}
	for i, p := range c.Seed.Playbooks {
		if strings.TrimSpace(p.Title) == "" {
			return fmt.Errorf("config.seed.playbooks[%d] requires a title", i)
		}
		if titles[p.Title] {
			return fmt.Errorf("config.seed.playbooks has duplicate title %q", p.Title)
		}
		titles[p.Title] = true
		if len(p.Steps) == 0 {
			return fmt.Errorf("playbook %q has no steps", p.Title)
		}
	}
	return nil
}

// Metrics converts the threshold section for the metrics package.
// SLA priorities missing from the file keep their defaults.
func (c *Config) Metrics() metrics.Thresholds {
	th := metrics.DefaultThresholds()
	t := c.Thresholds
	th.TaskStuck = time.Duration(t.TaskStuckHours) * time.Hour
	th.AgentIdle = time.Duration(t.AgentIdleHours) * time.Hour
	th.PresenceIdle = time.Duration(t.PresenceIdleHours) * time.Hour
	th.MemoryStale = time.Duration(t.MemoryStaleHours) * time.Hour
	th.HighPriorityUntouched = time.Duration(t.HighPriorityUntouchedHours) * time.Hour
	for prio, hours := range t.SLAHours {
		th.SLAHours[domain.Priority(prio)] = hours
	}
	th.SLAWarningRatio = t.SLAWarningRatio
	return th
}

// SlackTimeout falls back to five seconds.
func (c *Config) SlackTimeout() time.Duration {
	if c.Slack.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Slack.TimeoutSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads the workspace config, falling back to Default when no file exists.
// Values present in the file override the defaults.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML layers raw YAML over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `thresholds:
  task_stuck_hours: 48
  agent_idle_hours: 24
  presence_idle_hours: 48
  memory_stale_hours: 72
  high_priority_untouched_hours: 12
  sla_hours:
    HIGH: 12
    MEDIUM: 48
    LOW: 120
  sla_warning_ratio: 0.75

reports:
  base_url: ""
  max_overdue_in_message: 10
  snapshot_limit: 20
  stuck_alert_limit: 5

slack:
  webhook_url: ""
  timeout_seconds: 5

seed:
  agents:
    - name: Sentry
      role: Open Web Scout
      soul: >-
        Hyper-vigilant reconnaissance agent tasked with scanning public web channels,
        news feeds, and technical releases for anything that affects Mission Control.

  playbooks:
    - title: Trading venue outage
      scenario: Primary brokerage API rejects orders or latency spikes beyond 5s, blocking live trades.
      impact_level: Critical
      owner: Command
      communication_template: >-
        We are experiencing a brokerage outage impacting order routing. We're in escalation
        with the venue and will update every 15 minutes.
      steps:
        - Confirm outage scope via health dashboard and a redundant ping test.
        - Flip Mission Control task statuses for affected engagements to blocked.
        - Notify command and the ops channel with latest telemetry and mitigation ETA.
        - Engage the backup brokerage runbook if downtime exceeds 20 minutes.
        - Publish the status template to the customer communications channel once confirmed.

    - title: Mission Control UI degradation
      scenario: Operators cannot update tasks or latencies exceed 3s for mutations.
      impact_level: High
      owner: Atlasbot
      communication_template: >-
        Heads up: Mission Control updates are delayed due to elevated database latency.
        Working the issue now; expect a fresh ETA in 10 minutes.
      steps:
        - Capture a screenshot or recording of the issue and attach it to the current incident task.
        - Check database logs for slow queries and tail the server output for errors.
        - Scale down noisy automation loops or pause batch jobs contributing load.
        - Update the ops Slack channel with impact description and mitigation plan.
        - Log resolution steps and lessons learned back into the playbook task.

    - title: VIP account escalation
      scenario: High-value partner reports blocked onboarding or missing data feed.
      impact_level: Medium
      owner: Customer Ops
      communication_template: >-
        We received your escalation and are unblocking the data feed now. Expect the fix
        within 30 minutes; we'll confirm once validated.
      steps:
        - Tag the VIP task with HIGH priority and assign a dedicated operator.
        - Audit recent deploys and files touched by the VIP workspace.
        - Coordinate with the data ingestion agent to replay the missing feed.
        - Send the templated reassurance note with a concrete ETA.
        - Schedule a follow-up check-in 1 hour after closure.
`
