package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"

	"missioncontrol/internal/domain"
	"missioncontrol/internal/metrics"
)

// Metrics mirrors the latest dashboard assembly as Prometheus gauges.
type Metrics struct {
	tasks           *prometheus.GaugeVec
	sla             *prometheus.GaugeVec
	stuck           prometheus.Gauge
	agents          *prometheus.GaugeVec
	needsBriefing   prometheus.Gauge
	slackDeliveries *prometheus.CounterVec
	reports         *prometheus.CounterVec
}

// MustNewMetrics registers the collectors with reg and panics on conflicts.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		tasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mission_control",
			Subsystem: "tasks",
			Name:      "total",
			Help:      "Tasks per status at the last dashboard assembly.",
		}, []string{"status"}),
		sla: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mission_control",
			Subsystem: "tasks",
			Name:      "sla",
			Help:      "Open tasks per SLA state.",
		}, []string{"state"}),
		stuck: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mission_control",
			Subsystem: "tasks",
			Name:      "stuck",
			Help:      "DOING tasks untouched past the stuck threshold.",
		}),
		agents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mission_control",
			Subsystem: "agents",
			Name:      "total",
			Help:      "Agents per capacity lane.",
		}, []string{"lane"}),
		needsBriefing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mission_control",
			Subsystem: "agents",
			Name:      "needs_briefing",
			Help:      "Agents without any recorded memory.",
		}),
		slackDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mission_control",
			Subsystem: "slack",
			Name:      "deliveries_total",
			Help:      "Overdue alert outcomes.",
		}, []string{"result"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mission_control",
			Subsystem: "reports",
			Name:      "rendered_total",
			Help:      "Reports rendered by kind and format.",
		}, []string{"kind", "format"}),
	}
	reg.MustRegister(m.tasks, m.sla, m.stuck, m.agents, m.needsBriefing, m.slackDeliveries, m.reports)
	return m
}

func (m *Metrics) observeShell(sh Shell, lanes map[metrics.Lane]int, sla map[metrics.SLAState]int) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(string(domain.StatusTodo)).Set(float64(sh.Counts.Todo))
	m.tasks.WithLabelValues(string(domain.StatusDoing)).Set(float64(sh.Counts.Doing))
	m.tasks.WithLabelValues(string(domain.StatusDone)).Set(float64(sh.Counts.Done))
	for _, state := range []metrics.SLAState{metrics.SLAOK, metrics.SLAWarning, metrics.SLABreach} {
		m.sla.WithLabelValues(string(state)).Set(float64(sla[state]))
	}
	m.stuck.Set(float64(sh.Counts.Stuck))
	for _, lane := range metrics.Lanes {
		m.agents.WithLabelValues(string(lane)).Set(float64(lanes[lane]))
	}
	m.needsBriefing.Set(float64(sh.Counts.NeedsBriefing))
}

func (m *Metrics) observeDelivery(result string) {
	if m == nil {
		return
	}
	m.slackDeliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) observeReport(kind string, format string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(kind, format).Inc()
}
