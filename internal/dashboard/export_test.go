package dashboard

import "github.com/prometheus/client_golang/prometheus"

func StuckGauge(m *Metrics) prometheus.Collector { return m.stuck }

func DeliveryCounter(m *Metrics, result string) prometheus.Collector {
	return m.slackDeliveries.WithLabelValues(result)
}
