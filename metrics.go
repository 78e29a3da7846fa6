package mqtt

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the session-level counters and gauges exposed by a
// supervisor, grounded on golang-io-mqtt's stat.go Stat struct
// (packets/bytes sent and received, active connections), extended with
// reconnect and inflight counts since those are the numbers spec.md's
// supervisor and trackers actually produce.
type Metrics struct {
	Connected        prometheus.Gauge
	Reconnects       prometheus.Counter
	PacketsSent      prometheus.Counter
	PacketsReceived  prometheus.Counter
	InflightOutgoing prometheus.Gauge
}

// NewMetrics creates a Metrics with the given namespace, matching the
// teacher pack's convention of one prometheus.*Opts block per metric
// rather than a single auto-derived set.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connected",
			Help: "1 if the session is currently connected, else 0.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconnects_total",
			Help: "Number of times the session has reconnected.",
		}),
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_sent_total",
			Help: "Number of MQTT control packets sent.",
		}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_received_total",
			Help: "Number of MQTT control packets received.",
		}),
		InflightOutgoing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "inflight_outgoing",
			Help: "Number of outgoing QoS1/2 publishes awaiting acknowledgement.",
		}),
	}
}

// Register registers every metric with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Connected, m.Reconnects, m.PacketsSent, m.PacketsReceived, m.InflightOutgoing} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
