package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Send outcomes recorded by Metrics.
const (
	outcomeSent     = "sent"
	outcomeFailed   = "failed"
	outcomeQueued   = "queued"
	outcomeReplayed = "replayed"
	outcomeRequeued = "requeued"
	outcomeUpload   = "upload_failed"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	sends        *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	queueDepth   prometheus.Gauge
	reconciled   prometheus.Counter
	receipts     *prometheus.CounterVec
}

// NewMetrics registers the engine collectors on registerer. A nil
// registerer uses the default Prometheus registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		sends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buchat_sends_total",
				Help: "Outgoing messages by outcome",
			},
			[]string{"outcome"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buchat_cache_lookups_total",
				Help: "Message page cache lookups by result",
			},
			[]string{"result"},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "buchat_offline_queue_depth",
				Help: "Messages waiting in the offline send queue",
			},
		),
		reconciled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "buchat_reconciled_messages_total",
				Help: "New messages discovered by reconcile polling",
			},
		),
		receipts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buchat_receipts_total",
				Help: "Delivery and read receipts by kind and result",
			},
			[]string{"kind", "result"},
		),
	}
}

func (m *Metrics) send(outcome string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(outcome).Inc()
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) setQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) newMessages(count int) {
	if m == nil || count == 0 {
		return
	}
	m.reconciled.Add(float64(count))
}

func (m *Metrics) receipt(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.receipts.WithLabelValues(kind, result).Inc()
}
