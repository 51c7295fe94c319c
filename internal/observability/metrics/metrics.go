package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutreachMetrics exposes counters/histograms for outreach cycles.
// A nil *OutreachMetrics is a valid no-op observer.
type OutreachMetrics struct {
	cyclesTotal       *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
	leadOutcomes      *prometheus.CounterVec
	generationLatency *prometheus.HistogramVec
	sendsTotal        *prometheus.CounterVec
	retryExhausted    prometheus.Counter
	repliesTotal      *prometheus.CounterVec
	journalPending    prometheus.Gauge
	invalidLeadRows   prometheus.Counter
}

func NewOutreachMetrics(reg prometheus.Registerer) *OutreachMetrics {
	m := &OutreachMetrics{
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "dispatch",
			Name:      "cycles_total",
			Help:      "Outreach cycles by trigger and result",
		}, []string{"trigger", "result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "outreach",
			Subsystem: "dispatch",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a full outreach cycle",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		leadOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "dispatch",
			Name:      "lead_outcomes_total",
			Help:      "Per-lead cycle outcomes",
		}, []string{"action", "result"}),
		generationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "outreach",
			Subsystem: "generation",
			Name:      "latency_seconds",
			Help:      "Latency of content generation calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode", "status"}),
		sendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "mail",
			Name:      "sends_total",
			Help:      "Outbound email sends",
		}, []string{"status"}),
		retryExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "dispatch",
			Name:      "retry_exhausted_total",
			Help:      "Failed leads left for manual handling",
		}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "inbox",
			Name:      "replies_total",
			Help:      "Inbound replies seen by the reply monitor",
		}, []string{"result"}),
		journalPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "outreach",
			Subsystem: "dispatch",
			Name:      "journal_pending",
			Help:      "Sent messages waiting to be recorded in the lead store",
		}),
		invalidLeadRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "store",
			Name:      "invalid_lead_rows_total",
			Help:      "Lead rows skipped because they could not be decoded",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.cyclesTotal,
		m.cycleDuration,
		m.leadOutcomes,
		m.generationLatency,
		m.sendsTotal,
		m.retryExhausted,
		m.repliesTotal,
		m.journalPending,
		m.invalidLeadRows,
	)
	return m
}

func (m *OutreachMetrics) ObserveCycle(trigger, result string, seconds float64) {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(trigger, result).Inc()
	m.cycleDuration.Observe(seconds)
}

func (m *OutreachMetrics) ObserveLeadOutcome(action, result string) {
	if m == nil {
		return
	}
	m.leadOutcomes.WithLabelValues(action, result).Inc()
}

func (m *OutreachMetrics) ObserveGeneration(mode string, ok bool, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.generationLatency.WithLabelValues(mode, status).Observe(seconds)
}

func (m *OutreachMetrics) ObserveSend(status string) {
	if m == nil {
		return
	}
	m.sendsTotal.WithLabelValues(status).Inc()
}

func (m *OutreachMetrics) ObserveRetryExhausted() {
	if m == nil {
		return
	}
	m.retryExhausted.Inc()
}

func (m *OutreachMetrics) ObserveReply(result string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(result).Inc()
}

func (m *OutreachMetrics) SetJournalPending(n int) {
	if m == nil {
		return
	}
	m.journalPending.Set(float64(n))
}

func (m *OutreachMetrics) ObserveInvalidLeadRow() {
	if m == nil {
		return
	}
	m.invalidLeadRows.Inc()
}
