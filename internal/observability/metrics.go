package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics registry and the ledger's meters.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry          *prometheus.Registry
	OperationDuration *prometheus.HistogramVec
	OperationTotal    *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec

	TransitionsTotal   *prometheus.CounterVec
	SignaturesVerified *prometheus.CounterVec
	Groups             prometheus.Gauge
	MailboxMessages    *prometheus.CounterVec
}

// NewMetrics creates a custom Prometheus registry with the arc-ledger metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	opDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arc_ledger_operation_duration_seconds",
		Help:    "Duration of operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	opTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arc_ledger_operation_total",
		Help: "Total number of operations.",
	}, []string{"operation", "status"})

	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arc_ledger_errors_total",
		Help: "Total number of errors.",
	}, []string{"operation", "type"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arc_ledger_transitions_total",
		Help: "Group transitions submitted, by outcome.",
	}, []string{"outcome"})

	signatures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arc_ledger_signatures_verified_total",
		Help: "Quorum signatures checked, by result.",
	}, []string{"result"})

	groups := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arc_ledger_groups",
		Help: "Number of registered groups.",
	})

	mailbox := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arc_ledger_mailbox_messages_total",
		Help: "Mailbox messages, by direction.",
	}, []string{"direction"})

	reg.MustRegister(opDuration, opTotal, errorsTotal, transitions, signatures, groups, mailbox)

	return &Metrics{
		Registry:           reg,
		OperationDuration:  opDuration,
		OperationTotal:     opTotal,
		ErrorsTotal:        errorsTotal,
		TransitionsTotal:   transitions,
		SignaturesVerified: signatures,
		Groups:             groups,
		MailboxMessages:    mailbox,
	}
}

// ObserveTransition counts a submitted transition by outcome.
func (m *Metrics) ObserveTransition(outcome string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSignature counts one checked quorum signature.
func (m *Metrics) ObserveSignature(valid bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.SignaturesVerified.WithLabelValues(result).Inc()
}

// GroupRegistered bumps the group gauge.
func (m *Metrics) GroupRegistered() {
	if m == nil {
		return
	}
	m.Groups.Inc()
}

// ObserveMailbox counts mailbox traffic ("in" on send, "out" on fetch).
func (m *Metrics) ObserveMailbox(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MailboxMessages.WithLabelValues(direction).Add(float64(n))
}

// ObserveError counts an error of the given type for an operation.
func (m *Metrics) ObserveError(operation, kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(operation, kind).Inc()
}
