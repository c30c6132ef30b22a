package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the engine's Prometheus collectors.
type Registry struct {
	ScansTotal     *prometheus.CounterVec
	ScanRejections *prometheus.CounterVec
	TokensRotated  prometheus.Counter
	ActiveSessions prometheus.Gauge
	TrustScore     prometheus.Histogram
	CodesIssued    prometheus.Counter
}

// New builds and registers the engine collectors on reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attendance_scans_total",
				Help: "Recorded scans by resulting status",
			},
			[]string{"status"},
		),
		ScanRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attendance_scan_rejections_total",
				Help: "Rejected scan submissions by error kind",
			},
			[]string{"kind"},
		),
		TokensRotated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "attendance_tokens_rotated_total",
				Help: "Rotated tokens emitted across all sessions",
			},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "attendance_active_sessions",
				Help: "Sessions currently in the Active state",
			},
		),
		TrustScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "attendance_trust_score",
				Help:    "Trust score distribution of recorded scans",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
		),
		CodesIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "attendance_activation_codes_issued_total",
				Help: "Activation codes issued",
			},
		),
	}
	reg.MustRegister(
		r.ScansTotal,
		r.ScanRejections,
		r.TokensRotated,
		r.ActiveSessions,
		r.TrustScore,
		r.CodesIssued,
	)
	return r
}

// The Inc helpers are nil-safe so components can run without metrics wired.

func (r *Registry) IncScan(status string) {
	if r == nil {
		return
	}
	r.ScansTotal.WithLabelValues(status).Inc()
}

func (r *Registry) IncRejection(kind string) {
	if r == nil {
		return
	}
	r.ScanRejections.WithLabelValues(kind).Inc()
}

func (r *Registry) IncRotation() {
	if r == nil {
		return
	}
	r.TokensRotated.Inc()
}

func (r *Registry) SessionOpened() {
	if r == nil {
		return
	}
	r.ActiveSessions.Inc()
}

func (r *Registry) SessionClosed() {
	if r == nil {
		return
	}
	r.ActiveSessions.Dec()
}

func (r *Registry) ObserveTrust(score float64) {
	if r == nil {
		return
	}
	r.TrustScore.Observe(score)
}

func (r *Registry) IncCodeIssued() {
	if r == nil {
		return
	}
	r.CodesIssued.Inc()
}
