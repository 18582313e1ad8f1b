package obs

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	RequestsSubmitted *prometheus.CounterVec // kind, result=success|unavailable|duplicate|error
	Resolutions       *prometheus.CounterVec // decision, result=success|already_resolved|not_found|error
	CascadeRejections prometheus.Counter
	CapturesFiled     prometheus.Counter

	OpLatencyMS   *prometheus.HistogramVec // op=submit|resolve|transition|intake
	DogsByBucket  *prometheus.GaugeVec     // bucket
	OutboxRelayed *prometheus.CounterVec   // result=processed|retry|dead
}

// NewMetrics builds and registers the collectors on reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RequestsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dog_requests_submitted_total",
				Help: "Claim/adopt submissions by kind and result",
			},
			[]string{"kind", "result"},
		),
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dog_resolutions_total",
				Help: "Admin resolutions by decision and result",
			},
			[]string{"decision", "result"},
		),
		CascadeRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dog_cascade_rejections_total",
			Help: "Sibling requests auto-rejected after an acceptance",
		}),
		CapturesFiled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dog_capture_requests_total",
			Help: "Capture requests filed by users",
		}),
		OpLatencyMS: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dog_op_latency_ms",
				Help:    "Latency of lifecycle operations (ms)",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"op"},
		),
		DogsByBucket: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dogs_by_bucket",
				Help: "Dogs per listing bucket at the last monitor sweep",
			},
			[]string{"bucket"},
		),
		OutboxRelayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbox_relayed_total",
				Help: "Outbox messages handled by the relay by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.RequestsSubmitted,
		m.Resolutions,
		m.CascadeRejections,
		m.CapturesFiled,
		m.OpLatencyMS,
		m.DogsByBucket,
		m.OutboxRelayed,
	)

	return m
}
