package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for quest activity. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	answers            *prometheus.CounterVec
	setsCompleted      *prometheus.CounterVec
	submissionFailures *prometheus.CounterVec
	liveSessions       prometheus.Gauge
}

// New registers the collectors with reg. Collectors that are already
// registered are reused, so tests may call New repeatedly.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "journey",
			Name:      "answers_total",
			Help:      "Answers recorded, by pass.",
		}, []string{"kind"}),
		setsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "journey",
			Name:      "sets_completed_total",
			Help:      "Answer sets finalized, by pass.",
		}, []string{"kind"}),
		submissionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "journey",
			Name:      "submission_failures_total",
			Help:      "Score submissions that a sink rejected or could not receive.",
		}, []string{"sink"}),
		liveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "journey",
			Name:      "live_sessions",
			Help:      "Wizard controllers currently held in memory.",
		}),
	}

	var err error
	m.answers, err = registerVec(reg, m.answers)
	if err != nil {
		return nil, err
	}
	m.setsCompleted, err = registerVec(reg, m.setsCompleted)
	if err != nil {
		return nil, err
	}
	m.submissionFailures, err = registerVec(reg, m.submissionFailures)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(m.liveSessions); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		m.liveSessions = already.ExistingCollector.(prometheus.Gauge)
	}
	return m, nil
}

func registerVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return c, nil
}

func (m *Metrics) Answer(kind string) {
	if m == nil {
		return
	}
	m.answers.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetCompleted(kind string) {
	if m == nil {
		return
	}
	m.setsCompleted.WithLabelValues(kind).Inc()
}

func (m *Metrics) SubmissionFailed(sink string) {
	if m == nil {
		return
	}
	m.submissionFailures.WithLabelValues(sink).Inc()
}

// SessionOpened and SessionClosed track the live controller count.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.liveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.liveSessions.Dec()
}
