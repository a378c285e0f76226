package intake

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts intake outcomes. A nil *Metrics records nothing.
type Metrics struct {
	validations *prometheus.CounterVec
	submissions *prometheus.CounterVec
	reviews     *prometheus.CounterVec
}

// NewMetrics creates the intake counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "centraqu",
			Subsystem: "intake",
			Name:      "validations_total",
			Help:      "Capability validations by outcome.",
		}, []string{"outcome"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "centraqu",
			Subsystem: "intake",
			Name:      "submissions_total",
			Help:      "Submission attempts by outcome.",
		}, []string{"outcome"}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "centraqu",
			Subsystem: "intake",
			Name:      "reviews_total",
			Help:      "Staff reviews by action and outcome.",
		}, []string{"action", "outcome"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.validations, m.submissions, m.reviews} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) validation(err error) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) submission(err error) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) review(action ReviewAction, err error) {
	if m == nil {
		return
	}
	a := string(action)
	if a == "" {
		a = "unknown"
	}
	m.reviews.WithLabelValues(a, outcome(err)).Inc()
}

// outcome keeps label cardinality bounded to the fixed code set.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return Code(err)
}
