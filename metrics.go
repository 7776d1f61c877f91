package taskauth

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts session and token outcomes. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	sessions     *prometheus.CounterVec
	resolves     *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
	deletes      prometheus.Counter
	tokens       *prometheus.CounterVec
	authFailures *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskauth",
			Name:      "sessions_issued_total",
			Help:      "Session handles returned at login, by outcome.",
		}, []string{"outcome"}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskauth",
			Name:      "session_resolves_total",
			Help:      "Session handle resolutions, by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskauth",
			Name:      "session_refreshes_total",
			Help:      "Sliding-expiration refreshes, by result.",
		}, []string{"result"}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskauth",
			Name:      "session_deletes_total",
			Help:      "Session deletions.",
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskauth",
			Name:      "token_registry_ops_total",
			Help:      "Token registry operations, by operation and result.",
		}, []string{"op", "result"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskauth",
			Name:      "auth_failures_total",
			Help:      "Rejected authentication attempts, by strategy and reason.",
		}, []string{"strategy", "reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.sessions, m.resolves, m.refreshes, m.deletes, m.tokens, m.authFailures)
	}
	return m
}

func (m *Metrics) sessionIssued(outcome string) {
	if m != nil {
		m.sessions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) resolved(result string) {
	if m != nil {
		m.resolves.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) refreshed(result string) {
	if m != nil {
		m.refreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) deleted() {
	if m != nil {
		m.deletes.Inc()
	}
}

func (m *Metrics) tokenOp(op string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "fail"
	}
	m.tokens.WithLabelValues(op, result).Inc()
}

func (m *Metrics) authFailed(strategy, reason string) {
	if m != nil {
		m.authFailures.WithLabelValues(strategy, reason).Inc()
	}
}
