package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fairyhunter13/rcn-reward-engine/internal/model"
)

const namespace = "rcn"

// Engine holds the counters for reward issuance, redemption and event delivery.
// A nil *Engine is a valid no-op recorder.
type Engine struct {
	rewardsIssued     *prometheus.CounterVec
	bonusSkipped      prometheus.Counter
	limitRejections   *prometheus.CounterVec
	redemptions       *prometheus.CounterVec
	signatureFailures prometheus.Counter
	sessionsSwept     prometheus.Counter
	eventsPublished   *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	eventsFailed      *prometheus.CounterVec
}

// New creates the engine counters and registers them with reg.
func New(reg prometheus.Registerer) *Engine {
	m := &Engine{
		rewardsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewards_issued_tokens_total",
			Help:      "RCN credited by reward issuance, split into base and bonus.",
		}, []string{"component"}),
		bonusSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_bonus_skipped_total",
			Help:      "Rewards issued without the tier bonus because the shop could not fund it.",
		}),
		limitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "earning_limit_rejections_total",
			Help:      "Reward issuances refused by an earning cap.",
		}, []string{"limit"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemption_sessions_resolved_total",
			Help:      "Redemption sessions moved to a terminal status by approve or reject.",
		}, []string{"outcome"}),
		signatureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemption_signature_failures_total",
			Help:      "Approval attempts rejected for a bad signature.",
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemption_sessions_swept_total",
			Help:      "Pending sessions expired by the background sweeper.",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Settlement events delivered to the publisher.",
		}, []string{"type"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Settlement events dropped because the queue was full or closed.",
		}, []string{"type"}),
		eventsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Settlement events the publisher failed to deliver.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.rewardsIssued,
			m.bonusSkipped,
			m.limitRejections,
			m.redemptions,
			m.signatureFailures,
			m.sessionsSwept,
			m.eventsPublished,
			m.eventsDropped,
			m.eventsFailed,
		)
	}
	return m
}

func (m *Engine) RewardIssued(base, bonus int64) {
	if m == nil {
		return
	}
	m.rewardsIssued.WithLabelValues("base").Add(float64(base))
	if bonus > 0 {
		m.rewardsIssued.WithLabelValues("bonus").Add(float64(bonus))
	}
}

func (m *Engine) BonusSkipped() {
	if m == nil {
		return
	}
	m.bonusSkipped.Inc()
}

func (m *Engine) LimitRejected(limit string) {
	if m == nil {
		return
	}
	m.limitRejections.WithLabelValues(orUnknown(limit)).Inc()
}

func (m *Engine) RedemptionResolved(outcome model.SessionStatus) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(orUnknown(string(outcome))).Inc()
}

func (m *Engine) SignatureRejected() {
	if m == nil {
		return
	}
	m.signatureFailures.Inc()
}

func (m *Engine) SessionsSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsSwept.Add(float64(n))
}

func (m *Engine) EventPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(orUnknown(eventType)).Inc()
}

func (m *Engine) EventDropped(eventType string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(orUnknown(eventType)).Inc()
}

func (m *Engine) EventFailed(eventType string) {
	if m == nil {
		return
	}
	m.eventsFailed.WithLabelValues(orUnknown(eventType)).Inc()
}

func orUnknown(label string) string {
	if label == "" {
		return "unknown"
	}
	return label
}
