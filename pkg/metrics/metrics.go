package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	IntentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_intent_transitions_total",
		Help: "The total number of intent state transitions by operation",
	}, []string{"op"})

	ActiveIntents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_active_intents",
		Help: "The number of intents currently in the active or executing pool",
	})

	TriggerMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_trigger_matches_total",
		Help: "The total number of trigger predicates that evaluated true",
	}, []string{"trigger_kind"})

	TriggerCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_trigger_cycle_seconds",
		Help:    "Time taken to evaluate one trigger monitor cycle",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	PriceFeedErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_price_feed_errors_total",
		Help: "Total number of failed price feed fetches",
	})

	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "engine_execution_seconds",
		Help:    "Time from claim to finalize for executed candidates",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"outcome"})

	ExecutionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_execution_outcomes_total",
		Help: "Execution attempts by outcome (executed, failed, abandoned)",
	}, []string{"outcome", "reason"})

	StuckRecoveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_stuck_recoveries_total",
		Help: "Number of executing intents returned to the active pool by the recovery sweep",
	})

	DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_dropped_events_total",
		Help: "Lifecycle events dropped because the event buffer was full",
	})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_notifications_total",
		Help: "Lifecycle notifications by delivery status",
	}, []string{"status"})

	JournalAppendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_journal_append_errors_total",
		Help: "Failed audit journal appends",
	})

	VenueSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_venue_submissions_total",
		Help: "Trade submissions to the execution venue by result",
	}, []string{"result"})
)
