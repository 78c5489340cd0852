package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_turns_total",
			Help: "Total number of turns handled",
		},
		[]string{"intent", "answered_by", "outcome"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_turn_duration_seconds",
			Help:    "Duration of a turn from received to responded",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"intent"},
	)

	ClassifierFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_classifier_fallbacks_total",
			Help: "Model classifications replaced by the keyword classifier",
		},
		[]string{"reason"},
	)

	RetrievalResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_retrieval_results_total",
			Help: "Document questions by retrieval outcome",
		},
		[]string{"outcome"},
	)

	ToolActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_tool_actions_total",
			Help: "Tool actions by tool and status",
		},
		[]string{"tool", "status"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "assistant_tool_duration_seconds",
			Help: "Duration of tool executions in seconds",
		},
		[]string{"tool"},
	)

	BookingConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assistant_booking_conflicts_total",
			Help: "Bookings rejected because the slot was taken",
		},
	)

	ActiveTurns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assistant_turns_active",
			Help: "Number of turns in progress",
		},
	)
)
