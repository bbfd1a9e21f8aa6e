// Package metrics holds the Prometheus collectors shared by the wardflow binaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardflow_events_triggered_total",
			Help: "Workflow events durably appended to the audit log",
		},
		[]string{"event_type"},
	)

	DispatchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wardflow_dispatch_failures_total",
			Help: "Trigger calls rejected because the audit append failed",
		},
	)

	RulesMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardflow_rules_matched_total",
			Help: "Rules whose conditions matched a workflow event",
		},
		[]string{"event_type"},
	)

	ActionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardflow_action_outcomes_total",
			Help: "Executed actions by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	EventProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wardflow_event_processing_duration_seconds",
			Help:    "Time from rule loading to processed_at for one event",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	EventsRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wardflow_events_recovered_total",
			Help: "Unprocessed events re-dispatched by the recovery sweep",
		},
	)

	NotificationsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardflow_notifications_applied_total",
			Help: "Change notifications reconciled into local caches",
		},
		[]string{"entity_type", "operation"},
	)

	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardflow_notifications_dropped_total",
			Help: "Change notifications discarded before reaching a consumer",
		},
		[]string{"reason"},
	)

	ChannelReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wardflow_channel_reconnects_total",
			Help: "Reconnect attempts scheduled by the subscription multiplexer",
		},
	)

	ChannelsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wardflow_channels_open",
			Help: "Tenant change channels currently held open",
		},
	)
)
