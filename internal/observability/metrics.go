package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsProcessed counts pipeline outcomes per item: ready, held,
	// dropped or error.
	ItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autopost_items_processed_total",
		Help: "Pipeline items processed by outcome",
	}, []string{"outcome"})

	// StageFailures counts collaborator failures that fell to the stage
	// default after retries.
	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autopost_stage_failures_total",
		Help: "Stage failures that degraded to the conservative default",
	}, []string{"stage"})

	// StageCacheHits counts fingerprint cache hits per stage.
	StageCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autopost_stage_cache_hits_total",
		Help: "Stage cache hits by stage",
	}, []string{"stage"})

	// GateDecisions counts hold reasons and publish verdicts.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autopost_gate_decisions_total",
		Help: "Gate decisions by reason (publish or a hold reason)",
	}, []string{"reason"})

	// Publishes counts publish attempts by terminal status.
	Publishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autopost_publishes_total",
		Help: "Publish attempts by status",
	}, []string{"status"})

	// QueueDepth tracks the current length of each work queue.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autopost_queue_depth",
		Help: "Current number of pending items per queue",
	}, []string{"queue"})

	// ScheduledReleases counts scheduled posts moved to the publish queue.
	ScheduledReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopost_scheduled_releases_total",
		Help: "Scheduled posts released to the publish queue",
	})
)
