package pipeline

import "time"

// Stage cache TTLs. Analysis and rewrite outputs are pure functions of
// their prompts and can live longer; the dedup verdict goes stale as the
// archive grows, so it expires sooner.
const (
	analysisCacheTTL    = 2 * time.Hour
	translationCacheTTL = 24 * time.Hour
	rewriteCacheTTL     = 2 * time.Hour
	dedupCacheTTL       = 1 * time.Hour
)

// Retry policy for transient collaborator errors.
const (
	maxStageRetries   = 3
	initialRetryDelay = 500 * time.Millisecond
	retryMultiplier   = 2
)

// Queue redelivery policy. A failed item goes back on the queue with a
// delay; after maxQueueAttempts deliveries the entry is parked instead
// of cycling forever.
const (
	maxQueueAttempts = 5
	requeueDelay     = time.Minute
	staleClaimAge    = 10 * time.Minute
)

// Stage names, used for fingerprints, logs and metrics labels.
const (
	stageAnalysis    = "analysis"
	stageTranslation = "translation"
	stageDedup       = "dedup"
	stageRewrite     = "rewrite"
)

// Priorities from the analysis vocabulary.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Risk levels derived from risk tags.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// LLM temperatures per stage.
const (
	analysisTemperature = 0.3
	enhanceTemperature  = 0.3
	rewriteTemperature  = 0.7
)

const (
	logFieldItemID = "item_id"
	logFieldStage  = "stage"
)
