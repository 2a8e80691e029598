package db

import "time"

// Connection pool defaults.
const (
	defaultMaxConns          = 10
	defaultMinConns          = 2
	defaultMaxConnIdleTime   = 5 * time.Minute
	defaultMaxConnLifetime   = time.Hour
	defaultHealthCheckPeriod = time.Minute

	maxConnectionRetries = 5
	connectionRetrySleep = 2 * time.Second
)

// ProcessedItem lifecycle statuses.
const (
	StatusPending   = "pending"
	StatusReady     = "ready"
	StatusPublished = "published"
	StatusRejected  = "rejected"
	StatusArchived  = "archived"
)

// Work queue names.
const (
	QueueProcess = "process"
	QueuePublish = "publish"
)
