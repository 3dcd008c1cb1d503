package enums

// ProcessingEventKind classifies trace lines written during a processing run.
type ProcessingEventKind string

const (
	EventRunStarted   ProcessingEventKind = "run.started"
	EventRunCompleted ProcessingEventKind = "run.completed"
	EventRunSkipped   ProcessingEventKind = "run.skipped"
	EventRunFailed    ProcessingEventKind = "run.failed"

	EventOrderLoaded  ProcessingEventKind = "order.loaded"
	EventOwedComputed ProcessingEventKind = "offer.owed"

	EventItemsClaimed        ProcessingEventKind = "allocation.claimed"
	EventItemsReleased       ProcessingEventKind = "allocation.released"
	EventDiversityRetry      ProcessingEventKind = "allocation.diversity_retry"
	EventDiversityExhausted  ProcessingEventKind = "allocation.diversity_exhausted"
	EventInsufficientStock   ProcessingEventKind = "allocation.insufficient_inventory"
	EventRepick              ProcessingEventKind = "allocation.repick"
	EventForceRepick         ProcessingEventKind = "allocation.force_repick"
	EventCompensationApplied ProcessingEventKind = "compensation.applied"
	EventCompensationFailed  ProcessingEventKind = "compensation.failed"

	EventLinesInSync    ProcessingEventKind = "linesync.in_sync"
	EventLinesSynced    ProcessingEventKind = "linesync.applied"
	EventLineSyncFailed ProcessingEventKind = "linesync.failed"

	EventFulfillmentSkipped   ProcessingEventKind = "fulfillment.skipped"
	EventFulfillmentRelabeled ProcessingEventKind = "fulfillment.relabeled"
	EventFulfillmentMerged    ProcessingEventKind = "fulfillment.merged"
	EventFulfillmentRefused   ProcessingEventKind = "fulfillment.refused"
	EventFulfillmentFailed    ProcessingEventKind = "fulfillment.failed"
)
