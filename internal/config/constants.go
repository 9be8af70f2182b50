package config

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

const (
	JobTypeProcessWebhookEvent = "process_webhook_event"
	JobTypeDeliverWebhook      = "deliver_webhook"
)

// DeadLetterReason records why a job left the active queue.
type DeadLetterReason string

const (
	DeadLetterMaxAttempts    DeadLetterReason = "max_attempts_exceeded"
	DeadLetterUnknownJobType DeadLetterReason = "unknown_job_type"
	DeadLetterStaleClaim     DeadLetterReason = "stale_claim"
)

// DeliveryOutcome classifies a single outbound webhook attempt.
type DeliveryOutcome string

const (
	DeliverySuccess          DeliveryOutcome = "success"
	DeliveryRetryableFailure DeliveryOutcome = "retryable_failure"
	DeliveryPermanentFailure DeliveryOutcome = "permanent_failure"
)

// Permissions checked by middleware.RequirePermission before admin handlers run.
const (
	PermissionQueueRead      = "queue:read"
	PermissionQueueWrite     = "queue:write"
	PermissionDeadLetters    = "dlq:manage"
	PermissionWebhooksManage = "webhooks:manage"
)

const (
	WorkerModeOnce   = "once"
	WorkerModeLoop   = "loop"
	WorkerModeDaemon = "daemon"
)

const (
	DedupeBackendSQL   = "sql"
	DedupeBackendRedis = "redis"
)

// WildcardEvent subscribes to (or transforms) every event type.
const WildcardEvent = "*"
