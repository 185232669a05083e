package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerDriftCheck replays the movement log against the stock ledger.
	TaskLedgerDriftCheck = "ledger:drift_check"
	// TaskReportsWarmup precomputes the default reports into the cache.
	TaskReportsWarmup = "reports:warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// DriftCheckPayload selects between a read-only check and a repair.
type DriftCheckPayload struct {
	Repair      bool   `json:"repair"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// NewDriftCheckTask constructs an Asynq task for a ledger drift check.
func NewDriftCheckTask(payload DriftCheckPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerDriftCheck, body, asynq.Queue(QueueDefault)), nil
}

// ReportsWarmupPayload carries scheduling metadata.
type ReportsWarmupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReportsWarmupTask constructs an Asynq task for the report cache warmup.
func NewReportsWarmupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReportsWarmupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask constructs an Asynq task pruning idempotency keys.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}
