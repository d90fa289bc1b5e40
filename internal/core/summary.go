package core

import "time"

const (
	SyncInProgress SyncStatus = "in_progress"
	SyncSuccess    SyncStatus = "success"
	SyncFailed     SyncStatus = "failed"
)

const (
	TriggerManual    TriggerKind = "manual"
	TriggerScheduled TriggerKind = "scheduled"
	TriggerQueued    TriggerKind = "queued"
)

type (
	SyncStatus  string
	TriggerKind string

	// SyncRun is the audit record of a single sync attempt. It is written
	// once as in_progress and finalized exactly once.
	SyncRun struct {
		ID                 string
		UserID             string
		AccountID          string
		Trigger            TriggerKind
		Status             SyncStatus
		TransactionsSynced int
		NewCount           int
		UpdatedCount       int
		Errors             []string
		StartedAt          time.Time
		CompletedAt        *time.Time
		ErrorMessage       *string
	}

	// SyncOutcome is returned to the caller of a sync.
	SyncOutcome struct {
		RunID               string   `json:"run_id,omitempty"`
		TotalTransactions   int      `json:"total_transactions"`
		NewTransactions     int      `json:"new_transactions"`
		UpdatedTransactions int      `json:"updated_transactions"`
		Errors              []string `json:"errors"`
	}
)

func (s SyncStatus) Terminal() bool {
	return s == SyncSuccess || s == SyncFailed
}

// Finish fills the terminal fields of the run from the outcome.
func (r *SyncRun) Finish(outcome SyncOutcome, at time.Time, fatal error) {
	r.TransactionsSynced = outcome.TotalTransactions
	r.NewCount = outcome.NewTransactions
	r.UpdatedCount = outcome.UpdatedTransactions
	r.Errors = outcome.Errors
	r.CompletedAt = &at
	if fatal != nil {
		msg := fatal.Error()
		r.Status = SyncFailed
		r.ErrorMessage = &msg
		return
	}
	r.Status = SyncSuccess
	r.ErrorMessage = nil
}
