package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"finsync/internal/core"
)

// SyncRequestMessage asks a worker to sync one account. From and To are
// optional; without them the worker uses its trailing window.
type SyncRequestMessage struct {
	UserID    string           `json:"user_id"`
	AccountID string           `json:"account_id"`
	From      *time.Time       `json:"from,omitempty"`
	To        *time.Time       `json:"to,omitempty"`
	Trigger   core.TriggerKind `json:"trigger"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewSyncRequestMessage creates a queued sync request
func NewSyncRequestMessage(userID, accountID string, window *core.DateRange) *SyncRequestMessage {
	msg := &SyncRequestMessage{
		UserID:    userID,
		AccountID: accountID,
		Trigger:   core.TriggerQueued,
		Timestamp: time.Now().UTC(),
	}
	if window != nil {
		from, to := window.From, window.To
		msg.From, msg.To = &from, &to
	}
	return msg
}

// Range returns the requested window, or nil for the default one.
func (m *SyncRequestMessage) Range() *core.DateRange {
	if m.From == nil || m.To == nil {
		return nil
	}
	return &core.DateRange{From: *m.From, To: *m.To}
}

func (m *SyncRequestMessage) Validate() error {
	var problems []string
	if strings.TrimSpace(m.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if strings.TrimSpace(m.AccountID) == "" {
		problems = append(problems, "account_id is required")
	}
	if (m.From == nil) != (m.To == nil) {
		problems = append(problems, "from and to must be given together")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *SyncRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncRequestMessageFromJSON decodes and validates a request.
func SyncRequestMessageFromJSON(data []byte) (*SyncRequestMessage, error) {
	var msg SyncRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if msg.Trigger == "" {
		msg.Trigger = core.TriggerQueued
	}
	return &msg, nil
}

// SyncCompletedMessage announces a finalized sync run.
type SyncCompletedMessage struct {
	RunID              string           `json:"run_id"`
	UserID             string           `json:"user_id"`
	AccountID          string           `json:"account_id"`
	AccountKind        core.AccountKind `json:"account_kind"`
	Trigger            core.TriggerKind `json:"trigger"`
	Status             core.SyncStatus  `json:"status"`
	TransactionsSynced int              `json:"transactions_synced"`
	NewCount           int              `json:"new_count"`
	UpdatedCount       int              `json:"updated_count"`
	ErrorCount         int              `json:"error_count"`
	ErrorMessage       string           `json:"error_message,omitempty"`
	StartedAt          time.Time        `json:"started_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	Timestamp          time.Time        `json:"timestamp"`
}

func NewSyncCompletedMessage(run core.SyncRun, account core.LinkedAccount) *SyncCompletedMessage {
	msg := &SyncCompletedMessage{
		RunID:              run.ID,
		UserID:             run.UserID,
		AccountID:          run.AccountID,
		AccountKind:        account.Kind,
		Trigger:            run.Trigger,
		Status:             run.Status,
		TransactionsSynced: run.TransactionsSynced,
		NewCount:           run.NewCount,
		UpdatedCount:       run.UpdatedCount,
		ErrorCount:         len(run.Errors),
		StartedAt:          run.StartedAt,
		CompletedAt:        run.CompletedAt,
		Timestamp:          time.Now().UTC(),
	}
	if run.ErrorMessage != nil {
		msg.ErrorMessage = *run.ErrorMessage
	}
	return msg
}

func (m *SyncCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
