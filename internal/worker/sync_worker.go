// Package worker handles sync requests delivered over AMQP.
package worker

import (
	"context"
	"fmt"

	"finsync/internal/amqp"
	"finsync/internal/core"
	"finsync/internal/log"
	"finsync/internal/services"
)

// SyncWorker runs queued account syncs.
type SyncWorker struct {
	syncer services.AccountSyncer
	logger *log.Logger
}

func NewSyncWorker(syncer services.AccountSyncer, logger *log.Logger) *SyncWorker {
	return &SyncWorker{
		syncer: syncer,
		logger: log.Or(logger, log.ComponentWorker),
	}
}

// HandleSyncRequest runs one queued sync. A returned error asks the consumer
// to requeue the message; failures a retry cannot fix are logged and
// acknowledged.
func (w *SyncWorker) HandleSyncRequest(ctx context.Context, msg *amqp.SyncRequestMessage) error {
	logger := w.logger.With(log.FieldUserID, msg.UserID, log.FieldAccountID, msg.AccountID)
	logger.InfoContext(ctx, "Processing sync request", "queued_at", msg.Timestamp)

	trigger := msg.Trigger
	if trigger == "" {
		trigger = core.TriggerQueued
	}
	outcome, err := w.syncer.SyncAccount(ctx, msg.UserID, msg.AccountID, services.SyncOptions{
		Range:   msg.Range(),
		Trigger: trigger,
	})
	if err != nil {
		if !retryable(err) {
			logger.WarnContext(ctx, "Dropping sync request",
				log.FieldErrorCode, core.CodeOf(err), log.FieldError, err)
			return nil
		}
		return fmt.Errorf("sync account %s: %w", msg.AccountID, err)
	}

	logger.InfoContext(ctx, "Sync request completed",
		log.FieldRunID, outcome.RunID,
		log.FieldTransactions, outcome.TotalTransactions,
		"new", outcome.NewTransactions,
		"updated", outcome.UpdatedTransactions,
		"failed", len(outcome.Errors))
	return nil
}

// retryable reports whether running the same request again could succeed.
func retryable(err error) bool {
	switch core.CodeOf(err) {
	case core.CodeProviderNetwork, core.CodeProviderTimeout:
		return true
	case core.CodeInternal:
		return true
	}
	return core.IsTransient(err)
}
