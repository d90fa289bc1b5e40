package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"finsync/internal/core"
	"finsync/internal/log"
)

const syncRunColumns = `id, user_id, account_id, trigger_kind, status, transactions_synced, new_count,
	updated_count, errors, started_at, completed_at, error_message`

// CreateSyncRun inserts the run as in_progress.
func (r *SQLiteRepository) CreateSyncRun(ctx context.Context, run *core.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = r.now().UTC()
	}
	if run.Trigger == "" {
		run.Trigger = core.TriggerManual
	}
	run.Status = core.SyncInProgress

	_, err := r.db.ExecContext(ctx, `INSERT INTO sync_runs (id, user_id, account_id, trigger_kind, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.UserID, run.AccountID, string(run.Trigger), string(run.Status), formatTime(run.StartedAt))
	if err != nil {
		return wrapErr("create sync run", err)
	}
	r.logger.DebugContext(ctx, "Sync run created", log.FieldRunID, run.ID, log.FieldAccountID, run.AccountID)
	return nil
}

// CompleteSyncRun writes the terminal state. It only touches runs still in
// progress, so a run can be finalized once; a second call fails with
// RUN_FINALIZED.
func (r *SQLiteRepository) CompleteSyncRun(ctx context.Context, run *core.SyncRun) error {
	if !run.Status.Terminal() {
		return fmt.Errorf("complete sync run %s: status %q is not terminal", run.ID, run.Status)
	}
	if run.CompletedAt == nil {
		return fmt.Errorf("complete sync run %s: missing completion time", run.ID)
	}
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	encoded, err := encodeJSON(errs)
	if err != nil {
		return fmt.Errorf("encode run errors: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `UPDATE sync_runs
		SET status = ?, transactions_synced = ?, new_count = ?, updated_count = ?, errors = ?,
		    completed_at = ?, error_message = ?
		WHERE id = ? AND status = 'in_progress'`,
		string(run.Status), run.TransactionsSynced, run.NewCount, run.UpdatedCount, encoded,
		formatTime(*run.CompletedAt), nullString(run.ErrorMessage), run.ID)
	if err != nil {
		return wrapErr("complete sync run", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NewError(core.KindConflict, core.CodeRunFinalized, "sync run "+run.ID+" is already finalized")
	}
	return nil
}

func scanSyncRun(s scanner) (core.SyncRun, error) {
	var (
		run                   core.SyncRun
		trigger, status, errs string
		started               string
		completed, errorMsg   sql.NullString
	)
	if err := s.Scan(&run.ID, &run.UserID, &run.AccountID, &trigger, &status, &run.TransactionsSynced,
		&run.NewCount, &run.UpdatedCount, &errs, &started, &completed, &errorMsg); err != nil {
		return run, err
	}
	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return run, fmt.Errorf("sync run %s started_at: %w", run.ID, err)
	}
	if run.CompletedAt, err = parseNullTime(completed); err != nil {
		return run, fmt.Errorf("sync run %s completed_at: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(errs), &run.Errors); err != nil {
		return run, fmt.Errorf("sync run %s errors: %w", run.ID, err)
	}
	run.Trigger = core.TriggerKind(trigger)
	run.Status = core.SyncStatus(status)
	run.ErrorMessage = stringPtr(errorMsg)
	return run, nil
}

func (r *SQLiteRepository) GetSyncRun(ctx context.Context, id string) (*core.SyncRun, error) {
	run, err := scanSyncRun(r.db.QueryRowContext(ctx, `SELECT `+syncRunColumns+` FROM sync_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewError(core.KindNotFound, core.CodeRunNotFound, "sync run not found")
	}
	if err != nil {
		return nil, wrapErr("get sync run", err)
	}
	return &run, nil
}

// ListSyncRuns returns an account's run history, newest first.
func (r *SQLiteRepository) ListSyncRuns(ctx context.Context, userID, accountID string, limit int) ([]core.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+syncRunColumns+` FROM sync_runs
		WHERE user_id = ? AND account_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, userID, accountID, limit)
	if err != nil {
		return nil, wrapErr("list sync runs", err)
	}
	defer rows.Close()

	var out []core.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, wrapErr("scan sync run", err)
		}
		out = append(out, run)
	}
	return out, wrapErr("list sync runs", rows.Err())
}
