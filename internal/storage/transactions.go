package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finsync/internal/core"
)

const transactionColumns = `id, user_id, account_id, amount, type, category_id, description, date,
	provider, provider_tx_id, provider_status, metadata, auto_categorized, confidence, sync_run_id,
	created_at, updated_at`

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                                  core.Transaction
		accountID, categoryID, providerTx  sql.NullString
		syncRun                            sql.NullString
		amount, kind, date, provider, meta string
		created, updated                   string
		auto                               int
		confidence                         sql.NullFloat64
	)
	if err := s.Scan(&t.ID, &t.UserID, &accountID, &amount, &kind, &categoryID, &t.Description, &date,
		&provider, &providerTx, &t.ProviderStatus, &meta, &auto, &confidence, &syncRun,
		&created, &updated); err != nil {
		return t, err
	}

	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return t, fmt.Errorf("transaction %s amount: %w", t.ID, err)
	}
	if t.Date, err = parseTime(date); err != nil {
		return t, fmt.Errorf("transaction %s date: %w", t.ID, err)
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return t, fmt.Errorf("transaction %s created_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return t, fmt.Errorf("transaction %s updated_at: %w", t.ID, err)
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &t.Metadata); err != nil {
			return t, fmt.Errorf("transaction %s metadata: %w", t.ID, err)
		}
	}

	t.AccountID = stringPtr(accountID)
	t.CategoryID = stringPtr(categoryID)
	t.ProviderTxID = stringPtr(providerTx)
	t.SyncRunID = stringPtr(syncRun)
	t.Type = core.TransactionType(kind)
	t.Provider = core.AccountKind(provider)
	t.AutoCategorized = auto == 1
	if confidence.Valid {
		c := confidence.Float64
		t.Confidence = &c
	}
	return t, nil
}

func confidenceArg(c *float64) sql.NullFloat64 {
	if c == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *c, Valid: true}
}

func txNotFound() error {
	return core.NewError(core.KindNotFound, core.CodeTxNotFound, "transaction not found")
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (*core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, txNotFound()
	}
	if err != nil {
		return nil, wrapErr("get transaction", err)
	}
	return &t, nil
}

// FindTransactionByProviderID is the sync deduplication lookup: an exact
// match on owner, provider and provider transaction id. Returns nil, nil
// when absent.
func (r *SQLiteRepository) FindTransactionByProviderID(ctx context.Context, userID string, provider core.AccountKind, providerTxID string) (*core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ? AND provider = ? AND provider_tx_id = ?`, userID, string(provider), providerTxID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("find transaction by provider id", err)
	}
	return &t, nil
}

// InsertTransaction stores a new row, synced or manual.
func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t *core.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	meta, err := encodeJSON(t.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	now := r.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err = r.db.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`, is_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, nullString(t.AccountID), t.Amount.String(), string(t.Type), nullString(t.CategoryID),
		t.Description, formatTime(t.Date), string(t.Provider), nullString(t.ProviderTxID), t.ProviderStatus,
		meta, boolInt(t.AutoCategorized), confidenceArg(t.Confidence), nullString(t.SyncRunID),
		formatTime(now), formatTime(now), boolInt(t.IsSynced()))
	if err != nil {
		return wrapErr("insert transaction", err)
	}
	return nil
}

// UpdateSyncedTransaction rewrites the provider-owned and categorization
// fields of an existing synced row.
func (r *SQLiteRepository) UpdateSyncedTransaction(ctx context.Context, t *core.Transaction) error {
	meta, err := encodeJSON(t.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	now := r.now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE transactions
		SET amount = ?, type = ?, description = ?, date = ?, category_id = ?, provider_status = ?,
		    metadata = ?, auto_categorized = ?, confidence = ?, sync_run_id = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND provider_tx_id IS NOT NULL`,
		t.Amount.String(), string(t.Type), t.Description, formatTime(t.Date), nullString(t.CategoryID),
		t.ProviderStatus, meta, boolInt(t.AutoCategorized), confidenceArg(t.Confidence), nullString(t.SyncRunID),
		formatTime(now), t.ID, t.UserID)
	if err != nil {
		return wrapErr("update synced transaction", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return txNotFound()
	}
	t.UpdatedAt = now
	return nil
}

// UpdateTransactionCategory records a user-chosen category: the row is no
// longer auto-categorized and its confidence is cleared.
func (r *SQLiteRepository) UpdateTransactionCategory(ctx context.Context, userID, id, categoryID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions
		SET category_id = ?, auto_categorized = 0, confidence = NULL, updated_at = ?
		WHERE id = ? AND user_id = ?`, categoryID, r.timestamp(), id, userID)
	if err != nil {
		return wrapErr("update transaction category", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return txNotFound()
	}
	return nil
}

// UpdateManualTransaction edits a row that did not come from a provider.
func (r *SQLiteRepository) UpdateManualTransaction(ctx context.Context, t *core.Transaction) error {
	now := r.now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE transactions
		SET amount = ?, type = ?, category_id = ?, description = ?, date = ?,
		    auto_categorized = 0, confidence = NULL, updated_at = ?
		WHERE id = ? AND user_id = ? AND provider_tx_id IS NULL`,
		t.Amount.String(), string(t.Type), nullString(t.CategoryID), t.Description, formatTime(t.Date),
		formatTime(now), t.ID, t.UserID)
	if err != nil {
		return wrapErr("update transaction", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return txNotFound()
	}
	t.UpdatedAt = now
	return nil
}

// DeleteTransaction removes a manual row. Synced rows are never deleted here.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions
		WHERE id = ? AND user_id = ? AND provider_tx_id IS NULL`, id, userID)
	if err != nil {
		return wrapErr("delete transaction", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return txNotFound()
	}
	return nil
}

// FindSimilarTransactions returns the owner's most recent categorized rows
// whose description contains word.
func (r *SQLiteRepository) FindSimilarTransactions(ctx context.Context, userID, word string, limit int) ([]core.Transaction, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, nil
	}
	pattern := "%" + escapeLike(strings.ToLower(word)) + "%"
	rows, err := r.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ? AND category_id IS NOT NULL AND lower(description) LIKE ? ESCAPE '\'
		ORDER BY date DESC
		LIMIT ?`, userID, pattern, limit)
	if err != nil {
		return nil, wrapErr("find similar transactions", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListAccountTransactions returns an account's rows, newest first.
func (r *SQLiteRepository) ListAccountTransactions(ctx context.Context, userID, accountID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ? AND account_id = ?
		ORDER BY date DESC, id`, userID, accountID)
	if err != nil {
		return nil, wrapErr("list account transactions", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, wrapErr("scan transaction", err)
		}
		out = append(out, t)
	}
	return out, wrapErr("read transactions", rows.Err())
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
