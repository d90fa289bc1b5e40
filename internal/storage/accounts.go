package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finsync/internal/core"
	"finsync/internal/log"
)

const accountColumns = `id, user_id, name, kind, institution, balance, bank_account_id, momo_phone,
	momo_reference_id, sync_frequency, last_synced_at, is_active`

func scanAccount(s scanner) (core.LinkedAccount, error) {
	var (
		a                        core.LinkedAccount
		kind, balance, frequency string
		bankID, phone, reference sql.NullString
		lastSynced               sql.NullString
		active                   int
	)
	if err := s.Scan(&a.ID, &a.UserID, &a.Name, &kind, &a.Institution, &balance, &bankID, &phone,
		&reference, &frequency, &lastSynced, &active); err != nil {
		return a, err
	}
	bal, err := decimal.NewFromString(balance)
	if err != nil {
		return a, fmt.Errorf("account %s balance: %w", a.ID, err)
	}
	last, err := parseNullTime(lastSynced)
	if err != nil {
		return a, fmt.Errorf("account %s last_synced_at: %w", a.ID, err)
	}
	a.Kind = core.AccountKind(kind)
	a.Balance = bal
	a.BankAccountID = bankID.String
	a.MoMoPhone = phone.String
	a.MoMoReferenceID = reference.String
	a.SyncFrequency = core.SyncFrequency(frequency)
	a.LastSyncedAt = last
	a.IsActive = active == 1
	return a, nil
}

// CreateAccount links a new provider account.
func (r *SQLiteRepository) CreateAccount(ctx context.Context, a *core.LinkedAccount) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := r.timestamp()
	var last sql.NullString
	if a.LastSyncedAt != nil {
		last = sql.NullString{String: formatTime(*a.LastSyncedAt), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO linked_accounts (`+accountColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, string(a.Kind), a.Institution, a.Balance.String(),
		nullIfEmpty(a.BankAccountID), nullIfEmpty(a.MoMoPhone), nullIfEmpty(a.MoMoReferenceID),
		string(a.Frequency()), last, boolInt(a.IsActive), now, now)
	if err != nil {
		return wrapErr("create account", err)
	}
	r.logger.InfoContext(ctx, "Linked account created", log.FieldAccountID, a.ID, log.FieldUserID, a.UserID, "kind", a.Kind)
	return nil
}

// GetActiveAccount returns the account when it exists, belongs to userID and
// is active; anything else is ACCOUNT_NOT_FOUND.
func (r *SQLiteRepository) GetActiveAccount(ctx context.Context, userID, accountID string) (*core.LinkedAccount, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM linked_accounts
		WHERE id = ? AND user_id = ? AND is_active = 1`, accountID, userID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewError(core.KindAccountState, core.CodeAccountNotFound, "account not found")
	}
	if err != nil {
		return nil, wrapErr("get account", err)
	}
	return &a, nil
}

// ListActiveAccounts returns every active account, least recently synced first.
func (r *SQLiteRepository) ListActiveAccounts(ctx context.Context) ([]core.LinkedAccount, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM linked_accounts
		WHERE is_active = 1
		ORDER BY last_synced_at IS NOT NULL, last_synced_at, id`)
	if err != nil {
		return nil, wrapErr("list accounts", err)
	}
	defer rows.Close()

	var out []core.LinkedAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, wrapErr("list accounts", rows.Err())
}

// UpdateAccountSyncState stores the provider balance and the sync time.
func (r *SQLiteRepository) UpdateAccountSyncState(ctx context.Context, accountID string, balance decimal.Decimal, institution string, syncedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE linked_accounts
		SET balance = ?, institution = CASE WHEN ? <> '' THEN ? ELSE institution END,
		    last_synced_at = ?, updated_at = ?
		WHERE id = ?`,
		balance.String(), institution, institution, formatTime(syncedAt), r.timestamp(), accountID)
	if err != nil {
		return wrapErr("update account sync state", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NewError(core.KindAccountState, core.CodeAccountNotFound, "account not found")
	}
	return nil
}

// DeactivateAccount stops syncing an account without deleting its history.
func (r *SQLiteRepository) DeactivateAccount(ctx context.Context, userID, accountID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE linked_accounts SET is_active = 0, updated_at = ?
		WHERE id = ? AND user_id = ?`, r.timestamp(), accountID, userID)
	if err != nil {
		return wrapErr("deactivate account", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NewError(core.KindAccountState, core.CodeAccountNotFound, "account not found")
	}
	return nil
}
