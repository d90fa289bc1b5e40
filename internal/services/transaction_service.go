package services

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finsync/internal/core"
	"finsync/internal/log"
)

// TransactionStore is the persistence behind transaction edits.
type TransactionStore interface {
	GetTransaction(ctx context.Context, userID, id string) (*core.Transaction, error)
	GetCategory(ctx context.Context, userID, id string) (*core.Category, error)
	UpdateTransactionCategory(ctx context.Context, userID, id, categoryID string) error
	UpdateManualTransaction(ctx context.Context, t *core.Transaction) error
	DeleteTransaction(ctx context.Context, userID, id string) error
}

// TransactionUpdate carries the fields a caller wants to change. Nil fields
// are left as they are.
type TransactionUpdate struct {
	Amount      *decimal.Decimal
	Type        *core.TransactionType
	CategoryID  *string
	Description *string
	Date        *time.Time
}

func (u TransactionUpdate) touchesProviderFields() bool {
	return u.Amount != nil || u.Type != nil || u.Description != nil || u.Date != nil
}

// TransactionService edits stored transactions. On rows that came from a
// provider only the category persists; other fields in the update are ignored.
type TransactionService struct {
	store  TransactionStore
	logger *log.Logger
}

func NewTransactionService(store TransactionStore, logger *log.Logger) *TransactionService {
	return &TransactionService{
		store:  store,
		logger: log.Or(logger, log.ComponentStorage),
	}
}

// UpdateTransaction applies u and returns the stored row.
func (s *TransactionService) UpdateTransaction(ctx context.Context, userID, id string, u TransactionUpdate) (*core.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if u.CategoryID != nil {
		if _, err := s.store.GetCategory(ctx, userID, *u.CategoryID); err != nil {
			return nil, err
		}
	}

	if tx.IsSynced() {
		// Only the category persists on synced rows.
		if u.touchesProviderFields() {
			s.logger.InfoContext(ctx, "Ignoring provider-owned fields on synced transaction",
				log.FieldUserID, userID, "transaction_id", id)
		}
		if u.CategoryID == nil {
			return tx, nil
		}
		if err := s.store.UpdateTransactionCategory(ctx, userID, id, *u.CategoryID); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "Synced transaction recategorized",
			log.FieldUserID, userID, "transaction_id", id, log.FieldCategory, *u.CategoryID)
		return s.store.GetTransaction(ctx, userID, id)
	}

	if u.Amount != nil {
		if !u.Amount.IsPositive() {
			return nil, core.NewError(core.KindValidation, core.CodeInvalidAmount, "amount must be positive")
		}
		tx.Amount = *u.Amount
	}
	if u.Type != nil {
		if !u.Type.Valid() {
			return nil, core.NewError(core.KindValidation, core.CodeValidation, "type must be income or expense")
		}
		tx.Type = *u.Type
	}
	if u.Description != nil {
		d := strings.TrimSpace(*u.Description)
		if d == "" {
			return nil, core.NewError(core.KindValidation, core.CodeValidation, "description is required")
		}
		tx.Description = d
	}
	if u.Date != nil {
		if u.Date.IsZero() {
			return nil, core.NewError(core.KindValidation, core.CodeValidation, "date is required")
		}
		tx.Date = u.Date.UTC()
	}
	if u.CategoryID != nil {
		tx.CategoryID = u.CategoryID
	}

	if err := s.store.UpdateManualTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return s.store.GetTransaction(ctx, userID, id)
}

// DeleteTransaction removes a manual transaction. Synced rows are refused.
func (s *TransactionService) DeleteTransaction(ctx context.Context, userID, id string) error {
	tx, err := s.store.GetTransaction(ctx, userID, id)
	if err != nil {
		return err
	}
	if tx.IsSynced() {
		return core.NewError(core.KindValidation, core.CodeValidation, "synced transactions cannot be deleted")
	}
	return s.store.DeleteTransaction(ctx, userID, id)
}
