package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"finsync/internal/core"
)

// Store is the persistence the sync orchestrator needs.
type Store interface {
	GetActiveAccount(ctx context.Context, userID, accountID string) (*core.LinkedAccount, error)
	UpdateAccountSyncState(ctx context.Context, accountID string, balance decimal.Decimal, institution string, syncedAt time.Time) error

	FindTransactionByProviderID(ctx context.Context, userID string, provider core.AccountKind, providerTxID string) (*core.Transaction, error)
	InsertTransaction(ctx context.Context, t *core.Transaction) error
	UpdateSyncedTransaction(ctx context.Context, t *core.Transaction) error

	CreateSyncRun(ctx context.Context, run *core.SyncRun) error
	CompleteSyncRun(ctx context.Context, run *core.SyncRun) error
	ListSyncRuns(ctx context.Context, userID, accountID string, limit int) ([]core.SyncRun, error)
}

// Notifier announces finished sync runs.
type Notifier interface {
	NotifySyncCompleted(ctx context.Context, run core.SyncRun, account core.LinkedAccount) error
}

// AccountLister feeds the scheduler.
type AccountLister interface {
	ListActiveAccounts(ctx context.Context) ([]core.LinkedAccount, error)
}

// AccountSyncer runs one account sync. *SyncService implements it.
type AccountSyncer interface {
	SyncAccount(ctx context.Context, userID, accountID string, opts SyncOptions) (core.SyncOutcome, error)
}
