package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"finsync/internal/categorize"
	"finsync/internal/core"
	"finsync/internal/log"
	"finsync/internal/provider"
	"finsync/internal/provider/memory"
	"finsync/internal/storage"
)

const (
	testUser  = "user-1"
	testPhone = "233241234567"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo    *storage.SQLiteRepository
	momo    *memory.Adapter
	bank    *memory.Adapter
	svc     *SyncService
	account *core.LinkedAccount
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "finsync.db"), log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	f := &fixture{
		repo: repo,
		momo: memory.New(core.AccountMobileMoney),
		bank: memory.New(core.AccountBank),
	}
	f.svc = newSyncService(repo, provider.NewRegistry(f.momo, f.bank), repo)

	f.account = &core.LinkedAccount{
		ID:        "acc-1",
		UserID:    testUser,
		Name:      "Wallet",
		Kind:      core.AccountMobileMoney,
		MoMoPhone: testPhone,
		IsActive:  true,
	}
	require.NoError(t, repo.CreateAccount(context.Background(), f.account))
	return f
}

func newSyncService(store Store, providers provider.Registry, repo *storage.SQLiteRepository) *SyncService {
	engine := categorize.NewEngine(repo, nil, log.Discard())
	resolver := categorize.NewResolver(repo, log.Discard())
	svc := NewSyncService(store, providers, engine, resolver, DefaultSyncConfig(), log.Discard())
	svc.now = func() time.Time { return testNow }
	return svc
}

func momoTx(id, description, amount string, dir core.TransactionType, day int) provider.RawSyncedTransaction {
	return provider.RawSyncedTransaction{
		ProviderTxID: id,
		Amount:       decimal.RequireFromString(amount),
		Direction:    dir,
		OccurredAt:   time.Date(2024, 3, day, 9, 30, 0, 0, time.UTC),
		Description:  description,
		Counterparty: "MSISDN:233200000001",
		StatusCode:   "SUCCESSFUL",
		Metadata:     map[string]string{core.MetaCurrency: "GHS"},
	}
}

func (f *fixture) serve(txs ...provider.RawSyncedTransaction) {
	f.momo.SetAccount(testPhone, provider.AccountSnapshot{
		Balance:     decimal.RequireFromString("310.25"),
		Currency:    "GHS",
		Institution: "MTN MoMo",
	}, txs...)
}

func threeTransactions() []provider.RawSyncedTransaction {
	return []provider.RawSyncedTransaction{
		momoTx("tx-a", "UBER TRIP 4521", "25.00", core.Expense, 1),
		momoTx("tx-b", "Payment to Shoprite", "80.40", core.Expense, 3),
		momoTx("tx-c", "Salary March", "1500.00", core.Income, 5),
	}
}

func TestSyncAccount_NewTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.serve(threeTransactions()...)

	outcome, err := f.svc.SyncAccount(ctx, testUser, "acc-1", SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, outcome.TotalTransactions)
	require.Equal(t, 3, outcome.NewTransactions)
	require.Equal(t, 0, outcome.UpdatedTransactions)
	require.Empty(t, outcome.Errors)
	require.NotEmpty(t, outcome.RunID)

	for _, id := range []string{"tx-a", "tx-b", "tx-c"} {
		tx, err := f.repo.FindTransactionByProviderID(ctx, testUser, core.AccountMobileMoney, id)
		require.NoError(t, err)
		require.NotNil(t, tx, id)
		require.True(t, tx.IsSynced())
		require.True(t, tx.AutoCategorized)
		require.NotNil(t, tx.CategoryID)
		require.True(t, tx.Amount.IsPositive())
		require.Equal(t, outcome.RunID, *tx.SyncRunID)
	}

	uber, err := f.repo.FindTransactionByProviderID(ctx, testUser, core.AccountMobileMoney, "tx-a")
	require.NoError(t, err)
	require.Equal(t, core.Expense, uber.Type)
	require.Equal(t, "cat-transport", *uber.CategoryID)

	salary, err := f.repo.FindTransactionByProviderID(ctx, testUser, core.AccountMobileMoney, "tx-c")
	require.NoError(t, err)
	require.Equal(t, core.Income, salary.Type)

	acct, err := f.repo.GetActiveAccount(ctx, testUser, "acc-1")
	require.NoError(t, err)
	require.True(t, acct.Balance.Equal(decimal.RequireFromString("310.25")))
	require.Equal(t, "MTN MoMo", acct.Institution)
	require.NotNil(t, acct.LastSyncedAt)

	runs, err := f.svc.ListSyncRuns(ctx, testUser, "acc-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, core.SyncSuccess, runs[0].Status)
	require.Equal(t, core.TriggerManual, runs[0].Trigger)
	require.Equal(t, 3, runs[0].TransactionsSynced)
	require.Equal(t, 3, runs[0].NewCount)
	require.NotNil(t, runs[0].CompletedAt)
}

func TestSyncAccount_ResyncUpdatesChangedOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.serve(threeTransactions()...)

	_, err := f.svc.SyncAccount(ctx, testUser, "acc-1", SyncOptions{})
	require.NoError(t, err)

	changed := momoTx("tx-b", "Payment to Shoprite Osu", "80.40", core.Expense, 3)
	f.serve(momoTx("tx-a", "UBER TRIP 4521", "25.00", core.Expense, 1), changed)

	outcome, err := f.svc.SyncAccount(ctx, testUser, "acc-1", SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, outcome.TotalTransactions)
	require.Equal(t, 0, outcome.NewTransactions)
	require.Equal(t, 1, outcome.UpdatedTransactions)

	txB, err := f.repo.FindTransactionByProviderID(ctx, testUser, core.AccountMobileMoney, "tx-b")
	require.NoError(t, err)
	require.Equal(t, "Payment to Shoprite Osu", txB.Description)
	require.Equal(t, outcome.RunID, *txB.SyncRunID)

	txC, err := f.repo.FindTransactionByProviderID(ctx, testUser, core.AccountMobileMoney, "tx-c")
	require.NoError(t, err)
	require.NotNil(t, txC, "rows outside the window are never deleted")

	rows, err := f.repo.ListAccountTransactions(ctx, testUser, "acc-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestSyncAccount_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.serve(threeTransactions()...)

	_, err := f.svc.SyncAccount(ctx, testUser, "acc-1", SyncOptions{})
	require.NoError(t, err)
	before, err := f.repo.ListAccountTransactions(ctx, testUser, "acc-1")
	require.NoError(t, err)

	outcome, err := f.svc.SyncAccount(ctx, testUser, "acc-1", SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, outcome.TotalTransactions)
	require.Equal(t, 0, outcome.NewTransactions)
	require.Equal(t, 0, outcome.UpdatedTransactions)

	after, err := f.repo.ListAccountTransactions(ctx, testUser, "acc-1")
	require.NoError(t, err)
	require.Len(t, after, len(before))
	byID := make(map[string]core.Transaction, len(before))
	for _, tx := range before {
		byID[tx.ID] = tx
	}
	for _, tx := range after {
		prev, ok := byID[tx.ID]
		require.True(t, ok)
		require.Equal(t, prev.CategoryID, tx.CategoryID)
		require.Equal(t, prev.SyncRunID, tx.SyncRunID)
		require.True(t, prev.UpdatedAt.Equal(tx.UpdatedAt))
	}
}

func TestSyncAccount_UserCorrectionSurvivesResync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.serve(threeTransactions()...)

	_, err := f.svc.SyncAccount(ctx, testUser, "acc-1", SyncOptions{})
	require.NoError(t, err)

	txB, err := f.repo.FindTransactionByProviderID(ctx, testUser, core.AccountMobileMoney, "tx-b")
	require.NoError(t, err)
	require.NoError(t, f.repo.UpdateTransactionCategory(ctx, testUser, txB.ID, "cat-shopping"))

	f.serve(momoTx("tx-b", "Payment to Shoprite Mall", "99.99", core.Expense, 3))
	outcome, err := f.svc.SyncAccount(ctx, testUser, "acc-1", SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, outcome.UpdatedTransactions)

	txB, err = f.repo.FindTransactionByProviderID(ctx, testUser, core.AccountMobileMoney, "tx-b")
	require.NoError(t, err)
	require.Equal(t, "cat-shopping", *txB.CategoryID)
	require.False(t, txB.AutoCategorized)
	require.True(t, txB.Amount.Equal(decimal.RequireFromString("99.99")))
}

// flakyStore fails or panics on selected provider ids.
type flakyStore struct {
	*storage.SQLiteRepository
	failOn  string
	panicOn string
}

func (s *flakyStore) InsertTransaction(ctx context.Context, t *core.Transaction) error {
	switch *t.ProviderTxID {
	case s.failOn:
		return errors.New("disk full")
	case s.panicOn:
		panic("boom")
	}
	return s.SQLiteRepository.InsertTransaction(ctx, t)
}

func TestSyncAccount_PartialFailureIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := &flakyStore{SQLiteRepository: f.repo, failOn: "tx-b", panicOn: "tx-c"}
	svc := newSyncService(store, provider.NewRegistry(f.momo), f.repo)

	f.serve(append(threeTransactions(), momoTx("tx-d", "Airtime top up", "10.00", core.Expense, 6))...)

	outcome, err := svc.SyncAccount(ctx, testUser, "acc-1", SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 4, outcome.TotalTransactions)
	require.Equal(t, 2, outcome.NewTransactions)
	require.Len(t, outcome.Errors, 2)
	require.True(t, strings.HasPrefix(outcome.Errors[0], "tx-b: "), outcome.Errors[0])
	require.Contains(t, outcome.Errors[0], "disk full")
	require.True(t, strings.HasPrefix(outcome.Errors[1], "tx-c: "), outcome.Errors[1])

	txD, err := f.repo.FindTransactionByProviderID(ctx, testUser, core.AccountMobileMoney, "tx-d")
	require.NoError(t, err)
	require.NotNil(t, txD, "later transactions still processed")

	run, err := f.repo.GetSyncRun(ctx, outcome.RunID)
	require.NoError(t, err)
	require.Equal(t, core.SyncSuccess, run.Status)
	require.Len(t, run.Errors, 2)
}

func TestSyncAccount_InvalidProviderRecordsIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missingID := momoTx("", "Mystery", "5.00", core.Expense, 2)
	zero := momoTx("tx-zero", "Zero", "0", core.Expense, 2)
	f.serve(missingID, zero, momoTx("tx-ok", "UBER TRIP", "12.00", core.Expense, 2))

	outcome, err := f.svc.SyncAccount(ctx, testUser, "acc-1", SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, outcome.TotalTransactions)
	require.Equal(t, 1, outcome.NewTransactions)
	require.Equal(t, []string{
		"unknown: missing provider transaction id",
		"tx-zero: amount must be positive",
	}, outcome.Errors)
}

func TestSyncAccount_AdapterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.momo.FailWith(testPhone, core.NewError(core.KindProvider, core.CodeProviderNetwork, "provider unreachable"))

	var events []ProgressEvent
	outcome, err := f.svc.SyncAccountWithProgress(ctx, testUser, "acc-1", SyncOptions{}, func(ev ProgressEvent) {
		events = append(events, ev)
	})
	require.Error(t, err)
	require.Equal(t, core.CodeProviderNetwork, core.CodeOf(err))
	require.Equal(t, 0, outcome.TotalTransactions)
	require.NotEmpty(t, outcome.RunID)

	run, err := f.repo.GetSyncRun(ctx, outcome.RunID)
	require.NoError(t, err)
	require.Equal(t, core.SyncFailed, run.Status)
	require.Equal(t, 0, run.TransactionsSynced)
	require.NotNil(t, run.ErrorMessage)
	require.NotNil(t, run.CompletedAt)

	require.Len(t, events, 2)
	require.Equal(t, StageFetching, events[0].Stage)
	require.Equal(t, StageError, events[1].Stage)
	require.Equal(t, core.CodeProviderNetwork, events[1].Code)
	require.Equal(t, "provider unreachable", events[1].Message)
}

func TestSyncAccount_PreconditionsCreateNoRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noPhone := &core.LinkedAccount{ID: "acc-2", UserID: testUser, Name: "Broken", Kind: core.AccountMobileMoney, IsActive: true}
	require.NoError(t, f.repo.CreateAccount(ctx, noPhone))
	inactive := &core.LinkedAccount{ID: "acc-3", UserID: testUser, Name: "Closed", Kind: core.AccountMobileMoney, MoMoPhone: "233240000000", IsActive: false}
	require.NoError(t, f.repo.CreateAccount(ctx, inactive))

	bankOnly := &core.LinkedAccount{ID: "acc-4", UserID: testUser, Name: "Bank", Kind: core.AccountBank, BankAccountID: "b-1", IsActive: true}
	require.NoError(t, f.repo.CreateAccount(ctx, bankOnly))
	momoOnly := newSyncService(f.repo, provider.NewRegistry(f.momo), f.repo)

	backwards := core.DateRange{From: testNow, To: testNow.AddDate(0, 0, -1)}

	tests := []struct {
		name      string
		svc       *SyncService
		userID    string
		accountID string
		opts      SyncOptions
		wantCode  string
	}{
		{"unknown account", f.svc, testUser, "nope", SyncOptions{}, core.CodeAccountNotFound},
		{"other user's account", f.svc, "user-2", "acc-1", SyncOptions{}, core.CodeAccountNotFound},
		{"inactive account", f.svc, testUser, "acc-3", SyncOptions{}, core.CodeAccountNotFound},
		{"missing phone", f.svc, testUser, "acc-2", SyncOptions{}, core.CodeInvalidAccount},
		{"no adapter for kind", momoOnly, testUser, "acc-4", SyncOptions{}, core.CodeInvalidAccount},
		{"backwards range", f.svc, testUser, "acc-1", SyncOptions{Range: &backwards}, core.CodeInvalidDateRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events []ProgressEvent
			_, err := tt.svc.SyncAccountWithProgress(ctx, tt.userID, tt.accountID, tt.opts, func(ev ProgressEvent) {
				events = append(events, ev)
			})
			require.Error(t, err)
			require.Equal(t, tt.wantCode, core.CodeOf(err))
			require.Len(t, events, 1)
			require.Equal(t, StageError, events[0].Stage)

			runs, err := f.repo.ListSyncRuns(ctx, testUser, tt.accountID, 10)
			require.NoError(t, err)
			require.Empty(t, runs)
		})
	}
	require.Empty(t, f.momo.Calls())
	require.Empty(t, f.bank.Calls())
}

func TestSyncAccount_ProgressOrder(t *testing.T) {
	f := newFixture(t)
	f.serve(threeTransactions()...)

	var stages []Stage
	var last ProgressEvent
	_, err := f.svc.SyncAccountWithProgress(context.Background(), testUser, "acc-1", SyncOptions{}, func(ev ProgressEvent) {
		stages = append(stages, ev.Stage)
		last = ev
	})
	require.NoError(t, err)
	require.Equal(t, []Stage{StageFetching, StageStoring, StageCompleted}, stages)
	require.Equal(t, "Synced 3 transactions from MTN MoMo", last.Message)
	require.Equal(t, 3, last.TransactionCount)
	require.Equal(t, "MTN MoMo", last.Institution)
}

func TestSyncAccount_ExplicitRange(t *testing.T) {
	f := newFixture(t)
	f.serve(threeTransactions()...)

	window := core.DateRange{
		From: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
	}
	outcome, err := f.svc.SyncAccount(context.Background(), testUser, "acc-1", SyncOptions{Range: &window})
	require.NoError(t, err)
	require.Equal(t, 1, outcome.TotalTransactions)

	calls := f.momo.Calls()
	require.Len(t, calls, 1)
	require.True(t, calls[0].From.Equal(window.From))
	require.True(t, calls[0].To.Equal(window.To))
	require.Equal(t, testPhone, calls[0].Ref.Phone)
}

func TestSyncAccount_InProgress(t *testing.T) {
	f := newFixture(t)
	f.serve(threeTransactions()...)

	release, err := f.svc.Guard().TryAcquire("acc-1")
	require.NoError(t, err)

	_, err = f.svc.SyncAccount(context.Background(), testUser, "acc-1", SyncOptions{})
	require.Equal(t, core.CodeSyncInProgress, core.CodeOf(err))

	release()
	_, err = f.svc.SyncAccount(context.Background(), testUser, "acc-1", SyncOptions{})
	require.NoError(t, err)
}

func TestSyncAccount_CompletesAfterCallerCancels(t *testing.T) {
	f := newFixture(t)
	f.serve(threeTransactions()...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := f.svc.SyncAccount(ctx, testUser, "acc-1", SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, outcome.NewTransactions)

	run, err := f.repo.GetSyncRun(context.Background(), outcome.RunID)
	require.NoError(t, err)
	require.Equal(t, core.SyncSuccess, run.Status)
}

type recorder struct {
	mu       sync.Mutex
	runs     []core.SyncRun
	accounts []core.LinkedAccount
	err      error
}

func (r *recorder) record(run core.SyncRun, account core.LinkedAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	r.accounts = append(r.accounts, account)
	return r.err
}

func (r *recorder) NotifySyncCompleted(_ context.Context, run core.SyncRun, account core.LinkedAccount) error {
	return r.record(run, account)
}

func (r *recorder) ExportRun(_ context.Context, run core.SyncRun, account core.LinkedAccount) error {
	return r.record(run, account)
}

func TestSyncAccount_NotifiesAndExports(t *testing.T) {
	f := newFixture(t)
	f.serve(threeTransactions()...)

	notifier := &recorder{err: errors.New("broker down")}
	exporter := &recorder{err: errors.New("sheets quota")}
	f.svc.WithNotifier(notifier).WithExporter(exporter)

	outcome, err := f.svc.SyncAccount(context.Background(), testUser, "acc-1", SyncOptions{Trigger: core.TriggerQueued})
	require.NoError(t, err, "publish and export failures are not sync failures")

	for _, r := range []*recorder{notifier, exporter} {
		require.Len(t, r.runs, 1)
		require.Equal(t, outcome.RunID, r.runs[0].ID)
		require.Equal(t, core.SyncSuccess, r.runs[0].Status)
		require.Equal(t, core.TriggerQueued, r.runs[0].Trigger)
		require.Equal(t, "acc-1", r.accounts[0].ID)
	}
}

func TestMaskPhone(t *testing.T) {
	require.Equal(t, "********4567", maskPhone("233241234567"))
	require.Equal(t, "123", maskPhone("123"))
}

func TestSyncAccount_SharedProviderIDAcrossAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bankAcct := &core.LinkedAccount{
		ID:            "acc-bank",
		UserID:        testUser,
		Name:          "Checking",
		Kind:          core.AccountBank,
		BankAccountID: "chk-1",
		IsActive:      true,
	}
	require.NoError(t, f.repo.CreateAccount(ctx, bankAcct))
	f.bank.SetAccount("chk-1", provider.AccountSnapshot{Balance: decimal.RequireFromString("2000"), Institution: "Demo Bank"},
		provider.RawSyncedTransaction{
			ProviderTxID: "1001",
			Amount:       decimal.RequireFromString("1500.00"),
			Direction:    core.Income,
			OccurredAt:   time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC),
			Description:  "Salary March",
		})
	_, err := f.svc.SyncAccount(ctx, testUser, "acc-bank", SyncOptions{})
	require.NoError(t, err)

	f.serve(momoTx("1001", "Airtime top up", "5.00", core.Expense, 6))
	outcome, err := f.svc.SyncAccount(ctx, testUser, "acc-1", SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, outcome.NewTransactions)
	require.Equal(t, 0, outcome.UpdatedTransactions)

	salary, err := f.repo.FindTransactionByProviderID(ctx, testUser, core.AccountBank, "1001")
	require.NoError(t, err)
	require.Equal(t, "acc-bank", *salary.AccountID)
	require.Equal(t, core.Income, salary.Type)
	require.True(t, salary.Amount.Equal(decimal.RequireFromString("1500")))

	airtime, err := f.repo.FindTransactionByProviderID(ctx, testUser, core.AccountMobileMoney, "1001")
	require.NoError(t, err)
	require.Equal(t, "acc-1", *airtime.AccountID)
	require.Equal(t, core.Expense, airtime.Type)

	// A second wallet at the same provider reporting the same id must not
	// take over the first wallet's row.
	second := &core.LinkedAccount{
		ID:        "acc-2",
		UserID:    testUser,
		Name:      "Second wallet",
		Kind:      core.AccountMobileMoney,
		MoMoPhone: "233240000002",
		IsActive:  true,
	}
	require.NoError(t, f.repo.CreateAccount(ctx, second))
	f.momo.SetAccount("233240000002", provider.AccountSnapshot{Balance: decimal.RequireFromString("10")},
		momoTx("1001", "Transfer received", "9.00", core.Income, 7))
	outcome, err = f.svc.SyncAccount(ctx, testUser, "acc-2", SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 0, outcome.UpdatedTransactions)
	require.Len(t, outcome.Errors, 1)

	airtime, err = f.repo.FindTransactionByProviderID(ctx, testUser, core.AccountMobileMoney, "1001")
	require.NoError(t, err)
	require.Equal(t, "acc-1", *airtime.AccountID)
	require.Contains(t, airtime.Description, "Airtime top up")
}
