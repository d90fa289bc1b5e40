package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"finsync/internal/core"
	"finsync/internal/log"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "finsync.db"), log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedAccount(t *testing.T, repo *SQLiteRepository, userID string) *core.LinkedAccount {
	t.Helper()
	acct := &core.LinkedAccount{
		UserID:        userID,
		Name:          "Checking",
		Kind:          core.AccountBank,
		Balance:       decimal.NewFromInt(100),
		BankAccountID: "bank-acc-1",
		IsActive:      true,
	}
	require.NoError(t, repo.CreateAccount(context.Background(), acct))
	return acct
}

func strPtr(s string) *string { return &s }

func TestMigrations_SeedCatalog(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cats, err := repo.ListCategories(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cats, 17)

	c, err := repo.FindCategoryByName(ctx, "user-1", "uncategorized")
	require.NoError(t, err)
	require.NotNil(t, c)
	require.True(t, c.IsGlobal())
	require.Equal(t, "help-circle", c.Icon)
}

func TestMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finsync.db")
	repo, err := NewSQLiteRepository(path, log.Discard())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	require.NoError(t, RunMigrations(DSN(path)))
	version, dirty, err := SchemaVersion(DSN(path))
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(2), version)
}

func TestAccounts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acct := seedAccount(t, repo, "user-1")

	got, err := repo.GetActiveAccount(ctx, "user-1", acct.ID)
	require.NoError(t, err)
	require.Equal(t, core.Daily, got.SyncFrequency)
	require.Nil(t, got.LastSyncedAt)
	require.True(t, got.Balance.Equal(decimal.NewFromInt(100)))

	_, err = repo.GetActiveAccount(ctx, "user-2", acct.ID)
	require.Equal(t, core.CodeAccountNotFound, core.CodeOf(err))

	syncedAt := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateAccountSyncState(ctx, acct.ID, decimal.RequireFromString("1520.75"), "First Bank", syncedAt))
	got, err = repo.GetActiveAccount(ctx, "user-1", acct.ID)
	require.NoError(t, err)
	require.Equal(t, "1520.75", got.Balance.StringFixed(2))
	require.Equal(t, "First Bank", got.Institution)
	require.True(t, got.LastSyncedAt.Equal(syncedAt))

	list, err := repo.ListActiveAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.DeactivateAccount(ctx, "user-1", acct.ID))
	_, err = repo.GetActiveAccount(ctx, "user-1", acct.ID)
	require.Equal(t, core.CodeAccountNotFound, core.CodeOf(err))
}

func TestTransactions_SyncedLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acct := seedAccount(t, repo, "user-1")

	conf := 0.7
	tx := &core.Transaction{
		UserID:          "user-1",
		AccountID:       &acct.ID,
		Amount:          decimal.RequireFromString("18.40"),
		Type:            core.Expense,
		CategoryID:      strPtr("cat-transport"),
		Description:     "UBER TRIP 4521",
		Date:            time.Date(2024, 3, 10, 8, 15, 0, 0, time.UTC),
		Provider:        core.AccountBank,
		ProviderTxID:    strPtr("b-1"),
		ProviderStatus:  "booked",
		Metadata:        map[string]string{core.MetaMerchant: "Uber Trip"},
		AutoCategorized: true,
		Confidence:      &conf,
	}
	require.NoError(t, repo.InsertTransaction(ctx, tx))
	require.NotEmpty(t, tx.ID)

	found, err := repo.FindTransactionByProviderID(ctx, "user-1", core.AccountBank, "b-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.True(t, found.IsSynced())
	require.Equal(t, "Uber Trip", found.Merchant())
	require.InDelta(t, 0.7, *found.Confidence, 1e-9)
	require.True(t, found.Date.Equal(tx.Date))

	none, err := repo.FindTransactionByProviderID(ctx, "user-2", core.AccountBank, "b-1")
	require.NoError(t, err)
	require.Nil(t, none)

	other, err := repo.FindTransactionByProviderID(ctx, "user-1", core.AccountMobileMoney, "b-1")
	require.NoError(t, err)
	require.Nil(t, other, "lookup is scoped by provider")

	dup := *tx
	dup.ID = ""
	require.Error(t, repo.InsertTransaction(ctx, &dup), "provider id must be unique per owner and provider")

	wallet := *tx
	wallet.ID = ""
	wallet.Provider = core.AccountMobileMoney
	require.NoError(t, repo.InsertTransaction(ctx, &wallet), "same id at another provider is a different transaction")

	found.Amount = decimal.RequireFromString("19.00")
	found.ProviderStatus = "settled"
	require.NoError(t, repo.UpdateSyncedTransaction(ctx, found))

	require.NoError(t, repo.UpdateTransactionCategory(ctx, "user-1", tx.ID, "cat-food"))
	got, err := repo.GetTransaction(ctx, "user-1", tx.ID)
	require.NoError(t, err)
	require.Equal(t, "19", got.Amount.String())
	require.Equal(t, "settled", got.ProviderStatus)
	require.Equal(t, "cat-food", *got.CategoryID)
	require.False(t, got.AutoCategorized)
	require.Nil(t, got.Confidence)

	require.Equal(t, core.CodeTxNotFound, core.CodeOf(repo.DeleteTransaction(ctx, "user-1", tx.ID)))
	require.Equal(t, core.CodeTxNotFound, core.CodeOf(repo.UpdateManualTransaction(ctx, got)))
}

func TestTransactions_Manual(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := &core.Transaction{
		UserID:      "user-1",
		Amount:      decimal.RequireFromString("12.00"),
		Type:        core.Expense,
		CategoryID:  strPtr("cat-groceries"),
		Description: "Shoprite Accra Mall",
		Date:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.InsertTransaction(ctx, tx))

	similar, err := repo.FindSimilarTransactions(ctx, "user-1", "shoprite", 10)
	require.NoError(t, err)
	require.Len(t, similar, 1)

	similar, err = repo.FindSimilarTransactions(ctx, "user-1", "100%", 10)
	require.NoError(t, err)
	require.Empty(t, similar)

	tx.Description = "Shoprite weekly"
	tx.Amount = decimal.RequireFromString("14.50")
	require.NoError(t, repo.UpdateManualTransaction(ctx, tx))

	got, err := repo.GetTransaction(ctx, "user-1", tx.ID)
	require.NoError(t, err)
	require.Equal(t, "Shoprite weekly", got.Description)
	require.False(t, got.IsSynced())

	require.NoError(t, repo.DeleteTransaction(ctx, "user-1", tx.ID))
	_, err = repo.GetTransaction(ctx, "user-1", tx.ID)
	require.Equal(t, core.CodeTxNotFound, core.CodeOf(err))
}

func TestCategories_CreateAndVisibility(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	owner := "user-1"
	c := &core.Category{ID: "private-1", UserID: &owner, Name: "Side Hustle", Icon: "tag"}
	require.NoError(t, repo.CreateCategory(ctx, c))

	again := &core.Category{ID: "private-2", UserID: &owner, Name: "side hustle", Icon: "tag"}
	require.NoError(t, repo.CreateCategory(ctx, again))
	require.Equal(t, "private-1", again.ID, "duplicate name resolves to the existing row")

	_, err := repo.GetCategory(ctx, "user-2", "private-1")
	require.Equal(t, core.CodeCategoryNotFound, core.CodeOf(err))

	found, err := repo.FindCategoryByName(ctx, "user-2", "Side Hustle")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestRules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateRule(ctx, &core.CategorizationRule{ID: "r-low", UserID: "user-1", CategoryID: "cat-food", Kind: core.RuleKeyword, Value: "uber eats", IsActive: true, Priority: 1}))
	require.NoError(t, repo.CreateRule(ctx, &core.CategorizationRule{ID: "r-high", UserID: "user-1", CategoryID: "cat-transport", Kind: core.RuleMerchant, Value: "Uber", IsActive: true, Priority: 9}))
	require.NoError(t, repo.CreateRule(ctx, &core.CategorizationRule{ID: "r-off", UserID: "user-1", CategoryID: "cat-food", Kind: core.RuleKeyword, Value: "x", IsActive: false}))

	rules, err := repo.ListActiveRules(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.Equal(t, "r-high", rules[0].ID)
	require.Equal(t, "Transport", rules[0].CategoryName)

	has, err := repo.HasRule(ctx, "user-1", core.RuleMerchant, "uber")
	require.NoError(t, err)
	require.True(t, has)
}

func TestSyncRuns_SingleTerminalWrite(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acct := seedAccount(t, repo, "user-1")

	run := &core.SyncRun{UserID: "user-1", AccountID: acct.ID, Trigger: core.TriggerScheduled}
	require.NoError(t, repo.CreateSyncRun(ctx, run))
	require.Equal(t, core.SyncInProgress, run.Status)

	run.Finish(core.SyncOutcome{TotalTransactions: 3, NewTransactions: 2, UpdatedTransactions: 1, Errors: []string{"b-9: bad"}}, time.Now(), nil)
	require.NoError(t, repo.CompleteSyncRun(ctx, run))

	again := *run
	again.Finish(core.SyncOutcome{}, time.Now(), context.DeadlineExceeded)
	err := repo.CompleteSyncRun(ctx, &again)
	require.Equal(t, core.CodeRunFinalized, core.CodeOf(err))

	stored, err := repo.GetSyncRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, core.SyncSuccess, stored.Status)
	require.Equal(t, 3, stored.TransactionsSynced)
	require.Equal(t, []string{"b-9: bad"}, stored.Errors)
	require.NotNil(t, stored.CompletedAt)
	require.Equal(t, core.TriggerScheduled, stored.Trigger)

	runs, err := repo.ListSyncRuns(ctx, "user-1", acct.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}
