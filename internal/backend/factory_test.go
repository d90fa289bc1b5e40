package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finsync/internal/config"
	"finsync/internal/core"
	"finsync/internal/log"
	"finsync/internal/services"
	"finsync/internal/storage"
)

func sandboxAppConfig() *config.Config {
	return &config.Config{
		ProviderMode:        config.ProviderModeSandbox,
		ProviderTimeout:     30 * time.Second,
		SyncWindowDays:      30,
		SuggestionLimit:     5,
		RetryAttempts:       3,
		RetryDelay:          time.Millisecond,
		LearnFromFeedback:   true,
		GoogleSyncSheetName: "Sync Runs",
	}
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	require.Error(t, err)

	bad := sandboxAppConfig()
	bad.ProviderMode = "mock"
	_, err = FromAppConfig(bad)
	require.ErrorContains(t, err, "invalid provider mode")

	app := sandboxAppConfig()
	app.MoMoTargetEnvironment = "mtnghana"
	cfg, err := FromAppConfig(app)
	require.NoError(t, err)
	require.Equal(t, SandboxMode, cfg.Mode)
	require.Equal(t, 30*time.Second, cfg.Bank.Timeout)
	require.Equal(t, "mtnghana", cfg.MoMo.TargetEnvironment)
	require.Equal(t, "Sync Runs", cfg.Export.SheetName)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "sandbox", config: Config{Mode: SandboxMode}},
		{name: "unknown mode", config: Config{Mode: "mock"}, wantErr: "invalid provider mode"},
		{name: "live without bank", config: Config{Mode: LiveMode}, wantErr: "bank base url"},
		{
			name: "live without momo key",
			config: func() Config {
				c := Config{Mode: LiveMode}
				c.Bank.BaseURL = "https://bank.example.com"
				c.MoMo.BaseURL = "https://momo.example.com"
				c.MoMo.APIUser = "user"
				return c
			}(),
			wantErr: "mobile money api user and key",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCreateBackend_Sandbox(t *testing.T) {
	cfg, err := FromAppConfig(sandboxAppConfig())
	require.NoError(t, err)

	res, err := NewFactory(log.Discard()).CreateBackend(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, res.Exporter)
	require.NotNil(t, res.Runs)

	for _, kind := range []core.AccountKind{core.AccountBank, core.AccountMobileMoney} {
		adapter, err := res.Providers.Lookup(kind)
		require.NoError(t, err)
		require.Equal(t, kind, adapter.Kind())
	}
}

func TestCreateBackend_Live(t *testing.T) {
	cfg := Config{Mode: LiveMode, MemoryLimit: 10}
	cfg.Bank.BaseURL = "https://bank.example.com"
	cfg.Bank.TokenURL = "https://bank.example.com/oauth/token"
	cfg.MoMo.BaseURL = "https://momo.example.com"
	cfg.MoMo.APIUser = "user"
	cfg.MoMo.APIKey = "key"

	res, err := NewFactory(log.Discard()).CreateBackend(context.Background(), cfg)
	require.NoError(t, err)

	adapter, err := res.Providers.Lookup(core.AccountMobileMoney)
	require.NoError(t, err)
	require.Equal(t, core.AccountMobileMoney, adapter.Kind())
}

func TestCreateBackend_ExportNeedsCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	cfg := Config{Mode: SandboxMode}
	cfg.Export.SpreadsheetID = "sheet-id"

	_, err := NewFactory(log.Discard()).CreateBackend(context.Background(), cfg)
	require.ErrorContains(t, err, "Google Sheets exporter")
}

func TestNewServices_SandboxSync(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "finsync.db"), log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	app := sandboxAppConfig()
	cfg, err := FromAppConfig(app)
	require.NoError(t, err)
	res, err := NewFactory(log.Discard()).CreateBackend(ctx, cfg)
	require.NoError(t, err)

	account := &core.LinkedAccount{
		UserID:        "user-1",
		Name:          "Checking",
		Kind:          core.AccountBank,
		BankAccountID: "demo-checking",
		IsActive:      true,
	}
	require.NoError(t, repo.CreateAccount(ctx, account))

	svc := NewServices(repo, res, app, log.Discard())
	outcome, err := svc.Sync.SyncAccount(ctx, "user-1", account.ID, services.SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, outcome.TotalTransactions)
	require.Equal(t, 3, outcome.NewTransactions)
	require.Empty(t, outcome.Errors)

	rows, err := res.Runs.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, outcome.RunID, rows[0].RunID)

	require.NotNil(t, svc.Janitor)
	require.Zero(t, svc.Janitor.Sweep(), "fresh cache entries must survive a sweep")
	stats := svc.Janitor.Stats()
	require.Contains(t, stats, "rule_patterns")
	require.Positive(t, stats["categories"].Misses, "sync should resolve categories through the cache")
	require.NoError(t, res.Cleanup())
}
