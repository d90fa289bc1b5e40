package backend

import (
	"context"
	"fmt"
	"time"

	"finsync/internal/core"
	"finsync/internal/log"
	"finsync/internal/provider"
	"finsync/internal/provider/bank"
	"finsync/internal/provider/memory"
	"finsync/internal/provider/momo"
	gsheet "finsync/internal/sheets/google"
	memsheet "finsync/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
	now    func() time.Time
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	return &DefaultFactory{
		logger: log.Or(logger, log.ComponentApp),
		now:    time.Now,
	}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		registry provider.Registry
		err      error
	)
	switch config.Mode {
	case LiveMode:
		registry, err = f.createLiveProviders(config)
	case SandboxMode:
		registry = f.createSandboxProviders()
	default:
		return nil, fmt.Errorf("unsupported provider mode: %s", config.Mode)
	}
	if err != nil {
		return nil, err
	}

	result := &BackendResult{Providers: registry, Cleanup: func() error { return nil }}
	if err := f.attachExporter(ctx, config, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (f *DefaultFactory) createLiveProviders(config Config) (provider.Registry, error) {
	bankAdapter, err := bank.New(config.Bank, f.logger.WithComponent(log.ComponentProvider))
	if err != nil {
		return provider.Registry{}, fmt.Errorf("failed to initialize bank adapter: %w", err)
	}
	momoAdapter, err := momo.New(config.MoMo, f.logger.WithComponent(log.ComponentProvider))
	if err != nil {
		return provider.Registry{}, fmt.Errorf("failed to initialize mobile money adapter: %w", err)
	}

	f.logger.Info("Initialized live provider adapters",
		"bank_base_url", config.Bank.BaseURL,
		"momo_base_url", config.MoMo.BaseURL,
		"momo_environment", config.MoMo.TargetEnvironment)
	return provider.NewRegistry(bankAdapter, momoAdapter), nil
}

func (f *DefaultFactory) createSandboxProviders() provider.Registry {
	bankAdapter := memory.New(core.AccountBank)
	bankAdapter.EnableDemo(f.now)
	momoAdapter := memory.New(core.AccountMobileMoney)
	momoAdapter.EnableDemo(f.now)

	f.logger.Info("Initialized sandbox provider adapters")
	return provider.NewRegistry(bankAdapter, momoAdapter)
}

func (f *DefaultFactory) attachExporter(ctx context.Context, config Config, result *BackendResult) error {
	if config.Export.SpreadsheetID == "" {
		store := memsheet.New(config.MemoryLimit)
		result.Exporter, result.Runs = store, store
		f.logger.Info("Sync run export kept in memory", "limit", config.MemoryLimit)
		return nil
	}

	client, err := gsheet.New(ctx, config.Export, f.logger.WithComponent(log.ComponentExport))
	if err != nil {
		return fmt.Errorf("failed to initialize Google Sheets exporter: %w", err)
	}
	result.Exporter, result.Runs = client, client
	f.logger.Info("Initialized Google Sheets exporter",
		"spreadsheet_id", config.Export.SpreadsheetID,
		"sheet", config.Export.SheetName)
	return nil
}
