package backend

import (
	"fmt"

	"finsync/internal/config"
	"finsync/internal/provider/bank"
	"finsync/internal/provider/momo"
	gsheet "finsync/internal/sheets/google"
)

// Config holds configuration for backend creation
type Config struct {
	Mode Mode

	Bank bank.Config
	MoMo momo.Config

	// Export is used when SpreadsheetID is set; otherwise runs are kept in
	// memory.
	Export      gsheet.Config
	MemoryLimit int
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	mode := Mode(appConfig.ProviderMode)
	if !mode.IsValid() {
		return Config{}, fmt.Errorf("invalid provider mode in config: %s", appConfig.ProviderMode)
	}

	return Config{
		Mode: mode,

		Bank: bank.Config{
			BaseURL:      appConfig.BankBaseURL,
			TokenURL:     appConfig.BankTokenURL,
			ClientID:     appConfig.BankClientID,
			ClientSecret: appConfig.BankClientSecret,
			Timeout:      appConfig.ProviderTimeout,
		},
		MoMo: momo.Config{
			BaseURL:           appConfig.MoMoBaseURL,
			APIUser:           appConfig.MoMoAPIUser,
			APIKey:            appConfig.MoMoAPIKey,
			SubscriptionKey:   appConfig.MoMoSubscriptionKey,
			TargetEnvironment: appConfig.MoMoTargetEnvironment,
			Timeout:           appConfig.ProviderTimeout,
		},

		Export: gsheet.Config{
			SpreadsheetID:      appConfig.GoogleSpreadsheetID,
			SheetName:          appConfig.GoogleSyncSheetName,
			ServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
			ServiceAccountFile: appConfig.GoogleServiceAccountFile,
		},
		MemoryLimit: defaultMemoryLimit,
	}, nil
}

const defaultMemoryLimit = 500

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Mode.IsValid() {
		return fmt.Errorf("invalid provider mode: %s", c.Mode)
	}

	if c.Mode == LiveMode {
		if c.Bank.BaseURL == "" {
			return fmt.Errorf("bank base url is required for live mode")
		}
		if c.MoMo.BaseURL == "" {
			return fmt.Errorf("mobile money base url is required for live mode")
		}
		if c.MoMo.APIUser == "" || c.MoMo.APIKey == "" {
			return fmt.Errorf("mobile money api user and key are required for live mode")
		}
	}
	if c.Bank.Timeout < 0 || c.MoMo.Timeout < 0 {
		return fmt.Errorf("provider timeout must not be negative")
	}
	return nil
}

// GetModes returns all valid provider modes
func GetModes() []Mode {
	return []Mode{SandboxMode, LiveMode}
}
