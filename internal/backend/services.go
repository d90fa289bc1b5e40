package backend

import (
	"time"

	"finsync/internal/cache"
	"finsync/internal/categorize"
	"finsync/internal/config"
	"finsync/internal/log"
	"finsync/internal/services"
	"finsync/internal/storage"
)

// Services bundles the application services built on one repository.
type Services struct {
	Sync         *services.SyncService
	Categorize   *categorize.Service
	Transactions *services.TransactionService
	Engine       *categorize.Engine
	Resolver     *categorize.Resolver

	// Janitor sweeps the categorization caches once started.
	Janitor *cache.Janitor
}

// NewServices wires the categorization engine, the sync orchestrator and the
// transaction editor over repo and the backend's adapters.
func NewServices(repo *storage.SQLiteRepository, result *BackendResult, appConfig *config.Config, logger *log.Logger) *Services {
	logger = log.Or(logger, log.ComponentApp)

	matcher := categorize.NewMatcher(logger.WithComponent(log.ComponentCategorize))
	engine := categorize.NewEngine(repo, matcher, logger.WithComponent(log.ComponentCategorize))
	resolver := categorize.NewResolver(repo, logger.WithComponent(log.ComponentCategorize))

	janitor := cache.NewJanitor()
	janitor.Register("rule_patterns", matcher.PatternCache())
	janitor.Register("categories", resolver.Cache())

	syncConfig := services.DefaultSyncConfig()
	catConfig := categorize.DefaultServiceConfig()
	if appConfig != nil {
		syncConfig.WindowDays = appConfig.SyncWindowDays
		syncConfig.FetchTimeout = fetchTimeout(appConfig.ProviderTimeout)
		catConfig.SuggestionLimit = appConfig.SuggestionLimit
		catConfig.RetryAttempts = appConfig.RetryAttempts
		catConfig.RetryDelay = appConfig.RetryDelay
		catConfig.LearnFromFeedback = appConfig.LearnFromFeedback
	}

	syncService := services.NewSyncService(repo, result.Providers, engine, resolver, syncConfig, logger.WithComponent(log.ComponentSync))
	if result.Exporter != nil {
		syncService.WithExporter(result.Exporter)
	}

	return &Services{
		Sync:         syncService,
		Categorize:   categorize.NewService(repo, engine, resolver, catConfig, logger.WithComponent(log.ComponentCategorize)),
		Transactions: services.NewTransactionService(repo, logger.WithComponent(log.ComponentSync)),
		Engine:       engine,
		Resolver:     resolver,
		Janitor:      janitor,
	}
}

// CacheSweepInterval is how often the janitor evicts expired cache entries.
const CacheSweepInterval = 5 * time.Minute

// fetchTimeout leaves a little room above the transport timeout so the
// adapter reports its own timeout error first.
func fetchTimeout(transport time.Duration) time.Duration {
	if transport <= 0 {
		return 0
	}
	return transport + 5*time.Second
}
