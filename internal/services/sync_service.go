// Package services orchestrates account syncs, scheduling and transaction
// edits on top of storage, provider adapters and the categorization engine.
package services

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"finsync/internal/categorize"
	"finsync/internal/core"
	"finsync/internal/log"
	"finsync/internal/normalize"
	"finsync/internal/provider"
	"finsync/internal/sheets"

	"github.com/shopspring/decimal"
)

// SyncConfig holds configuration for the sync orchestrator.
type SyncConfig struct {
	// WindowDays is the trailing window used when no range is given (default: 30)
	WindowDays int

	// FetchTimeout bounds one adapter call; zero leaves it to the transport.
	FetchTimeout time.Duration

	// HistoryLimit caps ListSyncRuns (default: 20)
	HistoryLimit int
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		WindowDays:   30,
		FetchTimeout: 0,
		HistoryLimit: 20,
	}
}

// SyncOptions tune a single sync. A nil Range means the trailing window.
type SyncOptions struct {
	Range   *core.DateRange
	Trigger core.TriggerKind
}

// SyncService pulls provider transactions into the store.
type SyncService struct {
	store     Store
	providers provider.Registry
	engine    *categorize.Engine
	resolver  *categorize.Resolver
	config    SyncConfig
	logger    *log.Logger

	guard    *InFlight
	notifier Notifier
	exporter sheets.RunExporter
	now      func() time.Time
}

func NewSyncService(
	store Store,
	providers provider.Registry,
	engine *categorize.Engine,
	resolver *categorize.Resolver,
	config SyncConfig,
	logger *log.Logger,
) *SyncService {
	if config.WindowDays <= 0 {
		config.WindowDays = DefaultSyncConfig().WindowDays
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultSyncConfig().HistoryLimit
	}
	return &SyncService{
		store:     store,
		providers: providers,
		engine:    engine,
		resolver:  resolver,
		config:    config,
		logger:    log.Or(logger, log.ComponentSync),
		guard:     NewInFlight(),
		now:       time.Now,
	}
}

// WithNotifier sets the sync-completed publisher.
func (s *SyncService) WithNotifier(n Notifier) *SyncService {
	s.notifier = n
	return s
}

// WithExporter sets the run exporter.
func (s *SyncService) WithExporter(e sheets.RunExporter) *SyncService {
	s.exporter = e
	return s
}

// WithGuard shares an in-flight guard between services.
func (s *SyncService) WithGuard(g *InFlight) *SyncService {
	if g != nil {
		s.guard = g
	}
	return s
}

func (s *SyncService) Guard() *InFlight {
	return s.guard
}

// SyncAccount syncs one account and returns the outcome. Precondition
// failures return before any run is recorded; an adapter failure is
// recorded as a failed run and returned together with the outcome.
func (s *SyncService) SyncAccount(ctx context.Context, userID, accountID string, opts SyncOptions) (core.SyncOutcome, error) {
	return s.sync(ctx, userID, accountID, opts, nil)
}

// SyncAccountWithProgress is SyncAccount reporting fetching, storing and
// then completed or error to onProgress.
func (s *SyncService) SyncAccountWithProgress(ctx context.Context, userID, accountID string, opts SyncOptions, onProgress ProgressFunc) (core.SyncOutcome, error) {
	return s.sync(ctx, userID, accountID, opts, newProgress(onProgress))
}

// ListSyncRuns returns the account's run history, newest first.
func (s *SyncService) ListSyncRuns(ctx context.Context, userID, accountID string) ([]core.SyncRun, error) {
	return s.store.ListSyncRuns(ctx, userID, accountID, s.config.HistoryLimit)
}

func (s *SyncService) sync(ctx context.Context, userID, accountID string, opts SyncOptions, p *progress) (core.SyncOutcome, error) {
	// A caller going away must not leave the run unfinished.
	ctx = context.WithoutCancel(ctx)
	if opts.Trigger == "" {
		opts.Trigger = core.TriggerManual
	}
	logger := s.logger.With(log.NewFields().
		WithAccount(userID, accountID).
		WithOperation(log.OpSync).
		With(log.FieldTrigger, string(opts.Trigger)).
		ToSlice()...)

	fail := func(err error) (core.SyncOutcome, error) {
		p.emit(errorEvent(err, ""))
		logger.WarnContext(ctx, "Sync rejected", log.FieldErrorCode, core.CodeOf(err), log.FieldError, err)
		return core.SyncOutcome{Errors: []string{}}, err
	}

	release, err := s.guard.TryAcquire(accountID)
	if err != nil {
		return fail(err)
	}
	defer release()

	account, err := s.store.GetActiveAccount(ctx, userID, accountID)
	if err != nil {
		return fail(err)
	}
	ref, err := account.ProviderRef()
	if err != nil {
		return fail(err)
	}
	adapter, err := s.providers.Lookup(account.Kind)
	if err != nil {
		return fail(err)
	}
	window := core.TrailingDays(s.now(), s.config.WindowDays)
	if opts.Range != nil {
		window = *opts.Range
	}
	if err := window.Validate(); err != nil {
		return fail(err)
	}

	run := &core.SyncRun{
		UserID:    userID,
		AccountID: account.ID,
		Trigger:   opts.Trigger,
		StartedAt: s.now().UTC(),
	}
	if err := s.store.CreateSyncRun(ctx, run); err != nil {
		return fail(fmt.Errorf("create sync run: %w", err))
	}
	logger = logger.With(log.NewFields().WithRun(run.ID).With(log.FieldProvider, string(account.Kind)).ToSlice()...)
	outcome := core.SyncOutcome{RunID: run.ID, Errors: []string{}}
	start := time.Now()

	p.emit(ProgressEvent{Stage: StageFetching, Message: fetchingMessage(*account), RunID: run.ID})
	logger.InfoContext(ctx, "Sync started", "from", window.From.Format(time.DateOnly), "to", window.To.Format(time.DateOnly))

	fetchCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.config.FetchTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, s.config.FetchTimeout)
	}
	result, fetchErr := adapter.FetchAccountAndTransactions(fetchCtx, ref, window.From, window.To)
	cancel()
	if fetchErr != nil {
		logger.ErrorContext(ctx, "Provider fetch failed", log.FieldErrorCode, core.CodeOf(fetchErr), log.FieldError, fetchErr)
		finishErr := s.finish(ctx, logger, run, *account, outcome, fetchErr)
		p.emit(errorEvent(fetchErr, run.ID))
		if finishErr != nil {
			return outcome, fmt.Errorf("%w (%v)", fetchErr, finishErr)
		}
		return outcome, fetchErr
	}

	institution := result.Account.Institution
	if institution == "" {
		institution = account.Institution
	}
	p.emit(ProgressEvent{
		Stage:            StageStoring,
		Message:          fmt.Sprintf("Saving %d transactions", len(result.Transactions)),
		TransactionCount: len(result.Transactions),
		Institution:      institution,
		RunID:            run.ID,
	})

	if err := s.store.UpdateAccountSyncState(ctx, account.ID, result.Account.Balance, result.Account.Institution, s.now()); err != nil {
		logger.WarnContext(ctx, "Failed to update account balance", log.FieldError, err)
	}

	rules := s.engine.Rules(ctx, userID)
	for _, raw := range result.Transactions {
		outcome.TotalTransactions++
		change, err := s.apply(ctx, run, *account, raw, rules)
		if err != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %s", txLabel(raw), core.MessageOf(err)))
			logger.WarnContext(ctx, "Transaction skipped", log.FieldProviderTxID, raw.ProviderTxID, log.FieldError, err)
			continue
		}
		switch change {
		case changeInserted:
			outcome.NewTransactions++
		case changeUpdated:
			outcome.UpdatedTransactions++
		}
	}

	if err := s.finish(ctx, logger, run, *account, outcome, nil); err != nil {
		p.emit(errorEvent(err, run.ID))
		return outcome, err
	}

	logger.InfoContext(ctx, "Sync completed",
		log.FieldTransactions, outcome.TotalTransactions,
		"new", outcome.NewTransactions,
		"updated", outcome.UpdatedTransactions,
		"failed", len(outcome.Errors),
		log.FieldDuration, time.Since(start).Milliseconds())
	p.emit(ProgressEvent{
		Stage:            StageCompleted,
		Message:          fmt.Sprintf("Synced %d transactions from %s", outcome.TotalTransactions, institutionOr(institution, account.Kind)),
		TransactionCount: outcome.TotalTransactions,
		Institution:      institution,
		RunID:            run.ID,
	})
	return outcome, nil
}

// finish writes the single terminal state of the run, then exports and
// announces it. Export and notification failures are only logged.
func (s *SyncService) finish(ctx context.Context, logger *log.Logger, run *core.SyncRun, account core.LinkedAccount, outcome core.SyncOutcome, fatal error) error {
	run.Finish(outcome, s.now().UTC(), fatal)
	if err := s.store.CompleteSyncRun(ctx, run); err != nil {
		logger.ErrorContext(ctx, "Failed to finalize sync run", log.FieldError, err)
		return fmt.Errorf("finalize sync run: %w", err)
	}

	if s.exporter != nil {
		if err := s.exporter.ExportRun(ctx, *run, account); err != nil {
			logger.WarnContext(ctx, "Failed to export sync run", log.FieldError, err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifySyncCompleted(ctx, *run, account); err != nil {
			logger.WarnContext(ctx, "Failed to publish sync completion", log.FieldError, err)
		}
	}
	return nil
}

type change int

const (
	changeNone change = iota
	changeInserted
	changeUpdated
)

// apply reconciles one provider transaction with the store. A panic is
// turned into an error so the loop can continue with the next transaction.
func (s *SyncService) apply(ctx context.Context, run *core.SyncRun, account core.LinkedAccount, raw provider.RawSyncedTransaction, rules []core.CategorizationRule) (result change, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.NewError(core.KindInternal, core.CodeInternal, fmt.Sprintf("unexpected failure: %v", r))
		}
	}()

	id := strings.TrimSpace(raw.ProviderTxID)
	if id == "" {
		return changeNone, core.NewError(core.KindValidation, core.CodeValidation, "missing provider transaction id")
	}
	if raw.OccurredAt.IsZero() {
		return changeNone, core.NewError(core.KindValidation, core.CodeValidation, "missing transaction date")
	}
	occurred := raw.OccurredAt.UTC().Truncate(time.Microsecond)
	amount := raw.Amount.Abs()
	if !amount.IsPositive() {
		return changeNone, core.NewError(core.KindValidation, core.CodeInvalidAmount, "amount must be positive")
	}

	existing, err := s.store.FindTransactionByProviderID(ctx, account.UserID, account.Kind, id)
	if err != nil {
		return changeNone, fmt.Errorf("lookup: %w", err)
	}
	if existing != nil && (existing.AccountID == nil || *existing.AccountID != account.ID) {
		return changeNone, core.NewError(core.KindConflict, core.CodeProviderTxOwned,
			"provider transaction id already belongs to another account")
	}

	description := describe(raw)
	merchant := merchantOf(raw, description)
	in := categorize.Input{
		Description:  description,
		Amount:       amount,
		Counterparty: raw.Counterparty,
		Merchant:     merchant,
	}
	if raw.Direction.Valid() {
		in.Amount = core.Signed(amount, raw.Direction)
	}
	res := s.engine.Classify(ctx, in, rules)

	meta := metadataOf(raw, merchant)
	txType := raw.Type(res.SuggestedType)

	if existing != nil {
		if !providerDiffers(existing, amount, txType, description, occurred, raw.StatusCode, meta) {
			return changeNone, nil
		}
		existing.Amount = amount
		existing.Type = txType
		existing.Description = description
		existing.Date = occurred
		existing.ProviderStatus = raw.StatusCode
		existing.Metadata = meta
		existing.SyncRunID = &run.ID
		if existing.AutoCategorized {
			categoryID, err := s.resolver.Resolve(ctx, account.UserID, res)
			if err != nil {
				return changeNone, fmt.Errorf("resolve category: %w", err)
			}
			confidence := res.Confidence
			existing.CategoryID = &categoryID
			existing.Confidence = &confidence
		}
		if err := s.store.UpdateSyncedTransaction(ctx, existing); err != nil {
			return changeNone, fmt.Errorf("update: %w", err)
		}
		return changeUpdated, nil
	}

	categoryID, err := s.resolver.Resolve(ctx, account.UserID, res)
	if err != nil {
		return changeNone, fmt.Errorf("resolve category: %w", err)
	}
	confidence := res.Confidence
	accountID := account.ID
	tx := &core.Transaction{
		UserID:          account.UserID,
		AccountID:       &accountID,
		Amount:          amount,
		Type:            txType,
		CategoryID:      &categoryID,
		Description:     description,
		Date:            occurred,
		Provider:        account.Kind,
		ProviderTxID:    &id,
		ProviderStatus:  raw.StatusCode,
		Metadata:        meta,
		AutoCategorized: true,
		Confidence:      &confidence,
		SyncRunID:       &run.ID,
	}
	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		return changeNone, fmt.Errorf("insert: %w", err)
	}
	return changeInserted, nil
}

func providerDiffers(t *core.Transaction, amount decimal.Decimal, txType core.TransactionType, description string, occurred time.Time, status string, meta map[string]string) bool {
	return !t.Amount.Equal(amount) ||
		t.Type != txType ||
		t.Description != description ||
		!t.Date.Equal(occurred) ||
		t.ProviderStatus != status ||
		!maps.Equal(t.Metadata, meta)
}

func describe(raw provider.RawSyncedTransaction) string {
	if d := strings.TrimSpace(raw.Description); d != "" {
		return d
	}
	if n := strings.TrimSpace(strings.Join(raw.Narration, " ")); n != "" {
		return n
	}
	if raw.MerchantName != "" {
		return raw.MerchantName
	}
	return raw.Counterparty
}

func merchantOf(raw provider.RawSyncedTransaction, description string) string {
	if raw.MerchantName != "" {
		return normalize.Merchant(raw.MerchantName)
	}
	return normalize.Merchant(description)
}

func metadataOf(raw provider.RawSyncedTransaction, merchant string) map[string]string {
	meta := make(map[string]string, len(raw.Metadata)+3)
	maps.Copy(meta, raw.Metadata)
	if merchant != "" && merchant != normalize.Unknown {
		meta[core.MetaMerchant] = merchant
	}
	if raw.Counterparty != "" {
		meta[core.MetaCounterparty] = raw.Counterparty
	}
	if len(raw.Narration) > 0 {
		meta[core.MetaNarration] = strings.Join(raw.Narration, " | ")
	}
	return meta
}

func txLabel(raw provider.RawSyncedTransaction) string {
	if raw.ProviderTxID == "" {
		return "unknown"
	}
	return raw.ProviderTxID
}

func fetchingMessage(a core.LinkedAccount) string {
	switch a.Kind {
	case core.AccountMobileMoney:
		return "Fetching mobile money transactions for " + maskPhone(a.MoMoPhone)
	default:
		return "Connecting to " + institutionOr(a.Institution, a.Kind)
	}
}

func institutionOr(institution string, kind core.AccountKind) string {
	if institution != "" {
		return institution
	}
	if kind == core.AccountMobileMoney {
		return "your mobile money wallet"
	}
	return "your bank"
}

func maskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

func errorEvent(err error, runID string) ProgressEvent {
	return ProgressEvent{
		Stage:   StageError,
		Message: core.MessageOf(err),
		Error:   err.Error(),
		Code:    core.CodeOf(err),
		RunID:   runID,
	}
}
