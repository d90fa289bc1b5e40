package categorize

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finsync/internal/core"
	"finsync/internal/log"
	"finsync/internal/normalize"
)

// ServiceConfig tunes the feedback surface.
type ServiceConfig struct {
	SuggestionLimit   int
	RetryAttempts     int
	RetryDelay        time.Duration
	LearnFromFeedback bool
	SimilarLookback   int
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		SuggestionLimit:   5,
		RetryAttempts:     3,
		RetryDelay:        500 * time.Millisecond,
		LearnFromFeedback: true,
		SimilarLookback:   20,
	}
}

// Store is everything the service needs from persistence.
type Store interface {
	CategoryStore
	TransactionStore
	RuleStore
}

// Service exposes suggestions, feedback and bulk re-categorization.
type Service struct {
	store    Store
	engine   *Engine
	resolver *Resolver
	config   ServiceConfig
	logger   *log.Logger
	sleep    func(context.Context, time.Duration) error
}

func NewService(store Store, engine *Engine, resolver *Resolver, config ServiceConfig, logger *log.Logger) *Service {
	if config.SuggestionLimit < 1 {
		config.SuggestionLimit = DefaultServiceConfig().SuggestionLimit
	}
	if config.RetryAttempts < 1 {
		config.RetryAttempts = 1
	}
	if config.SimilarLookback < 1 {
		config.SimilarLookback = DefaultServiceConfig().SimilarLookback
	}
	return &Service{
		store:    store,
		engine:   engine,
		resolver: resolver,
		config:   config,
		logger:   log.Or(logger, log.ComponentCategorize),
		sleep:    sleepContext,
	}
}

// SuggestionRequest describes a transaction being entered or edited.
type SuggestionRequest struct {
	Description string
	Amount      decimal.Decimal
	Merchant    string
}

// SuggestCategories returns up to SuggestionLimit distinct categories, best
// first: matching rules, heuristic labels, then categories of similar past
// transactions. The list always ends with Uncategorized.
func (s *Service) SuggestCategories(ctx context.Context, userID string, req SuggestionRequest) ([]core.Category, error) {
	limit := s.config.SuggestionLimit
	in := Input{Description: req.Description, Amount: req.Amount, Merchant: req.Merchant}

	var out []core.Category
	seen := make(map[string]bool)
	add := func(c core.Category) {
		if seen[c.ID] || strings.EqualFold(c.Name, core.UncategorizedName) {
			return
		}
		seen[c.ID] = true
		out = append(out, c)
	}

	for _, rule := range s.engine.AllMatches(ctx, in, s.engine.Rules(ctx, userID)) {
		c, err := s.store.GetCategory(ctx, userID, rule.CategoryID)
		if err != nil {
			s.logger.WarnContext(ctx, "Rule points at a missing category", log.FieldRuleID, rule.ID, log.FieldError, err)
			continue
		}
		add(*c)
	}

	for _, scored := range Rank(heuristicText(in), req.Amount.IsNegative()) {
		c, err := s.resolver.ResolveLabel(ctx, userID, scored.Label)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", scored.Label, err)
		}
		add(c)
	}

	similar, err := s.similarCategories(ctx, userID, req.Description)
	if err != nil {
		s.logger.WarnContext(ctx, "Similar transaction lookup failed", log.FieldUserID, userID, log.FieldError, err)
	}
	for _, c := range similar {
		add(c)
	}

	if len(out) > limit-1 {
		out = out[:limit-1]
	}
	fallback, err := s.resolver.ResolveLabel(ctx, userID, LabelUncategorized)
	if err != nil {
		return nil, fmt.Errorf("resolve fallback: %w", err)
	}
	return append(out, fallback), nil
}

// similarCategories ranks past transactions sharing the description's first
// word by edit distance and returns their categories, closest first.
func (s *Service) similarCategories(ctx context.Context, userID, description string) ([]core.Category, error) {
	tokens := normalize.Tokens(description)
	if len(tokens) == 0 {
		return nil, nil
	}
	past, err := s.store.FindSimilarTransactions(ctx, userID, tokens[0], s.config.SimilarLookback)
	if err != nil {
		return nil, err
	}

	target := strings.ToLower(description)
	sort.SliceStable(past, func(i, j int) bool {
		return levenshtein.ComputeDistance(target, strings.ToLower(past[i].Description)) <
			levenshtein.ComputeDistance(target, strings.ToLower(past[j].Description))
	})

	var out []core.Category
	seen := make(map[string]bool)
	for _, tx := range past {
		if tx.CategoryID == nil || seen[*tx.CategoryID] {
			continue
		}
		seen[*tx.CategoryID] = true
		c, err := s.store.GetCategory(ctx, userID, *tx.CategoryID)
		if err != nil {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

// ProvideCategoryFeedback records a user's category choice for a transaction.
func (s *Service) ProvideCategoryFeedback(ctx context.Context, userID, transactionID, categoryID string) error {
	category, err := s.store.GetCategory(ctx, userID, categoryID)
	if err != nil {
		return err
	}
	tx, err := s.store.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateTransactionCategory(ctx, userID, transactionID, categoryID); err != nil {
		return fmt.Errorf("update category: %w", err)
	}

	s.logger.InfoContext(ctx, "Category feedback recorded",
		log.FieldUserID, userID,
		"transaction_id", transactionID,
		log.FieldCategory, category.Name)

	if s.config.LearnFromFeedback {
		s.learn(ctx, userID, tx, category)
	}
	return nil
}

// learn adds a merchant rule so future syncs of the same merchant follow the
// user's correction. Failures are logged only.
func (s *Service) learn(ctx context.Context, userID string, tx *core.Transaction, category *core.Category) {
	merchant := tx.Merchant()
	if merchant == "" || merchant == normalize.Unknown {
		return
	}
	exists, err := s.store.HasRule(ctx, userID, core.RuleMerchant, merchant)
	if err != nil || exists {
		if err != nil {
			s.logger.WarnContext(ctx, "Rule lookup failed", log.FieldError, err)
		}
		return
	}
	rule := core.CategorizationRule{
		ID:           uuid.NewString(),
		UserID:       userID,
		CategoryID:   category.ID,
		CategoryName: category.Name,
		Kind:         core.RuleMerchant,
		Value:        merchant,
		IsActive:     true,
	}
	if err := s.store.CreateRule(ctx, &rule); err != nil {
		s.logger.WarnContext(ctx, "Failed to learn merchant rule", log.FieldError, err)
		return
	}
	s.logger.InfoContext(ctx, "Learned merchant rule", log.FieldUserID, userID, "merchant", merchant, log.FieldCategory, category.Name)
}

// BulkResult reports a bulk re-categorization. Errors are "<id>: <message>".
type BulkResult struct {
	Updated    int      `json:"updated"`
	UpdatedIDs []string `json:"updated_ids"`
	Errors     []string `json:"errors"`
}

// BulkRecategorize applies categoryID to every id. A failing id never stops
// the batch; transient store errors are retried with a fixed delay.
func (s *Service) BulkRecategorize(ctx context.Context, userID string, ids []string, categoryID string) (BulkResult, error) {
	result := BulkResult{UpdatedIDs: []string{}, Errors: []string{}}
	if _, err := s.store.GetCategory(ctx, userID, categoryID); err != nil {
		return result, err
	}

	for _, id := range ids {
		if err := s.updateWithRetry(ctx, userID, id, categoryID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", id, core.MessageOf(err)))
			s.logger.WarnContext(ctx, "Bulk category update failed for transaction",
				"transaction_id", id, log.FieldErrorCode, core.CodeOf(err), log.FieldError, err)
			continue
		}
		result.Updated++
		result.UpdatedIDs = append(result.UpdatedIDs, id)
	}

	s.logger.InfoContext(ctx, "Bulk re-categorization finished",
		log.FieldUserID, userID,
		log.FieldOperation, log.OpBulkUpdate,
		"updated", result.Updated,
		"failed", len(result.Errors))
	return result, nil
}

func (s *Service) updateWithRetry(ctx context.Context, userID, id, categoryID string) error {
	var lastErr error
	for attempt := 1; attempt <= s.config.RetryAttempts; attempt++ {
		err := s.store.UpdateTransactionCategory(ctx, userID, id, categoryID)
		if err == nil {
			return nil
		}
		if !core.IsTransient(err) {
			return err
		}
		lastErr = err
		s.logger.DebugContext(ctx, "Retrying category update", "transaction_id", id, log.FieldAttempt, attempt, log.FieldError, err)
		if attempt < s.config.RetryAttempts {
			if err := s.sleep(ctx, s.config.RetryDelay); err != nil {
				return core.WrapError(core.KindTimeout, core.CodeRetryExhausted, "update abandoned", err)
			}
		}
	}
	return core.WrapError(core.KindTimeout, core.CodeRetryExhausted,
		fmt.Sprintf("update timed out after %d attempts", s.config.RetryAttempts), lastErr)
}

// CreateRule validates and stores a categorization rule.
func (s *Service) CreateRule(ctx context.Context, rule *core.CategorizationRule) error {
	if err := ValidateRule(*rule); err != nil {
		return err
	}
	category, err := s.store.GetCategory(ctx, rule.UserID, rule.CategoryID)
	if err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.CategoryName = category.Name
	rule.IsActive = true
	if err := s.store.CreateRule(ctx, rule); err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
