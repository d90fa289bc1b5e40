// Package categorize assigns categories to transactions.
//
// Classification runs user rules first (highest priority wins, confidence
// 1.0), then the built-in keyword heuristics, then falls back to
// Uncategorized. Given the same input and rule set the result is always the
// same; nothing here calls out to a network service.
package categorize

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"finsync/internal/core"
	"finsync/internal/log"
)

// Source identifies which stage produced a result.
type Source string

const (
	SourceRule      Source = "rule"
	SourceHeuristic Source = "heuristic"
	SourceFallback  Source = "fallback"
)

// RuleSource lists a user's active rules.
type RuleSource interface {
	ListActiveRules(ctx context.Context, userID string) ([]core.CategorizationRule, error)
}

// Input is what the engine sees of a transaction. Amount is signed: negative
// means money left the account, zero or positive carries no direction.
type Input struct {
	Description  string
	Amount       decimal.Decimal
	Counterparty string
	Merchant     string
}

type Result struct {
	Label         string
	CategoryID    string // set when a rule matched
	Confidence    float64
	SuggestedType core.TransactionType
	Source        Source
	RuleID        string
}

type Engine struct {
	rules   RuleSource
	matcher *Matcher
	logger  *log.Logger
}

func NewEngine(rules RuleSource, matcher *Matcher, logger *log.Logger) *Engine {
	if matcher == nil {
		matcher = NewMatcher(logger)
	}
	return &Engine{
		rules:   rules,
		matcher: matcher,
		logger:  log.Or(logger, log.ComponentCategorize),
	}
}

func (e *Engine) Matcher() *Matcher {
	return e.matcher
}

// Rules loads the user's active rules in evaluation order. A failed load is
// logged and yields no rules so classification degrades to heuristics.
func (e *Engine) Rules(ctx context.Context, userID string) []core.CategorizationRule {
	if e.rules == nil {
		return nil
	}
	rules, err := e.rules.ListActiveRules(ctx, userID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to load categorization rules", log.FieldUserID, userID, log.FieldError, err)
		return nil
	}
	SortRules(rules)
	return rules
}

// Categorize loads the user's rules and classifies in.
func (e *Engine) Categorize(ctx context.Context, userID string, in Input) Result {
	return e.Classify(ctx, in, e.Rules(ctx, userID))
}

// Classify is the pure classification step. rules must already be sorted.
func (e *Engine) Classify(ctx context.Context, in Input, rules []core.CategorizationRule) Result {
	if rule, ok := e.FirstMatch(ctx, in, rules); ok {
		return Result{
			Label:         rule.CategoryName,
			CategoryID:    rule.CategoryID,
			Confidence:    1.0,
			SuggestedType: suggestedType(PolarityOf(labelKey(rule.CategoryName)), in.Amount),
			Source:        SourceRule,
			RuleID:        rule.ID,
		}
	}

	ranked := Rank(heuristicText(in), in.Amount.IsNegative())
	if len(ranked) > 0 {
		best := ranked[0]
		return Result{
			Label:         best.Label,
			Confidence:    best.Confidence(),
			SuggestedType: suggestedType(best.Polarity, in.Amount),
			Source:        SourceHeuristic,
		}
	}

	return Result{
		Label:         LabelUncategorized,
		Confidence:    FallbackConfidence,
		SuggestedType: suggestedType("", in.Amount),
		Source:        SourceFallback,
	}
}

// FirstMatch returns the first matching rule.
func (e *Engine) FirstMatch(ctx context.Context, in Input, rules []core.CategorizationRule) (core.CategorizationRule, bool) {
	for _, r := range rules {
		if e.matcher.Match(ctx, r, in) {
			return r, true
		}
	}
	return core.CategorizationRule{}, false
}

// AllMatches returns every matching rule in order.
func (e *Engine) AllMatches(ctx context.Context, in Input, rules []core.CategorizationRule) []core.CategorizationRule {
	var out []core.CategorizationRule
	for _, r := range rules {
		if e.matcher.Match(ctx, r, in) {
			out = append(out, r)
		}
	}
	return out
}

// SortRules orders rules by descending priority, then id for stability.
func SortRules(rules []core.CategorizationRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

func heuristicText(in Input) string {
	return strings.Join([]string{in.Description, in.Merchant, in.Counterparty}, " ")
}

// suggestedType derives the direction from category polarity. An explicit
// negative amount always means expense.
func suggestedType(polarity core.TransactionType, amount decimal.Decimal) core.TransactionType {
	if amount.IsNegative() {
		return core.Expense
	}
	if polarity == "" {
		return core.Expense
	}
	return polarity
}

func labelKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}
