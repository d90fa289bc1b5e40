package categorize

import (
	"context"
	"regexp"
	"regexp/syntax"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"finsync/internal/cache"
	"finsync/internal/core"
	"finsync/internal/log"
)

// Limits applied to user-supplied pattern rules.
const (
	MaxPatternLength = 256
	MaxPatternInput  = 1024
	MaxRepeatDepth   = 2
	PatternBudget    = 50 * time.Millisecond

	patternCacheSize = 512
	patternCacheTTL  = 30 * time.Minute
)

// Matcher evaluates categorization rules. Compiled patterns are cached.
type Matcher struct {
	patterns *cache.LRUCache[*regexp.Regexp]
	budget   time.Duration
	logger   *log.Logger
}

func NewMatcher(logger *log.Logger) *Matcher {
	return &Matcher{
		patterns: cache.NewLRUCache[*regexp.Regexp](patternCacheSize, patternCacheTTL),
		budget:   PatternBudget,
		logger:   log.Or(logger, log.ComponentCategorize),
	}
}

// PatternCache exposes the compiled-pattern cache for janitor registration.
func (m *Matcher) PatternCache() *cache.LRUCache[*regexp.Regexp] {
	return m.patterns
}

// Match reports whether rule applies to in. Malformed rules never match.
func (m *Matcher) Match(ctx context.Context, rule core.CategorizationRule, in Input) bool {
	value := strings.TrimSpace(rule.Value)
	if !rule.IsActive || value == "" {
		return false
	}
	switch rule.Kind {
	case core.RuleKeyword:
		return containsFold(in.Description, value)
	case core.RuleMerchant:
		return containsFold(in.Merchant, value) || containsFold(in.Counterparty, value)
	case core.RuleAmountRange:
		lo, hi, err := ParseAmountRange(value)
		if err != nil {
			m.logger.WarnContext(ctx, "Skipping malformed amount range rule", log.FieldRuleID, rule.ID, log.FieldError, err)
			return false
		}
		abs := in.Amount.Abs()
		if lo != nil && abs.LessThan(*lo) {
			return false
		}
		if hi != nil && abs.GreaterThan(*hi) {
			return false
		}
		return true
	case core.RulePattern:
		return m.matchPattern(ctx, rule, value, in.Description)
	default:
		return false
	}
}

func (m *Matcher) matchPattern(ctx context.Context, rule core.CategorizationRule, pattern, text string) bool {
	re, err := m.patterns.GetOrLoad(pattern, func() (*regexp.Regexp, error) {
		return CompilePattern(pattern)
	})
	if err != nil {
		m.logger.WarnContext(ctx, "Skipping rejected pattern rule", log.FieldRuleID, rule.ID, log.FieldError, err)
		return false
	}
	text = truncateInput(text)

	done := make(chan bool, 1)
	go func() { done <- re.MatchString(text) }()

	timer := time.NewTimer(m.budget)
	defer timer.Stop()
	select {
	case ok := <-done:
		return ok
	case <-timer.C:
		m.logger.WarnContext(ctx, "Pattern rule exceeded its time budget", log.FieldRuleID, rule.ID, "budget", m.budget)
		return false
	}
}

// truncateInput cuts text to at most MaxPatternInput bytes without splitting
// a multi-byte rune.
func truncateInput(text string) string {
	if len(text) <= MaxPatternInput {
		return text
	}
	cut := MaxPatternInput
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// ValidatePattern rejects patterns that are too long, do not parse, or nest
// repetition deeper than MaxRepeatDepth.
func ValidatePattern(pattern string) error {
	if len(pattern) > MaxPatternLength {
		return core.NewError(core.KindValidation, core.CodeInvalidRule, "pattern is longer than 256 bytes")
	}
	parsed, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return core.WrapError(core.KindValidation, core.CodeInvalidRule, "pattern does not parse", err)
	}
	if repeatDepth(parsed) > MaxRepeatDepth {
		return core.NewError(core.KindValidation, core.CodeInvalidRule, "pattern nests repetition too deeply")
	}
	return nil
}

// CompilePattern validates and compiles a case-insensitive pattern.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, core.WrapError(core.KindValidation, core.CodeInvalidRule, "pattern does not compile", err)
	}
	return re, nil
}

func repeatDepth(re *syntax.Regexp) int {
	deepest := 0
	for _, sub := range re.Sub {
		if d := repeatDepth(sub); d > deepest {
			deepest = d
		}
	}
	switch re.Op {
	case syntax.OpStar, syntax.OpPlus, syntax.OpQuest, syntax.OpRepeat:
		return deepest + 1
	}
	return deepest
}

// ParseAmountRange parses "min..max"; either bound may be omitted.
func ParseAmountRange(value string) (lo, hi *decimal.Decimal, err error) {
	parts := strings.SplitN(strings.TrimSpace(value), "..", 2)
	if len(parts) != 2 {
		return nil, nil, core.NewError(core.KindValidation, core.CodeInvalidRule, "amount range must look like min..max")
	}
	parse := func(s string) (*decimal.Decimal, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		d, err := core.ParseAmount(s)
		if err != nil {
			return nil, core.WrapError(core.KindValidation, core.CodeInvalidRule, "amount range bound is not a number", err)
		}
		return &d, nil
	}
	if lo, err = parse(parts[0]); err != nil {
		return nil, nil, err
	}
	if hi, err = parse(parts[1]); err != nil {
		return nil, nil, err
	}
	if lo == nil && hi == nil {
		return nil, nil, core.NewError(core.KindValidation, core.CodeInvalidRule, "amount range needs at least one bound")
	}
	if lo != nil && hi != nil && hi.LessThan(*lo) {
		return nil, nil, core.NewError(core.KindValidation, core.CodeInvalidRule, "amount range max is below min")
	}
	return lo, hi, nil
}

// ValidateRule checks a rule before it is stored.
func ValidateRule(rule core.CategorizationRule) error {
	if !rule.Kind.Valid() {
		return core.NewError(core.KindValidation, core.CodeInvalidRule, "unknown rule kind "+string(rule.Kind))
	}
	if strings.TrimSpace(rule.Value) == "" {
		return core.NewError(core.KindValidation, core.CodeInvalidRule, "rule value is empty")
	}
	if strings.TrimSpace(rule.CategoryID) == "" {
		return core.NewError(core.KindValidation, core.CodeInvalidRule, "rule needs a category")
	}
	switch rule.Kind {
	case core.RulePattern:
		return ValidatePattern(rule.Value)
	case core.RuleAmountRange:
		_, _, err := ParseAmountRange(rule.Value)
		return err
	}
	return nil
}

func containsFold(s, substr string) bool {
	if s == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
