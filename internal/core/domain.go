package core

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

const (
	AccountBank        AccountKind = "bank"
	AccountMobileMoney AccountKind = "mobile_money"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Hourly SyncFrequency = "hourly"
	Daily  SyncFrequency = "daily"
	Weekly SyncFrequency = "weekly"
)

const (
	RuleKeyword     RuleKind = "keyword"
	RuleMerchant    RuleKind = "merchant"
	RuleAmountRange RuleKind = "amount_range"
	RulePattern     RuleKind = "pattern"
)

// UncategorizedName is the catalog entry every suggestion list falls back to.
const UncategorizedName = "Uncategorized"

type (
	AccountKind     string
	TransactionType string
	SyncFrequency   string
	RuleKind        string

	// LinkedAccount is an external account the user connected for syncing.
	LinkedAccount struct {
		ID              string
		UserID          string
		Name            string
		Kind            AccountKind
		Institution     string
		Balance         decimal.Decimal
		BankAccountID   string
		MoMoPhone       string
		MoMoReferenceID string
		SyncFrequency   SyncFrequency
		LastSyncedAt    *time.Time
		IsActive        bool
	}

	// ProviderRef identifies an account at its provider.
	ProviderRef struct {
		Kind        AccountKind
		AccountID   string
		Phone       string
		ReferenceID string
	}

	Transaction struct {
		ID          string
		UserID      string
		AccountID   *string
		Amount      decimal.Decimal // positive magnitude; direction lives in Type
		Type        TransactionType
		CategoryID  *string
		Description string
		Date        time.Time

		// Provider-owned fields, set only for synced rows.
		Provider       AccountKind
		ProviderTxID   *string
		ProviderStatus string
		Metadata       map[string]string

		AutoCategorized bool
		Confidence      *float64
		SyncRunID       *string

		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Category struct {
		ID     string
		UserID *string // nil for the global catalog
		Name   string
		Icon   string
	}

	CategorizationRule struct {
		ID           string
		UserID       string
		CategoryID   string
		CategoryName string
		Kind         RuleKind
		Value        string
		IsActive     bool
		Priority     int
	}

	DateRange struct {
		From time.Time
		To   time.Time
	}
)

// IsSynced reports whether the transaction originated from a provider.
func (t Transaction) IsSynced() bool {
	return t.ProviderTxID != nil && *t.ProviderTxID != ""
}

// Merchant returns the normalized merchant stored with a synced transaction.
func (t Transaction) Merchant() string {
	if t.Metadata == nil {
		return ""
	}
	return t.Metadata[MetaMerchant]
}

// Metadata keys written by the sync pipeline.
const (
	MetaMerchant     = "merchant"
	MetaCounterparty = "counterparty"
	MetaCurrency     = "currency"
	MetaNarration    = "narration"
)

// IsGlobal reports whether the category belongs to the shared catalog.
func (c Category) IsGlobal() bool {
	return c.UserID == nil
}

// VisibleTo reports whether userID may assign the category.
func (c Category) VisibleTo(userID string) bool {
	return c.UserID == nil || *c.UserID == userID
}

// ProviderRef returns the provider reference for the account kind.
// A missing identifier is a fatal account-state error raised before any network call.
func (a LinkedAccount) ProviderRef() (ProviderRef, error) {
	switch a.Kind {
	case AccountBank:
		id := strings.TrimSpace(a.BankAccountID)
		if id == "" {
			return ProviderRef{}, NewError(KindAccountState, CodeInvalidAccount, "bank account is missing its provider account id")
		}
		return ProviderRef{Kind: a.Kind, AccountID: id}, nil
	case AccountMobileMoney:
		phone := strings.TrimSpace(a.MoMoPhone)
		if phone == "" {
			return ProviderRef{}, NewError(KindAccountState, CodeInvalidAccount, "mobile money account is missing its phone number")
		}
		return ProviderRef{Kind: a.Kind, Phone: phone, ReferenceID: strings.TrimSpace(a.MoMoReferenceID)}, nil
	default:
		return ProviderRef{}, NewError(KindAccountState, CodeInvalidAccount, "unsupported account kind "+string(a.Kind))
	}
}

// Frequency returns the configured sync frequency, defaulting to daily.
func (a LinkedAccount) Frequency() SyncFrequency {
	if a.SyncFrequency == "" {
		return Daily
	}
	return a.SyncFrequency
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (k RuleKind) Valid() bool {
	switch k {
	case RuleKeyword, RuleMerchant, RuleAmountRange, RulePattern:
		return true
	}
	return false
}

// TrailingDays returns the window ending at now.
func TrailingDays(now time.Time, days int) DateRange {
	return DateRange{From: now.AddDate(0, 0, -days), To: now}
}

func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return NewError(KindValidation, CodeInvalidDateRange, "date range needs both bounds")
	}
	if r.To.Before(r.From) {
		return NewError(KindValidation, CodeInvalidDateRange, "date range ends before it starts")
	}
	return nil
}

// Titleize turns a label such as "food_dining" into "Food Dining".
func Titleize(label string) string {
	label = strings.NewReplacer("_", " ", "-", " ").Replace(label)
	words := strings.Fields(strings.ToLower(label))
	for i, w := range words {
		if w == "and" && i > 0 {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
