package categorize

import (
	"context"

	"finsync/internal/core"
)

// CategoryStore is the category catalog as seen by resolution.
type CategoryStore interface {
	// FindCategoryByName matches case-insensitively over the global catalog
	// and the user's private categories. Returns nil, nil when absent.
	FindCategoryByName(ctx context.Context, userID, name string) (*core.Category, error)
	CreateCategory(ctx context.Context, c *core.Category) error
	// GetCategory returns a category visible to userID or a not_found error.
	GetCategory(ctx context.Context, userID, id string) (*core.Category, error)
}

// TransactionStore is what the feedback surface needs from storage.
type TransactionStore interface {
	GetTransaction(ctx context.Context, userID, id string) (*core.Transaction, error)
	// UpdateTransactionCategory sets a user-chosen category, clearing the
	// auto-categorized flag and confidence.
	UpdateTransactionCategory(ctx context.Context, userID, id, categoryID string) error
	// FindSimilarTransactions returns categorized transactions whose
	// description contains word.
	FindSimilarTransactions(ctx context.Context, userID, word string, limit int) ([]core.Transaction, error)
}

// RuleStore persists rules.
type RuleStore interface {
	RuleSource
	CreateRule(ctx context.Context, r *core.CategorizationRule) error
	HasRule(ctx context.Context, userID string, kind core.RuleKind, value string) (bool, error)
}
