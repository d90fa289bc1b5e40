package storage

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"finsync/internal/core"
)

// ListActiveRules returns userID's active rules with the category name
// joined, highest priority first.
func (r *SQLiteRepository) ListActiveRules(ctx context.Context, userID string) ([]core.CategorizationRule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT cr.id, cr.user_id, cr.category_id, c.name, cr.kind, cr.value, cr.is_active, cr.priority
		FROM categorization_rules cr
		JOIN categories c ON c.id = cr.category_id
		WHERE cr.user_id = ? AND cr.is_active = 1
		ORDER BY cr.priority DESC, cr.id`, userID)
	if err != nil {
		return nil, wrapErr("list rules", err)
	}
	defer rows.Close()

	var out []core.CategorizationRule
	for rows.Next() {
		var (
			rule   core.CategorizationRule
			kind   string
			active int
		)
		if err := rows.Scan(&rule.ID, &rule.UserID, &rule.CategoryID, &rule.CategoryName, &kind, &rule.Value, &active, &rule.Priority); err != nil {
			return nil, wrapErr("scan rule", err)
		}
		rule.Kind = core.RuleKind(kind)
		rule.IsActive = active == 1
		out = append(out, rule)
	}
	return out, wrapErr("list rules", rows.Err())
}

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule *core.CategorizationRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO categorization_rules
		(id, user_id, category_id, kind, value, is_active, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.UserID, rule.CategoryID, string(rule.Kind), strings.TrimSpace(rule.Value),
		boolInt(rule.IsActive), rule.Priority, r.timestamp())
	return wrapErr("create rule", err)
}

// HasRule reports whether userID already has an active rule of kind for value.
func (r *SQLiteRepository) HasRule(ctx context.Context, userID string, kind core.RuleKind, value string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categorization_rules
		WHERE user_id = ? AND kind = ? AND lower(value) = lower(?) AND is_active = 1`,
		userID, string(kind), strings.TrimSpace(value)).Scan(&n)
	if err != nil {
		return false, wrapErr("has rule", err)
	}
	return n > 0, nil
}
