package storage

import (
	"context"
	"database/sql"
	"errors"

	"finsync/internal/core"
	"finsync/internal/log"
)

func scanCategory(s scanner) (core.Category, error) {
	var (
		c     core.Category
		owner sql.NullString
	)
	if err := s.Scan(&c.ID, &owner, &c.Name, &c.Icon); err != nil {
		return c, err
	}
	c.UserID = stringPtr(owner)
	return c, nil
}

// FindCategoryByName looks the name up case-insensitively among the global
// catalog and userID's own categories. A global match wins. Returns nil, nil
// when nothing matches.
func (r *SQLiteRepository) FindCategoryByName(ctx context.Context, userID, name string) (*core.Category, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, user_id, name, icon FROM categories
		WHERE lower(name) = lower(?) AND (user_id IS NULL OR user_id = ?)
		ORDER BY user_id IS NOT NULL
		LIMIT 1`, name, userID)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("find category", err)
	}
	return &c, nil
}

// CreateCategory inserts a private category. When a concurrent caller
// created the same name first, c is filled from the existing row instead.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, c *core.Category) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO categories (id, user_id, name, icon, created_at)
		VALUES (?, ?, ?, ?, ?)`, c.ID, nullString(c.UserID), c.Name, c.Icon, r.timestamp())
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) || c.UserID == nil {
		return wrapErr("create category", err)
	}

	existing, findErr := r.FindCategoryByName(ctx, *c.UserID, c.Name)
	if findErr != nil || existing == nil {
		return wrapErr("create category", err)
	}
	r.logger.DebugContext(ctx, "Category already existed", log.FieldCategory, c.Name, log.FieldUserID, *c.UserID)
	*c = *existing
	return nil
}

// GetCategory returns the category when it is global or owned by userID.
func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, id string) (*core.Category, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, user_id, name, icon FROM categories
		WHERE id = ? AND (user_id IS NULL OR user_id = ?)`, id, userID)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewError(core.KindNotFound, core.CodeCategoryNotFound, "category not found")
	}
	if err != nil {
		return nil, wrapErr("get category", err)
	}
	return &c, nil
}

// ListCategories returns the global catalog plus userID's categories by name.
func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, name, icon FROM categories
		WHERE user_id IS NULL OR user_id = ?
		ORDER BY lower(name)`, userID)
	if err != nil {
		return nil, wrapErr("list categories", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, wrapErr("scan category", err)
		}
		out = append(out, c)
	}
	return out, wrapErr("list categories", rows.Err())
}
