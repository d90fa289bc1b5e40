package categorize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"finsync/internal/cache"
	"finsync/internal/core"
	"finsync/internal/log"
)

const (
	categoryCacheSize = 1024
	categoryCacheTTL  = 10 * time.Minute
)

// Resolver turns engine labels into persisted categories.
type Resolver struct {
	store  CategoryStore
	cache  *cache.LRUCache[core.Category]
	logger *log.Logger
}

func NewResolver(store CategoryStore, logger *log.Logger) *Resolver {
	return &Resolver{
		store:  store,
		cache:  cache.NewLRUCache[core.Category](categoryCacheSize, categoryCacheTTL),
		logger: log.Or(logger, log.ComponentCategorize),
	}
}

// Cache exposes the lookup cache for janitor registration.
func (r *Resolver) Cache() *cache.LRUCache[core.Category] {
	return r.cache
}

// Resolve returns the category id for a classification result. Rule results
// already carry an id; labels are looked up by titleized name and created as
// a private category on first use.
func (r *Resolver) Resolve(ctx context.Context, userID string, res Result) (string, error) {
	if res.CategoryID != "" {
		return res.CategoryID, nil
	}
	c, err := r.ResolveLabel(ctx, userID, res.Label)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// ResolveLabel finds or creates the category named after label.
func (r *Resolver) ResolveLabel(ctx context.Context, userID, label string) (core.Category, error) {
	name := core.Titleize(label)
	if name == "" {
		name = core.UncategorizedName
	}
	key := userID + "\x00" + strings.ToLower(name)

	return r.cache.GetOrLoad(key, func() (core.Category, error) {
		found, err := r.store.FindCategoryByName(ctx, userID, name)
		if err != nil {
			return core.Category{}, fmt.Errorf("find category %q: %w", name, err)
		}
		if found != nil {
			return *found, nil
		}

		owner := userID
		c := core.Category{
			ID:     uuid.NewString(),
			UserID: &owner,
			Name:   name,
			Icon:   IconFor(label),
		}
		if err := r.store.CreateCategory(ctx, &c); err != nil {
			return core.Category{}, fmt.Errorf("create category %q: %w", name, err)
		}
		r.logger.InfoContext(ctx, "Created private category", log.FieldUserID, userID, log.FieldCategory, name)
		return c, nil
	})
}
