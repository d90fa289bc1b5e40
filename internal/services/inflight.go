package services

import (
	"sync"

	"finsync/internal/core"
)

// InFlight serializes syncs per account inside one process.
type InFlight struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{active: make(map[string]struct{})}
}

// TryAcquire claims accountID. It fails with SYNC_IN_PROGRESS when a sync for
// the account is already running. The returned release func is idempotent.
func (g *InFlight) TryAcquire(accountID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[accountID]; busy {
		return nil, core.NewError(core.KindConflict, core.CodeSyncInProgress, "a sync for this account is already running")
	}
	g.active[accountID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, accountID)
			g.mu.Unlock()
		})
	}, nil
}

func (g *InFlight) Active(accountID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[accountID]
	return ok
}
