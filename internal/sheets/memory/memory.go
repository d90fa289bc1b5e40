// Package memory keeps exported sync runs in process. It backs the export
// port when no spreadsheet is configured and in tests.
package memory

import (
	"context"
	"sync"

	"finsync/internal/core"
	"finsync/internal/sheets"
)

var (
	_ sheets.RunExporter = (*Store)(nil)
	_ sheets.RunLister   = (*Store)(nil)
)

type Store struct {
	mu    sync.Mutex
	rows  []sheets.Row
	limit int
}

// New returns a store keeping at most limit rows; zero keeps everything.
func New(limit int) *Store {
	return &Store{limit: limit}
}

// ExportRun appends the run, dropping the oldest row once the limit is hit.
func (s *Store) ExportRun(_ context.Context, run core.SyncRun, account core.LinkedAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, sheets.RowFromRun(run, account))
	if s.limit > 0 && len(s.rows) > s.limit {
		s.rows = append([]sheets.Row(nil), s.rows[len(s.rows)-s.limit:]...)
	}
	return nil
}

// ListRuns returns exported rows, oldest first.
func (s *Store) ListRuns(_ context.Context) ([]sheets.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.Row(nil), s.rows...), nil
}
