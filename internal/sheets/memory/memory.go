package memory

import (
	"context"
	"fmt"
	"sync"

	"envelope/internal/core"
	"envelope/internal/sheets"
)

type key struct {
	budget string
	month  core.MonthKey
}

// Store keeps the latest export of each month in memory. It backs local
// runs and tests when no spreadsheet is configured.
type Store struct {
	mu      sync.Mutex
	exports map[key]sheets.MonthExport
	writes  int
}

var (
	_ sheets.MonthExporter  = (*Store)(nil)
	_ sheets.OverviewReader = (*Store)(nil)
)

func New() *Store {
	return &Store{exports: make(map[key]sheets.MonthExport)}
}

// ExportMonth replaces the stored month and returns a synthetic reference.
func (s *Store) ExportMonth(_ context.Context, e sheets.MonthExport) (string, error) {
	if e.Overview.Budget == "" {
		return "", fmt.Errorf("export without a budget name: %w", core.ErrEmptyName)
	}
	e.Register = append([]sheets.RegisterRow(nil), e.Register...)
	e.Overview.ByCategory = append([]core.CategoryAmount(nil), e.Overview.ByCategory...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports[key{e.Overview.Budget, e.Overview.Month}] = e
	s.writes++
	return fmt.Sprintf("mem:%s/%s#%d", e.Overview.Budget, e.Overview.Month, s.writes), nil
}

func (s *Store) ReadMonthOverview(_ context.Context, budget string, month core.MonthKey) (core.MonthOverview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exports[key{budget, month}]
	if !ok {
		return core.MonthOverview{}, fmt.Errorf("export %s/%s: %w", budget, month, core.ErrNotFound)
	}
	return e.Overview, nil
}

// Register returns the exported register of a month.
func (s *Store) Register(budget string, month core.MonthKey) []sheets.RegisterRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.RegisterRow(nil), s.exports[key{budget, month}].Register...)
}

// Writes counts exports since the store was created.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
