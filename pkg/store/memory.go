package store

import (
	"context"
	"sort"
	"sync"

	"github.com/vango-go/vai-interview/pkg/core/report"
)

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	reports map[string]report.Report
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{reports: make(map[string]report.Report)}
}

var _ Store = (*Memory)(nil)

func (m *Memory) SaveReport(ctx context.Context, r report.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.ID] = r
	return nil
}

func (m *Memory) GetReport(ctx context.Context, id string) (report.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return report.Report{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListReports(ctx context.Context, limit int) ([]report.Report, error) {
	limit = normalizeLimit(limit)
	m.mu.RLock()
	out := make([]report.Report, 0, len(m.reports))
	for _, r := range m.reports {
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() {}
