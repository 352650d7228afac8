package history

import (
    "context"
    "sync"

    "github.com/google/uuid"

    "fleetdash/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu      sync.Mutex
    reports map[string]model.RunReport
    order   []string // insertion order, newest last
}

func NewMemory() *Memory {
    return &Memory{reports: map[string]model.RunReport{}}
}

func (m *Memory) SaveReport(ctx context.Context, r model.RunReport) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if r.ID == "" { r.ID = uuid.New().String() }
    m.reports[r.ID] = r
    m.order = append(m.order, r.ID)
    return r.ID, nil
}

func (m *Memory) GetReport(ctx context.Context, id string) (model.RunReport, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.reports[id]
    if !ok { return model.RunReport{}, ErrNotFound }
    return r, nil
}

func (m *Memory) ListReports(ctx context.Context, mode model.Mode, limit int) ([]model.RunReport, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 50 }
    out := []model.RunReport{}
    for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
        r := m.reports[m.order[i]]
        if mode != "" && r.Mode != mode { continue }
        out = append(out, r)
    }
    return out, nil
}
