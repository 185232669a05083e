package reporting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/udaykiran1867/tce-project1/internal/inventory"
)

type memoryReports struct {
	mu        sync.Mutex
	products  []inventory.Product
	movements []inventory.Movement
	records   []ProductRecord
	calls     map[string]int
	lastLimit int
	err       error

	// gate, when set, holds movement reads until closed.
	gate    chan struct{}
	entered chan struct{}
}

func newMemoryReports() *memoryReports {
	return &memoryReports{calls: map[string]int{}}
}

func (m *memoryReports) hit(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
	return m.err
}

func (m *memoryReports) callCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *memoryReports) addMovement(productID int64, action inventory.ActionType, qty int, at time.Time) {
	m.movements = append(m.movements, inventory.Movement{
		ID:        int64(len(m.movements) + 1),
		ProductID: productID,
		Action:    action,
		Quantity:  qty,
		CreatedAt: at,
	})
}

func (m *memoryReports) MovementsBetween(ctx context.Context, start, end time.Time) ([]inventory.Movement, error) {
	if m.gate != nil {
		m.entered <- struct{}{}
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.hit("movements"); err != nil {
		return nil, err
	}
	var out []inventory.Movement
	for _, mv := range m.movements {
		if !mv.CreatedAt.Before(start) && mv.CreatedAt.Before(end) {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m *memoryReports) RecordsBetween(_ context.Context, _, _ time.Time) ([]ProductRecord, error) {
	if err := m.hit("records"); err != nil {
		return nil, err
	}
	return append([]ProductRecord(nil), m.records...), nil
}

func (m *memoryReports) PriorTotals(_ context.Context, before time.Time) ([]PriorTotal, error) {
	if err := m.hit("prior"); err != nil {
		return nil, err
	}
	type key struct {
		id     int64
		action inventory.ActionType
	}
	totals := map[key]*PriorTotal{}
	for _, mv := range m.movements {
		if !mv.CreatedAt.Before(before) {
			continue
		}
		k := key{mv.ProductID, mv.Action}
		t, ok := totals[k]
		if !ok {
			t = &PriorTotal{ProductID: mv.ProductID, Action: mv.Action}
			totals[k] = t
		}
		t.Magnitude += abs(mv.Quantity)
		t.Net += mv.Quantity
	}
	var out []PriorTotal
	for _, t := range totals {
		out = append(out, *t)
	}
	return out, nil
}

func (m *memoryReports) Products(context.Context) ([]inventory.Product, error) {
	if err := m.hit("products"); err != nil {
		return nil, err
	}
	return append([]inventory.Product(nil), m.products...), nil
}

func (m *memoryReports) RecentLogs(_ context.Context, limit int) ([]LogEntry, error) {
	if err := m.hit("recent"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.lastLimit = limit
	m.mu.Unlock()
	logs := m.entries(time.Time{}, time.Time{})
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (m *memoryReports) LogsBetween(_ context.Context, start, end time.Time) ([]LogEntry, error) {
	if err := m.hit("logs"); err != nil {
		return nil, err
	}
	return m.entries(start, end), nil
}

func (m *memoryReports) DefectiveRemarks(_ context.Context, limit int) ([]DefectiveRemark, error) {
	if err := m.hit("remarks"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.lastLimit = limit
	m.mu.Unlock()
	out := []DefectiveRemark{}
	for _, mv := range m.movements {
		if mv.Action != inventory.ActionDefectiveRemoved {
			continue
		}
		out = append(out, DefectiveRemark{ID: mv.ID, ProductID: mv.ProductID, Quantity: abs(mv.Quantity), Remark: mv.Remarks, CreatedAt: mv.CreatedAt})
	}
	return out, nil
}

func (m *memoryReports) entries(start, end time.Time) []LogEntry {
	out := []LogEntry{}
	for _, mv := range m.movements {
		if !start.IsZero() && (mv.CreatedAt.Before(start) || !mv.CreatedAt.Before(end)) {
			continue
		}
		out = append(out, LogEntry{
			ID:              mv.ID,
			ProductID:       mv.ProductID,
			ActionType:      string(mv.Action),
			QuantityChanged: mv.Quantity,
			CreatedAt:       mv.CreatedAt,
			ReferenceID:     mv.ReferenceID,
		})
	}
	return out
}

type capturingRenderer struct {
	html string
	err  error
}

func (c *capturingRenderer) RenderHTML(_ context.Context, html string) ([]byte, error) {
	c.html = html
	if c.err != nil {
		return nil, c.err
	}
	return []byte("%PDF-1.4 test"), nil
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func borrowRecord(id, productID int64, name string, qty int, issue *time.Time, created time.Time) ProductRecord {
	return ProductRecord{
		Record: inventory.Record{
			ID:          id,
			ProductID:   productID,
			StudentName: "Asha",
			USN:         "1TC21CS001",
			Section:     "A",
			Type:        inventory.TransactionBorrowed,
			Quantity:    qty,
			IssueDate:   issue,
			CreatedAt:   created,
		},
		ProductName: name,
	}
}
