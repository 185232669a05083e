package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/udaykiran1867/tce-project1/internal/shared"
)

type memoryState struct {
	products  map[int64]Product
	stock     map[int64]Stock
	records   map[int64]Record
	movements []Movement
	nextID    int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		products:  make(map[int64]Product, len(s.products)),
		stock:     make(map[int64]Stock, len(s.stock)),
		records:   make(map[int64]Record, len(s.records)),
		movements: append([]Movement(nil), s.movements...),
		nextID:    s.nextID,
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.stock {
		out.stock[k] = v
	}
	for k, v := range s.records {
		out.records[k] = v
	}
	return out
}

// memoryRepo serialises transactions with a mutex and restores the previous
// state when the callback fails.
type memoryRepo struct {
	mu                 sync.Mutex
	state              memoryState
	remarksUnsupported bool
	failMovements      bool
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		products: make(map[int64]Product),
		stock:    make(map[int64]Stock),
		records:  make(map[int64]Record),
	}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) ListProducts(ctx context.Context) ([]ProductStock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ProductStock
	for id, p := range r.state.products {
		s := r.state.stock[id]
		out = append(out, ProductStock{Product: p, MasterCount: s.MasterCount, AvailableCount: s.AvailableCount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) GetProductStock(ctx context.Context, id int64) (ProductStock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.products[id]
	if !ok {
		return ProductStock{}, ErrProductNotFound
	}
	s := r.state.stock[id]
	return ProductStock{Product: p, MasterCount: s.MasterCount, AvailableCount: s.AvailableCount}, nil
}

func (r *memoryRepo) ListRecords(ctx context.Context) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.state.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memoryRepo) GetRecord(ctx context.Context, id int64) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.state.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (r *memoryRepo) stockOf(productID int64) Stock {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.stock[productID]
}

func (r *memoryRepo) movementsOf(productID int64) []Movement {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Movement
	for _, m := range r.state.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out
}

func (r *memoryRepo) replay(productID int64) int {
	total := 0
	for _, m := range r.movementsOf(productID) {
		total += m.Quantity
	}
	return total
}

func (tx *memoryTx) id() int64 {
	tx.repo.state.nextID++
	return tx.repo.state.nextID
}

func (tx *memoryTx) InsertProduct(ctx context.Context, p Product) (Product, error) {
	p.ID = tx.id()
	tx.repo.state.products[p.ID] = p
	return p, nil
}

func (tx *memoryTx) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, ok := tx.repo.state.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (tx *memoryTx) UpdateProduct(ctx context.Context, p Product) error {
	if _, ok := tx.repo.state.products[p.ID]; !ok {
		return ErrProductNotFound
	}
	tx.repo.state.products[p.ID] = p
	return nil
}

func (tx *memoryTx) DeleteProduct(ctx context.Context, id int64) error {
	if _, ok := tx.repo.state.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(tx.repo.state.products, id)
	for recID, rec := range tx.repo.state.records {
		if rec.ProductID == id {
			delete(tx.repo.state.records, recID)
		}
	}
	return nil
}

func (tx *memoryTx) InsertStock(ctx context.Context, s Stock) error {
	tx.repo.state.stock[s.ProductID] = s
	return nil
}

func (tx *memoryTx) GetStockForUpdate(ctx context.Context, productID int64) (Stock, error) {
	s, ok := tx.repo.state.stock[productID]
	if !ok {
		return Stock{}, ErrStockMissing
	}
	return s, nil
}

func (tx *memoryTx) UpdateStock(ctx context.Context, s Stock) error {
	if s.AvailableCount < 0 || s.AvailableCount > s.MasterCount {
		return ErrInsufficientStock
	}
	tx.repo.state.stock[s.ProductID] = s
	return nil
}

func (tx *memoryTx) DeleteStock(ctx context.Context, productID int64) error {
	delete(tx.repo.state.stock, productID)
	return nil
}

func (tx *memoryTx) ListStock(ctx context.Context, forUpdate bool) ([]Stock, error) {
	var out []Stock
	for _, s := range tx.repo.state.stock {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (bool, error) {
	if tx.repo.failMovements {
		return false, context.DeadlineExceeded
	}
	stored := m.Remarks != nil
	if tx.repo.remarksUnsupported {
		m.Remarks = nil
		stored = false
	}
	m.ID = tx.id()
	tx.repo.state.movements = append(tx.repo.state.movements, m)
	return stored, nil
}

func (tx *memoryTx) DeleteMovements(ctx context.Context, productID int64) error {
	kept := tx.repo.state.movements[:0]
	for _, m := range tx.repo.state.movements {
		if m.ProductID != productID {
			kept = append(kept, m)
		}
	}
	tx.repo.state.movements = kept
	return nil
}

func (tx *memoryTx) MovementTotals(ctx context.Context) (map[int64]int, error) {
	out := make(map[int64]int)
	for _, m := range tx.repo.state.movements {
		out[m.ProductID] += m.Quantity
	}
	return out, nil
}

func (tx *memoryTx) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if _, ok := tx.repo.state.products[rec.ProductID]; !ok {
		return Record{}, ErrProductNotFound
	}
	rec.ID = tx.id()
	tx.repo.state.records[rec.ID] = rec
	return rec, nil
}

func (tx *memoryTx) GetRecordForUpdate(ctx context.Context, id int64) (Record, error) {
	rec, ok := tx.repo.state.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (tx *memoryTx) UpdateRecord(ctx context.Context, rec Record) error {
	tx.repo.state.records[rec.ID] = rec
	return nil
}

func (tx *memoryTx) DeleteRecord(ctx context.Context, id int64) error {
	if _, ok := tx.repo.state.records[id]; !ok {
		return ErrRecordNotFound
	}
	delete(tx.repo.state.records, id)
	return nil
}

type memoryIdempotency struct {
	mu        sync.Mutex
	results   map[string]int64
	claimedAt map[string]time.Time
	ttl       time.Duration
	now       func() time.Time
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{
		results:   make(map[string]int64),
		claimedAt: make(map[string]time.Time),
		ttl:       shared.DefaultClaimTTL,
		now:       time.Now,
	}
}

func (m *memoryIdempotency) Claim(ctx context.Context, key, module string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	id, ok := m.results[key]
	if !ok {
		m.results[key] = 0
		m.claimedAt[key] = now
		return 0, false, nil
	}
	if id != 0 {
		return id, true, nil
	}
	if now.Sub(m.claimedAt[key]) >= m.ttl {
		m.claimedAt[key] = now
		return 0, false, nil
	}
	return 0, false, shared.ErrIdempotencyInFlight
}

func (m *memoryIdempotency) Complete(ctx context.Context, key string, resultID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[key] = resultID
	return nil
}

func (m *memoryIdempotency) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.results, key)
	return nil
}

type countingCache struct {
	mu    sync.Mutex
	bumps int
}

func (c *countingCache) Bump(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumps++
	return nil
}

func (c *countingCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bumps
}
