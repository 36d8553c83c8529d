package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"stockledger/internal/domain"
	apperrors "stockledger/internal/errors"
	"stockledger/internal/stock/store"
)

type versioned[T any] struct {
	value   T
	version uint64
}

type reservationKey struct {
	productID string
	orderID   string
}

type docKind uint8

const (
	kindProduct docKind = iota
	kindReservation
	kindCommitment
)

// docKey names one document a transaction read.
type docKey struct {
	kind      docKind
	productID string
	orderID   string
}

type memoryTenant struct {
	settings     *domain.TenantSettings
	products     map[string]versioned[domain.StoredStock]
	reservations map[reservationKey]versioned[domain.Reservation]
	commitments  map[string]versioned[domain.OrderCommitment]
}

func newMemoryTenant() *memoryTenant {
	return &memoryTenant{
		products:     make(map[string]versioned[domain.StoredStock]),
		reservations: make(map[reservationKey]versioned[domain.Reservation]),
		commitments:  make(map[string]versioned[domain.OrderCommitment]),
	}
}

// MemoryStore keeps tenants in process memory with optimistic concurrency:
// every document carries a version, a transaction records the versions it
// read and its commit fails if any of them moved.
type MemoryStore struct {
	mu              sync.Mutex
	tenants         map[string]*memoryTenant
	pendingConflict int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]*memoryTenant)}
}

var _ store.Store = (*MemoryStore)(nil)

// tenant must be called with mu held.
func (s *MemoryStore) tenant(tenantID string) *memoryTenant {
	t, ok := s.tenants[tenantID]
	if !ok {
		t = newMemoryTenant()
		s.tenants[tenantID] = t
	}
	return t
}

// SeedProduct writes a raw stock document outside the ledger, the way the
// product catalog creates records.
func (s *MemoryStore) SeedProduct(tenantID, productID string, raw domain.StoredStock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(tenantID)
	cur := t.products[productID]
	t.products[productID] = versioned[domain.StoredStock]{value: raw, version: cur.version + 1}
}

func (s *MemoryStore) SeedTenantSettings(settings domain.TenantSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tenant(settings.TenantID).settings = &settings
}

// InjectConflicts makes the next n commits fail with a conflict.
func (s *MemoryStore) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingConflict = n
}

// RawStock returns the stored document for a product, including the legacy
// quantity mirror.
func (s *MemoryStore) RawStock(tenantID, productID string) (domain.StoredStock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.tenant(tenantID).products[productID]
	return v.value, ok
}

func (s *MemoryStore) Stock(tenantID, productID string) (domain.StockRecord, bool) {
	raw, ok := s.RawStock(tenantID, productID)
	if !ok {
		return domain.StockRecord{}, false
	}
	return domain.NormalizeStock(productID, raw), true
}

func (s *MemoryStore) Reservation(tenantID, productID, orderID string) (domain.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.tenant(tenantID).reservations[reservationKey{productID: productID, orderID: orderID}]
	return v.value, ok
}

// ActiveReservations lists every ACTIVE reservation held against a product.
func (s *MemoryStore) ActiveReservations(tenantID, productID string) []domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []domain.Reservation
	for _, v := range s.tenant(tenantID).reservations {
		if v.value.ProductID == productID && v.value.IsActive() {
			active = append(active, v.value)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].OrderID < active[j].OrderID })
	return active
}

func (s *MemoryStore) FindByIDsAndTenant(ctx context.Context, ids []string, tenantID string) ([]domain.StockRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(tenantID)
	var records []domain.StockRecord
	for _, id := range ids {
		if v, ok := t.products[id]; ok {
			records = append(records, domain.NormalizeStock(id, v.value))
		}
	}
	return records, nil
}

func (s *MemoryStore) FindByTenantID(ctx context.Context, tenantID string) (*domain.TenantSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[tenantID]
	if !ok || t.settings == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("settings for tenant %s not found", tenantID))
	}
	settings := *t.settings
	return &settings, nil
}

func (s *MemoryStore) RunInTx(ctx context.Context, tenantID string, fn func(ctx context.Context, tx store.Tx) error) error {
	tx := &memoryTx{
		store:    s,
		tenantID: tenantID,
		reads:    make(map[docKey]uint64),
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingConflict > 0 {
		s.pendingConflict--
		return apperrors.NewTransactionConflictError("memory store: injected conflict", nil)
	}

	t := s.tenant(tx.tenantID)
	for key, readVersion := range tx.reads {
		if t.version(key) != readVersion {
			return apperrors.NewTransactionConflictError(
				fmt.Sprintf("memory store: %s changed since read", key), nil)
		}
	}

	for _, w := range tx.writes {
		w(t)
	}
	return nil
}

func (t *memoryTenant) version(key docKey) uint64 {
	switch key.kind {
	case kindProduct:
		return t.products[key.productID].version
	case kindReservation:
		return t.reservations[reservationKey{productID: key.productID, orderID: key.orderID}].version
	default:
		return t.commitments[key.orderID].version
	}
}

func (k docKey) String() string {
	switch k.kind {
	case kindProduct:
		return fmt.Sprintf("product %q", k.productID)
	case kindReservation:
		return fmt.Sprintf("reservation %q of order %q", k.productID, k.orderID)
	default:
		return fmt.Sprintf("stock order %q", k.orderID)
	}
}

type memoryTx struct {
	store    *MemoryStore
	tenantID string
	reads    map[docKey]uint64
	writes   []func(t *memoryTenant)
}

func (tx *memoryTx) GetCommitment(ctx context.Context, orderID string) (*domain.OrderCommitment, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	v, ok := tx.store.tenant(tx.tenantID).commitments[orderID]
	tx.reads[docKey{kind: kindCommitment, orderID: orderID}] = v.version
	if !ok {
		return nil, nil
	}

	c := v.value
	c.Items = append([]domain.Item(nil), v.value.Items...)
	return &c, nil
}

func (tx *memoryTx) GetStock(ctx context.Context, productIDs []string) (map[string]domain.StockRecord, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	t := tx.store.tenant(tx.tenantID)
	records := make(map[string]domain.StockRecord, len(productIDs))
	for _, id := range productIDs {
		v, ok := t.products[id]
		tx.reads[docKey{kind: kindProduct, productID: id}] = v.version
		if ok {
			records[id] = domain.NormalizeStock(id, v.value)
		}
	}
	return records, nil
}

func (tx *memoryTx) GetReservations(ctx context.Context, orderID string, productIDs []string) (map[string]domain.Reservation, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	t := tx.store.tenant(tx.tenantID)
	reservations := make(map[string]domain.Reservation, len(productIDs))
	for _, id := range productIDs {
		v, ok := t.reservations[reservationKey{productID: id, orderID: orderID}]
		tx.reads[docKey{kind: kindReservation, productID: id, orderID: orderID}] = v.version
		if ok {
			reservations[id] = v.value
		}
	}
	return reservations, nil
}

func (tx *memoryTx) PutStock(ctx context.Context, rec domain.StockRecord) error {
	stored := rec.Stored()
	tx.writes = append(tx.writes, func(t *memoryTenant) {
		cur := t.products[rec.ProductID]
		t.products[rec.ProductID] = versioned[domain.StoredStock]{value: stored, version: cur.version + 1}
	})
	return nil
}

func (tx *memoryTx) PutReservation(ctx context.Context, r domain.Reservation) error {
	key := reservationKey{productID: r.ProductID, orderID: r.OrderID}
	tx.writes = append(tx.writes, func(t *memoryTenant) {
		cur := t.reservations[key]
		t.reservations[key] = versioned[domain.Reservation]{value: r, version: cur.version + 1}
	})
	return nil
}

func (tx *memoryTx) PutCommitment(ctx context.Context, c domain.OrderCommitment) error {
	c.Items = append([]domain.Item(nil), c.Items...)
	tx.writes = append(tx.writes, func(t *memoryTenant) {
		cur := t.commitments[c.OrderID]
		t.commitments[c.OrderID] = versioned[domain.OrderCommitment]{value: c, version: cur.version + 1}
	})
	return nil
}
