package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"stockledger/internal/domain"
	apperrors "stockledger/internal/errors"
	"stockledger/internal/stock/store"
)

// FirestoreStore keeps the ledger under
//
//	tenants/{tenantId}/products/{productId}
//	tenants/{tenantId}/products/{productId}/reservations/{orderId}
//	tenants/{tenantId}/stockOrders/{orderId}
//
// Transactions are optimistic; the library's own retry loop is disabled so
// an Aborted commit reaches the ledger as a conflict.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

var _ store.Store = (*FirestoreStore)(nil)

func (s *FirestoreStore) tenantRef(tenantID string) *firestore.DocumentRef {
	return s.client.Collection("tenants").Doc(tenantID)
}

func (s *FirestoreStore) productRef(tenantID, productID string) *firestore.DocumentRef {
	return s.tenantRef(tenantID).Collection("products").Doc(productID)
}

func (s *FirestoreStore) reservationRef(tenantID, productID, orderID string) *firestore.DocumentRef {
	return s.productRef(tenantID, productID).Collection("reservations").Doc(orderID)
}

func (s *FirestoreStore) commitmentRef(tenantID, orderID string) *firestore.DocumentRef {
	return s.tenantRef(tenantID).Collection("stockOrders").Doc(orderID)
}

type productDoc struct {
	OnHand    *int64    `firestore:"onHand"`
	Reserved  *int64    `firestore:"reserved"`
	Quantity  *int64    `firestore:"quantity"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type reservationDoc struct {
	OrderID    string     `firestore:"orderId"`
	ProductID  string     `firestore:"productId"`
	Quantity   int64      `firestore:"quantity"`
	Status     string     `firestore:"status"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	ConsumedAt *time.Time `firestore:"consumedAt,omitempty"`
	ReleasedAt *time.Time `firestore:"releasedAt,omitempty"`
}

type commitmentItemDoc struct {
	ProductID string `firestore:"productId"`
	Quantity  int64  `firestore:"quantity"`
}

type commitmentDoc struct {
	OrderID   string              `firestore:"orderId"`
	Status    string              `firestore:"status"`
	Items     []commitmentItemDoc `firestore:"items"`
	CreatedAt time.Time           `firestore:"createdAt"`
	UpdatedAt time.Time           `firestore:"updatedAt"`
}

type tenantDoc struct {
	StockControl *bool     `firestore:"stockControl"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (s *FirestoreStore) RunInTx(ctx context.Context, tenantID string, fn func(ctx context.Context, tx store.Tx) error) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{store: s, tx: tx, tenantID: tenantID})
	}, firestore.MaxAttempts(1))
	if err != nil {
		if status.Code(err) == codes.Aborted {
			return apperrors.NewTransactionConflictError("firestore: transaction aborted", err)
		}
		return err
	}
	return nil
}

func (s *FirestoreStore) FindByIDsAndTenant(ctx context.Context, ids []string, tenantID string) ([]domain.StockRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = s.productRef(tenantID, id)
	}

	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("reading products: %w", err)
	}

	var records []domain.StockRecord
	for i, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		rec, err := snapToStock(ids[i], snap)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *FirestoreStore) FindByTenantID(ctx context.Context, tenantID string) (*domain.TenantSettings, error) {
	snap, err := s.tenantRef(tenantID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("settings for tenant %s not found", tenantID))
		}
		return nil, fmt.Errorf("reading tenant %s: %w", tenantID, err)
	}

	var doc tenantDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decoding tenant %s: %w", tenantID, err)
	}

	settings := domain.DefaultTenantSettings(tenantID)
	if doc.StockControl != nil {
		settings.StockControl = *doc.StockControl
	}
	settings.UpdatedAt = doc.UpdatedAt
	return &settings, nil
}

func snapToStock(productID string, snap *firestore.DocumentSnapshot) (domain.StockRecord, error) {
	var doc productDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.StockRecord{}, fmt.Errorf("decoding product %s: %w", productID, err)
	}
	return domain.NormalizeStock(productID, domain.StoredStock{
		OnHand:    doc.OnHand,
		Reserved:  doc.Reserved,
		Quantity:  doc.Quantity,
		UpdatedAt: doc.UpdatedAt,
	}), nil
}

type firestoreTx struct {
	store    *FirestoreStore
	tx       *firestore.Transaction
	tenantID string
}

func (t *firestoreTx) GetCommitment(ctx context.Context, orderID string) (*domain.OrderCommitment, error) {
	snaps, err := t.tx.GetAll([]*firestore.DocumentRef{t.store.commitmentRef(t.tenantID, orderID)})
	if err != nil {
		return nil, fmt.Errorf("reading stock order %s: %w", orderID, err)
	}
	if len(snaps) == 0 || !snaps[0].Exists() {
		return nil, nil
	}

	var doc commitmentDoc
	if err := snaps[0].DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decoding stock order %s: %w", orderID, err)
	}

	items := make([]domain.Item, len(doc.Items))
	for i, item := range doc.Items {
		items[i] = domain.Item{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	return &domain.OrderCommitment{
		OrderID:   orderID,
		Status:    domain.CommitmentStatus(doc.Status),
		Items:     items,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (t *firestoreTx) GetStock(ctx context.Context, productIDs []string) (map[string]domain.StockRecord, error) {
	records := make(map[string]domain.StockRecord, len(productIDs))
	if len(productIDs) == 0 {
		return records, nil
	}

	refs := make([]*firestore.DocumentRef, len(productIDs))
	for i, id := range productIDs {
		refs[i] = t.store.productRef(t.tenantID, id)
	}

	snaps, err := t.tx.GetAll(refs)
	if err != nil {
		return nil, fmt.Errorf("reading products: %w", err)
	}

	for i, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		rec, err := snapToStock(productIDs[i], snap)
		if err != nil {
			return nil, err
		}
		records[productIDs[i]] = rec
	}
	return records, nil
}

func (t *firestoreTx) GetReservations(ctx context.Context, orderID string, productIDs []string) (map[string]domain.Reservation, error) {
	reservations := make(map[string]domain.Reservation, len(productIDs))
	if len(productIDs) == 0 {
		return reservations, nil
	}

	refs := make([]*firestore.DocumentRef, len(productIDs))
	for i, id := range productIDs {
		refs[i] = t.store.reservationRef(t.tenantID, id, orderID)
	}

	snaps, err := t.tx.GetAll(refs)
	if err != nil {
		return nil, fmt.Errorf("reading reservations for order %s: %w", orderID, err)
	}

	for i, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var doc reservationDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decoding reservation %s/%s: %w", productIDs[i], orderID, err)
		}
		reservations[productIDs[i]] = domain.Reservation{
			ProductID:  productIDs[i],
			OrderID:    orderID,
			Quantity:   doc.Quantity,
			Status:     domain.ReservationStatus(doc.Status),
			CreatedAt:  doc.CreatedAt,
			ConsumedAt: doc.ConsumedAt,
			ReleasedAt: doc.ReleasedAt,
		}
	}
	return reservations, nil
}

// PutStock merges so catalog fields owned by other code paths survive.
func (t *firestoreTx) PutStock(ctx context.Context, rec domain.StockRecord) error {
	stored := rec.Stored()
	return t.tx.Set(t.store.productRef(t.tenantID, rec.ProductID), map[string]interface{}{
		"onHand":    *stored.OnHand,
		"reserved":  *stored.Reserved,
		"quantity":  *stored.Quantity,
		"updatedAt": stored.UpdatedAt.UTC(),
	}, firestore.MergeAll)
}

func (t *firestoreTx) PutReservation(ctx context.Context, r domain.Reservation) error {
	return t.tx.Set(t.store.reservationRef(t.tenantID, r.ProductID, r.OrderID), reservationDoc{
		OrderID:    r.OrderID,
		ProductID:  r.ProductID,
		Quantity:   r.Quantity,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt.UTC(),
		ConsumedAt: utcPtr(r.ConsumedAt),
		ReleasedAt: utcPtr(r.ReleasedAt),
	})
}

func (t *firestoreTx) PutCommitment(ctx context.Context, c domain.OrderCommitment) error {
	items := make([]commitmentItemDoc, len(c.Items))
	for i, item := range c.Items {
		items[i] = commitmentItemDoc{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	return t.tx.Set(t.store.commitmentRef(t.tenantID, c.OrderID), commitmentDoc{
		OrderID:   c.OrderID,
		Status:    string(c.Status),
		Items:     items,
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
	})
}
