package store

import (
	"context"

	"stockledger/internal/domain"
)

// Tx is one attempt of an atomic read-then-write unit over a tenant's stock
// documents. Implementations must let every read happen before the first
// write; callers follow that order.
type Tx interface {
	// GetCommitment returns nil when the order has no commitment marker.
	GetCommitment(ctx context.Context, orderID string) (*domain.OrderCommitment, error)
	// GetStock omits products that have no stock record.
	GetStock(ctx context.Context, productIDs []string) (map[string]domain.StockRecord, error)
	// GetReservations omits products the order holds no reservation for.
	GetReservations(ctx context.Context, orderID string, productIDs []string) (map[string]domain.Reservation, error)

	PutStock(ctx context.Context, rec domain.StockRecord) error
	PutReservation(ctx context.Context, r domain.Reservation) error
	PutCommitment(ctx context.Context, c domain.OrderCommitment) error
}

// Store runs fn exactly once inside a transaction scoped to tenantID. A
// conflicting concurrent commit must surface as a TransactionConflictError
// with nothing applied; retrying is the caller's decision.
type Store interface {
	RunInTx(ctx context.Context, tenantID string, fn func(ctx context.Context, tx Tx) error) error
}
