package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"stockledger/internal/domain"
	apperrors "stockledger/internal/errors"
	"stockledger/internal/stock/store"
)

// LedgerService runs a single transactional attempt of each ledger
// operation. Items must already be validated, merged per product and sorted;
// retries belong to the caller.
type LedgerService struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewLedgerService(st store.Store, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		store:  st,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func productIDs(items []domain.Item) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	return ids
}

func loadStock(ctx context.Context, tx store.Tx, ids []string) (map[string]domain.StockRecord, error) {
	stock, err := tx.GetStock(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := stock[id]; !ok {
			return nil, apperrors.NewProductNotFoundError(id)
		}
	}
	return stock, nil
}

// checkItems rejects lines that would break stock arithmetic. Callers are
// expected to have validated already; stores never see such lines.
func checkItems(items []domain.Item) error {
	for _, item := range items {
		if item.Quantity <= 0 || item.Quantity > domain.MaxItemQuantity {
			return apperrors.NewValidationError("invalid request", apperrors.ValidationDetail{
				Field:   "items",
				Message: fmt.Sprintf("quantity for product %s must be between 1 and %d", item.ProductID, domain.MaxItemQuantity),
			})
		}
	}
	return nil
}

func subtractFloor(v, n int64) int64 {
	if v < n {
		return 0
	}
	return v - n
}

// Reserve claims quantity for every item or for none of them.
func (s *LedgerService) Reserve(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
	if err := checkItems(items); err != nil {
		return err
	}

	return s.store.RunInTx(ctx, tenantID, func(ctx context.Context, tx store.Tx) error {
		commitment, err := tx.GetCommitment(ctx, orderID)
		if err != nil {
			return err
		}
		if commitment != nil {
			return apperrors.NewAlreadyReservedError(orderID)
		}

		stock, err := loadStock(ctx, tx, productIDs(items))
		if err != nil {
			return err
		}

		for _, item := range items {
			rec := stock[item.ProductID]
			if available := rec.Available(); available < item.Quantity {
				return apperrors.NewInsufficientStockError(item.ProductID, item.Quantity, available)
			}
		}

		now := s.now()
		for _, item := range items {
			rec := stock[item.ProductID]
			rec.Reserved += item.Quantity
			rec.UpdatedAt = now

			if err := tx.PutStock(ctx, rec); err != nil {
				return err
			}
			if err := tx.PutReservation(ctx, domain.NewReservation(item.ProductID, orderID, item.Quantity, now)); err != nil {
				return err
			}
		}

		return tx.PutCommitment(ctx, domain.OrderCommitment{
			OrderID:   orderID,
			Status:    domain.CommitmentReserved,
			Items:     items,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
}

// Confirm deducts on-hand stock, consuming the order's active reservations
// where they exist. Availability is not re-checked.
func (s *LedgerService) Confirm(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
	if err := checkItems(items); err != nil {
		return err
	}

	return s.store.RunInTx(ctx, tenantID, func(ctx context.Context, tx store.Tx) error {
		commitment, err := tx.GetCommitment(ctx, orderID)
		if err != nil {
			return err
		}
		if commitment != nil && commitment.Status == domain.CommitmentConfirmed {
			return apperrors.NewAlreadyConfirmedError(orderID)
		}

		ids := productIDs(items)
		stock, err := loadStock(ctx, tx, ids)
		if err != nil {
			return err
		}
		reservations, err := tx.GetReservations(ctx, orderID, ids)
		if err != nil {
			return err
		}
		for _, r := range reservations {
			if r.Status == domain.ReservationConsumed {
				return apperrors.NewAlreadyConfirmedError(orderID)
			}
		}

		now := s.now()
		for _, item := range items {
			rec := stock[item.ProductID]
			if rec.OnHand < math.MinInt64+item.Quantity {
				return apperrors.NewInternalError(
					fmt.Sprintf("on-hand stock of product %s cannot go lower", item.ProductID), nil)
			}
			rec.OnHand -= item.Quantity
			rec.UpdatedAt = now

			if r, ok := reservations[item.ProductID]; ok && r.IsActive() {
				rec.Reserved = subtractFloor(rec.Reserved, item.Quantity)
				if err := r.Consume(now); err != nil {
					return err
				}
				if err := tx.PutReservation(ctx, r); err != nil {
					return err
				}
			} else {
				s.logger.Debug("direct deduction without reservation",
					zap.String("tenantId", tenantID), zap.String("orderId", orderID),
					zap.String("productId", item.ProductID), zap.Int64("quantity", item.Quantity))
			}

			if rec.OnHand < 0 {
				s.logger.Warn("on-hand stock went negative",
					zap.String("tenantId", tenantID), zap.String("orderId", orderID),
					zap.String("productId", item.ProductID), zap.Int64("onHand", rec.OnHand))
			}

			if err := tx.PutStock(ctx, rec); err != nil {
				return err
			}
		}

		if commitment == nil {
			commitment = &domain.OrderCommitment{
				OrderID:   orderID,
				Items:     items,
				CreatedAt: now,
			}
		}
		commitment.Status = domain.CommitmentConfirmed
		commitment.UpdatedAt = now
		return tx.PutCommitment(ctx, *commitment)
	})
}

// Release returns the order's active reservations to the available pool.
// Items without an active reservation are skipped, so repeated calls are
// no-ops.
func (s *LedgerService) Release(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
	if err := checkItems(items); err != nil {
		return err
	}

	return s.store.RunInTx(ctx, tenantID, func(ctx context.Context, tx store.Tx) error {
		commitment, err := tx.GetCommitment(ctx, orderID)
		if err != nil {
			return err
		}

		// The commitment's own lines are read too, to decide whether the
		// whole order ends up released.
		ids := productIDs(items)
		requested := make(map[string]bool, len(ids))
		for _, id := range ids {
			requested[id] = true
		}
		lookup := ids
		if commitment != nil {
			for _, item := range commitment.Items {
				if !requested[item.ProductID] {
					lookup = append(lookup, item.ProductID)
				}
			}
		}

		reservations, err := tx.GetReservations(ctx, orderID, lookup)
		if err != nil {
			return err
		}

		var active []domain.Item
		for _, item := range items {
			if r, ok := reservations[item.ProductID]; ok && r.IsActive() {
				active = append(active, item)
			}
		}
		if len(active) == 0 {
			return nil
		}

		stock, err := loadStock(ctx, tx, productIDs(active))
		if err != nil {
			return err
		}

		now := s.now()
		for _, item := range active {
			rec := stock[item.ProductID]
			rec.Reserved = subtractFloor(rec.Reserved, item.Quantity)
			rec.UpdatedAt = now
			if err := tx.PutStock(ctx, rec); err != nil {
				return err
			}

			r := reservations[item.ProductID]
			if err := r.Release(now); err != nil {
				return err
			}
			reservations[item.ProductID] = r
			if err := tx.PutReservation(ctx, r); err != nil {
				return err
			}
		}

		if commitment == nil || commitment.Status != domain.CommitmentReserved {
			return nil
		}
		for _, r := range reservations {
			if r.IsActive() {
				return nil
			}
		}
		commitment.Status = domain.CommitmentReleased
		commitment.UpdatedAt = now
		return tx.PutCommitment(ctx, *commitment)
	})
}

// OrderState reads the order's commitment marker and its reservation lines.
// A missing marker is reported as CommitmentNone.
func (s *LedgerService) OrderState(ctx context.Context, tenantID, orderID string) (*domain.OrderCommitment, []domain.Reservation, error) {
	var (
		commitment   *domain.OrderCommitment
		reservations []domain.Reservation
	)

	err := s.store.RunInTx(ctx, tenantID, func(ctx context.Context, tx store.Tx) error {
		c, err := tx.GetCommitment(ctx, orderID)
		if err != nil {
			return err
		}
		if c == nil {
			commitment = &domain.OrderCommitment{OrderID: orderID, Status: domain.CommitmentNone}
			return nil
		}
		commitment = c

		found, err := tx.GetReservations(ctx, orderID, productIDs(c.Items))
		if err != nil {
			return err
		}
		for _, item := range c.Items {
			if r, ok := found[item.ProductID]; ok {
				reservations = append(reservations, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return commitment, reservations, nil
}
