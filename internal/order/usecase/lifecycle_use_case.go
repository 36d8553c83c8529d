package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"stockledger/internal/domain"
	"stockledger/internal/dto"
	apperrors "stockledger/internal/errors"
)

type StockLedger interface {
	Reserve(ctx context.Context, tenantID, orderID string, items []domain.Item) error
	Confirm(ctx context.Context, tenantID, orderID string, items []domain.Item) error
	Release(ctx context.Context, tenantID, orderID string, items []domain.Item) error
	OrderState(ctx context.Context, tenantID, orderID string) (*domain.OrderCommitment, []domain.Reservation, error)
}

// LifecycleUseCase drives an order through DRAFT, RESERVED, INVOICED and
// CANCELED, applying each transition to the stock ledger. The order's status
// is derived from its ledger commitment.
type LifecycleUseCase struct {
	ledger StockLedger
	logger *zap.Logger
}

func NewLifecycleUseCase(ledger StockLedger, logger *zap.Logger) *LifecycleUseCase {
	return &LifecycleUseCase{
		ledger: ledger,
		logger: logger,
	}
}

// Reserve holds stock for the order. Reserving an already reserved order is
// a successful no-op.
func (uc *LifecycleUseCase) Reserve(ctx context.Context, tenantID, orderID string, items []domain.Item) (*dto.LifecycleResult, error) {
	return uc.transition(ctx, tenantID, orderID, domain.OrderStatusReserved, func() error {
		err := uc.ledger.Reserve(ctx, tenantID, orderID, items)
		if _, ok := apperrors.IsAlreadyReservedError(err); ok {
			return errAlreadyApplied
		}
		return err
	})
}

// Invoice deducts stock for the order, consuming its reservation when there
// is one.
func (uc *LifecycleUseCase) Invoice(ctx context.Context, tenantID, orderID string, items []domain.Item) (*dto.LifecycleResult, error) {
	return uc.transition(ctx, tenantID, orderID, domain.OrderStatusInvoiced, func() error {
		err := uc.ledger.Confirm(ctx, tenantID, orderID, items)
		if _, ok := apperrors.IsAlreadyConfirmedError(err); ok {
			return errAlreadyApplied
		}
		return err
	})
}

// Cancel returns the order's reserved stock to the available pool.
func (uc *LifecycleUseCase) Cancel(ctx context.Context, tenantID, orderID string, items []domain.Item) (*dto.LifecycleResult, error) {
	return uc.transition(ctx, tenantID, orderID, domain.OrderStatusCanceled, func() error {
		return uc.ledger.Release(ctx, tenantID, orderID, items)
	})
}

func (uc *LifecycleUseCase) Status(ctx context.Context, tenantID, orderID string) (*dto.OrderStock, error) {
	commitment, reservations, err := uc.ledger.OrderState(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}

	return &dto.OrderStock{
		OrderID:      orderID,
		Status:       domain.OrderStatusFromCommitment(commitment.Status),
		Commitment:   *commitment,
		Reservations: reservations,
	}, nil
}

var errAlreadyApplied = errors.New("transition already applied")

func (uc *LifecycleUseCase) transition(
	ctx context.Context,
	tenantID string,
	orderID string,
	target domain.OrderStatus,
	apply func() error,
) (*dto.LifecycleResult, error) {
	logger := uc.logger.With(zap.String("tenantId", tenantID), zap.String("orderId", orderID),
		zap.String("target", string(target)))

	commitment, _, err := uc.ledger.OrderState(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	current := domain.OrderStatusFromCommitment(commitment.Status)

	if current == target {
		logger.Debug("order already in target status")
		return &dto.LifecycleResult{OrderID: orderID, Status: target}, nil
	}
	if !domain.CanTransition(current, target) {
		return nil, apperrors.NewConflictError(
			fmt.Sprintf("order %s is %s and cannot become %s", orderID, current, target))
	}

	if err := apply(); err != nil {
		if errors.Is(err, errAlreadyApplied) {
			logger.Debug("transition applied concurrently")
			return &dto.LifecycleResult{OrderID: orderID, Status: target}, nil
		}
		logger.Warn("order transition failed", zap.String("from", string(current)), zap.Error(err))
		return nil, err
	}

	// The ledger may legitimately write nothing, e.g. cancelling a draft or a
	// tenant without stock control, so report what was persisted.
	after, _, err := uc.ledger.OrderState(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	persisted := domain.OrderStatusFromCommitment(after.Status)
	if persisted == current {
		logger.Debug("ledger recorded no change", zap.String("status", string(current)))
		return &dto.LifecycleResult{OrderID: orderID, Status: current}, nil
	}

	logger.Info("order transitioned", zap.String("from", string(current)), zap.String("to", string(persisted)))
	return &dto.LifecycleResult{OrderID: orderID, Status: persisted, Changed: true}, nil
}

// UserMessage renders a ledger error the way the order screens show it.
func UserMessage(err error) string {
	if ie, ok := apperrors.IsInsufficientStockError(err); ok {
		return fmt.Sprintf("not enough stock for product %s: requested %d, available %d (short by %d)",
			ie.ProductID, ie.Requested, ie.Available, ie.Shortfall())
	}
	if pe, ok := apperrors.IsProductNotFoundError(err); ok {
		return fmt.Sprintf("product %s does not exist", pe.ProductID)
	}
	if ve, ok := apperrors.IsValidationError(err); ok {
		return ve.Message
	}
	if ce, ok := apperrors.IsConflictError(err); ok {
		return ce.Message
	}
	if _, ok := apperrors.IsTransactionConflictError(err); ok {
		return "stock is busy right now, please try again"
	}
	return "something went wrong, please try again"
}
