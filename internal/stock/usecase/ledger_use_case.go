package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"stockledger/internal/config"
	"stockledger/internal/domain"
	apperrors "stockledger/internal/errors"
)

const instrumentationName = "stockledger/internal/stock"

type LedgerService interface {
	Reserve(ctx context.Context, tenantID, orderID string, items []domain.Item) error
	Confirm(ctx context.Context, tenantID, orderID string, items []domain.Item) error
	Release(ctx context.Context, tenantID, orderID string, items []domain.Item) error
	OrderState(ctx context.Context, tenantID, orderID string) (*domain.OrderCommitment, []domain.Reservation, error)
}

type TenantSettingsRepository interface {
	FindByTenantID(ctx context.Context, tenantID string) (*domain.TenantSettings, error)
}

// LedgerUseCase is the entry point for stock ledger operations. It validates
// input, skips tenants without stock control and re-runs a ledger
// transaction from scratch when the store reports a conflict.
type LedgerUseCase struct {
	ledger           LedgerService
	tenants          TenantSettingsRepository
	logger           *zap.Logger
	maxRetryAttempts int
	txTimeout        time.Duration
	baseBackoff      time.Duration
	sleep            func(ctx context.Context, d time.Duration) error

	tracer     trace.Tracer
	operations metric.Int64Counter
	retries    metric.Int64Counter
}

func NewLedgerUseCase(
	ledger LedgerService,
	tenants TenantSettingsRepository,
	logger *zap.Logger,
	cfg config.LedgerConfig,
) *LedgerUseCase {
	meter := otel.Meter(instrumentationName)

	operations, err := meter.Int64Counter("stock.ledger.operations",
		metric.WithDescription("Ledger operations by name and outcome"))
	if err != nil {
		logger.Warn("creating operations counter", zap.Error(err))
		operations = noop.Int64Counter{}
	}
	retries, err := meter.Int64Counter("stock.ledger.conflict_retries",
		metric.WithDescription("Ledger transactions re-run after a conflict"))
	if err != nil {
		logger.Warn("creating retries counter", zap.Error(err))
		retries = noop.Int64Counter{}
	}

	maxAttempts := cfg.MaxRetryAttempts
	if maxAttempts < config.MinRetryAttempts {
		maxAttempts = config.MinRetryAttempts
	}

	return &LedgerUseCase{
		ledger:           ledger,
		tenants:          tenants,
		logger:           logger,
		maxRetryAttempts: maxAttempts,
		txTimeout:        cfg.TxTimeout,
		baseBackoff:      cfg.BaseBackoff,
		sleep:            sleepContext,
		tracer:           otel.Tracer(instrumentationName),
		operations:       operations,
		retries:          retries,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (uc *LedgerUseCase) Reserve(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
	return uc.mutate(ctx, "reserve", tenantID, orderID, items, uc.ledger.Reserve)
}

func (uc *LedgerUseCase) Confirm(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
	return uc.mutate(ctx, "confirm", tenantID, orderID, items, uc.ledger.Confirm)
}

func (uc *LedgerUseCase) Release(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
	return uc.mutate(ctx, "release", tenantID, orderID, items, uc.ledger.Release)
}

// OrderState returns the order's commitment marker and reservation lines.
func (uc *LedgerUseCase) OrderState(ctx context.Context, tenantID, orderID string) (*domain.OrderCommitment, []domain.Reservation, error) {
	if err := validateIDs(tenantID, orderID); err != nil {
		return nil, nil, err
	}

	var (
		commitment   *domain.OrderCommitment
		reservations []domain.Reservation
	)
	err := uc.withRetry(ctx, "order_state", tenantID, orderID, func(ctx context.Context) error {
		var err error
		commitment, reservations, err = uc.ledger.OrderState(ctx, tenantID, orderID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return commitment, reservations, nil
}

// StockControlEnabled reports whether ledger operations apply to the tenant.
// Tenants without stored settings have stock control.
func (uc *LedgerUseCase) StockControlEnabled(ctx context.Context, tenantID string) (bool, error) {
	settings, err := uc.tenants.FindByTenantID(ctx, tenantID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return domain.DefaultTenantSettings(tenantID).StockControl, nil
		}
		return false, fmt.Errorf("loading tenant settings: %w", err)
	}
	return settings.StockControl, nil
}

func (uc *LedgerUseCase) mutate(
	ctx context.Context,
	op string,
	tenantID string,
	orderID string,
	items []domain.Item,
	fn func(ctx context.Context, tenantID, orderID string, items []domain.Item) error,
) error {
	if err := validate(tenantID, orderID, items); err != nil {
		return err
	}

	normalized := domain.NormalizeItems(items)
	if err := validateMerged(normalized); err != nil {
		return err
	}

	uc.logger.Info(op+" started",
		zap.String("tenantId", tenantID), zap.String("orderId", orderID), zap.Int("itemCount", len(normalized)))

	enabled, err := uc.StockControlEnabled(ctx, tenantID)
	if err != nil {
		return err
	}
	if !enabled {
		uc.logger.Debug("stock control disabled, skipping",
			zap.String("operation", op), zap.String("tenantId", tenantID), zap.String("orderId", orderID))
		uc.operations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", op), attribute.String("outcome", "skipped")))
		return nil
	}

	err = uc.withRetry(ctx, op, tenantID, orderID, func(ctx context.Context) error {
		return fn(ctx, tenantID, orderID, normalized)
	})
	if err != nil {
		return err
	}

	uc.logger.Info(op+" completed", zap.String("tenantId", tenantID), zap.String("orderId", orderID))
	return nil
}

// withRetry runs fn until it succeeds, fails with a non-transient error or
// the attempts run out. Attempt n waits base*(n-1) with ±20% jitter first.
func (uc *LedgerUseCase) withRetry(ctx context.Context, op, tenantID, orderID string, fn func(ctx context.Context) error) error {
	ctx, span := uc.tracer.Start(ctx, "stock."+op, trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.id", orderID),
	))
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= uc.maxRetryAttempts; attempt++ {
		if attempt > 1 {
			if err := uc.sleep(ctx, uc.backoff(attempt)); err != nil {
				return uc.finish(ctx, span, op, err)
			}
		}

		err := uc.runAttempt(ctx, fn)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempt))
			return uc.finish(ctx, span, op, nil)
		}

		if _, ok := apperrors.IsTransactionConflictError(err); !ok {
			return uc.finish(ctx, span, op, err)
		}

		lastErr = err
		uc.logger.Warn("transaction conflict",
			zap.String("operation", op), zap.String("tenantId", tenantID), zap.String("orderId", orderID),
			zap.Int("attempt", attempt), zap.Int("maxAttempts", uc.maxRetryAttempts), zap.Error(err))
		if attempt < uc.maxRetryAttempts {
			uc.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
		}
	}

	span.SetAttributes(attribute.Int("attempts", uc.maxRetryAttempts))
	return uc.finish(ctx, span, op, apperrors.NewTransactionConflictError("max retries exceeded", lastErr))
}

// runAttempt bounds one attempt by the transaction timeout. Hitting that
// deadline while the caller is still waiting counts as a conflict.
func (uc *LedgerUseCase) runAttempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if uc.txTimeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, uc.txTimeout)
	defer cancel()

	err := fn(attemptCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return apperrors.NewTransactionConflictError("transaction attempt timed out", err)
	}
	return err
}

func (uc *LedgerUseCase) backoff(attempt int) time.Duration {
	base := uc.baseBackoff * time.Duration(attempt-1)
	if base <= 0 {
		return 0
	}
	jitter := time.Duration(float64(base) * (rand.Float64()*0.4 - 0.2))
	return base + jitter
}

func (uc *LedgerUseCase) finish(ctx context.Context, span trace.Span, op string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = outcomeOf(err)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, outcome)
	}
	uc.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op), attribute.String("outcome", outcome)))
	return err
}

func outcomeOf(err error) string {
	switch {
	case isType[*apperrors.InsufficientStockError](err):
		return "insufficient_stock"
	case isType[*apperrors.ProductNotFoundError](err):
		return "product_not_found"
	case isType[*apperrors.AlreadyReservedError](err):
		return "already_reserved"
	case isType[*apperrors.AlreadyConfirmedError](err):
		return "already_confirmed"
	case isType[*apperrors.TransactionConflictError](err):
		return "conflict"
	default:
		return "error"
	}
}

func isType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// Ids become document and key path segments, so "/" is not allowed.
const idSeparator = "/"

func idDetail(field, id string) (apperrors.ValidationDetail, bool) {
	switch {
	case id == "":
		return apperrors.ValidationDetail{Field: field, Message: "is required"}, true
	case strings.Contains(id, idSeparator):
		return apperrors.ValidationDetail{Field: field, Message: `must not contain "/"`}, true
	}
	return apperrors.ValidationDetail{}, false
}

func idDetails(tenantID, orderID string) []apperrors.ValidationDetail {
	var details []apperrors.ValidationDetail
	if d, bad := idDetail("tenantId", tenantID); bad {
		details = append(details, d)
	}
	if d, bad := idDetail("orderId", orderID); bad {
		details = append(details, d)
	}
	return details
}

func validateIDs(tenantID, orderID string) error {
	if details := idDetails(tenantID, orderID); len(details) > 0 {
		return apperrors.NewValidationError("invalid request", details...)
	}
	return nil
}

func validate(tenantID, orderID string, items []domain.Item) error {
	details := idDetails(tenantID, orderID)
	if len(items) == 0 {
		details = append(details, apperrors.ValidationDetail{Field: "items", Message: "must not be empty"})
	}
	for i, item := range items {
		if d, bad := idDetail(fmt.Sprintf("items[%d].productId", i), item.ProductID); bad {
			details = append(details, d)
		}
		switch {
		case item.Quantity <= 0:
			details = append(details, apperrors.ValidationDetail{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: "must be greater than 0",
			})
		case item.Quantity > domain.MaxItemQuantity:
			details = append(details, apperrors.ValidationDetail{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: fmt.Sprintf("must not exceed %d", domain.MaxItemQuantity),
			})
		}
	}

	if len(details) > 0 {
		return apperrors.NewValidationError("invalid request", details...)
	}
	return nil
}

// validateMerged checks the per-product totals once duplicate lines are
// summed.
func validateMerged(items []domain.Item) error {
	var details []apperrors.ValidationDetail
	for _, item := range items {
		if item.Quantity > domain.MaxItemQuantity {
			details = append(details, apperrors.ValidationDetail{
				Field:   "items",
				Message: fmt.Sprintf("total quantity for product %s must not exceed %d", item.ProductID, domain.MaxItemQuantity),
			})
		}
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid request", details...)
	}
	return nil
}
