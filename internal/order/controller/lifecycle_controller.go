package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stockledger/internal/domain"
	"stockledger/internal/dto"
	apperrors "stockledger/internal/errors"
	"stockledger/internal/order/usecase"
)

const maxItems = 100

type LifecycleUseCase interface {
	Reserve(ctx context.Context, tenantID, orderID string, items []domain.Item) (*dto.LifecycleResult, error)
	Invoice(ctx context.Context, tenantID, orderID string, items []domain.Item) (*dto.LifecycleResult, error)
	Cancel(ctx context.Context, tenantID, orderID string, items []domain.Item) (*dto.LifecycleResult, error)
	Status(ctx context.Context, tenantID, orderID string) (*dto.OrderStock, error)
}

type LifecycleController struct {
	useCase LifecycleUseCase
	logger  *zap.Logger
}

func NewLifecycleController(useCase LifecycleUseCase, logger *zap.Logger) *LifecycleController {
	return &LifecycleController{
		useCase: useCase,
		logger:  logger,
	}
}

func (c *LifecycleController) Reserve(w http.ResponseWriter, r *http.Request) {
	c.handleTransition(w, r, "reserve", c.useCase.Reserve)
}

func (c *LifecycleController) Invoice(w http.ResponseWriter, r *http.Request) {
	c.handleTransition(w, r, "invoice", c.useCase.Invoice)
}

func (c *LifecycleController) Cancel(w http.ResponseWriter, r *http.Request) {
	c.handleTransition(w, r, "cancel", c.useCase.Cancel)
}

func (c *LifecycleController) Status(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	tenantID := chi.URLParam(r, "tenantId")
	orderID := chi.URLParam(r, "orderId")
	logger := c.logger.With(zap.String("traceId", traceID), zap.String("tenantId", tenantID), zap.String("orderId", orderID))

	stock, err := c.useCase.Status(r.Context(), tenantID, orderID)
	if err != nil {
		c.handleUseCaseError(w, traceID, orderID, err, logger)
		return
	}

	c.writeJSON(w, http.StatusOK, dto.OrderStockResponse{
		TraceID:      traceID,
		TenantID:     tenantID,
		OrderID:      orderID,
		Status:       string(stock.Status),
		StockStatus:  string(stock.Commitment.Status),
		Items:        dto.NewLifecycleItems(stock.Commitment.Items),
		Reservations: dto.NewReservationDTOs(stock.Reservations),
		Timestamp:    time.Now().UTC(),
	})
}

func (c *LifecycleController) handleTransition(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	run func(ctx context.Context, tenantID, orderID string, items []domain.Item) (*dto.LifecycleResult, error),
) {
	traceID := uuid.New().String()
	tenantID := chi.URLParam(r, "tenantId")
	orderID := chi.URLParam(r, "orderId")
	logger := c.logger.With(zap.String("traceId", traceID), zap.String("action", action),
		zap.String("tenantId", tenantID), zap.String("orderId", orderID))

	var req dto.LifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid JSON body", zap.Error(err))
		c.writeValidationError(w, traceID, orderID, "invalid JSON body", apperrors.ValidationDetail{
			Field:   "body",
			Message: "request body must be valid JSON",
		})
		return
	}

	if err := validateLifecycleRequest(req); err != nil {
		ve, _ := apperrors.IsValidationError(err)
		c.writeValidationError(w, traceID, orderID, ve.Message, ve.Details...)
		return
	}

	result, err := run(r.Context(), tenantID, orderID, req.DomainItems())
	if err != nil {
		c.handleUseCaseError(w, traceID, orderID, err, logger)
		return
	}

	c.writeJSON(w, http.StatusOK, dto.LifecycleResponse{
		TraceID:   traceID,
		TenantID:  tenantID,
		OrderID:   result.OrderID,
		Status:    string(result.Status),
		Changed:   result.Changed,
		Timestamp: time.Now().UTC(),
	})
}

func validateLifecycleRequest(req dto.LifecycleRequest) error {
	var details []apperrors.ValidationDetail

	if len(req.Items) > maxItems {
		details = append(details, apperrors.ValidationDetail{
			Field:   "items",
			Message: "items exceeds maximum of " + strconv.Itoa(maxItems),
		})
	}

	if len(details) > 0 {
		return apperrors.NewValidationError("validation failed", details...)
	}

	return nil
}

func (c *LifecycleController) handleUseCaseError(w http.ResponseWriter, traceID, orderID string, err error, logger *zap.Logger) {
	message := usecase.UserMessage(err)

	if ve, ok := apperrors.IsValidationError(err); ok {
		c.writeValidationError(w, traceID, orderID, ve.Message, ve.Details...)
		return
	}

	if _, ok := apperrors.IsProductNotFoundError(err); ok {
		c.writeErrorResponse(w, traceID, orderID, http.StatusNotFound, "PRODUCT_NOT_FOUND", message, nil)
		return
	}

	if ie, ok := apperrors.IsInsufficientStockError(err); ok {
		c.writeErrorResponse(w, traceID, orderID, http.StatusConflict, "INSUFFICIENT_STOCK", message, &dto.ErrorDetails{
			InsufficientStock: &dto.InsufficientStockDTO{
				ProductID: ie.ProductID,
				Requested: ie.Requested,
				Available: ie.Available,
				Shortfall: ie.Shortfall(),
			},
		})
		return
	}

	if _, ok := apperrors.IsConflictError(err); ok {
		c.writeErrorResponse(w, traceID, orderID, http.StatusConflict, "INVALID_TRANSITION", message, nil)
		return
	}

	if _, ok := apperrors.IsTransactionConflictError(err); ok {
		logger.Warn("ledger retries exhausted", zap.Error(err))
		c.writeErrorResponse(w, traceID, orderID, http.StatusServiceUnavailable, "TRY_AGAIN", message, nil)
		return
	}

	logger.Error("unexpected error", zap.Error(err))
	c.writeErrorResponse(w, traceID, orderID, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}

func (c *LifecycleController) writeErrorResponse(w http.ResponseWriter, traceID, orderID string, statusCode int, code, message string, details *dto.ErrorDetails) {
	c.writeJSON(w, statusCode, dto.ErrorResponse{
		TraceID:   traceID,
		Status:    statusCode,
		Code:      code,
		Message:   message,
		OrderID:   orderID,
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
}

func (c *LifecycleController) writeValidationError(w http.ResponseWriter, traceID, orderID, message string, details ...apperrors.ValidationDetail) {
	c.writeErrorResponse(w, traceID, orderID, http.StatusBadRequest, "VALIDATION_ERROR", message, &dto.ErrorDetails{
		Fields: details,
	})
}

func (c *LifecycleController) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		c.logger.Error("failed to encode response", zap.Error(err))
	}
}
