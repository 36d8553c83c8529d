package product

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stockledger/internal/dto"
	apperrors "stockledger/internal/errors"
)

const maxQueryProducts = 100

type Controller struct {
	useCase StockQueryUseCase
	logger  *zap.Logger
}

func NewController(useCase StockQueryUseCase, logger *zap.Logger) *Controller {
	return &Controller{
		useCase: useCase,
		logger:  logger,
	}
}

// HandleSearch serves POST /products/search with a JSON StockQuery body.
func (c *Controller) HandleSearch(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.NewString()

	var q StockQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		c.writeValidationError(w, traceID, "invalid JSON body", apperrors.ValidationDetail{
			Field:   "body",
			Message: "request body must be valid JSON",
		})
		return
	}

	c.serve(w, r, traceID, q)
}

// HandleTenantStock serves GET /tenants/{tenantId}/products?ids=a,b with
// optional onlyShort and threshold parameters.
func (c *Controller) HandleTenantStock(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.NewString()
	params := r.URL.Query()

	q := StockQuery{
		TenantID:  chi.URLParam(r, "tenantId"),
		OnlyShort: params.Get("onlyShort") == "true",
	}
	if raw := params.Get("ids"); raw != "" {
		q.ProductIDs = strings.Split(raw, ",")
	}
	if raw := params.Get("threshold"); raw != "" {
		threshold, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.writeValidationError(w, traceID, "invalid query", apperrors.ValidationDetail{
				Field:   "threshold",
				Message: "must be an integer",
			})
			return
		}
		q.Threshold = threshold
	}

	c.serve(w, r, traceID, q)
}

func (c *Controller) serve(w http.ResponseWriter, r *http.Request, traceID string, q StockQuery) {
	logger := c.logger.With(zap.String("traceId", traceID), zap.String("tenantId", q.TenantID))

	if err := validateStockQuery(q); err != nil {
		ve, _ := apperrors.IsValidationError(err)
		c.writeValidationError(w, traceID, ve.Message, ve.Details...)
		return
	}

	result, err := c.useCase.Query(r.Context(), q)
	if err != nil {
		logger.Error("stock query failed", zap.Error(err))
		c.writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{
			TraceID:   traceID,
			Status:    http.StatusInternalServerError,
			Code:      "INTERNAL_ERROR",
			Message:   "something went wrong, please try again",
			Timestamp: time.Now().UTC(),
		})
		return
	}

	logger.Debug("stock query served",
		zap.Int("requested", len(q.ProductIDs)), zap.Int("notFound", len(result.NotFound)))

	c.writeJSON(w, http.StatusOK, StockQueryResponse{
		TraceID:          traceID,
		TenantID:         q.TenantID,
		Timestamp:        time.Now().UTC(),
		StockQueryResult: *result,
	})
}

func validateStockQuery(q StockQuery) error {
	var details []apperrors.ValidationDetail

	if q.TenantID == "" {
		details = append(details, apperrors.ValidationDetail{Field: "tenantId", Message: "is required"})
	}

	switch {
	case len(q.ProductIDs) == 0:
		details = append(details, apperrors.ValidationDetail{Field: "productIds", Message: "must not be empty"})
	case len(q.ProductIDs) > maxQueryProducts:
		details = append(details, apperrors.ValidationDetail{
			Field:   "productIds",
			Message: "exceeds maximum of " + strconv.Itoa(maxQueryProducts),
		})
	}

	for i, id := range q.ProductIDs {
		if strings.TrimSpace(id) == "" {
			details = append(details, apperrors.ValidationDetail{
				Field:   "productIds[" + strconv.Itoa(i) + "]",
				Message: "is required",
			})
		}
	}

	if q.Threshold < 0 {
		details = append(details, apperrors.ValidationDetail{Field: "threshold", Message: "must not be negative"})
	}

	if len(details) > 0 {
		return apperrors.NewValidationError("invalid stock query", details...)
	}
	return nil
}

func (c *Controller) writeValidationError(w http.ResponseWriter, traceID, message string, details ...apperrors.ValidationDetail) {
	c.writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
		TraceID:   traceID,
		Status:    http.StatusBadRequest,
		Code:      "VALIDATION_ERROR",
		Message:   message,
		Details:   &dto.ErrorDetails{Fields: details},
		Timestamp: time.Now().UTC(),
	})
}

func (c *Controller) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		c.logger.Error("failed to encode response", zap.Error(err))
	}
}
