package dto

import (
	"time"

	apperrors "stockledger/internal/errors"
)

type LifecycleResponse struct {
	TraceID   string    `json:"traceId"`
	TenantID  string    `json:"tenantId"`
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	Changed   bool      `json:"changed"`
	Timestamp time.Time `json:"timestamp"`
}

type OrderStockResponse struct {
	TraceID      string           `json:"traceId"`
	TenantID     string           `json:"tenantId"`
	OrderID      string           `json:"orderId"`
	Status       string           `json:"status"`
	StockStatus  string           `json:"stockStatus"`
	Items        []LifecycleItem  `json:"items"`
	Reservations []ReservationDTO `json:"reservations"`
	Timestamp    time.Time        `json:"timestamp"`
}

type ErrorResponse struct {
	TraceID   string        `json:"traceId"`
	Status    int           `json:"status"`
	Code      string        `json:"code"`
	Message   string        `json:"message"`
	OrderID   string        `json:"orderId,omitempty"`
	Details   *ErrorDetails `json:"details,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

type ErrorDetails struct {
	InsufficientStock *InsufficientStockDTO        `json:"insufficientStock,omitempty"`
	Fields            []apperrors.ValidationDetail `json:"fields,omitempty"`
}

type InsufficientStockDTO struct {
	ProductID string `json:"productId"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
	Shortfall int64  `json:"shortfall"`
}
