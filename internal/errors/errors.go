package errors

import (
	"errors"
	"fmt"
)

type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Message string
	Details []ValidationDetail
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string, details ...ValidationDetail) *ValidationError {
	return &ValidationError{
		Message: message,
		Details: details,
	}
}

func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{Message: message}
}

func IsNotFoundError(err error) (*NotFoundError, bool) {
	var nfe *NotFoundError
	if errors.As(err, &nfe) {
		return nfe, true
	}
	return nil, false
}

// ProductNotFoundError is returned when a referenced product has no stock record.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func NewProductNotFoundError(productID string) *ProductNotFoundError {
	return &ProductNotFoundError{ProductID: productID}
}

func IsProductNotFoundError(err error) (*ProductNotFoundError, bool) {
	var pe *ProductNotFoundError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Shortfall is how many units are missing to satisfy the request.
func (e *InsufficientStockError) Shortfall() int64 {
	if e.Available < 0 {
		return e.Requested
	}
	return e.Requested - e.Available
}

func NewInsufficientStockError(productID string, requested, available int64) *InsufficientStockError {
	return &InsufficientStockError{
		ProductID: productID,
		Requested: requested,
		Available: available,
	}
}

func IsInsufficientStockError(err error) (*InsufficientStockError, bool) {
	var ie *InsufficientStockError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

type AlreadyReservedError struct {
	OrderID string
}

func (e *AlreadyReservedError) Error() string {
	return fmt.Sprintf("order %s already holds a reservation", e.OrderID)
}

func NewAlreadyReservedError(orderID string) *AlreadyReservedError {
	return &AlreadyReservedError{OrderID: orderID}
}

func IsAlreadyReservedError(err error) (*AlreadyReservedError, bool) {
	var ae *AlreadyReservedError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

type AlreadyConfirmedError struct {
	OrderID string
}

func (e *AlreadyConfirmedError) Error() string {
	return fmt.Sprintf("order %s already confirmed", e.OrderID)
}

func NewAlreadyConfirmedError(orderID string) *AlreadyConfirmedError {
	return &AlreadyConfirmedError{OrderID: orderID}
}

func IsAlreadyConfirmedError(err error) (*AlreadyConfirmedError, bool) {
	var ae *AlreadyConfirmedError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// TransactionConflictError marks a transient store failure. The whole
// transaction may be re-executed from scratch.
type TransactionConflictError struct {
	Message string
	Cause   error
}

func (e *TransactionConflictError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TransactionConflictError) Unwrap() error {
	return e.Cause
}

func NewTransactionConflictError(message string, cause error) *TransactionConflictError {
	return &TransactionConflictError{
		Message: message,
		Cause:   cause,
	}
}

func IsTransactionConflictError(err error) (*TransactionConflictError, bool) {
	var te *TransactionConflictError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{
		Message: message,
		Cause:   cause,
	}
}

func IsInternalError(err error) (*InternalError, bool) {
	var ie *InternalError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// ConflictError rejects a request that does not fit the current state of a
// resource, such as an order lifecycle transition out of a terminal status.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

func IsConflictError(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
