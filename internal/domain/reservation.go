package domain

import (
	"fmt"
	"time"
)

type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "ACTIVE"
	ReservationConsumed ReservationStatus = "CONSUMED"
	ReservationReleased ReservationStatus = "RELEASED"
)

// Reservation is one order's claim on one product. It is never deleted.
type Reservation struct {
	ProductID  string
	OrderID    string
	Quantity   int64
	Status     ReservationStatus
	CreatedAt  time.Time
	ConsumedAt *time.Time
	ReleasedAt *time.Time
}

func NewReservation(productID, orderID string, quantity int64, now time.Time) Reservation {
	return Reservation{
		ProductID: productID,
		OrderID:   orderID,
		Quantity:  quantity,
		Status:    ReservationActive,
		CreatedAt: now,
	}
}

func (r Reservation) IsActive() bool {
	return r.Status == ReservationActive
}

// Consume moves an ACTIVE reservation to CONSUMED.
func (r *Reservation) Consume(now time.Time) error {
	if r.Status != ReservationActive {
		return fmt.Errorf("reservation %s/%s: cannot consume from %s", r.ProductID, r.OrderID, r.Status)
	}
	r.Status = ReservationConsumed
	r.ConsumedAt = &now
	return nil
}

// Release moves an ACTIVE reservation to RELEASED.
func (r *Reservation) Release(now time.Time) error {
	if r.Status != ReservationActive {
		return fmt.Errorf("reservation %s/%s: cannot release from %s", r.ProductID, r.OrderID, r.Status)
	}
	r.Status = ReservationReleased
	r.ReleasedAt = &now
	return nil
}

type CommitmentStatus string

const (
	CommitmentNone      CommitmentStatus = "NONE"
	CommitmentReserved  CommitmentStatus = "RESERVED"
	CommitmentConfirmed CommitmentStatus = "CONFIRMED"
	CommitmentReleased  CommitmentStatus = "RELEASED"
)

// OrderCommitment is the order-level marker written in the same transaction
// as the per-product reservations. Its existence guards Reserve and its
// CONFIRMED status guards Confirm.
type OrderCommitment struct {
	OrderID   string
	Status    CommitmentStatus
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}
