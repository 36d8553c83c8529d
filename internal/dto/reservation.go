package dto

import (
	"time"

	"stockledger/internal/domain"
)

// LifecycleResult is what an order lifecycle action did. Changed is false
// when the order already was in the requested status.
type LifecycleResult struct {
	OrderID string
	Status  domain.OrderStatus
	Changed bool
}

// OrderStock is an order's stock commitment as seen by the ledger.
type OrderStock struct {
	OrderID      string
	Status       domain.OrderStatus
	Commitment   domain.OrderCommitment
	Reservations []domain.Reservation
}

type ReservationDTO struct {
	ProductID  string     `json:"productId"`
	Quantity   int64      `json:"quantity"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	ConsumedAt *time.Time `json:"consumedAt,omitempty"`
	ReleasedAt *time.Time `json:"releasedAt,omitempty"`
}

func NewReservationDTOs(reservations []domain.Reservation) []ReservationDTO {
	out := make([]ReservationDTO, len(reservations))
	for i, r := range reservations {
		out[i] = ReservationDTO{
			ProductID:  r.ProductID,
			Quantity:   r.Quantity,
			Status:     string(r.Status),
			CreatedAt:  r.CreatedAt,
			ConsumedAt: r.ConsumedAt,
			ReleasedAt: r.ReleasedAt,
		}
	}
	return out
}

func NewLifecycleItems(items []domain.Item) []LifecycleItem {
	out := make([]LifecycleItem, len(items))
	for i, item := range items {
		out[i] = LifecycleItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return out
}
