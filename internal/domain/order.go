package domain

type OrderStatus string

const (
	OrderStatusDraft    OrderStatus = "DRAFT"
	OrderStatusReserved OrderStatus = "RESERVED"
	OrderStatusInvoiced OrderStatus = "INVOICED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:    {OrderStatusReserved, OrderStatusInvoiced, OrderStatusCanceled},
	OrderStatusReserved: {OrderStatusInvoiced, OrderStatusCanceled},
}

// CanTransition reports whether an order may move from one status to another.
// INVOICED and CANCELED are terminal.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderStatusFromCommitment derives the order lifecycle status from the
// ledger's commitment marker.
func OrderStatusFromCommitment(status CommitmentStatus) OrderStatus {
	switch status {
	case CommitmentReserved:
		return OrderStatusReserved
	case CommitmentConfirmed:
		return OrderStatusInvoiced
	case CommitmentReleased:
		return OrderStatusCanceled
	default:
		return OrderStatusDraft
	}
}
