package dto

import "stockledger/internal/domain"

type LifecycleRequest struct {
	Items []LifecycleItem `json:"items"`
}

type LifecycleItem struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

func (r LifecycleRequest) DomainItems() []domain.Item {
	items := make([]domain.Item, len(r.Items))
	for i, item := range r.Items {
		items[i] = domain.Item{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return items
}
