package product

import "time"

// StockQuery asks for the current stock of a tenant's products. With
// OnlyShort set, products whose available quantity covers Threshold are
// left out.
type StockQuery struct {
	TenantID   string   `json:"tenantId"`
	ProductIDs []string `json:"productIds"`
	OnlyShort  bool     `json:"onlyShort,omitempty"`
	Threshold  int64    `json:"threshold,omitempty"`
}

type StockQueryResult struct {
	Products []ProductStockDTO `json:"products"`
	NotFound []string          `json:"notFound"`
}

type ProductStockDTO struct {
	ProductID string    `json:"productId"`
	OnHand    int64     `json:"onHand"`
	Reserved  int64     `json:"reserved"`
	Available int64     `json:"available"`
	Oversold  bool      `json:"oversold,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type StockQueryResponse struct {
	TraceID   string    `json:"traceId"`
	TenantID  string    `json:"tenantId"`
	Timestamp time.Time `json:"timestamp"`
	StockQueryResult
}
