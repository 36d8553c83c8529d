package domain

import (
	"math"
	"sort"
	"time"
)

// StockRecord is the canonical per-product stock shape. Available is derived
// and never stored.
type StockRecord struct {
	ProductID string
	OnHand    int64
	Reserved  int64
	UpdatedAt time.Time
}

func (s StockRecord) Available() int64 {
	return s.OnHand - s.Reserved
}

// StoredStock is the raw stock document as persisted. Records written before
// the onHand/reserved split only carry the flat Quantity field.
type StoredStock struct {
	OnHand    *int64
	Reserved  *int64
	Quantity  *int64
	UpdatedAt time.Time
}

// NormalizeStock converts a stored document into a StockRecord, falling back
// to the legacy Quantity field when OnHand is absent.
func NormalizeStock(productID string, raw StoredStock) StockRecord {
	rec := StockRecord{
		ProductID: productID,
		UpdatedAt: raw.UpdatedAt,
	}

	switch {
	case raw.OnHand != nil:
		rec.OnHand = *raw.OnHand
	case raw.Quantity != nil:
		rec.OnHand = *raw.Quantity
	}

	if raw.Reserved != nil {
		rec.Reserved = *raw.Reserved
	}

	return rec
}

// Stored returns the document to write for rec. Quantity always mirrors
// OnHand for legacy readers.
func (s StockRecord) Stored() StoredStock {
	onHand := s.OnHand
	reserved := s.Reserved
	quantity := s.OnHand
	return StoredStock{
		OnHand:    &onHand,
		Reserved:  &reserved,
		Quantity:  &quantity,
		UpdatedAt: s.UpdatedAt,
	}
}

// MaxItemQuantity bounds a single order line, and the merged total per
// product, so stock arithmetic cannot overflow int64.
const MaxItemQuantity int64 = 1_000_000_000

// Item is one order line as seen by the ledger.
type Item struct {
	ProductID string
	Quantity  int64
}

// NormalizeItems merges lines for the same product by summing quantities and
// returns them sorted by ProductID, the order in which stores lock rows.
// Totals saturate at math.MaxInt64 instead of wrapping.
func NormalizeItems(items []Item) []Item {
	totals := make(map[string]int64, len(items))
	for _, item := range items {
		totals[item.ProductID] = addSaturating(totals[item.ProductID], item.Quantity)
	}

	out := make([]Item, 0, len(totals))
	for productID, quantity := range totals {
		out = append(out, Item{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func addSaturating(a, b int64) int64 {
	switch {
	case b > 0 && a > math.MaxInt64-b:
		return math.MaxInt64
	case b < 0 && a < math.MinInt64-b:
		return math.MinInt64
	}
	return a + b
}
