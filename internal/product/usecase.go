package product

import (
	"context"
	"sort"
)

type stockQueryUseCase struct {
	service Service
}

func NewStockQueryUseCase(service Service) StockQueryUseCase {
	return &stockQueryUseCase{service: service}
}

func (uc *stockQueryUseCase) Query(ctx context.Context, q StockQuery) (*StockQueryResult, error) {
	lookup, err := uc.service.Lookup(ctx, q.TenantID, uniqueIDs(q.ProductIDs))
	if err != nil {
		return nil, err
	}

	products := make([]ProductStockDTO, 0, len(lookup.Found))
	for _, rec := range lookup.Found {
		available := rec.Available()
		if q.OnlyShort && available > q.Threshold {
			continue
		}
		products = append(products, ProductStockDTO{
			ProductID: rec.ProductID,
			OnHand:    rec.OnHand,
			Reserved:  rec.Reserved,
			Available: available,
			Oversold:  available < 0,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ProductID < products[j].ProductID })

	notFound := lookup.Missing
	if notFound == nil {
		notFound = []string{}
	}

	return &StockQueryResult{
		Products: products,
		NotFound: notFound,
	}, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
