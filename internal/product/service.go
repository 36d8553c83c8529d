package product

import (
	"context"
	"fmt"

	"stockledger/internal/domain"
)

type stockService struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &stockService{repo: repo}
}

func (s *stockService) Lookup(ctx context.Context, tenantID string, ids []string) (*Lookup, error) {
	records, err := s.repo.FindByIDsAndTenant(ctx, ids, tenantID)
	if err != nil {
		return nil, fmt.Errorf("reading stock for tenant %s: %w", tenantID, err)
	}

	byID := make(map[string]domain.StockRecord, len(records))
	for _, rec := range records {
		byID[rec.ProductID] = rec
	}

	lookup := &Lookup{Found: make([]domain.StockRecord, 0, len(records))}
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			lookup.Found = append(lookup.Found, rec)
			continue
		}
		lookup.Missing = append(lookup.Missing, id)
	}
	return lookup, nil
}
