package product

import (
	"context"

	"stockledger/internal/domain"
)

type StockQueryUseCase interface {
	Query(ctx context.Context, q StockQuery) (*StockQueryResult, error)
}

type Service interface {
	Lookup(ctx context.Context, tenantID string, ids []string) (*Lookup, error)
}

// Repository reads stock records outside any ledger transaction. Missing
// products are left out of the result.
type Repository interface {
	FindByIDsAndTenant(ctx context.Context, ids []string, tenantID string) ([]domain.StockRecord, error)
}

// Lookup is a repository read split into the records that exist and the ids
// that do not, both in request order.
type Lookup struct {
	Found   []domain.StockRecord
	Missing []string
}
