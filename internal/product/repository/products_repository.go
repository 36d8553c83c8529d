package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"stockledger/internal/domain"
)

type MySQLRepository struct {
	db *sqlx.DB
}

func NewMySQLRepository(db *sqlx.DB) *MySQLRepository {
	return &MySQLRepository{db: db}
}

type stockRow struct {
	ProductID string    `db:"product_id"`
	OnHand    *int64    `db:"on_hand"`
	Reserved  *int64    `db:"reserved"`
	Quantity  *int64    `db:"quantity"`
	UpdatedAt time.Time `db:"updated_at"`
}

// FindByIDsAndTenant is a plain consistent read; it takes no locks.
func (r *MySQLRepository) FindByIDsAndTenant(ctx context.Context, ids []string, tenantID string) ([]domain.StockRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT product_id, on_hand, reserved, quantity, updated_at
		FROM stock_products
		WHERE tenant_id = ?
		  AND product_id IN (?)
		ORDER BY product_id`,
		tenantID, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("building products query: %w", err)
	}

	var rows []stockRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}

	records := make([]domain.StockRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, domain.NormalizeStock(row.ProductID, domain.StoredStock{
			OnHand:    row.OnHand,
			Reserved:  row.Reserved,
			Quantity:  row.Quantity,
			UpdatedAt: row.UpdatedAt,
		}))
	}

	return records, nil
}
