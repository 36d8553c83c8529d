package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"stockledger/internal/domain"
	apperrors "stockledger/internal/errors"
)

type MySQLTenantSettingsRepository struct {
	db *sqlx.DB
}

func NewMySQLTenantSettingsRepository(db *sqlx.DB) *MySQLTenantSettingsRepository {
	return &MySQLTenantSettingsRepository{db: db}
}

type tenantSettingsRow struct {
	TenantID     string    `db:"tenant_id"`
	StockControl bool      `db:"stock_control"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *MySQLTenantSettingsRepository) FindByTenantID(ctx context.Context, tenantID string) (*domain.TenantSettings, error) {
	query := `
		SELECT tenant_id, stock_control, updated_at
		FROM tenant_settings
		WHERE tenant_id = ?
	`

	var row tenantSettingsRow
	err := r.db.GetContext(ctx, &row, query, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("settings for tenant %s not found", tenantID))
	}
	if err != nil {
		return nil, fmt.Errorf("querying tenant settings: %w", err)
	}

	return &domain.TenantSettings{
		TenantID:     row.TenantID,
		StockControl: row.StockControl,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}
