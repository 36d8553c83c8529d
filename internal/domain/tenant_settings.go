package domain

import "time"

// TenantSettings holds per-tenant ledger switches. Tenants without stock
// control do not track reservations at all.
type TenantSettings struct {
	TenantID     string
	StockControl bool
	UpdatedAt    time.Time
}

func DefaultTenantSettings(tenantID string) TenantSettings {
	return TenantSettings{
		TenantID:     tenantID,
		StockControl: true,
	}
}
