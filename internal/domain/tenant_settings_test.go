package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTenantSettings(t *testing.T) {
	settings := DefaultTenantSettings("acme")

	assert.Equal(t, "acme", settings.TenantID)
	assert.True(t, settings.StockControl)
	assert.True(t, settings.UpdatedAt.IsZero())
}
