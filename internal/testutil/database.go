package testutil

import (
	"fmt"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"

	mysqlinfra "stockledger/internal/infrastructure/mysql"
)

const defaultTestDSN = "root:@tcp(localhost:3306)/stockledger_test?parseTime=true"

// TestDSN returns TEST_DATABASE_DSN, or a local stockledger_test database.
func TestDSN() string {
	if dsn := os.Getenv("TEST_DATABASE_DSN"); dsn != "" {
		return dsn
	}
	return defaultTestDSN
}

// SetupTestDB connects to the test database and applies the schema. The test
// is skipped when no database is reachable.
func SetupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := TestDSN()
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("test database not available: %v", err)
	}

	if err := mysqlinfra.Migrate(dsn); err != nil {
		db.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	truncate(t, db)
	return db
}

// CleanupTestDB empties the ledger tables and closes db.
func CleanupTestDB(t *testing.T, db *sqlx.DB) {
	t.Helper()

	if db == nil {
		return
	}
	truncate(t, db)
	db.Close()
}

func truncate(t *testing.T, db *sqlx.DB) {
	tables := []string{"stock_reservations", "stock_orders", "stock_products", "tenant_settings"}
	for _, table := range tables {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}
}

// InsertStock writes a raw stock row the way the catalog does. Nil values are
// stored as NULL, which is how legacy rows look.
func InsertStock(t *testing.T, db *sqlx.DB, tenantID, productID string, onHand, reserved, quantity *int64) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO stock_products (tenant_id, product_id, name, on_hand, reserved, quantity)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tenantID, productID, "Product "+productID, onHand, reserved, quantity,
	)
	if err != nil {
		t.Fatalf("failed to insert stock row %s/%s: %v", tenantID, productID, err)
	}
}

func Int64(v int64) *int64 {
	return &v
}
