package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"stockledger/internal/domain"
	apperrors "stockledger/internal/errors"
	"stockledger/internal/stock/store"
)

const (
	mysqlErrDeadlock    = 1213
	mysqlErrLockTimeout = 1205
)

// MySQLStore serializes ledger transactions with row locks taken by
// SELECT ... FOR UPDATE. Deadlocks and lock wait timeouts are reported as
// transaction conflicts.
type MySQLStore struct {
	db *sqlx.DB
}

func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

var _ store.Store = (*MySQLStore)(nil)

func (s *MySQLStore) RunInTx(ctx context.Context, tenantID string, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return classifyMySQLError("beginning transaction", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback()

	if err := fn(ctx, &mysqlTx{tx: tx, tenantID: tenantID}); err != nil {
		return classifyMySQLError("running transaction", err)
	}

	if err := tx.Commit(); err != nil {
		return classifyMySQLError("committing transaction", err)
	}
	return nil
}

func isDeadlockError(err error) bool {
	var mysqlErr *driver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDeadlock || mysqlErr.Number == mysqlErrLockTimeout
	}
	return false
}

// classifyMySQLError maps driver errors onto the ledger's taxonomy. Errors
// raised by the ledger itself pass through untouched.
func classifyMySQLError(op string, err error) error {
	if isDeadlockError(err) {
		return apperrors.NewTransactionConflictError("mysql: "+op, err)
	}
	var mysqlErr *driver.MySQLError
	if errors.As(err, &mysqlErr) {
		return apperrors.NewInternalError("mysql: "+op, err)
	}
	return err
}

type stockRow struct {
	ProductID string    `db:"product_id"`
	OnHand    *int64    `db:"on_hand"`
	Reserved  *int64    `db:"reserved"`
	Quantity  *int64    `db:"quantity"`
	UpdatedAt time.Time `db:"updated_at"`
}

type reservationRow struct {
	ProductID  string     `db:"product_id"`
	OrderID    string     `db:"order_id"`
	Quantity   int64      `db:"quantity"`
	Status     string     `db:"status"`
	CreatedAt  time.Time  `db:"created_at"`
	ConsumedAt *time.Time `db:"consumed_at"`
	ReleasedAt *time.Time `db:"released_at"`
}

func (r reservationRow) toDomain() domain.Reservation {
	return domain.Reservation{
		ProductID:  r.ProductID,
		OrderID:    r.OrderID,
		Quantity:   r.Quantity,
		Status:     domain.ReservationStatus(r.Status),
		CreatedAt:  r.CreatedAt,
		ConsumedAt: r.ConsumedAt,
		ReleasedAt: r.ReleasedAt,
	}
}

type commitmentRow struct {
	OrderID   string    `db:"order_id"`
	Status    string    `db:"status"`
	Items     []byte    `db:"items"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type commitmentItem struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

func encodeItems(items []domain.Item) ([]byte, error) {
	out := make([]commitmentItem, len(items))
	for i, item := range items {
		out[i] = commitmentItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return json.Marshal(out)
}

func decodeItems(data []byte) ([]domain.Item, error) {
	var in []commitmentItem
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	items := make([]domain.Item, len(in))
	for i, item := range in {
		items[i] = domain.Item{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return items, nil
}

type mysqlTx struct {
	tx       *sqlx.Tx
	tenantID string
}

func (t *mysqlTx) GetCommitment(ctx context.Context, orderID string) (*domain.OrderCommitment, error) {
	query := `
		SELECT order_id, status, items, created_at, updated_at
		FROM stock_orders
		WHERE tenant_id = ? AND order_id = ?
		FOR UPDATE
	`

	var row commitmentRow
	err := t.tx.GetContext(ctx, &row, query, t.tenantID, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying stock order: %w", err)
	}

	items, err := decodeItems(row.Items)
	if err != nil {
		return nil, fmt.Errorf("decoding stock order items: %w", err)
	}

	return &domain.OrderCommitment{
		OrderID:   row.OrderID,
		Status:    domain.CommitmentStatus(row.Status),
		Items:     items,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (t *mysqlTx) GetStock(ctx context.Context, productIDs []string) (map[string]domain.StockRecord, error) {
	records := make(map[string]domain.StockRecord, len(productIDs))
	if len(productIDs) == 0 {
		return records, nil
	}

	query, args, err := sqlx.In(`
		SELECT product_id, on_hand, reserved, quantity, updated_at
		FROM stock_products
		WHERE tenant_id = ? AND product_id IN (?)
		ORDER BY product_id
		FOR UPDATE`,
		t.tenantID, productIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("building stock query: %w", err)
	}

	var rows []stockRow
	if err := t.tx.SelectContext(ctx, &rows, t.tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying stock for update: %w", err)
	}

	for _, row := range rows {
		records[row.ProductID] = domain.NormalizeStock(row.ProductID, domain.StoredStock{
			OnHand:    row.OnHand,
			Reserved:  row.Reserved,
			Quantity:  row.Quantity,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return records, nil
}

func (t *mysqlTx) GetReservations(ctx context.Context, orderID string, productIDs []string) (map[string]domain.Reservation, error) {
	reservations := make(map[string]domain.Reservation, len(productIDs))
	if len(productIDs) == 0 {
		return reservations, nil
	}

	query, args, err := sqlx.In(`
		SELECT product_id, order_id, quantity, status, created_at, consumed_at, released_at
		FROM stock_reservations
		WHERE tenant_id = ? AND order_id = ? AND product_id IN (?)
		ORDER BY product_id
		FOR UPDATE`,
		t.tenantID, orderID, productIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("building reservation query: %w", err)
	}

	var rows []reservationRow
	if err := t.tx.SelectContext(ctx, &rows, t.tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying reservations for update: %w", err)
	}

	for _, row := range rows {
		reservations[row.ProductID] = row.toDomain()
	}
	return reservations, nil
}

func (t *mysqlTx) PutStock(ctx context.Context, rec domain.StockRecord) error {
	query := `
		UPDATE stock_products
		SET on_hand = ?, reserved = ?, quantity = ?, updated_at = ?
		WHERE tenant_id = ? AND product_id = ?
	`

	stored := rec.Stored()
	_, err := t.tx.ExecContext(ctx, query,
		*stored.OnHand, *stored.Reserved, *stored.Quantity, stored.UpdatedAt.UTC(),
		t.tenantID, rec.ProductID,
	)
	if err != nil {
		return fmt.Errorf("updating stock for product %s: %w", rec.ProductID, err)
	}
	return nil
}

func (t *mysqlTx) PutReservation(ctx context.Context, r domain.Reservation) error {
	query := `
		INSERT INTO stock_reservations
			(tenant_id, product_id, order_id, quantity, status, created_at, consumed_at, released_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			consumed_at = VALUES(consumed_at),
			released_at = VALUES(released_at)
	`

	_, err := t.tx.ExecContext(ctx, query,
		t.tenantID, r.ProductID, r.OrderID, r.Quantity, string(r.Status),
		r.CreatedAt.UTC(), utcPtr(r.ConsumedAt), utcPtr(r.ReleasedAt),
	)
	if err != nil {
		return fmt.Errorf("writing reservation %s/%s: %w", r.ProductID, r.OrderID, err)
	}
	return nil
}

func (t *mysqlTx) PutCommitment(ctx context.Context, c domain.OrderCommitment) error {
	items, err := encodeItems(c.Items)
	if err != nil {
		return fmt.Errorf("encoding stock order items: %w", err)
	}

	query := `
		INSERT INTO stock_orders (tenant_id, order_id, status, items, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			items = VALUES(items),
			updated_at = VALUES(updated_at)
	`

	_, err = t.tx.ExecContext(ctx, query,
		t.tenantID, c.OrderID, string(c.Status), string(items), c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing stock order %s: %w", c.OrderID, err)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
