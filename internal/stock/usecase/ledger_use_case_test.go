package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stockledger/internal/config"
	"stockledger/internal/domain"
	apperrors "stockledger/internal/errors"
	"stockledger/internal/stock/repository"
	"stockledger/internal/stock/service"
)

// Mock implementations
type mockLedgerService struct {
	ReserveFunc    func(ctx context.Context, tenantID, orderID string, items []domain.Item) error
	ConfirmFunc    func(ctx context.Context, tenantID, orderID string, items []domain.Item) error
	ReleaseFunc    func(ctx context.Context, tenantID, orderID string, items []domain.Item) error
	OrderStateFunc func(ctx context.Context, tenantID, orderID string) (*domain.OrderCommitment, []domain.Reservation, error)
}

func (m *mockLedgerService) Reserve(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
	return m.ReserveFunc(ctx, tenantID, orderID, items)
}

func (m *mockLedgerService) Confirm(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
	return m.ConfirmFunc(ctx, tenantID, orderID, items)
}

func (m *mockLedgerService) Release(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
	return m.ReleaseFunc(ctx, tenantID, orderID, items)
}

func (m *mockLedgerService) OrderState(ctx context.Context, tenantID, orderID string) (*domain.OrderCommitment, []domain.Reservation, error) {
	return m.OrderStateFunc(ctx, tenantID, orderID)
}

type mockTenantSettingsRepository struct {
	FindByTenantIDFunc func(ctx context.Context, tenantID string) (*domain.TenantSettings, error)
}

func (m *mockTenantSettingsRepository) FindByTenantID(ctx context.Context, tenantID string) (*domain.TenantSettings, error) {
	return m.FindByTenantIDFunc(ctx, tenantID)
}

func settingsNotFound() *mockTenantSettingsRepository {
	return &mockTenantSettingsRepository{
		FindByTenantIDFunc: func(ctx context.Context, tenantID string) (*domain.TenantSettings, error) {
			return nil, apperrors.NewNotFoundError("not found")
		},
	}
}

var testLedgerConfig = config.LedgerConfig{
	MaxRetryAttempts: 3,
	BaseBackoff:      100 * time.Millisecond,
}

// Helper to create a LedgerUseCase that records backoff waits instead of sleeping
func newTestLedgerUseCase(ledger LedgerService, tenants TenantSettingsRepository, cfg config.LedgerConfig) (*LedgerUseCase, *[]time.Duration) {
	uc := NewLedgerUseCase(ledger, tenants, zap.NewNop(), cfg)
	var waits []time.Duration
	uc.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return uc, &waits
}

var oneItem = []domain.Item{{ProductID: "P", Quantity: 1}}

func TestReserve_ValidationErrors(t *testing.T) {
	ledger := &mockLedgerService{
		ReserveFunc: func(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
			t.Fatal("ledger must not be called for invalid input")
			return nil
		},
	}
	uc, _ := newTestLedgerUseCase(ledger, settingsNotFound(), testLedgerConfig)

	tests := []struct {
		name     string
		tenantID string
		orderID  string
		items    []domain.Item
		fields   []string
	}{
		{name: "missing ids", items: oneItem, fields: []string{"tenantId", "orderId"}},
		{name: "no items", tenantID: "t", orderID: "o", fields: []string{"items"}},
		{
			name:     "bad lines",
			tenantID: "t",
			orderID:  "o",
			items:    []domain.Item{{ProductID: "", Quantity: 1}, {ProductID: "P", Quantity: 0}, {ProductID: "Q", Quantity: -2}},
			fields:   []string{"items[0].productId", "items[1].quantity", "items[2].quantity"},
		},
		{
			name:     "ids with separator",
			tenantID: "t/x",
			orderID:  "o/y",
			items:    []domain.Item{{ProductID: "a/b", Quantity: 1}},
			fields:   []string{"tenantId", "orderId", "items[0].productId"},
		},
		{
			name:     "line above maximum",
			tenantID: "t",
			orderID:  "o",
			items:    []domain.Item{{ProductID: "P", Quantity: math.MaxInt64}},
			fields:   []string{"items[0].quantity"},
		},
		{
			name:     "merged total above maximum",
			tenantID: "t",
			orderID:  "o",
			items: []domain.Item{
				{ProductID: "P", Quantity: domain.MaxItemQuantity},
				{ProductID: "P", Quantity: 1},
			},
			fields: []string{"items"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := uc.Reserve(context.Background(), tt.tenantID, tt.orderID, tt.items)

			ve, ok := apperrors.IsValidationError(err)
			require.True(t, ok, "expected ValidationError, got %v", err)

			var fields []string
			for _, d := range ve.Details {
				fields = append(fields, d.Field)
			}
			assert.Equal(t, tt.fields, fields)
		})
	}
}

func TestReserve_NormalizesItems(t *testing.T) {
	var got []domain.Item
	ledger := &mockLedgerService{
		ReserveFunc: func(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
			got = items
			return nil
		},
	}
	uc, _ := newTestLedgerUseCase(ledger, settingsNotFound(), testLedgerConfig)

	err := uc.Reserve(context.Background(), "t", "o", []domain.Item{
		{ProductID: "Z", Quantity: 1},
		{ProductID: "A", Quantity: 2},
		{ProductID: "Z", Quantity: 3},
	})

	require.NoError(t, err)
	assert.Equal(t, []domain.Item{{ProductID: "A", Quantity: 2}, {ProductID: "Z", Quantity: 4}}, got)
}

func TestMutations_StockControlDisabled(t *testing.T) {
	fail := func(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
		t.Fatal("ledger must not be called when stock control is disabled")
		return nil
	}
	ledger := &mockLedgerService{ReserveFunc: fail, ConfirmFunc: fail, ReleaseFunc: fail}
	tenants := &mockTenantSettingsRepository{
		FindByTenantIDFunc: func(ctx context.Context, tenantID string) (*domain.TenantSettings, error) {
			return &domain.TenantSettings{TenantID: tenantID, StockControl: false}, nil
		},
	}
	uc, _ := newTestLedgerUseCase(ledger, tenants, testLedgerConfig)
	ctx := context.Background()

	assert.NoError(t, uc.Reserve(ctx, "t", "o", oneItem))
	assert.NoError(t, uc.Confirm(ctx, "t", "o", oneItem))
	assert.NoError(t, uc.Release(ctx, "t", "o", oneItem))
}

func TestMutations_SettingsLookupFails(t *testing.T) {
	boom := errors.New("connection refused")
	tenants := &mockTenantSettingsRepository{
		FindByTenantIDFunc: func(ctx context.Context, tenantID string) (*domain.TenantSettings, error) {
			return nil, boom
		},
	}
	uc, _ := newTestLedgerUseCase(&mockLedgerService{}, tenants, testLedgerConfig)

	err := uc.Confirm(context.Background(), "t", "o", oneItem)

	assert.ErrorIs(t, err, boom)
}

func TestStockControlEnabled_DefaultsWhenMissing(t *testing.T) {
	uc, _ := newTestLedgerUseCase(&mockLedgerService{}, settingsNotFound(), testLedgerConfig)

	enabled, err := uc.StockControlEnabled(context.Background(), "t")

	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestReserve_RetriesConflictWithBackoff(t *testing.T) {
	calls := 0
	ledger := &mockLedgerService{
		ReserveFunc: func(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
			calls++
			if calls < 3 {
				return apperrors.NewTransactionConflictError("conflict", nil)
			}
			return nil
		},
	}
	uc, waits := newTestLedgerUseCase(ledger, settingsNotFound(), testLedgerConfig)

	err := uc.Reserve(context.Background(), "t", "o", oneItem)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, *waits, 2)
	assert.InDelta(t, float64(100*time.Millisecond), float64((*waits)[0]), float64(20*time.Millisecond))
	assert.InDelta(t, float64(200*time.Millisecond), float64((*waits)[1]), float64(40*time.Millisecond))
}

func TestReserve_RetryExhausted(t *testing.T) {
	calls := 0
	cause := apperrors.NewTransactionConflictError("conflict", nil)
	ledger := &mockLedgerService{
		ReserveFunc: func(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
			calls++
			return cause
		},
	}
	uc, _ := newTestLedgerUseCase(ledger, settingsNotFound(), testLedgerConfig)

	err := uc.Reserve(context.Background(), "t", "o", oneItem)

	te, ok := apperrors.IsTransactionConflictError(err)
	require.True(t, ok)
	assert.Equal(t, "max retries exceeded", te.Message)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, calls)
}

func TestMutations_BusinessErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "insufficient stock", err: apperrors.NewInsufficientStockError("P", 5, 4)},
		{name: "product not found", err: apperrors.NewProductNotFoundError("P")},
		{name: "already reserved", err: apperrors.NewAlreadyReservedError("o")},
		{name: "already confirmed", err: apperrors.NewAlreadyConfirmedError("o")},
		{name: "store failure", err: fmt.Errorf("querying stock: %w", errors.New("broken pipe"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			ledger := &mockLedgerService{
				ConfirmFunc: func(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
					calls++
					return tt.err
				},
			}
			uc, waits := newTestLedgerUseCase(ledger, settingsNotFound(), testLedgerConfig)

			err := uc.Confirm(context.Background(), "t", "o", oneItem)

			assert.Equal(t, tt.err, err)
			assert.Equal(t, 1, calls)
			assert.Empty(t, *waits)
		})
	}
}

func TestReserve_AttemptTimeoutIsRetried(t *testing.T) {
	calls := 0
	ledger := &mockLedgerService{
		ReserveFunc: func(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
			calls++
			if calls == 1 {
				<-ctx.Done()
				return fmt.Errorf("committing: %w", ctx.Err())
			}
			return nil
		},
	}
	cfg := testLedgerConfig
	cfg.TxTimeout = 10 * time.Millisecond
	uc, _ := newTestLedgerUseCase(ledger, settingsNotFound(), cfg)

	err := uc.Reserve(context.Background(), "t", "o", oneItem)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestReserve_CallerCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	ledger := &mockLedgerService{
		ReserveFunc: func(ctx context.Context, tenantID, orderID string, items []domain.Item) error {
			calls++
			cancel()
			return apperrors.NewTransactionConflictError("conflict", nil)
		},
	}
	uc, _ := newTestLedgerUseCase(ledger, settingsNotFound(), testLedgerConfig)

	err := uc.Reserve(ctx, "t", "o", oneItem)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestOrderState(t *testing.T) {
	ledger := &mockLedgerService{
		OrderStateFunc: func(ctx context.Context, tenantID, orderID string) (*domain.OrderCommitment, []domain.Reservation, error) {
			return &domain.OrderCommitment{OrderID: orderID, Status: domain.CommitmentReserved},
				[]domain.Reservation{{ProductID: "P", OrderID: orderID, Quantity: 2, Status: domain.ReservationActive}}, nil
		},
	}
	uc, _ := newTestLedgerUseCase(ledger, settingsNotFound(), testLedgerConfig)

	commitment, reservations, err := uc.OrderState(context.Background(), "t", "o")

	require.NoError(t, err)
	assert.Equal(t, domain.CommitmentReserved, commitment.Status)
	assert.Len(t, reservations, 1)

	_, _, err = uc.OrderState(context.Background(), "", "o")
	_, ok := apperrors.IsValidationError(err)
	assert.True(t, ok)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestBackoff_FirstAttemptHasNoWait(t *testing.T) {
	uc, _ := newTestLedgerUseCase(&mockLedgerService{}, settingsNotFound(), testLedgerConfig)

	assert.Zero(t, uc.backoff(1))
	for i := 0; i < 50; i++ {
		d := uc.backoff(3)
		assert.GreaterOrEqual(t, d, 160*time.Millisecond)
		assert.LessOrEqual(t, d, 240*time.Millisecond)
	}
}

// Helper to build the real stack over a memory store with fast retries
func newMemoryLedger(t *testing.T, onHand int64) (*LedgerUseCase, *repository.MemoryStore) {
	t.Helper()

	st := repository.NewMemoryStore()
	st.SeedProduct("acme", "P", domain.StoredStock{OnHand: &onHand})

	uc := NewLedgerUseCase(service.NewLedgerService(st, zap.NewNop()), st, zap.NewNop(), config.LedgerConfig{
		MaxRetryAttempts: 200,
		BaseBackoff:      time.Microsecond,
	})
	return uc, st
}

func TestReserve_ConcurrentOrdersNeverOversell(t *testing.T) {
	uc, st := newMemoryLedger(t, 10)

	var succeeded, insufficient atomic.Int32
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 30; i++ {
		orderID := fmt.Sprintf("order-%02d", i)
		g.Go(func() error {
			err := uc.Reserve(ctx, "acme", orderID, []domain.Item{{ProductID: "P", Quantity: 1}})
			if err == nil {
				succeeded.Add(1)
				return nil
			}
			if _, ok := apperrors.IsInsufficientStockError(err); ok {
				insufficient.Add(1)
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(10), succeeded.Load())
	assert.Equal(t, int32(20), insufficient.Load())

	rec, _ := st.Stock("acme", "P")
	assert.Equal(t, int64(10), rec.Reserved)
	assert.Len(t, st.ActiveReservations("acme", "P"), 10)
}

func TestReserveReleaseConfirm_ConcurrentAccountingHolds(t *testing.T) {
	uc, st := newMemoryLedger(t, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			orderID := fmt.Sprintf("order-%02d", i)
			items := []domain.Item{{ProductID: "P", Quantity: 3}}

			if err := uc.Reserve(ctx, "acme", orderID, items); err != nil {
				t.Errorf("reserve %s: %v", orderID, err)
				return
			}
			var err error
			if i%2 == 0 {
				err = uc.Confirm(ctx, "acme", orderID, items)
			} else {
				err = uc.Release(ctx, "acme", orderID, items)
			}
			if err != nil {
				t.Errorf("settle %s: %v", orderID, err)
			}
		}(i)
	}
	wg.Wait()

	rec, _ := st.Stock("acme", "P")
	assert.Equal(t, int64(100-10*3), rec.OnHand)
	assert.Equal(t, int64(0), rec.Reserved)
	assert.Empty(t, st.ActiveReservations("acme", "P"))
}

func TestConfirm_ConcurrentDuplicatesDeductOnce(t *testing.T) {
	uc, st := newMemoryLedger(t, 10)
	items := []domain.Item{{ProductID: "P", Quantity: 4}}
	require.NoError(t, uc.Reserve(context.Background(), "acme", "A", items))

	var confirmed atomic.Int32
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			err := uc.Confirm(ctx, "acme", "A", items)
			if err == nil {
				confirmed.Add(1)
				return nil
			}
			if _, ok := apperrors.IsAlreadyConfirmedError(err); ok {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), confirmed.Load())
	rec, _ := st.Stock("acme", "P")
	assert.Equal(t, int64(6), rec.OnHand)
	assert.Equal(t, int64(0), rec.Reserved)
}

func TestReserve_DuplicateLinesCannotWrapQuantity(t *testing.T) {
	uc, st := newMemoryLedger(t, 10)
	onHand, reserved := int64(10), int64(6)
	st.SeedProduct("acme", "P", domain.StoredStock{OnHand: &onHand, Reserved: &reserved})

	err := uc.Reserve(context.Background(), "acme", "X", []domain.Item{
		{ProductID: "P", Quantity: math.MaxInt64},
		{ProductID: "P", Quantity: math.MaxInt64},
	})

	_, ok := apperrors.IsValidationError(err)
	require.True(t, ok, "expected ValidationError, got %v", err)

	rec, _ := st.Stock("acme", "P")
	assert.Equal(t, int64(10), rec.OnHand)
	assert.Equal(t, int64(6), rec.Reserved)
	_, found := st.Reservation("acme", "P", "X")
	assert.False(t, found)
}

func TestReserve_DuplicateLinesJustBelowMaximumMerge(t *testing.T) {
	uc, st := newMemoryLedger(t, 10)

	err := uc.Reserve(context.Background(), "acme", "X", []domain.Item{
		{ProductID: "P", Quantity: domain.MaxItemQuantity - 1},
		{ProductID: "P", Quantity: 1},
	})

	insufficient, ok := apperrors.IsInsufficientStockError(err)
	require.True(t, ok, "expected InsufficientStockError, got %v", err)
	assert.Equal(t, domain.MaxItemQuantity, insufficient.Requested)
	rec, _ := st.Stock("acme", "P")
	assert.Equal(t, int64(0), rec.Reserved)
}

func TestNewLedgerUseCase_SingleAttemptConfigStillRetries(t *testing.T) {
	st := repository.NewMemoryStore()
	onHand := int64(10)
	st.SeedProduct("acme", "P", domain.StoredStock{OnHand: &onHand})
	uc := NewLedgerUseCase(service.NewLedgerService(st, zap.NewNop()), st, zap.NewNop(), config.LedgerConfig{
		MaxRetryAttempts: 1,
		BaseBackoff:      time.Microsecond,
	})
	st.InjectConflicts(1)

	err := uc.Reserve(context.Background(), "acme", "A", []domain.Item{{ProductID: "P", Quantity: 2}})

	require.NoError(t, err)
	assert.Equal(t, config.MinRetryAttempts, uc.maxRetryAttempts)
	rec, _ := st.Stock("acme", "P")
	assert.Equal(t, int64(2), rec.Reserved)
}
