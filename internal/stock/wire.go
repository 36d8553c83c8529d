package stock

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	companyrepo "stockledger/internal/company/repository"
	"stockledger/internal/config"
	"stockledger/internal/domain"
	firestoreinfra "stockledger/internal/infrastructure/firestore"
	mysqlinfra "stockledger/internal/infrastructure/mysql"
	productrepo "stockledger/internal/product/repository"
	"stockledger/internal/stock/repository"
	"stockledger/internal/stock/service"
	"stockledger/internal/stock/store"
	"stockledger/internal/stock/usecase"
)

// ProductReader reads stock outside ledger transactions.
type ProductReader interface {
	FindByIDsAndTenant(ctx context.Context, ids []string, tenantID string) ([]domain.StockRecord, error)
}

// Backend bundles the adapters of one storage backend.
type Backend struct {
	Store    store.Store
	Products ProductReader
	Tenants  usecase.TenantSettingsRepository
	Close    func() error
}

// NewBackend connects the storage backend selected by cfg.Store.Backend.
func NewBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendMySQL:
		if cfg.Database.Migrate {
			if err := mysqlinfra.Migrate(mysqlinfra.DSN(cfg.Database)); err != nil {
				return nil, err
			}
			logger.Info("database migrations applied")
		}

		db, err := mysqlinfra.NewConnection(cfg.Database)
		if err != nil {
			return nil, err
		}
		logger.Info("database connected", zap.String("host", cfg.Database.Host))

		return &Backend{
			Store:    repository.NewMySQLStore(db),
			Products: productrepo.NewMySQLRepository(db),
			Tenants:  companyrepo.NewMySQLTenantSettingsRepository(db),
			Close:    db.Close,
		}, nil

	case config.BackendFirestore:
		client, err := firestoreinfra.NewClient(ctx, cfg.Firestore)
		if err != nil {
			return nil, err
		}
		logger.Info("firestore connected", zap.String("projectId", cfg.Firestore.ProjectID))

		fs := repository.NewFirestoreStore(client)
		return &Backend{
			Store:    fs,
			Products: fs,
			Tenants:  fs,
			Close:    client.Close,
		}, nil

	case config.BackendMemory:
		logger.Warn("using in-memory stock store; state is lost on restart")
		mem := repository.NewMemoryStore()
		return &Backend{
			Store:    mem,
			Products: mem,
			Tenants:  mem,
			Close:    func() error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func NewModule(backend *Backend, cfg *config.Config, logger *zap.Logger) *usecase.LedgerUseCase {
	ledgerSvc := service.NewLedgerService(backend.Store, logger)
	return usecase.NewLedgerUseCase(ledgerSvc, backend.Tenants, logger, cfg.Ledger)
}
