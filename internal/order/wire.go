package order

import (
	"go.uber.org/zap"

	"stockledger/internal/order/controller"
	"stockledger/internal/order/usecase"
)

func NewModule(ledger usecase.StockLedger, logger *zap.Logger) *controller.LifecycleController {
	uc := usecase.NewLifecycleUseCase(ledger, logger)
	return controller.NewLifecycleController(uc, logger)
}
