package product

import (
	"go.uber.org/zap"
)

// NewModule assembles the read-only stock query surface over repo.
func NewModule(repo Repository, logger *zap.Logger) *Controller {
	return NewController(NewStockQueryUseCase(NewService(repo)), logger)
}
