package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"stockledger/internal/config"
	"stockledger/internal/infrastructure/logger"
	"stockledger/internal/order"
	"stockledger/internal/product"
	"stockledger/internal/server"
	"stockledger/internal/stock"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := stock.NewBackend(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("initialising store backend", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer func() {
		if err := backend.Close(); err != nil {
			zapLogger.Warn("closing store backend", zap.Error(err))
		}
	}()

	ledger := stock.NewModule(backend, cfg, zapLogger)
	productCtrl := product.NewModule(backend.Products, zapLogger)
	orderCtrl := order.NewModule(ledger, zapLogger)

	router := server.NewRouter(productCtrl, orderCtrl, zapLogger)

	srv := server.New(cfg.Server, router, zapLogger)

	if err := srv.Run(ctx); err != nil {
		zapLogger.Error("server stopped with error", zap.Error(err))
		return
	}

	zapLogger.Info("server stopped gracefully")
}
