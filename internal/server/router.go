package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	ordercontroller "stockledger/internal/order/controller"
	"stockledger/internal/product"
)

func NewRouter(productCtrl *product.Controller, orderCtrl *ordercontroller.LifecycleController, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/products/search", productCtrl.HandleSearch)

	r.Route("/tenants/{tenantId}", func(r chi.Router) {
		r.Get("/products", productCtrl.HandleTenantStock)

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", orderCtrl.Status)
			r.Post("/reserve", orderCtrl.Reserve)
			r.Post("/invoice", orderCtrl.Invoice)
			r.Post("/cancel", orderCtrl.Cancel)
		})
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Debug("request served",
				zap.String("requestId", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
