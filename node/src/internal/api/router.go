package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Router creates and configures the admin HTTP router. gatherer may be nil,
// in which case /metrics is not registered.
func Router(health *HealthHandler, gatherer prometheus.Gatherer, tracer *Tracer, logger *zap.Logger) http.Handler {
	router := mux.NewRouter()

	middleware := []mux.MiddlewareFunc{
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
	}
	if tracer != nil {
		middleware = append(middleware, tracer.TracingMiddleware)
	}
	router.Use(middleware...)

	router.Handle("/health", health).Methods(http.MethodGet)
	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return router
}
