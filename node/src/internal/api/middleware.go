package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sajjad-MoBe/kvserver/node/src/internal/errors"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// RecoveryMiddleware recovers panics and writes JSON errors
func RecoveryMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					err := errors.RecoverError(rec)
					logger.Error("admin handler panicked", zap.String("path", r.URL.Path), zap.Error(err))
					handleError(w, err)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// handleError writes an error response to the client
func handleError(w http.ResponseWriter, err error) {
	var statusCode int

	switch {
	case errors.IsNotFound(err):
		statusCode = http.StatusNotFound
	case errors.IsInvalidInput(err):
		statusCode = http.StatusBadRequest
	case errors.IsTimeout(err):
		statusCode = http.StatusGatewayTimeout
	default:
		statusCode = http.StatusInternalServerError
	}

	response := ErrorResponse{}
	response.Error.Type = string(errors.TypeOf(err))
	response.Error.Message = err.Error()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// LoggingMiddleware logs request details
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			logger.Debug("admin request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.statusCode),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}

// responseWriter is a custom response writer that captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
