package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	kvErr "github.com/sajjad-MoBe/kvserver/node/src/internal/errors"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/shared"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/storage"
)

type fakeStore struct{ keys int }

func (f fakeStore) Len() int { return f.keys }

type fakeConns struct{ active int }

func (f fakeConns) ActiveConnections() int { return f.active }

func TestHealthEndpoint(t *testing.T) {
	health := NewHealthHandler(fakeStore{keys: 3}, fakeConns{active: 2})
	router := Router(health, nil, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, 3, status.Keys)
	assert.Equal(t, 2, status.ActiveConnections)
}

func TestHealthWithoutConnectionStats(t *testing.T) {
	health := NewHealthHandler(fakeStore{keys: 1}, nil)
	status := health.Status()
	assert.Equal(t, 1, status.Keys)
	assert.Equal(t, 0, status.ActiveConnections)
}

func TestHealthReportsStoreOperations(t *testing.T) {
	store := storage.NewMemStore()
	require.NoError(t, store.Set("a", "1"))
	require.NoError(t, store.BatchPut([]storage.Pair{{Key: "b", Value: "2"}, {Key: "c", Value: "3"}}))
	require.NoError(t, store.Delete("a"))
	store.Get("b")

	router := Router(NewHealthHandler(store, nil), nil, nil, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.NotNil(t, status.Operations)
	assert.Equal(t, storage.StorageMetrics{
		TotalKeys:   2,
		ReadCount:   1,
		WriteCount:  3,
		DeleteCount: 1,
		BatchCount:  1,
	}, *status.Operations)

	// stores without counters leave the field out
	assert.Nil(t, NewHealthHandler(fakeStore{keys: 1}, nil).Status().Operations)
}

func TestHealthRejectsOtherMethods(t *testing.T) {
	router := Router(NewHealthHandler(fakeStore{}, nil), nil, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := shared.NewMetrics()
	metrics.ConnectionOpened()
	metrics.RecordRequest("get", "ok", 0)

	router := Router(NewHealthHandler(fakeStore{}, nil), metrics.Registry, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "kvserver_connections_active 1")
	assert.Contains(t, body, `kvserver_requests_total{op="get",status="ok"} 1`)
}

func TestMetricsEndpointDisabled(t *testing.T) {
	router := Router(NewHealthHandler(fakeStore{}, nil), nil, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		panicWith      interface{}
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "plain panic",
			panicWith:      "boom",
			expectedStatus: http.StatusInternalServerError,
			expectedType:   string(kvErr.ErrorTypeInternal),
		},
		{
			name:           "invalid input error",
			panicWith:      kvErr.New(kvErr.ErrorTypeInvalidInput, "bad key", nil),
			expectedStatus: http.StatusBadRequest,
			expectedType:   string(kvErr.ErrorTypeInvalidInput),
		},
		{
			name:           "not found error",
			panicWith:      kvErr.New(kvErr.ErrorTypeNotFound, "missing", nil),
			expectedStatus: http.StatusNotFound,
			expectedType:   string(kvErr.ErrorTypeNotFound),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(tt.panicWith)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.expectedType, response.Error.Type)
			assert.NotEmpty(t, response.Error.Message)
		})
	}
}

func TestTracingMiddlewareRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer, err := NewTracer("kvserver-test", "", sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)

	router := Router(NewHealthHandler(fakeStore{}, nil), nil, tracer, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "http /health", spans[0].Name())

	var status int64
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "http.status_code" {
			status = attr.Value.AsInt64()
		}
	}
	assert.Equal(t, int64(http.StatusOK), status)
}

func TestTraceStorageOperationRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer, err := NewTracer("kvserver-test", "", sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)

	opErr := kvErr.New(kvErr.ErrorTypeStorage, "disk full", nil)
	got := tracer.TraceStorageOperation(context.Background(), "save", func(context.Context) error {
		return opErr
	})
	assert.Equal(t, opErr, got)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "storage.save", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestNoopTracerShutdown(t *testing.T) {
	tracer := NoopTracer()
	assert.Nil(t, tracer.Provider())
	assert.NoError(t, tracer.Shutdown(context.Background()))
}
