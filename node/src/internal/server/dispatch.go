package server

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sajjad-MoBe/kvserver/node/src/internal/api"
	kvErr "github.com/sajjad-MoBe/kvserver/node/src/internal/errors"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/protocol"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/shared"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/storage"
)

// Request outcome labels
const (
	statusOK       = "ok"
	statusNotFound = "not_found"
	statusError    = "error"
	statusInvalid  = "invalid"
)

// Dispatcher applies decoded requests to the store
type Dispatcher struct {
	store   storage.Store
	tracer  *api.Tracer
	metrics *shared.Metrics
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher. tracer, metrics and logger may be nil.
func NewDispatcher(store storage.Store, tracer *api.Tracer, metrics *shared.Metrics, logger *zap.Logger) *Dispatcher {
	if tracer == nil {
		tracer = api.NoopTracer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{store: store, tracer: tracer, metrics: metrics, logger: logger}
}

// Dispatch executes req and returns exactly one response
func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	start := time.Now()
	ctx, span := d.tracer.StartSpan(ctx, "kv."+string(req.Op),
		attribute.String("kv.op", string(req.Op)),
		attribute.String("kv.key", req.Key),
		attribute.Int("kv.pairs", len(req.Pairs)),
	)
	defer span.End()

	resp := d.apply(ctx, req)

	status := statusOK
	switch {
	case resp.Kind == protocol.KindError:
		status = statusError
		d.tracer.AddSpanError(ctx, resp.Err)
		d.logger.Warn("request failed", zap.String("op", string(req.Op)), zap.Error(resp.Err))
	case resp.Kind == protocol.KindValue && !resp.Found:
		status = statusNotFound
	}
	span.SetAttributes(attribute.String("kv.status", status))

	took := time.Since(start)
	d.metrics.RecordRequest(string(req.Op), status, took)
	d.logger.Debug("request handled",
		zap.String("op", string(req.Op)),
		zap.String("key", req.Key),
		zap.String("status", status),
		zap.Duration("took", took),
	)
	return resp
}

// Rejected records a request that could not be decoded
func (d *Dispatcher) Rejected() {
	d.metrics.RecordRequest("unknown", statusInvalid, 0)
}

func (d *Dispatcher) apply(ctx context.Context, req *protocol.Request) *protocol.Response {
	switch req.Op {
	case protocol.OpGet:
		value, found := d.store.Get(req.Key)
		return protocol.Value(req.Key, value, found)
	case protocol.OpSet:
		return d.mutate(ctx, req.Op, func() error { return d.store.Set(req.Key, req.Value) })
	case protocol.OpDelete:
		return d.mutate(ctx, req.Op, func() error { return d.store.Delete(req.Key) })
	case protocol.OpBatchPut:
		pairs := make([]storage.Pair, len(req.Pairs))
		for i, p := range req.Pairs {
			pairs[i] = storage.Pair{Key: p.Key, Value: p.Value}
		}
		return d.mutate(ctx, req.Op, func() error { return d.store.BatchPut(pairs) })
	}
	return protocol.Failure(req.Op, kvErr.New(kvErr.ErrorTypeInvalidInput, fmt.Sprintf("unknown operation %q", req.Op), nil))
}

func (d *Dispatcher) mutate(ctx context.Context, op protocol.Op, fn func() error) *protocol.Response {
	err := d.tracer.TraceStorageOperation(ctx, string(op), func(context.Context) error {
		return fn()
	})
	if d.metrics != nil {
		d.metrics.SetStoreKeys(d.store.Len())
	}
	if err != nil {
		return protocol.Failure(op, err)
	}
	return protocol.Ack(op)
}
