package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/sajjad-MoBe/kvserver/node/src/internal/api"
	kvErr "github.com/sajjad-MoBe/kvserver/node/src/internal/errors"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/protocol"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/storage"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(key string) (string, bool) {
	args := m.Called(key)
	return args.String(0), args.Bool(1)
}

func (m *mockStore) Set(key, value string) error {
	args := m.Called(key, value)
	return args.Error(0)
}

func (m *mockStore) Delete(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *mockStore) BatchPut(pairs []storage.Pair) error {
	args := m.Called(pairs)
	return args.Error(0)
}

func (m *mockStore) Len() int {
	return m.Called().Int(0)
}

func (m *mockStore) Snapshot() map[string]string {
	return m.Called().Get(0).(map[string]string)
}

func newRecordingDispatcher(t *testing.T, store storage.Store) (*Dispatcher, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tracer, err := api.NewTracer("kvserver-test", "", sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	return NewDispatcher(store, tracer, nil, nil), recorder
}

func spanNames(recorder *tracetest.SpanRecorder) []string {
	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	return names
}

func TestDispatchGet(t *testing.T) {
	store := new(mockStore)
	store.On("Get", "a").Return("1", true)
	store.On("Get", "b").Return("", false)
	d, recorder := newRecordingDispatcher(t, store)

	resp := d.Dispatch(context.Background(), &protocol.Request{Op: protocol.OpGet, Key: "a"})
	assert.Equal(t, protocol.KindValue, resp.Kind)
	assert.True(t, resp.Found)
	assert.Equal(t, "1", resp.Value)

	resp = d.Dispatch(context.Background(), &protocol.Request{Op: protocol.OpGet, Key: "b"})
	assert.False(t, resp.Found)

	assert.Equal(t, []string{"kv.get", "kv.get"}, spanNames(recorder))
	store.AssertExpectations(t)
}

func TestDispatchMutations(t *testing.T) {
	store := new(mockStore)
	store.On("Set", "k", "v").Return(nil)
	store.On("Delete", "k").Return(nil)
	store.On("BatchPut", []storage.Pair{{Key: "x", Value: "1"}, {Key: "y", Value: "2"}}).Return(nil)
	store.On("Len").Return(2)
	d, recorder := newRecordingDispatcher(t, store)

	resp := d.Dispatch(context.Background(), &protocol.Request{Op: protocol.OpSet, Key: "k", Value: "v"})
	assert.Equal(t, protocol.KindAck, resp.Kind)
	assert.Equal(t, protocol.OpSet, resp.Op)

	resp = d.Dispatch(context.Background(), &protocol.Request{Op: protocol.OpDelete, Key: "k"})
	assert.Equal(t, protocol.KindAck, resp.Kind)
	assert.Equal(t, protocol.OpDelete, resp.Op)

	resp = d.Dispatch(context.Background(), &protocol.Request{
		Op:    protocol.OpBatchPut,
		Pairs: []protocol.Pair{{Key: "x", Value: "1"}, {Key: "y", Value: "2"}},
	})
	assert.Equal(t, protocol.KindAck, resp.Kind)
	assert.Equal(t, protocol.OpBatchPut, resp.Op)

	// storage spans end before their parent request span
	assert.Equal(t, []string{
		"storage.set", "kv.set",
		"storage.delete", "kv.delete",
		"storage.batch_put", "kv.batch_put",
	}, spanNames(recorder))
	store.AssertExpectations(t)
}

func TestDispatchStorageFailure(t *testing.T) {
	storeErr := kvErr.New(kvErr.ErrorTypeStorage, "failed to write snapshot", nil)
	store := new(mockStore)
	store.On("Set", "k", "v").Return(storeErr)
	store.On("Len").Return(1)
	d, recorder := newRecordingDispatcher(t, store)

	resp := d.Dispatch(context.Background(), &protocol.Request{Op: protocol.OpSet, Key: "k", Value: "v"})
	require.Equal(t, protocol.KindError, resp.Kind)
	assert.True(t, kvErr.IsStorage(resp.Err))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	for _, span := range spans {
		assert.Equal(t, codes.Error, span.Status().Code, span.Name())
	}
}

func TestDispatchUnknownOp(t *testing.T) {
	d := NewDispatcher(new(mockStore), nil, nil, nil)

	resp := d.Dispatch(context.Background(), &protocol.Request{Op: "scan"})
	require.Equal(t, protocol.KindError, resp.Kind)
	assert.True(t, kvErr.IsInvalidInput(resp.Err))
}
