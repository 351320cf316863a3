package storage

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sajjad-MoBe/kvserver/node/src/internal/shared"
)

// PersistentStore writes a full snapshot after every successful mutation.
//
// persistMu serialises "mutate, copy, write" so two saves never race and the
// file always ends up holding the latest state. Gets only take the MemStore
// read lock and are never queued behind disk I/O; mutations are, one at a
// time, for the duration of each snapshot write.
type PersistentStore struct {
	mem         *MemStore
	snapshotter Snapshotter
	persistMu   sync.Mutex
	logger      *zap.Logger
	metrics     *shared.Metrics
}

var _ Store = (*PersistentStore)(nil)

// Open loads the snapshot behind snapshotter and returns a store that keeps
// it up to date. A snapshot that cannot be parsed is fatal under PolicyFail
// and is replaced by an empty store under PolicyEmpty.
func Open(snapshotter Snapshotter, policy CorruptPolicy, logger *zap.Logger, metrics *shared.Metrics) (*PersistentStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := snapshotter.Load()
	if err != nil {
		if policy != PolicyEmpty {
			return nil, err
		}
		logger.Warn("snapshot unreadable, starting with an empty store", zap.Error(err))
		data = map[string]string{}
	}

	logger.Info("snapshot loaded", zap.Int("keys", len(data)))
	metrics.SetStoreKeys(len(data))

	mem := NewMemStore()
	mem.Replace(data)
	return &PersistentStore{
		mem:         mem,
		snapshotter: snapshotter,
		logger:      logger,
		metrics:     metrics,
	}, nil
}

func (p *PersistentStore) Get(key string) (string, bool) {
	return p.mem.Get(key)
}

func (p *PersistentStore) Set(key, value string) error {
	return p.mutate(func() error { return p.mem.Set(key, value) })
}

func (p *PersistentStore) Delete(key string) error {
	return p.mutate(func() error { return p.mem.Delete(key) })
}

func (p *PersistentStore) BatchPut(pairs []Pair) error {
	return p.mutate(func() error { return p.mem.BatchPut(pairs) })
}

func (p *PersistentStore) Len() int {
	return p.mem.Len()
}

func (p *PersistentStore) Snapshot() map[string]string {
	return p.mem.Snapshot()
}

// GetMetrics returns the in-memory store counters
func (p *PersistentStore) GetMetrics() *StorageMetrics {
	return p.mem.GetMetrics()
}

// Flush writes the current state regardless of pending mutations
func (p *PersistentStore) Flush() error {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	return p.save()
}

// mutate applies op and then saves. A failed save is returned to the caller
// but the in-memory change stays applied.
func (p *PersistentStore) mutate(op func() error) error {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()

	if err := op(); err != nil {
		return err
	}
	return p.save()
}

func (p *PersistentStore) save() error {
	start := time.Now()
	snapshot := p.mem.Snapshot()
	err := p.snapshotter.Save(snapshot)
	p.metrics.RecordSnapshot(time.Since(start), err)

	if err != nil {
		p.logger.Error("snapshot write failed", zap.Error(err), zap.Int("keys", len(snapshot)))
		return err
	}
	p.logger.Debug("snapshot written", zap.Int("keys", len(snapshot)), zap.Duration("took", time.Since(start)))
	return nil
}
