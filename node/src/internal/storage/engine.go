package storage

// Store defines the operations a connection may run against the key-value
// mapping. Implementations never expose the underlying map.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	BatchPut(pairs []Pair) error
	Len() int
	Snapshot() map[string]string
}

// Pair is one key/value of a batch put
type Pair struct {
	Key   string
	Value string
}

// StorageMetrics tracks storage engine counters. WriteCount counts every
// key written, so a batch of three adds three writes and one batch.
type StorageMetrics struct {
	TotalKeys   int64 `json:"total_keys"`
	ReadCount   int64 `json:"reads"`
	WriteCount  int64 `json:"writes"`
	DeleteCount int64 `json:"deletes"`
	BatchCount  int64 `json:"batches"`
}
