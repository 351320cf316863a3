package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kvErr "github.com/sajjad-MoBe/kvserver/node/src/internal/errors"
)

func setupSnapshotTest(t *testing.T) (*FileSnapshotter, string) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kv_store.db")

	snapshotter, err := NewFileSnapshotter(path)
	require.NoError(t, err)
	return snapshotter, path
}

func TestFileSnapshotterRoundTrip(t *testing.T) {
	snapshotter, path := setupSnapshotTest(t)

	testData := map[string]string{
		"key1":  "value1",
		"key2":  "value with spaces",
		"emoji": "héllo ✓",
	}
	require.NoError(t, snapshotter.Save(testData))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key1":"value1","key2":"value with spaces","emoji":"héllo ✓"}`, string(raw))

	restored, err := snapshotter.Load()
	require.NoError(t, err)
	assert.Equal(t, testData, restored)
}

func TestFileSnapshotterMissingFile(t *testing.T) {
	snapshotter, _ := setupSnapshotTest(t)

	data, err := snapshotter.Load()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFileSnapshotterEmptyFile(t *testing.T) {
	snapshotter, path := setupSnapshotTest(t)
	require.NoError(t, os.WriteFile(path, nil, 0644))

	data, err := snapshotter.Load()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFileSnapshotterCorruptFile(t *testing.T) {
	snapshotter, path := setupSnapshotTest(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := snapshotter.Load()
	require.Error(t, err)
	assert.True(t, kvErr.IsStorage(err))
}

func TestFileSnapshotterOverwriteLeavesNoTempFiles(t *testing.T) {
	snapshotter, path := setupSnapshotTest(t)

	require.NoError(t, snapshotter.Save(map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, snapshotter.Save(map[string]string{"a": "3"}))

	restored, err := snapshotter.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "3"}, restored)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileSnapshotterCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "kv.json")
	snapshotter, err := NewFileSnapshotter(path)
	require.NoError(t, err)
	require.NoError(t, snapshotter.Save(map[string]string{"k": "v"}))
	assert.FileExists(t, path)
}

func TestNewFileSnapshotterRejectsEmptyPath(t *testing.T) {
	_, err := NewFileSnapshotter("")
	assert.True(t, kvErr.IsInvalidInput(err))
}

func TestParseCorruptPolicy(t *testing.T) {
	p, err := ParseCorruptPolicy("fail")
	require.NoError(t, err)
	assert.Equal(t, PolicyFail, p)

	p, err = ParseCorruptPolicy("empty")
	require.NoError(t, err)
	assert.Equal(t, PolicyEmpty, p)

	_, err = ParseCorruptPolicy("ignore")
	assert.Error(t, err)
}
