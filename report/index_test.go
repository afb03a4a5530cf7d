package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/cachoor/bench"
)

func TestNewIndexGroupsByTaskAndSize(t *testing.T) {
	keys := bench.Keys(
		[]string{"rocksdb5", "default"},
		[]bench.Task{bench.TaskRestore, bench.TaskImport},
		[]int{128, 256},
	)

	missing := bench.RunKey{Variant: "default", CacheSizeMB: 256, Task: bench.TaskImport}
	idx := NewIndex(keys, []string{"png", "pdf"}, func(k bench.RunKey) bool {
		return k != missing
	})

	assert.Equal(t, []string{"rocksdb5", "default"}, idx.Variants)
	require.Len(t, idx.Tasks, 2)
	assert.Equal(t, bench.TaskRestore, idx.Tasks[0].Task)

	imp := idx.Tasks[1]
	require.Len(t, imp.Rows, 2)
	assert.Equal(t, 256, imp.Rows[1].CacheSizeMB)

	cells := imp.Rows[1].Cells
	require.Len(t, cells, 2)
	assert.Equal(t, "plots/rocksdb5-256MB-import.png", cells[0].Image)
	assert.Equal(t, "plots/rocksdb5-256MB-import.pdf", cells[0].Link)
	assert.Empty(t, cells[1].Image)
}

func TestWriteIndex(t *testing.T) {
	keys := bench.Keys([]string{"default"}, []bench.Task{bench.TaskSync}, []int{512})
	idx := NewIndex(keys, nil, nil)

	var buf bytes.Buffer
	require.NoError(t, WriteIndex(&buf, idx))

	out := buf.String()
	assert.Contains(t, out, "<h2>sync</h2>")
	assert.Contains(t, out, "<th>512MB</th>")
	assert.Contains(t, out, `src="plots/default-512MB-sync.png"`)
}

func TestWriteIndexFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.html")
	keys := bench.Keys([]string{"<v>"}, []bench.Task{bench.TaskImport}, []int{1})

	require.NoError(t, WriteIndexFile(path, NewIndex(keys, nil, nil)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<!DOCTYPE html>"))
	assert.Contains(t, string(data), "&lt;v&gt;")
}
