package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/weiihann/cachoor/bench"
	"github.com/weiihann/cachoor/harness"
)

func TestGenerateSummary(t *testing.T) {
	results := []harness.Result{
		{
			Variant:     "rocksdb5",
			CacheSizeMB: 128,
			Task:        bench.TaskImport,
			Outcome:     harness.StateCompleted,
			ElapsedMs:   1500,
			DBSizeBytes: 50 * 1024 * 1024,
		},
		{
			Variant:     "rocksdb5",
			CacheSizeMB: 256,
			Task:        bench.TaskImport,
			Outcome:     harness.StateTimedOut,
			ElapsedMs:   4 * 60 * 60 * 1000,
		},
		{
			Variant:     "default",
			CacheSizeMB: 128,
			Task:        bench.TaskRestore,
			Outcome:     harness.StateFailed,
			Error:       "start client: exec: not found\nmore detail",
		},
	}

	var buf bytes.Buffer
	if err := Generate(&buf, results); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	output := buf.String()

	for _, want := range []string{
		"1 completed, 1 timed out, 1 failed, 0 interrupted",
		"| rocksdb5 | 128MB | import | completed | 1.50s | 50 MB |",
		"| rocksdb5 | 256MB | import | timed_out | 4.00h | - |",
		"**failed**",
		"default/128MB/restore: start client: exec: not found",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}

	if strings.Contains(output, "more detail") {
		t.Error("expected only the first line of the error")
	}
}

func TestGenerateEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := Generate(&buf, nil)
	if err == nil {
		t.Error("expected error for empty results")
	}
}

func TestGenerateJSON(t *testing.T) {
	results := []harness.Result{
		{Variant: "default", CacheSizeMB: 512, Task: bench.TaskSync, Outcome: harness.StateCompleted},
	}

	var buf bytes.Buffer
	if err := GenerateJSON(&buf, results); err != nil {
		t.Fatalf("GenerateJSON failed: %v", err)
	}

	var parsed []harness.Result
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if len(parsed) != 1 {
		t.Fatalf("expected 1 result, got %d", len(parsed))
	}
	if parsed[0].Task != bench.TaskSync {
		t.Errorf("task = %q, want sync", parsed[0].Task)
	}
	if parsed[0].Outcome != harness.StateCompleted {
		t.Errorf("outcome = %q, want completed", parsed[0].Outcome)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input uint64
		want  string
	}{
		{0, "-"},
		{512, "512 B"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1048576, "1 MB"},
		{1073741824, "1 GB"},
	}

	for _, tt := range tests {
		got := formatBytes(tt.input)
		if got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatMs(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{0, "0ms"},
		{999, "999ms"},
		{1000, "1.00s"},
		{60000, "60.00s"},
		{90 * 60 * 1000, "1.50h"},
	}

	for _, tt := range tests {
		got := formatMs(tt.input)
		if got != tt.want {
			t.Errorf("formatMs(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
