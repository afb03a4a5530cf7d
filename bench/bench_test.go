package bench

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseTask(t *testing.T) {
	tests := []struct {
		input   string
		want    Task
		wantErr bool
	}{
		{"import", TaskImport, false},
		{"restore", TaskRestore, false},
		{" Sync ", TaskSync, false},
		{"sync-archive", TaskSyncArchive, false},
		{"warp", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseTask(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTask(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTask(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTaskArgs(t *testing.T) {
	tests := []struct {
		task Task
		want []string
	}{
		{TaskImport, []string{"import", "data/blocks.bin"}},
		{TaskRestore, []string{"restore", "data/snapshot.bin"}},
		{TaskSync, []string{"--no-warp"}},
		{TaskSyncArchive, []string{"--no-warp", "--pruning", "archive"}},
	}

	for _, tt := range tests {
		if got := tt.task.Args(); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s.Args() = %v, want %v", tt.task, got, tt.want)
		}
	}
}

func TestKeysOrder(t *testing.T) {
	keys := Keys(
		[]string{"a", "b"},
		[]Task{TaskRestore, TaskImport},
		[]int{128, 256},
	)

	if len(keys) != 8 {
		t.Fatalf("len(keys) = %d, want 8", len(keys))
	}

	want := []RunKey{
		{Variant: "a", CacheSizeMB: 128, Task: TaskRestore},
		{Variant: "a", CacheSizeMB: 256, Task: TaskRestore},
		{Variant: "a", CacheSizeMB: 128, Task: TaskImport},
	}
	for i, w := range want {
		if keys[i] != w {
			t.Errorf("keys[%d] = %v, want %v", i, keys[i], w)
		}
	}

	if keys[4].Variant != "b" {
		t.Errorf("keys[4].Variant = %q, want b", keys[4].Variant)
	}
}

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/bench")
	k := RunKey{Variant: "rocksdb5", CacheSizeMB: 512, Task: TaskSyncArchive}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"state", l.StateDir(k), "/bench/state/rocksdb5/512MB"},
		{"logs", l.LogDir(k), "/bench/logs/rocksdb5/512MB"},
		{"du", l.LogFile(k, LogDU), "/bench/logs/rocksdb5/512MB/du-sync-archive"},
		{"iotop", l.LogFile(k, LogIOTop), "/bench/logs/rocksdb5/512MB/iotop-sync-archive"},
		{"ps", l.LogFile(k, LogPS), "/bench/logs/rocksdb5/512MB/ps-sync-archive"},
		{"primary", l.PrimaryLog(k), "/bench/logs/rocksdb5/512MB/parity-sync-archive.log"},
		{"db", l.DBDir(k), "/bench/state/rocksdb5/512MB/chains/ethereum/db"},
		{"plot", l.PlotBase(k), "/bench/plots/rocksdb5-512MB-sync-archive"},
		{"index", l.IndexFile(), "/bench/plots.html"},
	}

	for _, tt := range tests {
		if tt.got != filepath.FromSlash(tt.want) {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestPrimaryCommand(t *testing.T) {
	l := NewLayout("")
	k := RunKey{Variant: "default", CacheSizeMB: 128, Task: TaskImport}

	cmd := PrimaryCommand("bin", l, k)

	if cmd.Binary != filepath.Join("bin", "parity-default") {
		t.Errorf("binary = %q, want bin/parity-default", cmd.Binary)
	}

	want := []string{
		"--cache-size-db", "128",
		"--db-compaction", "ssd",
		"-d", filepath.Join("state", "default", "128MB"),
		"import", "data/blocks.bin",
	}
	if !reflect.DeepEqual(cmd.Args, want) {
		t.Errorf("args = %v, want %v", cmd.Args, want)
	}
}

func TestWithSudo(t *testing.T) {
	c := Command{Binary: "iotop", Args: []string{"-b"}}

	if got := WithSudo(c, false); !reflect.DeepEqual(got, c) {
		t.Errorf("WithSudo(false) = %v, want unchanged", got)
	}

	got := WithSudo(c, true)
	if got.Binary != "sudo" {
		t.Errorf("binary = %q, want sudo", got.Binary)
	}
	if want := []string{"-n", "iotop", "-b"}; !reflect.DeepEqual(got.Args, want) {
		t.Errorf("args = %v, want %v", got.Args, want)
	}
}
