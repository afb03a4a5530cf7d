// Package bench describes the benchmark sweep: which client variants run
// which tasks at which database cache sizes, and where each run keeps its
// state and logs on disk.
package bench

import (
	"fmt"
	"strings"
)

// Task selects the workload the client binary runs.
type Task string

// Supported tasks.
const (
	TaskImport      Task = "import"
	TaskRestore     Task = "restore"
	TaskSync        Task = "sync"
	TaskSyncArchive Task = "sync-archive"
)

// KnownTasks returns every supported task in declaration order.
func KnownTasks() []Task {
	return []Task{TaskImport, TaskRestore, TaskSync, TaskSyncArchive}
}

// ParseTask converts a task name into a Task.
func ParseTask(s string) (Task, error) {
	t := Task(strings.TrimSpace(strings.ToLower(s)))
	for _, known := range KnownTasks() {
		if t == known {
			return t, nil
		}
	}

	return "", fmt.Errorf("unknown task %q", s)
}

// Args returns the task specific arguments passed to the client.
func (t Task) Args() []string {
	switch t {
	case TaskImport:
		return []string{"import", "data/blocks.bin"}
	case TaskRestore:
		return []string{"restore", "data/snapshot.bin"}
	case TaskSync:
		return []string{"--no-warp"}
	case TaskSyncArchive:
		return []string{"--no-warp", "--pruning", "archive"}
	default:
		return nil
	}
}

func (t Task) String() string {
	return string(t)
}

// RunKey identifies a single benchmark execution.
type RunKey struct {
	Variant     string
	CacheSizeMB int
	Task        Task
}

func (k RunKey) String() string {
	return fmt.Sprintf("%s/%dMB/%s", k.Variant, k.CacheSizeMB, k.Task)
}

// Keys enumerates every combination in sweep order: variant first, then
// task, then cache size.
func Keys(variants []string, tasks []Task, cacheSizesMB []int) []RunKey {
	keys := make([]RunKey, 0, len(variants)*len(tasks)*len(cacheSizesMB))

	for _, v := range variants {
		for _, t := range tasks {
			for _, size := range cacheSizesMB {
				keys = append(keys, RunKey{
					Variant:     v,
					CacheSizeMB: size,
					Task:        t,
				})
			}
		}
	}

	return keys
}
