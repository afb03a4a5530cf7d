package bench

import (
	"fmt"
	"path/filepath"
)

// LogKind names one telemetry stream written under a run's log directory.
type LogKind string

// Telemetry log kinds.
const (
	LogDU    LogKind = "du"
	LogIOTop LogKind = "iotop"
	LogPS    LogKind = "ps"
)

// DefaultDBSubdir is where the client keeps its database inside the state
// directory.
const DefaultDBSubdir = "chains/ethereum/db"

// Layout resolves the on-disk paths of a sweep. The directory names are
// shared with existing log archives and must not change.
type Layout struct {
	Root     string
	DBSubdir string
}

// NewLayout returns a Layout rooted at root using the default database
// subdirectory.
func NewLayout(root string) Layout {
	return Layout{Root: root, DBSubdir: DefaultDBSubdir}
}

func (l Layout) runDir(base string, k RunKey) string {
	return filepath.Join(l.Root, base, k.Variant, fmt.Sprintf("%dMB", k.CacheSizeMB))
}

// StateDir is the client's working data directory for k.
func (l Layout) StateDir(k RunKey) string {
	return l.runDir("state", k)
}

// LogDir holds the telemetry logs for k.
func (l Layout) LogDir(k RunKey) string {
	return l.runDir("logs", k)
}

// LogFile returns the path of one telemetry stream for k.
func (l Layout) LogFile(k RunKey, kind LogKind) string {
	return filepath.Join(l.LogDir(k), fmt.Sprintf("%s-%s", kind, k.Task))
}

// PrimaryLog receives the client's standard error.
func (l Layout) PrimaryLog(k RunKey) string {
	return filepath.Join(l.LogDir(k), fmt.Sprintf("parity-%s.log", k.Task))
}

// DBDir is the database directory measured by the disk usage sampler.
func (l Layout) DBDir(k RunKey) string {
	sub := l.DBSubdir
	if sub == "" {
		sub = DefaultDBSubdir
	}

	return filepath.Join(l.StateDir(k), filepath.FromSlash(sub))
}

// PlotsDir holds the rendered charts.
func (l Layout) PlotsDir() string {
	return filepath.Join(l.Root, "plots")
}

// PlotName is the file name of k's chart without extension.
func PlotName(k RunKey) string {
	return fmt.Sprintf("%s-%dMB-%s", k.Variant, k.CacheSizeMB, k.Task)
}

// PlotBase is the path of k's chart without extension.
func (l Layout) PlotBase(k RunKey) string {
	return filepath.Join(l.PlotsDir(), PlotName(k))
}

// IndexFile is the HTML page linking every chart.
func (l Layout) IndexFile() string {
	return filepath.Join(l.Root, "plots.html")
}
