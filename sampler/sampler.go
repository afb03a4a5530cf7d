// Package sampler launches the telemetry collectors that run alongside a
// benchmark: block I/O via iotop, CPU and memory via ps, and database size
// via du. Each collector appends plain text to its own log file; the
// formats are consumed by package telemetry.
package sampler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"k8s.io/utils/clock"

	"github.com/weiihann/cachoor/bench"
	"github.com/weiihann/cachoor/supervisor"
)

// Target is the run being sampled.
type Target struct {
	Key    bench.RunKey
	Pid    int
	Layout bench.Layout
}

// Launcher starts one collector for a target.
type Launcher interface {
	Launch(t Target) (supervisor.Handle, error)
}

// Set is the three collectors started for every run.
type Set struct {
	IO    Launcher
	Usage Launcher
	Disk  Launcher
}

// Options configures the default collectors.
type Options struct {
	Linux         bool
	Sudo          bool
	IOInterval    time.Duration
	UsageInterval time.Duration
	DiskInterval  time.Duration
	Clock         clock.WithTicker
	Logger        *slog.Logger
}

// NewSet returns the iotop, ps and du collectors.
func NewSet(opts Options) Set {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}

	return Set{
		IO: &IOTop{
			Linux:    opts.Linux,
			Sudo:     opts.Sudo,
			Interval: opts.IOInterval,
		},
		Usage: &Periodic{
			Kind:     bench.LogPS,
			Interval: opts.UsageInterval,
			Clock:    opts.Clock,
			Logger:   opts.Logger,
			Command: func(t Target) bench.Command {
				return PSCommand(t.Pid)
			},
			Filter: headLines(2),
		},
		Disk: &Periodic{
			Kind:     bench.LogDU,
			Interval: opts.DiskInterval,
			Clock:    opts.Clock,
			Logger:   opts.Logger,
			Command: func(t Target) bench.Command {
				return DUCommand(t.Layout.DBDir(t.Key))
			},
		},
	}
}

// IOTopCommand samples block I/O. On Linux only the benchmark process is
// sampled every interval; elsewhere system wide disk I/O is sampled once
// over a single interval.
func IOTopCommand(linux bool, pid int, interval time.Duration) bench.Command {
	secs := strconv.Itoa(max(1, int(interval/time.Second)))

	if linux {
		return bench.Command{
			Binary: "iotop",
			Args:   []string{"-k", "-b", "-o", "-d", secs, "-p", strconv.Itoa(pid)},
		}
	}

	return bench.Command{
		Binary: "iotop",
		Args:   []string{"-C", "-t", "1", secs},
	}
}

// PSCommand prints the instantaneous CPU and memory share of pid.
func PSCommand(pid int) bench.Command {
	return bench.Command{
		Binary: "ps",
		Args:   []string{"-p", strconv.Itoa(pid), "-o", "%cpu,%mem"},
	}
}

// DUCommand prints the size of dir in kilobytes.
func DUCommand(dir string) bench.Command {
	return bench.Command{
		Binary: "du",
		Args:   []string{"-ks", dir},
	}
}

// IOTop runs iotop as a long lived process writing to iotop-<task>.
type IOTop struct {
	Linux    bool
	Sudo     bool
	Interval time.Duration
}

// Launch starts iotop for t.
func (s *IOTop) Launch(t Target) (supervisor.Handle, error) {
	path := t.Layout.LogFile(t.Key, bench.LogIOTop)

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()

	cmd := bench.WithSudo(IOTopCommand(s.Linux, t.Pid, s.Interval), s.Sudo)

	return supervisor.Start("iotop", cmd, supervisor.Stdio{Stdout: out})
}

// Periodic runs a short command every Interval and appends its output to
// the run's log file of the given kind.
type Periodic struct {
	Kind     bench.LogKind
	Interval time.Duration
	Clock    clock.WithTicker
	Logger   *slog.Logger
	Command  func(t Target) bench.Command
	// Filter trims the command output before it is appended.
	Filter func([]byte) []byte
	// Exec runs the command; it defaults to os/exec.
	Exec func(ctx context.Context, c bench.Command) ([]byte, error)
}

// Launch starts the sampling loop for t.
func (s *Periodic) Launch(t Target) (supervisor.Handle, error) {
	path := t.Layout.LogFile(t.Key, s.Kind)

	// Fail early when the log directory is unusable.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	f.Close()

	run := s.Exec
	if run == nil {
		run = execOutput
	}

	cmd := s.Command(t)
	name := string(s.Kind)

	return supervisor.Every(name, s.Clock, s.Interval, func(ctx context.Context) {
		out, err := run(ctx, cmd)
		if err != nil {
			if ctx.Err() == nil && s.Logger != nil {
				s.Logger.Debug("sample failed",
					slog.String("sampler", name),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		if s.Filter != nil {
			out = s.Filter(out)
		}

		if err := appendFile(path, out); err != nil && s.Logger != nil {
			s.Logger.Warn("append sample failed",
				slog.String("sampler", name),
				slog.String("error", err.Error()),
			)
		}
	}), nil
}

func execOutput(ctx context.Context, c bench.Command) ([]byte, error) {
	return exec.CommandContext(ctx, c.Binary, c.Args...).Output()
}

func appendFile(path string, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func headLines(n int) func([]byte) []byte {
	return func(b []byte) []byte {
		idx := 0
		for i := 0; i < n; i++ {
			next := bytes.IndexByte(b[idx:], '\n')
			if next < 0 {
				return b
			}
			idx += next + 1
		}

		return b[:idx]
	}
}
