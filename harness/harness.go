package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/utils/clock"

	"github.com/weiihann/cachoor/bench"
	"github.com/weiihann/cachoor/sampler"
	"github.com/weiihann/cachoor/supervisor"
)

// DefaultTimeout is the ceiling on a single run.
const DefaultTimeout = 4 * time.Hour

// ErrInterrupted is returned when the sweep is cancelled by the operator.
var ErrInterrupted = errors.New("interrupted")

// Options configures an Orchestrator.
type Options struct {
	BinDir  string
	Layout  bench.Layout
	Timeout time.Duration
	// DropCaches flushes the OS page cache before each run. It only has an
	// effect on Linux and failures are ignored.
	DropCaches bool
	Linux      bool
	Sudo       bool
	// WorkDir is the client's working directory, where it finds its data/
	// inputs. Empty means the current directory.
	WorkDir string
}

// Orchestrator executes run keys one at a time.
type Orchestrator struct {
	opts       Options
	samplers   sampler.Set
	supervisor *supervisor.Supervisor
	clock      clock.Clock
	logger     *slog.Logger

	// dropCaches is replaced in tests.
	dropCaches func(ctx context.Context) error
}

// NewOrchestrator creates an Orchestrator. Every process it starts is
// registered with sup so that an interrupt can stop it.
func NewOrchestrator(
	opts Options,
	samplers sampler.Set,
	sup *supervisor.Supervisor,
	clk clock.Clock,
	logger *slog.Logger,
) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	if clk == nil {
		clk = clock.RealClock{}
	}

	o := &Orchestrator{
		opts:       opts,
		samplers:   samplers,
		supervisor: sup,
		clock:      clk,
		logger:     logger,
	}
	o.dropCaches = o.dropPageCache

	return o
}

// Sweep executes keys in order. A failing key is recorded and the sweep
// moves on; an interrupt stops it and returns ErrInterrupted together
// with the results gathered so far.
func (o *Orchestrator) Sweep(ctx context.Context, keys []bench.RunKey) ([]Result, error) {
	results := make([]Result, 0, len(keys))
	variant := ""

	for _, k := range keys {
		if ctx.Err() != nil {
			return results, ErrInterrupted
		}

		if k.Variant != variant {
			variant = k.Variant
			o.logger.InfoContext(ctx, "running variant", slog.String("variant", variant))
		}

		res, err := o.ExecuteRun(ctx, k)
		results = append(results, *res)

		if errors.Is(err, ErrInterrupted) {
			return results, err
		}

		if err != nil {
			o.logger.ErrorContext(ctx, "run failed",
				slog.String("run", k.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	return results, nil
}

// ExecuteRun runs the client for k under the configured ceiling. Every
// process started here is stopped and unregistered before it returns.
func (o *Orchestrator) ExecuteRun(ctx context.Context, k bench.RunKey) (res *Result, err error) {
	logger := o.logger.With(slog.String("run", k.String()))

	res = &Result{
		Variant:     k.Variant,
		CacheSizeMB: k.CacheSizeMB,
		Task:        k.Task,
	}
	o.transition(ctx, logger, res, StateIdle)

	if err := o.prepare(ctx, logger, k); err != nil {
		res.Error = err.Error()
		o.abort(ctx, logger, res, StateFailed)

		return res, err
	}
	o.transition(ctx, logger, res, StatePrepared)

	if ctx.Err() != nil {
		o.abort(ctx, logger, res, StateInterrupted)
		return res, ErrInterrupted
	}

	primary, err := o.startPrimary(k)
	if err != nil {
		res.Error = err.Error()
		o.abort(ctx, logger, res, StateFailed)

		return res, err
	}

	started := time.Now()
	handles := []supervisor.Handle{primary}

	defer func() {
		o.teardown(primary, handles)
		res.ElapsedMs = time.Since(started).Milliseconds()
		res.DBSizeBytes = o.measureDB(logger, k)
		o.transition(ctx, logger, res, StateTornDown)
	}()

	if err := o.supervisor.Register(primary); err != nil {
		o.transition(ctx, logger, res, StateInterrupted)
		return res, ErrInterrupted
	}

	handles, err = o.startSamplers(logger, k, primary, handles)
	if err != nil {
		o.transition(ctx, logger, res, StateInterrupted)
		return res, err
	}

	o.transition(ctx, logger, res, StateRunning)

	return res, o.wait(ctx, logger, res, primary)
}

func (o *Orchestrator) wait(
	ctx context.Context,
	logger *slog.Logger,
	res *Result,
	primary *supervisor.Process,
) error {
	timer := o.clock.NewTimer(o.opts.Timeout)
	defer timer.Stop()

	select {
	case <-primary.Done():
		if ctx.Err() != nil {
			o.transition(ctx, logger, res, StateInterrupted)
			return ErrInterrupted
		}

		if exitErr := primary.Err(); exitErr != nil {
			res.Error = exitErr.Error()
			logger.WarnContext(ctx, "client exited with error",
				slog.String("error", exitErr.Error()),
			)
		}
		o.transition(ctx, logger, res, StateCompleted)

		return nil

	case <-timer.C():
		logger.WarnContext(ctx, "run hit the ceiling, terminating client",
			slog.Duration("timeout", o.opts.Timeout),
		)
		_ = primary.Terminate()
		o.transition(ctx, logger, res, StateTimedOut)

		return nil

	case <-ctx.Done():
		_ = primary.Terminate()
		o.transition(ctx, logger, res, StateInterrupted)

		return ErrInterrupted
	}
}

func (o *Orchestrator) prepare(ctx context.Context, logger *slog.Logger, k bench.RunKey) error {
	logDir := o.opts.Layout.LogDir(k)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("create log dir %s: %w", logDir, err)
	}

	stateDir := o.opts.Layout.StateDir(k)
	if err := os.RemoveAll(stateDir); err != nil {
		return fmt.Errorf("clean state dir %s: %w", stateDir, err)
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir %s: %w", stateDir, err)
	}

	if o.opts.DropCaches && o.opts.Linux {
		if err := o.dropCaches(ctx); err != nil {
			logger.DebugContext(ctx, "drop caches failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

func (o *Orchestrator) startPrimary(k bench.RunKey) (*supervisor.Process, error) {
	logPath := o.opts.Layout.PrimaryLog(k)

	stderr, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("create client log %s: %w", logPath, err)
	}
	defer stderr.Close()

	cmd := bench.PrimaryCommand(o.opts.BinDir, o.opts.Layout, k)

	o.logger.Info("starting client",
		slog.String("run", k.String()),
		slog.String("binary", cmd.Binary),
		slog.String("args", strings.Join(cmd.Args, " ")),
	)

	return supervisor.Start("client", cmd, supervisor.Stdio{
		Dir:    o.opts.WorkDir,
		Stderr: stderr,
	})
}

// startSamplers launches the three collectors. A collector that cannot be
// started is skipped; the run goes on without it.
func (o *Orchestrator) startSamplers(
	logger *slog.Logger,
	k bench.RunKey,
	primary *supervisor.Process,
	handles []supervisor.Handle,
) ([]supervisor.Handle, error) {
	target := sampler.Target{Key: k, Pid: primary.Pid(), Layout: o.opts.Layout}

	for _, l := range []sampler.Launcher{o.samplers.IO, o.samplers.Usage, o.samplers.Disk} {
		if l == nil {
			continue
		}

		h, err := l.Launch(target)
		if err != nil {
			logger.Warn("sampler not started", slog.String("error", err.Error()))
			continue
		}

		handles = append(handles, h)

		if err := o.supervisor.Register(h); err != nil {
			return handles, ErrInterrupted
		}
	}

	return handles, nil
}

// teardown stops the samplers, and the client if it is still alive after
// an interrupt, then drops every handle from the supervisor.
func (o *Orchestrator) teardown(primary *supervisor.Process, handles []supervisor.Handle) {
	for _, h := range handles {
		if h == supervisor.Handle(primary) {
			continue
		}
		_ = h.Terminate()
	}

	_ = primary.Terminate()

	for _, h := range handles {
		o.supervisor.Unregister(h)
	}
}

// abort ends a run that never started its client.
func (o *Orchestrator) abort(ctx context.Context, logger *slog.Logger, res *Result, s State) {
	o.transition(ctx, logger, res, s)
	o.transition(ctx, logger, res, StateTornDown)
}

func (o *Orchestrator) transition(ctx context.Context, logger *slog.Logger, res *Result, s State) {
	res.Transitions = append(res.Transitions, s)

	switch s {
	case StateIdle, StateTornDown:
	default:
		res.Outcome = s
	}

	logger.DebugContext(ctx, "run state", slog.String("state", string(s)))
}

func (o *Orchestrator) measureDB(logger *slog.Logger, k bench.RunKey) uint64 {
	size, err := dirSize(o.opts.Layout.DBDir(k))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to measure db size", slog.String("error", err.Error()))
	}

	return size
}

func (o *Orchestrator) dropPageCache(ctx context.Context) error {
	cmd := bench.WithSudo(bench.Command{
		Binary: "tee",
		Args:   []string{"/proc/sys/vm/drop_caches"},
	}, o.opts.Sudo)

	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)
	c.Stdin = strings.NewReader("3\n")

	if out, err := c.CombinedOutput(); err != nil {
		return fmt.Errorf("drop caches: %w: %s", err, strings.TrimSpace(string(out)))
	}

	return nil
}

func dirSize(path string) (uint64, error) {
	var size uint64

	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += uint64(info.Size())
		}

		return nil
	})

	return size, err
}
