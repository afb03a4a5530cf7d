package report

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/weiihann/cachoor/bench"
	"github.com/weiihann/cachoor/telemetry"
)

// Rendered is the outcome of charting one run.
type Rendered struct {
	Key     bench.RunKey
	Files   []string
	Samples int
	Err     error
}

// Generator turns the telemetry logs of a sweep into charts.
type Generator struct {
	layout    bench.Layout
	linux     bool
	intervals telemetry.Intervals
	session   *Session
	parallel  int
	logger    *slog.Logger
}

// NewGenerator creates a Generator rendering through session with at most
// parallel runs loaded at once. intervals must match the ones the logs
// were sampled at.
func NewGenerator(
	layout bench.Layout,
	linux bool,
	intervals telemetry.Intervals,
	session *Session,
	parallel int,
	logger *slog.Logger,
) *Generator {
	if parallel < 1 {
		parallel = 1
	}

	return &Generator{
		layout:    layout,
		linux:     linux,
		intervals: intervals,
		session:   session,
		parallel:  parallel,
		logger:    logger,
	}
}

// RenderAll charts every key. A key that fails is reported in its
// Rendered entry and does not stop the others. The returned slice follows
// the order of keys.
func (g *Generator) RenderAll(ctx context.Context, keys []bench.RunKey) ([]Rendered, error) {
	out := make([]Rendered, len(keys))
	for i, k := range keys {
		out[i].Key = k
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallel)

	for i, k := range keys {
		i, k := i, k
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			out[i] = g.RenderRun(k)

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return out, err
	}

	return out, nil
}

// RenderRun loads and charts a single run.
func (g *Generator) RenderRun(k bench.RunKey) Rendered {
	logger := g.logger.With(slog.String("run", k.String()))
	r := Rendered{Key: k}

	run, err := telemetry.Load(g.layout, k, g.linux, g.intervals)
	if err != nil {
		r.Err = err
		logger.Error("load telemetry failed", slog.String("error", err.Error()))

		return r
	}

	r.Samples = run.Disk.Len() + run.IO.Len() + run.Usage.Len()
	if run.Empty() {
		logger.Warn("no telemetry samples")
	}

	r.Files, r.Err = g.session.RenderRun(k, run)
	if r.Err != nil {
		logger.Error("render failed", slog.String("error", r.Err.Error()))
		return r
	}

	logger.Info("chart written", slog.Any("files", r.Files))

	return r
}
