package report

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/weiihann/cachoor/bench"
	"github.com/weiihann/cachoor/telemetry"
)

// ErrSessionClosed is returned when rendering after Close.
var ErrSessionClosed = errors.New("render session closed")

var supportedFormats = map[string]struct{}{
	"png": {}, "pdf": {}, "svg": {}, "jpg": {}, "eps": {},
}

var palette = []color.Color{
	color.RGBA{R: 248, G: 118, B: 109, A: 255},
	color.RGBA{R: 0, G: 191, B: 196, A: 255},
}

// areaFill matches the coral fill of the database size chart.
var areaFill = color.RGBA{R: 238, G: 106, B: 80, A: 255}

// ChartSpec describes one chart before it is drawn.
type ChartSpec struct {
	Name  string
	Title string
	Unit  string
	// Area fills the space below a single series.
	Area  bool
	Frame telemetry.Frame
}

// Charts returns the disk usage, I/O and CPU/memory charts for run.
func Charts(run telemetry.Run) (du, io, ps ChartSpec) {
	du = ChartSpec{Name: "du", Title: "DB Size", Unit: "MB", Area: true, Frame: run.Disk}
	io = ChartSpec{Name: "iotop", Title: "IO", Unit: "MB/s", Frame: run.IO}
	ps = ChartSpec{Name: "ps", Title: "CPU/MEM", Unit: "%", Frame: run.Usage}

	return du, io, ps
}

// Session owns the chart renderer for one report generation. Calls are
// serialized, so a Session may be shared by concurrent renders.
type Session struct {
	mu      sync.Mutex
	outDir  string
	formats []string
	width   vg.Length
	height  vg.Length
	closed  bool
	logger  *slog.Logger
}

// Open prepares outDir and returns a Session writing the given formats.
func Open(outDir string, formats []string, logger *slog.Logger) (*Session, error) {
	if len(formats) == 0 {
		formats = []string{"png"}
	}

	normalized := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
		if _, ok := supportedFormats[f]; !ok {
			return nil, fmt.Errorf("unsupported plot format %q", f)
		}
		normalized = append(normalized, f)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create plots dir %s: %w", outDir, err)
	}

	logger.Debug("render session opened",
		slog.String("dir", outDir),
		slog.Any("formats", normalized),
	)

	return &Session{
		outDir:  outDir,
		formats: normalized,
		width:   10 * vg.Inch,
		height:  8 * vg.Inch,
		logger:  logger,
	}, nil
}

// Formats returns the file formats written per chart.
func (s *Session) Formats() []string {
	return s.formats
}

// Close releases the session. Further renders fail.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.logger.Debug("render session closed", slog.String("dir", s.outDir))
	}

	return nil
}

// RenderRun draws the I/O chart across the top and the database size and
// CPU/memory charts side by side below it, and writes one file per format.
func (s *Session) RenderRun(k bench.RunKey, run telemetry.Run) ([]string, error) {
	du, io, ps := Charts(run)

	plots := make(map[string]*plot.Plot, 3)
	for _, spec := range []ChartSpec{du, io, ps} {
		p, err := newPlot(spec)
		if err != nil {
			return nil, fmt.Errorf("build %s chart: %w", spec.Name, err)
		}
		plots[spec.Name] = p
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	files := make([]string, 0, len(s.formats))
	base := filepath.Join(s.outDir, bench.PlotName(k))

	for _, format := range s.formats {
		path := base + "." + format
		if err := s.save(path, format, plots); err != nil {
			return files, err
		}
		files = append(files, path)
	}

	return files, nil
}

func (s *Session) save(path, format string, plots map[string]*plot.Plot) error {
	c, err := draw.NewFormattedCanvas(s.width, s.height, format)
	if err != nil {
		return fmt.Errorf("create %s canvas: %w", format, err)
	}

	dc := draw.New(c)
	rows := draw.Tiles{Rows: 2, Cols: 1, PadY: vg.Millimeter * 4}
	cols := draw.Tiles{Rows: 1, Cols: 2, PadX: vg.Millimeter * 4}

	plots["iotop"].Draw(rows.At(dc, 0, 0))

	bottom := rows.At(dc, 0, 1)
	plots["du"].Draw(cols.At(bottom, 0, 0))
	plots["ps"].Draw(cols.At(bottom, 1, 0))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := c.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}

	return f.Close()
}

func newPlot(spec ChartSpec) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = spec.Title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = spec.Unit
	p.Add(plotter.NewGrid())

	if spec.Frame.Len() == 0 {
		p.Title.Text += " (no samples)"
		return p, nil
	}

	for i, series := range spec.Frame.Series {
		xys := make(plotter.XYs, len(series.Points))
		for j, pt := range series.Points {
			xys[j].X = pt.X
			xys[j].Y = pt.Y
		}

		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", series.Name, err)
		}

		line.Width = vg.Points(0.75)
		line.Color = palette[i%len(palette)]

		if spec.Area {
			line.Color = areaFill
			line.FillColor = areaFill
		}

		p.Add(line)

		if len(spec.Frame.Series) > 1 {
			p.Legend.Add(series.Name, line)
		}
	}

	p.Legend.Top = true

	return p, nil
}
