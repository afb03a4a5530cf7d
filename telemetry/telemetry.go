// Package telemetry parses the text logs written by the samplers into time
// series. Lines that cannot be parsed are skipped.
package telemetry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/weiihann/cachoor/bench"
)

// Default sampling intervals of the ps, du and iotop logs.
const (
	UsageInterval = time.Second
	DiskInterval  = 5 * time.Second
	IOInterval    = 5 * time.Second
)

// maxLineBytes bounds a single log line. Longer lines are dropped.
const maxLineBytes = 1024 * 1024

// Intervals are the sampling intervals the logs of a sweep were recorded
// at. They rebuild the time axis of each series.
type Intervals struct {
	Usage time.Duration
	Disk  time.Duration
	IO    time.Duration
}

// DefaultIntervals returns the intervals of the reference sweep.
func DefaultIntervals() Intervals {
	return Intervals{Usage: UsageInterval, Disk: DiskInterval, IO: IOInterval}
}

func (iv Intervals) withDefaults() Intervals {
	def := DefaultIntervals()
	if iv.Usage <= 0 {
		iv.Usage = def.Usage
	}
	if iv.Disk <= 0 {
		iv.Disk = def.Disk
	}
	if iv.IO <= 0 {
		iv.IO = def.IO
	}

	return iv
}

// Point is one sample; X is seconds since the run started.
type Point struct {
	X float64
	Y float64
}

// Series is a named sequence of samples.
type Series struct {
	Name   string
	Points []Point
}

// Frame holds series sharing one time axis.
type Frame struct {
	Series []Series
}

// Len returns the number of samples on the time axis.
func (f Frame) Len() int {
	if len(f.Series) == 0 {
		return 0
	}

	return len(f.Series[0].Points)
}

// Get returns the series called name.
func (f Frame) Get(name string) (Series, bool) {
	for _, s := range f.Series {
		if s.Name == name {
			return s, true
		}
	}

	return Series{}, false
}

// Timeline returns 0, interval, 2*interval, ... with n entries, in seconds.
func Timeline(n int, interval time.Duration) []float64 {
	ts := make([]float64, n)
	step := interval.Seconds()

	for i := range ts {
		ts[i] = float64(i) * step
	}

	return ts
}

// column selects one whitespace separated field and scales it.
type column struct {
	name  string
	field int
	scale float64
}

// parse extracts columns from every line accepted by keep. A line missing
// a field or holding a non numeric value is skipped as a whole.
func parse(
	r io.Reader,
	interval time.Duration,
	keep func(line string) bool,
	cols []column,
) (Frame, error) {
	values := make([][]float64, len(cols))

	br := bufio.NewReader(r)

	for {
		line, tooLong, err := nextLine(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Frame{}, fmt.Errorf("read line: %w", err)
		}

		if tooLong || strings.TrimSpace(line) == "" || !keep(line) {
			continue
		}

		fields := strings.Fields(line)
		row := make([]float64, len(cols))
		ok := true

		for i, c := range cols {
			if c.field >= len(fields) {
				ok = false
				break
			}

			v, err := strconv.ParseFloat(fields[c.field], 64)
			if err != nil {
				ok = false
				break
			}

			row[i] = v / c.scale
		}

		if !ok {
			continue
		}

		for i := range cols {
			values[i] = append(values[i], row[i])
		}
	}

	n := 0
	if len(values) > 0 {
		n = len(values[0])
	}
	ts := Timeline(n, interval)

	frame := Frame{Series: make([]Series, len(cols))}
	for i, c := range cols {
		points := make([]Point, n)
		for j := range points {
			points[j] = Point{X: ts[j], Y: values[i][j]}
		}
		frame.Series[i] = Series{Name: c.name, Points: points}
	}

	return frame, nil
}

// nextLine returns the next line without its terminator. A line longer
// than maxLineBytes is consumed whole and reported as tooLong.
func nextLine(br *bufio.Reader) (string, bool, error) {
	var (
		buf     []byte
		tooLong bool
	)

	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			return "", false, err
		}

		if !tooLong {
			buf = append(buf, chunk...)
			if len(buf) > maxLineBytes {
				tooLong, buf = true, nil
			}
		}

		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}

// ParsePS reads "<cpu%> <mem%> ..." lines sampled every interval. Header
// lines contain CPU.
func ParsePS(r io.Reader, interval time.Duration) (Frame, error) {
	return parse(r, interval,
		func(line string) bool { return !strings.Contains(line, "CPU") },
		[]column{
			{name: "CPU", field: 0, scale: 1},
			{name: "MEM", field: 1, scale: 1},
		},
	)
}

// ParseDU reads "<kilobytes> ..." lines and reports megabytes.
func ParseDU(r io.Reader, interval time.Duration) (Frame, error) {
	return parse(r, interval,
		func(string) bool { return true },
		[]column{{name: "size", field: 0, scale: 1024}},
	)
}

// ParseIOTop reads iotop output and reports read and write rates in MB/s.
// Linux batch output carries the rates on "Actual" lines; other platforms
// on "disk_r" lines.
func ParseIOTop(r io.Reader, linux bool, interval time.Duration) (Frame, error) {
	marker, read, write := "disk_r", 7, 10
	if linux {
		marker, read, write = "Actual", 3, 9
	}

	return parse(r, interval,
		func(line string) bool { return strings.Contains(line, marker) },
		[]column{
			{name: "read", field: read, scale: 1024},
			{name: "write", field: write, scale: 1024},
		},
	)
}

func readFile(path string, parseFn func(io.Reader) (Frame, error)) (Frame, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return parseFn(strings.NewReader(""))
	}
	if err != nil {
		return Frame{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	frame, err := parseFn(f)
	if err != nil {
		return Frame{}, fmt.Errorf("parse %s: %w", path, err)
	}

	return frame, nil
}

// Run is the telemetry of one benchmark run.
type Run struct {
	Disk  Frame
	IO    Frame
	Usage Frame
}

// Empty reports whether no log held a single sample.
func (r Run) Empty() bool {
	return r.Disk.Len() == 0 && r.IO.Len() == 0 && r.Usage.Len() == 0
}

// Load reads the three logs of k, recorded at the given intervals. Zero
// intervals fall back to the defaults. Missing logs yield empty frames.
func Load(layout bench.Layout, k bench.RunKey, linux bool, iv Intervals) (Run, error) {
	var (
		run Run
		err error
	)

	iv = iv.withDefaults()

	run.Disk, err = readFile(layout.LogFile(k, bench.LogDU), func(r io.Reader) (Frame, error) {
		return ParseDU(r, iv.Disk)
	})
	if err != nil {
		return Run{}, err
	}

	run.IO, err = readFile(layout.LogFile(k, bench.LogIOTop), func(r io.Reader) (Frame, error) {
		return ParseIOTop(r, linux, iv.IO)
	})
	if err != nil {
		return Run{}, err
	}

	run.Usage, err = readFile(layout.LogFile(k, bench.LogPS), func(r io.Reader) (Frame, error) {
		return ParsePS(r, iv.Usage)
	})
	if err != nil {
		return Run{}, err
	}

	return run, nil
}
