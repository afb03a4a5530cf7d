package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path"
	"slices"

	"github.com/weiihann/cachoor/bench"
)

//go:embed index.html.tmpl
var indexTemplate string

var indexTmpl = template.Must(template.New("index").Parse(indexTemplate))

// Index is the data behind plots.html.
type Index struct {
	Title    string
	Variants []string
	Tasks    []TaskSection
}

// TaskSection groups the charts of one task by cache size.
type TaskSection struct {
	Task bench.Task
	Rows []IndexRow
}

// IndexRow holds one chart per variant for a cache size.
type IndexRow struct {
	CacheSizeMB int
	Cells       []IndexCell
}

// IndexCell links one chart. Image is empty when no chart was rendered.
type IndexCell struct {
	Name  string
	Image string
	Link  string
}

// NewIndex arranges the charts of keys. Paths are relative to the index
// file: plots/<name>.<format>. rendered reports which keys have a chart;
// a nil func assumes all do.
func NewIndex(keys []bench.RunKey, formats []string, rendered func(bench.RunKey) bool) Index {
	var (
		variants []string
		tasks    []bench.Task
		sizes    = make(map[bench.Task][]int)
		have     = make(map[bench.RunKey]bool, len(keys))
	)

	for _, k := range keys {
		if !slices.Contains(variants, k.Variant) {
			variants = append(variants, k.Variant)
		}
		if !slices.Contains(tasks, k.Task) {
			tasks = append(tasks, k.Task)
		}
		if !slices.Contains(sizes[k.Task], k.CacheSizeMB) {
			sizes[k.Task] = append(sizes[k.Task], k.CacheSizeMB)
		}
		have[k] = rendered == nil || rendered(k)
	}

	image, link := "png", "png"
	if len(formats) > 0 {
		image, link = formats[0], formats[0]
		if slices.Contains(formats, "png") {
			image = "png"
		}
		if slices.Contains(formats, "pdf") {
			link = "pdf"
		}
	}

	idx := Index{Title: "Benchmark plots", Variants: variants}

	for _, t := range tasks {
		section := TaskSection{Task: t}

		for _, size := range sizes[t] {
			row := IndexRow{CacheSizeMB: size}

			for _, v := range variants {
				k := bench.RunKey{Variant: v, CacheSizeMB: size, Task: t}
				cell := IndexCell{Name: bench.PlotName(k)}

				if have[k] {
					cell.Image = path.Join("plots", cell.Name+"."+image)
					cell.Link = path.Join("plots", cell.Name+"."+link)
				}

				row.Cells = append(row.Cells, cell)
			}

			section.Rows = append(section.Rows, row)
		}

		idx.Tasks = append(idx.Tasks, section)
	}

	return idx
}

// WriteIndex renders idx as HTML.
func WriteIndex(w io.Writer, idx Index) error {
	if err := indexTmpl.Execute(w, idx); err != nil {
		return fmt.Errorf("render index: %w", err)
	}

	return nil
}

// WriteIndexFile writes idx to path.
func WriteIndexFile(path string, idx Index) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := WriteIndex(f, idx); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
