package bench

import (
	"path/filepath"
	"strconv"
)

// Command is a structured process invocation. Arguments are passed to the
// process directly and never through a shell.
type Command struct {
	Binary string
	Args   []string
}

// Flag is a single command line option with an optional value.
type Flag struct {
	Name  string
	Value string
}

func flagArgs(flags []Flag) []string {
	args := make([]string, 0, 2*len(flags))
	for _, f := range flags {
		args = append(args, f.Name)
		if f.Value != "" {
			args = append(args, f.Value)
		}
	}

	return args
}

// ResolveBinary returns the client binary built for variant.
func ResolveBinary(binDir, variant string) string {
	return filepath.Join(binDir, "parity-"+variant)
}

// PrimaryCommand builds the client invocation for k.
func PrimaryCommand(binDir string, layout Layout, k RunKey) Command {
	flags := []Flag{
		{Name: "--cache-size-db", Value: strconv.Itoa(k.CacheSizeMB)},
		{Name: "--db-compaction", Value: "ssd"},
		{Name: "-d", Value: layout.StateDir(k)},
	}

	args := flagArgs(flags)
	args = append(args, k.Task.Args()...)

	return Command{
		Binary: ResolveBinary(binDir, k.Variant),
		Args:   args,
	}
}

// WithSudo wraps c so it runs through sudo when enabled.
func WithSudo(c Command, enabled bool) Command {
	if !enabled {
		return c
	}

	args := make([]string, 0, len(c.Args)+2)
	args = append(args, "-n", c.Binary)
	args = append(args, c.Args...)

	return Command{Binary: "sudo", Args: args}
}
