package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/weiihann/cachoor/bench"
)

// DefaultGrace is how long a process may take to exit after SIGTERM before
// it is killed.
const DefaultGrace = 5 * time.Second

// Stdio sets the working directory and output streams of a started
// process. Nil streams are connected to the null device and an empty Dir
// keeps the current directory.
type Stdio struct {
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// Process is a Handle backed by an OS process running in its own process
// group. Terminating it signals the whole group.
type Process struct {
	name  string
	cmd   *exec.Cmd
	grace time.Duration

	done    chan struct{}
	waitErr error

	once    sync.Once
	termErr error
}

// Start launches c and returns its handle.
func Start(name string, c bench.Command, stdio Stdio) (*Process, error) {
	cmd := exec.Command(c.Binary, c.Args...)
	cmd.Dir = stdio.Dir
	cmd.Stdout = stdio.Stdout
	cmd.Stderr = stdio.Stderr

	configureProcess(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	p := &Process{
		name:  name,
		cmd:   cmd,
		grace: DefaultGrace,
		done:  make(chan struct{}),
	}

	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// Name returns the label the process was started with.
func (p *Process) Name() string { return p.name }

// Pid returns the OS process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns the exit error once Done is closed.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// SetGrace overrides the SIGTERM grace period.
func (p *Process) SetGrace(d time.Duration) { p.grace = d }

// Terminate sends SIGTERM to the process group, escalating to SIGKILL when
// the process outlives the grace period.
func (p *Process) Terminate() error {
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		if err := signalGroup(p.cmd, sigTerm); err != nil {
			p.termErr = fmt.Errorf("signal %s: %w", p.name, err)
		}

		timer := time.NewTimer(p.grace)
		defer timer.Stop()

		select {
		case <-p.done:
			return
		case <-timer.C:
		}

		if err := signalGroup(p.cmd, sigKill); err != nil {
			p.termErr = errors.Join(p.termErr, fmt.Errorf("kill %s: %w", p.name, err))
		}

		<-p.done
	})

	return p.termErr
}
