// Package supervisor tracks every process a benchmark run starts so that
// all of them can be stopped on teardown or when the operator interrupts
// the sweep.
package supervisor

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
)

var (
	// ErrShutdown is returned by Register once Shutdown has been called.
	// The rejected handle is terminated before returning.
	ErrShutdown = errors.New("supervisor is shut down")
	// ErrDuplicate is returned when a handle is registered twice.
	ErrDuplicate = errors.New("handle already registered")
)

// Handle is a running process or sampling loop.
type Handle interface {
	Name() string
	// Terminate stops the handle and waits for it to exit. It is safe to
	// call more than once and on handles that already exited.
	Terminate() error
	// Done is closed once the handle has exited.
	Done() <-chan struct{}
}

// Supervisor is the registry of live handles. It is safe for concurrent
// use by the orchestrator and the signal handler.
type Supervisor struct {
	mu      sync.Mutex
	handles []Handle
	closed  bool
	logger  *slog.Logger
}

// New creates an empty Supervisor.
func New(logger *slog.Logger) *Supervisor {
	return &Supervisor{logger: logger}
}

// Register adds h to the registry.
func (s *Supervisor) Register(h Handle) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		s.terminate(h)

		return ErrShutdown
	}

	if slices.Contains(s.handles, h) {
		s.mu.Unlock()
		return ErrDuplicate
	}

	s.handles = append(s.handles, h)
	s.mu.Unlock()

	return nil
}

// Unregister removes h from the registry. Unknown handles are ignored.
func (s *Supervisor) Unregister(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handles = slices.DeleteFunc(s.handles, func(e Handle) bool {
		return e == h
	})
}

// Contains reports whether h is registered.
func (s *Supervisor) Contains(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Contains(s.handles, h)
}

// Len returns the number of registered handles.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.handles)
}

// TerminateAll terminates every registered handle. Failures are logged
// and otherwise ignored.
func (s *Supervisor) TerminateAll() {
	s.mu.Lock()
	handles := slices.Clone(s.handles)
	s.mu.Unlock()

	for _, h := range handles {
		s.terminate(h)
	}
}

// Shutdown terminates every registered handle and rejects all future
// registrations.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.TerminateAll()
}

func (s *Supervisor) terminate(h Handle) {
	if err := h.Terminate(); err != nil {
		s.logger.Debug("terminate failed",
			slog.String("handle", h.Name()),
			slog.String("error", err.Error()),
		)
	}
}
