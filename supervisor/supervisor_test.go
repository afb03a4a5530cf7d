package supervisor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/weiihann/cachoor/bench"
)

var startOfTime = time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeHandle struct {
	name  string
	kills atomic.Int32
	once  sync.Once
	done  chan struct{}
}

func newFakeHandle(name string) *fakeHandle {
	return &fakeHandle{name: name, done: make(chan struct{})}
}

func (f *fakeHandle) Name() string          { return f.name }
func (f *fakeHandle) Done() <-chan struct{} { return f.done }

func (f *fakeHandle) Terminate() error {
	f.once.Do(func() {
		f.kills.Add(1)
		close(f.done)
	})

	return nil
}

func TestRegisterUnregister(t *testing.T) {
	s := New(discardLogger())
	a, b := newFakeHandle("a"), newFakeHandle("b")

	require.NoError(t, s.Register(a))
	require.NoError(t, s.Register(b))
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(a))

	require.ErrorIs(t, s.Register(a), ErrDuplicate)
	assert.Equal(t, 2, s.Len())

	s.Unregister(a)
	s.Unregister(a)
	assert.False(t, s.Contains(a))
	assert.Equal(t, 1, s.Len())
}

func TestTerminateAllIsIdempotent(t *testing.T) {
	s := New(discardLogger())
	handles := []*fakeHandle{newFakeHandle("a"), newFakeHandle("b"), newFakeHandle("c")}

	for _, h := range handles {
		require.NoError(t, s.Register(h))
	}

	s.TerminateAll()
	s.TerminateAll()

	for _, h := range handles {
		assert.Equal(t, int32(1), h.kills.Load(), h.name)
	}
}

func TestShutdownRejectsRegistration(t *testing.T) {
	s := New(discardLogger())
	a := newFakeHandle("a")
	require.NoError(t, s.Register(a))

	s.Shutdown()
	assert.Equal(t, int32(1), a.kills.Load())

	late := newFakeHandle("late")
	require.ErrorIs(t, s.Register(late), ErrShutdown)
	assert.Equal(t, int32(1), late.kills.Load())
	assert.False(t, s.Contains(late))
}

func TestProcessTerminate(t *testing.T) {
	p, err := Start("sleep", bench.Command{Binary: "sleep", Args: []string{"30"}}, Stdio{})
	require.NoError(t, err)
	assert.Positive(t, p.Pid())

	require.NoError(t, p.Terminate())

	select {
	case <-p.Done():
	default:
		t.Fatal("process still running after Terminate")
	}

	assert.Error(t, p.Err(), "terminated process reports a signal exit")
	require.NoError(t, p.Terminate())
}

func TestProcessTerminateAfterExit(t *testing.T) {
	p, err := Start("true", bench.Command{Binary: "true"}, Stdio{})
	require.NoError(t, err)

	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
	}

	require.NoError(t, p.Err())
	require.NoError(t, p.Terminate())
}

func TestProcessKillAfterGrace(t *testing.T) {
	cmd := bench.Command{
		Binary: "sh",
		Args:   []string{"-c", "trap '' TERM; sleep 30"},
	}

	p, err := Start("stubborn", cmd, Stdio{})
	require.NoError(t, err)
	p.SetGrace(100 * time.Millisecond)

	// Give the shell time to install the trap.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, p.Terminate())
	<-p.Done()
}

func TestStartMissingBinary(t *testing.T) {
	_, err := Start("missing", bench.Command{Binary: "/nonexistent/parity"}, Stdio{})
	require.Error(t, err)
}

func TestLoopSamplesOnTick(t *testing.T) {
	clk := clocktesting.NewFakeClock(startOfTime)
	samples := make(chan struct{}, 10)

	l := Every("ps", clk, time.Second, func(context.Context) {
		samples <- struct{}{}
	})

	<-samples // immediate first sample

	for i := 0; i < 3; i++ {
		require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
		clk.Step(time.Second)
		select {
		case <-samples:
		case <-time.After(5 * time.Second):
			t.Fatalf("no sample after tick %d", i+1)
		}
	}

	require.NoError(t, l.Terminate())
	require.NoError(t, l.Terminate())

	select {
	case <-l.Done():
	default:
		t.Fatal("loop still running after Terminate")
	}

	clk.Step(time.Second)
	assert.Empty(t, samples)
}

func TestLoopTerminateCancelsSample(t *testing.T) {
	clk := clocktesting.NewFakeClock(startOfTime)
	started := make(chan struct{})

	l := Every("du", clk, 5*time.Second, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})

	<-started
	require.NoError(t, l.Terminate())
}
