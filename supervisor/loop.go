package supervisor

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Loop is a Handle that calls a sample function immediately and then once
// per interval until terminated.
type Loop struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every starts a Loop. The context passed to sample is cancelled when the
// loop is terminated.
func Every(
	name string,
	clk clock.WithTicker,
	interval time.Duration,
	sample func(ctx context.Context),
) *Loop {
	ctx, cancel := context.WithCancel(context.Background())

	l := &Loop{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	ticker := clk.NewTicker(interval)

	go func() {
		defer close(l.done)
		defer ticker.Stop()

		sample(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if ctx.Err() != nil {
					return
				}
				sample(ctx)
			}
		}
	}()

	return l
}

// Name returns the loop label.
func (l *Loop) Name() string { return l.name }

// Done is closed once the loop goroutine has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Terminate stops the loop and waits for an in-flight sample to finish.
func (l *Loop) Terminate() error {
	l.once.Do(func() {
		l.cancel()
		<-l.done
	})

	return nil
}
