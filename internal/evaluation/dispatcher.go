package evaluation

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Job is a handle to one dispatched evaluation. Done is closed when the
// work finishes; Err reports its outcome after that.
type Job struct {
	Name string

	done chan struct{}
	mu   sync.Mutex
	err  error
}

// Done returns a channel closed when the job finishes.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err returns the job's error. Valid only after Done is closed.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Dispatcher runs evaluation jobs in background goroutines tied to a base
// context, and lets shutdown wait for the ones still in flight.
type Dispatcher struct {
	base   context.Context
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher. Jobs run under base, which should
// outlive individual requests so submissions survive the response.
func NewDispatcher(base context.Context, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{base: base, logger: logger}
}

// Dispatch starts fn in a goroutine and returns its handle.
func (d *Dispatcher) Dispatch(name string, fn func(ctx context.Context) error) *Job {
	job := &Job{Name: name, done: make(chan struct{})}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(job.done)
		err := fn(d.base)
		job.mu.Lock()
		job.err = err
		job.mu.Unlock()
		if err != nil {
			d.logger.Error("Background job failed",
				zap.String("job", name),
				zap.Error(err),
			)
		}
	}()
	return job
}

// Wait blocks until every dispatched job finishes or ctx expires.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
