// Package pool runs named tasks on a bounded set of goroutines and collects
// their failures.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned when work is submitted to a closed pool.
var ErrClosed = errors.New("pool is closed")

// Task is one unit of work.
type Task func(ctx context.Context) error

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// TaskError records the failure of one named task.
type TaskError struct {
	Name string
	Err  error
}

func (e TaskError) Error() string {
	return e.Name + ": " + e.Err.Error()
}

func (e TaskError) Unwrap() error { return e.Err }

// Stats is a snapshot of pool counters.
type Stats struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

// Pool bounds concurrency with a semaphore. Submit blocks while the pool is
// saturated.
type Pool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	done   chan struct{}
	closed bool

	mu       sync.Mutex
	failures []TaskError

	active, completed, failed, panics atomic.Int64
}

// New creates a pool running at most size tasks at once.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		sem:  make(chan struct{}, size),
		done: make(chan struct{}),
	}
}

// Submit starts fn once a slot is free. It returns ctx.Err() if the context
// ends first and ErrClosed after Close.
func (p *Pool) Submit(ctx context.Context, name string, fn Task) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	}

	// wg.Add must happen under the lock so Close cannot miss this task.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return ErrClosed
	}
	p.wg.Add(1)
	p.active.Add(1)
	p.mu.Unlock()

	go p.run(ctx, name, fn)
	return nil
}

func (p *Pool) run(ctx context.Context, name string, fn Task) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			err = &PanicError{Value: r}
		}
		if err != nil {
			p.failed.Add(1)
			p.mu.Lock()
			p.failures = append(p.failures, TaskError{Name: name, Err: err})
			p.mu.Unlock()
		} else {
			p.completed.Add(1)
		}
		p.active.Add(-1)
		<-p.sem
		p.wg.Done()
	}()

	err = fn(ctx)
}

// Wait blocks until every submitted task has finished and returns the
// failures so far, sorted by task name.
func (p *Pool) Wait() []TaskError {
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]TaskError, len(p.failures))
	copy(out, p.failures)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close rejects further submissions and waits for running tasks.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panics:    p.panics.Load(),
	}
}
