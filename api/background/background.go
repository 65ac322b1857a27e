// Package background runs fire-and-forget tasks such as notification emails.
//
// Two dispatchers share one interface: Inline executes the task in the
// caller's goroutine, Async runs it on its own goroutine with retries and is
// drained on shutdown. Callers never observe a task's failure; it is logged.
package background

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Task is a unit of background work. It must tolerate being run more than
// once for the same arguments.
type Task func(ctx context.Context) error

type Dispatcher interface {
	// Run schedules task under name. It never blocks on the task's outcome
	// beyond what the implementation documents.
	Run(name string, task Task)

	// Shutdown waits for scheduled tasks or for ctx to expire.
	Shutdown(ctx context.Context) error
}

// New returns an Inline dispatcher when eager is set, an Async one otherwise.
func New(log logrus.FieldLogger, eager bool) Dispatcher {
	if eager {
		return NewInline(log)
	}
	return NewAsync(log)
}

type Inline struct {
	log     logrus.FieldLogger
	timeout time.Duration
}

func NewInline(log logrus.FieldLogger) *Inline {
	return &Inline{log: log, timeout: 30 * time.Second}
}

// Run executes task before returning. Errors and panics are logged only.
func (b *Inline) Run(name string, task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if err := safeRun(ctx, task); err != nil {
		b.log.WithFields(logrus.Fields{"task": name, "message": err}).Warn("background task failed")
	}
}

func (b *Inline) Shutdown(context.Context) error { return nil }

type Async struct {
	log        logrus.FieldLogger
	wg         sync.WaitGroup
	timeout    time.Duration
	maxRetries uint64
	backoff    func() backoff.BackOff

	mu       sync.Mutex
	shutdown bool
	stop     context.CancelFunc
	ctx      context.Context
}

func NewAsync(log logrus.FieldLogger) *Async {
	ctx, cancel := context.WithCancel(context.Background())
	return &Async{
		log:        log,
		timeout:    30 * time.Second,
		maxRetries: 4,
		backoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		ctx:  ctx,
		stop: cancel,
	}
}

// Run starts task on a new goroutine and retries it with exponential
// backoff until it succeeds or the retry budget is spent. Tasks scheduled
// after Shutdown run inline so that nothing is silently dropped.
func (b *Async) Run(name string, task Task) {
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		NewInline(b.log).Run(name, task)
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()

		attempt := 0
		op := func() error {
			attempt++
			ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
			defer cancel()
			return safeRun(ctx, task)
		}

		policy := backoff.WithContext(backoff.WithMaxRetries(b.backoff(), b.maxRetries), b.ctx)
		notify := func(err error, wait time.Duration) {
			b.log.WithFields(logrus.Fields{
				"task":    name,
				"attempt": attempt,
				"retry":   wait.String(),
				"message": err,
			}).Warn("background task failed, retrying")
		}

		if err := backoff.RetryNotify(op, policy, notify); err != nil {
			b.log.WithFields(logrus.Fields{
				"task":     name,
				"attempts": attempt,
				"message":  err,
			}).Error("background task abandoned")
		}
	}()
}

// Shutdown stops accepting asynchronous work and waits for running tasks.
// When ctx expires first, pending retries are canceled.
func (b *Async) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.shutdown = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.stop()
		return nil
	case <-ctx.Done():
		b.stop()
		return fmt.Errorf("waiting for background tasks: %w", ctx.Err())
	}
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = backoff.Permanent(fmt.Errorf("panic: %v\n%s", rec, debug.Stack()))
		}
	}()
	return task(ctx)
}
