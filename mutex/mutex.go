// Package mutex implements a distributed mutual-exclusion primitive on top of
// Consul's session and KV primitives. Multiple processes construct a Mutex on
// the same key; Synchronize runs the caller's work while holding the advisory
// lock and watches for the lock being taken away mid-flight.
package mutex

import (
	"context"
	"errors"
	"os"

	"github.com/google/uuid"
	"github.com/kinnalru/consul-mutex/consul"
	"go.uber.org/atomic"
	"pkt.systems/pslog"
)

// WorkFunc is the critical section run under the lock. The context is
// cancelled the moment the lock is observed lost; work must honor it
// promptly, since Go offers no way to preempt a goroutine outright.
type WorkFunc func(ctx context.Context) (any, error)

// Mutex coordinates exclusive execution across processes through one lock
// key. Instances are independent; all state lives in the instance and in the
// coordination service. A Mutex runs at most one Synchronize call at a time.
type Mutex struct {
	client *consul.Client
	logger pslog.Base

	key   string
	value []byte

	running atomic.Bool
}

type config struct {
	address string
	value   []byte
	client  *consul.Client
	logger  pslog.Base
}

// Option customises mutex construction.
type Option func(*config)

// WithValue sets the payload published on the key while the lock is held.
// The default is the local hostname.
func WithValue(value string) Option {
	return func(c *config) {
		c.value = []byte(value)
	}
}

// WithAddress sets the coordination service base URL. The default is
// consul.DefaultAddress.
func WithAddress(address string) Option {
	return func(c *config) {
		c.address = address
	}
}

// WithClient supplies a pre-built service client, overriding WithAddress.
func WithClient(client *consul.Client) Option {
	return func(c *config) {
		c.client = client
	}
}

// WithLogger supplies a logger for lock lifecycle diagnostics.
func WithLogger(logger pslog.Base) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a mutex on the given lock key.
func New(key string, opts ...Option) (*Mutex, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}
	cfg := &config{logger: pslog.NoopLogger()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.value == nil {
		cfg.value = []byte(defaultValue())
	}
	if cfg.client == nil {
		cfg.client = consul.New(cfg.address, consul.WithLogger(cfg.logger))
	}
	return &Mutex{
		client: cfg.client,
		logger: cfg.logger,
		key:    key,
		value:  cfg.value,
	}, nil
}

// defaultValue identifies this process on the key while it holds the lock.
func defaultValue() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

type workResult struct {
	result any
	err    error
}

type watchResult struct {
	snapshot *consul.KeySnapshot
	err      error
}

// Synchronize acquires the lock, runs work, and releases the lock. It
// returns the work's result, or exactly one of:
//
//   - *consul.Error: the coordination service failed or broke protocol
//     during acquisition or release;
//   - *WorkerError: work itself failed while the lock was held;
//   - *LostLockError: the lock was deleted, unheld, or taken by another
//     session while work was still running.
//
// On lock loss the work context is cancelled immediately and the session is
// destroyed before anything else; work does not get a grace period beyond
// what it needs to observe its context.
func (m *Mutex) Synchronize(ctx context.Context, work WorkFunc) (any, error) {
	if work == nil {
		return nil, errors.New("work cannot be nil")
	}
	if !m.running.CompareAndSwap(false, true) {
		return nil, errors.New("synchronize already in progress")
	}
	defer m.running.Store(false)

	h := &holding{
		client: m.client,
		logger: m.logger,
		key:    m.key,
		value:  m.value,
	}
	if err := h.acquire(ctx); err != nil {
		if derr := h.destroySession(ctx); derr != nil {
			m.logger.Warn("mutex.session.destroy_failed", "key", m.key, "error", derr)
		}
		return nil, err
	}

	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	workDone := make(chan workResult, 1)
	watchDone := make(chan watchResult, 1)
	go func() {
		result, err := work(workCtx)
		workDone <- workResult{result: result, err: err}
	}()
	go func() {
		snapshot, err := h.watch(watchCtx)
		watchDone <- watchResult{snapshot: snapshot, err: err}
	}()

	select {
	case wr := <-workDone:
		// Work won the race; the watcher's outcome no longer matters.
		cancelWatch()
		<-watchDone

		if wr.err != nil {
			if rerr := h.release(ctx); rerr != nil {
				m.logger.Warn("mutex.release_failed", "key", m.key, "error", rerr)
			}
			return nil, &WorkerError{Cause: wr.err}
		}
		if rerr := h.release(ctx); rerr != nil {
			return nil, rerr
		}
		return wr.result, nil

	case wt := <-watchDone:
		// The lock is gone. Stop the work and kill the session before
		// joining, so no later step releases against a stale session.
		cancelWork()
		if derr := h.destroySession(ctx); derr != nil {
			m.logger.Warn("mutex.session.destroy_failed", "key", m.key, "error", derr)
			h.session = ""
		}

		wr := <-workDone
		if wr.err != nil && !errors.Is(wr.err, context.Canceled) {
			// A genuine work failure outranks the loss it raced with.
			return nil, &WorkerError{Cause: wr.err}
		}
		if wt.err != nil {
			return nil, wt.err
		}
		loss := lossError(wt.snapshot)
		m.logger.Info("mutex.lost", "key", m.key, "error", loss)
		return nil, loss
	}
}
