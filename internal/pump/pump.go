// Package pump runs a dedicated OS-thread message loop.
//
// OS hooks that are serviced through a thread's message queue must be
// installed and removed on the thread that pumps that queue. A Pump owns such
// a thread: it locks a goroutine to an OS thread, runs onReady there, pumps
// messages until Stop is requested and finally runs onStop on the same thread.
package pump

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultStopTimeout bounds how long Stop waits for the loop to exit.
const DefaultStopTimeout = 2 * time.Second

// ErrStopTimeout is returned by Stop when the loop did not exit in time.
var ErrStopTimeout = errors.New("pump: loop did not exit before timeout")

// ErrStopping is returned by Start while a loop that timed out in Stop has
// not exited yet.
var ErrStopping = errors.New("pump: previous loop is still stopping")

// Queue is the per-thread message source pumped by the loop. Bind, Next,
// Dispatch and Close are only ever called from the pump thread; Wake may be
// called from any goroutine.
type Queue interface {
	Bind() error
	Next() bool
	Dispatch()
	Wake() error
	Close()
}

// Option configures a Pump.
type Option func(*Pump)

// WithStopTimeout overrides DefaultStopTimeout.
func WithStopTimeout(d time.Duration) Option {
	return func(p *Pump) {
		if d > 0 {
			p.stopTimeout = d
		}
	}
}

// WithQueue replaces the platform message queue, mainly for tests.
func WithQueue(newQueue func() Queue) Option {
	return func(p *Pump) { p.newQueue = newQueue }
}

// Pump is a restartable message loop bound to one OS thread per run.
type Pump struct {
	name        string
	logger      *slog.Logger
	newQueue    func() Queue
	stopTimeout time.Duration

	mu  sync.Mutex
	cur *run

	// stale is a run whose Stop timed out. Its onStop has not run yet.
	stale *run
}

type run struct {
	queue   Queue
	stopReq atomic.Bool
	done    chan struct{}
}

// New creates a stopped pump.
func New(name string, logger *slog.Logger, opts ...Option) *Pump {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pump{
		name:        name,
		logger:      logger.With(slog.String("component", name)),
		newQueue:    newPlatformQueue,
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsStarted reports whether the loop is running.
func (p *Pump) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur != nil
}

// Start launches the loop. onReady runs on the pump thread before the first
// message is retrieved; if it fails or panics the loop exits and Start
// returns the error. Calling Start on a running pump logs a warning and
// returns nil. Start fails with ErrStopping until a timed-out loop has exited.
func (p *Pump) Start(onReady func() error, onStop func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cur != nil {
		p.logger.Warn("Event pump already started")
		return nil
	}
	if p.stale != nil {
		select {
		case <-p.stale.done:
			p.stale = nil
		default:
			return ErrStopping
		}
	}

	r := &run{queue: p.newQueue(), done: make(chan struct{})}
	ready := make(chan error, 1)
	go p.loop(r, onReady, onStop, ready)

	if err := <-ready; err != nil {
		<-r.done
		return err
	}

	p.cur = r
	p.logger.Debug("Event pump started")
	return nil
}

// Stop requests termination, wakes the loop and waits for onStop to finish.
// Stopping a stopped pump is a no-op. After ErrStopTimeout, Stop waits for
// the same loop again.
func (p *Pump) Stop() error {
	p.mu.Lock()
	r := p.cur
	p.cur = nil
	if r == nil {
		r = p.stale
	}
	p.mu.Unlock()

	if r == nil {
		return nil
	}

	r.stopReq.Store(true)
	if err := r.queue.Wake(); err != nil {
		p.logger.Warn("Failed to wake event pump", slog.String("error", err.Error()))
	}

	select {
	case <-r.done:
		p.mu.Lock()
		if p.stale == r {
			p.stale = nil
		}
		p.mu.Unlock()
		p.logger.Debug("Event pump stopped")
		return nil
	case <-time.After(p.stopTimeout):
		p.mu.Lock()
		p.stale = r
		p.mu.Unlock()
		p.logger.Error("Event pump did not stop in time", slog.Duration("timeout", p.stopTimeout))
		return ErrStopTimeout
	}
}

func (p *Pump) loop(r *run, onReady func() error, onStop func(), ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(r.done)

	if err := r.queue.Bind(); err != nil {
		ready <- fmt.Errorf("bind message queue: %w", err)
		return
	}
	if err := p.callReady(onReady); err != nil {
		r.queue.Close()
		ready <- err
		return
	}
	ready <- nil

	for r.queue.Next() {
		if r.stopReq.Load() {
			break
		}
		r.queue.Dispatch()
	}

	p.callStop(onStop)
	r.queue.Close()
}

func (p *Pump) callReady(onReady func() error) (err error) {
	if onReady == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("Event pump start callback panicked",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("pump %s: start callback panicked: %v", p.name, rec)
		}
	}()
	return onReady()
}

func (p *Pump) callStop(onStop func()) {
	if onStop == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("Event pump stop callback panicked",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	onStop()
}
