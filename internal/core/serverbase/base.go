// SPDX-License-Identifier: MPL-2.0

package serverbase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotStarted is returned by operations that need a started server.
var ErrNotStarted = errors.New("server not started")

// Base holds the lifecycle state of a single-use server. Concrete servers
// embed it; once stopped or failed, a new instance is required.
type Base struct {
	state   atomic.Int32
	stateMu sync.Mutex
	lastErr error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedCh chan struct{}
	doneCh    chan struct{}
	doneOnce  sync.Once
	errCh     chan error

	startupTimeout  time.Duration
	shutdownTimeout time.Duration
}

// NewBase creates a Base in the Created state.
func NewBase(opts ...Option) *Base {
	b := &Base{
		startedCh:       make(chan struct{}),
		doneCh:          make(chan struct{}),
		errCh:           make(chan error, 1),
		startupTimeout:  DefaultStartupTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	b.state.Store(int32(StateCreated))

	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state.
func (b *Base) State() State {
	return State(b.state.Load())
}

// IsRunning reports whether the server is accepting connections.
func (b *Base) IsRunning() bool {
	return b.State() == StateRunning
}

// Err returns a channel that receives errors raised after startup.
func (b *Base) Err() <-chan error {
	return b.errCh
}

// LastError returns the error that caused the Failed state, or nil.
func (b *Base) LastError() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.lastErr
}

// Done returns a channel closed once the server reaches a terminal state
// and every tracked goroutine has exited.
func (b *Base) Done() <-chan struct{} {
	return b.doneCh
}

// StartupTimeout returns the configured startup bound.
func (b *Base) StartupTimeout() time.Duration { return b.startupTimeout }

// ShutdownTimeout returns the configured graceful-stop bound.
func (b *Base) ShutdownTimeout() time.Duration { return b.shutdownTimeout }

// Context returns the lifecycle context, cancelled when stopping begins.
// It is nil before Start.
func (b *Base) Context() context.Context {
	return b.ctx
}

// TransitionToStarting moves Created to Starting. A cancelled ctx fails the
// server before any setup happens.
func (b *Base) TransitionToStarting(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		b.TransitionToFailed(fmt.Errorf("context cancelled before start: %w", err))
		return b.LastError()
	}

	if !b.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return fmt.Errorf("cannot start server in state %s", b.State())
	}

	b.ctx, b.cancel = context.WithCancel(context.Background())
	return nil
}

// TransitionToRunning moves Starting to Running and releases WaitForReady.
func (b *Base) TransitionToRunning() {
	if b.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		close(b.startedCh)
	}
}

// TransitionToFailed records err and moves to Failed from any state.
func (b *Base) TransitionToFailed(err error) {
	b.stateMu.Lock()
	b.lastErr = err
	b.stateMu.Unlock()

	b.state.Store(int32(StateFailed))
	if b.cancel != nil {
		b.cancel()
	}
	b.SendError(err)
	go b.finish()
}

// TransitionToStopping moves Starting or Running to Stopping and cancels the
// lifecycle context. It reports whether this call initiated the stop; a
// never-started server is marked Stopped and false is returned.
func (b *Base) TransitionToStopping() bool {
	for {
		current := b.State()
		switch current {
		case StateCreated:
			if b.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
				b.finish()
				return false
			}
		case StateStarting, StateRunning:
			if b.state.CompareAndSwap(int32(current), int32(StateStopping)) {
				if b.cancel != nil {
					b.cancel()
				}
				return true
			}
		default:
			return false
		}
	}
}

// TransitionToStopped marks the server stopped after tracked goroutines exit.
func (b *Base) TransitionToStopped() {
	b.state.Store(int32(StateStopped))
	b.finish()
}

// Go runs fn in a tracked goroutine with the lifecycle context.
func (b *Base) Go(fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(b.ctx)
	}()
}

// WaitForReady blocks until Running, failure, or ctx cancellation.
func (b *Base) WaitForReady(ctx context.Context) error {
	select {
	case <-b.startedCh:
		return nil
	case <-b.doneCh:
		if err := b.LastError(); err != nil {
			return err
		}
		return ErrNotStarted
	case <-ctx.Done():
		return fmt.Errorf("waiting for server ready: %w", ctx.Err())
	}
}

// Shutdown runs a graceful stop exactly once. stop receives a context bounded
// by the shutdown timeout; Shutdown then waits for tracked goroutines.
// Calls after the first, or on a never-started server, return nil.
func (b *Base) Shutdown(stop func(ctx context.Context) error) error {
	if !b.TransitionToStopping() {
		<-b.doneCh
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.shutdownTimeout)
	defer cancel()

	var err error
	if stop != nil {
		err = stop(ctx)
	}
	b.wg.Wait()
	b.TransitionToStopped()
	return err
}

// SendError delivers err to Err() without blocking; it is dropped when the
// channel is full.
func (b *Base) SendError(err error) {
	select {
	case b.errCh <- err:
	default:
	}
}

// finish closes Done once every tracked goroutine has exited.
func (b *Base) finish() {
	b.doneOnce.Do(func() {
		b.wg.Wait()
		close(b.doneCh)
	})
}
