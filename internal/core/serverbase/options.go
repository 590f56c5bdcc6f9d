// SPDX-License-Identifier: MPL-2.0

package serverbase

import "time"

const (
	// DefaultStartupTimeout bounds how long Start may wait for readiness.
	DefaultStartupTimeout = 10 * time.Second
	// DefaultShutdownTimeout bounds how long a graceful stop may drain connections.
	DefaultShutdownTimeout = 10 * time.Second
)

// Option configures a Base instance.
type Option func(*Base)

// WithErrorChannel sets the async error channel buffer size. Default is 1.
func WithErrorChannel(size int) Option {
	return func(b *Base) {
		b.errCh = make(chan error, size)
	}
}

// WithStartupTimeout overrides DefaultStartupTimeout. Non-positive values are ignored.
func WithStartupTimeout(d time.Duration) Option {
	return func(b *Base) {
		if d > 0 {
			b.startupTimeout = d
		}
	}
}

// WithShutdownTimeout overrides DefaultShutdownTimeout. Non-positive values are ignored.
func WithShutdownTimeout(d time.Duration) Option {
	return func(b *Base) {
		if d > 0 {
			b.shutdownTimeout = d
		}
	}
}
