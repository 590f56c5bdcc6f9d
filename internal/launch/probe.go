// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/appboot/appboot/internal/container"
)

const (
	probeBaseBackoff = 50 * time.Millisecond
	probeMaxBackoff  = time.Second
	// probeMaxAttempts is large enough that the timeout, not the count, ends probing.
	probeMaxAttempts = 1 << 10
)

// Probe dials addr over TCP until a connection succeeds or timeout elapses.
func Probe(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	var lastErr error
	backoff := probeBaseBackoff
	err := container.RetryWithBackoff(ctx, probeMaxAttempts, 0, func(attempt int) (bool, error) {
		if attempt > 0 {
			if err := sleep(ctx, backoff); err != nil {
				return false, err
			}
			backoff = min(backoff*2, probeMaxBackoff)
		}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			return ctx.Err() == nil, err
		}
		_ = conn.Close() // Probe connection carries no data
		return false, nil
	})
	if err == nil {
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("probe %s: not accepting connections after %s: %w", addr, timeout, lastErr)
	}
	return fmt.Errorf("probe %s: %w", addr, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
