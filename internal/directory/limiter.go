package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MaxConnectionLimit is the maximum allowed concurrent-connection
// ceiling. It keeps a misconfigured limit from exhausting server
// connection slots or client sockets.
const MaxConnectionLimit = 100

// ErrLimiterClosed is returned by Acquire after the limiter has been
// shut down.
var ErrLimiterClosed = errors.New("connection limiter is closed")

// Limiter caps the number of directory connections open at once.
// Sessions acquire a slot before dialing and release it on close; an
// Acquire at the ceiling blocks until a slot frees up or the context is
// done. Connections themselves are never reused across sessions.
type Limiter struct {
	slots chan struct{}

	mu     sync.RWMutex
	closed bool

	inUse     int64
	acquired  int64
	timeouts  int64
	startTime time.Time
}

// NewLimiter creates a limiter with the given concurrent-connection
// ceiling.
func NewLimiter(maxConnections int) (*Limiter, error) {
	if maxConnections <= 0 {
		return nil, errors.New("maxConnections must be positive")
	}
	if maxConnections > MaxConnectionLimit {
		return nil, fmt.Errorf("maxConnections too high (max %d)", MaxConnectionLimit)
	}

	l := &Limiter{
		slots:     make(chan struct{}, maxConnections),
		startTime: time.Now(),
	}
	for range maxConnections {
		l.slots <- struct{}{}
	}
	return l, nil
}

// Acquire obtains a connection slot, blocking while the ceiling is
// reached. It fails when ctx is done or the limiter is closed.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return ErrLimiterClosed
	}
	l.mu.RUnlock()

	select {
	case _, ok := <-l.slots:
		if !ok {
			return ErrLimiterClosed
		}
		atomic.AddInt64(&l.inUse, 1)
		atomic.AddInt64(&l.acquired, 1)
		return nil
	case <-ctx.Done():
		atomic.AddInt64(&l.timeouts, 1)
		return ctx.Err()
	}
}

// Release returns a previously acquired slot. Safe to call after
// Close.
func (l *Limiter) Release() {
	atomic.AddInt64(&l.inUse, -1)

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	select {
	case l.slots <- struct{}{}:
	default:
		// Slot accounting went wrong; dropping the extra slot is
		// preferable to blocking a Close path.
	}
}

// Close shuts the limiter down. Pending and future Acquires fail with
// ErrLimiterClosed; outstanding sessions may still Release safely.
func (l *Limiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	close(l.slots)
	return nil
}

// LimiterStats is a point-in-time snapshot of limiter activity.
type LimiterStats struct {
	InUse    int64         // slots currently held
	Capacity int           // configured ceiling
	Acquired int64         // total successful acquisitions
	Timeouts int64         // acquisitions abandoned on context done
	Uptime   time.Duration // time since the limiter was created
}

// Stats returns a snapshot of limiter activity.
func (l *Limiter) Stats() LimiterStats {
	return LimiterStats{
		InUse:    atomic.LoadInt64(&l.inUse),
		Capacity: cap(l.slots),
		Acquired: atomic.LoadInt64(&l.acquired),
		Timeouts: atomic.LoadInt64(&l.timeouts),
		Uptime:   time.Since(l.startTime),
	}
}
