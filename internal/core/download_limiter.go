package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyDownloads is returned when every download slot stays busy for
// longer than the limiter's wait time.
var ErrTooManyDownloads = errors.New("too many downloads in progress, please try again later")

const (
	// DefaultMaxConcurrentDownloads applies when the limiter is built with a
	// non-positive limit.
	DefaultMaxConcurrentDownloads = 2

	// DefaultMaxWaitTime applies when the limiter is built with a
	// non-positive wait.
	DefaultMaxWaitTime = 30 * time.Second
)

// DownloadLimiter bounds the number of remote transfers running at once.
// Each successful Acquire must be paired with exactly one Release.
type DownloadLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// LimiterStatus is a point-in-time view of the limiter.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// NewDownloadLimiter returns a limiter with maxConcurrent slots.
func NewDownloadLimiter(maxConcurrent int, maxWait time.Duration) *DownloadLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentDownloads
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &DownloadLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits up to the limiter's max wait for a free slot.
// It returns ctx.Err() if ctx ends first and ErrTooManyDownloads on timeout.
func (l *DownloadLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrTooManyDownloads
	}
}

// Release frees a slot taken by Acquire.
func (l *DownloadLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of downloads holding a slot.
func (l *DownloadLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the slot count.
func (l *DownloadLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// Available returns the number of free slots.
func (l *DownloadLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain blocks until no download holds a slot or ctx ends.
// Used during shutdown so in-flight transfers can finish.
func (l *DownloadLimiter) WaitForDrain(ctx context.Context) error {
	if l.ActiveCount() == 0 {
		return nil
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}

// Status returns the current limiter state for the status endpoint.
func (l *DownloadLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
