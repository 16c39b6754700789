package forgecore

import (
	"sync"
	"time"
)

// RateLimitedLogger wraps a Logger and collapses repeated Warnf/Errorf calls
// for the same failure class to at most one line per second.
type RateLimitedLogger struct {
	Logger

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewRateLimitedLogger(inner Logger) *RateLimitedLogger {
	return &RateLimitedLogger{
		Logger: inner,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// WarnClass logs a warning for the named failure class at most once per
// second, regardless of how many times it is called within that window.
func (r *RateLimitedLogger) WarnClass(class, format string, args ...any) {
	if !r.allow(class) {
		return
	}
	r.Logger.Warnf(format, args...)
}

// ErrorClass is the same throttling for error-level failure classes.
func (r *RateLimitedLogger) ErrorClass(class, format string, args ...any) {
	if !r.allow(class) {
		return
	}
	r.Logger.Errorf(format, args...)
}

func (r *RateLimitedLogger) allow(class string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if last, ok := r.last[class]; ok && now.Sub(last) < time.Second {
		return false
	}
	r.last[class] = now
	return true
}
