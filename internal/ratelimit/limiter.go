package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	throttledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "benchd",
			Name:      "ratelimit_throttled_total",
			Help:      "Total command dispatches delayed or rejected by pacing",
		},
		[]string{"scope", "instrument"},
	)
)

// Config holds command pacing configuration.
type Config struct {
	// Global ceiling across all instrument connections.
	GlobalRate  rate.Limit // commands per second
	GlobalBurst int

	// Per-instrument limits. Bench instruments with slow firmware choke
	// when commands arrive back to back, so each connection gets its own
	// bucket.
	PerInstrumentRate  rate.Limit
	PerInstrumentBurst int

	// Cleanup interval for per-instrument limiter buckets.
	CleanupInterval time.Duration
}

// DefaultConfig returns pacing defaults suitable for a small bench.
func DefaultConfig() Config {
	return Config{
		GlobalRate:  200,
		GlobalBurst: 400,

		PerInstrumentRate:  20,
		PerInstrumentBurst: 5,

		CleanupInterval: 5 * time.Minute,
	}
}

// Pacer spaces commands sent to instruments. It enforces a per-instrument
// rate plus a daemon-wide ceiling.
type Pacer struct {
	config Config

	global        *rate.Limiter
	perInstrument map[string]*rate.Limiter
	mu            sync.RWMutex

	lastCleanup time.Time
}

// New creates a pacer with the given config.
func New(config Config) *Pacer {
	return &Pacer{
		config:        config,
		global:        rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perInstrument: make(map[string]*rate.Limiter),
		lastCleanup:   time.Now(),
	}
}

// Wait blocks until the named instrument may send its next command, or
// until ctx is done. The fast path consumes one token per scope without
// blocking.
func (p *Pacer) Wait(ctx context.Context, instrument string) error {
	if err := waitScope(ctx, p.global, "global", instrument); err != nil {
		return err
	}
	if err := waitScope(ctx, p.limiterFor(instrument), "per_instrument", instrument); err != nil {
		return err
	}

	p.maybeCleanup()

	return nil
}

// Allow reports whether the named instrument may send a command right now.
func (p *Pacer) Allow(instrument string) bool {
	if !p.global.Allow() {
		throttledTotal.WithLabelValues("global", instrument).Inc()
		return false
	}
	if !p.limiterFor(instrument).Allow() {
		throttledTotal.WithLabelValues("per_instrument", instrument).Inc()
		return false
	}

	p.maybeCleanup()

	return true
}

func waitScope(ctx context.Context, l *rate.Limiter, scope, instrument string) error {
	// A failed Allow does not consume a token, so falling through to
	// Wait takes exactly one.
	if l.Allow() {
		return nil
	}
	throttledTotal.WithLabelValues(scope, instrument).Inc()
	if err := l.Wait(ctx); err != nil {
		return fmt.Errorf("command pacing (%s): %w", scope, err)
	}
	return nil
}

// limiterFor returns the rate limiter bucket for one instrument.
func (p *Pacer) limiterFor(instrument string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	limiter, exists := p.perInstrument[instrument]
	if !exists {
		limiter = rate.NewLimiter(p.config.PerInstrumentRate, p.config.PerInstrumentBurst)
		p.perInstrument[instrument] = limiter
	}

	return limiter
}

// maybeCleanup drops all per-instrument buckets once the cleanup interval
// has passed. Buckets are rebuilt on next use. lastCleanup is only read
// and written under the lock; the interval is rechecked after the write
// lock is taken because another dispatcher may have swept in between.
func (p *Pacer) maybeCleanup() {
	p.mu.RLock()
	due := time.Since(p.lastCleanup) >= p.config.CleanupInterval
	p.mu.RUnlock()
	if !due {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.lastCleanup) < p.config.CleanupInterval {
		return
	}
	p.perInstrument = make(map[string]*rate.Limiter)
	p.lastCleanup = time.Now()
}
