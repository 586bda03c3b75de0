// Package ratelimit implements the per-provider gate that every upstream
// call passes through: a token bucket for request rate plus an independent
// inflight-concurrency cap, with response-driven cooldowns.
package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds per-provider gate limits.
type Config struct {
	// QPM is the sustained request budget in queries per minute.
	QPM float64
	// BurstFactor scales QPM into the bucket capacity (burst = QPM/60 *
	// BurstFactor, minimum 1).
	BurstFactor float64
	// MaxInflight caps concurrent requests independently of the token count.
	MaxInflight int64
	// RateLimitCooldown is how long to back off after a 429.
	RateLimitCooldown time.Duration
	// ServerErrorCooldown is how long to back off after a 5xx.
	ServerErrorCooldown time.Duration
}

// DefaultConfig returns conservative defaults for an unregistered provider.
func DefaultConfig() Config {
	return Config{
		QPM:                 60,
		BurstFactor:         2,
		MaxInflight:         4,
		RateLimitCooldown:   30 * time.Second,
		ServerErrorCooldown: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QPM <= 0 {
		c.QPM = d.QPM
	}
	if c.BurstFactor <= 0 {
		c.BurstFactor = d.BurstFactor
	}
	if c.MaxInflight <= 0 {
		c.MaxInflight = d.MaxInflight
	}
	if c.RateLimitCooldown <= 0 {
		c.RateLimitCooldown = d.RateLimitCooldown
	}
	if c.ServerErrorCooldown <= 0 {
		c.ServerErrorCooldown = d.ServerErrorCooldown
	}
	return c
}

// Permit is an acquired slot. Release it exactly once, after the provider
// call finishes.
type Permit struct {
	state    *providerState
	released sync.Once
}

// Release returns the inflight slot to the gate.
func (p *Permit) Release() {
	p.released.Do(func() {
		p.state.sem.Release(1)
	})
}

type providerState struct {
	cfg     Config
	limiter *rate.Limiter
	sem     *semaphore.Weighted

	mu            sync.Mutex
	cooldownUntil time.Time
}

func newProviderState(cfg Config) *providerState {
	cfg = cfg.withDefaults()
	perSecond := cfg.QPM / 60.0
	burst := int(perSecond * cfg.BurstFactor)
	if burst < 1 {
		burst = 1
	}
	return &providerState{
		cfg: cfg,
		// Refill derives from elapsed wall-clock time, so a restarted
		// process at worst starts with a full bucket (as after a long idle
		// stretch); it can never over-admit within a window.
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		sem:     semaphore.NewWeighted(cfg.MaxInflight),
	}
}

func (s *providerState) cooldownRemaining(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cooldownUntil.After(now) {
		return s.cooldownUntil.Sub(now)
	}
	return 0
}

func (s *providerState) extendCooldown(d time.Duration) {
	until := time.Now().Add(d)
	s.mu.Lock()
	if until.After(s.cooldownUntil) {
		s.cooldownUntil = until
	}
	s.mu.Unlock()
}

// Gate is the shared rate/concurrency limiter for all provider traffic.
// All methods are safe for concurrent use.
type Gate struct {
	mu        sync.Mutex
	providers map[string]*providerState
	configs   map[string]Config
}

// NewGate creates a gate with per-provider configs. Providers not present in
// configs get DefaultConfig.
func NewGate(configs map[string]Config) *Gate {
	if configs == nil {
		configs = map[string]Config{}
	}
	return &Gate{
		providers: make(map[string]*providerState),
		configs:   configs,
	}
}

func (g *Gate) state(providerID string) *providerState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.providers[providerID]; ok {
		return s
	}
	s := newProviderState(g.configs[providerID])
	g.providers[providerID] = s
	return s
}

// Acquire blocks until a token is available, the inflight count is below the
// cap, and any active cooldown has elapsed. Both the token and the slot must
// be satisfied; neither alone admits a request.
func (g *Gate) Acquire(ctx context.Context, providerID string) (*Permit, error) {
	s := g.state(providerID)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	// Wait out cooldowns in a loop: a new 429 may land while we sleep.
	for {
		remaining := s.cooldownRemaining(time.Now())
		if remaining == 0 {
			break
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.sem.Release(1)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		s.sem.Release(1)
		return nil, err
	}

	return &Permit{state: s}, nil
}

// OnResponse feeds a provider response status back into the gate. 429s open
// a cooldown window; 5xx responses a shorter one. All other statuses are
// no-ops.
func (g *Gate) OnResponse(providerID string, statusCode int) {
	s := g.state(providerID)
	switch {
	case statusCode == http.StatusTooManyRequests:
		slog.Warn("provider rate limited, cooling down",
			"provider", providerID, "cooldown", s.cfg.RateLimitCooldown)
		s.extendCooldown(s.cfg.RateLimitCooldown)
	case statusCode >= 500:
		slog.Debug("provider server error, brief cooldown",
			"provider", providerID, "status", statusCode)
		s.extendCooldown(s.cfg.ServerErrorCooldown)
	}
}
