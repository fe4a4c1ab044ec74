// sweeper.go prunes expired verification codes and device tokens. The sweep
// is lazily triggered from inside verification requests, never blocks the
// request that triggered it, and is purely an optimization: expired rows are
// also rejected by the expiry checks at read time, so a failed sweep is
// logged and swallowed.
package portal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/clienthub/clienthub/internal/db/repositories"
	"github.com/clienthub/clienthub/internal/safego"
	"github.com/clienthub/clienthub/internal/telemetry"
)

const sweepTimeout = 30 * time.Second

// Sweeper deletes expired portal artifacts, at most one sweep in flight and
// at most one per interval.
type Sweeper struct {
	artifacts *repositories.VerificationRepository
	interval  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	inFlight bool
	lastDone time.Time
}

// NewSweeper creates a Sweeper with the given minimum spacing between sweeps.
func NewSweeper(artifacts *repositories.VerificationRepository, interval time.Duration) *Sweeper {
	return &Sweeper{
		artifacts: artifacts,
		interval:  interval,
		now:       time.Now,
	}
}

// MaybeSweep starts a background sweep unless one is already in flight or the
// last one completed less than the interval ago. It returns immediately.
func (s *Sweeper) MaybeSweep() {
	if !s.begin() {
		return
	}
	safego.Go(s.run)
}

// begin checks the gating conditions and, when they pass, claims the
// in-flight slot.
func (s *Sweeper) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		return false
	}
	if !s.lastDone.IsZero() && s.now().Sub(s.lastDone) < s.interval {
		return false
	}
	s.inFlight = true
	return true
}

// run performs one sweep and releases the in-flight slot. The triggering
// request has already returned; a fresh context bounds the sweep instead.
func (s *Sweeper) run() {
	defer s.finish()

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	start := s.now()
	codes, devices, err := s.artifacts.DeleteExpired(ctx, start)
	telemetry.SweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("cleanup sweep failed", "error", err)
		return
	}

	telemetry.SweepDeletedRows.WithLabelValues("code").Add(float64(codes))
	telemetry.SweepDeletedRows.WithLabelValues("device").Add(float64(devices))
	if codes > 0 || devices > 0 {
		slog.Info("cleanup sweep completed", "expired_codes", codes, "expired_devices", devices)
	}
}

func (s *Sweeper) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	s.lastDone = s.now()
}
