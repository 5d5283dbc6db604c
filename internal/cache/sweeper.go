package cache

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner is anything that can drop its expired entries
type Cleaner interface {
	CleanExpired(ctx context.Context) int
}

// Sweeper periodically purges expired entries from a set of caches
type Sweeper struct {
	interval time.Duration
	caches   []Cleaner
	logger   *slog.Logger
	onSweep  func(removed int)
}

// NewSweeper creates a sweeper that cleans caches every interval
func NewSweeper(interval time.Duration, logger *slog.Logger, caches ...Cleaner) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		interval: interval,
		caches:   caches,
		logger:   logger,
	}
}

// OnSweep registers a callback invoked with the number of entries removed by
// each pass
func (s *Sweeper) OnSweep(fn func(removed int)) {
	s.onSweep = fn
}

// Sweep runs a single pass over every cache
func (s *Sweeper) Sweep(ctx context.Context) int {
	removed := 0
	for _, c := range s.caches {
		removed += c.CleanExpired(ctx)
	}
	if s.onSweep != nil {
		s.onSweep(removed)
	}
	if removed > 0 {
		s.logger.Debug("swept expired cache entries", "removed", removed)
	}
	return removed
}

// Run sweeps on every tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("cache sweeper started", "interval", s.interval.String(), "caches", len(s.caches))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cache sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
