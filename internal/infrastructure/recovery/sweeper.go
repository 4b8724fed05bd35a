package recovery

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Recoverer finishes completions whose lease holder disappeared.
type Recoverer interface {
	RecoverStalled(ctx context.Context, limit int) (int, error)
}

// Observer is notified of recovered sessions.
type Observer interface {
	Recovered(n int)
}

// Config for Sweeper.
type Config struct {
	Sessions  Recoverer
	Observer  Observer
	Logger    zerolog.Logger
	Interval  time.Duration
	BatchSize int
}

// Sweeper periodically resumes stalled session completions.
type Sweeper struct {
	sessions  Recoverer
	observer  Observer
	logger    zerolog.Logger
	interval  time.Duration
	batchSize int
}

// NewSweeper creates a new Sweeper.
func NewSweeper(cfg Config) *Sweeper {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}

	return &Sweeper{
		sessions:  cfg.Sessions,
		observer:  cfg.Observer,
		logger:    cfg.Logger.With().Str("worker", "recovery").Logger(),
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

// Start sweeps until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("recovery sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("recovery sweeper shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one recovery pass and returns the number of sessions completed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	n, err := s.sessions.RecoverStalled(ctx, s.batchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list stalled sessions")
		return 0
	}
	if n > 0 {
		s.logger.Info().Int("recovered", n).Msg("resumed stalled completions")
		if s.observer != nil {
			s.observer.Recovered(n)
		}
	}
	return n
}
