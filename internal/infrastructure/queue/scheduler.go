package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/api/metrics"
	"github.com/stomacrm/clinic/internal/core/ports"
)

const defaultInterval = time.Minute

// Scheduler runs a reminder dispatch on a fixed interval.
type Scheduler struct {
	service  ports.ReminderService
	interval time.Duration
	log      zerolog.Logger
}

func NewScheduler(service ports.ReminderService, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{
		service:  service,
		interval: interval,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until ctx is cancelled. The first run happens one interval
// after start.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("reminder scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("reminder scheduler stopped")
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	res, err := s.service.DispatchDue(ctx)
	metrics.ReminderRunDuration.WithLabelValues("schedule").Observe(time.Since(start).Seconds())
	if err != nil {
		s.log.Error().Err(err).Msg("scheduled reminder dispatch failed")
		return
	}
	if res.Processed > 0 {
		s.log.Info().Int("processed", res.Processed).Msg("scheduled reminder dispatch done")
	}
}
