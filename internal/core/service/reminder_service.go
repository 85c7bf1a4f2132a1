package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/core/ports"
)

// DefaultReminderBatch caps how many reminders one run picks up.
const DefaultReminderBatch = 50

type reminderService struct {
	repo       ports.ReminderRepository
	sender     ports.ReminderSender
	dispatcher ports.ReminderDispatcher
	batch      int
	now        func() time.Time
	log        zerolog.Logger
}

// NewReminderService returns a ReminderService implementation. With a nil
// dispatcher reminders are delivered one after another on the caller's
// goroutine.
func NewReminderService(
	repo ports.ReminderRepository,
	sender ports.ReminderSender,
	dispatcher ports.ReminderDispatcher,
	batch int,
	log zerolog.Logger,
) ports.ReminderService {
	if batch <= 0 {
		batch = DefaultReminderBatch
	}
	return &reminderService{
		repo:       repo,
		sender:     sender,
		dispatcher: dispatcher,
		batch:      batch,
		now:        time.Now,
		log:        log.With().Str("component", "reminders").Logger(),
	}
}

// DispatchDue sends every pending reminder whose time has come and records
// the outcome of each.
func (s *reminderService) DispatchDue(ctx context.Context) (*ports.DispatchResult, error) {
	now := s.now().UTC()

	due, err := s.repo.ListDue(ctx, now, s.batch)
	if err != nil {
		return nil, fmt.Errorf("dispatch reminders: %w", err)
	}

	deliver := func(ctx context.Context, r domain.Reminder) ports.ReminderResult {
		return s.deliver(ctx, r, now)
	}

	var results []ports.ReminderResult
	if s.dispatcher != nil {
		results = s.dispatcher.Dispatch(ctx, due, deliver)
	} else {
		results = make([]ports.ReminderResult, 0, len(due))
		for _, r := range due {
			results = append(results, deliver(ctx, r))
		}
	}
	if results == nil {
		results = []ports.ReminderResult{}
	}

	if len(results) > 0 {
		s.log.Info().Int("processed", len(results)).Msg("reminders dispatched")
	}
	return &ports.DispatchResult{Processed: len(results), Results: results}, nil
}

func (s *reminderService) deliver(ctx context.Context, r domain.Reminder, now time.Time) ports.ReminderResult {
	log := s.log.With().Str("reminder_id", r.ID).Str("channel", string(r.Channel)).Logger()

	if err := s.sender.Send(ctx, r); err != nil {
		log.Warn().Err(err).Msg("reminder delivery failed")
		if markErr := s.repo.MarkFailed(ctx, r.ID); markErr != nil {
			log.Error().Err(markErr).Msg("failed to mark reminder as failed")
		}
		return ports.ReminderResult{ID: r.ID, Status: domain.ReminderFailed, Error: err.Error()}
	}

	// The message is out; a failed status write is logged but not reported
	// as a failed delivery.
	if err := s.repo.MarkSent(ctx, r.ID, now); err != nil {
		log.Error().Err(err).Msg("failed to mark reminder as sent")
	}
	return ports.ReminderResult{ID: r.ID, Status: domain.ReminderSent}
}
