package ports

import (
	"context"
	"time"

	"github.com/stomacrm/clinic/internal/core/domain"
)

// ReminderRepository reads due reminders and records delivery outcomes.
type ReminderRepository interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Reminder, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string) error
}

// ReminderSender delivers a reminder over its channel.
type ReminderSender interface {
	Send(ctx context.Context, r domain.Reminder) error
}

// ReminderResult is the outcome of delivering one reminder.
type ReminderResult struct {
	ID     string                `json:"id"`
	Status domain.ReminderStatus `json:"status"`
	Error  string                `json:"error,omitempty"`
}

// DispatchResult summarises one dispatch run.
type DispatchResult struct {
	Processed int              `json:"processed"`
	Results   []ReminderResult `json:"results"`
}

// ReminderService sends every pending reminder that is due.
type ReminderService interface {
	DispatchDue(ctx context.Context) (*DispatchResult, error)
}

// ReminderDispatcher fans a batch out to workers and returns once every
// reminder has been handled. Results keep the order of the batch.
type ReminderDispatcher interface {
	Dispatch(ctx context.Context, batch []domain.Reminder, handle func(context.Context, domain.Reminder) ReminderResult) []ReminderResult
}
