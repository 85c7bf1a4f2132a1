// Package notify delivers patient reminders over their channel.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/core/ports"
)

// ConsoleSender writes reminders to the log instead of an SMS gateway or a
// Telegram bot. It stands in for both until a provider is configured.
type ConsoleSender struct {
	log zerolog.Logger
}

func NewConsoleSender(log zerolog.Logger) *ConsoleSender {
	return &ConsoleSender{log: log.With().Str("component", "notify").Logger()}
}

var _ ports.ReminderSender = (*ConsoleSender)(nil)

func (c *ConsoleSender) Send(ctx context.Context, r domain.Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ev := c.log.Info().
		Str("reminder_id", r.ID).
		Str("channel", string(r.Channel)).
		Str("message", r.Message)

	switch r.Channel {
	case domain.ChannelSMS:
		if r.PatientPhone == "" {
			return fmt.Errorf("sms reminder %s: patient has no phone number", r.ID)
		}
		ev.Str("to", r.PatientPhone).Msg("sms reminder")
	case domain.ChannelTelegram:
		ev.Str("patient", r.PatientName).Msg("telegram reminder")
	default:
		return fmt.Errorf("reminder %s: unsupported channel %q", r.ID, r.Channel)
	}
	return nil
}
