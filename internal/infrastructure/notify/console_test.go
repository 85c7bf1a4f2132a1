package notify

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/core/domain"
)

func TestConsoleSender_Send(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSender(zerolog.New(&buf))

	err := s.Send(context.Background(), domain.Reminder{ID: "r1", Channel: domain.ChannelSMS, PatientPhone: "+998901234567", Message: "Ertaga qabul"})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "+998901234567") {
		t.Fatalf("expected the phone number in the log line, got %s", buf.String())
	}

	if err := s.Send(context.Background(), domain.Reminder{ID: "r2", Channel: domain.ChannelTelegram, PatientName: "Aziz"}); err != nil {
		t.Fatalf("telegram Send returned error: %v", err)
	}
}

func TestConsoleSender_Failures(t *testing.T) {
	s := NewConsoleSender(zerolog.Nop())

	if err := s.Send(context.Background(), domain.Reminder{ID: "r1", Channel: domain.ChannelSMS}); err == nil {
		t.Fatalf("expected error for sms without phone")
	}
	if err := s.Send(context.Background(), domain.Reminder{ID: "r2", Channel: "fax"}); err == nil {
		t.Fatalf("expected error for unknown channel")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, domain.Reminder{ID: "r3", Channel: domain.ChannelTelegram}); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
