package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/core/ports"
)

const eventBuffer = 16

// SessionEvents carries auth change notifications over Redis pub/sub, one
// channel per user: session_events:<user_id>.
type SessionEvents struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewSessionEvents(client *redis.Client, log zerolog.Logger) *SessionEvents {
	return &SessionEvents{client: client, log: log.With().Str("component", "session_events").Logger()}
}

var (
	_ ports.SessionPublisher  = (*SessionEvents)(nil)
	_ ports.SessionSubscriber = (*SessionEvents)(nil)
)

func (e *SessionEvents) Publish(ctx context.Context, userID string, event domain.SessionEvent) error {
	if event.Session != nil {
		stripped := *event.Session
		stripped.AccessToken = ""
		event.Session = &stripped
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode session event: %w", err)
	}
	if err := e.client.Publish(ctx, eventsChannel(userID), payload).Err(); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

// Subscribe returns once the subscription is confirmed. The channel is
// closed when ctx is done.
func (e *SessionEvents) Subscribe(ctx context.Context, userID string) (<-chan domain.SessionEvent, error) {
	ps := e.client.Subscribe(ctx, eventsChannel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe session events: %w", err)
	}

	out := make(chan domain.SessionEvent, eventBuffer)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev domain.SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					e.log.Warn().Err(err).Str("user_id", userID).Msg("dropping malformed session event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func eventsChannel(userID string) string {
	return "session_events:" + userID
}
