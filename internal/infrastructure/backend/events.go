package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/stomacrm/clinic/internal/core/domain"
)

// Follow streams the server's auth change notifications for the stored
// session and forwards them to OnSessionChange subscribers. It returns when
// ctx is done or the server closes the stream.
func (c *Client) Follow(ctx context.Context) error {
	token, err := c.requireToken()
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL(c.baseURL)+"/auth/events", header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("open event stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	for {
		var ev domain.SessionEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read event stream: %w", err)
		}

		c.log.Debug().Str("kind", string(ev.Kind)).Msg("session event received")
		if ev.Kind == domain.SessionSignedOut {
			if err := c.tokens.Clear(); err != nil {
				c.log.Warn().Err(err).Msg("clear token after remote sign-out failed")
			}
		}
		c.emit(ev)
		if ev.Kind == domain.SessionSignedOut {
			return nil
		}
	}
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}

// IsUnauthenticated reports whether err means the client holds no valid session.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, domain.ErrSessionNotFound)
}
