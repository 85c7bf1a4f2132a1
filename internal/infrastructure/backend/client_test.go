package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/core/domain"
)

// ---------------------------------------------------------------------------
// Fake server
// ---------------------------------------------------------------------------

const validToken = "tok-1"

type fakeServer struct {
	mu       sync.Mutex
	profile  *domain.Profile
	signOuts int
	events   []domain.SessionEvent
}

func bearer(c echo.Context) string {
	return strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": domain.ErrSessionNotFound.Error()})
}

func (f *fakeServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	e := echo.New()
	session := domain.Session{ID: "s1", AccessToken: validToken, Identity: domain.Identity{ID: "u1", Email: "alice@clinic.uz"}}

	e.POST("/auth/sign-in", func(c echo.Context) error {
		var body map[string]string
		_ = c.Bind(&body)
		if body["password"] != "right" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": domain.ErrInvalidCredentials.Error()})
		}
		return c.JSON(http.StatusOK, session)
	})
	e.GET("/auth/session", func(c echo.Context) error {
		if bearer(c) != validToken {
			return unauthorized(c)
		}
		return c.JSON(http.StatusOK, session)
	})
	e.POST("/auth/sign-out", func(c echo.Context) error {
		f.mu.Lock()
		f.signOuts++
		f.mu.Unlock()
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "maintenance"})
	})
	e.GET("/profiles/me", func(c echo.Context) error {
		if bearer(c) != validToken {
			return unauthorized(c)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.profile == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": domain.ErrProfileNotFound.Error()})
		}
		return c.JSON(http.StatusOK, f.profile)
	})
	e.PUT("/profiles/me", func(c echo.Context) error {
		var body map[string]string
		_ = c.Bind(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.profile = &domain.Profile{ID: "u1", FullName: body["full_name"], Email: body["email"], Role: domain.RoleReception, IsActive: true}
		return c.JSON(http.StatusOK, f.profile)
	})

	upgrader := websocket.Upgrader{}
	e.GET("/auth/events", func(c echo.Context) error {
		if bearer(c) != validToken {
			return unauthorized(c)
		}
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return nil
		}
		defer conn.Close()
		f.mu.Lock()
		events := append([]domain.SessionEvent(nil), f.events...)
		f.mu.Unlock()
		for _, ev := range events {
			if err := conn.WriteJSON(ev); err != nil {
				return nil
			}
		}
		return nil
	})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

type eventRecorder struct {
	mu    sync.Mutex
	kinds []domain.SessionEventKind
}

func (r *eventRecorder) record(ev domain.SessionEvent) {
	r.mu.Lock()
	r.kinds = append(r.kinds, ev.Kind)
	r.mu.Unlock()
}

func (r *eventRecorder) list() []domain.SessionEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.SessionEventKind(nil), r.kinds...)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestClient_SignInStoresTokenAndNotifies(t *testing.T) {
	srv := (&fakeServer{}).start(t)
	tokens := &MemoryTokenStore{}
	c := New(srv.URL, tokens, zerolog.Nop())

	rec := &eventRecorder{}
	unsubscribe := c.OnSessionChange(rec.record)
	defer unsubscribe()

	if err := c.SignInWithPassword(context.Background(), "alice@clinic.uz", "right"); err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	if tok, _ := tokens.Load(); tok != validToken {
		t.Fatalf("expected stored token, got %q", tok)
	}
	if kinds := rec.list(); len(kinds) != 1 || kinds[0] != domain.SessionSignedIn {
		t.Fatalf("expected signed_in notification, got %v", kinds)
	}

	sess, err := c.GetCurrentSession(context.Background())
	if err != nil || sess == nil || sess.Identity.ID != "u1" {
		t.Fatalf("expected current session, got %+v, %v", sess, err)
	}
}

func TestClient_SignInRejected(t *testing.T) {
	srv := (&fakeServer{}).start(t)
	c := New(srv.URL, nil, zerolog.Nop())

	err := c.SignInWithPassword(context.Background(), "alice@clinic.uz", "wrong")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected APIError with 401, got %v", err)
	}
}

func TestClient_StaleTokenMeansNoSession(t *testing.T) {
	srv := (&fakeServer{}).start(t)
	tokens := &MemoryTokenStore{}
	_ = tokens.Save("expired")
	c := New(srv.URL, tokens, zerolog.Nop())

	sess, err := c.GetCurrentSession(context.Background())
	if err != nil || sess != nil {
		t.Fatalf("expected no session, got %+v, %v", sess, err)
	}
	if tok, _ := tokens.Load(); tok != "" {
		t.Fatalf("stale token should be cleared, got %q", tok)
	}
}

func TestClient_NoTokenMeansNoSession(t *testing.T) {
	c := New("http://127.0.0.1:1", nil, zerolog.Nop())

	sess, err := c.GetCurrentSession(context.Background())
	if err != nil || sess != nil {
		t.Fatalf("expected no session without a request, got %+v, %v", sess, err)
	}
}

func TestClient_SignOutClearsLocallyOnServerError(t *testing.T) {
	f := &fakeServer{}
	srv := f.start(t)
	tokens := &MemoryTokenStore{}
	_ = tokens.Save(validToken)
	c := New(srv.URL, tokens, zerolog.Nop())

	rec := &eventRecorder{}
	c.OnSessionChange(rec.record)

	if err := c.SignOut(context.Background()); err == nil {
		t.Fatalf("expected the server error to be reported")
	}
	if tok, _ := tokens.Load(); tok != "" {
		t.Fatalf("token should be cleared, got %q", tok)
	}
	if kinds := rec.list(); len(kinds) != 1 || kinds[0] != domain.SessionSignedOut {
		t.Fatalf("expected signed_out notification, got %v", kinds)
	}
}

func TestClient_ProfileFindAndProvision(t *testing.T) {
	srv := (&fakeServer{}).start(t)
	tokens := &MemoryTokenStore{}
	_ = tokens.Save(validToken)
	c := New(srv.URL, tokens, zerolog.Nop())

	p, err := c.FindByIdentity(context.Background(), "u1")
	if err != nil || p != nil {
		t.Fatalf("expected (nil, nil) for a missing profile, got %+v, %v", p, err)
	}

	p, err = c.UpsertByIdentity(context.Background(), "u1", domain.DefaultProfile(domain.Identity{ID: "u1", Email: "alice@clinic.uz"}))
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if p.Role != domain.RoleReception || p.FullName != "alice@clinic.uz" {
		t.Fatalf("unexpected profile: %+v", p)
	}

	p, err = c.FindByIdentity(context.Background(), "u1")
	if err != nil || p == nil {
		t.Fatalf("expected profile after provisioning, got %+v, %v", p, err)
	}

	if _, err := c.FindByIdentity(context.Background(), "someone-else"); err == nil {
		t.Fatalf("expected error for a profile of another identity")
	}
}

func TestClient_ProfileWithoutToken(t *testing.T) {
	c := New("http://127.0.0.1:1", nil, zerolog.Nop())

	if _, err := c.FindByIdentity(context.Background(), "u1"); !IsUnauthenticated(err) {
		t.Fatalf("expected unauthenticated error, got %v", err)
	}
}

func TestClient_FollowForwardsEvents(t *testing.T) {
	f := &fakeServer{events: []domain.SessionEvent{
		{Kind: domain.SessionUserUpdated},
		{Kind: domain.SessionSignedOut},
	}}
	srv := f.start(t)
	tokens := &MemoryTokenStore{}
	_ = tokens.Save(validToken)
	c := New(srv.URL, tokens, zerolog.Nop())

	rec := &eventRecorder{}
	c.OnSessionChange(rec.record)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Follow(ctx); err != nil {
		t.Fatalf("Follow returned error: %v", err)
	}

	kinds := rec.list()
	if len(kinds) != 2 || kinds[0] != domain.SessionUserUpdated || kinds[1] != domain.SessionSignedOut {
		t.Fatalf("unexpected events: %v", kinds)
	}
	if tok, _ := tokens.Load(); tok != "" {
		t.Fatalf("remote sign-out should clear the token, got %q", tok)
	}
}

func TestFileTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session")
	s := NewFileTokenStore(path)

	if tok, err := s.Load(); err != nil || tok != "" {
		t.Fatalf("expected empty token, got %q, %v", tok, err)
	}
	if err := s.Save("abc"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if tok, _ := s.Load(); tok != "abc" {
		t.Fatalf("expected abc, got %q", tok)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clearing twice should be fine: %v", err)
	}
}
