// Package backend talks to the clinic HTTP API on behalf of a client. It
// provides the auth service and the profile store the resolver runs on.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/core/ports"
)

const defaultHTTPTimeout = 15 * time.Second

// APIError is a non-2xx response. It unwraps to the matching domain sentinel
// when the server reported one.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	log     zerolog.Logger

	mu        sync.Mutex
	listeners map[uint64]func(domain.SessionEvent)
	nextID    uint64
}

func New(baseURL string, tokens TokenStore, log zerolog.Logger) *Client {
	if tokens == nil {
		tokens = &MemoryTokenStore{}
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: defaultHTTPTimeout},
		tokens:    tokens,
		log:       log.With().Str("component", "backend").Logger(),
		listeners: make(map[uint64]func(domain.SessionEvent)),
	}
}

var (
	_ ports.AuthService  = (*Client)(nil)
	_ ports.ProfileStore = (*Client)(nil)
)

// GetCurrentSession validates the stored token. A token the server no longer
// accepts is discarded and reported as no session.
func (c *Client) GetCurrentSession(ctx context.Context) (*domain.Session, error) {
	token, err := c.tokens.Load()
	if err != nil || token == "" {
		return nil, err
	}

	var session domain.Session
	err = c.do(ctx, http.MethodGet, "/auth/session", token, nil, &session)
	if errors.Is(err, domain.ErrSessionNotFound) {
		c.log.Debug().Msg("stored session rejected, clearing token")
		_ = c.tokens.Clear()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) OnSessionChange(cb func(domain.SessionEvent)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = cb
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// SignInWithPassword stores the issued token and announces the new session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}

	var session domain.Session
	if err := c.do(ctx, http.MethodPost, "/auth/sign-in", "", body, &session); err != nil {
		return err
	}
	if err := c.tokens.Save(session.AccessToken); err != nil {
		return err
	}
	c.emit(domain.SessionEvent{Kind: domain.SessionSignedIn, Session: &session})
	return nil
}

// SignOut drops the local token whatever the server answers.
func (c *Client) SignOut(ctx context.Context) error {
	token, _ := c.tokens.Load()

	var err error
	if token != "" {
		err = c.do(ctx, http.MethodPost, "/auth/sign-out", token, nil, nil)
		if errors.Is(err, domain.ErrSessionNotFound) {
			err = nil
		}
	}
	if clearErr := c.tokens.Clear(); clearErr != nil && err == nil {
		err = clearErr
	}
	c.emit(domain.SessionEvent{Kind: domain.SessionSignedOut})
	return err
}

// FindByIdentity reads the signed-in user's own profile.
func (c *Client) FindByIdentity(ctx context.Context, id string) (*domain.Profile, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}

	var profile domain.Profile
	err = c.do(ctx, http.MethodGet, "/profiles/me", token, nil, &profile)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if profile.ID != id {
		return nil, fmt.Errorf("profile belongs to %s, expected %s", profile.ID, id)
	}
	return &profile, nil
}

// UpsertByIdentity provisions the signed-in user's own profile. The server
// decides role and activation.
func (c *Client) UpsertByIdentity(ctx context.Context, id string, defaults domain.Profile) (*domain.Profile, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}

	body := map[string]string{"full_name": defaults.FullName, "email": defaults.Email}
	var profile domain.Profile
	if err := c.do(ctx, http.MethodPut, "/profiles/me", token, body, &profile); err != nil {
		return nil, err
	}
	if profile.ID != id {
		return nil, fmt.Errorf("profile belongs to %s, expected %s", profile.ID, id)
	}
	return &profile, nil
}

func (c *Client) emit(ev domain.SessionEvent) {
	c.mu.Lock()
	cbs := make([]func(domain.SessionEvent), 0, len(c.listeners))
	for _, cb := range c.listeners {
		cbs = append(cbs, cb)
	}
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(ev)
	}
}

func (c *Client) requireToken() (string, error) {
	token, err := c.tokens.Load()
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", domain.ErrSessionNotFound
	}
	return token, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(raw))
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
	}

	apiErr := &APIError{Status: resp.StatusCode, Message: payload.Error}
	for _, known := range domain.Known {
		if strings.HasPrefix(payload.Error, known.Error()) {
			apiErr.Err = known
			break
		}
	}
	return apiErr
}
