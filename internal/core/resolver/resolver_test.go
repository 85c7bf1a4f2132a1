package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/testfixtures"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubAuth struct {
	mu          sync.Mutex
	listeners   map[int]func(domain.SessionEvent)
	nextID      int
	subscribes  int
	queries     int
	session     *domain.Session
	sessionErr  error
	sessionGate chan struct{}
	signInErr   error
	signOutErr  error
	signOuts    int
	signIns     []string
}

func newStubAuth(session *domain.Session) *stubAuth {
	return &stubAuth{listeners: make(map[int]func(domain.SessionEvent)), session: session}
}

func (a *stubAuth) GetCurrentSession(ctx context.Context) (*domain.Session, error) {
	a.mu.Lock()
	a.queries++
	gate := a.sessionGate
	a.mu.Unlock()

	if gate != nil {
		<-gate
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session, a.sessionErr
}

func (a *stubAuth) OnSessionChange(cb func(domain.SessionEvent)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscribes++
	id := a.nextID
	a.nextID++
	a.listeners[id] = cb
	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

func (a *stubAuth) SignInWithPassword(_ context.Context, email, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signIns = append(a.signIns, email)
	return a.signInErr
}

func (a *stubAuth) SignOut(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signOuts++
	return a.signOutErr
}

func (a *stubAuth) emit(ev domain.SessionEvent) {
	a.mu.Lock()
	cbs := make([]func(domain.SessionEvent), 0, len(a.listeners))
	for _, cb := range a.listeners {
		cbs = append(cbs, cb)
	}
	a.mu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

func (a *stubAuth) listenerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.listeners)
}

type stubProfiles struct {
	mu       sync.Mutex
	records  map[string]*domain.Profile
	findErr  error
	upsertFn func(id string, defaults domain.Profile) (*domain.Profile, error)
	gate     chan struct{}
	finds    int
	upserts  int
	panicMsg string
}

func newStubProfiles() *stubProfiles {
	return &stubProfiles{records: make(map[string]*domain.Profile)}
}

func (s *stubProfiles) FindByIdentity(_ context.Context, id string) (*domain.Profile, error) {
	s.mu.Lock()
	s.finds++
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.findErr != nil {
		return nil, s.findErr
	}
	p, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

func (s *stubProfiles) UpsertByIdentity(_ context.Context, id string, defaults domain.Profile) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.upsertFn != nil {
		return s.upsertFn(id, defaults)
	}
	stored := defaults
	stored.ID = id
	s.records[id] = &stored
	clone := stored
	return &clone, nil
}

func (s *stubProfiles) counts() (finds, upserts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finds, s.upserts
}

// fixtureClock adapts the manual clock to the resolver's Clock interface.
type fixtureClock struct {
	*testfixtures.Clock
}

func (c fixtureClock) AfterFunc(d time.Duration, f func()) Timer {
	return c.Clock.AfterFunc(d, f)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestResolver(t *testing.T, auth *stubAuth, profiles *stubProfiles) (*Resolver, *testfixtures.Clock) {
	t.Helper()
	clock := testfixtures.NewClock(time.Time{})
	r := New(auth, profiles, Options{Clock: fixtureClock{clock}}, zerolog.Nop())
	t.Cleanup(r.Close)
	return r, clock
}

func sessionFor(id domain.Identity) *domain.Session {
	return &domain.Session{ID: "sess-" + id.ID, AccessToken: "token", Identity: id}
}

var (
	alice = domain.Identity{ID: "user-alice", Email: "alice@clinic.uz", FullName: "Alice Karimova"}
	bob   = domain.Identity{ID: "user-bob", Email: "bob@clinic.uz"}
)

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestResolver_InitialState(t *testing.T) {
	r, _ := newTestResolver(t, newStubAuth(nil), newStubProfiles())

	s := r.State()
	if !s.SessionLoading {
		t.Fatalf("expected session loading before initialisation")
	}
	if s.Phase() != PhaseSessionLoading {
		t.Fatalf("expected session loading phase, got %s", s.Phase())
	}
}

func TestResolver_InitializeIsIdempotent(t *testing.T) {
	auth := newStubAuth(nil)
	r, clock := newTestResolver(t, auth, newStubProfiles())

	r.Initialize(context.Background())
	r.Initialize(context.Background())
	r.inflight.Wait()

	if auth.subscribes != 1 {
		t.Fatalf("expected one subscription, got %d", auth.subscribes)
	}
	if auth.queries != 1 {
		t.Fatalf("expected one session query, got %d", auth.queries)
	}
	if clock.Pending() != 0 {
		t.Fatalf("session timer should be stopped once resolved, pending=%d", clock.Pending())
	}
}

func TestResolver_NoSessionRoutesToLogin(t *testing.T) {
	auth := newStubAuth(nil)
	profiles := newStubProfiles()
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	r.inflight.Wait()

	s := r.State()
	if s.SessionLoading {
		t.Fatalf("session loading should be cleared")
	}
	if s.Identity != nil {
		t.Fatalf("expected no identity, got %+v", s.Identity)
	}
	if s.Phase() != PhaseSignedOut || s.Route() != LoginPath {
		t.Fatalf("expected signed out routed to login, got %s %q", s.Phase(), s.Route())
	}
	if finds, _ := profiles.counts(); finds != 0 {
		t.Fatalf("no profile fetch expected without identity, got %d", finds)
	}
}

func TestResolver_NotificationBeforeQuery(t *testing.T) {
	auth := newStubAuth(sessionFor(alice))
	auth.sessionGate = make(chan struct{})
	profiles := newStubProfiles()
	profiles.records[alice.ID] = &domain.Profile{ID: alice.ID, Role: domain.RoleDoctor, IsActive: true}
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	auth.emit(domain.SessionEvent{Kind: domain.SessionSignedIn, Session: sessionFor(alice)})

	s := r.State()
	if s.SessionLoading {
		t.Fatalf("notification should clear session loading")
	}
	if s.Identity == nil || s.Identity.ID != alice.ID {
		t.Fatalf("expected identity from notification, got %+v", s.Identity)
	}

	close(auth.sessionGate)
	r.inflight.Wait()

	s = r.State()
	if s.SessionLoading {
		t.Fatalf("late query must not bring session loading back")
	}
	if finds, _ := profiles.counts(); finds != 1 {
		t.Fatalf("expected exactly one profile cycle, got %d", finds)
	}
	if s.Role != domain.RoleDoctor {
		t.Fatalf("expected doctor role, got %s", s.Role)
	}
}

func TestResolver_QueryBeforeNotification(t *testing.T) {
	auth := newStubAuth(sessionFor(alice))
	profiles := newStubProfiles()
	profiles.records[alice.ID] = &domain.Profile{ID: alice.ID, Role: domain.RoleAdmin, IsActive: true}
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	r.inflight.Wait()

	auth.emit(domain.SessionEvent{Kind: domain.SessionTokenRefreshed, Session: sessionFor(alice)})
	r.inflight.Wait()

	if finds, _ := profiles.counts(); finds != 1 {
		t.Fatalf("same identity must not trigger another cycle, got %d finds", finds)
	}
	if s := r.State(); s.Route() != "/admin" {
		t.Fatalf("expected admin landing, got %q", s.Route())
	}
}

func TestResolver_ExistingDoctorProfile(t *testing.T) {
	auth := newStubAuth(sessionFor(alice))
	profiles := newStubProfiles()
	profiles.records[alice.ID] = &domain.Profile{ID: alice.ID, FullName: "Alice", Role: domain.RoleDoctor, IsActive: true}
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	r.inflight.Wait()

	s := r.State()
	if s.Role != domain.RoleDoctor || !s.ProfileFound || s.ProfileLoading {
		t.Fatalf("unexpected state: %+v", s)
	}
	if s.LastError != "" {
		t.Fatalf("expected no error, got %q", s.LastError)
	}
	if s.Phase() != PhaseReady || s.Route() != "/doctor" {
		t.Fatalf("expected doctor landing, got %s %q", s.Phase(), s.Route())
	}
	if _, upserts := profiles.counts(); upserts != 0 {
		t.Fatalf("existing profile must not be provisioned, got %d upserts", upserts)
	}
}

func TestResolver_ProvisionsMissingProfile(t *testing.T) {
	auth := newStubAuth(sessionFor(bob))
	profiles := newStubProfiles()
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	r.inflight.Wait()

	s := r.State()
	if s.Profile == nil {
		t.Fatalf("expected provisioned profile")
	}
	if s.ProfileFound {
		t.Fatalf("provisioned profile must report profileFound=false")
	}
	if s.ProfileLoading {
		t.Fatalf("profile loading should be cleared")
	}
	if s.Profile.Role != domain.RoleReception || !s.Profile.IsActive {
		t.Fatalf("expected reception/active defaults, got %+v", s.Profile)
	}
	if s.Profile.FullName != bob.Email {
		t.Fatalf("expected email as display name fallback, got %q", s.Profile.FullName)
	}
	if s.Role != domain.RoleReception || s.Route() != "/reception" {
		t.Fatalf("expected reception landing, got %s %q", s.Role, s.Route())
	}
}

func TestResolver_MissingRoleIsNotAnError(t *testing.T) {
	auth := newStubAuth(sessionFor(alice))
	profiles := newStubProfiles()
	profiles.records[alice.ID] = &domain.Profile{ID: alice.ID, Role: domain.RoleNone, IsActive: true}
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	r.inflight.Wait()

	s := r.State()
	if s.Role != domain.RoleNone {
		t.Fatalf("expected no role, got %s", s.Role)
	}
	if s.LastError != domain.MsgRoleNotAssigned {
		t.Fatalf("expected role-not-assigned message, got %q", s.LastError)
	}
	if s.ProfileLoading {
		t.Fatalf("profile loading should be cleared")
	}
	if s.Profile == nil {
		t.Fatalf("profile should still be exposed")
	}
	if s.Phase() != PhaseNoRole {
		t.Fatalf("expected no-role phase, got %s", s.Phase())
	}
	if s.Route() == LoginPath {
		t.Fatalf("authenticated user without role must not be sent to login")
	}
}

func TestResolver_UnknownRoleTreatedAsMissing(t *testing.T) {
	auth := newStubAuth(sessionFor(alice))
	profiles := newStubProfiles()
	profiles.records[alice.ID] = &domain.Profile{ID: alice.ID, Role: domain.Role("janitor")}
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	r.inflight.Wait()

	if s := r.State(); s.Role != domain.RoleNone || s.LastError != domain.MsgRoleNotAssigned {
		t.Fatalf("unexpected state: %+v", s)
	}
}

func TestResolver_ProfileFetchFailureSkipsProvisioning(t *testing.T) {
	auth := newStubAuth(sessionFor(alice))
	profiles := newStubProfiles()
	profiles.findErr = errors.New("connection refused")
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	r.inflight.Wait()

	s := r.State()
	if s.LastError != domain.MsgProfileFetchPrefix+"connection refused" {
		t.Fatalf("unexpected error message %q", s.LastError)
	}
	if s.Profile != nil || s.Role != domain.RoleNone || s.ProfileLoading {
		t.Fatalf("unexpected state: %+v", s)
	}
	if _, upserts := profiles.counts(); upserts != 0 {
		t.Fatalf("fetch failure must not provision, got %d upserts", upserts)
	}
}

func TestResolver_ProvisioningFailure(t *testing.T) {
	auth := newStubAuth(sessionFor(bob))
	profiles := newStubProfiles()
	profiles.upsertFn = func(string, domain.Profile) (*domain.Profile, error) {
		return nil, errors.New("permission denied")
	}
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	r.inflight.Wait()

	s := r.State()
	if s.LastError != domain.MsgProfileProvisionPrefix+"permission denied" {
		t.Fatalf("unexpected error message %q", s.LastError)
	}
	if s.Profile != nil || s.ProfileLoading {
		t.Fatalf("unexpected state: %+v", s)
	}
}

func TestResolver_StorePanicIsContained(t *testing.T) {
	auth := newStubAuth(sessionFor(alice))
	profiles := newStubProfiles()
	profiles.panicMsg = "nil map"
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	r.inflight.Wait()

	s := r.State()
	if s.LastError != "nil map" || s.ProfileLoading {
		t.Fatalf("unexpected state: %+v", s)
	}
}

func TestResolver_ProfileTimeoutThenLateSuccess(t *testing.T) {
	auth := newStubAuth(sessionFor(alice))
	profiles := newStubProfiles()
	profiles.records[alice.ID] = &domain.Profile{ID: alice.ID, Role: domain.RoleDoctor, IsActive: true}
	profiles.gate = make(chan struct{})
	r, clock := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	auth.emit(domain.SessionEvent{Kind: domain.SessionSignedIn, Session: sessionFor(alice)})

	if s := r.State(); !s.ProfileLoading {
		t.Fatalf("expected profile loading while the fetch is pending")
	}

	clock.Advance(DefaultProfileTimeout)

	s := r.State()
	if s.ProfileLoading {
		t.Fatalf("timeout should release profile loading")
	}
	if s.LastError != domain.MsgProfileTimeout {
		t.Fatalf("expected timeout message, got %q", s.LastError)
	}
	if s.Phase() != PhaseProfileTimedOut {
		t.Fatalf("expected profile timed out phase, got %s", s.Phase())
	}

	close(profiles.gate)
	r.inflight.Wait()

	s = r.State()
	if s.Role != domain.RoleDoctor || s.Profile == nil {
		t.Fatalf("late success should still apply, got %+v", s)
	}
	if s.LastError != "" {
		t.Fatalf("late success should clear the timeout message, got %q", s.LastError)
	}
	if s.Phase() != PhaseReady {
		t.Fatalf("expected ready phase, got %s", s.Phase())
	}
}

func TestResolver_SessionTimeoutThenLateSession(t *testing.T) {
	auth := newStubAuth(sessionFor(alice))
	auth.sessionGate = make(chan struct{})
	profiles := newStubProfiles()
	profiles.records[alice.ID] = &domain.Profile{ID: alice.ID, Role: domain.RoleReception}
	r, clock := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	clock.Advance(DefaultSessionTimeout)

	s := r.State()
	if s.SessionLoading || !s.SessionTimedOut {
		t.Fatalf("timeout should release session loading: %+v", s)
	}
	if s.LastError != domain.MsgSessionTimeout {
		t.Fatalf("expected session timeout message, got %q", s.LastError)
	}
	if s.Route() != LoginPath {
		t.Fatalf("expected login route in degraded mode, got %q", s.Route())
	}

	close(auth.sessionGate)
	r.inflight.Wait()

	s = r.State()
	if s.Identity == nil || s.Role != domain.RoleReception {
		t.Fatalf("late session should still apply, got %+v", s)
	}
}

func TestResolver_SessionQueryFailure(t *testing.T) {
	auth := newStubAuth(nil)
	auth.sessionErr = errors.New("network unreachable")
	r, _ := newTestResolver(t, auth, newStubProfiles())

	r.Initialize(context.Background())
	r.inflight.Wait()

	s := r.State()
	if s.SessionLoading || s.LastError != "network unreachable" {
		t.Fatalf("unexpected state: %+v", s)
	}
	if s.Route() != LoginPath {
		t.Fatalf("expected login route, got %q", s.Route())
	}
}

func TestResolver_SignOutAlwaysClears(t *testing.T) {
	auth := newStubAuth(sessionFor(alice))
	auth.signOutErr = errors.New("503 service unavailable")
	profiles := newStubProfiles()
	profiles.records[alice.ID] = &domain.Profile{ID: alice.ID, Role: domain.RoleAdmin}
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	r.inflight.Wait()

	r.SignOut(context.Background())

	s := r.State()
	if s.Identity != nil || s.Profile != nil || s.Role != domain.RoleNone || s.LastError != "" || s.ProfileFound {
		t.Fatalf("sign-out should clear state, got %+v", s)
	}
	if auth.signOuts != 1 {
		t.Fatalf("expected the auth service to be called once, got %d", auth.signOuts)
	}
}

func TestResolver_SignOutDiscardsInFlightProfile(t *testing.T) {
	auth := newStubAuth(nil)
	auth.sessionGate = make(chan struct{})
	profiles := newStubProfiles()
	profiles.records[alice.ID] = &domain.Profile{ID: alice.ID, Role: domain.RoleAdmin}
	profiles.gate = make(chan struct{})
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	auth.emit(domain.SessionEvent{Kind: domain.SessionSignedIn, Session: sessionFor(alice)})
	r.SignOut(context.Background())

	close(auth.sessionGate)
	close(profiles.gate)
	r.inflight.Wait()

	if s := r.State(); s.Profile != nil || s.Role != domain.RoleNone {
		t.Fatalf("profile from the signed-out identity leaked into state: %+v", s)
	}
}

func TestResolver_RetryWithoutIdentityIsNoop(t *testing.T) {
	auth := newStubAuth(nil)
	profiles := newStubProfiles()
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	r.inflight.Wait()
	r.RetryProfile()
	r.inflight.Wait()

	if finds, upserts := profiles.counts(); finds != 0 || upserts != 0 {
		t.Fatalf("retry without identity must not reach the store, finds=%d upserts=%d", finds, upserts)
	}
}

func TestResolver_RetryReflectsExternalRoleChange(t *testing.T) {
	auth := newStubAuth(sessionFor(alice))
	profiles := newStubProfiles()
	profiles.records[alice.ID] = &domain.Profile{ID: alice.ID, Role: domain.RoleNone}
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	r.inflight.Wait()
	if s := r.State(); s.Phase() != PhaseNoRole {
		t.Fatalf("expected no-role phase first, got %s", s.Phase())
	}

	profiles.mu.Lock()
	profiles.records[alice.ID].Role = domain.RoleDoctor
	profiles.mu.Unlock()

	r.RetryProfile()
	r.inflight.Wait()

	s := r.State()
	if s.Role != domain.RoleDoctor || s.LastError != "" || !s.ProfileFound {
		t.Fatalf("retry should pick up the new role, got %+v", s)
	}
}

func TestResolver_IdentityChangeStartsFreshCycle(t *testing.T) {
	auth := newStubAuth(sessionFor(alice))
	profiles := newStubProfiles()
	profiles.records[alice.ID] = &domain.Profile{ID: alice.ID, Role: domain.RoleAdmin}
	profiles.records[bob.ID] = &domain.Profile{ID: bob.ID, Role: domain.RoleDoctor}
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	r.inflight.Wait()

	auth.emit(domain.SessionEvent{Kind: domain.SessionSignedOut})
	auth.emit(domain.SessionEvent{Kind: domain.SessionSignedIn, Session: sessionFor(bob)})
	r.inflight.Wait()

	s := r.State()
	if s.Identity == nil || s.Identity.ID != bob.ID || s.Role != domain.RoleDoctor {
		t.Fatalf("expected bob as doctor, got %+v", s)
	}
	if finds, _ := profiles.counts(); finds != 2 {
		t.Fatalf("expected one cycle per identity, got %d", finds)
	}
}

func TestResolver_SessionlessUserUpdateKeepsIdentity(t *testing.T) {
	auth := newStubAuth(sessionFor(alice))
	profiles := newStubProfiles()
	profiles.records[alice.ID] = &domain.Profile{ID: alice.ID, Role: domain.RoleDoctor, IsActive: true}
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	r.inflight.Wait()

	auth.emit(domain.SessionEvent{Kind: domain.SessionUserUpdated})
	r.inflight.Wait()

	s := r.State()
	if s.Identity == nil || s.Identity.ID != alice.ID {
		t.Fatalf("account update must not end the session, got %+v", s.Identity)
	}
	if s.Phase() != PhaseReady || s.Route() != "/doctor" {
		t.Fatalf("expected doctor to stay ready, got %s %q", s.Phase(), s.Route())
	}
}

func TestResolver_SessionlessTokenRefreshIsNoop(t *testing.T) {
	auth := newStubAuth(sessionFor(alice))
	profiles := newStubProfiles()
	profiles.records[alice.ID] = &domain.Profile{ID: alice.ID, Role: domain.RoleDoctor, IsActive: true}
	r, _ := newTestResolver(t, auth, profiles)

	r.Initialize(context.Background())
	r.inflight.Wait()

	auth.emit(domain.SessionEvent{Kind: domain.SessionTokenRefreshed})
	r.inflight.Wait()

	s := r.State()
	if s.Identity == nil || s.Role != domain.RoleDoctor {
		t.Fatalf("token refresh must keep the identity, got %+v", s)
	}
	if finds, _ := profiles.counts(); finds != 1 {
		t.Fatalf("token refresh must not reload the profile, got %d finds", finds)
	}
}

func TestResolver_UserUpdateReloadsRole(t *testing.T) {
	tests := []struct {
		name    string
		session *domain.Session
	}{
		{name: "without session", session: nil},
		{name: "with same session", session: sessionFor(alice)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := newStubAuth(sessionFor(alice))
			profiles := newStubProfiles()
			profiles.records[alice.ID] = &domain.Profile{ID: alice.ID, Role: domain.RoleDoctor, IsActive: true}
			r, _ := newTestResolver(t, auth, profiles)

			r.Initialize(context.Background())
			r.inflight.Wait()

			profiles.mu.Lock()
			profiles.records[alice.ID].Role = domain.RoleAdmin
			profiles.mu.Unlock()

			auth.emit(domain.SessionEvent{Kind: domain.SessionUserUpdated, Session: tt.session})
			r.inflight.Wait()

			s := r.State()
			if s.Role != domain.RoleAdmin || s.Route() != "/admin" {
				t.Fatalf("expected promoted role to reach the client, got %s %q", s.Role, s.Route())
			}
			if finds, _ := profiles.counts(); finds != 2 {
				t.Fatalf("expected one reload after the update, got %d finds", finds)
			}
		})
	}
}

func TestResolver_SignOutDuringSessionLoad(t *testing.T) {
	auth := newStubAuth(nil)
	auth.sessionGate = make(chan struct{})
	r, clock := newTestResolver(t, auth, newStubProfiles())

	r.Initialize(context.Background())
	r.SignOut(context.Background())

	s := r.State()
	if s.SessionLoading {
		t.Fatalf("sign-out should end session loading")
	}
	if clock.Pending() != 0 {
		t.Fatalf("sign-out should stop the session timer, pending=%d", clock.Pending())
	}

	clock.Advance(DefaultSessionTimeout)
	if s := r.State(); s.LastError != "" || s.SessionTimedOut {
		t.Fatalf("no timeout may surface after sign-out, got %+v", s)
	}

	close(auth.sessionGate)
	r.inflight.Wait()
	if s := r.State(); s.Phase() != PhaseSignedOut {
		t.Fatalf("expected signed out, got %s", s.Phase())
	}
}

func TestResolver_SignInDoesNotTouchState(t *testing.T) {
	auth := newStubAuth(nil)
	auth.signInErr = domain.ErrInvalidCredentials
	r, _ := newTestResolver(t, auth, newStubProfiles())

	r.Initialize(context.Background())
	r.inflight.Wait()
	before := r.State()

	err := r.SignIn(context.Background(), "alice@clinic.uz", "wrong")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if after := r.State(); after != before {
		t.Fatalf("sign-in must not mutate state: before=%+v after=%+v", before, after)
	}
}

func TestResolver_CloseUnsubscribesAndIgnoresLateEvents(t *testing.T) {
	auth := newStubAuth(nil)
	auth.sessionGate = make(chan struct{})
	r, clock := newTestResolver(t, auth, newStubProfiles())

	r.Initialize(context.Background())
	r.Close()

	if auth.listenerCount() != 0 {
		t.Fatalf("close should unsubscribe")
	}
	if clock.Pending() != 0 {
		t.Fatalf("close should stop timers, pending=%d", clock.Pending())
	}

	auth.mu.Lock()
	auth.session = sessionFor(alice)
	auth.mu.Unlock()
	close(auth.sessionGate)
	r.inflight.Wait()

	if s := r.State(); s.Identity != nil || !s.SessionLoading {
		t.Fatalf("state changed after close: %+v", s)
	}
}

func TestResolver_WatchSeesSettledState(t *testing.T) {
	auth := newStubAuth(sessionFor(alice))
	profiles := newStubProfiles()
	profiles.records[alice.ID] = &domain.Profile{ID: alice.ID, Role: domain.RoleReception}
	r, _ := newTestResolver(t, auth, profiles)

	var mu sync.Mutex
	var phases []Phase
	cancel := r.Watch(func(s State) {
		mu.Lock()
		phases = append(phases, s.Phase())
		mu.Unlock()
	})
	defer cancel()

	r.Initialize(context.Background())
	r.inflight.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(phases) == 0 || phases[len(phases)-1] != PhaseReady {
		t.Fatalf("expected the last notification to be ready, got %v", phases)
	}
}
