// Package resolver coordinates session retrieval and profile provisioning
// for a signed-in clinic user and exposes the combined loading/error/ready
// state to the rest of the client.
//
// The resolver owns its state exclusively. Collaborator calls run on their
// own goroutines; every result is applied under the resolver's lock, and
// consumers only ever see snapshots.
package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/core/ports"
)

const (
	DefaultSessionTimeout = 6 * time.Second
	DefaultProfileTimeout = 6 * time.Second
)

// Options tunes the advisory timers. Zero values select the defaults.
type Options struct {
	SessionTimeout time.Duration
	ProfileTimeout time.Duration
	Clock          Clock
}

// Resolver is constructed once per client and passed to whatever needs the
// signed-in user's state.
type Resolver struct {
	auth     ports.AuthService
	profiles ports.ProfileStore
	clock    Clock
	opts     Options
	log      zerolog.Logger

	initOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc

	mu           sync.Mutex
	state        State
	closed       bool
	unsubscribe  func()
	sessionTimer Timer
	profileTimer Timer
	// profileSeq identifies the profile cycle allowed to write state.
	profileSeq uint64

	notifyMu  sync.Mutex
	watchers  map[uint64]func(State)
	nextWatch uint64

	inflight sync.WaitGroup
}

// New returns a resolver in its pre-initialisation state: session loading,
// nothing resolved yet.
func New(auth ports.AuthService, profiles ports.ProfileStore, opts Options, log zerolog.Logger) *Resolver {
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = DefaultSessionTimeout
	}
	if opts.ProfileTimeout <= 0 {
		opts.ProfileTimeout = DefaultProfileTimeout
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	return &Resolver{
		auth:     auth,
		profiles: profiles,
		clock:    opts.Clock,
		opts:     opts,
		log:      log.With().Str("component", "resolver").Logger(),
		state:    State{SessionLoading: true},
		watchers: make(map[uint64]func(State)),
	}
}

// State returns a snapshot of the current state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Watch calls fn with a fresh snapshot after every state change. The
// returned function stops the notifications.
func (r *Resolver) Watch(fn func(State)) (cancel func()) {
	r.notifyMu.Lock()
	id := r.nextWatch
	r.nextWatch++
	r.watchers[id] = fn
	r.notifyMu.Unlock()

	return func() {
		r.notifyMu.Lock()
		delete(r.watchers, id)
		r.notifyMu.Unlock()
	}
}

// notify delivers the latest snapshot. Holding notifyMu while reading the
// state keeps deliveries in order.
func (r *Resolver) notify() {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	if len(r.watchers) == 0 {
		return
	}
	snap := r.State()
	for _, fn := range r.watchers {
		fn(snap)
	}
}

// Initialize subscribes to auth changes, then queries the current session.
// Only the first call has any effect. ctx bounds the background requests
// for the resolver's whole lifetime.
func (r *Resolver) Initialize(ctx context.Context) {
	r.initOnce.Do(func() {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		r.ctx, r.cancel = context.WithCancel(ctx)
		r.sessionTimer = r.clock.AfterFunc(r.opts.SessionTimeout, r.onSessionTimeout)
		r.mu.Unlock()

		// The subscription must exist before the query so no transition
		// between the two is missed.
		unsubscribe := r.auth.OnSessionChange(r.onSessionEvent)

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			unsubscribe()
			return
		}
		r.unsubscribe = unsubscribe
		r.inflight.Add(1)
		r.mu.Unlock()

		go r.querySession()
	})
}

func (r *Resolver) querySession() {
	defer r.inflight.Done()

	sess, err := r.auth.GetCurrentSession(r.ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("get current session failed")
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		r.state.LastError = err.Error()
		r.state.SessionLoading = false
		r.stopSessionTimerLocked()
		r.mu.Unlock()
		r.notify()
		return
	}
	r.applySession(sess, "query")
}

func (r *Resolver) onSessionEvent(ev domain.SessionEvent) {
	r.log.Debug().Str("kind", string(ev.Kind)).Bool("has_session", ev.Session != nil).Msg("auth change")
	switch {
	case ev.Kind == domain.SessionSignedOut:
		r.applySession(nil, string(ev.Kind))
	case ev.Session == nil:
		// A sessionless update says nothing about the token, only that the
		// account's role or active flag may have moved.
		if ev.Kind == domain.SessionUserUpdated {
			r.RetryProfile()
		}
	default:
		r.applySession(ev.Session, string(ev.Kind))
	}
}

// applySession is the shared completion path of the change notification and
// the one-shot query. Both report the current session, so the last writer
// wins.
func (r *Resolver) applySession(sess *domain.Session, source string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	prevID := ""
	if r.state.Identity != nil {
		prevID = r.state.Identity.ID
	}

	var next *domain.Identity
	if sess != nil {
		id := sess.Identity
		next = &id
	}
	r.state.Identity = next
	r.state.SessionLoading = false
	r.state.SessionTimedOut = false
	r.stopSessionTimerLocked()

	switch {
	case next == nil:
		r.resetProfileLocked()
	case next.ID != prevID:
		r.log.Info().Str("user_id", next.ID).Str("source", source).Msg("identity resolved")
		r.startProfileCycleLocked(*next)
	case source == string(domain.SessionUserUpdated):
		r.log.Info().Str("user_id", next.ID).Msg("account updated, reloading profile")
		r.startProfileCycleLocked(*next)
	}
	r.mu.Unlock()
	r.notify()
}

func (r *Resolver) onSessionTimeout() {
	r.mu.Lock()
	if r.closed || !r.state.SessionLoading {
		r.mu.Unlock()
		return
	}
	r.log.Warn().Dur("timeout", r.opts.SessionTimeout).Msg("session check timed out")
	r.state.LastError = domain.MsgSessionTimeout
	r.state.SessionLoading = false
	r.state.SessionTimedOut = true
	r.mu.Unlock()
	r.notify()
}

// RetryProfile re-runs the profile cycle for the held identity. It does
// nothing when no identity is held.
func (r *Resolver) RetryProfile() {
	r.mu.Lock()
	if r.closed || r.state.Identity == nil || r.ctx == nil {
		r.mu.Unlock()
		return
	}
	r.startProfileCycleLocked(*r.state.Identity)
	r.mu.Unlock()
	r.notify()
}

// startProfileCycleLocked supersedes any running cycle. The superseded
// request is left to finish; its result is discarded.
func (r *Resolver) startProfileCycleLocked(id domain.Identity) {
	r.profileSeq++
	seq := r.profileSeq

	r.state.ProfileLoading = true
	r.state.ProfileTimedOut = false
	r.state.LastError = ""
	r.state.ProfileFound = false

	r.stopProfileTimerLocked()
	r.profileTimer = r.clock.AfterFunc(r.opts.ProfileTimeout, func() { r.onProfileTimeout(seq) })

	r.inflight.Add(1)
	go r.fetchOrProvisionProfile(r.ctx, seq, id)
}

// profileOutcome is what one cycle hands back to the state holder.
type profileOutcome struct {
	profile *domain.Profile
	found   bool
	errMsg  string
}

func (r *Resolver) fetchOrProvisionProfile(ctx context.Context, seq uint64, id domain.Identity) {
	defer r.inflight.Done()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Str("user_id", id.ID).Msg("profile cycle panicked")
			msg := domain.MsgUnknownError
			if err, ok := rec.(error); ok && err.Error() != "" {
				msg = err.Error()
			} else if s, ok := rec.(string); ok && s != "" {
				msg = s
			}
			r.finishProfile(seq, profileOutcome{errMsg: msg})
		}
	}()

	log := r.log.With().Str("user_id", id.ID).Logger()

	profile, err := r.profiles.FindByIdentity(ctx, id.ID)
	if err != nil {
		log.Error().Err(err).Msg("profile fetch failed")
		r.finishProfile(seq, profileOutcome{errMsg: domain.MsgProfileFetchPrefix + err.Error()})
		return
	}

	found := profile != nil
	if !found {
		log.Warn().Msg("profile missing, provisioning defaults")
		profile, err = r.profiles.UpsertByIdentity(ctx, id.ID, domain.DefaultProfile(id))
		if err == nil && profile == nil {
			err = domain.ErrProfileNotFound
		}
		if err != nil {
			log.Error().Err(err).Msg("profile provisioning failed")
			r.finishProfile(seq, profileOutcome{errMsg: domain.MsgProfileProvisionPrefix + err.Error()})
			return
		}
	}

	r.finishProfile(seq, profileOutcome{profile: profile, found: found})
}

// finishProfile applies a cycle's result if the cycle is still current. It
// also runs after the advisory timer fired, so a late result still lands.
func (r *Resolver) finishProfile(seq uint64, out profileOutcome) {
	r.mu.Lock()
	if r.closed || seq != r.profileSeq {
		r.mu.Unlock()
		r.log.Debug().Uint64("seq", seq).Msg("discarding superseded profile result")
		return
	}

	r.stopProfileTimerLocked()
	r.state.ProfileLoading = false
	r.state.ProfileTimedOut = false

	if out.errMsg != "" {
		r.state.LastError = out.errMsg
		r.state.Profile = nil
		r.state.Role = domain.RoleNone
		r.state.ProfileFound = false
	} else {
		p := *out.profile
		r.state.Profile = &p
		r.state.ProfileFound = out.found
		r.state.LastError = ""
		if p.Role.Valid() {
			r.state.Role = p.Role
		} else {
			r.state.Role = domain.RoleNone
			r.state.LastError = domain.MsgRoleNotAssigned
			r.log.Warn().Str("user_id", p.ID).Msg("profile has no role")
		}
	}
	r.mu.Unlock()
	r.notify()
}

func (r *Resolver) onProfileTimeout(seq uint64) {
	r.mu.Lock()
	if r.closed || seq != r.profileSeq || !r.state.ProfileLoading {
		r.mu.Unlock()
		return
	}
	r.log.Warn().Dur("timeout", r.opts.ProfileTimeout).Msg("profile load timed out")
	r.state.LastError = domain.MsgProfileTimeout
	r.state.ProfileLoading = false
	r.state.ProfileTimedOut = true
	r.mu.Unlock()
	r.notify()
}

// resetProfileLocked drops everything derived from the previous identity and
// invalidates any running cycle.
func (r *Resolver) resetProfileLocked() {
	r.profileSeq++
	r.stopProfileTimerLocked()
	r.state.Profile = nil
	r.state.Role = domain.RoleNone
	r.state.ProfileFound = false
	r.state.ProfileLoading = false
	r.state.ProfileTimedOut = false
}

// SignIn forwards the credentials. State is not touched here: the session
// materialises through the change notification.
func (r *Resolver) SignIn(ctx context.Context, email, password string) error {
	if err := r.auth.SignInWithPassword(ctx, email, password); err != nil {
		r.log.Warn().Err(err).Str("email", email).Msg("sign-in rejected")
		return err
	}
	return nil
}

// SignOut asks the auth service to end the session and clears the local
// state whatever the outcome.
func (r *Resolver) SignOut(ctx context.Context) {
	if err := r.auth.SignOut(ctx); err != nil {
		r.log.Warn().Err(err).Msg("sign-out call failed, clearing local state anyway")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.state.Identity = nil
	r.state.SessionLoading = false
	r.state.SessionTimedOut = false
	r.stopSessionTimerLocked()
	r.resetProfileLocked()
	r.state.LastError = ""
	r.mu.Unlock()
	r.notify()
}

// Close stops all timers and the change subscription. Results arriving
// afterwards are ignored.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.stopSessionTimerLocked()
	r.stopProfileTimerLocked()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	cancel := r.cancel
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
}

func (r *Resolver) stopSessionTimerLocked() {
	if r.sessionTimer != nil {
		r.sessionTimer.Stop()
		r.sessionTimer = nil
	}
}

func (r *Resolver) stopProfileTimerLocked() {
	if r.profileTimer != nil {
		r.profileTimer.Stop()
		r.profileTimer = nil
	}
}
