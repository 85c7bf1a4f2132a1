package resolver

import (
	"fmt"

	"github.com/stomacrm/clinic/internal/core/domain"
)

// State is a read-only snapshot of what the resolver currently knows.
type State struct {
	Identity       *domain.Identity
	Profile        *domain.Profile
	Role           domain.Role
	SessionLoading bool
	ProfileLoading bool
	LastError      string
	// ProfileFound is false when the current profile was provisioned as a
	// default rather than read back.
	ProfileFound bool

	// SessionTimedOut and ProfileTimedOut record that the advisory timer
	// released the corresponding loading flag before a result arrived.
	SessionTimedOut bool
	ProfileTimedOut bool
}

func (s State) clone() State {
	out := s
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	return out
}

// Phase is the routing decision consumers derive from a State.
type Phase int

const (
	PhaseSessionLoading Phase = iota
	PhaseSignedOut
	PhaseProfileLoading
	// PhaseProfileTimedOut: authenticated, the profile did not arrive in time.
	// Consumers offer a retry.
	PhaseProfileTimedOut
	// PhaseNoRole: authenticated without an assigned role. Consumers show a
	// contact-administrator screen with retry and sign-out, never the login page.
	PhaseNoRole
	PhaseReady
)

var phaseNames = map[Phase]string{
	PhaseSessionLoading:  "session_loading",
	PhaseSignedOut:       "signed_out",
	PhaseProfileLoading:  "profile_loading",
	PhaseProfileTimedOut: "profile_timed_out",
	PhaseNoRole:          "no_role",
	PhaseReady:           "ready",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Settled reports whether no further automatic transition is expected.
func (p Phase) Settled() bool {
	return p != PhaseSessionLoading && p != PhaseProfileLoading
}

// Phase evaluates the exclusive phases in order: session loading, signed
// out, profile loading, missing role, ready.
func (s State) Phase() Phase {
	switch {
	case s.SessionLoading:
		return PhaseSessionLoading
	case s.Identity == nil:
		return PhaseSignedOut
	case s.ProfileLoading:
		return PhaseProfileLoading
	case s.Role == domain.RoleNone && s.ProfileTimedOut:
		return PhaseProfileTimedOut
	case s.Role == domain.RoleNone:
		return PhaseNoRole
	default:
		return PhaseReady
	}
}

// LoginPath is where signed-out users are sent.
const LoginPath = "/login"

// Route returns the path a consumer should navigate to, or "" to stay on
// the current screen.
func (s State) Route() string {
	switch s.Phase() {
	case PhaseSignedOut:
		return LoginPath
	case PhaseReady:
		return s.Role.LandingPath()
	default:
		return ""
	}
}

// DebugLines renders the auth debug banner.
func (s State) DebugLines() []string {
	uid := "null"
	if s.Identity != nil {
		uid = s.Identity.ID
	}
	role := "null"
	if s.Role != domain.RoleNone {
		role = string(s.Role)
	}
	lastErr := "none"
	if s.LastError != "" {
		lastErr = s.LastError
	}
	return []string{
		fmt.Sprintf("authLoading: %t", s.SessionLoading),
		fmt.Sprintf("profileLoading: %t", s.ProfileLoading),
		fmt.Sprintf("authUid: %s", uid),
		fmt.Sprintf("profileRowFound: %t", s.ProfileFound),
		fmt.Sprintf("roleFromDb: %s", role),
		fmt.Sprintf("lastError: %s", lastErr),
	}
}
