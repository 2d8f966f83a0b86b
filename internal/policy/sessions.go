package policy

import (
	"context"
	"fmt"
	"strconv"

	"github.com/barterhub/backend/internal/config"
)

// MaxSessionsError carries enough for the client to offer a way out
// instead of a bare rejection.
type MaxSessionsError struct {
	Max     int
	Current int
}

func (e *MaxSessionsError) Error() string {
	return fmt.Sprintf("active session limit reached (%d of %d)", e.Current, e.Max)
}

// SuggestedAction is surfaced in the error payload so the client can
// prompt the user to free a slot.
func (e *MaxSessionsError) SuggestedAction() string {
	return "logout_other_sessions"
}

// SessionCounter is the slice of the session store this policy needs.
type SessionCounter interface {
	CountActiveSessions(ctx context.Context, userID string) (int, error)
}

// SessionPolicy caps simultaneously active sessions per user. This is a
// business rule, not infrastructure.
type SessionPolicy struct {
	sessions SessionCounter
	max      int
}

func NewSessionPolicy(sessions SessionCounter, cfg config.SecurityConfig) (*SessionPolicy, error) {
	max, err := strconv.Atoi(cfg.MaxSessions)
	if err != nil || max < 1 {
		return nil, fmt.Errorf("invalid MAX_SESSIONS: %q", cfg.MaxSessions)
	}
	return &SessionPolicy{sessions: sessions, max: max}, nil
}

func (p *SessionPolicy) Max() int {
	return p.max
}

func (p *SessionPolicy) AssertCanCreateSession(ctx context.Context, userID string) error {
	current, err := p.sessions.CountActiveSessions(ctx, userID)
	if err != nil {
		return err
	}
	if current >= p.max {
		return &MaxSessionsError{Max: p.max, Current: current}
	}
	return nil
}
