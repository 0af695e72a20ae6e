package auth

import (
	"context"
	"errors"

	"github.com/andrebq/latchkey/internal/logutil"
)

const (
	Unauthenticated State = iota
	SessionAuthenticated
	TokenAuthenticated
	BasicAuthenticated
	Rejected
)

type (
	State byte

	Principal struct {
		Username    string
		Authorities []string
	}

	// Outcome is the result of every Manager operation. Besides the state
	// it carries the artifacts the HTTP layer must send back.
	Outcome struct {
		State     State
		Principal Principal

		// SessionID is set when a new session was created
		SessionID string
		// Token is set when a new remember-me pair was minted
		Token *TokenPair

		ClearSession bool
		ClearToken   bool

		// Cause is the reason behind Rejected or an expired session,
		// only meant for logs
		Cause error
	}

	Manager struct {
		verifier *Verifier
		tokens   *TokenStore
		sessions *SessionRegistry
	}
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case SessionAuthenticated:
		return "session"
	case TokenAuthenticated:
		return "remember-me"
	case BasicAuthenticated:
		return "basic"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

func (o Outcome) Authenticated() bool {
	switch o.State {
	case SessionAuthenticated, TokenAuthenticated, BasicAuthenticated:
		return true
	}
	return false
}

func NewManager(verifier *Verifier, tokens *TokenStore, sessions *SessionRegistry) *Manager {
	return &Manager{
		verifier: verifier,
		tokens:   tokens,
		sessions: sessions,
	}
}

func (m *Manager) Tokens() *TokenStore {
	return m.tokens
}

// Login checks the credentials and opens a session. When rememberMe is set
// a new remember-me chain is started as well.
//
// The returned error is only set for storage failures, bad credentials end
// up as a Rejected outcome.
func (m *Manager) Login(ctx context.Context, username, password string, rememberMe bool) (Outcome, error) {
	log := logutil.GetOrDefault(ctx)
	user, err := m.verifier.Verify(ctx, username, password)
	if IsRejection(err) {
		log.Warn().Err(err).Msg("Login rejected")
		return Outcome{State: Rejected, ClearSession: true, ClearToken: true, Cause: err}, nil
	} else if err != nil {
		return Outcome{}, err
	}
	session, err := m.sessions.Create(user)
	if err != nil {
		return Outcome{}, StoreUnavailable{cause: err}
	}
	out := Outcome{
		State:     SessionAuthenticated,
		Principal: principalOf(user),
		SessionID: session.ID,
	}
	if rememberMe {
		pair, err := m.tokens.Issue(ctx, user.Username)
		if err != nil {
			m.sessions.Destroy(session.ID)
			return Outcome{}, err
		}
		out.Token = &pair
	}
	log.Info().Str("auth.user", user.Username).Bool("auth.remember_me", rememberMe).Msg("Login succeeded")
	return out, nil
}

// AuthenticateRequest authenticates a request from its session, falling
// back to the remember-me pair when the session is missing or expired.
// Either argument may be empty.
func (m *Manager) AuthenticateRequest(ctx context.Context, sessionID string, pair *TokenPair) (Outcome, error) {
	log := logutil.GetOrDefault(ctx)
	var stale error
	if sessionID != "" {
		session, err := m.sessions.Lookup(sessionID)
		if err == nil {
			return Outcome{
				State:     SessionAuthenticated,
				Principal: Principal{Username: session.Username, Authorities: session.Authorities},
			}, nil
		} else if !IsRejection(err) {
			return Outcome{}, StoreUnavailable{cause: err}
		}
		stale = err
	}
	if pair == nil {
		return Outcome{State: Unauthenticated, ClearSession: stale != nil, Cause: stale}, nil
	}

	username, next, err := m.tokens.ValidateAndRotate(ctx, *pair)
	if err != nil {
		return m.rejectToken(ctx, err, stale != nil)
	}
	user, err := m.verifier.Lookup(ctx, username)
	if err != nil {
		// the chain outlived its user, drop it
		if rerr := m.tokens.Revoke(ctx, next.Series); rerr != nil {
			return Outcome{}, rerr
		}
		return m.rejectToken(ctx, err, stale != nil)
	}
	session, err := m.sessions.Create(user)
	if err != nil {
		return Outcome{}, StoreUnavailable{cause: err}
	}
	log.Info().Str("auth.user", user.Username).Msg("Session restored from remember-me token")
	return Outcome{
		State:     TokenAuthenticated,
		Principal: principalOf(user),
		SessionID: session.ID,
		Token:     &next,
	}, nil
}

func (m *Manager) rejectToken(ctx context.Context, err error, staleSession bool) (Outcome, error) {
	if !IsRejection(err) {
		return Outcome{}, err
	}
	log := logutil.GetOrDefault(ctx)
	var reuse TokenReuseDetected
	if errors.As(err, &reuse) {
		log.Error().Err(err).Str("auth.user", reuse.Username).Msg("Possible cookie theft, revoking every session of the user")
		if serr := m.sessions.RevokeUser(reuse.Username); serr != nil {
			return Outcome{}, StoreUnavailable{cause: serr}
		}
	} else {
		log.Warn().Err(err).Msg("Remember-me token rejected")
	}
	return Outcome{State: Rejected, ClearToken: true, ClearSession: staleSession, Cause: err}, nil
}

// AuthenticateBasic checks HTTP Basic credentials, no session is created.
func (m *Manager) AuthenticateBasic(ctx context.Context, username, password string) (Outcome, error) {
	user, err := m.verifier.Verify(ctx, username, password)
	if IsRejection(err) {
		log := logutil.GetOrDefault(ctx)
		log.Warn().Err(err).Msg("Basic authentication rejected")
		return Outcome{State: Rejected, Cause: err}, nil
	} else if err != nil {
		return Outcome{}, err
	}
	return Outcome{State: BasicAuthenticated, Principal: principalOf(user)}, nil
}

// Logout destroys the session and, if series is not empty, the
// remember-me chain.
func (m *Manager) Logout(ctx context.Context, sessionID string, series string) (Outcome, error) {
	m.sessions.Destroy(sessionID)
	out := Outcome{State: Unauthenticated, ClearSession: true, ClearToken: true}
	if series == "" {
		return out, nil
	}
	return out, m.tokens.Revoke(ctx, series)
}

func principalOf(u UserRecord) Principal {
	return Principal{Username: u.Username, Authorities: u.Authorities}
}
