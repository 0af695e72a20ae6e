package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRememberMeTheftScenario(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)

	login, err := r.manager.Login(ctx, "alice", "correct-password", true)
	require.NoError(t, err)
	require.Equal(t, SessionAuthenticated, login.State)
	require.NotEmpty(t, login.SessionID)
	require.NotNil(t, login.Token)
	t1 := *login.Token

	// session is enough while it lives
	out, err := r.manager.AuthenticateRequest(ctx, login.SessionID, &t1)
	require.NoError(t, err)
	require.Equal(t, SessionAuthenticated, out.State)
	require.Nil(t, out.Token, "a valid session does not touch the token")

	// a new browser only has the cookie
	out, err = r.manager.AuthenticateRequest(ctx, "", &t1)
	require.NoError(t, err)
	require.Equal(t, TokenAuthenticated, out.State)
	require.Equal(t, Principal{Username: "alice", Authorities: []string{"ROLE_USER"}}, out.Principal)
	require.NotNil(t, out.Token)
	t2 := *out.Token
	assert.Equal(t, t1.Series, t2.Series)
	assert.NotEqual(t, t1.Value, t2.Value)
	restored := out.SessionID

	// T1 again: somebody kept a copy of the cookie
	out, err = r.manager.AuthenticateRequest(ctx, "", &t1)
	require.NoError(t, err)
	require.Equal(t, Rejected, out.State)
	require.ErrorIs(t, out.Cause, TokenReuseDetected{})
	require.True(t, out.ClearToken)

	logins, err := r.keyring.ListLogins(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, logins, "series must be deleted")

	for _, sid := range []string{login.SessionID, restored} {
		out, err = r.manager.AuthenticateRequest(ctx, sid, nil)
		require.NoError(t, err)
		require.Equal(t, Unauthenticated, out.State, "every session of alice is gone")
		require.True(t, out.ClearSession)
		require.ErrorIs(t, out.Cause, SessionExpired{})
	}
}

func TestLoginWrongPassword(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)

	out, err := r.manager.Login(ctx, "alice", "wrong-password", true)
	require.NoError(t, err)
	require.Equal(t, Rejected, out.State)
	require.ErrorIs(t, out.Cause, BadCredentials{})
	require.Empty(t, out.SessionID)
	require.Nil(t, out.Token)

	logins, err := r.keyring.ListLogins(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, logins)

	out, err = r.manager.Login(ctx, "nobody", "wrong-password", false)
	require.NoError(t, err)
	require.Equal(t, Rejected, out.State)
	require.ErrorIs(t, out.Cause, UserNotFound{})
}

func TestLoginWithoutRememberMe(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)

	out, err := r.manager.Login(ctx, "alice", "correct-password", false)
	require.NoError(t, err)
	require.Equal(t, SessionAuthenticated, out.State)
	require.Nil(t, out.Token)

	logins, err := r.keyring.ListLogins(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, logins)
}

func TestDisabledUserLosesRememberMe(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)

	login, err := r.manager.Login(ctx, "alice", "correct-password", true)
	require.NoError(t, err)
	require.NoError(t, r.keyring.SetEnabled(ctx, "alice", false))

	out, err := r.manager.AuthenticateRequest(ctx, "", login.Token)
	require.NoError(t, err)
	require.Equal(t, Rejected, out.State)
	require.ErrorIs(t, out.Cause, UserNotFound{})
	require.True(t, out.ClearToken)

	logins, err := r.keyring.ListLogins(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, logins)
}

func TestAuthenticateRequestWithoutCredentials(t *testing.T) {
	r := newRig(t)
	out, err := r.manager.AuthenticateRequest(context.Background(), "", nil)
	require.NoError(t, err)
	require.Equal(t, Outcome{State: Unauthenticated}, out)
	require.False(t, out.Authenticated())
}

func TestAuthenticateBasic(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)

	out, err := r.manager.AuthenticateBasic(ctx, "alice", "correct-password")
	require.NoError(t, err)
	require.Equal(t, BasicAuthenticated, out.State)
	require.True(t, out.Authenticated())
	require.Empty(t, out.SessionID)
	require.Nil(t, out.Token)

	out, err = r.manager.AuthenticateBasic(ctx, "carol", "carol-password")
	require.NoError(t, err)
	require.Equal(t, Rejected, out.State)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)

	login, err := r.manager.Login(ctx, "alice", "correct-password", true)
	require.NoError(t, err)

	out, err := r.manager.Logout(ctx, login.SessionID, login.Token.Series)
	require.NoError(t, err)
	require.True(t, out.ClearSession)
	require.True(t, out.ClearToken)

	out, err = r.manager.AuthenticateRequest(ctx, login.SessionID, login.Token)
	require.NoError(t, err)
	require.Equal(t, Rejected, out.State)
	require.ErrorIs(t, out.Cause, UnknownSeries{})

	// logging out twice is harmless
	_, err = r.manager.Logout(ctx, login.SessionID, login.Token.Series)
	require.NoError(t, err)
}
