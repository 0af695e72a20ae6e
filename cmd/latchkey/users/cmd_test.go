package users

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/andrebq/latchkey/auth"
	"github.com/andrebq/latchkey/internal/testutil"
	"github.com/andrebq/latchkey/keyring"
	"github.com/stretchr/testify/require"
)

func TestUserLifecycle(t *testing.T) {
	ctx := context.Background()
	ring, cleanup := testutil.AcquireKeyring(ctx, t, "users")
	defer cleanup()
	hasher := &auth.Hasher{Passes: 1, MemoryKiB: 64, Threads: 1, KeyLen: 32, SaltLen: 16}

	err := addUser(ctx, ring, hasher, keyring.User{Username: "alice", Enabled: true, Authorities: []string{"ROLE_USER", "ROLE_ADMIN"}}, strings.NewReader("s3cret\n"))
	require.NoError(t, err)

	u, err := ring.FindUser(ctx, "alice")
	require.NoError(t, err)
	ok, err := hasher.Compare(u.Password, "s3cret")
	require.NoError(t, err)
	require.True(t, ok)

	var out bytes.Buffer
	require.NoError(t, showUser(ctx, ring, "alice", &out))
	require.Equal(t, "alice\tenabled\tROLE_ADMIN,ROLE_USER\n", out.String())

	require.NoError(t, ring.CreateLogin(ctx, keyring.Login{Series: "s1", TokenHash: "h", Username: "alice", LastUsed: time.Now()}))
	require.NoError(t, setEnabled(ctx, ring, "alice", false))
	logins, err := ring.ListLogins(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, logins)

	out.Reset()
	require.NoError(t, showUser(ctx, ring, "alice", &out))
	require.True(t, strings.HasPrefix(out.String(), "alice\tdisabled\t"))

	err = setEnabled(ctx, ring, "bob", true)
	var notFound keyring.UserNotFound
	require.True(t, errors.As(err, &notFound), "unexpected error %v", err)
}

func TestAddUserNeedsPassword(t *testing.T) {
	ctx := context.Background()
	ring, cleanup := testutil.AcquireKeyring(ctx, t, "users")
	defer cleanup()

	err := addUser(ctx, ring, auth.DefaultHasher(), keyring.User{Username: "alice"}, strings.NewReader("  \n"))
	require.Error(t, err)
	err = addUser(ctx, ring, auth.DefaultHasher(), keyring.User{Username: "alice"}, strings.NewReader(""))
	require.Error(t, err)
}
