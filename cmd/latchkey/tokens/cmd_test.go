package tokens

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/andrebq/latchkey/internal/testutil"
	"github.com/andrebq/latchkey/keyring"
	"github.com/stretchr/testify/require"
)

func TestListAndRevoke(t *testing.T) {
	ctx := context.Background()
	ring, cleanup := testutil.AcquirePopulatedKeyring(ctx, t, "tokens", func(ctx context.Context, c *keyring.Control) error {
		if err := c.PutUser(ctx, keyring.User{Username: "alice", Password: "x", Enabled: true}); err != nil {
			return err
		}
		now := time.Now()
		for i, series := range []string{"s1", "s2", "s3"} {
			err := c.CreateLogin(ctx, keyring.Login{Series: series, TokenHash: "h", Username: "alice", LastUsed: now.Add(-time.Duration(i) * time.Hour)})
			if err != nil {
				return err
			}
		}
		return nil
	})
	defer cleanup()
	store := newStore(ring, time.Hour*24)

	var out bytes.Buffer
	require.NoError(t, list(ctx, store, "alice", &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "s1\talice\t"))

	require.Error(t, revoke(ctx, store, "", ""))
	require.Error(t, revoke(ctx, store, "s1", "alice"))
	require.NoError(t, revoke(ctx, store, "s1", ""))
	require.NoError(t, revoke(ctx, store, "s1", ""), "revoking twice is not an error")

	out.Reset()
	require.NoError(t, list(ctx, store, "alice", &out))
	require.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 2)

	require.NoError(t, revoke(ctx, store, "", "alice"))
	out.Reset()
	require.NoError(t, list(ctx, store, "alice", &out))
	require.Empty(t, out.String())
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	ring, cleanup := testutil.AcquirePopulatedKeyring(ctx, t, "tokens", func(ctx context.Context, c *keyring.Control) error {
		if err := c.PutUser(ctx, keyring.User{Username: "alice", Password: "x", Enabled: true}); err != nil {
			return err
		}
		if err := c.CreateLogin(ctx, keyring.Login{Series: "fresh", TokenHash: "h", Username: "alice", LastUsed: time.Now()}); err != nil {
			return err
		}
		return c.CreateLogin(ctx, keyring.Login{Series: "stale", TokenHash: "h", Username: "alice", LastUsed: time.Now().Add(-time.Hour * 48)})
	})
	defer cleanup()
	store := newStore(ring, time.Hour*24)

	n, err := purge(ctx, store)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	tokens, err := store.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	require.Equal(t, "fresh", tokens[0].Series)
}
