package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/andrebq/latchkey/internal/testutil"
	"github.com/andrebq/latchkey/keyring"
	"github.com/stretchr/testify/require"
)

type (
	fakeClock struct {
		sync.Mutex
		t time.Time
	}

	rig struct {
		keyring  *keyring.Control
		hasher   *Hasher
		verifier *Verifier
		tokens   *TokenStore
		sessions *SessionRegistry
		manager  *Manager
		clock    *fakeClock
	}
)

func (c *fakeClock) Now() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.t = c.t.Add(d)
}

func fastHasher() *Hasher {
	return &Hasher{Passes: 1, MemoryKiB: 64, Threads: 1, KeyLen: 32, SaltLen: 16}
}

func testKey() KeyFn {
	var k Key
	copy(k[:], "0123456789abcdef0123456789abcdef")
	return StaticKey(k)
}

// newRig returns the full auth stack over a temporary keyring with alice
// (password "correct-password") and carol (disabled, password "carol-password").
func newRig(t *testing.T) *rig {
	ctx := context.Background()
	hasher := fastHasher()
	ctl, cleanup := testutil.AcquirePopulatedKeyring(ctx, t, "auth", func(ctx context.Context, c *keyring.Control) error {
		for _, u := range []struct {
			name, password string
			enabled        bool
		}{
			{"alice", "correct-password", true},
			{"carol", "carol-password", false},
		} {
			hash, err := hasher.Hash(u.password)
			if err != nil {
				return err
			}
			err = c.PutUser(ctx, keyring.User{Username: u.name, Password: hash, Enabled: u.enabled, Authorities: []string{"ROLE_USER"}})
			if err != nil {
				return err
			}
		}
		return nil
	})
	t.Cleanup(cleanup)

	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	tokens := NewTokenStore(ctl, testKey(), DefaultTokenValidity)
	tokens.now = clock.Now
	sessions, err := NewSessionRegistry(ctx, time.Minute)
	require.NoError(t, err)
	sessions.now = clock.Now
	t.Cleanup(func() { sessions.Close() })
	verifier := NewVerifier(ctl, hasher)
	return &rig{
		keyring:  ctl,
		hasher:   hasher,
		verifier: verifier,
		tokens:   tokens,
		sessions: sessions,
		manager:  NewManager(verifier, tokens, sessions),
		clock:    clock,
	}
}
