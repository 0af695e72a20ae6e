package auth

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const (
	DefaultSessionTTL = 30 * time.Minute
)

type (
	Session struct {
		ID          string    `json:"id"`
		Username    string    `json:"username"`
		Authorities []string  `json:"authorities,omitempty"`
		Seq         uint64    `json:"seq"`
		Expires     time.Time `json:"expires"`
	}

	// SessionRegistry keeps sessions in memory. Sessions expire after ttl
	// without use.
	//
	// Revoking every session of a user does not walk the cache: the registry
	// records the current sequence number as the user's epoch and any session
	// created before it is rejected on lookup. The epoch entry lives for ttl,
	// which outlives every session it has to reject.
	SessionRegistry struct {
		cache *bigcache.BigCache
		ttl   time.Duration
		seq   atomic.Uint64
		now   func() time.Time
	}

	xxhasher struct{}
)

func (xxhasher) Sum64(key string) uint64 {
	return xxhash.Sum64String(key)
}

func NewSessionRegistry(ctx context.Context, ttl time.Duration) (*SessionRegistry, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 64 * 64
	cfg.MaxEntrySize = 256
	cfg.Verbose = false
	cfg.Hasher = xxhasher{}
	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create session cache, cause %w", err)
	}
	return &SessionRegistry{
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
	}, nil
}

func (r *SessionRegistry) TTL() time.Duration {
	return r.ttl
}

func (r *SessionRegistry) Create(user UserRecord) (Session, error) {
	s := Session{
		ID:          uuid.NewString(),
		Username:    user.Username,
		Authorities: user.Authorities,
		Seq:         r.seq.Add(1),
		Expires:     r.now().Add(r.ttl),
	}
	return s, r.store(s)
}

// Lookup returns the session and extends its expiry.
func (r *SessionRegistry) Lookup(id string) (Session, error) {
	if id == "" {
		return Session{}, SessionExpired{}
	}
	buf, err := r.cache.Get(sessionKey(id))
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return Session{}, SessionExpired{SessionID: id}
	} else if err != nil {
		return Session{}, fmt.Errorf("unable to read session, cause %w", err)
	}
	var s Session
	if err = json.Unmarshal(buf, &s); err != nil {
		r.Destroy(id)
		return Session{}, SessionExpired{SessionID: id}
	}
	now := r.now()
	if !now.Before(s.Expires) || s.Seq <= r.epoch(s.Username) {
		r.Destroy(id)
		return Session{}, SessionExpired{SessionID: id}
	}
	s.Expires = now.Add(r.ttl)
	return s, r.store(s)
}

func (r *SessionRegistry) Destroy(id string) {
	if id == "" {
		return
	}
	r.cache.Delete(sessionKey(id))
}

// RevokeUser invalidates every session created for username so far.
func (r *SessionRegistry) RevokeUser(username string) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], r.seq.Load())
	return r.cache.Set(epochKey(username), buf[:])
}

func (r *SessionRegistry) Close() error {
	return r.cache.Close()
}

func (r *SessionRegistry) epoch(username string) uint64 {
	buf, err := r.cache.Get(epochKey(username))
	if err != nil || len(buf) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(buf)
}

func (r *SessionRegistry) store(s Session) error {
	buf, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.cache.Set(sessionKey(s.ID), buf)
}

func sessionKey(id string) string {
	return "s:" + id
}

func epochKey(username string) string {
	return "u:" + username
}
