package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/andrebq/latchkey/keyring"
)

const (
	// DefaultTokenValidity is 2419200 seconds
	DefaultTokenValidity = 28 * 24 * time.Hour

	tokenBytes = 16
)

type (
	LoginBackend interface {
		CreateLogin(ctx context.Context, l keyring.Login) error
		UpdateLogin(ctx context.Context, series string, fn func(*keyring.Login) (keyring.Verdict, error)) error
		DeleteLogin(ctx context.Context, series string) (bool, error)
		DeleteUserLogins(ctx context.Context, username string) (int, error)
		PurgeLogins(ctx context.Context, before time.Time) (int, error)
		ListLogins(ctx context.Context, username string) ([]keyring.Login, error)
	}

	// TokenPair is what the client holds for a remember-me chain.
	TokenPair struct {
		Series string
		Value  string
	}

	// PersistentToken describes a stored chain, without its secret.
	PersistentToken struct {
		Series   string
		Username string
		LastUsed time.Time
	}

	TokenStore struct {
		backend  LoginBackend
		keyfn    KeyFn
		validity time.Duration

		now  func() time.Time
		rand io.Reader
	}
)

func NewTokenStore(backend LoginBackend, keyfn KeyFn, validity time.Duration) *TokenStore {
	if validity <= 0 {
		validity = DefaultTokenValidity
	}
	return &TokenStore{
		backend:  backend,
		keyfn:    keyfn,
		validity: validity,
		now:      time.Now,
		rand:     rand.Reader,
	}
}

func (s *TokenStore) Validity() time.Duration {
	return s.validity
}

// Issue starts a new chain for username.
func (s *TokenStore) Issue(ctx context.Context, username string) (TokenPair, error) {
	series, err := s.randomToken()
	if err != nil {
		return TokenPair{}, err
	}
	value, err := s.randomToken()
	if err != nil {
		return TokenPair{}, err
	}
	hash, err := macHex(ctx, s.keyfn, value)
	if err != nil {
		return TokenPair{}, StoreUnavailable{cause: err}
	}
	err = s.backend.CreateLogin(ctx, keyring.Login{
		Series:    series,
		TokenHash: hash,
		Username:  username,
		LastUsed:  s.now().UTC(),
	})
	if err != nil {
		return TokenPair{}, StoreUnavailable{cause: err}
	}
	return TokenPair{Series: series, Value: value}, nil
}

// ValidateAndRotate checks the pair and replaces its value in the same
// transaction. The returned pair must replace the one held by the client,
// the old value is useless from now on.
//
// Expiry is checked before the value, and both an expired and a reused
// token remove the whole series.
func (s *TokenStore) ValidateAndRotate(ctx context.Context, pair TokenPair) (string, TokenPair, error) {
	presented, err := macHex(ctx, s.keyfn, pair.Value)
	if err != nil {
		return "", TokenPair{}, StoreUnavailable{cause: err}
	}
	nextValue, err := s.randomToken()
	if err != nil {
		return "", TokenPair{}, err
	}
	nextHash, err := macHex(ctx, s.keyfn, nextValue)
	if err != nil {
		return "", TokenPair{}, StoreUnavailable{cause: err}
	}

	var username string
	err = s.backend.UpdateLogin(ctx, pair.Series, func(l *keyring.Login) (keyring.Verdict, error) {
		now := s.now().UTC()
		if now.Sub(l.LastUsed) > s.validity {
			return keyring.Discard, TokenExpired{Series: l.Series}
		}
		if subtle.ConstantTimeCompare([]byte(l.TokenHash), []byte(presented)) != 1 {
			return keyring.Discard, TokenReuseDetected{Series: l.Series, Username: l.Username}
		}
		l.TokenHash = nextHash
		l.LastUsed = now
		username = l.Username
		return keyring.Save, nil
	})
	var notFound keyring.LoginNotFound
	if errors.As(err, &notFound) {
		return "", TokenPair{}, UnknownSeries{Series: pair.Series}
	} else if err != nil {
		return "", TokenPair{}, unavailable(err)
	}
	return username, TokenPair{Series: pair.Series, Value: nextValue}, nil
}

// Revoke removes the series, revoking a missing series is not an error.
func (s *TokenStore) Revoke(ctx context.Context, series string) error {
	_, err := s.backend.DeleteLogin(ctx, series)
	if err != nil {
		return StoreUnavailable{cause: err}
	}
	return nil
}

func (s *TokenStore) RevokeUser(ctx context.Context, username string) (int, error) {
	n, err := s.backend.DeleteUserLogins(ctx, username)
	if err != nil {
		return 0, StoreUnavailable{cause: err}
	}
	return n, nil
}

// Purge removes every chain that was not used within the validity window.
func (s *TokenStore) Purge(ctx context.Context) (int, error) {
	n, err := s.backend.PurgeLogins(ctx, s.now().Add(-s.validity))
	if err != nil {
		return 0, StoreUnavailable{cause: err}
	}
	return n, nil
}

func (s *TokenStore) List(ctx context.Context, username string) ([]PersistentToken, error) {
	logins, err := s.backend.ListLogins(ctx, username)
	if err != nil {
		return nil, StoreUnavailable{cause: err}
	}
	out := make([]PersistentToken, 0, len(logins))
	for _, l := range logins {
		out = append(out, PersistentToken{Series: l.Series, Username: l.Username, LastUsed: l.LastUsed})
	}
	return out, nil
}

func (s *TokenStore) randomToken() (string, error) {
	var buf [tokenBytes]byte
	if _, err := io.ReadFull(s.rand, buf[:]); err != nil {
		return "", fmt.Errorf("unable to generate random token, cause %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf[:]), nil
}
