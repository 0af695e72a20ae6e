package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/andrebq/latchkey/keyring"
)

type (
	UserSource interface {
		FindUser(ctx context.Context, username string) (keyring.User, error)
	}

	UserRecord struct {
		Username    string
		Authorities []string
		Enabled     bool
	}

	Verifier struct {
		users  UserSource
		hasher *Hasher

		dummyOnce sync.Once
		dummy     string
		dummyErr  error
	}
)

func NewVerifier(users UserSource, hasher *Hasher) *Verifier {
	if hasher == nil {
		hasher = DefaultHasher()
	}
	return &Verifier{users: users, hasher: hasher}
}

// Verify checks password against the hash stored for username.
func (v *Verifier) Verify(ctx context.Context, username, password string) (UserRecord, error) {
	u, err := v.find(ctx, username)
	if errors.Is(err, UserNotFound{}) {
		// burn the same amount of work as a real comparison
		if dummy, derr := v.dummyHash(); derr == nil {
			v.hasher.Compare(dummy, password)
		}
		return UserRecord{}, err
	} else if err != nil {
		return UserRecord{}, err
	}
	ok, err := v.hasher.Compare(u.Password, password)
	if err != nil || !ok {
		// an unreadable hash can never match
		return UserRecord{}, BadCredentials{Username: username}
	}
	return toRecord(u), nil
}

// Lookup loads an enabled user without checking any credential.
func (v *Verifier) Lookup(ctx context.Context, username string) (UserRecord, error) {
	u, err := v.find(ctx, username)
	if err != nil {
		return UserRecord{}, err
	}
	return toRecord(u), nil
}

func (v *Verifier) find(ctx context.Context, username string) (keyring.User, error) {
	u, err := v.users.FindUser(ctx, username)
	var notFound keyring.UserNotFound
	switch {
	case errors.As(err, &notFound):
		return keyring.User{}, UserNotFound{Username: username}
	case err != nil:
		return keyring.User{}, unavailable(err)
	case !u.Enabled:
		return keyring.User{}, UserNotFound{Username: username}
	}
	return u, nil
}

func (v *Verifier) dummyHash() (string, error) {
	v.dummyOnce.Do(func() {
		v.dummy, v.dummyErr = v.hasher.Hash("latchkey-dummy-password")
	})
	return v.dummy, v.dummyErr
}

func toRecord(u keyring.User) UserRecord {
	return UserRecord{
		Username:    u.Username,
		Authorities: append([]string(nil), u.Authorities...),
		Enabled:     u.Enabled,
	}
}
