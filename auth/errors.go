package auth

import (
	"errors"
	"fmt"
)

type (
	UserNotFound struct {
		Username string
	}

	BadCredentials struct {
		Username string
	}

	UnknownSeries struct {
		Series string
	}

	TokenExpired struct {
		Series string
	}

	// TokenReuseDetected means a superseded remember-me value was
	// presented for a live series.
	TokenReuseDetected struct {
		Series   string
		Username string
	}

	SessionExpired struct {
		SessionID string
	}

	// StoreUnavailable wraps failures of the backing storage, it is the only
	// error that should turn into a server error.
	StoreUnavailable struct {
		cause error
	}
)

func (u UserNotFound) Error() string {
	return fmt.Sprintf("user %v not found or disabled", u.Username)
}

func (u UserNotFound) Is(target error) bool {
	_, ok := target.(UserNotFound)
	return ok
}

func (b BadCredentials) Error() string {
	return fmt.Sprintf("bad credentials for user %v", b.Username)
}

func (b BadCredentials) Is(target error) bool {
	_, ok := target.(BadCredentials)
	return ok
}

func (u UnknownSeries) Error() string {
	return "unknown remember-me series"
}

func (u UnknownSeries) Is(target error) bool {
	_, ok := target.(UnknownSeries)
	return ok
}

func (t TokenExpired) Error() string {
	return "remember-me token expired"
}

func (t TokenExpired) Is(target error) bool {
	_, ok := target.(TokenExpired)
	return ok
}

func (t TokenReuseDetected) Error() string {
	return fmt.Sprintf("remember-me token reuse detected for user %v", t.Username)
}

func (t TokenReuseDetected) Is(target error) bool {
	_, ok := target.(TokenReuseDetected)
	return ok
}

func (s SessionExpired) Error() string {
	return "session expired"
}

func (s SessionExpired) Is(target error) bool {
	_, ok := target.(SessionExpired)
	return ok
}

func (s StoreUnavailable) Error() string {
	return fmt.Sprintf("auth store unavailable, cause %v", s.cause)
}

func (s StoreUnavailable) Unwrap() error {
	return s.cause
}

func (s StoreUnavailable) Is(target error) bool {
	_, ok := target.(StoreUnavailable)
	return ok
}

// IsRejection reports whether err is one of the authentication failures,
// as opposed to a storage problem or a programming error.
func IsRejection(err error) bool {
	for _, target := range []error{
		UserNotFound{}, BadCredentials{}, UnknownSeries{},
		TokenExpired{}, TokenReuseDetected{}, SessionExpired{},
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func unavailable(err error) error {
	if err == nil || IsRejection(err) || errors.Is(err, StoreUnavailable{}) {
		return err
	}
	return StoreUnavailable{cause: err}
}
