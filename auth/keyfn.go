package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
)

const (
	RememberKeyEnvVar = "LATCHKEY_REMEMBER_KEY"
)

type (
	Key [32]byte

	// KeyFn returns a fresh copy of the remember-me key, callers
	// should Zero it once done.
	KeyFn func(context.Context) (*Key, error)
)

func (k *Key) Zero() {
	for i := range k {
		k[i] = 0
	}
}

// KeyFNFromEnv reads a base64 encoded key from varname and clears the
// variable, so child processes and later lookups do not see it.
func KeyFNFromEnv(varname string, getfn func(string) string, setfn func(string, string) error) (KeyFn, error) {
	if getfn == nil {
		getfn = os.Getenv
	}
	if setfn == nil {
		setfn = os.Setenv
	}
	val := getfn(varname)
	setfn(varname, "")
	var rootKey Key
	buf, err := base64.StdEncoding.DecodeString(val)
	if err != nil {
		return nil, fmt.Errorf("auth: cannot decode %v to a valid key, cause %v", varname, err)
	} else if len(buf) != len(rootKey) {
		return nil, fmt.Errorf("auth: decoded key from %v has %v bytes, expecting %v", varname, len(buf), len(rootKey))
	}
	copy(rootKey[:], buf)
	return StaticKey(rootKey), nil
}

func StaticKey(rootKey Key) KeyFn {
	return func(_ context.Context) (*Key, error) {
		k := rootKey
		return &k, nil
	}
}

func macHex(ctx context.Context, keyfn KeyFn, value string) (string, error) {
	k, err := keyfn(ctx)
	if err != nil {
		return "", err
	}
	defer k.Zero()
	mac := hmac.New(sha256.New, k[:])
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
