package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
)

type (
	// Hasher derives argon2id keys from passwords and encodes them as
	// $argon2id$v=19$m=<kib>,t=<passes>,p=<threads>$<salt>$<key>
	Hasher struct {
		Passes    uint32
		MemoryKiB uint32
		Threads   uint8
		KeyLen    uint32
		SaltLen   uint32

		rand io.Reader
	}
)

var (
	errInvalidHash = errors.New("invalid argon2id hash")
)

// DefaultHasher returns the parameters used for new passwords.
func DefaultHasher() *Hasher {
	threads := runtime.NumCPU() / 2
	if threads < 1 {
		threads = 1
	}
	// 7 passes over 10 MB should be a good replacement
	// for 1 pass over 64 MB of ram.
	return &Hasher{
		Passes:    7,
		MemoryKiB: 10 * 1024,
		Threads:   uint8(threads),
		KeyLen:    32,
		SaltLen:   16,
	}
}

func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.SaltLen)
	if _, err := io.ReadFull(h.random(), salt); err != nil {
		return "", fmt.Errorf("unable to generate salt, cause %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.Passes, h.MemoryKiB, h.Threads, h.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.MemoryKiB, h.Passes, h.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// Compare derives a key from password using the parameters stored in
// encoded and compares both keys in constant time.
func (h *Hasher) Compare(encoded string, password string) (bool, error) {
	params, salt, expected, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), salt, params.Passes, params.MemoryKiB, params.Threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func (h *Hasher) random() io.Reader {
	if h.rand != nil {
		return h.rand
	}
	return rand.Reader
}

func decodeHash(encoded string) (Hasher, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Hasher{}, nil, nil, errInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return Hasher{}, nil, nil, errInvalidHash
	}
	var params Hasher
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.MemoryKiB, &params.Passes, &params.Threads)
	if err != nil || params.MemoryKiB == 0 || params.Passes == 0 || params.Threads == 0 {
		return Hasher{}, nil, nil, errInvalidHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Hasher{}, nil, nil, errInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Hasher{}, nil, nil, errInvalidHash
	}
	params.SaltLen = uint32(len(salt))
	params.KeyLen = uint32(len(key))
	return params, salt, key, nil
}
