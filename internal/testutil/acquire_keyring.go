package testutil

import (
	"context"
	"os"
	"path/filepath"

	"github.com/andrebq/latchkey/keyring"
)

type (
	TestLog interface {
		Fatal(...interface{})
		Log(...interface{})
	}
)

// AcquireKeyring opens a writable keyring in a temporary directory, the
// returned func closes it and removes the directory.
func AcquireKeyring(ctx context.Context, t TestLog, name string) (*keyring.Control, func()) {
	dir, err := os.MkdirTemp("", "latchkey-tests")
	if err != nil {
		t.Fatal(err)
	}
	ctl, err := keyring.Open(ctx, filepath.Join(dir, name+".db"), true)
	if err != nil {
		t.Fatal(err)
	}
	return ctl, func() {
		err := ctl.Close()
		if err != nil {
			t.Log("unable to close keyring", err)
		}
		err = os.RemoveAll(dir)
		if err != nil {
			t.Log("unable to cleanup temp dir", dir)
		}
	}
}

// AcquirePopulatedKeyring is like AcquireKeyring but calls loader before
// returning, usually to register users.
func AcquirePopulatedKeyring(ctx context.Context, t TestLog, name string, loader func(context.Context, *keyring.Control) error) (*keyring.Control, func()) {
	ctl, cleanup := AcquireKeyring(ctx, t, name)
	if loader != nil {
		if err := loader(ctx, ctl); err != nil {
			cleanup()
			t.Fatal(err)
		}
	}
	return ctl, cleanup
}
