package users

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andrebq/latchkey/auth"
	"github.com/andrebq/latchkey/internal/cmdflags"
	"github.com/andrebq/latchkey/keyring"
	"github.com/urfave/cli/v2"
)

func Cmd() *cli.Command {
	var ring *keyring.Control
	var dbFile string
	return &cli.Command{
		Name:  "users",
		Usage: "Manage the users stored in a keyring",
		Flags: []cli.Flag{
			cmdflags.Keyring(&dbFile),
		},
		Before: func(ctx *cli.Context) error {
			var err error
			ring, err = keyring.Open(ctx.Context, dbFile, true)
			return err
		},
		After: func(ctx *cli.Context) error {
			if ring == nil {
				return nil
			}
			return ring.Close()
		},
		Subcommands: []*cli.Command{
			addCmd(&ring),
			enableCmd(&ring, "enable", true),
			enableCmd(&ring, "disable", false),
			showCmd(&ring),
		},
	}
}

func usernameFlag(out *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "username",
		Aliases:     []string{"u", "user"},
		Usage:       "Name of the user",
		Destination: out,
		Required:    true,
	}
}

func addCmd(ring **keyring.Control) *cli.Command {
	var username string
	authorities := cli.NewStringSlice("ROLE_USER")
	var disabled bool
	return &cli.Command{
		Name:  "add",
		Usage: "Create or replace a user (password is read from stdin)",
		Flags: []cli.Flag{
			usernameFlag(&username),
			&cli.StringSliceFlag{
				Name:        "authority",
				Aliases:     []string{"a"},
				Usage:       "Authority granted to the user, can be repeated",
				Destination: authorities,
				Value:       authorities,
			},
			&cli.BoolFlag{
				Name:        "disabled",
				Usage:       "Create the user disabled",
				Destination: &disabled,
			},
		},
		Action: func(ctx *cli.Context) error {
			return addUser(ctx.Context, *ring, auth.DefaultHasher(), keyring.User{
				Username:    username,
				Enabled:     !disabled,
				Authorities: authorities.Value(),
			}, os.Stdin)
		},
	}
}

func addUser(ctx context.Context, ring *keyring.Control, hasher *auth.Hasher, u keyring.User, stdin io.Reader) error {
	if len(strings.TrimSpace(u.Username)) == 0 {
		return errors.New("missing username")
	}
	sc := bufio.NewScanner(stdin)
	if !sc.Scan() {
		if sc.Err() != nil {
			return sc.Err()
		}
		return errors.New("missing password from stdin")
	}
	password := strings.TrimSpace(sc.Text())
	if len(password) == 0 {
		return errors.New("missing password from stdin")
	}
	var err error
	u.Password, err = hasher.Hash(password)
	if err != nil {
		return err
	}
	return ring.PutUser(ctx, u)
}

func enableCmd(ring **keyring.Control, name string, enabled bool) *cli.Command {
	var username string
	usage := "Allow the user to login again"
	if !enabled {
		usage = "Block the user and revoke its remember-me tokens"
	}
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			usernameFlag(&username),
		},
		Action: func(ctx *cli.Context) error {
			return setEnabled(ctx.Context, *ring, username, enabled)
		},
	}
}

func setEnabled(ctx context.Context, ring *keyring.Control, username string, enabled bool) error {
	err := ring.SetEnabled(ctx, username, enabled)
	if err != nil || enabled {
		return err
	}
	_, err = ring.DeleteUserLogins(ctx, username)
	return err
}

func showCmd(ring **keyring.Control) *cli.Command {
	var username string
	return &cli.Command{
		Name:  "show",
		Usage: "Print the user state and authorities",
		Flags: []cli.Flag{
			usernameFlag(&username),
		},
		Action: func(ctx *cli.Context) error {
			return showUser(ctx.Context, *ring, username, ctx.App.Writer)
		},
	}
}

func showUser(ctx context.Context, ring *keyring.Control, username string, out io.Writer) error {
	u, err := ring.FindUser(ctx, username)
	if err != nil {
		return err
	}
	state := "enabled"
	if !u.Enabled {
		state = "disabled"
	}
	_, err = fmt.Fprintf(out, "%v\t%v\t%v\n", u.Username, state, strings.Join(u.Authorities, ","))
	return err
}
