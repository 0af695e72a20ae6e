package tokens

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/andrebq/latchkey/auth"
	"github.com/andrebq/latchkey/internal/cmdflags"
	"github.com/andrebq/latchkey/internal/logutil"
	"github.com/andrebq/latchkey/keyring"
	"github.com/urfave/cli/v2"
)

var (
	errNoKey = errors.New("tokens: maintenance commands never mint tokens")
)

func Cmd() *cli.Command {
	var ring *keyring.Control
	var store *auth.TokenStore
	var dbFile string
	validity := auth.DefaultTokenValidity
	return &cli.Command{
		Name:  "tokens",
		Usage: "Inspect and revoke remember-me tokens",
		Flags: []cli.Flag{
			cmdflags.Keyring(&dbFile),
			&cli.DurationFlag{
				Name:        "token-validity",
				Usage:       "How long a remember-me token stays valid without use",
				EnvVars:     []string{"LATCHKEY_TOKEN_VALIDITY"},
				Destination: &validity,
				Value:       validity,
			},
		},
		Before: func(ctx *cli.Context) error {
			var err error
			ring, err = keyring.Open(ctx.Context, dbFile, true)
			if err != nil {
				return err
			}
			store = newStore(ring, validity)
			return nil
		},
		After: func(ctx *cli.Context) error {
			if ring == nil {
				return nil
			}
			return ring.Close()
		},
		Subcommands: []*cli.Command{
			listCmd(&store),
			revokeCmd(&store),
			purgeCmd(&store),
		},
	}
}

func newStore(ring *keyring.Control, validity time.Duration) *auth.TokenStore {
	return auth.NewTokenStore(ring, func(context.Context) (*auth.Key, error) {
		return nil, errNoKey
	}, validity)
}

func listCmd(store **auth.TokenStore) *cli.Command {
	var username string
	return &cli.Command{
		Name:  "list",
		Usage: "List the remember-me series of a user, most recently used first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "username",
				Aliases:     []string{"u", "user"},
				Usage:       "Owner of the tokens",
				Destination: &username,
				Required:    true,
			},
		},
		Action: func(ctx *cli.Context) error {
			return list(ctx.Context, *store, username, ctx.App.Writer)
		},
	}
}

func list(ctx context.Context, store *auth.TokenStore, username string, out io.Writer) error {
	tokens, err := store.List(ctx, username)
	if err != nil {
		return err
	}
	for _, t := range tokens {
		_, err = fmt.Fprintf(out, "%v\t%v\t%v\n", t.Series, t.Username, t.LastUsed.UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
	}
	return nil
}

func revokeCmd(store **auth.TokenStore) *cli.Command {
	var series string
	var username string
	return &cli.Command{
		Name:  "revoke",
		Usage: "Revoke one series or every series of a user",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "series",
				Aliases:     []string{"s"},
				Usage:       "Series to revoke",
				Destination: &series,
			},
			&cli.StringFlag{
				Name:        "username",
				Aliases:     []string{"u", "user"},
				Usage:       "Revoke every series of this user",
				Destination: &username,
			},
		},
		Action: func(ctx *cli.Context) error {
			return revoke(ctx.Context, *store, series, username)
		},
	}
}

func revoke(ctx context.Context, store *auth.TokenStore, series, username string) error {
	log := logutil.GetOrDefault(ctx)
	switch {
	case series != "" && username != "":
		return errors.New("use either --series or --username")
	case series != "":
		err := store.Revoke(ctx, series)
		if err == nil {
			log.Info().Str("series", series).Msg("Series revoked")
		}
		return err
	case username != "":
		n, err := store.RevokeUser(ctx, username)
		if err == nil {
			log.Info().Str("auth.user", username).Int("revoked", n).Msg("User tokens revoked")
		}
		return err
	}
	return errors.New("missing --series or --username")
}

func purgeCmd(store **auth.TokenStore) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Remove every token not used within the validity window",
		Action: func(ctx *cli.Context) error {
			_, err := purge(ctx.Context, *store)
			return err
		},
	}
}

func purge(ctx context.Context, store *auth.TokenStore) (int, error) {
	n, err := store.Purge(ctx)
	if err != nil {
		return 0, err
	}
	log := logutil.GetOrDefault(ctx)
	log.Info().Int("purged", n).Msg("Expired tokens removed")
	return n, nil
}
