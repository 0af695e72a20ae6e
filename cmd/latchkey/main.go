package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/andrebq/latchkey/cmd/latchkey/serve"
	"github.com/andrebq/latchkey/cmd/latchkey/tokens"
	"github.com/andrebq/latchkey/cmd/latchkey/users"
	"github.com/andrebq/latchkey/internal/cmdflags"
	"github.com/andrebq/latchkey/internal/logutil"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	var logLevel, logFormat string
	app := &cli.App{
		Name:  "latchkey",
		Usage: "Form login, basic auth and remember-me tokens in front of your app",
		Flags: []cli.Flag{
			cmdflags.LogLevel(&logLevel),
			cmdflags.LogFormat(&logFormat),
		},
		Before: func(ctx *cli.Context) error {
			logger, err := logutil.New(os.Stderr, logLevel, logFormat)
			if err != nil {
				return err
			}
			log.Logger = logger
			ctx.Context = logutil.WithLogger(ctx.Context, logger)
			return nil
		},
		Commands: []*cli.Command{
			serve.Cmd(),
			users.Cmd(),
			tokens.Cmd(),
		},
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		log.Error().Err(err).Msg("Application failed")
		cancel()
		os.Exit(1)
	}
}
