package serve

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/andrebq/latchkey/auth"
	"github.com/andrebq/latchkey/auth/api"
	"github.com/andrebq/latchkey/internal/cmdflags"
	"github.com/andrebq/latchkey/internal/httpserver"
	"github.com/andrebq/latchkey/internal/logutil"
	"github.com/andrebq/latchkey/internal/upstream"
	"github.com/andrebq/latchkey/keyring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func Cmd() *cli.Command {
	var dbFile string
	var rememberKeyEnvVar string
	bindAddr := "localhost:7007"
	tokenValidity := auth.DefaultTokenValidity
	sessionTTL := auth.DefaultSessionTTL
	purgeInterval := time.Hour
	protect := cli.NewStringSlice("/")
	var insecureCookies bool
	var exposeMetrics bool
	sessionCookie := api.DefaultSessionCookie
	realmName := "latchkey"
	var upstreamEndpoint string
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the latchkey server",
		Flags: []cli.Flag{
			cmdflags.Keyring(&dbFile),
			cmdflags.RememberKeyEnvVar(&rememberKeyEnvVar),
			&cli.StringFlag{
				Name:        "bind",
				Usage:       "Address to bind for incoming request",
				EnvVars:     []string{"LATCHKEY_BIND"},
				Destination: &bindAddr,
				Value:       bindAddr,
			},
			&cli.DurationFlag{
				Name:        "token-validity",
				Usage:       "How long a remember-me token stays valid without use",
				EnvVars:     []string{"LATCHKEY_TOKEN_VALIDITY"},
				Destination: &tokenValidity,
				Value:       tokenValidity,
			},
			&cli.DurationFlag{
				Name:        "session-ttl",
				Usage:       "Idle time after which a session expires",
				EnvVars:     []string{"LATCHKEY_SESSION_TTL"},
				Destination: &sessionTTL,
				Value:       sessionTTL,
			},
			&cli.StringSliceFlag{
				Name:        "protect",
				Usage:       "Path that requires authentication, a trailing /** protects the whole subtree",
				EnvVars:     []string{"LATCHKEY_PROTECT"},
				Destination: protect,
				Value:       protect,
			},
			&cli.BoolFlag{
				Name:        "insecure-cookies",
				Usage:       "Do not set the Secure attribute on cookies (plain http deployments)",
				EnvVars:     []string{"LATCHKEY_INSECURE_COOKIES"},
				Destination: &insecureCookies,
			},
			&cli.StringFlag{
				Name:        "session-cookie",
				Usage:       "Name of the session cookie",
				EnvVars:     []string{"LATCHKEY_SESSION_COOKIE"},
				Destination: &sessionCookie,
				Value:       sessionCookie,
			},
			&cli.StringFlag{
				Name:        "realm",
				Usage:       "Realm sent in the basic auth challenge",
				EnvVars:     []string{"LATCHKEY_REALM"},
				Destination: &realmName,
				Value:       realmName,
			},
			&cli.StringFlag{
				Name:        "upstream",
				Usage:       "Base endpoint that receives every request latchkey does not serve itself",
				EnvVars:     []string{"LATCHKEY_UPSTREAM"},
				Destination: &upstreamEndpoint,
			},
			&cli.BoolFlag{
				Name:        "metrics",
				Usage:       "Expose prometheus metrics at /metrics",
				EnvVars:     []string{"LATCHKEY_METRICS"},
				Destination: &exposeMetrics,
			},
			&cli.DurationFlag{
				Name:        "purge-interval",
				Usage:       "How often expired remember-me tokens are removed, 0 disables it",
				EnvVars:     []string{"LATCHKEY_PURGE_INTERVAL"},
				Destination: &purgeInterval,
				Value:       purgeInterval,
			},
		},
		Action: func(ctx *cli.Context) error {
			keyfn, err := auth.KeyFNFromEnv(rememberKeyEnvVar, os.Getenv, os.Setenv)
			if err != nil {
				return err
			}
			ring, err := keyring.Open(ctx.Context, dbFile, true)
			if err != nil {
				return err
			}
			defer ring.Close()
			sessions, err := auth.NewSessionRegistry(ctx.Context, sessionTTL)
			if err != nil {
				return err
			}
			defer sessions.Close()

			tokens := auth.NewTokenStore(ring, keyfn, tokenValidity)
			manager := auth.NewManager(auth.NewVerifier(ring, auth.DefaultHasher()), tokens, sessions)

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			realm := api.NewRealm(manager, api.Config{
				Realm:          realmName,
				SessionCookie:  sessionCookie,
				InsecureCookie: insecureCookies,
				Policy:         api.NewPolicy(protect.Value()...),
			}, api.NewMetrics(reg))

			var fallback http.Handler
			if upstreamEndpoint != "" {
				target, err := upstream.Parse(upstreamEndpoint)
				if err != nil {
					return err
				}
				fallback, err = upstream.AsHandler(ctx.Context, target)
				if err != nil {
					return err
				}
			}
			var metrics http.Handler
			if exposeMetrics {
				metrics = api.MetricsHandler(reg)
			}

			group, groupCtx := errgroup.WithContext(ctx.Context)
			group.Go(func() error {
				return httpserver.Serve(groupCtx, bindAddr, api.AsHandler(realm, fallback, metrics))
			})
			if purgeInterval > 0 {
				group.Go(func() error {
					purgeLoop(groupCtx, tokens, purgeInterval)
					return nil
				})
			}
			return group.Wait()
		},
	}
}

func purgeLoop(ctx context.Context, tokens *auth.TokenStore, interval time.Duration) {
	log := logutil.GetOrDefault(ctx).With().Str("task", "purge").Logger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := tokens.Purge(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Unable to purge expired remember-me tokens")
				continue
			}
			log.Debug().Int("purged", n).Msg("Expired remember-me tokens removed")
		}
	}
}
