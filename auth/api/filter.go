package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/andrebq/latchkey/auth"
	"github.com/andrebq/latchkey/internal/logutil"
)

type (
	Config struct {
		Realm          string
		SessionCookie  string
		RememberCookie string
		InsecureCookie bool
		Policy         Policy
	}

	SecurityRealm struct {
		manager       *auth.Manager
		cfg           Config
		metrics       *Metrics
		tokenValidity time.Duration
	}

	// PrincipalHandlerFunc receives the principal computed by the realm
	// for the current request.
	PrincipalHandlerFunc func(w http.ResponseWriter, r *http.Request, p auth.Principal, method auth.State)

	outcomeKey struct{}

	statusWriter struct {
		http.ResponseWriter
		status int
	}
)

func NewRealm(manager *auth.Manager, cfg Config, metrics *Metrics) *SecurityRealm {
	if cfg.Realm == "" {
		cfg.Realm = "latchkey"
	}
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = DefaultSessionCookie
	}
	if cfg.RememberCookie == "" {
		cfg.RememberCookie = DefaultRememberCookie
	}
	return &SecurityRealm{
		manager:       manager,
		cfg:           cfg,
		metrics:       metrics,
		tokenValidity: manager.Tokens().Validity(),
	}
}

// Protect authenticates every request before it reaches sensitive and
// enforces the policy. Requests that pass carry their outcome in the
// context, see WithPrincipal.
func (s *SecurityRealm) Protect(sensitive http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := logutil.GetOrDefault(r.Context()).With().
			Str("http.method", r.Method).
			Str("http.path", r.URL.Path).
			Str("http.remote", r.RemoteAddr).
			Logger()
		ctx := logutil.WithLogger(r.Context(), log)
		r = r.WithContext(ctx)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			log.Info().Int("http.status", sw.status).Dur("http.duration", time.Since(start)).Msg("Request served")
		}()

		if r.Method == http.MethodPost && r.URL.Path == loginPath {
			// login replaces whatever the client carried, see login
			sensitive.ServeHTTP(sw, r)
			return
		}
		out, basic, err := s.authenticate(sw, r)
		if err != nil {
			log.Error().Err(err).Msg("Unable to authenticate request")
			http.Error(sw, "Authentication service unavailable", http.StatusInternalServerError)
			return
		}
		s.metrics.observe(out)
		if basic && out.State == auth.Rejected {
			s.challenge(sw)
			return
		}
		if s.cfg.Policy.Requires(r.URL.Path) && !out.Authenticated() {
			s.entryPoint(sw, r)
			return
		}
		sensitive.ServeHTTP(sw, r.WithContext(context.WithValue(ctx, outcomeKey{}, out)))
	})
}

func (s *SecurityRealm) authenticate(w http.ResponseWriter, r *http.Request) (auth.Outcome, bool, error) {
	ctx := r.Context()
	if user, passwd, ok := r.BasicAuth(); ok {
		out, err := s.manager.AuthenticateBasic(ctx, user, passwd)
		return out, true, err
	}
	pair, malformed := s.rememberMe(r)
	out, err := s.manager.AuthenticateRequest(ctx, s.sessionID(r), pair)
	if err != nil {
		return auth.Outcome{}, false, err
	}
	if malformed {
		out.ClearToken = true
	}
	s.writeArtifacts(w, out)
	return out, false, nil
}

// entryPoint asks the client to authenticate, browsers are sent to the
// login form and everything else gets a Basic challenge.
func (s *SecurityRealm) entryPoint(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	s.challenge(w)
}

func (s *SecurityRealm) challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", s.cfg.Realm))
	http.Error(w, "Invalid credentials", http.StatusUnauthorized)
}

// WithPrincipal adapts h to a plain handler. Requests that were not
// authenticated by the realm are refused.
func WithPrincipal(h PrincipalHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out, ok := outcomeFrom(r.Context())
		if !ok || !out.Authenticated() {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		h(w, r, out.Principal, out.State)
	})
}

// ForwardPrincipal sets X-Forwarded-User to the authenticated user, or
// removes it, before calling next.
func ForwardPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del("X-Forwarded-User")
		if out, ok := outcomeFrom(r.Context()); ok && out.Authenticated() {
			r.Header.Set("X-Forwarded-User", out.Principal.Username)
		}
		next.ServeHTTP(w, r)
	})
}

func outcomeFrom(ctx context.Context) (auth.Outcome, bool) {
	out, ok := ctx.Value(outcomeKey{}).(auth.Outcome)
	return out, ok
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
