package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/andrebq/latchkey/auth"
	"github.com/andrebq/latchkey/internal/logutil"
	"github.com/julienschmidt/httprouter"
)

type (
	identity struct {
		Username    string   `json:"username"`
		Authorities []string `json:"authorities"`
		Method      string   `json:"method"`
	}
)

const loginPath = "/login"

const loginForm = `<!DOCTYPE html>
<html>
<head><title>Login</title></head>
<body>
<form method="post" action="/login">
<p><label>Username <input type="text" name="username" autofocus></label></p>
<p><label>Password <input type="password" name="password"></label></p>
<p><label><input type="checkbox" name="remember-me"> Remember me</label></p>
<p><button type="submit">Login</button></p>
</form>
</body>
</html>
`

// AsHandler returns the complete latchkey handler: login, logout and
// identity routes behind the realm. Paths without a route go to fallback
// (with X-Forwarded-User set) and metrics is served at /metrics, both may
// be nil.
func AsHandler(realm *SecurityRealm, fallback http.Handler, metrics http.Handler) http.Handler {
	router := httprouter.New()
	router.HandlerFunc("GET", loginPath, serveLoginForm)
	router.HandlerFunc("POST", loginPath, realm.login)
	router.HandlerFunc("POST", "/logout", realm.logout)
	router.Handler("GET", "/", WithPrincipal(serveIdentity))
	if metrics != nil {
		router.Handler("GET", "/metrics", metrics)
	}
	if fallback != nil {
		router.NotFound = ForwardPrincipal(fallback)
	}
	return realm.Protect(router)
}

func serveLoginForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(loginForm))
}

func serveIdentity(w http.ResponseWriter, r *http.Request, p auth.Principal, method auth.State) {
	authorities := p.Authorities
	if authorities == nil {
		authorities = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(identity{
		Username:    p.Username,
		Authorities: authorities,
		Method:      method.String(),
	})
}

func (s *SecurityRealm) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logutil.GetOrDefault(ctx)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid login form", http.StatusBadRequest)
		return
	}
	// never reuse a session id or a remember-me series across a login
	pair, malformed := s.rememberMe(r)
	var series string
	if pair != nil {
		series = pair.Series
	}
	if err := s.discardSessions(r, series); err != nil {
		log.Error().Err(err).Msg("Unable to revoke remember-me token")
		http.Error(w, "Authentication service unavailable", http.StatusInternalServerError)
		return
	}

	out, err := s.manager.Login(ctx, r.PostForm.Get("username"), r.PostForm.Get("password"), rememberMeRequested(r.PostForm.Get("remember-me")))
	if err != nil {
		log.Error().Err(err).Msg("Unable to complete login")
		http.Error(w, "Authentication service unavailable", http.StatusInternalServerError)
		return
	}
	if (pair != nil || malformed) && out.Token == nil {
		out.ClearToken = true
	}
	s.metrics.observe(out)
	s.writeArtifacts(w, out)
	if out.State != auth.SessionAuthenticated {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *SecurityRealm) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var series string
	if pair, _ := s.rememberMe(r); pair != nil {
		series = pair.Series
	}
	s.discardSessions(r, "")
	out, err := s.manager.Logout(ctx, s.sessionID(r), series)
	if err != nil {
		log := logutil.GetOrDefault(ctx)
		log.Error().Err(err).Msg("Unable to revoke remember-me token")
		http.Error(w, "Authentication service unavailable", http.StatusInternalServerError)
		return
	}
	s.writeArtifacts(w, out)
	http.Redirect(w, r, "/", http.StatusFound)
}

// discardSessions destroys the session sent by the client and the one the
// realm may have created for this very request. A non-empty series is
// revoked as well.
func (s *SecurityRealm) discardSessions(r *http.Request, series string) error {
	ids := []string{s.sessionID(r)}
	if out, ok := outcomeFrom(r.Context()); ok {
		ids = append(ids, out.SessionID)
	}
	for _, id := range ids {
		if id != "" {
			s.manager.Logout(r.Context(), id, "")
		}
	}
	if series == "" {
		return nil
	}
	_, err := s.manager.Logout(r.Context(), "", series)
	return err
}

func rememberMeRequested(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "yes", "1":
		return true
	}
	return false
}
