package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/andrebq/latchkey/auth"
)

const (
	DefaultSessionCookie  = "LATCHKEY_SESSION"
	DefaultRememberCookie = "remember-me"
)

var (
	errMalformedRememberMe = errors.New("malformed remember-me cookie")
)

// encodeRememberMe returns base64(series:value)
func encodeRememberMe(p auth.TokenPair) string {
	return base64.StdEncoding.EncodeToString([]byte(p.Series + ":" + p.Value))
}

func decodeRememberMe(v string) (auth.TokenPair, error) {
	buf, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return auth.TokenPair{}, errMalformedRememberMe
	}
	series, value, ok := strings.Cut(string(buf), ":")
	if !ok || series == "" || value == "" {
		return auth.TokenPair{}, errMalformedRememberMe
	}
	return auth.TokenPair{Series: series, Value: value}, nil
}

func (s *SecurityRealm) sessionID(r *http.Request) string {
	c, err := r.Cookie(s.cfg.SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// rememberMe returns the pair presented by the client, malformed is true
// when a cookie was sent but could not be decoded.
func (s *SecurityRealm) rememberMe(r *http.Request) (pair *auth.TokenPair, malformed bool) {
	c, err := r.Cookie(s.cfg.RememberCookie)
	if err != nil || c.Value == "" {
		return nil, false
	}
	p, err := decodeRememberMe(c.Value)
	if err != nil {
		return nil, true
	}
	return &p, false
}

// writeArtifacts sets or expires cookies as requested by the outcome
func (s *SecurityRealm) writeArtifacts(w http.ResponseWriter, out auth.Outcome) {
	switch {
	case out.SessionID != "":
		http.SetCookie(w, s.cookie(s.cfg.SessionCookie, out.SessionID, 0))
	case out.ClearSession:
		http.SetCookie(w, s.cookie(s.cfg.SessionCookie, "", -1))
	}
	switch {
	case out.Token != nil:
		http.SetCookie(w, s.cookie(s.cfg.RememberCookie, encodeRememberMe(*out.Token), int(s.tokenValidity/time.Second)))
	case out.ClearToken:
		http.SetCookie(w, s.cookie(s.cfg.RememberCookie, "", -1))
	}
}

func (s *SecurityRealm) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !s.cfg.InsecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}
