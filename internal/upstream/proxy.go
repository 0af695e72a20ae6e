package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/andrebq/latchkey/internal/logutil"
)

type (
	// InvalidTarget is returned when the upstream url cannot be proxied to
	InvalidTarget struct {
		Target string
		Reason string
	}
)

func (i InvalidTarget) Error() string {
	return fmt.Sprintf("upstream %v cannot be used: %v", i.Target, i.Reason)
}

func (i InvalidTarget) Is(target error) bool {
	_, ok := target.(InvalidTarget)
	return ok
}

// Parse validates raw as an upstream address, only absolute http(s) urls
// are accepted.
func Parse(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, InvalidTarget{Target: raw, Reason: err.Error()}
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return nil, InvalidTarget{Target: raw, Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return nil, InvalidTarget{Target: raw, Reason: "missing host"}
	}
	return u, nil
}

// AsHandler forwards every request to target. Identity headers are set by
// the caller, see api.ForwardPrincipal.
func AsHandler(ctx context.Context, target *url.URL) (http.Handler, error) {
	if target == nil {
		return nil, InvalidTarget{Reason: "missing url"}
	}
	if _, err := Parse(target.String()); err != nil {
		return nil, err
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log := logutil.GetOrDefault(r.Context())
		log.Error().Err(err).Str("upstream", target.Host).Msg("Upstream request failed")
		w.WriteHeader(http.StatusBadGateway)
	}
	log := logutil.GetOrDefault(ctx)
	log.Debug().Str("upstream", target.String()).Msg("Proxying unrouted requests")
	return proxy, nil
}
