package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/steinfletcher/apitest"
)

func TestProxy(t *testing.T) {
	paths := map[string]int{}
	var forwardedUser string
	upstreamServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths[r.URL.Path]++
		forwardedUser = r.Header.Get("X-Forwarded-User")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstreamServer.Close()

	target, err := Parse(upstreamServer.URL)
	if err != nil {
		t.Fatal(err)
	}
	handler, err := AsHandler(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}

	apitest.Handler(handler).Get("/index.html").Expect(t).Status(http.StatusOK).End()
	apitest.Handler(handler).Get("/app/index.html").Header("X-Forwarded-User", "alice").Expect(t).Status(http.StatusOK).End()

	if paths["/index.html"] != 1 || paths["/app/index.html"] != 1 {
		t.Fatalf("Invalid calls to upstream: %v", paths)
	}
	if forwardedUser != "alice" {
		t.Fatalf("Upstream should have received the forwarded user, got %q", forwardedUser)
	}
}

func TestUpstreamDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	target, _ := url.Parse(server.URL)
	server.Close()

	handler, err := AsHandler(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	apitest.Handler(handler).Get("/").Expect(t).Status(http.StatusBadGateway).End()
}

func TestInvalidTarget(t *testing.T) {
	for _, raw := range []string{"ftp://example.com", "example.com/path", "http://", "::"} {
		if _, err := Parse(raw); !errors.Is(err, InvalidTarget{}) {
			t.Fatalf("Unexpected error for %q: %v", raw, err)
		}
	}
	if _, err := AsHandler(context.Background(), nil); !errors.Is(err, InvalidTarget{}) {
		t.Fatalf("Unexpected error for nil target: %v", err)
	}
}
