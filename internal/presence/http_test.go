package presence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestHTTPGatewayPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/presence" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"present": ["user-a", "user-b"]}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(Config{BaseURL: srv.URL}, zerolog.Nop())
	present, err := gw.Present(context.Background())
	if err != nil {
		t.Fatalf("Present failed: %v", err)
	}
	if len(present) != 2 || present[0] != "user-a" || present[1] != "user-b" {
		t.Errorf("unexpected present set: %v", present)
	}
}

func TestHTTPGatewayMembersError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no guild", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gw := NewHTTPGateway(Config{BaseURL: srv.URL}, zerolog.Nop())
	if _, err := gw.Members(context.Background()); err == nil {
		t.Error("expected error for 503 response")
	}
}

func TestHTTPGatewayDisplayNameCaching(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/members/user-a" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"display_name": "Alice"}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(Config{BaseURL: srv.URL, NameCacheTTL: time.Minute}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		name, err := gw.DisplayName(context.Background(), "user-a")
		if err != nil {
			t.Fatalf("DisplayName failed: %v", err)
		}
		if name != "Alice" {
			t.Errorf("expected Alice, got %s", name)
		}
	}

	if hits != 1 {
		t.Errorf("expected 1 bridge hit with caching, got %d", hits)
	}
}
