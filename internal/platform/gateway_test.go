package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestGateway(t *testing.T, h http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	g, err := NewGateway(srv.URL+"/", "secret", time.Second)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	return g
}

func TestGatewayRestrict(t *testing.T) {
	var got callRequest
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/restrict" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	until := time.Unix(1_700_000_600, 0)
	if err := g.Restrict(context.Background(), -100, 42, until); err != nil {
		t.Fatalf("Restrict: %v", err)
	}
	if got.ChatID != -100 || got.UserID != 42 || got.Until != until.Unix() {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestGatewayErrors(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/ban":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error":"flood wait"}`))
		case "/v1/unban":
			_, _ = w.Write([]byte(`{"ok":false,"error":"not enough rights"}`))
		}
	})
	err := g.Ban(context.Background(), 1, 2)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests || apiErr.Message != "flood wait" {
		t.Fatalf("unexpected error %v", err)
	}
	if err := g.Unban(context.Background(), 1, 2); !errors.As(err, &apiErr) {
		t.Fatalf("ok=false should be an APIError, got %v", err)
	}
}

func TestGatewayResolveUser(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var req callRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Handle == "alice" {
			_, _ = w.Write([]byte(`{"ok":true,"user_id":77}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	id, err := g.ResolveUser(context.Background(), "@alice")
	if err != nil || id != 77 {
		t.Fatalf("ResolveUser: id=%d err=%v", id, err)
	}
	if _, err := g.ResolveUser(context.Background(), "@bob"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := g.ResolveUser(context.Background(), "  "); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("empty handle: got %v", err)
	}
}

func TestNewGatewayRequiresURL(t *testing.T) {
	if _, err := NewGateway(" ", "", 0); err == nil {
		t.Fatal("expected error for empty url")
	}
}

type countingClient struct {
	DryRun
	calls int
	err   error
}

func (c *countingClient) Ban(context.Context, int64, int64) error {
	c.calls++
	return c.err
}

func TestLimitedPassesThrough(t *testing.T) {
	inner := &countingClient{err: errors.New("boom")}
	l := NewLimited(inner, 0, 0)
	if err := l.Ban(context.Background(), 1, 2); err == nil || inner.calls != 1 {
		t.Fatalf("expected wrapped call to run and fail, calls=%d err=%v", inner.calls, err)
	}
}

func TestLimitedHonoursContext(t *testing.T) {
	inner := &countingClient{}
	l := NewLimited(inner, 0.001, 1)
	if err := l.Ban(context.Background(), 1, 2); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Ban(ctx, 1, 2); err == nil {
		t.Fatal("second call should be throttled past the deadline")
	}
	if inner.calls != 1 {
		t.Fatalf("throttled call must not reach the client, calls=%d", inner.calls)
	}
}

func TestDryRunResolve(t *testing.T) {
	if id, err := (DryRun{}).ResolveUser(context.Background(), "@123"); err != nil || id != 123 {
		t.Fatalf("numeric handle: id=%d err=%v", id, err)
	}
	if _, err := (DryRun{}).ResolveUser(context.Background(), "@name"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
