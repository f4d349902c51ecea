package locationIQ

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *LocationIQClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "secret"})
}

func TestGetAddress(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/reverse" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("key") != "secret" || q.Get("lat") != "30.510000" || q.Get("lon") != "114.410000" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"display_name":"Luoyu Road 1037, Wuhan"}`))
	})

	addr, err := c.GetAddress(context.Background(), 114.41, 30.51)
	if err != nil {
		t.Fatalf("GetAddress: %v", err)
	}
	if addr != "Luoyu Road 1037, Wuhan" {
		t.Fatalf("unexpected address %q", addr)
	}
}

func TestGetAddress_BadStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	if _, err := c.GetAddress(context.Background(), 114.41, 30.51); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestGetAddress_ContextCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.GetAddress(ctx, 114.41, 30.51); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGetLocation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "East Lake & Moshan" {
			t.Errorf("query not escaped correctly: %q", got)
		}
		w.Write([]byte(`[{"lat":"30.5432","lon":"114.4105"}]`))
	})

	lon, lat, err := c.GetLocation(context.Background(), "East Lake & Moshan")
	if err != nil {
		t.Fatalf("GetLocation: %v", err)
	}
	if lat != 30.5432 || lon != 114.4105 {
		t.Fatalf("unexpected point %v,%v", lat, lon)
	}
}

func TestGetLocation_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	if _, _, err := c.GetLocation(context.Background(), "nowhere"); !errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("expected ErrLocationNotFound, got %v", err)
	}
}
