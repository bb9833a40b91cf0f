package fxrates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const feed = `{"disclaimer":"x","license":"y","timestamp":1717243200,"base":"USD","rates":{"CNY":7.2,"EUR":0.9}}`

func newServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.URL.Query().Get("app_id") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":true,"status":401,"message":"invalid_app_id"}`))
			return
		}
		_, _ = w.Write([]byte(feed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLatestTriesKeysInOrder(t *testing.T) {
	var calls int32
	srv := newServer(t, &calls)

	table, err := NewClient("bad", "good").WithEndpoint(srv.URL).Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
	if r, ok := table.Rate("CNY"); !ok || !r.Equal(decimal.RequireFromString("7.2")) {
		t.Errorf("CNY = %v, %v", r, ok)
	}
	if r, ok := table.Rate("USD"); !ok || !r.Equal(decimal.NewFromInt(1)) {
		t.Errorf("USD = %v, %v", r, ok)
	}
}

func TestLatestAllKeysFail(t *testing.T) {
	var calls int32
	srv := newServer(t, &calls)

	if _, err := NewClient("bad", "worse").WithEndpoint(srv.URL).Latest(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := NewClient().WithEndpoint(srv.URL).Latest(context.Background()); !errors.Is(err, ErrNoKeys) {
		t.Errorf("err = %v, want ErrNoKeys", err)
	}
}

func TestLatestCaches(t *testing.T) {
	var calls int32
	srv := newServer(t, &calls)

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c := NewClient("good").WithEndpoint(srv.URL).WithTTL(time.Hour)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := c.Latest(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 while fresh", got)
	}

	now = now.Add(2 * time.Hour)
	if _, err := c.Latest(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Invalidate()
	if _, err := c.Latest(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3 after expiry and invalidate", got)
	}
}
