package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewHTTPClient(3, time.Second)
	c.Backoff = time.Millisecond

	body, err := c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestHTTPClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewHTTPClient(3, time.Second)
	c.Backoff = time.Millisecond

	if _, err := c.PostJSON(context.Background(), srv.URL, []byte(`{}`), nil); err == nil {
		t.Fatal("expected error for 401")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("SUBCOST_TEST_A=file\nSUBCOST_TEST_B=file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SUBCOST_TEST_A", "env")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("SUBCOST_TEST_A"); got != "env" {
		t.Errorf("SUBCOST_TEST_A = %q, want env", got)
	}
	if got := os.Getenv("SUBCOST_TEST_B"); got != "file" {
		t.Errorf("SUBCOST_TEST_B = %q, want file", got)
	}
	os.Unsetenv("SUBCOST_TEST_B")
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("SUBCOST_KEYS", " a, ,b ")
	got := GetEnvList("SUBCOST_KEYS")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("GetEnvList = %v, want [a b]", got)
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	open := APIKeyMiddleware(nil)(ok)
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("no keys configured: status = %d", rec.Code)
	}

	guarded := APIKeyMiddleware([]string{"alpha", "beta"})(ok)
	tests := []struct {
		key    string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"alph", http.StatusUnauthorized},
		{"alpha", http.StatusNoContent},
		{"beta", http.StatusNoContent},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(APIKeyHeader, tt.key)
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		if rec.Code != tt.status {
			t.Errorf("key %q: status = %d, want %d", tt.key, rec.Code, tt.status)
		}
	}
}
