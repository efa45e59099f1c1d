package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/loreguard/internal/model"
	"github.com/ppiankov/loreguard/internal/util"
)

func testLoader(respectRobots bool) *Loader {
	return NewLoader(model.FetchConfig{
		Timeout:       5,
		UserAgent:     "loreguard-test/1.0",
		MaxBodyBytes:  1 << 20,
		RespectRobots: respectRobots,
	}, util.ProxyConfig{}, nil)
}

func noSleep(t *testing.T) {
	t.Helper()
	orig := fetchSleepFunc
	fetchSleepFunc = func(d time.Duration) {}
	t.Cleanup(func() { fetchSleepFunc = orig })
}

func TestFetchWithRetry_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "loreguard-test/1.0" {
			t.Errorf("Unexpected User-Agent: %s", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprint(w, "Chapter One. The keep fell.")
	}))
	defer server.Close()

	body, contentType, err := testLoader(false).FetchWithRetry(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if body != "Chapter One. The keep fell." {
		t.Errorf("Unexpected body: %s", body)
	}
	if contentType != "text/plain" {
		t.Errorf("Unexpected content type: %s", contentType)
	}
}

func TestFetchWithRetry_TransientThenSuccess(t *testing.T) {
	noSleep(t)
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, "OK")
	}))
	defer server.Close()

	body, _, err := testLoader(false).FetchWithRetry(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if body != "OK" {
		t.Errorf("Unexpected body: %s", body)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_PermanentFailure(t *testing.T) {
	noSleep(t)
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, _, err := testLoader(false).FetchWithRetry(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error for 404, got nil")
	}
	if got := err.Error(); got != "unexpected status: 404 Not Found" {
		t.Errorf("Unexpected error: %s", got)
	}
	if attempts.Load() != 1 {
		t.Errorf("404 is not retryable, expected 1 attempt, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_AllRetriesExhausted(t *testing.T) {
	noSleep(t)
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, _, err := testLoader(false).FetchWithRetry(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error after all retries exhausted")
	}
	if attempts.Load() != fetchAttempts {
		t.Errorf("Expected %d attempts, got %d", fetchAttempts, attempts.Load())
	}
}

func TestFetchWithRetry_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, strings.Repeat("x", 64))
	}))
	defer server.Close()

	loader := NewLoader(model.FetchConfig{Timeout: 5, MaxBodyBytes: 32}, util.ProxyConfig{}, nil)
	if _, _, err := loader.FetchWithRetry(context.Background(), server.URL); err == nil {
		t.Fatal("Expected error for oversized body")
	}
}

func TestIsRetryableFetchError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"503", &fetchStatusError{StatusCode: 503}, true},
		{"500", &fetchStatusError{StatusCode: 500}, true},
		{"429", &fetchStatusError{StatusCode: 429}, true},
		{"404", &fetchStatusError{StatusCode: 404}, false},
		{"403", &fetchStatusError{StatusCode: 403}, false},
		{"wrapped 502", fmt.Errorf("load: %w", &fetchStatusError{StatusCode: 502}), true},
		{"connection refused", fmt.Errorf("fetch: %w", &url.Error{Op: "Get", URL: "http://example.com", Err: errors.New("connection refused")}), true},
		{"cancelled", fmt.Errorf("fetch: %w", context.Canceled), false},
		{"create request", errors.New("create request: invalid URL"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableFetchError(tt.err); got != tt.retryable {
				t.Errorf("isRetryableFetchError(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestLoad_HTMLReducedToText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, "<html><head><title>x</title></head><body><p>The keep fell.</p><script>var a;</script><p>Nobody escaped.</p></body></html>")
	}))
	defer server.Close()

	text, err := testLoader(true).Load(context.Background(), server.URL+"/novel.html")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if text != "The keep fell.\nNobody escaped." {
		t.Errorf("Unexpected text: %q", text)
	}
}

func TestLoad_RobotsDisallowed(t *testing.T) {
	var fetched atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
			return
		}
		fetched.Add(1)
		_, _ = fmt.Fprint(w, "secret")
	}))
	defer server.Close()

	_, err := testLoader(true).Load(context.Background(), server.URL+"/private/story.txt")
	if !errors.Is(err, ErrDisallowed) {
		t.Fatalf("Expected ErrDisallowed, got %v", err)
	}
	if fetched.Load() != 0 {
		t.Error("Disallowed document was fetched")
	}
}

func TestLoad_Files(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "story.txt")
	page := filepath.Join(dir, "story.html")
	if err := os.WriteFile(plain, []byte("Plain <b>text</b> stays."), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(page, []byte("<div>First</div><div>Second</div>"), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := testLoader(false)

	got, err := loader.Load(context.Background(), plain)
	if err != nil || got != "Plain <b>text</b> stays." {
		t.Errorf("Unexpected plain load: %q, %v", got, err)
	}

	got, err = loader.Load(context.Background(), page)
	if err != nil || got != "First\nSecond" {
		t.Errorf("Unexpected HTML load: %q, %v", got, err)
	}

	if _, err := loader.Load(context.Background(), filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, err := loader.Load(context.Background(), dir); err == nil {
		t.Error("Expected error for directory")
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	if err := os.WriteFile(path, []byte(strings.Repeat("a", 100)), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(model.FetchConfig{MaxBodyBytes: 10}, util.ProxyConfig{}, nil)
	if _, err := loader.Load(context.Background(), path); err == nil {
		t.Error("Expected error for oversized file")
	}
}
