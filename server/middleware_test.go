package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/giygas/rxwriter/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("allowed"))
	})
}

func TestGetTokenCost(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		path         string
		expectedCost int64
	}{
		{"Root page", http.MethodGet, "/", 0},
		{"Favicon", http.MethodGet, "/favicon.ico", 0},
		{"Health endpoint", http.MethodGet, "/health", 5},
		{"Metrics endpoint", http.MethodGet, "/metrics", 5},
		{"Create session", http.MethodPost, "/api/sessions", 20},
		{"Sessions collection GET", http.MethodGet, "/api/sessions", 5},
		{"Search", http.MethodPost, "/api/sessions/abc/search", 50},
		{"Search wrong method", http.MethodGet, "/api/sessions/abc/search", 1},
		{"Preview", http.MethodGet, "/api/sessions/abc/preview", 2},
		{"Field update", http.MethodPatch, "/api/sessions/abc/prescription", 1},
		{"Snapshot", http.MethodGet, "/api/sessions/abc", 1},
		{"Navigation", http.MethodGet, "/api/navigation", 5},
		{"Default endpoint", http.MethodGet, "/unknown", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			cost := getTokenCost(req)

			if cost != tt.expectedCost {
				t.Errorf("Expected cost %d for %s %s, got %d", tt.expectedCost, tt.method, tt.path, cost)
			}
		})
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	// Capacity for two searches, refill too slow to matter during the test
	rl := NewRateLimiter(0.001, 100)
	handler := rl.Middleware(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/sessions/abc/search", nil)
		req.RemoteAddr = "203.0.113.7"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)

		if rr.Header().Get("X-RateLimit-Limit") != "100" {
			t.Errorf("Expected X-RateLimit-Limit 100, got %q", rr.Header().Get("X-RateLimit-Limit"))
		}
		if rr.Code == http.StatusTooManyRequests {
			if rr.Header().Get("Retry-After") == "" {
				t.Error("Expected Retry-After on 429")
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["code"] != float64(429) {
				t.Errorf("Unexpected 429 body: %s", rr.Body.String())
			}
		}
	}

	expected := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range expected {
		if codes[i] != expected[i] {
			t.Errorf("Request %d: expected %d, got %d", i, expected[i], codes[i])
		}
	}

	// Another client has its own bucket
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/abc/search", nil)
	req.RemoteAddr = "203.0.113.8"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected second client to pass, got %d", rr.Code)
	}

	// Free routes still pass for the exhausted client
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected free route to pass, got %d", rr.Code)
	}
}

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter(0.001, 100)

	rl.getBucket("198.51.100.1")
	used := rl.getBucket("198.51.100.2")
	used.TakeAvailable(10)

	if rl.Len() != 2 {
		t.Fatalf("Expected 2 buckets, got %d", rl.Len())
	}

	removed := rl.Prune()
	if removed != 1 {
		t.Errorf("Expected 1 full bucket pruned, got %d", removed)
	}
	if rl.Len() != 1 {
		t.Errorf("Expected 1 bucket left, got %d", rl.Len())
	}
}

func TestRealIPMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		expected   string
	}{
		{"single forwarded IP", "203.0.113.1", "192.168.1.1:12345", "203.0.113.1"},
		{"forwarded chain", "203.0.113.1, 10.0.0.1", "192.168.1.1:12345", "203.0.113.1"},
		{"no header strips port", "", "192.168.1.1:12345", "192.168.1.1"},
		{"no header no port", "", "192.168.1.1", "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			req.RemoteAddr = tt.remoteAddr

			var seen string
			handler := RealIPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = r.RemoteAddr
			}))
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if seen != tt.expected {
				t.Errorf("Expected RemoteAddr %q, got %q", tt.expected, seen)
			}
		})
	}
}

func TestBlockDirectAccessMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		trustProxyOnly bool
		remoteAddr     string
		headers        map[string]string
		expected       int
	}{
		{"disabled lets direct access through", false, "192.168.1.1:12345", nil, http.StatusOK},
		{"localhost IPv4", true, "127.0.0.1:12345", nil, http.StatusOK},
		{"localhost IPv6", true, "[::1]:12345", nil, http.StatusOK},
		{"direct IP", true, "192.168.1.1:12345", nil, http.StatusForbidden},
		{"with X-Forwarded-For", true, "192.168.1.1:12345", map[string]string{"X-Forwarded-For": "203.0.113.1"}, http.StatusOK},
		{"with X-Real-IP", true, "192.168.1.1:12345", map[string]string{"X-Real-IP": "203.0.113.1"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			rr := httptest.NewRecorder()
			BlockDirectAccessMiddleware(tt.trustProxyOnly)(okHandler()).ServeHTTP(rr, req)

			if rr.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, rr.Code)
			}
		})
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	cfg := &config.Config{MaxRequestBody: 64, MaxHeaderSize: 256}

	tests := []struct {
		name     string
		body     string
		header   string
		expected int
	}{
		{"no body", "", "", http.StatusOK},
		{"exactly max size", strings.Repeat("a", 64), "", http.StatusOK},
		{"exceeds max size", strings.Repeat("a", 65), "", http.StatusRequestEntityTooLarge},
		{"large headers", "", strings.Repeat("h", 300), http.StatusRequestHeaderFieldsTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.header != "" {
				req.Header.Set("X-Padding", tt.header)
			}

			rr := httptest.NewRecorder()
			RequestSizeMiddleware(cfg)(okHandler()).ServeHTTP(rr, req)

			if rr.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, rr.Code)
			}
		})
	}
}

func TestRequestSizeMiddlewareCutsUnknownLength(t *testing.T) {
	cfg := &config.Config{MaxRequestBody: 8, MaxHeaderSize: 1024}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 32)))
	req.ContentLength = -1

	var readErr error
	handler := RequestSizeMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		for readErr == nil {
			_, readErr = r.Body.Read(buf)
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var maxErr *http.MaxBytesError
	if !errors.As(readErr, &maxErr) {
		t.Errorf("Expected MaxBytesError, got %v", readErr)
	}
}
