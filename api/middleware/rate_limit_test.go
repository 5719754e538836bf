package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type memoryCounter struct {
	counts map[string]int64
	err    error
}

func newMemoryCounter() *memoryCounter {
	return &memoryCounter{counts: map[string]int64{}}
}

func (m *memoryCounter) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.counts[key]++
	return m.counts[key], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitBlocksAfterIPLimit(t *testing.T) {
	store := newMemoryCounter()
	policy := NewRateLimitPolicy("webhook", time.Minute, 2, 0)
	handler := RateLimit(policy, store, nil)(okHandler())

	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("expected first two requests allowed, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third request, got %d", codes[2])
	}
	if store.counts["rl:ip:webhook:10.0.0.1"] != 3 {
		t.Fatalf("unexpected counters %v", store.counts)
	}
}

func TestRateLimitCountsPerUser(t *testing.T) {
	store := newMemoryCounter()
	policy := NewRateLimitPolicy("messages", time.Minute, 0, 1)
	handler := RateLimit(policy, store, nil)(okHandler())

	send := func(userID string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", nil)
		req = req.WithContext(WithUserID(req.Context(), userID))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := send("user-a"); code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}
	if code := send("user-b"); code != http.StatusOK {
		t.Fatalf("expected other user unaffected, got %d", code)
	}
	if code := send("user-a"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", code)
	}
}

func TestRateLimitStoreFailure(t *testing.T) {
	store := newMemoryCounter()
	store.err = errors.New("redis down")
	handler := RateLimit(NewRateLimitPolicy("webhook", time.Minute, 5, 0), store, nil)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("noop", 0, 0, 0), nil, nil)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.2")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("unexpected ip %q", got)
	}
}
