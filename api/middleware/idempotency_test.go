package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttl  map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key], _ = value.(string)
	f.ttl[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

const confirmPath = "/api/v1/bookings/7f1c0c9e-9b9a-4a55-8d9a-3c1c1b0f2a11/confirm"

func post(target, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestRouteTTL(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{http.MethodPost, confirmPath, criticalIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/payments/verify/BK-ref-1", criticalIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/jobs/42/unlock", criticalIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/bookings", defaultIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/bookings/1/quote", defaultIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/messages/1/read", 0, false},
		{http.MethodPost, "/api/v1/bookings/1/2/confirm", 0, false},
		{http.MethodGet, "/api/v1/bookings", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			ttl, ok := routeTTL(tt.method, tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, ttl)
		})
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	called := false
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, post(confirmPath, "", `{}`))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.False(t, called)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"status":"pending"}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, post("/api/v1/bookings", "abc", `{"service_title":"Plumbing"}`))
	require.Equal(t, http.StatusCreated, first.Code)

	again := httptest.NewRecorder()
	handler.ServeHTTP(again, post("/api/v1/bookings", "abc", `{"service_title":"Plumbing"}`))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, again.Code)
	assert.Equal(t, "application/json", again.Header().Get("Content-Type"))
	assert.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, first.Body.String(), again.Body.String())
	for _, ttl := range store.ttl {
		assert.Equal(t, defaultIdempotencyTTL, ttl)
	}
}

func TestIdempotencyRejectsBodyChange(t *testing.T) {
	handler := Idempotency(newFakeStore(), nil)(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), post(confirmPath, "xyz", `{"a":1}`))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, post(confirmPath, "xyz", `{"a":2}`))

	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, resp))
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	var inner *httptest.ResponseRecorder
	var handler http.Handler
	handler = Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// a duplicate arrives while the first is still being handled
		inner = httptest.NewRecorder()
		handler.ServeHTTP(inner, post(confirmPath, "dup", `{}`))
		w.WriteHeader(http.StatusOK)
	}))

	outer := httptest.NewRecorder()
	handler.ServeHTTP(outer, post(confirmPath, "dup", `{}`))

	assert.Equal(t, http.StatusOK, outer.Code)
	require.NotNil(t, inner)
	assert.Equal(t, http.StatusConflict, inner.Code)
	assert.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, inner))
}

func TestIdempotencyDoesNotStoreServerErrors(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), post(confirmPath, "retry", `{}`))
	assert.Empty(t, store.data)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, post(confirmPath, "retry", `{}`))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyScopesKeysPerUser(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, user := range []string{"user-a", "user-b"} {
		req := post("/api/v1/bookings", "shared", `{}`)
		handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(WithUserID(req.Context(), user)))
	}

	assert.Equal(t, 2, calls)
	assert.Len(t, store.data, 2)
}

func TestIdempotencyIgnoresUnguardedRoutes(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, store.data)
}
