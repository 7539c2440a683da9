package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]bool)}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = true
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if f.keys[k] {
			delete(f.keys, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func do(t *testing.T, h http.Handler, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_ReplayRejected(t *testing.T) {
	store := NewStore(newFakeRedis(), time.Minute)
	calls := 0
	h := store.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	first := do(t, h, "k-1")
	require.Equal(t, http.StatusCreated, first.Code)

	replay := do(t, h, "k-1")
	assert.Equal(t, http.StatusConflict, replay.Code)
	assert.Equal(t, 1, calls)
}

func TestMiddleware_NoHeaderPassesThrough(t *testing.T) {
	store := NewStore(newFakeRedis(), time.Minute)
	calls := 0
	h := store.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	do(t, h, "")
	do(t, h, "")
	assert.Equal(t, 2, calls)
}

func TestMiddleware_FailedAttemptDoesNotConsumeKey(t *testing.T) {
	store := NewStore(newFakeRedis(), time.Minute)
	attempts := 0
	h := store.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "stock changed, retry", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := do(t, h, "k-retry")
	require.Equal(t, http.StatusConflict, first.Code)

	// The failed attempt released the key, so the retry runs the handler
	// again instead of being treated as a duplicate.
	retry := do(t, h, "k-retry")
	assert.Equal(t, http.StatusCreated, retry.Code)
	assert.Equal(t, 2, attempts)

	replay := do(t, h, "k-retry")
	assert.Equal(t, http.StatusConflict, replay.Code)
	assert.Equal(t, 2, attempts)
}

func TestMiddleware_ServerErrorReleasesKey(t *testing.T) {
	store := NewStore(newFakeRedis(), time.Minute)
	attempts := 0
	h := store.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	require.Equal(t, http.StatusInternalServerError, do(t, h, "k-err").Code)
	assert.Equal(t, http.StatusCreated, do(t, h, "k-err").Code)
}
