package idempotency

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const HeaderKey = "Idempotency-Key"

// Cmdable is the slice of the redis client the store needs.
type Cmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store deduplicates requests via redis SET NX with a TTL. The first caller
// that claims a key wins; replays within the TTL are rejected.
type Store struct {
	rdb Cmdable
	ttl time.Duration
}

func NewStore(rdb Cmdable, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, "idem:"+key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Release frees a claimed key so a retry with the same key can go through.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, "idem:"+key).Err()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware rejects a request whose Idempotency-Key header was already used.
// Requests without the header pass through untouched. The key is claimed up
// front so concurrent duplicates cannot both run, but only a successful
// attempt keeps it: a failed request releases the key so the client can retry
// with the same one. A redis failure lets the request proceed: dropping
// dedupe beats refusing writes.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderKey)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		seen, err := s.Seen(r.Context(), key)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if seen {
			http.Error(w, "duplicate request", http.StatusConflict)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status >= http.StatusBadRequest {
			_ = s.Release(r.Context(), key)
		}
	})
}
