package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/servicelink/servicelink-backend/api/responses"
	pkgerrors "github.com/servicelink/servicelink-backend/pkg/errors"
	"github.com/servicelink/servicelink-backend/pkg/logger"
	pkgredis "github.com/servicelink/servicelink-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	defaultIdempotencyTTL = 24 * time.Hour
	// Money and lifecycle moves are replay protected for a week.
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can block its key.
	inFlightTTL = time.Minute
)

// idempotentRoutes lists the POST paths that require an Idempotency-Key.
// Patterns use path.Match, so * stands for one id segment.
var idempotentRoutes = []struct {
	pattern string
	ttl     time.Duration
}{
	{"/api/v1/bookings", defaultIdempotencyTTL},
	{"/api/v1/bookings/*/quote", defaultIdempotencyTTL},
	{"/api/v1/bookings/*/start", defaultIdempotencyTTL},
	{"/api/v1/jobs", defaultIdempotencyTTL},
	{"/api/v1/providers", defaultIdempotencyTTL},
	{"/api/v1/messages", defaultIdempotencyTTL},
	{"/api/v1/bookings/*/confirm", criticalIdempotencyTTL},
	{"/api/v1/bookings/*/complete", criticalIdempotencyTTL},
	{"/api/v1/bookings/*/cancel", criticalIdempotencyTTL},
	{"/api/v1/bookings/*/dispute", criticalIdempotencyTTL},
	{"/api/v1/payments/verify/*", criticalIdempotencyTTL},
	{"/api/v1/jobs/*/unlock", criticalIdempotencyTTL},
	{"/api/v1/subscriptions/upgrade", criticalIdempotencyTTL},
	{"/api/v1/subscriptions/downgrade", criticalIdempotencyTTL},
}

// storedResponse is what Redis holds under an idempotency key. A record
// with InFlight set marks a request that has not finished yet.
type storedResponse struct {
	Fingerprint string `json:"fingerprint"`
	InFlight    bool   `json:"in_flight,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// the routes above. Keys are scoped per caller, method and path. Server
// errors are not stored so the client can retry with the same key.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, guarded := routeTTL(r.Method, requestPath(r))
			if !guarded || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+requestPath(r), clientKey)
			fingerprint := fingerprintBody(body)

			claimed, err := claim(ctx, store, key, fingerprint)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replay(ctx, store, key, fingerprint, logg, w)
				return
			}

			var captured bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if err := store.Del(ctx, key); err != nil {
				logWarn(ctx, logg, "release idempotency claim", err)
			}
			if status >= http.StatusInternalServerError {
				return
			}
			final := storedResponse{
				Fingerprint: fingerprint,
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        captured.Bytes(),
			}
			if err := save(ctx, store, key, final, ttl); err != nil {
				logWarn(ctx, logg, "store idempotent response", err)
			}
		})
	}
}

// claim reserves key for this request. False means another request with the
// same key has already claimed or completed it.
func claim(ctx context.Context, store pkgredis.IdempotencyStore, key, fingerprint string) (bool, error) {
	payload, err := json.Marshal(storedResponse{Fingerprint: fingerprint, InFlight: true})
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, string(payload), inFlightTTL)
}

func save(ctx context.Context, store pkgredis.IdempotencyStore, key string, rec storedResponse, ttl time.Duration) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = store.SetNX(ctx, key, string(payload), ttl)
	return err
}

func replay(ctx context.Context, store pkgredis.IdempotencyStore, key, fingerprint string, logg *logger.Logger, w http.ResponseWriter) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// the first request failed and released its claim between our SetNX and Get
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is being retried, try again"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotent response"))
		return
	}

	var rec storedResponse
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotent response"))
		return
	}
	switch {
	case rec.Fingerprint != fingerprint:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request body"))
	case rec.InFlight:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is still in progress"))
	default:
		if rec.ContentType != "" {
			w.Header().Set("Content-Type", rec.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(rec.Status)
		_, _ = w.Write(rec.Body)
	}
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// requestPath is matched instead of the chi route pattern, which subrouters
// have not resolved yet when this middleware runs.
func requestPath(r *http.Request) string {
	p := strings.TrimSuffix(r.URL.Path, "/")
	if p == "" {
		return "/"
	}
	return p
}

func routeTTL(method, requestPath string) (time.Duration, bool) {
	if method != http.MethodPost {
		return 0, false
	}
	for _, route := range idempotentRoutes {
		if ok, _ := path.Match(route.pattern, requestPath); ok {
			return route.ttl, true
		}
	}
	return 0, false
}

func logWarn(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil {
		return
	}
	logg.Warn(logg.WithField(ctx, "error", err.Error()), msg)
}
