package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL = 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can block its key.
	inFlightTTL = 2 * time.Minute
)

// IdempotencyHeader carries the client-chosen key for retried writes.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader marks a response served from the idempotency store.
const ReplayedHeader = "Idempotent-Replayed"

type entryState string

const (
	entryInFlight entryState = "in_flight"
	entryDone     entryState = "done"
)

// idempotencyEntry is the JSON document kept under each key. Body is base64
// on the wire via encoding/json's []byte handling.
type idempotencyEntry struct {
	State       entryState `json:"state"`
	RequestHash string     `json:"request_hash"`
	Status      int        `json:"status,omitempty"`
	ContentType string     `json:"content_type,omitempty"`
	Body        []byte     `json:"body,omitempty"`
}

// Idempotency requires an Idempotency-Key header. The key is reserved before
// the handler runs, so a concurrent duplicate gets 409 instead of a second
// payment. A finished 2xx response is kept for ttl and replayed for the same
// body; anything else releases the key so the client can retry.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			digest := sha256.Sum256(body)
			requestHash := hex.EncodeToString(digest[:])
			key := store.IdempotencyKey(idempotencyScope(r), clientKey)

			reservation, _ := json.Marshal(idempotencyEntry{State: entryInFlight, RequestHash: requestHash})
			reserved, err := store.SetNX(ctx, key, string(reservation), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayEntry(w, r, store, key, requestHash, logg)
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			var captured bytes.Buffer
			ww.Tee(&captured)

			completed := false
			defer func() {
				if !completed {
					if delErr := store.Del(ctx, key); delErr != nil && logg != nil {
						logg.Error(ctx, "release idempotency key", delErr)
					}
				}
			}()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status < 200 || status >= 300 {
				return
			}
			payload, err := json.Marshal(idempotencyEntry{
				State:       entryDone,
				RequestHash: requestHash,
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        captured.Bytes(),
			})
			if err != nil {
				if logg != nil {
					logg.Error(ctx, "encode idempotency entry", err)
				}
				return
			}
			if err := store.Set(ctx, key, string(payload), ttl); err != nil {
				if logg != nil {
					logg.Error(ctx, "persist idempotency entry", err)
				}
				return
			}
			completed = true
		})
	}
}

func replayEntry(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, key, requestHash string, logg *logger.Logger) {
	ctx := r.Context()
	raw, err := store.Get(ctx, key)
	if pkgredis.IsNil(err) {
		// The holder released the key between our SETNX and GET.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this key did not complete, retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency entry"))
		return
	}

	var entry idempotencyEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency entry"))
		return
	}
	switch {
	case entry.RequestHash != requestHash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case entry.State != entryDone:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this key is still in progress"))
	default:
		if entry.ContentType != "" {
			w.Header().Set("Content-Type", entry.ContentType)
		}
		w.Header().Set(ReplayedHeader, "true")
		w.WriteHeader(entry.Status)
		_, _ = w.Write(entry.Body)
	}
}

// idempotencyScope keeps keys private to one shopper and one route.
func idempotencyScope(r *http.Request) string {
	owner := UserIDFromContext(r.Context())
	if owner == "" {
		owner = "guest:" + GuestSessionFromContext(r.Context())
	}
	route := r.URL.Path
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			route = pattern
		}
	}
	return owner + "|" + r.Method + "|" + route
}
