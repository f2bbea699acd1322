package idempotency

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	dErrors "notary/pkg/domain-errors"
	"notary/pkg/platform/httputil"
	"notary/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// Middleware replays stored responses for repeated Idempotency-Key requests. It must run
// after authentication: keys are scoped to the caller. Requests without the header pass
// through untouched.
func Middleware(store Store, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := strings.TrimSpace(r.Header.Get(HeaderKey))
			ctx := r.Context()
			caller := requestcontext.Identity(ctx)
			if clientKey == "" || caller.IsZero() {
				next.ServeHTTP(w, r)
				return
			}
			requestID := requestcontext.RequestID(ctx)

			if len(clientKey) > MaxKeyLength {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Idempotency-Key must be at most 255 characters"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := StorageKey(caller, r.Method+" "+r.URL.Path, clientKey)
			requestDigest := RequestDigest(r.Method, r.URL.Path, body)

			existing, reserved, err := store.Reserve(ctx, key, requestDigest, ttl)
			if err != nil {
				logger.ErrorContext(ctx, "idempotency reserve failed",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "idempotency store unavailable"))
				return
			}

			if !reserved {
				switch {
				case existing.Digest != requestDigest:
					logger.WarnContext(ctx, "idempotency key reused with different request",
						"caller", caller,
						"request_id", requestID,
					)
					httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "idempotency key was used with a different request"))
				case existing.Pending:
					httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "a request with this idempotency key is in progress"))
				default:
					logger.InfoContext(ctx, "idempotent replay",
						"caller", caller,
						"status", existing.Status,
						"request_id", requestID,
					)
					replay(w, existing)
				}
				return
			}

			// Store writes outlive the request: a timed-out or cancelled ctx must not strand the key.
			storeCtx := context.WithoutCancel(ctx)
			release := func() {
				if err := store.Release(storeCtx, key); err != nil {
					logger.ErrorContext(ctx, "idempotency release failed", "error", err, "request_id", requestID)
				}
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				if p := recover(); p != nil {
					release()
					panic(p)
				}
			}()
			next.ServeHTTP(rec, r)

			// Server faults are not cached so the client can retry with the same key.
			if rec.status >= http.StatusInternalServerError {
				release()
				return
			}
			err = store.Complete(storeCtx, key, Record{
				Digest:      requestDigest,
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}, ttl)
			if err != nil {
				logger.ErrorContext(ctx, "idempotency complete failed", "error", err, "request_id", requestID)
			}
		})
	}
}

func replay(w http.ResponseWriter, rec *Record) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

// recorder tees the response to the client and a buffer.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
