package testutil

import (
	"net/http"
	"time"

	id "notary/pkg/domain"
	"notary/pkg/requestcontext"
)

// WithCaller marks the request as authenticated by identity, as the bearer auth
// middleware would.
func WithCaller(req *http.Request, identity id.Identity) *http.Request {
	return req.WithContext(requestcontext.WithIdentity(req.Context(), identity))
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
