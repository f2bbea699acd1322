// Package idempotency lets clients retry POST /documents without registering the same
// document twice.
//
// A client sends an Idempotency-Key header. The first request with a given (caller, key)
// reserves the key, runs, and stores its response together with a digest of the request.
// Later requests with the same key replay the stored response when the digest matches and
// are rejected with a conflict when it does not.
package idempotency

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/blake2b"

	id "notary/pkg/domain"
)

// HeaderKey is the request header carrying the client's key.
const HeaderKey = "Idempotency-Key"

// HeaderReplayed marks responses served from a stored record.
const HeaderReplayed = "Idempotent-Replayed"

const MaxKeyLength = 255

// ErrInvalidRecord is returned by stores when a stored value cannot be decoded.
var ErrInvalidRecord = errors.New("invalid idempotency record")

// Record is what a store keeps per key. A pending record has no response yet.
type Record struct {
	Digest      string `json:"digest"`
	Pending     bool   `json:"pending"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Store persists records with a TTL.
type Store interface {
	// Reserve stores a pending record for key unless one exists. When a record already
	// exists it is returned with reserved=false.
	Reserve(ctx context.Context, key, digest string, ttl time.Duration) (existing *Record, reserved bool, err error)
	// Complete replaces the pending record with the final response.
	Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error
	// Release drops a reservation so the client may retry.
	Release(ctx context.Context, key string) error
}

// StorageKey scopes a client key to the caller and endpoint. Different callers may use the
// same key without colliding.
func StorageKey(caller id.Identity, endpoint, clientKey string) string {
	return digest([]byte(caller.String()), []byte(endpoint), []byte(clientKey))
}

// RequestDigest fingerprints a request so a reused key with a different body is detected.
func RequestDigest(method, path string, body []byte) string {
	return digest([]byte(method), []byte(path), body)
}

func digest(parts ...[]byte) string {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		_, _ = h.Write(p)
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
