// Package domain holds the typed identifiers shared across packages.
//
// Identities are opaque comparable tokens: the registry never interprets them beyond
// equality. Parsing happens once at trust boundaries (HTTP, CLI); inside the service the
// typed values are assumed valid.
package domain

import (
	"strconv"
	"strings"

	dErrors "notary/pkg/domain-errors"
)

const (
	maxIdentityLength    = 256
	maxFingerprintLength = 1024
)

// DocumentID is the dense, sequential document identifier. Zero is never assigned.
type DocumentID uint64

func (id DocumentID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// IsZero reports whether the id is unset.
func (id DocumentID) IsZero() bool {
	return id == 0
}

// ParseDocumentID parses a positive decimal document id.
func ParseDocumentID(s string) (DocumentID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "document id is required")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "document id must be a positive integer")
	}
	if v == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "document id must be a positive integer")
	}
	return DocumentID(v), nil
}

// Identity is an opaque account token (address, subject, key id).
type Identity string

func (i Identity) String() string {
	return string(i)
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i == ""
}

// ParseIdentity validates an identity token. The token is kept exactly as given; a
// whitespace-only token is rejected.
func ParseIdentity(s string) (Identity, error) {
	if strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity is required")
	}
	if len(s) > maxIdentityLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity must be at most 256 characters")
	}
	return Identity(s), nil
}

// Fingerprint is an opaque content digest. It is compared for equality and never decoded.
type Fingerprint string

func (f Fingerprint) String() string {
	return string(f)
}

// ParseFingerprint validates a fingerprint without interpreting it. Whitespace is significant
// for equality, so it is not trimmed.
func ParseFingerprint(s string) (Fingerprint, error) {
	if strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "fingerprint is required")
	}
	if len(s) > maxFingerprintLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "fingerprint must be at most 1024 characters")
	}
	return Fingerprint(s), nil
}
