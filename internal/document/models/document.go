package models

import (
	"slices"
	"strings"
	"time"

	id "notary/pkg/domain"
	dErrors "notary/pkg/domain-errors"
)

// MaxTitleLength bounds the title in bytes.
const MaxTitleLength = 512

// Document is the aggregate root of the registry.
//
// Invariants:
//   - ID is assigned once by the store and never reused
//   - Title, Fingerprint, Creator, Signatories, CreatedAt and ExpiresAt are immutable
//   - Signatures keys are a subset of Signatories and are never removed
//   - Status FULLY_SIGNED implies every signatory has signed
//   - Status REVOKED implies IsActive is false
//   - ExpiresAt is after CreatedAt
//   - Once IsActive is false nothing else changes
//
// Signatories may contain the same identity more than once. Every occurrence is indexed
// for that identity, but it signs once and that single signature satisfies every occurrence.
type Document struct {
	ID          id.DocumentID
	Title       string
	Fingerprint id.Fingerprint
	Creator     id.Identity
	Signatories []id.Identity
	Signatures  map[id.Identity]bool
	CreatedAt   time.Time
	ExpiresAt   time.Time
	IsActive    bool
	Status      Status
}

// NewDocument builds a pending document. The ID stays zero until the registry assigns one.
func NewDocument(title string, fingerprint id.Fingerprint, creator id.Identity, signatories []id.Identity, validity time.Duration, now time.Time) (*Document, error) {
	if strings.TrimSpace(title) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "title cannot be empty")
	}
	if len(title) > MaxTitleLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "title must be 512 characters or less")
	}
	if strings.TrimSpace(string(fingerprint)) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "fingerprint cannot be empty")
	}
	if creator.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "creator is required")
	}
	if len(signatories) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "at least one signatory is required")
	}
	for _, s := range signatories {
		if s.IsZero() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "signatory identity cannot be empty")
		}
	}
	if validity <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "validity duration must be positive")
	}

	return &Document{
		Title:       title,
		Fingerprint: fingerprint,
		Creator:     creator,
		Signatories: slices.Clone(signatories),
		Signatures:  make(map[id.Identity]bool),
		CreatedAt:   now,
		ExpiresAt:   now.Add(validity),
		IsActive:    true,
		Status:      StatusPendingSignatures,
	}, nil
}

// IsSignatory reports whether identity appears in the signatory list.
func (d *Document) IsSignatory(identity id.Identity) bool {
	return slices.Contains(d.Signatories, identity)
}

// HasSigned reports whether identity has recorded a signature.
func (d *Document) HasSigned(identity id.Identity) bool {
	return d.Signatures[identity]
}

// IsExpired reports whether now is past ExpiresAt. A document is still usable at exactly ExpiresAt.
func (d *Document) IsExpired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}

// IsActionable combines the revocation flag and the validity window.
func (d *Document) IsActionable(now time.Time) bool {
	return d.IsActive && !d.IsExpired(now)
}

// SignatureCount counts signatory entries that have signed. Recomputed on every call so
// duplicates in Signatories are counted per occurrence.
func (d *Document) SignatureCount() int {
	n := 0
	for _, s := range d.Signatories {
		if d.Signatures[s] {
			n++
		}
	}
	return n
}

// TotalSignatories is the length of the signatory list, duplicates included.
func (d *Document) TotalSignatories() int {
	return len(d.Signatories)
}

// AllSigned reports whether every signatory entry has signed.
func (d *Document) AllSigned() bool {
	for _, s := range d.Signatories {
		if !d.Signatures[s] {
			return false
		}
	}
	return true
}

// EffectiveStatus is the status a reader should act on: EXPIRED when the document is
// still flagged active but its window has passed, otherwise the stored status.
func (d *Document) EffectiveStatus(now time.Time) Status {
	if d.IsActive && d.IsExpired(now) {
		return StatusExpired
	}
	return d.Status
}

// CanSign checks whether identity may sign now. It does not check signatory membership
// or the validity window; the authorization guard owns those.
func (d *Document) CanSign(identity id.Identity) error {
	if d.Signatures[identity] {
		return dErrors.New(dErrors.CodeAlreadySigned, "signatory has already signed this document")
	}
	if d.Status != StatusPendingSignatures {
		return dErrors.New(dErrors.CodeInvalidState, "document is not awaiting signatures")
	}
	return nil
}

// ApplySignature records the signature and completes the document when the set is
// satisfied. It returns true when this signature moved the document to FULLY_SIGNED.
// Call CanSign first to validate the transition.
func (d *Document) ApplySignature(identity id.Identity) (completed bool) {
	if d.Signatures == nil {
		d.Signatures = make(map[id.Identity]bool)
	}
	d.Signatures[identity] = true
	if d.AllSigned() && d.Status.CanTransitionTo(StatusFullySigned) {
		d.Status = StatusFullySigned
		return true
	}
	return false
}

// CanRevoke checks the revocation flag. Expired documents can still be revoked.
func (d *Document) CanRevoke() error {
	if !d.IsActive {
		return dErrors.New(dErrors.CodeAlreadyInactive, "document is already inactive")
	}
	if !d.Status.CanTransitionTo(StatusRevoked) {
		return dErrors.New(dErrors.CodeInvalidState, "document cannot be revoked from its current status")
	}
	return nil
}

// ApplyRevocation deactivates the document. Call CanRevoke first.
func (d *Document) ApplyRevocation() {
	d.IsActive = false
	d.Status = StatusRevoked
}

// Verify compares the expected fingerprint and reports the document's verification view.
func (d *Document) Verify(expected id.Fingerprint, now time.Time) Verification {
	return Verification{
		IsValid:          expected == d.Fingerprint && d.IsActionable(now),
		Status:           d.Status,
		SignatureCount:   d.SignatureCount(),
		TotalSignatories: d.TotalSignatories(),
	}
}

// Clone returns a deep copy so callers never share signatory or signature state with the store.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Signatories = slices.Clone(d.Signatories)
	cp.Signatures = make(map[id.Identity]bool, len(d.Signatures))
	for k, v := range d.Signatures {
		cp.Signatures[k] = v
	}
	return &cp
}

// Signed returns the identities that have signed, in signatory order without duplicates.
func (d *Document) Signed() []id.Identity {
	out := make([]id.Identity, 0, len(d.Signatures))
	seen := make(map[id.Identity]bool, len(d.Signatures))
	for _, s := range d.Signatories {
		if d.Signatures[s] && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Verification is the read-only result of checking a fingerprint against a document.
type Verification struct {
	IsValid          bool
	Status           Status
	SignatureCount   int
	TotalSignatories int
}

// UserIndexEntries lists the identities a new document is indexed under: the creator,
// then every signatory occurrence in input order.
func (d *Document) UserIndexEntries() []id.Identity {
	out := make([]id.Identity, 0, len(d.Signatories)+1)
	out = append(out, d.Creator)
	return append(out, d.Signatories...)
}
