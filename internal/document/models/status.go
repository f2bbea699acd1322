package models

import dErrors "notary/pkg/domain-errors"

// Status is the lifecycle status of a document.
type Status string

const (
	// StatusDraft is part of the status set for wire compatibility. No operation sets or checks it.
	StatusDraft             Status = "DRAFT"
	StatusPendingSignatures Status = "PENDING_SIGNATURES"
	StatusFullySigned       Status = "FULLY_SIGNED"
	// StatusExpired is never stored. EffectiveStatus derives it from ExpiresAt at read time.
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
)

// IsValid reports whether s is one of the declared statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingSignatures, StatusFullySigned, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// IsStorable reports whether s may be written to the registry.
func (s Status) IsStorable() bool {
	switch s {
	case StatusPendingSignatures, StatusFullySigned, StatusRevoked:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving from s to target.
//
//	PENDING_SIGNATURES -> FULLY_SIGNED
//	PENDING_SIGNATURES, FULLY_SIGNED -> REVOKED
func (s Status) CanTransitionTo(target Status) bool {
	switch target {
	case StatusFullySigned:
		return s == StatusPendingSignatures
	case StatusRevoked:
		return s == StatusPendingSignatures || s == StatusFullySigned
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus parses a persisted status column. Only statuses the registry writes are accepted.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown document status")
	}
	if !s.IsStorable() {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "document status is never stored")
	}
	return s, nil
}
