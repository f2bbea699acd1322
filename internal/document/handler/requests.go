package handler

import (
	"strings"
	"time"

	"notary/internal/document/models"
	id "notary/pkg/domain"
	dErrors "notary/pkg/domain-errors"
)

const (
	maxSignatories     = 256
	maxValiditySeconds = 100 * 365 * 24 * 60 * 60
)

// CreateDocumentRequest is the HTTP request body for POST /documents.
type CreateDocumentRequest struct {
	Title           string   `json:"title"`
	Fingerprint     string   `json:"fingerprint"`
	Signatories     []string `json:"signatories"`
	ValiditySeconds int64    `json:"validity_seconds"`

	// Parsed values (populated by Validate)
	parsedFingerprint id.Fingerprint
	parsedSignatories []id.Identity
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateDocumentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	// Size validation (fail fast)
	if len(r.Title) > models.MaxTitleLength {
		return dErrors.New(dErrors.CodeValidation, "title must be at most 512 characters")
	}
	if len(r.Signatories) > maxSignatories {
		return dErrors.New(dErrors.CodeValidation, "at most 256 signatories are allowed")
	}

	if strings.TrimSpace(r.Title) == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}

	fingerprint, err := id.ParseFingerprint(r.Fingerprint)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	r.parsedFingerprint = fingerprint

	if len(r.Signatories) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one signatory is required")
	}
	r.parsedSignatories = make([]id.Identity, 0, len(r.Signatories))
	for _, raw := range r.Signatories {
		signatory, err := id.ParseIdentity(raw)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "signatories: "+err.Error())
		}
		r.parsedSignatories = append(r.parsedSignatories, signatory)
	}

	if r.ValiditySeconds <= 0 {
		return dErrors.New(dErrors.CodeValidation, "validity_seconds must be positive")
	}
	if r.ValiditySeconds > maxValiditySeconds {
		return dErrors.New(dErrors.CodeValidation, "validity_seconds is too large")
	}
	return nil
}

// ParsedFingerprint returns the validated fingerprint.
func (r *CreateDocumentRequest) ParsedFingerprint() id.Fingerprint {
	return r.parsedFingerprint
}

// ParsedSignatories returns the validated signatories in input order, duplicates kept.
func (r *CreateDocumentRequest) ParsedSignatories() []id.Identity {
	return r.parsedSignatories
}

// Validity returns the validity window as a duration.
func (r *CreateDocumentRequest) Validity() time.Duration {
	return time.Duration(r.ValiditySeconds) * time.Second
}

// VerifyDocumentRequest is the HTTP request body for POST /documents/{id}/verify.
// The fingerprint is compared as given: an empty or oversized value simply does not match.
type VerifyDocumentRequest struct {
	Fingerprint string `json:"fingerprint"`
}

func (r *VerifyDocumentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

func (r *VerifyDocumentRequest) ParsedFingerprint() id.Fingerprint {
	return id.Fingerprint(r.Fingerprint)
}
