package handler

import (
	"time"

	"notary/internal/document/models"
	id "notary/pkg/domain"
)

// CreateDocumentResponse is the HTTP response for POST /documents.
type CreateDocumentResponse struct {
	DocumentID uint64 `json:"document_id"`
}

// SignDocumentResponse is the HTTP response for POST /documents/{id}/sign.
type SignDocumentResponse struct {
	DocumentID       uint64 `json:"document_id"`
	Status           string `json:"status"`
	SignatureCount   int    `json:"signature_count"`
	TotalSignatories int    `json:"total_signatories"`
}

// RevokeDocumentResponse is the HTTP response for POST /documents/{id}/revoke.
type RevokeDocumentResponse struct {
	DocumentID uint64 `json:"document_id"`
	Status     string `json:"status"`
	IsActive   bool   `json:"is_active"`
}

// VerifyDocumentResponse is the HTTP response for POST /documents/{id}/verify.
type VerifyDocumentResponse struct {
	IsValid          bool   `json:"is_valid"`
	Status           string `json:"status"`
	SignatureCount   int    `json:"signature_count"`
	TotalSignatories int    `json:"total_signatories"`
}

// DocumentDetailsResponse is the HTTP response for GET /documents/{id}.
// Status is the stored status; EffectiveStatus also reflects expiry.
type DocumentDetailsResponse struct {
	DocumentID      uint64    `json:"document_id"`
	Title           string    `json:"title"`
	Fingerprint     string    `json:"fingerprint"`
	Creator         string    `json:"creator"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	IsActive        bool      `json:"is_active"`
	Status          string    `json:"status"`
	EffectiveStatus string    `json:"effective_status"`
}

type SignatoriesResponse struct {
	DocumentID  uint64   `json:"document_id"`
	Signatories []string `json:"signatories"`
}

type HasSignedResponse struct {
	DocumentID uint64 `json:"document_id"`
	Identity   string `json:"identity"`
	HasSigned  bool   `json:"has_signed"`
}

type UserDocumentsResponse struct {
	Identity    string   `json:"identity"`
	DocumentIDs []uint64 `json:"document_ids"`
}

func toSignResponse(doc *models.Document) *SignDocumentResponse {
	return &SignDocumentResponse{
		DocumentID:       uint64(doc.ID),
		Status:           doc.Status.String(),
		SignatureCount:   doc.SignatureCount(),
		TotalSignatories: doc.TotalSignatories(),
	}
}

func toRevokeResponse(doc *models.Document) *RevokeDocumentResponse {
	return &RevokeDocumentResponse{
		DocumentID: uint64(doc.ID),
		Status:     doc.Status.String(),
		IsActive:   doc.IsActive,
	}
}

func toVerifyResponse(v *models.Verification) *VerifyDocumentResponse {
	return &VerifyDocumentResponse{
		IsValid:          v.IsValid,
		Status:           v.Status.String(),
		SignatureCount:   v.SignatureCount,
		TotalSignatories: v.TotalSignatories,
	}
}

func toDetailsResponse(doc *models.Document, now time.Time) *DocumentDetailsResponse {
	return &DocumentDetailsResponse{
		DocumentID:      uint64(doc.ID),
		Title:           doc.Title,
		Fingerprint:     doc.Fingerprint.String(),
		Creator:         doc.Creator.String(),
		CreatedAt:       doc.CreatedAt,
		ExpiresAt:       doc.ExpiresAt,
		IsActive:        doc.IsActive,
		Status:          doc.Status.String(),
		EffectiveStatus: doc.EffectiveStatus(now).String(),
	}
}

func toIdentityStrings(in []id.Identity) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = v.String()
	}
	return out
}

func toIDValues(in []id.DocumentID) []uint64 {
	out := make([]uint64, len(in))
	for i, v := range in {
		out[i] = uint64(v)
	}
	return out
}
