package handler

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notary/internal/document/models"
	id "notary/pkg/domain"
	dErrors "notary/pkg/domain-errors"
)

func TestCreateDocumentRequestValidate(t *testing.T) {
	valid := func() *CreateDocumentRequest {
		return &CreateDocumentRequest{
			Title:           "Lease",
			Fingerprint:     "sha256:abc",
			Signatories:     []string{"A", "B"},
			ValiditySeconds: 60,
		}
	}

	t.Run("parses a valid request", func(t *testing.T) {
		req := valid()
		req.Signatories = []string{"A", "B", "A"}

		require.NoError(t, req.Validate())
		assert.Equal(t, id.Fingerprint("sha256:abc"), req.ParsedFingerprint())
		assert.Equal(t, []id.Identity{"A", "B", "A"}, req.ParsedSignatories())
		assert.Equal(t, time.Minute, req.Validity())
	})

	t.Run("title and signatories are kept as given", func(t *testing.T) {
		req := valid()
		req.Title = "  Lease "
		req.Signatories = []string{" A ", "A"}

		require.NoError(t, req.Validate())
		assert.Equal(t, "  Lease ", req.Title)
		assert.Equal(t, []id.Identity{" A ", "A"}, req.ParsedSignatories())
	})

	t.Run("fingerprint whitespace is kept", func(t *testing.T) {
		req := valid()
		req.Fingerprint = " abc "

		require.NoError(t, req.Validate())
		assert.Equal(t, id.Fingerprint(" abc "), req.ParsedFingerprint())
	})

	tests := []struct {
		name   string
		mutate func(*CreateDocumentRequest)
	}{
		{"blank title", func(r *CreateDocumentRequest) { r.Title = "   " }},
		{"title too long", func(r *CreateDocumentRequest) { r.Title = strings.Repeat("x", models.MaxTitleLength+1) }},
		{"missing fingerprint", func(r *CreateDocumentRequest) { r.Fingerprint = "" }},
		{"no signatories", func(r *CreateDocumentRequest) { r.Signatories = nil }},
		{"blank signatory", func(r *CreateDocumentRequest) { r.Signatories = []string{"A", " "} }},
		{"too many signatories", func(r *CreateDocumentRequest) { r.Signatories = make([]string, maxSignatories+1) }},
		{"zero validity", func(r *CreateDocumentRequest) { r.ValiditySeconds = 0 }},
		{"negative validity", func(r *CreateDocumentRequest) { r.ValiditySeconds = -5 }},
		{"validity too large", func(r *CreateDocumentRequest) { r.ValiditySeconds = maxValiditySeconds + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)

			err := req.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}

	t.Run("nil request", func(t *testing.T) {
		var req *CreateDocumentRequest
		assert.True(t, dErrors.HasCode(req.Validate(), dErrors.CodeBadRequest))
	})
}

func TestVerifyDocumentRequestValidate(t *testing.T) {
	req := &VerifyDocumentRequest{Fingerprint: "sha256:abc"}
	require.NoError(t, req.Validate())
	assert.Equal(t, id.Fingerprint("sha256:abc"), req.ParsedFingerprint())

	for _, raw := range []string{"", "  sha256:abc ", strings.Repeat("f", 2000)} {
		req := &VerifyDocumentRequest{Fingerprint: raw}
		require.NoError(t, req.Validate())
		assert.Equal(t, id.Fingerprint(raw), req.ParsedFingerprint(), "fingerprint is passed through untouched")
	}

	var missing *VerifyDocumentRequest
	assert.True(t, dErrors.HasCode(missing.Validate(), dErrors.CodeBadRequest))
}
