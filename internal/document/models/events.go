package models

import (
	id "notary/pkg/domain"
)

// Domain events raised by the registry. The service turns them into audit events.

type DocumentCreated struct {
	DocumentID id.DocumentID
	Title      string
	Creator    id.Identity
}

type DocumentSigned struct {
	DocumentID id.DocumentID
	Signatory  id.Identity
}

type DocumentStatusChanged struct {
	DocumentID id.DocumentID
	NewStatus  Status
}

type DocumentRevoked struct {
	DocumentID id.DocumentID
	RevokedBy  id.Identity
}
