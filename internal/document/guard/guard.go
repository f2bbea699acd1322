// Package guard holds the authorization predicates evaluated before any document mutation.
//
// Predicates are pure functions over a document snapshot and a caller. They never mutate
// and only signal failure with a coded error. Operations compose them by conjunction.
package guard

import (
	"time"

	"notary/internal/document/models"
	id "notary/pkg/domain"
	dErrors "notary/pkg/domain-errors"
)

// Exists fails with not_found when the registry returned no document.
func Exists(doc *models.Document) error {
	if doc == nil {
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return nil
}

// IsActive requires the active flag and an unexpired window. Both failures look the same to the caller.
func IsActive(doc *models.Document, now time.Time) error {
	if !doc.IsActionable(now) {
		return dErrors.New(dErrors.CodeInactive, "document is inactive or expired")
	}
	return nil
}

func IsCreator(doc *models.Document, caller id.Identity) error {
	if caller.IsZero() || doc.Creator != caller {
		return dErrors.New(dErrors.CodeForbidden, "caller is not the document creator")
	}
	return nil
}

func IsAdministrator(admin, caller id.Identity) error {
	if caller.IsZero() || admin.IsZero() || caller != admin {
		return dErrors.New(dErrors.CodeForbidden, "caller is not the registry administrator")
	}
	return nil
}

func IsSignatory(doc *models.Document, caller id.Identity) error {
	if caller.IsZero() || !doc.IsSignatory(caller) {
		return dErrors.New(dErrors.CodeForbidden, "caller is not a signatory of this document")
	}
	return nil
}

// IsCreatorOrAdministrator is the revoke permission.
func IsCreatorOrAdministrator(doc *models.Document, admin, caller id.Identity) error {
	if IsCreator(doc, caller) == nil || IsAdministrator(admin, caller) == nil {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "only the creator or the registry administrator may revoke")
}

// All returns the first failing check.
func All(checks ...func() error) error {
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}
