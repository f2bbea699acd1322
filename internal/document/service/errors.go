package service

import (
	"errors"

	dErrors "notary/pkg/domain-errors"
	"notary/pkg/platform/sentinel"
)

// wrapStoreErr translates store facts into domain errors. Coded errors pass through.
func wrapStoreErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// toValidation converts model invariant violations into validation errors for callers.
func toValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	return err
}
