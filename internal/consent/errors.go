package consent

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned for a request missing required fields.
	ErrInvalidRequest = errors.New("invalid consent request")

	// ErrInvalidModuleSet matches *InvalidModuleSetError.
	ErrInvalidModuleSet = errors.New("invalid module set")

	// ErrNoActiveConsent is returned by Revoke when the pair has no active grant.
	ErrNoActiveConsent = errors.New("no active consent found for this requester")

	// ErrPermissionDenied matches *PermissionDeniedError.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrCitizenProofMismatch is returned when the supplied citizen proof does
	// not belong to the citizen named in the request.
	ErrCitizenProofMismatch = errors.New("citizen proof does not match")
)

// PermissionDeniedError carries the decision that led to a denial.
type PermissionDeniedError struct {
	Decision Decision
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("access to module '%s' denied for requester '%s' (%s tier): %s",
		e.Decision.Module, e.Decision.RequesterID, e.Decision.Tier, e.Decision.Reason)
}

// Is makes errors.Is(err, ErrPermissionDenied) match.
func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}
