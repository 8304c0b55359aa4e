package leads

import (
	"fmt"

	apperrors "sentra-backend/internal/errors"
	"sentra-backend/internal/models"
)

// allowedTransitions is the lead status graph. CLOSED is terminal; a
// PROPOSAL can fall back to CONTACTED when negotiations reopen.
var allowedTransitions = map[string][]string{
	models.LeadStatusNew:       {models.LeadStatusContacted, models.LeadStatusClosed},
	models.LeadStatusContacted: {models.LeadStatusProposal, models.LeadStatusClosed},
	models.LeadStatusProposal:  {models.LeadStatusClosed, models.LeadStatusContacted},
	models.LeadStatusClosed:    {},
}

// IsValidStatus reports whether s is a known lead status.
func IsValidStatus(s string) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether a lead may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns the error surfaced to API clients when a
// transition is not allowed.
func ValidateTransition(from, to string) error {
	if !IsValidStatus(to) {
		return apperrors.BadRequest(fmt.Sprintf("Invalid lead status: %s", to))
	}
	if !CanTransition(from, to) {
		return apperrors.BadRequest(fmt.Sprintf("Cannot transition from %s to %s", from, to))
	}
	return nil
}
