package leads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sentra-backend/internal/errors"
	"sentra-backend/internal/models"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		allowed  bool
	}{
		{models.LeadStatusNew, models.LeadStatusContacted, true},
		{models.LeadStatusNew, models.LeadStatusClosed, true},
		{models.LeadStatusNew, models.LeadStatusProposal, false},
		{models.LeadStatusContacted, models.LeadStatusProposal, true},
		{models.LeadStatusContacted, models.LeadStatusClosed, true},
		{models.LeadStatusContacted, models.LeadStatusNew, false},
		{models.LeadStatusProposal, models.LeadStatusClosed, true},
		{models.LeadStatusProposal, models.LeadStatusContacted, true},
		{models.LeadStatusProposal, models.LeadStatusNew, false},
		{models.LeadStatusClosed, models.LeadStatusNew, false},
		{models.LeadStatusClosed, models.LeadStatusContacted, false},
		{models.LeadStatusClosed, models.LeadStatusProposal, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestValidateTransitionMessages(t *testing.T) {
	err := ValidateTransition(models.LeadStatusClosed, models.LeadStatusContacted)
	require.Error(t, err)

	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeBadRequest, appErr.Code)
	assert.Equal(t, "Cannot transition from CLOSED to CONTACTED", appErr.Message)
}

func TestValidateTransitionUnknownStatus(t *testing.T) {
	err := ValidateTransition(models.LeadStatusNew, "ARCHIVED")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid lead status")
}

func TestIsValidStatus(t *testing.T) {
	assert.True(t, IsValidStatus(models.LeadStatusNew))
	assert.True(t, IsValidStatus(models.LeadStatusClosed))
	assert.False(t, IsValidStatus("new"))
	assert.False(t, IsValidStatus(""))
}
