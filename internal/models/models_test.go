package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleLevelOrdering(t *testing.T) {
	ordered := []string{
		RoleUpsellAgent,
		RoleFrontsellAgent,
		RoleProjectManager,
		RoleSalesManager,
		RoleAdmin,
		RoleOwner,
	}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, RoleLevel(ordered[i]), RoleLevel(ordered[i-1]))
	}
	assert.Equal(t, -1, RoleLevel("SUPERUSER"))
}

func TestHasMinimumRole(t *testing.T) {
	assert.True(t, HasMinimumRole(RoleOwner, RoleAdmin))
	assert.True(t, HasMinimumRole(RoleAdmin, RoleAdmin))
	assert.False(t, HasMinimumRole(RoleSalesManager, RoleAdmin))
	assert.False(t, HasMinimumRole("SUPERUSER", RoleUpsellAgent))
	assert.False(t, HasMinimumRole(RoleOwner, "SUPERUSER"))
}

func TestJSONValueAndScan(t *testing.T) {
	original := JSON{"email": "lead@example.com", "score": 42.0}

	value, err := original.Value()
	require.NoError(t, err)

	var restored JSON
	require.NoError(t, restored.Scan(value))
	assert.Equal(t, "lead@example.com", restored["email"])
	assert.Equal(t, 42.0, restored["score"])

	var nilJSON JSON
	value, err = nilJSON.Value()
	require.NoError(t, err)
	assert.Nil(t, value)

	var fromNil JSON
	require.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)
}
