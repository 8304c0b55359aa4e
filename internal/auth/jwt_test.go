package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentra-backend/internal/database"
	"sentra-backend/internal/models"
)

func init() {
	SetJWTSecret("test-secret-do-not-use-in-production")
}

func testUser() models.User {
	return models.User{
		ID:             7,
		Email:          "agent@acme.test",
		Role:           models.RoleSalesManager,
		OrganizationID: 3,
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	user := testUser()

	token, expiry, csrfToken, err := GenerateToken(user, user.OrganizationID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotEmpty(t, csrfToken)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiry, time.Minute)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.EqualValues(t, 3, claims.OrganizationID)
	assert.Equal(t, models.RoleSalesManager, claims.Role)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	_, err := ParseToken("not.a.jwt")
	require.Error(t, err)

	_, err = ParseToken("")
	require.Error(t, err)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	token, expiry, err := GenerateRefreshToken(7, 3)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), expiry, time.Minute)

	claims, err := ParseRefreshToken(token)
	require.NoError(t, err)
	assert.EqualValues(t, 7, claims.UserID)
	assert.EqualValues(t, 3, claims.OrganizationID)
}

func TestParseRefreshTokenRejectsAccessToken(t *testing.T) {
	token, _, _, err := GenerateToken(testUser(), 3)
	require.NoError(t, err)

	_, err = ParseRefreshToken(token)
	require.Error(t, err)
}

func TestTokenBlacklist(t *testing.T) {
	db, err := database.OpenTest()
	require.NoError(t, err)

	token, expiry, _, err := GenerateToken(testUser(), 3)
	require.NoError(t, err)

	assert.False(t, IsTokenBlacklisted(db, token))
	BlacklistToken(db, token, expiry)
	assert.True(t, IsTokenBlacklisted(db, token))

	// Hashes, not raw tokens, are stored.
	var entry models.TokenBlacklist
	require.NoError(t, db.First(&entry).Error)
	assert.NotEqual(t, token, entry.TokenHash)
	assert.Equal(t, HashToken(token), entry.TokenHash)
}

func TestCleanupTokenBlacklist(t *testing.T) {
	db, err := database.OpenTest()
	require.NoError(t, err)

	expired := models.TokenBlacklist{TokenHash: HashToken("old"), ExpiresAt: time.Now().Add(-time.Hour)}
	live := models.TokenBlacklist{TokenHash: HashToken("new"), ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, db.Create(&expired).Error)
	require.NoError(t, db.Create(&live).Error)

	CleanupTokenBlacklist(db)

	var count int64
	require.NoError(t, db.Model(&models.TokenBlacklist{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
