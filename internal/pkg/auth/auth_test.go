package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/eid-storefront/internal/config"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "Eid Collection"},
		DevAPI: config.DevAPIConfig{
			JWTSecret:          "test-secret-0123456789abcdef0123456789",
			AccessTokenExpiry:  time.Minute,
			RefreshTokenExpiry: time.Hour,
		},
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	j := NewJWTManager(testConfig())

	token, err := j.GenerateAccessToken("u1", "a@example.com", "ADMIN", 3)
	require.NoError(t, err)

	claims, err := j.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "ADMIN", claims.Role)
	assert.Equal(t, 3, claims.Session)
	assert.Equal(t, "user:u1", claims.Subject)

	_, err = j.ValidateRefreshToken(token)
	assert.Error(t, err)
}

func TestTokensAreUnique(t *testing.T) {
	j := NewJWTManager(testConfig())
	a, err := j.GenerateRefreshToken("u1", "a@example.com", 1)
	require.NoError(t, err)
	b, err := j.GenerateRefreshToken("u1", "a@example.com", 1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	other := testConfig()
	other.DevAPI.JWTSecret = "another-secret-0123456789abcdef012345"

	token, err := NewJWTManager(other).GenerateAccessToken("u1", "a@example.com", "USER", 1)
	require.NoError(t, err)

	_, err = NewJWTManager(testConfig()).ValidateToken(token)
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	assert.Equal(t, "abc", ExtractTokenFromHeader("Bearer abc"))
	assert.Equal(t, "", ExtractTokenFromHeader("Basic abc"))
	assert.Equal(t, "", ExtractTokenFromHeader("Bearer "))
}

func TestPasswordManager(t *testing.T) {
	p := NewPasswordManager(bcrypt.MinCost)

	hash, err := p.HashPassword("eidmubarak2026")
	require.NoError(t, err)
	assert.NoError(t, p.VerifyPassword("eidmubarak2026", hash))
	assert.Error(t, p.VerifyPassword("wrong", hash))

	for _, weak := range []string{"short1", "onlyletters", "12345678"} {
		_, err := p.HashPassword(weak)
		assert.Error(t, err, weak)
	}
}
