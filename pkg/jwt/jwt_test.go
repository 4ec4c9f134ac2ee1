package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-access-secret-key-for-testing-purposes"
	testIssuer = "skyroute-identity"
)

func TestNewService(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)

	assert.NotNil(t, service)
	assert.Equal(t, testSecret, service.secret)
	assert.Equal(t, testIssuer, service.issuer)
	assert.Equal(t, time.Hour, service.accessTokenExpiry)
}

func TestGenerateAccessToken(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)
	userID := uuid.New()
	roles := []string{"customer"}

	token, err := service.GenerateAccessToken(userID, "amara@example.com", roles)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "amara@example.com", claims.Email)
	assert.Equal(t, roles, claims.Roles)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.Equal(t, testIssuer, claims.Issuer)
}

func TestValidateAccessToken(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)
	userID := uuid.New()

	t.Run("Wrong Secret", func(t *testing.T) {
		other := NewService("some-other-secret-entirely-123456", testIssuer, time.Hour)
		token, err := other.GenerateAccessToken(userID, "a@example.com", nil)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("Wrong Issuer", func(t *testing.T) {
		other := NewService(testSecret, "someone-else", time.Hour)
		token, err := other.GenerateAccessToken(userID, "a@example.com", nil)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("Expired", func(t *testing.T) {
		short := NewService(testSecret, testIssuer, -time.Minute)
		token, err := short.GenerateAccessToken(userID, "a@example.com", nil)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
		assert.True(t, service.IsTokenExpired(token))
	})

	t.Run("Wrong Token Type", func(t *testing.T) {
		claims := Claims{
			UserID:    userID,
			TokenType: "refresh",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				Issuer:    testIssuer,
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.ErrorContains(t, err, "invalid token type")
	})

	t.Run("Unsupported Signing Method", func(t *testing.T) {
		claims := Claims{UserID: userID, TokenType: AccessToken}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := service.ValidateAccessToken("not.a.token")
		assert.Error(t, err)
		assert.True(t, service.IsTokenExpired("not.a.token"))
	})
}

func TestClaimsHasRole(t *testing.T) {
	claims := &Claims{Roles: []string{"customer", "agent"}}

	assert.True(t, claims.HasRole("agent"))
	assert.True(t, claims.HasRole("admin", "customer"))
	assert.False(t, claims.HasRole("admin"))
	assert.False(t, (&Claims{}).HasRole("customer"))
}
