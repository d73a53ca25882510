package jwt

import (
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	secret := []byte("test-secret")
	userID := uuid.New()
	avatar := "https://cdn.example/a.png"

	token, err := IssueAccessToken(userID, "Mara", &avatar, secret, time.Minute)
	require.NoError(t, err)

	claims, err := ValidateToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, userID.String(), claims["sub"])
	require.Equal(t, "Mara", claims["name"])
	require.Equal(t, avatar, claims["avatar_url"])
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := IssueAccessToken(uuid.New(), "Mara", nil, []byte("a"), time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken(token, []byte("b"))
	require.ErrorIs(t, err, jwtv5.ErrTokenSignatureInvalid)
}

func TestValidateToken_Expired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueAccessToken(uuid.New(), "Mara", nil, secret, -time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken(token, secret)
	require.ErrorIs(t, err, jwtv5.ErrTokenExpired)
}
