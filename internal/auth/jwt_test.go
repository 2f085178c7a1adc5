package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DPJMedia/springford-ads/internal/models"
)

func TestGenerateValidate(t *testing.T) {
	svc := NewJWTService("secret", 1)
	id := uuid.New()
	tok, err := svc.Generate(id, "ed@springford.example", models.RoleEditor)
	require.NoError(t, err)

	claims, err := svc.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, models.RoleEditor, claims.Role)

	uid, role, err := svc.ValidateSocket(tok)
	require.NoError(t, err)
	assert.Equal(t, id.String(), uid)
	assert.Equal(t, "editor", role)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	tok, err := NewJWTService("other", 1).Generate(uuid.New(), "x@y", models.RoleAdmin)
	require.NoError(t, err)
	_, err = NewJWTService("secret", 1).Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	tok, err := NewJWTService("secret", -1).Generate(uuid.New(), "x@y", models.RoleAdmin)
	require.NoError(t, err)
	_, err = NewJWTService("secret", 1).Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsMissingUser(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: models.RoleAdmin}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = NewJWTService("secret", 1).Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
