package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	svc, err := NewService("test-secret", time.Hour)
	require.NoError(t, err)
	id := uuid.New()

	tok, err := svc.IssueToken(id, RoleAdmin)
	require.NoError(t, err)

	gotID, role, err := svc.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, RoleAdmin, role)
}

func TestNewService_RequiresSecret(t *testing.T) {
	_, err := NewService("", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestIssueToken_RejectsUnknownRole(t *testing.T) {
	svc, _ := NewService("s", time.Hour)
	_, err := svc.IssueToken(uuid.New(), "requester")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestValidateToken_Rejects(t *testing.T) {
	svc, _ := NewService("right", time.Hour)
	other, _ := NewService("wrong", time.Hour)
	id := uuid.New()

	foreign, err := other.IssueToken(id, RoleUser)
	require.NoError(t, err)

	expired, _ := NewService("right", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.IssueToken(id, RoleUser)
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: id.String()},
		Role:             "root",
	}).SignedString([]byte("right"))
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "not-a-uuid"},
		Role:             RoleUser,
	}).SignedString([]byte("right"))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"garbage":     "abc.def.ghi",
		"wrong key":   foreign,
		"expired":     old,
		"bad role":    badRole,
		"bad subject": badSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := svc.ValidateToken(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
