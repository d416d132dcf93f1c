package identity_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relguard/rebac/pkg/identity"
	"github.com/relguard/rebac/pkg/model"
)

func TestSubjectFromClaims_DefaultsToUser(t *testing.T) {
	c := &identity.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
	}
	sub, err := identity.SubjectFromClaims(c)
	require.NoError(t, err)
	assert.Equal(t, model.Subject{Type: "user", ID: "alice"}, sub)
}

func TestSubjectFromClaims_HonorsSubjectType(t *testing.T) {
	c := &identity.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "svc-1"},
		SubjectType:      "service",
	}
	sub, err := identity.SubjectFromClaims(c)
	require.NoError(t, err)
	assert.Equal(t, model.Subject{Type: "service", ID: "svc-1"}, sub)
}

func TestSubjectFromClaims_RejectsEmptySubject(t *testing.T) {
	_, err := identity.SubjectFromClaims(&identity.Claims{})
	assert.Error(t, err)
}

func TestSubjectFromClaims_RejectsNil(t *testing.T) {
	_, err := identity.SubjectFromClaims(nil)
	assert.Error(t, err)
}

func TestSubjectFromJWT_ResolvesUnverifiedClaims(t *testing.T) {
	claims := identity.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "bob",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		SubjectType: "user",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	sub, err := identity.SubjectFromJWT(signed)
	require.NoError(t, err)
	assert.Equal(t, model.Subject{Type: "user", ID: "bob"}, sub)
}

func TestSubjectFromJWT_RejectsMalformedToken(t *testing.T) {
	_, err := identity.SubjectFromJWT("not-a-jwt")
	assert.Error(t, err)
}
