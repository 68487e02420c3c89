package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "ncc/pkg/domain"
	dErrors "ncc/pkg/domain-errors"
)

var subject = Subject{
	UserID: id.NewUserID(),
	Email:  "alice@example.com",
	Name:   "Alice",
	Role:   "user",
}

func Test_Issue(t *testing.T) {
	svc := New("test-signing-key", "ncc-test", time.Hour)

	signed, claims, err := svc.Issue(subject)
	require.NoError(t, err)
	require.NotEmpty(t, signed)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)

	parsed, err := svc.Validate(signed)
	require.NoError(t, err)
	userID, err := parsed.UserID()
	require.NoError(t, err)
	assert.Equal(t, subject.UserID, userID)
	assert.Equal(t, subject.Email, parsed.Email)
	assert.Equal(t, claims.ID, parsed.ID)
}

func Test_Validate_InvalidToken(t *testing.T) {
	svc := New("test-signing-key", "ncc-test", time.Hour)

	_, err := svc.Validate("invalid-token-string")
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	assert.Equal(t, "invalid token", dErrors.MessageOf(err))
}

func Test_Validate_ExpiredToken(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	issuer := New("test-signing-key", "ncc-test", time.Hour, WithClock(func() time.Time { return past }))
	validator := New("test-signing-key", "ncc-test", time.Hour)

	signed, _, err := issuer.Issue(subject)
	require.NoError(t, err)

	_, err = validator.Validate(signed)
	require.Error(t, err)
	assert.Equal(t, "token has expired", dErrors.MessageOf(err))
}

func Test_Validate_WrongKey(t *testing.T) {
	signed, _, err := New("key-a", "ncc-test", time.Hour).Issue(subject)
	require.NoError(t, err)

	_, err = New("key-b", "ncc-test", time.Hour).Validate(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Validate_WrongIssuer(t *testing.T) {
	signed, _, err := New("key", "someone-else", time.Hour).Issue(subject)
	require.NoError(t, err)

	_, err = New("key", "ncc-test", time.Hour).Validate(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Validate_BadSubject(t *testing.T) {
	svc := New("key", "ncc-test", time.Hour)
	signed, _, err := svc.Issue(Subject{UserID: "not-a-uuid", Email: "x@example.com"})
	require.NoError(t, err)

	_, err = svc.Validate(signed)
	require.Error(t, err)
	assert.Equal(t, "invalid token subject", dErrors.MessageOf(err))
}
