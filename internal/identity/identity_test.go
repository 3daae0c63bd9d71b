package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/lessonquiz/internal/apperr"
)

func TestVerifier_Verify(t *testing.T) {
	verifier := NewVerifier("secret", "lessonquiz")

	valid, err := verifier.Issue("learner-1", time.Hour)
	require.NoError(t, err)
	expired, err := verifier.Issue("learner-1", -time.Hour)
	require.NoError(t, err)
	otherIssuer, err := NewVerifier("secret", "someone-else").Issue("learner-1", time.Hour)
	require.NoError(t, err)
	otherSecret, err := NewVerifier("other", "lessonquiz").Issue("learner-1", time.Hour)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "lessonquiz"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	wrongMethod, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "learner-1", Issuer: "lessonquiz"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		want    Identity
		wantErr bool
	}{
		{name: "valid token", token: valid, want: Identity{LearnerID: "learner-1", Token: valid}},
		{name: "empty token", token: "", wantErr: true},
		{name: "garbage", token: "not-a-jwt", wantErr: true},
		{name: "expired", token: expired, wantErr: true},
		{name: "other issuer", token: otherIssuer, wantErr: true},
		{name: "other secret", token: otherSecret, wantErr: true},
		{name: "no subject", token: noSubject, wantErr: true},
		{name: "unexpected signing method", token: wrongMethod, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := verifier.Verify(tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifier_VerifyHeader(t *testing.T) {
	verifier := NewVerifier("secret", "")
	token, err := verifier.Issue("learner-1", time.Hour)
	require.NoError(t, err)

	got, err := verifier.VerifyHeader("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "learner-1", got.LearnerID)

	_, err = verifier.VerifyHeader(token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	_, ok := FromContext(ctx)
	assert.False(t, ok)
	_, ok = TokenFromContext(ctx)
	assert.False(t, ok)

	ctx = WithIdentity(ctx, Identity{LearnerID: "learner-1", Token: "tok"})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "learner-1", id.LearnerID)

	token, ok := TokenFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "tok", token)
}
