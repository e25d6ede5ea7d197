package auth

import (
	"context"
	"errors"
	"testing"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/scripta/app/story"
)

type stubVerifier struct {
	token *fbauth.Token
	err   error
}

func (s stubVerifier) VerifyIDToken(context.Context, string) (*fbauth.Token, error) {
	return s.token, s.err
}

func TestFirebase_Verify(t *testing.T) {
	f := &Firebase{client: stubVerifier{token: &fbauth.Token{
		UID:    "u1",
		Claims: map[string]interface{}{"name": "Alice", "email": "alice@example.com"},
	}}}

	id, err := f.Verify(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UID)
	assert.Equal(t, "Alice", id.DisplayName)
	assert.False(t, id.Anonymous)
}

func TestFirebase_Verify_Invalid(t *testing.T) {
	f := &Firebase{client: stubVerifier{err: errors.New("token expired")}}

	_, err := f.Verify(context.Background(), "token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.Verify(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentityFromToken_DisplayName(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]interface{}
		want   string
	}{
		{"name", map[string]interface{}{"name": "Alice"}, "Alice"},
		{"email fallback", map[string]interface{}{"name": " ", "email": "bob@example.com"}, "bob@example.com"},
		{"anonymous", map[string]interface{}{}, story.AnonymousName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := identityFromToken(&fbauth.Token{UID: "u", Claims: tt.claims})
			assert.Equal(t, tt.want, id.DisplayName)
		})
	}
}

func TestIdentityFromToken_AnonymousProvider(t *testing.T) {
	token := &fbauth.Token{UID: "guest"}
	token.Firebase.SignInProvider = "anonymous"

	id := identityFromToken(token)
	assert.True(t, id.Anonymous)
	assert.Equal(t, "guest", id.UID)
}
