package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/lysyi3m/scripta/app/story"
)

var ErrInvalidToken = errors.New("invalid ID token")

// NewFirebaseApp initialises the Firebase Admin SDK. Without a credentials
// file it falls back to application default credentials.
func NewFirebaseApp(ctx context.Context, projectID, credentialsFile string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise Firebase app: %w", err)
	}
	return app, nil
}

type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// Firebase verifies Firebase ID tokens, anonymous sign-ins included.
type Firebase struct {
	client tokenVerifier
}

func NewFirebase(ctx context.Context, app *firebase.App) (*Firebase, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Firebase Auth client: %w", err)
	}
	return &Firebase{client: client}, nil
}

func (f *Firebase) Verify(ctx context.Context, idToken string) (*story.Identity, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, ErrInvalidToken
	}

	token, err := f.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return identityFromToken(token), nil
}

func identityFromToken(token *fbauth.Token) *story.Identity {
	id := &story.Identity{
		UID:       token.UID,
		Anonymous: token.Firebase.SignInProvider == "anonymous",
	}

	for _, claim := range []string{"name", "email"} {
		if v, ok := token.Claims[claim].(string); ok && strings.TrimSpace(v) != "" {
			id.DisplayName = strings.TrimSpace(v)
			break
		}
	}
	if id.DisplayName == "" {
		id.DisplayName = story.AnonymousName
	}
	return id
}
