// Package oauth2 provides the Google OAuth credential verifier: a stateless
// CSRF-protected authorization-code flow adapted to the kenmon Identifier
// model. CSRF protection rides on a signed, time-boxed state token instead
// of server-side storage.
package oauth2

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	oauth2lib "golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"

	"github.com/Rokt33r/kenmon"
)

// AuthTypeGoogle is the identifier type produced by this verifier
const AuthTypeGoogle = "google-oauth"

// GoogleOAuth validates Google identity proofs via the authorization-code
// flow. The state parameter is a signed JWT bound to a 10 minute window;
// the callback verifies it before the authorization code is ever exchanged,
// so a forged request never costs a provider round-trip.
type GoogleOAuth struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string

	// Secret signs state tokens; use the same service-wide secret as the
	// session manager. Falls back to KENMON_SECRET.
	Secret string

	// Scopes defaults to openid email profile
	Scopes []string

	// StateTTL defaults to 10 minutes
	StateTTL time.Duration

	// Endpoint overrides the Google endpoint, for tests against a local provider
	Endpoint *oauth2lib.Endpoint

	// ValidateIDToken overrides ID-token verification, for offline tests.
	// The default validates signature and audience against Google's public
	// keys and returns the token claims.
	ValidateIDToken func(ctx context.Context, rawIDToken, audience string) (map[string]any, error)
}

// EnsureDefaults fills in default values for any unset fields
func (g *GoogleOAuth) EnsureDefaults() *GoogleOAuth {
	if g.ClientID == "" {
		g.ClientID = os.Getenv("OAUTH2_GOOGLE_CLIENT_ID")
	}
	if g.ClientSecret == "" {
		g.ClientSecret = os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET")
	}
	if g.CallbackURL == "" {
		g.CallbackURL = os.Getenv("OAUTH2_GOOGLE_CALLBACK_URL")
	}
	if g.Secret == "" {
		g.Secret = os.Getenv("KENMON_SECRET")
	}
	if len(g.Scopes) == 0 {
		g.Scopes = []string{"openid", "email", "profile"}
	}
	if g.StateTTL <= 0 {
		g.StateTTL = DefaultStateTTL
	}
	if g.ValidateIDToken == nil {
		g.ValidateIDToken = func(ctx context.Context, raw, audience string) (map[string]any, error) {
			payload, err := idtoken.Validate(ctx, raw, audience)
			if err != nil {
				return nil, err
			}
			return payload.Claims, nil
		}
	}
	return g
}

func (g *GoogleOAuth) oauthConfig() *oauth2lib.Config {
	endpoint := google.Endpoint
	if g.Endpoint != nil {
		endpoint = *g.Endpoint
	}
	return &oauth2lib.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		RedirectURL:  g.CallbackURL,
		Scopes:       g.Scopes,
		Endpoint:     endpoint,
	}
}

// AuthURL builds the provider authorization URL with a fresh signed state
// token embedded as the OAuth state parameter.
func (g *GoogleOAuth) AuthURL(intent Intent) (string, error) {
	g.EnsureDefaults()
	state, err := signState(g.Secret, intent, g.StateTTL)
	if err != nil {
		return "", kenmon.WrapAuthError(kenmon.ErrCodeInternal, "failed to sign state token", err)
	}
	return g.oauthConfig().AuthCodeURL(state), nil
}

// Redirector returns an HTTP handler that sends the client to the provider
// authorization URL for the given intent.
func (g *GoogleOAuth) Redirector(intent Intent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := g.AuthURL(intent)
		if err != nil {
			http.Error(w, "failed to build authorization URL", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, u, http.StatusFound)
	}
}

// VerifyCallback validates the state token, exchanges the authorization
// code, verifies the returned ID token, and maps its claims to an
// Identifier. The state check runs first: a forged or expired state is
// rejected before the code exchange.
func (g *GoogleOAuth) VerifyCallback(ctx context.Context, code, state string) (Intent, *kenmon.Identifier, error) {
	g.EnsureDefaults()

	intent, err := verifyState(g.Secret, state)
	if err != nil {
		return "", nil, err
	}

	token, err := g.oauthConfig().Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2lib.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			// Already-redeemed or invalid authorization code
			return "", nil, kenmon.WrapAuthError(kenmon.ErrCodeOAuthInvalidCode, "invalid authorization code", err)
		}
		return "", nil, kenmon.WrapAuthError(kenmon.ErrCodeTokenExchangeFailed, "code exchange failed", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", nil, kenmon.NewAuthError(kenmon.ErrCodeTokenExchangeFailed, "no ID token in exchange response")
	}

	claims, err := g.ValidateIDToken(ctx, rawIDToken, g.ClientID)
	if err != nil {
		return "", nil, kenmon.WrapAuthError(kenmon.ErrCodeProfileFetchFailed, "ID token verification failed", err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", nil, kenmon.NewAuthError(kenmon.ErrCodeProfileFetchFailed, "ID token has no subject")
	}

	ident := &kenmon.Identifier{
		Type:  AuthTypeGoogle,
		Value: sub,
		Data: map[string]any{
			"googleId":      sub,
			"email":         claims["email"],
			"emailVerified": claims["email_verified"],
			"name":          claims["name"],
			"givenName":     claims["given_name"],
			"familyName":    claims["family_name"],
			"picture":       claims["picture"],
			"locale":        claims["locale"],
		},
	}
	return intent, ident, nil
}

// AuthType implements kenmon.Authenticator
func (g *GoogleOAuth) AuthType() string { return AuthTypeGoogle }

// Authenticate implements kenmon.Authenticator over params["code"] and
// params["state"]. The intent is dropped; callers that need it use
// VerifyCallback directly.
func (g *GoogleOAuth) Authenticate(ctx context.Context, params map[string]string) (*kenmon.Identifier, error) {
	_, ident, err := g.VerifyCallback(ctx, params["code"], params["state"])
	return ident, err
}
