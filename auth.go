package kenmon

import (
	"context"
	"errors"
	"log"
)

// Authenticator validates a proof of identity and yields an Identifier.
// Implementations own their own short-lived secret state (OTP codes, OAuth
// CSRF state).
type Authenticator interface {
	// AuthType is the string discriminator the orchestrator dispatches on
	AuthType() string

	// Authenticate validates the proof carried in params and returns the
	// verified identifier, or a typed AuthError.
	Authenticate(ctx context.Context, params map[string]string) (*Identifier, error)
}

// Preparer is the optional capability for authenticators with a preparation
// step, like sending an OTP. OAuth authenticators have none - they redirect.
type Preparer interface {
	Prepare(ctx context.Context, params map[string]string) (map[string]string, error)
}

// Auth composes credential verifiers, the session manager, and user storage
// into sign-in/sign-up/sign-out flows. It is the only component that
// touches a verifier and the stores together.
//
// Register all authenticators at startup before serving traffic; the
// registration map is read-only afterwards and safe for concurrent reads.
type Auth struct {
	Users    UserStore
	Sessions *SessionManager

	// InitialUserData is merged over the sign-up data for every new user
	InitialUserData map[string]any

	authenticators map[string]Authenticator
}

// Register adds an authenticator under its AuthType. Call only at startup.
func (a *Auth) Register(authenticator Authenticator) *Auth {
	if a.authenticators == nil {
		a.authenticators = make(map[string]Authenticator)
	}
	a.authenticators[authenticator.AuthType()] = authenticator
	return a
}

// Prepare dispatches the preparation step of the named authenticator.
// Fails with ProviderNotFound for unregistered types and
// PrepareNotSupported for authenticators without a prepare step.
func (a *Auth) Prepare(ctx context.Context, authType string, params map[string]string) (map[string]string, error) {
	authenticator, ok := a.authenticators[authType]
	if !ok {
		return nil, NewAuthError(ErrCodeProviderNotFound, "no authenticator registered for "+authType)
	}
	preparer, ok := authenticator.(Preparer)
	if !ok {
		return nil, NewAuthError(ErrCodePrepareNotSupported, authType+" has no prepare step")
	}
	return preparer.Prepare(ctx, params)
}

// Authenticate dispatches proof validation to the named authenticator
func (a *Auth) Authenticate(ctx context.Context, authType string, params map[string]string) (*Identifier, error) {
	authenticator, ok := a.authenticators[authType]
	if !ok {
		return nil, NewAuthError(ErrCodeProviderNotFound, "no authenticator registered for "+authType)
	}
	return authenticator.Authenticate(ctx, params)
}

// SignIn looks up the user bound to a verified identifier and mints a
// session for them. Fails with UserNotFound when the identifier is unknown.
func (a *Auth) SignIn(cookies CookieAdapter, ident *Identifier, opts *SessionOptions) (*Session, error) {
	user, err := a.Users.GetUserByIdentifier(ident)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, NewAuthError(ErrCodeUserNotFound, "no user for identifier "+ident.Key())
		}
		return nil, WrapAuthError(ErrCodeInternal, "failed to look up user", err)
	}
	return a.Sessions.CreateSession(cookies, user.Id(), opts)
}

// SignUp creates a user for a verified identifier and mints their first
// session. Fails with UserAlreadyExists when the identifier is already
// bound to a user.
func (a *Auth) SignUp(cookies CookieAdapter, ident *Identifier, data map[string]any, opts *SessionOptions) (*Session, error) {
	if _, err := a.Users.GetUserByIdentifier(ident); err == nil {
		return nil, NewAuthError(ErrCodeUserExists, "identifier already registered: "+ident.Key())
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, WrapAuthError(ErrCodeInternal, "failed to look up user", err)
	}

	merged := make(map[string]any, len(data)+len(a.InitialUserData))
	for k, v := range data {
		merged[k] = v
	}
	for k, v := range a.InitialUserData {
		merged[k] = v
	}

	user, err := a.Users.CreateUser(ident, merged)
	if err != nil {
		return nil, WrapAuthError(ErrCodeInternal, "failed to create user", err)
	}
	log.Printf("Created user %s for identifier %s", user.Id(), ident.Key())

	return a.Sessions.CreateSession(cookies, user.Id(), opts)
}

// SignOut delegates to the session manager. Idempotent: the cookie is
// cleared even when no valid session exists.
func (a *Auth) SignOut(cookies CookieAdapter, opts *SignOutOptions) error {
	return a.Sessions.SignOut(cookies, opts)
}

// CurrentUser verifies the session cookie and loads the owning user
func (a *Auth) CurrentUser(cookies CookieAdapter) (User, *Session, error) {
	sess, err := a.Sessions.VerifySession(cookies)
	if err != nil {
		return nil, nil, err
	}
	user, err := a.Users.GetUserById(sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, NewAuthError(ErrCodeInvalidSession, "invalid session")
		}
		return nil, nil, WrapAuthError(ErrCodeInternal, "failed to load user", err)
	}
	return user, sess, nil
}
