package kenmon_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	km "github.com/Rokt33r/kenmon"
	"github.com/Rokt33r/kenmon/stores"
)

// staticAuthenticator always yields the same identifier. It has no prepare
// step, which is exactly what the dispatch tests need.
type staticAuthenticator struct {
	ident *km.Identifier
}

func (s *staticAuthenticator) AuthType() string { return "static" }

func (s *staticAuthenticator) Authenticate(ctx context.Context, params map[string]string) (*km.Identifier, error) {
	return s.ident, nil
}

func newTestAuth(t *testing.T) (*km.Auth, *recordingMailer) {
	t.Helper()
	tmpDir := t.TempDir()
	mailer := &recordingMailer{}

	auth := &km.Auth{
		Users: stores.NewFSUserStore(tmpDir),
		Sessions: &km.SessionManager{
			Store:  stores.NewFSSessionStore(tmpDir),
			Secret: "test-secret-for-auth",
		},
	}
	auth.Register(&km.EmailOTP{
		Store:  stores.NewFSOTPStore(tmpDir),
		Mailer: mailer,
		From:   "auth@example.com",
	})
	return auth, mailer
}

func TestDispatch(t *testing.T) {
	auth, _ := newTestAuth(t)
	auth.Register(&staticAuthenticator{ident: &km.Identifier{Type: "static", Value: "x"}})
	ctx := context.Background()

	t.Run("unknown provider", func(t *testing.T) {
		if _, err := auth.Prepare(ctx, "carrier-pigeon", nil); km.CodeOf(err) != km.ErrCodeProviderNotFound {
			t.Fatalf("Expected provider-not-found, got %v", err)
		}
		if _, err := auth.Authenticate(ctx, "carrier-pigeon", nil); km.CodeOf(err) != km.ErrCodeProviderNotFound {
			t.Fatalf("Expected provider-not-found, got %v", err)
		}
	})

	t.Run("prepare on a non-preparer", func(t *testing.T) {
		if _, err := auth.Prepare(ctx, "static", nil); km.CodeOf(err) != km.ErrCodePrepareNotSupported {
			t.Fatalf("Expected prepare-not-supported, got %v", err)
		}
	})

	t.Run("prepare sends the otp", func(t *testing.T) {
		out, err := auth.Prepare(ctx, km.AuthTypeEmailOTP, map[string]string{"email": "alice@example.com"})
		if err != nil {
			t.Fatalf("Prepare failed: %v", err)
		}
		if out["otpId"] == "" || out["signature"] == "" {
			t.Errorf("Expected otpId and signature, got %v", out)
		}
	})
}

func TestSignUpAndSignInExclusivity(t *testing.T) {
	auth, _ := newTestAuth(t)
	ident := &km.Identifier{Type: km.AuthTypeEmailOTP, Value: "alice@example.com"}

	// Sign-in before any account exists
	if _, err := auth.SignIn(newMemCookies(), ident, nil); km.CodeOf(err) != km.ErrCodeUserNotFound {
		t.Fatalf("Expected user-not-found, got %v", err)
	}

	if _, err := auth.SignUp(newMemCookies(), ident, map[string]any{"name": "Alice"}, nil); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	// Sign-up for an identifier that is already bound
	if _, err := auth.SignUp(newMemCookies(), ident, nil, nil); km.CodeOf(err) != km.ErrCodeUserExists {
		t.Fatalf("Expected user-already-exists, got %v", err)
	}

	// And sign-in now works
	sess, err := auth.SignIn(newMemCookies(), ident, nil)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if sess.UserID == "" {
		t.Error("Expected the session to belong to the created user")
	}
}

func TestSignUpInitialUserData(t *testing.T) {
	auth, _ := newTestAuth(t)
	auth.InitialUserData = map[string]any{"plan": "free"}
	ident := &km.Identifier{Type: km.AuthTypeEmailOTP, Value: "bob@example.com"}

	if _, err := auth.SignUp(newMemCookies(), ident, map[string]any{"name": "Bob", "plan": "pro"}, nil); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	user, err := auth.Users.GetUserByIdentifier(ident)
	if err != nil {
		t.Fatalf("GetUserByIdentifier failed: %v", err)
	}
	profile := user.Profile()
	if profile["name"] != "Bob" {
		t.Errorf("Expected sign-up data preserved, got %v", profile)
	}
	// InitialUserData wins over caller supplied values
	if profile["plan"] != "free" {
		t.Errorf("Expected initial data to override, got %v", profile["plan"])
	}
}

// TestEmailOTPSignUpJourney drives the full first-contact flow over real
// HTTP plumbing: request a code, redeem it, sign up, then come back with the
// cookie.
func TestEmailOTPSignUpJourney(t *testing.T) {
	auth, mailer := newTestAuth(t)
	ctx := context.Background()

	// Step 1: request a code
	prep, err := auth.Prepare(ctx, km.AuthTypeEmailOTP, map[string]string{"email": "alice@example.com"})
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	code := extractCode(t, mailer.last(t).TextContent)

	// Step 2: redeem the code
	ident, err := auth.Authenticate(ctx, km.AuthTypeEmailOTP, map[string]string{
		"email": "alice@example.com",
		"otpId": prep["otpId"],
		"code":  code,
	})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	// Step 3: sign up, with the cookie written to a real response
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", nil)
	if _, err := auth.SignUp(km.NewHTTPCookieAdapter(rr, req), ident, map[string]any{"name": "Alice"}, nil); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	var sessionCookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == km.DefaultSessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("Expected a session cookie in the response")
	}
	if !sessionCookie.HttpOnly {
		t.Error("Session cookie must be HttpOnly")
	}
	if sessionCookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("Expected SameSite=Lax, got %v", sessionCookie.SameSite)
	}
	if sessionCookie.Path != "/" {
		t.Errorf("Expected Path=/, got %q", sessionCookie.Path)
	}
	if sessionCookie.MaxAge != 14*24*60*60 {
		t.Errorf("Expected 14 day MaxAge, got %d", sessionCookie.MaxAge)
	}
	if sessionCookie.Secure {
		t.Error("Secure should default off outside production")
	}

	// Step 4: the next request with that cookie is authenticated
	req2 := httptest.NewRequest(http.MethodGet, "/me", nil)
	req2.AddCookie(sessionCookie)
	user, sess, err := auth.CurrentUser(km.NewHTTPCookieAdapter(httptest.NewRecorder(), req2))
	if err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}
	if user.Id() != sess.UserID {
		t.Errorf("Session user mismatch: %s vs %s", user.Id(), sess.UserID)
	}
	if user.MFAEnabled() {
		t.Error("New accounts start with MFA disabled")
	}

	// Step 5: the burned OTP cannot mint another account
	if _, err := auth.Authenticate(ctx, km.AuthTypeEmailOTP, map[string]string{
		"email": "alice@example.com",
		"otpId": prep["otpId"],
		"code":  code,
	}); km.CodeOf(err) != km.ErrCodeOTPAlreadyUsed {
		t.Fatalf("Expected already-used, got %v", err)
	}
}

// extractCode pulls the 6 digit code out of the default email body
func extractCode(t *testing.T, body string) string {
	t.Helper()
	for i := 0; i+6 <= len(body); i++ {
		code := body[i : i+6]
		allDigits := true
		for _, c := range code {
			if c < '0' || c > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			return code
		}
	}
	t.Fatalf("No code found in email body: %q", body)
	return ""
}
