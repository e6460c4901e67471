// Package kenmon is a framework-independent session and credential
// lifecycle core: it issues, verifies, refreshes and revokes user sessions,
// and validates one-time-password and OAuth identity proofs.
//
// # Architecture
//
// Identifier: a verified binding of an authentication method ("email-otp",
// "google-oauth") to a stable external identity value (email address,
// Google subject). Verifiers produce identifiers; the orchestrator consumes
// them.
//
// SessionManager: the authoritative session state machine. Sessions are
// 256-bit random tokens stored server-side and referenced by an
// HMAC-signed cookie wrapping the {sessionId, token} pair.
//
// EmailOTP and oauth2.GoogleOAuth: credential verifiers. Each validates a
// proof of identity and yields an Identifier, owning its own short-lived
// secret state (OTP codes, OAuth CSRF state tokens).
//
// Auth: the orchestrator composing verifiers, session manager and stores
// into sign-in/sign-up/sign-out flows.
//
// # Basic Usage
//
// Set up stores and the session manager:
//
//	import (
//	    "github.com/Rokt33r/kenmon"
//	    "github.com/Rokt33r/kenmon/stores"
//	)
//
//	storagePath := "/path/to/storage"
//	sessions := &kenmon.SessionManager{
//	    Store:  stores.NewFSSessionStore(storagePath),
//	    Secret: "your-signing-secret",
//	}
//
//	auth := &kenmon.Auth{
//	    Users:    stores.NewFSUserStore(storagePath),
//	    Sessions: sessions,
//	}
//	auth.Register(&kenmon.EmailOTP{
//	    Store:  stores.NewFSOTPStore(storagePath),
//	    Mailer: &kenmon.ConsoleMailer{},
//	    From:   "noreply@yourapp.com",
//	})
//
// Run a sign-up flow from an HTTP handler:
//
//	func handleVerify(w http.ResponseWriter, r *http.Request) {
//	    cookies := kenmon.NewHTTPCookieAdapter(w, r)
//	    ident, err := auth.Authenticate(r.Context(), "email-otp", map[string]string{
//	        "email": r.FormValue("email"),
//	        "otpId": r.FormValue("otpId"),
//	        "code":  r.FormValue("code"),
//	    })
//	    if err != nil {
//	        // kenmon.CodeOf(err) tells you which check failed
//	        return
//	    }
//	    session, err := auth.SignUp(cookies, ident, nil, nil)
//	    _ = session
//	}
//
// # Store Implementations
//
// File-based stores in the stores package suit development and tests. GORM
// and Cloud Datastore stores live in stores/gorm and stores/gae. The OTP
// single-use latch and session invalidation rely on the store performing
// atomic conditional writes; all three implementations honor this.
//
// # Security
//
// Session tokens are cryptographically secure 32-byte values, hex-encoded
// to 64 characters, compared with exact string equality on every verify.
// The signed cookie binds the session ID and token together, so a leaked
// signing secret alone is not enough to forge a session. Cookies are always
// HttpOnly; Secure defaults on in production; SameSite defaults to Lax.
//
// # Errors
//
// Every public operation returns a typed *AuthError; internal JWT and store
// failures are caught at the boundary and mapped into the error taxonomy.
package kenmon
