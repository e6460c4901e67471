package kenmon

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultSessionTTL is how long a session lives without a refresh (14 days)
const DefaultSessionTTL = 14 * 24 * time.Hour

// DefaultSessionCookieName is the cookie the signed session reference is stored in
const DefaultSessionCookieName = "session"

// SessionOptions carries optional request metadata recorded on the session
type SessionOptions struct {
	IPAddress string
	UserAgent string
}

// SignOutOptions controls the scope of a sign-out
type SignOutOptions struct {
	// AllSessions invalidates every session of the acting user, not just the current one
	AllSessions bool
}

// SessionManager is the authoritative session state machine. It mints
// sessions backed by a SessionStore and encodes the {sessionId, token} pair
// as an HS256-signed cookie value.
//
// The signed payload carries both the session ID and the server-side random
// token. The signature alone would prove authenticity, but the stored-token
// comparison means a leaked signing secret is still not enough to forge a
// session, and invalidation takes effect immediately.
type SessionManager struct {
	Store SessionStore

	// Secret signs session cookies. Falls back to KENMON_SECRET.
	Secret string

	// TTL is the session lifetime. Defaults to 14 days.
	TTL time.Duration

	// CookieName defaults to "session"
	CookieName string

	// CookiePath defaults to "/"
	CookiePath string

	// SameSite defaults to http.SameSiteLaxMode
	SameSite http.SameSite

	// Secure marks the cookie Secure. When nil, defaults to true iff
	// Environment is "production".
	Secure *bool

	// Environment drives the Secure default. Falls back to KENMON_ENV.
	Environment string
}

// EnsureDefaults fills in default values for any unset fields
func (m *SessionManager) EnsureDefaults() *SessionManager {
	if m.Secret == "" {
		m.Secret = strings.TrimSpace(os.Getenv("KENMON_SECRET"))
	}
	if m.TTL <= 0 {
		m.TTL = DefaultSessionTTL
	}
	if m.CookieName == "" {
		m.CookieName = DefaultSessionCookieName
	}
	if m.CookiePath == "" {
		m.CookiePath = "/"
	}
	if m.SameSite == 0 {
		m.SameSite = http.SameSiteLaxMode
	}
	if m.Environment == "" {
		m.Environment = os.Getenv("KENMON_ENV")
	}
	if m.Secure == nil {
		secure := m.Environment == "production"
		m.Secure = &secure
	}
	return m
}

// CreateSession mints a new session for the user, persists it, and writes
// the signed session cookie.
func (m *SessionManager) CreateSession(cookies CookieAdapter, userID string, opts *SessionOptions) (*Session, error) {
	m.EnsureDefaults()

	token, err := GenerateSecureToken()
	if err != nil {
		return nil, WrapAuthError(ErrCodeInternal, "failed to generate session token", err)
	}

	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: now.Add(m.TTL),
		CreatedAt: now,
	}
	if opts != nil {
		sess.IPAddress = opts.IPAddress
		sess.UserAgent = opts.UserAgent
	}

	if err := m.Store.CreateSession(sess); err != nil {
		return nil, WrapAuthError(ErrCodeInternal, "failed to persist session", err)
	}

	signed, err := m.signSessionToken(sess.ID, sess.Token)
	if err != nil {
		return nil, WrapAuthError(ErrCodeInternal, "failed to sign session token", err)
	}
	m.writeSessionCookie(cookies, signed)

	return sess, nil
}

// VerifySession reads the session cookie and verifies it against stored
// session state. Fails with SessionNotFound when no cookie is present,
// InvalidSession for signature/lookup/token-mismatch/invalidated failures
// (deliberately collapsed so callers cannot tell which), and SessionExpired
// past the expiry time. On success the session's usedAt is touched.
func (m *SessionManager) VerifySession(cookies CookieAdapter) (*Session, error) {
	m.EnsureDefaults()

	raw := cookies.GetCookie(m.CookieName)
	if raw == "" {
		return nil, NewAuthError(ErrCodeSessionNotFound, "no session cookie")
	}
	return m.VerifyToken(raw)
}

// VerifyToken runs the same verification as VerifySession given the raw
// signed token instead of a cookie read. Used by the HTTP middleware and
// the gRPC interceptors, which carry the token outside a cookie.
func (m *SessionManager) VerifyToken(signed string) (*Session, error) {
	m.EnsureDefaults()

	sessionID, token, err := m.decodeSessionToken(signed)
	if err != nil {
		return nil, WrapAuthError(ErrCodeInvalidSession, "invalid session token", err)
	}

	sess, err := m.Store.GetSessionById(sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, NewAuthError(ErrCodeInvalidSession, "invalid session")
		}
		return nil, WrapAuthError(ErrCodeInternal, "failed to load session", err)
	}

	// Exact comparison against the full stored value. Mismatch and
	// invalidation collapse into the same error.
	if sess.Token != token || sess.Invalidated {
		return nil, NewAuthError(ErrCodeInvalidSession, "invalid session")
	}

	if sess.IsExpired() {
		return nil, NewAuthError(ErrCodeSessionExpired, "session expired")
	}

	// Best-effort touch, not security relevant
	now := time.Now()
	if err := m.Store.UpdateSession(sess.ID, SessionUpdate{UsedAt: &now}); err != nil {
		log.Printf("failed to touch session %s: %v", sess.ID, err)
	} else {
		sess.UsedAt = now
	}

	return sess, nil
}

// RefreshSession verifies the current session and extends its expiry by the
// configured TTL, re-issuing the cookie with the same {sessionId, token}
// pair. Refresh never rotates the token: rotation would invalidate
// concurrent tabs and devices sharing a browser profile.
func (m *SessionManager) RefreshSession(cookies CookieAdapter) error {
	sess, err := m.VerifySession(cookies)
	if err != nil {
		return err
	}

	now := time.Now()
	expiresAt := now.Add(m.TTL)
	if err := m.Store.UpdateSession(sess.ID, SessionUpdate{ExpiresAt: &expiresAt, RefreshedAt: &now}); err != nil {
		return WrapAuthError(ErrCodeInternal, "failed to refresh session", err)
	}

	signed, err := m.signSessionToken(sess.ID, sess.Token)
	if err != nil {
		return WrapAuthError(ErrCodeInternal, "failed to sign session token", err)
	}
	m.writeSessionCookie(cookies, signed)
	return nil
}

// SignOut invalidates the current session (or all of the user's sessions)
// and deletes the cookie. The cookie is deleted even when no valid session
// was found, so sign-out is idempotent.
func (m *SessionManager) SignOut(cookies CookieAdapter, opts *SignOutOptions) error {
	m.EnsureDefaults()

	sess, err := m.VerifySession(cookies)
	if err == nil {
		if opts != nil && opts.AllSessions {
			err = m.Store.InvalidateAllUserSessions(sess.UserID)
		} else {
			err = m.Store.InvalidateSession(sess.ID)
		}
		if err != nil {
			cookies.DeleteCookie(m.CookieName)
			return WrapAuthError(ErrCodeInternal, "failed to invalidate session", err)
		}
	}

	cookies.DeleteCookie(m.CookieName)
	return nil
}

// signSessionToken encodes the {sessionId, token} pair as an HS256 JWT
func (m *SessionManager) signSessionToken(sessionID, token string) (string, error) {
	claims := jwt.MapClaims{
		"sessionId": sessionID,
		"token":     token,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.Secret))
}

// decodeSessionToken verifies the signature and extracts the pair
func (m *SessionManager) decodeSessionToken(signed string) (sessionID, token string, err error) {
	parsed, err := jwt.Parse(signed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(m.Secret), nil
	})
	if err != nil {
		return "", "", err
	}
	if !parsed.Valid {
		return "", "", fmt.Errorf("invalid token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid claims")
	}
	sessionID, ok = claims["sessionId"].(string)
	if !ok || sessionID == "" {
		return "", "", fmt.Errorf("missing sessionId claim")
	}
	token, ok = claims["token"].(string)
	if !ok || token == "" {
		return "", "", fmt.Errorf("missing token claim")
	}
	return sessionID, token, nil
}

func (m *SessionManager) writeSessionCookie(cookies CookieAdapter, signed string) {
	cookies.SetCookie(m.CookieName, signed, CookieOptions{
		HttpOnly: true, // always forced
		Secure:   *m.Secure,
		SameSite: m.SameSite,
		MaxAge:   int(m.TTL.Seconds()),
		Path:     m.CookiePath,
	})
}
