package kenmon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type userParamNameKey string

// Middleware verifies the session cookie on incoming requests and exposes
// the logged-in user ID to downstream handlers via the request context.
type Middleware struct {
	Sessions *SessionManager

	// UserParamName is the context key the user ID is stored under.
	// Defaults to "loggedInUserId".
	UserParamName string

	// CallbackURLParam is the query parameter carrying the post-login
	// redirect target. Defaults to "callbackURL".
	CallbackURLParam string

	// GetRedirURL returns the login URL to redirect unauthenticated
	// requests to. When nil (or it returns ""), EnsureUser responds 401.
	GetRedirURL func(r *http.Request) string
}

// EnsureReasonableDefaults ensures config values have reasonable defaults
func (m *Middleware) EnsureReasonableDefaults() {
	if m.UserParamName == "" {
		m.UserParamName = "loggedInUserId"
	}
	if m.CallbackURLParam == "" {
		m.CallbackURLParam = "callbackURL"
	}
}

// GetLoggedInUserId returns the ID of the logged in user for the current
// request, or "" when the request carries no valid session.
func (m *Middleware) GetLoggedInUserId(r *http.Request) string {
	m.EnsureReasonableDefaults()
	if v := r.Context().Value(userParamNameKey(m.UserParamName)); v != nil {
		if userID, ok := v.(string); ok && userID != "" {
			return userID
		}
	}
	return ""
}

// ExtractUser verifies the session cookie and loads the user ID into the
// request context. It does not reject unauthenticated requests; use
// EnsureUser for that.
func (m *Middleware) ExtractUser(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, m.withLoggedInUser(w, r))
	})
}

// EnsureUser verifies the session cookie and either passes the request
// through with the user ID in context, redirects to the login URL, or
// responds 401.
func (m *Middleware) EnsureUser(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = m.withLoggedInUser(w, r)
		if m.GetLoggedInUserId(r) == "" {
			redirURL := ""
			if m.GetRedirURL != nil {
				redirURL = m.GetRedirURL(r)
			}
			if redirURL != "" {
				encodedURL := strings.Replace(url.QueryEscape(r.URL.Path), "+", "%20", -1)
				http.Redirect(w, r, fmt.Sprintf("%s?%s=%s", redirURL, m.CallbackURLParam, encodedURL), http.StatusFound)
			} else {
				http.Error(w, "Login required", http.StatusUnauthorized)
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLoggedInUser runs session verification and stores the user ID (or "")
// as a request scoped variable.
func (m *Middleware) withLoggedInUser(w http.ResponseWriter, r *http.Request) *http.Request {
	userID := ""
	sess, err := m.Sessions.VerifySession(NewHTTPCookieAdapter(w, r))
	if err == nil {
		userID = sess.UserID
	} else if CodeOf(err) == ErrCodeInternal {
		slog.Warn("session verification failed", "error", err)
	}
	ctx := context.WithValue(r.Context(), userParamNameKey(m.UserParamName), userID)
	return r.WithContext(ctx)
}
