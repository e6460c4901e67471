package kenmon

import "net/http"

// CookieOptions controls the attributes of a written cookie. HttpOnly is
// always forced on by the session manager regardless of what callers set.
type CookieOptions struct {
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
	MaxAge   int // seconds
	Path     string
}

// CookieAdapter abstracts framework-specific cookie plumbing. The session
// manager only ever talks to cookies through this interface, so the core
// stays framework independent. Adapters are request-scoped: construct one
// per request and pass it explicitly (no ambient request state).
type CookieAdapter interface {
	SetCookie(name, value string, opts CookieOptions)
	// GetCookie returns the cookie value, or "" if the cookie is absent
	GetCookie(name string) string
	DeleteCookie(name string)
}

// HTTPCookieAdapter is the net/http reference implementation of CookieAdapter
type HTTPCookieAdapter struct {
	Writer  http.ResponseWriter
	Request *http.Request
}

// NewHTTPCookieAdapter binds an adapter to one request/response pair
func NewHTTPCookieAdapter(w http.ResponseWriter, r *http.Request) *HTTPCookieAdapter {
	return &HTTPCookieAdapter{Writer: w, Request: r}
}

func (a *HTTPCookieAdapter) SetCookie(name, value string, opts CookieOptions) {
	http.SetCookie(a.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     opts.Path,
		MaxAge:   opts.MaxAge,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

func (a *HTTPCookieAdapter) GetCookie(name string) string {
	cookie, err := a.Request.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (a *HTTPCookieAdapter) DeleteCookie(name string) {
	http.SetCookie(a.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
