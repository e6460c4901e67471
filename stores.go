package kenmon

import "time"

// User represents a user account. The core treats users as opaque beyond
// their ID; the MFA flag is the only user attribute this library ever
// mutates (via UserStore.SetMFAEnabled).
type User interface {
	Id() string
	MFAEnabled() bool
	Profile() map[string]any
}

// BasicUser is a simple implementation of the User interface
type BasicUser struct {
	UserId  string         `json:"id"`
	MFA     bool           `json:"mfa_enabled"`
	Data    map[string]any `json:"data,omitempty"`
	Created time.Time      `json:"created_at"`
}

func (b *BasicUser) Id() string              { return b.UserId }
func (b *BasicUser) MFAEnabled() bool        { return b.MFA }
func (b *BasicUser) Profile() map[string]any { return b.Data }

// Session is the server-tracked authenticated context for a user. A session
// is valid iff !Invalidated && now <= ExpiresAt && the client-held token
// matches Token exactly. Expiry is a read-time classification and is never
// written back; invalidation is a terminal soft-state.
type Session struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Token         string     `json:"token"` // 256-bit random value, hex encoded (64 chars)
	ExpiresAt     time.Time  `json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
	RefreshedAt   time.Time  `json:"refreshed_at,omitempty"`
	UsedAt        time.Time  `json:"used_at,omitempty"`
	Invalidated   bool       `json:"invalidated"`
	InvalidatedAt *time.Time `json:"invalidated_at,omitempty"`
	IPAddress     string     `json:"ip_address,omitempty"`
	UserAgent     string     `json:"user_agent,omitempty"`
}

// IsExpired returns true if the session's expiry time has passed
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// OTP is a one-time numeric code bound to an email address. Used is a
// one-way latch set on successful verification.
type OTP struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	Signature string    `json:"signature"` // human-readable phrase, not a security control
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired returns true if the OTP's expiry time has passed
func (o *OTP) IsExpired() bool {
	return time.Now().After(o.ExpiresAt)
}

// SessionUpdate carries the mutable session fields for UpdateSession.
// Nil fields are left unchanged.
type SessionUpdate struct {
	ExpiresAt   *time.Time
	RefreshedAt *time.Time
	UsedAt      *time.Time
}

// UserStore manages user accounts and their identifier bindings.
// Many identifiers may map to one user; the (type, value) pair is unique.
type UserStore interface {
	// CreateUser creates a new user bound to the given identifier.
	// data becomes the user's initial profile.
	CreateUser(ident *Identifier, data map[string]any) (User, error)

	// GetUserById retrieves a user by ID. Returns ErrUserNotFound if absent.
	GetUserById(userID string) (User, error)

	// GetUserByIdentifier looks up the user bound to an identifier's
	// (type, value) pair. Returns ErrUserNotFound if absent.
	GetUserByIdentifier(ident *Identifier) (User, error)

	// SetMFAEnabled flips the user's MFA flag. The only user mutation this
	// library performs.
	SetMFAEnabled(userID string, enabled bool) error
}

// SessionStore manages durable session state. Sessions are never deleted;
// invalidation is a terminal write.
type SessionStore interface {
	// CreateSession persists a new session
	CreateSession(sess *Session) error

	// GetSessionById retrieves a session by ID. Returns ErrSessionNotFound if absent.
	GetSessionById(id string) (*Session, error)

	// UpdateSession applies the non-nil fields of upd to the session
	UpdateSession(id string, upd SessionUpdate) error

	// InvalidateSession marks a session invalidated (terminal)
	InvalidateSession(id string) error

	// InvalidateAllUserSessions invalidates every session belonging to the user
	InvalidateAllUserSessions(userID string) error
}

// OTPStore manages one-time password rows.
type OTPStore interface {
	// CreateOTP persists a new OTP row
	CreateOTP(otp *OTP) error

	// GetOTPById retrieves an OTP by ID. Returns ErrOTPNotFound if absent.
	GetOTPById(id string) (*OTP, error)

	// MarkOTPUsed sets the used latch. Must be an atomic conditional write:
	// if the latch was already set, returns ErrOTPAlreadyUsed. This is what
	// makes the single-use guarantee hold under concurrent verification.
	MarkOTPUsed(id string) error
}
