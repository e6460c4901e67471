//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	km "github.com/Rokt33r/kenmon"
)

// Kind constants for Datastore entities
const (
	KindUser       = "User"
	KindIdentifier = "Identifier"
	KindSession    = "Session"
	KindOTP        = "OTP"
)

// ============================================================================
// Entities
// ============================================================================

// UserEntity is the Datastore entity for users
type UserEntity struct {
	Key        *datastore.Key `datastore:"__key__"`
	MFAEnabled bool           `datastore:"mfa_enabled"`
	Profile    []byte         `datastore:"profile,noindex"` // JSON encoded
	CreatedAt  time.Time      `datastore:"created_at"`
	UpdatedAt  time.Time      `datastore:"updated_at"`
}

// GAEUser implements the kenmon.User interface
type GAEUser struct {
	UserID  string
	MFA     bool
	Data    map[string]any
	Created time.Time
}

func (u *GAEUser) Id() string              { return u.UserID }
func (u *GAEUser) MFAEnabled() bool        { return u.MFA }
func (u *GAEUser) Profile() map[string]any { return u.Data }

// IdentifierEntity binds a (type, value) pair to a user.
// Key name: Type + ":" + Value.
type IdentifierEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Type      string         `datastore:"type"`
	Value     string         `datastore:"value"`
	UserID    string         `datastore:"user_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

// SessionEntity is the Datastore entity for sessions
type SessionEntity struct {
	Key           *datastore.Key `datastore:"__key__"`
	UserID        string         `datastore:"user_id"`
	Token         string         `datastore:"token,noindex"`
	ExpiresAt     time.Time      `datastore:"expires_at"`
	CreatedAt     time.Time      `datastore:"created_at"`
	RefreshedAt   time.Time      `datastore:"refreshed_at,noindex"`
	UsedAt        time.Time      `datastore:"used_at,noindex"`
	Invalidated   bool           `datastore:"invalidated"`
	InvalidatedAt time.Time      `datastore:"invalidated_at,noindex"`
	IPAddress     string         `datastore:"ip_address,noindex"`
	UserAgent     string         `datastore:"user_agent,noindex"`
}

func (e *SessionEntity) ToSession() *km.Session {
	sess := &km.Session{
		ID:          e.Key.Name,
		UserID:      e.UserID,
		Token:       e.Token,
		ExpiresAt:   e.ExpiresAt,
		CreatedAt:   e.CreatedAt,
		RefreshedAt: e.RefreshedAt,
		UsedAt:      e.UsedAt,
		Invalidated: e.Invalidated,
		IPAddress:   e.IPAddress,
		UserAgent:   e.UserAgent,
	}
	if !e.InvalidatedAt.IsZero() {
		t := e.InvalidatedAt
		sess.InvalidatedAt = &t
	}
	return sess
}

// OTPEntity is the Datastore entity for one-time passwords
type OTPEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Email     string         `datastore:"email"`
	Code      string         `datastore:"code,noindex"`
	Signature string         `datastore:"signature,noindex"`
	ExpiresAt time.Time      `datastore:"expires_at"`
	Used      bool           `datastore:"used"`
	CreatedAt time.Time      `datastore:"created_at"`
}

func (e *OTPEntity) ToOTP() *km.OTP {
	return &km.OTP{
		ID:        e.Key.Name,
		Email:     e.Email,
		Code:      e.Code,
		Signature: e.Signature,
		ExpiresAt: e.ExpiresAt,
		Used:      e.Used,
		CreatedAt: e.CreatedAt,
	}
}

// ============================================================================
// UserStore
// ============================================================================

// UserStore implements kenmon.UserStore using Google Cloud Datastore
type UserStore struct {
	client    *datastore.Client
	namespace string
	ctx       context.Context
}

// NewUserStore creates a new Datastore-backed UserStore
func NewUserStore(client *datastore.Client, namespace string) *UserStore {
	return &UserStore{client: client, namespace: namespace, ctx: context.Background()}
}

// WithContext returns a copy of the store with the given context
func (s *UserStore) WithContext(ctx context.Context) *UserStore {
	return &UserStore{client: s.client, namespace: s.namespace, ctx: ctx}
}

func (s *UserStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *UserStore) CreateUser(ident *km.Identifier, data map[string]any) (km.User, error) {
	userID := uuid.NewString()
	profile, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	userKey := s.namespacedKey(KindUser, userID)
	bindingKey := s.namespacedKey(KindIdentifier, ident.Key())

	_, err = s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var existing IdentifierEntity
		if err := tx.Get(bindingKey, &existing); err == nil {
			return errors.New("identifier already registered: " + ident.Key())
		} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}

		if _, err := tx.Put(userKey, &UserEntity{
			MFAEnabled: false,
			Profile:    profile,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return err
		}
		_, err := tx.Put(bindingKey, &IdentifierEntity{
			Type:      ident.Type,
			Value:     ident.Value,
			UserID:    userID,
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return &GAEUser{UserID: userID, Data: data, Created: now}, nil
}

func (s *UserStore) GetUserById(userID string) (km.User, error) {
	var entity UserEntity
	if err := s.client.Get(s.ctx, s.namespacedKey(KindUser, userID), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, km.ErrUserNotFound
		}
		return nil, err
	}

	var data map[string]any
	if len(entity.Profile) > 0 {
		if err := json.Unmarshal(entity.Profile, &data); err != nil {
			return nil, err
		}
	}
	return &GAEUser{UserID: userID, MFA: entity.MFAEnabled, Data: data, Created: entity.CreatedAt}, nil
}

func (s *UserStore) GetUserByIdentifier(ident *km.Identifier) (km.User, error) {
	var binding IdentifierEntity
	if err := s.client.Get(s.ctx, s.namespacedKey(KindIdentifier, ident.Key()), &binding); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, km.ErrUserNotFound
		}
		return nil, err
	}
	return s.GetUserById(binding.UserID)
}

func (s *UserStore) SetMFAEnabled(userID string, enabled bool) error {
	key := s.namespacedKey(KindUser, userID)
	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return km.ErrUserNotFound
			}
			return err
		}
		entity.MFAEnabled = enabled
		entity.UpdatedAt = time.Now()
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

// ============================================================================
// SessionStore
// ============================================================================

// SessionStore implements kenmon.SessionStore using Google Cloud Datastore
type SessionStore struct {
	client    *datastore.Client
	namespace string
	ctx       context.Context
}

// NewSessionStore creates a new Datastore-backed SessionStore
func NewSessionStore(client *datastore.Client, namespace string) *SessionStore {
	return &SessionStore{client: client, namespace: namespace, ctx: context.Background()}
}

// WithContext returns a copy of the store with the given context
func (s *SessionStore) WithContext(ctx context.Context) *SessionStore {
	return &SessionStore{client: s.client, namespace: s.namespace, ctx: ctx}
}

func (s *SessionStore) sessionKey(id string) *datastore.Key {
	key := datastore.NameKey(KindSession, id, nil)
	key.Namespace = s.namespace
	return key
}

func (s *SessionStore) CreateSession(sess *km.Session) error {
	entity := &SessionEntity{
		UserID:      sess.UserID,
		Token:       sess.Token,
		ExpiresAt:   sess.ExpiresAt,
		CreatedAt:   sess.CreatedAt,
		RefreshedAt: sess.RefreshedAt,
		UsedAt:      sess.UsedAt,
		Invalidated: sess.Invalidated,
		IPAddress:   sess.IPAddress,
		UserAgent:   sess.UserAgent,
	}
	_, err := s.client.Put(s.ctx, s.sessionKey(sess.ID), entity)
	return err
}

func (s *SessionStore) GetSessionById(id string) (*km.Session, error) {
	var entity SessionEntity
	if err := s.client.Get(s.ctx, s.sessionKey(id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, km.ErrSessionNotFound
		}
		return nil, err
	}
	entity.Key = s.sessionKey(id)
	return entity.ToSession(), nil
}

func (s *SessionStore) UpdateSession(id string, upd km.SessionUpdate) error {
	key := s.sessionKey(id)
	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var entity SessionEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return km.ErrSessionNotFound
			}
			return err
		}
		if entity.Invalidated {
			return km.ErrSessionNotFound
		}
		if upd.ExpiresAt != nil {
			entity.ExpiresAt = *upd.ExpiresAt
		}
		if upd.RefreshedAt != nil {
			entity.RefreshedAt = *upd.RefreshedAt
		}
		if upd.UsedAt != nil {
			entity.UsedAt = *upd.UsedAt
		}
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

func (s *SessionStore) InvalidateSession(id string) error {
	key := s.sessionKey(id)
	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var entity SessionEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return km.ErrSessionNotFound
			}
			return err
		}
		if entity.Invalidated {
			return nil
		}
		entity.Invalidated = true
		entity.InvalidatedAt = time.Now()
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

func (s *SessionStore) InvalidateAllUserSessions(userID string) error {
	query := datastore.NewQuery(KindSession).
		Namespace(s.namespace).
		FilterField("user_id", "=", userID).
		FilterField("invalidated", "=", false).
		KeysOnly()

	it := s.client.Run(s.ctx, query)
	for {
		key, err := it.Next(nil)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return err
		}
		if err := s.InvalidateSession(key.Name); err != nil && !errors.Is(err, km.ErrSessionNotFound) {
			return err
		}
	}
	return nil
}

// ============================================================================
// OTPStore
// ============================================================================

// OTPStore implements kenmon.OTPStore using Google Cloud Datastore
type OTPStore struct {
	client    *datastore.Client
	namespace string
	ctx       context.Context
}

// NewOTPStore creates a new Datastore-backed OTPStore
func NewOTPStore(client *datastore.Client, namespace string) *OTPStore {
	return &OTPStore{client: client, namespace: namespace, ctx: context.Background()}
}

// WithContext returns a copy of the store with the given context
func (s *OTPStore) WithContext(ctx context.Context) *OTPStore {
	return &OTPStore{client: s.client, namespace: s.namespace, ctx: ctx}
}

func (s *OTPStore) otpKey(id string) *datastore.Key {
	key := datastore.NameKey(KindOTP, id, nil)
	key.Namespace = s.namespace
	return key
}

func (s *OTPStore) CreateOTP(otp *km.OTP) error {
	entity := &OTPEntity{
		Email:     otp.Email,
		Code:      otp.Code,
		Signature: otp.Signature,
		ExpiresAt: otp.ExpiresAt,
		Used:      otp.Used,
		CreatedAt: otp.CreatedAt,
	}
	_, err := s.client.Put(s.ctx, s.otpKey(otp.ID), entity)
	return err
}

func (s *OTPStore) GetOTPById(id string) (*km.OTP, error) {
	var entity OTPEntity
	if err := s.client.Get(s.ctx, s.otpKey(id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, km.ErrOTPNotFound
		}
		return nil, err
	}
	entity.Key = s.otpKey(id)
	return entity.ToOTP(), nil
}

func (s *OTPStore) MarkOTPUsed(id string) error {
	key := s.otpKey(id)
	// The transaction is what makes the latch single-winner
	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var entity OTPEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return km.ErrOTPNotFound
			}
			return err
		}
		if entity.Used {
			return km.ErrOTPAlreadyUsed
		}
		entity.Used = true
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}
