package gorm

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	km "github.com/Rokt33r/kenmon"
)

// AutoMigrate runs database migrations for all kenmon tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&IdentifierModel{},
		&SessionModel{},
		&OTPModel{},
	)
}

// =============================================================================
// UserStore
// =============================================================================

// GORMUser implements the kenmon.User interface
type GORMUser struct {
	model *UserModel
}

func (u *GORMUser) Id() string              { return u.model.ID }
func (u *GORMUser) MFAEnabled() bool        { return u.model.MFAEnabled }
func (u *GORMUser) Profile() map[string]any { return u.model.Profile }

// UserStore implements kenmon.UserStore using GORM
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CreateUser(ident *km.Identifier, data map[string]any) (km.User, error) {
	model := &UserModel{
		ID:      uuid.NewString(),
		Profile: data,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		binding := &IdentifierModel{
			Type:   ident.Type,
			Value:  ident.Value,
			UserID: model.ID,
		}
		return tx.Create(binding).Error
	})
	if err != nil {
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) GetUserById(userID string) (km.User, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, km.ErrUserNotFound
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) GetUserByIdentifier(ident *km.Identifier) (km.User, error) {
	var binding IdentifierModel
	err := s.db.First(&binding, "type = ? AND value = ?", ident.Type, ident.Value).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, km.ErrUserNotFound
		}
		return nil, err
	}
	return s.GetUserById(binding.UserID)
}

func (s *UserStore) SetMFAEnabled(userID string, enabled bool) error {
	res := s.db.Model(&UserModel{}).Where("id = ?", userID).Update("mfa_enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return km.ErrUserNotFound
	}
	return nil
}

// =============================================================================
// SessionStore
// =============================================================================

// SessionStore implements kenmon.SessionStore using GORM
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) CreateSession(sess *km.Session) error {
	model := &SessionModel{
		ID:        sess.ID,
		UserID:    sess.UserID,
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		IPAddress: sess.IPAddress,
		UserAgent: sess.UserAgent,
	}
	return s.db.Create(model).Error
}

func (s *SessionStore) GetSessionById(id string) (*km.Session, error) {
	var model SessionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, km.ErrSessionNotFound
		}
		return nil, err
	}
	return model.ToSession(), nil
}

func (s *SessionStore) UpdateSession(id string, upd km.SessionUpdate) error {
	updates := map[string]any{}
	if upd.ExpiresAt != nil {
		updates["expires_at"] = *upd.ExpiresAt
	}
	if upd.RefreshedAt != nil {
		updates["refreshed_at"] = *upd.RefreshedAt
	}
	if upd.UsedAt != nil {
		updates["used_at"] = *upd.UsedAt
	}
	if len(updates) == 0 {
		return nil
	}

	// Refresh must not resurrect an invalidated session
	res := s.db.Model(&SessionModel{}).
		Where("id = ? AND invalidated = ?", id, false).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return km.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) InvalidateSession(id string) error {
	now := time.Now()
	res := s.db.Model(&SessionModel{}).
		Where("id = ? AND invalidated = ?", id, false).
		Updates(map[string]any{"invalidated": true, "invalidated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Missing vs already invalidated: the latter is fine (idempotent)
		var model SessionModel
		if err := s.db.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return km.ErrSessionNotFound
			}
			return err
		}
	}
	return nil
}

func (s *SessionStore) InvalidateAllUserSessions(userID string) error {
	now := time.Now()
	return s.db.Model(&SessionModel{}).
		Where("user_id = ? AND invalidated = ?", userID, false).
		Updates(map[string]any{"invalidated": true, "invalidated_at": now}).Error
}

// =============================================================================
// OTPStore
// =============================================================================

// OTPStore implements kenmon.OTPStore using GORM
type OTPStore struct {
	db *gorm.DB
}

func NewOTPStore(db *gorm.DB) *OTPStore {
	return &OTPStore{db: db}
}

func (s *OTPStore) CreateOTP(otp *km.OTP) error {
	model := &OTPModel{
		ID:        otp.ID,
		Email:     otp.Email,
		Code:      otp.Code,
		Signature: otp.Signature,
		ExpiresAt: otp.ExpiresAt,
		Used:      otp.Used,
	}
	return s.db.Create(model).Error
}

func (s *OTPStore) GetOTPById(id string) (*km.OTP, error) {
	var model OTPModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, km.ErrOTPNotFound
		}
		return nil, err
	}
	return model.ToOTP(), nil
}

func (s *OTPStore) MarkOTPUsed(id string) error {
	// Conditional update: only one concurrent redemption can win
	res := s.db.Model(&OTPModel{}).
		Where("id = ? AND used = ?", id, false).
		Update("used", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var model OTPModel
		if err := s.db.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return km.ErrOTPNotFound
			}
			return err
		}
		return km.ErrOTPAlreadyUsed
	}
	return nil
}
