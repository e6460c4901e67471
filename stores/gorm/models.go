package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	km "github.com/Rokt33r/kenmon"
)

// JSONMap is a helper type for storing JSON maps in GORM
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// UserModel is the GORM model for users
type UserModel struct {
	ID         string    `gorm:"primaryKey;size:64"`
	MFAEnabled bool      `gorm:"default:false"`
	Profile    JSONMap   `gorm:"type:jsonb"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *GORMUser {
	return &GORMUser{model: m}
}

// IdentifierModel persists the unique (type, value) -> user binding
type IdentifierModel struct {
	Type      string    `gorm:"primaryKey;size:32"`
	Value     string    `gorm:"primaryKey;size:255"`
	UserID    string    `gorm:"size:64;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (IdentifierModel) TableName() string {
	return "identifiers"
}

// SessionModel is the GORM model for sessions
type SessionModel struct {
	ID            string     `gorm:"primaryKey;size:64"`
	UserID        string     `gorm:"size:64;index"`
	Token         string     `gorm:"size:64"`
	ExpiresAt     time.Time  ``
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
	RefreshedAt   *time.Time ``
	UsedAt        *time.Time ``
	Invalidated   bool       `gorm:"default:false"`
	InvalidatedAt *time.Time ``
	IPAddress     string     `gorm:"size:64"`
	UserAgent     string     `gorm:"size:512"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

func (m *SessionModel) ToSession() *km.Session {
	sess := &km.Session{
		ID:            m.ID,
		UserID:        m.UserID,
		Token:         m.Token,
		ExpiresAt:     m.ExpiresAt,
		CreatedAt:     m.CreatedAt,
		Invalidated:   m.Invalidated,
		InvalidatedAt: m.InvalidatedAt,
		IPAddress:     m.IPAddress,
		UserAgent:     m.UserAgent,
	}
	if m.RefreshedAt != nil {
		sess.RefreshedAt = *m.RefreshedAt
	}
	if m.UsedAt != nil {
		sess.UsedAt = *m.UsedAt
	}
	return sess
}

// OTPModel is the GORM model for one-time passwords
type OTPModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Email     string    `gorm:"size:255;index"`
	Code      string    `gorm:"size:16"`
	Signature string    `gorm:"size:128"`
	ExpiresAt time.Time ``
	Used      bool      `gorm:"default:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (OTPModel) TableName() string {
	return "otps"
}

func (m *OTPModel) ToOTP() *km.OTP {
	return &km.OTP{
		ID:        m.ID,
		Email:     m.Email,
		Code:      m.Code,
		Signature: m.Signature,
		ExpiresAt: m.ExpiresAt,
		Used:      m.Used,
		CreatedAt: m.CreatedAt,
	}
}
