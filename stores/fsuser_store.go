package stores

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	km "github.com/Rokt33r/kenmon"
)

// FSUser implements the kenmon.User interface
type FSUser struct {
	UserId      string         `json:"id"`
	MFA         bool           `json:"mfa_enabled"`
	UserProfile map[string]any `json:"profile,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (u *FSUser) Id() string              { return u.UserId }
func (u *FSUser) MFAEnabled() bool        { return u.MFA }
func (u *FSUser) Profile() map[string]any { return u.UserProfile }

// identifierBinding is the persisted (type, value) -> user mapping
type identifierBinding struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FSUserStore stores users and identifier bindings as JSON files
type FSUserStore struct {
	StoragePath string
	mu          sync.Mutex
}

func NewFSUserStore(storagePath string) *FSUserStore {
	return &FSUserStore{StoragePath: storagePath}
}

func (s *FSUserStore) getUserPath(userID string) string {
	return filepath.Join(s.StoragePath, "users", userID+".json")
}

func (s *FSUserStore) getBindingPath(ident *km.Identifier) string {
	return filepath.Join(s.StoragePath, "identifiers", url.PathEscape(ident.Key())+".json")
}

func (s *FSUserStore) CreateUser(ident *km.Identifier, data map[string]any) (km.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bindingPath := s.getBindingPath(ident)
	if _, err := os.Stat(bindingPath); err == nil {
		return nil, fmt.Errorf("identifier already registered: %s", ident.Key())
	}

	user := &FSUser{
		UserId:      uuid.NewString(),
		MFA:         false,
		UserProfile: data,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.saveUser(user); err != nil {
		return nil, err
	}

	binding := &identifierBinding{
		Type:      ident.Type,
		Value:     ident.Value,
		UserID:    user.UserId,
		CreatedAt: time.Now(),
	}
	if err := os.MkdirAll(filepath.Dir(bindingPath), 0755); err != nil {
		return nil, err
	}
	bindingData, err := json.MarshalIndent(binding, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := writeAtomicFile(bindingPath, bindingData); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *FSUserStore) GetUserById(userID string) (km.User, error) {
	user, err := s.readUser(userID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *FSUserStore) GetUserByIdentifier(ident *km.Identifier) (km.User, error) {
	data, err := os.ReadFile(s.getBindingPath(ident))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, km.ErrUserNotFound
		}
		return nil, err
	}

	var binding identifierBinding
	if err := json.Unmarshal(data, &binding); err != nil {
		return nil, err
	}
	return s.GetUserById(binding.UserID)
}

func (s *FSUserStore) SetMFAEnabled(userID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.readUser(userID)
	if err != nil {
		return err
	}
	user.MFA = enabled
	user.UpdatedAt = time.Now()
	return s.saveUser(user)
}

func (s *FSUserStore) readUser(userID string) (*FSUser, error) {
	data, err := os.ReadFile(s.getUserPath(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, km.ErrUserNotFound
		}
		return nil, err
	}

	var user FSUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *FSUserStore) saveUser(user *FSUser) error {
	path := s.getUserPath(user.UserId)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}
