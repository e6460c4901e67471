package stores

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	km "github.com/Rokt33r/kenmon"
)

// FSSessionStore stores sessions as JSON files. Mutations go through a
// store-level mutex so the invalidation and touch writes behave like the
// conditional updates a database store would use.
type FSSessionStore struct {
	StoragePath string
	mu          sync.Mutex
}

func NewFSSessionStore(storagePath string) *FSSessionStore {
	return &FSSessionStore{StoragePath: storagePath}
}

func (s *FSSessionStore) getSessionPath(id string) string {
	return filepath.Join(s.StoragePath, "sessions", id+".json")
}

func (s *FSSessionStore) CreateSession(sess *km.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveSession(sess)
}

func (s *FSSessionStore) GetSessionById(id string) (*km.Session, error) {
	data, err := os.ReadFile(s.getSessionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, km.ErrSessionNotFound
		}
		return nil, err
	}

	var sess km.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *FSSessionStore) UpdateSession(id string, upd km.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.GetSessionById(id)
	if err != nil {
		return err
	}
	if upd.ExpiresAt != nil {
		sess.ExpiresAt = *upd.ExpiresAt
	}
	if upd.RefreshedAt != nil {
		sess.RefreshedAt = *upd.RefreshedAt
	}
	if upd.UsedAt != nil {
		sess.UsedAt = *upd.UsedAt
	}
	return s.saveSession(sess)
}

func (s *FSSessionStore) InvalidateSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidate(id)
}

func (s *FSSessionStore) InvalidateAllUserSessions(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionsDir := filepath.Join(s.StoragePath, "sessions")
	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(sessionsDir, entry.Name()))
		if err != nil {
			continue
		}
		var sess km.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		if sess.UserID != userID || sess.Invalidated {
			continue
		}
		if err := s.invalidate(sess.ID); err != nil {
			return err
		}
	}
	return nil
}

// invalidate marks a session terminally invalidated. Callers hold the mutex.
func (s *FSSessionStore) invalidate(id string) error {
	sess, err := s.GetSessionById(id)
	if err != nil {
		return err
	}
	if sess.Invalidated {
		return nil
	}
	now := time.Now()
	sess.Invalidated = true
	sess.InvalidatedAt = &now
	return s.saveSession(sess)
}

func (s *FSSessionStore) saveSession(sess *km.Session) error {
	path := s.getSessionPath(sess.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}
