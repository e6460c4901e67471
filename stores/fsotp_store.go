package stores

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	km "github.com/Rokt33r/kenmon"
)

// FSOTPStore stores OTP rows as JSON files. MarkOTPUsed runs under a
// store-level mutex so the used latch is a check-and-set, never a blind
// write - two concurrent redemptions cannot both succeed.
type FSOTPStore struct {
	StoragePath string
	mu          sync.Mutex
}

func NewFSOTPStore(storagePath string) *FSOTPStore {
	return &FSOTPStore{StoragePath: storagePath}
}

func (s *FSOTPStore) getOTPPath(id string) string {
	return filepath.Join(s.StoragePath, "otps", id+".json")
}

func (s *FSOTPStore) CreateOTP(otp *km.OTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveOTP(otp)
}

func (s *FSOTPStore) GetOTPById(id string) (*km.OTP, error) {
	data, err := os.ReadFile(s.getOTPPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, km.ErrOTPNotFound
		}
		return nil, err
	}

	var otp km.OTP
	if err := json.Unmarshal(data, &otp); err != nil {
		return nil, err
	}
	return &otp, nil
}

func (s *FSOTPStore) MarkOTPUsed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	otp, err := s.GetOTPById(id)
	if err != nil {
		return err
	}
	if otp.Used {
		return km.ErrOTPAlreadyUsed
	}
	otp.Used = true
	return s.saveOTP(otp)
}

func (s *FSOTPStore) saveOTP(otp *km.OTP) error {
	path := s.getOTPPath(otp.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(otp, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}
