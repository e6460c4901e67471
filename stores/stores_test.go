package stores_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	km "github.com/Rokt33r/kenmon"
	"github.com/Rokt33r/kenmon/stores"
)

func TestFSUserStore(t *testing.T) {
	store := stores.NewFSUserStore(t.TempDir())
	ident := &km.Identifier{Type: "email-otp", Value: "alice@example.com"}

	if _, err := store.GetUserByIdentifier(ident); !errors.Is(err, km.ErrUserNotFound) {
		t.Fatalf("Expected ErrUserNotFound, got %v", err)
	}

	user, err := store.CreateUser(ident, map[string]any{"name": "Alice"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.Id() == "" {
		t.Fatal("Expected a user id")
	}
	if user.MFAEnabled() {
		t.Error("New users start with MFA disabled")
	}

	// The identifier binding is unique
	if _, err := store.CreateUser(ident, nil); err == nil {
		t.Fatal("Expected duplicate identifier to be rejected")
	}

	found, err := store.GetUserByIdentifier(ident)
	if err != nil {
		t.Fatalf("GetUserByIdentifier failed: %v", err)
	}
	if found.Id() != user.Id() {
		t.Errorf("Binding resolves to %s, expected %s", found.Id(), user.Id())
	}
	if found.Profile()["name"] != "Alice" {
		t.Errorf("Profile not persisted: %v", found.Profile())
	}

	if err := store.SetMFAEnabled(user.Id(), true); err != nil {
		t.Fatalf("SetMFAEnabled failed: %v", err)
	}
	found, err = store.GetUserById(user.Id())
	if err != nil {
		t.Fatalf("GetUserById failed: %v", err)
	}
	if !found.MFAEnabled() {
		t.Error("MFA flag not persisted")
	}

	if err := store.SetMFAEnabled("no-such-user", true); !errors.Is(err, km.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

// An identifier value that needs path escaping must not break the binding
func TestFSUserStoreEscapesIdentifiers(t *testing.T) {
	store := stores.NewFSUserStore(t.TempDir())
	ident := &km.Identifier{Type: "email-otp", Value: "weird/..%name@example.com"}

	user, err := store.CreateUser(ident, nil)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	found, err := store.GetUserByIdentifier(ident)
	if err != nil {
		t.Fatalf("GetUserByIdentifier failed: %v", err)
	}
	if found.Id() != user.Id() {
		t.Errorf("Binding resolves to %s, expected %s", found.Id(), user.Id())
	}
}

func TestFSSessionStore(t *testing.T) {
	store := stores.NewFSSessionStore(t.TempDir())

	sess := &km.Session{
		ID:        "sess-1",
		UserID:    "user-1",
		Token:     "token-1",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	if err := store.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if _, err := store.GetSessionById("nope"); !errors.Is(err, km.ErrSessionNotFound) {
		t.Fatalf("Expected ErrSessionNotFound, got %v", err)
	}

	now := time.Now()
	later := now.Add(2 * time.Hour)
	if err := store.UpdateSession("sess-1", km.SessionUpdate{ExpiresAt: &later, UsedAt: &now}); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	got, err := store.GetSessionById("sess-1")
	if err != nil {
		t.Fatalf("GetSessionById failed: %v", err)
	}
	if !got.ExpiresAt.Equal(later) || got.UsedAt.IsZero() {
		t.Errorf("Update not applied: %+v", got)
	}
	if got.Token != "token-1" {
		t.Error("Update must not touch the token")
	}

	if err := store.InvalidateSession("sess-1"); err != nil {
		t.Fatalf("InvalidateSession failed: %v", err)
	}
	got, _ = store.GetSessionById("sess-1")
	if !got.Invalidated || got.InvalidatedAt == nil {
		t.Errorf("Invalidation not recorded: %+v", got)
	}

	// Idempotent
	if err := store.InvalidateSession("sess-1"); err != nil {
		t.Errorf("Repeated invalidation should succeed: %v", err)
	}
}

func TestFSSessionStoreInvalidateAllUserSessions(t *testing.T) {
	store := stores.NewFSSessionStore(t.TempDir())

	for _, s := range []*km.Session{
		{ID: "a1", UserID: "alice", Token: "t1", ExpiresAt: time.Now().Add(time.Hour)},
		{ID: "a2", UserID: "alice", Token: "t2", ExpiresAt: time.Now().Add(time.Hour)},
		{ID: "b1", UserID: "bob", Token: "t3", ExpiresAt: time.Now().Add(time.Hour)},
	} {
		if err := store.CreateSession(s); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}

	if err := store.InvalidateAllUserSessions("alice"); err != nil {
		t.Fatalf("InvalidateAllUserSessions failed: %v", err)
	}

	for id, wantInvalidated := range map[string]bool{"a1": true, "a2": true, "b1": false} {
		got, err := store.GetSessionById(id)
		if err != nil {
			t.Fatalf("GetSessionById(%s) failed: %v", id, err)
		}
		if got.Invalidated != wantInvalidated {
			t.Errorf("Session %s invalidated=%v, want %v", id, got.Invalidated, wantInvalidated)
		}
	}
}

func TestFSOTPStoreMarkUsed(t *testing.T) {
	store := stores.NewFSOTPStore(t.TempDir())

	otp := &km.OTP{
		ID:        "otp-1",
		Email:     "alice@example.com",
		Code:      "123456",
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	if err := store.CreateOTP(otp); err != nil {
		t.Fatalf("CreateOTP failed: %v", err)
	}

	if err := store.MarkOTPUsed("nope"); !errors.Is(err, km.ErrOTPNotFound) {
		t.Fatalf("Expected ErrOTPNotFound, got %v", err)
	}

	if err := store.MarkOTPUsed("otp-1"); err != nil {
		t.Fatalf("MarkOTPUsed failed: %v", err)
	}
	if err := store.MarkOTPUsed("otp-1"); !errors.Is(err, km.ErrOTPAlreadyUsed) {
		t.Fatalf("Expected ErrOTPAlreadyUsed, got %v", err)
	}
}

// TestFSOTPStoreConcurrentRedemption hammers the used latch: exactly one
// goroutine may win.
func TestFSOTPStoreConcurrentRedemption(t *testing.T) {
	store := stores.NewFSOTPStore(t.TempDir())
	if err := store.CreateOTP(&km.OTP{
		ID:        "otp-race",
		Email:     "alice@example.com",
		Code:      "123456",
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}); err != nil {
		t.Fatalf("CreateOTP failed: %v", err)
	}

	const attempts = 20
	wins := make(chan struct{}, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.MarkOTPUsed("otp-race"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("Expected exactly one winner, got %d", won)
	}
}
