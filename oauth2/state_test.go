package oauth2

import (
	"testing"
	"time"

	"github.com/Rokt33r/kenmon"
)

func TestStateRoundTrip(t *testing.T) {
	for _, intent := range []Intent{IntentSignIn, IntentSignUp} {
		state, err := signState("secret", intent, DefaultStateTTL)
		if err != nil {
			t.Fatalf("signState failed: %v", err)
		}
		got, err := verifyState("secret", state)
		if err != nil {
			t.Fatalf("verifyState failed: %v", err)
		}
		if got != intent {
			t.Errorf("Intent mangled in transit: sent %q, got %q", intent, got)
		}
	}
}

func TestStateUniqueness(t *testing.T) {
	// Fresh nonces make every state token distinct even for the same intent
	a, err := signState("secret", IntentSignIn, DefaultStateTTL)
	if err != nil {
		t.Fatalf("signState failed: %v", err)
	}
	b, err := signState("secret", IntentSignIn, DefaultStateTTL)
	if err != nil {
		t.Fatalf("signState failed: %v", err)
	}
	if a == b {
		t.Error("Two state tokens should never be identical")
	}
}

func TestStateRejection(t *testing.T) {
	state, err := signState("secret", IntentSignIn, DefaultStateTTL)
	if err != nil {
		t.Fatalf("signState failed: %v", err)
	}

	tests := []struct {
		name     string
		secret   string
		state    string
		wantCode string
	}{
		{"wrong secret", "other-secret", state, kenmon.ErrCodeInvalidState},
		{"garbage", "secret", "not-a-state-token", kenmon.ErrCodeInvalidState},
		{"truncated", "secret", state[:len(state)-5], kenmon.ErrCodeInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := verifyState(tt.secret, tt.state); kenmon.CodeOf(err) != tt.wantCode {
				t.Fatalf("Expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestStateExpiry(t *testing.T) {
	state, err := signState("secret", IntentSignIn, time.Nanosecond)
	if err != nil {
		t.Fatalf("signState failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := verifyState("secret", state); kenmon.CodeOf(err) != kenmon.ErrCodeExpiredState {
		t.Fatalf("Expected expired-state, got %v", err)
	}
}
