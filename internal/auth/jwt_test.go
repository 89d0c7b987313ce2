package auth

import (
	"errors"
	"testing"
	"time"
)

func TestStateSignerRoundTrip(t *testing.T) {
	signer := NewStateSigner("secret", time.Hour)
	state, err := signer.Sign("whatsapp:1555", ProviderGoogle)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	user, provider, err := signer.Verify(state)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if user != "whatsapp:1555" || provider != ProviderGoogle {
		t.Errorf("Verify() = %q, %q", user, provider)
	}
}

func TestStateSignerRejects(t *testing.T) {
	signer := NewStateSigner("secret", time.Hour)
	state, err := signer.Sign("telegram:7", ProviderGoogle)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	other := NewStateSigner("other-secret", time.Hour)
	if _, _, err := other.Verify(state); !errors.Is(err, ErrInvalidState) {
		t.Errorf("wrong secret: error = %v, want ErrInvalidState", err)
	}
	if _, _, err := signer.Verify(state + "x"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("tampered: error = %v, want ErrInvalidState", err)
	}

	issued := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return issued }
	state, err = signer.Sign("telegram:7", ProviderGoogle)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	signer.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, _, err := signer.Verify(state); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expired: error = %v, want ErrInvalidState", err)
	}
}

func TestStateSignerDisabled(t *testing.T) {
	signer := NewStateSigner("", time.Hour)
	if _, err := signer.Sign("u", ProviderGoogle); !errors.Is(err, ErrAuthDisabled) {
		t.Errorf("error = %v, want ErrAuthDisabled", err)
	}
	if _, err := NewStateSigner("s", 0).Sign("", ProviderGoogle); err == nil {
		t.Error("expected error for empty user id")
	}
}
