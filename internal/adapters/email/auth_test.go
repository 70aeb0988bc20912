package email

import (
	"context"
	"errors"
	"testing"

	configpkg "github.com/drblury/opsflow/internal/runtime/config"
)

func TestNewTokenSourceRequiresEverySecret(t *testing.T) {
	_, err := NewTokenSource(context.Background(), configpkg.GmailConfig{ClientID: "id"})
	if !errors.Is(err, ErrCredentialsMissing) {
		t.Fatalf("expected missing credentials, got %v", err)
	}
	want := "opsflow: gmail credentials missing: GMAIL_CLIENT_SECRET, GMAIL_REFRESH_TOKEN"
	if err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestNewTokenSource(t *testing.T) {
	ts, err := NewTokenSource(context.Background(), configpkg.GmailConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		RefreshToken: "refresh",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts == nil {
		t.Fatal("expected a token source")
	}
}
