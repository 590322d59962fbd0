package secrets

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestEnvFallback(t *testing.T) {
	t.Setenv(envAPIKey, "test-key")
	t.Setenv(envAPISecret, "test-secret")

	loader, err := NewLoader(DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}

	creds, err := loader.Load(context.Background(), "testnet")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if creds.APIKey != "test-key" || creds.APISecret != "test-secret" {
		t.Errorf("unexpected credentials %+v", creds)
	}
}

func TestEnvMissing(t *testing.T) {
	t.Setenv(envAPIKey, "")
	t.Setenv(envAPISecret, "")

	loader, err := NewLoader(DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}

	if _, err := loader.Load(context.Background(), "testnet"); err == nil {
		t.Fatal("expected error with no credentials configured")
	}
}

func TestDisabledHealthIsNil(t *testing.T) {
	loader, err := NewLoader(DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	if err := loader.Health(); err != nil {
		t.Errorf("disabled loader health should be nil, got %v", err)
	}
}
