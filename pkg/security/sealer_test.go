package security_test

import (
	"strings"
	"testing"

	"github.com/lootbay/marketplace-backend/pkg/security"
)

const testKey = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

func TestSealAndOpen(t *testing.T) {
	sealer, err := security.NewSealer(testKey)
	if err != nil {
		t.Fatalf("NewSealer returned error: %v", err)
	}

	sealed, err := sealer.Seal("user:hunter2")
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	if strings.Contains(sealed, "hunter2") {
		t.Fatal("sealed value leaks plaintext")
	}
	if !strings.HasPrefix(sealed, "v1$") {
		t.Fatalf("unexpected seal format %q", sealed)
	}

	plain, err := sealer.Open(sealed)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if plain != "user:hunter2" {
		t.Fatalf("expected round trip, got %q", plain)
	}
}

func TestOpenRejectsForeignKey(t *testing.T) {
	a, _ := security.NewSealer(testKey)
	b, _ := security.NewSealer(strings.Repeat("ff", 32))

	sealed, err := a.Seal("secret")
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	if _, err := b.Open(sealed); err != security.ErrInvalidSeal {
		t.Fatalf("expected ErrInvalidSeal, got %v", err)
	}
	if _, err := a.Open("garbage"); err != security.ErrInvalidSeal {
		t.Fatalf("expected ErrInvalidSeal for garbage, got %v", err)
	}
}

func TestNewSealerValidatesKey(t *testing.T) {
	if _, err := security.NewSealer("abcd"); err == nil {
		t.Fatal("expected short key to fail")
	}
	if _, err := security.NewSealer("zz"); err == nil {
		t.Fatal("expected non-hex key to fail")
	}
}
