package crypto

import (
	"errors"
	"testing"

	"github.com/gluk-w/claworc/log-viewer/internal/database"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.Close()
		database.DB = prev
	})
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	setupTestDB(t)

	tok, err := Encrypt("hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if tok == "hunter2" || tok == "" {
		t.Fatalf("expected a token, got %q", tok)
	}
	plain, err := Decrypt(tok)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "hunter2" {
		t.Errorf("expected hunter2, got %q", plain)
	}
}

func TestKeyPersistedOnFirstUse(t *testing.T) {
	setupTestDB(t)

	if _, err := database.GetSetting(keySetting); err == nil {
		t.Fatal("expected no key before first use")
	}
	tok, err := Encrypt("a")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	key, err := database.GetSetting(keySetting)
	if err != nil || key == "" {
		t.Fatalf("expected persisted key, got %q (%v)", key, err)
	}
	tok2, err := Encrypt("b")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if again, _ := database.GetSetting(keySetting); again != key {
		t.Error("key must not be regenerated")
	}
	for _, tk := range []string{tok, tok2} {
		if _, err := Decrypt(tk); err != nil {
			t.Errorf("decrypt with persisted key: %v", err)
		}
	}
}

func TestEmptyValues(t *testing.T) {
	setupTestDB(t)

	tok, err := Encrypt("")
	if err != nil || tok != "" {
		t.Errorf("expected empty token, got %q (%v)", tok, err)
	}
	plain, err := Decrypt("")
	if err != nil || plain != "" {
		t.Errorf("expected empty plaintext, got %q (%v)", plain, err)
	}
}

func TestDecryptInvalidToken(t *testing.T) {
	setupTestDB(t)

	if _, err := Decrypt("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestMask(t *testing.T) {
	cases := map[string]string{
		"":           "",
		"abc":        "****",
		"abcd":       "****",
		"secret1234": "****1234",
	}
	for in, want := range cases {
		if got := Mask(in); got != want {
			t.Errorf("Mask(%q) = %q, want %q", in, got, want)
		}
	}
}
