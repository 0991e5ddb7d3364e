package utils

import "testing"

func TestEncryptDecryptSecret(t *testing.T) {
	sealed, err := EncryptSecret("sk-test-123", "passphrase")
	if err != nil {
		t.Fatalf("EncryptSecret: %v", err)
	}
	if !IsEncrypted(sealed) {
		t.Fatalf("sealed value %q lacks prefix", sealed)
	}
	if sealed == "sk-test-123" {
		t.Fatal("value was not encrypted")
	}

	plain, err := DecryptSecret(sealed, "passphrase")
	if err != nil {
		t.Fatalf("DecryptSecret: %v", err)
	}
	if plain != "sk-test-123" {
		t.Errorf("plain = %q, want sk-test-123", plain)
	}

	if _, err := DecryptSecret(sealed, "other"); err == nil {
		t.Error("expected failure with the wrong passphrase")
	}
}

func TestDecryptSecretPassesPlainValues(t *testing.T) {
	got, err := DecryptSecret("plain-key", "passphrase")
	if err != nil {
		t.Fatalf("DecryptSecret: %v", err)
	}
	if got != "plain-key" {
		t.Errorf("got %q, want plain-key", got)
	}

	empty, err := EncryptSecret("", "passphrase")
	if err != nil || empty != "" {
		t.Errorf("EncryptSecret(\"\") = %q, %v", empty, err)
	}
}
