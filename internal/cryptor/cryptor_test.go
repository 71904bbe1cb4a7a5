package cryptor

import "testing"

func testCryptor(t *testing.T) *Cryptor {
	t.Helper()
	c, err := New([]byte("0123456789abcdef"), []byte("fedcba9876543210"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestRoundTrip(t *testing.T) {
	c := testCryptor(t)

	plaintext := `{"method":"getTactics","params":{"email":"user@example.com"}}`
	ciphertext, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if ciphertext == plaintext {
		t.Fatalf("ciphertext should not equal plaintext")
	}

	decrypted, err := c.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("round trip mismatch: got %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptDeterministic(t *testing.T) {
	c := testCryptor(t)
	a, _ := c.Encrypt("same input")
	b, _ := c.Encrypt("same input")
	if a != b {
		t.Errorf("expected deterministic ciphertext with a fixed IV, got %q and %q", a, b)
	}
}

func TestDecryptInvalidBase64(t *testing.T) {
	c := testCryptor(t)
	if _, err := c.Decrypt("not-valid-base64!!"); err == nil {
		t.Errorf("expected an error decrypting invalid base64")
	}
}

func TestDecryptWrongLength(t *testing.T) {
	c := testCryptor(t)
	if _, err := c.Decrypt("YWJj"); err == nil {
		t.Errorf("expected an error decrypting a ciphertext that isn't a block multiple")
	}
}

func TestNewRejectsBadKeySize(t *testing.T) {
	if _, err := New([]byte("short"), []byte("fedcba9876543210")); err == nil {
		t.Errorf("expected an error for a short key")
	}
	if _, err := New([]byte("0123456789abcdef"), []byte("short")); err == nil {
		t.Errorf("expected an error for a short iv")
	}
}
