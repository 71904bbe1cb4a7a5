package auth

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword(hash, "correct horse battery staple") {
		t.Errorf("expected the correct password to verify")
	}
	if VerifyPassword(hash, "wrong password") {
		t.Errorf("expected the wrong password to fail verification")
	}
}

func TestIssueAndVerifyToken(t *testing.T) {
	token, err := IssueToken("test-secret", "admin")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	subject, err := VerifyToken("test-secret", token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if subject != "admin" {
		t.Errorf("subject = %q, want admin", subject)
	}
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken("secret-a", "admin")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := VerifyToken("secret-b", token); err == nil {
		t.Errorf("expected verification to fail with the wrong secret")
	}
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	if _, err := VerifyToken("test-secret", "not-a-token"); err == nil {
		t.Errorf("expected an error for a malformed token")
	}
}
