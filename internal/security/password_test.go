package security

import (
	"strings"
	"testing"
)

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(string(hash), "$argon2id$v=19$") {
		t.Fatalf("unexpected hash format: %s", hash)
	}

	ok, err := VerifyPassword("correct horse battery staple", hash)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected matching password to verify")
	}

	ok, err = VerifyPassword("wrong password", hash)
	if err != nil {
		t.Fatalf("verify wrong: %v", err)
	}
	if ok {
		t.Fatal("expected mismatched password to fail")
	}
}

func TestPasswordHashIsSalted(t *testing.T) {
	first, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if string(first) == string(second) {
		t.Fatal("expected distinct hashes for the same password")
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	if _, err := VerifyPassword("anything", []byte("not-a-hash")); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}
