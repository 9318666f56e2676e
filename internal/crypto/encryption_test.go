package crypto

import (
	"strings"
	"testing"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestNewEncryptionService_Validation(t *testing.T) {
	if _, err := NewEncryptionService(""); err == nil {
		t.Error("empty master key should be rejected")
	}
	if _, err := NewEncryptionService("not-hex"); err == nil {
		t.Error("non-hex master key should be rejected")
	}
	if _, err := NewEncryptionService("abcd"); err == nil {
		t.Error("short master key should be rejected")
	}
	if _, err := NewEncryptionService(testMasterKey); err != nil {
		t.Errorf("valid master key rejected: %v", err)
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	svc, _ := NewEncryptionService(testMasterKey)

	ciphertext, err := svc.Encrypt("agent-1", []byte("crm-api-token-xyz"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if strings.Contains(ciphertext, "crm-api-token") {
		t.Error("ciphertext leaks plaintext")
	}

	plaintext, err := svc.Decrypt("agent-1", ciphertext)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if string(plaintext) != "crm-api-token-xyz" {
		t.Errorf("round trip mismatch: %s", plaintext)
	}
}

func TestDecrypt_WrongAgentFails(t *testing.T) {
	svc, _ := NewEncryptionService(testMasterKey)

	ciphertext, _ := svc.Encrypt("agent-1", []byte("secret"))
	if _, err := svc.Decrypt("agent-2", ciphertext); err == nil {
		t.Error("another agent's key must not decrypt the grant")
	}
}

func TestDeriveAgentKey_Distinct(t *testing.T) {
	svc, _ := NewEncryptionService(testMasterKey)

	k1, err := svc.DeriveAgentKey("agent-1")
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	k2, _ := svc.DeriveAgentKey("agent-2")
	if string(k1) == string(k2) {
		t.Error("agent keys must differ")
	}
}
