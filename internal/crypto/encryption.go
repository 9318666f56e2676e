package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// EncryptionService encrypts integration credentials at rest. Each agent gets
// its own derived key, so one leaked key never opens another agent's grants.
type EncryptionService struct {
	masterKey []byte
}

// NewEncryptionService creates a new encryption service.
// masterKeyHex must be a 32-byte hex-encoded string (64 characters).
func NewEncryptionService(masterKeyHex string) (*EncryptionService, error) {
	if masterKeyHex == "" {
		return nil, errors.New("encryption master key is required")
	}

	masterKey, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid master key format (must be hex): %w", err)
	}
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes (64 hex characters), got %d bytes", len(masterKey))
	}

	return &EncryptionService{masterKey: masterKey}, nil
}

// DeriveAgentKey derives the per-agent encryption key with HKDF.
func (e *EncryptionService) DeriveAgentKey(agentID string) ([]byte, error) {
	if agentID == "" {
		return nil, errors.New("agent ID is required for key derivation")
	}

	hkdfReader := hkdf.New(sha256.New, e.masterKey, []byte(agentID), []byte("mejohncorg-agent-encryption"))

	agentKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, agentKey); err != nil {
		return nil, fmt.Errorf("failed to derive agent key: %w", err)
	}
	return agentKey, nil
}

// Encrypt encrypts plaintext with AES-256-GCM under the agent's derived key.
// Returns base64-encoded ciphertext with the nonce prepended.
func (e *EncryptionService) Encrypt(agentID string, plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", nil
	}

	gcm, err := e.gcmFor(agentID)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts base64-encoded ciphertext produced by Encrypt.
func (e *EncryptionService) Decrypt(agentID string, ciphertextB64 string) ([]byte, error) {
	if ciphertextB64 == "" {
		return nil, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	gcm, err := e.gcmFor(agentID)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func (e *EncryptionService) gcmFor(agentID string) (cipher.AEAD, error) {
	agentKey, err := e.DeriveAgentKey(agentID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(agentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
