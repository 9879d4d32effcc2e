package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"

	"github.com/Makar0n1/art-automation/pkg/storage"
)

const (
	// PBKDF2 parameters are fixed so the derived key is stable across
	// restarts when no explicit key is configured.
	kdfIterations = 100000
	kdfSalt       = "artgen-credential-vault"

	// bcrypt work factor for PINs and passwords.
	hashCost = 12

	// Failed PIN verifications before the (IP, user) pair is blocked.
	pinThreshold = 5

	maskMaxStars = 20
)

// ErrPinBlocked signals that the (IP, user) pair has exceeded the failure
// threshold. Further verifications fail with this error regardless of the
// submitted PIN.
var ErrPinBlocked = errors.New("pin verification blocked")

// Vault encrypts provider credentials at rest and verifies PINs with an
// IP-keyed attempt counter.
type Vault struct {
	key   []byte // 32 bytes for AES-256
	store storage.Store
}

// New creates a vault. When rawKey is nil the key is derived from secret
// via PBKDF2-SHA256.
func New(rawKey []byte, secret string, store storage.Store) (*Vault, error) {
	key := rawKey
	if key == nil {
		key = pbkdf2.Key([]byte(secret), []byte(kdfSalt), kdfIterations, 32, sha256.New)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d", len(key))
	}
	return &Vault{key: key, store: store}, nil
}

// Encrypt seals plaintext with AES-256-GCM and a fresh random nonce. The
// stored form is base64(nonce):base64(tag):base64(ciphertext).
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("cannot encrypt empty value")
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	// Seal appends the tag to the ciphertext; split them back apart so the
	// stored envelope keeps its three-segment shape.
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	enc := base64.StdEncoding
	return strings.Join([]string{
		enc.EncodeToString(nonce),
		enc.EncodeToString(tag),
		enc.EncodeToString(ciphertext),
	}, ":"), nil
}

// Decrypt opens an envelope produced by Encrypt. Any value that does not
// have the three-segment shape is treated as legacy plaintext and returned
// unchanged.
func (v *Vault) Decrypt(value string) (string, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return value, nil
	}

	enc := base64.StdEncoding
	nonce, err := enc.DecodeString(parts[0])
	if err != nil {
		return value, nil
	}
	tag, err := enc.DecodeString(parts[1])
	if err != nil {
		return value, nil
	}
	ciphertext, err := enc.DecodeString(parts[2])
	if err != nil {
		return value, nil
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return value, nil
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Mask keeps the first and last four characters of a credential and
// replaces the middle with up to 20 asterisks.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	n := len(value)
	// Short values have nothing to hide between the head and tail.
	if n <= 8 {
		return value
	}
	stars := n - 8
	if stars > maskMaxStars {
		stars = maskMaxStars
	}
	return value[:4] + strings.Repeat("*", stars) + value[n-4:]
}

// HashSecret hashes a password or PIN for storage.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), hashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// CompareSecret verifies a password or PIN against its stored hash in
// constant time.
func CompareSecret(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// VerifyPin checks pin against pinHash for the given (client IP, user)
// pair. A blocked pair always fails with ErrPinBlocked; a failure below
// the threshold increments the counter; success clears it.
func (v *Vault) VerifyPin(ip, userID, pin, pinHash string) (remaining int, err error) {
	if attempt, err := v.store.GetPinAttempt(ip, userID); err == nil && attempt.Blocked {
		return 0, ErrPinBlocked
	}

	if CompareSecret(pin, pinHash) {
		if err := v.store.ClearPinAttempts(ip, userID); err != nil {
			return 0, fmt.Errorf("failed to clear pin attempts: %w", err)
		}
		return pinThreshold, nil
	}

	attempt, err := v.store.RecordPinFailure(ip, userID, pinThreshold)
	if err != nil {
		return 0, fmt.Errorf("failed to record pin failure: %w", err)
	}
	if attempt.Blocked {
		return 0, ErrPinBlocked
	}
	return pinThreshold - attempt.Attempts, errors.New("invalid pin")
}
