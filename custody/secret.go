package custody

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// envelopeVersion is the version byte prepended to every sealed
	// secret. It allows the KDF or cipher parameters to be rotated later
	// without breaking stored ciphertexts.
	envelopeVersion = 1

	// saltSize is the size in bytes of the random KDF salt.
	saltSize = 32

	// keySize is the size in bytes of the derived AES-256 key.
	keySize = 32

	// kdfIterations is the PBKDF2-HMAC-SHA256 iteration count used to
	// derive the sealing key from a passphrase.
	kdfIterations = 262144
)

// ErrInvalidPassphrase is returned for every failed decryption. A wrong
// passphrase and a corrupt ciphertext are deliberately indistinguishable so
// the secret store can't be used as a padding/format oracle.
var ErrInvalidPassphrase = errors.New("invalid passphrase")

// EncryptSecret seals a secret with a key derived from the passed
// passphrase. The result is a base64 envelope (version || salt || nonce ||
// ciphertext) that is safe to persist.
func EncryptSecret(secret, passphrase string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("unable to generate salt: %w", err)
	}

	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("unable to generate nonce: %w", err)
	}

	envelope := make([]byte, 0, 1+saltSize+len(nonce)+len(secret)+aead.Overhead())
	envelope = append(envelope, envelopeVersion)
	envelope = append(envelope, salt...)
	envelope = append(envelope, nonce...)
	envelope = aead.Seal(envelope, nonce, []byte(secret), nil)

	return base64.StdEncoding.EncodeToString(envelope), nil
}

// DecryptSecret opens a sealed secret with the passed passphrase. Any
// failure, malformed envelope included, is reported as
// ErrInvalidPassphrase.
func DecryptSecret(ciphertext, passphrase string) (string, error) {
	envelope, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidPassphrase
	}
	if len(envelope) < 1+saltSize || envelope[0] != envelopeVersion {
		return "", ErrInvalidPassphrase
	}

	salt := envelope[1 : 1+saltSize]
	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return "", ErrInvalidPassphrase
	}

	rest := envelope[1+saltSize:]
	if len(rest) < aead.NonceSize() {
		return "", ErrInvalidPassphrase
	}
	nonce, sealed := rest[:aead.NonceSize()], rest[aead.NonceSize():]

	secret, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidPassphrase
	}

	return string(secret), nil
}

// newAEAD derives the sealing key for the given passphrase and salt and
// returns the AES-256-GCM instance bound to it.
func newAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(
		[]byte(passphrase), salt, kdfIterations, keySize, sha256.New,
	)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("unable to create cipher: %w", err)
	}

	return cipher.NewGCM(block)
}
