// Package keystore implements the encrypted at-rest wallet format: a JSON
// record holding an scrypt-derived AES-256-GCM sealed secret. The plaintext is
// the 64-byte solana secret (seed || public key); the file carries only the
// public identifier in the clear.
package keystore

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/scrypt"

	"github.com/meridian-labs/solagent/internal/core/domain"
)

const (
	// Version is the only schema version this codec reads or writes.
	Version = 1

	// SecretLen is the plaintext length: 32-byte seed || 32-byte public key.
	SecretLen = 64

	SaltLen = 32
	IVLen   = 16
	TagLen  = 16
	KeyLen  = 32

	// FileMode keeps keystore files owner-only on POSIX.
	FileMode = 0600

	// MinPassphraseLen is counted in code points, not bytes.
	MinPassphraseLen = 8
)

// Default scrypt parameters. Tests may lower N through CreateWithParams.
const (
	DefaultScryptN = 16384
	DefaultScryptR = 8
	DefaultScryptP = 1
)

// KDFParams are the stored scrypt parameters.
type KDFParams struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

// EncryptedPayload is the sealed portion of the record. Byte fields are
// hex-encoded in the file.
type EncryptedPayload struct {
	Ciphertext string    `json:"ciphertext"`
	IV         string    `json:"iv"`
	Tag        string    `json:"tag"`
	Salt       string    `json:"salt"`
	Algorithm  string    `json:"algorithm"`
	KDF        string    `json:"kdf"`
	KDFParams  KDFParams `json:"kdfParams"`
}

// File is the persisted keystore record.
type File struct {
	Version   int              `json:"version"`
	PublicKey string           `json:"publicKey"`
	Encrypted EncryptedPayload `json:"encrypted"`
}

var errBadPassphraseOrTampered = domain.NewError(domain.CodeInvalidKeystore, "wrong password or tampered")

// Create seals secret under passphrase and writes the record to path with
// owner-only permissions. The caller's secret buffer is zeroed before return.
func Create(secret []byte, passphrase, path string) (*File, error) {
	return CreateWithParams(secret, passphrase, path, KDFParams{N: DefaultScryptN, R: DefaultScryptR, P: DefaultScryptP})
}

// CreateWithParams is Create with explicit scrypt parameters.
func CreateWithParams(secret []byte, passphrase, path string, params KDFParams) (*File, error) {
	defer zeroBytes(secret)

	if len(secret) != SecretLen {
		return nil, domain.Errorf(domain.CodeInvalidKeystore, "secret must be %d bytes, got %d", SecretLen, len(secret))
	}
	if len([]rune(passphrase)) < MinPassphraseLen {
		return nil, domain.Errorf(domain.CodeInvalidConfig, "passphrase must be at least %d characters", MinPassphraseLen)
	}

	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to sample salt: %w", err)
	}
	iv := make([]byte, IVLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to sample iv: %w", err)
	}

	key, err := scrypt.Key([]byte(passphrase), salt, params.N, params.R, params.P, KeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	defer zeroBytes(key)

	sealed, err := gcmSeal(key, iv, secret)
	if err != nil {
		return nil, err
	}
	ciphertext := sealed[:len(sealed)-TagLen]
	tag := sealed[len(sealed)-TagLen:]

	record := &File{
		Version:   Version,
		PublicKey: solana.PrivateKey(secret).PublicKey().String(),
		Encrypted: EncryptedPayload{
			Ciphertext: hex.EncodeToString(ciphertext),
			IV:         hex.EncodeToString(iv),
			Tag:        hex.EncodeToString(tag),
			Salt:       hex.EncodeToString(salt),
			Algorithm:  "aes-256-gcm",
			KDF:        "scrypt",
			KDFParams:  params,
		},
	}
	zeroBytes(salt)

	if err := writeRecord(record, path); err != nil {
		return nil, err
	}
	return record, nil
}

// Open reads the record at path and unseals it with passphrase. Wrong
// passwords and tampered ciphertexts fail with the same message so the error
// cannot be used as an oracle. Derived keys and plaintext buffers are zeroed
// on every exit path.
func Open(path, passphrase string) (*Identity, error) {
	record, err := readRecord(path)
	if err != nil {
		return nil, err
	}

	ciphertext, err := hex.DecodeString(record.Encrypted.Ciphertext)
	if err != nil {
		return nil, domain.NewError(domain.CodeInvalidKeystore, "malformed ciphertext encoding")
	}
	iv, err := decodeFixed(record.Encrypted.IV, IVLen, "iv")
	if err != nil {
		return nil, err
	}
	tag, err := decodeFixed(record.Encrypted.Tag, TagLen, "tag")
	if err != nil {
		return nil, err
	}
	salt, err := decodeFixed(record.Encrypted.Salt, SaltLen, "salt")
	if err != nil {
		return nil, err
	}

	params := record.Encrypted.KDFParams
	key, err := scrypt.Key([]byte(passphrase), salt, params.N, params.R, params.P, KeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	defer zeroBytes(key)

	plaintext, err := gcmOpen(key, iv, append(ciphertext, tag...))
	if err != nil {
		return nil, errBadPassphraseOrTampered
	}
	defer zeroBytes(plaintext)

	if len(plaintext) != SecretLen {
		return nil, domain.NewError(domain.CodeInvalidKeystore, "corrupted")
	}
	recovered := solana.PrivateKey(plaintext).PublicKey().String()
	if recovered != record.PublicKey {
		return nil, domain.NewError(domain.CodeInvalidKeystore, "corrupted")
	}

	return newIdentity(plaintext)
}

// PeekPublic returns the stored public identifier without decrypting.
func PeekPublic(path string) (string, error) {
	record, err := readRecord(path)
	if err != nil {
		return "", err
	}
	return record.PublicKey, nil
}

func gcmSeal(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVLen)
	if err != nil {
		return nil, fmt.Errorf("gcm init failed: %w", err)
	}
	return gcm.Seal(nil, iv, plaintext, nil), nil
}

func gcmOpen(key, iv, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVLen)
	if err != nil {
		return nil, fmt.Errorf("gcm init failed: %w", err)
	}
	return gcm.Open(nil, iv, sealed, nil)
}

func decodeFixed(encoded string, wantLen int, field string) ([]byte, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil || len(raw) != wantLen {
		return nil, domain.Errorf(domain.CodeInvalidKeystore, "malformed %s field", field)
	}
	return raw, nil
}

func readRecord(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}
	var record File
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, domain.NewError(domain.CodeInvalidKeystore, "keystore is not valid JSON")
	}
	if record.Version != Version {
		return nil, domain.Errorf(domain.CodeInvalidKeystore, "unsupported keystore version %d", record.Version)
	}
	return &record, nil
}

// writeRecord writes pretty-printed JSON atomically: temp file in the target
// directory, fsync-free rename, owner-only mode.
func writeRecord(record *File, path string) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keystore: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create keystore directory: %w", err)
		}
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, FileMode); err != nil {
		return fmt.Errorf("failed to write temp keystore file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save keystore file: %w", err)
	}
	return nil
}

// GenerateSecret samples a fresh 64-byte secret with a cryptographically
// secure RNG. For funding flows and tests.
func GenerateSecret() ([]byte, error) {
	wallet := solana.NewWallet()
	secret := make([]byte, SecretLen)
	copy(secret, wallet.PrivateKey)
	if bytes.Equal(secret, make([]byte, SecretLen)) {
		return nil, fmt.Errorf("rng produced an all-zero secret")
	}
	return secret, nil
}
