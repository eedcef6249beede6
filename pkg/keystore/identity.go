package keystore

import (
	"crypto/subtle"

	"github.com/gagliardetto/solana-go"

	"github.com/meridian-labs/solagent/internal/core/domain"
)

// Identity holds a signing secret in memory. It is created by Open or
// LoadFromEnv, owned by exactly one wallet client, and zeroed on Close. It is
// deliberately not serializable and never leaves this package as raw bytes.
type Identity struct {
	secret    []byte // 64 bytes: seed(32) || publicKey(32)
	publicKey solana.PublicKey
}

func newIdentity(secret []byte) (*Identity, error) {
	if len(secret) != SecretLen {
		return nil, domain.Errorf(domain.CodeInvalidKeystore, "secret must be %d bytes, got %d", SecretLen, len(secret))
	}
	priv := solana.PrivateKey(secret)
	id := &Identity{
		secret:    make([]byte, SecretLen),
		publicKey: priv.PublicKey(),
	}
	copy(id.secret, secret)
	return id, nil
}

// PublicKey returns the public identifier.
func (id *Identity) PublicKey() solana.PublicKey {
	return id.publicKey
}

// SignTransaction signs tx with the held secret. The secret never crosses the
// package boundary; callers only observe the signed transaction.
func (id *Identity) SignTransaction(tx *solana.Transaction) error {
	if id.zeroed() {
		return domain.NewError(domain.CodeSigningFailed, "signing identity has been destroyed")
	}
	priv := solana.PrivateKey(id.secret)
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(id.publicKey) {
			return &priv
		}
		return nil
	})
	if err != nil {
		return domain.Errorf(domain.CodeSigningFailed, "failed to sign transaction: %v", err)
	}
	return nil
}

// String returns the public identifier only.
func (id *Identity) String() string {
	return id.publicKey.String()
}

// MarshalJSON refuses: a signing identity must never be serialized.
func (id *Identity) MarshalJSON() ([]byte, error) {
	return nil, domain.NewError(domain.CodeInvalidConfig, "signing identity is not serializable")
}

// Zero wipes the secret bytes. Safe to call more than once.
func (id *Identity) Zero() {
	zeroBytes(id.secret)
}

func (id *Identity) zeroed() bool {
	return subtle.ConstantTimeCompare(id.secret, make([]byte, len(id.secret))) == 1
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
