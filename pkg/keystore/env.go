package keystore

import (
	"encoding/json"

	"github.com/gagliardetto/solana-go"

	"github.com/meridian-labs/solagent/internal/core/domain"
)

// LoadFromEnv builds an Identity from a raw environment value. Development
// and test convenience only; production processes must refuse it.
//
// The value is tried as a base58 64-byte string first; a JSON byte array is
// the fallback when base58 decoding fails or yields the wrong length.
func LoadFromEnv(value string, production bool) (*Identity, error) {
	if production {
		return nil, domain.NewError(domain.CodeInvalidConfig, "raw secret keys are not accepted in production")
	}
	if value == "" {
		return nil, domain.NewError(domain.CodeInvalidConfig, "empty secret key value")
	}

	if priv, err := solana.PrivateKeyFromBase58(value); err == nil && len(priv) == SecretLen {
		secret := make([]byte, SecretLen)
		copy(secret, priv)
		zeroBytes(priv)
		defer zeroBytes(secret)
		return newIdentity(secret)
	}

	var raw []int
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil, domain.NewError(domain.CodeInvalidConfig, "secret key is neither base58 nor a JSON byte array")
	}
	if len(raw) != SecretLen {
		return nil, domain.Errorf(domain.CodeInvalidConfig, "secret key array must have %d elements, got %d", SecretLen, len(raw))
	}
	secret := make([]byte, SecretLen)
	for i, v := range raw {
		if v < 0 || v > 255 {
			zeroBytes(secret)
			return nil, domain.Errorf(domain.CodeInvalidConfig, "secret key array element %d out of byte range", i)
		}
		secret[i] = byte(v)
	}
	defer zeroBytes(secret)
	return newIdentity(secret)
}
