package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/lumora-ai/lumora-backend/pkg/errors"
)

// API key secrets are shown to the caller exactly once; only the SHA-256
// digest and a short display prefix are persisted. The digest has to be
// deterministic so the lookup on authentication is a single indexed read.

const (
	// KeySecretPrefix marks Lumora secret keys so they are recognizable in
	// configs and secret scanners.
	KeySecretPrefix = "lum_sk_"

	keySecretEntropyBytes = 24
	keyDisplayPrefixLen   = 12
)

// GeneratedKey is the one-time result of minting an API key secret.
type GeneratedKey struct {
	// Secret is the full plaintext key, returned to the caller once.
	Secret string
	// Prefix is the leading fragment safe to store and display.
	Prefix string
	// SecretHash is the hex SHA-256 digest of Secret.
	SecretHash string
}

// GenerateKeySecret mints a new API key secret with its display prefix and
// storable digest.
func GenerateKeySecret() (GeneratedKey, error) {
	buf := make([]byte, keySecretEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return GeneratedKey{}, errors.Wrap(errors.CodeInternal, err, "failed to generate key material")
	}

	secret := KeySecretPrefix + hex.EncodeToString(buf)
	return GeneratedKey{
		Secret:     secret,
		Prefix:     secret[:keyDisplayPrefixLen],
		SecretHash: HashKeySecret(secret),
	}, nil
}

// HashKeySecret returns the hex SHA-256 digest of a plaintext key secret.
func HashKeySecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// LooksLikeKeySecret reports whether a presented credential has the shape of
// a Lumora secret key. Used to short-circuit lookups for garbage input.
func LooksLikeKeySecret(secret string) bool {
	return strings.HasPrefix(secret, KeySecretPrefix) && len(secret) > keyDisplayPrefixLen
}

// ConstantTimeEquals compares two strings without leaking a timing signal.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
