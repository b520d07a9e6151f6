// Package auth resolves request credentials to rate-limit identities.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// ErrInvalidCredential rejects a request that presented a credential the
// store does not know. Absent credentials are not an error; they resolve
// to the anonymous identity.
var ErrInvalidCredential = errors.New("invalid credential")

// Authenticator maps a bearer credential to an identity.
type Authenticator interface {
	// Authenticate returns the identity for credential. An empty
	// credential yields an empty identity (anonymous), not an error.
	Authenticate(credential string) (string, error)
}

// KeyStore authenticates against a static list of API keys. Identities
// are derived from the key hash so logs and rate-limit buckets never
// carry the raw key.
type KeyStore struct {
	identities map[string]string // key -> derived identity
}

// NewKeyStore builds a KeyStore from configured API keys.
func NewKeyStore(keys []string) *KeyStore {
	ids := make(map[string]string, len(keys))
	for _, k := range keys {
		if k != "" {
			ids[k] = Identity(k)
		}
	}
	return &KeyStore{identities: ids}
}

// Authenticate implements Authenticator.
func (s *KeyStore) Authenticate(credential string) (string, error) {
	if credential == "" {
		return "", nil
	}
	for key, id := range s.identities {
		if subtle.ConstantTimeCompare([]byte(key), []byte(credential)) == 1 {
			return id, nil
		}
	}
	return "", ErrInvalidCredential
}

// Identity derives the opaque identity for an API key.
func Identity(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "key-" + hex.EncodeToString(sum[:4])
}
