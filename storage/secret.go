package storage

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashClientSecret hashes a client secret with bcrypt for at-rest storage.
// Only the hash is ever stored; the plaintext secret is shown to the client
// once at registration and never again.
func HashClientSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("client secret cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}

	return string(hash), nil
}

// dummyClientSecretHash is compared when the client lookup failed (bcrypt
// hash of "test"). Keeps a bcrypt comparison on the unknown-client path so
// response timing does not reveal whether a client exists.
const dummyClientSecretHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// VerifyClientSecret checks a presented secret against the outcome of a
// client lookup. Exactly one bcrypt comparison runs on every path, lookup
// hit or miss. A client with no stored hash is a public client and
// authenticates without a secret. Backends share this so the constant-time
// policy has a single owner.
func VerifyClientSecret(client *Client, lookupErr error, clientSecret string) error {
	hashToCompare := dummyClientSecretHash
	isPublicClient := false

	if lookupErr == nil {
		if client.ClientSecretHash == "" {
			isPublicClient = true
		} else {
			hashToCompare = client.ClientSecretHash
		}
	}

	bcryptErr := bcrypt.CompareHashAndPassword([]byte(hashToCompare), []byte(clientSecret))

	if isPublicClient && lookupErr == nil {
		return nil
	}

	if lookupErr != nil || bcryptErr != nil {
		return fmt.Errorf("invalid client credentials")
	}

	return nil
}
