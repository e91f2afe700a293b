package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// InstancePrefix starts every generated instance id
const InstancePrefix = "janus-"

// NewInstanceID returns a random instance id such as "janus-3f9c2a1b"
func NewInstanceID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return InstancePrefix + hex.EncodeToString(b), nil
}

// HashKey returns the hex SHA-256 of an API key
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
