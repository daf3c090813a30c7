package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewID returns a 24-char hex id for requests and queue consumers.
func NewID() string {
	id, err := RandomHex(12)
	if err != nil {
		panic(err)
	}
	return id
}

// RandomHex returns n bytes from crypto/rand, hex encoded.
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
