package util

import (
	"crypto/rand"
	"encoding/base64"
)

// RandomToken returns a URL-safe random token of n bytes of entropy.
// Used for OAuth CSRF state and session identifiers.
func RandomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
