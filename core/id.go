package core

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

// NewSessionID returns an opaque 32-byte random identifier, base64url
// encoded without padding. The identifier is the only thing the client
// cookie carries; principal state stays server-side.
func NewSessionID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process has bigger problems.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// randomHex returns n random bytes, hex encoded.
func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
