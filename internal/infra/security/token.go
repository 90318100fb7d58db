package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// defaultTokenBytes is the entropy of a bearer session token. 32 bytes
// encode to 43 URL-safe characters, comfortably within the Authorization
// header budget.
const defaultTokenBytes = 32

// RandomTokenGenerator mints opaque bearer tokens for chat sessions. Tokens
// carry no claims; the session store is the source of truth for who holds
// them and until when.
type RandomTokenGenerator struct {
	Bytes int
}

func (g RandomTokenGenerator) NewToken() (string, error) {
	n := g.Bytes
	if n <= 0 {
		n = defaultTokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session token: entropy read failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
