package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenBytes is the entropy of a session token: 256 bits.
const TokenBytes = 32

var tokenLen = base64.RawURLEncoding.EncodedLen(TokenBytes)

// NewToken returns a fresh base64url (unpadded) session token.
func NewToken() (string, error) {
	var raw [TokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("session: failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidToken reports whether token has the shape produced by NewToken. It is a cheap
// pre-check so garbage input never reaches a store.
func ValidToken(token string) bool {
	if len(token) != tokenLen {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(raw) == TokenBytes
}
