package cookie

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretBytes is the shortest HS256 secret NewSigner accepts.
const MinSecretBytes = 32

// SessionClaims is the signed payload of a session cookie.
type SessionClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// Signer wraps session tokens in HS256 JWS values and verifies them.
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSigner returns a Signer for secret. issuer is optional; when set, Verify
// requires a matching iss claim.
func NewSigner(secret []byte, issuer string) (*Signer, error) {
	if len(secret) < MinSecretBytes {
		return nil, fmt.Errorf("cookie secret must be at least %d bytes", MinSecretBytes)
	}
	return &Signer{
		secret: append([]byte(nil), secret...),
		issuer: strings.TrimSpace(issuer),
		now:    time.Now,
	}, nil
}

// Sign returns the compact JWS for token.
func (s *Signer) Sign(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty session token")
	}

	claims := SessionClaims{
		SID: token,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(s.now()),
			Issuer:   s.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks value's signature and returns the wrapped token. Session expiry is
// not checked here; the server-side record is authoritative.
func (s *Signer) Verify(value string) (string, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if s.issuer != "" {
		options = append(options, jwt.WithIssuer(s.issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(value, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.SID == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.SID, nil
}
