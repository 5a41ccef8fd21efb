package cookie

import (
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func TestSignerRoundTrip(t *testing.T) {
	s, err := NewSigner(testSecret, "crossauth")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	value, err := s.Sign("tok")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := s.Verify(value)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != "tok" {
		t.Fatalf("expected tok, got %q", got)
	}
}

func TestSignerRejectsWrongAlgorithm(t *testing.T) {
	s, _ := NewSigner(testSecret, "")

	claims := SessionClaims{SID: "tok"}
	value, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := s.Verify(value); err == nil {
		t.Fatal("expected HS512 value to be rejected")
	}

	none, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := s.Verify(none); err == nil {
		t.Fatal("expected unsigned value to be rejected")
	}
}

func TestSignerRejectsWrongIssuer(t *testing.T) {
	a, _ := NewSigner(testSecret, "crossauth")
	b, _ := NewSigner(testSecret, "other")

	value, _ := b.Sign("tok")
	if _, err := a.Verify(value); err == nil {
		t.Fatal("expected issuer mismatch to be rejected")
	}
}

func TestSignerRejectsEmptySID(t *testing.T) {
	s, _ := NewSigner(testSecret, "")

	claims := SessionClaims{RegisteredClaims: gjwt.RegisteredClaims{IssuedAt: gjwt.NewNumericDate(time.Now())}}
	value, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := s.Verify(value); err == nil {
		t.Fatal("expected empty sid to be rejected")
	}
	if _, err := s.Sign(""); err == nil {
		t.Fatal("expected empty token to be rejected")
	}
}
