// Package operatorauth gates privileged use of the CLI — running in a
// non-Strict verification mode — behind an HMAC-signed JWT. It is
// deliberately narrower than a full identity system: there is no
// key-rotation or multi-tenant surface in this engine, only a shared
// operator secret, so a JWT with standard registered claims is enough.
package operatorauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OperatorClaims are the registered claims expected of an operator
// token. Only expiry and signature are enforced; Subject names the
// operator and is returned to the caller of Validate.
type OperatorClaims struct {
	jwt.RegisteredClaims
}

// Validator checks operator tokens against a shared HMAC secret.
type Validator struct {
	secret []byte
}

// NewValidator returns a Validator for secret. An empty secret means
// operator-auth is not configured; callers should skip validation
// entirely rather than constructing a Validator.
func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// Validate parses and verifies tokenStr, returning its claims on
// success; the operator identity is claims.Subject.
func (v *Validator) Validate(tokenStr string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("operator token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("operator token is not valid")
	}
	return claims, nil
}

// Issue signs a new operator token for subject, valid for duration.
// Provided for operators to mint tokens out-of-band (tests, bootstrap
// scripts); the verification engine itself only ever validates.
func (v *Validator) Issue(subject string, duration time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			Issuer:    "verified-container/ctpverify",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
