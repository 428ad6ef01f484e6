package oidc

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformedToken    = errors.New("malformed oidc token")
	ErrUnknownSigningKey = errors.New("token signed with unknown key")
	ErrTokenExpired      = errors.New("oidc token expired")
	ErrTokenInvalid      = errors.New("oidc token invalid")
)

// IdentityClaims are the fields extracted from a verified ID token. The
// subject comes from the embedded registered claims.
type IdentityClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Validator verifies ID tokens from an external identity provider against a
// cached JWKS key set.
type Validator struct {
	keySet   *KeySet
	issuer   string
	audience string
}

// NewValidator creates a Validator. issuer and audience are matched against
// the token's iss and aud claims; empty values skip that check.
func NewValidator(keySet *KeySet, issuer, audience string) *Validator {
	return &Validator{keySet: keySet, issuer: issuer, audience: audience}
}

// Validate parses and verifies tokenStr. The key is selected by the kid
// header; tokens without a kid, or with a kid missing from the key set, are
// rejected without guessing. Tokens must carry an exp claim.
func (v *Validator) Validate(tokenStr string) (*IdentityClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &IdentityClaims{}, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, ErrUnknownSigningKey
		}
		key, err := v.keySet.LookupKey(kid)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				return nil, fmt.Errorf("%w: %v", ErrUnknownSigningKey, err)
			}
			return nil, err
		}
		return key, nil
	}, opts...)

	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownSigningKey):
			return nil, err
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrTokenInvalid)
	}
	return claims, nil
}
