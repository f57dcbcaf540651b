package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTLs. Short-lived access tokens, week-long refresh tokens.
// Both are configurable per-service.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenType discriminates the two kinds of signed tokens this service
// issues. An access token must never be accepted where a refresh token is
// required and vice versa.
type TokenType string

const (
	TokenTypeAccess  TokenType = "ACCESS"
	TokenTypeRefresh TokenType = "REFRESH"
)

var (
	ErrTokenExpired     = errors.New("jwtx: token expired")
	ErrTokenMalformed   = errors.New("jwtx: malformed token")
	ErrInvalidSignature = errors.New("jwtx: invalid signature")
)

// Claims is the closed set of claims embedded in signed tokens. A typed
// struct instead of a string-keyed map keeps verification exhaustive.
type Claims struct {
	jwt.RegisteredClaims

	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"token_type,omitempty"`
}

// Codec signs and verifies tokens under an immutable KeyMaterial using
// RS256. It is stateless given the keys and safe for concurrent use.
type Codec struct {
	Keys   *KeyMaterial
	Issuer string
}

// Issue signs a token for subject with the given role, type and lifetime.
// iat/nbf are set to now, exp to now+ttl.
func (c *Codec) Issue(subject, role string, tokenType TokenType, ttl time.Duration) (string, error) {
	now := time.Now().UTC()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:      role,
		TokenType: tokenType,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = c.Keys.KID()
	return t.SignedString(c.Keys.Private())
}

// Verify parses the token, checks the signature against the active public
// key and validates the expiry window. No clock-skew leeway is applied,
// a known limitation shared with every other consumer of these tokens.
func (c *Codec) Verify(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return c.Keys.Public(), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			// A future nbf means a clock problem or a forged window, not a
			// token that once was valid.
			return nil, fmt.Errorf("%w: not valid yet", ErrTokenMalformed)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	if c.Issuer != "" && claims.Issuer != c.Issuer {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// IsAccessToken reports whether the token is a currently valid access
// token. Any parse or signature failure reads as false, callers treat all
// verification failures uniformly as "invalid".
func (c *Codec) IsAccessToken(tokenStr string) bool {
	claims, err := c.Verify(tokenStr)
	return err == nil && claims.TokenType == TokenTypeAccess
}

// IsRefreshToken reports whether the token is a currently valid refresh
// token.
func (c *Codec) IsRefreshToken(tokenStr string) bool {
	claims, err := c.Verify(tokenStr)
	return err == nil && claims.TokenType == TokenTypeRefresh
}

// PublicJWK returns the verification key as a JWK for JWKS publishing.
func (c *Codec) PublicJWK() JWK {
	return NewRSAJWK(c.Keys.KID(), "sig", jwt.SigningMethodRS256.Alg(), c.Keys.Public())
}
