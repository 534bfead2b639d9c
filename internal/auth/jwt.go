package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleOperator is the only role the ops API accepts.
const RoleOperator = "operator"

// Token is a signed access token and its expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Claims represents JWT payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs an HS256 access token for subject.
func Issue(subject, issuer, key string, ttl time.Duration) (Token, error) {
	if key == "" {
		return Token{}, errors.New("signing key is empty")
	}
	if subject == "" {
		return Token{}, errors.New("subject is empty")
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Role: RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Role != RoleOperator {
		return Claims{}, errors.New("role not allowed")
	}
	return *claims, nil
}
