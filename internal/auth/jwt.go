package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"presence/internal/faults"
)

// Claims is the JWT payload for a login token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for the actor. The jti claim carries a
// fresh UUID so two tokens issued in the same second never collide; the
// sessions table relies on that for its token uniqueness constraint.
func IssueToken(actorID, role, issuer, key string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   actorID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// ParseToken validates signature, expiry, and issuer. Expired tokens map to
// SessionExpired so clients can distinguish "log in again" from "bad token".
func ParseToken(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, faults.Wrap(faults.SessionExpired, "token past expiry", err)
		}
		return Claims{}, faults.Wrap(faults.Unauthenticated, "invalid token", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, faults.New(faults.Unauthenticated, "invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, faults.New(faults.Unauthenticated, "issuer mismatch")
	}
	return *claims, nil
}
