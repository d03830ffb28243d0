package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword derives a bcrypt hash at the default cost. Raw passwords never
// travel past this package; the pipeline only sees actors and tokens.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
